// Package timegrid builds dense per-second timelines for a trading session
// and projects irregular tick streams onto them.
package timegrid

import (
	"math"
	"sort"
	"time"
)

// Tick is a single raw market data point. Source granularity is sub-second
// and irregular; ordering is not guaranteed unique per timestamp.
type Tick struct {
	Ts    time.Time
	Price float64
	Qty   float64
}

// SecondSeries is a dense per-second series covering one session:
// one row per second across [open, close] inclusive, no gaps,
// no duplicate timestamps.
type SecondSeries struct {
	Start time.Time // session open, in exchange timezone
	Ts    []int64   // unix seconds, strictly increasing, contiguous
	Val   []float64
}

// Len returns the number of seconds in the series.
func (s *SecondSeries) Len() int { return len(s.Ts) }

// Index maps a unix-second timestamp to its row index, or -1 if outside
// the series bounds.
func (s *SecondSeries) Index(unixSec int64) int {
	if len(s.Ts) == 0 {
		return -1
	}
	i := int(unixSec - s.Ts[0])
	if i < 0 || i >= len(s.Ts) {
		return -1
	}
	return i
}

// Clone returns a deep copy. Series are owned by the component that built
// them for one day's processing; copy before handing across that boundary.
func (s *SecondSeries) Clone() *SecondSeries {
	out := &SecondSeries{Start: s.Start, Ts: make([]int64, len(s.Ts)), Val: make([]float64, len(s.Val))}
	copy(out.Ts, s.Ts)
	copy(out.Val, s.Val)
	return out
}

// Aggregation selects how ticks landing in the same second are reduced.
type Aggregation int

const (
	// AggLastPrice keeps the last traded price within the second.
	AggLastPrice Aggregation = iota
	// AggSumQty sums traded quantity within the second.
	AggSumQty
)

// BuildGrid produces an empty per-second grid for a session, inclusive of
// both endpoints: exactly seconds(close-open)+1 rows. Timestamps are
// truncated to the second before the grid is laid out.
func BuildGrid(open, close time.Time) *SecondSeries {
	o := open.Truncate(time.Second)
	c := close.Truncate(time.Second)
	n := int(c.Unix()-o.Unix()) + 1
	if n < 1 {
		n = 1
	}
	s := &SecondSeries{Start: o, Ts: make([]int64, n), Val: make([]float64, n)}
	base := o.Unix()
	for i := 0; i < n; i++ {
		s.Ts[i] = base + int64(i)
	}
	return s
}

// Project joins an irregular tick stream onto a dense grid:
// ticks are truncated to the second, grouped, reduced with agg,
// left-joined onto the grid, forward-filled, and finally back-filled so
// the leading seconds before the first tick carry the first known value.
//
// An entirely empty tick stream yields an all-zero series: downstream
// components treat that as "no signal", not an error.
//
// Projecting a series that is already dense and filled changes nothing.
func Project(grid *SecondSeries, ticks []Tick, agg Aggregation) *SecondSeries {
	out := &SecondSeries{Start: grid.Start, Ts: make([]int64, grid.Len()), Val: make([]float64, grid.Len())}
	copy(out.Ts, grid.Ts)
	for i := range out.Val {
		out.Val[i] = math.NaN()
	}
	if grid.Len() == 0 {
		return out
	}

	// Stable sort keeps same-second tick order so last-price is the last
	// observed trade, not an arbitrary one.
	sorted := make([]Tick, len(ticks))
	copy(sorted, ticks)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].Ts.Before(sorted[j].Ts) })

	base := out.Ts[0]
	n := out.Len()
	for _, t := range sorted {
		i := int(t.Ts.Unix() - base)
		if i < 0 || i >= n {
			continue
		}
		switch agg {
		case AggSumQty:
			if math.IsNaN(out.Val[i]) {
				out.Val[i] = t.Qty
			} else {
				out.Val[i] += t.Qty
			}
		default: // AggLastPrice
			out.Val[i] = t.Price
		}
	}

	forwardFill(out.Val)
	backFill(out.Val)

	// No ticks at all: zero-filled placeholder series.
	if math.IsNaN(out.Val[0]) {
		for i := range out.Val {
			out.Val[i] = 0
		}
	}
	return out
}

// Reproject re-applies the projection semantics to an existing series.
// For an already-dense, already-filled series this is the identity; it is
// used to re-normalize series read back from cache files.
func Reproject(s *SecondSeries) *SecondSeries {
	out := s.Clone()
	forwardFill(out.Val)
	backFill(out.Val)
	if out.Len() > 0 && math.IsNaN(out.Val[0]) {
		for i := range out.Val {
			out.Val[i] = 0
		}
	}
	return out
}

func forwardFill(vals []float64) {
	last := math.NaN()
	for i := range vals {
		if math.IsNaN(vals[i]) {
			vals[i] = last
		} else {
			last = vals[i]
		}
	}
}

func backFill(vals []float64) {
	first := math.NaN()
	for _, v := range vals {
		if !math.IsNaN(v) {
			first = v
			break
		}
	}
	if math.IsNaN(first) {
		return
	}
	for i := range vals {
		if math.IsNaN(vals[i]) {
			vals[i] = first
		} else {
			return
		}
	}
}
