// Package report collects trade records across days and anchors into
// summary statistics and writes the run outputs. Aggregation is pure:
// no filtering or re-interpretation of trades happens here.
package report

import (
	"math"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
)

// Side of the option trade.
type Side string

const (
	Buy  Side = "buy"
	Sell Side = "sell"
)

// Trade is one completed trade, immutable once emitted by the lifecycle.
type Trade struct {
	Contract   chain.Contract
	Date       string // trading date, 2006-01-02
	Anchor     string // scan anchor clock, 15:04:05
	Side       Side
	EntryTs    time.Time
	EntryPrice decimal.Decimal
	ExitTs     time.Time
	ExitPrice  decimal.Decimal
	ExitReason string
	Pnl        decimal.Decimal
}

// Skip records one (symbol, day) unit that produced no trades, with the
// reason it was skipped. Skips are recorded, never escalated.
type Skip struct {
	Symbol string
	Date   string
	Reason string
}

// Summary aggregates a whole run.
type Summary struct {
	TradeCount int
	Wins       int
	WinRate    float64
	TotalPnl   decimal.Decimal
	MeanPnl    decimal.Decimal
	StdevPnl   float64
	Cumulative []CumulativePoint
}

// CumulativePoint is one step of the cumulative PnL series, ordered by
// (date, anchor) regardless of unit completion order.
type CumulativePoint struct {
	Date   string
	Anchor string
	Pnl    decimal.Decimal
	CumPnl decimal.Decimal
}

// DailySummary aggregates one trading date.
type DailySummary struct {
	Date       string
	TradeCount int
	Wins       int
	TotalPnl   decimal.Decimal
}

// Aggregator is safe for concurrent Add from day workers; units complete
// in any order and summaries re-sort by (date, anchor) before producing
// time-series output.
type Aggregator struct {
	mu     sync.Mutex
	trades []Trade
	skips  []Skip
}

func NewAggregator() *Aggregator { return &Aggregator{} }

// Add appends one trade. The aggregator owns the trade from here on.
func (a *Aggregator) Add(t Trade) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.trades = append(a.trades, t)
}

// AddSkip records a skipped unit.
func (a *Aggregator) AddSkip(s Skip) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.skips = append(a.skips, s)
}

// Trades returns all collected trades sorted by (date, anchor, entry).
func (a *Aggregator) Trades() []Trade {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Trade, len(a.trades))
	copy(out, a.trades)
	sortTrades(out)
	return out
}

// Skips returns the skip ledger sorted by (date, symbol).
func (a *Aggregator) Skips() []Skip {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]Skip, len(a.skips))
	copy(out, a.skips)
	sort.Slice(out, func(i, j int) bool {
		if out[i].Date != out[j].Date {
			return out[i].Date < out[j].Date
		}
		return out[i].Symbol < out[j].Symbol
	})
	return out
}

func sortTrades(ts []Trade) {
	sort.SliceStable(ts, func(i, j int) bool {
		if ts[i].Date != ts[j].Date {
			return ts[i].Date < ts[j].Date
		}
		if ts[i].Anchor != ts[j].Anchor {
			return ts[i].Anchor < ts[j].Anchor
		}
		return ts[i].EntryTs.Before(ts[j].EntryTs)
	})
}

// Summarize produces the run summary.
func (a *Aggregator) Summarize() Summary {
	trades := a.Trades()
	s := Summary{TradeCount: len(trades), TotalPnl: decimal.Zero, MeanPnl: decimal.Zero}
	if len(trades) == 0 {
		return s
	}

	cum := decimal.Zero
	pnls := make([]float64, len(trades))
	for i, t := range trades {
		s.TotalPnl = s.TotalPnl.Add(t.Pnl)
		cum = cum.Add(t.Pnl)
		if t.Pnl.GreaterThan(decimal.Zero) {
			s.Wins++
		}
		pnls[i] = t.Pnl.InexactFloat64()
		s.Cumulative = append(s.Cumulative, CumulativePoint{
			Date: t.Date, Anchor: t.Anchor, Pnl: t.Pnl, CumPnl: cum,
		})
	}
	n := decimal.NewFromInt(int64(len(trades)))
	s.MeanPnl = s.TotalPnl.Div(n)
	s.WinRate = float64(s.Wins) / float64(len(trades))
	s.StdevPnl = stdev(pnls)
	return s
}

// DailySummaries aggregates trades per trading date, ascending.
func (a *Aggregator) DailySummaries() []DailySummary {
	trades := a.Trades()
	byDate := make(map[string]*DailySummary)
	var order []string
	for _, t := range trades {
		d, ok := byDate[t.Date]
		if !ok {
			d = &DailySummary{Date: t.Date, TotalPnl: decimal.Zero}
			byDate[t.Date] = d
			order = append(order, t.Date)
		}
		d.TradeCount++
		if t.Pnl.GreaterThan(decimal.Zero) {
			d.Wins++
		}
		d.TotalPnl = d.TotalPnl.Add(t.Pnl)
	}
	sort.Strings(order)
	out := make([]DailySummary, 0, len(order))
	for _, date := range order {
		out = append(out, *byDate[date])
	}
	return out
}

// stdev is the sample standard deviation; zero for fewer than two trades.
func stdev(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	mean := 0.0
	for _, x := range xs {
		mean += x
	}
	mean /= float64(len(xs))
	ss := 0.0
	for _, x := range xs {
		d := x - mean
		ss += d * d
	}
	return math.Sqrt(ss / float64(len(xs)-1))
}
