// Package signal computes rolling statistics over per-second series and
// emits boolean trigger events. Everything here is a pure function of its
// inputs; the same series and parameters always produce the same flags.
package signal

import (
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

// Burst overlays a per-second series with short-window sums, baseline
// averages and the resulting trigger flags. Flags are defined only once
// the baseline window has accumulated enough samples; earlier seconds
// never flag.
type Burst struct {
	Ts       []int64
	ShortSum []float64
	Baseline []float64 // baseline mean scaled by the short window length
	Flag     []bool
}

// DetectBurst computes, for every second t,
//
//	shortSum(t) = sum(value[t-shortS+1 .. t])
//	baseline(t) = mean(value[t-baseS+1 .. t]) * shortS
//
// and sets Flag(t) when shortSum(t) > multiplier*baseline(t) with a strict
// inequality and baseline(t) > 0. The zero-baseline guard suppresses
// spurious triggers during warm-up and in dead contracts. The first
// baseS-1 seconds have no valid baseline and never flag.
func DetectBurst(s *timegrid.SecondSeries, shortS, baseS int, multiplier float64) *Burst {
	n := s.Len()
	b := &Burst{
		Ts:       make([]int64, n),
		ShortSum: make([]float64, n),
		Baseline: make([]float64, n),
		Flag:     make([]bool, n),
	}
	copy(b.Ts, s.Ts)
	if shortS < 1 || baseS < 1 {
		return b
	}
	for t := 0; t < n; t++ {
		b.ShortSum[t] = windowSum(s.Val, t, shortS)
		if t < baseS-1 {
			continue // partial baseline window: undefined, never a flag
		}
		b.Baseline[t] = windowSum(s.Val, t, baseS) / float64(baseS) * float64(shortS)
		if b.Baseline[t] > 0 && b.ShortSum[t] > multiplier*b.Baseline[t] {
			b.Flag[t] = true
		}
	}
	return b
}

// Momentum returns value(t) - value(t-lagS) for every second; the first
// lagS seconds have no lagged reference and report zero momentum.
func Momentum(s *timegrid.SecondSeries, lagS int) []float64 {
	out := make([]float64, s.Len())
	if lagS < 1 {
		return out
	}
	for t := lagS; t < s.Len(); t++ {
		out[t] = s.Val[t] - s.Val[t-lagS]
	}
	return out
}

// MomentumTrigger evaluates momentum against independent up and down
// thresholds. A zero threshold disables that direction.
func MomentumTrigger(momentum []float64, up, down float64) []bool {
	out := make([]bool, len(momentum))
	for t, m := range momentum {
		if up > 0 && m >= up {
			out[t] = true
		}
		if down > 0 && m <= -down {
			out[t] = true
		}
	}
	return out
}

// windowSum adds the trailing w values ending at t in index order. Direct
// summation is deliberate: rolling add/subtract accumulators drift in the
// last ulp and the trigger comparison is strict.
func windowSum(vals []float64, t, w int) float64 {
	lo := t - w + 1
	if lo < 0 {
		lo = 0
	}
	sum := 0.0
	for i := lo; i <= t; i++ {
		sum += vals[i]
	}
	return sum
}
