// Package volburst implements the volume-burst option strategy: trigger
// detection over per-second contract series, trend-filtered entries and a
// deterministic per-trade lifecycle state machine.
package volburst

import (
	"github.com/shopspring/decimal"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/report"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/signal"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

// State of one candidate trade. The runner drives WaitingForTrigger and
// Triggered; Lifecycle.Run covers Entered through Exited.
type State int

const (
	WaitingForTrigger State = iota
	Triggered
	Entered
	Exited
)

// ExitReason labels the single terminal condition of a trade. Forced
// exits are first-class terminal states, not errors.
type ExitReason string

const (
	ExitTarget         ExitReason = "target"
	ExitStop           ExitReason = "stop"
	ExitTrailing       ExitReason = "trailing"
	ExitSignalDied     ExitReason = "signal_died"
	ExitSessionEnd     ExitReason = "session_end"
	ExitRollover       ExitReason = "rollover"
	ExitMaxHold        ExitReason = "max_hold"
	ExitContractChange ExitReason = "contract_change"
)

// Limit is a hard boundary on the forward scan: the trade may be open at
// Idx but no later, and a trade still open there closes with Reason.
// For a contract change the caller passes the last index before the
// change so the close uses the last price of the old contract.
type Limit struct {
	Idx    int
	Reason ExitReason
}

// Lifecycle holds the risk parameters fixed at entry time.
type Lifecycle struct {
	Side            report.Side
	TargetPct       float64
	StopPct         float64
	Trailing        bool
	TrailingPct     float64
	MaxHoldS        int // 0 disables the time limit
	SignalDeathFrac float64
}

// Outcome is the resolved terminal state of one entered trade.
type Outcome struct {
	EntryIdx   int
	ExitIdx    int
	EntryPrice decimal.Decimal
	ExitPrice  decimal.Decimal
	Reason     ExitReason
}

// Run walks the per-second price path forward from the entry second to
// the earliest hard limit. At every second the exit conditions are
// evaluated in fixed priority order:
//
//	1. trailing-stop breach (when trailing is enabled and armed)
//	2. hard target
//	3. hard stop
//	4. signal-died
//
// The first condition satisfied at the earliest second wins; at a single
// second the order above is the tie-break, so a trailing breach takes a
// simultaneously-hit hard target ("protect profit first"). A trade never
// exiting on its own closes at the limit second's price with the limit
// reason.
//
// burst may be nil when the signal-died exit is not configured.
func (l *Lifecycle) Run(px *timegrid.SecondSeries, burst *signal.Burst, entryIdx int, limits []Limit) (Outcome, bool) {
	n := px.Len()
	if entryIdx < 0 || entryIdx >= n {
		return Outcome{}, false
	}

	limitIdx := n - 1
	limitReason := ExitSessionEnd
	for _, lim := range limits {
		// Equal index installs the caller's reason: a rollover or
		// contract change on the final second is still that exit, not a
		// plain session end.
		if lim.Idx <= limitIdx {
			limitIdx = lim.Idx
			limitReason = lim.Reason
		}
	}
	if l.MaxHoldS > 0 && entryIdx+l.MaxHoldS < limitIdx {
		limitIdx = entryIdx + l.MaxHoldS
		limitReason = ExitMaxHold
	}

	entry := decimal.NewFromFloat(px.Val[entryIdx])
	out := Outcome{EntryIdx: entryIdx, EntryPrice: entry}

	// Degenerate window: entered on or past the boundary second.
	if entryIdx >= limitIdx {
		out.ExitIdx = entryIdx
		out.ExitPrice = entry
		out.Reason = limitReason
		return out, true
	}

	one := decimal.NewFromInt(1)
	targetMove := decimal.NewFromFloat(l.TargetPct)
	stopMove := decimal.NewFromFloat(l.StopPct)
	trailMove := decimal.NewFromFloat(l.TrailingPct)

	var target, stop decimal.Decimal
	if l.Side == report.Sell {
		target = entry.Mul(one.Sub(targetMove))
		stop = entry.Mul(one.Add(stopMove))
	} else {
		target = entry.Mul(one.Add(targetMove))
		stop = entry.Mul(one.Sub(stopMove))
	}

	var entryShort float64
	if burst != nil && entryIdx < len(burst.ShortSum) {
		entryShort = burst.ShortSum[entryIdx]
	}

	best := entry // most favorable excursion seen so far
	for i := entryIdx + 1; i <= limitIdx; i++ {
		p := decimal.NewFromFloat(px.Val[i])

		if l.Trailing {
			if l.Side == report.Sell {
				if p.LessThan(best) {
					best = p
				}
				// Armed only after a favorable excursion below entry;
				// the stop ratchets down with best and never loosens.
				if best.LessThan(entry) && p.GreaterThanOrEqual(best.Mul(one.Add(trailMove))) {
					return l.exitAt(out, i, p, ExitTrailing), true
				}
			} else {
				if p.GreaterThan(best) {
					best = p
				}
				if best.GreaterThan(entry) && p.LessThanOrEqual(best.Mul(one.Sub(trailMove))) {
					return l.exitAt(out, i, p, ExitTrailing), true
				}
			}
		}

		if l.Side == report.Sell {
			if p.LessThanOrEqual(target) {
				return l.exitAt(out, i, p, ExitTarget), true
			}
			if p.GreaterThanOrEqual(stop) {
				return l.exitAt(out, i, p, ExitStop), true
			}
		} else {
			if p.GreaterThanOrEqual(target) {
				return l.exitAt(out, i, p, ExitTarget), true
			}
			if p.LessThanOrEqual(stop) {
				return l.exitAt(out, i, p, ExitStop), true
			}
		}

		if l.SignalDeathFrac > 0 && burst != nil && i < len(burst.ShortSum) && entryShort > 0 {
			if burst.ShortSum[i] < l.SignalDeathFrac*entryShort {
				return l.exitAt(out, i, p, ExitSignalDied), true
			}
		}
	}

	return l.exitAt(out, limitIdx, decimal.NewFromFloat(px.Val[limitIdx]), limitReason), true
}

func (l *Lifecycle) exitAt(out Outcome, idx int, price decimal.Decimal, reason ExitReason) Outcome {
	out.ExitIdx = idx
	out.ExitPrice = price
	out.Reason = reason
	return out
}

// Pnl computes realized profit for the outcome: entry-exit for a sell,
// exit-entry for a buy. No commission or slippage model is applied here;
// callers may subtract a constant cost after the fact.
func (o Outcome) Pnl(side report.Side) decimal.Decimal {
	if side == report.Sell {
		return o.EntryPrice.Sub(o.ExitPrice)
	}
	return o.ExitPrice.Sub(o.EntryPrice)
}
