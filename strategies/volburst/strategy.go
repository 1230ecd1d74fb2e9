package volburst

import (
	"context"
	"errors"
	"fmt"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/calendar"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/config"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/report"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/seriescache"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/signal"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/strikes"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/tickstore"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

// Runner executes the strategy over independent (symbol, day) units.
// Every unit is self-contained: a unit that cannot run records a skip
// with a reason and never fails the whole range.
type Runner struct {
	Cfg   config.Config
	Cal   *calendar.Calendar
	Store *tickstore.Store
	Cache *seriescache.Cache
	Log   *zap.Logger
}

func NewRunner(cfg config.Config, cal *calendar.Calendar, store *tickstore.Store, cache *seriescache.Cache, log *zap.Logger) *Runner {
	if log == nil {
		log = zap.NewNop()
	}
	return &Runner{Cfg: cfg, Cal: cal, Store: store, Cache: cache, Log: log}
}

// DayResult is the outcome of one (symbol, day) unit.
type DayResult struct {
	Date   string
	Trades []report.Trade
	Skips  []report.Skip
}

// candidate is one contract of the active ladder with its materialized
// series and precomputed signals.
type candidate struct {
	contract chain.Contract
	px       *timegrid.SecondSeries
	burst    *signal.Burst
	momentum []bool
}

// RunDay runs every anchor window of one trading day. At most one trade
// can be open at a time; each anchor yields at most one trade, and a
// trade still open when the next anchor's at-the-money strike differs is
// closed at the last second before the change.
func (r *Runner) RunDay(ctx context.Context, day time.Time) (DayResult, error) {
	date := day.Format("2006-01-02")
	res := DayResult{Date: date}
	skip := func(reason string) (DayResult, error) {
		res.Skips = append(res.Skips, report.Skip{Symbol: r.Cfg.Symbol, Date: date, Reason: reason})
		return res, nil
	}

	expiry, err := r.Cal.ResolveExpiry(r.Cfg.Symbol, day)
	if err != nil {
		if errors.Is(err, calendar.ErrNoExpiry) {
			return skip("no_expiry")
		}
		return res, err
	}

	open, close := r.Cal.SessionBounds(day)
	grid := timegrid.BuildGrid(open, close)

	spotTicks, err := r.Store.SpotTicks(r.Cfg.Symbol, date)
	if err != nil {
		if errors.Is(err, tickstore.ErrNoData) {
			return skip("no_spot_data")
		}
		r.Log.Warn("spot read failed", zap.String("date", date), zap.Error(err))
		return skip("spot_read_error")
	}
	spot := timegrid.Project(grid, spotTicks, timegrid.AggLastPrice)

	rolloverIdx := grid.Len() - 1
	rolloverLimit := Limit{Idx: rolloverIdx, Reason: ExitSessionEnd}
	if r.Cfg.Session.Rollover != "" {
		roll, err := r.Cal.ClockOn(day, r.Cfg.Session.Rollover)
		if err != nil {
			return res, fmt.Errorf("rollover clock: %w", err)
		}
		if i := grid.Index(roll.Unix()); i >= 0 {
			rolloverIdx = i
			rolloverLimit = Limit{Idx: i, Reason: ExitRollover}
		}
	}

	anchors, err := r.anchorIndexes(day, grid, rolloverIdx)
	if err != nil {
		return res, err
	}
	if len(anchors) == 0 {
		return skip("no_anchor_in_session")
	}

	life := r.lifecycle()
	expiryStr := expiry.Format("2006-01-02")
	nextFree := 0 // first second at which a new trade may be entered

	for ai, anchor := range anchors {
		if err := ctx.Err(); err != nil {
			return res, err
		}
		anchorIdx := anchor.idx
		refSpot := spot.Val[anchorIdx]
		atm := strikes.ATM(refSpot, r.Cfg.Strikes.Step)
		ladder := strikes.Ladder(refSpot, r.Cfg.Strikes.Step, r.Cfg.Strikes.LadderDepth)
		contracts := chain.Ladder(r.Cfg.Symbol, expiry, ladder)

		windowEnd := rolloverIdx
		limits := []Limit{rolloverLimit}
		if ai+1 < len(anchors) {
			nextAnchor := anchors[ai+1].idx
			if nextAnchor-1 < windowEnd {
				windowEnd = nextAnchor - 1
			}
			// The ladder re-centers at the next anchor; an open trade on
			// the old center must not straddle the change.
			if strikes.ATM(spot.Val[nextAnchor], r.Cfg.Strikes.Step) != atm {
				limits = append(limits, Limit{Idx: nextAnchor - 1, Reason: ExitContractChange})
			}
		}

		cands, err := r.loadCandidates(ctx, grid, contracts, date, expiryStr)
		if err != nil {
			r.Log.Warn("ladder load failed", zap.String("date", date), zap.Error(err))
			res.Skips = append(res.Skips, report.Skip{Symbol: r.Cfg.Symbol, Date: date, Reason: "ladder_load_error"})
			continue
		}

		scanStart := anchorIdx
		if nextFree > scanStart {
			scanStart = nextFree
		}

		entered := false
		// Seconds outer, canonical contract order inner: the earliest
		// trigger wins, ties resolve by strike then call-before-put.
		for t := scanStart; t <= windowEnd && !entered; t++ {
			if err := ctx.Err(); err != nil {
				return res, err
			}
			for _, c := range cands {
				if !c.burst.Flag[t] {
					continue
				}
				if c.momentum != nil && !c.momentum[t] {
					continue
				}
				if !r.trendAllows(c.contract.OptType, spot.Val[t], refSpot) {
					continue
				}

				out, ok := life.Run(c.px, c.burst, t, limits)
				if !ok {
					continue
				}
				res.Trades = append(res.Trades, report.Trade{
					Contract:   c.contract,
					Date:       date,
					Anchor:     anchor.clock,
					Side:       r.side(),
					EntryTs:    time.Unix(grid.Ts[out.EntryIdx], 0).In(r.Cal.Location()),
					EntryPrice: out.EntryPrice,
					ExitTs:     time.Unix(grid.Ts[out.ExitIdx], 0).In(r.Cal.Location()),
					ExitPrice:  out.ExitPrice,
					ExitReason: string(out.Reason),
					Pnl:        out.Pnl(r.side()),
				})
				nextFree = out.ExitIdx + 1
				entered = true
				break
			}
		}
	}

	if len(res.Trades) == 0 && len(res.Skips) == 0 {
		return skip("no_trigger")
	}
	return res, nil
}

type anchorPoint struct {
	clock string
	idx   int
}

// anchorIndexes maps the configured anchor clocks onto the grid, in
// ascending order, dropping anchors at or past the rollover boundary.
func (r *Runner) anchorIndexes(day time.Time, grid *timegrid.SecondSeries, rolloverIdx int) ([]anchorPoint, error) {
	pts := make([]anchorPoint, 0, len(r.Cfg.Session.Anchors))
	for _, a := range r.Cfg.Session.Anchors {
		ts, err := r.Cal.ClockOn(day, a)
		if err != nil {
			return nil, fmt.Errorf("anchor clock %q: %w", a, err)
		}
		i := grid.Index(ts.Unix())
		if i < 0 || i >= rolloverIdx {
			continue
		}
		pts = append(pts, anchorPoint{clock: a, idx: i})
	}
	sorted := sort.SliceIsSorted(pts, func(i, j int) bool { return pts[i].idx < pts[j].idx })
	if !sorted {
		return nil, fmt.Errorf("anchors must be in ascending clock order")
	}
	return pts, nil
}

// loadCandidates materializes the per-second series for every ladder
// contract through the cache and precomputes its signals. A contract
// with no tick file projects to an all-zero series: zero volume never
// triggers, so missing strikes cost nothing.
func (r *Runner) loadCandidates(ctx context.Context, grid *timegrid.SecondSeries, contracts []chain.Contract, date, expiry string) ([]candidate, error) {
	sig := r.Cfg.Signal
	out := make([]candidate, 0, len(contracts))
	for _, c := range contracts {
		key := seriescache.Key{Symbol: c.Symbol, Date: date, Expiry: expiry, OptType: c.OptType, Strike: c.Strike}
		entry, err := r.Cache.GetOrBuild(ctx, key, func() (*seriescache.Entry, error) {
			ticks, err := r.Store.OptionTicks(c, date)
			if err != nil && !errors.Is(err, tickstore.ErrNoData) {
				return nil, err
			}
			return &seriescache.Entry{
				Px:  timegrid.Project(grid, ticks, timegrid.AggLastPrice),
				Vol: timegrid.Project(grid, ticks, timegrid.AggSumQty),
			}, nil
		})
		if err != nil {
			return nil, fmt.Errorf("series %s: %w", key, err)
		}

		cand := candidate{
			contract: c,
			px:       entry.Px,
			burst:    signal.DetectBurst(entry.Vol, sig.ShortWindowS, sig.BaselineWindowS, sig.Multiplier),
		}
		// A lag with both thresholds zero means no momentum constraint:
		// MomentumTrigger treats a zero threshold as disabled, so gating
		// on it would reject every entry.
		if sig.MomentumLagS > 0 && (sig.MomentumUp > 0 || sig.MomentumDown > 0) {
			mom := signal.Momentum(entry.Px, sig.MomentumLagS)
			cand.momentum = signal.MomentumTrigger(mom, sig.MomentumUp, sig.MomentumDown)
		}
		out = append(out, cand)
	}
	return out, nil
}

// trendAllows gates an entry against the anchor-time spot reference.
// "with" means the spot has moved the way the trade wants: for a sold
// call that is spot at or below the reference, for a sold put at or
// above it. "against" inverts, "off" admits everything.
func (r *Runner) trendAllows(ot chain.OptionType, spotNow, ref float64) bool {
	mode := r.Cfg.Risk.TrendFilter
	if mode == "" || mode == "off" {
		return true
	}
	with := spotNow <= ref
	if ot == chain.Put {
		with = spotNow >= ref
	}
	if r.side() == report.Buy {
		with = !with
	}
	if mode == "against" {
		return !with
	}
	return with
}

func (r *Runner) side() report.Side {
	if r.Cfg.Risk.Side == "buy" {
		return report.Buy
	}
	return report.Sell
}

func (r *Runner) lifecycle() *Lifecycle {
	rc := r.Cfg.Risk
	return &Lifecycle{
		Side:            r.side(),
		TargetPct:       rc.TargetPct,
		StopPct:         rc.StopPct,
		Trailing:        rc.Trailing,
		TrailingPct:     rc.TrailingPct,
		MaxHoldS:        int(rc.MaxHold.Duration / time.Second),
		SignalDeathFrac: rc.SignalDeathFrac,
	}
}

// RunRange fans (symbol, day) units out over a bounded worker pool and
// collects every trade and skip into the aggregator. Unit results are
// deterministic and order-independent; only infrastructure errors (bad
// config, cancelled context) abort the run.
func (r *Runner) RunRange(ctx context.Context, agg *report.Aggregator) error {
	start, err := time.ParseInLocation("2006-01-02", r.Cfg.StartDate, r.Cal.Location())
	if err != nil {
		return fmt.Errorf("start_date: %w", err)
	}
	end, err := time.ParseInLocation("2006-01-02", r.Cfg.EndDate, r.Cal.Location())
	if err != nil {
		return fmt.Errorf("end_date: %w", err)
	}
	if end.Before(start) {
		return fmt.Errorf("end_date %s before start_date %s", r.Cfg.EndDate, r.Cfg.StartDate)
	}

	workers := r.Cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for day := start; !day.After(end); day = day.AddDate(0, 0, 1) {
		if day.Weekday() == time.Saturday || day.Weekday() == time.Sunday {
			continue
		}
		day := day
		g.Go(func() error {
			res, err := r.RunDay(gctx, day)
			if err != nil {
				return fmt.Errorf("unit %s: %w", day.Format("2006-01-02"), err)
			}
			for _, t := range res.Trades {
				agg.Add(t)
			}
			for _, s := range res.Skips {
				agg.AddSkip(s)
			}
			return nil
		})
	}
	return g.Wait()
}
