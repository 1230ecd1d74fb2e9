package volburst

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/parquet-go/parquet-go"
	"github.com/shopspring/decimal"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/calendar"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/config"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/report"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/seriescache"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/tickstore"
)

type fixtureTick struct {
	Ts    string  `parquet:"ts"`
	Price float64 `parquet:"price"`
	Qty   float64 `parquet:"qty,optional"`
}

func writeTicks(t *testing.T, path string, rows []fixtureTick) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		t.Fatalf("write fixture: %v", err)
	}
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.Symbol = "NIFTY"
	cfg.StartDate = "2024-01-15"
	cfg.EndDate = "2024-01-15"
	cfg.Session.Anchors = []string{"09:16:00"}
	cfg.Signal.ShortWindowS = 2
	cfg.Signal.BaselineWindowS = 4
	cfg.Signal.Multiplier = 1.0
	cfg.Signal.MomentumLagS = 0
	cfg.Risk.Side = "sell"
	cfg.Risk.TargetPct = 0.5
	cfg.Risk.StopPct = 0.5
	cfg.Risk.Trailing = false
	cfg.Risk.SignalDeathFrac = 0
	cfg.Risk.TrendFilter = "off"
	cfg.Strikes.Step = 50
	cfg.Strikes.LadderDepth = 0
	cfg.Workers = 2
	return cfg
}

func testRunner(t *testing.T, cfg config.Config) (*Runner, *tickstore.Store) {
	t.Helper()
	cal, err := calendar.New(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close)
	if err != nil {
		t.Fatal(err)
	}
	cal.AddExpiry("NIFTY", time.Date(2024, 1, 18, 0, 0, 0, 0, cal.Location()))
	store := tickstore.New(t.TempDir(), cal.Location(), nil)
	cache := seriescache.New(t.TempDir(), cal.Location(), nil)
	return NewRunner(cfg, cal, store, cache, nil), store
}

// seedBurstDay writes a spot file and a call-side tick stream with a
// volume burst at 09:16:40 (entry price 10) and the target touch at
// 09:17:00 (price 5). The put side has no file at all.
func seedBurstDay(t *testing.T, store *tickstore.Store, date string) {
	t.Helper()
	writeTicks(t, store.SpotPath("NIFTY", date), []fixtureTick{
		{Ts: date + " 09:15:00", Price: 21510, Qty: 1},
	})

	ce := chain.Contract{Symbol: "NIFTY", Expiry: time.Date(2024, 1, 18, 0, 0, 0, 0, time.UTC), Strike: 21500, OptType: chain.Call}
	var rows []fixtureTick
	base := time.Date(2024, 1, 15, 9, 15, 0, 0, time.UTC)
	for i := 0; i <= 300; i++ {
		ts := base.Add(time.Duration(i) * time.Second)
		row := fixtureTick{Ts: ts.Format("2006-01-02 15:04:05"), Price: 10, Qty: 1}
		if i == 100 { // 09:16:40
			row.Qty = 50
		}
		if i == 120 { // 09:17:00
			row.Price = 5
		}
		rows = append(rows, row)
	}
	writeTicks(t, store.OptionPath(ce, date), rows)
}

func TestRunDayEntersOnBurstAndExitsAtTarget(t *testing.T) {
	cfg := testConfig()
	r, store := testRunner(t, cfg)
	seedBurstDay(t, store, "2024-01-15")

	res, err := r.RunDay(context.Background(), time.Date(2024, 1, 15, 0, 0, 0, 0, r.Cal.Location()))
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades (%+v skips), want 1", len(res.Trades), res.Skips)
	}

	tr := res.Trades[0]
	if tr.Contract.OptType != chain.Call || tr.Contract.Strike != 21500 {
		t.Fatalf("traded %s, want the 21500 call", tr.Contract.ID())
	}
	if tr.Anchor != "09:16:00" {
		t.Fatalf("anchor = %s", tr.Anchor)
	}
	if got := tr.EntryTs.Format("15:04:05"); got != "09:16:40" {
		t.Fatalf("entry at %s, want 09:16:40", got)
	}
	if got := tr.ExitTs.Format("15:04:05"); got != "09:17:00" {
		t.Fatalf("exit at %s, want 09:17:00", got)
	}
	if tr.ExitReason != string(ExitTarget) {
		t.Fatalf("exit reason = %s, want target", tr.ExitReason)
	}
	if !tr.Pnl.Equal(decimal.NewFromInt(5)) {
		t.Fatalf("pnl = %s, want 5", tr.Pnl)
	}
}

func TestRunDayEntersWithDefaultMomentumSettings(t *testing.T) {
	// The documented defaults carry a momentum lag with both thresholds
	// zero; that combination means "no momentum constraint" and must not
	// veto burst entries.
	cfg := testConfig()
	defaults := config.Default()
	cfg.Signal.MomentumLagS = defaults.Signal.MomentumLagS
	cfg.Signal.MomentumUp = defaults.Signal.MomentumUp
	cfg.Signal.MomentumDown = defaults.Signal.MomentumDown
	r, store := testRunner(t, cfg)
	seedBurstDay(t, store, "2024-01-15")

	res, err := r.RunDay(context.Background(), time.Date(2024, 1, 15, 0, 0, 0, 0, r.Cal.Location()))
	if err != nil {
		t.Fatalf("RunDay: %v", err)
	}
	if len(res.Trades) != 1 {
		t.Fatalf("got %d trades (skips %+v), want the burst entry", len(res.Trades), res.Skips)
	}
	if res.Trades[0].ExitReason != string(ExitTarget) {
		t.Fatalf("exit reason = %s, want target", res.Trades[0].ExitReason)
	}
}

func TestRunDayIsDeterministicAcrossReruns(t *testing.T) {
	cfg := testConfig()
	r, store := testRunner(t, cfg)
	seedBurstDay(t, store, "2024-01-15")
	day := time.Date(2024, 1, 15, 0, 0, 0, 0, r.Cal.Location())

	first, err := r.RunDay(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}
	// Second pass hits the warm series cache instead of raw ticks.
	second, err := r.RunDay(context.Background(), day)
	if err != nil {
		t.Fatal(err)
	}
	if len(first.Trades) != 1 || len(second.Trades) != 1 {
		t.Fatalf("trade counts %d / %d, want 1 / 1", len(first.Trades), len(second.Trades))
	}
	a, b := first.Trades[0], second.Trades[0]
	if a.Contract != b.Contract || !a.EntryTs.Equal(b.EntryTs) || !a.ExitTs.Equal(b.ExitTs) ||
		!a.EntryPrice.Equal(b.EntryPrice) || !a.ExitPrice.Equal(b.ExitPrice) || a.ExitReason != b.ExitReason {
		t.Fatalf("reruns diverged:\n  %+v\n  %+v", a, b)
	}
}

func TestRunDayTrendFilterBlocksEntry(t *testing.T) {
	cfg := testConfig()
	cfg.Risk.TrendFilter = "with"
	r, store := testRunner(t, cfg)
	seedBurstDay(t, store, "2024-01-15")

	// Spot rallies well above the anchor reference before the burst: a
	// sold call with the trend requires spot at or below the reference.
	writeTicks(t, store.SpotPath("NIFTY", "2024-01-15"), []fixtureTick{
		{Ts: "2024-01-15 09:15:00", Price: 21510, Qty: 1},
		{Ts: "2024-01-15 09:16:30", Price: 21600, Qty: 1},
	})

	res, err := r.RunDay(context.Background(), time.Date(2024, 1, 15, 0, 0, 0, 0, r.Cal.Location()))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Trades) != 0 {
		t.Fatalf("trend filter should block the entry, got %+v", res.Trades)
	}
	if len(res.Skips) != 1 || res.Skips[0].Reason != "no_trigger" {
		t.Fatalf("skips = %+v, want a single no_trigger", res.Skips)
	}
}

func TestRunDaySkipsWhenNoExpiry(t *testing.T) {
	cfg := testConfig()
	r, _ := testRunner(t, cfg)

	// 2024-02-05 is past the only registered expiry.
	res, err := r.RunDay(context.Background(), time.Date(2024, 2, 5, 0, 0, 0, 0, r.Cal.Location()))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Skips) != 1 || res.Skips[0].Reason != "no_expiry" {
		t.Fatalf("skips = %+v, want no_expiry", res.Skips)
	}
}

func TestRunDaySkipsWhenNoSpotData(t *testing.T) {
	cfg := testConfig()
	r, _ := testRunner(t, cfg)

	res, err := r.RunDay(context.Background(), time.Date(2024, 1, 15, 0, 0, 0, 0, r.Cal.Location()))
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Skips) != 1 || res.Skips[0].Reason != "no_spot_data" {
		t.Fatalf("skips = %+v, want no_spot_data", res.Skips)
	}
}

func TestRunRangeSkipsWeekendsAndCollectsUnits(t *testing.T) {
	cfg := testConfig()
	// Friday 2024-01-12 through Tuesday 2024-01-16: the 13th and 14th
	// are a weekend and must not even be attempted.
	cfg.StartDate = "2024-01-12"
	cfg.EndDate = "2024-01-16"
	r, store := testRunner(t, cfg)
	seedBurstDay(t, store, "2024-01-15")

	agg := report.NewAggregator()
	if err := r.RunRange(context.Background(), agg); err != nil {
		t.Fatalf("RunRange: %v", err)
	}

	trades := agg.Trades()
	if len(trades) != 1 || trades[0].Date != "2024-01-15" {
		t.Fatalf("trades = %+v, want one on 2024-01-15", trades)
	}
	skips := agg.Skips()
	if len(skips) != 2 {
		t.Fatalf("skips = %+v, want no_spot_data for the 12th and 16th", skips)
	}
	for _, s := range skips {
		if s.Reason != "no_spot_data" {
			t.Fatalf("unexpected skip %+v", s)
		}
		if s.Date == "2024-01-13" || s.Date == "2024-01-14" {
			t.Fatalf("weekend unit %s must not run", s.Date)
		}
	}
}

func TestRunDayHonorsCancellation(t *testing.T) {
	cfg := testConfig()
	r, store := testRunner(t, cfg)
	seedBurstDay(t, store, "2024-01-15")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := r.RunDay(ctx, time.Date(2024, 1, 15, 0, 0, 0, 0, r.Cal.Location()))
	if err == nil {
		t.Fatal("expected context error")
	}
}

func TestRunRangeRejectsInvalidRange(t *testing.T) {
	cfg := testConfig()
	cfg.StartDate = "2024-01-16"
	cfg.EndDate = "2024-01-15"
	r, _ := testRunner(t, cfg)
	if err := r.RunRange(context.Background(), report.NewAggregator()); err == nil {
		t.Fatal("expected range validation error")
	}
}
