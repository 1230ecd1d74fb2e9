package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/calendar"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chsink"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/config"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/report"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/seriescache"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/tickstore"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/strategies/volburst"
)

const engineVersion = "0.3.0"

func main() {
	// Flags
	cfgPath := flag.String("config", "", "YAML config path; defaults apply when empty")
	symbol := flag.String("symbol", "", "Override symbol (NIFTY, BANKNIFTY)")
	from := flag.String("from", "", "Override start date (YYYY-MM-DD)")
	to := flag.String("to", "", "Override end date (YYYY-MM-DD)")
	dataDir := flag.String("data", "", "Override tick data directory")
	cacheDir := flag.String("cache", "", "Override series cache directory")
	outDir := flag.String("out", "", "Override output directory")
	workers := flag.Int("workers", 0, "Override worker pool size; 0 keeps config")
	flag.Parse()

	log, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer log.Sync()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatal("load config", zap.Error(err))
	}
	if *symbol != "" {
		cfg.Symbol = *symbol
	}
	if *from != "" {
		cfg.StartDate = *from
	}
	if *to != "" {
		cfg.EndDate = *to
	}
	if *dataDir != "" {
		cfg.Paths.DataDir = *dataDir
	}
	if *cacheDir != "" {
		cfg.Paths.CacheDir = *cacheDir
	}
	if *outDir != "" {
		cfg.Paths.OutDir = *outDir
	}
	if *workers > 0 {
		cfg.Workers = *workers
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}

	cal, err := calendar.New(cfg.Session.Timezone, cfg.Session.Open, cfg.Session.Close)
	if err != nil {
		log.Fatal("session calendar", zap.Error(err))
	}
	if cfg.Paths.ExpiryFile != "" {
		n, err := cal.LoadExpiries(cfg.Paths.ExpiryFile)
		if err != nil {
			log.Fatal("load expiries", zap.String("path", cfg.Paths.ExpiryFile), zap.Error(err))
		}
		log.Info("expiries loaded", zap.Int("count", n))
	}

	store := tickstore.New(cfg.Paths.DataDir, cal.Location(), log)
	cache := seriescache.New(cfg.Paths.CacheDir, cal.Location(), log)
	runner := volburst.NewRunner(cfg, cal, store, cache, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	jobID := uuid.NewString()
	log.Info("run started",
		zap.String("job_id", jobID),
		zap.String("symbol", cfg.Symbol),
		zap.String("from", cfg.StartDate),
		zap.String("to", cfg.EndDate),
		zap.String("config_hash", cfg.Hash()),
	)

	agg := report.NewAggregator()
	started := time.Now()
	if err := runner.RunRange(ctx, agg); err != nil {
		log.Fatal("run failed", zap.Error(err))
	}

	trades := agg.Trades()
	skips := agg.Skips()
	summary := agg.Summarize()

	out := cfg.Paths.OutDir
	if err := report.WriteTradesParquet(filepath.Join(out, "trades.parquet"), trades); err != nil {
		log.Fatal("write trades parquet", zap.Error(err))
	}
	if err := report.WriteTradesCSV(filepath.Join(out, "trades.csv"), trades); err != nil {
		log.Fatal("write trades csv", zap.Error(err))
	}
	if err := report.WriteDailyParquet(filepath.Join(out, "daily.parquet"), agg.DailySummaries()); err != nil {
		log.Fatal("write daily parquet", zap.Error(err))
	}
	if err := report.WriteSkipsCSV(filepath.Join(out, "skips.csv"), skips); err != nil {
		log.Fatal("write skips csv", zap.Error(err))
	}
	manifest := report.Manifest{
		JobID:         jobID,
		EngineVersion: engineVersion,
		CreatedAt:     time.Now().UTC(),
		Symbol:        cfg.Symbol,
		StartDate:     cfg.StartDate,
		EndDate:       cfg.EndDate,
		ConfigHash:    cfg.Hash(),
		Config:        cfg.JSON(),
		TradeCount:    len(trades),
		SkippedUnits:  len(skips),
	}
	if err := report.WriteManifest(filepath.Join(out, "manifest.json"), manifest); err != nil {
		log.Fatal("write manifest", zap.Error(err))
	}

	if cfg.ClickHouse.Addr != "" {
		sink, err := chsink.Open(ctx, chsink.Options{
			Addr:     cfg.ClickHouse.Addr,
			Database: cfg.ClickHouse.Database,
			Username: cfg.ClickHouse.Username,
			Password: cfg.ClickHouse.Password,
			Table:    cfg.ClickHouse.Table,
		}, log)
		if err != nil {
			// The mirror is best-effort; the parquet outputs already hold
			// the full result.
			log.Warn("clickhouse open failed, skipping mirror", zap.Error(err))
		} else {
			if err := sink.WriteTrades(ctx, jobID, trades); err != nil {
				log.Warn("clickhouse write failed", zap.Error(err))
			} else {
				log.Info("trades mirrored to clickhouse", zap.Int("rows", len(trades)))
			}
			if err := sink.Close(); err != nil {
				log.Warn("clickhouse close", zap.Error(err))
			}
		}
	}

	log.Info("run finished",
		zap.String("job_id", jobID),
		zap.Int("trades", summary.TradeCount),
		zap.Int("wins", summary.Wins),
		zap.Float64("win_rate", summary.WinRate),
		zap.String("total_pnl", summary.TotalPnl.String()),
		zap.String("mean_pnl", summary.MeanPnl.String()),
		zap.Int("skipped_units", len(skips)),
		zap.Duration("elapsed", time.Since(started)),
	)
}
