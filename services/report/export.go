package report

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
)

// TradeRow is the persisted trades-table schema.
type TradeRow struct {
	Symbol     string  `parquet:"symbol"`
	Date       string  `parquet:"date"`
	Anchor     string  `parquet:"anchor"`
	Expiry     string  `parquet:"expiry"`
	Strike     float64 `parquet:"strike"`
	OptType    string  `parquet:"opt_type"`
	Side       string  `parquet:"side"`
	EntryTsMs  int64   `parquet:"entry_ts_ms"`
	EntryPrice float64 `parquet:"entry_price"`
	ExitTsMs   int64   `parquet:"exit_ts_ms"`
	ExitPrice  float64 `parquet:"exit_price"`
	ExitReason string  `parquet:"exit_reason"`
	Pnl        float64 `parquet:"pnl"`
}

type dailyRow struct {
	Date       string  `parquet:"date"`
	TradeCount int32   `parquet:"trade_count"`
	Wins       int32   `parquet:"wins"`
	TotalPnl   float64 `parquet:"total_pnl"`
}

func toRow(t Trade) TradeRow {
	return TradeRow{
		Symbol:     t.Contract.Symbol,
		Date:       t.Date,
		Anchor:     t.Anchor,
		Expiry:     t.Contract.Expiry.Format("2006-01-02"),
		Strike:     t.Contract.Strike,
		OptType:    string(t.Contract.OptType),
		Side:       string(t.Side),
		EntryTsMs:  t.EntryTs.UnixMilli(),
		EntryPrice: t.EntryPrice.InexactFloat64(),
		ExitTsMs:   t.ExitTs.UnixMilli(),
		ExitPrice:  t.ExitPrice.InexactFloat64(),
		ExitReason: t.ExitReason,
		Pnl:        t.Pnl.InexactFloat64(),
	}
}

// WriteTradesParquet writes the trades table for one run.
func WriteTradesParquet(path string, trades []Trade) error {
	rows := make([]TradeRow, len(trades))
	for i, t := range trades {
		rows[i] = toRow(t)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write trades parquet: %w", err)
	}
	return nil
}

// WriteDailyParquet writes the daily-summary table.
func WriteDailyParquet(path string, days []DailySummary) error {
	rows := make([]dailyRow, len(days))
	for i, d := range days {
		rows[i] = dailyRow{
			Date:       d.Date,
			TradeCount: int32(d.TradeCount),
			Wins:       int32(d.Wins),
			TotalPnl:   d.TotalPnl.InexactFloat64(),
		}
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	if err := parquet.WriteFile(path, rows); err != nil {
		return fmt.Errorf("write daily parquet: %w", err)
	}
	return nil
}

// WriteTradesCSV writes the trades table as CSV for eyeballing.
func WriteTradesCSV(path string, trades []Trade) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create trades csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()

	header := []string{"symbol", "date", "anchor", "expiry", "strike", "opt_type",
		"side", "entry_ts", "entry_price", "exit_ts", "exit_price", "exit_reason", "pnl"}
	if err := w.Write(header); err != nil {
		return err
	}
	const tsLayout = "2006-01-02 15:04:05"
	for _, t := range trades {
		rec := []string{
			t.Contract.Symbol,
			t.Date,
			t.Anchor,
			t.Contract.Expiry.Format("2006-01-02"),
			chain.FormatStrike(t.Contract.Strike),
			string(t.Contract.OptType),
			string(t.Side),
			t.EntryTs.Format(tsLayout),
			t.EntryPrice.String(),
			t.ExitTs.Format(tsLayout),
			t.ExitPrice.String(),
			t.ExitReason,
			t.Pnl.String(),
		}
		if err := w.Write(rec); err != nil {
			return err
		}
	}
	return nil
}

// Manifest records a run's identity and configuration echo so results can
// be reproduced bit-for-bit.
type Manifest struct {
	JobID         string          `json:"job_id"`
	EngineVersion string          `json:"engine_version"`
	CreatedAt     time.Time       `json:"created_at"`
	Symbol        string          `json:"symbol"`
	StartDate     string          `json:"start_date"`
	EndDate       string          `json:"end_date"`
	ConfigHash    string          `json:"config_hash"`
	Config        json.RawMessage `json:"config"`
	TradeCount    int             `json:"trade_count"`
	SkippedUnits  int             `json:"skipped_units"`
}

// WriteManifest writes the run manifest JSON sidecar.
func WriteManifest(path string, m Manifest) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	b, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal manifest: %w", err)
	}
	return os.WriteFile(path, b, 0o644)
}

// WriteSkipsCSV writes the skipped-unit ledger.
func WriteSkipsCSV(path string, skips []Skip) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir output dir: %w", err)
	}
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create skips csv: %w", err)
	}
	defer f.Close()

	w := csv.NewWriter(f)
	defer w.Flush()
	if err := w.Write([]string{"symbol", "date", "reason"}); err != nil {
		return err
	}
	for _, s := range skips {
		if err := w.Write([]string{s.Symbol, s.Date, s.Reason}); err != nil {
			return err
		}
	}
	return nil
}

// ReadTradesParquet loads a trades table back; used by verification
// tooling and tests.
func ReadTradesParquet(path string) ([]TradeRow, error) {
	rows, err := parquet.ReadFile[TradeRow](path)
	if err != nil {
		return nil, fmt.Errorf("read trades parquet: %w", err)
	}
	return rows, nil
}
