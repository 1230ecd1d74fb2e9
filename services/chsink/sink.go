// Package chsink mirrors the trades table into ClickHouse for SQL
// analytics. The sink is optional: it is only constructed when an address
// is configured, and its failures are logged, never fatal to the run.
package chsink

import (
	"context"
	"fmt"

	"github.com/ClickHouse/clickhouse-go/v2"
	"github.com/ClickHouse/clickhouse-go/v2/lib/driver"
	"go.uber.org/zap"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/report"
)

// Options configures the ClickHouse connection and target table.
type Options struct {
	Addr     string
	Database string
	Username string
	Password string
	Table    string
}

type Sink struct {
	conn  driver.Conn
	table string
	log   *zap.Logger
}

// Open connects to ClickHouse and ensures the trades table exists.
func Open(ctx context.Context, opts Options, log *zap.Logger) (*Sink, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := clickhouse.Open(&clickhouse.Options{
		Addr: []string{opts.Addr},
		Auth: clickhouse.Auth{
			Database: opts.Database,
			Username: opts.Username,
			Password: opts.Password,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("connect to clickhouse: %w", err)
	}
	s := &Sink{conn: conn, table: opts.Table, log: log}
	if err := s.ensureTable(ctx); err != nil {
		conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sink) ensureTable(ctx context.Context) error {
	ddl := fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			job_id String,
			symbol LowCardinality(String),
			date Date,
			anchor String,
			expiry Date,
			strike Float64,
			opt_type LowCardinality(String),
			side LowCardinality(String),
			entry_ts_ms UInt64,
			entry_price Float64,
			exit_ts_ms UInt64,
			exit_price Float64,
			exit_reason LowCardinality(String),
			pnl Float64
		) ENGINE = MergeTree()
		ORDER BY (symbol, date, anchor, entry_ts_ms)`, s.table)
	if err := s.conn.Exec(ctx, ddl); err != nil {
		return fmt.Errorf("ensure trades table: %w", err)
	}
	return nil
}

// WriteTrades batch-inserts the run's trades tagged with the job id.
func (s *Sink) WriteTrades(ctx context.Context, jobID string, trades []report.Trade) error {
	if len(trades) == 0 {
		return nil
	}
	query := fmt.Sprintf(`
		INSERT INTO %s (
			job_id, symbol, date, anchor, expiry, strike, opt_type, side,
			entry_ts_ms, entry_price, exit_ts_ms, exit_price, exit_reason, pnl
		)`, s.table)

	batch, err := s.conn.PrepareBatch(ctx, query)
	if err != nil {
		return fmt.Errorf("prepare trades batch: %w", err)
	}
	for _, t := range trades {
		err := batch.Append(
			jobID,
			t.Contract.Symbol,
			t.Date,
			t.Anchor,
			t.Contract.Expiry.Format("2006-01-02"),
			t.Contract.Strike,
			string(t.Contract.OptType),
			string(t.Side),
			uint64(t.EntryTs.UnixMilli()),
			t.EntryPrice.InexactFloat64(),
			uint64(t.ExitTs.UnixMilli()),
			t.ExitPrice.InexactFloat64(),
			t.ExitReason,
			t.Pnl.InexactFloat64(),
		)
		if err != nil {
			return fmt.Errorf("append trade to batch: %w", err)
		}
	}
	if err := batch.Send(); err != nil {
		return fmt.Errorf("send trades batch: %w", err)
	}
	s.log.Info("mirrored trades to clickhouse",
		zap.String("table", s.table), zap.Int("rows", len(trades)))
	return nil
}

func (s *Sink) Close() error { return s.conn.Close() }
