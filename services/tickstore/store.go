// Package tickstore reads raw tick parquet files: one stream per symbol
// for spot, one per contract for options. A missing or empty stream is a
// unit-skip condition, never a run failure.
package tickstore

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

// ErrNoData reports a missing tick file or one with no usable rows.
var ErrNoData = errors.New("no tick data")

// tickRow is the minimum raw schema: a timestamp column, a price column
// and an optional quantity column. Timestamps arrive as strings from the
// repacking pipeline.
type tickRow struct {
	Ts    string  `parquet:"ts"`
	Price float64 `parquet:"price"`
	Qty   float64 `parquet:"qty,optional"`
}

// tickRowMs is the alternate raw schema with a native epoch-millisecond
// timestamp column.
type tickRowMs struct {
	TsMs  int64   `parquet:"ts_ms"`
	Price float64 `parquet:"price"`
	Qty   float64 `parquet:"qty,optional"`
}

var tsLayouts = []string{
	"2006-01-02 15:04:05.000000",
	"2006-01-02 15:04:05.000",
	"2006-01-02 15:04:05",
	"2006-01-02T15:04:05.000000",
	"2006-01-02T15:04:05",
}

// Store locates and decodes tick files under a data directory, normalizing
// every timestamp into the exchange timezone on read.
type Store struct {
	dir string
	loc *time.Location
	log *zap.Logger
}

func New(dir string, loc *time.Location, log *zap.Logger) *Store {
	if log == nil {
		log = zap.NewNop()
	}
	return &Store{dir: dir, loc: loc, log: log}
}

// SpotPath is the deterministic location of a spot tick file.
func (s *Store) SpotPath(symbol, date string) string {
	return filepath.Join(s.dir, "spot", symbol, date+".parquet")
}

// OptionPath is the deterministic location of a per-contract tick file.
func (s *Store) OptionPath(c chain.Contract, date string) string {
	name := fmt.Sprintf("%s_%s_%s.parquet",
		c.Expiry.Format("2006-01-02"), c.OptType, chain.FormatStrike(c.Strike))
	return filepath.Join(s.dir, "options", c.Symbol, date, name)
}

// SpotTicks reads the spot stream for one (symbol, date).
func (s *Store) SpotTicks(symbol, date string) ([]timegrid.Tick, error) {
	return s.readTicks(s.SpotPath(symbol, date))
}

// OptionTicks reads the per-contract stream for one trading date.
func (s *Store) OptionTicks(c chain.Contract, date string) ([]timegrid.Tick, error) {
	return s.readTicks(s.OptionPath(c, date))
}

func (s *Store) readTicks(path string) ([]timegrid.Tick, error) {
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%s: %w", path, ErrNoData)
		}
		return nil, fmt.Errorf("stat %s: %w", path, err)
	}

	ticks, dropped, err := s.readStringTs(path)
	if err != nil || (len(ticks) == 0 && dropped > 0) {
		// String schema did not match, or decoded into nothing but
		// unparsable rows (a native-temporal file read through the
		// string struct comes back as empty strings): retry with the
		// epoch-millisecond layout before giving up.
		msTicks, msErr := s.readMillisTs(path)
		if msErr == nil && len(msTicks) > 0 {
			ticks, dropped = msTicks, 0
		} else if err != nil {
			return nil, fmt.Errorf("read %s: %w", path, err)
		}
	}
	if dropped > 0 {
		s.log.Warn("dropped rows with malformed timestamps",
			zap.String("file", path), zap.Int("dropped", dropped))
	}
	if len(ticks) == 0 {
		return nil, fmt.Errorf("%s: %w", path, ErrNoData)
	}
	return ticks, nil
}

func (s *Store) readStringTs(path string) ([]timegrid.Tick, int, error) {
	rows, err := parquet.ReadFile[tickRow](path)
	if err != nil {
		return nil, 0, err
	}
	ticks := make([]timegrid.Tick, 0, len(rows))
	dropped := 0
	for _, r := range rows {
		ts, ok := parseTimestamp(r.Ts, s.loc)
		if !ok {
			dropped++ // unparsable timestamp: drop the row, keep the file
			continue
		}
		ticks = append(ticks, timegrid.Tick{Ts: ts, Price: r.Price, Qty: r.Qty})
	}
	return ticks, dropped, nil
}

func (s *Store) readMillisTs(path string) ([]timegrid.Tick, error) {
	rows, err := parquet.ReadFile[tickRowMs](path)
	if err != nil {
		return nil, err
	}
	ticks := make([]timegrid.Tick, 0, len(rows))
	for _, r := range rows {
		if r.TsMs <= 0 {
			// A zero epoch means the column was absent and the decoder
			// filled the field's zero value; this is not a millis file.
			continue
		}
		ticks = append(ticks, timegrid.Tick{
			Ts:    time.UnixMilli(r.TsMs).In(s.loc),
			Price: r.Price,
			Qty:   r.Qty,
		})
	}
	return ticks, nil
}

func parseTimestamp(v string, loc *time.Location) (time.Time, bool) {
	for _, layout := range tsLayouts {
		if ts, err := time.ParseInLocation(layout, v, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}
