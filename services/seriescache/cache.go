// Package seriescache persists materialized per-second contract series so
// that concurrent day workers compute each (symbol, date, expiry, type,
// strike) key at most once per run. The cache is a performance
// optimization, not a correctness dependency: persistence failures degrade
// to the in-memory result.
package seriescache

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"github.com/parquet-go/parquet-go"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

// Key identifies one cached materialization. Keyed on an immutable trading
// date, a persisted entry is never re-validated against newer raw data.
type Key struct {
	Symbol  string
	Date    string // trading date, 2006-01-02
	Expiry  string // 2006-01-02
	OptType chain.OptionType
	Strike  float64
}

func (k Key) String() string {
	return fmt.Sprintf("%s/%s/%s_%s_%s", k.Symbol, k.Date, k.Expiry, k.OptType, chain.FormatStrike(k.Strike))
}

// Entry is the materialized per-second series for one contract on one
// trading date: last-price and summed-quantity columns over the same
// dense session grid.
type Entry struct {
	Px  *timegrid.SecondSeries
	Vol *timegrid.SecondSeries
}

func (e *Entry) clone() *Entry {
	return &Entry{Px: e.Px.Clone(), Vol: e.Vol.Clone()}
}

// BuilderFunc materializes a series on a cache miss.
type BuilderFunc func() (*Entry, error)

type seriesRow struct {
	Ts     int64   `parquet:"ts"`
	Price  float64 `parquet:"price"`
	Volume float64 `parquet:"volume"`
}

// Cache is safe for concurrent use within one process; across worker
// processes the atomic publish below keeps racing writers from corrupting
// a concurrently-read entry.
type Cache struct {
	dir   string
	loc   *time.Location
	log   *zap.Logger
	group singleflight.Group
}

// New creates a cache rooted at dir. Series timestamps read back from disk
// are re-zoned into loc.
func New(dir string, loc *time.Location, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{dir: dir, loc: loc, log: log}
}

// Path is the deterministic file location for a key.
func (c *Cache) Path(k Key) string {
	name := fmt.Sprintf("%s_%s_%s.parquet", k.Expiry, k.OptType, chain.FormatStrike(k.Strike))
	return filepath.Join(c.dir, k.Symbol, k.Date, name)
}

// GetOrBuild returns the persisted entry for key if one exists, otherwise
// calls build, persists the result, and returns it. Concurrent callers on
// the same key within this process share one build; racing workers in
// other processes at worst do redundant work, never produce a partial
// file.
func (c *Cache) GetOrBuild(ctx context.Context, key Key, build BuilderFunc) (*Entry, error) {
	v, err, _ := c.group.Do(key.String(), func() (any, error) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if e, err := c.Read(key); err == nil {
			return e, nil
		}
		e, err := build()
		if err != nil {
			return nil, err
		}
		if err := c.write(key, e); err != nil {
			// Disk full, permissions, torn directory: the in-memory
			// result still serves this run.
			c.log.Warn("cache write failed, continuing with in-memory series",
				zap.String("key", key.String()), zap.Error(err))
		}
		return e, nil
	})
	if err != nil {
		return nil, err
	}
	// Each caller owns its copy; cached entries are read-only.
	return v.(*Entry).clone(), nil
}

// Read loads a persisted entry, or an error if none exists.
func (c *Cache) Read(key Key) (*Entry, error) {
	rows, err := parquet.ReadFile[seriesRow](c.Path(key))
	if err != nil {
		return nil, fmt.Errorf("read cache %s: %w", key, err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("read cache %s: empty file", key)
	}
	start := time.Unix(rows[0].Ts, 0).In(c.loc)
	e := &Entry{
		Px:  &timegrid.SecondSeries{Start: start, Ts: make([]int64, len(rows)), Val: make([]float64, len(rows))},
		Vol: &timegrid.SecondSeries{Start: start, Ts: make([]int64, len(rows)), Val: make([]float64, len(rows))},
	}
	for i, r := range rows {
		e.Px.Ts[i] = r.Ts
		e.Px.Val[i] = r.Price
		e.Vol.Ts[i] = r.Ts
		e.Vol.Val[i] = r.Volume
	}
	return e, nil
}

// write publishes atomically: full write to a temp path in the same
// directory, then rename. A loser racing on the same key replaces the
// winner's file with identical content, which readers never observe as a
// torn state.
func (c *Cache) write(key Key, e *Entry) error {
	if e.Px.Len() != e.Vol.Len() {
		return fmt.Errorf("price/volume length mismatch %d != %d", e.Px.Len(), e.Vol.Len())
	}
	path := c.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("mkdir cache dir: %w", err)
	}
	rows := make([]seriesRow, e.Px.Len())
	for i := range rows {
		rows[i] = seriesRow{Ts: e.Px.Ts[i], Price: e.Px.Val[i], Volume: e.Vol.Val[i]}
	}
	tmp := fmt.Sprintf("%s.tmp-%s", path, uuid.NewString())
	if err := parquet.WriteFile(tmp, rows); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write temp cache file: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("publish cache file: %w", err)
	}
	return nil
}
