package seriescache

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/timegrid"
)

func testKey() Key {
	return Key{Symbol: "NIFTY", Date: "2024-01-15", Expiry: "2024-01-18", OptType: chain.Call, Strike: 21500}
}

func testEntry(t *testing.T, n int) *Entry {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatal(err)
	}
	open := time.Date(2024, 1, 15, 9, 15, 0, 0, loc)
	grid := timegrid.BuildGrid(open, open.Add(time.Duration(n-1)*time.Second))
	px := grid.Clone()
	vol := grid.Clone()
	for i := 0; i < n; i++ {
		px.Val[i] = 100 + float64(i)
		vol.Val[i] = float64(i * 10)
	}
	return &Entry{Px: px, Vol: vol}
}

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	loc, err := time.LoadLocation("Asia/Kolkata")
	if err != nil {
		t.Fatal(err)
	}
	return New(t.TempDir(), loc, nil)
}

func TestGetOrBuildRoundTrip(t *testing.T) {
	c := newTestCache(t)
	key := testKey()
	want := testEntry(t, 60)

	built, err := c.GetOrBuild(context.Background(), key, func() (*Entry, error) { return want, nil })
	if err != nil {
		t.Fatalf("GetOrBuild: %v", err)
	}
	if built.Px.Len() != 60 || built.Px.Val[59] != 159 {
		t.Fatalf("built entry wrong: len=%d last=%v", built.Px.Len(), built.Px.Val[59])
	}

	// Second call must come from disk, not the builder.
	read, err := c.GetOrBuild(context.Background(), key, func() (*Entry, error) {
		t.Fatal("builder called on warm cache")
		return nil, nil
	})
	if err != nil {
		t.Fatalf("GetOrBuild warm: %v", err)
	}
	for i := range want.Px.Val {
		if read.Px.Val[i] != want.Px.Val[i] || read.Vol.Val[i] != want.Vol.Val[i] {
			t.Fatalf("row %d differs after round trip", i)
		}
	}
	if !read.Px.Start.Equal(want.Px.Start) {
		t.Fatalf("start %v, want %v", read.Px.Start, want.Px.Start)
	}
}

func TestGetOrBuildRaceBuildsOnceOneFile(t *testing.T) {
	c := newTestCache(t)
	key := testKey()
	var builds int32

	const callers = 8
	results := make([]*Entry, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			e, err := c.GetOrBuild(context.Background(), key, func() (*Entry, error) {
				atomic.AddInt32(&builds, 1)
				time.Sleep(20 * time.Millisecond) // expensive builder
				return testEntry(t, 120), nil
			})
			if err != nil {
				t.Errorf("GetOrBuild: %v", err)
				return
			}
			results[i] = e
		}(i)
	}
	wg.Wait()

	if got := atomic.LoadInt32(&builds); got != 1 {
		t.Fatalf("builder ran %d times, want 1", got)
	}
	for i := 1; i < callers; i++ {
		if results[i] == nil || results[0] == nil {
			t.Fatal("missing result")
		}
		for j := range results[0].Px.Val {
			if results[i].Px.Val[j] != results[0].Px.Val[j] {
				t.Fatalf("caller %d row %d differs", i, j)
			}
		}
	}

	// Exactly one persisted file, no leftover temp files.
	var files []string
	err := filepath.Walk(c.dir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if !info.IsDir() {
			files = append(files, path)
		}
		return nil
	})
	if err != nil {
		t.Fatal(err)
	}
	if len(files) != 1 {
		t.Fatalf("expected exactly one cache file, found %v", files)
	}
	if strings.Contains(files[0], ".tmp-") {
		t.Fatalf("temp file leaked: %s", files[0])
	}
}

func TestGetOrBuildSurvivesPersistFailure(t *testing.T) {
	loc, _ := time.LoadLocation("Asia/Kolkata")
	dir := t.TempDir()
	c := New(filepath.Join(dir, "blocked"), loc, nil)
	// Make the cache root an unwritable file so MkdirAll fails.
	if err := os.WriteFile(filepath.Join(dir, "blocked"), []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	e, err := c.GetOrBuild(context.Background(), testKey(), func() (*Entry, error) { return testEntry(t, 30), nil })
	if err != nil {
		t.Fatalf("GetOrBuild must return the in-memory result on persist failure, got %v", err)
	}
	if e.Px.Len() != 30 {
		t.Fatalf("entry len = %d, want 30", e.Px.Len())
	}
}

func TestPathIsDeterministic(t *testing.T) {
	c := newTestCache(t)
	k := testKey()
	p1 := c.Path(k)
	p2 := c.Path(k)
	if p1 != p2 {
		t.Fatalf("path not deterministic: %s vs %s", p1, p2)
	}
	if filepath.Base(p1) != "2024-01-18_CE_21500.parquet" {
		t.Fatalf("unexpected file name %s", filepath.Base(p1))
	}
}

func TestCallersOwnIndependentCopies(t *testing.T) {
	c := newTestCache(t)
	key := testKey()
	a, err := c.GetOrBuild(context.Background(), key, func() (*Entry, error) { return testEntry(t, 10), nil })
	if err != nil {
		t.Fatal(err)
	}
	b, err := c.GetOrBuild(context.Background(), key, func() (*Entry, error) { return nil, nil })
	if err != nil {
		t.Fatal(err)
	}

	a.Px.Val[0] = -1
	if b.Px.Val[0] == -1 {
		t.Fatal("mutating one caller's series leaked into another's")
	}
}
