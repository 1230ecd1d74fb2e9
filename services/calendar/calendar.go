// Package calendar resolves trading-session boundaries and nearest-expiry
// contracts. Every timestamp in the system is normalized to the single
// exchange timezone held here before any arithmetic; mixing naive and
// zoned timestamps upstream is how silent off-by-session bugs happen.
package calendar

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// ErrNoExpiry reports that no expiry on or after the trade date exists for
// the symbol. Callers skip the day; it is not a fatal error.
var ErrNoExpiry = errors.New("no expiry on or after trade date")

// Calendar holds session clock bounds and the per-symbol expiry table.
type Calendar struct {
	loc        *time.Location
	openClock  clock
	closeClock clock
	expiries   map[string][]time.Time // sorted ascending per symbol
}

type clock struct{ h, m, s int }

func parseClock(v string) (clock, error) {
	var c clock
	parsed, err := time.Parse("15:04:05", v)
	if err != nil {
		return c, fmt.Errorf("invalid session clock %q: %w", v, err)
	}
	c.h, c.m, c.s = parsed.Hour(), parsed.Minute(), parsed.Second()
	return c, nil
}

// New builds a calendar for one exchange timezone and session window,
// e.g. ("Asia/Kolkata", "09:15:00", "15:30:00").
func New(timezone, open, close string) (*Calendar, error) {
	loc, err := time.LoadLocation(timezone)
	if err != nil {
		return nil, fmt.Errorf("load timezone %q: %w", timezone, err)
	}
	oc, err := parseClock(open)
	if err != nil {
		return nil, err
	}
	cc, err := parseClock(close)
	if err != nil {
		return nil, err
	}
	return &Calendar{
		loc:        loc,
		openClock:  oc,
		closeClock: cc,
		expiries:   make(map[string][]time.Time),
	}, nil
}

// Location returns the exchange timezone.
func (c *Calendar) Location() *time.Location { return c.loc }

// SessionBounds returns the zoned open and close instants for a trading
// date. The date's own clock and zone are ignored; only its calendar day
// matters.
func (c *Calendar) SessionBounds(day time.Time) (open, close time.Time) {
	y, m, d := day.Date()
	open = time.Date(y, m, d, c.openClock.h, c.openClock.m, c.openClock.s, 0, c.loc)
	close = time.Date(y, m, d, c.closeClock.h, c.closeClock.m, c.closeClock.s, 0, c.loc)
	return open, close
}

// ClockOn projects a wall-clock string like "09:20:00" onto a trading
// date in the exchange timezone.
func (c *Calendar) ClockOn(day time.Time, clockStr string) (time.Time, error) {
	ck, err := parseClock(clockStr)
	if err != nil {
		return time.Time{}, err
	}
	y, m, d := day.Date()
	return time.Date(y, m, d, ck.h, ck.m, ck.s, 0, c.loc), nil
}

// AddExpiry registers one (symbol, expiry date) pair.
func (c *Calendar) AddExpiry(symbol string, expiry time.Time) {
	y, m, d := expiry.Date()
	e := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	c.expiries[symbol] = append(c.expiries[symbol], e)
	sort.Slice(c.expiries[symbol], func(i, j int) bool {
		return c.expiries[symbol][i].Before(c.expiries[symbol][j])
	})
}

// ResolveExpiry returns the minimum expiry date that is on or after the
// trade date for the symbol, or ErrNoExpiry.
func (c *Calendar) ResolveExpiry(symbol string, tradeDate time.Time) (time.Time, error) {
	y, m, d := tradeDate.Date()
	day := time.Date(y, m, d, 0, 0, 0, 0, c.loc)
	list := c.expiries[symbol]
	i := sort.Search(len(list), func(i int) bool { return !list[i].Before(day) })
	if i == len(list) {
		return time.Time{}, fmt.Errorf("%s on %s: %w", symbol, day.Format("2006-01-02"), ErrNoExpiry)
	}
	return list[i], nil
}

// LoadExpiries reads a tabular expiry file with rows of
// (instrument, expiry_type, expiry_date). Vendor exports frequently come
// BOM-prefixed or UTF-16 encoded, so the reader sniffs and decodes before
// parsing. Unparsable rows are skipped; the count of loaded rows is
// returned.
func (c *Calendar) LoadExpiries(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("open expiry table: %w", err)
	}
	defer f.Close()
	return c.readExpiries(f)
}

func (c *Calendar) readExpiries(f *os.File) (int, error) {
	var reader io.Reader = f
	br := bufio.NewReader(f)
	if head, _ := br.Peek(2); len(head) >= 2 &&
		((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return 0, fmt.Errorf("rewind expiry table: %w", err)
		}
		reader = transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	loaded := 0
	line := 0
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			line++
			continue
		}
		line++
		if len(rec) < 3 {
			continue
		}
		symbol := strings.TrimSpace(strings.TrimPrefix(rec[0], "\uFEFF"))
		if line == 1 && strings.EqualFold(symbol, "instrument") {
			continue
		}
		dateStr := strings.TrimSpace(rec[2])
		expiry, err := time.ParseInLocation("2006-01-02", dateStr, c.loc)
		if err != nil {
			continue
		}
		c.AddExpiry(symbol, expiry)
		loaded++
	}
	return loaded, nil
}
