package main

import (
	"bufio"
	"encoding/csv"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"

	"github.com/parquet-go/parquet-go"
	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/tickstore"
)

// ingest_ticks is a one-shot loader: it converts a raw tick CSV dump
// (timestamp, price, quantity; vendor files are often UTF-16 with a BOM)
// into the canonical parquet layout the backtest reads. Rows are parsed,
// time-sorted and de-duplicated before the write, so re-running the
// ingest over the same dump is harmless.

type tickRow struct {
	Ts    string  `parquet:"ts"`
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

func main() {
	in := flag.String("in", "", "Raw tick CSV (ts,price,qty with header)")
	dataDir := flag.String("data", "./data", "Tick data directory root")
	tz := flag.String("tz", "Asia/Kolkata", "Exchange timezone")
	symbol := flag.String("symbol", "NIFTY", "Underlying symbol")
	date := flag.String("date", "", "Trading date (YYYY-MM-DD)")
	expiry := flag.String("expiry", "", "Contract expiry; empty ingests the spot stream")
	optType := flag.String("type", "", "Option type CE or PE; empty ingests the spot stream")
	strike := flag.Float64("strike", 0, "Strike price for an option stream")
	flag.Parse()

	if *in == "" || *date == "" {
		fmt.Fprintln(os.Stderr, "required: -in, -date")
		flag.Usage()
		os.Exit(2)
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fatal("timezone: %v", err)
	}

	rows, dropped, err := readRawCSV(*in, loc)
	if err != nil {
		fatal("read %s: %v", *in, err)
	}
	if len(rows) == 0 {
		fatal("no valid rows in %s", *in)
	}

	store := tickstore.New(*dataDir, loc, nil)
	var outPath string
	if *optType == "" {
		outPath = store.SpotPath(*symbol, *date)
	} else {
		ot := chain.OptionType(*optType)
		if ot != chain.Call && ot != chain.Put {
			fatal("bad option type %q, want CE or PE", *optType)
		}
		if *expiry == "" || *strike == 0 {
			fatal("option stream needs -expiry and -strike")
		}
		exp, err := time.ParseInLocation("2006-01-02", *expiry, loc)
		if err != nil {
			fatal("expiry: %v", err)
		}
		c := chain.Contract{Symbol: *symbol, Expiry: exp, Strike: *strike, OptType: ot}
		outPath = store.OptionPath(c, *date)
	}

	if err := os.MkdirAll(filepath.Dir(outPath), 0o755); err != nil {
		fatal("mkdir: %v", err)
	}
	if err := parquet.WriteFile(outPath, rows); err != nil {
		fatal("write %s: %v", outPath, err)
	}
	fmt.Printf("wrote %s: %d ticks (%d rows dropped)\n", outPath, len(rows), dropped)
}

// readRawCSV parses the vendor dump, dropping rows that do not parse and
// collapsing exact duplicates. Rows come back sorted by timestamp with
// the original order preserved inside a tie.
func readRawCSV(path string, loc *time.Location) ([]tickRow, int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, 0, err
	}
	defer f.Close()

	var reader io.Reader
	br := bufio.NewReader(f)
	if head, _ := br.Peek(2); len(head) >= 2 &&
		((head[0] == 0xFF && head[1] == 0xFE) || (head[0] == 0xFE && head[1] == 0xFF)) {
		if _, err := f.Seek(0, io.SeekStart); err != nil {
			return nil, 0, err
		}
		reader = transform.NewReader(f, unicode.UTF16(unicode.LittleEndian, unicode.ExpectBOM).NewDecoder())
	} else {
		reader = br
	}

	r := csv.NewReader(reader)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	type parsed struct {
		row tickRow
		ts  time.Time
		ord int
	}
	var out []parsed
	seen := make(map[tickRow]struct{})
	dropped := 0
	first := true
	for {
		rec, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			dropped++
			continue
		}
		if first {
			first = false
			if _, ok := parseTs(rec[0], loc); !ok {
				continue // header line
			}
		}
		if len(rec) < 2 {
			dropped++
			continue
		}
		ts, ok := parseTs(rec[0], loc)
		if !ok {
			dropped++
			continue
		}
		price, err := strconv.ParseFloat(rec[1], 64)
		if err != nil {
			dropped++
			continue
		}
		qty := 0.0
		if len(rec) > 2 {
			if q, err := strconv.ParseFloat(rec[2], 64); err == nil {
				qty = q
			}
		}
		row := tickRow{Ts: ts.Format("2006-01-02 15:04:05.000000"), Price: price, Qty: qty}
		if _, dup := seen[row]; dup {
			dropped++
			continue
		}
		seen[row] = struct{}{}
		out = append(out, parsed{row: row, ts: ts, ord: len(out)})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].ts.Equal(out[j].ts) {
			return out[i].ts.Before(out[j].ts)
		}
		return out[i].ord < out[j].ord
	})
	rows := make([]tickRow, len(out))
	for i, p := range out {
		rows[i] = p.row
	}
	return rows, dropped, nil
}

func parseTs(v string, loc *time.Location) (time.Time, bool) {
	for _, layout := range tsLayouts {
		if ts, err := time.ParseInLocation(layout, v, loc); err == nil {
			return ts, true
		}
	}
	return time.Time{}, false
}

func fatal(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
