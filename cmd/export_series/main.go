package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/arrowfeed"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/chain"
	"github.com/abhishek-notes/nfo-ops-lab-sub000/services/seriescache"
)

// export_series dumps one cached per-second contract series as an Arrow
// IPC stream, for inspection from Python or DuckDB.
func main() {
	cacheDir := flag.String("cache", "./cache", "Series cache directory")
	tz := flag.String("tz", "Asia/Kolkata", "Exchange timezone")
	symbol := flag.String("symbol", "NIFTY", "Underlying symbol")
	date := flag.String("date", "", "Trading date (YYYY-MM-DD)")
	expiry := flag.String("expiry", "", "Contract expiry (YYYY-MM-DD)")
	optType := flag.String("type", "CE", "Option type: CE or PE")
	strike := flag.Float64("strike", 0, "Strike price")
	out := flag.String("out", "", "Output file; stdout when empty")
	flag.Parse()

	if *date == "" || *expiry == "" || *strike == 0 {
		fmt.Fprintln(os.Stderr, "required: -date, -expiry, -strike")
		flag.Usage()
		os.Exit(2)
	}
	ot := chain.OptionType(*optType)
	if ot != chain.Call && ot != chain.Put {
		fmt.Fprintf(os.Stderr, "bad option type %q, want CE or PE\n", *optType)
		os.Exit(2)
	}

	loc, err := time.LoadLocation(*tz)
	if err != nil {
		fmt.Fprintf(os.Stderr, "timezone: %v\n", err)
		os.Exit(1)
	}

	cache := seriescache.New(*cacheDir, loc, nil)
	key := seriescache.Key{Symbol: *symbol, Date: *date, Expiry: *expiry, OptType: ot, Strike: *strike}
	entry, err := cache.Read(key)
	if err != nil {
		fmt.Fprintf(os.Stderr, "read %s: %v\n", key, err)
		os.Exit(1)
	}

	w := os.Stdout
	if *out != "" {
		f, err := os.Create(*out)
		if err != nil {
			fmt.Fprintf(os.Stderr, "create %s: %v\n", *out, err)
			os.Exit(1)
		}
		defer f.Close()
		w = f
	}

	enc := arrowfeed.NewEncoder()
	cols := []arrowfeed.Column{
		{Name: "price", Series: entry.Px},
		{Name: "volume", Series: entry.Vol},
	}
	if err := enc.Write(w, cols); err != nil {
		fmt.Fprintf(os.Stderr, "encode: %v\n", err)
		os.Exit(1)
	}
}
