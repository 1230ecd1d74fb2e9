// Package chain models option contracts and the deterministic ordering
// used whenever several contracts are considered at the same instant.
package chain

import (
	"fmt"
	"sort"
	"strconv"
	"time"
)

// OptionType distinguishes calls and puts, using the exchange's CE/PE
// notation.
type OptionType string

const (
	Call OptionType = "CE"
	Put  OptionType = "PE"
)

// Contract identifies one specific option. It is an immutable identity
// key into tick data and caches.
type Contract struct {
	Symbol  string
	Expiry  time.Time
	Strike  float64
	OptType OptionType
}

// ID is the canonical string form of the contract, stable across runs and
// usable as a file-name component.
func (c Contract) ID() string {
	return fmt.Sprintf("%s_%s_%s_%s",
		c.Symbol, c.Expiry.Format("2006-01-02"), FormatStrike(c.Strike), c.OptType)
}

// FormatStrike renders a strike without trailing zeros so 21500.0 and
// 21500 map to the same cache path.
func FormatStrike(strike float64) string {
	return strconv.FormatFloat(strike, 'f', -1, 64)
}

// Less defines the fixed tie-break ordering for contracts triggering at
// the identical timestamp: strike ascending, then call before put. The
// scan must never depend on map iteration order.
func Less(a, b Contract) bool {
	if a.Strike != b.Strike {
		return a.Strike < b.Strike
	}
	if a.OptType != b.OptType {
		return a.OptType == Call
	}
	return a.Expiry.Before(b.Expiry)
}

// Sort orders contracts in the canonical scan order.
func Sort(cs []Contract) {
	sort.SliceStable(cs, func(i, j int) bool { return Less(cs[i], cs[j]) })
}

// Ladder expands strikes into contracts for both option types, already in
// canonical order.
func Ladder(symbol string, expiry time.Time, strikeLadder []float64) []Contract {
	out := make([]Contract, 0, 2*len(strikeLadder))
	for _, k := range strikeLadder {
		out = append(out, Contract{Symbol: symbol, Expiry: expiry, Strike: k, OptType: Call})
		out = append(out, Contract{Symbol: symbol, Expiry: expiry, Strike: k, OptType: Put})
	}
	Sort(out)
	return out
}
