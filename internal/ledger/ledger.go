// Package ledger provides the append-only trade book that backs one
// strategy cycle: trade recording, signed position bookkeeping, and
// mark-to-market valuation against a price snapshot.
package ledger

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"
)

// Side is the direction of a trade.
type Side string

const (
	// SideBuy adds positive quantity to a position.
	SideBuy Side = "buy"
	// SideSell adds negative quantity to a position.
	SideSell Side = "sell"
)

// Sign returns the quantity multiplier for the side (+1 buy, -1 sell).
func (s Side) Sign() (int, error) {
	switch Side(strings.ToLower(string(s))) {
	case SideBuy:
		return 1, nil
	case SideSell:
		return -1, nil
	default:
		return 0, fmt.Errorf("ledger: unknown side %q", string(s))
	}
}

// OptionClass identifies the option type half of an instrument key.
type OptionClass string

const (
	// Call options carry the CE suffix in instrument keys.
	Call OptionClass = "CE"
	// Put options carry the PE suffix in instrument keys.
	Put OptionClass = "PE"
)

// Quote is the (call, put) close-price pair for one strike.
type Quote struct {
	Call float64
	Put  float64
}

// Trade is a single immutable fill recorded in the ledger.
type Trade struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Symbol    string    `json:"symbol"`
	Price     float64   `json:"price"`
	Quantity  int       `json:"quantity"` // signed
	Side      Side      `json:"side"`
	Expiry    string    `json:"expiry,omitempty"`
	Strike    int       `json:"strike,omitempty"`
}

// Meta carries the optional expiry/strike attribution for a trade.
type Meta struct {
	Expiry string
	Strike int
}

// Symbol builds the instrument key for a strike and option class, e.g. "22500|PE".
func Symbol(strike int, class OptionClass) string {
	return strconv.Itoa(strike) + "|" + string(class)
}

// ParseSymbol splits an instrument key back into strike and option class.
func ParseSymbol(symbol string) (int, OptionClass, error) {
	parts := strings.SplitN(symbol, "|", 2)
	if len(parts) != 2 {
		return 0, "", fmt.Errorf("ledger: malformed symbol %q", symbol)
	}
	strike, err := strconv.Atoi(parts[0])
	if err != nil {
		return 0, "", fmt.Errorf("ledger: malformed strike in symbol %q: %w", symbol, err)
	}
	switch OptionClass(parts[1]) {
	case Call, Put:
		return strike, OptionClass(parts[1]), nil
	default:
		return 0, "", fmt.Errorf("ledger: unknown option class in symbol %q", symbol)
	}
}

// MissingPriceError reports a held strike that is absent from the price
// snapshot handed to MarkToMarket. Callers must treat it as "cannot mark
// this cycle", never as a flat position.
type MissingPriceError struct {
	Symbol string
	Strike int
}

func (e *MissingPriceError) Error() string {
	return fmt.Sprintf("ledger: no price for held instrument %s (strike %d)", e.Symbol, e.Strike)
}

// Ledger is the trade book for one strategy cycle. Positions and values are
// derived incrementally from the trade log and always equal the running sums
// over it. Not safe for concurrent use; the backtest is single-threaded.
type Ledger struct {
	name      string
	trades    map[string][]Trade
	allTrades []Trade
	positions map[string]int
	values    map[string]float64
}

// New creates an empty ledger. The name shows up in logs and the journal.
func New(name string) *Ledger {
	if name == "" {
		name = "tradebook"
	}
	return &Ledger{
		name:      name,
		trades:    make(map[string][]Trade),
		positions: make(map[string]int),
		values:    make(map[string]float64),
	}
}

// Name returns the ledger's display name.
func (l *Ledger) Name() string { return l.name }

// String implements fmt.Stringer for log lines.
func (l *Ledger) String() string {
	return fmt.Sprintf("%s with %d entries and %d positions", l.name, len(l.allTrades), l.OpenCount())
}

// AddTrade records a fill. Quantity is unsigned; the side determines the
// sign. A zero quantity is permitted and leaves position and value untouched.
func (l *Ledger) AddTrade(ts time.Time, symbol string, price float64, qty int, side Side, meta Meta) (Trade, error) {
	sign, err := side.Sign()
	if err != nil {
		return Trade{}, err
	}
	signed := qty * sign
	t := Trade{
		ID:        ulid.Make().String(),
		Timestamp: ts,
		Symbol:    symbol,
		Price:     price,
		Quantity:  signed,
		Side:      Side(strings.ToLower(string(side))),
		Expiry:    meta.Expiry,
		Strike:    meta.Strike,
	}
	l.trades[symbol] = append(l.trades[symbol], t)
	l.allTrades = append(l.allTrades, t)
	l.positions[symbol] += signed
	l.values[symbol] += float64(-signed) * price
	return t, nil
}

// RemoveTrade pops the most recent trade for the symbol and applies the
// exact inverse position/value update. It is a no-op when the symbol has no
// trades. Used only to unwind unrecoverable positions; never for edits.
func (l *Ledger) RemoveTrade(symbol string) {
	trades := l.trades[symbol]
	if len(trades) == 0 {
		return
	}
	t := trades[len(trades)-1]
	l.trades[symbol] = trades[:len(trades)-1]
	for i := len(l.allTrades) - 1; i >= 0; i-- {
		if l.allTrades[i].ID == t.ID {
			l.allTrades = append(l.allTrades[:i], l.allTrades[i+1:]...)
			break
		}
	}
	l.positions[symbol] -= t.Quantity
	l.values[symbol] -= float64(-t.Quantity) * t.Price
}

// MarkToMarket computes total P&L per instrument given the current (call,
// put) close prices keyed by strike: unrealized position value for every
// non-flat instrument plus the realized cash flow already booked.
func (l *Ledger) MarkToMarket(prices map[int]Quote) (map[string]float64, error) {
	totals := make(map[string]float64, len(l.values))
	for symbol, pos := range l.positions {
		if pos == 0 {
			continue
		}
		strike, class, err := ParseSymbol(symbol)
		if err != nil {
			return nil, err
		}
		q, ok := prices[strike]
		if !ok {
			return nil, &MissingPriceError{Symbol: symbol, Strike: strike}
		}
		ltp := q.Put
		if class == Call {
			ltp = q.Call
		}
		totals[symbol] = float64(pos) * ltp
	}
	for symbol, v := range l.values {
		totals[symbol] += v
	}
	return totals, nil
}

// AllTrades returns the full trade log in chronological order.
func (l *Ledger) AllTrades() []Trade {
	out := make([]Trade, len(l.allTrades))
	copy(out, l.allTrades)
	return out
}

// Position returns the signed quantity held for the symbol (zero when flat).
func (l *Ledger) Position(symbol string) int { return l.positions[symbol] }

// Value returns the cumulative realized cash flow for the symbol.
func (l *Ledger) Value(symbol string) float64 { return l.values[symbol] }

// Values returns the realized cash flow for every symbol ever traded.
func (l *Ledger) Values() map[string]float64 {
	out := make(map[string]float64, len(l.values))
	for k, v := range l.values {
		out[k] = v
	}
	return out
}

// OpenPositions returns every symbol with a non-zero position.
func (l *Ledger) OpenPositions() map[string]int {
	return l.filter(func(pos int) bool { return pos != 0 })
}

// LongPositions returns every symbol with a positive position.
func (l *Ledger) LongPositions() map[string]int {
	return l.filter(func(pos int) bool { return pos > 0 })
}

// ShortPositions returns every symbol with a negative position.
func (l *Ledger) ShortPositions() map[string]int {
	return l.filter(func(pos int) bool { return pos < 0 })
}

// OpenCount returns the number of non-flat positions.
func (l *Ledger) OpenCount() int {
	n := 0
	for _, pos := range l.positions {
		if pos != 0 {
			n++
		}
	}
	return n
}

// OpenSymbols returns the open position symbols in sorted order, so callers
// that mutate while iterating (forced unwind, exits) stay deterministic.
func (l *Ledger) OpenSymbols() []string {
	syms := make([]string, 0, len(l.positions))
	for symbol, pos := range l.positions {
		if pos != 0 {
			syms = append(syms, symbol)
		}
	}
	sort.Strings(syms)
	return syms
}

// RealizedTotal sums the realized cash flow across all symbols.
func (l *Ledger) RealizedTotal() float64 {
	total := 0.0
	for _, v := range l.values {
		total += v
	}
	return total
}

func (l *Ledger) filter(keep func(int) bool) map[string]int {
	out := make(map[string]int)
	for symbol, pos := range l.positions {
		if keep(pos) {
			out[symbol] = pos
		}
	}
	return out
}
