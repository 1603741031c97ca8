// Package chain models option-chain snapshots and the stores that load
// them. A snapshot is one trading day's minute-level quotes for a single
// expiry; stores are the orchestrator's only source of market data.
package chain

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/thetalab/harvester/internal/ledger"
)

// ErrNoData signals that no snapshot exists for the requested day (or
// day+expiry). The orchestrator treats it as a recoverable data gap; it is
// never a schema or IO failure.
var ErrNoData = errors.New("chain: no data")

// DateFormat is the canonical day and expiry encoding used throughout.
const DateFormat = "2006-01-02"

// MinuteFormat is the intraday bucket encoding. Lexicographic order on
// minute strings must equal chronological order within a day.
const MinuteFormat = "15:04:05"

// Row is one strike's quotes for one minute bucket.
type Row struct {
	Minute    string
	Expiry    string
	Strike    int
	Spot      float64
	CallClose float64
	PutClose  float64
	CallDelta float64
	PutDelta  float64
	CallTheta float64
	PutTheta  float64
	CallVega  float64
	PutVega   float64
	CallIV    float64
	PutIV     float64
	TTE       float64 // time to expiry in days
	Moneyness int     // discrete distance from spot, 0 = at-the-money
}

// Snapshot is one day's minute-level chain for a single expiry.
type Snapshot struct {
	Date    time.Time
	Expiry  string
	minutes []string
	byMin   map[string][]Row
}

// NewSnapshot indexes rows by minute. Rows for other expiries must already
// be filtered out by the store.
func NewSnapshot(date time.Time, expiry string, rows []Row) *Snapshot {
	s := &Snapshot{
		Date:   date,
		Expiry: expiry,
		byMin:  make(map[string][]Row),
	}
	for _, r := range rows {
		if _, seen := s.byMin[r.Minute]; !seen {
			s.minutes = append(s.minutes, r.Minute)
		}
		s.byMin[r.Minute] = append(s.byMin[r.Minute], r)
	}
	sort.Strings(s.minutes)
	return s
}

// Minutes returns the distinct minute buckets in ascending order.
func (s *Snapshot) Minutes() []string { return s.minutes }

// At returns the rows for one minute bucket.
func (s *Snapshot) At(minute string) []Row { return s.byMin[minute] }

// Empty reports whether the snapshot holds no rows.
func (s *Snapshot) Empty() bool { return len(s.minutes) == 0 }

// Spot returns the spot price for a minute's rows (they all share it).
func Spot(rows []Row) float64 {
	if len(rows) == 0 {
		return 0
	}
	return rows[0].Spot
}

// ByStrike returns the row for the given strike, if present.
func ByStrike(rows []Row, strike int) (Row, bool) {
	for _, r := range rows {
		if r.Strike == strike {
			return r, true
		}
	}
	return Row{}, false
}

// ByMoneyness returns the row at the given moneyness rank, if present.
func ByMoneyness(rows []Row, rank int) (Row, bool) {
	for _, r := range rows {
		if r.Moneyness == rank {
			return r, true
		}
	}
	return Row{}, false
}

// Quotes builds the per-strike (call, put) close map used for
// mark-to-market and exits.
func Quotes(rows []Row) map[int]ledger.Quote {
	out := make(map[int]ledger.Quote, len(rows))
	for _, r := range rows {
		out[r.Strike] = ledger.Quote{Call: r.CallClose, Put: r.PutClose}
	}
	return out
}

// StepTime combines a simulation day with a minute bucket into a wall-clock
// timestamp. A malformed minute is a data-corruption error and aborts the run.
func StepTime(date time.Time, minute string) (time.Time, error) {
	t, err := time.Parse(MinuteFormat, minute)
	if err != nil {
		return time.Time{}, fmt.Errorf("chain: malformed minute %q: %w", minute, err)
	}
	return time.Date(date.Year(), date.Month(), date.Day(),
		t.Hour(), t.Minute(), t.Second(), 0, date.Location()), nil
}

// Store is the data collaborator contract. Implementations return ErrNoData
// (possibly wrapped) when the requested day has no snapshot; every other
// error is treated as fatal by the caller.
type Store interface {
	// LoadDay returns the day's snapshot filtered to one expiry.
	LoadDay(ctx context.Context, date time.Time, expiry string) (*Snapshot, error)
	// ListExpiries returns the distinct sorted expiries listed on the day.
	ListExpiries(ctx context.Context, date time.Time) ([]string, error)
}
