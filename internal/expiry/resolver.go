// Package expiry resolves which option series a new position should trade:
// the sorted listing of a day's expiries, rank selection within it, and the
// rollover rule that keeps a fresh position off its own expiry day.
package expiry

import (
	"context"
	"fmt"
	"time"

	"github.com/thetalab/harvester/internal/chain"
)

// Resolver selects tradeable expiries from a chain store.
type Resolver struct {
	store   chain.Store
	monthly bool
}

// NewResolver creates a resolver over the store. With monthly set, rank
// selection runs over the monthly series (the last listed expiry in each
// calendar month) instead of the full weekly listing.
func NewResolver(store chain.Store, monthly bool) *Resolver {
	return &Resolver{store: store, monthly: monthly}
}

// ListForDay returns the distinct sorted expiries listed on the day.
// A missing day file surfaces as chain.ErrNoData from the store.
func (r *Resolver) ListForDay(ctx context.Context, date time.Time) ([]string, error) {
	expiries, err := r.store.ListExpiries(ctx, date)
	if err != nil {
		return nil, err
	}
	if r.monthly {
		return monthlySeries(expiries)
	}
	return expiries, nil
}

// ByRank returns the expiry at the 1-based rank within a sorted listing.
// Rank 1 is the nearest expiry. ok is false when the rank is out of range.
func ByRank(expiries []string, rank int) (string, bool) {
	if rank < 1 || rank > len(expiries) {
		return "", false
	}
	return expiries[rank-1], true
}

// Tradeable resolves the expiry a fresh position may open against on the
// given day: the nearest listed expiry, rolled forward one rank when it
// would expire today. ok is false when the day lists nothing usable; that
// is a "no result", not an error.
func (r *Resolver) Tradeable(ctx context.Context, date time.Time) (string, bool, error) {
	expiries, err := r.ListForDay(ctx, date)
	if err != nil {
		return "", false, err
	}
	if len(expiries) == 0 {
		return "", false, nil
	}
	nearest, ok := ByRank(expiries, 1)
	if !ok {
		return "", false, nil
	}
	nearestDate, err := time.Parse(chain.DateFormat, nearest)
	if err != nil {
		return "", false, fmt.Errorf("expiry: malformed expiry %q: %w", nearest, err)
	}
	if !sameDay(nearestDate, date) {
		return nearest, true, nil
	}
	// Never open a position on its own expiry day; roll to the next rank.
	next, ok := ByRank(expiries, 2)
	if !ok {
		return "", false, nil
	}
	return next, true, nil
}

// monthlySeries reduces a sorted weekly listing to the last expiry of each
// calendar month, preserving order.
func monthlySeries(expiries []string) ([]string, error) {
	var out []string
	for i, e := range expiries {
		d, err := time.Parse(chain.DateFormat, e)
		if err != nil {
			return nil, fmt.Errorf("expiry: malformed expiry %q: %w", e, err)
		}
		if i+1 < len(expiries) {
			next, err := time.Parse(chain.DateFormat, expiries[i+1])
			if err != nil {
				return nil, fmt.Errorf("expiry: malformed expiry %q: %w", expiries[i+1], err)
			}
			if next.Year() == d.Year() && next.Month() == d.Month() {
				continue
			}
		}
		out = append(out, e)
	}
	return out, nil
}

func sameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.YearDay() == b.YearDay()
}
