package chain

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// MemoryStore is an in-process Store over preloaded rows, keyed by day.
// It backs tests and small synthetic backtests without touching disk.
type MemoryStore struct {
	days map[string][]Row
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{days: make(map[string][]Row)}
}

// PutDay replaces the rows stored for the given day.
func (s *MemoryStore) PutDay(date time.Time, rows []Row) {
	s.days[date.Format(DateFormat)] = rows
}

// LoadDay implements Store.
func (s *MemoryStore) LoadDay(ctx context.Context, date time.Time, expiry string) (*Snapshot, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := date.Format(DateFormat)
	rows, ok := s.days[key]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoData, key)
	}
	filtered := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Expiry == expiry {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w for %s expiry %s", ErrNoData, key, expiry)
	}
	return NewSnapshot(date, expiry, filtered), nil
}

// ListExpiries implements Store.
func (s *MemoryStore) ListExpiries(ctx context.Context, date time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := date.Format(DateFormat)
	rows, ok := s.days[key]
	if !ok {
		return nil, fmt.Errorf("%w for %s", ErrNoData, key)
	}
	seen := make(map[string]struct{})
	var expiries []string
	for _, r := range rows {
		if _, dup := seen[r.Expiry]; !dup {
			seen[r.Expiry] = struct{}{}
			expiries = append(expiries, r.Expiry)
		}
	}
	sort.Strings(expiries)
	return expiries, nil
}
