package chain

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"time"
)

// CSVStore loads day files named YYYY-MM-DD.csv from a directory. Each file
// carries every expiry listed that day; LoadDay filters to one expiry.
// Parsed days are cached so the resolver and the orchestrator don't re-read
// the same file.
type CSVStore struct {
	dir   string
	cache map[string][]Row
}

// NewCSVStore creates a store over the given data directory.
func NewCSVStore(dir string) *CSVStore {
	return &CSVStore{
		dir:   dir,
		cache: make(map[string][]Row),
	}
}

// LoadDay implements Store.
func (s *CSVStore) LoadDay(ctx context.Context, date time.Time, expiry string) (*Snapshot, error) {
	rows, err := s.day(ctx, date)
	if err != nil {
		return nil, err
	}
	filtered := make([]Row, 0, len(rows))
	for _, r := range rows {
		if r.Expiry == expiry {
			filtered = append(filtered, r)
		}
	}
	if len(filtered) == 0 {
		return nil, fmt.Errorf("%w for %s expiry %s", ErrNoData, date.Format(DateFormat), expiry)
	}
	return NewSnapshot(date, expiry, filtered), nil
}

// ListExpiries implements Store.
func (s *CSVStore) ListExpiries(ctx context.Context, date time.Time) ([]string, error) {
	rows, err := s.day(ctx, date)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{})
	var expiries []string
	for _, r := range rows {
		if _, ok := seen[r.Expiry]; !ok {
			seen[r.Expiry] = struct{}{}
			expiries = append(expiries, r.Expiry)
		}
	}
	sort.Strings(expiries)
	return expiries, nil
}

func (s *CSVStore) day(ctx context.Context, date time.Time) ([]Row, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	key := date.Format(DateFormat)
	if rows, ok := s.cache[key]; ok {
		return rows, nil
	}
	path := filepath.Join(s.dir, key+".csv")
	f, err := os.Open(path) // #nosec G304 -- path is derived from the configured data dir
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("%w for %s", ErrNoData, key)
		}
		return nil, fmt.Errorf("chain: opening %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()

	rows, err := parseCSV(f)
	if err != nil {
		return nil, fmt.Errorf("chain: parsing %s: %w", path, err)
	}
	s.cache[key] = rows
	return rows, nil
}

// columns required in every day file, matched by header name.
var requiredColumns = []string{
	"minute", "expiry", "strike", "spot_price",
	"call_close", "put_close",
	"call_delta", "put_delta",
	"call_theta", "put_theta",
	"call_vega", "put_vega",
	"call_iv", "put_iv",
	"tte", "put_position",
}

func parseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.ReuseRecord = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("reading header: %w", err)
	}
	idx := make(map[string]int, len(header))
	for i, name := range header {
		idx[name] = i
	}
	for _, name := range requiredColumns {
		if _, ok := idx[name]; !ok {
			return nil, fmt.Errorf("schema mismatch: missing column %q", name)
		}
	}

	var rows []Row
	line := 1
	for {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		line++
		row, err := parseRow(rec, idx)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func parseRow(rec []string, idx map[string]int) (Row, error) {
	var row Row
	var err error

	row.Minute = rec[idx["minute"]]
	row.Expiry = rec[idx["expiry"]]
	if _, perr := time.Parse(DateFormat, row.Expiry); perr != nil {
		return Row{}, fmt.Errorf("malformed expiry %q: %w", row.Expiry, perr)
	}
	if row.Strike, err = strconv.Atoi(rec[idx["strike"]]); err != nil {
		return Row{}, fmt.Errorf("malformed strike %q: %w", rec[idx["strike"]], err)
	}
	if row.Moneyness, err = strconv.Atoi(rec[idx["put_position"]]); err != nil {
		return Row{}, fmt.Errorf("malformed put_position %q: %w", rec[idx["put_position"]], err)
	}

	floats := []struct {
		col string
		dst *float64
	}{
		{"spot_price", &row.Spot},
		{"call_close", &row.CallClose},
		{"put_close", &row.PutClose},
		{"call_delta", &row.CallDelta},
		{"put_delta", &row.PutDelta},
		{"call_theta", &row.CallTheta},
		{"put_theta", &row.PutTheta},
		{"call_vega", &row.CallVega},
		{"put_vega", &row.PutVega},
		{"call_iv", &row.CallIV},
		{"put_iv", &row.PutIV},
		{"tte", &row.TTE},
	}
	for _, f := range floats {
		if *f.dst, err = strconv.ParseFloat(rec[idx[f.col]], 64); err != nil {
			return Row{}, fmt.Errorf("malformed %s %q: %w", f.col, rec[idx[f.col]], err)
		}
	}
	return row, nil
}
