package retry

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetalab/harvester/internal/chain"
)

// flakyStore fails a fixed number of calls before delegating to an inner
// memory store.
type flakyStore struct {
	inner    *chain.MemoryStore
	failures int
	calls    int
	err      error
}

func (f *flakyStore) LoadDay(ctx context.Context, date time.Time, expiry string) (*chain.Snapshot, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.inner.LoadDay(ctx, date, expiry)
}

func (f *flakyStore) ListExpiries(ctx context.Context, date time.Time) ([]string, error) {
	f.calls++
	if f.calls <= f.failures {
		return nil, f.err
	}
	return f.inner.ListExpiries(ctx, date)
}

func fastConfig() Config {
	cfg := DefaultConfig
	cfg.InitialBackoff = time.Millisecond
	cfg.MaxBackoff = 5 * time.Millisecond
	return cfg
}

func seededDay(t *testing.T) (*chain.MemoryStore, time.Time) {
	t.Helper()
	date, err := time.Parse(chain.DateFormat, "2024-06-11")
	require.NoError(t, err)
	store := chain.NewMemoryStore()
	store.PutDay(date, []chain.Row{
		{Minute: "09:15:00", Expiry: "2024-06-13", Strike: 22500, Spot: 22480},
	})
	return store, date
}

func TestStoreRetriesTransientFailures(t *testing.T) {
	inner, date := seededDay(t)
	flaky := &flakyStore{inner: inner, failures: 2, err: errors.New("read timeout")}
	store := NewStore(flaky, nil, fastConfig())

	snap, err := store.LoadDay(context.Background(), date, "2024-06-13")
	require.NoError(t, err)
	assert.False(t, snap.Empty())
	assert.Equal(t, 3, flaky.calls)
}

func TestStoreGivesUpAfterMaxRetries(t *testing.T) {
	inner, date := seededDay(t)
	flaky := &flakyStore{inner: inner, failures: 100, err: errors.New("read timeout")}
	cfg := fastConfig()
	cfg.MaxRetries = 2
	store := NewStore(flaky, nil, cfg)

	_, err := store.LoadDay(context.Background(), date, "2024-06-13")
	require.Error(t, err)
	assert.Equal(t, 3, flaky.calls)
}

func TestStoreDoesNotRetryDataGaps(t *testing.T) {
	inner, _ := seededDay(t)
	missing, err := time.Parse(chain.DateFormat, "2024-06-12")
	require.NoError(t, err)
	flaky := &flakyStore{inner: inner}
	store := NewStore(flaky, nil, fastConfig())

	_, err = store.LoadDay(context.Background(), missing, "2024-06-13")
	assert.ErrorIs(t, err, chain.ErrNoData)
	assert.Equal(t, 1, flaky.calls)
}

func TestStoreListExpiriesPassThrough(t *testing.T) {
	inner, date := seededDay(t)
	store := NewStore(&flakyStore{inner: inner}, nil, fastConfig())

	expiries, err := store.ListExpiries(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-13"}, expiries)
}

func TestStoreHonorsContextCancellation(t *testing.T) {
	inner, date := seededDay(t)
	store := NewStore(&flakyStore{inner: inner}, nil, fastConfig())

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := store.LoadDay(ctx, date, "2024-06-13")
	assert.ErrorIs(t, err, context.Canceled)
}
