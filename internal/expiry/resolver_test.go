package expiry

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetalab/harvester/internal/chain"
)

func day(date string) time.Time {
	d, _ := time.Parse(chain.DateFormat, date)
	return d
}

func storeWithExpiries(date time.Time, expiries ...string) *chain.MemoryStore {
	store := chain.NewMemoryStore()
	rows := make([]chain.Row, 0, len(expiries))
	for _, e := range expiries {
		rows = append(rows, chain.Row{
			Minute: "09:15:00",
			Expiry: e,
			Strike: 22500,
			Spot:   22480,
		})
	}
	store.PutDay(date, rows)
	return store
}

func TestByRank(t *testing.T) {
	expiries := []string{"2024-06-13", "2024-06-20", "2024-06-27"}

	tests := []struct {
		name   string
		rank   int
		expiry string
		ok     bool
	}{
		{name: "rank one is nearest", rank: 1, expiry: "2024-06-13", ok: true},
		{name: "rank two", rank: 2, expiry: "2024-06-20", ok: true},
		{name: "last rank", rank: 3, expiry: "2024-06-27", ok: true},
		{name: "rank zero", rank: 0, ok: false},
		{name: "rank beyond listing", rank: 4, ok: false},
		{name: "negative rank", rank: -1, ok: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			expiry, ok := ByRank(expiries, tt.rank)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expiry, expiry)
		})
	}
}

func TestTradeableNearestExpiry(t *testing.T) {
	date := day("2024-06-11")
	r := NewResolver(storeWithExpiries(date, "2024-06-13", "2024-06-20"), false)

	expiry, ok, err := r.Tradeable(context.Background(), date)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-06-13", expiry)
}

func TestTradeableRollsOffOwnExpiryDay(t *testing.T) {
	date := day("2024-06-13")
	r := NewResolver(storeWithExpiries(date, "2024-06-13", "2024-06-20"), false)

	expiry, ok, err := r.Tradeable(context.Background(), date)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-06-20", expiry)
}

func TestTradeableNoRollTarget(t *testing.T) {
	// Expiry day with nothing listed past the expiring series.
	date := day("2024-06-13")
	r := NewResolver(storeWithExpiries(date, "2024-06-13"), false)

	_, ok, err := r.Tradeable(context.Background(), date)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTradeableEmptyListing(t *testing.T) {
	date := day("2024-06-11")
	store := chain.NewMemoryStore()
	store.PutDay(date, nil)
	r := NewResolver(store, false)

	_, ok, err := r.Tradeable(context.Background(), date)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestTradeableMissingDay(t *testing.T) {
	r := NewResolver(chain.NewMemoryStore(), false)

	_, _, err := r.Tradeable(context.Background(), day("2024-06-11"))
	require.Error(t, err)
	assert.ErrorIs(t, err, chain.ErrNoData)
}

func TestTradeableMalformedExpiry(t *testing.T) {
	date := day("2024-06-11")
	r := NewResolver(storeWithExpiries(date, "13-06-2024"), false)

	_, _, err := r.Tradeable(context.Background(), date)
	require.Error(t, err)
	assert.NotErrorIs(t, err, chain.ErrNoData)
}

func TestMonthlySeries(t *testing.T) {
	date := day("2024-06-11")
	r := NewResolver(storeWithExpiries(date,
		"2024-06-13", "2024-06-20", "2024-06-27", "2024-07-04", "2024-07-25"), true)

	expiries, err := r.ListForDay(context.Background(), date)
	require.NoError(t, err)
	assert.Equal(t, []string{"2024-06-27", "2024-07-25"}, expiries)

	expiry, ok, err := r.Tradeable(context.Background(), date)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-06-27", expiry)
}

func TestMonthlyRollsOffOwnExpiryDay(t *testing.T) {
	date := day("2024-06-27")
	r := NewResolver(storeWithExpiries(date, "2024-06-27", "2024-07-04", "2024-07-25"), true)

	expiry, ok, err := r.Tradeable(context.Background(), date)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "2024-07-25", expiry)
}
