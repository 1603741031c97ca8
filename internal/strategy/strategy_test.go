package strategy

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/thetalab/harvester/internal/chain"
)

func testDate(t *testing.T, date string) time.Time {
	t.Helper()
	d, err := time.Parse(chain.DateFormat, date)
	require.NoError(t, err)
	return d
}

func TestNewKnownVariants(t *testing.T) {
	date := testDate(t, "2024-06-11")

	for _, name := range []string{NamePutSell, NameStraddle} {
		t.Run(name, func(t *testing.T) {
			s, err := New(name, Config{}, date, "2024-06-13", nil)
			require.NoError(t, err)
			assert.Equal(t, name, s.Name())
			assert.Equal(t, "2024-06-13", s.BoundExpiry())
			assert.Equal(t, StateFlat, s.State())
			assert.NotEmpty(t, s.CycleID())
			assert.Empty(t, s.Legs())
			assert.NotNil(t, s.Ledger())
		})
	}
}

func TestNewUnknownVariant(t *testing.T) {
	_, err := New("ironfly", Config{}, testDate(t, "2024-06-11"), "2024-06-13", nil)
	assert.Error(t, err)
}

func TestConfigDefaults(t *testing.T) {
	cfg := Config{}
	cfg.applyDefaults()
	assert.Equal(t, 1, cfg.Quantity)
	assert.Equal(t, 50, cfg.HedgeStep)

	cfg = Config{Quantity: 3, HedgeStep: 100}
	cfg.applyDefaults()
	assert.Equal(t, 3, cfg.Quantity)
	assert.Equal(t, 100, cfg.HedgeStep)
}

func TestTransitionTable(t *testing.T) {
	tests := []struct {
		name      string
		from      State
		to        State
		condition string
		wantErr   bool
	}{
		{name: "flat to open on entry", from: StateFlat, to: StateOpen, condition: ConditionEntered},
		{name: "open to flat on exit", from: StateOpen, to: StateFlat, condition: ConditionExited},
		{name: "open to flat on unwind", from: StateOpen, to: StateFlat, condition: ConditionUnwound},
		{name: "flat to flat rejected", from: StateFlat, to: StateFlat, condition: ConditionExited, wantErr: true},
		{name: "flat exit rejected", from: StateFlat, to: StateFlat, condition: ConditionUnwound, wantErr: true},
		{name: "re-entry from open rejected", from: StateOpen, to: StateOpen, condition: ConditionEntered, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := &core{state: tt.from}
			err := c.transition(tt.to, tt.condition)
			if tt.wantErr {
				assert.Error(t, err)
				assert.Equal(t, tt.from, c.state)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.to, c.state)
		})
	}
}
