package strategy

import (
	"github.com/thetalab/harvester/internal/chain"
	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/ledger"
)

// PutSell sells a single put at the configured moneyness rank during the
// entry window and holds it until stop-loss, target, or the expiry-day
// cutoff closes it.
type PutSell struct {
	*core
}

// Entry sells one put at the reference strike. Outside the entry window, or
// when the strike is not listed this minute, the step yields no entry.
func (s *PutSell) Entry(step Step) (*Leg, error) {
	if s.cfg.EntryTime != "" && step.Minute != s.cfg.EntryTime {
		return nil, nil
	}
	row, ok := chain.ByMoneyness(step.Rows, s.cfg.EntryRank)
	if !ok {
		return nil, nil
	}

	symbol := ledger.Symbol(row.Strike, ledger.Put)
	meta := ledger.Meta{Expiry: s.expiry, Strike: row.Strike}
	if _, err := s.book.AddTrade(step.Time, symbol, row.PutClose, s.cfg.Quantity, ledger.SideSell, meta); err != nil {
		return nil, err
	}

	leg := Leg{
		Strike:      row.Strike,
		Class:       ledger.Put,
		Quantity:    s.cfg.Quantity,
		Side:        ledger.SideSell,
		EntryPrice:  row.PutClose,
		EntryDelta:  row.PutDelta,
		EntryIV:     row.PutIV,
		Expiry:      s.expiry,
		EntryDate:   step.Date,
		EntryMinute: step.Minute,
	}
	s.legs = append(s.legs, leg)
	s.entryDate = step.Date
	if err := s.transition(StateOpen, ConditionEntered); err != nil {
		return nil, err
	}

	s.obs.Publish(events.Event{
		Type:   events.TypeEntry,
		Date:   step.Date,
		Minute: step.Minute,
		Cycle:  s.cycleID,
		Expiry: s.expiry,
		Fields: map[string]any{
			"strike": row.Strike,
			"price":  row.PutClose,
			"delta":  row.PutDelta,
			"iv":     row.PutIV,
		},
	})
	return &s.legs[len(s.legs)-1], nil
}

// Adjust marks the book to market and applies the exit precedence. A held
// strike missing from the snapshot skips the step without touching the
// position.
func (s *PutSell) Adjust(step Step) (bool, error) {
	total, ok, err := s.markToMarket(chain.Quotes(step.Rows))
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if fire, reason := s.checkExits(total, step); fire {
		s.obs.Publish(events.Event{
			Type:   events.TypeAdjust,
			Date:   step.Date,
			Minute: step.Minute,
			Cycle:  s.cycleID,
			Expiry: s.expiry,
			Reason: string(reason),
			Fields: map[string]any{"pnl": total},
		})
		if err := s.Exit(reason, step); err != nil {
			return false, err
		}
		return true, nil
	}
	return false, nil
}

// RunCycle walks one day's snapshot.
func (s *PutSell) RunCycle(snap *chain.Snapshot, resumeAfter string) (bool, error) {
	return s.run(s, snap, resumeAfter)
}
