package strategy

import (
	"github.com/thetalab/harvester/internal/chain"
	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/ledger"
	"github.com/thetalab/harvester/internal/util"
)

// Straddle sells an at-the-money straddle and buys symmetric put/call hedge
// wings offset by the straddle premium rounded to the strike step. When spot
// drifts beyond that offset from the last reference price it layers a fresh
// straddle-plus-wings set onto the same ledger instead of closing anything.
type Straddle struct {
	*core
	refSpot float64
	width   int
}

// Entry places the initial straddle and wings. Any minute while flat is an
// entry candidate.
func (s *Straddle) Entry(step Step) (*Leg, error) {
	return s.place(step)
}

// place books one straddle-plus-wings set sized around the current spot.
// Shared by the initial entry and every re-hedge. A missing reference
// strike or wing quote yields no placement.
func (s *Straddle) place(step Step) (*Leg, error) {
	atm, ok := chain.ByMoneyness(step.Rows, s.cfg.EntryRank)
	if !ok {
		return nil, nil
	}
	premium := atm.PutClose + atm.CallClose
	width := util.RoundToStep(premium, s.cfg.HedgeStep)
	if width <= 0 {
		// Premium too small to size a wing; placing would net out flat.
		return nil, nil
	}
	callWing, okCall := chain.ByStrike(step.Rows, atm.Strike+width)
	putWing, okPut := chain.ByStrike(step.Rows, atm.Strike-width)
	if !okCall || !okPut {
		return nil, nil
	}

	entering := s.state == StateFlat
	fills := []struct {
		strike int
		class  ledger.OptionClass
		price  float64
		side   ledger.Side
		delta  float64
		iv     float64
	}{
		{atm.Strike, ledger.Put, atm.PutClose, ledger.SideSell, atm.PutDelta, atm.PutIV},
		{atm.Strike, ledger.Call, atm.CallClose, ledger.SideSell, atm.CallDelta, atm.CallIV},
		{putWing.Strike, ledger.Put, putWing.PutClose, ledger.SideBuy, putWing.PutDelta, putWing.PutIV},
		{callWing.Strike, ledger.Call, callWing.CallClose, ledger.SideBuy, callWing.CallDelta, callWing.CallIV},
	}
	first := len(s.legs)
	for _, f := range fills {
		symbol := ledger.Symbol(f.strike, f.class)
		meta := ledger.Meta{Expiry: s.expiry, Strike: f.strike}
		if _, err := s.book.AddTrade(step.Time, symbol, f.price, s.cfg.Quantity, f.side, meta); err != nil {
			return nil, err
		}
		s.legs = append(s.legs, Leg{
			Strike:      f.strike,
			Class:       f.class,
			Quantity:    s.cfg.Quantity,
			Side:        f.side,
			EntryPrice:  f.price,
			EntryDelta:  f.delta,
			EntryIV:     f.iv,
			Expiry:      s.expiry,
			EntryDate:   step.Date,
			EntryMinute: step.Minute,
		})
	}
	s.refSpot = step.Spot
	s.width = width

	if entering {
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
				"strike":  atm.Strike,
				"width":   width,
				"premium": premium,
				"spot":    step.Spot,
			},
		})
	}
	return &s.legs[first], nil
}

// Adjust marks the book to market, re-hedges when spot has left the band
// around the reference price, then applies the exit precedence. A held
// strike missing from the snapshot skips the whole step.
func (s *Straddle) Adjust(step Step) (bool, error) {
	quotes := chain.Quotes(step.Rows)
	total, ok, err := s.markToMarket(quotes)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}

	if s.width > 0 && (step.Spot >= s.refSpot+float64(s.width) || step.Spot <= s.refSpot-float64(s.width)) {
		s.obs.Publish(events.Event{
			Type:   events.TypeRehedge,
			Date:   step.Date,
			Minute: step.Minute,
			Cycle:  s.cycleID,
			Expiry: s.expiry,
			Fields: map[string]any{
				"spot":     step.Spot,
				"ref_spot": s.refSpot,
				"width":    s.width,
			},
		})
		if _, err := s.place(step); err != nil {
			return false, err
		}
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
func (s *Straddle) RunCycle(snap *chain.Snapshot, resumeAfter string) (bool, error) {
	return s.run(s, snap, resumeAfter)
}
