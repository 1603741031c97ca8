// Package backtest drives the day-by-day simulation: expiry resolution,
// strategy lifecycle, gap recovery, and archival of completed cycles.
package backtest

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/thetalab/harvester/internal/chain"
	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/expiry"
	"github.com/thetalab/harvester/internal/strategy"
)

// Config holds the run parameters for one backtest.
type Config struct {
	Start    time.Time
	End      time.Time
	Strategy string
	Params   strategy.Config
	// SameDayReentry lets a fresh cycle open later the same day after an
	// exit, resuming strictly after the exit minute. When false the next
	// entry is evaluated no earlier than the following day.
	SameDayReentry bool
}

// Orchestrator owns the simulation clock, the active strategy instance,
// and the archive of completed ledgers.
type Orchestrator struct {
	store    chain.Store
	resolver *expiry.Resolver
	cfg      Config
	obs      events.Observer
	logger   *log.Logger

	newStrategy func(date time.Time, exp string) (strategy.Strategy, error)
}

// New creates an orchestrator. A nil observer or logger is replaced with a
// no-op.
func New(store chain.Store, resolver *expiry.Resolver, cfg Config, obs events.Observer, logger *log.Logger) (*Orchestrator, error) {
	if store == nil {
		return nil, errors.New("backtest: nil store")
	}
	if resolver == nil {
		return nil, errors.New("backtest: nil resolver")
	}
	if cfg.Start.IsZero() || cfg.End.IsZero() {
		return nil, errors.New("backtest: start and end dates are required")
	}
	if cfg.End.Before(cfg.Start) {
		return nil, fmt.Errorf("backtest: end %s before start %s",
			cfg.End.Format(chain.DateFormat), cfg.Start.Format(chain.DateFormat))
	}
	if obs == nil {
		obs = events.NopObserver{}
	}
	if logger == nil {
		logger = log.New(discard{}, "", 0)
	}
	o := &Orchestrator{
		store:    store,
		resolver: resolver,
		cfg:      cfg,
		obs:      obs,
		logger:   logger,
	}
	o.newStrategy = func(date time.Time, exp string) (strategy.Strategy, error) {
		return strategy.New(cfg.Strategy, cfg.Params, date, exp, obs)
	}
	// Fail on an unknown variant before the day loop starts.
	if _, err := o.newStrategy(cfg.Start, cfg.Start.Format(chain.DateFormat)); err != nil {
		return nil, err
	}
	return o, nil
}

type discard struct{}

func (discard) Write(p []byte) (int, error) { return len(p), nil }

// Run executes the backtest. It returns the archive of completed cycles;
// every position still open when the range ends has been force-unwound, so
// the result never carries open exposure.
func (o *Orchestrator) Run(ctx context.Context) (*Result, error) {
	result := &Result{
		Start:    o.cfg.Start,
		End:      o.cfg.End,
		Strategy: o.cfg.Strategy,
	}

	current := o.cfg.Start
	var active strategy.Strategy

	for !current.After(o.cfg.End) {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		day := current.Format(chain.DateFormat)
		resumeAfter := ""
		entryAllowed := true

		// Holding branch: feed the day to the active position first.
		if active != nil && active.Ledger().OpenCount() > 0 {
			snap, err := o.store.LoadDay(ctx, current, active.BoundExpiry())
			switch {
			case errors.Is(err, chain.ErrNoData):
				if active.BoundExpiry() == day {
					// The position's own expiry data never arrived;
					// nothing can price an exit. Roll the ledger back.
					o.obs.Publish(events.Event{
						Type:   events.TypeGapRecovery,
						Date:   current,
						Cycle:  active.CycleID(),
						Expiry: active.BoundExpiry(),
						Reason: "missing snapshot on expiry day",
					})
					o.unwind(active, current, "no data on own expiry day")
					active = nil
				} else {
					o.logger.Printf("no data for %s expiry %s, retrying next day", day, active.BoundExpiry())
				}
			case err != nil:
				return nil, err
			default:
				exited, err := active.RunCycle(snap, "")
				if err != nil {
					return nil, err
				}
				if exited {
					resumeAfter = active.LastMinute()
					result.archive(active, o.obs)
					active = nil
					if !o.cfg.SameDayReentry {
						entryAllowed = false
					}
				}
			}
		}

		// Flat branch: look for a fresh entry.
		if active == nil && entryAllowed {
			exp, ok, err := o.resolveTradeable(ctx, current)
			if err != nil {
				return nil, err
			}
			if ok {
				snap, err := o.store.LoadDay(ctx, current, exp)
				if errors.Is(err, chain.ErrNoData) {
					o.logger.Printf("no data for %s expiry %s, skipping day", day, exp)
				} else if err != nil {
					return nil, err
				} else {
					active, err = o.newStrategy(current, exp)
					if err != nil {
						return nil, err
					}
					exited, err := active.RunCycle(snap, resumeAfter)
					if err != nil {
						return nil, err
					}
					if exited {
						// Same-day round trip.
						result.archive(active, o.obs)
						active = nil
					} else if active.Ledger().OpenCount() == 0 {
						// Nothing entered; a fresh instance gets the
						// next day's entry window.
						active = nil
					}
				}
			}
		}

		current = current.AddDate(0, 0, 1)
	}

	if active != nil && active.Ledger().OpenCount() > 0 {
		o.unwind(active, o.cfg.End, "end of range with open positions")
	}

	result.Stats = computeStatistics(result.Cycles)
	return result, nil
}

// resolveTradeable picks the expiry a new cycle may trade on the day. A
// missing day file or an empty listing is a quiet "no result"; anything
// else is fatal.
func (o *Orchestrator) resolveTradeable(ctx context.Context, date time.Time) (string, bool, error) {
	exp, ok, err := o.resolver.Tradeable(ctx, date)
	if errors.Is(err, chain.ErrNoData) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if !ok {
		return "", false, nil
	}
	if exp != date.Format(chain.DateFormat) {
		return exp, true, nil
	}
	// The resolver already rolls same-day expiries; this guards against a
	// store whose listing changed between calls.
	return "", false, nil
}

// unwind rolls every open leg back through repeated RemoveTrade calls: a
// pure ledger rollback, not a priced exit. The instance is discarded
// without archiving.
func (o *Orchestrator) unwind(active strategy.Strategy, date time.Time, reason string) {
	book := active.Ledger()
	for book.OpenCount() > 0 {
		for _, symbol := range book.OpenSymbols() {
			book.RemoveTrade(symbol)
		}
	}
	o.logger.Printf("forced unwind of cycle %s (%s): %s", active.CycleID(), active.BoundExpiry(), reason)
	o.obs.Publish(events.Event{
		Type:   events.TypeUnwind,
		Date:   date,
		Cycle:  active.CycleID(),
		Expiry: active.BoundExpiry(),
		Reason: reason,
	})
}
