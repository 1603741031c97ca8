// Package strategy implements the decision state machines that drive one
// trading cycle: entry, adjustment, and exit logic over minute-level chain
// snapshots, with every resulting trade booked through a ledger.
package strategy

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/thetalab/harvester/internal/chain"
	"github.com/thetalab/harvester/internal/events"
	"github.com/thetalab/harvester/internal/ledger"
)

// State is the lifecycle state of a strategy instance.
type State string

const (
	// StateFlat means no open legs.
	StateFlat State = "flat"
	// StateOpen means one or more legs are recorded in the ledger.
	StateOpen State = "open"
)

// Transition conditions.
const (
	ConditionEntered = "entered"
	ConditionExited  = "exited"
	ConditionUnwound = "unwound"
)

// StateTransition defines a valid state transition.
type StateTransition struct {
	From      State
	To        State
	Condition string
}

// ValidTransitions is the complete lifecycle: a strategy goes Flat -> Open
// -> Flat exactly once and is then retired.
var ValidTransitions = []StateTransition{
	{StateFlat, StateOpen, ConditionEntered},
	{StateOpen, StateFlat, ConditionExited},
	{StateOpen, StateFlat, ConditionUnwound},
}

// ExitReason records why a cycle closed. Immutable once set.
type ExitReason string

const (
	ExitReasonStopLoss    ExitReason = "stop_loss"
	ExitReasonTarget      ExitReason = "target"
	ExitReasonExpiryClose ExitReason = "expiry_close"
	ExitReasonRoll        ExitReason = "roll"
)

// Leg describes one open option leg held by a strategy instance.
type Leg struct {
	Strike      int
	Class       ledger.OptionClass
	Quantity    int
	Side        ledger.Side
	EntryPrice  float64
	EntryDelta  float64
	EntryIV     float64
	Expiry      string
	EntryDate   time.Time
	EntryMinute string
}

// Step is the per-minute simulation context handed to entry/adjust/exit.
type Step struct {
	Date   time.Time
	Minute string
	Time   time.Time
	Rows   []chain.Row
	Spot   float64
}

// Config holds the tunable thresholds shared by all variants. Stop-loss and
// target are absolute currency amounts; evaluation order within a step is
// always stop-loss, target, then expiry-day cutoff.
type Config struct {
	EntryTime    string // minute gate for variants with an entry window, "" disables
	EntryRank    int    // moneyness rank of the reference strike
	StopLoss     float64
	Target       float64
	ExpiryCutoff string // square-off minute on expiry day, "" disables
	HedgeStep    int    // strike step for straddle hedge wings
	Quantity     int    // lots per leg
}

func (c *Config) applyDefaults() {
	if c.Quantity <= 0 {
		c.Quantity = 1
	}
	if c.HedgeStep <= 0 {
		c.HedgeStep = 50
	}
}

// Strategy is the capability set the orchestrator drives. A concrete
// variant decides when to enter, layer, and exit; the shared core owns the
// ledger, the state machine, and the per-day cycle loop.
type Strategy interface {
	Name() string
	CycleID() string
	BoundExpiry() string
	State() State
	Legs() []Leg
	Ledger() *ledger.Ledger
	ExitReason() ExitReason
	LastMinute() string

	// Entry is evaluated once per step while flat; it returns the primary
	// leg's details, or nil when the step yields no entry.
	Entry(step Step) (*Leg, error)
	// Adjust is evaluated once per step while open; it reports true when
	// the step exited the position.
	Adjust(step Step) (bool, error)
	// Exit offsets every open leg at its current quote and retires the
	// instance.
	Exit(reason ExitReason, step Step) error
	// RunCycle walks one day's snapshot minute by minute, skipping steps
	// at or before resumeAfter, and reports whether the cycle exited.
	RunCycle(snap *chain.Snapshot, resumeAfter string) (bool, error)
}

// Variant names understood by the factory.
const (
	NamePutSell  = "putsell"
	NameStraddle = "straddle"
)

// New constructs a strategy variant bound to one (entry date, expiry) pair,
// with a fresh ledger. Unknown names are a configuration error.
func New(name string, cfg Config, date time.Time, expiry string, obs events.Observer) (Strategy, error) {
	cfg.applyDefaults()
	if obs == nil {
		obs = events.NopObserver{}
	}
	c := &core{
		name:    name,
		cfg:     cfg,
		cycleID: uuid.New().String(),
		book:    ledger.New(name + "-" + expiry),
		obs:     obs,
		expiry:  expiry,
		state:   StateFlat,
	}
	switch name {
	case NamePutSell:
		return &PutSell{core: c}, nil
	case NameStraddle:
		return &Straddle{core: c}, nil
	default:
		return nil, fmt.Errorf("strategy: unknown variant %q", name)
	}
}

// decider is the variant-specific half of the cycle loop.
type decider interface {
	Entry(step Step) (*Leg, error)
	Adjust(step Step) (bool, error)
}

// core carries the state shared by every variant.
type core struct {
	name       string
	cfg        Config
	cycleID    string
	book       *ledger.Ledger
	obs        events.Observer
	expiry     string
	entryDate  time.Time
	state      State
	retired    bool
	legs       []Leg
	exitReason ExitReason
	lastMinute string
}

func (c *core) Name() string           { return c.name }
func (c *core) CycleID() string        { return c.cycleID }
func (c *core) BoundExpiry() string    { return c.expiry }
func (c *core) State() State           { return c.state }
func (c *core) Ledger() *ledger.Ledger { return c.book }
func (c *core) ExitReason() ExitReason { return c.exitReason }
func (c *core) LastMinute() string     { return c.lastMinute }

// Legs returns a copy of the open legs.
func (c *core) Legs() []Leg {
	out := make([]Leg, len(c.legs))
	copy(out, c.legs)
	return out
}

func (c *core) transition(to State, condition string) error {
	for _, tr := range ValidTransitions {
		if tr.From == c.state && tr.To == to && tr.Condition == condition {
			c.state = to
			return nil
		}
	}
	return fmt.Errorf("strategy: invalid transition from %s to %s with condition %q", c.state, to, condition)
}

// run is the shared per-day cycle loop. Steps at or before resumeAfter are
// skipped so a position held across days never re-evaluates its entry
// window, and a same-day re-entry starts strictly after the prior exit.
func (c *core) run(d decider, snap *chain.Snapshot, resumeAfter string) (bool, error) {
	for _, minute := range snap.Minutes() {
		if resumeAfter != "" && minute <= resumeAfter {
			continue
		}
		ts, err := chain.StepTime(snap.Date, minute)
		if err != nil {
			return false, err
		}
		rows := snap.At(minute)
		step := Step{
			Date:   snap.Date,
			Minute: minute,
			Time:   ts,
			Rows:   rows,
			Spot:   chain.Spot(rows),
		}
		c.lastMinute = minute

		switch c.state {
		case StateFlat:
			if c.retired {
				continue
			}
			if _, err := d.Entry(step); err != nil {
				return false, err
			}
		case StateOpen:
			exited, err := d.Adjust(step)
			if err != nil {
				return false, err
			}
			if exited {
				return true, nil
			}
		}
	}
	return false, nil
}

// Exit offsets every open leg at its current quoted price, one inverse
// trade per instrument, then retires the instance. All held strikes must be
// quoted in the step; adjust paths guarantee that by marking to market first.
func (c *core) Exit(reason ExitReason, step Step) error {
	quotes := chain.Quotes(step.Rows)
	for _, symbol := range c.book.OpenSymbols() {
		pos := c.book.Position(symbol)
		strike, class, err := ledger.ParseSymbol(symbol)
		if err != nil {
			return err
		}
		q, ok := quotes[strike]
		if !ok {
			return &ledger.MissingPriceError{Symbol: symbol, Strike: strike}
		}
		price := q.Put
		if class == ledger.Call {
			price = q.Call
		}
		side, qty := ledger.SideSell, pos
		if pos < 0 {
			side, qty = ledger.SideBuy, -pos
		}
		if _, err := c.book.AddTrade(step.Time, symbol, price, qty, side, ledger.Meta{Expiry: c.expiry, Strike: strike}); err != nil {
			return err
		}
	}
	c.legs = nil
	c.exitReason = reason
	if err := c.transition(StateFlat, ConditionExited); err != nil {
		return err
	}
	c.retired = true
	c.obs.Publish(events.Event{
		Type:   events.TypeExit,
		Date:   step.Date,
		Minute: step.Minute,
		Cycle:  c.cycleID,
		Expiry: c.expiry,
		Reason: string(reason),
	})
	return nil
}

// markToMarket sums the ledger's P&L against the step's quotes. ok is false
// when a held strike is missing from the snapshot; the caller must skip the
// step and leave the position untouched.
func (c *core) markToMarket(quotes map[int]ledger.Quote) (float64, bool, error) {
	totals, err := c.book.MarkToMarket(quotes)
	if err != nil {
		var missing *ledger.MissingPriceError
		if errors.As(err, &missing) {
			return 0, false, nil
		}
		return 0, false, err
	}
	sum := 0.0
	for _, v := range totals {
		sum += v
	}
	return sum, true, nil
}

// checkExits applies the deterministic exit precedence: stop-loss, target,
// then expiry-day cutoff. Only the first satisfied condition fires.
func (c *core) checkExits(total float64, step Step) (bool, ExitReason) {
	if c.cfg.StopLoss > 0 && total <= -c.cfg.StopLoss {
		return true, ExitReasonStopLoss
	}
	if c.cfg.Target > 0 && total >= c.cfg.Target {
		return true, ExitReasonTarget
	}
	if c.cfg.ExpiryCutoff != "" && c.isExpiryDay(step) && step.Minute >= c.cfg.ExpiryCutoff {
		return true, ExitReasonExpiryClose
	}
	return false, ""
}

func (c *core) isExpiryDay(step Step) bool {
	return c.expiry == step.Date.Format(chain.DateFormat)
}
