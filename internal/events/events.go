// Package events defines the structured event stream emitted by the
// strategy and the orchestrator. Observers are injected; the core never
// formats log output itself.
package events

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Type classifies an event.
type Type string

const (
	TypeEntry       Type = "entry"
	TypeAdjust      Type = "adjust"
	TypeRehedge     Type = "rehedge"
	TypeExit        Type = "exit"
	TypeRollover    Type = "rollover"
	TypeGapRecovery Type = "gap_recovery"
	TypeUnwind      Type = "unwind"
	TypeArchive     Type = "archive"
)

// Event is one structured observation from the run.
type Event struct {
	Type   Type
	Date   time.Time
	Minute string
	Cycle  string
	Expiry string
	Reason string
	Fields map[string]any
}

// Observer receives events. Implementations must not mutate the event.
type Observer interface {
	Publish(Event)
}

// NopObserver discards every event.
type NopObserver struct{}

// Publish implements Observer.
func (NopObserver) Publish(Event) {}

// LogObserver writes events as structured logrus entries.
type LogObserver struct {
	log *logrus.Logger
}

// NewLogObserver creates an observer over the given logger.
func NewLogObserver(log *logrus.Logger) *LogObserver {
	return &LogObserver{log: log}
}

// Publish implements Observer.
func (o *LogObserver) Publish(e Event) {
	fields := logrus.Fields{"type": string(e.Type)}
	if !e.Date.IsZero() {
		fields["date"] = e.Date.Format("2006-01-02")
	}
	if e.Minute != "" {
		fields["minute"] = e.Minute
	}
	if e.Cycle != "" {
		fields["cycle"] = e.Cycle
	}
	if e.Expiry != "" {
		fields["expiry"] = e.Expiry
	}
	if e.Reason != "" {
		fields["reason"] = e.Reason
	}
	for k, v := range e.Fields {
		fields[k] = v
	}
	o.log.WithFields(fields).Info(string(e.Type))
}

// Recorder keeps every published event in memory. Test helper.
type Recorder struct {
	Events []Event
}

// Publish implements Observer.
func (r *Recorder) Publish(e Event) {
	r.Events = append(r.Events, e)
}
