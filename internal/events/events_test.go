package events

import (
	"bytes"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLogObserverFormatsFields(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	date, err := time.Parse("2006-01-02", "2024-06-13")
	require.NoError(t, err)

	NewLogObserver(logger).Publish(Event{
		Type:   TypeExit,
		Date:   date,
		Minute: "12:00:00",
		Cycle:  "cycle-1",
		Expiry: "2024-06-13",
		Reason: "expiry_close",
		Fields: map[string]any{"pnl": 6.0},
	})

	out := buf.String()
	assert.Contains(t, out, `"type":"exit"`)
	assert.Contains(t, out, `"date":"2024-06-13"`)
	assert.Contains(t, out, `"minute":"12:00:00"`)
	assert.Contains(t, out, `"reason":"expiry_close"`)
	assert.Contains(t, out, `"pnl":6`)
}

func TestLogObserverSkipsZeroDate(t *testing.T) {
	var buf bytes.Buffer
	logger := logrus.New()
	logger.SetOutput(&buf)
	logger.SetFormatter(&logrus.JSONFormatter{})

	NewLogObserver(logger).Publish(Event{Type: TypeArchive, Cycle: "cycle-1"})

	assert.NotContains(t, buf.String(), `"date"`)
}

func TestRecorderKeepsOrder(t *testing.T) {
	rec := &Recorder{}
	rec.Publish(Event{Type: TypeEntry})
	rec.Publish(Event{Type: TypeExit})

	require.Len(t, rec.Events, 2)
	assert.Equal(t, TypeEntry, rec.Events[0].Type)
	assert.Equal(t, TypeExit, rec.Events[1].Type)
}
