package calendar

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail2cal/internal/store"
)

const tz = "America/Santiago"

func tracked() *store.TrackedEvent {
	return &store.TrackedEvent{
		ID:      "track-1",
		Title:   "Reunión de apoderados",
		Date:    time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC),
		Sources: []string{"msg-1", "msg-2"},
	}
}

func TestBuildEventAllDaySpansOneDay(t *testing.T) {
	ev := tracked()
	ev.AllDay = true

	got := BuildEvent(ev, tz)
	assert.Equal(t, "2026-03-10", got.Start.Date)
	assert.Equal(t, "2026-03-11", got.End.Date)
	assert.Empty(t, got.Start.DateTime)
}

func TestBuildEventTimedWindow(t *testing.T) {
	ev := tracked()
	start := ev.Date.Add(15*time.Hour + 30*time.Minute)
	end := ev.Date.Add(17 * time.Hour)
	ev.Start, ev.End = &start, &end

	got := BuildEvent(ev, tz)
	assert.Equal(t, start.Format(time.RFC3339), got.Start.DateTime)
	assert.Equal(t, end.Format(time.RFC3339), got.End.DateTime)
	assert.Equal(t, tz, got.Start.TimeZone)
}

func TestBuildEventCapsImplausibleDuration(t *testing.T) {
	ev := tracked()
	start := ev.Date.Add(8 * time.Hour)
	end := ev.Date.Add(20 * time.Hour)
	ev.Start, ev.End = &start, &end

	got := BuildEvent(ev, tz)
	assert.Equal(t, start.Add(2*time.Hour).Format(time.RFC3339), got.End.DateTime)
}

func TestBuildEventDefaultsMissingEnd(t *testing.T) {
	ev := tracked()
	start := ev.Date.Add(9 * time.Hour)
	ev.Start = &start

	got := BuildEvent(ev, tz)
	assert.Equal(t, start.Add(2*time.Hour).Format(time.RFC3339), got.End.DateTime)
}

func TestBuildEventMarksOwnership(t *testing.T) {
	got := BuildEvent(tracked(), tz)
	require.NotNil(t, got.ExtendedProperties)
	assert.Equal(t, "true", got.ExtendedProperties.Private[PropManaged])
	assert.Equal(t, "track-1", got.ExtendedProperties.Private[PropTrackID])
	assert.Equal(t, "2", got.ExtendedProperties.Private[PropSources])
}

func TestBuildEventRecurrence(t *testing.T) {
	ev := tracked()
	ev.Recurring = true
	got := BuildEvent(ev, tz)
	require.Len(t, got.Recurrence, 1)
	assert.Equal(t, "RRULE:FREQ=WEEKLY;COUNT=12", got.Recurrence[0])
}
