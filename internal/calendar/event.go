package calendar

import (
	"strconv"
	"time"

	calendar "google.golang.org/api/calendar/v3"

	"mail2cal/internal/store"
)

const (
	// maxDuration caps implausible extracted windows; anything longer
	// collapses to defaultDuration.
	maxDuration     = 8 * time.Hour
	defaultDuration = 2 * time.Hour

	// weeklyRecurrence bounds recurring activities to one school
	// semester rather than repeating forever.
	weeklyRecurrence = "RRULE:FREQ=WEEKLY;COUNT=12"
)

// Extended property keys marking entries as managed by this tool.
const (
	PropManaged = "mail2cal_managed"
	PropTrackID = "mail2cal_track_id"
	PropSources = "mail2cal_source_count"
)

// BuildEvent renders a tracked event as a Google Calendar event. All-day
// events span exactly one day; timed events are bounded to sane
// durations; the tracking ID travels in private extended properties so
// entries can be recognized even if the mapping file is rebuilt.
func BuildEvent(ev *store.TrackedEvent, tz string) *calendar.Event {
	out := &calendar.Event{
		Summary:     ev.Title,
		Description: ev.Description,
		Location:    ev.Location,
		ExtendedProperties: &calendar.EventExtendedProperties{
			Private: map[string]string{
				PropManaged: "true",
				PropTrackID: ev.ID,
				PropSources: strconv.Itoa(len(ev.Sources)),
			},
		},
	}

	if ev.AllDay || ev.Start == nil {
		day := ev.Date.Format("2006-01-02")
		next := ev.Date.AddDate(0, 0, 1).Format("2006-01-02")
		out.Start = &calendar.EventDateTime{Date: day}
		out.End = &calendar.EventDateTime{Date: next}
	} else {
		start := *ev.Start
		end := start.Add(defaultDuration)
		if ev.End != nil && ev.End.After(start) {
			end = *ev.End
			if end.Sub(start) > maxDuration {
				end = start.Add(defaultDuration)
			}
		}
		out.Start = &calendar.EventDateTime{DateTime: start.Format(time.RFC3339), TimeZone: tz}
		out.End = &calendar.EventDateTime{DateTime: end.Format(time.RFC3339), TimeZone: tz}
	}

	if ev.Recurring {
		out.Recurrence = []string{weeklyRecurrence}
	}
	return out
}
