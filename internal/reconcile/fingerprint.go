package reconcile

import (
	"sort"
	"strings"
	"time"

	"mail2cal/internal/store"
)

// maxCandidates caps how many tracked events are handed to the scorer for
// a single candidate.
const maxCandidates = 5

// NormalizeTitle lowercases the title and collapses runs of whitespace.
// Diacritics are preserved; two titles differing only in accents are
// different titles.
func NormalizeTitle(title string) string {
	return strings.Join(strings.Fields(strings.ToLower(title)), " ")
}

// Fingerprint builds the coarse identity key for an event: normalized
// title, calendar date and sender category.
func Fingerprint(title string, date time.Time, category SenderCategory) string {
	return NormalizeTitle(title) + "|" + date.Format("2006-01-02") + "|" + string(category)
}

// Index finds tracked events that could be the same real-world event as a
// candidate. It reads through the store on every lookup so it never goes
// stale within a run.
type Index struct {
	store  *store.Store
	window time.Duration
}

// NewIndex returns an index over the given store. windowDays bounds how
// far apart two dates may be and still refer to the same event.
func NewIndex(s *store.Store, windowDays int) *Index {
	return &Index{store: s, window: time.Duration(windowDays) * 24 * time.Hour}
}

// Lookup returns up to maxCandidates active tracked events dated within
// the window around the candidate's date. Events with the exact same
// fingerprint come first, then same normalized title, then the rest, each
// group most recently updated first. The window search is what lets two
// senders announce the same event under different categories and still
// collide here.
func (ix *Index) Lookup(c *CandidateEvent, category SenderCategory) []*store.TrackedEvent {
	fp := Fingerprint(c.Title, c.Date, category)
	title := NormalizeTitle(c.Title)

	events := ix.store.ActiveInWindow(c.Date, ix.window)

	rank := func(ev *store.TrackedEvent) int {
		if ev.Fingerprint == fp {
			return 0
		}
		if NormalizeTitle(ev.Title) == title {
			return 1
		}
		return 2
	}
	sort.SliceStable(events, func(i, j int) bool {
		return rank(events[i]) < rank(events[j])
	})

	if len(events) > maxCandidates {
		events = events[:maxCandidates]
	}
	return events
}
