package reconcile

import (
	"strings"
	"time"

	"mail2cal/internal/store"
)

// Similarity thresholds. At or above AutoMergeThreshold the candidate is
// folded into the tracked event; at or above ReviewThreshold it is flagged
// for a human; below that the two are unrelated.
const (
	AutoMergeThreshold = 0.85
	ReviewThreshold    = 0.70
)

// Decide maps a similarity score to a merge decision.
func Decide(score float64) Decision {
	switch {
	case score >= AutoMergeThreshold:
		return DecisionAutoMerge
	case score >= ReviewThreshold:
		return DecisionReview
	default:
		return DecisionDistinct
	}
}

// MergeCandidate folds a candidate into a tracked event in place.
// The longer non-empty title wins, descriptions are unioned sentence by
// sentence, an explicit time beats a defaulted window, the calendar set
// only ever grows, and the source list records every contributing email.
func MergeCandidate(ev *store.TrackedEvent, c *CandidateEvent, route RoutingDecision) {
	ev.Title = pickTitle(ev.Title, c.Title)
	ev.Description = mergeDescriptions(ev.Description, c.Description)

	if c.HasExplicitTime() && !ev.HasExplicitTime() {
		ev.Date = c.Date
		ev.Start = c.Start
		ev.End = c.End
		ev.AllDay = false
		ev.DefaultedTime = false
	}

	if c.Location != "" {
		ev.Location = c.Location
	}
	if c.Recurring {
		ev.Recurring = true
	}

	ev.Calendars = unionCalendars(ev.Calendars, route.Calendars)
	if !ev.HasSource(c.SourceID) {
		ev.Sources = append(ev.Sources, c.SourceID)
	}
}

// MergeTracked folds src into dst when two tracked events turn out to be
// the same real-world event. dst keeps its identity; src's calendars,
// sources and richer fields carry over.
func MergeTracked(dst, src *store.TrackedEvent) {
	dst.Title = pickTitle(dst.Title, src.Title)
	dst.Description = mergeDescriptions(dst.Description, src.Description)

	switch {
	case src.HasExplicitTime() && !dst.HasExplicitTime():
		dst.Date = src.Date
		dst.Start = src.Start
		dst.End = src.End
		dst.AllDay = false
		dst.DefaultedTime = false
	case !dst.HasExplicitTime() && !src.HasExplicitTime() && src.CreatedAt.Before(dst.CreatedAt):
		// Neither side knows the real time; the earlier sighting's
		// window stands.
		dst.Date = src.Date
		dst.Start = src.Start
		dst.End = src.End
		dst.AllDay = src.AllDay
		dst.DefaultedTime = src.DefaultedTime
	}
	if dst.Location == "" {
		dst.Location = src.Location
	}
	if src.Recurring {
		dst.Recurring = true
	}

	dst.Calendars = unionCalendars(dst.Calendars, src.Calendars)
	for _, s := range src.Sources {
		if !dst.HasSource(s) {
			dst.Sources = append(dst.Sources, s)
		}
	}
}

// ContentEquals reports whether two tracked events would render the same
// calendar entries. Bookkeeping fields are ignored.
func ContentEquals(a, b *store.TrackedEvent) bool {
	if a.Title != b.Title || a.Description != b.Description ||
		a.Location != b.Location || a.AllDay != b.AllDay ||
		a.Recurring != b.Recurring {
		return false
	}
	if !a.Date.Equal(b.Date) {
		return false
	}
	if !timesEqual(a.Start, b.Start) || !timesEqual(a.End, b.End) {
		return false
	}
	if len(a.Calendars) != len(b.Calendars) {
		return false
	}
	seen := make(map[string]bool, len(a.Calendars))
	for _, c := range a.Calendars {
		seen[c] = true
	}
	for _, c := range b.Calendars {
		if !seen[c] {
			return false
		}
	}
	if len(a.Sources) != len(b.Sources) {
		return false
	}
	return true
}

func timesEqual(a, b *time.Time) bool {
	if a == nil || b == nil {
		return a == b
	}
	return a.Equal(*b)
}

func pickTitle(a, b string) string {
	if strings.TrimSpace(b) == "" {
		return a
	}
	if strings.TrimSpace(a) == "" {
		return b
	}
	if len(b) > len(a) {
		return b
	}
	return a
}

// mergeDescriptions unions two descriptions sentence by sentence, keeping
// first-seen order and dropping case-insensitive duplicates.
func mergeDescriptions(a, b string) string {
	var out []string
	seen := make(map[string]bool)
	for _, text := range []string{a, b} {
		for _, s := range splitSentences(text) {
			key := strings.ToLower(s)
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, s)
		}
	}
	return strings.Join(out, "\n")
}

func splitSentences(text string) []string {
	var out []string
	for _, line := range strings.Split(text, "\n") {
		for _, s := range strings.Split(line, ". ") {
			s = strings.TrimSpace(strings.TrimSuffix(strings.TrimSpace(s), "."))
			if s != "" {
				out = append(out, s)
			}
		}
	}
	return out
}

func unionCalendars(a, b []string) []string {
	out := append([]string(nil), a...)
	seen := make(map[string]bool, len(a))
	for _, c := range a {
		seen[c] = true
	}
	for _, c := range b {
		if !seen[c] {
			seen[c] = true
			out = append(out, c)
		}
	}
	return out
}
