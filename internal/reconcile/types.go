// Package reconcile decides what a freshly extracted event means for the
// calendars: whether it is new, a refinement of something already tracked,
// or ambiguous enough to flag, and which calendars it belongs on.
package reconcile

import (
	"fmt"
	"strings"
	"time"
)

// SenderCategory buckets the origin of an extracted event. It feeds both
// the fingerprint and the default-window routing rules.
type SenderCategory string

const (
	SenderTeacher1    SenderCategory = "teacher_1"
	SenderTeacher2    SenderCategory = "teacher_2"
	SenderAfterschool SenderCategory = "afterschool"
	SenderOther       SenderCategory = "other"
)

// CandidateEvent is one event as extracted from a source email, before
// reconciliation. Date always carries a valid calendar date; Start and End
// are nil unless the source stated an explicit time.
type CandidateEvent struct {
	SourceID    string
	Sender      string
	Title       string
	Description string
	Date        time.Time
	Start       *time.Time
	End         *time.Time
	Location    string
	Recurring   bool
}

// HasExplicitTime reports whether the source stated a concrete start time.
func (c *CandidateEvent) HasExplicitTime() bool {
	return c.Start != nil
}

// Decision is the outcome of scoring a candidate against one tracked event.
type Decision string

const (
	DecisionAutoMerge Decision = "auto_merge"
	DecisionReview    Decision = "review"
	DecisionDistinct  Decision = "distinct"
)

// MergeVerdict records a single candidate/tracked comparison. SameSender
// notes whether both sides came from the same sender category; it carries
// no weight in the decision and exists only for the audit trail.
type MergeVerdict struct {
	SourceID   string
	TrackedID  string
	Title      string
	Score      float64
	Decision   Decision
	SameSender bool
}

// RoutingDecision names the calendars an event belongs on and the time
// window to use when the source gave none.
type RoutingDecision struct {
	Calendars    []string
	Category     SenderCategory
	AllDay       bool
	DefaultStart time.Duration
	DefaultEnd   time.Duration
}

// Report summarizes one reconciliation run.
type Report struct {
	Created   int
	Updated   int
	Merged    int
	Unchanged int
	Flagged   int
	Deleted   int
	Dropped   int
	Failures  int

	// Store totals after the run, for the operator's sense of scale.
	TrackedActive int
	TrackedTotal  int

	ReviewVerdicts []MergeVerdict
	DroppedItems   []DroppedItem
	FailedSources  []string
}

// DroppedItem names a candidate that never reached the calendars.
type DroppedItem struct {
	SourceID string
	Title    string
	Reason   string
}

// Summary renders the report as a short human-readable block.
func (r *Report) Summary() string {
	var b strings.Builder
	fmt.Fprintf(&b, "created: %d  updated: %d  merged: %d  unchanged: %d  flagged: %d  deleted: %d  dropped: %d  failures: %d\n",
		r.Created, r.Updated, r.Merged, r.Unchanged, r.Flagged, r.Deleted, r.Dropped, r.Failures)
	fmt.Fprintf(&b, "tracking %d active events (%d total on record)\n", r.TrackedActive, r.TrackedTotal)
	for _, v := range r.ReviewVerdicts {
		origin := "different sender"
		if v.SameSender {
			origin = "same sender"
		}
		fmt.Fprintf(&b, "review: %q scored %.2f against %s (%s)\n", v.Title, v.Score, v.TrackedID, origin)
	}
	for _, d := range r.DroppedItems {
		fmt.Fprintf(&b, "dropped: %s (%s)\n", d.Title, d.Reason)
	}
	return b.String()
}
