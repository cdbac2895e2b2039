package reconcile

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"mail2cal/internal/logging"
	"mail2cal/internal/store"
)

// CalendarService mutates calendar entries. Implementations must treat
// deleting an already-gone entry as success.
type CalendarService interface {
	CreateEvent(ctx context.Context, calendarID string, ev *store.TrackedEvent) (string, error)
	UpdateEvent(ctx context.Context, calendarID, nativeID string, ev *store.TrackedEvent) error
	DeleteEvent(ctx context.Context, calendarID, nativeID string) error
}

// Orchestrator runs candidates through lookup, scoring, merging, routing
// and calendar application. Candidates are handled one at a time so each
// sees the store state left by its predecessors; the per-calendar writes
// for a single event fan out concurrently.
type Orchestrator struct {
	store     *store.Store
	index     *Index
	matcher   *Matcher
	resolver  *Resolver
	calendars CalendarService
	workers   int
	logger    *slog.Logger
	now       func() time.Time

	lockMu sync.Mutex
	locks  map[string]*sync.Mutex
}

// NewOrchestrator wires the reconciliation pipeline.
func NewOrchestrator(s *store.Store, index *Index, matcher *Matcher, resolver *Resolver, calendars CalendarService, workers int, logger *slog.Logger) *Orchestrator {
	if workers < 1 {
		workers = 1
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Orchestrator{
		store:     s,
		index:     index,
		matcher:   matcher,
		resolver:  resolver,
		calendars: calendars,
		workers:   workers,
		logger:    logger,
		now:       time.Now,
		locks:     make(map[string]*sync.Mutex),
	}
}

// Reconcile processes the extracted candidates and then retires tracked
// events whose every contributing source was rescanned this run without
// re-yielding them. scannedSources lists the IDs of all source documents
// examined this run, whether or not they produced candidates.
func (o *Orchestrator) Reconcile(ctx context.Context, candidates []*CandidateEvent, scannedSources []string) (*Report, error) {
	report := &Report{}
	touched := make(map[string]bool)

	for _, c := range candidates {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		o.reconcileOne(ctx, c, report, touched)
	}

	o.retireObsolete(ctx, scannedSources, touched, report)
	report.TrackedActive = len(o.store.Active())
	report.TrackedTotal = o.store.Len()
	return report, nil
}

func (o *Orchestrator) reconcileOne(ctx context.Context, c *CandidateEvent, report *Report, touched map[string]bool) {
	if c.Date.IsZero() {
		err := &MalformedCandidateError{SourceID: c.SourceID, Reason: "no usable date"}
		o.logger.Warn("dropping candidate", logging.SourceID(c.SourceID), logging.Err(err))
		report.Dropped++
		report.DroppedItems = append(report.DroppedItems, DroppedItem{SourceID: c.SourceID, Title: c.Title, Reason: err.Reason})
		return
	}

	route := o.resolver.Resolve(c.Sender)
	matches := o.index.Lookup(c, route.Category)

	scores, err := o.matcher.Score(ctx, c, matches)
	if err != nil {
		// Scoring is unavailable; creating a possible duplicate is
		// recoverable, silently losing the event is not.
		o.logger.Warn("similarity scoring unavailable, treating candidate as distinct",
			logging.SourceID(c.SourceID), logging.Err(err))
		report.Failures++
		report.FailedSources = append(report.FailedSources, c.SourceID)
		matches, scores = nil, nil
	}

	verdicts := make([]MergeVerdict, len(matches))
	bestIdx := -1
	for i, m := range matches {
		verdicts[i] = MergeVerdict{
			SourceID:   c.SourceID,
			TrackedID:  m.ID,
			Title:      c.Title,
			Score:      scores[i],
			Decision:   Decide(scores[i]),
			SameSender: m.SenderCategory == string(route.Category),
		}
		if bestIdx < 0 || scores[i] > scores[bestIdx] {
			bestIdx = i
		}
	}

	decision := DecisionDistinct
	if bestIdx >= 0 {
		decision = verdicts[bestIdx].Decision
	}

	switch decision {
	case DecisionAutoMerge:
		o.applyMerge(ctx, c, route, matches, verdicts, bestIdx, report, touched)
	case DecisionReview:
		o.logger.Info("flagging candidate for review",
			logging.SourceID(c.SourceID),
			logging.EventID(verdicts[bestIdx].TrackedID),
			logging.Score(verdicts[bestIdx].Score),
			logging.Decision(string(DecisionReview)))
		report.ReviewVerdicts = append(report.ReviewVerdicts, verdicts[bestIdx])
		report.Flagged++
		// Every tracked event in the review band is awaiting human
		// disposition; none of them may be retired this run.
		for _, v := range verdicts {
			if v.Decision != DecisionDistinct {
				touched[v.TrackedID] = true
			}
		}
		o.applyNew(ctx, c, route, report, touched, false)
	default:
		o.applyNew(ctx, c, route, report, touched, true)
	}
}

// applyMerge folds the candidate into the best-scoring tracked event.
// Any further tracked events that also cleared the auto-merge threshold
// are the same real-world event seen through another sender; they are
// folded into the survivor and superseded, their calendar entries adopted
// or removed.
func (o *Orchestrator) applyMerge(ctx context.Context, c *CandidateEvent, route RoutingDecision, matches []*store.TrackedEvent, verdicts []MergeVerdict, bestIdx int, report *Report, touched map[string]bool) {
	target := matches[bestIdx]
	before := target.Clone()
	MergeCandidate(target, c, route)
	touched[target.ID] = true

	var superseded []*store.TrackedEvent
	for i, m := range matches {
		if i == bestIdx || verdicts[i].Decision != DecisionAutoMerge {
			continue
		}
		MergeTracked(target, m)
		for cal, nid := range m.NativeIDs {
			if target.NativeIDs == nil {
				target.NativeIDs = make(map[string]string)
			}
			if target.NativeIDs[cal] == "" {
				target.NativeIDs[cal] = nid
			} else if err := o.calendars.DeleteEvent(ctx, cal, nid); err != nil {
				o.logger.Warn("removing redundant calendar entry failed",
					logging.Calendar(cal), logging.EventID(m.ID), logging.Err(err))
				report.Failures++
			}
		}
		m.NativeIDs = nil
		m.Status = store.StatusSuperseded
		m.SupersededBy = target.ID
		superseded = append(superseded, m)
	}

	changed := !ContentEquals(before, target)
	if !changed && len(superseded) == 0 && before.HasSource(c.SourceID) {
		o.logger.Debug("candidate already reflected",
			logging.SourceID(c.SourceID), logging.EventID(target.ID))
		report.Unchanged++
		return
	}

	if changed || len(superseded) > 0 {
		if o.applyCalendars(ctx, target, report) {
			report.Updated++
		}
	}
	o.persist(target, report)
	for _, m := range superseded {
		o.persist(m, report)
	}
	if changed || len(superseded) > 0 {
		o.logger.Info("merged candidate into tracked event",
			logging.SourceID(c.SourceID),
			logging.EventID(target.ID),
			logging.Score(verdicts[bestIdx].Score),
			logging.Decision(string(DecisionAutoMerge)))
		report.Merged++
	} else {
		report.Unchanged++
	}
}

func (o *Orchestrator) applyNew(ctx context.Context, c *CandidateEvent, route RoutingDecision, report *Report, touched map[string]bool, countCreated bool) {
	ev := o.newTracked(c, route)
	touched[ev.ID] = true
	o.applyCalendars(ctx, ev, report)
	o.persist(ev, report)
	if countCreated {
		o.logger.Info("created tracked event",
			logging.SourceID(c.SourceID),
			logging.EventID(ev.ID),
			logging.Decision(string(DecisionDistinct)))
		report.Created++
	}
}

func (o *Orchestrator) newTracked(c *CandidateEvent, route RoutingDecision) *store.TrackedEvent {
	ev := &store.TrackedEvent{
		ID:             uuid.NewString(),
		Fingerprint:    Fingerprint(c.Title, c.Date, route.Category),
		Title:          c.Title,
		Description:    mergeDescriptions("", c.Description),
		Date:           c.Date,
		Location:       c.Location,
		Recurring:      c.Recurring,
		SenderCategory: string(route.Category),
		Calendars:      append([]string(nil), route.Calendars...),
		NativeIDs:      make(map[string]string),
		Sources:        []string{c.SourceID},
		Status:         store.StatusActive,
		CreatedAt:      o.now(),
	}
	switch {
	case c.HasExplicitTime():
		ev.Start, ev.End = c.Start, c.End
	case route.AllDay:
		ev.AllDay = true
	default:
		start := c.Date.Add(route.DefaultStart)
		end := c.Date.Add(route.DefaultEnd)
		ev.Start, ev.End = &start, &end
		ev.DefaultedTime = true
	}
	return ev
}

// applyCalendars creates or updates the event's entry on every calendar
// it belongs to, reporting whether any existing entry was rewritten.
// Writes for different calendars run concurrently, bounded by the worker
// count; failures are logged and counted but never abort the run, since
// the next run will retry whatever is missing.
func (o *Orchestrator) applyCalendars(ctx context.Context, ev *store.TrackedEvent, report *Report) bool {
	lock := o.lockFor(ev.ID)
	lock.Lock()
	defer lock.Unlock()

	if ev.NativeIDs == nil {
		ev.NativeIDs = make(map[string]string)
	}

	var mu sync.Mutex
	updated := false
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(o.workers)

	for _, cal := range ev.Calendars {
		cal := cal
		nativeID := ev.NativeIDs[cal]

		g.Go(func() error {
			if nativeID != "" {
				if err := o.calendars.UpdateEvent(gctx, cal, nativeID, ev); err != nil {
					o.logger.Warn("calendar update failed",
						logging.Calendar(cal), logging.EventID(ev.ID), logging.Err(err))
					mu.Lock()
					report.Failures++
					mu.Unlock()
					return nil
				}
				mu.Lock()
				updated = true
				mu.Unlock()
				return nil
			}
			nid, err := o.calendars.CreateEvent(gctx, cal, ev)
			if err != nil {
				o.logger.Warn("calendar create failed",
					logging.Calendar(cal), logging.EventID(ev.ID), logging.Err(err))
				mu.Lock()
				report.Failures++
				mu.Unlock()
				return nil
			}
			mu.Lock()
			ev.NativeIDs[cal] = nid
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return updated
}

// retireObsolete deletes tracked events whose every contributing source
// was rescanned this run without any candidate matching them. A single
// source left unscanned keeps the event alive.
func (o *Orchestrator) retireObsolete(ctx context.Context, scannedSources []string, touched map[string]bool, report *Report) {
	scanned := make(map[string]bool, len(scannedSources))
	for _, s := range scannedSources {
		scanned[s] = true
	}

	for _, ev := range o.store.Active() {
		if touched[ev.ID] || len(ev.Sources) == 0 {
			continue
		}
		all := true
		for _, src := range ev.Sources {
			if !scanned[src] {
				all = false
				break
			}
		}
		if !all {
			continue
		}

		failed := false
		for cal, nid := range ev.NativeIDs {
			if err := o.calendars.DeleteEvent(ctx, cal, nid); err != nil {
				o.logger.Warn("calendar delete failed",
					logging.Calendar(cal), logging.EventID(ev.ID), logging.Err(err))
				report.Failures++
				failed = true
				continue
			}
			delete(ev.NativeIDs, cal)
		}
		if failed {
			// Entries that did come off are recorded; the event stays
			// active so the next run finishes the job.
			o.persist(ev, report)
			continue
		}

		ev.Status = store.StatusDeleted
		o.persist(ev, report)
		o.logger.Info("retired tracked event with no remaining sources",
			logging.EventID(ev.ID))
		report.Deleted++
	}
}

func (o *Orchestrator) persist(ev *store.TrackedEvent, report *Report) {
	if err := o.store.Put(ev); err != nil {
		o.logger.Error("persisting tracked event failed",
			logging.EventID(ev.ID), logging.Err(err))
		report.Failures++
	}
}

func (o *Orchestrator) lockFor(id string) *sync.Mutex {
	o.lockMu.Lock()
	defer o.lockMu.Unlock()
	m, ok := o.locks[id]
	if !ok {
		m = &sync.Mutex{}
		o.locks[id] = m
	}
	return m
}
