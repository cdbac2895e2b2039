package reconcile

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"mail2cal/internal/store"
)

// uniformScorer scores every tracked event with the same value.
type uniformScorer struct {
	score    float64
	failures int
	calls    int
}

func (s *uniformScorer) CompareBatch(ctx context.Context, c *CandidateEvent, existing []*store.TrackedEvent) ([]float64, error) {
	s.calls++
	if s.calls <= s.failures {
		return nil, errors.New("scorer unavailable")
	}
	scores := make([]float64, len(existing))
	for i := range scores {
		scores[i] = s.score
	}
	return scores, nil
}

type fakeCalendar struct {
	mu      sync.Mutex
	nextID  int
	entries map[string]map[string]string
	creates int
	updates int
	deletes int
}

func newFakeCalendar() *fakeCalendar {
	return &fakeCalendar{entries: make(map[string]map[string]string)}
}

func (f *fakeCalendar) CreateEvent(ctx context.Context, calendarID string, ev *store.TrackedEvent) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.creates++
	f.nextID++
	nid := fmt.Sprintf("native-%d", f.nextID)
	if f.entries[calendarID] == nil {
		f.entries[calendarID] = make(map[string]string)
	}
	f.entries[calendarID][nid] = ev.Title
	return nid, nil
}

func (f *fakeCalendar) UpdateEvent(ctx context.Context, calendarID, nativeID string, ev *store.TrackedEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.updates++
	if f.entries[calendarID] == nil {
		f.entries[calendarID] = make(map[string]string)
	}
	f.entries[calendarID][nativeID] = ev.Title
	return nil
}

func (f *fakeCalendar) DeleteEvent(ctx context.Context, calendarID, nativeID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deletes++
	delete(f.entries[calendarID], nativeID)
	return nil
}

func (f *fakeCalendar) count(calendarID string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.entries[calendarID])
}

type fixture struct {
	store  *store.Store
	cal    *fakeCalendar
	scorer *uniformScorer
	orch   *Orchestrator
}

func newFixture(t *testing.T, score float64) *fixture {
	t.Helper()
	s, err := store.Open(filepath.Join(t.TempDir(), "mappings.json"))
	require.NoError(t, err)

	scorer := &uniformScorer{score: score}
	cal := newFakeCalendar()
	logger := discardLogger()
	orch := NewOrchestrator(
		s,
		NewIndex(s, 14),
		NewMatcher(scorer, time.Second, logger),
		testResolver(),
		cal,
		4,
		logger,
	)
	return &fixture{store: s, cal: cal, scorer: scorer, orch: orch}
}

func candidateOn(date time.Time) *CandidateEvent {
	return &CandidateEvent{
		SourceID: "msg-1",
		Sender:   "profesora.uno@colegio.cl",
		Title:    "Reunión de apoderados",
		Date:     date,
	}
}

func activeEvents(s *store.Store) []*store.TrackedEvent {
	return s.Active()
}

func TestReconcileCreatesDistinctEvent(t *testing.T) {
	fx := newFixture(t, 0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, fx.cal.count("cal-1"))
	assert.Equal(t, 0, fx.cal.count("cal-2"))

	active := activeEvents(fx.store)
	require.Len(t, active, 1)
	ev := active[0]
	assert.True(t, ev.DefaultedTime)
	assert.True(t, ev.Start.Equal(date.Add(8*time.Hour)))
	assert.True(t, ev.End.Equal(date.Add(10*time.Hour)))
	assert.NotEmpty(t, ev.NativeIDs["cal-1"])
}

func TestReconcileUnknownSenderAllDayOnBoth(t *testing.T) {
	fx := newFixture(t, 0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	c := candidateOn(date)
	c.Sender = "secretaria@otrocolegio.cl"

	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, fx.cal.count("cal-1"))
	assert.Equal(t, 1, fx.cal.count("cal-2"))

	active := activeEvents(fx.store)
	require.Len(t, active, 1)
	assert.True(t, active[0].AllDay)
}

func TestReconcileExplicitTimeOverridesDefault(t *testing.T) {
	fx := newFixture(t, 0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	start := date.Add(15*time.Hour + 30*time.Minute)
	end := date.Add(17 * time.Hour)
	c := candidateOn(date)
	c.Start, c.End = &start, &end

	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-1"})
	require.NoError(t, err)

	active := activeEvents(fx.store)
	require.Len(t, active, 1)
	assert.False(t, active[0].DefaultedTime)
	assert.True(t, active[0].Start.Equal(start))
	assert.True(t, active[0].End.Equal(end))
}

func TestReconcileIsIdempotent(t *testing.T) {
	fx := newFixture(t, 1.0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	scanned := []string{"msg-1"}

	first, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, scanned)
	require.NoError(t, err)
	assert.Equal(t, 1, first.Created)

	second, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, scanned)
	require.NoError(t, err)
	assert.Equal(t, 0, second.Created)
	assert.Equal(t, 0, second.Updated)
	assert.Equal(t, 0, second.Merged)
	assert.Equal(t, 1, second.Unchanged)
	assert.Equal(t, 0, second.Deleted)
	assert.Equal(t, 1, second.TrackedActive)
	assert.Equal(t, 1, second.TrackedTotal)
	assert.Equal(t, 1, fx.cal.creates)
	assert.Equal(t, 0, fx.cal.updates)
	require.Len(t, activeEvents(fx.store), 1)
}

func TestReconcileCrossSenderMergeWidensCalendars(t *testing.T) {
	fx := newFixture(t, 0.9)
	date := time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC)

	first := &CandidateEvent{
		SourceID: "msg-a", Sender: "profesora.uno@colegio.cl",
		Title: "Día de la Familia", Date: date,
	}
	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{first}, []string{"msg-a"})
	require.NoError(t, err)

	second := &CandidateEvent{
		SourceID: "msg-b", Sender: "profesora.dos@colegio.cl",
		Title: "Día de la Familia en el colegio", Date: date,
	}
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{second}, []string{"msg-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merged)
	assert.Equal(t, 1, report.Updated)
	assert.Equal(t, 0, report.Created)

	active := activeEvents(fx.store)
	require.Len(t, active, 1)
	ev := active[0]
	assert.ElementsMatch(t, []string{"cal-1", "cal-2"}, ev.Calendars)
	assert.ElementsMatch(t, []string{"msg-a", "msg-b"}, ev.Sources)
	assert.Equal(t, "Día de la Familia en el colegio", ev.Title)
	assert.Equal(t, 1, fx.cal.count("cal-1"))
	assert.Equal(t, 1, fx.cal.count("cal-2"))
}

func TestReconcileReviewFlagsAndCreates(t *testing.T) {
	fx := newFixture(t, 0.75)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)

	c := candidateOn(date)
	c.SourceID = "msg-2"
	c.Title = "Reunión general de apoderados"
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-2"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, 0, report.Created)
	assert.Equal(t, 0, report.Merged)
	require.Len(t, report.ReviewVerdicts, 1)
	assert.InDelta(t, 0.75, report.ReviewVerdicts[0].Score, 1e-9)
	assert.Equal(t, DecisionReview, report.ReviewVerdicts[0].Decision)

	// The candidate still lands on the calendar as its own event.
	assert.Len(t, activeEvents(fx.store), 2)
	assert.Equal(t, 2, fx.cal.count("cal-1"))
}

func TestReconcileReviewRecordsCrossSender(t *testing.T) {
	fx := newFixture(t, 0.75)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)

	c := candidateOn(date)
	c.SourceID = "msg-2"
	c.Sender = "profesora.dos@colegio.cl"
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-2"})
	require.NoError(t, err)

	require.Len(t, report.ReviewVerdicts, 1)
	assert.False(t, report.ReviewVerdicts[0].SameSender)
	assert.Contains(t, report.Summary(), "different sender")
}

func TestReconcileBelowReviewIsDistinct(t *testing.T) {
	fx := newFixture(t, 0.6999)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)

	c := candidateOn(date)
	c.SourceID = "msg-2"
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-2"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 0, report.Flagged)
	assert.Len(t, activeEvents(fx.store), 2)
}

func TestReconcileScoringFailureFailsOpen(t *testing.T) {
	fx := newFixture(t, 1.0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)

	fx.scorer.calls = 0
	fx.scorer.failures = 2

	c := candidateOn(date)
	c.SourceID = "msg-2"
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-2"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Created)
	assert.Equal(t, 1, report.Failures)
	assert.Equal(t, []string{"msg-2"}, report.FailedSources)
	assert.Len(t, activeEvents(fx.store), 2)
}

func TestReconcileDropsCandidateWithoutDate(t *testing.T) {
	fx := newFixture(t, 0)
	c := &CandidateEvent{SourceID: "msg-1", Sender: "profesora.uno@colegio.cl", Title: "Sin fecha"}

	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-1"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Dropped)
	require.Len(t, report.DroppedItems, 1)
	assert.Equal(t, "Sin fecha", report.DroppedItems[0].Title)
	assert.Equal(t, 0, fx.cal.creates)
	assert.Equal(t, 0, fx.store.Len())
}

func TestReconcileRetiresOnlyFullyRescanned(t *testing.T) {
	fx := newFixture(t, 0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	ev := &store.TrackedEvent{
		ID:          "ev-1",
		Fingerprint: Fingerprint("Acto", date, SenderTeacher1),
		Title:       "Acto",
		Date:        date,
		AllDay:      true,
		Calendars:   []string{"cal-1"},
		NativeIDs:   map[string]string{"cal-1": "native-9"},
		Sources:     []string{"msg-a", "msg-b"},
		Status:      store.StatusActive,
	}
	require.NoError(t, fx.store.Put(ev))

	report, err := fx.orch.Reconcile(context.Background(), nil, []string{"msg-a"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Deleted)
	require.Len(t, activeEvents(fx.store), 1)

	report, err = fx.orch.Reconcile(context.Background(), nil, []string{"msg-a", "msg-b"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Deleted)
	assert.Equal(t, 1, fx.cal.deletes)
	assert.Equal(t, 0, report.TrackedActive)
	assert.Equal(t, 1, report.TrackedTotal)
	assert.Empty(t, activeEvents(fx.store))

	got, ok := fx.store.Get("ev-1")
	require.True(t, ok)
	assert.Equal(t, store.StatusDeleted, got.Status)
	assert.Empty(t, got.NativeIDs)
}

func TestReconcileDeletionSparesMatchedEvents(t *testing.T) {
	fx := newFixture(t, 1.0)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	_, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)

	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, report.Deleted)
	assert.Len(t, activeEvents(fx.store), 1)
}

func TestReconcileDeletionSparesReviewedEvents(t *testing.T) {
	fx := newFixture(t, 0.75)
	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)

	ev := &store.TrackedEvent{
		ID:             "ev-old",
		Fingerprint:    Fingerprint("Reunión de apoderados", date, SenderTeacher1),
		Title:          "Reunión de apoderados",
		Date:           date,
		AllDay:         true,
		SenderCategory: string(SenderTeacher1),
		Calendars:      []string{"cal-1"},
		NativeIDs:      map[string]string{"cal-1": "native-9"},
		Sources:        []string{"msg-a"},
		Status:         store.StatusActive,
	}
	require.NoError(t, fx.store.Put(ev))

	// The same email is rescanned and its candidate lands in the review
	// band against ev-old. A match awaiting disposition is still a match:
	// ev-old and its calendar entry must survive the run.
	c := candidateOn(date)
	c.SourceID = "msg-a"
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-a"})
	require.NoError(t, err)

	assert.Equal(t, 1, report.Flagged)
	assert.Equal(t, 0, report.Deleted)
	assert.Equal(t, 0, fx.cal.deletes)

	got, ok := fx.store.Get("ev-old")
	require.True(t, ok)
	assert.Equal(t, store.StatusActive, got.Status)
	assert.Equal(t, "native-9", got.NativeIDs["cal-1"])

	require.Len(t, report.ReviewVerdicts, 1)
	assert.True(t, report.ReviewVerdicts[0].SameSender)
}

func TestReconcileSupersedesDuplicateTracked(t *testing.T) {
	fx := newFixture(t, 0.95)
	date := time.Date(2026, 4, 18, 0, 0, 0, 0, time.UTC)

	a := &store.TrackedEvent{
		ID: "ev-a", Fingerprint: Fingerprint("Día de la Familia", date, SenderTeacher1),
		Title: "Día de la Familia", Date: date, AllDay: true,
		Calendars: []string{"cal-1"}, NativeIDs: map[string]string{"cal-1": "native-a"},
		Sources: []string{"msg-a"}, Status: store.StatusActive,
	}
	require.NoError(t, fx.store.Put(a))
	b := &store.TrackedEvent{
		ID: "ev-b", Fingerprint: Fingerprint("Día de la Familia", date, SenderTeacher2),
		Title: "Día de la Familia", Date: date, AllDay: true,
		Calendars: []string{"cal-1", "cal-2"},
		NativeIDs: map[string]string{"cal-1": "native-b1", "cal-2": "native-b2"},
		Sources:   []string{"msg-b"}, Status: store.StatusActive,
	}
	require.NoError(t, fx.store.Put(b))

	c := &CandidateEvent{
		SourceID: "msg-c", Sender: "profesora.uno@colegio.cl",
		Title: "Día de la Familia", Date: date,
	}
	report, err := fx.orch.Reconcile(context.Background(), []*CandidateEvent{c}, []string{"msg-c"})
	require.NoError(t, err)
	assert.Equal(t, 1, report.Merged)

	active := activeEvents(fx.store)
	require.Len(t, active, 1)
	survivor := active[0]
	assert.ElementsMatch(t, []string{"cal-1", "cal-2"}, survivor.Calendars)
	assert.ElementsMatch(t, []string{"msg-a", "msg-b", "msg-c"}, survivor.Sources)

	var superseded *store.TrackedEvent
	for _, id := range []string{"ev-a", "ev-b"} {
		if id == survivor.ID {
			continue
		}
		got, ok := fx.store.Get(id)
		require.True(t, ok)
		superseded = got
	}
	require.NotNil(t, superseded)
	assert.Equal(t, store.StatusSuperseded, superseded.Status)
	assert.Equal(t, survivor.ID, superseded.SupersededBy)
	assert.Empty(t, superseded.NativeIDs)
	// One calendar held entries from both duplicates; the redundant one
	// comes off.
	assert.Equal(t, 1, fx.cal.deletes)
}

func TestReconcileStopsOnCancelledContext(t *testing.T) {
	fx := newFixture(t, 0)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	date := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	_, err := fx.orch.Reconcile(ctx, []*CandidateEvent{candidateOn(date)}, []string{"msg-1"})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 0, fx.cal.creates)
}
