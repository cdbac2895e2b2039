package reconcile

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mail2cal/internal/logging"
	"mail2cal/internal/store"
)

// SimilarityScorer compares one candidate against a batch of tracked
// events in a single call and returns one score in [0,1] per tracked
// event, in order.
type SimilarityScorer interface {
	CompareBatch(ctx context.Context, c *CandidateEvent, existing []*store.TrackedEvent) ([]float64, error)
}

// Matcher drives the scorer with a per-call timeout and a single retry.
type Matcher struct {
	scorer  SimilarityScorer
	timeout time.Duration
	logger  *slog.Logger
}

// NewMatcher wires a scorer with the given per-attempt timeout.
func NewMatcher(scorer SimilarityScorer, timeout time.Duration, logger *slog.Logger) *Matcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{scorer: scorer, timeout: timeout, logger: logger}
}

// Score returns one similarity score per tracked event. An empty batch
// scores to nil without calling the scorer. If both the attempt and its
// retry fail, a TransientError is returned; the caller must then treat
// the candidate as distinct rather than guess.
func (m *Matcher) Score(ctx context.Context, c *CandidateEvent, existing []*store.TrackedEvent) ([]float64, error) {
	if len(existing) == 0 {
		return nil, nil
	}

	var lastErr error
	for attempt := 0; attempt < 2; attempt++ {
		if attempt > 0 {
			m.logger.Warn("retrying similarity scoring",
				logging.Operation("score"),
				logging.SourceID(c.SourceID),
				logging.Err(lastErr))
		}
		scores, err := m.attempt(ctx, c, existing)
		if err == nil {
			return scores, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			break
		}
	}
	return nil, &TransientError{Op: "similarity scoring", Err: lastErr}
}

func (m *Matcher) attempt(ctx context.Context, c *CandidateEvent, existing []*store.TrackedEvent) ([]float64, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	scores, err := m.scorer.CompareBatch(attemptCtx, c, existing)
	if err != nil {
		return nil, err
	}
	if len(scores) != len(existing) {
		return nil, fmt.Errorf("scorer returned %d scores for %d events", len(scores), len(existing))
	}
	for i, s := range scores {
		if s < 0 || s > 1 {
			return nil, fmt.Errorf("score %d out of range: %f", i, s)
		}
	}
	return scores, nil
}
