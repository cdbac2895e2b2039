package reconcile

import "fmt"

// TransientError wraps a failure of an external collaborator (similarity
// scoring, calendar mutation) that is expected to succeed on a later run.
// The affected candidate is skipped or handled conservatively; the run
// continues.
type TransientError struct {
	Op  string
	Err error
}

func (e *TransientError) Error() string {
	return fmt.Sprintf("transient failure in %s: %v", e.Op, e.Err)
}

func (e *TransientError) Unwrap() error {
	return e.Err
}

// MalformedCandidateError marks a candidate that cannot be reconciled,
// typically because it lacks a usable date. It is reported and dropped.
type MalformedCandidateError struct {
	SourceID string
	Reason   string
}

func (e *MalformedCandidateError) Error() string {
	return fmt.Sprintf("malformed candidate from %s: %s", e.SourceID, e.Reason)
}
