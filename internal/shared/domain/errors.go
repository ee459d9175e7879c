// Package domain holds the error kinds shared by every participant's state
// machines and repositories.
package domain

import "fmt"

// InvalidStateTransitionError reports a transition attempted from a state
// that does not permit it. Callers must not retry it: it marks either an
// ordering bug or a race the caller has to resolve explicitly (for example
// the force-cancel path on an already-confirmed order).
type InvalidStateTransitionError struct {
	Entity    string
	Current   string
	Attempted string
}

func (e *InvalidStateTransitionError) Error() string {
	return fmt.Sprintf("%s: invalid transition from %s to %s", e.Entity, e.Current, e.Attempted)
}

// VersionConflictError reports a stale-revision write rejected by the
// optimistic concurrency check. The caller must reload before retrying.
type VersionConflictError struct {
	Entity   string
	ID       string
	Revision int64
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("%s %s: stale revision %d", e.Entity, e.ID, e.Revision)
}
