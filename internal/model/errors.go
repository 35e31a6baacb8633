package model

import "fmt"

// StructuralError reports inference output that violates the required
// response structure: unparseable YAML, missing required fields, unknown
// labels. At analysis the whole response is rejected; at verification it
// triggers one stricter retry before the candidate set is declared
// unverifiable.
type StructuralError struct {
	Stage  string // "analyze" or "verify"
	Reason string
}

func (e *StructuralError) Error() string {
	return fmt.Sprintf("%s: structural violation: %s", e.Stage, e.Reason)
}

// EvidenceIntegrityError reports a citation that the provided corpus cannot
// back: an unknown file or an unresolvable span.
type EvidenceIntegrityError struct {
	File   string
	Reason string
}

func (e *EvidenceIntegrityError) Error() string {
	return fmt.Sprintf("evidence integrity: %s: %s", e.File, e.Reason)
}

// DegradedRetrievalWarning records that the similarity collaborator was
// unavailable and retrieval fell back to the unranked keyword subset.
// Non-fatal; surfaced in run stats.
type DegradedRetrievalWarning struct {
	Cause error
}

func (w *DegradedRetrievalWarning) Error() string {
	return fmt.Sprintf("degraded retrieval: %v", w.Cause)
}

func (w *DegradedRetrievalWarning) Unwrap() error { return w.Cause }

// FatalCollaboratorError marks an unrecoverable collaborator failure: the
// store unreachable, every partition failed in a stage, or a provider hard
// down. The pipeline transitions to its failed state.
type FatalCollaboratorError struct {
	Collaborator string
	Err          error
}

func (e *FatalCollaboratorError) Error() string {
	return fmt.Sprintf("collaborator %s: %v", e.Collaborator, e.Err)
}

func (e *FatalCollaboratorError) Unwrap() error { return e.Err }
