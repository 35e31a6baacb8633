package ingest

import (
	"time"

	"github.com/evidentlabs/beacon/internal/model"
)

// Person is a correspondent, resolved against the project roster when
// possible.
type Person struct {
	Name  string `json:"name"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// Message is a single parsed email.
type Message struct {
	From             Person    `json:"from"`
	To               []Person  `json:"to,omitempty"`
	Cc               []Person  `json:"cc,omitempty"`
	Date             time.Time `json:"date"`
	Subject          string    `json:"subject"`
	CanonicalSubject string    `json:"canonical_subject"`
	Body             string    `json:"body"`
}

// Thread is an ordered conversation reconstructed from one export file.
type Thread struct {
	ID               string              `json:"id"`
	File             string              `json:"file"`    // provenance path relative to the raw root
	Project          string              `json:"project"` // top-level source directory
	Subject          string              `json:"subject"`
	CanonicalSubject string              `json:"canonical_subject"`
	Messages         []Message           `json:"messages"`
	Participants     []model.Participant `json:"participants,omitempty"`
}

// Start returns the date of the oldest message, or zero for empty threads.
func (t *Thread) Start() time.Time {
	if len(t.Messages) == 0 {
		return time.Time{}
	}
	return t.Messages[0].Date
}

// End returns the date of the newest message, or zero for empty threads.
func (t *Thread) End() time.Time {
	if len(t.Messages) == 0 {
		return time.Time{}
	}
	return t.Messages[len(t.Messages)-1].Date
}
