package model

import "time"

// Chunk is a normalized, redacted unit of source text produced by ingestion.
// IDs are content-derived so re-ingesting unchanged input yields the same IDs.
type Chunk struct {
	ID             string        `json:"id"`              // e.g. "budget-review_2_a1b2c3d4e5f60718"
	Text           string        `json:"text"`            // redacted chunk text
	File           string        `json:"file"`            // provenance path relative to the raw root
	LineStart      int           `json:"line_start"`      // approximate range in the source file
	LineEnd        int           `json:"line_end"`
	ConversationID string        `json:"conversation_id"` // canonical subject slug
	Project        string        `json:"project"`         // top-level source directory
	Timestamp      time.Time     `json:"timestamp"`       // newest message covered by the chunk
	Participants   []Participant `json:"participants,omitempty"`
}

// Participant identifies a person appearing in a chunk after redaction.
type Participant struct {
	Name string `json:"name"`
	Role string `json:"role,omitempty"` // director, pm, ba, dev
}

// HasFile reports whether any chunk in the slice originates from path.
func HasFile(chunks []Chunk, path string) bool {
	for _, c := range chunks {
		if c.File == path {
			return true
		}
	}
	return false
}

// AsOf returns the newest timestamp in the snapshot. Deterministic runs
// measure item age against this instant instead of the wall clock.
func AsOf(chunks []Chunk) time.Time {
	var max time.Time
	for _, c := range chunks {
		if c.Timestamp.After(max) {
			max = c.Timestamp
		}
	}
	return max
}
