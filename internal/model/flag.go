package model

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Category classifies a flag item
type Category string

const (
	// CategoryUnresolvedAction marks an unresolved high-priority action item:
	// a direct request or handoff that nobody answered past the aging threshold.
	CategoryUnresolvedAction Category = "unresolved_action_item"
	// CategoryEmergingRisk marks an emerging risk or blocker surfaced in
	// discussion but absent from any status summary.
	CategoryEmergingRisk Category = "emerging_risk_blocker"
)

// ParseCategory maps a wire label onto a Category. The inference service
// answers with the short labels "uhpai" and "erb"; long forms are accepted
// too. Anything else is a structural violation.
func ParseCategory(s string) (Category, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "uhpai", string(CategoryUnresolvedAction):
		return CategoryUnresolvedAction, nil
	case "erb", string(CategoryEmergingRisk):
		return CategoryEmergingRisk, nil
	default:
		return "", fmt.Errorf("unknown category label %q", s)
	}
}

// Confidence expresses how well evidence supports a verified item.
type Confidence string

const (
	ConfidenceUnset Confidence = ""
	ConfidenceLow   Confidence = "low"
	ConfidenceMid   Confidence = "mid"
	ConfidenceHigh  Confidence = "high"
)

// ParseConfidence normalizes a wire confidence label.
func ParseConfidence(s string) (Confidence, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "low":
		return ConfidenceLow, nil
	case "mid", "medium":
		return ConfidenceMid, nil
	case "high":
		return ConfidenceHigh, nil
	default:
		return ConfidenceUnset, fmt.Errorf("unknown confidence label %q", s)
	}
}

// Rank orders confidence levels for merge comparisons (higher is stronger).
func (c Confidence) Rank() int {
	switch c {
	case ConfidenceHigh:
		return 3
	case ConfidenceMid:
		return 2
	case ConfidenceLow:
		return 1
	default:
		return 0
	}
}

// LineRange is a half-open-by-convention inclusive line interval in a source file.
type LineRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// ParseLineRange parses the wire form "12-24" (or a single line "12").
func ParseLineRange(s string) (LineRange, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return LineRange{}, fmt.Errorf("empty line range")
	}
	parts := strings.SplitN(s, "-", 2)
	start, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return LineRange{}, fmt.Errorf("parse line range %q: %w", s, err)
	}
	end := start
	if len(parts) == 2 {
		end, err = strconv.Atoi(strings.TrimSpace(parts[1]))
		if err != nil {
			return LineRange{}, fmt.Errorf("parse line range %q: %w", s, err)
		}
	}
	if start < 1 || end < start {
		return LineRange{}, fmt.Errorf("invalid line range %q", s)
	}
	return LineRange{Start: start, End: end}, nil
}

func (r LineRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// EvidenceSpan cites a region of a source file backing a flag item.
// File must name a file present in the corpus provided to the stage that
// produced the span; spans that do not resolve are dropped, never repaired
// into something the source text cannot support.
type EvidenceSpan struct {
	File    string    `json:"file"`
	Lines   LineRange `json:"lines"`
	ChunkID string    `json:"chunk_id,omitempty"` // resolved during verification
}

// Key identifies a span for dedup purposes.
func (e EvidenceSpan) Key() string {
	return e.File + ":" + e.Lines.String()
}

// FlagItem is one executive-attention item. Created by the analyzer as a
// candidate (confidence unset, score recomputed locally), mutated by the
// verifier (confidence assigned, evidence resolved, duplicates merged),
// ranked by the composer.
type FlagItem struct {
	ID              string         `json:"id,omitempty"` // assigned at composition
	Category        Category       `json:"category"`
	Title           string         `json:"title"`
	Rationale       string         `json:"rationale"`
	OwnerHint       string         `json:"owner_hint,omitempty"` // role or person expected to act
	NextStep        string         `json:"next_step"`
	Evidence        []EvidenceSpan `json:"evidence"` // non-empty: no evidence, no claim
	ConversationID  string         `json:"conversation_id"`
	Timestamp       time.Time      `json:"timestamp"` // earliest cited chunk
	Confidence      Confidence     `json:"confidence,omitempty"`
	Score           float64        `json:"score"`
	ScoreParts      ScoreParts     `json:"score_parts"`
	RepeatCount     int            `json:"repeat_count"`
	ValidationNotes []string       `json:"validation_notes,omitempty"`
}

// ScoreParts is the per-term breakdown of a locally computed score.
type ScoreParts struct {
	Role   float64 `json:"role"`
	Age    float64 `json:"age"`
	Topic  float64 `json:"topic"`
	Repeat float64 `json:"repeat"`
}

// Clone returns a deep copy so composition can annotate without mutating
// verifier output.
func (f FlagItem) Clone() FlagItem {
	out := f
	out.Evidence = append([]EvidenceSpan(nil), f.Evidence...)
	out.ValidationNotes = append([]string(nil), f.ValidationNotes...)
	return out
}
