package model

import "time"

// Report is the final ranked item list plus run accounting.
type Report struct {
	RunID          string     `json:"run_id"`
	GeneratedAt    time.Time  `json:"generated_at"`
	ProjectContext string     `json:"project_context,omitempty"`
	Items          []FlagItem `json:"items"` // ranked, truncated to top_n
	Stats          RunStats   `json:"stats"`
}

// RunStats carries observability counters accumulated across stages.
// Dropped work is counted, never silently discarded.
type RunStats struct {
	ChunksTotal         int              `json:"chunks_total"`
	ChunksRetrieved     int              `json:"chunks_retrieved"`
	Partitions          int              `json:"partitions"`
	PartitionsFailed    int              `json:"partitions_failed"`
	CandidatesExtracted int              `json:"candidates_extracted"`
	CandidatesDropped   map[string]int   `json:"candidates_dropped,omitempty"` // reason -> count
	ItemsMerged         int              `json:"items_merged"`
	ItemsVerified       int              `json:"items_verified"`
	DegradedRetrieval   bool             `json:"degraded_retrieval"`
	TokensUsed          int              `json:"tokens_used"`
	StageMillis         map[string]int64 `json:"stage_millis,omitempty"`
}

// Drop reasons tallied in RunStats.CandidatesDropped.
const (
	DropEmptyEvidence   = "empty_evidence"
	DropUnknownFile     = "unknown_file"
	DropBadCategory     = "bad_category"
	DropMissingNextStep = "missing_next_step"
	DropUnparseable     = "unparseable"
	DropRejected        = "rejected"
	DropUnverifiable    = "unverifiable"
	DropTruncated       = "truncated"
)

// NewRunStats returns stats with counter maps ready for use.
func NewRunStats() RunStats {
	return RunStats{
		CandidatesDropped: make(map[string]int),
		StageMillis:       make(map[string]int64),
	}
}

// CountDrop increments the per-reason drop counter.
func (s *RunStats) CountDrop(reason string, n int) {
	if s.CandidatesDropped == nil {
		s.CandidatesDropped = make(map[string]int)
	}
	s.CandidatesDropped[reason] += n
}
