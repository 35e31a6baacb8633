package report

import (
	"strings"
	"testing"
	"time"

	"github.com/evidentlabs/beacon/internal/model"
)

func sampleReport() (model.Report, map[string]model.Chunk) {
	asOf := time.Date(2025, 3, 12, 9, 0, 0, 0, time.UTC)
	chunks := map[string]model.Chunk{
		"vendor-contract_1_cccc": {
			ID:             "vendor-contract_1_cccc",
			Text:           "The contract review may slip.\nLegal has not responded.\nDeadline is Friday.",
			File:           "Project_Alpha/email_2.txt",
			LineStart:      4,
			LineEnd:        6,
			ConversationID: "vendor-contract",
			Timestamp:      asOf,
		},
	}

	rep := model.Report{
		RunID:          "run-0001",
		GeneratedAt:    asOf,
		ProjectContext: "Q2 portfolio review",
		Items: []model.FlagItem{
			{
				ID:             "FLAG-001",
				Category:       model.CategoryEmergingRisk,
				Title:          "Vendor contract slipping",
				Rationale:      "Legal review is stalled with the deadline close.",
				OwnerHint:      "pm",
				NextStep:       "Escalate the vendor timeline.",
				ConversationID: "vendor-contract",
				Timestamp:      asOf,
				Confidence:     model.ConfidenceHigh,
				Score:          11.3,
				ScoreParts:     model.ScoreParts{Role: 1.0, Age: 9.6, Topic: 0.7, Repeat: 0},
				Evidence: []model.EvidenceSpan{
					{File: "Project_Alpha/email_2.txt", Lines: model.LineRange{Start: 5, End: 6}, ChunkID: "vendor-contract_1_cccc"},
				},
				ValidationNotes: []string{"cited text supports the claim"},
			},
			{
				ID:             "FLAG-002",
				Category:       model.CategoryUnresolvedAction,
				Title:          "Q2 numbers unconfirmed",
				Rationale:      "Finance asked twice with no answer.",
				NextStep:       "Confirm the Q2 numbers.",
				ConversationID: "budget-review",
				Timestamp:      asOf.Add(-72 * time.Hour),
				Confidence:     model.ConfidenceMid,
				Score:          7.25,
				ScoreParts:     model.ScoreParts{Role: 1.0, Age: 5.6, Topic: 0.65, Repeat: 0},
				Evidence: []model.EvidenceSpan{
					{File: "Project_Alpha/email_1.txt", Lines: model.LineRange{Start: 3, End: 8}, ChunkID: "missing-chunk"},
				},
			},
		},
		Stats: model.RunStats{
			ChunksTotal:         12,
			ChunksRetrieved:     8,
			Partitions:          2,
			PartitionsFailed:    0,
			CandidatesExtracted: 4,
			CandidatesDropped:   map[string]int{model.DropRejected: 1},
			ItemsMerged:         1,
			ItemsVerified:       2,
			StageMillis:         map[string]int64{"retrieve": 120},
		},
	}
	return rep, chunks
}

func TestMarkdown_Sections(t *testing.T) {
	rep, chunks := sampleReport()
	out := Markdown(rep, chunks)

	for _, want := range []string{
		"# Portfolio Health Report",
		"Run `run-0001` · Q2 portfolio review · corpus as of 2025-03-12 09:00 UTC",
		"## Executive Summary",
		"## Flagged Items",
		"## Evidence Appendix",
		"## Run Statistics",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown is missing %q", want)
		}
	}
}

func TestMarkdown_ItemsRenderInGivenOrder(t *testing.T) {
	rep, chunks := sampleReport()
	out := Markdown(rep, chunks)

	first := strings.Index(out, "FLAG-001")
	second := strings.Index(out, "FLAG-002")
	if first < 0 || second < 0 || first > second {
		t.Errorf("item order not preserved: FLAG-001 at %d, FLAG-002 at %d", first, second)
	}
}

func TestMarkdown_ItemSectionFields(t *testing.T) {
	rep, chunks := sampleReport()
	out := Markdown(rep, chunks)

	for _, want := range []string{
		"### FLAG-001 `ERB` Vendor contract slipping",
		"- Why it matters: Legal review is stalled with the deadline close.",
		"- Owner: pm",
		"- Next step: Escalate the vendor timeline.",
		"- Confidence: high",
		"- Score: 11.30 (role 1.00 + age 9.60 + topic 0.70 + repeat 0.00)",
		"- Evidence: Project_Alpha/email_2.txt:5-6",
		"- Notes: cited text supports the claim",
		"### FLAG-002 `UHPAI` Q2 numbers unconfirmed",
		"- **ERB** Vendor contract slipping: Escalate the vendor timeline. (score 11.30, confidence high)",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("markdown is missing %q", want)
		}
	}

	// The second item has no owner and no notes; those lines must be absent
	// from its section.
	section := out[strings.Index(out, "### FLAG-002"):]
	if next := strings.Index(section[1:], "\n#"); next >= 0 {
		section = section[:next+1]
	}
	if strings.Contains(section, "- Owner:") {
		t.Error("FLAG-002 section renders an empty owner line")
	}
	if strings.Contains(section, "- Notes:") {
		t.Error("FLAG-002 section renders an empty notes line")
	}
}

func TestMarkdown_AppendixQuotesExcerpt(t *testing.T) {
	rep, chunks := sampleReport()
	out := Markdown(rep, chunks)

	if !strings.Contains(out, "> Legal has not responded.\n> Deadline is Friday.") {
		t.Error("appendix does not quote the cited lines")
	}
	if !strings.Contains(out, "Project_Alpha/email_2.txt:5-6 (vendor-contract)") {
		t.Error("appendix is missing the file:line provenance")
	}
	if !strings.Contains(out, "Project_Alpha/email_1.txt:3-8 (no excerpt available)") {
		t.Error("a span with no resolvable chunk should still cite its source")
	}
}

func TestMarkdown_EmptyReport(t *testing.T) {
	rep, _ := sampleReport()
	rep.Items = nil

	out := Markdown(rep, nil)
	if !strings.Contains(out, "No items met the evidence bar") {
		t.Error("empty report is missing the no-items line")
	}
	if strings.Contains(out, "## Flagged Items") {
		t.Error("empty report should not render an items section")
	}
	if !strings.Contains(out, "## Run Statistics") {
		t.Error("empty report should still account for the run")
	}
}

func TestMarkdown_StatsOmitTimings(t *testing.T) {
	rep, chunks := sampleReport()
	out := Markdown(rep, chunks)

	if !strings.Contains(out, "- Chunks: 12 total, 8 retrieved") {
		t.Error("stats are missing the chunk counters")
	}
	if !strings.Contains(out, "- Candidates: 4 extracted, 1 dropped") {
		t.Error("stats are missing the candidate counters")
	}
	if strings.Contains(out, "120") || strings.Contains(strings.ToLower(out), "millis") {
		t.Error("markdown must not include wall-clock timings")
	}
}

func TestMarkdown_DegradedRetrievalVisible(t *testing.T) {
	rep, chunks := sampleReport()
	rep.Stats.DegradedRetrieval = true

	out := Markdown(rep, chunks)
	if !strings.Contains(out, "Retrieval ran degraded") {
		t.Error("degraded retrieval is not surfaced in the report")
	}
}

func TestMarkdown_Deterministic(t *testing.T) {
	rep, chunks := sampleReport()
	if Markdown(rep, chunks) != Markdown(rep, chunks) {
		t.Error("identical inputs rendered different markdown")
	}
}

func TestExcerpt_Clamping(t *testing.T) {
	chunk := model.Chunk{
		Text:      "line five\nline six\nline seven",
		LineStart: 5,
		LineEnd:   7,
	}

	tests := []struct {
		name  string
		lines model.LineRange
		want  []string
	}{
		{"inside", model.LineRange{Start: 6, End: 7}, []string{"line six", "line seven"}},
		{"single", model.LineRange{Start: 5, End: 5}, []string{"line five"}},
		{"overshoot clamps", model.LineRange{Start: 6, End: 40}, []string{"line six", "line seven"}},
		{"miss falls back to whole chunk", model.LineRange{Start: 1, End: 2}, []string{"line five", "line six", "line seven"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := excerpt(chunk, tt.lines)
			if len(got) != len(tt.want) {
				t.Fatalf("excerpt() = %v, want %v", got, tt.want)
			}
			for i := range got {
				if got[i] != tt.want[i] {
					t.Errorf("excerpt()[%d] = %q, want %q", i, got[i], tt.want[i])
				}
			}
		})
	}
}
