package analyze

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/llm"
	"github.com/evidentlabs/beacon/internal/model"
)

type fakeProvider struct {
	text  string
	err   error
	calls int
	last  llm.Request
}

func (f *fakeProvider) Name() string { return "fake" }

func (f *fakeProvider) Complete(ctx context.Context, req llm.Request) (*llm.Response, error) {
	f.calls++
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &llm.Response{Text: f.text, Model: "fake", TokensUsed: 42}, nil
}

func (f *fakeProvider) IsAvailable(ctx context.Context) bool { return f.err == nil }

func analyzerChunks() []model.Chunk {
	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	return []model.Chunk{
		{
			ID:             "budget-review_1_aaaa",
			Text:           "Can you confirm the Q2 numbers? Still waiting.",
			File:           "Project_Alpha/email_1.txt",
			LineStart:      1,
			LineEnd:        40,
			ConversationID: "budget-review",
			Project:        "Project_Alpha",
			Timestamp:      base,
		},
		{
			ID:             "vendor-contract_1_bbbb",
			Text:           "The vendor contract may slip past the deadline.",
			File:           "Project_Alpha/email_2.txt",
			LineStart:      1,
			LineEnd:        30,
			ConversationID: "vendor-contract",
			Project:        "Project_Alpha",
			Timestamp:      base.Add(48 * time.Hour),
		},
	}
}

func testAnalysis() config.Analysis {
	return config.Analysis{AgingThresholdDays: 3, MaxCandidates: 3, MergeThreshold: 0.5}
}

func TestAnalyzer_Analyze_ParsesValidResponse(t *testing.T) {
	provider := &fakeProvider{text: `items:
  - category: uhpai
    title: Q2 numbers unconfirmed
    rationale: Finance asked twice with no answer.
    owner_hint: pm
    next_step: Confirm the Q2 numbers with finance.
    conversation_id: budget-review
    confidence: high
    score: 99.9
    evidence:
      - file: Project_Alpha/email_1.txt
        lines: "3-8"
  - category: erb
    title: Vendor contract slipping
    rationale: Deadline risk raised in thread.
    next_step: Escalate the vendor timeline.
    conversation_id: vendor-contract
    evidence:
      - file: Project_Alpha/email_2.txt
        lines: "5"
      - file: Project_Alpha/email_1.txt
        lines: "10-12"
`}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if provider.calls != 1 {
		t.Errorf("provider calls = %d, want 1", provider.calls)
	}
	if provider.last.System == "" {
		t.Error("request carried no system prompt")
	}
	if !strings.Contains(provider.last.Prompt, "Project_Alpha/email_1.txt") {
		t.Error("user prompt does not include the batch chunks")
	}
	if res.TokensUsed != 42 {
		t.Errorf("TokensUsed = %d, want 42", res.TokensUsed)
	}
	if len(res.Dropped) != 0 {
		t.Errorf("Dropped = %v, want empty", res.Dropped)
	}

	base := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	want := []model.FlagItem{
		{
			Category:       model.CategoryUnresolvedAction,
			Title:          "Q2 numbers unconfirmed",
			Rationale:      "Finance asked twice with no answer.",
			OwnerHint:      "pm",
			NextStep:       "Confirm the Q2 numbers with finance.",
			Evidence:       []model.EvidenceSpan{{File: "Project_Alpha/email_1.txt", Lines: model.LineRange{Start: 3, End: 8}}},
			ConversationID: "budget-review",
			Timestamp:      base,
			RepeatCount:    0,
		},
		{
			Category:  model.CategoryEmergingRisk,
			Title:     "Vendor contract slipping",
			Rationale: "Deadline risk raised in thread.",
			NextStep:  "Escalate the vendor timeline.",
			Evidence: []model.EvidenceSpan{
				{File: "Project_Alpha/email_2.txt", Lines: model.LineRange{Start: 5, End: 5}},
				{File: "Project_Alpha/email_1.txt", Lines: model.LineRange{Start: 10, End: 12}},
			},
			ConversationID: "vendor-contract",
			Timestamp:      base, // earliest cited chunk, not the newest
			RepeatCount:    1,
		},
	}
	if diff := cmp.Diff(want, res.Candidates); diff != "" {
		t.Errorf("candidates mismatch (-want +got):\n%s", diff)
	}
}

func TestAnalyzer_Analyze_WireConfidenceAndScoreDiscarded(t *testing.T) {
	provider := &fakeProvider{text: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: do it
    conversation_id: budget-review
    confidence: high
    score: 42.5
    evidence:
      - file: Project_Alpha/email_1.txt
        lines: "1-2"
`}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	if got := res.Candidates[0].Confidence; got != model.ConfidenceUnset {
		t.Errorf("Confidence = %q, want unset", got)
	}
	if got := res.Candidates[0].Score; got != 0 {
		t.Errorf("Score = %v, want 0", got)
	}
}

func TestAnalyzer_Analyze_RejectsMalformedYAML(t *testing.T) {
	provider := &fakeProvider{text: "items: [unclosed"}
	a := New(provider, testAnalysis())

	_, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	var structural *model.StructuralError
	if !errors.As(err, &structural) {
		t.Fatalf("Analyze() error = %v, want StructuralError", err)
	}
	if structural.Stage != "analyze" {
		t.Errorf("Stage = %q, want analyze", structural.Stage)
	}
}

func TestAnalyzer_Analyze_DropsInvalidItems(t *testing.T) {
	tests := []struct {
		name   string
		yaml   string
		reason string
	}{
		{
			name: "unknown category",
			yaml: `items:
  - category: critical
    title: t
    rationale: r
    next_step: n
    evidence:
      - file: Project_Alpha/email_1.txt
        lines: "1-2"
`,
			reason: model.DropBadCategory,
		},
		{
			name: "missing next step",
			yaml: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: "  "
    evidence:
      - file: Project_Alpha/email_1.txt
        lines: "1-2"
`,
			reason: model.DropMissingNextStep,
		},
		{
			name: "empty evidence",
			yaml: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: n
    evidence: []
`,
			reason: model.DropEmptyEvidence,
		},
		{
			name: "file not in batch",
			yaml: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: n
    evidence:
      - file: Project_Beta/email_9.txt
        lines: "1-2"
`,
			reason: model.DropUnknownFile,
		},
		{
			name: "garbled line range",
			yaml: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: n
    evidence:
      - file: Project_Alpha/email_1.txt
        lines: "around the middle"
`,
			reason: model.DropUnparseable,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a := New(&fakeProvider{text: tt.yaml}, testAnalysis())
			res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
			if err != nil {
				t.Fatalf("Analyze() error = %v", err)
			}
			if len(res.Candidates) != 0 {
				t.Errorf("got %d candidates, want 0", len(res.Candidates))
			}
			if got := res.Dropped[tt.reason]; got != 1 {
				t.Errorf("Dropped[%s] = %d, want 1 (all drops: %v)", tt.reason, got, res.Dropped)
			}
		})
	}
}

func TestAnalyzer_Analyze_OneBadSpanDropsWholeItem(t *testing.T) {
	provider := &fakeProvider{text: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: n
    evidence:
      - file: Project_Alpha/email_1.txt
        lines: "1-2"
      - file: Project_Gamma/nowhere.txt
        lines: "3-4"
`}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("got %d candidates, want 0: a partially uncited claim must not survive", len(res.Candidates))
	}
	if res.Dropped[model.DropUnknownFile] != 1 {
		t.Errorf("Dropped = %v, want unknown_file: 1", res.Dropped)
	}
}

func TestAnalyzer_Analyze_TruncatesToMaxCandidates(t *testing.T) {
	provider := &fakeProvider{text: `items:
  - category: uhpai
    title: first
    rationale: r
    next_step: n
    evidence:
      - {file: Project_Alpha/email_1.txt, lines: "1"}
  - category: uhpai
    title: second
    rationale: r
    next_step: n
    evidence:
      - {file: Project_Alpha/email_1.txt, lines: "2"}
  - category: uhpai
    title: third
    rationale: r
    next_step: n
    evidence:
      - {file: Project_Alpha/email_1.txt, lines: "3"}
  - category: uhpai
    title: fourth
    rationale: r
    next_step: n
    evidence:
      - {file: Project_Alpha/email_1.txt, lines: "4"}
`}
	cfg := testAnalysis()
	cfg.MaxCandidates = 2
	a := New(provider, cfg)

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Candidates) != 2 {
		t.Fatalf("got %d candidates, want 2", len(res.Candidates))
	}
	if res.Candidates[0].Title != "first" || res.Candidates[1].Title != "second" {
		t.Errorf("truncation reordered candidates: %q, %q", res.Candidates[0].Title, res.Candidates[1].Title)
	}
	if res.Dropped[model.DropTruncated] != 2 {
		t.Errorf("Dropped = %v, want truncated: 2", res.Dropped)
	}
}

func TestAnalyzer_Analyze_FencedResponseStillParses(t *testing.T) {
	provider := &fakeProvider{text: "```yaml\nitems:\n  - category: erb\n    title: t\n    rationale: r\n    next_step: n\n    evidence:\n      - {file: Project_Alpha/email_1.txt, lines: \"1-2\"}\n```"}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Errorf("got %d candidates, want 1", len(res.Candidates))
	}
}

func TestAnalyzer_Analyze_EmptyItemsIsValid(t *testing.T) {
	provider := &fakeProvider{text: "items: []"}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Candidates) != 0 || len(res.Dropped) != 0 {
		t.Errorf("got %d candidates, drops %v; want none", len(res.Candidates), res.Dropped)
	}
}

func TestAnalyzer_Analyze_EmptyBatchSkipsProvider(t *testing.T) {
	provider := &fakeProvider{text: "items: []"}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha"})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if provider.calls != 0 {
		t.Errorf("provider calls = %d, want 0 for an empty batch", provider.calls)
	}
	if len(res.Candidates) != 0 {
		t.Errorf("got %d candidates, want 0", len(res.Candidates))
	}
}

func TestAnalyzer_Analyze_ProviderErrorPropagates(t *testing.T) {
	wantErr := errors.New("provider down")
	a := New(&fakeProvider{err: wantErr}, testAnalysis())

	_, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if !errors.Is(err, wantErr) {
		t.Errorf("Analyze() error = %v, want wrapped %v", err, wantErr)
	}
}

func TestAnalyzer_Analyze_ConversationFallsBackToCitedChunk(t *testing.T) {
	provider := &fakeProvider{text: `items:
  - category: uhpai
    title: t
    rationale: r
    next_step: n
    evidence:
      - {file: Project_Alpha/email_2.txt, lines: "1-3"}
`}
	a := New(provider, testAnalysis())

	res, err := a.Analyze(context.Background(), Batch{ProjectContext: "Project_Alpha", Chunks: analyzerChunks()})
	if err != nil {
		t.Fatalf("Analyze() error = %v", err)
	}
	if len(res.Candidates) != 1 {
		t.Fatalf("got %d candidates, want 1", len(res.Candidates))
	}
	if got := res.Candidates[0].ConversationID; got != "vendor-contract" {
		t.Errorf("ConversationID = %q, want vendor-contract", got)
	}
}
