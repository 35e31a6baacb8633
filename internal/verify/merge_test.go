package verify

import (
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/evidentlabs/beacon/internal/model"
)

func TestTokenOverlap(t *testing.T) {
	tests := []struct {
		name string
		a, b string
		want float64
	}{
		{"identical", "vendor contract", "vendor contract", 1.0},
		{"case and punctuation ignored", "Vendor, contract!", "vendor contract", 1.0},
		{"partial", "a b c d", "c d e f", 1.0 / 3.0},
		{"disjoint", "budget numbers", "vendor deadline", 0},
		{"empty side", "", "vendor", 0},
		{"both empty", "", "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := tokenOverlap(tt.a, tt.b)
			if diff := got - tt.want; diff > 1e-9 || diff < -1e-9 {
				t.Errorf("tokenOverlap(%q, %q) = %v, want %v", tt.a, tt.b, got, tt.want)
			}
		})
	}
}

func TestMergeDuplicates_MergesWithinConversation(t *testing.T) {
	early := time.Date(2025, 3, 10, 9, 0, 0, 0, time.UTC)
	late := early.Add(48 * time.Hour)
	items := []model.FlagItem{
		{
			Category:       model.CategoryEmergingRisk,
			Title:          "Vendor contract slipping",
			Rationale:      "deadline risk",
			ConversationID: "vendor-contract",
			Timestamp:      late,
			Confidence:     model.ConfidenceLow,
			Evidence: []model.EvidenceSpan{
				{File: "a.txt", Lines: model.LineRange{Start: 1, End: 5}, ChunkID: "c-1"},
			},
			ValidationNotes: []string{"first sighting"},
		},
		{
			Category:       model.CategoryEmergingRisk,
			Title:          "Vendor contract deadline slipping",
			Rationale:      "deadline risk again",
			ConversationID: "vendor-contract",
			Timestamp:      early,
			Confidence:     model.ConfidenceHigh,
			Evidence: []model.EvidenceSpan{
				{File: "a.txt", Lines: model.LineRange{Start: 1, End: 5}, ChunkID: "c-1"}, // same span
				{File: "b.txt", Lines: model.LineRange{Start: 3, End: 9}, ChunkID: "c-2"},
			},
			ValidationNotes: []string{"second sighting"},
		},
	}

	out, merged := mergeDuplicates(items, 0.5)
	if merged != 1 {
		t.Fatalf("merged = %d, want 1", merged)
	}
	if len(out) != 1 {
		t.Fatalf("got %d items, want 1", len(out))
	}

	got := out[0]
	if got.Title != "Vendor contract slipping" {
		t.Errorf("Title = %q, want the earlier item's title kept", got.Title)
	}
	wantEvidence := []model.EvidenceSpan{
		{File: "a.txt", Lines: model.LineRange{Start: 1, End: 5}, ChunkID: "c-1"},
		{File: "b.txt", Lines: model.LineRange{Start: 3, End: 9}, ChunkID: "c-2"},
	}
	if diff := cmp.Diff(wantEvidence, got.Evidence); diff != "" {
		t.Errorf("evidence union mismatch (-want +got):\n%s", diff)
	}
	if got.Confidence != model.ConfidenceHigh {
		t.Errorf("Confidence = %q, want high kept from the stronger item", got.Confidence)
	}
	if !got.Timestamp.Equal(early) {
		t.Errorf("Timestamp = %v, want earliest %v", got.Timestamp, early)
	}
	if got.RepeatCount != 1 {
		t.Errorf("RepeatCount = %d, want 1 after union of two distinct spans", got.RepeatCount)
	}
	wantNotes := []string{"first sighting", "second sighting"}
	if diff := cmp.Diff(wantNotes, got.ValidationNotes); diff != "" {
		t.Errorf("notes mismatch (-want +got):\n%s", diff)
	}
}

func TestMergeDuplicates_DifferentConversationsStaySeparate(t *testing.T) {
	items := []model.FlagItem{
		{Title: "Vendor contract slipping", Rationale: "deadline risk", ConversationID: "vendor-contract"},
		{Title: "Vendor contract slipping", Rationale: "deadline risk", ConversationID: "budget-review"},
	}

	out, merged := mergeDuplicates(items, 0.5)
	if merged != 0 || len(out) != 2 {
		t.Errorf("got %d items, %d merges; want 2 items, 0 merges", len(out), merged)
	}
}

func TestMergeDuplicates_BelowThresholdStaysSeparate(t *testing.T) {
	items := []model.FlagItem{
		{Title: "Budget numbers unconfirmed", Rationale: "finance waiting", ConversationID: "budget-review"},
		{Title: "Vendor deadline slipping", Rationale: "contract risk", ConversationID: "budget-review"},
	}

	out, merged := mergeDuplicates(items, 0.5)
	if merged != 0 || len(out) != 2 {
		t.Errorf("got %d items, %d merges; want 2 items, 0 merges", len(out), merged)
	}
}

func TestMergeDuplicates_ChainFoldsIntoFirst(t *testing.T) {
	items := []model.FlagItem{
		{Title: "vendor contract deadline", Rationale: "slipping fast", ConversationID: "v"},
		{Title: "vendor contract deadline", Rationale: "slipping fast", ConversationID: "v"},
		{Title: "vendor contract deadline", Rationale: "slipping fast", ConversationID: "v"},
	}

	out, merged := mergeDuplicates(items, 0.5)
	if merged != 2 || len(out) != 1 {
		t.Errorf("got %d items, %d merges; want 1 item, 2 merges", len(out), merged)
	}
}

func TestMergeDuplicates_DoesNotMutateInputs(t *testing.T) {
	items := []model.FlagItem{
		{
			Title:          "vendor contract deadline",
			Rationale:      "slipping",
			ConversationID: "v",
			Evidence:       []model.EvidenceSpan{{File: "a.txt", Lines: model.LineRange{Start: 1, End: 2}}},
		},
		{
			Title:          "vendor contract deadline",
			Rationale:      "slipping",
			ConversationID: "v",
			Evidence:       []model.EvidenceSpan{{File: "b.txt", Lines: model.LineRange{Start: 3, End: 4}}},
		},
	}
	snapshot := []model.FlagItem{items[0].Clone(), items[1].Clone()}

	mergeDuplicates(items, 0.5)

	if diff := cmp.Diff(snapshot, items); diff != "" {
		t.Errorf("inputs mutated (-before +after):\n%s", diff)
	}
}
