// Package report renders a composed Report for people and for tooling.
// Rendering is presentation only: items arrive ranked and scored, and come
// out in the same order with the same numbers.
package report

import (
	"fmt"
	"strings"

	"github.com/evidentlabs/beacon/internal/model"
)

// badge is the short category label used in summaries and section headers.
func badge(c model.Category) string {
	if c == model.CategoryEmergingRisk {
		return "ERB"
	}
	return "UHPAI"
}

// Markdown renders the executive report: summary bullets, one section per
// ranked item, and an evidence appendix quoting the cited chunk excerpts.
// chunks maps chunk IDs to snapshot chunks for excerpting; spans whose
// chunk is missing render their citation without a quote.
func Markdown(rep model.Report, chunks map[string]model.Chunk) string {
	var b strings.Builder

	b.WriteString("# Portfolio Health Report\n\n")
	fmt.Fprintf(&b, "Run `%s`", rep.RunID)
	if rep.ProjectContext != "" {
		fmt.Fprintf(&b, " · %s", rep.ProjectContext)
	}
	fmt.Fprintf(&b, " · corpus as of %s\n\n", rep.GeneratedAt.UTC().Format("2006-01-02 15:04 MST"))

	if len(rep.Items) == 0 {
		b.WriteString("No items met the evidence bar for this corpus.\n\n")
		writeStats(&b, rep.Stats)
		return b.String()
	}

	b.WriteString("## Executive Summary\n\n")
	for _, it := range rep.Items {
		fmt.Fprintf(&b, "- **%s** %s: %s (score %.2f, confidence %s)\n",
			badge(it.Category), it.Title, it.NextStep, it.Score, it.Confidence)
	}
	b.WriteString("\n## Flagged Items\n\n")

	for _, it := range rep.Items {
		fmt.Fprintf(&b, "### %s `%s` %s\n\n", it.ID, badge(it.Category), it.Title)
		fmt.Fprintf(&b, "- Why it matters: %s\n", it.Rationale)
		if it.OwnerHint != "" {
			fmt.Fprintf(&b, "- Owner: %s\n", it.OwnerHint)
		}
		fmt.Fprintf(&b, "- Next step: %s\n", it.NextStep)
		fmt.Fprintf(&b, "- Confidence: %s\n", it.Confidence)
		fmt.Fprintf(&b, "- Score: %.2f (role %.2f + age %.2f + topic %.2f + repeat %.2f)\n",
			it.Score, it.ScoreParts.Role, it.ScoreParts.Age, it.ScoreParts.Topic, it.ScoreParts.Repeat)
		fmt.Fprintf(&b, "- Conversation: %s\n", it.ConversationID)
		fmt.Fprintf(&b, "- Evidence: %s\n", citationList(it.Evidence))
		if len(it.ValidationNotes) > 0 {
			fmt.Fprintf(&b, "- Notes: %s\n", strings.Join(it.ValidationNotes, "; "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## Evidence Appendix\n\n")
	for _, it := range rep.Items {
		fmt.Fprintf(&b, "### %s %s\n\n", it.ID, it.Title)
		for _, sp := range it.Evidence {
			chunk, ok := chunks[sp.ChunkID]
			if !ok {
				fmt.Fprintf(&b, "%s:%s (no excerpt available)\n\n", sp.File, sp.Lines)
				continue
			}
			for _, line := range excerpt(chunk, sp.Lines) {
				fmt.Fprintf(&b, "> %s\n", line)
			}
			fmt.Fprintf(&b, "\n%s:%s (%s)\n\n", sp.File, sp.Lines, chunk.ConversationID)
		}
	}

	writeStats(&b, rep.Stats)
	return b.String()
}

func citationList(spans []model.EvidenceSpan) string {
	parts := make([]string, 0, len(spans))
	for _, sp := range spans {
		parts = append(parts, fmt.Sprintf("%s:%s", sp.File, sp.Lines))
	}
	return strings.Join(parts, "; ")
}

// excerpt slices the span's lines out of the chunk text. Chunk line numbers
// are approximate, so indices clamp into the text rather than erroring.
func excerpt(c model.Chunk, r model.LineRange) []string {
	lines := strings.Split(strings.TrimRight(c.Text, "\n"), "\n")
	lo := r.Start - c.LineStart
	hi := r.End - c.LineStart
	if lo < 0 {
		lo = 0
	}
	if hi > len(lines)-1 {
		hi = len(lines) - 1
	}
	if lo > hi {
		lo, hi = 0, len(lines)-1
	}
	return lines[lo : hi+1]
}

// writeStats prints the deterministic run counters. Stage timings stay in
// the JSON rendering only, so identical reruns emit identical markdown.
func writeStats(b *strings.Builder, s model.RunStats) {
	b.WriteString("## Run Statistics\n\n")
	fmt.Fprintf(b, "- Chunks: %d total, %d retrieved\n", s.ChunksTotal, s.ChunksRetrieved)
	fmt.Fprintf(b, "- Partitions: %d (%d failed)\n", s.Partitions, s.PartitionsFailed)
	fmt.Fprintf(b, "- Candidates: %d extracted, %d dropped\n", s.CandidatesExtracted, droppedTotal(s))
	fmt.Fprintf(b, "- Items: %d verified, %d merged\n", s.ItemsVerified, s.ItemsMerged)
	if s.DegradedRetrieval {
		b.WriteString("- Retrieval ran degraded: similarity ranking was unavailable\n")
	}
}

func droppedTotal(s model.RunStats) int {
	total := 0
	for _, n := range s.CandidatesDropped {
		total += n
	}
	return total
}
