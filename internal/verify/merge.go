package verify

import (
	"strings"

	"github.com/evidentlabs/beacon/internal/model"
)

const defaultMergeThreshold = 0.5

// mergeDuplicates folds near-duplicate items raised from the same
// conversation into one. Two items merge when the token-overlap ratio of
// their title plus rationale meets the threshold; the earlier item absorbs
// the later one and keeps its own category. Returns the surviving items in
// input order and the number of merges performed.
func mergeDuplicates(items []model.FlagItem, threshold float64) ([]model.FlagItem, int) {
	if threshold <= 0 {
		threshold = defaultMergeThreshold
	}

	out := make([]model.FlagItem, 0, len(items))
	merged := 0
	for _, item := range items {
		target := -1
		for i := range out {
			if out[i].ConversationID != item.ConversationID {
				continue
			}
			if tokenOverlap(mergeText(out[i]), mergeText(item)) >= threshold {
				target = i
				break
			}
		}
		if target < 0 {
			out = append(out, item)
			continue
		}
		out[target] = mergeInto(out[target], item)
		merged++
	}
	return out, merged
}

// mergeInto absorbs src into dst: evidence unioned (dedup by file and
// range), strongest confidence kept, earliest timestamp kept, notes
// combined. RepeatCount tracks the widened evidence so rescoring sees the
// repetition.
func mergeInto(dst, src model.FlagItem) model.FlagItem {
	dst.Evidence = append([]model.EvidenceSpan(nil), dst.Evidence...)
	seen := make(map[string]bool, len(dst.Evidence))
	for _, sp := range dst.Evidence {
		seen[sp.Key()] = true
	}
	for _, sp := range src.Evidence {
		if !seen[sp.Key()] {
			dst.Evidence = append(dst.Evidence, sp)
			seen[sp.Key()] = true
		}
	}

	if src.Confidence.Rank() > dst.Confidence.Rank() {
		dst.Confidence = src.Confidence
	}
	if !src.Timestamp.IsZero() && (dst.Timestamp.IsZero() || src.Timestamp.Before(dst.Timestamp)) {
		dst.Timestamp = src.Timestamp
	}
	dst.ValidationNotes = appendNewNotes(dst.ValidationNotes, src.ValidationNotes)
	dst.RepeatCount = len(dst.Evidence) - 1
	return dst
}

// tokenOverlap is the Jaccard ratio of the two texts' lowercase word sets.
func tokenOverlap(a, b string) float64 {
	as, bs := tokenSet(a), tokenSet(b)
	if len(as) == 0 || len(bs) == 0 {
		return 0
	}
	inter := 0
	for tok := range as {
		if bs[tok] {
			inter++
		}
	}
	union := len(as) + len(bs) - inter
	return float64(inter) / float64(union)
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, f := range strings.Fields(strings.ToLower(s)) {
		f = strings.Trim(f, ".,;:!?()[]{}\"'")
		if f != "" {
			out[f] = true
		}
	}
	return out
}

func mergeText(f model.FlagItem) string {
	return f.Title + " " + f.Rationale
}

func appendNewNotes(dst, src []string) []string {
	seen := make(map[string]bool, len(dst))
	for _, n := range dst {
		seen[n] = true
	}
	for _, n := range src {
		if n != "" && !seen[n] {
			dst = append(dst, n)
			seen[n] = true
		}
	}
	return dst
}
