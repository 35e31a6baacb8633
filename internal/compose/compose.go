// Package compose ranks verified items into final report order.
package compose

import (
	"fmt"
	"sort"

	"github.com/evidentlabs/beacon/internal/model"
)

const defaultTopN = 5

// Compose orders items by descending score, breaks ties deterministically,
// truncates to topN, and assigns display IDs. Inputs are copied, never
// mutated, so the same verified set always composes to the same report.
//
// Tie order: emerging risks outrank unresolved actions at equal score, an
// older item outranks a newer one, and the conversation plus title decides
// anything still tied.
func Compose(items []model.FlagItem, topN int) []model.FlagItem {
	if topN < 1 {
		topN = defaultTopN
	}

	out := make([]model.FlagItem, 0, len(items))
	for _, it := range items {
		out = append(out, it.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Score != b.Score {
			return a.Score > b.Score
		}
		if a.Category != b.Category {
			return a.Category == model.CategoryEmergingRisk
		}
		if !a.Timestamp.Equal(b.Timestamp) {
			return a.Timestamp.Before(b.Timestamp)
		}
		return tieKey(a) < tieKey(b)
	})

	if len(out) > topN {
		out = out[:topN]
	}
	for i := range out {
		out[i].ID = fmt.Sprintf("FLAG-%03d", i+1)
	}
	return out
}

// tieKey is the stable identity of an item before a display ID exists.
func tieKey(f model.FlagItem) string {
	return f.ConversationID + "\x00" + f.Title
}
