package pipeline

import (
	"strings"
	"time"

	"github.com/evidentlabs/beacon/internal/model"
	"github.com/evidentlabs/beacon/internal/score"
)

// applyScores computes each verified item's score from locally derived
// facts: age measured against the corpus as-of instant, topic keywords
// matched over cited chunk text, and repetition from the merged evidence.
// Nothing the inference service said about priority survives into these
// numbers.
func (p *Pipeline) applyScores(items []model.FlagItem, byID map[string]model.Chunk, asOf time.Time) []model.FlagItem {
	out := make([]model.FlagItem, len(items))
	for i, item := range items {
		it := item.Clone()
		if ts, ok := earliestChunkTime(it.Evidence, byID); ok {
			it.Timestamp = ts
		}
		in := score.Inputs{
			Role:            it.OwnerHint,
			DaysUnresolved:  wholeDays(it.Timestamp, asOf),
			HasTopicKeyword: citesTopicKeyword(it.Evidence, byID, p.cfg.Retrieval.PrefilterKeywords),
			RepeatCount:     len(it.Evidence) - 1,
		}
		it.RepeatCount = in.RepeatCount
		it.Score, it.ScoreParts = p.scorer.Score(in)
		out[i] = it
	}
	return out
}

// earliestChunkTime finds the oldest cited chunk via the resolved span
// chunk IDs.
func earliestChunkTime(spans []model.EvidenceSpan, byID map[string]model.Chunk) (time.Time, bool) {
	var ts time.Time
	found := false
	for _, sp := range spans {
		c, ok := byID[sp.ChunkID]
		if !ok {
			continue
		}
		if !found || c.Timestamp.Before(ts) {
			ts = c.Timestamp
			found = true
		}
	}
	return ts, found
}

// wholeDays counts complete days from ts to asOf. Items newer than the
// corpus horizon age zero days; the wall clock is never consulted.
func wholeDays(ts, asOf time.Time) int {
	if ts.IsZero() || !asOf.After(ts) {
		return 0
	}
	return int(asOf.Sub(ts).Hours()) / 24
}

// citesTopicKeyword reports whether any cited chunk's text contains one of
// the configured keywords, case-insensitively.
func citesTopicKeyword(spans []model.EvidenceSpan, byID map[string]model.Chunk, keywords []string) bool {
	for _, sp := range spans {
		c, ok := byID[sp.ChunkID]
		if !ok {
			continue
		}
		text := strings.ToLower(c.Text)
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(text, strings.ToLower(kw)) {
				return true
			}
		}
	}
	return false
}
