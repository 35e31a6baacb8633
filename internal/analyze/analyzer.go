// Package analyze turns one partition's retrieved evidence into flag item
// candidates. It makes a single inference call per batch and validates
// everything in the answer before trusting it: malformed YAML rejects the
// whole response, and items with missing or uncited evidence are dropped
// and counted rather than repaired.
package analyze

import (
	"context"
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/llm"
	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
	"github.com/evidentlabs/beacon/internal/prompt"
)

const defaultMaxCandidates = 3

// Analyzer extracts candidates from retrieved evidence batches.
type Analyzer struct {
	provider llm.Provider
	cfg      config.Analysis
}

// New returns an Analyzer backed by the given inference provider.
func New(provider llm.Provider, cfg config.Analysis) *Analyzer {
	return &Analyzer{provider: provider, cfg: cfg}
}

// Batch is one partition's retrieved evidence set, in retrieval order.
type Batch struct {
	ProjectContext string
	Chunks         []model.Chunk
}

// Result carries the validated candidates plus accounting for every item
// the validation dropped, keyed by drop reason.
type Result struct {
	Candidates []model.FlagItem
	Dropped    map[string]int
	TokensUsed int
}

// wireResponse mirrors the YAML document the inference service answers with.
// Confidence and score are accepted on the wire but discarded; both are
// assigned locally in later stages.
type wireResponse struct {
	Items []wireItem `yaml:"items"`
}

type wireItem struct {
	Category       string     `yaml:"category"`
	Title          string     `yaml:"title"`
	Rationale      string     `yaml:"rationale"`
	OwnerHint      string     `yaml:"owner_hint"`
	NextStep       string     `yaml:"next_step"`
	ConversationID string     `yaml:"conversation_id"`
	Evidence       []wireSpan `yaml:"evidence"`
	Confidence     string     `yaml:"confidence"`
	Score          float64    `yaml:"score"`
}

type wireSpan struct {
	File  string `yaml:"file"`
	Lines string `yaml:"lines"`
}

// Analyze prompts the provider over the batch and returns the candidates
// that survive validation. A provider failure or an unparseable response is
// returned as an error so the orchestrator can fail just this partition.
func (a *Analyzer) Analyze(ctx context.Context, batch Batch) (Result, error) {
	res := Result{Dropped: make(map[string]int)}
	if len(batch.Chunks) == 0 {
		return res, nil
	}

	maxCandidates := a.cfg.MaxCandidates
	if maxCandidates < 1 {
		maxCandidates = defaultMaxCandidates
	}

	system, user := prompt.Analyzer(prompt.AnalyzerRequest{
		ProjectContext: batch.ProjectContext,
		AgingDays:      a.cfg.AgingThresholdDays,
		MaxCandidates:  maxCandidates,
		Chunks:         batch.Chunks,
	})

	resp, err := a.provider.Complete(ctx, llm.Request{System: system, Prompt: user})
	if err != nil {
		return res, fmt.Errorf("analyze %s: %w", batch.ProjectContext, err)
	}
	res.TokensUsed = resp.TokensUsed

	var wire wireResponse
	if err := yaml.Unmarshal([]byte(llm.ExtractYAML(resp.Text)), &wire); err != nil {
		return res, &model.StructuralError{Stage: "analyze", Reason: fmt.Sprintf("decode response: %v", err)}
	}

	for _, w := range wire.Items {
		item, reason := validate(w, batch.Chunks)
		if reason != "" {
			res.Dropped[reason]++
			logger.Debug("analyze %s: dropped candidate %q: %s", batch.ProjectContext, w.Title, reason)
			continue
		}
		res.Candidates = append(res.Candidates, item)
	}

	if len(res.Candidates) > maxCandidates {
		excess := len(res.Candidates) - maxCandidates
		res.Dropped[model.DropTruncated] += excess
		logger.Debug("analyze %s: truncated %d candidates beyond the per-batch cap", batch.ProjectContext, excess)
		res.Candidates = res.Candidates[:maxCandidates]
	}

	return res, nil
}

// validate converts one wire item into a FlagItem, or names the reason it
// cannot be trusted. Items are dropped whole: a claim with one bad citation
// is not a claim with fewer citations.
func validate(w wireItem, chunks []model.Chunk) (model.FlagItem, string) {
	category, err := model.ParseCategory(w.Category)
	if err != nil {
		return model.FlagItem{}, model.DropBadCategory
	}
	if strings.TrimSpace(w.NextStep) == "" {
		return model.FlagItem{}, model.DropMissingNextStep
	}
	if len(w.Evidence) == 0 {
		return model.FlagItem{}, model.DropEmptyEvidence
	}

	spans := make([]model.EvidenceSpan, 0, len(w.Evidence))
	for _, e := range w.Evidence {
		if !model.HasFile(chunks, e.File) {
			return model.FlagItem{}, model.DropUnknownFile
		}
		lines, err := model.ParseLineRange(e.Lines)
		if err != nil {
			return model.FlagItem{}, model.DropUnparseable
		}
		spans = append(spans, model.EvidenceSpan{File: e.File, Lines: lines})
	}

	item := model.FlagItem{
		Category:       category,
		Title:          strings.TrimSpace(w.Title),
		Rationale:      strings.TrimSpace(w.Rationale),
		OwnerHint:      strings.TrimSpace(w.OwnerHint),
		NextStep:       strings.TrimSpace(w.NextStep),
		Evidence:       spans,
		ConversationID: strings.TrimSpace(w.ConversationID),
		Timestamp:      earliestCited(chunks, spans),
		RepeatCount:    len(spans) - 1,
	}
	if item.ConversationID == "" {
		item.ConversationID = citedConversation(chunks, spans)
	}
	return item, ""
}

// earliestCited returns the oldest timestamp among chunks the spans land in.
// A span whose lines miss every chunk of its file still counts against the
// file's oldest chunk, since the file itself was validated as cited.
func earliestCited(chunks []model.Chunk, spans []model.EvidenceSpan) time.Time {
	var ts time.Time
	for _, sp := range spans {
		for _, c := range chunks {
			if c.File != sp.File {
				continue
			}
			if sp.Lines.End < c.LineStart || sp.Lines.Start > c.LineEnd {
				continue
			}
			if ts.IsZero() || c.Timestamp.Before(ts) {
				ts = c.Timestamp
			}
		}
	}
	if !ts.IsZero() {
		return ts
	}
	for _, sp := range spans {
		for _, c := range chunks {
			if c.File == sp.File && (ts.IsZero() || c.Timestamp.Before(ts)) {
				ts = c.Timestamp
			}
		}
	}
	return ts
}

// citedConversation picks a conversation for items the service left
// unattributed: the first cited chunk's thread, in batch order.
func citedConversation(chunks []model.Chunk, spans []model.EvidenceSpan) string {
	for _, sp := range spans {
		for _, c := range chunks {
			if c.File == sp.File {
				return c.ConversationID
			}
		}
	}
	return ""
}
