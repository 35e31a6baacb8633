// Package verify gates analysis candidates before they can reach a report.
// Every evidence span is first re-resolved locally against the corpus
// snapshot, then one adjudication call re-examines each candidate against
// the full text of its cited chunks. Items that fail either check are
// dropped and counted; nothing unverified passes through.
package verify

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/llm"
	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
	"github.com/evidentlabs/beacon/internal/prompt"
)

// Verifier adjudicates candidates against their cited source text.
type Verifier struct {
	provider llm.Provider
	cfg      config.Analysis
}

// New returns a Verifier backed by the given inference provider.
func New(provider llm.Provider, cfg config.Analysis) *Verifier {
	return &Verifier{provider: provider, cfg: cfg}
}

// Result carries verified, merged items plus accounting for every candidate
// dropped on the way. An empty item list is a valid outcome.
type Result struct {
	Items      []model.FlagItem
	Dropped    map[string]int
	Merged     int
	Unverified error // set when the whole set was dropped as unverifiable
	TokensUsed int
}

// wireVerdicts mirrors the YAML document the adjudicator answers with.
type wireVerdicts struct {
	Verdicts []wireVerdict `yaml:"verdicts"`
}

type wireVerdict struct {
	ID                string   `yaml:"id"`
	Verdict           string   `yaml:"verdict"`
	Confidence        string   `yaml:"confidence"`
	ValidationNotes   []string `yaml:"validation_notes"`
	AdjustedTitle     string   `yaml:"adjusted_title"`
	AdjustedRationale string   `yaml:"adjusted_rationale"`
	AdjustedNextStep  string   `yaml:"adjusted_next_step"`
}

// Verify re-checks every candidate's evidence against the snapshot, asks
// the provider for verdicts, applies them, and merges near-duplicates.
// Provider transport failures return an error; an adjudication answer that
// stays unparseable after one strict retry drops the whole set instead,
// since that is a quality outcome the run can survive.
func (v *Verifier) Verify(ctx context.Context, candidates []model.FlagItem, corpus []model.Chunk) (Result, error) {
	res := Result{Dropped: make(map[string]int)}
	if len(candidates) == 0 {
		return res, nil
	}

	// Local re-check before spending tokens.
	checked := make([]model.FlagItem, 0, len(candidates))
	for _, cand := range candidates {
		item := cand.Clone()
		resolved := make([]model.EvidenceSpan, 0, len(item.Evidence))
		for _, sp := range item.Evidence {
			rsp, ok := resolveSpan(sp, corpus)
			if !ok {
				logger.Debug("verify: span %s cites no known chunk", sp.Key())
				continue
			}
			resolved = append(resolved, rsp)
		}
		if len(resolved) == 0 {
			res.Dropped[model.DropUnknownFile]++
			logger.Warn("verify: dropped %q: no citation resolves against the snapshot", cand.Title)
			continue
		}
		item.Evidence = resolved
		checked = append(checked, item)
	}
	if len(checked) == 0 {
		return res, nil
	}

	verdicts, tokens, err := v.adjudicate(ctx, checked, citedChunks(checked, corpus))
	res.TokensUsed = tokens
	if err != nil {
		var structural *model.StructuralError
		if errors.As(err, &structural) {
			res.Dropped[model.DropUnverifiable] += len(checked)
			res.Unverified = err
			logger.Warn("verify: %v; dropped %d candidates", err, len(checked))
			return res, nil
		}
		return res, fmt.Errorf("verify: %w", err)
	}

	kept := make([]model.FlagItem, 0, len(checked))
	for i, item := range checked {
		verdict, ok := verdicts[prompt.CandidateID(i)]
		if !ok {
			res.Dropped[model.DropUnverifiable]++
			logger.Debug("verify: no verdict for %q", item.Title)
			continue
		}

		switch strings.ToLower(strings.TrimSpace(verdict.Verdict)) {
		case "confirmed":
		case "adjusted":
			if s := strings.TrimSpace(verdict.AdjustedTitle); s != "" {
				item.Title = s
			}
			if s := strings.TrimSpace(verdict.AdjustedRationale); s != "" {
				item.Rationale = s
			}
			if s := strings.TrimSpace(verdict.AdjustedNextStep); s != "" {
				item.NextStep = s
			}
		case "rejected":
			res.Dropped[model.DropRejected]++
			logger.Debug("verify: rejected %q", item.Title)
			continue
		default:
			res.Dropped[model.DropUnverifiable]++
			logger.Debug("verify: unknown verdict %q for %q", verdict.Verdict, item.Title)
			continue
		}

		conf, err := model.ParseConfidence(verdict.Confidence)
		if err != nil {
			// The evidence re-check passed, so a garbled confidence label
			// downgrades to low instead of discarding the item.
			conf = model.ConfidenceLow
		}
		item.Confidence = conf
		item.ValidationNotes = appendNewNotes(item.ValidationNotes, verdict.ValidationNotes)
		kept = append(kept, item)
	}

	res.Items, res.Merged = mergeDuplicates(kept, v.cfg.MergeThreshold)
	return res, nil
}

// adjudicate asks for verdicts over the candidate set, retrying once with a
// stricter format reminder when the answer cannot be parsed. Keyed by the
// candidate ids the prompt assigned.
func (v *Verifier) adjudicate(ctx context.Context, candidates []model.FlagItem, cited []model.Chunk) (map[string]wireVerdict, int, error) {
	tokens := 0
	for attempt := 0; attempt < 2; attempt++ {
		system, user := prompt.Verifier(prompt.VerifierRequest{
			Candidates: candidates,
			Chunks:     cited,
			Strict:     attempt > 0,
		})
		resp, err := v.provider.Complete(ctx, llm.Request{System: system, Prompt: user})
		if err != nil {
			return nil, tokens, err
		}
		tokens += resp.TokensUsed

		var wire wireVerdicts
		if err := yaml.Unmarshal([]byte(llm.ExtractYAML(resp.Text)), &wire); err == nil && len(wire.Verdicts) > 0 {
			out := make(map[string]wireVerdict, len(wire.Verdicts))
			for _, w := range wire.Verdicts {
				out[strings.ToLower(strings.TrimSpace(w.ID))] = w
			}
			return out, tokens, nil
		}
		if attempt == 0 {
			logger.Warn("verify: unparseable adjudication answer, retrying with a stricter prompt")
		}
	}
	return nil, tokens, &model.StructuralError{Stage: "verify", Reason: "adjudication unparseable after retry"}
}

// resolveSpan clamps the span into the bounds of the best matching chunk of
// its file and attaches the chunk ID. Preference order: the chunk sharing
// the most lines with the span, then the nearest chunk when nothing
// overlaps. Returns false when the file has no chunks at all.
func resolveSpan(sp model.EvidenceSpan, corpus []model.Chunk) (model.EvidenceSpan, bool) {
	best := -1
	bestOverlap := 0
	bestDist := math.MaxInt
	for i, c := range corpus {
		if c.File != sp.File {
			continue
		}
		if o := overlapLines(sp.Lines, c); o > 0 {
			if o > bestOverlap || (o == bestOverlap && bestOverlap > 0 && c.LineStart < corpus[best].LineStart) {
				best, bestOverlap = i, o
			}
			continue
		}
		if bestOverlap > 0 {
			continue
		}
		if d := lineDistance(sp.Lines, c); d < bestDist || best < 0 {
			best, bestDist = i, d
		}
	}
	if best < 0 {
		return model.EvidenceSpan{}, false
	}

	chunk := corpus[best]
	out := sp
	out.ChunkID = chunk.ID
	if out.Lines.Start < chunk.LineStart {
		out.Lines.Start = chunk.LineStart
	}
	if out.Lines.End > chunk.LineEnd {
		out.Lines.End = chunk.LineEnd
	}
	if out.Lines.Start > out.Lines.End {
		// The span missed the chunk entirely; pin it to the nearest edge.
		if sp.Lines.End < chunk.LineStart {
			out.Lines = model.LineRange{Start: chunk.LineStart, End: chunk.LineStart}
		} else {
			out.Lines = model.LineRange{Start: chunk.LineEnd, End: chunk.LineEnd}
		}
	}
	return out, true
}

func overlapLines(r model.LineRange, c model.Chunk) int {
	lo, hi := r.Start, r.End
	if c.LineStart > lo {
		lo = c.LineStart
	}
	if c.LineEnd < hi {
		hi = c.LineEnd
	}
	if hi < lo {
		return 0
	}
	return hi - lo + 1
}

func lineDistance(r model.LineRange, c model.Chunk) int {
	if r.End < c.LineStart {
		return c.LineStart - r.End
	}
	if r.Start > c.LineEnd {
		return r.Start - c.LineEnd
	}
	return 0
}

// citedChunks returns the distinct chunks referenced by resolved spans, in
// corpus order.
func citedChunks(items []model.FlagItem, corpus []model.Chunk) []model.Chunk {
	want := make(map[string]bool)
	for _, it := range items {
		for _, sp := range it.Evidence {
			want[sp.ChunkID] = true
		}
	}
	out := make([]model.Chunk, 0, len(want))
	for _, c := range corpus {
		if want[c.ID] {
			out = append(out, c)
		}
	}
	return out
}
