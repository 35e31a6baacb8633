// Package prompt builds the inference prompts for candidate extraction and
// evidence adjudication. Builders are pure: the same inputs produce the
// same prompt bytes, which is what lets cached inference replays hit.
package prompt

import (
	"fmt"
	"sort"
	"strings"

	"github.com/evidentlabs/beacon/internal/model"
)

const analyzerSystem = `You are an analyst reviewing project communications for an executive brief. You surface unresolved handoffs and emerging risks. You only make claims the provided excerpts support, and you cite evidence precisely. You answer in YAML.`

const verifierSystem = `You are a strict reviewer. You re-examine candidate items against the full text of their cited sources and reject anything the text does not support. You answer in YAML.`

const analyzerSchema = `items:
  - category: uhpai            # uhpai | erb
    title: one-line statement of the item
    rationale: why this needs attention now
    owner_hint: role or person expected to act
    next_step: concrete action to take
    conversation_id: thread identifier from the cited chunks
    evidence:
      - file: path exactly as listed
        lines: "12-24"`

const verifierSchema = `verdicts:
  - id: c1
    verdict: confirmed         # confirmed | adjusted | rejected
    confidence: high           # low | mid | high
    validation_notes:
      - short audit note
    adjusted_title: ""         # only when verdict is adjusted
    adjusted_rationale: ""
    adjusted_next_step: ""`

const strictReminder = `Your previous answer could not be parsed. Answer again.
Output exactly one YAML document matching the schema below. Do not add
prose, comments, or markdown fences.`

// AnalyzerRequest carries the inputs for an extraction prompt.
type AnalyzerRequest struct {
	ProjectContext string
	AgingDays      int           // days after which an unanswered handoff counts as unresolved
	MaxCandidates  int           // most important first; excess is truncated locally anyway
	Chunks         []model.Chunk // retrieval order preserved
}

// Analyzer builds the system and user prompts for candidate extraction over
// a retrieved evidence set.
func Analyzer(req AnalyzerRequest) (system, user string) {
	var b strings.Builder

	if req.ProjectContext != "" {
		fmt.Fprintf(&b, "Project context: %s\n\n", req.ProjectContext)
	}

	fmt.Fprintf(&b, `You are given numbered excerpts ("chunks") from project communications.
Identify at most %d items that need executive attention, most important
first. Two categories exist:

- uhpai: unresolved handoff or pending action item. A direct request or
  handoff that has stayed unanswered for more than %d days.
- erb: emerging risk or blocker. A risk, dependency, or blocker raised in
  discussion but absent from status summaries.

Rules:
1. Cite only the files listed below, exactly as written. Never invent
   files or line numbers.
2. Every item needs at least one evidence citation and a concrete
   next_step.
3. If the chunks support nothing, answer with "items: []".
4. Answer with YAML only. No prose, no markdown fences.

Schema:
%s

Chunks:
`, req.MaxCandidates, req.AgingDays, analyzerSchema)

	for i, chunk := range req.Chunks {
		writeChunk(&b, i+1, chunk)
	}

	return analyzerSystem, b.String()
}

// VerifierRequest carries the inputs for an adjudication prompt.
type VerifierRequest struct {
	Candidates []model.FlagItem
	Chunks     []model.Chunk // full text of every cited chunk
	Strict     bool          // adds a format reminder after a parse failure
}

// Verifier builds the system and user prompts for evidence adjudication.
// Candidates are addressed by the ids returned from CandidateID.
func Verifier(req VerifierRequest) (system, user string) {
	var b strings.Builder

	if req.Strict {
		b.WriteString(strictReminder)
		b.WriteString("\n\n")
	}

	fmt.Fprintf(&b, `Candidate items were extracted from project communications. Re-examine
each candidate against the full text of its cited sources and return one
verdict per candidate id.

- confirmed: the cited text supports the item as stated.
- adjusted: the cited text supports the item, but title, rationale, or
  next step needs correction. Provide the corrected fields.
- rejected: the cited text does not support the item, contradicts it, or
  shows it already resolved.

Confidence states how directly the text supports the item: low, mid, high.

Answer with YAML only. No prose, no markdown fences.

Schema:
%s

Candidates:
`, verifierSchema)

	for i, candidate := range req.Candidates {
		writeCandidate(&b, CandidateID(i), candidate)
	}

	b.WriteString("\nSources:\n")

	// Cited chunks carry no rank; order them stably so reruns build
	// byte-identical prompts.
	chunks := append([]model.Chunk(nil), req.Chunks...)
	sort.Slice(chunks, func(i, j int) bool {
		if chunks[i].File != chunks[j].File {
			return chunks[i].File < chunks[j].File
		}
		if chunks[i].LineStart != chunks[j].LineStart {
			return chunks[i].LineStart < chunks[j].LineStart
		}
		return chunks[i].ID < chunks[j].ID
	})
	for i, chunk := range chunks {
		writeChunk(&b, i+1, chunk)
	}

	return verifierSystem, b.String()
}

// CandidateID returns the prompt-local identifier assigned to the i-th
// candidate. The adjudicator answers by these ids.
func CandidateID(i int) string {
	return fmt.Sprintf("c%d", i+1)
}

func writeChunk(b *strings.Builder, n int, c model.Chunk) {
	fmt.Fprintf(b, "\n--- chunk %d ---\n", n)
	fmt.Fprintf(b, "file: %s\n", c.File)
	fmt.Fprintf(b, "lines: %d-%d\n", c.LineStart, c.LineEnd)
	fmt.Fprintf(b, "conversation: %s\n", c.ConversationID)
	fmt.Fprintf(b, "date: %s\n", c.Timestamp.UTC().Format("2006-01-02"))
	if len(c.Participants) > 0 {
		parts := make([]string, len(c.Participants))
		for i, p := range c.Participants {
			parts[i] = fmt.Sprintf("%s (%s)", p.Name, p.Role)
		}
		fmt.Fprintf(b, "participants: %s\n", strings.Join(parts, ", "))
	}
	fmt.Fprintf(b, "text:\n%s\n", strings.TrimSpace(c.Text))
}

func writeCandidate(b *strings.Builder, id string, f model.FlagItem) {
	fmt.Fprintf(b, "\n--- candidate %s ---\n", id)
	fmt.Fprintf(b, "category: %s\n", wireLabel(f.Category))
	fmt.Fprintf(b, "title: %s\n", f.Title)
	fmt.Fprintf(b, "rationale: %s\n", f.Rationale)
	if f.OwnerHint != "" {
		fmt.Fprintf(b, "owner_hint: %s\n", f.OwnerHint)
	}
	fmt.Fprintf(b, "next_step: %s\n", f.NextStep)
	b.WriteString("evidence:\n")
	for _, span := range f.Evidence {
		fmt.Fprintf(b, "  - %s lines %s\n", span.File, span.Lines.String())
	}
}

// wireLabel maps a category back to the short label the service uses.
func wireLabel(c model.Category) string {
	if c == model.CategoryEmergingRisk {
		return "erb"
	}
	return "uhpai"
}
