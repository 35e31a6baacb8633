package ingest

import (
	"crypto/sha256"
	"fmt"
	"strings"

	"github.com/evidentlabs/beacon/internal/model"
)

// Chunker packs thread text into overlapping chunks sized in approximate
// tokens (four characters per token). Chunk IDs are content-derived, so
// re-ingesting unchanged input produces the same IDs and the vector index
// stays incremental.
type Chunker struct {
	chunkSize int
	overlap   int
}

// NewChunker returns a chunker for the given token budget and overlap.
func NewChunker(chunkSize, overlap int) *Chunker {
	if chunkSize < 1 {
		chunkSize = 1000
	}
	if overlap < 0 {
		overlap = 0
	}
	return &Chunker{chunkSize: chunkSize, overlap: overlap}
}

// sentence is a span of assembled thread text with provenance.
type sentence struct {
	text      string
	startLine int
	endLine   int
	msg       int
}

// ChunkThread flattens a redacted thread into chunks. Line numbers refer to
// the assembled thread text, which mirrors the export line for line.
func (c *Chunker) ChunkThread(t *Thread, project, file string) []model.Chunk {
	sentences := c.flatten(t)
	if len(sentences) == 0 {
		return nil
	}

	var (
		chunks []model.Chunk
		cur    []sentence
		tokens int
		index  int
	)
	for _, s := range sentences {
		st := estimateTokens(s.text)
		if tokens+st > c.chunkSize && len(cur) > 0 {
			chunks = append(chunks, c.emit(t, project, file, cur, index))
			index++
			cur = append(c.overlapTail(cur), s)
			tokens = 0
			for _, k := range cur {
				tokens += estimateTokens(k.text)
			}
		} else {
			cur = append(cur, s)
			tokens += st
		}
	}
	if len(cur) > 0 {
		chunks = append(chunks, c.emit(t, project, file, cur, index))
	}
	return chunks
}

// flatten renders each message as a small header block plus body and splits
// the result into sentences annotated with line numbers and message index.
func (c *Chunker) flatten(t *Thread) []sentence {
	var (
		out  []sentence
		line = 1
	)
	for i, msg := range t.Messages {
		var b strings.Builder
		fmt.Fprintf(&b, "From: %s [%s]\n", msg.From.Name, msg.From.Role)
		if len(msg.To) > 0 {
			fmt.Fprintf(&b, "To: %s\n", personList(msg.To))
		}
		if len(msg.Cc) > 0 {
			fmt.Fprintf(&b, "Cc: %s\n", personList(msg.Cc))
		}
		if !msg.Date.IsZero() {
			fmt.Fprintf(&b, "Date: %s\n", msg.Date.Format(dateLayout))
		}
		fmt.Fprintf(&b, "Subject: %s\n\n", msg.Subject)
		b.WriteString(msg.Body)
		b.WriteString("\n\n")

		block := b.String()
		out = append(out, splitWithLines(block, line, i)...)
		line += strings.Count(block, "\n")
	}
	return out
}

// splitWithLines splits a block on sentence terminators followed by
// whitespace, tracking the 1-based line of each sentence's start and end.
func splitWithLines(block string, baseLine, msgIdx int) []sentence {
	var (
		out       []sentence
		start     = -1
		startLine = baseLine
		line      = baseLine
	)
	runes := []rune(block)
	flush := func(end int) {
		if start < 0 {
			return
		}
		text := strings.TrimSpace(string(runes[start:end]))
		if text != "" {
			out = append(out, sentence{text: text, startLine: startLine, endLine: line, msg: msgIdx})
		}
		start = -1
	}
	for i, r := range runes {
		if r == '\n' {
			line++
		}
		if start < 0 && !isSpace(r) {
			start = i
			startLine = line
		}
		if r == '.' || r == '!' || r == '?' {
			next := i + 1
			if next >= len(runes) || isSpace(runes[next]) {
				flush(i + 1)
			}
		}
	}
	flush(len(runes))
	return out
}

func isSpace(r rune) bool {
	return r == ' ' || r == '\t' || r == '\n' || r == '\r'
}

// estimateTokens approximates token counts at four characters per token.
func estimateTokens(text string) int {
	return len(text) / 4
}

// overlapTail picks up to three trailing sentences within the overlap token
// budget to carry into the next chunk.
func (c *Chunker) overlapTail(cur []sentence) []sentence {
	if c.overlap <= 0 {
		return nil
	}
	var (
		tail   []sentence
		tokens int
	)
	for i := len(cur) - 1; i >= 0 && len(tail) < 3; i-- {
		st := estimateTokens(cur[i].text)
		if tokens+st > c.overlap && len(tail) > 0 {
			break
		}
		tail = append([]sentence{cur[i]}, tail...)
		tokens += st
	}
	return tail
}

func (c *Chunker) emit(t *Thread, project, file string, cur []sentence, index int) model.Chunk {
	parts := make([]string, len(cur))
	for i, s := range cur {
		parts[i] = s.text
	}
	text := strings.Join(parts, " ")
	digest := sha256.Sum256([]byte(text))

	last := cur[len(cur)-1]
	chunk := model.Chunk{
		ID:             fmt.Sprintf("%s_%d_%x", t.ID, index+1, digest[:8]),
		Text:           text,
		File:           file,
		LineStart:      cur[0].startLine,
		LineEnd:        last.endLine,
		ConversationID: Slug(t.CanonicalSubject),
		Project:        project,
		Timestamp:      t.Messages[last.msg].Date,
	}

	seen := make(map[string]bool)
	for _, s := range cur {
		from := t.Messages[s.msg].From
		key := from.Name + "|" + from.Role
		if !seen[key] {
			seen[key] = true
			chunk.Participants = append(chunk.Participants, model.Participant{Name: from.Name, Role: from.Role})
		}
	}
	return chunk
}

func personList(people []Person) string {
	names := make([]string, len(people))
	for i, p := range people {
		names[i] = p.Name
	}
	return strings.Join(names, ", ")
}
