// Package ingest turns raw project-communication exports into redacted,
// chunked corpus text. The path is parse, redact, chunk: PII never reaches
// the store or any prompt.
package ingest

import (
	"fmt"
	"path/filepath"

	"github.com/evidentlabs/beacon/internal/config"
	"github.com/evidentlabs/beacon/internal/logger"
	"github.com/evidentlabs/beacon/internal/model"
)

// Ingestor runs the ingestion path over a raw corpus tree.
type Ingestor struct {
	chunker *Chunker
	loader  *Loader
	formats *FormatRegistry
}

// Result summarizes one ingestion run.
type Result struct {
	Projects int
	Threads  int
	Messages int
	Chunks   int
	Skipped  int
}

// New builds an ingestor from chunking configuration.
func New(cfg config.Chunking) *Ingestor {
	return &Ingestor{
		chunker: NewChunker(cfg.ChunkSize, cfg.Overlap),
		loader:  NewLoader(DefaultMaxFileBytes),
		formats: NewFormatRegistry(),
	}
}

// Run parses every project under rawDir and returns the redacted chunks.
// Unparseable exports are skipped and counted, never fatal; an unreadable
// raw root is.
func (ing *Ingestor) Run(rawDir string) ([]model.Chunk, Result, error) {
	projects, err := ing.loader.Projects(rawDir)
	if err != nil {
		return nil, Result{}, err
	}
	if len(projects) == 0 {
		return nil, Result{}, fmt.Errorf("no project directories under %s", rawDir)
	}

	var (
		chunks []model.Chunk
		res    Result
	)
	res.Projects = len(projects)

	for _, project := range projects {
		projectDir := filepath.Join(rawDir, project)

		roster := Roster{byEmail: map[string]rosterEntry{}}
		if path := ing.loader.RosterPath(projectDir); path != "" {
			raw, err := ing.loader.ReadFile(path)
			if err != nil {
				logger.Warn("skipping roster for %s: %v", project, err)
			} else {
				roster = ParseRoster(string(raw))
			}
		}
		redactor := NewRedactor(roster)

		exports, err := ing.loader.Exports(projectDir)
		if err != nil {
			logger.Warn("skipping project %s: %v", project, err)
			res.Skipped++
			continue
		}

		for _, path := range exports {
			thread, err := ing.parseExport(path, roster, redactor)
			if err != nil {
				logger.Warn("skipping export %s: %v", path, err)
				res.Skipped++
				continue
			}
			rel, relErr := filepath.Rel(rawDir, path)
			if relErr != nil {
				rel = path
			}
			thread.File = filepath.ToSlash(rel)
			thread.Project = project

			cs := ing.chunker.ChunkThread(thread, project, thread.File)
			chunks = append(chunks, cs...)
			res.Threads++
			res.Messages += len(thread.Messages)
			res.Chunks += len(cs)
			logger.Debug("parsed %s: %d messages, %d chunks", thread.File, len(thread.Messages), len(cs))
		}
	}
	return chunks, res, nil
}

func (ing *Ingestor) parseExport(path string, roster Roster, redactor *Redactor) (*Thread, error) {
	raw, err := ing.loader.ReadFile(path)
	if err != nil {
		return nil, err
	}
	format := ing.formats.Find(path)
	text, err := format.ToText(raw)
	if err != nil {
		return nil, fmt.Errorf("%s format: %w", format.Name(), err)
	}
	thread, err := ParseThread(text, roster)
	if err != nil {
		return nil, err
	}
	redactor.RedactThread(thread, roster)
	return thread, nil
}
