package ingest

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
)

// DefaultMaxFileBytes caps how much of a single export is read. Oversized
// exports are truncated at the cap rather than failing the run.
const DefaultMaxFileBytes = 10 * 1024 * 1024

// Loader reads raw corpus trees: one subdirectory per project, each holding
// a roster file and email exports.
type Loader struct {
	maxBytes int64
}

// NewLoader creates a loader with a per-file read cap.
func NewLoader(maxBytes int64) *Loader {
	if maxBytes <= 0 {
		maxBytes = DefaultMaxFileBytes
	}
	return &Loader{maxBytes: maxBytes}
}

// ReadFile reads up to the configured cap from path.
func (l *Loader) ReadFile(path string) ([]byte, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", path, err)
	}
	defer f.Close()

	data, err := io.ReadAll(io.LimitReader(f, l.maxBytes))
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return data, nil
}

// Projects lists the project subdirectories of rawDir in sorted order.
func (l *Loader) Projects(rawDir string) ([]string, error) {
	entries, err := os.ReadDir(rawDir)
	if err != nil {
		return nil, fmt.Errorf("read raw dir %s: %w", rawDir, err)
	}
	var projects []string
	for _, e := range entries {
		if e.IsDir() {
			projects = append(projects, e.Name())
		}
	}
	sort.Strings(projects)
	return projects, nil
}

// Exports lists the export files of one project directory in sorted order,
// skipping the roster.
func (l *Loader) Exports(projectDir string) ([]string, error) {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return nil, fmt.Errorf("read project dir %s: %w", projectDir, err)
	}
	var files []string
	for _, e := range entries {
		if e.IsDir() || isRosterFile(e.Name()) {
			continue
		}
		switch strings.ToLower(filepath.Ext(e.Name())) {
		case ".txt", ".html", ".htm":
			files = append(files, filepath.Join(projectDir, e.Name()))
		}
	}
	sort.Strings(files)
	return files, nil
}

// RosterPath returns the project's roster file path, or "" when absent.
func (l *Loader) RosterPath(projectDir string) string {
	entries, err := os.ReadDir(projectDir)
	if err != nil {
		return ""
	}
	for _, e := range entries {
		if !e.IsDir() && isRosterFile(e.Name()) {
			return filepath.Join(projectDir, e.Name())
		}
	}
	return ""
}

func isRosterFile(name string) bool {
	return strings.EqualFold(name, "colleagues.txt")
}
