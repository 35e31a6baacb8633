package ingest

import (
	"path/filepath"
	"strings"
)

// Format normalizes one export file shape into the plain-text form the
// thread parser understands.
type Format interface {
	// Name identifies the format in logs.
	Name() string

	// CanHandle checks whether this format applies to the given path.
	CanHandle(path string) bool

	// ToText converts raw export bytes to plain text.
	ToText(raw []byte) (string, error)
}

// FormatRegistry resolves the format for an export file, falling back to
// plain text.
type FormatRegistry struct {
	formats []Format
	generic Format
}

// NewFormatRegistry returns a registry with the built-in formats.
func NewFormatRegistry() *FormatRegistry {
	r := &FormatRegistry{generic: plainFormat{}}
	r.Register(htmlFormat{})
	return r
}

// Register adds a format ahead of the generic fallback.
func (r *FormatRegistry) Register(f Format) {
	r.formats = append(r.formats, f)
}

// Find returns the first format claiming the path, or the plain fallback.
func (r *FormatRegistry) Find(path string) Format {
	for _, f := range r.formats {
		if f.CanHandle(path) {
			return f
		}
	}
	return r.generic
}

type plainFormat struct{}

func (plainFormat) Name() string { return "plain" }

func (plainFormat) CanHandle(path string) bool {
	return strings.EqualFold(filepath.Ext(path), ".txt")
}

func (plainFormat) ToText(raw []byte) (string, error) {
	return string(raw), nil
}

type htmlFormat struct{}

func (htmlFormat) Name() string { return "html" }
func (htmlFormat) CanHandle(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".html" || ext == ".htm"
}
func (htmlFormat) ToText(raw []byte) (string, error) {
	return htmlToText(string(raw))
}
