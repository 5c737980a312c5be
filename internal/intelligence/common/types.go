// Package common holds the shared data model of the extraction layer:
// entities, relations, extraction sources, and the small logging and
// metrics interfaces every extraction package depends on.
package common

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Extraction sources
// ---------------------------------------------------------------------------

// Source identifies which extraction path produced an item. Downstream
// consumers use it for confidence weighting and filtering; it never
// participates in identity or deduplication keys.
type Source string

const (
	// SourceAnnotation marks items derived from the remote annotation service.
	SourceAnnotation Source = "annotation"
	// SourcePattern marks items derived from the regex pattern catalog.
	SourcePattern Source = "pattern"
)

// ---------------------------------------------------------------------------
// Entity
// ---------------------------------------------------------------------------

// Entity is a typed span of document text. Offsets are byte offsets into
// the text the entity was extracted from: chunk-local when emitted by an
// extractor, document-global after merging.
type Entity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type"`
	Start      int     `json:"start_char"`
	End        int     `json:"end_char"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
	Source     Source  `json:"source"`
}

// SpanValid reports whether the entity's span lies fully inside a text of
// the given length with a non-empty extent.
func (e *Entity) SpanValid(textLen int) bool {
	return e.Start >= 0 && e.Start < e.End && e.End <= textLen
}

// ---------------------------------------------------------------------------
// Relation
// ---------------------------------------------------------------------------

// Relation is a subject–predicate–object triple. Subject and object are
// references by text, not links into the entity set: an entity mentioned by
// a relation need not survive into the final entity list.
type Relation struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Type       string  `json:"relation_type,omitempty"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
	Source     Source  `json:"source"`
}

// ---------------------------------------------------------------------------
// Logger interface
// ---------------------------------------------------------------------------

// Logger defines a structured logging interface compatible with zap or others.
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Debug(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// noopLogger implements Logger and does nothing.
type noopLogger struct{}

func (n *noopLogger) Info(string, ...interface{})  {}
func (n *noopLogger) Warn(string, ...interface{})  {}
func (n *noopLogger) Debug(string, ...interface{}) {}
func (n *noopLogger) Error(string, ...interface{}) {}

// NewNoopLogger returns a Logger that discards all logs.
func NewNoopLogger() Logger {
	return &noopLogger{}
}

// ---------------------------------------------------------------------------
// Helper functions
// ---------------------------------------------------------------------------

// ContextWindow returns the slice of text surrounding [start, end) widened
// by window bytes on each side and clamped to the text bounds. The cut
// points are moved outward to the nearest rune boundary so the result is
// always valid UTF-8.
func ContextWindow(text string, start, end, window int) string {
	lo := start - window
	if lo < 0 {
		lo = 0
	}
	hi := end + window
	if hi > len(text) {
		hi = len(text)
	}
	if lo >= hi {
		return ""
	}
	for lo > 0 && !utf8.RuneStart(text[lo]) {
		lo--
	}
	for hi < len(text) && !utf8.RuneStart(text[hi]) {
		hi++
	}
	return text[lo:hi]
}
