// Package annotate talks to a CoreNLP-compatible annotation server and
// turns its response into chunk-local entities and relations. The remote
// service is an external collaborator: only its request/response contract
// is modeled here, and any deviation from that contract is surfaced as a
// typed error so the caller can fall back to pattern extraction.
package annotate

import (
	"unicode/utf8"
)

// ---------------------------------------------------------------------------
// Response model
// ---------------------------------------------------------------------------

// Response is the document-level annotation payload.
type Response struct {
	Sentences []Sentence `json:"sentences"`
}

// Sentence holds one sentence's tokens and dependency parses. Servers
// differ in which dependency representations they emit, so all known
// variants are modeled and Deps picks the richest one present.
type Sentence struct {
	Index                        int          `json:"index"`
	Tokens                       []Token      `json:"tokens"`
	EnhancedPlusPlusDependencies []Dependency `json:"enhancedPlusPlusDependencies"`
	Dependencies                 []Dependency `json:"dependencies"`
	BasicDependencies            []Dependency `json:"basicDependencies"`
}

// Deps returns the preferred dependency list for the sentence: enhanced++
// when present, then the legacy "dependencies" key, then basic.
func (s *Sentence) Deps() []Dependency {
	if len(s.EnhancedPlusPlusDependencies) > 0 {
		return s.EnhancedPlusPlusDependencies
	}
	if len(s.Dependencies) > 0 {
		return s.Dependencies
	}
	return s.BasicDependencies
}

// Token is one token with its annotations. Character offsets are pointers
// so a response that omits them is distinguishable from offset zero and
// can be rejected as malformed. The server counts offsets in code points.
type Token struct {
	Index                int    `json:"index"`
	Word                 string `json:"word"`
	OriginalText         string `json:"originalText,omitempty"`
	Lemma                string `json:"lemma,omitempty"`
	POS                  string `json:"pos,omitempty"`
	NER                  string `json:"ner,omitempty"`
	CharacterOffsetBegin *int   `json:"characterOffsetBegin"`
	CharacterOffsetEnd   *int   `json:"characterOffsetEnd"`
}

// Dependency is one edge of a dependency parse. Governor and Dependent
// are 1-based token indices; 0 marks the artificial root governor.
type Dependency struct {
	Dep            string `json:"dep"`
	Governor       int    `json:"governor"`
	GovernorGloss  string `json:"governorGloss"`
	Dependent      int    `json:"dependent"`
	DependentGloss string `json:"dependentGloss"`
}

// ---------------------------------------------------------------------------
// Offset mapping
// ---------------------------------------------------------------------------

// offsetMapper converts the server's code-point offsets into byte offsets
// for the chunk the annotation was requested on. ASCII chunks take an
// identity fast path.
type offsetMapper struct {
	byteOf    []int // nil when code points and bytes coincide
	runeCount int
	byteLen   int
}

func newOffsetMapper(text string) *offsetMapper {
	runeCount := utf8.RuneCountInString(text)
	if runeCount == len(text) {
		return &offsetMapper{runeCount: runeCount, byteLen: len(text)}
	}
	byteOf := make([]int, 0, runeCount+1)
	for i := range text {
		byteOf = append(byteOf, i)
	}
	byteOf = append(byteOf, len(text))
	return &offsetMapper{byteOf: byteOf, runeCount: runeCount, byteLen: len(text)}
}

// byteOffset maps a code-point offset to a byte offset. The second return
// is false when the offset lies outside the chunk.
func (m *offsetMapper) byteOffset(codePoint int) (int, bool) {
	if codePoint < 0 || codePoint > m.runeCount {
		return 0, false
	}
	if m.byteOf == nil {
		return codePoint, true
	}
	return m.byteOf[codePoint], true
}
