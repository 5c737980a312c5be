// Package textproc prepares raw bill text for extraction: HTML-to-text
// conversion, section segmentation, and sentence-respecting chunking.
package textproc

import (
	"unicode"
	"unicode/utf8"

	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

// ---------------------------------------------------------------------------
// Interfaces
// ---------------------------------------------------------------------------

// Chunker splits a document into extraction-sized pieces on sentence
// boundaries. Splitting never fails: any input, including one with no
// sentence terminators at all, yields a valid (possibly empty) sequence.
type Chunker interface {
	Split(document string) []Chunk
}

// ---------------------------------------------------------------------------
// Data structures
// ---------------------------------------------------------------------------

// Chunk is a verbatim slice of the source document. Text equals
// document[Start:Start+len(Text)], so chunk-local offsets shift back to
// document offsets by adding Start. Whitespace between chunks belongs to
// no chunk; concatenating chunks with that original separating text
// reconstructs the document.
type Chunk struct {
	Text  string `json:"text"`
	Start int    `json:"start"`
}

// ChunkerConfig holds configuration for the chunker.
type ChunkerConfig struct {
	MaxChunkChars int `json:"max_chunk_chars" yaml:"max_chunk_chars"`
}

// DefaultMaxChunkChars bounds a chunk at roughly a paragraph of
// legislative prose, small enough for a single annotation request.
const DefaultMaxChunkChars = 2000

// DefaultChunkerConfig returns a sensible default configuration.
func DefaultChunkerConfig() *ChunkerConfig {
	return &ChunkerConfig{
		MaxChunkChars: DefaultMaxChunkChars,
	}
}

// Validate checks the configuration for consistency.
func (c *ChunkerConfig) Validate() error {
	if c.MaxChunkChars <= 0 {
		return errors.Validation("max_chunk_chars must be positive")
	}
	return nil
}

// ---------------------------------------------------------------------------
// chunkerImpl
// ---------------------------------------------------------------------------

type chunkerImpl struct {
	config *ChunkerConfig
	logger common.Logger
}

// NewChunker creates a sentence-respecting chunker.
func NewChunker(config *ChunkerConfig, logger common.Logger) (Chunker, error) {
	if config == nil {
		config = DefaultChunkerConfig()
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &chunkerImpl{config: config, logger: logger}, nil
}

// Split accumulates whole sentences greedily until adding the next one
// would push the chunk past MaxChunkChars, then starts a new chunk. A
// single sentence longer than the limit is emitted whole as its own
// chunk rather than cut mid-sentence.
func (c *chunkerImpl) Split(document string) []Chunk {
	chunks := []Chunk{}
	sentences := sentenceSpans(document)
	if len(sentences) == 0 {
		return chunks
	}

	cur := sentences[0]
	curChars := utf8.RuneCountInString(document[cur.start:cur.end])
	for _, s := range sentences[1:] {
		// Growth includes the separating whitespace the chunk absorbs.
		grown := utf8.RuneCountInString(document[cur.end:s.end])
		if curChars+grown > c.config.MaxChunkChars {
			chunks = append(chunks, Chunk{Text: document[cur.start:cur.end], Start: cur.start})
			cur = s
			curChars = utf8.RuneCountInString(document[s.start:s.end])
			continue
		}
		cur.end = s.end
		curChars += grown
	}
	chunks = append(chunks, Chunk{Text: document[cur.start:cur.end], Start: cur.start})

	c.logger.Debug("document chunked",
		"document_chars", utf8.RuneCountInString(document),
		"sentences", len(sentences),
		"chunks", len(chunks),
	)
	return chunks
}

// ---------------------------------------------------------------------------
// Sentence scanning
// ---------------------------------------------------------------------------

// span is a half-open byte range into the document.
type span struct {
	start int
	end   int
}

// sentenceSpans locates sentence boundaries: a run of terminator
// characters ([.!?]+) followed by whitespace or end of text closes a
// sentence. Text with no terminator at all is a single sentence.
func sentenceSpans(document string) []span {
	var spans []span
	n := len(document)
	i := 0
	for i < n {
		r, size := utf8.DecodeRuneInString(document[i:])
		if unicode.IsSpace(r) {
			i += size
			continue
		}
		end := scanSentenceEnd(document, i)
		spans = append(spans, span{start: i, end: end})
		i = end
	}
	return spans
}

// scanSentenceEnd returns the byte offset just past the sentence starting
// at start. A terminator run mid-token (as in "3-1.5") does not close the
// sentence; only one followed by whitespace or end of text does. When the
// text runs out unterminated the sentence ends at its last non-space byte.
func scanSentenceEnd(document string, start int) int {
	n := len(document)
	i := start
	for i < n {
		r, size := utf8.DecodeRuneInString(document[i:])
		if !isSentenceTerminator(r) {
			i += size
			continue
		}
		j := i + size
		for j < n {
			r2, s2 := utf8.DecodeRuneInString(document[j:])
			if !isSentenceTerminator(r2) {
				break
			}
			j += s2
		}
		if j >= n {
			return j
		}
		if r2, _ := utf8.DecodeRuneInString(document[j:]); unicode.IsSpace(r2) {
			return j
		}
		i = j
	}

	end := n
	for end > start {
		r, size := utf8.DecodeLastRuneInString(document[start:end])
		if !unicode.IsSpace(r) {
			break
		}
		end -= size
	}
	return end
}

func isSentenceTerminator(r rune) bool {
	return r == '.' || r == '!' || r == '?'
}

var _ Chunker = (*chunkerImpl)(nil)
