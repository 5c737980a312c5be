// Package merge folds chunk-local extraction output back into document
// coordinates. Entity spans are shifted by their chunk's start offset;
// anything that cannot be placed cleanly inside the document is dropped,
// never clamped, so every surviving span satisfies
// 0 <= start < end <= len(document).
package merge

import (
	"github.com/turtacn/LegisGraph/internal/intelligence/common"
	"github.com/turtacn/LegisGraph/pkg/errors"
)

// ChunkResult is one chunk's extraction output, still in chunk-local
// coordinates. Start and Text identify the chunk's position in the
// document; Text must be the verbatim document slice at Start.
type ChunkResult struct {
	Start     int
	Text      string
	Entities  []common.Entity
	Relations []common.Relation
}

// Result is the document-level view after merging. DroppedEntities counts
// spans discarded for lying outside their chunk.
type Result struct {
	Entities        []common.Entity
	Relations       []common.Relation
	DroppedEntities int
}

// Merger assembles per-chunk results into one document-level result.
// Output order follows the input: chunk by chunk, preserving each chunk's
// own emission order, so merging is deterministic.
type Merger interface {
	Merge(document string, chunks []ChunkResult) (*Result, error)
}

type mergerImpl struct {
	logger common.Logger
}

var _ Merger = (*mergerImpl)(nil)

func NewMerger(logger common.Logger) Merger {
	if logger == nil {
		logger = common.NewNoopLogger()
	}
	return &mergerImpl{logger: logger}
}

// Merge validates each chunk's placement, shifts entity spans into document
// coordinates, and passes relations through untouched. A chunk whose text
// does not sit at its claimed offset is a caller bug and fails the whole
// merge; an entity span outside its chunk is dropped and counted.
func (m *mergerImpl) Merge(document string, chunks []ChunkResult) (*Result, error) {
	out := &Result{Entities: []common.Entity{}, Relations: []common.Relation{}}

	for i, c := range chunks {
		if c.Start < 0 || c.Start+len(c.Text) > len(document) || document[c.Start:c.Start+len(c.Text)] != c.Text {
			return nil, errors.Newf(errors.ErrCodeOffsetInvariant,
				"chunk %d at offset %d is not a slice of the document", i, c.Start)
		}

		for _, e := range c.Entities {
			if !e.SpanValid(len(c.Text)) {
				out.DroppedEntities++
				m.logger.Warn("dropping entity with span outside its chunk",
					"chunk_index", i,
					"chunk_start", c.Start,
					"start_char", e.Start,
					"end_char", e.End,
					"text", e.Text)
				continue
			}
			e.Start += c.Start
			e.End += c.Start
			out.Entities = append(out.Entities, e)
		}
		out.Relations = append(out.Relations, c.Relations...)
	}

	m.logger.Debug("chunk results merged",
		"chunks", len(chunks),
		"entities", len(out.Entities),
		"relations", len(out.Relations),
		"dropped_entities", out.DroppedEntities)
	return out, nil
}
