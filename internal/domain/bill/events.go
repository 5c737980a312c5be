package bill

import (
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// DocumentIngestedEvent is recorded when a document enters the platform.
type DocumentIngestedEvent struct {
	common.BaseEvent
	SourceName  string `json:"source_name"`
	ContentHash string `json:"content_hash"`
	CharCount   int    `json:"char_count"`
	Version     int    `json:"version"`
}

func NewDocumentIngestedEvent(d *Document) *DocumentIngestedEvent {
	return &DocumentIngestedEvent{
		BaseEvent:   common.NewBaseEvent(string(d.ID)),
		SourceName:  d.SourceName,
		ContentHash: d.ContentHash,
		CharCount:   d.CharCount(),
		Version:     d.Version,
	}
}

// ExtractionRunQueuedEvent is recorded when a run is created.
type ExtractionRunQueuedEvent struct {
	common.BaseEvent
	DocumentID common.ID             `json:"document_id"`
	Mode       btypes.ExtractionMode `json:"mode"`
	Version    int                   `json:"version"`
}

func NewExtractionRunQueuedEvent(r *ExtractionRun) *ExtractionRunQueuedEvent {
	return &ExtractionRunQueuedEvent{
		BaseEvent:  common.NewBaseEvent(string(r.ID)),
		DocumentID: r.DocumentID,
		Mode:       r.Mode,
		Version:    r.Version,
	}
}

// ExtractionRunStartedEvent is recorded when the pipeline picks a run up.
type ExtractionRunStartedEvent struct {
	common.BaseEvent
	DocumentID common.ID             `json:"document_id"`
	Mode       btypes.ExtractionMode `json:"mode"`
	Version    int                   `json:"version"`
}

func NewExtractionRunStartedEvent(r *ExtractionRun) *ExtractionRunStartedEvent {
	return &ExtractionRunStartedEvent{
		BaseEvent:  common.NewBaseEvent(string(r.ID)),
		DocumentID: r.DocumentID,
		Mode:       r.Mode,
		Version:    r.Version,
	}
}

// ExtractionRunCompletedEvent is recorded when a run succeeds.
type ExtractionRunCompletedEvent struct {
	common.BaseEvent
	DocumentID     common.ID `json:"document_id"`
	TotalChunks    int       `json:"total_chunks"`
	FallbackChunks int       `json:"fallback_chunks"`
	EntityCount    int       `json:"entity_count"`
	RelationCount  int       `json:"relation_count"`
	Summary        string    `json:"summary"`
	Version        int       `json:"version"`
}

func NewExtractionRunCompletedEvent(r *ExtractionRun) *ExtractionRunCompletedEvent {
	return &ExtractionRunCompletedEvent{
		BaseEvent:      common.NewBaseEvent(string(r.ID)),
		DocumentID:     r.DocumentID,
		TotalChunks:    r.TotalChunks,
		FallbackChunks: r.FallbackChunks,
		EntityCount:    r.EntityCount,
		RelationCount:  r.RelationCount,
		Summary:        r.Summary,
		Version:        r.Version,
	}
}

// ExtractionRunFailedEvent is recorded when a run fails.
type ExtractionRunFailedEvent struct {
	common.BaseEvent
	DocumentID common.ID `json:"document_id"`
	Reason     string    `json:"reason"`
	Version    int       `json:"version"`
}

func NewExtractionRunFailedEvent(r *ExtractionRun) *ExtractionRunFailedEvent {
	return &ExtractionRunFailedEvent{
		BaseEvent:  common.NewBaseEvent(string(r.ID)),
		DocumentID: r.DocumentID,
		Reason:     r.FailureReason,
		Version:    r.Version,
	}
}
