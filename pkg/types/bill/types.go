// Package bill defines the transport types of the LegisGraph platform:
// document and extraction-run DTOs, request/response shapes for the HTTP
// API and CLI, and the message bodies carried on the extraction topics.
package bill

import (
	"fmt"
	"time"

	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ExtractionMode selects how the pipeline obtains entities and relations.
type ExtractionMode string

const (
	// ModeRemoteFirst annotates each chunk remotely and falls back to
	// pattern extraction for chunks the remote service cannot serve.
	ModeRemoteFirst ExtractionMode = "remote_first"

	// ModePatternOnly never contacts the remote service.
	ModePatternOnly ExtractionMode = "pattern_only"
)

// IsValid checks if the ExtractionMode is supported.
func (m ExtractionMode) IsValid() bool {
	switch m {
	case ModeRemoteFirst, ModePatternOnly:
		return true
	default:
		return false
	}
}

// RunStatus represents the lifecycle stage of an extraction run.
type RunStatus string

const (
	RunPending   RunStatus = "pending"
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
)

// IsValid checks if the RunStatus is valid.
func (s RunStatus) IsValid() bool {
	switch s {
	case RunPending, RunRunning, RunSucceeded, RunFailed:
		return true
	default:
		return false
	}
}

// IsTerminal reports whether the run can no longer change state.
func (s RunStatus) IsTerminal() bool {
	return s == RunSucceeded || s == RunFailed
}

// DocumentFormat identifies the format of ingested source content.
type DocumentFormat string

const (
	FormatHTML DocumentFormat = "html"
	FormatText DocumentFormat = "text"
)

// IsValid checks if the DocumentFormat is supported.
func (f DocumentFormat) IsValid() bool {
	switch f {
	case FormatHTML, FormatText:
		return true
	default:
		return false
	}
}

// SectionDTO is one numbered section of a segmented bill.
type SectionDTO struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// DocumentDTO is the transport representation of an ingested document.
// RawText is omitted from listings and only populated on direct fetches.
type DocumentDTO struct {
	common.BaseEntity
	SourceName  string         `json:"source_name"`
	Title       string         `json:"title,omitempty"`
	ReportTitle string         `json:"report_title,omitempty"`
	Description string         `json:"description,omitempty"`
	Format      DocumentFormat `json:"format"`
	ContentHash string         `json:"content_hash"`
	CharCount   int            `json:"char_count"`
	Sections    []SectionDTO   `json:"sections,omitempty"`
	RawText     string         `json:"raw_text,omitempty"`
}

// EntityDTO is one extracted entity with document-global offsets. Field
// names follow the extraction output wire format.
type EntityDTO struct {
	Text       string  `json:"text"`
	Type       string  `json:"type,omitempty"`
	StartChar  int     `json:"start_char"`
	EndChar    int     `json:"end_char"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
	Source     string  `json:"source"`
}

// RelationDTO is one extracted (subject, predicate, object) triple.
type RelationDTO struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Type       string  `json:"relation_type,omitempty"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
	Source     string  `json:"source"`
}

// ExtractionRunDTO is the transport representation of an extraction run.
type ExtractionRunDTO struct {
	common.BaseEntity
	DocumentID      common.ID      `json:"document_id"`
	Mode            ExtractionMode `json:"mode"`
	Status          RunStatus      `json:"status"`
	TotalChunks     int            `json:"total_chunks"`
	FallbackChunks  int            `json:"fallback_chunks"`
	EntityCount     int            `json:"entity_count"`
	RelationCount   int            `json:"relation_count"`
	DroppedEntities int            `json:"dropped_entities"`
	Summary         string         `json:"summary,omitempty"`
	FailureReason   string         `json:"failure_reason,omitempty"`
	StartedAt       *time.Time     `json:"started_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	DurationMs      float64        `json:"duration_ms"`
}

// ExtractionResultDTO bundles a run with its extracted graph fragment.
type ExtractionResultDTO struct {
	Run       ExtractionRunDTO `json:"run"`
	Entities  []EntityDTO      `json:"entities"`
	Relations []RelationDTO    `json:"relations"`
}

// GraphStatsDTO summarizes the exported knowledge graph.
type GraphStatsDTO struct {
	NodeCount    int64            `json:"node_count"`
	EdgeCount    int64            `json:"edge_count"`
	NodesByLabel map[string]int64 `json:"nodes_by_label,omitempty"`
	EdgesByType  map[string]int64 `json:"edges_by_type,omitempty"`
}

// IngestRequest carries a document into the platform.
type IngestRequest struct {
	SourceName string         `json:"source_name"`
	Format     DocumentFormat `json:"format"`
	Content    string         `json:"content"`
}

// Validate checks the request for completeness.
func (r IngestRequest) Validate() error {
	if r.SourceName == "" {
		return fmt.Errorf("source_name is required")
	}
	if !r.Format.IsValid() {
		return fmt.Errorf("format must be one of %q, %q", FormatHTML, FormatText)
	}
	if r.Content == "" {
		return fmt.Errorf("content is required")
	}
	return nil
}

// ExtractRequest submits an extraction run for an ingested document.
type ExtractRequest struct {
	DocumentID common.ID      `json:"document_id"`
	Mode       ExtractionMode `json:"mode"`
	Async      bool           `json:"async,omitempty"`
}

// Validate checks the request for completeness.
func (r ExtractRequest) Validate() error {
	if err := r.DocumentID.Validate(); err != nil {
		return fmt.Errorf("document_id: %w", err)
	}
	if !r.Mode.IsValid() {
		return fmt.Errorf("mode must be one of %q, %q", ModeRemoteFirst, ModePatternOnly)
	}
	return nil
}

// EntitySearchRequest queries indexed entities.
type EntitySearchRequest struct {
	Query         string            `json:"query"`
	Types         []string          `json:"types,omitempty"`
	MinConfidence float64           `json:"min_confidence,omitempty"`
	DocumentID    common.ID         `json:"document_id,omitempty"`
	Pagination    common.Pagination `json:"pagination"`
}

// Validate checks the request for completeness.
func (r EntitySearchRequest) Validate() error {
	if r.Query == "" {
		return fmt.Errorf("query is required")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0, 1]")
	}
	return nil
}

// RelationSearchRequest queries indexed relations.
type RelationSearchRequest struct {
	Query         string            `json:"query"`
	Predicate     string            `json:"predicate,omitempty"`
	MinConfidence float64           `json:"min_confidence,omitempty"`
	DocumentID    common.ID         `json:"document_id,omitempty"`
	Pagination    common.Pagination `json:"pagination"`
}

// Validate checks the request for completeness.
func (r RelationSearchRequest) Validate() error {
	if r.Query == "" && r.Predicate == "" {
		return fmt.Errorf("query or predicate is required")
	}
	if r.MinConfidence < 0 || r.MinConfidence > 1 {
		return fmt.Errorf("min_confidence must be within [0, 1]")
	}
	return nil
}

// ExtractionJobMessage is the body published to the extraction jobs topic.
type ExtractionJobMessage struct {
	RunID      common.ID      `json:"run_id"`
	DocumentID common.ID      `json:"document_id"`
	Mode       ExtractionMode `json:"mode"`
	EnqueuedAt time.Time      `json:"enqueued_at"`
}

// Validate checks the message for completeness.
func (m ExtractionJobMessage) Validate() error {
	if err := m.RunID.Validate(); err != nil {
		return fmt.Errorf("run_id: %w", err)
	}
	if err := m.DocumentID.Validate(); err != nil {
		return fmt.Errorf("document_id: %w", err)
	}
	if !m.Mode.IsValid() {
		return fmt.Errorf("mode %q is not supported", m.Mode)
	}
	return nil
}

// ExtractionCompletedMessage is the body published to the completion topic.
type ExtractionCompletedMessage struct {
	RunID       common.ID `json:"run_id"`
	DocumentID  common.ID `json:"document_id"`
	Status      RunStatus `json:"status"`
	Summary     string    `json:"summary,omitempty"`
	Error       string    `json:"error,omitempty"`
	CompletedAt time.Time `json:"completed_at"`
}
