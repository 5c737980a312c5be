package bill

import (
	"fmt"
	"time"

	"github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// State machine: allowed status transitions
// ─────────────────────────────────────────────────────────────────────────────

// allowedRunTransitions defines the valid next states reachable from each
// run status.  Transitions not listed are illegal.
//
//	Pending ──► Running ──► Succeeded
//	   │           │
//	   └───────────┴──► Failed
var allowedRunTransitions = map[btypes.RunStatus][]btypes.RunStatus{
	btypes.RunPending: {
		btypes.RunRunning,
		btypes.RunFailed,
	},
	btypes.RunRunning: {
		btypes.RunSucceeded,
		btypes.RunFailed,
	},
	// Terminal states: no outgoing transitions.
	btypes.RunSucceeded: {},
	btypes.RunFailed:    {},
}

// ─────────────────────────────────────────────────────────────────────────────
// Extracted result value objects
// ─────────────────────────────────────────────────────────────────────────────

// ExtractedEntity is one persisted entity of a run, with document-global
// offsets and the canonical surface form as its text.
type ExtractedEntity struct {
	Text       string  `json:"text"`
	Type       string  `json:"type,omitempty"`
	Start      int     `json:"start_char"`
	End        int     `json:"end_char"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
	Source     string  `json:"source"`
}

// ToDTO converts the entity to its transport representation.
func (e ExtractedEntity) ToDTO() btypes.EntityDTO {
	return btypes.EntityDTO{
		Text:       e.Text,
		Type:       e.Type,
		StartChar:  e.Start,
		EndChar:    e.End,
		Confidence: e.Confidence,
		Context:    e.Context,
		Source:     e.Source,
	}
}

// EntityFromDTO rehydrates an ExtractedEntity from its transport form.
func EntityFromDTO(dto btypes.EntityDTO) ExtractedEntity {
	return ExtractedEntity{
		Text:       dto.Text,
		Type:       dto.Type,
		Start:      dto.StartChar,
		End:        dto.EndChar,
		Confidence: dto.Confidence,
		Context:    dto.Context,
		Source:     dto.Source,
	}
}

// ExtractedRelation is one persisted (subject, predicate, object) triple of
// a run, subject and object already in canonical form.
type ExtractedRelation struct {
	Subject    string  `json:"subject"`
	Predicate  string  `json:"predicate"`
	Object     string  `json:"object"`
	Type       string  `json:"relation_type,omitempty"`
	Confidence float64 `json:"confidence"`
	Context    string  `json:"context,omitempty"`
	Source     string  `json:"source"`
}

// ToDTO converts the relation to its transport representation.
func (r ExtractedRelation) ToDTO() btypes.RelationDTO {
	return btypes.RelationDTO{
		Subject:    r.Subject,
		Predicate:  r.Predicate,
		Object:     r.Object,
		Type:       r.Type,
		Confidence: r.Confidence,
		Context:    r.Context,
		Source:     r.Source,
	}
}

// RelationFromDTO rehydrates an ExtractedRelation from its transport form.
func RelationFromDTO(dto btypes.RelationDTO) ExtractedRelation {
	return ExtractedRelation{
		Subject:    dto.Subject,
		Predicate:  dto.Predicate,
		Object:     dto.Object,
		Type:       dto.Type,
		Confidence: dto.Confidence,
		Context:    dto.Context,
		Source:     dto.Source,
	}
}

// ─────────────────────────────────────────────────────────────────────────────
// ExtractionRun aggregate root
// ─────────────────────────────────────────────────────────────────────────────

// ExtractionRun is the aggregate root for one execution of the extraction
// pipeline over a document.  Its status follows the state machine above;
// chunk and result accounting is only populated once the run completes.
type ExtractionRun struct {
	common.BaseEntity

	DocumentID common.ID             `json:"document_id"`
	Mode       btypes.ExtractionMode `json:"mode"`
	Status     btypes.RunStatus      `json:"status"`

	// Accounting, populated by Complete.
	TotalChunks     int     `json:"total_chunks"`
	FallbackChunks  int     `json:"fallback_chunks"`
	EntityCount     int     `json:"entity_count"`
	RelationCount   int     `json:"relation_count"`
	DroppedEntities int     `json:"dropped_entities"`
	Summary         string  `json:"summary,omitempty"`
	DurationMs      float64 `json:"duration_ms"`

	// FailureReason is set by Fail.
	FailureReason string `json:"failure_reason,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	events []common.DomainEvent
}

// CompletionStats carries the accounting of a finished pipeline run into
// Complete.
type CompletionStats struct {
	TotalChunks     int
	FallbackChunks  int
	EntityCount     int
	RelationCount   int
	DroppedEntities int
	Summary         string
	DurationMs      float64
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory function
// ─────────────────────────────────────────────────────────────────────────────

// NewExtractionRun creates a pending run for the given document, enforcing
// that the document ID is well formed and the mode is supported.  An
// ExtractionRunQueued domain event is recorded on success.
func NewExtractionRun(documentID common.ID, mode btypes.ExtractionMode) (*ExtractionRun, error) {
	if err := documentID.Validate(); err != nil {
		return nil, errors.InvalidParam(
			fmt.Sprintf("invalid document ID for extraction run: %v", err),
		)
	}
	if !mode.IsValid() {
		return nil, errors.New(errors.ErrCodeInvalidMode,
			fmt.Sprintf("unsupported extraction mode: %q", mode),
		)
	}

	now := time.Now().UTC()
	r := &ExtractionRun{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		DocumentID: documentID,
		Mode:       mode,
		Status:     btypes.RunPending,
	}

	r.recordEvent(NewExtractionRunQueuedEvent(r))
	return r, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Status lifecycle
// ─────────────────────────────────────────────────────────────────────────────

// Start transitions the run from pending to running and stamps StartedAt.
func (r *ExtractionRun) Start() error {
	if err := r.transitionTo(btypes.RunRunning); err != nil {
		return err
	}
	now := time.Now().UTC()
	r.StartedAt = &now
	r.touch()
	r.recordEvent(NewExtractionRunStartedEvent(r))
	return nil
}

// Complete transitions the run from running to succeeded and records the
// pipeline accounting.
func (r *ExtractionRun) Complete(stats CompletionStats) error {
	if err := r.transitionTo(btypes.RunSucceeded); err != nil {
		return err
	}
	r.TotalChunks = stats.TotalChunks
	r.FallbackChunks = stats.FallbackChunks
	r.EntityCount = stats.EntityCount
	r.RelationCount = stats.RelationCount
	r.DroppedEntities = stats.DroppedEntities
	r.Summary = stats.Summary
	r.DurationMs = stats.DurationMs
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.touch()
	r.recordEvent(NewExtractionRunCompletedEvent(r))
	return nil
}

// Fail transitions the run to failed from either pending or running and
// records the reason.
func (r *ExtractionRun) Fail(reason string) error {
	if err := r.transitionTo(btypes.RunFailed); err != nil {
		return err
	}
	r.FailureReason = reason
	now := time.Now().UTC()
	r.CompletedAt = &now
	r.touch()
	r.recordEvent(NewExtractionRunFailedEvent(r))
	return nil
}

// transitionTo enforces the state machine defined by allowedRunTransitions.
func (r *ExtractionRun) transitionTo(next btypes.RunStatus) error {
	allowed, ok := allowedRunTransitions[r.Status]
	if !ok {
		return errors.New(errors.CodeInvalidParam,
			fmt.Sprintf("unknown current status %q for run %s", r.Status, r.ID),
		)
	}
	for _, s := range allowed {
		if s == next {
			r.Status = next
			return nil
		}
	}
	return errors.New(errors.CodeInvalidParam,
		fmt.Sprintf("illegal run status transition %q to %q for run %s",
			r.Status, next, r.ID),
	)
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain event collection
// ─────────────────────────────────────────────────────────────────────────────

// Events returns the domain events accumulated since the last call and
// clears the internal buffer.
func (r *ExtractionRun) Events() []common.DomainEvent {
	evts := r.events
	r.events = nil
	return evts
}

func (r *ExtractionRun) recordEvent(evt common.DomainEvent) {
	r.events = append(r.events, evt)
}

// ─────────────────────────────────────────────────────────────────────────────
// DTO conversion
// ─────────────────────────────────────────────────────────────────────────────

// ToDTO converts the ExtractionRun to its transport representation.
func (r *ExtractionRun) ToDTO() btypes.ExtractionRunDTO {
	return btypes.ExtractionRunDTO{
		BaseEntity:      r.BaseEntity,
		DocumentID:      r.DocumentID,
		Mode:            r.Mode,
		Status:          r.Status,
		TotalChunks:     r.TotalChunks,
		FallbackChunks:  r.FallbackChunks,
		EntityCount:     r.EntityCount,
		RelationCount:   r.RelationCount,
		DroppedEntities: r.DroppedEntities,
		Summary:         r.Summary,
		FailureReason:   r.FailureReason,
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
		DurationMs:      r.DurationMs,
	}
}

// RunFromDTO rehydrates an ExtractionRun from its transport representation.
// Used by the repository layer; no events are emitted.
func RunFromDTO(dto btypes.ExtractionRunDTO) *ExtractionRun {
	return &ExtractionRun{
		BaseEntity:      dto.BaseEntity,
		DocumentID:      dto.DocumentID,
		Mode:            dto.Mode,
		Status:          dto.Status,
		TotalChunks:     dto.TotalChunks,
		FallbackChunks:  dto.FallbackChunks,
		EntityCount:     dto.EntityCount,
		RelationCount:   dto.RelationCount,
		DroppedEntities: dto.DroppedEntities,
		Summary:         dto.Summary,
		FailureReason:   dto.FailureReason,
		StartedAt:       dto.StartedAt,
		CompletedAt:     dto.CompletedAt,
		DurationMs:      dto.DurationMs,
	}
}

// touch updates UpdatedAt and bumps the optimistic-lock Version.
func (r *ExtractionRun) touch() {
	r.UpdatedAt = time.Now().UTC()
	r.Version++
}
