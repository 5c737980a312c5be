// Package bill implements the legislative document bounded context for the
// LegisGraph platform: the Document and ExtractionRun aggregate roots, their
// lifecycle invariants, and the persistence contracts the infrastructure
// layer fulfils.  Business rules about documents and extraction runs live
// here; persistence, search, and graph export are adapter concerns.
package bill

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// Section value object
// ─────────────────────────────────────────────────────────────────────────────

// Section is one numbered "SECTION n." span of a segmented bill.
type Section struct {
	Number  int    `json:"number"`
	Content string `json:"content"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Document aggregate root
// ─────────────────────────────────────────────────────────────────────────────

// Document is the aggregate root for an ingested legislative document.  The
// raw text is immutable after construction; segmentation metadata (titles,
// sections) may be applied once the text has been analysed.
//
// Consumers must not modify fields directly; mutations go through the
// exported methods so invariants and domain events are maintained.
type Document struct {
	common.BaseEntity

	// SourceName identifies the bill, e.g. "HB767" or an upload filename.
	SourceName string `json:"source_name"`

	// Format records what the source content was before conversion.
	Format btypes.DocumentFormat `json:"format"`

	// RawText is the plain text the pipeline runs over.  For HTML sources
	// this is the converted text, not the markup.
	RawText string `json:"raw_text"`

	// ContentHash is the SHA-256 of RawText in lowercase hex.  Ingestion
	// uses it to detect re-uploads of unchanged documents.
	ContentHash string `json:"content_hash"`

	// Segmentation metadata, set by ApplySegmentation.
	Title       string    `json:"title,omitempty"`
	ReportTitle string    `json:"report_title,omitempty"`
	Description string    `json:"description,omitempty"`
	Sections    []Section `json:"sections,omitempty"`

	// charCount carries the persisted rune count for partially loaded
	// documents, such as listing rows fetched without their raw text.
	charCount int

	events []common.DomainEvent
}

// ─────────────────────────────────────────────────────────────────────────────
// Factory function
// ─────────────────────────────────────────────────────────────────────────────

// NewDocument creates a Document aggregate, enforcing construction
// invariants:
//   - sourceName must be non-empty.
//   - format must be a supported DocumentFormat.
//   - rawText must contain at least one non-whitespace character.
//
// The content hash is computed here and never recomputed; a DocumentIngested
// domain event is recorded on success.
func NewDocument(sourceName string, format btypes.DocumentFormat, rawText string) (*Document, error) {
	if sourceName == "" {
		return nil, errors.InvalidParam("document source name must not be empty")
	}
	if !format.IsValid() {
		return nil, errors.InvalidParam(
			fmt.Sprintf("unsupported document format: %q", format),
		)
	}
	if strings.TrimSpace(rawText) == "" {
		return nil, errors.New(errors.ErrCodeEmptyDocument,
			"document text is empty or whitespace only")
	}

	sum := sha256.Sum256([]byte(rawText))
	now := time.Now().UTC()
	d := &Document{
		BaseEntity: common.BaseEntity{
			ID:        common.NewID(),
			CreatedAt: now,
			UpdatedAt: now,
			Version:   1,
		},
		SourceName:  sourceName,
		Format:      format,
		RawText:     rawText,
		ContentHash: hex.EncodeToString(sum[:]),
	}

	d.recordEvent(NewDocumentIngestedEvent(d))
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Segmentation
// ─────────────────────────────────────────────────────────────────────────────

// ApplySegmentation records the titles and numbered sections recovered from
// the document text.  Passing empty values clears the corresponding field.
func (d *Document) ApplySegmentation(title, reportTitle, description string, sections []Section) {
	d.Title = title
	d.ReportTitle = reportTitle
	d.Description = description
	d.Sections = sections
	d.touch()
}

// CharCount returns the length of the raw text in runes.  When the raw text
// was not loaded it falls back to the persisted count.
func (d *Document) CharCount() int {
	if d.RawText == "" && d.charCount > 0 {
		return d.charCount
	}
	return utf8.RuneCountInString(d.RawText)
}

// ─────────────────────────────────────────────────────────────────────────────
// Domain event collection
// ─────────────────────────────────────────────────────────────────────────────

// Events returns the domain events accumulated since the last call and
// clears the internal buffer.  Application services publish these after the
// unit of work commits.
func (d *Document) Events() []common.DomainEvent {
	evts := d.events
	d.events = nil
	return evts
}

func (d *Document) recordEvent(evt common.DomainEvent) {
	d.events = append(d.events, evt)
}

// ─────────────────────────────────────────────────────────────────────────────
// DTO conversion
// ─────────────────────────────────────────────────────────────────────────────

// ToDTO converts the Document to its transport representation.  Callers
// serving listings should blank RawText before responding.
func (d *Document) ToDTO() btypes.DocumentDTO {
	dto := btypes.DocumentDTO{
		BaseEntity:  d.BaseEntity,
		SourceName:  d.SourceName,
		Title:       d.Title,
		ReportTitle: d.ReportTitle,
		Description: d.Description,
		Format:      d.Format,
		ContentHash: d.ContentHash,
		CharCount:   d.CharCount(),
		RawText:     d.RawText,
	}
	if len(d.Sections) > 0 {
		dto.Sections = make([]btypes.SectionDTO, len(d.Sections))
		for i, s := range d.Sections {
			dto.Sections[i] = btypes.SectionDTO{Number: s.Number, Content: s.Content}
		}
	}
	return dto
}

// DocumentFromDTO rehydrates a Document from its transport representation.
// Used by the repository layer; factory invariants are not re-checked and no
// events are emitted.
func DocumentFromDTO(dto btypes.DocumentDTO) *Document {
	d := &Document{
		BaseEntity:  dto.BaseEntity,
		SourceName:  dto.SourceName,
		Format:      dto.Format,
		RawText:     dto.RawText,
		ContentHash: dto.ContentHash,
		Title:       dto.Title,
		ReportTitle: dto.ReportTitle,
		Description: dto.Description,
		charCount:   dto.CharCount,
	}
	if len(dto.Sections) > 0 {
		d.Sections = make([]Section, len(dto.Sections))
		for i, s := range dto.Sections {
			d.Sections[i] = Section{Number: s.Number, Content: s.Content}
		}
	}
	return d
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// touch updates UpdatedAt and bumps the optimistic-lock Version.  It must be
// called at the end of every mutating method.
func (d *Document) touch() {
	d.UpdatedAt = time.Now().UTC()
	d.Version++
}
