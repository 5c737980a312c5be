// Package repositories provides the PostgreSQL-backed implementations of the
// bill domain's repository interfaces.
package repositories

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// DocumentRepository
// ─────────────────────────────────────────────────────────────────────────────

// DocumentRepository is the PostgreSQL implementation of the bill domain's
// DocumentRepository interface.  Every public method accepts a
// context.Context for cancellation propagation and uses parameterised
// queries exclusively.
type DocumentRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewDocumentRepository constructs a ready-to-use DocumentRepository.
func NewDocumentRepository(pool *pgxpool.Pool, logger Logger) *DocumentRepository {
	return &DocumentRepository{pool: pool, logger: logger}
}

var _ bill.DocumentRepository = (*DocumentRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create persists a new Document aggregate.  A document whose content hash is
// already stored is rejected so ingestion can dedupe unchanged re-uploads.
func (r *DocumentRepository) Create(ctx context.Context, d *bill.Document) error {
	r.logger.Debug("DocumentRepository.Create", "document_id", d.ID, "source_name", d.SourceName)

	dto := d.ToDTO()
	sections := dto.Sections
	if sections == nil {
		sections = []btypes.SectionDTO{}
	}
	sectionsJSON, _ := json.Marshal(sections)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO documents (
			id, source_name, format, title, report_title, description,
			content_hash, char_count, raw_text, sections,
			created_at, updated_at, version
		) VALUES (
			$1,$2,$3,$4,$5,$6,
			$7,$8,$9,$10,
			$11,$12,$13
		)`,
		string(d.ID), d.SourceName, string(d.Format), d.Title, d.ReportTitle, d.Description,
		d.ContentHash, dto.CharCount, d.RawText, sectionsJSON,
		d.CreatedAt, d.UpdatedAt, d.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return appErrors.New(appErrors.ErrCodeDocumentExists, "document with identical content already ingested").
				WithDetail(fmt.Sprintf("content_hash=%s", d.ContentHash))
		}
		r.logger.Error("DocumentRepository.Create: insert", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert document")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID
// ─────────────────────────────────────────────────────────────────────────────

// GetByID loads a complete Document aggregate, raw text included.
func (r *DocumentRepository) GetByID(ctx context.Context, id common.ID) (*bill.Document, error) {
	r.logger.Debug("DocumentRepository.GetByID", "id", id)

	d, err := r.scanDocument(r.pool.QueryRow(ctx, `
		SELECT id, source_name, format, title, report_title, description,
		       content_hash, char_count, raw_text, sections,
		       created_at, updated_at, version
		FROM documents WHERE id = $1`, string(id)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.ErrCodeDocumentNotFound, "document not found").
				WithDetail(fmt.Sprintf("id=%s", id))
		}
		r.logger.Error("DocumentRepository.GetByID", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to load document")
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByContentHash
// ─────────────────────────────────────────────────────────────────────────────

// GetByContentHash locates a document by the SHA-256 of its raw text.
func (r *DocumentRepository) GetByContentHash(ctx context.Context, hash string) (*bill.Document, error) {
	r.logger.Debug("DocumentRepository.GetByContentHash", "content_hash", hash)

	d, err := r.scanDocument(r.pool.QueryRow(ctx, `
		SELECT id, source_name, format, title, report_title, description,
		       content_hash, char_count, raw_text, sections,
		       created_at, updated_at, version
		FROM documents WHERE content_hash = $1`, hash))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.ErrCodeDocumentNotFound, "document not found").
				WithDetail(fmt.Sprintf("content_hash=%s", hash))
		}
		r.logger.Error("DocumentRepository.GetByContentHash", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to load document")
	}
	return d, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns a page of documents, newest first, plus the total number of
// rows matching the filter.  Raw text is not loaded; CharCount still reports
// the persisted count.
func (r *DocumentRepository) List(ctx context.Context, filter bill.DocumentFilter) ([]*bill.Document, int64, error) {
	r.logger.Debug("DocumentRepository.List",
		"source_name", filter.SourceName, "limit", filter.Limit, "offset", filter.Offset)

	var (
		conditions []string
		args       []interface{}
		argIdx     int
	)
	nextArg := func(v interface{}) string {
		argIdx++
		args = append(args, v)
		return fmt.Sprintf("$%d", argIdx)
	}

	if filter.SourceName != "" {
		ph := nextArg(filter.SourceName)
		conditions = append(conditions, fmt.Sprintf("source_name = %s", ph))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM documents %s", whereClause)
	var total int64
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		r.logger.Error("DocumentRepository.List: count", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count documents")
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	phLimit := nextArg(limit)
	phOffset := nextArg(offset)

	dataSQL := fmt.Sprintf(`
		SELECT id, source_name, format, title, report_title, description,
		       content_hash, char_count, ''::TEXT AS raw_text, sections,
		       created_at, updated_at, version
		FROM documents %s
		ORDER BY created_at DESC
		LIMIT %s OFFSET %s`, whereClause, phLimit, phOffset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		r.logger.Error("DocumentRepository.List: query", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to list documents")
	}
	defer rows.Close()

	var docs []*bill.Document
	for rows.Next() {
		d, err := r.scanDocument(rows)
		if err != nil {
			r.logger.Error("DocumentRepository.List: scan", "error", err)
			return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan document row")
		}
		docs = append(docs, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return docs, total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Delete
// ─────────────────────────────────────────────────────────────────────────────

// Delete removes a document.  Extraction runs and their stored results
// cascade at the database level.
func (r *DocumentRepository) Delete(ctx context.Context, id common.ID) error {
	r.logger.Debug("DocumentRepository.Delete", "id", id)

	tag, err := r.pool.Exec(ctx, `DELETE FROM documents WHERE id = $1`, string(id))
	if err != nil {
		r.logger.Error("DocumentRepository.Delete", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to delete document")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeDocumentNotFound, "document not found").
			WithDetail(fmt.Sprintf("id=%s", id))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanDocument maps one documents row onto a rehydrated aggregate.  Callers
// translate pgx.ErrNoRows; other errors are returned as-is for wrapping.
func (r *DocumentRepository) scanDocument(s rowScanner) (*bill.Document, error) {
	var (
		dto          btypes.DocumentDTO
		id           string
		format       string
		sectionsJSON []byte
	)
	err := s.Scan(
		&id, &dto.SourceName, &format, &dto.Title, &dto.ReportTitle, &dto.Description,
		&dto.ContentHash, &dto.CharCount, &dto.RawText, &sectionsJSON,
		&dto.CreatedAt, &dto.UpdatedAt, &dto.Version,
	)
	if err != nil {
		return nil, err
	}
	dto.ID = common.ID(id)
	dto.Format = btypes.DocumentFormat(format)
	if len(sectionsJSON) > 0 {
		_ = json.Unmarshal(sectionsJSON, &dto.Sections)
	}
	return bill.DocumentFromDTO(dto), nil
}
