package repositories

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/turtacn/LegisGraph/internal/domain/bill"
	"github.com/turtacn/LegisGraph/internal/infrastructure/database/postgres"
	appErrors "github.com/turtacn/LegisGraph/pkg/errors"
	btypes "github.com/turtacn/LegisGraph/pkg/types/bill"
	"github.com/turtacn/LegisGraph/pkg/types/common"
)

// ─────────────────────────────────────────────────────────────────────────────
// ExtractionRunRepository
// ─────────────────────────────────────────────────────────────────────────────

// ExtractionRunRepository is the PostgreSQL implementation of the bill
// domain's ExtractionRunRepository interface.  Run rows and their result
// rows live in separate tables; SaveResults replaces the result rows inside
// one transaction so readers never observe a half-written run.
type ExtractionRunRepository struct {
	pool   *pgxpool.Pool
	logger Logger
}

// NewExtractionRunRepository constructs a ready-to-use ExtractionRunRepository.
func NewExtractionRunRepository(pool *pgxpool.Pool, logger Logger) *ExtractionRunRepository {
	return &ExtractionRunRepository{pool: pool, logger: logger}
}

var _ bill.ExtractionRunRepository = (*ExtractionRunRepository)(nil)

// ─────────────────────────────────────────────────────────────────────────────
// Create
// ─────────────────────────────────────────────────────────────────────────────

// Create persists a newly queued run.
func (r *ExtractionRunRepository) Create(ctx context.Context, run *bill.ExtractionRun) error {
	r.logger.Debug("ExtractionRunRepository.Create", "run_id", run.ID, "document_id", run.DocumentID)

	_, err := r.pool.Exec(ctx, `
		INSERT INTO extraction_runs (
			id, document_id, mode, status,
			total_chunks, fallback_chunks, entity_count, relation_count, dropped_entities,
			summary, failure_reason, started_at, completed_at, duration_ms,
			created_at, updated_at, version
		) VALUES (
			$1,$2,$3,$4,
			$5,$6,$7,$8,$9,
			$10,$11,$12,$13,$14,
			$15,$16,$17
		)`,
		string(run.ID), string(run.DocumentID), string(run.Mode), string(run.Status),
		run.TotalChunks, run.FallbackChunks, run.EntityCount, run.RelationCount, run.DroppedEntities,
		run.Summary, run.FailureReason, run.StartedAt, run.CompletedAt, run.DurationMs,
		run.CreatedAt, run.UpdatedAt, run.Version,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
			return appErrors.New(appErrors.ErrCodeDocumentNotFound, "document for extraction run does not exist").
				WithDetail(fmt.Sprintf("document_id=%s", run.DocumentID))
		}
		r.logger.Error("ExtractionRunRepository.Create: insert", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert extraction run")
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// GetByID
// ─────────────────────────────────────────────────────────────────────────────

// GetByID loads a run by its primary key.
func (r *ExtractionRunRepository) GetByID(ctx context.Context, id common.ID) (*bill.ExtractionRun, error) {
	r.logger.Debug("ExtractionRunRepository.GetByID", "id", id)

	run, err := r.scanRun(r.pool.QueryRow(ctx, `
		SELECT id, document_id, mode, status,
		       total_chunks, fallback_chunks, entity_count, relation_count, dropped_entities,
		       summary, failure_reason, started_at, completed_at, duration_ms,
		       created_at, updated_at, version
		FROM extraction_runs WHERE id = $1`, string(id)))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, appErrors.New(appErrors.ErrCodeRunNotFound, "extraction run not found").
				WithDetail(fmt.Sprintf("id=%s", id))
		}
		r.logger.Error("ExtractionRunRepository.GetByID", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to load extraction run")
	}
	return run, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Update
// ─────────────────────────────────────────────────────────────────────────────

// Update persists status transitions and completion accounting.  Document ID
// and mode are immutable and never rewritten.
func (r *ExtractionRunRepository) Update(ctx context.Context, run *bill.ExtractionRun) error {
	r.logger.Debug("ExtractionRunRepository.Update", "run_id", run.ID, "status", run.Status)

	tag, err := r.pool.Exec(ctx, `
		UPDATE extraction_runs SET
			status=$1, total_chunks=$2, fallback_chunks=$3,
			entity_count=$4, relation_count=$5, dropped_entities=$6,
			summary=$7, failure_reason=$8, started_at=$9, completed_at=$10,
			duration_ms=$11, updated_at=$12, version=$13
		WHERE id=$14`,
		string(run.Status), run.TotalChunks, run.FallbackChunks,
		run.EntityCount, run.RelationCount, run.DroppedEntities,
		run.Summary, run.FailureReason, run.StartedAt, run.CompletedAt,
		run.DurationMs, run.UpdatedAt, run.Version,
		string(run.ID),
	)
	if err != nil {
		r.logger.Error("ExtractionRunRepository.Update", "error", err)
		return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to update extraction run")
	}
	if tag.RowsAffected() == 0 {
		return appErrors.New(appErrors.ErrCodeRunNotFound, "extraction run not found").
			WithDetail(fmt.Sprintf("id=%s", run.ID))
	}
	return nil
}

// ─────────────────────────────────────────────────────────────────────────────
// List
// ─────────────────────────────────────────────────────────────────────────────

// List returns a page of runs, newest first, plus the total number of rows
// matching the filter.
func (r *ExtractionRunRepository) List(ctx context.Context, filter bill.RunFilter) ([]*bill.ExtractionRun, int64, error) {
	r.logger.Debug("ExtractionRunRepository.List",
		"document_id", filter.DocumentID, "status", filter.Status,
		"limit", filter.Limit, "offset", filter.Offset)

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

	if filter.DocumentID != "" {
		ph := nextArg(string(filter.DocumentID))
		conditions = append(conditions, fmt.Sprintf("document_id = %s", ph))
	}
	if filter.Status != "" {
		ph := nextArg(string(filter.Status))
		conditions = append(conditions, fmt.Sprintf("status = %s", ph))
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	countSQL := fmt.Sprintf("SELECT COUNT(*) FROM extraction_runs %s", whereClause)
	var total int64
	if err := r.pool.QueryRow(ctx, countSQL, args...).Scan(&total); err != nil {
		r.logger.Error("ExtractionRunRepository.List: count", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count extraction runs")
	}

	limit, offset := normalizePage(filter.Limit, filter.Offset)
	phLimit := nextArg(limit)
	phOffset := nextArg(offset)

	dataSQL := fmt.Sprintf(`
		SELECT id, document_id, mode, status,
		       total_chunks, fallback_chunks, entity_count, relation_count, dropped_entities,
		       summary, failure_reason, started_at, completed_at, duration_ms,
		       created_at, updated_at, version
		FROM extraction_runs %s
		ORDER BY created_at DESC
		LIMIT %s OFFSET %s`, whereClause, phLimit, phOffset)

	rows, err := r.pool.Query(ctx, dataSQL, args...)
	if err != nil {
		r.logger.Error("ExtractionRunRepository.List: query", "error", err)
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to list extraction runs")
	}
	defer rows.Close()

	var runs []*bill.ExtractionRun
	for rows.Next() {
		run, err := r.scanRun(rows)
		if err != nil {
			r.logger.Error("ExtractionRunRepository.List: scan", "error", err)
			return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan extraction run row")
		}
		runs = append(runs, run)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "row iteration error")
	}
	return runs, total, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// SaveResults
// ─────────────────────────────────────────────────────────────────────────────

// SaveResults replaces the stored entities and relations of a run.  Rows are
// written with an ordinal column so GetResults can return them in exactly
// the order the pipeline produced.
func (r *ExtractionRunRepository) SaveResults(ctx context.Context, runID common.ID, entities []bill.ExtractedEntity, relations []bill.ExtractedRelation) error {
	r.logger.Debug("ExtractionRunRepository.SaveResults",
		"run_id", runID, "entities", len(entities), "relations", len(relations))

	return postgres.WithTransaction(ctx, r.pool, func(tx pgx.Tx, ctx context.Context) error {
		if _, err := tx.Exec(ctx, `DELETE FROM extraction_entities WHERE run_id = $1`, string(runID)); err != nil {
			r.logger.Error("ExtractionRunRepository.SaveResults: delete entities", "error", err)
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to clear stored entities")
		}
		if _, err := tx.Exec(ctx, `DELETE FROM extraction_relations WHERE run_id = $1`, string(runID)); err != nil {
			r.logger.Error("ExtractionRunRepository.SaveResults: delete relations", "error", err)
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to clear stored relations")
		}
		if len(entities) == 0 && len(relations) == 0 {
			return nil
		}

		batch := &pgx.Batch{}
		for i, e := range entities {
			batch.Queue(`
				INSERT INTO extraction_entities (run_id, ordinal, text, type, start_char, end_char, confidence, context, source)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				string(runID), i, e.Text, e.Type, e.Start, e.End, e.Confidence, e.Context, e.Source)
		}
		for i, rel := range relations {
			batch.Queue(`
				INSERT INTO extraction_relations (run_id, ordinal, subject, predicate, object, relation_type, confidence, context, source)
				VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
				string(runID), i, rel.Subject, rel.Predicate, rel.Object, rel.Type, rel.Confidence, rel.Context, rel.Source)
		}

		br := tx.SendBatch(ctx, batch)
		for i := 0; i < batch.Len(); i++ {
			if _, err := br.Exec(); err != nil {
				_ = br.Close()
				var pgErr *pgconn.PgError
				if errors.As(err, &pgErr) && pgErr.Code == pgForeignKeyViolation {
					return appErrors.New(appErrors.ErrCodeRunNotFound, "extraction run not found").
						WithDetail(fmt.Sprintf("run_id=%s", runID))
				}
				r.logger.Error("ExtractionRunRepository.SaveResults: insert", "error", err)
				return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to insert extraction results")
			}
		}
		if err := br.Close(); err != nil {
			return appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to finish results batch")
		}
		return nil
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// GetResults
// ─────────────────────────────────────────────────────────────────────────────

// GetResults returns the stored entities and relations of a run in their
// persisted order.  A run with no stored results yields empty slices.
func (r *ExtractionRunRepository) GetResults(ctx context.Context, runID common.ID) ([]bill.ExtractedEntity, []bill.ExtractedRelation, error) {
	r.logger.Debug("ExtractionRunRepository.GetResults", "run_id", runID)

	entities, err := r.queryEntities(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	relations, err := r.queryRelations(ctx, runID)
	if err != nil {
		return nil, nil, err
	}
	return entities, relations, nil
}

func (r *ExtractionRunRepository) queryEntities(ctx context.Context, runID common.ID) ([]bill.ExtractedEntity, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT text, type, start_char, end_char, confidence, context, source
		FROM extraction_entities
		WHERE run_id = $1
		ORDER BY ordinal ASC`, string(runID))
	if err != nil {
		r.logger.Error("ExtractionRunRepository.queryEntities", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query stored entities")
	}
	defer rows.Close()

	var entities []bill.ExtractedEntity
	for rows.Next() {
		var e bill.ExtractedEntity
		if err := rows.Scan(&e.Text, &e.Type, &e.Start, &e.End, &e.Confidence, &e.Context, &e.Source); err != nil {
			r.logger.Error("ExtractionRunRepository.queryEntities: scan", "error", err)
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan stored entity")
		}
		entities = append(entities, e)
	}
	return entities, rows.Err()
}

func (r *ExtractionRunRepository) queryRelations(ctx context.Context, runID common.ID) ([]bill.ExtractedRelation, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT subject, predicate, object, relation_type, confidence, context, source
		FROM extraction_relations
		WHERE run_id = $1
		ORDER BY ordinal ASC`, string(runID))
	if err != nil {
		r.logger.Error("ExtractionRunRepository.queryRelations", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to query stored relations")
	}
	defer rows.Close()

	var relations []bill.ExtractedRelation
	for rows.Next() {
		var rel bill.ExtractedRelation
		if err := rows.Scan(&rel.Subject, &rel.Predicate, &rel.Object, &rel.Type, &rel.Confidence, &rel.Context, &rel.Source); err != nil {
			r.logger.Error("ExtractionRunRepository.queryRelations: scan", "error", err)
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan stored relation")
		}
		relations = append(relations, rel)
	}
	return relations, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// CountByStatus
// ─────────────────────────────────────────────────────────────────────────────

// CountByStatus returns a map of run status to row count.
func (r *ExtractionRunRepository) CountByStatus(ctx context.Context) (map[btypes.RunStatus]int64, error) {
	r.logger.Debug("ExtractionRunRepository.CountByStatus")

	rows, err := r.pool.Query(ctx, `SELECT status, COUNT(*) FROM extraction_runs GROUP BY status`)
	if err != nil {
		r.logger.Error("ExtractionRunRepository.CountByStatus", "error", err)
		return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to count runs by status")
	}
	defer rows.Close()

	result := make(map[btypes.RunStatus]int64)
	for rows.Next() {
		var status string
		var count int64
		if err := rows.Scan(&status, &count); err != nil {
			r.logger.Error("ExtractionRunRepository.CountByStatus: scan", "error", err)
			return nil, appErrors.Wrap(err, appErrors.ErrCodeDatabaseError, "failed to scan status count")
		}
		result[btypes.RunStatus(status)] = count
	}
	return result, rows.Err()
}

// ─────────────────────────────────────────────────────────────────────────────
// Internal helpers
// ─────────────────────────────────────────────────────────────────────────────

// scanRun maps one extraction_runs row onto a rehydrated aggregate.  Callers
// translate pgx.ErrNoRows; other errors are returned as-is for wrapping.
func (r *ExtractionRunRepository) scanRun(s rowScanner) (*bill.ExtractionRun, error) {
	var (
		dto        btypes.ExtractionRunDTO
		id         string
		documentID string
		mode       string
		status     string
	)
	err := s.Scan(
		&id, &documentID, &mode, &status,
		&dto.TotalChunks, &dto.FallbackChunks, &dto.EntityCount, &dto.RelationCount, &dto.DroppedEntities,
		&dto.Summary, &dto.FailureReason, &dto.StartedAt, &dto.CompletedAt, &dto.DurationMs,
		&dto.CreatedAt, &dto.UpdatedAt, &dto.Version,
	)
	if err != nil {
		return nil, err
	}
	dto.ID = common.ID(id)
	dto.DocumentID = common.ID(documentID)
	dto.Mode = btypes.ExtractionMode(mode)
	dto.Status = btypes.RunStatus(status)
	return bill.RunFromDTO(dto), nil
}
