package repositories

// PostgreSQL error codes the repositories translate into domain errors.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
)

// Listing page bounds.
const (
	defaultPageSize = 20
	maxPageSize     = 200
)

// rowScanner abstracts pgx.Row and pgx.Rows so single-row and multi-row
// queries share one scan helper per table.
type rowScanner interface {
	Scan(dest ...interface{}) error
}

// normalizePage clamps listing parameters to usable values.
func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
