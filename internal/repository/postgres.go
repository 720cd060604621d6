package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"formulary/internal/model"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// drugColumns is the column list scanned into model.DrugRow
const drugColumns = "drug_name, category, drug_status, hcpcs, manufacturer, pa_mnd_required, notes"

// PostgresRepository handles database operations
type PostgresRepository struct {
	db *sqlx.DB
}

// NewPostgresRepository creates a new PostgreSQL repository
func NewPostgresRepository(dsn string, maxConn, maxIdleConn int) (*PostgresRepository, error) {
	// Disable prepared statement caching to avoid "unnamed prepared statement does not exist" errors
	if !strings.Contains(dsn, "?") {
		dsn += "?prefer_simple_protocol=true"
	} else {
		dsn += "&prefer_simple_protocol=true"
	}

	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	db.SetMaxOpenConns(maxConn)
	db.SetMaxIdleConns(maxIdleConn)
	db.SetConnMaxLifetime(5 * time.Minute) // Shorter lifetime to avoid stale connections
	db.SetConnMaxIdleTime(2 * time.Minute) // Close idle connections sooner

	// Test connection
	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	return &PostgresRepository{db: db}, nil
}

// Close closes the database connection
func (r *PostgresRepository) Close() error {
	return r.db.Close()
}

// ListDrugNames returns every distinct drug name in the formulary
func (r *PostgresRepository) ListDrugNames(ctx context.Context) ([]string, error) {
	var names []string
	query := `SELECT DISTINCT drug_name FROM drugs ORDER BY drug_name`
	if err := r.db.SelectContext(ctx, &names, query); err != nil {
		return nil, fmt.Errorf("failed to list drug names: %w", err)
	}
	return names, nil
}

// GetDrugRows retrieves all category rows for one drug, matched case-insensitively
func (r *PostgresRepository) GetDrugRows(ctx context.Context, name string) ([]model.DrugRow, error) {
	var rows []model.DrugRow
	query := fmt.Sprintf(`
		SELECT %s
		FROM drugs
		WHERE LOWER(drug_name) = LOWER($1)
		ORDER BY category
	`, drugColumns)
	if err := r.db.SelectContext(ctx, &rows, query, name); err != nil {
		return nil, fmt.Errorf("failed to get drug rows: %w", err)
	}
	return rows, nil
}

// GetAlternatives finds drugs with the given status that share at least one
// of the given categories, excluding the drug itself
func (r *PostgresRepository) GetAlternatives(ctx context.Context, name string, categories []string, status model.DrugStatus) ([]model.DrugRow, error) {
	if len(categories) == 0 {
		return nil, nil
	}

	var rows []model.DrugRow
	query := fmt.Sprintf(`
		SELECT %s
		FROM drugs
		WHERE category = ANY($1)
		  AND LOWER(drug_name) != LOWER($2)
		  AND drug_status = $3
		ORDER BY category, drug_name
	`, drugColumns)
	err := r.db.SelectContext(ctx, &rows, query, pq.Array(categories), name, status)
	if err != nil {
		return nil, fmt.Errorf("failed to get alternatives: %w", err)
	}
	return rows, nil
}

// AutocompleteNames returns distinct drug names starting with the prefix
func (r *PostgresRepository) AutocompleteNames(ctx context.Context, prefix string, limit int) ([]string, error) {
	var names []string
	query := `
		SELECT DISTINCT drug_name FROM drugs
		WHERE drug_name ILIKE $1
		ORDER BY drug_name
		LIMIT $2
	`
	if err := r.db.SelectContext(ctx, &names, query, prefix+"%", limit); err != nil {
		return nil, fmt.Errorf("failed to autocomplete drug names: %w", err)
	}
	return names, nil
}

// FilterDrugs performs a filtered listing with drug-level pagination: limit and
// offset count distinct drugs, not rows, so a multi-category drug is never split
// across pages. Returns the rows for the requested page plus the total number of
// matching drugs.
func (r *PostgresRepository) FilterDrugs(ctx context.Context, filters model.Filters, limit, offset int) ([]model.DrugRow, int, error) {
	// Build WHERE clause
	whereClauses := []string{"1=1"}
	args := []interface{}{}
	argIndex := 1

	if filters.DrugStatus != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("drug_status = $%d", argIndex))
		args = append(args, *filters.DrugStatus)
		argIndex++
	}
	if filters.PAMndRequired != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("pa_mnd_required = $%d", argIndex))
		args = append(args, *filters.PAMndRequired)
		argIndex++
	}
	if filters.Category != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("category ILIKE $%d", argIndex))
		args = append(args, "%"+*filters.Category+"%")
		argIndex++
	}
	if filters.Manufacturer != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("manufacturer ILIKE $%d", argIndex))
		args = append(args, "%"+*filters.Manufacturer+"%")
		argIndex++
	}
	if filters.HCPCS != nil {
		whereClauses = append(whereClauses, fmt.Sprintf("LOWER(hcpcs) = LOWER($%d)", argIndex))
		args = append(args, *filters.HCPCS)
		argIndex++
	}

	whereClause := strings.Join(whereClauses, " AND ")

	// Count total matching drugs
	countQuery := fmt.Sprintf("SELECT COUNT(DISTINCT drug_name) FROM drugs WHERE %s", whereClause)
	var total int
	err := r.db.GetContext(ctx, &total, countQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count results: %w", err)
	}

	// Select all rows belonging to the page of matching drugs. The same WHERE
	// clause appears twice so placeholder numbering holds for both.
	selectQuery := fmt.Sprintf(`
		SELECT %s
		FROM drugs
		WHERE %s AND drug_name IN (
			SELECT DISTINCT drug_name FROM drugs
			WHERE %s
			ORDER BY drug_name
			LIMIT $%d OFFSET $%d
		)
		ORDER BY drug_name, category
	`, drugColumns, whereClause, whereClause, argIndex, argIndex+1)

	args = append(args, limit, offset)

	var rows []model.DrugRow
	err = r.db.SelectContext(ctx, &rows, selectQuery, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to fetch drugs: %w", err)
	}

	return rows, total, nil
}

// GetCategories returns every distinct therapeutic category. Rows that came
// from the PA/MND list only carry an empty category and are skipped.
func (r *PostgresRepository) GetCategories(ctx context.Context) ([]string, error) {
	var categories []string
	query := `SELECT DISTINCT category FROM drugs WHERE category != '' ORDER BY category`
	if err := r.db.SelectContext(ctx, &categories, query); err != nil {
		return nil, fmt.Errorf("failed to get categories: %w", err)
	}
	return categories, nil
}

// LogQuery logs a processed query
func (r *PostgresRepository) LogQuery(ctx context.Context, entry *model.QueryLog) error {
	logQuery := `
		INSERT INTO query_logs (id, query, query_type, intent, results_count, result_names, llm_used, took_ms)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`
	_, err := r.db.ExecContext(ctx, logQuery,
		entry.ID, entry.Query, entry.QueryType, entry.Intent,
		entry.ResultsCount, entry.ResultNames, entry.LLMUsed, entry.TookMs)
	if err != nil {
		return fmt.Errorf("failed to log query: %w", err)
	}
	return nil
}

// UpdateFeedback records user feedback on a logged query. Returns false when
// no query with that id exists.
func (r *PostgresRepository) UpdateFeedback(ctx context.Context, queryID, feedback string) (bool, error) {
	query := `UPDATE query_logs SET feedback = $2 WHERE id = $1`
	res, err := r.db.ExecContext(ctx, query, queryID, feedback)
	if err != nil {
		return false, fmt.Errorf("failed to update feedback: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to read affected rows: %w", err)
	}
	return affected > 0, nil
}

// CreateSchema creates the formulary tables and indexes if they do not exist
func (r *PostgresRepository) CreateSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS drugs (
			drug_name TEXT NOT NULL,
			category TEXT NOT NULL DEFAULT '',
			drug_status TEXT NOT NULL DEFAULT 'not_listed',
			hcpcs TEXT,
			manufacturer TEXT,
			pa_mnd_required TEXT NOT NULL DEFAULT 'no',
			notes TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (drug_name, category)
		)`,
		`CREATE INDEX IF NOT EXISTS idx_drugs_lower_name ON drugs (LOWER(drug_name))`,
		`CREATE INDEX IF NOT EXISTS idx_drugs_category ON drugs (category)`,
		`CREATE INDEX IF NOT EXISTS idx_drugs_status ON drugs (drug_status)`,
		`CREATE INDEX IF NOT EXISTS idx_drugs_pa ON drugs (pa_mnd_required)`,
		`CREATE INDEX IF NOT EXISTS idx_drugs_manufacturer ON drugs (manufacturer)`,
		`CREATE INDEX IF NOT EXISTS idx_drugs_hcpcs ON drugs (hcpcs)`,
		`CREATE TABLE IF NOT EXISTS query_logs (
			id TEXT PRIMARY KEY,
			query TEXT NOT NULL,
			query_type TEXT NOT NULL,
			intent JSONB,
			results_count INTEGER NOT NULL DEFAULT 0,
			result_names JSONB,
			llm_used BOOLEAN NOT NULL DEFAULT FALSE,
			took_ms BIGINT NOT NULL DEFAULT 0,
			feedback TEXT,
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)`,
		`CREATE INDEX IF NOT EXISTS idx_query_logs_created ON query_logs (created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_query_logs_type ON query_logs (query_type)`,
	}

	for _, stmt := range statements {
		if _, err := r.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to create schema: %w", err)
		}
	}
	return nil
}

// UpsertRows inserts or updates formulary rows keyed on (drug_name, category).
// Returns the number of rows applied plus per-row errors.
func (r *PostgresRepository) UpsertRows(ctx context.Context, rows []model.DrugRow) (int, []string) {
	success := 0
	var errors []string

	tx, err := r.db.BeginTxx(ctx, nil)
	if err != nil {
		errors = append(errors, fmt.Sprintf("failed to start transaction: %v", err))
		return success, errors
	}
	defer tx.Rollback()

	stmt, err := tx.PreparexContext(ctx, `
		INSERT INTO drugs (drug_name, category, drug_status, hcpcs, manufacturer, pa_mnd_required, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (drug_name, category) DO UPDATE SET
			drug_status = EXCLUDED.drug_status,
			hcpcs = EXCLUDED.hcpcs,
			manufacturer = EXCLUDED.manufacturer,
			pa_mnd_required = EXCLUDED.pa_mnd_required,
			notes = EXCLUDED.notes,
			updated_at = NOW()
	`)
	if err != nil {
		errors = append(errors, fmt.Sprintf("failed to prepare statement: %v", err))
		return success, errors
	}
	defer stmt.Close()

	for _, row := range rows {
		_, err := stmt.ExecContext(ctx, row.DrugName, row.Category, row.DrugStatus,
			row.HCPCS, row.Manufacturer, row.PAMndRequired, row.Notes)
		if err != nil {
			errors = append(errors, fmt.Sprintf("drug %q category %q: %v", row.DrugName, row.Category, err))
			continue
		}
		success++
	}

	if err := tx.Commit(); err != nil {
		errors = append(errors, fmt.Sprintf("failed to commit transaction: %v", err))
		return 0, errors
	}

	return success, errors
}
