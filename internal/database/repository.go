package database

import (
	"context"
	"errors"
	"fmt"

	"financial-diagnostics/internal/statements"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository provides data access methods
type Repository struct {
	db *DB
}

// NewRepository creates a new repository
func NewRepository(db *DB) *Repository {
	return &Repository{db: db}
}

// HealthCheck performs a database health check
func (r *Repository) HealthCheck(ctx context.Context) error {
	return r.db.Pool.Ping(ctx)
}

// ============================================================================
// PERIODS
// ============================================================================

// CreatePeriod inserts a new period and fills in its id and timestamps
func (r *Repository) CreatePeriod(ctx context.Context, p *statements.Period) error {
	query := `
		INSERT INTO financial_assets (company_id, year, month, is_tax_record)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`
	err := r.db.Pool.QueryRow(ctx, query, p.CompanyID, p.Year, p.Month, p.IsTaxRecord).
		Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create period: %w", err)
	}
	return nil
}

// GetPeriod returns a period by id
func (r *Repository) GetPeriod(ctx context.Context, periodID string) (*statements.Period, error) {
	return getPeriod(ctx, r.db.Pool, periodID)
}

func getPeriod(ctx context.Context, q querier, periodID string) (*statements.Period, error) {
	query := `
		SELECT id, company_id, year, month, is_tax_record, created_at, updated_at
		FROM financial_assets
		WHERE id = $1
	`
	var p statements.Period
	err := q.QueryRow(ctx, query, periodID).Scan(
		&p.ID, &p.CompanyID, &p.Year, &p.Month, &p.IsTaxRecord, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrPeriodNotFound
		}
		return nil, fmt.Errorf("failed to get period: %w", err)
	}
	return &p, nil
}

// ListSeriesPeriods returns the periods of a series ordered oldest first
func (r *Repository) ListSeriesPeriods(ctx context.Context, key statements.SeriesKey) ([]statements.Period, error) {
	return listSeriesPeriods(ctx, r.db.Pool, key)
}

func listSeriesPeriods(ctx context.Context, q querier, key statements.SeriesKey) ([]statements.Period, error) {
	query := `
		SELECT id, company_id, year, month, is_tax_record, created_at, updated_at
		FROM financial_assets
		WHERE company_id = $1 AND is_tax_record = $2
		ORDER BY year, month NULLS FIRST
	`
	rows, err := q.Query(ctx, query, key.CompanyID, key.IsTaxRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to list periods: %w", err)
	}
	defer rows.Close()

	var periods []statements.Period
	for rows.Next() {
		var p statements.Period
		if err := rows.Scan(&p.ID, &p.CompanyID, &p.Year, &p.Month, &p.IsTaxRecord, &p.CreatedAt, &p.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan period: %w", err)
		}
		periods = append(periods, p)
	}
	return periods, rows.Err()
}

// ListCompanyIDs returns every company that has at least one period
func (r *Repository) ListCompanyIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Pool.Query(ctx, `SELECT DISTINCT company_id FROM financial_assets ORDER BY company_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to list companies: %w", err)
	}
	defer rows.Close()

	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to scan company ids: %w", err)
	}
	return ids, nil
}

// LoadSeries reads a series with all of its sub-statements, outside of any
// series lock. Recomputes read through SeriesTx instead.
func (r *Repository) LoadSeries(ctx context.Context, key statements.SeriesKey) ([]statements.PeriodInput, error) {
	return loadSeries(ctx, r.db.Pool, key)
}

func loadSeries(ctx context.Context, q querier, key statements.SeriesKey) ([]statements.PeriodInput, error) {
	periods, err := listSeriesPeriods(ctx, q, key)
	if err != nil {
		return nil, err
	}
	if len(periods) == 0 {
		return []statements.PeriodInput{}, nil
	}

	inputs := make([]statements.PeriodInput, len(periods))
	index := make(map[string]int, len(periods))
	ids := make([]string, len(periods))
	for i, p := range periods {
		inputs[i].Period = p
		index[p.ID] = i
		ids[i] = p.ID
	}

	for _, kind := range statements.Kinds {
		if err := loadStatements(ctx, q, kind, ids, func(periodID string, stmt statements.Statement) {
			if i, ok := index[periodID]; ok {
				inputs[i].Statements.Put(stmt)
			}
		}); err != nil {
			return nil, err
		}
	}

	return inputs, nil
}
