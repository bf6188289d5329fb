package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
)

// RecordRecomputeFailure stores a failure for operator reconciliation
func (r *Repository) RecordRecomputeFailure(ctx context.Context, f *RecomputeFailure) error {
	query := `
		INSERT INTO recompute_failures (id, company_id, is_tax_record, phase, attempts, retryable, error)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING created_at
	`
	err := r.db.Pool.QueryRow(ctx, query,
		f.ID, f.CompanyID, f.IsTaxRecord, f.Phase, f.Attempts, f.Retryable, f.Error,
	).Scan(&f.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to record recompute failure: %w", err)
	}
	return nil
}

// ListOpenFailures returns unresolved failures, oldest first. Only the latest
// open failure of each series is returned.
func (r *Repository) ListOpenFailures(ctx context.Context, limit int) ([]RecomputeFailure, error) {
	query := `
		SELECT id, company_id, is_tax_record, phase, attempts, retryable, error, created_at, resolved_at
		FROM (
			SELECT DISTINCT ON (company_id, is_tax_record) *
			FROM recompute_failures
			WHERE resolved_at IS NULL
			ORDER BY company_id, is_tax_record, created_at DESC
		) latest
		ORDER BY created_at
		LIMIT $1
	`
	rows, err := r.db.Pool.Query(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list recompute failures: %w", err)
	}

	failures, err := pgx.CollectRows(rows, pgx.RowToStructByPos[RecomputeFailure])
	if err != nil {
		return nil, fmt.Errorf("failed to scan recompute failures: %w", err)
	}
	return failures, nil
}

// ResolveSeriesFailures marks every open failure of a series as resolved
func (r *Repository) ResolveSeriesFailures(ctx context.Context, companyID string, isTaxRecord bool) (int64, error) {
	tag, err := r.db.Pool.Exec(ctx, `
		UPDATE recompute_failures
		SET resolved_at = CURRENT_TIMESTAMP
		WHERE company_id = $1 AND is_tax_record = $2 AND resolved_at IS NULL
	`, companyID, isTaxRecord)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve recompute failures: %w", err)
	}
	return tag.RowsAffected(), nil
}

// ResolveFailure marks a single failure record as resolved
func (r *Repository) ResolveFailure(ctx context.Context, id string) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE recompute_failures SET resolved_at = CURRENT_TIMESTAMP WHERE id = $1 AND resolved_at IS NULL`, id)
	if err != nil {
		return fmt.Errorf("failed to resolve recompute failure: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrFailureNotFound
	}
	return nil
}
