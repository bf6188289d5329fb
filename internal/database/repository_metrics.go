package database

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"financial-diagnostics/internal/engine"
	"financial-diagnostics/internal/ratios"
	"financial-diagnostics/internal/statements"

	"github.com/jackc/pgx/v5"
)

// SeriesTx is the unit of work of one series recompute. It runs inside a
// transaction holding the series advisory lock.
type SeriesTx interface {
	Key() statements.SeriesKey
	LoadSeries(ctx context.Context) ([]statements.PeriodInput, error)
	UpsertComputedMetrics(ctx context.Context, results []engine.PeriodResult, opts UpsertOptions) error
	DeletePeriod(ctx context.Context, periodID string) error
}

type seriesTx struct {
	tx  pgx.Tx
	key statements.SeriesKey
}

func (s *seriesTx) Key() statements.SeriesKey { return s.key }

func (s *seriesTx) LoadSeries(ctx context.Context) ([]statements.PeriodInput, error) {
	return loadSeries(ctx, s.tx, s.key)
}

func (s *seriesTx) UpsertComputedMetrics(ctx context.Context, results []engine.PeriodResult, opts UpsertOptions) error {
	if len(results) == 0 {
		return nil
	}

	query := upsertMetricsQuery
	if opts.ResetPublication {
		query = upsertMetricsResetQuery
	}

	batch := &pgx.Batch{}
	for i := range results {
		refs := results[i].Metrics.Fields()
		args := make([]any, 0, len(refs)+3)
		args = append(args, results[i].PeriodID, s.key.CompanyID, s.key.IsTaxRecord)
		for _, ref := range refs {
			args = append(args, *ref.Value)
		}
		batch.Queue(query, args...)
	}

	br := s.tx.SendBatch(ctx, batch)
	for i := range results {
		if _, err := br.Exec(); err != nil {
			br.Close()
			return fmt.Errorf("failed to upsert metrics for period %s: %w", results[i].PeriodID, err)
		}
	}
	if err := br.Close(); err != nil {
		return fmt.Errorf("failed to upsert metrics: %w", err)
	}
	return nil
}

func (s *seriesTx) DeletePeriod(ctx context.Context, periodID string) error {
	tag, err := s.tx.Exec(ctx,
		`DELETE FROM financial_assets WHERE id = $1 AND company_id = $2 AND is_tax_record = $3`,
		periodID, s.key.CompanyID, s.key.IsTaxRecord)
	if err != nil {
		return fmt.Errorf("failed to delete period: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrPeriodNotFound
	}
	return nil
}

var (
	metricColumns           = ratios.Columns()
	upsertMetricsQuery      = buildUpsertMetricsQuery(false)
	upsertMetricsResetQuery = buildUpsertMetricsQuery(true)
)

func buildUpsertMetricsQuery(resetPublication bool) string {
	cols := append([]string{"period_id", "company_id", "is_tax_record"}, metricColumns...)
	placeholders := make([]string, len(cols))
	for i := range cols {
		placeholders[i] = fmt.Sprintf("$%d", i+1)
	}

	updates := make([]string, 0, len(metricColumns)+2)
	for _, c := range metricColumns {
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", c, c))
	}
	if resetPublication {
		updates = append(updates, "is_published = FALSE")
	}
	updates = append(updates, "updated_at = CURRENT_TIMESTAMP")

	// is_published is never in the insert list, so new rows start unpublished
	return fmt.Sprintf(`
		INSERT INTO computed_period_metrics (%s)
		VALUES (%s)
		ON CONFLICT (period_id)
		DO UPDATE SET %s
	`, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))
}

// RunInSeriesTx runs fn in a transaction that holds the advisory lock of the
// series. The transaction commits only if fn returns nil.
func (r *Repository) RunInSeriesTx(ctx context.Context, key statements.SeriesKey, fn func(ctx context.Context, tx SeriesTx) error) error {
	tx, err := r.db.Pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtextextended($1, 0))`, key.String()); err != nil {
		return fmt.Errorf("failed to lock series %s: %w", key, err)
	}

	if err := fn(ctx, &seriesTx{tx: tx, key: key}); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit series %s: %w", key, err)
	}
	return nil
}

// GetComputedMetrics returns the metrics row of a period regardless of its
// publication state. Internal use only; read APIs go through
// ListPublishedMetrics.
func (r *Repository) GetComputedMetrics(ctx context.Context, periodID string) (*ComputedMetrics, error) {
	query := fmt.Sprintf(`
		SELECT period_id, company_id, is_tax_record, %s, is_published, created_at, updated_at
		FROM computed_period_metrics
		WHERE period_id = $1
	`, strings.Join(metricColumns, ", "))

	var row ComputedMetrics
	refs := row.Metrics.Fields()
	dest := make([]any, 0, len(refs)+6)
	dest = append(dest, &row.PeriodID, &row.CompanyID, &row.IsTaxRecord)
	for _, ref := range refs {
		dest = append(dest, ref.Value)
	}
	dest = append(dest, &row.IsPublished, &row.CreatedAt, &row.UpdatedAt)

	if err := r.db.Pool.QueryRow(ctx, query, periodID).Scan(dest...); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMetricsNotFound
		}
		return nil, fmt.Errorf("failed to get computed metrics: %w", err)
	}
	return &row, nil
}

// SetPublished flips the publication flag of a period's metrics row. Only
// is_published is written.
func (r *Repository) SetPublished(ctx context.Context, periodID string, published bool) (*PublicationChange, error) {
	query := `
		WITH prev AS (
			SELECT period_id, is_published
			FROM computed_period_metrics
			WHERE period_id = $1
			FOR UPDATE
		)
		UPDATE computed_period_metrics m
		SET is_published = $2
		FROM prev
		WHERE m.period_id = prev.period_id
		RETURNING m.company_id, m.is_tax_record, prev.is_published
	`
	change := PublicationChange{PeriodID: periodID, Current: published}
	err := r.db.Pool.QueryRow(ctx, query, periodID, published).
		Scan(&change.CompanyID, &change.IsTaxRecord, &change.Previous)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrMetricsNotFound
		}
		return nil, fmt.Errorf("failed to set publication: %w", err)
	}
	return &change, nil
}

// ListPublishedMetrics returns the published rows of a series, oldest first
func (r *Repository) ListPublishedMetrics(ctx context.Context, companyID string, isTaxRecord bool) ([]PublishedMetrics, error) {
	qualified := make([]string, len(metricColumns))
	for i, c := range metricColumns {
		qualified[i] = "m." + c
	}
	query := fmt.Sprintf(`
		SELECT m.period_id, fa.year, fa.month, %s, m.updated_at
		FROM computed_period_metrics m
		JOIN financial_assets fa ON fa.id = m.period_id
		WHERE m.company_id = $1 AND m.is_tax_record = $2 AND m.is_published
		ORDER BY fa.year, fa.month NULLS FIRST
	`, strings.Join(qualified, ", "))

	rows, err := r.db.Pool.Query(ctx, query, companyID, isTaxRecord)
	if err != nil {
		return nil, fmt.Errorf("failed to list published metrics: %w", err)
	}
	defer rows.Close()

	out := []PublishedMetrics{}
	for rows.Next() {
		var pm PublishedMetrics
		refs := pm.Metrics.Fields()
		dest := make([]any, 0, len(refs)+4)
		dest = append(dest, &pm.PeriodID, &pm.Year, &pm.Month)
		for _, ref := range refs {
			dest = append(dest, ref.Value)
		}
		dest = append(dest, &pm.UpdatedAt)
		if err := rows.Scan(dest...); err != nil {
			return nil, fmt.Errorf("failed to scan published metrics: %w", err)
		}
		out = append(out, pm)
	}
	return out, rows.Err()
}
