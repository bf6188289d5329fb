package database

import (
	"context"
	"fmt"
	"strings"

	"financial-diagnostics/internal/statements"
)

// UpsertStatement creates or replaces the sub-statement of a period
func (r *Repository) UpsertStatement(ctx context.Context, periodID string, stmt statements.Statement) error {
	table, err := statementTable(stmt.Kind())
	if err != nil {
		return err
	}

	refs := stmt.Fields()
	cols := make([]string, 0, len(refs)+1)
	placeholders := make([]string, 0, len(refs)+1)
	updates := make([]string, 0, len(refs)+1)
	args := make([]any, 0, len(refs)+1)

	cols = append(cols, "period_id")
	placeholders = append(placeholders, "$1")
	args = append(args, periodID)
	for i, ref := range refs {
		cols = append(cols, ref.Name)
		placeholders = append(placeholders, fmt.Sprintf("$%d", i+2))
		updates = append(updates, fmt.Sprintf("%s = EXCLUDED.%s", ref.Name, ref.Name))
		args = append(args, *ref.Value)
	}
	updates = append(updates, "updated_at = CURRENT_TIMESTAMP")

	query := fmt.Sprintf(`
		INSERT INTO %s (%s)
		VALUES (%s)
		ON CONFLICT (period_id)
		DO UPDATE SET %s
	`, table, strings.Join(cols, ", "), strings.Join(placeholders, ", "), strings.Join(updates, ", "))

	if _, err := r.db.Pool.Exec(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to upsert %s: %w", stmt.Kind(), err)
	}
	return nil
}

// UpsertBalanceReport creates or replaces a period's balance report
func (r *Repository) UpsertBalanceReport(ctx context.Context, periodID string, b *statements.BalanceReport) error {
	return r.UpsertStatement(ctx, periodID, b)
}

// UpsertProfitLossStatement creates or replaces a period's profit-loss statement
func (r *Repository) UpsertProfitLossStatement(ctx context.Context, periodID string, p *statements.ProfitLossStatement) error {
	return r.UpsertStatement(ctx, periodID, p)
}

// UpsertSoldProductFeeStatement creates or replaces a period's sold-product-fee statement
func (r *Repository) UpsertSoldProductFeeStatement(ctx context.Context, periodID string, s *statements.SoldProductFeeStatement) error {
	return r.UpsertStatement(ctx, periodID, s)
}

// UpsertAccountTurnoverStatement creates or replaces a period's account-turnover statement
func (r *Repository) UpsertAccountTurnoverStatement(ctx context.Context, periodID string, a *statements.AccountTurnoverStatement) error {
	return r.UpsertStatement(ctx, periodID, a)
}

// DeleteStatement removes one sub-statement of a period. Deleting an absent
// statement is not an error.
func (r *Repository) DeleteStatement(ctx context.Context, periodID string, kind statements.Kind) error {
	table, err := statementTable(kind)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`DELETE FROM %s WHERE period_id = $1`, table)
	if _, err := r.db.Pool.Exec(ctx, query, periodID); err != nil {
		return fmt.Errorf("failed to delete %s: %w", kind, err)
	}
	return nil
}

// loadStatements reads every statement of one kind for the given periods.
func loadStatements(ctx context.Context, q querier, kind statements.Kind, periodIDs []string, put func(string, statements.Statement)) error {
	table, err := statementTable(kind)
	if err != nil {
		return err
	}

	query := fmt.Sprintf(`SELECT period_id, %s FROM %s WHERE period_id = ANY($1::uuid[])`,
		strings.Join(statements.Columns(kind), ", "), table)

	rows, err := q.Query(ctx, query, periodIDs)
	if err != nil {
		return fmt.Errorf("failed to query %s: %w", table, err)
	}
	defer rows.Close()

	for rows.Next() {
		stmt, err := statements.NewStatement(kind)
		if err != nil {
			return err
		}
		var periodID string
		refs := stmt.Fields()
		dest := make([]any, 0, len(refs)+1)
		dest = append(dest, &periodID)
		for _, ref := range refs {
			dest = append(dest, ref.Value)
		}
		if err := rows.Scan(dest...); err != nil {
			return fmt.Errorf("failed to scan %s: %w", table, err)
		}
		put(periodID, stmt)
	}
	return rows.Err()
}
