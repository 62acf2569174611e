package store

import (
	"context"

	"github.com/fashraf/posmain-api/internal/branch"
	"github.com/fashraf/posmain-api/internal/tax"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetBranch fetches a branch's pricing configuration.
func (s *Store) GetBranch(ctx context.Context, id uuid.UUID) (branch.Branch, error) {
	var b branch.Branch
	err := s.db.QueryRow(ctx, `
		SELECT id, name, currency, currency_symbol, pricing_mode, rounding_rule
		FROM branches
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&b.ID, &b.Name, &b.Currency, &b.CurrencySymbol, &b.PricingMode, &b.RoundingRule)
	if err != nil {
		return branch.Branch{}, err
	}
	return b, nil
}

// ListActiveTaxRules returns the branch's active tax rules in
// application order.
func (s *Store) ListActiveTaxRules(ctx context.Context, branchID uuid.UUID) ([]tax.Rule, error) {
	return s.listTaxRules(ctx, branchID, true)
}

// ListTaxRules returns all of a branch's tax rules, active or not.
func (s *Store) ListTaxRules(ctx context.Context, branchID uuid.UUID) ([]tax.Rule, error) {
	return s.listTaxRules(ctx, branchID, false)
}

func (s *Store) listTaxRules(ctx context.Context, branchID uuid.UUID, activeOnly bool) ([]tax.Rule, error) {
	query := `
		SELECT id, branch_id, tax_name, tax_type, value, apply_on, is_active, sort_order
		FROM branch_tax_rules
		WHERE branch_id = $1`
	if activeOnly {
		query += ` AND is_active`
	}
	// created_at breaks sort_order ties by insertion order.
	query += ` ORDER BY sort_order, created_at`

	rows, err := s.db.Query(ctx, query, branchID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var rules []tax.Rule
	for rows.Next() {
		var (
			r     tax.Rule
			value pgtype.Numeric
		)
		if err := rows.Scan(&r.ID, &r.BranchID, &r.Name, &r.Type, &value, &r.ApplyOn, &r.IsActive, &r.SortOrder); err != nil {
			return nil, err
		}
		r.Value = numericToDecimal(value)
		rules = append(rules, r)
	}
	return rules, rows.Err()
}

// CreateTaxRule inserts a branch tax rule.
func (s *Store) CreateTaxRule(ctx context.Context, r tax.Rule) (tax.Rule, error) {
	err := s.db.QueryRow(ctx, `
		INSERT INTO branch_tax_rules (branch_id, tax_name, tax_type, value, apply_on, is_active, sort_order)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id`,
		r.BranchID, r.Name, r.Type, decimalToNumeric(r.Value), r.ApplyOn, r.IsActive, r.SortOrder,
	).Scan(&r.ID)
	if err != nil {
		return tax.Rule{}, err
	}
	return r, nil
}

// UpdateTaxRule updates a branch tax rule. Returns the number of rows
// affected so callers can distinguish "not found".
func (s *Store) UpdateTaxRule(ctx context.Context, r tax.Rule) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		UPDATE branch_tax_rules
		SET tax_name = $1, tax_type = $2, value = $3, apply_on = $4, is_active = $5, sort_order = $6, updated_at = now()
		WHERE id = $7 AND branch_id = $8`,
		r.Name, r.Type, decimalToNumeric(r.Value), r.ApplyOn, r.IsActive, r.SortOrder, r.ID, r.BranchID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

// DeleteTaxRule removes a branch tax rule.
func (s *Store) DeleteTaxRule(ctx context.Context, branchID, ruleID uuid.UUID) (int64, error) {
	tag, err := s.db.Exec(ctx, `
		DELETE FROM branch_tax_rules
		WHERE id = $1 AND branch_id = $2`,
		ruleID, branchID,
	)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
