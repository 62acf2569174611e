package store

import (
	"context"
	"fmt"

	"github.com/fashraf/posmain-api/internal/menu"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"
)

// GetMenuItem fetches one menu item.
func (s *Store) GetMenuItem(ctx context.Context, id uuid.UUID) (menu.Item, error) {
	var (
		item  menu.Item
		price pgtype.Numeric
	)
	err := s.db.QueryRow(ctx, `
		SELECT id, name, base_price, is_combo
		FROM menu_items
		WHERE id = $1 AND deleted_at IS NULL`,
		id,
	).Scan(&item.ID, &item.Name, &price, &item.IsCombo)
	if err != nil {
		return menu.Item{}, err
	}
	item.BasePrice = numericToDecimal(price)
	return item, nil
}

// ListIngredients returns the ingredient links of a menu item.
func (s *Store) ListIngredients(ctx context.Context, itemID uuid.UUID) ([]menu.Ingredient, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, menu_item_id, name, is_removable, extra_price
		FROM ingredient_links
		WHERE menu_item_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ingredients []menu.Ingredient
	for rows.Next() {
		var (
			ing   menu.Ingredient
			extra pgtype.Numeric
		)
		if err := rows.Scan(&ing.ID, &ing.ItemID, &ing.Name, &ing.IsRemovable, &extra); err != nil {
			return nil, err
		}
		ing.ExtraPrice = numericToDecimal(extra)
		ingredients = append(ingredients, ing)
	}
	return ingredients, rows.Err()
}

// ListReplacementGroups returns the replacement groups of a menu item
// with their options.
func (s *Store) ListReplacementGroups(ctx context.Context, itemID uuid.UUID) ([]menu.ReplacementGroup, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, menu_item_id, name
		FROM replacement_groups
		WHERE menu_item_id = $1 AND deleted_at IS NULL
		ORDER BY created_at, id`,
		itemID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var groups []menu.ReplacementGroup
	for rows.Next() {
		var g menu.ReplacementGroup
		if err := rows.Scan(&g.ID, &g.ItemID, &g.Name); err != nil {
			return nil, err
		}
		groups = append(groups, g)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i := range groups {
		options, err := s.listReplacementOptions(ctx, groups[i].ID)
		if err != nil {
			return nil, fmt.Errorf("list options for group %s: %w", groups[i].ID, err)
		}
		groups[i].Options = options
	}
	return groups, nil
}

func (s *Store) listReplacementOptions(ctx context.Context, groupID uuid.UUID) ([]menu.ReplacementOption, error) {
	rows, err := s.db.Query(ctx, `
		SELECT id, name, price_difference, is_default
		FROM replacement_options
		WHERE replacement_group_id = $1 AND deleted_at IS NULL
		ORDER BY is_default DESC, created_at, id`,
		groupID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var options []menu.ReplacementOption
	for rows.Next() {
		var (
			opt  menu.ReplacementOption
			diff pgtype.Numeric
		)
		if err := rows.Scan(&opt.ID, &opt.Name, &diff, &opt.IsDefault); err != nil {
			return nil, err
		}
		opt.PriceDifference = numericToDecimal(diff)
		options = append(options, opt)
	}
	return options, rows.Err()
}
