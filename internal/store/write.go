package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"strings"

	"github.com/roach88/autocat/internal/ir"
)

// ErrCategoryParentMissing is returned when a category's parent has not
// been written yet.
var ErrCategoryParentMissing = errors.New("parent category not found")

// ErrCategoryCycle is returned when a category would become its own
// ancestor.
var ErrCategoryCycle = errors.New("category cannot be its own ancestor")

// WriteItem inserts or replaces an item with its attributes and category
// assignments. The whole item is written in one transaction.
//
// Uses ON CONFLICT(id) DO UPDATE so re-importing a catalog is idempotent.
// Attributes and categories are replaced, not merged.
func (s *Store) WriteItem(ctx context.Context, item ir.Item) error {
	if item.ID <= 0 {
		return fmt.Errorf("write item: id must be positive, got %d", item.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("write item %d: begin tx: %w", item.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	var special sql.NullInt64
	if item.SpecialPrice != nil {
		special = sql.NullInt64{Int64: *item.SpecialPrice, Valid: true}
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO items
		(id, sku, name, price, special_price, status, visibility, sort_order, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			sku = excluded.sku,
			name = excluded.name,
			price = excluded.price,
			special_price = excluded.special_price,
			status = excluded.status,
			visibility = excluded.visibility,
			sort_order = excluded.sort_order,
			created_at = excluded.created_at
	`),
		item.ID,
		ir.NormalizeString(item.SKU),
		ir.NormalizeString(item.Name),
		item.Price,
		special,
		item.Status,
		item.Visibility,
		item.SortOrder,
		item.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write item %d: %w", item.ID, err)
	}

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM item_attributes WHERE item_id = ?"), item.ID); err != nil {
		return fmt.Errorf("write item %d: clear attributes: %w", item.ID, err)
	}
	codes := make([]string, 0, len(item.Attributes))
	for code := range item.Attributes {
		codes = append(codes, code)
	}
	slices.Sort(codes)
	for _, code := range codes {
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO item_attributes (item_id, code, value) VALUES (?, ?, ?)
			ON CONFLICT DO NOTHING
		`), item.ID, ir.NormalizeString(code), ir.NormalizeString(item.Attributes[code]))
		if err != nil {
			return fmt.Errorf("write item %d: attribute %q: %w", item.ID, code, err)
		}
	}

	if _, err := tx.ExecContext(ctx, s.rebind("DELETE FROM item_categories WHERE item_id = ?"), item.ID); err != nil {
		return fmt.Errorf("write item %d: clear categories: %w", item.ID, err)
	}
	for _, categoryID := range item.Categories {
		_, err := tx.ExecContext(ctx, s.rebind(`
			INSERT INTO item_categories (item_id, category_id) VALUES (?, ?)
			ON CONFLICT DO NOTHING
		`), item.ID, categoryID)
		if err != nil {
			return fmt.Errorf("write item %d: category %d: %w", item.ID, categoryID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("write item %d: commit: %w", item.ID, err)
	}
	return nil
}

// DeleteItem removes an item with its attributes and category assignments.
// Membership rows are left for the next reconciliation to remove.
func (s *Store) DeleteItem(ctx context.Context, id int64) error {
	if _, err := s.db.ExecContext(ctx, s.rebind("DELETE FROM items WHERE id = ?"), id); err != nil {
		return fmt.Errorf("delete item %d: %w", id, err)
	}
	return nil
}

// WriteCategory inserts or replaces a category. Its materialized path is
// computed from the parent, which must already exist. ParentID 0 marks a
// root category.
//
// Moving an existing category rewrites the paths of all its descendants in
// the same transaction. A category cannot be moved under itself or one of
// its descendants.
//
// Returns the category with Path filled in.
func (s *Store) WriteCategory(ctx context.Context, c ir.Category) (ir.Category, error) {
	if c.ID <= 0 {
		return ir.Category{}, fmt.Errorf("write category: id must be positive, got %d", c.ID)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ir.Category{}, fmt.Errorf("write category %d: begin tx: %w", c.ID, err)
	}
	defer tx.Rollback() // No-op if committed

	self := strconv.FormatInt(c.ID, 10)
	c.Path = self
	var parent sql.NullInt64
	if c.ParentID != 0 {
		var parentPath string
		err := tx.QueryRowContext(ctx, s.rebind("SELECT path FROM categories WHERE id = ?"), c.ParentID).Scan(&parentPath)
		if errors.Is(err, sql.ErrNoRows) {
			return ir.Category{}, fmt.Errorf("write category %d: %w: %d", c.ID, ErrCategoryParentMissing, c.ParentID)
		}
		if err != nil {
			return ir.Category{}, fmt.Errorf("write category %d: read parent: %w", c.ID, err)
		}
		if slices.Contains(strings.Split(parentPath, "/"), self) {
			return ir.Category{}, fmt.Errorf("write category %d: %w: %d", c.ID, ErrCategoryCycle, c.ParentID)
		}
		c.Path = parentPath + "/" + self
		parent = sql.NullInt64{Int64: c.ParentID, Valid: true}
	}

	var oldPath string
	err = tx.QueryRowContext(ctx, s.rebind("SELECT path FROM categories WHERE id = ?"), c.ID).Scan(&oldPath)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return ir.Category{}, fmt.Errorf("write category %d: read current path: %w", c.ID, err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`
		INSERT INTO categories (id, parent_id, name, path) VALUES (?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			parent_id = excluded.parent_id,
			name = excluded.name,
			path = excluded.path
	`), c.ID, parent, ir.NormalizeString(c.Name), c.Path)
	if err != nil {
		return ir.Category{}, fmt.Errorf("write category %d: %w", c.ID, err)
	}

	if oldPath != "" && oldPath != c.Path {
		// Descendant paths are "<oldPath>/...": keep the suffix from the slash on.
		_, err = tx.ExecContext(ctx, s.rebind(`
			UPDATE categories SET path = CAST(? AS TEXT) || substr(path, CAST(? AS INTEGER))
			WHERE path LIKE CAST(? AS TEXT)
		`), c.Path, len(oldPath)+1, oldPath+"/%")
		if err != nil {
			return ir.Category{}, fmt.Errorf("write category %d: move descendants: %w", c.ID, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return ir.Category{}, fmt.Errorf("write category %d: commit: %w", c.ID, err)
	}
	return c, nil
}

// WriteMembership inserts membership rows directly, bypassing any grouping
// rule. Used to seed state for tests and imports.
//
// Uses ON CONFLICT(grouping_id, item_id) DO NOTHING; returns the number of
// rows actually inserted.
func (s *Store) WriteMembership(ctx context.Context, rows []ir.MembershipRow) (int64, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("write membership: begin tx: %w", err)
	}
	defer tx.Rollback() // No-op if committed

	query := s.rebind(fmt.Sprintf(`
		INSERT INTO %s (grouping_id, item_id, position) VALUES (?, ?, ?)
		ON CONFLICT (grouping_id, item_id) DO NOTHING
	`, s.table))

	var inserted int64
	for _, row := range rows {
		res, err := tx.ExecContext(ctx, query, row.GroupingID, row.ItemID, row.Position)
		if err != nil {
			return 0, fmt.Errorf("write membership (%d, %d): %w", row.GroupingID, row.ItemID, err)
		}
		n, err := res.RowsAffected()
		if err != nil {
			return 0, fmt.Errorf("write membership: rows affected: %w", err)
		}
		inserted += n
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("write membership: commit: %w", err)
	}
	return inserted, nil
}
