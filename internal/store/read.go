package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/roach88/autocat/internal/ir"
	"github.com/roach88/autocat/internal/querysql"
)

// ReadMembership returns the membership rows of one grouping ordered by
// item_id.
//
// Returns an empty slice (not nil) if the grouping has no rows.
func (s *Store) ReadMembership(ctx context.Context, groupingID int64) ([]ir.MembershipRow, error) {
	return s.readMembership(ctx, fmt.Sprintf(`
		SELECT grouping_id, item_id, position FROM %s
		WHERE grouping_id = ?
		ORDER BY grouping_id ASC, item_id ASC
	`, s.table), groupingID)
}

// ReadAllMembership returns every membership row ordered by
// (grouping_id, item_id).
func (s *Store) ReadAllMembership(ctx context.Context) ([]ir.MembershipRow, error) {
	return s.readMembership(ctx, fmt.Sprintf(`
		SELECT grouping_id, item_id, position FROM %s
		ORDER BY grouping_id ASC, item_id ASC
	`, s.table))
}

func (s *Store) readMembership(ctx context.Context, query string, args ...any) ([]ir.MembershipRow, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("query membership: %w", err)
	}
	defer rows.Close()

	out := []ir.MembershipRow{}
	for rows.Next() {
		var row ir.MembershipRow
		if err := rows.Scan(&row.GroupingID, &row.ItemID, &row.Position); err != nil {
			return nil, fmt.Errorf("scan membership: %w", err)
		}
		out = append(out, row)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate membership: %w", err)
	}
	return out, nil
}

// CountMembership returns the number of rows held by a grouping.
func (s *Store) CountMembership(ctx context.Context, groupingID int64) (int64, error) {
	var n int64
	query := s.rebind(fmt.Sprintf("SELECT COUNT(*) FROM %s WHERE grouping_id = ?", s.table))
	if err := s.db.QueryRowContext(ctx, query, groupingID).Scan(&n); err != nil {
		return 0, fmt.Errorf("count membership: %w", err)
	}
	return n, nil
}

// QueryIDs runs a compiled id query (see querysql.Compiler.CompileSelect)
// and returns the ids in result order.
func (s *Store) QueryIDs(ctx context.Context, stmt querysql.Statement) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, stmt.SQL, stmt.Args...)
	if err != nil {
		return nil, fmt.Errorf("query ids: %w", err)
	}
	defer rows.Close()

	ids := []int64{}
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("scan id: %w", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate ids: %w", err)
	}
	return ids, nil
}

// ReadItem returns one item with its attributes and categories.
// Returns sql.ErrNoRows (wrapped) when the item does not exist.
func (s *Store) ReadItem(ctx context.Context, id int64) (ir.Item, error) {
	var (
		item    ir.Item
		special sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT id, sku, name, price, special_price, status, visibility, sort_order, created_at
		FROM items WHERE id = ?
	`), id).Scan(
		&item.ID, &item.SKU, &item.Name, &item.Price, &special,
		&item.Status, &item.Visibility, &item.SortOrder, &item.CreatedAt,
	)
	if err != nil {
		return ir.Item{}, fmt.Errorf("read item %d: %w", id, err)
	}
	if special.Valid {
		item.SpecialPrice = &special.Int64
	}

	// Each helper closes its rows before returning: SQLite stores hold a
	// single connection.
	if item.Attributes, err = s.readItemAttributes(ctx, id); err != nil {
		return ir.Item{}, err
	}
	if item.Categories, err = s.readItemCategories(ctx, id); err != nil {
		return ir.Item{}, err
	}

	return item, nil
}

func (s *Store) readItemAttributes(ctx context.Context, id int64) (map[string]string, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT code, value FROM item_attributes WHERE item_id = ? ORDER BY code ASC, value ASC"), id)
	if err != nil {
		return nil, fmt.Errorf("read item %d attributes: %w", id, err)
	}
	defer rows.Close()

	var attrs map[string]string
	for rows.Next() {
		var code, value string
		if err := rows.Scan(&code, &value); err != nil {
			return nil, fmt.Errorf("scan attribute: %w", err)
		}
		if attrs == nil {
			attrs = make(map[string]string)
		}
		attrs[code] = value
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate attributes: %w", err)
	}
	return attrs, nil
}

func (s *Store) readItemCategories(ctx context.Context, id int64) ([]int64, error) {
	rows, err := s.db.QueryContext(ctx, s.rebind(
		"SELECT category_id FROM item_categories WHERE item_id = ? ORDER BY category_id ASC"), id)
	if err != nil {
		return nil, fmt.Errorf("read item %d categories: %w", id, err)
	}
	defer rows.Close()

	var categories []int64
	for rows.Next() {
		var categoryID int64
		if err := rows.Scan(&categoryID); err != nil {
			return nil, fmt.Errorf("scan category: %w", err)
		}
		categories = append(categories, categoryID)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate categories: %w", err)
	}
	return categories, nil
}
