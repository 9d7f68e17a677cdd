package ir

import (
	"cmp"
	"slices"
)

// MembershipRow is one persisted (grouping_id, item_id, position) tuple.
// At most one row exists per (GroupingID, ItemID).
type MembershipRow struct {
	GroupingID int64 `json:"grouping_id" yaml:"grouping"`
	ItemID     int64 `json:"item_id" yaml:"item"`
	Position   int64 `json:"position" yaml:"position"`
}

// IRObject returns the row as an IRObject for canonical encoding.
func (r MembershipRow) IRObject() IRObject {
	return IRObject{
		"grouping_id": IRInt(r.GroupingID),
		"item_id":     IRInt(r.ItemID),
		"position":    IRInt(r.Position),
	}
}

// SortRows returns a copy of rows ordered by (grouping_id, item_id).
func SortRows(rows []MembershipRow) []MembershipRow {
	out := slices.Clone(rows)
	slices.SortFunc(out, func(a, b MembershipRow) int {
		if c := cmp.Compare(a.GroupingID, b.GroupingID); c != 0 {
			return c
		}
		return cmp.Compare(a.ItemID, b.ItemID)
	})
	return out
}

// Item is a catalog entry. Prices are in minor units; CreatedAt is unix seconds.
type Item struct {
	ID           int64             `json:"id" yaml:"id"`
	SKU          string            `json:"sku" yaml:"sku"`
	Name         string            `json:"name" yaml:"name"`
	Price        int64             `json:"price" yaml:"price"`
	SpecialPrice *int64            `json:"special_price,omitempty" yaml:"special_price,omitempty"`
	Status       int64             `json:"status" yaml:"status"`
	Visibility   int64             `json:"visibility" yaml:"visibility"`
	SortOrder    int64             `json:"sort_order" yaml:"sort_order"`
	CreatedAt    int64             `json:"created_at" yaml:"created_at"`
	Attributes   map[string]string `json:"attributes,omitempty" yaml:"attributes,omitempty"`
	Categories   []int64           `json:"categories,omitempty" yaml:"categories,omitempty"`
}

// Category is a node in the catalog category tree.
// Path is the slash-joined id chain from the root, including the node itself.
type Category struct {
	ID       int64  `json:"id" yaml:"id"`
	ParentID int64  `json:"parent_id" yaml:"parent_id"`
	Name     string `json:"name" yaml:"name"`
	Path     string `json:"path" yaml:"path"`
}
