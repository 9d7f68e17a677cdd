// Package store provides the SQL-backed catalog and membership storage.
//
// The store owns four catalog tables, read by compiled grouping queries,
// and one membership table whose name is injected at open time:
//   - items: product rows with the columns rules filter on
//   - item_attributes: EAV attribute values (item_id, code, value)
//   - item_categories: category assignments (item_id, category_id)
//   - categories: category tree with materialized paths ("1/4/9")
//   - <membership>: (grouping_id, item_id, position), UNIQUE(grouping_id, item_id)
//
// Two drivers are supported: mattn/go-sqlite3 ("sqlite3", the default) and
// the pgx database/sql driver ("pgx"). The schema is portable between them.
//
// # SQLite configuration
//
//   - WAL mode: Concurrent reads during writes
//   - synchronous=NORMAL: Balance durability/performance
//   - busy_timeout=5000: Wait for locks up to 5 seconds
//   - foreign_keys=ON: Enforce referential integrity
//
// Membership reads are ordered by (grouping_id, item_id) so snapshots are
// deterministic.
package store
