// Package harness runs membership scenarios against a fresh store.
//
// A scenario seeds a catalog and initial membership, runs maintenance
// steps through the real reconciler and batch runner, then checks the
// resulting rows.
//
// # Scenario Format
//
//	name: scoped_run
//	description: "A scoped run only touches its candidates"
//	now: "2024-06-01T00:00:00Z"
//	groupings:
//	  - id: 7
//	    kind: attribute
//	    rule: {code: color, values: [red]}
//	catalog_file: ../catalogs/basic.yaml
//	membership:
//	  - {grouping: 7, item: 1, position: 0}
//	steps:
//	  - maintain: 7
//	    items: [3]
//	    expect: {deleted: 0, inserted: 1}
//	  - upsert:
//	      items: [{id: 3, sku: X, name: X, price: 100}]
//	  - advance: 24h
//	  - all: true
//	assertions:
//	  - type: membership
//	    grouping: 7
//	    items: [1, 2, 3]
//	  - type: untouched
//	    grouping: 9
//
// Groupings can also come from a CUE directory via groupings_dir. Paths
// are resolved relative to the scenario file.
//
// # Steps
//
// Each step sets exactly one of:
//
//   - maintain: run one grouping, optionally scoped by items
//   - all: run every grouping through the batch runner
//   - upsert: write categories and items
//   - delete_items: remove items from the catalog
//   - advance: move the scenario clock forward
//
// # Assertion Types
//
//   - membership: the grouping's item set equals items; positions, if
//     given, must match for the listed items
//   - membership_count: the grouping has exactly count rows
//   - contains: every listed item is a member
//   - excludes: no listed item is a member
//   - untouched: the grouping's rows equal its seeded rows
//
// # Deterministic Testing
//
// Runs use a fixed clock, sequential run ids and an in-memory SQLite
// store, so the step log and final membership are reproducible and can
// be compared with golden files.
package harness
