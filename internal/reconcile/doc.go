// Package reconcile keeps a grouping's persisted membership rows in sync
// with its rule.
//
// One run issues at most two statements against the membership table:
//
//	DELETE rows of the grouping whose item no longer matches
//	INSERT rows for matching items that are missing (ON CONFLICT DO NOTHING)
//
// Both are set-oriented; matching runs inside the store. A run may be
// scoped to candidate item ids, in which case only rows for those ids are
// added or removed and everything else is left as it was.
//
// Runs are stateless. Running the same grouping twice without catalog
// changes makes no changes the second time, and an unscoped run leaves
// exactly the matching items in the grouping.
package reconcile
