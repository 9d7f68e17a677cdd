// Package grouping defines computed product groupings and the predicate
// filter that narrows the item universe to a grouping's members.
//
// A Grouping pairs a stable id with one Rule from a closed set of variants
// (attribute, field, category, date_range, new_arrivals, price_range,
// on_sale, all_of). The variant is selected by its Kind tag; Build
// constructs a rule from a tag and its parameters.
//
// Rules never look at items. Apply translates a rule into queryir
// predicates AND-ed onto a universe query, so the store evaluates the
// match. WithCandidates adds an independent id restriction that scopes a
// run to specific items without changing what the rule matches.
package grouping
