package harness

import (
	"fmt"
	"slices"
	"strings"

	"github.com/roach88/autocat/internal/ir"
)

// AssertionError is returned when an assertion fails.
// It includes the step log to help debug the failure.
type AssertionError struct {
	Type     string      // Assertion type for categorization
	Grouping int64       // Grouping the assertion read
	Expected string      // Human-readable expected outcome
	Actual   string      // Human-readable actual outcome
	Events   []StepEvent // Step log for context
}

// Error implements the error interface.
func (e *AssertionError) Error() string {
	var buf strings.Builder

	fmt.Fprintf(&buf, "Assertion failed: %s (grouping %d)\n", e.Type, e.Grouping)
	fmt.Fprintf(&buf, "  Expected: %s\n", e.Expected)
	fmt.Fprintf(&buf, "  Actual: %s\n", e.Actual)

	if len(e.Events) > 0 {
		fmt.Fprintf(&buf, "\nRuns:\n")
		for _, ev := range e.Events {
			fmt.Fprintf(&buf, "  [step %d] %s grouping=%d deleted=%d inserted=%d", ev.Step, ev.Action, ev.GroupingID, ev.Deleted, ev.Inserted)
			if ev.Skipped != "" {
				fmt.Fprintf(&buf, " skipped=%s", ev.Skipped)
			}
			if ev.Error != "" {
				fmt.Fprintf(&buf, " error=%s", ev.Error)
			}
			buf.WriteString("\n")
		}
	}
	return buf.String()
}

// AssertionContext carries the membership snapshots assertions read.
type AssertionContext struct {
	Initial []ir.MembershipRow
	Final   []ir.MembershipRow
}

// itemIDs returns the sorted item ids of rows.
func itemIDs(rows []ir.MembershipRow) []int64 {
	ids := make([]int64, len(rows))
	for i, r := range rows {
		ids[i] = r.ItemID
	}
	slices.Sort(ids)
	return ids
}

// assertMembership checks the exact item set and any listed positions.
func assertMembership(rows []ir.MembershipRow, a Assertion, events []StepEvent) error {
	want := slices.Clone(a.Items)
	slices.Sort(want)
	got := itemIDs(rows)
	if !slices.Equal(want, got) {
		return &AssertionError{
			Type:     AssertMembership,
			Grouping: a.Grouping,
			Expected: fmt.Sprintf("items %v", want),
			Actual:   fmt.Sprintf("items %v", got),
			Events:   events,
		}
	}
	for _, r := range rows {
		pos, ok := a.Positions[r.ItemID]
		if ok && pos != r.Position {
			return &AssertionError{
				Type:     AssertMembership,
				Grouping: a.Grouping,
				Expected: fmt.Sprintf("item %d at position %d", r.ItemID, pos),
				Actual:   fmt.Sprintf("item %d at position %d", r.ItemID, r.Position),
				Events:   events,
			}
		}
	}
	return nil
}

// assertMembershipCount checks the number of rows.
func assertMembershipCount(rows []ir.MembershipRow, a Assertion, events []StepEvent) error {
	if len(rows) != *a.Count {
		return &AssertionError{
			Type:     AssertMembershipCount,
			Grouping: a.Grouping,
			Expected: fmt.Sprintf("%d rows", *a.Count),
			Actual:   fmt.Sprintf("%d rows %v", len(rows), itemIDs(rows)),
			Events:   events,
		}
	}
	return nil
}

// assertContains checks that every listed item is a member.
func assertContains(rows []ir.MembershipRow, a Assertion, events []StepEvent) error {
	got := itemIDs(rows)
	var missing []int64
	for _, id := range a.Items {
		if !slices.Contains(got, id) {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return &AssertionError{
			Type:     AssertContains,
			Grouping: a.Grouping,
			Expected: fmt.Sprintf("items %v present", a.Items),
			Actual:   fmt.Sprintf("missing %v from %v", missing, got),
			Events:   events,
		}
	}
	return nil
}

// assertExcludes checks that no listed item is a member.
func assertExcludes(rows []ir.MembershipRow, a Assertion, events []StepEvent) error {
	got := itemIDs(rows)
	var present []int64
	for _, id := range a.Items {
		if slices.Contains(got, id) {
			present = append(present, id)
		}
	}
	if len(present) > 0 {
		return &AssertionError{
			Type:     AssertExcludes,
			Grouping: a.Grouping,
			Expected: fmt.Sprintf("items %v absent", a.Items),
			Actual:   fmt.Sprintf("found %v", present),
			Events:   events,
		}
	}
	return nil
}

// assertUntouched checks that a grouping's rows equal its seeded rows.
func assertUntouched(initial, final []ir.MembershipRow, a Assertion, events []StepEvent) error {
	before := ir.SortRows(initial)
	after := ir.SortRows(final)
	if !slices.Equal(before, after) {
		return &AssertionError{
			Type:     AssertUntouched,
			Grouping: a.Grouping,
			Expected: fmt.Sprintf("rows %v", before),
			Actual:   fmt.Sprintf("rows %v", after),
			Events:   events,
		}
	}
	return nil
}

// EvaluateAssertions evaluates all assertions against the final membership.
// Returns a slice of error messages for failed assertions.
func EvaluateAssertions(result *Result, assertions []Assertion, actx *AssertionContext) []string {
	var errors []string
	if actx == nil {
		actx = &AssertionContext{}
	}

	for i, assertion := range assertions {
		rows := rowsFor(actx.Final, assertion.Grouping)

		var err error
		switch assertion.Type {
		case AssertMembership:
			err = assertMembership(rows, assertion, result.Events)
		case AssertMembershipCount:
			if assertion.Count == nil {
				err = fmt.Errorf("assertion[%d]: membership_count requires count", i)
			} else {
				err = assertMembershipCount(rows, assertion, result.Events)
			}
		case AssertContains:
			err = assertContains(rows, assertion, result.Events)
		case AssertExcludes:
			err = assertExcludes(rows, assertion, result.Events)
		case AssertUntouched:
			err = assertUntouched(rowsFor(actx.Initial, assertion.Grouping), rows, assertion, result.Events)
		default:
			err = fmt.Errorf("assertion[%d]: unknown assertion type %q", i, assertion.Type)
		}

		if err != nil {
			errors = append(errors, err.Error())
		}
	}
	return errors
}
