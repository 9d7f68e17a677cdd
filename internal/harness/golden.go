package harness

import (
	"testing"

	"github.com/sebdah/goldie/v2"

	"github.com/roach88/autocat/internal/ir"
)

// Snapshot captures a scenario's run log and final membership.
type Snapshot struct {
	ScenarioName string             `json:"scenario_name"`
	Events       []StepEvent        `json:"events"`
	Membership   []ir.MembershipRow `json:"membership"`
}

// toCanonicalMap converts a Snapshot to a map[string]any for canonical JSON.
// Run ids and durations are left out so that snapshots are stable.
func (s *Snapshot) toCanonicalMap() map[string]any {
	events := make([]any, len(s.Events))
	for i, e := range s.Events {
		m := map[string]any{
			"step":        e.Step,
			"action":      e.Action,
			"grouping_id": e.GroupingID,
			"deleted":     e.Deleted,
			"inserted":    e.Inserted,
		}
		if e.Candidates != nil {
			candidates := make([]any, len(e.Candidates))
			for j, id := range e.Candidates {
				candidates[j] = id
			}
			m["candidates"] = candidates
		}
		if e.Skipped != "" {
			m["skipped"] = e.Skipped
		}
		if e.Error != "" {
			m["error"] = e.Error
		}
		events[i] = m
	}

	rows := make([]any, len(s.Membership))
	for i, r := range ir.SortRows(s.Membership) {
		rows[i] = r.IRObject()
	}

	return map[string]any{
		"scenario_name": s.ScenarioName,
		"events":        events,
		"membership":    rows,
	}
}

// MarshalSnapshot encodes a scenario result as canonical JSON.
func MarshalSnapshot(name string, result *Result) ([]byte, error) {
	snapshot := Snapshot{
		ScenarioName: name,
		Events:       result.Events,
		Membership:   result.Membership,
	}
	return ir.MarshalCanonical(snapshot.toCanonicalMap())
}

// RunWithGolden executes a scenario and compares its snapshot against
// testdata/golden/{scenario.Name}.golden.
//
// To regenerate golden files, run:
//
//	go test ./internal/harness -update
//
// Returns the result so callers can also check Pass and Errors.
func RunWithGolden(t *testing.T, scenario *Scenario) (*Result, error) {
	t.Helper()

	result, err := Run(scenario)
	if err != nil {
		return nil, err
	}
	if err := AssertGolden(t, scenario.Name, result); err != nil {
		return nil, err
	}
	return result, nil
}

// AssertGolden compares an existing result against its golden file.
func AssertGolden(t *testing.T, scenarioName string, result *Result) error {
	t.Helper()

	data, err := MarshalSnapshot(scenarioName, result)
	if err != nil {
		return err
	}

	g := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	g.Assert(t, scenarioName, data)
	return nil
}
