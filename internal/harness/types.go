package harness

import "github.com/roach88/autocat/internal/ir"

// StepEvent records one grouping run inside a scenario.
// An All step produces one event per grouping.
type StepEvent struct {
	Step       int     `json:"step"`
	Action     string  `json:"action"`
	GroupingID int64   `json:"grouping_id"`
	Candidates []int64 `json:"candidates,omitempty"`
	Deleted    int64   `json:"deleted"`
	Inserted   int64   `json:"inserted"`
	Skipped    string  `json:"skipped,omitempty"`
	Error      string  `json:"error,omitempty"`
}

// Result is the outcome of a scenario execution.
type Result struct {
	// Pass is true when every expect clause and assertion held.
	Pass bool `json:"pass"`

	// Events lists grouping runs in execution order.
	Events []StepEvent `json:"events"`

	// Errors contains expectation and assertion failures.
	Errors []string `json:"errors,omitempty"`

	// Membership is the final membership, ordered by (grouping, item).
	Membership []ir.MembershipRow `json:"membership"`
}

// NewResult creates a new passing result.
func NewResult() *Result {
	return &Result{
		Pass:       true,
		Events:     []StepEvent{},
		Errors:     []string{},
		Membership: []ir.MembershipRow{},
	}
}

// AddError adds a failure and marks the result as failed.
func (r *Result) AddError(err string) {
	r.Errors = append(r.Errors, err)
	r.Pass = false
}

// AddEvent appends a grouping run to the log.
func (r *Result) AddEvent(e StepEvent) {
	r.Events = append(r.Events, e)
}
