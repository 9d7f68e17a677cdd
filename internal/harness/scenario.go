package harness

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"slices"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/roach88/autocat/internal/catalog"
	"github.com/roach88/autocat/internal/config"
	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/ir"
)

// DefaultNow is the scenario clock when no `now` is given.
var DefaultNow = time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

// Scenario defines a membership scenario.
type Scenario struct {
	// Name uniquely identifies this scenario. Also names its golden file.
	Name string `yaml:"name"`

	// Description explains what this scenario validates.
	Description string `yaml:"description"`

	// Now fixes the clock (RFC 3339). Defaults to DefaultNow.
	Now string `yaml:"now,omitempty"`

	// Groupings are inline grouping definitions.
	Groupings []GroupingDef `yaml:"groupings,omitempty"`

	// GroupingsDir points at a CUE groupings directory.
	GroupingsDir string `yaml:"groupings_dir,omitempty"`

	// Catalog is the inline seed catalog.
	Catalog *catalog.Catalog `yaml:"catalog,omitempty"`

	// CatalogFile points at a catalog YAML file.
	CatalogFile string `yaml:"catalog_file,omitempty"`

	// Membership holds rows present before the first step.
	Membership []ir.MembershipRow `yaml:"membership,omitempty"`

	// Steps run in order.
	Steps []Step `yaml:"steps"`

	// Assertions validate the final membership.
	Assertions []Assertion `yaml:"assertions"`
}

// GroupingDef is an inline grouping. Rule and Position use the same
// parameter shapes as CUE definitions.
type GroupingDef struct {
	ID       int64          `yaml:"id"`
	Name     string         `yaml:"name,omitempty"`
	Enabled  *bool          `yaml:"enabled,omitempty"`
	Kind     string         `yaml:"kind"`
	Rule     map[string]any `yaml:"rule,omitempty"`
	Position map[string]any `yaml:"position,omitempty"`
}

// Grouping builds the definition into a grouping.Grouping.
func (d GroupingDef) Grouping() (grouping.Grouping, error) {
	params, err := toObject(d.Rule)
	if err != nil {
		return grouping.Grouping{}, fmt.Errorf("rule: %w", err)
	}
	rule, err := grouping.Build(grouping.Kind(d.Kind), params)
	if err != nil {
		return grouping.Grouping{}, err
	}
	var posDef ir.IRObject
	if len(d.Position) > 0 {
		if posDef, err = toObject(d.Position); err != nil {
			return grouping.Grouping{}, fmt.Errorf("position: %w", err)
		}
	}
	position, err := grouping.ParsePosition(posDef)
	if err != nil {
		return grouping.Grouping{}, err
	}
	g := grouping.Grouping{
		ID:       d.ID,
		Name:     d.Name,
		Enabled:  d.Enabled == nil || *d.Enabled,
		Rule:     rule,
		Position: position,
	}
	return g, g.Validate()
}

// Step is one scenario action. Exactly one of Maintain, All, Upsert,
// DeleteItems and Advance is set.
type Step struct {
	// Maintain runs one grouping.
	Maintain int64 `yaml:"maintain,omitempty"`

	// All runs every grouping through the batch runner.
	All bool `yaml:"all,omitempty"`

	// Items scopes Maintain and All. Absent or empty means a full run; a
	// list with no positive id is an empty scope.
	Items []int64 `yaml:"items,omitempty"`

	// Upsert writes categories and items.
	Upsert *catalog.Catalog `yaml:"upsert,omitempty"`

	// DeleteItems removes items from the catalog. Their membership rows
	// stay until the next run.
	DeleteItems []int64 `yaml:"delete_items,omitempty"`

	// Advance moves the clock, e.g. "48h".
	Advance string `yaml:"advance,omitempty"`

	// Expect checks the step outcome. For All it checks the batch totals.
	Expect *Expect `yaml:"expect,omitempty"`
}

// Action names the step kind.
func (s Step) Action() string {
	switch {
	case s.Maintain != 0:
		return ActionMaintain
	case s.All:
		return ActionMaintainAll
	case s.Upsert != nil:
		return ActionUpsert
	case len(s.DeleteItems) > 0:
		return ActionDeleteItems
	case s.Advance != "":
		return ActionAdvance
	default:
		return ""
	}
}

func (s Step) actionCount() int {
	n := 0
	for _, set := range []bool{s.Maintain != 0, s.All, s.Upsert != nil, len(s.DeleteItems) > 0, s.Advance != ""} {
		if set {
			n++
		}
	}
	return n
}

// Step actions.
const (
	ActionMaintain    = "maintain"
	ActionMaintainAll = "maintain_all"
	ActionUpsert      = "upsert"
	ActionDeleteItems = "delete_items"
	ActionAdvance     = "advance"
)

// Expect is a subset match on a step's outcome. Nil fields are not checked.
type Expect struct {
	Deleted  *int64  `yaml:"deleted,omitempty"`
	Inserted *int64  `yaml:"inserted,omitempty"`
	Skipped  *string `yaml:"skipped,omitempty"`

	// Error is the expected reconcile error code; "" expects success.
	Error *string `yaml:"error,omitempty"`

	// Failed is the expected number of failed groupings (All only).
	Failed *int `yaml:"failed,omitempty"`
}

// Assertion validates final membership.
type Assertion struct {
	// Type is one of the Assert* constants.
	Type string `yaml:"type"`

	// Grouping is the grouping the assertion reads.
	Grouping int64 `yaml:"grouping"`

	// Items is the expected item set (membership), or the items checked
	// by contains and excludes.
	Items []int64 `yaml:"items,omitempty"`

	// Positions maps item id to expected position (membership only).
	Positions map[int64]int64 `yaml:"positions,omitempty"`

	// Count is the expected row count (membership_count).
	Count *int `yaml:"count,omitempty"`
}

// Assertion type constants.
const (
	AssertMembership      = "membership"
	AssertMembershipCount = "membership_count"
	AssertContains        = "contains"
	AssertExcludes        = "excludes"
	AssertUntouched       = "untouched"
)

// LoadScenario reads and parses a scenario YAML file.
// Relative groupings_dir and catalog_file paths are resolved against the
// scenario's directory. Unknown fields are rejected.
func LoadScenario(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read scenario file: %w", err)
	}

	var scenario Scenario
	decoder := yaml.NewDecoder(bytes.NewReader(data))
	decoder.KnownFields(true)
	if err := decoder.Decode(&scenario); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	base := filepath.Dir(path)
	if scenario.GroupingsDir != "" && !filepath.IsAbs(scenario.GroupingsDir) {
		scenario.GroupingsDir = filepath.Join(base, scenario.GroupingsDir)
	}
	if scenario.CatalogFile != "" && !filepath.IsAbs(scenario.CatalogFile) {
		scenario.CatalogFile = filepath.Join(base, scenario.CatalogFile)
	}

	if err := validateScenario(&scenario); err != nil {
		return nil, fmt.Errorf("invalid scenario: %w", err)
	}
	return &scenario, nil
}

// Clock returns the scenario's start time.
func (s *Scenario) Clock() (time.Time, error) {
	if s.Now == "" {
		return DefaultNow, nil
	}
	t, err := time.Parse(time.RFC3339, s.Now)
	if err != nil {
		return time.Time{}, fmt.Errorf("now: %w", err)
	}
	return t.UTC(), nil
}

// Registry builds the grouping registry from groupings_dir and inline
// definitions.
func (s *Scenario) Registry() (*grouping.Registry, error) {
	reg := grouping.NewRegistry()
	if s.GroupingsDir != "" {
		res, errs := config.LoadGroupings(s.GroupingsDir, config.LoadModeFailFast)
		if len(errs) > 0 {
			return nil, fmt.Errorf("groupings_dir: %w", errs[0])
		}
		reg = res.Registry
	}
	for i, def := range s.Groupings {
		g, err := def.Grouping()
		if err != nil {
			return nil, fmt.Errorf("groupings[%d]: %w", i, err)
		}
		if err := reg.Register(g); err != nil {
			return nil, fmt.Errorf("groupings[%d]: %w", i, err)
		}
	}
	return reg, nil
}

// SeedCatalog returns the inline catalog or loads catalog_file.
func (s *Scenario) SeedCatalog() (*catalog.Catalog, error) {
	if s.CatalogFile != "" {
		return catalog.Load(s.CatalogFile)
	}
	if s.Catalog == nil {
		return &catalog.Catalog{}, nil
	}
	return s.Catalog, nil
}

// validateScenario checks that required fields are present and valid.
func validateScenario(s *Scenario) error {
	if s.Name == "" {
		return fmt.Errorf("name is required")
	}
	if s.Description == "" {
		return fmt.Errorf("description is required")
	}
	if len(s.Groupings) == 0 && s.GroupingsDir == "" {
		return fmt.Errorf("groupings or groupings_dir is required")
	}
	if s.Catalog != nil && s.CatalogFile != "" {
		return fmt.Errorf("catalog and catalog_file are mutually exclusive")
	}
	if s.Catalog != nil {
		if err := s.Catalog.Validate(); err != nil {
			return fmt.Errorf("catalog: %w", err)
		}
	}
	if s.CatalogFile != "" {
		if _, err := os.Stat(s.CatalogFile); err != nil {
			return fmt.Errorf("catalog file not found: %s", s.CatalogFile)
		}
	}
	if _, err := s.Clock(); err != nil {
		return err
	}
	if len(s.Steps) == 0 {
		return fmt.Errorf("steps list is required and must be non-empty")
	}
	if len(s.Assertions) == 0 {
		return fmt.Errorf("assertions list is required and must be non-empty")
	}

	for i, row := range s.Membership {
		if row.GroupingID <= 0 || row.ItemID <= 0 || row.Position < 0 {
			return fmt.Errorf("membership[%d]: grouping and item must be positive, position non-negative", i)
		}
	}

	for i, step := range s.Steps {
		if err := validateStep(i, step); err != nil {
			return err
		}
	}

	for i, assertion := range s.Assertions {
		if err := validateAssertion(i, &assertion); err != nil {
			return err
		}
	}
	return nil
}

func validateStep(index int, step Step) error {
	if step.actionCount() != 1 {
		return fmt.Errorf("steps[%d]: exactly one of maintain, all, upsert, delete_items, advance is required", index)
	}
	action := step.Action()
	if step.Items != nil && action != ActionMaintain && action != ActionMaintainAll {
		return fmt.Errorf("steps[%d]: items only applies to maintain and all", index)
	}
	if step.Expect != nil && action != ActionMaintain && action != ActionMaintainAll {
		return fmt.Errorf("steps[%d]: expect only applies to maintain and all", index)
	}
	if step.Expect != nil && step.Expect.Failed != nil && action != ActionMaintainAll {
		return fmt.Errorf("steps[%d].expect: failed only applies to all", index)
	}
	if action == ActionAdvance {
		d, err := time.ParseDuration(step.Advance)
		if err != nil {
			return fmt.Errorf("steps[%d]: advance: %w", index, err)
		}
		if d < 0 {
			return fmt.Errorf("steps[%d]: advance must not be negative", index)
		}
	}
	return nil
}

// validateAssertion validates a single assertion based on its type.
func validateAssertion(index int, a *Assertion) error {
	if a.Type == "" {
		return fmt.Errorf("assertions[%d]: type is required", index)
	}
	if a.Grouping <= 0 {
		return fmt.Errorf("assertions[%d]: grouping is required", index)
	}

	switch a.Type {
	case AssertMembership:
		if a.Items == nil {
			return fmt.Errorf("assertions[%d]: items is required for membership (use [] for none)", index)
		}
		for item := range a.Positions {
			if !slices.Contains(a.Items, item) {
				return fmt.Errorf("assertions[%d]: position given for item %d which is not in items", index, item)
			}
		}
	case AssertMembershipCount:
		if a.Count == nil || *a.Count < 0 {
			return fmt.Errorf("assertions[%d]: non-negative count is required for membership_count", index)
		}
	case AssertContains, AssertExcludes:
		if len(a.Items) == 0 {
			return fmt.Errorf("assertions[%d]: items is required for %s", index, a.Type)
		}
	case AssertUntouched:
	default:
		return fmt.Errorf("assertions[%d]: unknown assertion type %q", index, a.Type)
	}
	return nil
}

// toObject converts YAML-decoded parameters to an IRObject.
func toObject(m map[string]any) (ir.IRObject, error) {
	if m == nil {
		return ir.IRObject{}, nil
	}
	v, err := ir.ToIRValue(m)
	if err != nil {
		return nil, err
	}
	obj, ok := v.(ir.IRObject)
	if !ok {
		return nil, fmt.Errorf("expected an object")
	}
	return obj, nil
}
