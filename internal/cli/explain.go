package cli

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/autocat/internal/config"
	"github.com/roach88/autocat/internal/grouping"
	"github.com/roach88/autocat/internal/reconcile"
)

// ExplainOptions holds flags for the explain command.
type ExplainOptions struct {
	*RootOptions
	Items   []int64
	Matches bool
}

// ExplainOutput is the JSON payload of explain.
type ExplainOutput struct {
	Plan    *reconcile.Plan `json:"plan"`
	Matches []int64         `json:"matches,omitempty"`
}

// NewExplainCommand creates the explain command.
func NewExplainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ExplainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "explain <grouping-id>",
		Short: "Show the statements a run would execute",
		Long: `Compile a grouping and print the match, delete and insert statements
without touching the membership table.

Example:
  autocat explain 10
  autocat explain 10 --items 4,5 --matches`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExplain(cmd, opts, args[0])
		},
	}

	cmd.Flags().Int64SliceVar(&opts.Items, "items", nil, "restrict the plan to these item ids")
	cmd.Flags().BoolVar(&opts.Matches, "matches", false, "also run the match query and list matching items")

	return cmd
}

func runExplain(cmd *cobra.Command, opts *ExplainOptions, arg string) error {
	f := newFormatter(opts.RootOptions, cmd)

	ids, err := parseIDs([]string{arg})
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeArgs, "invalid grouping id", err)
	}

	ctx := cmd.Context()
	app, err := openApp(ctx, opts.RootOptions, f, appNeeds{groupings: true})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	g, err := app.Registry.Lookup(ids[0])
	if err != nil {
		if errors.Is(err, grouping.ErrGroupingNotFound) {
			return f.fail(ExitFailure, config.ErrCodeNotFound, fmt.Sprintf("grouping %d not found", ids[0]), nil)
		}
		return f.fail(ExitFailure, config.ErrCodeGeneric, "lookup failed", err)
	}

	plan, err := app.Reconciler.Plan(g, opts.Items)
	if err != nil {
		return f.fail(ExitFailure, config.ErrCodeInvalidRule, "failed to plan grouping", err)
	}

	out := ExplainOutput{Plan: plan}
	if opts.Matches && plan.Skipped == "" {
		out.Matches, err = app.Store.QueryIDs(ctx, plan.Match)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeStore, "match query failed", err)
		}
	}

	if f.Format == "json" {
		return f.Success(out)
	}

	w := f.Writer
	fmt.Fprintf(w, "grouping:    %d\n", plan.GroupingID)
	fmt.Fprintf(w, "fingerprint: %s\n", plan.Fingerprint)
	fmt.Fprintf(w, "table:       %s\n", plan.Table)
	if plan.Scoped {
		fmt.Fprintf(w, "candidates:  %v\n", plan.Candidates)
	}
	if plan.Skipped != "" {
		fmt.Fprintf(w, "skipped:     %s\n", plan.Skipped)
		return nil
	}
	fmt.Fprintf(w, "\nmatch:\n  %s\n", plan.Match)
	fmt.Fprintf(w, "\ndelete:\n  %s\n", plan.Delete)
	fmt.Fprintf(w, "\ninsert:\n  %s\n", plan.Insert)
	if opts.Matches {
		fmt.Fprintf(w, "\nmatches (%d):", len(out.Matches))
		for _, id := range out.Matches {
			fmt.Fprint(w, " "+strconv.FormatInt(id, 10))
		}
		fmt.Fprintln(w)
	}
	return nil
}
