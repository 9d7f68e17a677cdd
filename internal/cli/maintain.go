package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/autocat/internal/runner"
)

// MaintainOptions holds flags for the maintain command.
type MaintainOptions struct {
	*RootOptions
	All   bool
	Items []int64
}

// NewMaintainCommand creates the maintain command.
func NewMaintainCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &MaintainOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "maintain [grouping-id...]",
		Short: "Reconcile grouping membership",
		Long: `Bring the membership of one or more groupings in line with their rules.

With --items the run only touches the listed items; other rows are left
as they are. With --all every enabled grouping is maintained.

Example:
  autocat maintain 10 11
  autocat maintain 10 --items 1,2,3
  autocat maintain --all`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMaintain(cmd, opts, args)
		},
	}

	cmd.Flags().BoolVar(&opts.All, "all", false, "maintain every enabled grouping")
	cmd.Flags().Int64SliceVar(&opts.Items, "items", nil, "restrict the run to these item ids")

	return cmd
}

func runMaintain(cmd *cobra.Command, opts *MaintainOptions, args []string) error {
	f := newFormatter(opts.RootOptions, cmd)

	refs, err := parseIDs(args)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeArgs, "invalid grouping id", err)
	}
	if opts.All == (len(refs) > 0) {
		return f.fail(ExitCommandError, ErrCodeArgs, "pass grouping ids or --all", nil)
	}

	ctx := cmd.Context()
	app, err := openApp(ctx, opts.RootOptions, f, appNeeds{groupings: true})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	var report *runner.Report
	if opts.All {
		report = app.Runner.RunAll(ctx, app.Registry, opts.Items)
	} else {
		report = app.Runner.Run(ctx, refs, opts.Items)
	}

	if f.Format != "json" {
		printReport(f, report)
	}
	if !report.OK() {
		msg := fmt.Sprintf("%d of %d groupings failed", report.Failed, len(report.Outcomes))
		if err := f.Failure(ErrCodeRunFailed, msg, report); err != nil {
			return err
		}
		return NewExitError(ExitFailure, fmt.Sprintf("%s: %s", ErrCodeRunFailed, msg))
	}
	if f.Format == "json" {
		return f.Success(report)
	}
	return f.Success(fmt.Sprintf("\u2713 %d groupings maintained (%d deleted, %d inserted, %d skipped)",
		len(report.Outcomes), report.Deleted, report.Inserted, report.Skipped))
}

// printReport writes one line per grouping.
func printReport(f *OutputFormatter, report *runner.Report) {
	rows := make([][]string, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		row := []string{strconv.FormatInt(o.GroupingID, 10), "", "", "", ""}
		switch {
		case o.Err != nil:
			row[1] = "error"
			row[4] = o.Error
		case o.Result.Skipped != "":
			row[1] = "skipped"
			row[4] = string(o.Result.Skipped)
		default:
			row[1] = "ok"
		}
		if o.Result != nil {
			row[2] = strconv.FormatInt(o.Result.Deleted, 10)
			row[3] = strconv.FormatInt(o.Result.Inserted, 10)
		}
		rows = append(rows, row)
	}
	f.Table([]string{"GROUPING", "STATUS", "DELETED", "INSERTED", "NOTE"}, rows)
}

// parseIDs parses positive grouping ids from args.
func parseIDs(args []string) ([]int64, error) {
	ids := make([]int64, 0, len(args))
	for _, a := range args {
		id, err := strconv.ParseInt(a, 10, 64)
		if err != nil || id <= 0 {
			return nil, fmt.Errorf("%q is not a positive integer", a)
		}
		ids = append(ids, id)
	}
	return ids, nil
}
