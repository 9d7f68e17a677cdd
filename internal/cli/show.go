package cli

import (
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/roach88/autocat/internal/config"
	"github.com/roach88/autocat/internal/ir"
)

// ShowOutput is the JSON payload of show.
type ShowOutput struct {
	GroupingID int64              `json:"grouping_id"`
	Table      string             `json:"table"`
	Digest     string             `json:"digest"`
	Rows       []ir.MembershipRow `json:"rows"`
}

// NewShowCommand creates the show command.
func NewShowCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "show <grouping-id>",
		Short: "List the current members of a grouping",
		Long: `Print the membership rows stored for a grouping, ordered by item id.

Example:
  autocat show 10
  autocat show 10 --format json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runShow(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runShow(cmd *cobra.Command, opts *RootOptions, arg string) error {
	f := newFormatter(opts, cmd)

	ids, err := parseIDs([]string{arg})
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeArgs, "invalid grouping id", err)
	}

	ctx := cmd.Context()
	app, err := openApp(ctx, opts, f, appNeeds{})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	rows, err := app.Store.ReadMembership(ctx, ids[0])
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to read membership", err)
	}

	if f.Format == "json" {
		digest, err := ir.MembershipDigest(rows)
		if err != nil {
			return f.fail(ExitCommandError, config.ErrCodeGeneric, "failed to digest membership", err)
		}
		return f.Success(ShowOutput{GroupingID: ids[0], Table: app.Store.MembershipTable(), Digest: digest, Rows: rows})
	}

	if len(rows) == 0 {
		return f.Success(fmt.Sprintf("grouping %d has no members", ids[0]))
	}
	table := make([][]string, len(rows))
	for i, r := range rows {
		table[i] = []string{strconv.FormatInt(r.ItemID, 10), strconv.FormatInt(r.Position, 10)}
	}
	f.Table([]string{"ITEM", "POSITION"}, table)
	return f.Success(fmt.Sprintf("%d members", len(rows)))
}
