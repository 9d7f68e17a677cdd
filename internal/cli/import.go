package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/autocat/internal/catalog"
)

// NewImportCommand creates the import command.
func NewImportCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "import <catalog.yaml>",
		Short: "Load items and categories into the store",
		Long: `Write the categories and items of a YAML catalog file into the store.
Existing items with the same id are replaced.

Example:
  autocat import catalog.yaml --db ./autocat.db`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runImport(cmd, rootOpts, args[0])
		},
	}
	return cmd
}

func runImport(cmd *cobra.Command, opts *RootOptions, path string) error {
	f := newFormatter(opts, cmd)

	c, err := catalog.Load(path)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeCatalog, "failed to load catalog", err)
	}
	f.VerboseLog("Loaded catalog %s", path)

	ctx := cmd.Context()
	app, err := openApp(ctx, opts, f, appNeeds{})
	if err != nil {
		return err
	}
	defer app.Close(ctx)

	stats, err := c.Apply(ctx, app.Store)
	if err != nil {
		return f.fail(ExitCommandError, ErrCodeStore, "failed to import catalog", err)
	}

	if f.Format == "json" {
		return f.Success(stats)
	}
	return f.Success(fmt.Sprintf("\u2713 Imported %d categories and %d items", stats.Categories, stats.Items))
}
