package cli

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/roach88/autocat/internal/config"
)

// ValidationIssue is one problem found in the groupings.
type ValidationIssue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	File    string `json:"file,omitempty"`
	Line    int    `json:"line,omitempty"`
}

// ValidationResult holds validation results.
type ValidationResult struct {
	Valid     bool              `json:"valid"`
	Files     int               `json:"files,omitempty"`
	Groupings int               `json:"groupings"`
	Errors    []ValidationIssue `json:"errors,omitempty"`
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "validate [groupings-dir]",
		Short: "Check grouping definitions without touching the database",
		Long: `Compile every grouping in a CUE directory and report all problems.

The directory defaults to groupings_dir from the config file.`,
		Args:          cobra.MaximumNArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(cmd, rootOpts, args)
		},
	}

	return cmd
}

func runValidate(cmd *cobra.Command, opts *RootOptions, args []string) error {
	f := newFormatter(opts, cmd)

	dir := opts.Groupings
	if len(args) == 1 {
		dir = args[0]
	}
	if dir == "" {
		cfg, err := loadConfig(opts)
		if err != nil {
			return f.fail(ExitCommandError, ErrCodeConfig, "invalid configuration", err)
		}
		dir = cfg.GroupingsDir
	}

	res, errs := config.LoadGroupings(dir, config.LoadModeCollectAll)
	if res == nil {
		var loadErr *config.LoadError
		if errors.As(errs[0], &loadErr) {
			return f.fail(ExitCommandError, loadErr.Code, loadErr.Message, nil)
		}
		return f.fail(ExitCommandError, config.ErrCodeGeneric, errs[0].Error(), nil)
	}
	f.VerboseLog("Found %d CUE file(s) in %s", res.FileCount, dir)

	result := ValidationResult{
		Valid:     len(errs) == 0,
		Files:     res.FileCount,
		Groupings: res.Registry.Len(),
	}
	for _, err := range errs {
		result.Errors = append(result.Errors, toIssue(err))
	}

	if result.Valid {
		if f.Format == "json" {
			return f.Success(result)
		}
		fmt.Fprintf(f.Writer, "\u2713 All groupings valid (%d)\n", result.Groupings)
		return nil
	}
	return outputValidationErrors(f, result)
}

func toIssue(err error) ValidationIssue {
	var loadErr *config.LoadError
	if !errors.As(err, &loadErr) {
		return ValidationIssue{Code: config.ErrCodeGeneric, Message: err.Error()}
	}
	issue := ValidationIssue{Code: loadErr.Code, Message: loadErr.Message}
	if loadErr.Pos.IsValid() {
		issue.File = loadErr.Pos.Filename()
		issue.Line = loadErr.Pos.Line()
	}
	return issue
}

// outputValidationErrors prints every issue and returns a failure exit.
func outputValidationErrors(f *OutputFormatter, result ValidationResult) error {
	exitErr := NewExitError(ExitFailure, fmt.Sprintf("validation failed with %d error(s)", len(result.Errors)))

	if f.Format == "json" {
		encoder := json.NewEncoder(f.Writer)
		encoder.SetIndent("", "  ")
		if err := encoder.Encode(CLIResponse{
			Status: "error",
			Data:   result,
			Error:  &CLIError{Code: result.Errors[0].Code, Message: result.Errors[0].Message},
		}); err != nil {
			return err
		}
		return exitErr
	}

	fmt.Fprintln(f.Writer, "\u2717 Validation failed")
	fmt.Fprintln(f.Writer)
	for _, issue := range result.Errors {
		if issue.Line > 0 {
			fmt.Fprintf(f.Writer, "%s:%d\n", issue.File, issue.Line)
		}
		fmt.Fprintf(f.Writer, "  %s: %s\n\n", issue.Code, issue.Message)
	}
	return exitErr
}
