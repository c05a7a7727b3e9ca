package cli

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/strato-bus/strato/internal/routefile"
)

// ValidationResult holds route validation results.
type ValidationResult struct {
	Valid  bool     `json:"valid"`
	Routes int      `json:"routes"`
	Files  int      `json:"files"`
	Errors []string `json:"errors,omitempty"`
}

func (r ValidationResult) String() string {
	var b strings.Builder
	if r.Valid {
		fmt.Fprintf(&b, "OK: %d route(s) in %d file(s)", r.Routes, r.Files)
		return b.String()
	}
	fmt.Fprintf(&b, "INVALID: %d error(s)\n", len(r.Errors))
	for _, e := range r.Errors {
		fmt.Fprintf(&b, "  %s\n", e)
	}
	return strings.TrimRight(b.String(), "\n")
}

// NewValidateCommand creates the validate command.
func NewValidateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "validate <routes-dir>",
		Short: "Validate route definitions without running them",
		Long: `Validate CUE route definitions: syntax, predicate structure,
topic patterns, and per-action shape. Reports every error found.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runValidate(rootOpts, args[0], cmd)
		},
	}
}

func runValidate(opts *RootOptions, routesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := routefile.LoadDir(routesDir, routefile.LoadModeCollectAll)
	if result == nil {
		// Directory-level failure: nothing was loadable at all.
		code, message := loadErrorParts(loadErrors[0])
		if err := formatter.Error(code, message, nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, message)
	}

	formatter.VerboseLog("Found %d CUE file(s) in %s", result.FileCount, routesDir)

	out := ValidationResult{
		Valid:  len(loadErrors) == 0,
		Routes: len(result.Routes),
		Files:  result.FileCount,
	}
	for _, err := range loadErrors {
		out.Errors = append(out.Errors, err.Error())
	}

	if err := formatter.Success(out); err != nil {
		return err
	}
	if !out.Valid {
		return NewExitError(ExitFailure, fmt.Sprintf("%d validation error(s)", len(out.Errors)))
	}
	return nil
}

func loadErrorParts(err error) (code, message string) {
	var loadErr *routefile.LoadError
	if errors.As(err, &loadErr) {
		return loadErr.Code, loadErr.Message
	}
	return "error", err.Error()
}
