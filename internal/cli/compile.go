package cli

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/strato-bus/strato/internal/routefile"
)

// NewCompileCommand creates the compile command.
func NewCompileCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "compile <routes-dir>",
		Short: "Compile route definitions to JSON",
		Long: `Compile CUE route definitions and print the resulting route
configuration as JSON, in the form the engine's control channel and
storage adapters accept.`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompile(rootOpts, args[0], cmd)
		},
	}
}

func runCompile(opts *RootOptions, routesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    opts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   opts.Verbose,
	}

	result, loadErrors := routefile.LoadDir(routesDir, routefile.LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := loadErrorParts(loadErrors[0])
		if err := formatter.Error(code, message, nil); err != nil {
			return err
		}
		if result == nil {
			return NewExitError(ExitCommandError, message)
		}
		return NewExitError(ExitFailure, message)
	}

	formatter.VerboseLog("Compiled %d route(s) from %d file(s)", len(result.Routes), result.FileCount)

	if opts.Format == "json" {
		return formatter.Success(result.Routes)
	}
	data, err := json.MarshalIndent(result.Routes, "", "  ")
	if err != nil {
		return WrapExitError(ExitCommandError, "encoding routes", err)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), string(data))
	return err
}
