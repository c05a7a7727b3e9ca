package cli

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/strato-bus/strato/internal/bus"
	"github.com/strato-bus/strato/internal/envelope"
	"github.com/strato-bus/strato/internal/routefile"
	"github.com/strato-bus/strato/internal/routing"
	"github.com/strato-bus/strato/internal/trace"
)

// RunOptions holds flags for the run command.
type RunOptions struct {
	ConfigPath    string
	TraceOut      string
	TraceCapacity int
}

// NewRunCommand creates the run command.
func NewRunCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &RunOptions{}
	cmd := &cobra.Command{
		Use:   "run <routes-dir>",
		Short: "Run a bus with the given routes against messages from stdin",
		Long: `Start an in-process bus and routing engine with the compiled
routes, publish one JSON message envelope per stdin line, and print the
stats snapshot when input ends.

Example input line:
  {"topic":"orders.item.save","data":{"value":42},"source":"web"}`,
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRun(rootOpts, opts, args[0], cmd)
		},
	}
	cmd.Flags().StringVar(&opts.ConfigPath, "config", "", "YAML bus config file (defaults apply when omitted)")
	cmd.Flags().StringVar(&opts.TraceOut, "trace-out", "", "write a trace snapshot to this file on exit")
	cmd.Flags().IntVar(&opts.TraceCapacity, "trace-capacity", trace.DefaultCapacity, "trace ring-buffer capacity")
	return cmd
}

func runRun(rootOpts *RootOptions, opts *RunOptions, routesDir string, cmd *cobra.Command) error {
	formatter := &OutputFormatter{
		Format:    rootOpts.Format,
		Writer:    cmd.OutOrStdout(),
		ErrWriter: cmd.ErrOrStderr(),
		Verbose:   rootOpts.Verbose,
	}

	loaded, loadErrors := routefile.LoadDir(routesDir, routefile.LoadModeFailFast)
	if len(loadErrors) > 0 {
		code, message := loadErrorParts(loadErrors[0])
		if err := formatter.Error(code, message, nil); err != nil {
			return err
		}
		return NewExitError(ExitCommandError, message)
	}

	busOpts := []bus.Option{}
	if opts.ConfigPath != "" {
		cfg, err := bus.LoadConfig(opts.ConfigPath)
		if err != nil {
			return WrapExitError(ExitCommandError, "loading config", err)
		}
		busOpts = append(busOpts, bus.WithConfig(cfg))
	}

	b, err := bus.New(busOpts...)
	if err != nil {
		return WrapExitError(ExitCommandError, "starting bus", err)
	}
	defer b.Close()

	engineOpts := []routing.Option{}
	var recorder *trace.Recorder
	if opts.TraceOut != "" {
		recorder = trace.New(trace.WithCapacity(opts.TraceCapacity))
		engineOpts = append(engineOpts, routing.WithObserver(recorder))
	}

	engine := routing.New(b, engineOpts...)
	ctx := context.Background()
	if err := engine.Start(ctx); err != nil {
		return WrapExitError(ExitCommandError, "starting routing engine", err)
	}
	defer engine.Stop()

	for _, r := range loaded.Routes {
		if _, err := engine.Add(ctx, r); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("adding route %q", r.Name), err)
		}
	}
	formatter.VerboseLog("Loaded %d route(s); reading messages from stdin", len(loaded.Routes))

	// Drain the out-of-band error channel so drops are visible.
	go func() {
		for be := range b.Errors() {
			formatter.VerboseLog("bus error [%s] topic=%s: %s", be.Code, be.Topic, be.Message)
		}
	}()

	scanner := bufio.NewScanner(cmd.InOrStdin())
	scanner.Buffer(make([]byte, 0, 64*1024), 2*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		text := scanner.Bytes()
		if len(text) == 0 {
			continue
		}
		var msg envelope.Message
		if err := json.Unmarshal(text, &msg); err != nil {
			formatter.VerboseLog("line %d: skipping malformed envelope: %v", line, err)
			continue
		}
		if err := b.Publish(&msg); err != nil {
			return WrapExitError(ExitCommandError, fmt.Sprintf("line %d: publish", line), err)
		}
	}
	if err := scanner.Err(); err != nil {
		return WrapExitError(ExitCommandError, "reading stdin", err)
	}

	if recorder != nil {
		data, err := recorder.ExportJSON()
		if err != nil {
			return WrapExitError(ExitCommandError, "exporting trace", err)
		}
		if err := os.WriteFile(opts.TraceOut, data, 0o644); err != nil {
			return WrapExitError(ExitCommandError, "writing trace snapshot", err)
		}
		formatter.VerboseLog("Wrote trace snapshot to %s", opts.TraceOut)
	}

	return formatter.Success(b.Stats())
}
