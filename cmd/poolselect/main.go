// Command poolselect selects and maintains per-constellation satellite pools
// for a ground observer.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/signalsfoundry/satpool/core"
	"github.com/signalsfoundry/satpool/model"
)

// Exit codes.
const (
	exitOK            = 0
	exitFailure       = 1
	exitInvalidConfig = 2
)

// app holds flag values and the writers commands report to.
type app struct {
	stdout io.Writer
	stderr io.Writer
	// provider overrides SGP4 propagation; nil uses the catalog TLEs.
	provider core.OrbitalStateProvider

	configPath  string
	catalogPath string
	start       string
	output      string
	format      string
	cycles      int
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{stdout: os.Stdout, stderr: os.Stderr}
	if err := a.rootCommand().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "poolselect: %v\n", err)
		os.Exit(exitCode(err))
	}
}

func exitCode(err error) int {
	switch {
	case err == nil:
		return exitOK
	case errors.Is(err, model.ErrConfigurationInvalid):
		return exitInvalidConfig
	default:
		return exitFailure
	}
}

func (a *app) rootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "poolselect",
		Short: "Select and maintain LEO satellite pools for a ground observer",
		Long: `poolselect propagates a TLE catalog over an analysis window, detects
handover events, and selects a phase-diverse pool per constellation that keeps
the observer covered.

Examples:
  poolselect run --config poolselect.toml --catalog starlink.tle
  poolselect maintain --config poolselect.toml --cycles 12 --format yaml
  poolselect validate --config poolselect.toml`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(a.stdout)
	root.SetErr(a.stderr)
	a.bindFlags(root.PersistentFlags())

	root.AddCommand(a.runCommand(), a.maintainCommand(), a.validateCommand())
	return root
}

func (a *app) bindFlags(fs *pflag.FlagSet) {
	fs.StringVarP(&a.configPath, "config", "c", "", "TOML configuration file (defaults apply when empty)")
	fs.StringVar(&a.catalogPath, "catalog", "", "TLE or YAML catalog file; overrides catalog.path")
	fs.StringVar(&a.start, "start", "", "analysis window start, RFC 3339; overrides window.start (default now)")
	fs.StringVarP(&a.output, "output", "o", "", "report destination; overrides runtime.output_path (default stdout)")
	fs.StringVarP(&a.format, "format", "f", "", "report format, json or yaml; overrides runtime.output_format")
}

func (a *app) runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Run the pipeline once and write the pool report",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.run(cmd.Context())
		},
	}
}

func (a *app) maintainCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "maintain",
		Short: "Slide the window and keep pools at target size",
		Long: `maintain selects an initial pool, then advances the window by
maintenance.cycle_interval_seconds per cycle, evicting members that lose
visibility and promoting ranked backups. A report is written after every cycle.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.maintain(cmd.Context())
		},
	}
	cmd.Flags().IntVar(&a.cycles, "cycles", -1, "total cycles including the first; 0 runs until interrupted (default maintenance.cycles)")
	return cmd
}

func (a *app) validateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Check the configuration and catalog without propagating",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return a.validate()
		},
	}
}
