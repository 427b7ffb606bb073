// Package cli implements the schematic command-line interface.
package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
)

// Exit codes.
const (
	exitSuccess          = 0
	exitUserError        = 1
	exitLoadError        = 2
	exitManifestNotFound = 3
)

// exitError carries the process exit code for a failed command.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string { return e.err.Error() }
func (e *exitError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &exitError{code: code, err: err}
}

// ExitCode maps an error returned by the root command to a process exit code.
// Errors without a code are argument errors.
func ExitCode(err error) int {
	if err == nil {
		return exitSuccess
	}
	var e *exitError
	if errors.As(err, &e) {
		return e.code
	}
	return exitUserError
}

// rootFlags holds global flag values accessible to all subcommands.
type rootFlags struct {
	configDir string
	dataDir   string
	project   string
	manifest  string
	logLevel  string
	jsonMode  bool
}

// NewRootCmd creates the top-level "schematic" command with global flags
// and all subcommands registered.
func NewRootCmd() *cobra.Command {
	flags := &rootFlags{}
	root := &cobra.Command{
		Use:           "schematic",
		Short:         "Inspect and convert schematic data schemes",
		Long:          "Schematic loads a project manifest and the data schemes it lists,\nreports their state and converts them between JSON, CSV and Go source.",
		Version:       Version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := root.PersistentFlags()
	pf.StringVar(&flags.configDir, "config-dir", "", "configuration directory (default: platform config dir)")
	pf.StringVar(&flags.dataDir, "data-dir", "", "data directory for the sqlite driver")
	pf.StringVar(&flags.project, "project", "", "project directory searched for the manifest (default: working directory)")
	pf.StringVar(&flags.manifest, "manifest", "", "manifest path")
	pf.StringVar(&flags.logLevel, "log-level", "", "log level: debug, info, warn, error")
	pf.BoolVar(&flags.jsonMode, "json", false, "output in JSON format")

	root.AddCommand(
		newVersionCmd(),
		newInitCmd(flags),
		newStatusCmd(flags),
		newExportCmd(flags),
		newImportCmd(flags),
	)
	return root
}

// Execute runs the root command and returns the process exit code.
func Execute(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	root := NewRootCmd()
	root.SetArgs(args)
	root.SetOut(stdout)
	root.SetErr(stderr)
	err := root.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintln(stderr, "schematic:", err)
	}
	return ExitCode(err)
}

// Main is the entry point used by cmd/schematic.
func Main() {
	os.Exit(Execute(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}
