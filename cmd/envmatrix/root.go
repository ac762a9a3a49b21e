// SPDX-License-Identifier: MPL-2.0

// Package cmd contains all CLI commands for envmatrix.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/charmbracelet/fang"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"

	"github.com/chr1043086360/envmatrix/internal/config"
	"github.com/chr1043086360/envmatrix/internal/issue"
	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

var (
	// Version is the semantic version (set via -ldflags).
	Version = "dev"
	// Commit is the git commit hash (set via -ldflags).
	Commit = "unknown"
	// BuildDate is the build timestamp (set via -ldflags).
	BuildDate = "unknown"

	// verbose enables debug output.
	verbose bool
	// cfgFile allows specifying a custom config file.
	cfgFile string
	// chdir switches to this directory before locating the matrix file.
	chdir string

	// globalConfig is the loaded tool configuration; never nil after
	// initRootConfig runs.
	globalConfig = config.DefaultConfig()

	// rootCmd represents the base command when called without any subcommands.
	rootCmd = &cobra.Command{
		Use:   "envmatrix",
		Short: "A test environment matrix runner",
		Long: TitleStyle.Render("envmatrix") + SubtitleStyle.Render(" - A test environment matrix runner") + `

envmatrix reads a declarative matrix file (envmatrix.ini, tox.ini
accepted for compatibility), expands the generative environment list
into concrete environments, provisions an isolated Python virtualenv
with each environment's dependency set, and runs the configured
command sequence in every one of them.

` + SubtitleStyle.Render("Examples:") + `
  envmatrix run                     Run the full environment matrix
  envmatrix run -e py36-django20    Run one environment
  envmatrix run -- -k test_rpc      Pass positional args to the commands
  envmatrix list                    Show the expanded environment list
  envmatrix validate                Statically check the matrix file`,
	}
)

func init() {
	cobra.OnInitialize(initRootConfig)

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable verbose output")
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.config/envmatrix/config.toml)")
	rootCmd.PersistentFlags().StringVarP(&chdir, "directory", "C", "", "change to this directory before looking for the matrix file")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(validateCmd)
	rootCmd.AddCommand(configCmd)
}

// getVersionString returns a formatted version string for display.
func getVersionString() string {
	if Version == "dev" {
		return "dev (built from source)"
	}
	return fmt.Sprintf("%s (commit: %s, built: %s)", Version, Commit, BuildDate)
}

// Execute adds all child commands to the root command and sets flags
// appropriately. This is called by main.main().
func Execute() {
	if err := fang.Execute(
		context.Background(),
		rootCmd,
		fang.WithVersion(getVersionString()),
		fang.WithNotifySignal(os.Interrupt),
	); err != nil {
		var exitErr *ExitError
		if errors.As(err, &exitErr) {
			os.Exit(exitErr.Code)
		}
		os.Exit(1)
	}
}

// initRootConfig loads the tool configuration and applies defaults the flags
// did not override.
func initRootConfig() {
	cfg, _, err := config.Load(config.LoadOptions{ConfigFilePath: cfgFile})
	if err != nil {
		fmt.Fprintln(os.Stderr, WarningStyle.Render("Warning: ")+formatErrorForDisplay(err, verbose))
		return
	}
	globalConfig = cfg
	if !verbose {
		verbose = cfg.UI.Verbose
	}
}

// newLogger builds the run logger honoring the verbose setting.
func newLogger() *log.Logger {
	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: false,
	})
	if verbose {
		logger.SetLevel(log.DebugLevel)
	}
	return logger
}

// loadMatrixfile locates and parses the matrix file, honoring -C.
func loadMatrixfile() (*matrixfile.Matrixfile, error) {
	startDir := chdir
	if startDir == "" {
		startDir = "."
	}
	path, err := matrixfile.Find(startDir)
	if err != nil {
		return nil, issue.NewErrorContext().
			WithOperation("locate matrix file").
			WithResource(startDir).
			WithSuggestion(fmt.Sprintf("Create an %s in the project root", matrixfile.DefaultFileName)).
			WithSuggestion("Use -C to point at the directory containing it").
			Wrap(err).
			BuildError()
	}
	return matrixfile.Load(path)
}

// formatErrorForDisplay formats an error for user display. ActionableErrors
// render their suggestions; verbose mode shows the full error chain.
func formatErrorForDisplay(err error, verboseMode bool) string {
	var ae *issue.ActionableError
	if errors.As(err, &ae) {
		return ae.Format(verboseMode)
	}
	return err.Error()
}
