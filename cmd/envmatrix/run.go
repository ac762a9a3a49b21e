// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/chr1043086360/envmatrix/internal/orchestrator"
	"github.com/chr1043086360/envmatrix/internal/report"
)

var (
	runEnvs        []string
	runParallel    int
	runRecreate    bool
	runFailOnSkip  bool
	runSkipMissing bool

	runCmd = &cobra.Command{
		Use:   "run [flags] [-- posargs...]",
		Short: "Run the environment matrix",
		Long: `Run the environment matrix.

Every selected environment gets an isolated virtualenv with its
dependency set installed, then its command sequence runs in order.
The overall outcome is the logical AND of the environment outcomes.

Arguments after ` + CmdStyle.Render("--") + ` replace {posargs} in commands:

  envmatrix run -e py36-django20 -- -k test_pool`,
		RunE: runRun,
	}
)

func init() {
	runCmd.Flags().StringSliceVarP(&runEnvs, "env", "e", nil, "environments to run (default: the full envlist)")
	runCmd.Flags().IntVarP(&runParallel, "parallel", "p", 0, "run up to N environments at once (default: config, else sequential)")
	runCmd.Flags().BoolVar(&runRecreate, "recreate", false, "rebuild environments even when reusable")
	runCmd.Flags().BoolVar(&runFailOnSkip, "fail-on-skip", false, "treat skipped environments as failures")
	runCmd.Flags().BoolVar(&runSkipMissing, "skip-missing-interpreters", false, "skip environments whose interpreter is not installed")
}

func runRun(cmd *cobra.Command, args []string) error {
	mf, err := loadMatrixfile()
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	posArgs := args
	if at := cmd.ArgsLenAtDash(); at >= 0 {
		if at > 0 {
			return &ExitError{Code: 2, Err: fmt.Errorf("unexpected arguments before --: %v (select environments with -e)", args[:at])}
		}
		posArgs = args[at:]
	} else if len(args) > 0 {
		return &ExitError{Code: 2, Err: fmt.Errorf("unexpected arguments: %v (positional arguments go after --)", args)}
	}

	parallel := runParallel
	if !cmd.Flags().Changed("parallel") {
		parallel = globalConfig.Parallel
	}

	orch := orchestrator.New(orchestrator.Options{
		File:                    mf,
		Envs:                    runEnvs,
		PosArgs:                 posArgs,
		Parallel:                parallel,
		Recreate:                runRecreate,
		WorkDir:                 globalConfig.WorkDir,
		SkipMissingInterpreters: runSkipMissing || globalConfig.SkipMissingInterpreters,
		Log:                     newLogger(),
		Stdout:                  os.Stdout,
		Stderr:                  os.Stderr,
		Stdin:                   os.Stdin,
	})

	summary, err := orch.Run(cmd.Context())
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	reporter := &report.ConsoleReporter{Out: os.Stdout, Plain: !globalConfig.UI.Color}
	if err := reporter.Write(summary); err != nil {
		return err
	}

	if !summary.Success(runFailOnSkip) {
		return &ExitError{Code: 1}
	}
	return nil
}
