// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/chr1043086360/envmatrix/internal/checks"
)

var (
	validatePackage string
	validateSdist   string

	validateCmd = &cobra.Command{
		Use:   "validate",
		Short: "Statically check the matrix file",
		Long: `Statically check the matrix file without running anything.

Checks cover envlist expansion ambiguity, dependency constraint
satisfiability, the style checker's exclusion list, packaging
metadata, and dangling depends references. The checks only read the
file (plus --sdist when given), so repeated runs produce identical
output.`,
		RunE: runValidate,
	}
)

func init() {
	validateCmd.Flags().StringVar(&validatePackage, "package", "", "package under test for the lint-exclusion check (default: the coverage --source argument)")
	validateCmd.Flags().StringVar(&validateSdist, "sdist", "", "built sdist archive to validate packaging metadata against")
}

func runValidate(cmd *cobra.Command, args []string) error {
	mf, err := loadMatrixfile()
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	findings, err := checks.Run(checks.Options{
		File:      mf,
		Package:   validatePackage,
		SdistPath: validateSdist,
	})
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	out := cmd.OutOrStdout()
	for _, finding := range findings {
		switch finding.Severity {
		case checks.SeverityError:
			fmt.Fprintln(out, ErrorStyle.Render("error")+renderFinding(finding))
		default:
			fmt.Fprintln(out, WarningStyle.Render("warning")+renderFinding(finding))
		}
	}

	if checks.HasErrors(findings) {
		return &ExitError{Code: 1}
	}
	if len(findings) == 0 {
		fmt.Fprintln(out, SuccessStyle.Render("ok")+fmt.Sprintf(": %d environments validated", len(mf.EnvNames())))
	}
	return nil
}

// renderFinding renders the location + message part of a finding, severity label
// excluded (the caller styles that part).
func renderFinding(f checks.Finding) string {
	if f.Env != "" {
		return fmt.Sprintf(" [%s] %s: %s", f.Check, f.Env, f.Message)
	}
	return fmt.Sprintf(" [%s] %s", f.Check, f.Message)
}
