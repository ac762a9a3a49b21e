// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/chr1043086360/envmatrix/internal/venv"
	"github.com/chr1043086360/envmatrix/pkg/matrixfile"
)

var (
	listLong bool

	listCmd = &cobra.Command{
		Use:   "list",
		Short: "Show the expanded environment list",
		Long: `Show the concrete environments the envlist expands to, in
declaration order. With --long, each environment's interpreter and
dependency count are shown too.`,
		RunE: runList,
	}
)

func init() {
	listCmd.Flags().BoolVarP(&listLong, "long", "l", false, "show interpreter and dependency details")
}

func runList(cmd *cobra.Command, args []string) error {
	mf, err := loadMatrixfile()
	if err != nil {
		return &ExitError{Code: 2, Err: err}
	}

	for _, name := range mf.EnvNames() {
		if !listLong {
			fmt.Fprintln(cmd.OutOrStdout(), name)
			continue
		}
		cfg, err := mf.Env(name, matrixfile.Substitutions{})
		if err != nil {
			fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", name, ErrorStyle.Render(fmt.Sprintf("(unresolvable: %v)", err)))
			continue
		}
		fmt.Fprintf(cmd.OutOrStdout(), "%s  %s\n", name,
			SubtitleStyle.Render(fmt.Sprintf("python=%s deps=%d commands=%d factors=%s",
				venv.InterpreterFor(cfg), len(cfg.Deps), len(cfg.Commands), strings.Join(cfg.Factors, "+"))))
	}
	return nil
}
