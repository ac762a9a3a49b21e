// SPDX-License-Identifier: MPL-2.0

package cmd

import (
	"fmt"

	"github.com/pelletier/go-toml/v2"
	"github.com/spf13/cobra"

	"github.com/chr1043086360/envmatrix/internal/config"
)

// configCmd is the `envmatrix config` command tree.
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage envmatrix configuration",
	Long: `Manage envmatrix configuration.

Configuration is stored in:
  - Linux: ~/.config/envmatrix/config.toml
  - macOS: ~/Library/Application Support/envmatrix/config.toml
  - Windows: %APPDATA%\envmatrix\config.toml`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cmd.Help()
	},
}

func init() {
	configCmd.AddCommand(&cobra.Command{
		Use:   "show",
		Short: "Show current configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, path, err := config.Load(config.LoadOptions{ConfigFilePath: cfgFile})
			if err != nil {
				return err
			}
			if path == "" {
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("# built-in defaults (no config file)"))
			} else {
				fmt.Fprintln(cmd.OutOrStdout(), SubtitleStyle.Render("# "+path))
			}
			data, err := toml.Marshal(cfg)
			if err != nil {
				return err
			}
			fmt.Fprint(cmd.OutOrStdout(), string(data))
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "path",
		Short: "Show configuration file path",
		RunE: func(cmd *cobra.Command, args []string) error {
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), path)
			return nil
		},
	})

	configCmd.AddCommand(&cobra.Command{
		Use:   "init",
		Short: "Create default configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := config.Save(config.DefaultConfig()); err != nil {
				return err
			}
			path, err := config.DefaultPath()
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), SuccessStyle.Render("created ")+path)
			return nil
		},
	})
}
