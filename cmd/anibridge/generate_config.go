// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/zzackllack/anibridge/internal/config"
)

// RunGenerateConfigCommand builds the `generate-config` subcommand: writes a
// commented, human-editable config.toml with documented defaults, skipping
// generation entirely if one already exists rather than overwriting operator
// edits.
func RunGenerateConfigCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "generate-config",
		Short: "Write a default config.toml",
		RunE: func(cmd *cobra.Command, args []string) error {
			dir := configDir
			if dir == "" {
				dir = config.GetDefaultConfigDir()
			}
			path := filepath.Join(dir, "config.toml")

			if _, err := os.Stat(path); err == nil {
				fmt.Fprintf(cmd.OutOrStdout(), "%s already exists. Skipping generation.\n", path)
				return nil
			}

			if err := config.GenerateConfig(path, config.Defaults()); err != nil {
				return fmt.Errorf("generate config: %w", err)
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Wrote default configuration to %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory to write config.toml into (default: OS config dir)")
	return cmd
}
