// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/zzackllack/anibridge/internal/buildinfo"
)

// Execute builds and runs the root command, returning any error for main to
// report.
func Execute() error {
	root := &cobra.Command{
		Use:   "anibridge",
		Short: "A Torznab/qBittorrent bridge for AniWorld and s.to",
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	root.AddCommand(
		RunServeCommand(),
		RunGenerateConfigCommand(),
		newVersionCommand(),
	)

	return root.Execute()
}

func newVersionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the build version",
		RunE: func(cmd *cobra.Command, args []string) error {
			fmt.Fprint(cmd.OutOrStdout(), buildinfo.String())
			return nil
		},
	}
}
