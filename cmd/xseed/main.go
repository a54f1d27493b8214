// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Command xseed is the daemon and CLI entrypoint described in spec.md §6.3:
// a cobra root command with serve, search, and db subcommands.
package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/s0up/xseed/internal/errs"
)

var (
	cfgFile   string
	logLevel  string
	logPretty bool
)

func main() {
	os.Exit(run())
}

// run builds and executes the root command, mapping errors onto spec.md
// §6's exit codes: 0 success, 1 configuration error, 2 runtime error.
func run() int {
	root := newRootCommand()
	if err := root.ExecuteContext(context.Background()); err != nil {
		if kind, ok := errs.As(err); ok && kind == errs.KindConfiguration {
			fmt.Fprintln(os.Stderr, err)
			return 1
		}
		fmt.Fprintln(os.Stderr, err)
		return 2
	}
	return 0
}

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "xseed",
		Short: "Cross-seed automation: find and act on alternate sources for local content",
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "Path to config file (YAML)")
	root.PersistentFlags().StringVar(&logLevel, "log-level", "info", "Log level: debug, info, warn, error")
	root.PersistentFlags().BoolVar(&logPretty, "log-pretty", false, "Use a human-readable console log writer instead of JSON")

	root.AddCommand(newServeCommand())
	root.AddCommand(newSearchCommand())
	root.AddCommand(newDBCommand())
	return root
}
