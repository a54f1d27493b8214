// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"github.com/spf13/cobra"

	"github.com/s0up/xseed/internal/config"
	"github.com/s0up/xseed/internal/errs"
	"github.com/s0up/xseed/internal/store"
)

// newDBCommand groups database maintenance subcommands, trimmed from the
// teacher's sqlite-to-postgres offline migration tool (this module runs a
// single sqlite engine, so only schema migration applies).
func newDBCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "db",
		Short: "Database operations",
	}
	cmd.AddCommand(newDBMigrateCommand())
	return cmd
}

// newDBMigrateCommand applies pending schema migrations. store.Open runs
// migrations as part of opening the database, so this subcommand only needs
// to open (and close) it and report what happened.
func newDBMigrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Apply pending schema migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return errs.New(errs.KindConfiguration, "db.migrate.load_config", err)
			}

			db, err := store.Open(cfg.DBPath)
			if err != nil {
				return err
			}
			defer db.Close()

			cmd.Printf("database at %s is up to date\n", cfg.DBPath)
			return nil
		},
	}
}
