// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/searchee"
)

// newSearchCommand builds the one-shot on-demand searchee submission
// subcommand: register a single .torrent file or data directory as a
// searchee, then trigger an immediate pipeline cycle (the same on-demand
// path serve's HTTP /search endpoint exposes), per spec.md §6.3.
func newSearchCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "search <torrent-file-or-data-dir>",
		Short: "Submit a single searchee and run one on-demand search cycle",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			path := args[0]

			a, err := bootstrap(ctx)
			if err != nil {
				return err
			}
			defer a.close()

			s, isDir, err := loadSearchee(path)
			if err != nil {
				return fmt.Errorf("load searchee: %w", err)
			}
			if err := a.index.Put(s); err != nil {
				return fmt.Errorf("register searchee: %w", err)
			}
			if isDir {
				a.roots.roots[s.Name] = path
			}

			result, err := a.runJob(ctx, "cli")
			if err != nil {
				return err
			}

			cmd.Printf("searchee %q: %d searchees processed, %d candidates seen, %d accepted, %d failed\n",
				s.Name, result.SearcheesProcessed, result.CandidatesSeen, result.Accepted, result.Failed)
			return nil
		},
	}
}

// loadSearchee builds a Searchee from path, treating a regular file as a
// .torrent file and a directory as a data-dir root, per spec.md §4.1's two
// filesystem-backed sources. isDir tells the caller whether to register
// path as the searchee's link-source root for INJECT mode.
func loadSearchee(path string) (s *model.Searchee, isDir bool, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, false, err
	}
	if info.IsDir() {
		s, err = searchee.FromDataDir(path)
		return s, true, err
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, false, err
	}
	s, err = searchee.FromTorrentFile(raw)
	return s, false, err
}
