// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package dispatch implements spec.md §4.8's action dispatcher: SAVE writes
// a matched .torrent to the output directory, INJECT hardlinks/reflinks the
// matched files into a staging tree and adds the torrent to a BitTorrent
// client. Grounded in the teacher's internal/services/dirscan.Injector for
// the LINKING→INJECTING sequencing and internal/qbittorrent.Client for the
// concrete adapter, layered behind github.com/autobrr/go-qbittorrent.
package dispatch

import (
	"context"
	"fmt"

	qbt "github.com/autobrr/go-qbittorrent"

	"github.com/s0up/xseed/pkg/pathcmp"
)

// AddResult is what a client adapter reports after attempting to add a
// torrent, spec.md §4.8's `addTorrent(...) → {status, clientTorrentId?}`.
type AddResult struct {
	Status          AddStatus
	ClientTorrentID string
}

// AddStatus is the client adapter's verdict on an add attempt.
type AddStatus string

const (
	AddStatusAdded    AddStatus = "ADDED"
	AddStatusConflict AddStatus = "CONFLICT" // infoHash already present on the client
)

// ClientTorrent is one torrent as reported by a client adapter's GetTorrents.
type ClientTorrent struct {
	InfoHash string
	Name     string
	Category string

	// SavePath is qBittorrent's reported download directory for this
	// torrent, normalized with pathcmp.NormalizePath since the daemon and
	// the client it talks to may not share an OS (a Windows qBittorrent
	// instance reports "C:\Downloads\Show", this daemon compares paths
	// with forward-slash POSIX semantics throughout).
	SavePath string
}

// ClientAdapter is the contract every BitTorrent client backend implements
// for the INJECT action, spec.md §4.8's addTorrent/getTorrents/checkExists
// trio. Transmission/Deluge/rTorrent remain documented contracts only — this
// module ships a single concrete adapter (QBittorrentAdapter), per spec.md
// §6's "deliberately out of scope" list for the others.
type ClientAdapter interface {
	AddTorrent(ctx context.Context, metadata []byte, dataPath, category string, tags []string) (AddResult, error)
	GetTorrents(ctx context.Context) ([]ClientTorrent, error)
	CheckExists(ctx context.Context, infoHash string) (bool, error)
}

// QBittorrentAdapter is the one concrete ClientAdapter this module ships,
// wrapping github.com/autobrr/go-qbittorrent directly (no multi-instance
// pool or response cache — this daemon manages exactly one client).
type QBittorrentAdapter struct {
	client *qbt.Client
}

// NewQBittorrentAdapter logs into host with the given credentials and
// returns a ready adapter.
func NewQBittorrentAdapter(ctx context.Context, host, username, password string) (*QBittorrentAdapter, error) {
	client := qbt.NewClient(qbt.Config{
		Host:     host,
		Username: username,
		Password: password,
		Timeout:  30,
	})
	if err := client.LoginCtx(ctx); err != nil {
		return nil, fmt.Errorf("login to qbittorrent at %s: %w", host, err)
	}
	return &QBittorrentAdapter{client: client}, nil
}

// AddTorrent adds metadata (.torrent file bytes) to the client with
// autoTMM disabled and an explicit save path, matching the teacher's
// dirscan.Injector.buildAddOptions convention.
func (a *QBittorrentAdapter) AddTorrent(ctx context.Context, metadata []byte, dataPath, category string, tags []string) (AddResult, error) {
	options := map[string]string{
		"autoTMM":       "false",
		"savepath":      dataPath,
		"skip_checking": "true",
		"contentLayout": "Original",
	}
	if category != "" {
		options["category"] = category
	}
	if len(tags) > 0 {
		options["tags"] = joinTags(tags)
	}

	if err := a.client.AddTorrentFromMemoryCtx(ctx, metadata, options); err != nil {
		return AddResult{}, fmt.Errorf("add torrent: %w", err)
	}
	return AddResult{Status: AddStatusAdded}, nil
}

// GetTorrents lists every torrent currently known to the client.
func (a *QBittorrentAdapter) GetTorrents(ctx context.Context) ([]ClientTorrent, error) {
	torrents, err := a.client.GetTorrentsCtx(ctx, qbt.TorrentFilterOptions{})
	if err != nil {
		return nil, fmt.Errorf("list torrents: %w", err)
	}
	out := make([]ClientTorrent, 0, len(torrents))
	for _, t := range torrents {
		out = append(out, ClientTorrent{
			InfoHash: t.Hash, Name: t.Name, Category: t.Category,
			SavePath: pathcmp.NormalizePath(t.SavePath),
		})
	}
	return out, nil
}

// CheckExists reports whether infoHash is already present on the client.
func (a *QBittorrentAdapter) CheckExists(ctx context.Context, infoHash string) (bool, error) {
	torrents, err := a.GetTorrents(ctx)
	if err != nil {
		return false, err
	}
	for _, t := range torrents {
		if t.InfoHash == infoHash {
			return true, nil
		}
	}
	return false, nil
}

func joinTags(tags []string) string {
	out := ""
	for i, t := range tags {
		if i > 0 {
			out += ","
		}
		out += t
	}
	return out
}
