// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up/xseed/internal/logging"
	"github.com/s0up/xseed/internal/model"
)

// State is one step of spec.md §4.8's action dispatcher state machine:
// PENDING → LINKING → INJECTING → (SUCCESS | CONFLICT | CLIENT_ERROR). SAVE
// mode skips LINKING/INJECTING entirely and goes PENDING → SUCCESS directly.
type State string

const (
	StatePending    State = "PENDING"
	StateLinking    State = "LINKING"
	StateInjecting  State = "INJECTING"
	StateSuccess    State = "SUCCESS"
	StateConflict   State = "CONFLICT"
	StateClientErr  State = "CLIENT_ERROR"
)

// Mode selects SAVE (write the .torrent file) or INJECT (client adapter),
// spec.md §9's actionMode config knob.
type Mode string

const (
	ModeSave   Mode = "save"
	ModeInject Mode = "inject"
)

// RootResolver locates the on-disk directory backing a Searchee's files, so
// INJECT's LINKING step knows what to hardlink/reflink from. Implemented by
// package cmd, which tracks the data-dir root each Searchee was built from.
type RootResolver interface {
	Root(s *model.Searchee) (string, error)
}

// DecisionUpdater receives an INFO_HASH_ALREADY_EXISTS decision when the
// client reports CONFLICT (infoHash already present). The matcher has
// already recorded a decision under the same key, and package store's
// DecisionRepo.Record only advances last_seen for an existing key, so the
// stored kind stays the matcher's accepted kind.
type DecisionUpdater interface {
	Record(ctx context.Context, d *model.Decision) error
}

// Options configures a Dispatcher.
type Options struct {
	Mode                 Mode
	OutputDir            string // SAVE destination
	LinkDir              string // INJECT staging tree root
	LinkMode             LinkMode
	Category             string
	Tags                 []string
	AllowCrossDeviceCopy bool
}

// backoffCeiling caps the doubling per-guid delay recordRetry tracks for
// LINKING and CLIENT_ERROR failures, mirroring the indexer gateway's own
// backoff ceiling. The delay is only recorded: Dispatch returns the error
// and nothing re-submits the candidate.
const backoffCeiling = 30 * time.Minute

// Dispatcher implements spec.md §4.8 for one configured action mode.
type Dispatcher struct {
	opts      Options
	client    ClientAdapter // nil in SAVE mode
	roots     RootResolver
	decisions DecisionUpdater
	log       zerolog.Logger

	retryMu sync.Mutex
	retry   map[string]time.Duration // guid -> current backoff after a failed LINKING/INJECTING
}

func New(opts Options, client ClientAdapter, roots RootResolver, decisions DecisionUpdater) *Dispatcher {
	return &Dispatcher{
		opts: opts, client: client, roots: roots, decisions: decisions,
		log: logging.Component("dispatch"), retry: make(map[string]time.Duration),
	}
}

// Dispatch implements pipeline.Dispatcher: runs the state machine to
// completion for one accepted decision.
func (d *Dispatcher) Dispatch(ctx context.Context, s *model.Searchee, c model.Candidate, meta *model.TorrentMetadata, kind model.DecisionKind) error {
	state := StatePending
	d.log.Debug().Str("searchee", s.Name).Str("guid", c.GUID).Str("state", string(state)).Msg("dispatch starting")

	if d.opts.Mode == ModeSave {
		if err := d.save(meta); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		d.log.Info().Str("searchee", s.Name).Str("infoHash", meta.InfoHash).Msg("saved matched torrent")
		return nil
	}

	state = StateLinking
	linkDest, err := d.link(s, meta)
	if err != nil {
		d.recordRetry(c.GUID)
		return fmt.Errorf("linking: %w", err)
	}

	state = StateInjecting
	result, err := d.client.AddTorrent(ctx, meta.Raw, linkDest, d.opts.Category, d.opts.Tags)
	if err != nil {
		d.recordRetry(c.GUID)
		state = StateClientErr
		return fmt.Errorf("injecting (state=%s): %w", state, err)
	}

	if result.Status == AddStatusConflict {
		state = StateConflict
		hash := meta.InfoHash
		if d.decisions != nil {
			_ = d.decisions.Record(ctx, &model.Decision{
				SearcheeName: s.Name, IndexerID: c.IndexerID, GUID: c.GUID,
				Kind: model.DecisionInfoHashAlreadyExists, InfoHash: &hash,
				FirstSeen: time.Now(), LastSeen: time.Now(),
			})
		}
		return nil
	}

	d.clearRetry(c.GUID)
	state = StateSuccess
	d.log.Info().Str("searchee", s.Name).Str("infoHash", meta.InfoHash).Str("clientTorrentId", result.ClientTorrentID).Msg("injected matched torrent")
	return nil
}

// save writes meta's original .torrent bytes to the output directory,
// naming the file <sanitized name>.<infoHash>.torrent and appending a
// numeric -N suffix on collision
// (spec.md §4.8: "hash-suffix collisions").
func (d *Dispatcher) save(meta *model.TorrentMetadata) error {
	if err := os.MkdirAll(d.opts.OutputDir, 0o755); err != nil {
		return fmt.Errorf("create output dir: %w", err)
	}
	name := sanitizeFilename(meta.Name) + "." + shortHash(meta.InfoHash) + ".torrent"
	dest := filepath.Join(d.opts.OutputDir, name)

	for i := 1; ; i++ {
		if _, err := os.Stat(dest); errors.Is(err, os.ErrNotExist) {
			break
		}
		dest = filepath.Join(d.opts.OutputDir, fmt.Sprintf("%s.%s-%d.torrent", sanitizeFilename(meta.Name), shortHash(meta.InfoHash), i))
	}

	return os.WriteFile(dest, meta.Raw, 0o644)
}

func (d *Dispatcher) link(s *model.Searchee, meta *model.TorrentMetadata) (string, error) {
	if d.roots == nil {
		return "", errors.New("no root resolver configured for inject mode")
	}
	root, err := d.roots.Root(s)
	if err != nil {
		return "", fmt.Errorf("resolve source root: %w", err)
	}
	destDir := filepath.Join(d.opts.LinkDir, shortHash(meta.InfoHash))
	if err := Link(d.opts.LinkMode, root, s, destDir, d.opts.AllowCrossDeviceCopy); err != nil {
		return "", err
	}
	return destDir, nil
}

func (d *Dispatcher) recordRetry(guid string) time.Duration {
	d.retryMu.Lock()
	defer d.retryMu.Unlock()
	delay := d.retry[guid]
	if delay == 0 {
		delay = 30 * time.Second
	} else {
		delay *= 2
	}
	if delay > backoffCeiling {
		delay = backoffCeiling
	}
	d.retry[guid] = delay
	return delay
}

func (d *Dispatcher) clearRetry(guid string) {
	d.retryMu.Lock()
	defer d.retryMu.Unlock()
	delete(d.retry, guid)
}

func sanitizeFilename(name string) string {
	out := make([]rune, 0, len(name))
	for _, r := range name {
		switch r {
		case '/', '\\', ':', '*', '?', '"', '<', '>', '|':
			out = append(out, '_')
		default:
			out = append(out, r)
		}
	}
	return string(out)
}

func shortHash(infoHash string) string {
	if infoHash != "" {
		return infoHash
	}
	sum := sha1.Sum([]byte(fmt.Sprintf("%d", time.Now().UnixNano())))
	return hex.EncodeToString(sum[:])[:8]
}
