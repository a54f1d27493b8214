// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up/xseed/internal/announce"
	"github.com/s0up/xseed/internal/arr"
	"github.com/s0up/xseed/internal/config"
	"github.com/s0up/xseed/internal/crypto"
	"github.com/s0up/xseed/internal/dispatch"
	"github.com/s0up/xseed/internal/errs"
	"github.com/s0up/xseed/internal/indexer"
	"github.com/s0up/xseed/internal/logging"
	"github.com/s0up/xseed/internal/matcher"
	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
	"github.com/s0up/xseed/internal/pipeline"
	"github.com/s0up/xseed/internal/searchee"
	"github.com/s0up/xseed/internal/store"
)

// app bundles every long-lived component the serve and search subcommands
// share, so each subcommand only has to describe what differs (an HTTP
// server and background loop for serve, one synchronous run for search).
type app struct {
	cfg *config.Config
	log zerolog.Logger

	db         *store.DB
	indexers   *store.IndexerRepo
	decisions  *store.DecisionRepo
	timestamps *store.SearcheeTimestampRepo
	jobs       *store.JobRepo

	gateway *indexer.Gateway
	arrs    *arr.Gateway
	parser  *nameparser.Parser
	index   *searchee.Index
	match   *matcher.Matcher
	client  dispatch.ClientAdapter
	disp    *dispatch.Dispatcher
	roots   *dirRootResolver

	pipe     *pipeline.Pipeline
	announce *announce.Listener
}

// dirRootResolver implements dispatch.RootResolver for searchees built from
// the configured data directory: each searchee's source root is the
// directory it was scanned from, keyed by name at scan time.
type dirRootResolver struct {
	roots map[string]string
}

func newDirRootResolver() *dirRootResolver {
	return &dirRootResolver{roots: make(map[string]string)}
}

func (r *dirRootResolver) Root(s *model.Searchee) (string, error) {
	root, ok := r.roots[s.Name]
	if !ok {
		return "", fmt.Errorf("no known data-dir root for searchee %q", s.Name)
	}
	return root, nil
}

// bootstrap loads configuration and wires every component described in
// SPEC_FULL.md §6, short of starting the HTTP server or background loop
// (left to serve.go, since search.go needs the same wiring without either).
func bootstrap(ctx context.Context) (*app, error) {
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return nil, errs.New(errs.KindConfiguration, "bootstrap.load_config", err)
	}
	if err := logging.Configure(logging.Options{Level: logLevel, Pretty: logPretty}); err != nil {
		return nil, errs.New(errs.KindConfiguration, "bootstrap.configure_logging", err)
	}
	log := logging.Component("bootstrap")

	db, err := store.Open(cfg.DBPath)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	a := &app{
		cfg:        cfg,
		log:        log,
		db:         db,
		indexers:   store.NewIndexerRepo(db),
		decisions:  store.NewDecisionRepo(db),
		timestamps: store.NewSearcheeTimestampRepo(db),
		jobs:       store.NewJobRepo(db),
		gateway:    indexer.NewGateway(),
		parser:     nameparser.NewParser(10 * time.Minute),
		index:      searchee.NewIndex(),
	}

	if err := a.registerIndexers(ctx); err != nil {
		a.db.Close()
		return nil, fmt.Errorf("register indexers: %w", err)
	}

	a.arrs = &arr.Gateway{}
	for _, s := range cfg.Arrs.Sonarr {
		a.arrs.Sonarr = append(a.arrs.Sonarr, arr.NewInstance(s.URL, s.APIKey))
	}
	for _, r := range cfg.Arrs.Radarr {
		a.arrs.Radarr = append(a.arrs.Radarr, arr.NewInstance(r.URL, r.APIKey))
	}
	for _, inst := range append(append([]*arr.Instance{}, a.arrs.Sonarr...), a.arrs.Radarr...) {
		if err := inst.Ping(ctx); err != nil {
			a.db.Close()
			return nil, errs.New(errs.KindConfiguration, "bootstrap.ping_arr", err)
		}
	}

	roots := newDirRootResolver()
	if err := a.scanDataDir(roots); err != nil {
		a.db.Close()
		return nil, fmt.Errorf("scan data dir: %w", err)
	}

	a.match = matcher.New(a.parser, &pipeline.GatewayFetcher{Gateway: a.gateway}, a.decisions, a.decisions, matcher.Options{
		SizeFuzz:             cfg.SizeFuzz,
		PartialThreshold:     cfg.PartialThreshold,
		PartialMatchEnabled:  cfg.PartialMatchEnabled,
		SizeOnlyMatchEnabled: cfg.SizeOnlyMatchEnabled,
		DecisionRetention:    cfg.DecisionRetention,
	})

	if cfg.ActionMode == "inject" {
		qc, err := dispatch.NewQBittorrentAdapter(ctx, cfg.Client.Host, cfg.Client.Username, cfg.Client.Password)
		if err != nil {
			a.db.Close()
			return nil, fmt.Errorf("connect to bittorrent client: %w", err)
		}
		a.client = qc
		if err := a.scanClientTorrents(ctx, roots); err != nil {
			a.log.Warn().Err(err).Msg("failed to register client-reported torrents, continuing without them")
		}
	}
	a.disp = dispatch.New(dispatch.Options{
		Mode:                 dispatch.Mode(cfg.ActionMode),
		OutputDir:            cfg.OutputDir,
		LinkDir:              cfg.LinkDir,
		LinkMode:             dispatch.LinkMode(cfg.LinkMode),
		Category:             cfg.Category,
		Tags:                 cfg.Tags,
		AllowCrossDeviceCopy: cfg.AllowCrossDeviceCopy,
	}, a.client, roots, a.decisions)
	a.roots = roots

	due := dueQuerier{timestamps: a.timestamps, index: a.index}
	a.pipe = pipeline.New(a.gateway, a.arrs, a.parser, a.match, a.disp, a.index, due, a.timestamps, pipeline.Options{
		Concurrency:   cfg.Concurrency,
		SearchCadence: cfg.SearchCadence,
	})
	a.announce = announce.New(a.index, a.match, a.disp, a.parser)

	return a, nil
}

// registerIndexers decrypts each configured indexer's API key, registers it
// with the gateway, probes its capabilities, and bridges the probe result
// back onto the same *model.IndexerRecord the gateway holds — Gateway.
// Register and EnabledRecords share that pointer, so this mutation is
// visible to every later SupportsCapability check without a second lookup.
func (a *app) registerIndexers(ctx context.Context) error {
	var enc *crypto.AESEncryptor
	if a.cfg.EncryptionKey != "" {
		e, err := crypto.NewAESEncryptor([]byte(a.cfg.EncryptionKey))
		if err != nil {
			return fmt.Errorf("build encryptor: %w", err)
		}
		enc = e
	}

	for _, ic := range a.cfg.Indexers {
		stored := ic.APIKey
		if enc != nil {
			ciphertext, err := enc.Encrypt(ic.APIKey)
			if err != nil {
				return fmt.Errorf("encrypt api key for %s: %w", ic.Name, err)
			}
			stored = ciphertext
		}

		rec := &model.IndexerRecord{
			Name:               ic.Name,
			URL:                ic.URL,
			APIKeyEncrypted:    stored,
			Priority:           ic.Priority,
			TimeoutSeconds:     ic.TimeoutSeconds,
			Active:             true,
			HourlyRequestLimit: 0,
		}
		if rec.TimeoutSeconds <= 0 {
			rec.TimeoutSeconds = 30
		}

		id, err := a.indexers.Upsert(ctx, rec)
		if err != nil {
			return fmt.Errorf("persist indexer %s: %w", ic.Name, err)
		}
		rec.ID = id

		a.gateway.Register(rec, ic.APIKey)

		caps, err := a.gateway.Probe(ctx, rec.ID)
		if err != nil {
			a.log.Warn().Err(err).Str("indexer", ic.Name).Msg("indexer capability probe failed, continuing with no known capabilities")
			continue
		}
		rec.Capabilities = append(append([]string{}, caps.Search...), caps.IDTypes...)

		if _, err := a.indexers.Upsert(ctx, rec); err != nil {
			return fmt.Errorf("persist probed capabilities for %s: %w", ic.Name, err)
		}
		if err := a.indexers.ReplaceCategories(ctx, rec.ID, caps.Categories); err != nil {
			return fmt.Errorf("persist categories for %s: %w", ic.Name, err)
		}
	}
	return nil
}

// scanDataDir treats every immediate subdirectory of cfg.DataDir as one
// searchee's save-path root, the common cross-seed layout where a client's
// download directory holds one subdirectory per torrent. Single-file
// torrents saved directly at the data dir's top level are not discovered by
// this scan; `search` accepts an explicit path for those.
func (a *app) scanDataDir(roots *dirRootResolver) error {
	entries, err := os.ReadDir(a.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read data dir %s: %w", a.cfg.DataDir, err)
	}

	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		root := filepath.Join(a.cfg.DataDir, e.Name())
		s, err := searchee.FromDataDir(root)
		if err != nil {
			a.log.Warn().Err(err).Str("path", root).Msg("skipping unreadable data dir entry")
			continue
		}
		if err := a.index.Put(s); err != nil {
			a.log.Warn().Err(err).Str("searchee", s.Name).Msg("skipping searchee with invariant conflict")
			continue
		}
		roots.roots[s.Name] = root
	}
	return nil
}

// scanClientTorrents registers every torrent the BitTorrent client already
// manages as a searchee (searchee.FromClientTorrent, spec.md §4.1's third
// Searchee source), using the client's reported save path — normalized
// against the daemon's own OS with pathcmp, since a remote qBittorrent
// instance may run on a different platform — as that searchee's link-source
// root. The matcher's infoHash dedup consults accepted decisions only, not
// this index, so a candidate whose infoHash matches one of these client
// torrents is not reported as INFO_HASH_ALREADY_EXISTS on that ground.
func (a *app) scanClientTorrents(ctx context.Context, roots *dirRootResolver) error {
	torrents, err := a.client.GetTorrents(ctx)
	if err != nil {
		return fmt.Errorf("list client torrents: %w", err)
	}
	for _, t := range torrents {
		if t.InfoHash == "" {
			continue
		}
		s := searchee.FromClientTorrent(searchee.ClientTorrent{Name: t.Name, InfoHash: t.InfoHash})
		if err := a.index.Put(s); err != nil {
			a.log.Debug().Err(err).Str("name", t.Name).Msg("skipping client torrent with invariant conflict")
			continue
		}
		if t.SavePath != "" {
			if _, known := roots.roots[s.Name]; !known {
				roots.roots[s.Name] = t.SavePath
			}
		}
	}
	return nil
}

// close releases the app's resources. Safe to call once, after the HTTP
// server and background loop (if any) have stopped.
func (a *app) close() {
	if a.db != nil {
		a.db.Close()
	}
}

// runJob wraps one pipeline.RunAutomation call with a job_status row,
// recording the outcome whether or not the run itself fails.
func (a *app) runJob(ctx context.Context, requestedBy string) (pipeline.RunResult, error) {
	id, jobErr := a.jobs.Start(ctx, requestedBy, time.Now())
	if jobErr != nil {
		a.log.Warn().Err(jobErr).Msg("failed to record job start")
	}

	result, err := a.pipe.RunAutomation(ctx, requestedBy)

	if jobErr == nil {
		errMessage := ""
		if err != nil {
			errMessage = err.Error()
		}
		if finishErr := a.jobs.Finish(ctx, id, time.Now(), result.Accepted, result.Failed, errMessage); finishErr != nil {
			a.log.Warn().Err(finishErr).Msg("failed to record job finish")
		}
	}
	return result, err
}

// dueQuerier bridges SearcheeTimestampRepo.DueBefore (which only reports
// names already present in the searchee_timestamp table) with searchees the
// index knows about but that have never been searched at all, so a newly
// discovered searchee is due on its very first pipeline cycle.
type dueQuerier struct {
	timestamps *store.SearcheeTimestampRepo
	index      *searchee.Index
}

func (d dueQuerier) DueBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	due, err := d.timestamps.DueBefore(ctx, cutoff)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(due))
	for _, name := range due {
		seen[name] = struct{}{}
	}

	for _, s := range d.index.All() {
		if _, ok := seen[s.Name]; ok {
			continue
		}
		if _, err := d.timestamps.Get(ctx, s.Name); err == store.ErrNotFound {
			due = append(due, s.Name)
			seen[s.Name] = struct{}{}
		}
	}
	return due, nil
}
