// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package pipeline implements spec.md §4.7's search pipeline: pick due
// searchees, fan out Torznab queries across enabled indexers with a global
// concurrency cap, stream candidates through the matcher, and hand accepted
// decisions to the action dispatcher. Grounded in the teacher's
// internal/services/jackett/scheduler.go for the worker-pool fan-out shape
// (simplified from its heap-priority one-worker-per-indexer model, which
// spec.md §4.7 does not call for) composed with crossseed/service.go's
// automationLoop / computeNextRunDelay / waitTimer scheduling idiom.
package pipeline

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/singleflight"

	"github.com/s0up/xseed/internal/arr"
	"github.com/s0up/xseed/internal/indexer"
	"github.com/s0up/xseed/internal/logging"
	"github.com/s0up/xseed/internal/matcher"
	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
	"github.com/s0up/xseed/internal/searchee"
)

// Dispatcher hands an accepted decision off for SAVE/INJECT handling
// (package dispatch). Kept as an interface so the pipeline has no direct
// dependency on the client adapter or filesystem linking code.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *model.Searchee, c model.Candidate, meta *model.TorrentMetadata, kind model.DecisionKind) error
}

// SearcheeSource resolves a due searchee name to its current model.Searchee,
// package searchee's Index.
type SearcheeSource interface {
	Get(name string) (*model.Searchee, bool)
}

// DueQuerier returns the names of searchees due for another search cycle,
// package store's SearcheeTimestampRepo.
type DueQuerier interface {
	DueBefore(ctx context.Context, cutoff time.Time) ([]string, error)
}

// SearchMarker records that a searchee was searched, package store's
// SearcheeTimestampRepo.
type SearchMarker interface {
	MarkSearched(ctx context.Context, name string, at time.Time) error
}

// Options configures one Pipeline instance.
type Options struct {
	Concurrency   int           // global fan-out worker cap (spec.md §5)
	SearchCadence time.Duration // how often a searchee is due again
}

// Pipeline orchestrates one full run of spec.md §4.7's six-step procedure,
// plus the interval-driven scheduling loop that decides when to run it.
type Pipeline struct {
	indexers   *indexer.Gateway
	arrs       *arr.Gateway
	parser     *nameparser.Parser
	match      *matcher.Matcher
	dispatcher Dispatcher
	searchees  SearcheeSource
	due        DueQuerier
	marker     SearchMarker
	opts       Options
	log        zerolog.Logger

	sf singleflight.Group // joins concurrent re-decides of the same (searchee, indexer, guid)

	wake      chan struct{}
	runActive atomic.Bool
}

// New builds a Pipeline. dispatcher, searchees, due, and marker are the
// seams package cmd wires to concrete store/searchee/dispatch
// implementations; tests supply fakes.
func New(indexers *indexer.Gateway, arrs *arr.Gateway, parser *nameparser.Parser, match *matcher.Matcher,
	dispatcher Dispatcher, searchees SearcheeSource, due DueQuerier, marker SearchMarker, opts Options) *Pipeline {
	if opts.Concurrency <= 0 {
		opts.Concurrency = 4
	}
	return &Pipeline{
		indexers: indexers, arrs: arrs, parser: parser, match: match,
		dispatcher: dispatcher, searchees: searchees, due: due, marker: marker,
		opts: opts, log: logging.Component("pipeline"),
		wake: make(chan struct{}, 1),
	}
}

// RunResult summarizes one pipeline cycle for the job_status table.
type RunResult struct {
	SearcheesProcessed int
	CandidatesSeen     int
	Accepted           int
	Failed             int
}

// ErrAlreadyRunning is returned by Run when a cycle is already in progress.
var ErrAlreadyRunning = errAlreadyRunning{}

type errAlreadyRunning struct{}

func (errAlreadyRunning) Error() string { return "pipeline: a run is already in progress" }

// Run executes one full search cycle over every searchee due before now,
// spec.md §4.7 steps 1-6. Only one Run executes at a time; a concurrent call
// returns ErrAlreadyRunning immediately rather than queuing.
func (p *Pipeline) Run(ctx context.Context, now time.Time) (RunResult, error) {
	if !p.runActive.CompareAndSwap(false, true) {
		return RunResult{}, ErrAlreadyRunning
	}
	defer p.runActive.Store(false)

	cutoff := now.Add(-p.opts.SearchCadence)
	names, err := p.due.DueBefore(ctx, cutoff)
	if err != nil {
		return RunResult{}, err
	}

	var result RunResult
	var mu sync.Mutex
	sem := make(chan struct{}, p.opts.Concurrency)
	var wg sync.WaitGroup
	dedup := newInfoHashDedup()

	for _, name := range names {
		s, ok := p.searchees.Get(name)
		if !ok {
			continue
		}
		result.SearcheesProcessed++

		records := p.indexers.EnabledRecords(now)
		for _, rec := range records {
			rec := rec
			wg.Add(1)
			sem <- struct{}{}
			go func(s *model.Searchee) {
				defer wg.Done()
				defer func() { <-sem }()

				seen, accepted, failed := p.searchOneIndexer(ctx, s, rec, dedup)

				mu.Lock()
				result.CandidatesSeen += seen
				result.Accepted += accepted
				result.Failed += failed
				mu.Unlock()
			}(s)
		}

		if err := p.marker.MarkSearched(ctx, name, now); err != nil {
			p.log.Warn().Err(err).Str("searchee", name).Msg("failed to mark searchee searched")
		}
	}

	wg.Wait()
	return result, nil
}

// searchOneIndexer runs steps 2-5 against a single indexer for s. The
// singleflight group above only joins identical (searchee, indexer, guid)
// requests; it does nothing for two distinct guids across indexers (or two
// concurrent goroutines in this same Run, one per indexer) that both
// resolve to the same infoHash, so dedup.claim enforces spec.md §4.7's
// per-cycle infoHash first-writer-wins dedup on top of it, right before
// Dispatch is called.
func (p *Pipeline) searchOneIndexer(ctx context.Context, s *model.Searchee, rec *model.IndexerRecord, dedup *infoHashDedup) (seen, accepted, failed int) {
	parsed := p.parser.Parse(s.Name)

	if !rec.SupportsCapability(capabilityFor(parsed.MediaType)) {
		return 0, 0, 0
	}

	q := p.buildQuery(ctx, s.Name, parsed, rec)

	candidates, err := p.indexers.Search(ctx, rec.ID, q)
	if err != nil {
		p.log.Warn().Err(err).Str("indexer", rec.Name).Str("searchee", s.Name).Msg("indexer search failed")
		return 0, 0, 1
	}

	for _, c := range candidates {
		seen++
		key := s.Name + "|" + rec.Name + "|" + c.GUID
		v, err, _ := p.sf.Do(key, func() (any, error) {
			kind, meta, err := p.match.Decide(ctx, s, c)
			return decideResult{kind: kind, meta: meta}, err
		})
		if err != nil {
			failed++
			continue
		}
		dr := v.(decideResult)
		if !dr.kind.Accepted() || dr.meta == nil {
			// nil meta: a decision cached by an earlier run, already handled.
			continue
		}
		if dr.meta != nil && dr.meta.InfoHash != "" && !dedup.claim(dr.meta.InfoHash) {
			continue
		}
		if err := p.dispatcher.Dispatch(ctx, s, c, dr.meta, dr.kind); err != nil {
			p.log.Warn().Err(err).Str("searchee", s.Name).Str("guid", c.GUID).Msg("dispatch failed")
			failed++
			continue
		}
		accepted++
	}
	return seen, accepted, failed
}

type decideResult struct {
	kind model.DecisionKind
	meta *model.TorrentMetadata
}

// infoHashDedup tracks which infoHashes have already been dispatched in one
// Run cycle, scoped to a single call and discarded at its end. The matcher's
// InfoHashChecker only guards against infoHashes already accepted in a
// *prior* cycle (the persisted decision cache); within one cycle, two
// indexer goroutines racing on the same content can both pass that check
// before either records its decision, so this in-memory gate is required in
// addition to it.
type infoHashDedup struct {
	mu   sync.Mutex
	seen map[string]bool
}

func newInfoHashDedup() *infoHashDedup {
	return &infoHashDedup{seen: make(map[string]bool)}
}

// claim reports whether hash has not yet been claimed this cycle, claiming
// it for the caller atomically if so (first-writer-wins).
func (d *infoHashDedup) claim(hash string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.seen[hash] {
		return false
	}
	d.seen[hash] = true
	return true
}

// buildQuery implements step 2: prefer an ID search when the indexer
// advertises support and the Arr gateway resolved one, else fall back to
// textual search with category filtering.
func (p *Pipeline) buildQuery(ctx context.Context, name string, parsed model.ParsedRelease, rec *model.IndexerRecord) indexer.Query {
	category := nameparser.DetermineCategory(p.parser.ParseRLS(name))
	q := indexer.Query{
		Categories: nameparser.TorznabCategories(category),
		Text:       parsed.Title,
		Season:     parsed.Series,
		Episode:    parsed.Episode,
	}

	if p.arrs == nil {
		return q
	}
	ids := p.arrs.ResolveIDs(ctx, name, parsed.MediaType)
	if rec.SupportsCapability("imdbid") {
		q.IMDBID = ids.IMDBID
	}
	if rec.SupportsCapability("tmdbid") {
		q.TMDBID = ids.TMDBID
	}
	if rec.SupportsCapability("tvdbid") {
		q.TVDBID = ids.TVDBID
	}
	if q.IMDBID != "" || q.TMDBID != "" || q.TVDBID != "" {
		q.Text = ""
	}
	return q
}

// capabilityFor maps a MediaType onto the Torznab search mode an indexer
// must advertise to be worth querying for it.
func capabilityFor(mt model.MediaType) string {
	switch mt {
	case model.MediaEpisode, model.MediaSeason, model.MediaAnime:
		return "tv-search"
	case model.MediaMovie:
		return "movie-search"
	default:
		return "search"
	}
}

// RunAutomation runs Run with kind="scheduled"/"on-demand" bookkeeping
// delegated to the caller (package cmd wires job_status recording around
// this); RunAutomation itself only distinguishes the trigger for logging.
func (p *Pipeline) RunAutomation(ctx context.Context, requestedBy string) (RunResult, error) {
	p.log.Info().Str("requestedBy", requestedBy).Msg("starting search pipeline cycle")
	result, err := p.Run(ctx, time.Now())
	if err != nil {
		return result, err
	}
	p.log.Info().
		Int("searchees", result.SearcheesProcessed).
		Int("candidates", result.CandidatesSeen).
		Int("accepted", result.Accepted).
		Int("failed", result.Failed).
		Msg("search pipeline cycle complete")
	return result, nil
}

// Loop runs the interval-driven scheduling idiom grounded in the teacher's
// automationLoop/waitTimer/computeNextRunDelay: wake on either the interval
// timer or an explicit Wake() call, skip a beat if a run is already active.
func (p *Pipeline) Loop(ctx context.Context) {
	p.log.Info().Msg("starting search pipeline loop")
	defer p.log.Info().Msg("search pipeline loop stopped")

	timer := time.NewTimer(time.Minute)
	if !timer.Stop() {
		<-timer.C
	}

	for {
		if ctx.Err() != nil {
			return
		}

		if _, err := p.RunAutomation(ctx, "scheduler"); err != nil && err != ErrAlreadyRunning {
			p.log.Warn().Err(err).Msg("search pipeline cycle failed")
		}

		p.waitTimer(ctx, timer, p.opts.SearchCadence)
	}
}

// Wake signals Loop to run a cycle immediately rather than waiting for its
// next interval tick, for on-demand and announce-triggered requests.
func (p *Pipeline) Wake() {
	select {
	case p.wake <- struct{}{}:
	default:
	}
}

func (p *Pipeline) waitTimer(ctx context.Context, timer *time.Timer, delay time.Duration) {
	if delay <= 0 {
		delay = time.Minute
	}
	if delay > 24*time.Hour {
		delay = 24 * time.Hour
	}

	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(delay)

	select {
	case <-ctx.Done():
	case <-timer.C:
	case <-p.wake:
	}
}
