// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up/xseed/internal/logging"
	"github.com/s0up/xseed/internal/model"
)

// entry bundles one indexer's client, rate limiter, and cached capabilities.
type entry struct {
	record  *model.IndexerRecord
	client  *Client
	limiter *RateLimiter

	mu   sync.Mutex
	caps *Capabilities // cached for process lifetime once probed (spec.md §4.3)
}

// Gateway is the single logical Torznab gateway with per-indexer state,
// spec.md §4.3's "one logical gateway with per-indexer state". Grounded in
// the teacher's jackett.Service, trimmed of its Jackett/Prowlarr backend
// switch since this module talks Torznab directly.
type Gateway struct {
	log     zerolog.Logger
	mu      sync.RWMutex
	entries map[int]*entry
}

// NewGateway returns an empty Gateway.
func NewGateway() *Gateway {
	return &Gateway{entries: make(map[int]*entry), log: logging.Component("indexer")}
}

// Register adds or replaces the indexer described by rec, with a token
// bucket sized from its configured request limits (falling back to a
// conservative default of 1 req/5s, burst 1, when unset).
func (g *Gateway) Register(rec *model.IndexerRecord, apiKey string) {
	ratePerSecond := 0.2
	if rec.HourlyRequestLimit > 0 {
		ratePerSecond = float64(rec.HourlyRequestLimit) / 3600.0
	}
	e := &entry{
		record:  rec,
		client:  NewClient(rec.URL, apiKey, time.Duration(rec.TimeoutSeconds)*time.Second),
		limiter: NewRateLimiter(ratePerSecond, 1),
	}
	g.mu.Lock()
	g.entries[rec.ID] = e
	g.mu.Unlock()
}

// Probe issues t=caps for indexerID, caching the result for the process
// lifetime.
func (g *Gateway) Probe(ctx context.Context, indexerID int) (*Capabilities, error) {
	e, err := g.get(indexerID)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	if e.caps != nil {
		defer e.mu.Unlock()
		return e.caps, nil
	}
	e.mu.Unlock()

	caps, err := e.client.Probe(ctx)
	if err != nil {
		return nil, err
	}

	e.mu.Lock()
	e.caps = caps
	e.mu.Unlock()
	return caps, nil
}

// Search rate-limits and issues a Torznab search against one indexer
// (spec.md §4.3). Every failure, 401/403 included, goes through
// RecordFailure (doubling, capped backoff); no failure disables the indexer
// permanently.
func (g *Gateway) Search(ctx context.Context, indexerID int, q Query) ([]model.Candidate, error) {
	e, err := g.get(indexerID)
	if err != nil {
		return nil, err
	}

	if until := e.limiter.DisabledUntil(); until.After(time.Now()) {
		return nil, fmt.Errorf("indexer %d disabled until %s", indexerID, until)
	}

	if err := e.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	candidates, err := e.client.Search(ctx, indexerID, q)
	if err != nil {
		until := e.limiter.RecordFailure(time.Now())
		g.log.Warn().Err(err).Int("indexerID", indexerID).Time("disabledUntil", until).Msg("indexer search failed")
		return nil, err
	}

	e.limiter.RecordSuccess()
	return candidates, nil
}

// Download fetches a candidate's .torrent payload through the owning
// indexer's client (so relative links and apikey query params resolve
// correctly).
func (g *Gateway) Download(ctx context.Context, indexerID int, link string) ([]byte, error) {
	e, err := g.get(indexerID)
	if err != nil {
		return nil, err
	}
	return e.client.Download(ctx, link)
}

func (g *Gateway) get(indexerID int) (*entry, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	e, ok := g.entries[indexerID]
	if !ok {
		return nil, fmt.Errorf("unknown indexer %d", indexerID)
	}
	return e, nil
}

// Enabled returns the IDs of every registered indexer not currently
// disabled.
func (g *Gateway) Enabled(now time.Time) []int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var ids []int
	for id, e := range g.entries {
		if e.limiter.DisabledUntil().After(now) {
			continue
		}
		ids = append(ids, id)
	}
	return ids
}

// EnabledRecords returns the configuration records of every registered
// indexer not currently disabled, for the search pipeline's capability
// filtering (spec.md §4.7 step 2).
func (g *Gateway) EnabledRecords(now time.Time) []*model.IndexerRecord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var recs []*model.IndexerRecord
	for _, e := range g.entries {
		if e.limiter.DisabledUntil().After(now) {
			continue
		}
		recs = append(recs, e.record)
	}
	return recs
}
