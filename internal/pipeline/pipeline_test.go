// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up/xseed/internal/indexer"
	"github.com/s0up/xseed/internal/matcher"
	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
)

const sampleRSS = `<?xml version="1.0"?>
<rss><channel>
<item>
  <title>Show.Name.S01E01.1080p.WEB-DL-GROUP</title>
  <link>http://indexer.example/dl/1</link>
  <guid>guid-1</guid>
  <torznab:attr xmlns:torznab="http://torznab.com/schemas/2015/feed" name="size" value="1000" />
</item>
</channel></rss>`

func newTestGateway(t *testing.T, handler http.HandlerFunc) (*indexer.Gateway, *model.IndexerRecord) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	rec := &model.IndexerRecord{ID: 1, Name: "idx", URL: srv.URL, Capabilities: []string{"search", "tv-search"}}
	gw := indexer.NewGateway()
	gw.Register(rec, "key")
	return gw, rec
}

type fakeDispatcher struct {
	calls int
	err   error
}

func (d *fakeDispatcher) Dispatch(ctx context.Context, s *model.Searchee, c model.Candidate, meta *model.TorrentMetadata, kind model.DecisionKind) error {
	d.calls++
	return d.err
}

type fakeSearcheeSource struct {
	s *model.Searchee
}

func (f *fakeSearcheeSource) Get(name string) (*model.Searchee, bool) {
	if f.s == nil || f.s.Name != name {
		return nil, false
	}
	return f.s, true
}

type fakeDueQuerier struct{ names []string }

func (f *fakeDueQuerier) DueBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	return f.names, nil
}

type fakeMarker struct{ marked []string }

func (f *fakeMarker) MarkSearched(ctx context.Context, name string, at time.Time) error {
	f.marked = append(f.marked, name)
	return nil
}

type fakeFetcher struct {
	meta *model.TorrentMetadata
	err  error
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, c model.Candidate) (*model.TorrentMetadata, error) {
	return f.meta, f.err
}

type fakeHashChecker struct{}

func (fakeHashChecker) HasInfoHash(ctx context.Context, hash string) (bool, error) { return false, nil }

type fakeDecisionStore struct {
	rows map[model.DecisionKey]*model.Decision
}

func newFakeDecisionStore() *fakeDecisionStore {
	return &fakeDecisionStore{rows: make(map[model.DecisionKey]*model.Decision)}
}

func (f *fakeDecisionStore) Get(ctx context.Context, key model.DecisionKey) (*model.Decision, error) {
	d, ok := f.rows[key]
	if !ok {
		return nil, errors.New("not found")
	}
	return d, nil
}

func (f *fakeDecisionStore) Record(ctx context.Context, d *model.Decision) error {
	cp := *d
	f.rows[d.Key()] = &cp
	return nil
}

func TestPipeline_Run_MatchesAndDispatches(t *testing.T) {
	gw, _ := newTestGateway(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	})

	s := &model.Searchee{
		Name:      "Show.Name.S01E01.1080p.WEB-DL-GROUP",
		TotalSize: 1000,
		FileList:  []model.FileEntry{{RelativePath: "Show.Name.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	meta := &model.TorrentMetadata{
		InfoHash: "abc123",
		Name:     "Show.Name.S01E01.1080p.WEB-DL-GROUP",
		FileList: []model.FileEntry{{RelativePath: "Show.Name.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}

	parser := nameparser.NewParser(time.Minute)
	m := matcher.New(parser, &fakeFetcher{meta: meta}, fakeHashChecker{}, newFakeDecisionStore(), matcher.Options{SizeFuzz: 0.1})

	dispatcher := &fakeDispatcher{}
	due := &fakeDueQuerier{names: []string{s.Name}}
	marker := &fakeMarker{}
	src := &fakeSearcheeSource{s: s}

	p := New(gw, nil, parser, m, dispatcher, src, due, marker, Options{Concurrency: 2, SearchCadence: time.Hour})

	result, err := p.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 1, result.SearcheesProcessed)
	assert.Equal(t, 1, result.CandidatesSeen)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, dispatcher.calls)
	assert.Contains(t, marker.marked, s.Name)
}

func TestPipeline_Run_DedupsSameInfoHashAcrossIndexers(t *testing.T) {
	handler := func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/rss+xml")
		_, _ = w.Write([]byte(sampleRSS))
	}
	srvA := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srvA.Close)
	srvB := httptest.NewServer(http.HandlerFunc(handler))
	t.Cleanup(srvB.Close)

	gw := indexer.NewGateway()
	recA := &model.IndexerRecord{ID: 1, Name: "idxA", URL: srvA.URL, Capabilities: []string{"search", "tv-search"}}
	recB := &model.IndexerRecord{ID: 2, Name: "idxB", URL: srvB.URL, Capabilities: []string{"search", "tv-search"}}
	gw.Register(recA, "key")
	gw.Register(recB, "key")

	s := &model.Searchee{
		Name:      "Show.Name.S01E01.1080p.WEB-DL-GROUP",
		TotalSize: 1000,
		FileList:  []model.FileEntry{{RelativePath: "Show.Name.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	// Both indexers return the same guid for what turns out to be the same
	// content (same infoHash) once fetched — singleflight's (searchee,
	// indexer, guid) key differs by indexer and does not join these, so the
	// dedup below is the only thing stopping a double dispatch.
	meta := &model.TorrentMetadata{
		InfoHash: "sharedhash",
		Name:     "Show.Name.S01E01.1080p.WEB-DL-GROUP",
		FileList: []model.FileEntry{{RelativePath: "Show.Name.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}

	parser := nameparser.NewParser(time.Minute)
	m := matcher.New(parser, &fakeFetcher{meta: meta}, fakeHashChecker{}, newFakeDecisionStore(), matcher.Options{SizeFuzz: 0.1})

	dispatcher := &fakeDispatcher{}
	due := &fakeDueQuerier{names: []string{s.Name}}
	marker := &fakeMarker{}
	src := &fakeSearcheeSource{s: s}

	p := New(gw, nil, parser, m, dispatcher, src, due, marker, Options{Concurrency: 2, SearchCadence: time.Hour})

	result, err := p.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 2, result.CandidatesSeen)
	assert.Equal(t, 1, result.Accepted)
	assert.Equal(t, 1, dispatcher.calls)
}

func TestPipeline_Run_SkipsIndexerWithoutCapability(t *testing.T) {
	gw := indexer.NewGateway()
	rec := &model.IndexerRecord{ID: 1, Name: "idx", URL: "http://unused", Capabilities: []string{"movie-search"}}
	gw.Register(rec, "key")

	s := &model.Searchee{Name: "Show.Name.S01E01.1080p.WEB-DL-GROUP", TotalSize: 1000}
	parser := nameparser.NewParser(time.Minute)
	m := matcher.New(parser, &fakeFetcher{}, fakeHashChecker{}, newFakeDecisionStore(), matcher.Options{SizeFuzz: 0.1})
	dispatcher := &fakeDispatcher{}
	due := &fakeDueQuerier{names: []string{s.Name}}
	marker := &fakeMarker{}
	src := &fakeSearcheeSource{s: s}

	p := New(gw, nil, parser, m, dispatcher, src, due, marker, Options{Concurrency: 2, SearchCadence: time.Hour})

	result, err := p.Run(context.Background(), time.Now())
	require.NoError(t, err)
	assert.Equal(t, 0, result.CandidatesSeen)
	assert.Equal(t, 0, dispatcher.calls)
}

func TestPipeline_Run_ConcurrentRunRejected(t *testing.T) {
	gw := indexer.NewGateway()
	parser := nameparser.NewParser(time.Minute)
	m := matcher.New(parser, &fakeFetcher{}, fakeHashChecker{}, newFakeDecisionStore(), matcher.Options{SizeFuzz: 0.1})
	p := New(gw, nil, parser, m, &fakeDispatcher{}, &fakeSearcheeSource{}, &fakeDueQuerier{}, &fakeMarker{}, Options{})

	p.runActive.Store(true)
	_, err := p.Run(context.Background(), time.Now())
	assert.ErrorIs(t, err, ErrAlreadyRunning)
}
