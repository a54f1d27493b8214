// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package matcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/moistari/rls"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
)

func TestReleasesMatch_NonTVRequiresExactTitle(t *testing.T) {
	base := rls.Release{Title: "Test Movie", Year: 2025}
	same := rls.Release{Title: "Test Movie", Year: 2025}
	variant := rls.Release{Title: "Test Movie Extended", Year: 2025}

	assert.True(t, ReleasesMatch(base, same, false))
	assert.False(t, ReleasesMatch(base, variant, false))
}

func TestReleasesMatch_TVAllowsFuzzyTitleButRequiresSeasonEpisode(t *testing.T) {
	source := rls.Release{Title: "Some Show", Series: 1, Episode: 1}
	candidate := rls.Release{Title: "Some Show US", Series: 1, Episode: 1}
	wrongEpisode := rls.Release{Title: "Some Show", Series: 1, Episode: 2}

	assert.True(t, ReleasesMatch(source, candidate, false))
	assert.False(t, ReleasesMatch(source, wrongEpisode, false))
}

func TestReleasesMatch_GroupMustMatchWhenSourceHasOne(t *testing.T) {
	source := rls.Release{Title: "Movie", Year: 2024, Group: "GROUPA"}
	sameGroup := rls.Release{Title: "Movie", Year: 2024, Group: "GROUPA"}
	diffGroup := rls.Release{Title: "Movie", Year: 2024, Group: "GROUPB"}
	noGroup := rls.Release{Title: "Movie", Year: 2024}

	assert.True(t, ReleasesMatch(source, sameGroup, false))
	assert.False(t, ReleasesMatch(source, diffGroup, false))
	assert.False(t, ReleasesMatch(source, noGroup, false))
}

func TestReleasesMatch_ResolutionMustAgreeIfBothPresent(t *testing.T) {
	source := rls.Release{Title: "Movie", Year: 2024, Resolution: "1080p"}
	candidate := rls.Release{Title: "Movie", Year: 2024, Resolution: "2160p"}
	assert.False(t, ReleasesMatch(source, candidate, false))
}

type fakeFetcher struct {
	meta *model.TorrentMetadata
	err  error
}

func (f *fakeFetcher) FetchMetadata(ctx context.Context, c model.Candidate) (*model.TorrentMetadata, error) {
	return f.meta, f.err
}

type fakeHashChecker struct {
	known map[string]bool
	err   error
}

func (f *fakeHashChecker) HasInfoHash(ctx context.Context, hash string) (bool, error) {
	if f.err != nil {
		return false, f.err
	}
	return f.known[hash], nil
}

// fakeDecisionStore is an in-memory stand-in for store.DecisionRepo.
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

func newTestMatcher(meta *model.TorrentMetadata, known map[string]bool, opts Options) *Matcher {
	return New(nameparser.NewParser(time.Minute), &fakeFetcher{meta: meta}, &fakeHashChecker{known: known}, newFakeDecisionStore(), opts)
}

func TestMatcher_Decide_SizeMismatch(t *testing.T) {
	s := &model.Searchee{Name: "x", TotalSize: 1000}
	m := newTestMatcher(nil, nil, Options{SizeFuzz: 0.025})

	kind, meta, err := m.Decide(context.Background(), s, model.Candidate{Size: 2000})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionSizeMismatch, kind)
	assert.Nil(t, meta)
}

func TestMatcher_Decide_DownloadFailed(t *testing.T) {
	s := &model.Searchee{Name: "x", TotalSize: 1000}
	m := New(nameparser.NewParser(time.Minute), &fakeFetcher{err: errors.New("boom")}, &fakeHashChecker{}, newFakeDecisionStore(), Options{SizeFuzz: 0.1})

	kind, _, err := m.Decide(context.Background(), s, model.Candidate{Size: 1000})
	assert.Error(t, err)
	assert.Equal(t, model.DecisionDownloadFailed, kind)
}

func TestMatcher_Decide_InfoHashAlreadyExists(t *testing.T) {
	s := &model.Searchee{Name: "x", TotalSize: 1000}
	meta := &model.TorrentMetadata{InfoHash: "abc", FileList: []model.FileEntry{{RelativePath: "f.mkv", Size: 1000}}}
	m := newTestMatcher(meta, map[string]bool{"abc": true}, Options{SizeFuzz: 0.1})

	kind, _, err := m.Decide(context.Background(), s, model.Candidate{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionInfoHashAlreadyExists, kind)
}

func TestMatcher_Decide_ExactMatch(t *testing.T) {
	s := &model.Searchee{
		Name:      "Show.S01E01.1080p.WEB-DL-GROUP",
		TotalSize: 1000,
		FileList:  []model.FileEntry{{RelativePath: "Show.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	meta := &model.TorrentMetadata{
		InfoHash: "newhash",
		Name:     "Show.S01E01.1080p.WEB-DL-GROUP",
		FileList: []model.FileEntry{{RelativePath: "Show.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	m := newTestMatcher(meta, nil, Options{SizeFuzz: 0.1})

	kind, got, err := m.Decide(context.Background(), s, model.Candidate{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMatch, kind)
	assert.Equal(t, meta, got)
}

func TestMatcher_Decide_ExactMatchIgnoresDirectoryLayout(t *testing.T) {
	s := &model.Searchee{
		Name:      "Show.S01E01.1080p.WEB-DL-GROUP",
		TotalSize: 1000,
		FileList:  []model.FileEntry{{RelativePath: "Season 1/Show.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	meta := &model.TorrentMetadata{
		InfoHash: "newhash",
		Name:     "Show.S01.1080p.WEB-DL-GROUP",
		FileList: []model.FileEntry{{RelativePath: "Show.S01/Show.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	m := newTestMatcher(meta, nil, Options{SizeFuzz: 0.1})

	kind, _, err := m.Decide(context.Background(), s, model.Candidate{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMatch, kind)
}

func TestMatcher_Decide_PartialMatchSeasonPack(t *testing.T) {
	s := &model.Searchee{
		Name:      "Show.S01E01.1080p.WEB-DL-GROUP",
		TotalSize: 1000,
		FileList:  []model.FileEntry{{RelativePath: "Show.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000}},
	}
	meta := &model.TorrentMetadata{
		InfoHash: "packhash",
		Name:     "Show.S01.1080p.WEB-DL-GROUP",
		FileList: []model.FileEntry{
			{RelativePath: "Show.S01E01.1080p.WEB-DL-GROUP.mkv", Size: 1000},
			{RelativePath: "Show.S01E02.1080p.WEB-DL-GROUP.mkv", Size: 1000},
		},
	}
	m := newTestMatcher(meta, nil, Options{SizeFuzz: 1.0, PartialMatchEnabled: true, PartialThreshold: 1.0})

	kind, _, err := m.Decide(context.Background(), s, model.Candidate{Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMatchPartial, kind)
}

func TestMatcher_Decide_SizeOnlyMatch(t *testing.T) {
	s := &model.Searchee{
		Name:      "random-name-one",
		TotalSize: 500,
		FileList:  []model.FileEntry{{RelativePath: "random-file-one.bin", Size: 500}},
	}
	meta := &model.TorrentMetadata{
		InfoHash: "h2",
		Name:     "random-name-two",
		FileList: []model.FileEntry{{RelativePath: "random-file-two.bin", Size: 500}},
	}
	m := newTestMatcher(meta, nil, Options{SizeFuzz: 0.1, SizeOnlyMatchEnabled: true})

	kind, _, err := m.Decide(context.Background(), s, model.Candidate{Size: 500})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMatchSizeOnly, kind)
}

func TestMatcher_Decide_FileTreeMismatch(t *testing.T) {
	s := &model.Searchee{
		Name:      "Movie.2024.1080p.WEB-DL-GROUPA",
		TotalSize: 1000,
		FileList:  []model.FileEntry{{RelativePath: "Movie.2024.1080p.WEB-DL-GROUPA.mkv", Size: 1000}},
	}
	meta := &model.TorrentMetadata{
		InfoHash: "h3",
		Name:     "Movie.2024.1080p.WEB-DL-GROUPB",
		FileList: []model.FileEntry{{RelativePath: "Movie.2024.1080p.WEB-DL-GROUPB.mkv", Size: 999}},
	}
	m := newTestMatcher(meta, nil, Options{SizeFuzz: 0.1})

	kind, _, err := m.Decide(context.Background(), s, model.Candidate{Size: 999})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionFileTreeMismatch, kind)
}

func TestMatcher_Decide_RecordsEveryOutcome(t *testing.T) {
	s := &model.Searchee{Name: "x", TotalSize: 1000}
	store := newFakeDecisionStore()
	m := New(nameparser.NewParser(time.Minute), &fakeFetcher{}, &fakeHashChecker{}, store, Options{SizeFuzz: 0.025})

	c := model.Candidate{IndexerID: 1, GUID: "g1", Size: 2000}
	kind, _, err := m.Decide(context.Background(), s, c)
	require.NoError(t, err)
	assert.Equal(t, model.DecisionSizeMismatch, kind)

	got, ok := store.rows[model.DecisionKey{SearcheeName: "x", IndexerID: 1, GUID: "g1"}]
	require.True(t, ok)
	assert.Equal(t, model.DecisionSizeMismatch, got.Kind)
}

func TestMatcher_Decide_CacheShortCircuitsBeforeFetch(t *testing.T) {
	s := &model.Searchee{Name: "x", TotalSize: 1000}
	store := newFakeDecisionStore()
	key := model.DecisionKey{SearcheeName: "x", IndexerID: 1, GUID: "g1"}
	store.rows[key] = &model.Decision{SearcheeName: "x", IndexerID: 1, GUID: "g1", Kind: model.DecisionNoMatch}

	fetcher := &fakeFetcher{err: errors.New("should not be called")}
	m := New(nameparser.NewParser(time.Minute), fetcher, &fakeHashChecker{}, store, Options{SizeFuzz: 0.1})

	kind, meta, err := m.Decide(context.Background(), s, model.Candidate{IndexerID: 1, GUID: "g1", Size: 1000})
	require.NoError(t, err)
	assert.Equal(t, model.DecisionNoMatch, kind)
	assert.Nil(t, meta)
}

func TestMatcher_Decide_DownloadFailedRecheckedAfterTTL(t *testing.T) {
	s := &model.Searchee{Name: "x", TotalSize: 1000}
	store := newFakeDecisionStore()
	key := model.DecisionKey{SearcheeName: "x", IndexerID: 1, GUID: "g1"}
	stale := time.Now().Add(-2 * time.Hour)
	store.rows[key] = &model.Decision{SearcheeName: "x", IndexerID: 1, GUID: "g1", Kind: model.DecisionDownloadFailed, LastSeen: stale}

	meta := &model.TorrentMetadata{InfoHash: "h1", FileList: []model.FileEntry{{RelativePath: "f.mkv", Size: 1000}}}
	m := newTestMatcher(meta, nil, Options{SizeFuzz: 0.1})
	m.decisions = store

	kind, got, err := m.Decide(context.Background(), s, model.Candidate{IndexerID: 1, GUID: "g1", Size: 1000})
	require.NoError(t, err)
	assert.NotEqual(t, model.DecisionDownloadFailed, kind)
	assert.NotNil(t, got)
}

func TestShouldIgnoreFile(t *testing.T) {
	assert.True(t, shouldIgnoreFile("readme.nfo", []string{".nfo"}))
	assert.True(t, shouldIgnoreFile("Sample/movie-sample.mkv", []string{"*sample*"}))
	assert.False(t, shouldIgnoreFile("movie.mkv", []string{".nfo"}))
}

func TestCheckPartialMatch_ThresholdEnforced(t *testing.T) {
	subset := map[releaseKey]int64{
		{series: 1, episode: 1}: 100,
		{series: 1, episode: 2}: 100,
	}
	superset := map[releaseKey]int64{
		{series: 1, episode: 1}: 100,
	}
	assert.False(t, checkPartialMatch(subset, superset, 1.0))
	assert.True(t, checkPartialMatch(subset, superset, 0.5))
}
