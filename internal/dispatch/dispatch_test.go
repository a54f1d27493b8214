// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up/xseed/internal/model"
)

type fakeClient struct {
	result AddResult
	err    error
	calls  int
}

func (f *fakeClient) AddTorrent(ctx context.Context, metadata []byte, dataPath, category string, tags []string) (AddResult, error) {
	f.calls++
	return f.result, f.err
}

func (f *fakeClient) GetTorrents(ctx context.Context) ([]ClientTorrent, error) { return nil, nil }

func (f *fakeClient) CheckExists(ctx context.Context, infoHash string) (bool, error) { return false, nil }

type fakeRootResolver struct {
	root string
	err  error
}

func (f *fakeRootResolver) Root(s *model.Searchee) (string, error) { return f.root, f.err }

type fakeDecisionUpdater struct {
	recorded []*model.Decision
}

func (f *fakeDecisionUpdater) Record(ctx context.Context, d *model.Decision) error {
	f.recorded = append(f.recorded, d)
	return nil
}

func testSearchee(t *testing.T, root string, files map[string]string) *model.Searchee {
	t.Helper()
	var entries []model.FileEntry
	for rel, content := range files {
		full := filepath.Join(root, rel)
		require.NoError(t, os.MkdirAll(filepath.Dir(full), 0o755))
		require.NoError(t, os.WriteFile(full, []byte(content), 0o644))
		entries = append(entries, model.FileEntry{RelativePath: rel, Size: int64(len(content))})
	}
	s := model.NewSearchee("release.name", entries, nil, model.OriginDataDir, nil)
	return &s
}

func TestDispatcher_Dispatch_SaveModeWritesFile(t *testing.T) {
	dir := t.TempDir()
	d := New(Options{Mode: ModeSave, OutputDir: dir}, nil, nil, nil)

	meta := &model.TorrentMetadata{InfoHash: "abc123", Name: "release.name", Raw: []byte("d8:announce...e")}
	err := d.Dispatch(context.Background(), &model.Searchee{Name: "release.name"}, model.Candidate{GUID: "g1"}, meta, model.DecisionMatch)
	require.NoError(t, err)

	want := filepath.Join(dir, "release.name.abc123.torrent")
	got, err := os.ReadFile(want)
	require.NoError(t, err)
	assert.Equal(t, meta.Raw, got)
}

func TestDispatcher_Dispatch_SaveModeCollisionSuffixes(t *testing.T) {
	dir := t.TempDir()
	d := New(Options{Mode: ModeSave, OutputDir: dir}, nil, nil, nil)
	meta := &model.TorrentMetadata{InfoHash: "abc123", Name: "release.name", Raw: []byte("first")}

	require.NoError(t, d.Dispatch(context.Background(), &model.Searchee{Name: "release.name"}, model.Candidate{GUID: "g1"}, meta, model.DecisionMatch))

	meta2 := &model.TorrentMetadata{InfoHash: "abc123", Name: "release.name", Raw: []byte("second")}
	require.NoError(t, d.Dispatch(context.Background(), &model.Searchee{Name: "release.name"}, model.Candidate{GUID: "g2"}, meta2, model.DecisionMatch))

	first, err := os.ReadFile(filepath.Join(dir, "release.name.abc123.torrent"))
	require.NoError(t, err)
	assert.Equal(t, []byte("first"), first)

	second, err := os.ReadFile(filepath.Join(dir, "release.name.abc123-1.torrent"))
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), second)
}

func TestDispatcher_Dispatch_InjectModeSuccess(t *testing.T) {
	root := t.TempDir()
	linkDir := t.TempDir()
	s := testSearchee(t, root, map[string]string{"file.mkv": "payload"})

	client := &fakeClient{result: AddResult{Status: AddStatusAdded, ClientTorrentID: "t1"}}
	d := New(Options{Mode: ModeInject, LinkDir: linkDir, LinkMode: LinkModeHardlink}, client, &fakeRootResolver{root: root}, nil)

	meta := &model.TorrentMetadata{InfoHash: "deadbeef", Raw: []byte("raw-bytes")}
	err := d.Dispatch(context.Background(), s, model.Candidate{GUID: "g1"}, meta, model.DecisionMatch)
	require.NoError(t, err)
	assert.Equal(t, 1, client.calls)

	linked := filepath.Join(linkDir, "deadbeef", "file.mkv")
	got, err := os.ReadFile(linked)
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestDispatcher_Dispatch_InjectModeConflictUpdatesDecision(t *testing.T) {
	root := t.TempDir()
	linkDir := t.TempDir()
	s := testSearchee(t, root, map[string]string{"file.mkv": "payload"})

	client := &fakeClient{result: AddResult{Status: AddStatusConflict}}
	decisions := &fakeDecisionUpdater{}
	d := New(Options{Mode: ModeInject, LinkDir: linkDir, LinkMode: LinkModeHardlink}, client, &fakeRootResolver{root: root}, decisions)

	meta := &model.TorrentMetadata{InfoHash: "deadbeef", Raw: []byte("raw-bytes")}
	err := d.Dispatch(context.Background(), s, model.Candidate{IndexerID: 7, GUID: "g1"}, meta, model.DecisionMatch)
	require.NoError(t, err)

	require.Len(t, decisions.recorded, 1)
	rec := decisions.recorded[0]
	assert.Equal(t, model.DecisionInfoHashAlreadyExists, rec.Kind)
	require.NotNil(t, rec.InfoHash)
	assert.Equal(t, "deadbeef", *rec.InfoHash)
}

func TestDispatcher_Dispatch_InjectModeClientErrorBacksOff(t *testing.T) {
	root := t.TempDir()
	linkDir := t.TempDir()
	s := testSearchee(t, root, map[string]string{"file.mkv": "payload"})

	client := &fakeClient{err: assert.AnError}
	d := New(Options{Mode: ModeInject, LinkDir: linkDir, LinkMode: LinkModeHardlink}, client, &fakeRootResolver{root: root}, nil)

	meta := &model.TorrentMetadata{InfoHash: "deadbeef", Raw: []byte("raw-bytes")}
	err := d.Dispatch(context.Background(), s, model.Candidate{GUID: "g1"}, meta, model.DecisionMatch)
	require.Error(t, err)

	// Dispatch's own failure already called recordRetry once (30s baseline);
	// the next call should double it.
	assert.Equal(t, 60*time.Second, d.recordRetry("g1"))
}

func TestDispatcher_RecordRetry_DoublesAndCaps(t *testing.T) {
	d := New(Options{Mode: ModeInject}, nil, nil, nil)

	first := d.recordRetry("g1")
	assert.Equal(t, 30*time.Second, first)

	second := d.recordRetry("g1")
	assert.Equal(t, 60*time.Second, second)

	for i := 0; i < 10; i++ {
		d.recordRetry("g1")
	}
	assert.LessOrEqual(t, d.recordRetry("g1"), backoffCeiling)

	d.clearRetry("g1")
	assert.Equal(t, 30*time.Second, d.recordRetry("g1"))
}

func TestDispatcher_Dispatch_InjectModeRootResolverError(t *testing.T) {
	d := New(Options{Mode: ModeInject}, &fakeClient{}, &fakeRootResolver{err: assert.AnError}, nil)
	meta := &model.TorrentMetadata{InfoHash: "deadbeef", Raw: []byte("raw")}
	err := d.Dispatch(context.Background(), &model.Searchee{Name: "x"}, model.Candidate{GUID: "g1"}, meta, model.DecisionMatch)
	require.Error(t, err)
}
