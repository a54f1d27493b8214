// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up/xseed/internal/model"
)

func openTestDB(t *testing.T) *DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "xseed-test.db")
	db, err := Open(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func TestOpen_AppliesMigrations(t *testing.T) {
	db := openTestDB(t)

	var count int
	err := db.QueryRowContext(context.Background(), `SELECT COUNT(*) FROM schema_migrations`).Scan(&count)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestDecisionRepo_RecordIsIdempotentOnKind(t *testing.T) {
	db := openTestDB(t)
	repo := NewDecisionRepo(db)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Second)

	d := &model.Decision{
		SearcheeName: "Show.Name.S01E01.1080p-GROUP",
		IndexerID:    1,
		GUID:         "guid-1",
		Kind:         model.DecisionMatch,
		FirstSeen:    now,
		LastSeen:     now,
	}
	require.NoError(t, repo.Record(ctx, d))

	later := now.Add(time.Hour)
	again := &model.Decision{
		SearcheeName: d.SearcheeName,
		IndexerID:    d.IndexerID,
		GUID:         d.GUID,
		Kind:         model.DecisionNoMatch, // would-be kind change must NOT stick
		FirstSeen:    later,
		LastSeen:     later,
	}
	require.NoError(t, repo.Record(ctx, again))

	got, err := repo.Get(ctx, d.Key())
	require.NoError(t, err)
	assert.Equal(t, model.DecisionMatch, got.Kind)
	assert.True(t, got.LastSeen.After(now) || got.LastSeen.Equal(now))
}

func TestDecisionRepo_Get_NotFound(t *testing.T) {
	db := openTestDB(t)
	repo := NewDecisionRepo(db)

	_, err := repo.Get(context.Background(), model.DecisionKey{SearcheeName: "nope", IndexerID: 1, GUID: "g"})
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDecisionRepo_HasInfoHash(t *testing.T) {
	db := openTestDB(t)
	repo := NewDecisionRepo(db)
	ctx := context.Background()
	now := time.Now().UTC()

	hash := "abc123"
	require.NoError(t, repo.Record(ctx, &model.Decision{
		SearcheeName: "x", IndexerID: 1, GUID: "g1", Kind: model.DecisionMatch,
		InfoHash: &hash, FirstSeen: now, LastSeen: now,
	}))

	has, err := repo.HasInfoHash(ctx, hash)
	require.NoError(t, err)
	assert.True(t, has)

	has, err = repo.HasInfoHash(ctx, "missing")
	require.NoError(t, err)
	assert.False(t, has)
}

func TestSearcheeTimestampRepo_MarkAndQuery(t *testing.T) {
	db := openTestDB(t)
	repo := NewSearcheeTimestampRepo(db)
	ctx := context.Background()

	old := time.Now().Add(-48 * time.Hour).UTC()
	require.NoError(t, repo.MarkSearched(ctx, "old-searchee", old))

	recent := time.Now().UTC()
	require.NoError(t, repo.MarkSearched(ctx, "recent-searchee", recent))

	due, err := repo.DueBefore(ctx, time.Now().Add(-24*time.Hour))
	require.NoError(t, err)
	assert.Contains(t, due, "old-searchee")
	assert.NotContains(t, due, "recent-searchee")
}

func TestIndexerRepo_UpsertAndList(t *testing.T) {
	db := openTestDB(t)
	repo := NewIndexerRepo(db)
	ctx := context.Background()

	rec := &model.IndexerRecord{
		Name: "my-indexer", URL: "https://example.com", APIKeyEncrypted: "enc",
		Priority: 10, TimeoutSeconds: 30, Active: true,
		Capabilities: []string{"search", "tv-search"},
	}
	id, err := repo.Upsert(ctx, rec)
	require.NoError(t, err)
	assert.NotZero(t, id)

	all, err := repo.All(ctx)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "my-indexer", all[0].Name)
	assert.ElementsMatch(t, []string{"search", "tv-search"}, all[0].Capabilities)
}

func TestIndexerRepo_ReplaceCategories(t *testing.T) {
	db := openTestDB(t)
	repo := NewIndexerRepo(db)
	ctx := context.Background()

	id, err := repo.Upsert(ctx, &model.IndexerRecord{Name: "idx", URL: "https://x", APIKeyEncrypted: "k"})
	require.NoError(t, err)

	parent := 2000
	require.NoError(t, repo.ReplaceCategories(ctx, id, []model.IndexerCategory{
		{IndexerID: id, CategoryID: 2040, CategoryName: "TV/HD", ParentCategory: &parent},
	}))

	var count int
	require.NoError(t, db.QueryRowContext(ctx, `SELECT COUNT(*) FROM indexer_category WHERE indexer_id = ?`, id).Scan(&count))
	assert.Equal(t, 1, count)
}

func TestJobRepo_StartAndFinish(t *testing.T) {
	db := openTestDB(t)
	repo := NewJobRepo(db)
	ctx := context.Background()

	id, err := repo.Start(ctx, "scheduled", time.Now())
	require.NoError(t, err)

	require.NoError(t, repo.Finish(ctx, id, time.Now(), 3, 1, ""))

	recent, err := repo.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, recent, 1)
	assert.Equal(t, 3, recent[0].Succeeded)
	assert.Equal(t, 1, recent[0].Failed)
	assert.NotNil(t, recent[0].FinishedAt)
}
