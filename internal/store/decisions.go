// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/s0up/xseed/internal/model"
)

// ErrNotFound is returned by lookups with no matching row.
var ErrNotFound = errors.New("store: not found")

// DecisionRepo persists the decision cache spec.md §4.5 describes: at most
// one row per (searcheeName, indexerID, guid), idempotent across repeated
// scans of the same candidate.
type DecisionRepo struct {
	db *DB
}

func NewDecisionRepo(db *DB) *DecisionRepo { return &DecisionRepo{db: db} }

// Get returns the existing decision for key, or ErrNotFound.
func (r *DecisionRepo) Get(ctx context.Context, key model.DecisionKey) (*model.Decision, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT searchee_name, indexer_id, guid, kind, info_hash, first_seen, last_seen
		FROM decision WHERE searchee_name = ? AND indexer_id = ? AND guid = ?`,
		key.SearcheeName, key.IndexerID, key.GUID)

	var d model.Decision
	var infoHash sql.NullString
	if err := row.Scan(&d.SearcheeName, &d.IndexerID, &d.GUID, &d.Kind, &infoHash, &d.FirstSeen, &d.LastSeen); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get decision: %w", err)
	}
	if infoHash.Valid {
		d.InfoHash = &infoHash.String
	}
	return &d, nil
}

// Record upserts d: a fresh key inserts FirstSeen=LastSeen=now; an existing
// key only advances LastSeen, leaving the original Kind untouched — once a
// decision is made for a (searchee, indexer, guid) triple it does not
// change (spec.md §4.5's "idempotent: identical results on repeated scans").
func (r *DecisionRepo) Record(ctx context.Context, d *model.Decision) error {
	var infoHash any
	if d.InfoHash != nil {
		infoHash = *d.InfoHash
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO decision (searchee_name, indexer_id, guid, kind, info_hash, first_seen, last_seen)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (searchee_name, indexer_id, guid) DO UPDATE SET last_seen = excluded.last_seen`,
		d.SearcheeName, d.IndexerID, d.GUID, d.Kind, infoHash, d.FirstSeen, d.LastSeen)
	if err != nil {
		return fmt.Errorf("record decision: %w", err)
	}
	return nil
}

// HasInfoHash reports whether any accepted decision already carries
// infoHash, for the matcher's cross-indexer dedup (spec.md §4.5/§5:
// "acceptance dedup'd by infoHash, first-writer-wins").
func (r *DecisionRepo) HasInfoHash(ctx context.Context, infoHash string) (bool, error) {
	var count int
	err := r.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM decision WHERE info_hash = ? AND kind IN (?, ?, ?)`,
		infoHash, model.DecisionMatch, model.DecisionMatchPartial, model.DecisionMatchSizeOnly).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("check info hash: %w", err)
	}
	return count > 0, nil
}

// SearcheeTimestampRepo tracks per-searchee search scheduling state.
type SearcheeTimestampRepo struct {
	db *DB
}

func NewSearcheeTimestampRepo(db *DB) *SearcheeTimestampRepo { return &SearcheeTimestampRepo{db: db} }

// MarkSearched upserts the searchee's timestamp row, setting FirstSearch on
// first insert and always advancing LastSearch.
func (r *SearcheeTimestampRepo) MarkSearched(ctx context.Context, searcheeName string, at time.Time) error {
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO searchee_timestamp (searchee_name, first_search, last_search)
		VALUES (?, ?, ?)
		ON CONFLICT (searchee_name) DO UPDATE SET last_search = excluded.last_search`,
		searcheeName, at, at)
	if err != nil {
		return fmt.Errorf("mark searched: %w", err)
	}
	return nil
}

// DueBefore returns the names of searchees last searched before cutoff (or
// never searched at all — callers consult the in-memory Index for those),
// for the pipeline scheduler's due-searchee selection (spec.md §4.7).
func (r *SearcheeTimestampRepo) DueBefore(ctx context.Context, cutoff time.Time) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT searchee_name FROM searchee_timestamp WHERE last_search < ?`, cutoff)
	if err != nil {
		return nil, fmt.Errorf("query due searchees: %w", err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("scan due searchee: %w", err)
		}
		names = append(names, name)
	}
	return names, rows.Err()
}

// Get returns the timestamp row for name, or ErrNotFound if the searchee has
// never been searched.
func (r *SearcheeTimestampRepo) Get(ctx context.Context, name string) (*model.SearcheeTimestamp, error) {
	row := r.db.QueryRowContext(ctx, `SELECT searchee_name, first_search, last_search FROM searchee_timestamp WHERE searchee_name = ?`, name)
	var ts model.SearcheeTimestamp
	if err := row.Scan(&ts.SearcheeName, &ts.FirstSearch, &ts.LastSearch); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get searchee timestamp: %w", err)
	}
	return &ts, nil
}
