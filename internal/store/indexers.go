// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/s0up/xseed/internal/model"
)

// IndexerRepo persists configured Torznab indexers and their discovered
// capabilities, backing the indexer and indexer_category tables named in
// spec.md §6.
type IndexerRepo struct {
	db *DB
}

func NewIndexerRepo(db *DB) *IndexerRepo { return &IndexerRepo{db: db} }

// Upsert inserts or replaces rec by name, returning the assigned ID.
func (r *IndexerRepo) Upsert(ctx context.Context, rec *model.IndexerRecord) (int, error) {
	res, err := r.db.ExecContext(ctx, `
		INSERT INTO indexer (name, url, api_key_encrypted, priority, timeout_seconds, active,
			disabled_until, capabilities, hourly_request_limit, daily_request_limit, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (name) DO UPDATE SET
			url = excluded.url,
			api_key_encrypted = excluded.api_key_encrypted,
			priority = excluded.priority,
			timeout_seconds = excluded.timeout_seconds,
			active = excluded.active,
			hourly_request_limit = excluded.hourly_request_limit,
			daily_request_limit = excluded.daily_request_limit,
			updated_at = CURRENT_TIMESTAMP`,
		rec.Name, rec.URL, rec.APIKeyEncrypted, rec.Priority, rec.TimeoutSeconds, rec.Active,
		rec.DisabledUntil, strings.Join(rec.Capabilities, ","), rec.HourlyRequestLimit, rec.DailyRequestLimit)
	if err != nil {
		return 0, fmt.Errorf("upsert indexer %s: %w", rec.Name, err)
	}
	if id, err := res.LastInsertId(); err == nil && id > 0 {
		return int(id), nil
	}
	row := r.db.QueryRowContext(ctx, `SELECT id FROM indexer WHERE name = ?`, rec.Name)
	var id int
	if err := row.Scan(&id); err != nil {
		return 0, fmt.Errorf("resolve indexer id for %s: %w", rec.Name, err)
	}
	return id, nil
}

// All returns every configured indexer, active or not.
func (r *IndexerRepo) All(ctx context.Context) ([]*model.IndexerRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, name, url, api_key_encrypted, priority, timeout_seconds, active,
			disabled_until, capabilities, hourly_request_limit, daily_request_limit, created_at, updated_at
		FROM indexer ORDER BY priority DESC, id ASC`)
	if err != nil {
		return nil, fmt.Errorf("list indexers: %w", err)
	}
	defer rows.Close()

	var out []*model.IndexerRecord
	for rows.Next() {
		rec, err := scanIndexerRow(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanIndexerRow(row rowScanner) (*model.IndexerRecord, error) {
	var rec model.IndexerRecord
	var disabledUntil sql.NullTime
	var capabilities string
	if err := row.Scan(&rec.ID, &rec.Name, &rec.URL, &rec.APIKeyEncrypted, &rec.Priority, &rec.TimeoutSeconds,
		&rec.Active, &disabledUntil, &capabilities, &rec.HourlyRequestLimit, &rec.DailyRequestLimit,
		&rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, fmt.Errorf("scan indexer row: %w", err)
	}
	if disabledUntil.Valid {
		rec.DisabledUntil = &disabledUntil.Time
	}
	if capabilities != "" {
		rec.Capabilities = strings.Split(capabilities, ",")
	}
	return &rec, nil
}

// SetDisabledUntil records the gateway's backoff decision for indexerID so
// it survives a restart.
func (r *IndexerRepo) SetDisabledUntil(ctx context.Context, indexerID int, until time.Time) error {
	_, err := r.db.ExecContext(ctx, `UPDATE indexer SET disabled_until = ?, updated_at = CURRENT_TIMESTAMP WHERE id = ?`, until, indexerID)
	if err != nil {
		return fmt.Errorf("set disabled_until for indexer %d: %w", indexerID, err)
	}
	return nil
}

// ReplaceCategories overwrites indexerID's known category list with cats,
// following a successful t=caps probe.
func (r *IndexerRepo) ReplaceCategories(ctx context.Context, indexerID int, cats []model.IndexerCategory) error {
	if _, err := r.db.ExecContext(ctx, `DELETE FROM indexer_category WHERE indexer_id = ?`, indexerID); err != nil {
		return fmt.Errorf("clear categories for indexer %d: %w", indexerID, err)
	}
	for _, c := range cats {
		var parent any
		if c.ParentCategory != nil {
			parent = *c.ParentCategory
		}
		if _, err := r.db.ExecContext(ctx, `
			INSERT INTO indexer_category (indexer_id, category_id, category_name, parent_category)
			VALUES (?, ?, ?, ?)`, indexerID, c.CategoryID, c.CategoryName, parent); err != nil {
			return fmt.Errorf("insert category %d for indexer %d: %w", c.CategoryID, indexerID, err)
		}
	}
	return nil
}
