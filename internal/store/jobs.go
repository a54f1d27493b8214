// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package store

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/s0up/xseed/internal/model"
)

// JobRepo records one row per run started through cmd/xseed's runJob ("cli"
// or "http"), backing the job_status table named in spec.md §6. Scheduled
// cycles of Pipeline.Loop are not recorded.
type JobRepo struct {
	db *DB
}

func NewJobRepo(db *DB) *JobRepo { return &JobRepo{db: db} }

// Start inserts a new running job row and returns its ID.
func (r *JobRepo) Start(ctx context.Context, kind string, startedAt time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `INSERT INTO job_status (kind, started_at) VALUES (?, ?)`, kind, startedAt)
	if err != nil {
		return 0, fmt.Errorf("start job: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("resolve job id: %w", err)
	}
	return id, nil
}

// Finish records the outcome of job id.
func (r *JobRepo) Finish(ctx context.Context, id int64, finishedAt time.Time, succeeded, failed int, errMessage string) error {
	_, err := r.db.ExecContext(ctx, `
		UPDATE job_status SET finished_at = ?, succeeded = ?, failed = ?, err_message = ? WHERE id = ?`,
		finishedAt, succeeded, failed, errMessage, id)
	if err != nil {
		return fmt.Errorf("finish job %d: %w", id, err)
	}
	return nil
}

// Recent returns the last limit job rows, most recent first.
func (r *JobRepo) Recent(ctx context.Context, limit int) ([]*model.JobStatus, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT id, kind, started_at, finished_at, succeeded, failed, err_message
		FROM job_status ORDER BY id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent jobs: %w", err)
	}
	defer rows.Close()

	var out []*model.JobStatus
	for rows.Next() {
		var j model.JobStatus
		var finishedAt sql.NullTime
		if err := rows.Scan(&j.ID, &j.Kind, &j.StartedAt, &finishedAt, &j.Succeeded, &j.Failed, &j.ErrMessage); err != nil {
			return nil, fmt.Errorf("scan job row: %w", err)
		}
		if finishedAt.Valid {
			j.FinishedAt = &finishedAt.Time
		}
		out = append(out, &j)
	}
	return out, rows.Err()
}
