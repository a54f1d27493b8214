// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package model

import "time"

// IndexerCategory is a Torznab category advertised by an indexer's caps
// response, optionally nested under a parent category.
type IndexerCategory struct {
	IndexerID      int
	CategoryID     int
	CategoryName   string
	ParentCategory *int
}

// IndexerRecord is the persisted configuration and discovered state of a
// single Torznab-compatible indexer.
type IndexerRecord struct {
	ID                 int
	Name               string
	URL                string
	APIKeyEncrypted    string
	Priority           int
	TimeoutSeconds     int
	Active             bool
	DisabledUntil      *time.Time
	Capabilities       []string
	HourlyRequestLimit int
	DailyRequestLimit  int
	CreatedAt          time.Time
	UpdatedAt          time.Time
}

// SupportsCapability reports whether name (e.g. "tv-search", "movie-search")
// was advertised by the indexer's last caps probe.
func (r *IndexerRecord) SupportsCapability(name string) bool {
	for _, c := range r.Capabilities {
		if c == name {
			return true
		}
	}
	return false
}

// IsDisabled reports whether the indexer is currently backed off.
func (r *IndexerRecord) IsDisabled(now time.Time) bool {
	return r.DisabledUntil != nil && r.DisabledUntil.After(now)
}

// JobStatus is one row per run started through cmd/xseed's runJob, backing
// the job_status table named in spec.md §6. Scheduled cycles of
// Pipeline.Loop are not recorded.
type JobStatus struct {
	ID          int64
	Kind        string // "cli" (search subcommand) or "http" (/search endpoint)
	StartedAt   time.Time
	FinishedAt  *time.Time
	Succeeded   int
	Failed      int
	ErrMessage  string
}
