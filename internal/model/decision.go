// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package model

import "time"

// DecisionKind is the matcher's verdict for a (searchee, candidate) pair, or
// the reason it could not reach one.
type DecisionKind string

const (
	DecisionMatch                 DecisionKind = "MATCH"
	DecisionMatchPartial          DecisionKind = "MATCH_PARTIAL"
	DecisionMatchSizeOnly         DecisionKind = "MATCH_SIZE_ONLY"
	DecisionNoMatch               DecisionKind = "NO_MATCH"
	DecisionInfoHashAlreadyExists DecisionKind = "INFO_HASH_ALREADY_EXISTS"
	DecisionSizeMismatch          DecisionKind = "SIZE_MISMATCH"
	DecisionFileTreeMismatch      DecisionKind = "FILE_TREE_MISMATCH"
	DecisionRateLimited           DecisionKind = "RATE_LIMITED"
	DecisionDownloadFailed        DecisionKind = "DOWNLOAD_FAILED"
)

// Accepted reports whether d should be handed to the action dispatcher.
func (d DecisionKind) Accepted() bool {
	switch d {
	case DecisionMatch, DecisionMatchPartial, DecisionMatchSizeOnly:
		return true
	default:
		return false
	}
}

// Decision is the persisted record of a (searcheeName, indexerID, guid)
// comparison. At most one row exists per key; later scans update LastSeen
// only (see package store).
type Decision struct {
	SearcheeName string
	IndexerID    int
	GUID         string
	Kind         DecisionKind
	FirstSeen    time.Time
	LastSeen     time.Time
	InfoHash     *string
}

// Key identifies the decision row this Decision would occupy.
type DecisionKey struct {
	SearcheeName string
	IndexerID    int
	GUID         string
}

func (d *Decision) Key() DecisionKey {
	return DecisionKey{SearcheeName: d.SearcheeName, IndexerID: d.IndexerID, GUID: d.GUID}
}
