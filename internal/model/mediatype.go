// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package model

// MediaType classifies a parsed release name for indexer category selection
// and Arr gateway routing.
type MediaType string

const (
	MediaMovie   MediaType = "MOVIE"
	MediaEpisode MediaType = "EPISODE"
	MediaSeason  MediaType = "SEASON"
	MediaAnime   MediaType = "ANIME"
	MediaOther   MediaType = "OTHER"
)

// ParsedRelease is the output of the name parser (package nameparser),
// mirroring rls.Release's fields the rest of the pipeline consumes.
type ParsedRelease struct {
	Title      string
	Year       int
	Month      int
	Day        int
	Series     int // season number; 0 if absent
	Episode    int // 0 for season packs
	Resolution string
	Group      string
	Proper     bool
	Repack     bool
	MediaType  MediaType
}
