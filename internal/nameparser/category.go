// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package nameparser

import (
	"strings"

	"github.com/moistari/rls"
)

// ContentCategory is a coarse content classification used to pick Torznab
// search categories, independent of the structural model.MediaType used by
// the matcher. Adapted from the teacher's pkg/releases.DetermineContentType;
// trimmed of its adult/JAV detection, which serves a content-moderation
// concern this module has no use for (see DESIGN.md).
type ContentCategory string

const (
	CategoryMovie     ContentCategory = "movie"
	CategoryTV        ContentCategory = "tv"
	CategoryMusic     ContentCategory = "music"
	CategoryAudiobook ContentCategory = "audiobook"
	CategoryBook      ContentCategory = "book"
	CategoryComic     ContentCategory = "comic"
	CategoryGame      ContentCategory = "game"
	CategoryApp       ContentCategory = "app"
	CategoryUnknown   ContentCategory = "unknown"
)

// TorznabCategories returns the Torznab category IDs to search for a given
// ContentCategory, grounded in the category table
// crossseed/service.go.SearchTorrentMatches builds before issuing a search.
func TorznabCategories(c ContentCategory) []int {
	switch c {
	case CategoryMovie:
		return []int{2000, 2010, 2040, 2050}
	case CategoryTV:
		return []int{5000, 5010, 5040, 5050}
	case CategoryMusic, CategoryAudiobook:
		return []int{3000}
	case CategoryBook:
		return []int{8000, 8010}
	case CategoryComic:
		return []int{8020}
	case CategoryGame, CategoryApp:
		return []int{4000}
	default:
		return nil
	}
}

// DetermineCategory classifies r for indexer category selection.
func DetermineCategory(r rls.Release) ContentCategory {
	r = normalizeMusicMisdetection(r)

	switch r.Type {
	case rls.Movie:
		return CategoryMovie
	case rls.Episode, rls.Series:
		return CategoryTV
	case rls.Music:
		return CategoryMusic
	case rls.Audiobook:
		return CategoryAudiobook
	case rls.Book, rls.Education, rls.Magazine:
		return CategoryBook
	case rls.Comic:
		return CategoryComic
	case rls.Game:
		return CategoryGame
	case rls.App:
		return CategoryApp
	}

	switch {
	case r.Series > 0 || r.Episode > 0:
		return CategoryTV
	case r.Year > 0:
		return CategoryMovie
	default:
		return CategoryUnknown
	}
}

// normalizeMusicMisdetection reclassifies releases rls tagged as Music but
// that carry clear video-release hints (resolution, HDR, video codec,
// source tokens) — a folder-naming ambiguity the teacher's pkg/releases
// corrects for (e.g. dash-separated BDMV/STREAM directory names).
func normalizeMusicMisdetection(r rls.Release) rls.Release {
	if r.Type != rls.Music {
		return r
	}
	if !looksLikeVideo(r) {
		return r
	}
	if r.Series > 0 || r.Episode > 0 {
		r.Type = rls.Episode
	} else {
		r.Type = rls.Movie
	}
	return r
}

func looksLikeVideo(r rls.Release) bool {
	if r.Resolution != "" || len(r.HDR) > 0 {
		return true
	}
	for _, c := range r.Codec {
		lc := strings.ToLower(c)
		if strings.Contains(lc, "x264") || strings.Contains(lc, "x265") ||
			strings.Contains(lc, "hevc") || strings.Contains(lc, "av1") {
			return true
		}
	}
	lowerSource := strings.ToLower(r.Source)
	for _, hint := range []string{"bluray", "bdrip", "webrip", "web-dl", "webdl", "hdtv", "dvdrip", "remux"} {
		if strings.Contains(lowerSource, hint) {
			return true
		}
	}
	return false
}
