// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package nameparser extracts media metadata from release names (spec.md
// §4.2). It wraps github.com/moistari/rls, the same release-name parser the
// teacher uses throughout its crossseed and titles packages, and adds the
// MediaType classification spec.md's Matcher and Arr gateway route on.
package nameparser

import (
	"sync"
	"time"

	"github.com/moistari/rls"

	"github.com/s0up/xseed/internal/model"
)

// cacheEntry pairs a parsed release with when it was parsed, for the
// bounded TTL cache below.
type cacheEntry struct {
	release rls.Release
	at      time.Time
}

// Parser parses release names into model.ParsedRelease, caching results for
// a short TTL since the same name is frequently re-parsed within one search
// cycle (matcher re-parses every file name in a torrent's file list). Mirrors
// the teacher's pkg/titles.Parser, which wraps an identical ttlcache around
// rls.ParseString.
type Parser struct {
	ttl   time.Duration
	mu    sync.Mutex
	cache map[string]cacheEntry
}

// NewParser returns a Parser whose cache entries live for ttl. A ttl of zero
// disables caching.
func NewParser(ttl time.Duration) *Parser {
	return &Parser{ttl: ttl, cache: make(map[string]cacheEntry)}
}

// ParseRLS returns the raw rls.Release for name, using and populating the
// cache. Exported so package matcher can enrich file-level releases from a
// torrent-level release exactly as the teacher's matching.go does.
func (p *Parser) ParseRLS(name string) rls.Release {
	if p.ttl > 0 {
		p.mu.Lock()
		e, ok := p.cache[name]
		p.mu.Unlock()
		if ok && time.Since(e.at) < p.ttl {
			return e.release
		}
	}
	r := rls.ParseString(name)
	if p.ttl > 0 {
		p.mu.Lock()
		p.cache[name] = cacheEntry{release: r, at: time.Now()}
		p.mu.Unlock()
	}
	return r
}

// Parse extracts the spec.md §4.2 metadata set from name.
func (p *Parser) Parse(name string) model.ParsedRelease {
	r := p.ParseRLS(name)
	return fromRLS(name, r)
}

func fromRLS(name string, r rls.Release) model.ParsedRelease {
	return model.ParsedRelease{
		Title:      r.Title,
		Year:       r.Year,
		Month:      r.Month,
		Day:        r.Day,
		Series:     r.Series,
		Episode:    r.Episode,
		Resolution: r.Resolution,
		Group:      r.Group,
		Proper:     hasTag(r.Other, "PROPER"),
		Repack:     hasTag(r.Other, "REPACK"),
		MediaType:  classify(name, r),
	}
}

func hasTag(tags []string, want string) bool {
	for _, t := range tags {
		if t == want {
			return true
		}
	}
	return false
}

// classify maps an rls.Release onto spec.md's MediaType enum: MOVIE, EPISODE,
// SEASON, ANIME, OTHER. TV structure (Series>0) splits into EPISODE (a
// specific episode) or SEASON (no episode: a season pack). ANIME is the
// teacher's anime fallback path generalized into a first-class case: a title
// with no season structure whose name carries a bare " - NNNN " episode
// number (see bareEpisodeNumber).
func classify(name string, r rls.Release) model.MediaType {
	if r.Series > 0 && r.Episode > 0 {
		return model.MediaEpisode
	}
	if r.Series > 0 {
		return model.MediaSeason
	}
	if ep := bareEpisodeNumber(name); ep != "" {
		return model.MediaAnime
	}
	if r.Type == rls.Movie || r.Year > 0 {
		return model.MediaMovie
	}
	return model.MediaOther
}

// bareEpisodeNumber detects the anime-release convention of a bare episode
// number with no season marker, e.g. "Some Show - 1150 (1080p)", which rls
// frequently fails to parse as Series/Episode. Grounded in
// crossseed/matching.go's getMatchTypeFromTitle fallback, which scans for
// " - NNNN " in the raw name rather than relying on rls for these releases.
func bareEpisodeNumber(name string) string {
	lower := []byte(name)
	for i := 0; i+4 < len(lower); i++ {
		if lower[i] == ' ' && lower[i+1] == '-' && lower[i+2] == ' ' {
			j := i + 3
			start := j
			for j < len(lower) && lower[j] >= '0' && lower[j] <= '9' {
				j++
			}
			if j > start && j-start <= 4 && j < len(lower) && lower[j] == ' ' {
				return string(lower[start:j])
			}
			break
		}
	}
	return ""
}
