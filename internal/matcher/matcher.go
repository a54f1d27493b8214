// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package matcher implements spec.md §4.5: given a Searchee, a Candidate,
// and (once fetched) the candidate's parsed TorrentMetadata, decide whether
// the candidate is the same content, a subset/superset of it, or unrelated.
// releasesMatch, getMatchTypeFromTitle, getMatchType, checkPartialMatch,
// enrichReleaseFromTorrent and shouldIgnoreFile are adapted nearly
// function-for-function from internal/services/crossseed/matching.go,
// renamed to spec.md's MATCH/MATCH_PARTIAL/MATCH_SIZE_ONLY/NO_MATCH
// vocabulary in place of the teacher's "exact"/"partial-in-pack"/
// "partial-contains"/"size" string literals.
package matcher

import (
	"context"
	"fmt"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/moistari/rls"
	"github.com/rs/zerolog"

	"github.com/s0up/xseed/internal/logging"
	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
)

// Options configures the size-prefilter fuzz and partial-match tolerances,
// spec.md §9's sizeFuzz/partialThreshold/partialMatchEnabled/
// sizeOnlyMatchEnabled config knobs.
type Options struct {
	SizeFuzz             float64 // e.g. 0.025 for 2.5%
	PartialThreshold      float64 // e.g. 1.0 for 100% coverage required
	PartialMatchEnabled   bool
	SizeOnlyMatchEnabled  bool
	FindIndividualEpisodes bool
	IgnorePatterns        []string

	// DecisionRetention is how long a DOWNLOAD_FAILED decision is honored
	// before Decide will retry the candidate (config.Config.DecisionRetention).
	// Zero falls back to downloadFailedRecheckDefault.
	DecisionRetention time.Duration
}

// Fetcher downloads and decodes a candidate's .torrent payload. Implemented
// by package pipeline's indexer-gateway-backed adapter; kept as an interface
// here so the matcher has no HTTP dependency of its own.
type Fetcher interface {
	FetchMetadata(ctx context.Context, candidate model.Candidate) (*model.TorrentMetadata, error)
}

// InfoHashChecker reports whether an infoHash already has an accepted
// decision recorded, package store's DecisionRepo.HasInfoHash.
type InfoHashChecker interface {
	HasInfoHash(ctx context.Context, infoHash string) (bool, error)
}

// DecisionStore is the subset of package store's DecisionRepo the matcher
// needs to consult the cache before network I/O and persist its verdict
// before returning (spec.md §4.6: "the matcher must consult the cache
// before any network I/O for a (searchee, candidate) pair").
type DecisionStore interface {
	Get(ctx context.Context, key model.DecisionKey) (*model.Decision, error)
	Record(ctx context.Context, d *model.Decision) error
}

// downloadFailedRecheckDefault is the fallback recheck window when
// Options.DecisionRetention is unset, per spec.md §4.6's design note
// ("DOWNLOAD_FAILED re-checked after 1h").
const downloadFailedRecheckDefault = time.Hour

// Matcher holds the shared name parser and tunables used across every
// Decide call in a pipeline run.
type Matcher struct {
	parser    *nameparser.Parser
	fetcher   Fetcher
	hashes    InfoHashChecker
	decisions DecisionStore
	opts      Options
	log       zerolog.Logger
	now       func() time.Time
}

func New(parser *nameparser.Parser, fetcher Fetcher, hashes InfoHashChecker, decisions DecisionStore, opts Options) *Matcher {
	return &Matcher{
		parser: parser, fetcher: fetcher, hashes: hashes, decisions: decisions, opts: opts,
		log: logging.Component("matcher"), now: time.Now,
	}
}

// Decide runs spec.md §4.5's five-step decision procedure for one
// (Searchee, Candidate) pair. It returns the decision kind and, on an
// accepted outcome computed by this call, the fetched metadata so the caller
// can hand it to the action dispatcher without re-downloading. Every outcome
// (accepted or not) is written to the decision cache before Decide returns;
// a prior cached decision short-circuits reprocessing entirely and is
// returned with nil metadata, except DOWNLOAD_FAILED rows older than
// Options.DecisionRetention (downloadFailedRecheckDefault when unset).
func (m *Matcher) Decide(ctx context.Context, s *model.Searchee, c model.Candidate) (model.DecisionKind, *model.TorrentMetadata, error) {
	key := model.DecisionKey{SearcheeName: s.Name, IndexerID: c.IndexerID, GUID: c.GUID}

	if cached, err := m.decisions.Get(ctx, key); err == nil {
		recheck := m.opts.DecisionRetention
		if recheck <= 0 {
			recheck = downloadFailedRecheckDefault
		}
		if cached.Kind != model.DecisionDownloadFailed || m.now().Sub(cached.LastSeen) < recheck {
			return cached.Kind, nil, nil
		}
	}

	kind, meta, procErr := m.process(ctx, s, c)

	now := m.now()
	d := &model.Decision{SearcheeName: s.Name, IndexerID: c.IndexerID, GUID: c.GUID, Kind: kind, FirstSeen: now, LastSeen: now}
	if meta != nil && meta.InfoHash != "" {
		hash := meta.InfoHash
		d.InfoHash = &hash
	}
	if kind != "" {
		if err := m.decisions.Record(ctx, d); err != nil {
			m.log.Warn().Err(err).Str("searchee", s.Name).Str("guid", c.GUID).Msg("failed to record decision")
		}
	}

	return kind, meta, procErr
}

// process runs the size prefilter, fetch, infoHash dedup, and file-tree
// comparison steps, without consulting or writing the decision cache.
func (m *Matcher) process(ctx context.Context, s *model.Searchee, c model.Candidate) (model.DecisionKind, *model.TorrentMetadata, error) {
	if s.TotalSize > 0 {
		fuzz := m.opts.SizeFuzz
		diff := c.Size - s.TotalSize
		if diff < 0 {
			diff = -diff
		}
		if float64(diff) > fuzz*float64(s.TotalSize) {
			return model.DecisionSizeMismatch, nil, nil
		}
	}

	meta, err := m.fetcher.FetchMetadata(ctx, c)
	if err != nil {
		return model.DecisionDownloadFailed, nil, fmt.Errorf("fetch metadata for %s: %w", c.GUID, err)
	}

	if meta.InfoHash != "" {
		if s.InfoHash != nil && *s.InfoHash == meta.InfoHash {
			return model.DecisionInfoHashAlreadyExists, meta, nil
		}
		known, err := m.hashes.HasInfoHash(ctx, meta.InfoHash)
		if err != nil {
			return "", nil, fmt.Errorf("check info hash %s: %w", meta.InfoHash, err)
		}
		if known {
			return model.DecisionInfoHashAlreadyExists, meta, nil
		}
	}

	kind := m.compareFileTrees(s, meta)
	return kind, meta, nil
}

// compareFileTrees implements step 4: exact, partial, or size-only
// comparison of (basename, size) multisets, adapted from getMatchType.
// Exact MATCH keys on filepath.Base(RelativePath), not the full relative
// path: spec.md §4.5.4 defines MATCH as the same multiset of (basename,
// size) pairs, order-independent and directory-layout-irrelevant, since a
// searchee enumerated from one directory layout and a candidate packed
// with a different one can still be byte-identical content.
func (m *Matcher) compareFileTrees(s *model.Searchee, meta *model.TorrentMetadata) model.DecisionKind {
	sourceBag := make(map[basenameSize]int)
	sourceMap := make(map[string]int64)
	sourceKeys := make(map[releaseKey]int64)
	for _, f := range s.FileList {
		if shouldIgnoreFile(f.RelativePath, m.opts.IgnorePatterns) {
			continue
		}
		sourceBag[basenameSize{filepath.Base(f.RelativePath), f.Size}]++
		sourceMap[f.RelativePath] = f.Size
		if key := m.fileReleaseKey(f.RelativePath, s.Name); key != (releaseKey{}) {
			sourceKeys[key] = f.Size
		}
	}

	candidateBag := make(map[basenameSize]int)
	candidateMap := make(map[string]int64)
	candidateKeys := make(map[releaseKey]int64)
	for _, f := range meta.FileList {
		if shouldIgnoreFile(f.RelativePath, m.opts.IgnorePatterns) {
			continue
		}
		candidateBag[basenameSize{filepath.Base(f.RelativePath), f.Size}]++
		candidateMap[f.RelativePath] = f.Size
		if key := m.fileReleaseKey(f.RelativePath, meta.Name); key != (releaseKey{}) {
			candidateKeys[key] = f.Size
		}
	}

	if bagsEqual(sourceBag, candidateBag) {
		return model.DecisionMatch
	}

	if m.opts.PartialMatchEnabled && len(sourceKeys) > 0 && len(candidateKeys) > 0 {
		if checkPartialMatch(sourceKeys, candidateKeys, m.opts.PartialThreshold) {
			return model.DecisionMatchPartial
		}
		if checkPartialMatch(candidateKeys, sourceKeys, m.opts.PartialThreshold) {
			return model.DecisionMatchPartial
		}
	}

	if m.opts.SizeOnlyMatchEnabled && s.TotalSize > 0 && s.TotalSize == meta.TotalSize() && len(sourceMap) == 1 && len(candidateMap) == 1 {
		return model.DecisionMatchSizeOnly
	}

	// Fallback: largest-file-by-basename-and-size, for single-file releases
	// (common in anime) where rls couldn't derive usable release keys at all.
	if m.opts.SizeOnlyMatchEnabled && len(sourceKeys) == 0 && len(candidateKeys) == 0 &&
		len(sourceMap) == 1 && len(candidateMap) == 1 && largestFileMatches(sourceMap, candidateMap) {
		return model.DecisionMatchSizeOnly
	}

	return model.DecisionFileTreeMismatch
}

func (m *Matcher) fileReleaseKey(filename, torrentName string) releaseKey {
	fileRelease := m.parser.ParseRLS(filename)
	torrentRelease := m.parser.ParseRLS(torrentName)
	enriched := enrichReleaseFromTorrent(fileRelease, torrentRelease)
	return makeReleaseKey(enriched)
}

func largestFileMatches(sourceMap, candidateMap map[string]int64) bool {
	var srcPath string
	var srcSize int64
	for path, size := range sourceMap {
		if size > srcSize {
			srcSize, srcPath = size, path
		}
	}
	var candPath string
	var candSize int64
	for path, size := range candidateMap {
		if size > candSize {
			candSize, candPath = size, path
		}
	}
	if srcSize == 0 || srcSize != candSize {
		return false
	}
	srcBase := strings.ToLower(strings.TrimSuffix(filepath.Base(srcPath), filepath.Ext(srcPath)))
	candBase := strings.ToLower(strings.TrimSuffix(filepath.Base(candPath), filepath.Ext(candPath)))
	return srcBase != "" && srcBase == candBase
}

// basenameSize is the (basename, size) pair spec.md §4.5.4's exact-MATCH
// bag is built from.
type basenameSize struct {
	base string
	size int64
}

// bagsEqual reports whether a and b hold the same multiset of entries:
// every key present in the same count, regardless of which directory each
// file originally came from.
func bagsEqual(a, b map[basenameSize]int) bool {
	if len(a) != len(b) {
		return false
	}
	for k, count := range a {
		if b[k] != count {
			return false
		}
	}
	return true
}

// releaseKey is a comparable key for matching releases across torrents by
// parsed metadata rather than brittle filename comparisons.
type releaseKey struct {
	series  int
	episode int
	year    int
	month   int
	day     int
}

func makeReleaseKey(r rls.Release) releaseKey {
	if r.Series > 0 && r.Episode > 0 {
		return releaseKey{series: r.Series, episode: r.Episode}
	}
	if r.Series > 0 {
		return releaseKey{series: r.Series}
	}
	if r.Year > 0 && r.Month > 0 && r.Day > 0 {
		return releaseKey{year: r.Year, month: r.Month, day: r.Day}
	}
	if r.Year > 0 {
		return releaseKey{year: r.Year}
	}
	return releaseKey{}
}

// checkPartialMatch reports whether at least threshold (e.g. 1.0 = 100%) of
// subset's entries, by count, are present in superset with matching size.
func checkPartialMatch(subset, superset map[releaseKey]int64, threshold float64) bool {
	if len(subset) == 0 || len(superset) == 0 {
		return false
	}
	matched := 0
	for key, size := range subset {
		if superSize, ok := superset[key]; ok && superSize == size {
			matched++
		}
	}
	return float64(matched) >= threshold*float64(len(subset))
}

// enrichReleaseFromTorrent fills gaps in a file-level parse with metadata
// from the owning torrent's own name, e.g. a season pack's group/resolution
// applied to an episode file whose own name doesn't carry them.
func enrichReleaseFromTorrent(fileRelease, torrentRelease rls.Release) rls.Release {
	enriched := fileRelease
	if enriched.Group == "" && torrentRelease.Group != "" {
		enriched.Group = torrentRelease.Group
	}
	if enriched.Resolution == "" && torrentRelease.Resolution != "" {
		enriched.Resolution = torrentRelease.Resolution
	}
	if len(enriched.Codec) == 0 && len(torrentRelease.Codec) > 0 {
		enriched.Codec = torrentRelease.Codec
	}
	if len(enriched.Audio) == 0 && len(torrentRelease.Audio) > 0 {
		enriched.Audio = torrentRelease.Audio
	}
	if enriched.Source == "" && torrentRelease.Source != "" {
		enriched.Source = torrentRelease.Source
	}
	if len(enriched.HDR) == 0 && len(torrentRelease.HDR) > 0 {
		enriched.HDR = torrentRelease.HDR
	}
	if enriched.Series == 0 && torrentRelease.Series > 0 {
		enriched.Series = torrentRelease.Series
	}
	if enriched.Year == 0 && torrentRelease.Year > 0 {
		enriched.Year = torrentRelease.Year
	}
	return enriched
}

// shouldIgnoreFile reports whether filename matches one of patterns, which
// may be plain suffixes (".nfo", "sample") or filepath.Match globs. A glob is
// tried against the full relative path and against its basename.
func shouldIgnoreFile(filename string, patterns []string) bool {
	lower := strings.ToLower(filename)
	for _, pattern := range patterns {
		pattern = strings.ToLower(strings.TrimSpace(pattern))
		if pattern == "" {
			continue
		}
		if !strings.ContainsAny(pattern, "*?[") {
			if strings.HasSuffix(lower, pattern) {
				return true
			}
			continue
		}
		if matched, err := filepath.Match(pattern, lower); err == nil && matched {
			return true
		}
		if matched, err := filepath.Match(pattern, filepath.Base(lower)); err == nil && matched {
			return true
		}
	}
	return false
}

// ReleasesMatch reports whether two parsed releases agree on title and
// attributes: title, year, season/episode structure, group, source,
// resolution, collection, codec, HDR, audio, channels, cut and edition must
// each agree whenever both sides specify a value. Decide does not call it;
// its verdict rests on size and file lists only.
// Adapted from (*Service).releasesMatch; the teacher's variant-override
// table (IMAX/HYBRID tag reconciliation across mis-parsed fields) is not
// carried over.
func ReleasesMatch(source, candidate rls.Release, findIndividualEpisodes bool) bool {
	sourceTitle := strings.ToLower(strings.TrimSpace(source.Title))
	candidateTitle := strings.ToLower(strings.TrimSpace(candidate.Title))
	if sourceTitle == "" || candidateTitle == "" {
		return false
	}

	isTV := source.Series > 0 || candidate.Series > 0
	if isTV {
		if sourceTitle != candidateTitle &&
			!strings.Contains(sourceTitle, candidateTitle) &&
			!strings.Contains(candidateTitle, sourceTitle) {
			return false
		}
	} else if sourceTitle != candidateTitle {
		return false
	}

	if source.Year > 0 && candidate.Year > 0 && source.Year != candidate.Year {
		return false
	}
	if !isTV && source.Type != 0 && candidate.Type != 0 && source.Type != candidate.Type {
		return false
	}

	if source.Series > 0 || candidate.Series > 0 {
		if source.Series > 0 && candidate.Series == 0 {
			return false
		}
		if candidate.Series > 0 && source.Series == 0 {
			return false
		}
		if source.Series > 0 && candidate.Series > 0 && source.Series != candidate.Series {
			return false
		}

		sourceIsPack := source.Series > 0 && source.Episode == 0
		candidateIsPack := candidate.Series > 0 && candidate.Episode == 0
		if !findIndividualEpisodes {
			if sourceIsPack != candidateIsPack {
				return false
			}
			if !sourceIsPack && !candidateIsPack && source.Episode != candidate.Episode {
				return false
			}
		} else if !sourceIsPack && !candidateIsPack && source.Episode != candidate.Episode {
			return false
		}
	}

	sourceGroup := strings.ToUpper(strings.TrimSpace(source.Group))
	candidateGroup := strings.ToUpper(strings.TrimSpace(candidate.Group))
	if sourceGroup != "" && (candidateGroup == "" || sourceGroup != candidateGroup) {
		return false
	}

	if a, b := strings.ToUpper(strings.TrimSpace(source.Source)), strings.ToUpper(strings.TrimSpace(candidate.Source)); a != "" && b != "" && a != b {
		return false
	}
	if a, b := strings.ToUpper(strings.TrimSpace(source.Resolution)), strings.ToUpper(strings.TrimSpace(candidate.Resolution)); a != "" && b != "" && a != b {
		return false
	}
	if a, b := strings.ToUpper(strings.TrimSpace(source.Collection)), strings.ToUpper(strings.TrimSpace(candidate.Collection)); a != "" && b != "" && a != b {
		return false
	}
	if len(source.Codec) > 0 && len(candidate.Codec) > 0 && joinNormalized(source.Codec) != joinNormalized(candidate.Codec) {
		return false
	}
	if len(source.HDR) > 0 && len(candidate.HDR) > 0 && joinNormalized(source.HDR) != joinNormalized(candidate.HDR) {
		return false
	}
	if len(source.Audio) > 0 && len(candidate.Audio) > 0 && joinNormalized(source.Audio) != joinNormalized(candidate.Audio) {
		return false
	}
	if a, b := strings.ToUpper(strings.TrimSpace(source.Channels)), strings.ToUpper(strings.TrimSpace(candidate.Channels)); a != "" && b != "" && a != b {
		return false
	}
	if len(source.Cut) > 0 && len(candidate.Cut) > 0 && joinNormalized(source.Cut) != joinNormalized(candidate.Cut) {
		return false
	}
	if len(source.Edition) > 0 && len(candidate.Edition) > 0 && joinNormalized(source.Edition) != joinNormalized(candidate.Edition) {
		return false
	}

	return true
}

func joinNormalized(slice []string) string {
	if len(slice) == 0 {
		return ""
	}
	normalized := make([]string, len(slice))
	for i, s := range slice {
		normalized[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	sort.Strings(normalized)
	return strings.Join(normalized, " ")
}
