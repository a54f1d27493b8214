// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package model holds the data types shared across xseed's pipeline: the
// normalized view of local content (Searchee), what an indexer advertises
// (Candidate), the parsed form of a .torrent (TorrentMetadata), and the
// persisted verdict of comparing the two (Decision).
package model

import "time"

// Origin identifies how a Searchee was constructed.
type Origin string

const (
	OriginTorrentFile Origin = "TORRENT_FILE"
	OriginDataDir     Origin = "DATA_DIR"
	OriginClient      Origin = "CLIENT"
)

// FileEntry is one file within a Searchee's or TorrentMetadata's file list.
type FileEntry struct {
	RelativePath string
	Size         int64
}

// Searchee is the normalized description of a local item used as the
// reference point for finding alternate sources. Once constructed it is
// immutable; callers that need a mutated view must build a new one.
type Searchee struct {
	Name      string
	FileList  []FileEntry
	TotalSize int64
	InfoHash  *string
	Origin    Origin
	Trackers  []string
}

// SameFileTreeAs reports whether s and other have an identical multiset of
// (basename, size) pairs, used to enforce the invariant that two searchees
// sharing an infoHash must share a file list.
func (s *Searchee) SameFileTreeAs(other *Searchee) bool {
	if len(s.FileList) != len(other.FileList) {
		return false
	}
	counts := make(map[FileEntry]int, len(s.FileList))
	for _, f := range s.FileList {
		counts[f]++
	}
	for _, f := range other.FileList {
		counts[f]--
	}
	for _, n := range counts {
		if n != 0 {
			return false
		}
	}
	return true
}

// NewSearchee computes TotalSize from FileList and returns the constructed
// value. It does not validate the infoHash/fileList invariant across
// searchees; that is the caller's responsibility (enforced by the in-memory
// index in package searchee).
func NewSearchee(name string, files []FileEntry, infoHash *string, origin Origin, trackers []string) Searchee {
	var total int64
	for _, f := range files {
		total += f.Size
	}
	return Searchee{
		Name:      name,
		FileList:  files,
		TotalSize: total,
		InfoHash:  infoHash,
		Origin:    origin,
		Trackers:  trackers,
	}
}

// SearcheeTimestamp tracks when a searchee was last (and first) searched, for
// the scheduler in package pipeline.
type SearcheeTimestamp struct {
	SearcheeName string
	FirstSearch  time.Time
	LastSearch   time.Time
}
