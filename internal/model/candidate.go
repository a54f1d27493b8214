// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package model

import "time"

// Candidate is a release advertised by an indexer, proposed as a possible
// alternate source for a Searchee.
type Candidate struct {
	IndexerID int
	GUID      string
	Name      string
	Size      int64
	Link      string
	PubDate   time.Time
}

// TorrentMetadata is the parsed form of a .torrent file, fetched from a
// Candidate's Link once the candidate survives the matcher's size prefilter.
type TorrentMetadata struct {
	InfoHash     string
	Name         string
	FileList     []FileEntry
	PieceLength  int64
	Private      bool
	AnnounceList []string

	// Raw holds the original .torrent file bytes this metadata was decoded
	// from. SAVE and INJECT both need the exact bytes a client would verify
	// against InfoHash — re-encoding the decoded fields would not
	// byte-for-byte match the original and would change the hash.
	Raw []byte
}

// TotalSize sums FileList.
func (m *TorrentMetadata) TotalSize() int64 {
	var total int64
	for _, f := range m.FileList {
		total += f.Size
	}
	return total
}
