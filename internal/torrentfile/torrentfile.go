// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torrentfile decodes .torrent files into model.TorrentMetadata,
// computing infoHash the same way a BitTorrent client would: SHA-1 of the
// canonically re-encoded info dictionary. Grounded in the teacher's
// crossseed/service.go, which uses anacrolix/torrent/metainfo for this exact
// purpose (parseTorrentMetadata / buildTorrentFilesFromInfo).
package torrentfile

import (
	"bytes"
	"encoding/base64"
	"fmt"

	"github.com/anacrolix/torrent/metainfo"

	"github.com/s0up/xseed/internal/model"
)

// Decode parses raw .torrent bytes into model.TorrentMetadata.
func Decode(raw []byte) (*model.TorrentMetadata, error) {
	mi, err := metainfo.Load(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("decode torrent: %w", err)
	}

	info, err := mi.UnmarshalInfo()
	if err != nil {
		return nil, fmt.Errorf("unmarshal info dict: %w", err)
	}

	hash := mi.HashInfoBytes()

	meta := &model.TorrentMetadata{
		InfoHash:    hash.HexString(),
		Name:        info.BestName(),
		PieceLength: info.PieceLength,
		Private:     info.Private != nil && *info.Private,
		Raw:         raw,
	}

	for _, tier := range mi.AnnounceList {
		meta.AnnounceList = append(meta.AnnounceList, tier...)
	}
	if mi.Announce != "" {
		meta.AnnounceList = append([]string{mi.Announce}, meta.AnnounceList...)
	}

	if len(info.Files) == 0 {
		meta.FileList = []model.FileEntry{{RelativePath: info.Name, Size: info.Length}}
		return meta, nil
	}

	for _, f := range info.Files {
		meta.FileList = append(meta.FileList, model.FileEntry{
			RelativePath: f.DisplayPath(&info),
			Size:         f.Length,
		})
	}
	return meta, nil
}

// DecodeLoose accepts the same base64 variants the teacher's
// decodeTorrentData tolerates (standard, URL-safe, and raw unpadded), for
// announce-listener payloads that may arrive pre-encoded rather than as raw
// bytes (e.g. embedded in a JSON announce event).
func DecodeLoose(payload string) ([]byte, error) {
	for _, enc := range []*base64.Encoding{
		base64.StdEncoding, base64.URLEncoding,
		base64.RawStdEncoding, base64.RawURLEncoding,
	} {
		if b, err := enc.DecodeString(payload); err == nil {
			return b, nil
		}
	}
	return []byte(payload), nil
}
