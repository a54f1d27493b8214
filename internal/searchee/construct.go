// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package searchee builds model.Searchee values from the three sources
// spec.md §4.1 names: a torrent file, a data directory, or a BitTorrent
// client's reported torrent list.
package searchee

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/torrentfile"
	"github.com/s0up/xseed/pkg/stringutils"
)

// FromTorrentFile parses raw .torrent bytes into a Searchee whose file list
// mirrors the torrent's info dictionary.
func FromTorrentFile(raw []byte) (*model.Searchee, error) {
	meta, err := torrentfile.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("searchee from torrent file: %w", err)
	}
	hash := meta.InfoHash
	s := model.NewSearchee(meta.Name, meta.FileList, &hash, model.OriginTorrentFile, meta.AnnounceList)
	return &s, nil
}

// FromDataDir enumerates regular files under root (no symlink traversal
// into the root itself) and builds a Searchee with paths relative to root.
// infoHash is absent, per spec.md §4.1.
func FromDataDir(root string) (*model.Searchee, error) {
	info, err := os.Lstat(root)
	if err != nil {
		return nil, fmt.Errorf("stat data dir %s: %w", root, err)
	}
	if info.Mode()&os.ModeSymlink != 0 {
		return nil, fmt.Errorf("data dir root %s is a symlink, refusing to traverse into it", root)
	}

	var files []model.FileEntry
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}
		if d.Type()&os.ModeSymlink != 0 {
			return nil
		}
		fi, err := d.Info()
		if err != nil {
			return fmt.Errorf("stat %s: %w", path, err)
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		files = append(files, model.FileEntry{RelativePath: rel, Size: fi.Size()})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk data dir %s: %w", root, err)
	}

	s := model.NewSearchee(filepath.Base(root), files, nil, model.OriginDataDir, nil)
	return &s, nil
}

// ClientTorrent is what a BitTorrent client adapter (package dispatch)
// reports for one torrent it manages.
type ClientTorrent struct {
	Name     string
	InfoHash string
	Files    []model.FileEntry
	Trackers []string
}

// FromClientTorrent builds a Searchee directly from client-reported data, no
// parsing required.
func FromClientTorrent(ct ClientTorrent) *model.Searchee {
	hash := ct.InfoHash
	s := model.NewSearchee(ct.Name, ct.Files, &hash, model.OriginClient, ct.Trackers)
	return &s
}

// Index is an in-memory, process-lifetime collection of known searchees,
// keyed by name, retained by the daemon between search cycles (spec.md
// §3's Searchee lifecycle note). It enforces the invariant that two
// searchees sharing an infoHash must have an identical file list.
type Index struct {
	byName     map[string]*model.Searchee
	byInfoHash map[string]*model.Searchee
}

// NewIndex returns an empty Index.
func NewIndex() *Index {
	return &Index{
		byName:     make(map[string]*model.Searchee),
		byInfoHash: make(map[string]*model.Searchee),
	}
}

// Put inserts or replaces s. Returns an error if s's infoHash is already
// known with a different file list.
//
// Index keys are interned with stringutils.Intern: a searchee's name and
// infoHash are looked up on every pipeline cycle (Get and the due-searchee
// scan) and re-submitted verbatim by search.go/serve.go's
// on-demand path, so the same strings recur for as long as the process
// runs — canonicalizing them keeps repeated lookups from allocating a
// fresh backing array per call.
func (idx *Index) Put(s *model.Searchee) error {
	name := stringutils.Intern(s.Name)
	if s.InfoHash != nil {
		hash := stringutils.Intern(*s.InfoHash)
		if existing, ok := idx.byInfoHash[hash]; ok && existing.Name != s.Name {
			if !existing.SameFileTreeAs(s) {
				return fmt.Errorf("searchee invariant violated: infoHash %s has divergent file lists between %q and %q", hash, existing.Name, s.Name)
			}
		}
		idx.byInfoHash[hash] = s
	}
	idx.byName[name] = s
	return nil
}

// All returns every known searchee, in no particular order.
func (idx *Index) All() []*model.Searchee {
	out := make([]*model.Searchee, 0, len(idx.byName))
	for _, s := range idx.byName {
		out = append(out, s)
	}
	return out
}

// HasInfoHash reports whether hash is already known locally. The matcher's
// infoHash-dedup step does not consult it: cmd/xseed wires the matcher to
// store.DecisionRepo.HasInfoHash instead.
func (idx *Index) HasInfoHash(hash string) bool {
	_, ok := idx.byInfoHash[stringutils.Intern(hash)]
	return ok
}

// Get returns the searchee named name, if known.
func (idx *Index) Get(name string) (*model.Searchee, bool) {
	s, ok := idx.byName[stringutils.Intern(name)]
	return s, ok
}
