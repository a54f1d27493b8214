// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/pkg/fsutil"
	"github.com/s0up/xseed/pkg/hardlink"
	"github.com/s0up/xseed/pkg/reflinktree"
)

// LinkMode selects how LINKING materializes the matched torrent's files.
type LinkMode string

const (
	LinkModeHardlink LinkMode = "hardlink"
	LinkModeReflink  LinkMode = "reflink"
)

// ErrCrossDevice is returned by Link when source and destination straddle a
// filesystem boundary and the caller has not permitted a copy fallback.
var ErrCrossDevice = errors.New("dispatch: source and destination are on different filesystems")

// Link materializes meta's file tree at destDir by linking each file back to
// its counterpart under sourceRoot (the directory backing the matched
// Searchee's files), spec.md §4.8's LINKING state: "hardlinks (cross-device
// falls back to copy only if permitted)". Grounded in the teacher's
// dirscan.Injector.materializeLinkTree, simplified to a flat per-file
// operation since this module's Searchee model has no content-layout
// concept beyond its FileList.
func Link(mode LinkMode, sourceRoot string, s *model.Searchee, destDir string, allowCrossDeviceCopy bool) error {
	for _, f := range s.FileList {
		src := filepath.Join(sourceRoot, f.RelativePath)
		dst := filepath.Join(destDir, f.RelativePath)
		if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
			return fmt.Errorf("create link dest dir: %w", err)
		}
		if err := linkOne(mode, src, dst, allowCrossDeviceCopy); err != nil {
			return fmt.Errorf("link %s: %w", f.RelativePath, err)
		}
	}
	return nil
}

func linkOne(mode LinkMode, src, dst string, allowCrossDeviceCopy bool) error {
	switch mode {
	case LinkModeReflink:
		if supported, reason := reflinktree.SupportsReflink(filepath.Dir(dst)); !supported {
			return fmt.Errorf("reflink unsupported: %s", reason)
		}
		return reflinktree.Clone(src, dst)
	default:
		return hardlinkOrCopy(src, dst, allowCrossDeviceCopy)
	}
}

// hardlinkOrCopy attempts os.Link, falling back to a full copy only when the
// paths are on different filesystems and allowCrossDeviceCopy permits it.
func hardlinkOrCopy(src, dst string, allowCrossDeviceCopy bool) error {
	if err := os.Link(src, dst); err == nil {
		return verifySameFile(src, dst)
	} else if !errors.Is(err, os.ErrExist) {
		same, sameErr := fsutil.SameFilesystem(filepath.Dir(src), filepath.Dir(dst))
		if sameErr == nil && !same {
			if !allowCrossDeviceCopy {
				return ErrCrossDevice
			}
			return copyFile(src, dst)
		}
		return err
	}
	return nil
}

// verifySameFile confirms src and dst share a FileID after linking, the
// invariant os.Link is supposed to guarantee but that this module checks
// explicitly before handing the linked tree to the client adapter.
func verifySameFile(src, dst string) error {
	srcInfo, err := os.Stat(src)
	if err != nil {
		return err
	}
	dstInfo, err := os.Stat(dst)
	if err != nil {
		return err
	}
	srcID, _, err := hardlink.GetFileID(srcInfo, src)
	if err != nil {
		return err
	}
	dstID, _, err := hardlink.GetFileID(dstInfo, dst)
	if err != nil {
		return err
	}
	if srcID != dstID {
		return fmt.Errorf("linked file %s does not share an inode with %s", dst, src)
	}
	return nil
}

func copyFile(src, dst string) (retErr error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat source: %w", err)
	}

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode())
	if err != nil {
		return fmt.Errorf("create destination: %w", err)
	}
	defer func() {
		if cerr := out.Close(); retErr == nil {
			retErr = cerr
		}
	}()

	if _, err := io.Copy(out, in); err != nil {
		return fmt.Errorf("copy: %w", err)
	}
	return nil
}
