// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package dispatch

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up/xseed/internal/model"
)

func TestLink_HardlinkSharesInode(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	require.NoError(t, os.WriteFile(filepath.Join(root, "file.mkv"), []byte("payload"), 0o644))
	s := &model.Searchee{FileList: []model.FileEntry{{RelativePath: "file.mkv", Size: 7}}}

	err := Link(LinkModeHardlink, root, s, destDir, false)
	require.NoError(t, err)

	srcInfo, err := os.Stat(filepath.Join(root, "file.mkv"))
	require.NoError(t, err)
	dstInfo, err := os.Stat(filepath.Join(destDir, "file.mkv"))
	require.NoError(t, err)
	assert.True(t, os.SameFile(srcInfo, dstInfo))
}

func TestLink_NestedRelativePaths(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()

	nested := filepath.Join(root, "subdir", "file.mkv")
	require.NoError(t, os.MkdirAll(filepath.Dir(nested), 0o755))
	require.NoError(t, os.WriteFile(nested, []byte("payload"), 0o644))

	s := &model.Searchee{FileList: []model.FileEntry{{RelativePath: filepath.Join("subdir", "file.mkv"), Size: 7}}}
	err := Link(LinkModeHardlink, root, s, destDir, false)
	require.NoError(t, err)

	got, err := os.ReadFile(filepath.Join(destDir, "subdir", "file.mkv"))
	require.NoError(t, err)
	assert.Equal(t, "payload", string(got))
}

func TestCopyFile_CopiesContent(t *testing.T) {
	dir := t.TempDir()
	src := filepath.Join(dir, "src")
	dst := filepath.Join(dir, "dst")
	require.NoError(t, os.WriteFile(src, []byte("hello"), 0o644))

	require.NoError(t, copyFile(src, dst))

	got, err := os.ReadFile(dst)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(got))
}

func TestLink_MissingSourceErrors(t *testing.T) {
	root := t.TempDir()
	destDir := t.TempDir()
	s := &model.Searchee{FileList: []model.FileEntry{{RelativePath: "missing.mkv", Size: 1}}}

	err := Link(LinkModeHardlink, root, s, destDir, false)
	assert.Error(t, err)
}
