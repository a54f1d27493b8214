// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package pipeline

import (
	"context"
	"fmt"

	"github.com/s0up/xseed/internal/indexer"
	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/torrentfile"
)

// GatewayFetcher adapts indexer.Gateway into matcher.Fetcher: download the
// candidate's .torrent payload through its owning indexer's client, then
// decode it into model.TorrentMetadata.
type GatewayFetcher struct {
	Gateway *indexer.Gateway
}

// FetchMetadata implements matcher.Fetcher.
func (f *GatewayFetcher) FetchMetadata(ctx context.Context, c model.Candidate) (*model.TorrentMetadata, error) {
	raw, err := f.Gateway.Download(ctx, c.IndexerID, c.Link)
	if err != nil {
		return nil, fmt.Errorf("download candidate %s: %w", c.GUID, err)
	}
	meta, err := torrentfile.Decode(raw)
	if err != nil {
		return nil, fmt.Errorf("decode candidate %s: %w", c.GUID, err)
	}
	return meta, nil
}
