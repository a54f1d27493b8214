// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package indexer

import (
	"encoding/xml"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/s0up/xseed/internal/model"
)

// Capabilities is the parsed result of a Torznab t=caps probe.
type Capabilities struct {
	Search      []string // "search", "tv-search", "movie-search", "music-search", "audio-search", "book-search"
	Categories  []model.IndexerCategory
	IDTypes     []string // "imdbid", "tmdbid", "tvdbid" — inferred from tv-search/movie-search supportedParams
}

// Supports reports whether name is among the advertised search modes.
func (c *Capabilities) Supports(name string) bool {
	for _, s := range c.Search {
		if s == name {
			return true
		}
	}
	return false
}

type capsResponse struct {
	XMLName    xml.Name      `xml:"caps"`
	Searching  searchingCaps `xml:"searching"`
	Categories []categoryNode `xml:"categories>category"`
}

type searchingCaps struct {
	Search      searchNode `xml:"search"`
	TVSearch    searchNode `xml:"tv-search"`
	MovieSearch searchNode `xml:"movie-search"`
	MusicSearch searchNode `xml:"music-search"`
	AudioSearch searchNode `xml:"audio-search"`
	BookSearch  searchNode `xml:"book-search"`
}

type searchNode struct {
	Available      string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

type categoryNode struct {
	ID      string        `xml:"id,attr"`
	Name    string        `xml:"name,attr"`
	Subcats []subcatNode  `xml:"subcat"`
}

type subcatNode struct {
	ID   string `xml:"id,attr"`
	Name string `xml:"name,attr"`
}

// parseCaps decodes a Torznab caps response body.
func parseCaps(r io.Reader) (*Capabilities, error) {
	var resp capsResponse
	if err := xml.NewDecoder(r).Decode(&resp); err != nil {
		return nil, fmt.Errorf("decode caps response: %w", err)
	}

	caps := &Capabilities{}
	caps.Search = appendIfAvailable(caps.Search, "search", resp.Searching.Search.Available)
	caps.Search = appendIfAvailable(caps.Search, "tv-search", resp.Searching.TVSearch.Available)
	caps.Search = appendIfAvailable(caps.Search, "movie-search", resp.Searching.MovieSearch.Available)
	caps.Search = appendIfAvailable(caps.Search, "music-search", resp.Searching.MusicSearch.Available)
	caps.Search = appendIfAvailable(caps.Search, "audio-search", resp.Searching.AudioSearch.Available)
	caps.Search = appendIfAvailable(caps.Search, "book-search", resp.Searching.BookSearch.Available)

	for _, idType := range []string{"imdbid", "tmdbid", "tvdbid"} {
		if strings.Contains(resp.Searching.TVSearch.SupportedParams, idType) ||
			strings.Contains(resp.Searching.MovieSearch.SupportedParams, idType) {
			caps.IDTypes = append(caps.IDTypes, idType)
		}
	}

	for _, cat := range resp.Categories {
		parentID, err := strconv.Atoi(strings.TrimSpace(cat.ID))
		if err != nil {
			continue
		}
		caps.Categories = append(caps.Categories, model.IndexerCategory{
			CategoryID:   parentID,
			CategoryName: strings.TrimSpace(cat.Name),
		})
		for _, sub := range cat.Subcats {
			subID, err := strconv.Atoi(strings.TrimSpace(sub.ID))
			if err != nil {
				continue
			}
			parent := parentID
			caps.Categories = append(caps.Categories, model.IndexerCategory{
				CategoryID:     subID,
				CategoryName:   strings.TrimSpace(sub.Name),
				ParentCategory: &parent,
			})
		}
	}

	return caps, nil
}

func appendIfAvailable(list []string, name, available string) []string {
	switch strings.ToLower(strings.TrimSpace(available)) {
	case "yes", "true", "1":
		return append(list, name)
	default:
		return list
	}
}
