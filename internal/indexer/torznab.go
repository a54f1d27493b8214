// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package indexer implements the Torznab protocol client and the
// rate-limiting/backoff state machine spec.md §4.3 describes as the
// "indexer gateway". Grounded in the teacher's
// internal/services/jackett/{client.go,caps.go,ratelimiter.go,scheduler.go},
// generalized from the teacher's Jackett/Prowlarr backend-switch abstraction
// down to the single Torznab wire protocol spec.md actually specifies.
package indexer

import (
	"context"
	"encoding/xml"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/s0up/xseed/internal/model"
)

// maxTorrentDownloadBytes bounds a single .torrent fetch, matching the
// teacher's client.go safety limit against a misbehaving indexer streaming
// an unbounded response.
const maxTorrentDownloadBytes = 16 << 20

// Query is the set of Torznab search parameters the search pipeline builds
// for one searchee (spec.md §4.3/§6).
type Query struct {
	Categories []int
	Text       string
	IMDBID     string
	TMDBID     string
	TVDBID     string
	Season     int
	Episode    int
}

func (q Query) mode() string {
	switch {
	case q.TVDBID != "" || q.Season > 0:
		return "tvsearch"
	case q.IMDBID != "" || q.TMDBID != "":
		return "movie"
	default:
		return "search"
	}
}

// Client issues Torznab requests against a single indexer.
type Client struct {
	BaseURL string
	APIKey  string
	HTTP    *http.Client
}

// NewClient returns a Client with a request timeout of timeout.
func NewClient(baseURL, apiKey string, timeout time.Duration) *Client {
	return &Client{
		BaseURL: strings.TrimRight(baseURL, "/"),
		APIKey:  apiKey,
		HTTP:    &http.Client{Timeout: timeout},
	}
}

// Probe issues t=caps and returns the indexer's advertised capabilities.
func (c *Client) Probe(ctx context.Context) (*Capabilities, error) {
	u := c.endpoint(url.Values{"t": {"caps"}, "apikey": {c.APIKey}})
	resp, err := c.do(ctx, u)
	if err != nil {
		return nil, fmt.Errorf("probe caps: %w", err)
	}
	defer resp.Body.Close()
	return parseCaps(io.LimitReader(resp.Body, maxTorrentDownloadBytes))
}

// Search issues a Torznab search and returns candidates in the order the
// RSS response declared them.
func (c *Client) Search(ctx context.Context, indexerID int, q Query) ([]model.Candidate, error) {
	v := url.Values{"t": {q.mode()}, "apikey": {c.APIKey}}
	if q.Text != "" {
		v.Set("q", q.Text)
	}
	if q.IMDBID != "" {
		v.Set("imdbid", q.IMDBID)
	}
	if q.TMDBID != "" {
		v.Set("tmdbid", q.TMDBID)
	}
	if q.TVDBID != "" {
		v.Set("tvdbid", q.TVDBID)
	}
	if q.Season > 0 {
		v.Set("season", strconv.Itoa(q.Season))
	}
	if q.Episode > 0 {
		v.Set("ep", strconv.Itoa(q.Episode))
	}
	for _, cat := range q.Categories {
		v.Add("cat", strconv.Itoa(cat))
	}

	resp, err := c.do(ctx, c.endpoint(v))
	if err != nil {
		return nil, fmt.Errorf("search: %w", err)
	}
	defer resp.Body.Close()

	var rss rssFeed
	if err := xml.NewDecoder(io.LimitReader(resp.Body, maxTorrentDownloadBytes)).Decode(&rss); err != nil {
		return nil, fmt.Errorf("decode rss: %w", err)
	}

	candidates := make([]model.Candidate, 0, len(rss.Channel.Items))
	for _, item := range rss.Channel.Items {
		cand := model.Candidate{
			IndexerID: indexerID,
			GUID:      firstNonEmpty(item.GUID.Value, item.Link),
			Name:      item.Title,
			Link:      item.Link,
		}
		for _, attr := range item.Attrs {
			switch attr.Name {
			case "size":
				if n, err := strconv.ParseInt(attr.Value, 10, 64); err == nil {
					cand.Size = n
				}
			}
		}
		if cand.Size == 0 && item.Enclosure.Length != "" {
			if n, err := strconv.ParseInt(item.Enclosure.Length, 10, 64); err == nil {
				cand.Size = n
			}
		}
		if t, err := time.Parse(time.RFC1123Z, item.PubDate); err == nil {
			cand.PubDate = t
		}
		if cand.Link == "" && item.Enclosure.URL != "" {
			cand.Link = item.Enclosure.URL
		}
		candidates = append(candidates, cand)
	}
	return candidates, nil
}

// Download fetches the .torrent payload at link, which may be a relative
// path that needs resolving against BaseURL and may need the API key
// appended, matching the teacher's Download normalization.
func (c *Client) Download(ctx context.Context, link string) ([]byte, error) {
	resolved := link
	if u, err := url.Parse(link); err == nil && !u.IsAbs() {
		resolved = c.BaseURL + "/" + strings.TrimLeft(link, "/")
	}
	if !strings.Contains(resolved, "apikey=") {
		sep := "?"
		if strings.Contains(resolved, "?") {
			sep = "&"
		}
		resolved = resolved + sep + "apikey=" + url.QueryEscape(c.APIKey)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, resolved, nil)
	if err != nil {
		return nil, fmt.Errorf("build download request: %w", err)
	}
	req.Header.Set("Accept", "application/x-bittorrent, */*")
	req.Header.Set("User-Agent", "xseed/1.0")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, fmt.Errorf("download %s: %w", link, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("download %s: status %d", link, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxTorrentDownloadBytes))
}

func (c *Client) endpoint(v url.Values) string {
	return c.BaseURL + "/api?" + v.Encode()
}

func (c *Client) do(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/rss+xml, application/xml")
	req.Header.Set("User-Agent", "xseed/1.0")

	resp, err := c.HTTP.Do(req)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	if resp.StatusCode >= 500 {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	if resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden {
		resp.Body.Close()
		return nil, &StatusError{Code: resp.StatusCode}
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return resp, nil
}

// StatusError carries the HTTP status code of a failed request; Permanent
// reports 401/403. Gateway.Search does not consult it and backs off on
// every failure alike.
type StatusError struct{ Code int }

func (e *StatusError) Error() string { return fmt.Sprintf("indexer http status %d", e.Code) }

func (e *StatusError) Permanent() bool {
	return e.Code == http.StatusUnauthorized || e.Code == http.StatusForbidden
}

type rssFeed struct {
	Channel struct {
		Items []rssItem `xml:"item"`
	} `xml:"channel"`
}

type rssItem struct {
	Title     string `xml:"title"`
	Link      string `xml:"link"`
	PubDate   string `xml:"pubDate"`
	GUID      struct {
		Value string `xml:",chardata"`
	} `xml:"guid"`
	Enclosure struct {
		URL    string `xml:"url,attr"`
		Length string `xml:"length,attr"`
	} `xml:"enclosure"`
	Attrs []torznabAttr `xml:"attr"`
}

type torznabAttr struct {
	Name  string `xml:"name,attr"`
	Value string `xml:"value,attr"`
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
