// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package announce implements spec.md §4.9's announce listener: a second
// entry point into the matcher that consumes real-time candidate events one
// at a time, instead of waiting for a searchee's scheduled search cycle.
// Grounded in the teacher's crossseed webhook-check surface
// (services/crossseed/models.go's WebhookCheckRequest/WebhookCheckResponse),
// generalized from a single webhook shape into a general announce-event
// entry point accepting pre-parsed announces from any source.
package announce

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/s0up/xseed/internal/logging"
	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
)

// Event is one real-time announce, already parsed out of its transport
// (webhook body, IRC line, RSS push) into the fields the matcher needs.
// Announce parsing itself — an actual IRC client — is out of scope; this
// package only consumes events already reduced to this shape.
type Event struct {
	Name      string
	Size      int64
	GUID      string
	Link      string
	IndexerID int
	PubDate   time.Time
}

// Matcher is the subset of matcher.Matcher the listener needs.
type Matcher interface {
	Decide(ctx context.Context, s *model.Searchee, c model.Candidate) (model.DecisionKind, *model.TorrentMetadata, error)
}

// Dispatcher is the subset of package dispatch's Dispatcher the listener
// needs, identical to pipeline.Dispatcher.
type Dispatcher interface {
	Dispatch(ctx context.Context, s *model.Searchee, c model.Candidate, meta *model.TorrentMetadata, kind model.DecisionKind) error
}

// SearcheeLister is package searchee's Index, queried fresh for every event
// since new searchees can be registered between announces.
type SearcheeLister interface {
	All() []*model.Searchee
}

// Listener wires an announce source to the matcher/dispatcher pair.
type Listener struct {
	searchees SearcheeLister
	match     Matcher
	dispatch  Dispatcher
	parser    *nameparser.Parser
	log       zerolog.Logger
}

// New returns a ready Listener.
func New(searchees SearcheeLister, match Matcher, dispatch Dispatcher, parser *nameparser.Parser) *Listener {
	return &Listener{
		searchees: searchees,
		match:     match,
		dispatch:  dispatch,
		parser:    parser,
		log:       logging.Component("announce"),
	}
}

// Result summarizes how many known searchees ev's cleaned title matched, and
// how many of those the matcher accepted and handed to the dispatcher.
type Result struct {
	Candidates int
	Accepted   int
}

// Handle runs ev through every currently-known searchee whose cleaned title
// token-matches ev's name, deciding and dispatching each match through the
// same cache-short-circuited path the search pipeline uses.
func (l *Listener) Handle(ctx context.Context, ev Event) (Result, error) {
	if ev.Name == "" {
		return Result{}, fmt.Errorf("announce: event has no name")
	}
	if ev.GUID == "" {
		return Result{}, fmt.Errorf("announce: event has no guid")
	}

	eventTokens := titleTokens(l.parser.Parse(ev.Name).Title)
	if len(eventTokens) == 0 {
		eventTokens = titleTokens(ev.Name)
	}

	var res Result
	for _, s := range l.searchees.All() {
		searcheeTokens := titleTokens(l.parser.Parse(s.Name).Title)
		if len(searcheeTokens) == 0 {
			searcheeTokens = titleTokens(s.Name)
		}
		if !tokensMatch(eventTokens, searcheeTokens) {
			continue
		}
		res.Candidates++

		c := model.Candidate{
			IndexerID: ev.IndexerID,
			GUID:      ev.GUID,
			Name:      ev.Name,
			Size:      ev.Size,
			Link:      ev.Link,
			PubDate:   ev.PubDate,
		}

		kind, meta, err := l.match.Decide(ctx, s, c)
		if err != nil {
			l.log.Warn().Err(err).Str("searchee", s.Name).Str("guid", ev.GUID).Msg("announce decide failed")
			continue
		}
		if !kind.Accepted() || meta == nil {
			continue
		}
		if err := l.dispatch.Dispatch(ctx, s, c, meta, kind); err != nil {
			l.log.Warn().Err(err).Str("searchee", s.Name).Str("guid", ev.GUID).Msg("announce dispatch failed")
			continue
		}
		res.Accepted++
	}

	l.log.Debug().Str("event", ev.Name).Int("candidates", res.Candidates).Int("accepted", res.Accepted).Msg("announce handled")
	return res, nil
}

// Consume drains events off ch until it closes or ctx is cancelled, handling
// each one in turn. Intended for an IRC-sourced announcer that has already
// reduced raw lines to Event values and hands them off over a channel,
// separate from the HTTP webhook entry point in handler.go.
func (l *Listener) Consume(ctx context.Context, ch <-chan Event) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-ch:
			if !ok {
				return
			}
			if _, err := l.Handle(ctx, ev); err != nil {
				l.log.Warn().Err(err).Str("event", ev.Name).Msg("announce channel event rejected")
			}
		}
	}
}

// titleTokens normalizes title into a lowercase token set, splitting on
// anything that isn't a letter or digit.
func titleTokens(title string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, f := range strings.FieldsFunc(strings.ToLower(title), func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		tokens[f] = struct{}{}
	}
	return tokens
}

// tokensMatch reports whether the smaller of a/b is a subset of the larger,
// spec.md §4.9's "cleaned title token-matches": a season pack's title is a
// subset of an individual episode's and vice versa, so neither direction of
// containment is privileged.
func tokensMatch(a, b map[string]struct{}) bool {
	if len(a) == 0 || len(b) == 0 {
		return false
	}
	small, large := a, b
	if len(b) < len(a) {
		small, large = b, a
	}
	for t := range small {
		if _, ok := large[t]; !ok {
			return false
		}
	}
	return true
}
