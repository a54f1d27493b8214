// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package announce

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/s0up/xseed/internal/model"
	"github.com/s0up/xseed/internal/nameparser"
)

func newTestRouter(l *Listener) http.Handler {
	r := chi.NewRouter()
	NewHandler(l).Routes(r)
	return r
}

func TestHandler_Webhook_MatchesAndReturnsCounts(t *testing.T) {
	searchees := &fakeLister{searchees: []*model.Searchee{
		{Name: "Some.Show.S01E02.1080p.WEB-DL"},
	}}
	match := &fakeMatcher{kind: model.DecisionMatch, meta: &model.TorrentMetadata{}}
	dispatch := &fakeDispatcher{}
	l := New(searchees, match, dispatch, nameparser.NewParser(time.Minute))

	body, _ := json.Marshal(webhookRequest{Name: "Some.Show.S01E02.1080p.WEB-DL-GROUP", GUID: "g1"})
	req := httptest.NewRequest(http.MethodPost, "/announce/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	newTestRouter(l).ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp webhookResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 1, resp.Candidates)
	assert.Equal(t, 1, resp.Accepted)
}

func TestHandler_Webhook_InvalidBodyRejected(t *testing.T) {
	l := New(&fakeLister{}, &fakeMatcher{}, &fakeDispatcher{}, nameparser.NewParser(time.Minute))

	req := httptest.NewRequest(http.MethodPost, "/announce/webhook", bytes.NewReader([]byte("not json")))
	rec := httptest.NewRecorder()

	newTestRouter(l).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandler_Webhook_MissingGUIDRejected(t *testing.T) {
	l := New(&fakeLister{}, &fakeMatcher{}, &fakeDispatcher{}, nameparser.NewParser(time.Minute))

	body, _ := json.Marshal(webhookRequest{Name: "x"})
	req := httptest.NewRequest(http.MethodPost, "/announce/webhook", bytes.NewReader(body))
	rec := httptest.NewRecorder()

	newTestRouter(l).ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
