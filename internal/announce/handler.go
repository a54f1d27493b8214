// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package announce

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/s0up/xseed/internal/logging"
)

// webhookRequest is the HTTP request body for POST /announce/webhook, the
// generalized shape of the teacher's crossseed WebhookCheckRequest.
type webhookRequest struct {
	Name      string `json:"name"`
	Size      int64  `json:"size,omitempty"`
	GUID      string `json:"guid"`
	Link      string `json:"link,omitempty"`
	IndexerID int    `json:"indexerId,omitempty"`
}

type webhookResponse struct {
	Candidates int `json:"candidates"`
	Accepted   int `json:"accepted"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Handler exposes Listener as an HTTP endpoint for webhook-sourced
// announces (e.g. from autobrr), per spec.md §4.9.
type Handler struct {
	listener *Listener
	log      zerolog.Logger
}

// NewHandler wraps listener for HTTP use.
func NewHandler(listener *Listener) *Handler {
	return &Handler{listener: listener, log: logging.Component("announce-http")}
}

// Routes registers the announce routes under r.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/announce", func(r chi.Router) {
		r.Post("/webhook", h.Webhook)
	})
}

// Webhook decodes a webhookRequest and runs it through the listener.
func (h *Handler) Webhook(w http.ResponseWriter, r *http.Request) {
	var req webhookRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.log.Warn().Err(err).Msg("failed to decode announce webhook body")
		respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	ev := Event{
		Name:      req.Name,
		Size:      req.Size,
		GUID:      req.GUID,
		Link:      req.Link,
		IndexerID: req.IndexerID,
		PubDate:   time.Now(),
	}

	res, err := h.listener.Handle(r.Context(), ev)
	if err != nil {
		h.log.Warn().Err(err).Msg("announce webhook rejected")
		respondError(w, http.StatusBadRequest, err.Error())
		return
	}

	respondJSON(w, http.StatusOK, webhookResponse{Candidates: res.Candidates, Accepted: res.Accepted})
}

func respondJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func respondError(w http.ResponseWriter, status int, message string) {
	respondJSON(w, status, errorResponse{Error: message})
}
