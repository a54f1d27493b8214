// Copyright (c) 2025-2026, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"encoding/json"
	"net/http"
)

// respondAppJSON writes data as a JSON response, matching the teacher's
// RespondJSON helper convention (internal/api/handlers/helpers.go).
func respondAppJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// respondAppError writes err's message as a JSON error response.
func respondAppError(w http.ResponseWriter, status int, err error) {
	respondAppJSON(w, status, map[string]string{"error": err.Error()})
}
