// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package httphelpers

import (
	"encoding/json"
	"io"
	"net/http"

	"github.com/rs/zerolog/log"
)

// DrainAndClose consumes the remaining response body and closes it to allow connection reuse.
func DrainAndClose(resp *http.Response) {
	if resp == nil || resp.Body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	resp.Body.Close()
}

// ErrorResponse is the JSON shape every façade's error responses share.
type ErrorResponse struct {
	Error string `json:"error"`
}

// RespondJSON sends a JSON response, matching the no-body exemption for 204
// and 304 that the HTTP spec requires.
func RespondJSON(w http.ResponseWriter, status int, data any) {
	if status == http.StatusNoContent || status == http.StatusNotModified {
		w.WriteHeader(status)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(data); err != nil {
		log.Error().Err(err).Msg("httphelpers: failed to encode JSON response")
	}
}

// RespondError sends a JSON error response.
func RespondError(w http.ResponseWriter, status int, message string) {
	RespondJSON(w, status, ErrorResponse{Error: message})
}

// RespondPlain sends a plain-text body, used by the qBittorrent façade's
// literal "Ok." acknowledgements, which the upstream protocol requires to be
// unquoted plain text rather than JSON.
func RespondPlain(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, body)
}
