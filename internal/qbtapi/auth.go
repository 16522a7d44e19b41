// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbtapi

import "net/http"

const sessionCookieName = "SID"

// handleLogin accepts any credentials and sets the session cookie arr clients then carry
// on every subsequent request.
func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	sid := newSessionID()

	h.mu.Lock()
	h.sessions[sid] = struct{}{}
	h.mu.Unlock()

	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    sid,
		Path:     "/",
		HttpOnly: true,
	})
	okPlain(w)
}

// handleLogout clears whatever session cookie the caller presented.
func (h *Handler) handleLogout(w http.ResponseWriter, r *http.Request) {
	if c, err := r.Cookie(sessionCookieName); err == nil {
		h.mu.Lock()
		delete(h.sessions, c.Value)
		h.mu.Unlock()
	}
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookieName,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
	})
	okPlain(w)
}
