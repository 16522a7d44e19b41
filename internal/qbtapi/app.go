// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbtapi

import (
	"net/http"

	"github.com/zzackllack/anibridge/pkg/httphelpers"
)

func (h *Handler) handleAppVersion(w http.ResponseWriter, r *http.Request) {
	httphelpers.RespondPlain(w, http.StatusOK, qbtAppVersion)
}

func (h *Handler) handleWebAPIVersion(w http.ResponseWriter, r *http.Request) {
	httphelpers.RespondPlain(w, http.StatusOK, qbtWebAPIVersion)
}

// handlePreferences reports the one field arr clients actually check when
// pairing a download client: save_path, used to validate a remote-path
// mapping.
func (h *Handler) handlePreferences(w http.ResponseWriter, r *http.Request) {
	httphelpers.RespondJSON(w, http.StatusOK, preferencesDTO{SavePath: h.cfg.SavePath})
}

func (h *Handler) handleCategories(w http.ResponseWriter, r *http.Request) {
	h.mu.Lock()
	out := make(map[string]categoryDTO, len(h.categories))
	for k, v := range h.categories {
		out[k] = v
	}
	h.mu.Unlock()
	httphelpers.RespondJSON(w, http.StatusOK, out)
}

func (h *Handler) handleCreateCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httphelpers.RespondError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	name := r.FormValue("category")
	if name == "" {
		httphelpers.RespondError(w, http.StatusBadRequest, "category is required")
		return
	}
	savePath := r.FormValue("savePath")
	if savePath == "" {
		savePath = h.cfg.SavePath
	}

	h.mu.Lock()
	h.categories[name] = categoryDTO{Name: name, SavePath: savePath}
	h.mu.Unlock()

	okPlain(w)
}

func (h *Handler) handleSetCategory(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httphelpers.RespondError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	category := r.FormValue("category")
	hashes := splitHashes(r.FormValue("hashes"))
	ctx := r.Context()

	for _, hash := range hashes {
		if err := h.tasks.SetCategory(ctx, hash, category); err != nil {
			continue
		}
	}
	okPlain(w)
}
