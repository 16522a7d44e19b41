// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbtapi

import (
	"net/http"
	"strconv"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/pkg/httphelpers"
)

// handleMaindata returns the composite snapshot arr clients poll. This
// façade always answers with a full update: the task count is small enough
// that computing deltas against the client's rid would cost more than it
// saves, and qBittorrent's protocol explicitly allows full_update responses
// at any rid.
func (h *Handler) handleMaindata(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	tasks, err := h.tasks.List(ctx, "")
	if err != nil {
		httphelpers.RespondError(w, http.StatusInternalServerError, "failed to list torrents")
		return
	}

	torrents := make(map[string]torrentDTO, len(tasks))
	var dlSpeed int64
	for _, t := range tasks {
		job, err := h.jobs.Get(ctx, t.JobID)
		if err != nil {
			continue
		}
		dto := h.projectTorrent(t, job)
		torrents[t.InfoHash] = dto
		if job.Status == domain.JobStatusDownloading {
			dlSpeed += job.SpeedBps
		}
	}

	h.mu.Lock()
	categories := make(map[string]categoryDTO, len(h.categories))
	for k, v := range h.categories {
		categories[k] = v
	}
	h.mu.Unlock()

	rid, _ := strconv.ParseInt(r.URL.Query().Get("rid"), 10, 64)

	httphelpers.RespondJSON(w, http.StatusOK, mainDataDTO{
		Rid:        rid + 1,
		FullUpdate: true,
		Torrents:   torrents,
		Categories: categories,
		ServerState: serverStateDTO{
			ConnectionStatus: "connected",
			DlInfoSpeed:      dlSpeed,
		},
	})
}
