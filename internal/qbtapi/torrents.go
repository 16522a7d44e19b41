// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbtapi

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/magnet"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/scheduler"
	"github.com/zzackllack/anibridge/pkg/httphelpers"
)

// handleAdd decodes the magnet(s) in the request body, creates a Job plus a
// ClientTask per magnet, and submits each to the scheduler. A resubmission
// of an already-known info hash is deduped by the scheduler itself.
func (h *Handler) handleAdd(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httphelpers.RespondError(w, http.StatusBadRequest, "malformed form body")
		return
	}

	urls := splitLines(r.FormValue("urls"))
	category := r.FormValue("category")
	if len(urls) == 0 {
		httphelpers.RespondError(w, http.StatusBadRequest, "urls is required")
		return
	}

	ctx := r.Context()
	accepted := 0
	for _, raw := range urls {
		payload, err := magnet.Decode(strings.TrimSpace(raw))
		if err != nil {
			continue
		}

		req := scheduler.Request{
			Site:           payload.Identity.Site,
			Slug:           payload.Identity.Slug,
			Season:         payload.Identity.Season,
			Episode:        payload.Identity.Episode,
			Language:       payload.Identity.Language,
			Provider:       payload.Provider,
			Mode:           payload.Mode,
			AbsoluteNumber: payload.AbsoluteNumber,
			InfoHash:       magnet.InfoHash(payload.Identity, payload.Provider, payload.Mode),
			DisplayName:    displayName(payload),
			SavePath:       h.cfg.SavePath,
			Category:       category,
		}

		if _, err := h.scheduler.Submit(ctx, req); err == nil {
			accepted++
		}
	}

	if accepted == 0 {
		httphelpers.RespondError(w, http.StatusBadRequest, "no valid magnet in request")
		return
	}
	okPlain(w)
}

// displayName renders the torrent list's name field, prefixed with
// "[ABS NNN]" when the originating magnet carried absolute-numbering
// metadata, mirroring the Torznab façade's release-name convention.
func displayName(p magnet.Payload) string {
	name := p.DisplayName
	if name == "" {
		name = p.Identity.String()
	}
	if p.AbsoluteNumber != nil {
		return fmt.Sprintf("[ABS %03d] %s", *p.AbsoluteNumber, name)
	}
	return name
}

// handleInfo lists client tasks, optionally filtered by category and/or a
// comma-separated hashes list, projected into the torrent-list shape arr
// clients poll.
func (h *Handler) handleInfo(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	category := r.URL.Query().Get("category")
	wanted := splitHashes(r.URL.Query().Get("hashes"))

	tasks, err := h.tasks.List(ctx, category)
	if err != nil {
		httphelpers.RespondError(w, http.StatusInternalServerError, "failed to list torrents")
		return
	}

	out := make([]torrentDTO, 0, len(tasks))
	for _, t := range tasks {
		if len(wanted) > 0 && !containsFold(wanted, t.InfoHash) {
			continue
		}
		job, err := h.jobs.Get(ctx, t.JobID)
		if err != nil {
			continue
		}
		out = append(out, h.projectTorrent(t, job))
	}
	httphelpers.RespondJSON(w, http.StatusOK, out)
}

// handleFiles reports the single result file a Job produces: a downloaded
// media file in mode=download, a .strm pointer in mode=strm.
func (h *Handler) handleFiles(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("hash")
	task, job, ok := h.lookup(r.Context(), w, hash)
	if !ok {
		return
	}

	progress := 0.0
	if job.Status == domain.JobStatusCompleted {
		progress = 1.0
	} else {
		progress = job.ProgressPercent / 100
	}

	out := []torrentFileDTO{{
		Name:       fileName(task, job),
		Size:       job.TotalBytes,
		Progress:   progress,
		Priority:   1,
		IsSeed:     job.Status == domain.JobStatusCompleted,
		PieceRange: [2]int{0, 0},
	}}
	httphelpers.RespondJSON(w, http.StatusOK, out)
}

// handleProperties projects a Job/ClientTask pair into the properties
// shape arr clients read for save_path/content metadata.
func (h *Handler) handleProperties(w http.ResponseWriter, r *http.Request) {
	hash := r.URL.Query().Get("hash")
	task, job, ok := h.lookup(r.Context(), w, hash)
	if !ok {
		return
	}

	out := torrentPropertiesDTO{
		SavePath:        savePathFor(task, h.cfg.SavePath),
		CreationDate:    task.AddedAt.Unix(),
		TotalDownloaded: job.DownloadedBytes,
		DlSpeed:         job.SpeedBps,
		Eta:             job.ETASeconds,
		ShareRatio:      0,
	}
	httphelpers.RespondJSON(w, http.StatusOK, out)
}

// handleDelete removes the named client tasks, optionally cancelling their
// jobs if still running and deleting any on-disk result. Deleting an
// already-gone or already-terminal task is a no-op.
func (h *Handler) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseForm(); err != nil {
		httphelpers.RespondError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	deleteFiles := r.FormValue("deleteFiles") == "true"
	hashes := splitHashes(r.FormValue("hashes"))
	ctx := r.Context()

	for _, hash := range hashes {
		task, err := h.tasks.Get(ctx, hash)
		if err != nil {
			continue
		}

		job, err := h.jobs.Get(ctx, task.JobID)
		if err == nil && !job.Status.Terminal() {
			h.scheduler.Cancel(task.JobID)
		}
		if deleteFiles && err == nil && job.ResultPath != "" {
			_ = os.Remove(job.ResultPath)
		}

		_ = h.tasks.Delete(ctx, hash)
	}
	okPlain(w)
}

func (h *Handler) handlePause(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, true)
}

func (h *Handler) handleResume(w http.ResponseWriter, r *http.Request) {
	h.setPaused(w, r, false)
}

func (h *Handler) setPaused(w http.ResponseWriter, r *http.Request, paused bool) {
	if err := r.ParseForm(); err != nil {
		httphelpers.RespondError(w, http.StatusBadRequest, "malformed form body")
		return
	}
	ctx := r.Context()
	for _, hash := range splitHashes(r.FormValue("hashes")) {
		_ = h.tasks.SetPaused(ctx, hash, paused)
	}
	okPlain(w)
}

func (h *Handler) lookup(ctx context.Context, w http.ResponseWriter, hash string) (*models.ClientTask, *models.Job, bool) {
	if hash == "" {
		httphelpers.RespondError(w, http.StatusBadRequest, "hash is required")
		return nil, nil, false
	}
	task, err := h.tasks.Get(ctx, hash)
	if err != nil {
		if errors.Is(err, models.ErrClientTaskNotFound) {
			httphelpers.RespondError(w, http.StatusNotFound, "torrent not found")
		} else {
			httphelpers.RespondError(w, http.StatusInternalServerError, "failed to load torrent")
		}
		return nil, nil, false
	}
	job, err := h.jobs.Get(ctx, task.JobID)
	if err != nil {
		httphelpers.RespondError(w, http.StatusInternalServerError, "failed to load job")
		return nil, nil, false
	}
	return task, job, true
}

func (h *Handler) projectTorrent(t *models.ClientTask, j *models.Job) torrentDTO {
	var completionOn int64
	if t.CompletedAt != nil {
		completionOn = t.CompletedAt.Unix()
	}

	return torrentDTO{
		Hash:              t.InfoHash,
		Name:              t.Name,
		Size:              j.TotalBytes,
		Progress:          j.ProgressPercent / 100,
		DlSpeed:           j.SpeedBps,
		UpSpeed:           0,
		Eta:               j.ETASeconds,
		State:             string(torrentStateFor(t, j)),
		Category:          t.Category,
		SavePath:          savePathFor(t, h.cfg.SavePath),
		ContentPath:       fileName(t, j),
		AddedOn:           t.AddedAt.Unix(),
		CompletionOn:      completionOn,
		AmountLeft:        j.TotalBytes - j.DownloadedBytes,
		Downloaded:        j.DownloadedBytes,
		AnibridgeAbsolute: t.AbsoluteNumber,
	}
}

func torrentStateFor(t *models.ClientTask, j *models.Job) torrentState {
	if t.Paused {
		return statePausedDL
	}
	switch j.Status {
	case domain.JobStatusQueued:
		return stateQueuedDL
	case domain.JobStatusDownloading:
		return stateDownloading
	case domain.JobStatusCompleted:
		return statePausedUP
	default:
		return stateError
	}
}

func savePathFor(t *models.ClientTask, fallback string) string {
	if t.SavePath != "" {
		return t.SavePath
	}
	return fallback
}

func fileName(t *models.ClientTask, j *models.Job) string {
	if j.ResultPath != "" {
		return j.ResultPath
	}
	return t.Name
}

func splitLines(s string) []string {
	var out []string
	for _, line := range strings.Split(strings.ReplaceAll(s, "\r\n", "\n"), "\n") {
		line = strings.TrimSpace(line)
		if line != "" {
			out = append(out, line)
		}
	}
	return out
}

func splitHashes(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.FieldsFunc(s, func(r rune) bool { return r == '|' || r == ',' })
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

func containsFold(haystack []string, needle string) bool {
	for _, h := range haystack {
		if strings.EqualFold(h, needle) {
			return true
		}
	}
	return false
}
