// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbtapi

import (
	"crypto/rand"
	"encoding/hex"
	"net/http"
	"sync"

	"github.com/go-chi/chi/v5"

	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/scheduler"
)

// defaultCategory is the category every client task lands in when the
// caller does not specify one, matching qBittorrent's own "" default.
const defaultCategory = ""

// Config carries the operator-tunable behaviour of the qBittorrent façade.
type Config struct {
	SavePath string
}

// Handler serves the qBittorrent-compatible façade.
// Authentication is permissive by design (any
// credentials are accepted); the session cookie exists only because arr
// clients expect one to be set and sent back.
type Handler struct {
	scheduler *scheduler.Scheduler
	jobs      *models.JobStore
	tasks     *models.ClientTaskStore
	cfg       Config

	mu         sync.Mutex
	categories map[string]categoryDTO
	sessions   map[string]struct{}
}

// NewHandler builds a Handler seeded with the default category.
func NewHandler(sched *scheduler.Scheduler, jobs *models.JobStore, tasks *models.ClientTaskStore, cfg Config) *Handler {
	return &Handler{
		scheduler: sched,
		jobs:      jobs,
		tasks:     tasks,
		cfg:       cfg,
		categories: map[string]categoryDTO{
			defaultCategory: {Name: defaultCategory, SavePath: cfg.SavePath},
		},
		sessions: make(map[string]struct{}),
	}
}

// Routes mounts the qBittorrent v2 API surface under /api/v2.
func (h *Handler) Routes(r chi.Router) {
	r.Route("/api/v2", func(r chi.Router) {
		r.Post("/auth/login", h.handleLogin)
		r.Post("/auth/logout", h.handleLogout)

		r.Get("/app/version", h.handleAppVersion)
		r.Get("/app/webapiVersion", h.handleWebAPIVersion)
		r.Get("/app/preferences", h.handlePreferences)

		r.Post("/torrents/add", h.handleAdd)
		r.Get("/torrents/info", h.handleInfo)
		r.Get("/torrents/files", h.handleFiles)
		r.Get("/torrents/properties", h.handleProperties)
		r.Post("/torrents/delete", h.handleDelete)
		r.Post("/torrents/pause", h.handlePause)
		r.Post("/torrents/resume", h.handleResume)
		r.Get("/torrents/categories", h.handleCategories)
		r.Post("/torrents/createCategory", h.handleCreateCategory)
		r.Post("/torrents/setCategory", h.handleSetCategory)

		r.Get("/sync/maindata", h.handleMaindata)
	})
}

// newSessionID mints a random session identifier for the SID cookie. Its
// value is opaque and never validated on subsequent requests; it exists to match the client's cookie-jar
// expectations.
func newSessionID() string {
	buf := make([]byte, 16)
	_, _ = rand.Read(buf)
	return hex.EncodeToString(buf)
}

func okPlain(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "text/plain; charset=UTF-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ok."))
}
