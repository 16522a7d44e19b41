// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package api wires the chi router every external interface this bridge
// exposes mounts onto: the Torznab façade, the qBittorrent-compatible
// façade, the STRM reverse proxy, and the /health endpoint.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"runtime"
	"time"

	"github.com/CAFxX/httpcompression"
	"github.com/go-chi/chi/v5"
	"github.com/rs/cors"
	"github.com/rs/zerolog"

	apimiddleware "github.com/zzackllack/anibridge/internal/api/middleware"
	"github.com/zzackllack/anibridge/internal/buildinfo"
	"github.com/zzackllack/anibridge/internal/config"
	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/qbtapi"
	"github.com/zzackllack/anibridge/internal/scheduler"
	"github.com/zzackllack/anibridge/internal/strmproxy"
	"github.com/zzackllack/anibridge/internal/torznab"
	"github.com/zzackllack/anibridge/pkg/httphelpers"
)

// Routes is every component that exposes its own mount points. Server only
// knows how to compose them, never their internals.
type Routes struct {
	Torznab   *torznab.Handler
	QBT       *qbtapi.Handler
	STRM      *strmproxy.Handler
	Database  *database.DB
	Scheduler *scheduler.Scheduler

	// Config enables the runtime log-settings endpoints when set.
	Config *config.AppConfig

	DownloadDir string
}

// Server is the bridge's single HTTP listener. The STRM proxy's streaming
// routes are mounted outside the compression middleware: gzip-wrapping a
// byte-for-byte passthrough of a remote media file would buffer the whole
// response and break Range requests.
type Server struct {
	httpServer *http.Server
	routes     Routes
}

// NewServer builds the composed router and binds it to host:port without
// starting to listen.
func NewServer(host string, port int, logger zerolog.Logger, routes Routes) (*Server, error) {
	r := chi.NewRouter()

	r.Use(apimiddleware.RequestID)
	r.Use(apimiddleware.RealIP)
	r.Use(apimiddleware.Recoverer)
	r.Use(apimiddleware.Logger(logger))

	corsHandler := cors.New(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodHead, http.MethodOptions},
		AllowedHeaders: []string{"*"},
	})
	r.Use(corsHandler.Handler)

	compress, err := httpcompression.DefaultAdapter()
	if err != nil {
		return nil, fmt.Errorf("api: build compression adapter: %w", err)
	}

	r.Get("/health", newHealthHandler(routes))

	r.Group(func(r chi.Router) {
		r.Use(compress)
		routes.Torznab.Routes(r)
		routes.QBT.Routes(r)

		if routes.Config != nil {
			r.Get("/api/logs/settings", handleGetLogSettings(routes.Config))
			r.Put("/api/logs/settings", handleUpdateLogSettings(routes.Config))
		}
	})

	// Mounted outside the compression group: streamed bytes must pass
	// through untouched, and Range support depends on it.
	routes.STRM.Routes(r)

	addr := fmt.Sprintf("%s:%d", host, port)
	return &Server{
		httpServer: &http.Server{
			Addr:              addr,
			Handler:           r,
			ReadHeaderTimeout: 20 * time.Second,
		},
		routes: routes,
	}, nil
}

// ListenAndServe blocks serving HTTP until the server is shut down.
func (s *Server) ListenAndServe() error {
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server, honoring ctx's deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// healthResponse is the /health payload.
type healthResponse struct {
	Status      string `json:"status"`
	Database    string `json:"database"`
	Scheduler   string `json:"scheduler"`
	DownloadDir string `json:"download_dir"`
	Version     string `json:"version"`
	Runtime     string `json:"runtime"`
}

// newHealthHandler reports ok only when migrations are applied (the database
// handle opened cleanly, checked at construction time), the worker pool is
// live, and DownloadDir exists and is writable.
func newHealthHandler(routes Routes) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbStatus := "ok"
		if routes.Database == nil {
			dbStatus = "unavailable"
		}

		schedStatus := "ok"
		if routes.Scheduler == nil {
			schedStatus = "unavailable"
		}

		dirWritable := checkWritableDir(routes.DownloadDir) == nil

		status := "ok"
		if dbStatus != "ok" || schedStatus != "ok" || !dirWritable {
			status = "unhealthy"
		}

		httphelpers.RespondJSON(w, httpStatusFor(status), healthResponse{
			Status:      status,
			Database:    dbStatus,
			Scheduler:   schedStatus,
			DownloadDir: routes.DownloadDir,
			Version:     buildinfo.Version,
			Runtime:     runtime.Version(),
		})
	}
}

func httpStatusFor(status string) int {
	if status == "ok" {
		return http.StatusOK
	}
	return http.StatusServiceUnavailable
}

// checkWritableDir reports whether dir exists and accepts a probe file
// write. The health handler only checks whether it failed; the payload's
// download_dir field carries the configured path, not the failure reason.
func checkWritableDir(dir string) error {
	if dir == "" {
		return fmt.Errorf("not configured")
	}
	info, err := os.Stat(dir)
	if err != nil {
		return fmt.Errorf("not accessible: %v", err)
	}
	if !info.IsDir() {
		return fmt.Errorf("not a directory")
	}

	probe, err := os.CreateTemp(dir, ".anibridge-health-*")
	if err != nil {
		return fmt.Errorf("not writable: %v", err)
	}
	name := probe.Name()
	probe.Close()
	os.Remove(name)
	return nil
}

// handleGetLogSettings reports the effective log settings, including which
// fields are locked by environment overrides.
func handleGetLogSettings(appCfg *config.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		httphelpers.RespondJSON(w, http.StatusOK, appCfg.GetLogSettings())
	}
}

// handleUpdateLogSettings applies a partial log-settings update to the live
// logger, persists it back to config.toml, and echoes the resulting state.
func handleUpdateLogSettings(appCfg *config.AppConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var update config.LogSettingsUpdate
		if err := json.NewDecoder(r.Body).Decode(&update); err != nil {
			httphelpers.RespondError(w, http.StatusBadRequest, "malformed log settings body")
			return
		}
		settings, err := appCfg.UpdateLogSettings(update)
		if err != nil {
			httphelpers.RespondError(w, http.StatusBadRequest, err.Error())
			return
		}
		httphelpers.RespondJSON(w, http.StatusOK, settings)
	}
}
