// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package qbtapi

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/magnet"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/scheduler"
)

// blockingRunner holds every job until release is closed, so tests can
// observe pre-terminal torrent states deterministically.
type blockingRunner struct {
	release chan struct{}
	once    sync.Once
}

func newBlockingRunner() *blockingRunner {
	return &blockingRunner{release: make(chan struct{})}
}

func (r *blockingRunner) Run(ctx context.Context, job *models.Job, progress scheduler.ProgressFunc) (string, error) {
	select {
	case <-r.release:
		return "/downloads/result.mkv", nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (r *blockingRunner) Release() {
	r.once.Do(func() { close(r.release) })
}

func newTestHandler(t *testing.T) (*Handler, *models.JobStore, *models.ClientTaskStore, *blockingRunner, *httptest.Server) {
	t.Helper()

	db, err := database.New(filepath.Join(t.TempDir(), "qbtapi-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	jobs := models.NewJobStore(db)
	tasks := models.NewClientTaskStore(db)
	runner := newBlockingRunner()

	sched := scheduler.New(jobs, tasks, runner, scheduler.Config{
		MaxConcurrency:             2,
		CleanupScanIntervalMinutes: 60,
		DownloadsTTLHours:          1,
	})
	// Cleanups run last-registered-first: unblock the runner, then wait for
	// dispatched goroutines to drain before the database closes underneath
	// them.
	t.Cleanup(sched.Stop)
	t.Cleanup(runner.Release)

	h := NewHandler(sched, jobs, tasks, Config{SavePath: "/downloads"})
	router := chi.NewRouter()
	h.Routes(router)
	srv := httptest.NewServer(router)
	t.Cleanup(srv.Close)

	return h, jobs, tasks, runner, srv
}

func testMagnet(abs *int) (string, string) {
	identity := domain.EpisodeIdentity{
		Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub",
	}
	payload := magnet.Payload{
		Identity:       identity,
		Provider:       "VOE",
		Mode:           domain.JobModeDownload,
		DisplayName:    "Naruto.S01E01.1080p.WEB.H264.GER-ANIWORLD",
		SizeBytes:      1 << 30,
		AbsoluteNumber: abs,
	}
	return magnet.Encode(payload), magnet.InfoHash(identity, "VOE", domain.JobModeDownload)
}

func postForm(t *testing.T, srv *httptest.Server, path string, form url.Values) (*http.Response, string) {
	t.Helper()
	resp, err := srv.Client().PostForm(srv.URL+path, form)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	return resp, string(body)
}

func TestLoginAcceptsAnyCredentialsAndSetsCookie(t *testing.T) {
	_, _, _, _, srv := newTestHandler(t)

	resp, body := postForm(t, srv, "/api/v2/auth/login", url.Values{
		"username": {"whoever"}, "password": {"whatever"},
	})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok.", body)

	var sid *http.Cookie
	for _, c := range resp.Cookies() {
		if c.Name == "SID" {
			sid = c
		}
	}
	require.NotNil(t, sid, "login must set the SID cookie")
	assert.NotEmpty(t, sid.Value)
}

func TestAddCreatesJobAndClientTask(t *testing.T) {
	_, jobs, tasks, _, srv := newTestHandler(t)
	magnetURI, infoHash := testMagnet(nil)

	resp, body := postForm(t, srv, "/api/v2/torrents/add", url.Values{"urls": {magnetURI}})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Ok.", body)

	task, err := tasks.Get(context.Background(), infoHash)
	require.NoError(t, err)
	assert.Equal(t, "naruto", task.Slug)
	assert.Equal(t, domain.SiteAniWorld, task.Site)
	assert.Equal(t, "/downloads", task.SavePath)

	job, err := jobs.Get(context.Background(), task.JobID)
	require.NoError(t, err)
	assert.Contains(t, []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusDownloading}, job.Status)
	assert.Equal(t, 1, job.Season)
	assert.Equal(t, 1, job.Episode)
	assert.Equal(t, "German Dub", job.Language)
}

func TestAddSameMagnetTwiceIsDeduped(t *testing.T) {
	_, _, tasks, _, srv := newTestHandler(t)
	magnetURI, _ := testMagnet(nil)

	for i := 0; i < 2; i++ {
		resp, body := postForm(t, srv, "/api/v2/torrents/add", url.Values{"urls": {magnetURI}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Ok.", body)
	}

	all, err := tasks.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func TestAddRejectsBodyWithoutValidMagnet(t *testing.T) {
	_, _, _, _, srv := newTestHandler(t)

	resp, _ := postForm(t, srv, "/api/v2/torrents/add", url.Values{"urls": {"http://not-a-magnet"}})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestInfoProjectsAbsoluteNumbering(t *testing.T) {
	_, _, _, _, srv := newTestHandler(t)
	abs := 220
	magnetURI, infoHash := testMagnet(&abs)

	_, body := postForm(t, srv, "/api/v2/torrents/add", url.Values{"urls": {magnetURI}})
	require.Equal(t, "Ok.", body)

	resp, err := srv.Client().Get(srv.URL + "/api/v2/torrents/info")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var torrents []torrentDTO
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&torrents))
	require.Len(t, torrents, 1)

	got := torrents[0]
	assert.Equal(t, infoHash, got.Hash)
	assert.True(t, strings.HasPrefix(got.Name, "[ABS 220] "), "name %q must carry the ABS prefix", got.Name)
	require.NotNil(t, got.AnibridgeAbsolute)
	assert.Equal(t, 220, *got.AnibridgeAbsolute)
	assert.Contains(t, []string{string(stateQueuedDL), string(stateDownloading)}, got.State)
}

func TestDeleteIsIdempotent(t *testing.T) {
	_, jobs, tasks, runner, srv := newTestHandler(t)
	magnetURI, infoHash := testMagnet(nil)

	_, body := postForm(t, srv, "/api/v2/torrents/add", url.Values{"urls": {magnetURI}})
	require.Equal(t, "Ok.", body)

	task, err := tasks.Get(context.Background(), infoHash)
	require.NoError(t, err)

	runner.Release()
	require.Eventually(t, func() bool {
		j, err := jobs.Get(context.Background(), task.JobID)
		return err == nil && j.Status == domain.JobStatusCompleted
	}, 5*time.Second, 10*time.Millisecond)

	for i := 0; i < 2; i++ {
		resp, body := postForm(t, srv, "/api/v2/torrents/delete", url.Values{"hashes": {infoHash}})
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "Ok.", body)
	}

	_, err = tasks.Get(context.Background(), infoHash)
	assert.ErrorIs(t, err, models.ErrClientTaskNotFound)
}

func TestMaindataContainsAddedTorrent(t *testing.T) {
	_, _, _, _, srv := newTestHandler(t)
	magnetURI, infoHash := testMagnet(nil)

	_, body := postForm(t, srv, "/api/v2/torrents/add", url.Values{"urls": {magnetURI}})
	require.Equal(t, "Ok.", body)

	resp, err := srv.Client().Get(srv.URL + "/api/v2/sync/maindata?rid=0")
	require.NoError(t, err)
	defer resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)

	var snapshot struct {
		Rid        int64                  `json:"rid"`
		FullUpdate bool                   `json:"full_update"`
		Torrents   map[string]torrentDTO  `json:"torrents"`
		Categories map[string]categoryDTO `json:"categories"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&snapshot))

	assert.True(t, snapshot.FullUpdate)
	assert.Equal(t, int64(1), snapshot.Rid)
	require.Contains(t, snapshot.Torrents, infoHash)
	assert.Contains(t, snapshot.Categories, "")
}
