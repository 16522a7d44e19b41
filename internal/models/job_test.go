// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
)

func openTestDB(t *testing.T) *database.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func newTestJob(id string) *Job {
	return &Job{
		ID:        id,
		Mode:      domain.JobModeDownload,
		Site:      domain.SiteAniWorld,
		Slug:      "some-anime",
		Season:    1,
		Episode:   3,
		Language:  "German",
		Provider:  "VOE",
		TitleHint: "Some Anime",
	}
}

func TestJobStoreCreateAndGet(t *testing.T) {
	store := NewJobStore(openTestDB(t))
	ctx := context.Background()

	job := newTestJob("job-1")
	require.NoError(t, store.Create(ctx, job))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusQueued, got.Status)
	assert.Equal(t, "some-anime", got.Slug)
	assert.Equal(t, 1, got.Season)
	assert.Equal(t, 3, got.Episode)
	assert.Nil(t, got.AbsoluteNumber)
}

func TestJobStoreGetMissingReturnsNotFound(t *testing.T) {
	store := NewJobStore(openTestDB(t))
	_, err := store.Get(context.Background(), "does-not-exist")
	assert.ErrorIs(t, err, ErrJobNotFound)
}

func TestJobStoreListFiltersByStatus(t *testing.T) {
	store := NewJobStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestJob("job-queued")))
	downloading := newTestJob("job-downloading")
	require.NoError(t, store.Create(ctx, downloading))
	require.NoError(t, store.TransitionStatus(ctx, "job-downloading", domain.JobStatusDownloading, "", ""))

	queued, err := store.List(ctx, domain.JobStatusQueued)
	require.NoError(t, err)
	require.Len(t, queued, 1)
	assert.Equal(t, "job-queued", queued[0].ID)

	all, err := store.List(ctx, "")
	require.NoError(t, err)
	assert.Len(t, all, 2)
}

func TestJobStoreUpdateProgress(t *testing.T) {
	store := NewJobStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestJob("job-1")))
	require.NoError(t, store.UpdateProgress(ctx, "job-1", 42.5, 1024, 2048, 512, 2, "downloading"))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.InDelta(t, 42.5, got.ProgressPercent, 0.001)
	assert.Equal(t, int64(1024), got.DownloadedBytes)
	assert.Equal(t, "downloading", got.Message)
}

func TestJobStoreTransitionStatusEnforcesLifecycle(t *testing.T) {
	store := NewJobStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestJob("job-1")))

	require.NoError(t, store.TransitionStatus(ctx, "job-1", domain.JobStatusDownloading, "starting", ""))
	require.NoError(t, store.TransitionStatus(ctx, "job-1", domain.JobStatusCompleted, "done", "/downloads/episode.mkv"))

	got, err := store.Get(ctx, "job-1")
	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusCompleted, got.Status)
	assert.Equal(t, "/downloads/episode.mkv", got.ResultPath)

	err = store.TransitionStatus(ctx, "job-1", domain.JobStatusDownloading, "retry", "")
	assert.Error(t, err)
}

func TestJobStoreDelete(t *testing.T) {
	store := NewJobStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, newTestJob("job-1")))
	require.NoError(t, store.Delete(ctx, "job-1"))

	_, err := store.Get(ctx, "job-1")
	assert.ErrorIs(t, err, ErrJobNotFound)

	assert.ErrorIs(t, store.Delete(ctx, "job-1"), ErrJobNotFound)
}
