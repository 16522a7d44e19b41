// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"net/http"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
)

type fakeMediaAnalyser struct {
	info MediaInfo
	err  error
}

func (f *fakeMediaAnalyser) Analyse(context.Context, string) (MediaInfo, error) {
	return f.info, f.err
}

func openCacheTestDB(t *testing.T) *database.DB {
	t.Helper()
	dbPath := filepath.Join(t.TempDir(), "test.db")
	db, err := database.New(dbPath)
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestCacheGetProbesOnMissAndCachesResult(t *testing.T) {
	db := openCacheTestDB(t)
	store := models.NewEpisodeAvailabilityStore(db)

	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"}
	adapter := &fakeAdapter{
		site: domain.SiteAniWorld,
		links: map[string][]catalogue.ProviderLink{
			"German Dub": {{Provider: "VOE", URL: "https://aniworld.to/redirect/voe"}},
		},
	}
	reg := catalogue.NewRegistry(adapter)
	providers := NewRegistry(&fakeExtractor{name: "VOE", url: "https://cdn.example/voe.m3u8"})
	prober := NewProber(reg, providers, &fakeMediaAnalyser{info: MediaInfo{Height: 1080, VCodec: "h264"}}, http.DefaultClient)

	cache := NewCache(store, prober, time.Hour, []string{"VOE"})

	result, err := cache.Get(context.Background(), id, "")
	require.NoError(t, err)
	require.True(t, result.Available)
	assert.Equal(t, 1080, *result.Height)
	assert.Equal(t, "VOE", *result.Provider)

	stored, err := store.Get(context.Background(), id)
	require.NoError(t, err)
	assert.True(t, stored.Available)
}

func TestCacheGetReturnsFreshRowWithoutReprobing(t *testing.T) {
	db := openCacheTestDB(t)
	store := models.NewEpisodeAvailabilityStore(db)

	id := domain.EpisodeIdentity{Site: domain.SiteSTo, Slug: "9-1-1", Season: 1, Episode: 1, Language: "German Dub"}
	height := 720
	vcodec := "h264"
	provider := "Filemoon"
	require.NoError(t, store.Upsert(context.Background(), &models.EpisodeAvailability{
		Identity: id, Available: true, Height: &height, VCodec: &vcodec, Provider: &provider,
	}))

	reg := catalogue.NewRegistry() // no adapters: a live probe would error
	providers := NewRegistry()
	prober := NewProber(reg, providers, &fakeMediaAnalyser{}, http.DefaultClient)
	cache := NewCache(store, prober, time.Hour, nil)

	result, err := cache.Get(context.Background(), id, "")
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, 720, *result.Height)
}

func TestCacheGetFallsBackToStaleRowWhenReprobeFails(t *testing.T) {
	db := openCacheTestDB(t)
	store := models.NewEpisodeAvailabilityStore(db)

	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"}
	height := 480
	provider := "VOE"
	require.NoError(t, store.Upsert(context.Background(), &models.EpisodeAvailability{
		Identity: id, Available: true, Height: &height, Provider: &provider,
	}))

	reg := catalogue.NewRegistry() // no adapter configured: resolve always fails
	providers := NewRegistry()
	prober := NewProber(reg, providers, &fakeMediaAnalyser{}, http.DefaultClient)
	cache := NewCache(store, prober, -time.Hour, nil) // negative TTL forces the row stale immediately

	result, err := cache.Get(context.Background(), id, "")
	require.NoError(t, err)
	assert.True(t, result.Available)
	assert.Equal(t, 480, *result.Height)
}

func TestCacheInvalidateForcesReprobe(t *testing.T) {
	db := openCacheTestDB(t)
	store := models.NewEpisodeAvailabilityStore(db)

	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 2, Language: "German Dub"}
	adapter := &fakeAdapter{
		site: domain.SiteAniWorld,
		links: map[string][]catalogue.ProviderLink{
			"German Dub": {{Provider: "VOE", URL: "https://aniworld.to/redirect/voe"}},
		},
	}
	reg := catalogue.NewRegistry(adapter)
	providers := NewRegistry(&fakeExtractor{name: "VOE", url: "https://cdn.example/voe.m3u8"})
	prober := NewProber(reg, providers, &fakeMediaAnalyser{info: MediaInfo{Height: 1080}}, http.DefaultClient)
	cache := NewCache(store, prober, time.Hour, []string{"VOE"})

	_, err := cache.Get(context.Background(), id, "")
	require.NoError(t, err)

	require.NoError(t, cache.Invalidate(context.Background(), id))
	_, err = store.Get(context.Background(), id)
	assert.ErrorIs(t, err, models.ErrEpisodeAvailabilityNotFound)
}
