// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strmproxy

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
)

func openURLCacheTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	return db
}

func TestURLCacheResolveFallsBackToLiveResolver(t *testing.T) {
	db := openURLCacheTestDB(t)
	store := models.NewStrmUrlMappingStore(db)
	resolver := &stubResolver{urls: []string{"https://cdn.example.com/episode.mp4"}}

	c := NewURLCache(store, resolver, time.Hour, nil)
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"}

	got, provider, err := c.Resolve(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/episode.mp4", got)
	assert.Equal(t, "voe", provider)
	assert.Equal(t, 1, resolver.calls)

	// Second call hits the hot layer, not the resolver again.
	got2, _, err := c.Resolve(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, got, got2)
	assert.Equal(t, 1, resolver.calls)
}

func TestURLCacheResolveUsesDurableMappingBeforeLiveResolve(t *testing.T) {
	db := openURLCacheTestDB(t)
	store := models.NewStrmUrlMappingStore(db)
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 2, Language: "German Dub"}

	require.NoError(t, store.Upsert(context.Background(), &models.StrmUrlMapping{
		Key:          domain.ProviderKey{EpisodeIdentity: id, Provider: ""},
		ResolvedURL:  "https://cdn.example.com/stored.mp4",
		ProviderUsed: "doodstream",
	}))

	resolver := &stubResolver{urls: []string{"https://cdn.example.com/should-not-be-used.mp4"}}
	c := NewURLCache(store, resolver, time.Hour, nil)

	got, provider, err := c.Resolve(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/stored.mp4", got)
	assert.Equal(t, "doodstream", provider)
	assert.Equal(t, 0, resolver.calls)
}

func TestURLCacheRefreshBypassesBothLayers(t *testing.T) {
	db := openURLCacheTestDB(t)
	store := models.NewStrmUrlMappingStore(db)
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 3, Language: "German Dub"}
	resolver := &stubResolver{urls: []string{"https://cdn.example.com/first.mp4", "https://cdn.example.com/second.mp4"}}

	c := NewURLCache(store, resolver, time.Hour, nil)

	_, _, err := c.Resolve(context.Background(), id, "")
	require.NoError(t, err)

	fresh, _, err := c.Refresh(context.Background(), id, "")
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example.com/second.mp4", fresh)
	assert.Equal(t, 2, resolver.calls)
}
