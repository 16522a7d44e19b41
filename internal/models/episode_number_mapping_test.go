// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEpisodeNumberMappingStoreUpsertAndLookups(t *testing.T) {
	store := NewEpisodeNumberMappingStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &EpisodeNumberMapping{
		SeriesSlug:     "some-anime",
		AbsoluteNumber: 13,
		Season:         2,
		Episode:        1,
		Title:          "New Arc",
	}))

	byAbs, err := store.ByAbsoluteNumber(ctx, "some-anime", 13)
	require.NoError(t, err)
	assert.Equal(t, 2, byAbs.Season)
	assert.Equal(t, 1, byAbs.Episode)

	bySeasonEpisode, err := store.BySeasonEpisode(ctx, "some-anime", 2, 1)
	require.NoError(t, err)
	assert.Equal(t, 13, bySeasonEpisode.AbsoluteNumber)

	require.NoError(t, store.Upsert(ctx, &EpisodeNumberMapping{
		SeriesSlug:     "some-anime",
		AbsoluteNumber: 13,
		Season:         2,
		Episode:        1,
		Title:          "New Arc (retitled)",
	}))
	byAbs, err = store.ByAbsoluteNumber(ctx, "some-anime", 13)
	require.NoError(t, err)
	assert.Equal(t, "New Arc (retitled)", byAbs.Title)
}

func TestEpisodeNumberMappingStoreByAbsoluteNumberMissing(t *testing.T) {
	store := NewEpisodeNumberMappingStore(openTestDB(t))
	_, err := store.ByAbsoluteNumber(context.Background(), "some-anime", 99)
	assert.ErrorIs(t, err, ErrEpisodeNumberMappingNotFound)
}

func TestEpisodeNumberMappingStoreListBySeries(t *testing.T) {
	store := NewEpisodeNumberMappingStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &EpisodeNumberMapping{SeriesSlug: "some-anime", AbsoluteNumber: 1, Season: 1, Episode: 1}))
	require.NoError(t, store.Upsert(ctx, &EpisodeNumberMapping{SeriesSlug: "some-anime", AbsoluteNumber: 2, Season: 1, Episode: 2}))
	require.NoError(t, store.Upsert(ctx, &EpisodeNumberMapping{SeriesSlug: "other-anime", AbsoluteNumber: 1, Season: 1, Episode: 1}))

	mappings, err := store.ListBySeries(ctx, "some-anime")
	require.NoError(t, err)
	require.Len(t, mappings, 2)
	assert.Equal(t, 1, mappings[0].AbsoluteNumber)
	assert.Equal(t, 2, mappings[1].AbsoluteNumber)
}
