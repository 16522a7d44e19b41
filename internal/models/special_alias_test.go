// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/domain"
)

func TestSpecialAliasStoreUpsertAndGet(t *testing.T) {
	store := NewSpecialAliasStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SpecialAlias{
		Site:          domain.SiteAniWorld,
		Slug:          "some-anime",
		FilmIndex:     2,
		SourceEpisode: 2,
		AliasSeason:   1,
		AliasEpisode:  13,
		DeTitle:       "OVA 2",
	}))

	got, err := store.Get(ctx, domain.SiteAniWorld, "some-anime", 2)
	require.NoError(t, err)
	assert.Equal(t, 1, got.AliasSeason)
	assert.Equal(t, 13, got.AliasEpisode)
	assert.Equal(t, "OVA 2", got.DeTitle)
}

func TestSpecialAliasStoreGetMissing(t *testing.T) {
	store := NewSpecialAliasStore(openTestDB(t))
	_, err := store.Get(context.Background(), domain.SiteAniWorld, "some-anime", 1)
	assert.ErrorIs(t, err, ErrSpecialAliasNotFound)
}

func TestSpecialAliasStoreListBySeries(t *testing.T) {
	store := NewSpecialAliasStore(openTestDB(t))
	ctx := context.Background()

	require.NoError(t, store.Upsert(ctx, &SpecialAlias{Site: domain.SiteAniWorld, Slug: "some-anime", FilmIndex: 1, SourceEpisode: 1, AliasSeason: 1, AliasEpisode: 12}))
	require.NoError(t, store.Upsert(ctx, &SpecialAlias{Site: domain.SiteAniWorld, Slug: "some-anime", FilmIndex: 2, SourceEpisode: 2, AliasSeason: 1, AliasEpisode: 13}))

	aliases, err := store.ListBySeries(ctx, domain.SiteAniWorld, "some-anime")
	require.NoError(t, err)
	require.Len(t, aliases, 2)
	assert.Equal(t, 1, aliases[0].FilmIndex)
	assert.Equal(t, 2, aliases[1].FilmIndex)
}
