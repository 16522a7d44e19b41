// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogue

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAniWorldExtractSlug(t *testing.T) {
	a := NewAniWorld(http.DefaultClient, "")
	slug, ok := a.ExtractSlug("https://aniworld.to/anime/stream/naruto")
	require.True(t, ok)
	assert.Equal(t, "naruto", slug)

	_, ok = a.ExtractSlug("https://example.com/not-aniworld")
	assert.False(t, ok)
}

func TestAniWorldFetchIndex(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/anime/stream/naruto">Naruto</a>
			<a href="/anime/stream/bleach">Bleach</a>
			<a href="/other">Ignored</a>
		</body></html>`))
	}))
	defer server.Close()

	a := NewAniWorld(server.Client(), server.URL)
	entries, err := a.FetchIndex(context.Background())
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "naruto", entries[0].Slug)
	assert.Equal(t, "Naruto", entries[0].DisplayedTitle)
}

func TestAniWorldFetchSpecials(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<a href="/anime/stream/naruto/film-1">OVA 1</a>
			<a href="/anime/stream/naruto/film-2">OVA 2</a>
		</body></html>`))
	}))
	defer server.Close()

	a := NewAniWorld(server.Client(), server.URL)
	entries, err := a.FetchSpecials(context.Background(), "naruto")
	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, 1, entries[0].FilmIndex)
	assert.Equal(t, "OVA 1", entries[0].DeTitle)
}

func TestAniWorldEpisodeURL(t *testing.T) {
	a := NewAniWorld(http.DefaultClient, "https://aniworld.to")
	assert.Equal(t, "https://aniworld.to/anime/stream/naruto/staffel-1/episode-2", a.EpisodeURL("naruto", 1, 2))
	assert.Equal(t, "https://aniworld.to/anime/stream/naruto/filme/film-3", a.EpisodeURL("naruto", 0, 3))
}

func TestAniWorldFetchProviderLinks(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body>
			<li data-lang-key="1"><a href="/redirect/voe-1"><img alt="VOE"></a></li>
			<li data-lang-key="2"><a href="/redirect/doodstream-1"><img alt="Doodstream"></a></li>
			<li data-lang-key="9"><a href="/redirect/unknown-lang"><img alt="Filemoon"></a></li>
		</body></html>`))
	}))
	defer server.Close()

	a := NewAniWorld(server.Client(), server.URL)
	links, err := a.FetchProviderLinks(context.Background(), "naruto", 1, 2)
	require.NoError(t, err)
	require.Contains(t, links, "German Dub")
	require.Contains(t, links, "English Sub")
	assert.Equal(t, "VOE", links["German Dub"][0].Provider)
	assert.Equal(t, "/redirect/voe-1", links["German Dub"][0].URL)
	assert.NotContains(t, links, "German Sub")
}

func TestSToExtractSlug(t *testing.T) {
	s := NewSTo(http.DefaultClient, "")
	slug, ok := s.ExtractSlug("https://s.to/serie/9-1-1")
	require.True(t, ok)
	assert.Equal(t, "9-1-1", slug)
}

func TestMegakinoIsSearchOnly(t *testing.T) {
	m := NewMegakino(http.DefaultClient, "")
	assert.True(t, m.Capabilities().SearchOnly)

	_, err := m.FetchIndex(context.Background())
	assert.Error(t, err)

	slug, ok := m.ExtractSlug("https://megakino.to/film/some-movie")
	require.True(t, ok)
	assert.Equal(t, "some-movie", slug)
}

func TestRegistryExtractSlugTriesEachAdapterInOrder(t *testing.T) {
	r := NewRegistry(
		NewAniWorld(http.DefaultClient, ""),
		NewSTo(http.DefaultClient, ""),
		NewMegakino(http.DefaultClient, ""),
	)

	site, slug, ok := r.ExtractSlug("https://s.to/serie/9-1-1")
	require.True(t, ok)
	assert.Equal(t, "s.to", string(site))
	assert.Equal(t, "9-1-1", slug)

	_, _, ok = r.ExtractSlug("https://example.com/nothing")
	assert.False(t, ok)
}
