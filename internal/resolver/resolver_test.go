// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
)

// stubAdapter is a minimal catalogue.Adapter for resolver tests: a canned
// index, optional suggest hits, and the real ExtractSlug regex behaviour of
// whichever site it stands in for.
type stubAdapter struct {
	site         domain.Site
	caps         domain.CatalogueAdapter
	index        []catalogue.IndexEntry
	suggestHits  []catalogue.IndexEntry
	urlPrefix    string
}

func (s *stubAdapter) Site() domain.Site                    { return s.site }
func (s *stubAdapter) Capabilities() domain.CatalogueAdapter { return s.caps }
func (s *stubAdapter) ExtractSlug(rawURL string) (string, bool) {
	if s.urlPrefix == "" || len(rawURL) <= len(s.urlPrefix) || rawURL[:len(s.urlPrefix)] != s.urlPrefix {
		return "", false
	}
	return rawURL[len(s.urlPrefix):], true
}
func (s *stubAdapter) FetchIndex(context.Context) ([]catalogue.IndexEntry, error) { return s.index, nil }
func (s *stubAdapter) Suggest(context.Context, string) ([]catalogue.IndexEntry, error) {
	return s.suggestHits, nil
}
func (s *stubAdapter) FetchSpecials(context.Context, string) ([]catalogue.SpecialEntry, error) {
	return nil, nil
}
func (s *stubAdapter) EpisodeURL(string, int, int) string { return "" }
func (s *stubAdapter) FetchProviderLinks(context.Context, string, int, int) (map[string][]catalogue.ProviderLink, error) {
	return nil, nil
}

func TestResolveRecognisesURLBeforeScoring(t *testing.T) {
	aniworld := &stubAdapter{
		site:      domain.SiteAniWorld,
		caps:      domain.CatalogueAdapter{Site: domain.SiteAniWorld, SupportsIndex: true},
		urlPrefix: "https://aniworld.to/anime/stream/",
	}
	reg := catalogue.NewRegistry(aniworld)
	r := New(reg, time.Hour, false)

	m, ok := r.Resolve(context.Background(), "https://aniworld.to/anime/stream/naruto")
	require.True(t, ok)
	assert.Equal(t, domain.SiteAniWorld, m.Site)
	assert.Equal(t, "naruto", m.Slug)
}

func TestResolveScoresAgainstIndexAndClearsFloor(t *testing.T) {
	aniworld := &stubAdapter{
		site: domain.SiteAniWorld,
		caps: domain.CatalogueAdapter{Site: domain.SiteAniWorld, SupportsIndex: true},
		index: []catalogue.IndexEntry{
			{Slug: "naruto", DisplayedTitle: "Naruto"},
			{Slug: "bleach", DisplayedTitle: "Bleach"},
		},
	}
	reg := catalogue.NewRegistry(aniworld)
	r := New(reg, time.Hour, false)

	m, ok := r.Resolve(context.Background(), "Naruto")
	require.True(t, ok)
	assert.Equal(t, "naruto", m.Slug)
}

func TestResolveFallsBackToStoSuggestWhenScoringFails(t *testing.T) {
	aniworld := &stubAdapter{
		site:  domain.SiteAniWorld,
		caps:  domain.CatalogueAdapter{Site: domain.SiteAniWorld, SupportsIndex: true},
		index: []catalogue.IndexEntry{{Slug: "bleach", DisplayedTitle: "Bleach"}},
	}
	sto := &stubAdapter{
		site:        domain.SiteSTo,
		caps:        domain.CatalogueAdapter{Site: domain.SiteSTo, SupportsIndex: true, SupportsSuggest: true},
		suggestHits: []catalogue.IndexEntry{{Slug: "9-1-1", DisplayedTitle: "9-1-1"}},
	}
	reg := catalogue.NewRegistry(aniworld, sto)
	r := New(reg, time.Hour, false)

	m, ok := r.Resolve(context.Background(), "some completely unrelated query text")
	require.True(t, ok)
	assert.Equal(t, domain.SiteSTo, m.Site)
	assert.Equal(t, "9-1-1", m.Slug)
}

func TestResolveFallsBackToMegakinoWhenNothingElseMatches(t *testing.T) {
	megakino := &stubAdapter{
		site: domain.SiteMegakino,
		caps: domain.CatalogueAdapter{Site: domain.SiteMegakino, SearchOnly: true},
	}
	reg := catalogue.NewRegistry(megakino)
	r := New(reg, time.Hour, false)

	m, ok := r.Resolve(context.Background(), "Some Movie Title")
	require.True(t, ok)
	assert.Equal(t, domain.SiteMegakino, m.Site)
	assert.Equal(t, "some-movie-title", m.Slug)
}

func TestResolveReturnsFalseWhenNoSitesConfigured(t *testing.T) {
	reg := catalogue.NewRegistry()
	r := New(reg, time.Hour, false)

	_, ok := r.Resolve(context.Background(), "anything")
	assert.False(t, ok)
}
