// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"errors"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
)

// fakeAdapter is a minimal catalogue.Adapter stub that returns a fixed set
// of provider links regardless of the requested slug/season/episode.
type fakeAdapter struct {
	site  domain.Site
	links map[string][]catalogue.ProviderLink
	err   error
}

func (f *fakeAdapter) Site() domain.Site                      { return f.site }
func (f *fakeAdapter) Capabilities() domain.CatalogueAdapter   { return domain.CatalogueAdapter{Site: f.site} }
func (f *fakeAdapter) ExtractSlug(string) (string, bool)       { return "", false }
func (f *fakeAdapter) FetchIndex(context.Context) ([]catalogue.IndexEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) Suggest(context.Context, string) ([]catalogue.IndexEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchSpecials(context.Context, string) ([]catalogue.SpecialEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) EpisodeURL(slug string, season, episode int) string { return "episode-url" }
func (f *fakeAdapter) FetchProviderLinks(context.Context, string, int, int) (map[string][]catalogue.ProviderLink, error) {
	if f.err != nil {
		return nil, f.err
	}
	return f.links, nil
}

// fakeExtractor returns a fixed direct URL or error for one provider name.
type fakeExtractor struct {
	name string
	url  string
	err  error
}

func (f *fakeExtractor) Name() string { return f.name }
func (f *fakeExtractor) Extract(context.Context, *http.Client, string) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return f.url, nil
}

func TestProberResolvePrefersPreferredProvider(t *testing.T) {
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"}
	adapter := &fakeAdapter{
		site: domain.SiteAniWorld,
		links: map[string][]catalogue.ProviderLink{
			"German Dub": {
				{Provider: "VOE", URL: "https://aniworld.to/redirect/voe"},
				{Provider: "Filemoon", URL: "https://aniworld.to/redirect/filemoon"},
			},
		},
	}
	reg := catalogue.NewRegistry(adapter)
	providers := NewRegistry(
		&fakeExtractor{name: "VOE", url: "https://cdn.example/voe.m3u8"},
		&fakeExtractor{name: "Filemoon", url: "https://cdn.example/filemoon.m3u8"},
	)

	p := NewProber(reg, providers, NewMediaAnalyser("ffprobe", 0), http.DefaultClient)
	resolved, err := p.Resolve(context.Background(), id, "Filemoon", []string{"VOE", "Filemoon"})
	require.NoError(t, err)
	assert.Equal(t, "Filemoon", resolved.Provider)
	assert.Equal(t, "https://cdn.example/filemoon.m3u8", resolved.DirectURL)
}

func TestProberResolveFallsBackWhenPreferredFails(t *testing.T) {
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"}
	adapter := &fakeAdapter{
		site: domain.SiteAniWorld,
		links: map[string][]catalogue.ProviderLink{
			"German Dub": {
				{Provider: "VOE", URL: "https://aniworld.to/redirect/voe"},
				{Provider: "Filemoon", URL: "https://aniworld.to/redirect/filemoon"},
			},
		},
	}
	reg := catalogue.NewRegistry(adapter)
	providers := NewRegistry(
		&fakeExtractor{name: "VOE", err: errors.New("voe down")},
		&fakeExtractor{name: "Filemoon", url: "https://cdn.example/filemoon.m3u8"},
	)

	p := NewProber(reg, providers, NewMediaAnalyser("ffprobe", 0), http.DefaultClient)
	resolved, err := p.Resolve(context.Background(), id, "VOE", []string{"VOE", "Filemoon"})
	require.NoError(t, err)
	assert.Equal(t, "Filemoon", resolved.Provider)
}

func TestProberResolveNoLanguageMatchReturnsError(t *testing.T) {
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "English Sub"}
	adapter := &fakeAdapter{
		site: domain.SiteAniWorld,
		links: map[string][]catalogue.ProviderLink{
			"German Dub": {{Provider: "VOE", URL: "https://aniworld.to/redirect/voe"}},
		},
	}
	reg := catalogue.NewRegistry(adapter)
	providers := NewRegistry(&fakeExtractor{name: "VOE", url: "https://cdn.example/voe.m3u8"})

	p := NewProber(reg, providers, NewMediaAnalyser("ffprobe", 0), http.DefaultClient)
	_, err := p.Resolve(context.Background(), id, "", []string{"VOE"})
	require.Error(t, err)
	var noLang ErrLanguageUnavailable
	assert.ErrorAs(t, err, &noLang)
}

func TestProberProbeUnavailableWhenNoCatalogueAdapter(t *testing.T) {
	id := domain.EpisodeIdentity{Site: domain.SiteSTo, Slug: "missing", Season: 1, Episode: 1, Language: "German Dub"}
	reg := catalogue.NewRegistry() // no adapters configured
	providers := NewRegistry()

	p := NewProber(reg, providers, NewMediaAnalyser("ffprobe", 0), http.DefaultClient)
	result := p.Probe(context.Background(), id, "", nil)
	assert.False(t, result.Available)
}
