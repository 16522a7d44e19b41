// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogue

import (
	"context"
	"fmt"
	"net/http"
	"regexp"
	"strconv"

	"github.com/zzackllack/anibridge/internal/domain"
)

var aniworldURLRegex = regexp.MustCompile(`aniworld\.to/anime/stream/([a-z0-9-]+)`)
var aniworldFilmRegex = regexp.MustCompile(`film-(\d+)`)
var aniworldPathRegex = regexp.MustCompile(`/anime/stream/([a-z0-9-]+)`)

// AniWorld adapts aniworld.to: alphabet-page index, no suggest API, and a
// /filme specials page.
type AniWorld struct {
	client  *http.Client
	baseURL string // override for tests / local HTML snapshots
}

// NewAniWorld builds the AniWorld adapter. baseURL defaults to
// "https://aniworld.to" when empty.
func NewAniWorld(client *http.Client, baseURL string) *AniWorld {
	if baseURL == "" {
		baseURL = "https://aniworld.to"
	}
	return &AniWorld{client: client, baseURL: baseURL}
}

func (a *AniWorld) Site() domain.Site { return domain.SiteAniWorld }

func (a *AniWorld) Capabilities() domain.CatalogueAdapter {
	return domain.CatalogueAdapter{
		Site:             domain.SiteAniWorld,
		SupportsIndex:    true,
		SupportsSuggest:  false,
		SupportsSpecials: true,
	}
}

func (a *AniWorld) ExtractSlug(rawURL string) (string, bool) {
	m := aniworldURLRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return normalizeSlug(m[1]), true
}

// FetchIndex walks aniworld.to's A-Z catalogue page, which lists every
// series as an anchor under /anime/stream/<slug>.
func (a *AniWorld) FetchIndex(ctx context.Context) ([]IndexEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.baseURL+"/animes-alphabet", nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aniworld: index fetch: unexpected status %d", resp.StatusCode)
	}

	anchors, err := findAnchors(resp.Body, "/anime/stream/")
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(anchors))
	for _, anc := range anchors {
		m := aniworldPathRegex.FindStringSubmatch(anc.Href)
		if m == nil {
			continue
		}
		entries = append(entries, IndexEntry{
			Slug:           normalizeSlug(m[1]),
			DisplayedTitle: anc.Text,
		})
	}
	return entries, nil
}

func (a *AniWorld) Suggest(ctx context.Context, query string) ([]IndexEntry, error) {
	return nil, errUnsupported(domain.SiteAniWorld, "suggest")
}

// EpisodeURL renders the canonical episode page URL. season=0 addresses a
// /filme special, keyed by film index rather than a season/episode pair.
func (a *AniWorld) EpisodeURL(slug string, season, episode int) string {
	if season == 0 {
		return fmt.Sprintf("%s/anime/stream/%s/filme/film-%d", a.baseURL, slug, episode)
	}
	return fmt.Sprintf("%s/anime/stream/%s/staffel-%d/episode-%d", a.baseURL, slug, season, episode)
}

// FetchProviderLinks fetches the episode page and returns the hoster
// redirect links it lists, grouped by language.
func (a *AniWorld) FetchProviderLinks(ctx context.Context, slug string, season, episode int) (map[string][]ProviderLink, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, a.EpisodeURL(slug, season, episode), nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aniworld: episode page fetch: unexpected status %d", resp.StatusCode)
	}
	return findProviderLinks(resp.Body)
}

// FetchSpecials parses /anime/stream/<slug>/filme into SpecialEntry rows,
// one per film-N anchor.
func (a *AniWorld) FetchSpecials(ctx context.Context, slug string) ([]SpecialEntry, error) {
	url := fmt.Sprintf("%s/anime/stream/%s/filme", a.baseURL, slug)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return nil, nil
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("aniworld: specials fetch: unexpected status %d", resp.StatusCode)
	}

	anchors, err := findAnchors(resp.Body, "film-")
	if err != nil {
		return nil, err
	}

	entries := make([]SpecialEntry, 0, len(anchors))
	for _, anc := range anchors {
		m := aniworldFilmRegex.FindStringSubmatch(anc.Href)
		if m == nil {
			continue
		}
		idx, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		entries = append(entries, SpecialEntry{
			FilmIndex: idx,
			EpisodeID: fmt.Sprintf("film-%d", idx),
			DeTitle:   anc.Text,
		})
	}
	return entries, nil
}
