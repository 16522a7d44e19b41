// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogue

import (
	"context"
	"fmt"
	"net/http"
	"regexp"

	"github.com/zzackllack/anibridge/internal/domain"
)

var megakinoURLRegex = regexp.MustCompile(`megakino\.to/(?:film|serie)/([a-z0-9-]+)`)

// Megakino is search-only: it has no title index, accepts a slug or a URL
// containing one, and performs no fuzzy matching.
type Megakino struct {
	client  *http.Client
	baseURL string
}

// NewMegakino builds the megakino adapter. baseURL defaults to
// "https://megakino.to" when empty.
func NewMegakino(client *http.Client, baseURL string) *Megakino {
	if baseURL == "" {
		baseURL = "https://megakino.to"
	}
	return &Megakino{client: client, baseURL: baseURL}
}

func (m *Megakino) Site() domain.Site { return domain.SiteMegakino }

func (m *Megakino) Capabilities() domain.CatalogueAdapter {
	return domain.CatalogueAdapter{
		Site:             domain.SiteMegakino,
		SupportsIndex:    false,
		SupportsSuggest:  false,
		SupportsSpecials: false,
		SearchOnly:       true,
	}
}

func (m *Megakino) ExtractSlug(rawURL string) (string, bool) {
	matched := megakinoURLRegex.FindStringSubmatch(rawURL)
	if matched == nil {
		return "", false
	}
	return normalizeSlug(matched[1]), true
}

func (m *Megakino) FetchIndex(ctx context.Context) ([]IndexEntry, error) {
	return nil, errUnsupported(domain.SiteMegakino, "index")
}

func (m *Megakino) Suggest(ctx context.Context, query string) ([]IndexEntry, error) {
	return nil, errUnsupported(domain.SiteMegakino, "suggest")
}

func (m *Megakino) FetchSpecials(ctx context.Context, slug string) ([]SpecialEntry, error) {
	return nil, errUnsupported(domain.SiteMegakino, "specials")
}

// EpisodeURL renders the film page URL. Megakino hosts single films, so
// season/episode are ignored beyond identifying the slug.
func (m *Megakino) EpisodeURL(slug string, season, episode int) string {
	return fmt.Sprintf("%s/film/%s", m.baseURL, slug)
}

// FetchProviderLinks fetches the film page and returns the hoster redirect
// links it lists, grouped by language.
func (m *Megakino) FetchProviderLinks(ctx context.Context, slug string, season, episode int) (map[string][]ProviderLink, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, m.EpisodeURL(slug, season, episode), nil)
	if err != nil {
		return nil, err
	}
	resp, err := m.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("megakino: film page fetch: unexpected status %d", resp.StatusCode)
	}
	return findProviderLinks(resp.Body)
}
