// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogue

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"github.com/zzackllack/anibridge/internal/domain"
)

var stoURLRegex = regexp.MustCompile(`s\.to/serie/([a-z0-9-]+)`)

// STo adapts s.to's v2 layout: "/serien?by=alpha" catalogue index, slug
// form "/serie/<slug>", plus a JSON suggest/autocomplete endpoint used as
// the resolver's fallback when scoring fails to clear the threshold.
type STo struct {
	client  *http.Client
	baseURL string
}

// NewSTo builds the s.to adapter. baseURL defaults to "https://s.to" when
// empty.
func NewSTo(client *http.Client, baseURL string) *STo {
	if baseURL == "" {
		baseURL = "https://s.to"
	}
	return &STo{client: client, baseURL: baseURL}
}

func (s *STo) Site() domain.Site { return domain.SiteSTo }

func (s *STo) Capabilities() domain.CatalogueAdapter {
	return domain.CatalogueAdapter{
		Site:             domain.SiteSTo,
		SupportsIndex:    true,
		SupportsSuggest:  true,
		SupportsSpecials: false,
	}
}

func (s *STo) ExtractSlug(rawURL string) (string, bool) {
	m := stoURLRegex.FindStringSubmatch(rawURL)
	if m == nil {
		return "", false
	}
	return normalizeSlug(m[1]), true
}

// FetchIndex walks s.to's alphabetical series listing.
func (s *STo) FetchIndex(ctx context.Context) ([]IndexEntry, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.baseURL+"/serien?by=alpha", nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("s.to: index fetch: unexpected status %d", resp.StatusCode)
	}

	anchors, err := findAnchors(resp.Body, "/serie/")
	if err != nil {
		return nil, err
	}

	entries := make([]IndexEntry, 0, len(anchors))
	for _, anc := range anchors {
		m := stoURLRegex.FindStringSubmatch(anc.Href)
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

type stoSuggestEntry struct {
	Slug  string `json:"link"`
	Title string `json:"title"`
}

// Suggest calls s.to's suggest endpoint with the original query and returns
// its hits, ranked as the endpoint returned them (the resolver takes the
// first one as the fallback match).
func (s *STo) Suggest(ctx context.Context, query string) ([]IndexEntry, error) {
	endpoint := fmt.Sprintf("%s/ajax/search?keyword=%s", s.baseURL, url.QueryEscape(query))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("s.to: suggest: unexpected status %d", resp.StatusCode)
	}

	var hits []stoSuggestEntry
	if err := json.NewDecoder(resp.Body).Decode(&hits); err != nil {
		return nil, fmt.Errorf("s.to: suggest: decode: %w", err)
	}

	entries := make([]IndexEntry, 0, len(hits))
	for _, h := range hits {
		m := stoURLRegex.FindStringSubmatch(h.Slug)
		slug := h.Slug
		if m != nil {
			slug = m[1]
		}
		entries = append(entries, IndexEntry{Slug: normalizeSlug(slug), DisplayedTitle: h.Title})
	}
	return entries, nil
}

func (s *STo) FetchSpecials(ctx context.Context, slug string) ([]SpecialEntry, error) {
	return nil, errUnsupported(domain.SiteSTo, "specials")
}

// EpisodeURL renders the canonical episode page URL for s.to's v2 layout.
func (s *STo) EpisodeURL(slug string, season, episode int) string {
	return fmt.Sprintf("%s/serie/stream/%s/staffel-%d/episode-%d", s.baseURL, slug, season, episode)
}

// FetchProviderLinks fetches the episode page and returns the hoster
// redirect links it lists, grouped by language.
func (s *STo) FetchProviderLinks(ctx context.Context, slug string, season, episode int) (map[string][]ProviderLink, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.EpisodeURL(slug, season, episode), nil)
	if err != nil {
		return nil, err
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("s.to: episode page fetch: unexpected status %d", resp.StatusCode)
	}
	return findProviderLinks(resp.Body)
}
