// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package specials implements the alias mapper: resolving AniWorld/s.to
// "/filme" specials (OVAs, movies, recaps numbered only by film position)
// to the canonical (season, episode) pair the rest of the engine, and the
// importing client, address them by. It consults a single external
// Sonarr-compatible metadata service for the canonical episode list and
// falls back to matching directly against catalogue special titles when
// the service has no opinion.
package specials

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/zzackllack/anibridge/internal/httpclient"
)

// CanonicalEpisode is one row of a series' canonical episode list, as
// reported by the metadata service. AbsoluteEpisodeNumber is Sonarr's own
// anime-series field and is the source data EpisodeNumberMapping rows are
// lazily populated from.
type CanonicalEpisode struct {
	SeasonNumber          int    `json:"seasonNumber"`
	EpisodeNumber         int    `json:"episodeNumber"`
	AbsoluteEpisodeNumber int    `json:"absoluteEpisodeNumber"`
	Title                 string `json:"title"`
}

// MetadataClient talks to a single configured Sonarr-compatible metadata
// service (v3 "series"/"episode" endpoints) to resolve a series' canonical
// episode list. The API key is held decrypted for the client's lifetime.
type MetadataClient struct {
	client  *http.Client
	baseURL string
	apiKey  string
}

// NewMetadataClient builds a client against baseURL using the shared
// outbound http.Client. apiKey is the already-decrypted secret (see
// domain.DecryptSecret); an empty baseURL disables the client, and callers
// must check Configured before use.
func NewMetadataClient(client *http.Client, baseURL, apiKey string) *MetadataClient {
	return &MetadataClient{client: client, baseURL: strings.TrimRight(baseURL, "/"), apiKey: apiKey}
}

// Configured reports whether a metadata service base URL was supplied.
// Without one, the mapper falls back to catalogue-only matching.
func (m *MetadataClient) Configured() bool {
	return m != nil && m.baseURL != ""
}

// LookupSeriesID resolves a free-text title to a Sonarr series id via the
// service's search endpoint, returning the first hit.
func (m *MetadataClient) LookupSeriesID(ctx context.Context, title string) (int, error) {
	if !m.Configured() {
		return 0, fmt.Errorf("specials: metadata service not configured")
	}

	endpoint := fmt.Sprintf("%s/api/v3/series/lookup?term=%s", m.baseURL, url.QueryEscape(title))
	var hits []struct {
		ID int `json:"id"`
	}
	if err := m.getJSON(ctx, endpoint, &hits); err != nil {
		return 0, err
	}
	if len(hits) == 0 {
		return 0, fmt.Errorf("specials: no metadata match for %q", title)
	}
	return hits[0].ID, nil
}

// Episodes returns the canonical episode list for a series id.
func (m *MetadataClient) Episodes(ctx context.Context, seriesID int) ([]CanonicalEpisode, error) {
	if !m.Configured() {
		return nil, fmt.Errorf("specials: metadata service not configured")
	}

	endpoint := fmt.Sprintf("%s/api/v3/episode?seriesId=%d", m.baseURL, seriesID)
	var episodes []CanonicalEpisode
	if err := m.getJSON(ctx, endpoint, &episodes); err != nil {
		return nil, err
	}
	return episodes, nil
}

func (m *MetadataClient) getJSON(ctx context.Context, endpoint string, out interface{}) error {
	resp, err := httpclient.Get(ctx, m.client, m.withAuth(endpoint), 3)
	if err != nil {
		return fmt.Errorf("specials: metadata request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("specials: metadata service returned %d", resp.StatusCode)
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// withAuth appends the api key as a query parameter, matching Sonarr's own
// accepted auth convention (in addition to the X-Api-Key header).
func (m *MetadataClient) withAuth(endpoint string) string {
	sep := "?"
	if strings.Contains(endpoint, "?") {
		sep = "&"
	}
	return fmt.Sprintf("%s%sapikey=%s", endpoint, sep, url.QueryEscape(m.apiKey))
}

