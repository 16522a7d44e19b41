// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package availability implements the quality prober and its TTL cache: for
// one episode identity it walks the configured provider order, asking each
// provider's extractor to turn a catalogue hoster-redirect link into a direct
// media URL, then inspects the result with an out-of-process media analyser.
// Results are cached so repeated resolves within AvailabilityTtl skip the
// live round-trip.
package availability

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"regexp"
)

// Extractor turns a hoster's redirect/embed page into a direct media URL
// (an .mp4 file or an HLS .m3u8 playlist). Each provider in ProviderOrder
// has one.
type Extractor interface {
	// Name is the provider id as it appears in ProviderOrder (e.g. "VOE").
	Name() string

	// Extract fetches pageURL and returns the direct media URL it embeds.
	Extract(ctx context.Context, client *http.Client, pageURL string) (string, error)
}

// Registry maps a provider id to its extractor, case-sensitively matching
// ProviderOrder entries and the aw_provider/sto_provider magnet parameter.
type Registry struct {
	byName map[string]Extractor
}

// NewRegistry builds a Registry from the supplied extractors.
func NewRegistry(extractors ...Extractor) *Registry {
	r := &Registry{byName: make(map[string]Extractor, len(extractors))}
	for _, e := range extractors {
		r.byName[e.Name()] = e
	}
	return r
}

// DefaultRegistry builds the registry covering the four hosters
// AniWorld/s.to commonly list, matching the default ProviderOrder.
func DefaultRegistry() *Registry {
	return NewRegistry(&voeExtractor{}, &filemoonExtractor{}, &doodstreamExtractor{}, &vidozaExtractor{})
}

// Get returns the extractor registered for name, or nil if none is.
func (r *Registry) Get(name string) Extractor {
	return r.byName[name]
}

var directMediaURLPattern = regexp.MustCompile(`https?://[^\s'"<>\\]+?\.(?:m3u8|mp4)(?:\?[^\s'"<>\\]*)?`)

// fetchPage performs a bounded GET and returns the response body as a
// string, the shared shape every provider extractor starts from.
func fetchPage(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return "", err
	}
	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("extractor: fetch %s: unexpected status %d", pageURL, resp.StatusCode)
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4<<20))
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// findDirectMediaURL searches page content for the first embedded .m3u8/.mp4
// URL, the fallback every provider extractor reaches for when its
// provider-specific pattern doesn't match.
func findDirectMediaURL(body string) (string, bool) {
	m := directMediaURLPattern.FindString(body)
	return m, m != ""
}

// ErrNoDirectURL is returned when a page was fetched successfully but no
// direct media URL could be located in it.
type ErrNoDirectURL struct {
	Provider string
	PageURL  string
}

func (e ErrNoDirectURL) Error() string {
	return fmt.Sprintf("%s: no direct media URL found on %s", e.Provider, e.PageURL)
}
