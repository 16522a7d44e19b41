// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"fmt"
	"net/http"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
)

// Result is the outcome of probing one episode identity: whether it is
// available and, if so, at what quality and through which provider.
type Result struct {
	Available bool
	Height    int
	VCodec    string
	Provider  string
}

// Resolved is a lighter-weight provider-fallback outcome carrying just the
// direct URL, for callers (download/STRM runners) that don't need quality
// metadata.
type Resolved struct {
	Provider  string
	DirectURL string
}

// mediaAnalyser is the subset of *MediaAnalyser the prober needs, narrowed
// to an interface so tests can substitute a fake rather than shelling out.
type mediaAnalyser interface {
	Analyse(ctx context.Context, mediaURL string) (MediaInfo, error)
}

// Prober resolves one episode identity to playable media: it tries each
// candidate provider in turn, extracting a direct URL and inspecting it with
// the media analyser; the first provider that yields both wins.
type Prober struct {
	catalogue *catalogue.Registry
	providers *Registry
	analyser  mediaAnalyser
	client    *http.Client
}

// NewProber builds a Prober over the configured catalogue adapters and
// provider extractors.
func NewProber(reg *catalogue.Registry, providers *Registry, analyser mediaAnalyser, client *http.Client) *Prober {
	return &Prober{catalogue: reg, providers: providers, analyser: analyser, client: client}
}

// candidateOrder returns the providers to try, in order: the preferred one
// first (if given, whether or not providerOrder lists it), then the rest of
// providerOrder.
func candidateOrder(preferred string, providerOrder []string) []string {
	if preferred == "" {
		return providerOrder
	}
	order := make([]string, 0, len(providerOrder)+1)
	order = append(order, preferred)
	for _, p := range providerOrder {
		if p != preferred {
			order = append(order, p)
		}
	}
	return order
}

// resolve implements the shared provider-fallback loop: fetch the episode
// page's hoster links once, then walk candidates in order, extracting a
// direct URL from the first one whose link is listed for language. When
// accept is non-nil, a direct URL it rejects counts as that provider's
// failure and the walk moves on to the next candidate.
func (p *Prober) resolve(ctx context.Context, id domain.EpisodeIdentity, preferred string, providerOrder []string, accept func(directURL string) error) (catalogue.ProviderLink, string, error) {
	adapter := p.catalogue.Get(id.Site)
	if adapter == nil {
		return catalogue.ProviderLink{}, "", fmt.Errorf("availability: no catalogue adapter configured for site %q", id.Site)
	}

	links, err := adapter.FetchProviderLinks(ctx, id.Slug, id.Season, id.Episode)
	if err != nil {
		return catalogue.ProviderLink{}, "", fmt.Errorf("availability: fetch provider links: %w", err)
	}
	byLanguage := links[id.Language]
	if len(byLanguage) == 0 {
		return catalogue.ProviderLink{}, "", ErrLanguageUnavailable{Identity: id}
	}

	linkByProvider := make(map[string]catalogue.ProviderLink, len(byLanguage))
	for _, l := range byLanguage {
		linkByProvider[l.Provider] = l
	}

	var lastErr error
	for _, name := range candidateOrder(preferred, providerOrder) {
		link, ok := linkByProvider[name]
		if !ok {
			continue
		}
		extractor := p.providers.Get(name)
		if extractor == nil {
			continue
		}
		directURL, err := extractor.Extract(ctx, p.client, link.URL)
		if err != nil {
			lastErr = err
			continue
		}
		if accept != nil {
			if err := accept(directURL); err != nil {
				lastErr = err
				continue
			}
		}
		return link, directURL, nil
	}

	if lastErr == nil {
		lastErr = ErrNoProviderAvailable{Identity: id}
	}
	return catalogue.ProviderLink{}, "", lastErr
}

// Probe resolves a direct URL via provider fallback, then inspects it with
// the media analyser. A provider that extracts a URL but whose stream
// metadata can't be read does not count as a success, and the next candidate
// is tried; the caller's caching layer decides whether and when to retry.
func (p *Prober) Probe(ctx context.Context, id domain.EpisodeIdentity, preferred string, providerOrder []string) Result {
	var info MediaInfo
	link, _, err := p.resolve(ctx, id, preferred, providerOrder, func(directURL string) error {
		var analyseErr error
		info, analyseErr = p.analyser.Analyse(ctx, directURL)
		return analyseErr
	})
	if err != nil {
		return Result{Available: false}
	}

	return Result{
		Available: true,
		Height:    info.Height,
		VCodec:    info.VCodec,
		Provider:  link.Provider,
	}
}

// Resolve performs just the provider-fallback URL extraction, skipping
// media analysis, for runners that need a playable URL but not its quality.
func (p *Prober) Resolve(ctx context.Context, id domain.EpisodeIdentity, preferred string, providerOrder []string) (Resolved, error) {
	link, directURL, err := p.resolve(ctx, id, preferred, providerOrder, nil)
	if err != nil {
		return Resolved{}, err
	}
	return Resolved{Provider: link.Provider, DirectURL: directURL}, nil
}

// ErrLanguageUnavailable means the episode page lists no provider for the
// requested language.
type ErrLanguageUnavailable struct {
	Identity domain.EpisodeIdentity
}

func (e ErrLanguageUnavailable) Error() string {
	return fmt.Sprintf("availability: %s: no provider lists language %q", e.Identity, e.Identity.Language)
}

// ErrNoProviderAvailable means every candidate provider's extractor failed.
type ErrNoProviderAvailable struct {
	Identity domain.EpisodeIdentity
}

func (e ErrNoProviderAvailable) Error() string {
	return fmt.Sprintf("availability: %s: no provider yielded a playable URL", e.Identity)
}
