// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package catalogue implements the per-site adapters that back the title
// resolver: building a searchable index from each site's alphabet/landing
// page, recognising slugs embedded in URLs, and listing a series' specials
// page. Each site is a CatalogueAdapter value, not a type hierarchy.
package catalogue

import (
	"context"
	"regexp"
	"strings"

	"github.com/zzackllack/anibridge/internal/domain"
)

// IndexEntry is one row of a site's title index: a slug plus the titles a
// query might match against.
type IndexEntry struct {
	Slug           string
	DisplayedTitle string
	AltTitles      []string
}

// SpecialEntry is one row parsed from a site's specials ("/filme") page.
type SpecialEntry struct {
	FilmIndex int
	EpisodeID string
	DeTitle   string
	AltTitle  string
	Tags      []string
}

// ProviderLink is one hoster redirect a site's episode page lists for a
// given language: the provider id (as it would appear in ProviderOrder) and
// the URL the prober/download runner must follow to reach the hoster.
type ProviderLink struct {
	Provider string
	URL      string
}

// Adapter is the capability surface the resolver, specials mapper and
// runners use. Each site implements the subset its CatalogueAdapter
// descriptor advertises; methods on an unsupported capability return an
// unsupported-capability error rather than panicking.
type Adapter interface {
	Site() domain.Site
	Capabilities() domain.CatalogueAdapter

	// ExtractSlug returns the slug embedded in a URL belonging to this
	// site, or ok=false if the URL does not match this site's pattern.
	ExtractSlug(rawURL string) (slug string, ok bool)

	// FetchIndex builds the full title index from the site's
	// alphabet/catalogue landing page. Only implemented when
	// Capabilities().SupportsIndex is true.
	FetchIndex(ctx context.Context) ([]IndexEntry, error)

	// Suggest calls the site's autocomplete endpoint, if any. Only
	// implemented when Capabilities().SupportsSuggest is true.
	Suggest(ctx context.Context, query string) ([]IndexEntry, error)

	// FetchSpecials parses the /filme (or equivalent) page for a slug.
	// Only implemented when Capabilities().SupportsSpecials is true.
	FetchSpecials(ctx context.Context, slug string) ([]SpecialEntry, error)

	// EpisodeURL renders the canonical episode (or film) page URL for a
	// slug/season/episode pair. Season 0 addresses a /filme special.
	EpisodeURL(slug string, season, episode int) string

	// FetchProviderLinks fetches the episode page and returns, per
	// language, the hoster redirect links it lists. The prober and download
	// runner iterate these to find a working provider for the request.
	FetchProviderLinks(ctx context.Context, slug string, season, episode int) (map[string][]ProviderLink, error)
}

// unsupportedError is returned by an Adapter method whose capability the
// calling site does not advertise.
type unsupportedError struct {
	site domain.Site
	op   string
}

func (e unsupportedError) Error() string {
	return "catalogue: " + string(e.site) + " does not support " + e.op
}

func errUnsupported(site domain.Site, op string) error {
	return unsupportedError{site: site, op: op}
}

// Registry holds one Adapter per configured site, in priority order.
type Registry struct {
	bySite map[domain.Site]Adapter
	order  []domain.Site
}

// NewRegistry builds a Registry from the configured CatalogSites, in the
// order given (the resolver's site priority order).
func NewRegistry(adapters ...Adapter) *Registry {
	r := &Registry{bySite: make(map[domain.Site]Adapter, len(adapters))}
	for _, a := range adapters {
		r.bySite[a.Site()] = a
		r.order = append(r.order, a.Site())
	}
	return r
}

// Get returns the adapter for a site, or nil if not configured.
func (r *Registry) Get(site domain.Site) Adapter {
	return r.bySite[site]
}

// Order returns the configured sites in priority order.
func (r *Registry) Order() []domain.Site {
	return r.order
}

// ExtractSlug tries every configured adapter's URL pattern and returns the
// first match, along with the owning site.
func (r *Registry) ExtractSlug(rawURL string) (domain.Site, string, bool) {
	for _, site := range r.order {
		if slug, ok := r.bySite[site].ExtractSlug(rawURL); ok {
			return site, slug, true
		}
	}
	return "", "", false
}

var slugSanitizeRegex = regexp.MustCompile(`[^a-z0-9-]+`)

// normalizeSlug lowercases and strips anything not already slug-shaped,
// since catalogue URLs are case- and separator-sensitive.
func normalizeSlug(s string) string {
	return slugSanitizeRegex.ReplaceAllString(strings.ToLower(s), "")
}
