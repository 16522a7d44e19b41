// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
)

// Match is a resolved (site, slug) pair plus the score that won, kept mainly
// for debug logging and tests.
type Match struct {
	Site  domain.Site
	Slug  string
	Score float64
}

// Resolver maps free-text queries and catalogue URLs to a (site, slug) pair.
type Resolver struct {
	registry        *catalogue.Registry
	indices         *indexSet
	indexRefresh    time.Duration
	confidenceFloor float64
	debug           bool
}

// New builds a Resolver over the configured catalogue registry.
// indexRefresh is the configured IndexRefreshHours, converted to a duration.
func New(registry *catalogue.Registry, indexRefresh time.Duration, debug bool) *Resolver {
	return &Resolver{
		registry:        registry,
		indices:         newIndexSet(),
		indexRefresh:    indexRefresh,
		confidenceFloor: ConfidenceFloor,
		debug:           debug,
	}
}

// Resolve maps a free-text query or catalogue URL to (site, slug). It never
// returns an error: a failed resolution is reported as ok=false.
func (r *Resolver) Resolve(ctx context.Context, query string) (Match, bool) {
	if site, slug, ok := r.registry.ExtractSlug(query); ok {
		return Match{Site: site, Slug: slug, Score: -1}, true
	}

	best, ok := r.bestFuzzyMatch(ctx, query)
	if ok && best.Score >= r.confidenceFloor {
		return best, true
	}

	if m, ok := r.suggestFallback(ctx, query); ok {
		return m, true
	}

	if m, ok := r.megakinoFallback(query); ok {
		return m, true
	}

	return Match{}, false
}

// bestFuzzyMatch scores query against every indexable site's title index,
// in the registry's configured priority order, and returns the best overall
// candidate.
func (r *Resolver) bestFuzzyMatch(ctx context.Context, query string) (Match, bool) {
	var best Match
	found := false

	for _, site := range r.registry.Order() {
		adapter := r.registry.Get(site)
		if adapter == nil || !adapter.Capabilities().SupportsIndex {
			continue
		}

		idx := r.indices.get(site)
		idx.ensureFresh(ctx, adapter, r.indexRefresh)

		for _, entry := range idx.snapshot() {
			titles := append([]string{entry.DisplayedTitle}, entry.AltTitles...)
			scores := bestTitleScore(query, titles)

			if r.debug {
				log.Debug().
					Str("site", string(site)).
					Str("slug", entry.Slug).
					Str("query", query).
					Float64("exact", scores.Exact).
					Float64("substring", scores.Substring).
					Float64("token_f1", scores.TokenF1).
					Float64("precision", scores.Precision).
					Float64("recall", scores.Recall).
					Float64("sequence", scores.Sequence).
					Float64("total", scores.Total).
					Msg("resolver candidate score")
			}

			if !found || scores.Total > best.Score {
				best = Match{Site: site, Slug: entry.Slug, Score: scores.Total}
				found = true
			}
		}
	}

	return best, found
}

// suggestFallback calls s.to's suggest endpoint (the only configured site
// that supports one) and accepts its first hit.
func (r *Resolver) suggestFallback(ctx context.Context, query string) (Match, bool) {
	adapter := r.registry.Get(domain.SiteSTo)
	if adapter == nil || !adapter.Capabilities().SupportsSuggest {
		return Match{}, false
	}

	hits, err := adapter.Suggest(ctx, query)
	if err != nil || len(hits) == 0 {
		return Match{}, false
	}
	return Match{Site: domain.SiteSTo, Slug: hits[0].Slug, Score: r.confidenceFloor}, true
}

// megakinoFallback treats the query as a megakino slug candidate when every
// other strategy failed and megakino is configured.
func (r *Resolver) megakinoFallback(query string) (Match, bool) {
	adapter := r.registry.Get(domain.SiteMegakino)
	if adapter == nil || !adapter.Capabilities().SearchOnly {
		return Match{}, false
	}

	if slug, ok := adapter.ExtractSlug(query); ok {
		return Match{Site: domain.SiteMegakino, Slug: slug, Score: r.confidenceFloor}, true
	}
	return Match{Site: domain.SiteMegakino, Slug: slugifyQuery(query), Score: r.confidenceFloor}, true
}

// slugifyQuery turns a free-text query into a best-effort slug candidate
// for the search-only megakino fallback, which has no title index to score
// against.
func slugifyQuery(query string) string {
	lowered := strings.ToLower(strings.TrimSpace(query))
	return strings.Join(strings.Fields(strings.ReplaceAll(lowered, "-", " ")), "-")
}
