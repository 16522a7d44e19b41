// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package domain

import "fmt"

// EpisodeIdentity is the tuple that uniquely identifies playable content:
// (site, slug, season, episode, language). It is used as a cache key, a
// probe request, and the payload carried inside synthetic magnets.
type EpisodeIdentity struct {
	Site     Site
	Slug     string
	Season   int
	Episode  int
	Language string
}

func (e EpisodeIdentity) String() string {
	return fmt.Sprintf("%s/%s/S%02dE%02d/%s", e.Site, e.Slug, e.Season, e.Episode, e.Language)
}

// CacheKey renders a stable composite key for map/DB lookups.
func (e EpisodeIdentity) CacheKey() string {
	return fmt.Sprintf("%s|%s|%d|%d|%s", e.Site, e.Slug, e.Season, e.Episode, e.Language)
}

// ProviderKey extends EpisodeIdentity with the provider used, for caches
// (such as StrmUrlMapping) keyed on the resolved provider as well.
type ProviderKey struct {
	EpisodeIdentity
	Provider string
}

func (p ProviderKey) CacheKey() string {
	return p.EpisodeIdentity.CacheKey() + "|" + p.Provider
}
