// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strmproxy

import (
	"context"
	"errors"
	"time"

	"github.com/autobrr/autobrr/pkg/ttlcache"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
)

// entry is what URLCache keeps per provider key: the resolved upstream URL
// plus which provider actually served it (may differ from the requested
// preferred provider after a fallback).
type entry struct {
	URL      string
	Provider string
}

// Resolver is the subset of *availability.Prober's API URLCache needs,
// narrowed to an interface so it can be exercised with a stub in tests
// without constructing a full catalogue/extractor stack.
type Resolver interface {
	Resolve(ctx context.Context, id domain.EpisodeIdentity, preferred string, providerOrder []string) (availability.Resolved, error)
}

// URLCache resolves a playable direct URL for an episode, cascading through
// an in-memory hot layer, the durable StrmUrlMapping table, and finally a
// live resolve via the availability prober. A refresh forces
// the live path and overwrites both layers.
type URLCache struct {
	hot           *ttlcache.Cache[string, entry]
	store         *models.StrmUrlMappingStore
	resolver      Resolver
	providerOrder []string
}

// NewURLCache builds a URLCache. ttl bounds how long the in-memory layer
// keeps a resolved URL; rows in the durable mapping table carry no expiry
// and are reused until Refresh replaces them.
func NewURLCache(store *models.StrmUrlMappingStore, resolver Resolver, ttl time.Duration, providerOrder []string) *URLCache {
	return &URLCache{
		hot:           ttlcache.New(ttlcache.Options[string, entry]{}.SetDefaultTTL(ttl)),
		store:         store,
		resolver:      resolver,
		providerOrder: providerOrder,
	}
}

// Resolve returns a playable direct URL for id, preferring preferred when
// set. It checks the hot layer, then the durable mapping table, and only
// falls back to a live probe-and-resolve when neither has a usable entry.
func (c *URLCache) Resolve(ctx context.Context, id domain.EpisodeIdentity, preferred string) (string, string, error) {
	key := id.CacheKey() + "|" + preferred
	if e, ok := c.hot.Get(key); ok {
		return e.URL, e.Provider, nil
	}

	if c.store != nil {
		mappingKey := domain.ProviderKey{EpisodeIdentity: id, Provider: preferred}
		if m, err := c.store.Get(ctx, mappingKey); err == nil {
			c.hot.Set(key, entry{URL: m.ResolvedURL, Provider: m.ProviderUsed}, ttlcache.DefaultTTL)
			return m.ResolvedURL, m.ProviderUsed, nil
		} else if !errors.Is(err, models.ErrStrmUrlMappingNotFound) {
			return "", "", err
		}
	}

	return c.refreshLocked(ctx, id, preferred, key)
}

// Refresh forces a live re-resolve for id: it drops the hot entry, deletes
// the durable mapping row, and then repopulates both layers from the live
// resolve. Called by the proxy handler after an upstream URL fails with a
// status indicating the link has expired.
func (c *URLCache) Refresh(ctx context.Context, id domain.EpisodeIdentity, preferred string) (string, string, error) {
	key := id.CacheKey() + "|" + preferred
	c.hot.Delete(key)
	if c.store != nil {
		mappingKey := domain.ProviderKey{EpisodeIdentity: id, Provider: preferred}
		if err := c.store.Delete(ctx, mappingKey); err != nil && !errors.Is(err, models.ErrStrmUrlMappingNotFound) {
			return "", "", err
		}
	}
	return c.refreshLocked(ctx, id, preferred, key)
}

func (c *URLCache) refreshLocked(ctx context.Context, id domain.EpisodeIdentity, preferred, key string) (string, string, error) {
	resolved, err := c.resolver.Resolve(ctx, id, preferred, c.providerOrder)
	if err != nil {
		return "", "", err
	}

	c.hot.Set(key, entry{URL: resolved.DirectURL, Provider: resolved.Provider}, ttlcache.DefaultTTL)

	if c.store != nil {
		mapping := &models.StrmUrlMapping{
			Key:          domain.ProviderKey{EpisodeIdentity: id, Provider: preferred},
			ResolvedURL:  resolved.DirectURL,
			ProviderUsed: resolved.Provider,
		}
		if err := c.store.Upsert(ctx, mapping); err != nil {
			return "", "", err
		}
	}

	return resolved.DirectURL, resolved.Provider, nil
}
