// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/autobrr/autobrr/pkg/ttlcache"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
)

// Cache fronts the EpisodeAvailabilityStore with an in-memory hot layer and
// serializes concurrent probes for the same episode identity, so a burst of
// Torznab/qBittorrent requests for one episode triggers at most one live
// probe.
type Cache struct {
	store         *models.EpisodeAvailabilityStore
	prober        *Prober
	hot           *ttlcache.Cache[string, models.EpisodeAvailability]
	group         singleflight.Group
	ttl           time.Duration
	providerOrder []string

	hits   atomic.Int64
	misses atomic.Int64
}

// Stats reports the cache's cumulative hit/miss counts, feeding the
// probe-cache hit-ratio gauges on /metrics.
func (c *Cache) Stats() (hits, misses int64) {
	return c.hits.Load(), c.misses.Load()
}

// NewCache builds a Cache. ttl is the configured freshness window
// (AvailabilityTtl); providerOrder is the configured default provider
// priority list used when a request doesn't pin one.
func NewCache(store *models.EpisodeAvailabilityStore, prober *Prober, ttl time.Duration, providerOrder []string) *Cache {
	return &Cache{
		store:         store,
		prober:        prober,
		hot:           ttlcache.New(ttlcache.Options[string, models.EpisodeAvailability]{}.SetDefaultTTL(ttl)),
		ttl:           ttl,
		providerOrder: providerOrder,
	}
}

// Get returns the availability for id, probing live if the cached row is
// missing or stale. preferred, if non-empty, is tried before providerOrder.
// A live probe that fails but has a stale cached row available falls back to
// that stale row rather than surfacing the error.
func (c *Cache) Get(ctx context.Context, id domain.EpisodeIdentity, preferred string) (*models.EpisodeAvailability, error) {
	key := id.CacheKey()

	if cached, ok := c.hot.Get(key); ok {
		c.hits.Add(1)
		return &cached, nil
	}

	stored, err := c.store.Get(ctx, id)
	var staleFallback *models.EpisodeAvailability
	switch {
	case err == nil && time.Since(stored.CheckedAt) < c.ttl:
		c.hits.Add(1)
		c.hot.Set(key, *stored, ttlcache.DefaultTTL)
		return stored, nil
	case err == nil:
		staleFallback = stored
	case !errors.Is(err, models.ErrEpisodeAvailabilityNotFound):
		return nil, err
	}

	c.misses.Add(1)
	v, err, _ := c.group.Do(key, func() (any, error) {
		return c.probeAndStore(ctx, id, preferred, staleFallback != nil)
	})
	if err != nil {
		if staleFallback != nil {
			return staleFallback, nil
		}
		return nil, err
	}

	rec := v.(*models.EpisodeAvailability)
	c.hot.Set(key, *rec, ttlcache.DefaultTTL)
	return rec, nil
}

// errReprobeFailed reports a live reprobe that found no playable provider
// while a stale row exists; Get answers it with that stale row.
var errReprobeFailed = errors.New("availability: reprobe found no playable provider")

func (c *Cache) probeAndStore(ctx context.Context, id domain.EpisodeIdentity, preferred string, keepStale bool) (*models.EpisodeAvailability, error) {
	result := c.prober.Probe(ctx, id, preferred, c.providerOrder)
	if !result.Available && keepStale {
		return nil, errReprobeFailed
	}

	rec := &models.EpisodeAvailability{Identity: id, Available: result.Available}
	if result.Available {
		height := result.Height
		vcodec := result.VCodec
		provider := result.Provider
		rec.Height = &height
		rec.VCodec = &vcodec
		rec.Provider = &provider
	}

	if err := c.store.Upsert(ctx, rec); err != nil {
		return nil, err
	}
	rec.CheckedAt = time.Now()
	return rec, nil
}

// Invalidate drops the cached entry for id from both the hot layer and the
// durable store, forcing the next Get to re-probe.
func (c *Cache) Invalidate(ctx context.Context, id domain.EpisodeIdentity) error {
	c.hot.Delete(id.CacheKey())
	if err := c.store.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrEpisodeAvailabilityNotFound) {
		return err
	}
	return nil
}
