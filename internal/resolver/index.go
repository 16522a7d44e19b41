// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"context"
	"sync"
	"time"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
)

// siteIndex holds one site's title index plus the bookkeeping needed to
// refresh it once it is older than the configured IndexRefreshHours.
type siteIndex struct {
	mu          sync.RWMutex
	entries     []catalogue.IndexEntry
	lastFetched time.Time
}

// ensureFresh rebuilds the index from adapter.FetchIndex if it has never
// been built or is older than maxAge. A fetch failure leaves the previous
// (possibly empty) index in place so a transient site outage doesn't wipe
// an otherwise-working resolver.
func (idx *siteIndex) ensureFresh(ctx context.Context, adapter catalogue.Adapter, maxAge time.Duration) {
	idx.mu.RLock()
	stale := time.Since(idx.lastFetched) >= maxAge
	idx.mu.RUnlock()
	if !stale {
		return
	}

	entries, err := adapter.FetchIndex(ctx)
	if err != nil {
		return
	}

	idx.mu.Lock()
	idx.entries = entries
	idx.lastFetched = time.Now()
	idx.mu.Unlock()
}

func (idx *siteIndex) snapshot() []catalogue.IndexEntry {
	idx.mu.RLock()
	defer idx.mu.RUnlock()
	out := make([]catalogue.IndexEntry, len(idx.entries))
	copy(out, idx.entries)
	return out
}

// indexSet owns one siteIndex per indexable site.
type indexSet struct {
	bySite map[domain.Site]*siteIndex
}

func newIndexSet() *indexSet {
	return &indexSet{bySite: make(map[domain.Site]*siteIndex)}
}

func (s *indexSet) get(site domain.Site) *siteIndex {
	idx, ok := s.bySite[site]
	if !ok {
		idx = &siteIndex{}
		s.bySite[site] = idx
	}
	return idx
}
