// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package specials

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
	"github.com/rs/zerolog/log"

	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/pkg/stringutils"
)

// ErrCannotMap is returned when the metadata service is configured and
// returned a canonical episode list, but no candidate cleared the mapper's
// score floor confidently enough to pick one; mapping to alias=source in
// that case would silently mislabel the special, so callers must surface
// the ambiguity instead.
var ErrCannotMap = errors.New("specials: cannot map special to canonical numbering")

// ScoreFloor is the default acceptance threshold for the mapper's own,
// stricter scoring function (config.SpecialsScoreFloor). It is higher than
// resolver.ConfidenceFloor: a special's title is often a short, generic
// phrase ("Recap", "OVA 1") that would over-match the resolver's looser
// multi-component score.
const ScoreFloor = 4.0

// SpecialEpisodeMapping is the result of mapping a catalogue special to its
// canonical numbering. Probing/downloading addresses the special by its
// Source pair (season 0, the film index as episode); release naming and
// the importing client see the Alias pair.
type SpecialEpisodeMapping struct {
	SourceSeason  int
	SourceEpisode int
	AliasSeason   int
	AliasEpisode  int
}

// Mapper resolves AniWorld/s.to "/filme" specials to canonical numbering,
// consulting the configured metadata service when available and persisting
// every resolved mapping so repeat lookups never re-hit the network.
type Mapper struct {
	registry  *catalogue.Registry
	metadata  *MetadataClient
	store     *models.SpecialAliasStore
	absolutes *models.EpisodeNumberMappingStore
	floor     float64
}

// NewMapper builds a Mapper. metadata may be an unconfigured client (see
// MetadataClient.Configured); the mapper then falls back to matching
// directly against catalogue special titles. absolutes backs ResolveAbsolute
// and may be nil for callers that never resolve by absolute number.
func NewMapper(registry *catalogue.Registry, metadata *MetadataClient, store *models.SpecialAliasStore, absolutes *models.EpisodeNumberMappingStore, scoreFloor float64) *Mapper {
	if scoreFloor <= 0 {
		scoreFloor = ScoreFloor
	}
	return &Mapper{registry: registry, metadata: metadata, store: store, absolutes: absolutes, floor: scoreFloor}
}

// ResolveByFilmIndex returns the stored alias for a specific special, or
// builds and persists one by matching its catalogue title against the
// series' canonical episode list.
func (m *Mapper) ResolveByFilmIndex(ctx context.Context, site domain.Site, slug, seriesTitle string, filmIndex int) (SpecialEpisodeMapping, error) {
	if existing, err := m.store.Get(ctx, site, slug, filmIndex); err == nil {
		return SpecialEpisodeMapping{
			SourceSeason:  existing.SourceSeason,
			SourceEpisode: existing.SourceEpisode,
			AliasSeason:   existing.AliasSeason,
			AliasEpisode:  existing.AliasEpisode,
		}, nil
	}

	entries, err := m.fetchSpecials(ctx, site, slug)
	if err != nil {
		return SpecialEpisodeMapping{}, err
	}

	var entry *catalogue.SpecialEntry
	for i := range entries {
		if entries[i].FilmIndex == filmIndex {
			entry = &entries[i]
			break
		}
	}
	if entry == nil {
		return SpecialEpisodeMapping{}, fmt.Errorf("specials: no /filme entry %d for %s/%s", filmIndex, site, slug)
	}

	mapping, err := m.mapEntry(ctx, seriesTitle, *entry)
	if err != nil {
		return SpecialEpisodeMapping{}, err
	}
	if err := m.persist(ctx, site, slug, *entry, mapping); err != nil {
		log.Warn().Err(err).Str("site", string(site)).Str("slug", slug).Msg("failed to persist special alias")
	}
	return mapping, nil
}

// MatchQuery matches free text against a series' catalogue special titles,
// returning the best mapping that clears the mapper's stricter score floor.
// Used by the Torznab search builder's "query matches a special title"
// branch.
func (m *Mapper) MatchQuery(ctx context.Context, site domain.Site, slug, seriesTitle, query string) (SpecialEpisodeMapping, bool) {
	entries, err := m.fetchSpecials(ctx, site, slug)
	if err != nil || len(entries) == 0 {
		return SpecialEpisodeMapping{}, false
	}

	var best catalogue.SpecialEntry
	bestScore := -1.0
	for _, e := range entries {
		titles := []string{e.DeTitle, e.AltTitle}
		for _, t := range titles {
			if s := scoreSpecialTitle(query, t); s > bestScore {
				bestScore = s
				best = e
			}
		}
	}

	if bestScore < m.floor {
		return SpecialEpisodeMapping{}, false
	}

	mapping, err := m.mapEntry(ctx, seriesTitle, best)
	if err != nil {
		log.Debug().Err(err).Str("site", string(site)).Str("slug", slug).Msg("specials: ambiguous metadata match, dropping query match")
		return SpecialEpisodeMapping{}, false
	}
	if err := m.persist(ctx, site, slug, best, mapping); err != nil {
		log.Warn().Err(err).Str("site", string(site)).Str("slug", slug).Msg("failed to persist special alias")
	}
	return mapping, true
}

// fetchSpecials fetches a site's /filme page through the registered adapter.
func (m *Mapper) fetchSpecials(ctx context.Context, site domain.Site, slug string) ([]catalogue.SpecialEntry, error) {
	adapter := m.registry.Get(site)
	if adapter == nil || !adapter.Capabilities().SupportsSpecials {
		return nil, fmt.Errorf("specials: %s does not support specials", site)
	}
	return adapter.FetchSpecials(ctx, slug)
}

// mapEntry decides the alias (season, episode) for a parsed special. It
// tries the metadata service first (matching the entry's titles against the
// canonical episode list), falling back to alias=source (treating the
// special as its own one-off season 0 entry) when the service is
// unconfigured or unreachable. Once the service IS configured and returns a
// candidate list, though, a best score under the floor means the candidates
// were genuinely ambiguous; that case returns ErrCannotMap rather than
// silently defaulting to alias=source, which would mislabel the special
// under a plausible-looking but wrong canonical number.
func (m *Mapper) mapEntry(ctx context.Context, seriesTitle string, entry catalogue.SpecialEntry) (SpecialEpisodeMapping, error) {
	mapping := SpecialEpisodeMapping{
		SourceSeason:  0,
		SourceEpisode: entry.FilmIndex,
		AliasSeason:   0,
		AliasEpisode:  entry.FilmIndex,
	}

	if !m.metadata.Configured() {
		return mapping, nil
	}

	seriesID, err := m.metadata.LookupSeriesID(ctx, seriesTitle)
	if err != nil {
		return mapping, nil
	}
	episodes, err := m.metadata.Episodes(ctx, seriesID)
	if err != nil || len(episodes) == 0 {
		return mapping, nil
	}

	bestScore := -1.0
	var bestEp CanonicalEpisode
	for _, ep := range episodes {
		for _, title := range []string{entry.DeTitle, entry.AltTitle} {
			if s := scoreSpecialTitle(title, ep.Title); s > bestScore {
				bestScore = s
				bestEp = ep
			}
		}
	}

	if bestScore < m.floor {
		return SpecialEpisodeMapping{}, fmt.Errorf("%w: %s/%d best score %.2f under floor %.2f", ErrCannotMap, seriesTitle, entry.FilmIndex, bestScore, m.floor)
	}

	mapping.AliasSeason = bestEp.SeasonNumber
	mapping.AliasEpisode = bestEp.EpisodeNumber
	return mapping, nil
}

// ResolveAbsolute maps an absolute episode number (as an arr client numbers
// anime-mode series) to the (season, episode) pair the catalogue addresses
// it by. EpisodeNumberMapping rows are populated lazily: on a cache miss,
// the series' canonical episode list is pulled from the metadata service
// (its AbsoluteEpisodeNumber field) and every row is upserted in one pass,
// so a miss costs one series lookup plus one episode-list request.
func (m *Mapper) ResolveAbsolute(ctx context.Context, seriesSlug, seriesTitle string, absoluteNumber int) (season, episode int, err error) {
	if m.absolutes == nil {
		return 0, 0, fmt.Errorf("%w: absolute-number mapping not configured", ErrCannotMap)
	}

	if existing, err := m.absolutes.ByAbsoluteNumber(ctx, seriesSlug, absoluteNumber); err == nil {
		return existing.Season, existing.Episode, nil
	}

	if !m.metadata.Configured() {
		return 0, 0, fmt.Errorf("%w: metadata service not configured", ErrCannotMap)
	}

	seriesID, err := m.metadata.LookupSeriesID(ctx, seriesTitle)
	if err != nil {
		return 0, 0, fmt.Errorf("%w: %v", ErrCannotMap, err)
	}
	episodes, err := m.metadata.Episodes(ctx, seriesID)
	if err != nil || len(episodes) == 0 {
		return 0, 0, fmt.Errorf("%w: no canonical episode list for %s", ErrCannotMap, seriesTitle)
	}

	var match *CanonicalEpisode
	for i := range episodes {
		ep := &episodes[i]
		if ep.AbsoluteEpisodeNumber <= 0 {
			continue
		}
		if err := m.absolutes.Upsert(ctx, &models.EpisodeNumberMapping{
			SeriesSlug:     seriesSlug,
			AbsoluteNumber: ep.AbsoluteEpisodeNumber,
			Season:         ep.SeasonNumber,
			Episode:        ep.EpisodeNumber,
			Title:          ep.Title,
		}); err != nil {
			log.Warn().Err(err).Str("slug", seriesSlug).Msg("failed to persist episode number mapping")
		}
		if ep.AbsoluteEpisodeNumber == absoluteNumber {
			match = ep
		}
	}

	if match == nil {
		return 0, 0, fmt.Errorf("%w: no absolute episode %d for %s", ErrCannotMap, absoluteNumber, seriesTitle)
	}
	return match.SeasonNumber, match.EpisodeNumber, nil
}

func (m *Mapper) persist(ctx context.Context, site domain.Site, slug string, entry catalogue.SpecialEntry, mapping SpecialEpisodeMapping) error {
	return m.store.Upsert(ctx, &models.SpecialAlias{
		Site:          site,
		Slug:          slug,
		FilmIndex:     entry.FilmIndex,
		SourceSeason:  mapping.SourceSeason,
		SourceEpisode: mapping.SourceEpisode,
		AliasSeason:   mapping.AliasSeason,
		AliasEpisode:  mapping.AliasEpisode,
		DeTitle:       entry.DeTitle,
		AltTitle:      entry.AltTitle,
	})
}

// scoreSpecialTitle is the mapper's own, stricter scoring function: exact
// and substring matches dominate, and the fuzzy sequence component is only
// trusted once token overlap already clears a floor, since special titles
// are short enough that coincidental sequence similarity is common.
func scoreSpecialTitle(a, b string) float64 {
	an := stringutils.NormalizeForMatching(a)
	bn := stringutils.NormalizeForMatching(b)
	if an == "" || bn == "" {
		return 0
	}

	if an == bn {
		return 5.0
	}

	var score float64
	if strings.Contains(bn, an) || strings.Contains(an, bn) {
		score += 2.5
	}

	aTokens := strings.Fields(an)
	bTokens := strings.Fields(bn)
	overlap := tokenOverlap(aTokens, bTokens)
	score += overlap * 1.5

	if overlap >= 0.5 {
		longer, shorter := an, bn
		if len(shorter) > len(longer) {
			longer, shorter = shorter, longer
		}
		if len(longer) > 0 {
			if d := fuzzy.RankMatchNormalizedFold(shorter, longer); d >= 0 {
				score += (1 - float64(d)/float64(len(longer))) * 1.0
			}
		}
	}

	return score
}

func tokenOverlap(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	set := make(map[string]struct{}, len(b))
	for _, t := range b {
		set[t] = struct{}{}
	}
	var matched int
	for _, t := range a {
		if _, ok := set[t]; ok {
			matched++
		}
	}
	denom := len(a)
	if len(b) > denom {
		denom = len(b)
	}
	return float64(matched) / float64(denom)
}
