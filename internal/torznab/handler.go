// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"context"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/pkg/timeouts"
	"github.com/zzackllack/anibridge/internal/resolver"
	"github.com/zzackllack/anibridge/internal/specials"
	"github.com/zzackllack/anibridge/pkg/releases"
)

// Config carries the operator-tunable behaviour of the Torznab façade,
// lifted from config.Config by the caller.
type Config struct {
	APIKey                  string
	ProviderOrder           []string
	MaxEpisodes             int
	MaxConsecutiveMisses    int
	StrmFilesMode           string // "no" | "both" | "only"
	FallbackAllEpisodes     bool
	ConnectivityTestEnabled bool
}

// Handler serves the Torznab-subset endpoint. It holds no mutable state of
// its own: every operation reads through to the resolver, availability
// cache, and specials mapper.
type Handler struct {
	resolver *resolver.Resolver
	registry *catalogue.Registry
	cache    *availability.Cache
	specials *specials.Mapper
	cfg      Config
}

// NewHandler builds a Handler. specialsMapper may be nil, disabling
// special-title matching in t=search (every query then falls through to the
// preview-item branch).
func NewHandler(res *resolver.Resolver, registry *catalogue.Registry, cache *availability.Cache, specialsMapper *specials.Mapper, cfg Config) *Handler {
	return &Handler{resolver: res, registry: registry, cache: cache, specials: specialsMapper, cfg: cfg}
}

// Routes mounts the Torznab endpoint at /torznab/api.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/torznab/api", h.handle)
}

func (h *Handler) handle(w http.ResponseWriter, r *http.Request) {
	if h.cfg.APIKey != "" && r.URL.Query().Get("apikey") != h.cfg.APIKey {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	switch r.URL.Query().Get("t") {
	case "", "caps":
		h.handleCaps(w)
	case "search":
		h.handleSearch(w, r)
	case "tvsearch":
		h.handleTVSearch(w, r)
	default:
		http.Error(w, "bad param: unsupported t", http.StatusBadRequest)
	}
}

func (h *Handler) handleCaps(w http.ResponseWriter) {
	out, err := BuildCaps()
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeXML(w, out)
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	ctx := r.Context()

	if q == "" {
		var items []xmlItem
		if h.cfg.ConnectivityTestEnabled {
			items = append(items, connectivityTestItem())
		}
		writeItems(w, items)
		return
	}

	match, ok := h.resolver.Resolve(ctx, q)
	if !ok {
		writeItems(w, nil)
		return
	}

	seriesTitle := humanizeSlug(match.Slug)

	if h.specials != nil {
		if mapping, ok := h.specials.MatchQuery(ctx, match.Site, match.Slug, seriesTitle, q); ok {
			lang := h.firstLanguage(ctx, match.Site, match.Slug, mapping.SourceSeason, mapping.SourceEpisode)
			identity := domain.EpisodeIdentity{Site: match.Site, Slug: match.Slug, Season: mapping.SourceSeason, Episode: mapping.SourceEpisode, Language: lang}
			if item, ok := h.buildAvailableItem(ctx, identity, seriesTitle, "", &mapping.AliasEpisode, false); ok {
				writeItems(w, []xmlItem{item})
				return
			}
		}
	}

	identity := domain.EpisodeIdentity{Site: match.Site, Slug: match.Slug, Season: 1, Episode: 1, Language: h.firstLanguage(ctx, match.Site, match.Slug, 1, 1)}
	item, ok := h.buildAvailableItem(ctx, identity, seriesTitle, "", nil, false)
	if !ok {
		writeItems(w, nil)
		return
	}
	writeItems(w, []xmlItem{item})
}

func (h *Handler) handleTVSearch(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	ctx := r.Context()

	if q == "" {
		http.Error(w, "bad param: q is required", http.StatusBadRequest)
		return
	}

	match, ok := h.resolver.Resolve(ctx, q)
	if !ok {
		writeItems(w, nil)
		return
	}
	seriesTitle := humanizeSlug(match.Slug)

	if abs, hasAbs := intParam(r, "abs"); hasAbs {
		h.absoluteSearch(w, r, match.Site, match.Slug, seriesTitle, abs)
		return
	}

	season, hasSeason := intParam(r, "season")
	episode, hasEpisode := intParam(r, "ep")

	if hasSeason && hasEpisode {
		h.episodeSearch(w, r, match.Site, match.Slug, seriesTitle, season, episode)
		return
	}
	if hasSeason {
		h.seasonSearch(w, r, match.Site, match.Slug, seriesTitle, season)
		return
	}
	http.Error(w, "bad param: season is required", http.StatusBadRequest)
}

// absoluteSearch resolves an arr client's absolute episode number (anime
// numbering mode) to the catalogue's (season, episode) pair via the
// specials mapper's EpisodeNumberMapping-backed lookup, then searches that
// episode directly. An unresolvable/ambiguous mapping is always logged;
// without FallbackAllEpisodes it answers 404 with an explicit "cannot map"
// message, and with FallbackAllEpisodes it answers with a full catalogue
// listing instead.
func (h *Handler) absoluteSearch(w http.ResponseWriter, r *http.Request, site domain.Site, slug, seriesTitle string, absolute int) {
	if h.specials == nil {
		http.Error(w, "bad param: abs search unsupported", http.StatusBadRequest)
		return
	}

	season, episode, err := h.specials.ResolveAbsolute(r.Context(), slug, seriesTitle, absolute)
	if err != nil {
		log.Debug().Err(err).Str("site", string(site)).Str("slug", slug).Int("abs", absolute).Msg("torznab: cannot map absolute number")
		if !h.cfg.FallbackAllEpisodes {
			http.Error(w, "cannot map absolute number to canonical numbering", http.StatusNotFound)
			return
		}
		h.catalogueFallback(w, r, site, slug, seriesTitle)
		return
	}
	h.episodeSearch(w, r, site, slug, seriesTitle, season, episode)
}

// episodeSearch implements episode-search mode: for each
// language the catalogue lists a provider link for, check the availability
// cache and emit one item per available language, plus a STRM-mode variant
// when StrmFilesMode demands it.
func (h *Handler) episodeSearch(w http.ResponseWriter, r *http.Request, site domain.Site, slug, seriesTitle string, season, episode int) {
	ctx := r.Context()
	languages := h.candidateLanguages(ctx, site, slug, season, episode)

	var items []xmlItem
	for _, lang := range languages {
		identity := domain.EpisodeIdentity{Site: site, Slug: slug, Season: season, Episode: episode, Language: lang}

		if h.cfg.StrmFilesMode != "only" {
			if item, ok := h.buildAvailableItem(ctx, identity, seriesTitle, "", nil, false); ok {
				items = append(items, item)
			}
		}
		if h.cfg.StrmFilesMode == "both" || h.cfg.StrmFilesMode == "only" {
			if item, ok := h.buildStrmItem(ctx, identity, seriesTitle, nil); ok {
				items = append(items, item)
			}
		}
	}

	writeItems(w, items)
}

// maxFallbackSeasons bounds FallbackAllEpisodes' catalogue-wide listing: a
// season-by-season probe has no natural stopping point other than the
// availability cache running dry, so this caps how many seasons a single
// request can walk regardless of how the cache behaves.
const maxFallbackSeasons = 20

// seasonSearch implements season-search mode: bounded
// sequential probing across MaxEpisodes, stopping after MaxConsecutiveMisses
// consecutive fully-unavailable episodes. When nothing is found and
// FallbackAllEpisodes is set, it widens the search to every season the
// catalogue has.
func (h *Handler) seasonSearch(w http.ResponseWriter, r *http.Request, site domain.Site, slug, seriesTitle string, season int) {
	ctx := r.Context()
	items := h.probeSeason(ctx, site, slug, seriesTitle, season)

	if len(items) == 0 && h.cfg.FallbackAllEpisodes {
		log.Debug().Str("site", string(site)).Str("slug", slug).Msg("torznab: season search found nothing, falling back to catalogue listing")
		h.catalogueFallback(w, r, site, slug, seriesTitle)
		return
	}

	writeItems(w, items)
}

// catalogueFallback widens a search across every season up to
// maxFallbackSeasons, stopping after two consecutive empty seasons. It
// backs both seasonSearch's FallbackAllEpisodes behaviour and absoluteSearch
// when the absolute-number mapping can't be resolved.
func (h *Handler) catalogueFallback(w http.ResponseWriter, r *http.Request, site domain.Site, slug, seriesTitle string) {
	ctx := r.Context()
	var items []xmlItem
	emptySeasons := 0

	for season := 1; season <= maxFallbackSeasons; season++ {
		seasonItems := h.probeSeason(ctx, site, slug, seriesTitle, season)
		if len(seasonItems) == 0 {
			emptySeasons++
			if emptySeasons >= 2 {
				break
			}
			continue
		}
		emptySeasons = 0
		items = append(items, seasonItems...)
	}

	writeItems(w, items)
}

// probeSeason performs the bounded sequential per-episode probe of a single
// season, returning every item found without
// writing a response.
func (h *Handler) probeSeason(ctx context.Context, site domain.Site, slug, seriesTitle string, season int) []xmlItem {
	maxEpisodes := h.cfg.MaxEpisodes
	if maxEpisodes <= 0 {
		maxEpisodes = 24
	}
	maxMisses := h.cfg.MaxConsecutiveMisses
	if maxMisses <= 0 {
		maxMisses = 3
	}

	ctx, cancel := timeouts.WithProbeBudget(ctx, timeouts.AdaptiveProbeBudget(maxEpisodes))
	defer cancel()

	var items []xmlItem
	consecutiveMisses := 0

	for episode := 1; episode <= maxEpisodes; episode++ {
		if ctx.Err() != nil {
			log.Debug().Str("slug", slug).Int("season", season).Int("episode", episode).Msg("torznab: season probe budget exhausted")
			break
		}

		languages := h.candidateLanguages(ctx, site, slug, season, episode)
		found := false

		for _, lang := range languages {
			identity := domain.EpisodeIdentity{Site: site, Slug: slug, Season: season, Episode: episode, Language: lang}

			if h.cfg.StrmFilesMode != "only" {
				if item, ok := h.buildAvailableItem(ctx, identity, seriesTitle, "", nil, false); ok {
					items = append(items, item)
					found = true
				}
			}
			if h.cfg.StrmFilesMode == "both" || h.cfg.StrmFilesMode == "only" {
				if item, ok := h.buildStrmItem(ctx, identity, seriesTitle, nil); ok {
					items = append(items, item)
					found = true
				}
			}
		}

		if found {
			consecutiveMisses = 0
			continue
		}
		consecutiveMisses++
		if consecutiveMisses >= maxMisses {
			break
		}
	}

	return items
}

// candidateLanguages discovers the languages a catalogue episode page lists
// a provider link for. An adapter error degrades to an empty list rather
// than failing the whole search.
func (h *Handler) candidateLanguages(ctx context.Context, site domain.Site, slug string, season, episode int) []string {
	adapter := h.registry.Get(site)
	if adapter == nil {
		return nil
	}
	links, err := adapter.FetchProviderLinks(ctx, slug, season, episode)
	if err != nil {
		return nil
	}
	languages := make([]string, 0, len(links))
	for lang := range links {
		languages = append(languages, lang)
	}
	return languages
}

func (h *Handler) firstLanguage(ctx context.Context, site domain.Site, slug string, season, episode int) string {
	for _, lang := range h.candidateLanguages(ctx, site, slug, season, episode) {
		return lang
	}
	return ""
}

// buildAvailableItem probes/consults the availability cache for identity
// and, if available, renders a download-mode item.
func (h *Handler) buildAvailableItem(ctx context.Context, identity domain.EpisodeIdentity, title, preferred string, absolute *int, fallback bool) (xmlItem, bool) {
	avail, err := h.cache.Get(ctx, identity, preferred)
	if err != nil || !avail.Available {
		return xmlItem{}, false
	}

	height, vcodec, provider := 0, "", ""
	if avail.Height != nil {
		height = *avail.Height
	}
	if avail.VCodec != nil {
		vcodec = *avail.VCodec
	}
	if avail.Provider != nil {
		provider = *avail.Provider
	}

	return BuildItem(ItemParams{
		Identity:       identity,
		Title:          title,
		Provider:       provider,
		Mode:           domain.JobModeDownload,
		Height:         height,
		VCodec:         vcodec,
		LanguageCode:   releases.LanguageCode(identity.Language),
		AbsoluteNumber: absolute,
		Fallback:       fallback,
	}), true
}

func (h *Handler) buildStrmItem(ctx context.Context, identity domain.EpisodeIdentity, title string, absolute *int) (xmlItem, bool) {
	avail, err := h.cache.Get(ctx, identity, "")
	if err != nil || !avail.Available {
		return xmlItem{}, false
	}

	height, vcodec, provider := 0, "", ""
	if avail.Height != nil {
		height = *avail.Height
	}
	if avail.VCodec != nil {
		vcodec = *avail.VCodec
	}
	if avail.Provider != nil {
		provider = *avail.Provider
	}

	return BuildItem(ItemParams{
		Identity:       identity,
		Title:          title,
		Provider:       provider,
		Mode:           domain.JobModeStrm,
		Height:         height,
		VCodec:         vcodec,
		LanguageCode:   releases.LanguageCode(identity.Language),
		AbsoluteNumber: absolute,
	}), true
}

func connectivityTestItem() xmlItem {
	return BuildItem(ItemParams{
		Identity: domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "connectivity-test", Season: 0, Episode: 0, Language: "German Dub"},
		Title:    "AniBridge Connectivity Test",
		Provider: "anibridge",
		Mode:     domain.JobModeDownload,
	})
}

func intParam(r *http.Request, key string) (int, bool) {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

// humanizeSlug turns a catalogue slug into a best-effort display title, the
// same way the download/strm runners do when no richer title is available.
// An all-numeric slug like "9-1-1" is a literal hyphenated title, not
// hyphen-separated words, and passes through unchanged.
func humanizeSlug(slug string) string {
	words := strings.Split(slug, "-")
	numeric := true
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, err := strconv.Atoi(w); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		return slug
	}
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}

func writeItems(w http.ResponseWriter, items []xmlItem) {
	out, err := marshalResponse(items)
	if err != nil {
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	writeXML(w, out)
}

func writeXML(w http.ResponseWriter, body []byte) {
	w.Header().Set("Content-Type", "application/rss+xml; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(body)
}
