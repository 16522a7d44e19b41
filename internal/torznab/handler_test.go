// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import (
	"context"
	"encoding/xml"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/resolver"
	"github.com/zzackllack/anibridge/internal/specials"
)

type fakeAdapter struct {
	site  domain.Site
	index []catalogue.IndexEntry
	links map[string][]catalogue.ProviderLink
}

func (f *fakeAdapter) Site() domain.Site { return f.site }
func (f *fakeAdapter) Capabilities() domain.CatalogueAdapter {
	return domain.CatalogueAdapter{Site: f.site, SupportsIndex: true}
}
func (f *fakeAdapter) ExtractSlug(string) (string, bool) { return "", false }
func (f *fakeAdapter) FetchIndex(context.Context) ([]catalogue.IndexEntry, error) {
	return f.index, nil
}
func (f *fakeAdapter) Suggest(context.Context, string) ([]catalogue.IndexEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) FetchSpecials(context.Context, string) ([]catalogue.SpecialEntry, error) {
	return nil, nil
}
func (f *fakeAdapter) EpisodeURL(slug string, season, episode int) string { return "" }
func (f *fakeAdapter) FetchProviderLinks(context.Context, string, int, int) (map[string][]catalogue.ProviderLink, error) {
	return f.links, nil
}

type fakeExtractor struct {
	name string
	url  string
}

func (f *fakeExtractor) Name() string { return f.name }
func (f *fakeExtractor) Extract(context.Context, *http.Client, string) (string, error) {
	return f.url, nil
}

type fakeAnalyser struct{ info availability.MediaInfo }

func (f *fakeAnalyser) Analyse(context.Context, string) (availability.MediaInfo, error) {
	return f.info, nil
}

func newTestHandler(t *testing.T) *Handler {
	t.Helper()
	db, err := database.New(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })

	adapter := &fakeAdapter{
		site:  domain.SiteAniWorld,
		index: []catalogue.IndexEntry{{Slug: "naruto", DisplayedTitle: "Naruto"}},
		links: map[string][]catalogue.ProviderLink{
			"German Dub": {{Provider: "VOE", URL: "https://aniworld.to/redirect/voe"}},
		},
	}
	reg := catalogue.NewRegistry(adapter)
	res := resolver.New(reg, time.Hour, false)

	providers := availability.NewRegistry(&fakeExtractor{name: "VOE", url: "https://cdn.example/voe.m3u8"})
	prober := availability.NewProber(reg, providers, &fakeAnalyser{info: availability.MediaInfo{Height: 1080, VCodec: "h264"}}, http.DefaultClient)
	cache := availability.NewCache(models.NewEpisodeAvailabilityStore(db), prober, time.Hour, []string{"VOE"})

	return NewHandler(res, reg, cache, nil, Config{
		ProviderOrder:           []string{"VOE"},
		MaxEpisodes:             5,
		MaxConsecutiveMisses:    2,
		StrmFilesMode:           "no",
		ConnectivityTestEnabled: true,
	})
}

func TestHandlerCaps(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=caps", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "<caps>")
	assert.Contains(t, rr.Body.String(), supportedParams)
}

func TestHandlerSearchEmptyQueryReturnsConnectivityItem(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=search", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	var doc xmlRSS
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &doc))
	require.Len(t, doc.Channel.Items, 1)
	assert.Contains(t, doc.Channel.Items[0].Title, "Connectivity Test")
}

func TestHandlerEpisodeSearchEmitsAvailableItem(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=tvsearch&q=naruto&season=1&ep=1", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	var doc xmlRSS
	require.NoError(t, xml.Unmarshal(rr.Body.Bytes(), &doc))
	require.Len(t, doc.Channel.Items, 1)
	assert.Contains(t, doc.Channel.Items[0].Link, "magnet:?")
}

func TestHandlerTVSearchAbsWithoutSpecialsMapperIsBadRequest(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=tvsearch&q=naruto&abs=27", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerTVSearchAbsUnmappableReturnsNotFoundWithoutFallback(t *testing.T) {
	h := newTestHandler(t)
	db, err := database.New(filepath.Join(t.TempDir(), "abs-test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { require.NoError(t, db.Close()) })
	h.specials = specials.NewMapper(h.registry, specials.NewMetadataClient(nil, "", ""), models.NewSpecialAliasStore(db), models.NewEpisodeNumberMappingStore(db), 0)

	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=tvsearch&q=naruto&abs=27", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	assert.Equal(t, http.StatusNotFound, rr.Code)
}

func TestHandlerTVSearchRequiresSeason(t *testing.T) {
	h := newTestHandler(t)
	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=tvsearch&q=naruto", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerUnauthorizedWithWrongAPIKey(t *testing.T) {
	h := newTestHandler(t)
	h.cfg.APIKey = "correct-key"

	req := httptest.NewRequest(http.MethodGet, "/torznab/api?t=caps&apikey=wrong", nil)
	rr := httptest.NewRecorder()

	h.handle(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestBuildItemEncodesMagnetAndAttrs(t *testing.T) {
	abs := 42
	item := BuildItem(ItemParams{
		Identity:       domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 3, Language: "German Dub"},
		Title:          "Naruto",
		Provider:       "VOE",
		Mode:           domain.JobModeDownload,
		Height:         1080,
		VCodec:         "h264",
		AbsoluteNumber: &abs,
	})

	assert.Contains(t, item.Title, "[ABS 042]")
	assert.Contains(t, item.Link, "magnet:?")
	foundAbs := false
	for _, a := range item.Attrs {
		if a.Name == "absoluteNumber" {
			foundAbs = true
			assert.Equal(t, "42", a.Value)
		}
	}
	assert.True(t, foundAbs)
}
