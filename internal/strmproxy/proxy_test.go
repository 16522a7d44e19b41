// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strmproxy

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/domain"
)

// stubResolver implements Resolver with a scripted sequence of upstream
// URLs, so tests can exercise the refresh-on-failure path deterministically.
type stubResolver struct {
	urls  []string
	calls int
}

func (s *stubResolver) Resolve(ctx context.Context, id domain.EpisodeIdentity, preferred string, providerOrder []string) (availability.Resolved, error) {
	idx := s.calls
	if idx >= len(s.urls) {
		idx = len(s.urls) - 1
	}
	s.calls++
	return availability.Resolved{Provider: "voe", DirectURL: s.urls[idx]}, nil
}

func TestHandlerStreamRangePassthrough(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "bytes=10-20", r.Header.Get("Range"))
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0123456789"))
	}))
	defer upstream.Close()

	resolver := &stubResolver{urls: []string{upstream.URL}}
	urls := NewURLCache(nil, resolver, time.Minute, nil)
	signer := NewSigner(AuthNone, "", "", time.Minute)
	h := NewHandler(urls, signer, upstream.Client(), "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/strm/stream?site=aniworld&slug=demo&s=1&e=1&lang=German+Dub", nil)
	req.Header.Set("Range", "bytes=10-20")
	rr := httptest.NewRecorder()

	h.handleStream(rr, req)

	assert.Equal(t, http.StatusPartialContent, rr.Code)
	assert.Equal(t, "0123456789", rr.Body.String())
}

func TestHandlerStreamRefreshesOnGone(t *testing.T) {
	staleHits, freshHits := 0, 0

	stale := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		staleHits++
		w.WriteHeader(http.StatusGone)
	}))
	defer stale.Close()

	fresh := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		freshHits++
		w.Header().Set("Content-Type", "video/mp4")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	}))
	defer fresh.Close()

	resolver := &stubResolver{urls: []string{stale.URL, fresh.URL}}
	urls := NewURLCache(nil, resolver, time.Minute, nil)
	signer := NewSigner(AuthNone, "", "", time.Minute)
	h := NewHandler(urls, signer, http.DefaultClient, "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/strm/stream?site=aniworld&slug=demo&s=1&e=1&lang=German+Dub", nil)
	rr := httptest.NewRecorder()

	h.handleStream(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "ok", rr.Body.String())
	assert.Equal(t, 1, staleHits)
	assert.Equal(t, 1, freshHits)
}

func TestHandlerStreamUnauthorized(t *testing.T) {
	resolver := &stubResolver{urls: []string{"https://example.com/video.mp4"}}
	urls := NewURLCache(nil, resolver, time.Minute, nil)
	signer := NewSigner(AuthToken, "secret", "", time.Minute)
	h := NewHandler(urls, signer, http.DefaultClient, "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/strm/stream?site=aniworld&slug=demo&s=1&e=1&lang=German+Dub", nil)
	rr := httptest.NewRecorder()

	h.handleStream(rr, req)

	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestHandlerProxyMissingTarget(t *testing.T) {
	urls := NewURLCache(nil, &stubResolver{urls: []string{"https://example.com"}}, time.Minute, nil)
	signer := NewSigner(AuthNone, "", "", time.Minute)
	h := NewHandler(urls, signer, http.DefaultClient, "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/strm/proxy", nil)
	rr := httptest.NewRecorder()

	h.handleProxy(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerStreamHeadSynthesizesFromRangedGet(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodGet, r.Method)
		assert.Equal(t, "bytes=0-0", r.Header.Get("Range"))
		w.Header().Set("Content-Type", "video/mp4")
		w.Header().Set("Content-Range", "bytes 0-0/12345")
		w.WriteHeader(http.StatusPartialContent)
		_, _ = w.Write([]byte("0"))
	}))
	defer upstream.Close()

	resolver := &stubResolver{urls: []string{upstream.URL}}
	urls := NewURLCache(nil, resolver, time.Minute, nil)
	signer := NewSigner(AuthNone, "", "", time.Minute)
	h := NewHandler(urls, signer, upstream.Client(), "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodHead, "/strm/stream?site=aniworld&slug=demo&s=1&e=1&lang=German+Dub", nil)
	rr := httptest.NewRecorder()

	h.handleStreamHead(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Equal(t, "12345", rr.Header().Get("Content-Length"))
	assert.Empty(t, rr.Header().Get("Content-Range"))
	assert.Empty(t, rr.Body.String())
}

func TestHandlerProxyHeadMissingTarget(t *testing.T) {
	urls := NewURLCache(nil, &stubResolver{urls: []string{"https://example.com"}}, time.Minute, nil)
	signer := NewSigner(AuthNone, "", "", time.Minute)
	h := NewHandler(urls, signer, http.DefaultClient, "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodHead, "/strm/proxy", nil)
	rr := httptest.NewRecorder()

	h.handleProxyHead(rr, req)

	assert.Equal(t, http.StatusBadRequest, rr.Code)
}

func TestHandlerProxyRewritesPlaylist(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("#EXTM3U\n#EXTINF:6.000,\nsegment-0.ts\n"))
	}))
	defer upstream.Close()

	urls := NewURLCache(nil, &stubResolver{urls: []string{upstream.URL}}, time.Minute, nil)
	signer := NewSigner(AuthNone, "", "", time.Minute)
	h := NewHandler(urls, signer, upstream.Client(), "https://bridge.local", nil, 0)

	req := httptest.NewRequest(http.MethodGet, "/strm/proxy?u="+upstream.URL+"/playlist.m3u8", nil)
	rr := httptest.NewRecorder()

	h.handleProxy(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), "https://bridge.local/strm/proxy?u=")
}
