// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strmproxy

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/pkg/httphelpers"
)

// refreshableStatuses is the set of upstream response statuses that signal
// a resolved URL has gone stale and should be re-resolved rather than
// surfaced to the client.
var refreshableStatuses = map[int]bool{
	http.StatusForbidden:                 true,
	http.StatusNotFound:                  true,
	http.StatusGone:                      true,
	http.StatusUnavailableForLegalReasons: true,
	http.StatusTooManyRequests:            true,
}

// hopByHopHeaders are stripped from both the upstream request and the
// client response, matching the standard proxy contract (RFC 7230 §6.1).
var hopByHopHeaders = []string{
	"Connection", "Keep-Alive", "Proxy-Authenticate", "Proxy-Authorization",
	"Te", "Trailer", "Transfer-Encoding", "Upgrade",
}

// Handler serves the STRM proxy's two entry points: /strm/stream (resolve an
// episode identity to a direct URL, then stream or rewrite it) and
// /strm/proxy (stream an already-resolved upstream URL, used for HLS segment
// and child-playlist passthrough).
type Handler struct {
	urls      *URLCache
	signer    *Signer
	client    *http.Client
	baseURL   string
	remux     *Remuxer
	chunkSize int

	refreshCount atomic.Int64
}

// RefreshCount reports how many times a refresh-on-failure retry has fired,
// for the STRM-proxy-refresh-counts metric.
func (h *Handler) RefreshCount() int64 {
	return h.refreshCount.Load()
}

// NewHandler builds a Handler. remux may be nil, disabling HLS->fMP4 remux
// and falling back to playlist rewriting unconditionally. chunkSize bounds
// each read while streaming media bytes; zero selects the 64 KiB default.
func NewHandler(urls *URLCache, signer *Signer, client *http.Client, baseURL string, remux *Remuxer, chunkSize int) *Handler {
	if chunkSize <= 0 {
		chunkSize = 64 * 1024
	}
	return &Handler{urls: urls, signer: signer, client: client, baseURL: baseURL, remux: remux, chunkSize: chunkSize}
}

// Routes mounts the proxy's endpoints onto r.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/strm/stream", h.handleStream)
	r.Head("/strm/stream", h.handleStreamHead)
	r.Get("/strm/proxy", h.handleProxy)
	r.Head("/strm/proxy", h.handleProxyHead)
}

func (h *Handler) handleStream(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.signer.VerifyStream(q); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	season, _ := strconv.Atoi(q.Get("s"))
	episode, _ := strconv.Atoi(q.Get("e"))
	id := domain.EpisodeIdentity{
		Site:     domain.Site(q.Get("site")),
		Slug:     q.Get("slug"),
		Season:   season,
		Episode:  episode,
		Language: q.Get("lang"),
	}
	preferred := q.Get("provider")

	directURL, _, err := h.urls.Resolve(r.Context(), id, preferred)
	if err != nil {
		http.Error(w, "resolve failed", http.StatusBadGateway)
		return
	}

	if h.remux != nil && strings.HasSuffix(directURL, ".m3u8") {
		if path, err := h.remux.Remux(r.Context(), id.CacheKey(), directURL); err == nil {
			http.ServeFile(w, r, path)
			return
		}
		// ffmpeg failed or isn't installed; fall through to the ordinary
		// playlist-rewrite path below.
	}

	h.streamWithRefresh(w, r, id, preferred, directURL, true)
}

func (h *Handler) handleProxy(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.signer.VerifyProxy(q); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	target := q.Get("u")
	if target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}

	h.streamWithRefresh(w, r, domain.EpisodeIdentity{}, "", target, false)
}

// handleStreamHead answers a HEAD on /strm/stream the same way handleStream
// resolves the episode identity, but never touches the remux path: a HEAD
// only needs headers, not a transcoded file.
func (h *Handler) handleStreamHead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.signer.VerifyStream(q); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	season, _ := strconv.Atoi(q.Get("s"))
	episode, _ := strconv.Atoi(q.Get("e"))
	id := domain.EpisodeIdentity{
		Site:     domain.Site(q.Get("site")),
		Slug:     q.Get("slug"),
		Season:   season,
		Episode:  episode,
		Language: q.Get("lang"),
	}
	preferred := q.Get("provider")

	directURL, _, err := h.urls.Resolve(r.Context(), id, preferred)
	if err != nil {
		http.Error(w, "resolve failed", http.StatusBadGateway)
		return
	}

	h.headFetch(w, r, directURL)
}

func (h *Handler) handleProxyHead(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	if err := h.signer.VerifyProxy(q); err != nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	target := q.Get("u")
	if target == "" {
		http.Error(w, "missing target", http.StatusBadRequest)
		return
	}

	h.headFetch(w, r, target)
}

// headFetch answers a best-effort HEAD by issuing a single-byte
// ranged GET upstream and returning only its headers, with Content-Length
// corrected from the Content-Range response rather than leaking the 1-byte
// range size.
func (h *Handler) headFetch(w http.ResponseWriter, r *http.Request, target string) {
	req, err := http.NewRequestWithContext(r.Context(), http.MethodGet, target, nil)
	if err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	req.Header.Set("Range", "bytes=0-0")

	resp, err := h.client.Do(req)
	if err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}
	defer httphelpers.DrainAndClose(resp)

	copyResponseHeaders(w.Header(), resp.Header)

	status := resp.StatusCode
	if status == http.StatusPartialContent {
		if total, ok := totalSizeFromContentRange(resp.Header.Get("Content-Range")); ok {
			w.Header().Set("Content-Length", strconv.FormatInt(total, 10))
		}
		w.Header().Del("Content-Range")
		status = http.StatusOK
	}
	w.WriteHeader(status)
}

// totalSizeFromContentRange extracts the resource's total size out of a
// "bytes 0-0/1234" Content-Range value.
func totalSizeFromContentRange(headerValue string) (int64, bool) {
	idx := strings.LastIndex(headerValue, "/")
	if idx < 0 || idx == len(headerValue)-1 {
		return 0, false
	}
	total, err := strconv.ParseInt(headerValue[idx+1:], 10, 64)
	if err != nil {
		return 0, false
	}
	return total, true
}

// streamWithRefresh fetches directURL and copies it to w, rewriting HLS
// playlists so nested URIs keep routing through this bridge. When
// refreshable is true and the upstream response indicates the link expired,
// it re-resolves once via h.urls.Refresh and retries before giving up.
func (h *Handler) streamWithRefresh(w http.ResponseWriter, r *http.Request, id domain.EpisodeIdentity, preferred, directURL string, refreshable bool) {
	resp, err := h.fetch(r.Context(), r, directURL)
	if !refreshable && err != nil {
		http.Error(w, "upstream fetch failed", http.StatusBadGateway)
		return
	}

	// A transport error (typically a timeout) counts as a stale link the
	// same way the refreshable status codes do.
	if refreshable && (err != nil || refreshableStatuses[resp.StatusCode]) {
		if err == nil {
			httphelpers.DrainAndClose(resp)
			log.Debug().Str("site", string(id.Site)).Str("slug", id.Slug).Int("status", resp.StatusCode).Msg("strm proxy: refreshing stale upstream url")
		} else {
			log.Debug().Str("site", string(id.Site)).Str("slug", id.Slug).Err(err).Msg("strm proxy: refreshing after upstream fetch error")
		}
		h.refreshCount.Add(1)

		fresh, _, refreshErr := h.urls.Refresh(r.Context(), id, preferred)
		if refreshErr != nil {
			http.Error(w, "upstream refresh failed", http.StatusBadGateway)
			return
		}
		resp, err = h.fetch(r.Context(), r, fresh)
		if err != nil {
			http.Error(w, "upstream fetch failed", http.StatusGatewayTimeout)
			return
		}
	}
	defer httphelpers.DrainAndClose(resp)

	if resp.StatusCode >= 400 {
		w.WriteHeader(resp.StatusCode)
		return
	}

	if isPlaylist(resp) {
		h.servePlaylist(w, resp, directURL)
		return
	}

	copyResponseHeaders(w.Header(), resp.Header)
	w.WriteHeader(resp.StatusCode)
	h.streamBody(w, resp.Body)
}

// streamBody copies upstream bytes to the client in bounded chunks,
// flushing after each so playback starts without the full response ever
// being buffered.
func (h *Handler) streamBody(w http.ResponseWriter, body io.Reader) {
	flusher, _ := w.(http.Flusher)
	buf := make([]byte, h.chunkSize)
	for {
		n, err := body.Read(buf)
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return
			}
			if flusher != nil {
				flusher.Flush()
			}
		}
		if err != nil {
			return
		}
	}
}

func (h *Handler) fetch(ctx context.Context, r *http.Request, target string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, err
	}
	if rng := r.Header.Get("Range"); rng != "" {
		req.Header.Set("Range", rng)
	}
	return h.client.Do(req)
}

func isPlaylist(resp *http.Response) bool {
	ct := resp.Header.Get("Content-Type")
	return strings.Contains(ct, "mpegurl") || strings.HasSuffix(resp.Request.URL.Path, ".m3u8")
}

func (h *Handler) servePlaylist(w http.ResponseWriter, resp *http.Response, sourceURL string) {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 16*1024*1024))
	if err != nil {
		http.Error(w, "read playlist failed", http.StatusBadGateway)
		return
	}

	base, err := url.Parse(sourceURL)
	if err != nil {
		base = resp.Request.URL
	}

	rewritten, err := RewritePlaylist(body, base, h.rewriteURL)
	if err != nil {
		http.Error(w, "rewrite playlist failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.apple.mpegurl")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(rewritten)
}

// rewriteURL wraps an absolute upstream URL in a signed /strm/proxy link,
// unless it already points at this bridge, preventing infinite proxy loops.
func (h *Handler) rewriteURL(absolute string) string {
	if strings.HasPrefix(absolute, h.baseURL+"/strm/") {
		return absolute
	}
	query := h.signer.SignProxy(absolute)
	return h.baseURL + "/strm/proxy?" + query.Encode()
}

func copyResponseHeaders(dst http.Header, src http.Header) {
	for k, v := range src {
		if isHopByHop(k) {
			continue
		}
		dst[k] = v
	}
}

func isHopByHop(header string) bool {
	for _, h := range hopByHopHeaders {
		if strings.EqualFold(h, header) {
			return true
		}
	}
	return false
}
