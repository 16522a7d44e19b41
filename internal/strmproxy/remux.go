// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strmproxy

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
)

// remuxEntry tracks one background ffmpeg remux of an HLS stream into a
// single fMP4 file, so concurrent requests for the same episode share one
// subprocess instead of spawning a new one each time.
type remuxEntry struct {
	path  string
	ready chan struct{}
	err   error
}

// Remuxer optionally converts an HLS playlist into a single fragmented MP4
// via an ffmpeg codec-copy subprocess, for players that prefer a plain
// progressive stream over HLS segment/manifest fetching (StrmProxyHlsRemux). On any ffmpeg failure the caller falls back to the
// ordinary playlist-rewrite path.
type Remuxer struct {
	cacheDir string
	binary   string

	mu    sync.Mutex
	cache map[string]*remuxEntry
}

// NewRemuxer builds a Remuxer rooted at cacheDir. binary is the ffmpeg
// executable name or path; "ffmpeg" resolves it via PATH.
func NewRemuxer(cacheDir, binary string) *Remuxer {
	if binary == "" {
		binary = "ffmpeg"
	}
	return &Remuxer{cacheDir: cacheDir, binary: binary, cache: make(map[string]*remuxEntry)}
}

// Remux returns the path to a completed fMP4 remux of playlistURL, starting
// the ffmpeg subprocess on first use and blocking subsequent callers on the
// same key until it finishes.
func (m *Remuxer) Remux(ctx context.Context, key, playlistURL string) (string, error) {
	m.mu.Lock()
	entry, ok := m.cache[key]
	if !ok {
		entry = &remuxEntry{
			path:  filepath.Join(m.cacheDir, key+".mp4"),
			ready: make(chan struct{}),
		}
		m.cache[key] = entry
		go m.run(entry, playlistURL)
	}
	m.mu.Unlock()

	select {
	case <-entry.ready:
		if entry.err != nil {
			return "", entry.err
		}
		return entry.path, nil
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

func (m *Remuxer) run(entry *remuxEntry, playlistURL string) {
	defer close(entry.ready)

	if err := os.MkdirAll(m.cacheDir, 0o750); err != nil {
		entry.err = fmt.Errorf("strmproxy: remux cache dir: %w", err)
		return
	}

	tmpPath := entry.path + ".tmp"
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Minute)
	defer cancel()

	cmd := exec.CommandContext(ctx, m.binary,
		"-y",
		"-i", playlistURL,
		"-c", "copy",
		"-bsf:a", "aac_adtstoasc",
		"-movflags", "+faststart",
		tmpPath,
	)

	if err := cmd.Run(); err != nil {
		os.Remove(tmpPath)
		entry.err = fmt.Errorf("strmproxy: ffmpeg remux: %w", err)
		log.Warn().Err(err).Str("playlist", playlistURL).Msg("strmproxy: remux failed, falling back to playlist rewrite")
		return
	}

	if err := os.Rename(tmpPath, entry.path); err != nil {
		entry.err = fmt.Errorf("strmproxy: finalize remux: %w", err)
	}
}

// Invalidate drops a cached remux entry and its file, forcing the next
// request to rebuild it. Handler does not call it, so a URLCache.Refresh
// leaves an existing remux in place.
func (m *Remuxer) Invalidate(key string) {
	m.mu.Lock()
	entry, ok := m.cache[key]
	delete(m.cache, key)
	m.mu.Unlock()

	if ok {
		os.Remove(entry.path)
	}
}
