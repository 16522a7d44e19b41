// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package runner

import (
	"context"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/strmproxy"
)

func TestStrmRunnerDirectModeWritesBareURL(t *testing.T) {
	const directURL = "https://cdn.example/hls/master.m3u8"
	prober := newTestProber(domain.SiteSTo, "German Dub", "VOE", directURL)

	db := openTestDB(t)
	store := models.NewEpisodeAvailabilityStore(db)
	identity := domain.EpisodeIdentity{Site: domain.SiteSTo, Slug: "9-1-1", Season: 1, Episode: 3, Language: "German Dub"}
	require.NoError(t, store.Upsert(context.Background(), &models.EpisodeAvailability{
		Identity:  identity,
		Available: true,
		Height:    intPtr(1080),
		VCodec:    strPtr("h264"),
		Provider:  strPtr("VOE"),
	}))
	cache := availability.NewCache(store, prober, 24*time.Hour, []string{"VOE"})

	strmDir := t.TempDir()
	r := NewStrmRunner(prober, cache, nil, nil, nil, StrmConfig{
		StrmDir:       strmDir,
		ProviderOrder: []string{"VOE"},
	})

	job := &models.Job{
		ID: "s1", Mode: domain.JobModeStrm,
		Site: domain.SiteSTo, Slug: "9-1-1", Season: 1, Episode: 3, Language: "German Dub",
	}
	resultPath, err := r.Run(context.Background(), job, nil)
	require.NoError(t, err)

	assert.Equal(t, "9-1-1.S01E03.1080p.WEB.H264.GER-STO.strm", filepath.Base(resultPath))

	got, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	assert.Equal(t, directURL+"\n", string(got))
}

func TestStrmRunnerProxyModeWritesSignedBridgeURL(t *testing.T) {
	const directURL = "https://cdn.example/hls/master.m3u8"
	prober := newTestProber(domain.SiteSTo, "German Dub", "VOE", directURL)

	db := openTestDB(t)
	mappings := models.NewStrmUrlMappingStore(db)
	signer := strmproxy.NewSigner(strmproxy.AuthToken, "test-secret", "", 15*time.Minute)

	r := NewStrmRunner(prober, nil, nil, mappings, signer, StrmConfig{
		StrmDir:       t.TempDir(),
		ProxyMode:     true,
		ProviderOrder: []string{"VOE"},
		BaseURL:       "http://bridge.local:8080",
	})

	job := &models.Job{
		ID: "s2", Mode: domain.JobModeStrm,
		Site: domain.SiteSTo, Slug: "9-1-1", Season: 1, Episode: 3, Language: "German Dub",
	}
	resultPath, err := r.Run(context.Background(), job, nil)
	require.NoError(t, err)

	got, err := os.ReadFile(resultPath)
	require.NoError(t, err)
	line := strings.TrimSuffix(string(got), "\n")
	require.True(t, strings.HasPrefix(line, "http://bridge.local:8080/strm/stream?"), "unexpected strm content: %s", line)

	// The embedded query must verify against the same signer.
	u, err := url.Parse(line)
	require.NoError(t, err)
	q := u.Query()
	assert.Equal(t, "9-1-1", q.Get("slug"))
	assert.Equal(t, "German Dub", q.Get("lang"))
	require.NoError(t, signer.VerifyStream(q))

	// The resolved upstream URL is persisted for the proxy to read back.
	mapping, err := mappings.Get(context.Background(), domain.ProviderKey{
		EpisodeIdentity: domain.EpisodeIdentity{
			Site: domain.SiteSTo, Slug: "9-1-1", Season: 1, Episode: 3, Language: "German Dub",
		},
		Provider: "VOE",
	})
	require.NoError(t, err)
	assert.Equal(t, directURL, mapping.ResolvedURL)
}
