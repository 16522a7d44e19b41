// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"encoding/base64"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVoeExtractDecodesBase64Source(t *testing.T) {
	encoded := base64.StdEncoding.EncodeToString([]byte(`"https://cdn.example/video.m3u8"`))
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<script>var d={'hls':'` + encoded + `'}</script>`))
	}))
	defer server.Close()

	e := voeExtractor{}
	url, err := e.Extract(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/video.m3u8", url)
}

func TestVoeExtractFallsBackToDirectURLScan(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`no bootstrap here but https://cdn.example/fallback.mp4 is embedded`))
	}))
	defer server.Close()

	e := voeExtractor{}
	url, err := e.Extract(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/fallback.mp4", url)
}

func TestVoeExtractNoSourceReturnsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html>nothing here</html>`))
	}))
	defer server.Close()

	e := voeExtractor{}
	_, err := e.Extract(context.Background(), server.Client(), server.URL)
	assert.Error(t, err)
	var noDirect ErrNoDirectURL
	assert.ErrorAs(t, err, &noDirect)
}

func TestFilemoonExtractMatchesJWPlayerSource(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`sources: [{file: "https://cdn.example/stream.m3u8", label: "1080p"}]`))
	}))
	defer server.Close()

	e := filemoonExtractor{}
	url, err := e.Extract(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/stream.m3u8", url)
}

func TestDoodstreamExtractMatchesSourcesBackup(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`player.sourcesBackup = ["https://cdn.example/dood.mp4"];`))
	}))
	defer server.Close()

	e := doodstreamExtractor{}
	url, err := e.Extract(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/dood.mp4", url)
}

func TestVidozaExtractMatchesSourceTag(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<video><source src="https://cdn.example/vidoza.mp4" type="video/mp4"></video>`))
	}))
	defer server.Close()

	e := vidozaExtractor{}
	url, err := e.Extract(context.Background(), server.Client(), server.URL)
	require.NoError(t, err)
	assert.Equal(t, "https://cdn.example/vidoza.mp4", url)
}

func TestDefaultRegistryCoversProviderOrder(t *testing.T) {
	r := DefaultRegistry()
	for _, name := range []string{"VOE", "Filemoon", "Doodstream", "Vidoza"} {
		assert.NotNil(t, r.Get(name), "missing extractor for %s", name)
	}
	assert.Nil(t, r.Get("Unknown"))
}
