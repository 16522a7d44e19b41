// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package magnet

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zzackllack/anibridge/internal/domain"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	abs := 13
	p := Payload{
		Identity: domain.EpisodeIdentity{
			Site:     domain.SiteAniWorld,
			Slug:     "naruto",
			Season:   1,
			Episode:  1,
			Language: "German Dub",
		},
		Provider:       "VOE",
		Mode:           domain.JobModeDownload,
		DisplayName:    "Naruto.S01E01.1080p.WEB.H264.GER-ANIWORLD",
		SizeBytes:      1_500_000_000,
		AbsoluteNumber: &abs,
	}

	encoded := Encode(p)
	decoded, err := Decode(encoded)
	require.NoError(t, err)

	assert.Equal(t, p.Identity, decoded.Identity)
	assert.Equal(t, p.Provider, decoded.Provider)
	assert.Equal(t, p.Mode, decoded.Mode)
	assert.Equal(t, p.DisplayName, decoded.DisplayName)
	assert.Equal(t, p.SizeBytes, decoded.SizeBytes)
	require.NotNil(t, decoded.AbsoluteNumber)
	assert.Equal(t, 13, *decoded.AbsoluteNumber)
}

func TestEncodeUsesStoPrefixForStoSite(t *testing.T) {
	p := Payload{
		Identity: domain.EpisodeIdentity{Site: domain.SiteSTo, Slug: "9-1-1", Season: 1, Episode: 3, Language: "German Dub"},
		Provider: "VOE",
		Mode:     domain.JobModeStrm,
	}

	encoded := Encode(p)
	assert.Contains(t, encoded, "sto_slug=9-1-1")
	assert.Contains(t, encoded, "sto_mode=strm")
	assert.NotContains(t, encoded, "aw_slug")
}

func TestDownloadAndStrmModesYieldDifferentInfoHashes(t *testing.T) {
	id := domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"}
	downloadHash := InfoHash(id, "VOE", domain.JobModeDownload)
	strmHash := InfoHash(id, "VOE", domain.JobModeStrm)
	assert.NotEqual(t, downloadHash, strmHash)
	assert.Len(t, downloadHash, 40)
}

func TestDecodeRejectsMissingScheme(t *testing.T) {
	_, err := Decode("not-a-magnet")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsUnknownSite(t *testing.T) {
	_, err := Decode("magnet:?xt=urn:btih:deadbeef&aw_site=unknown.example&aw_slug=x&aw_s=1&aw_e=1&aw_lang=German")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsTamperedInfoHash(t *testing.T) {
	p := Payload{
		Identity: domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"},
		Provider: "VOE",
		Mode:     domain.JobModeDownload,
	}
	encoded := Encode(p)
	tampered := encoded[:len(encoded)-4] + "beef"
	_, err := Decode(tampered)
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsMissingRequiredParam(t *testing.T) {
	_, err := Decode("magnet:?xt=urn:btih:deadbeef&aw_site=aniworld.to&aw_s=1&aw_e=1&aw_lang=German")
	assert.ErrorIs(t, err, ErrMalformed)
}

func TestDecodeRejectsAmbiguousSitePrefix(t *testing.T) {
	p := Payload{
		Identity: domain.EpisodeIdentity{Site: domain.SiteAniWorld, Slug: "naruto", Season: 1, Episode: 1, Language: "German Dub"},
		Provider: "VOE",
		Mode:     domain.JobModeDownload,
	}
	ambiguous := Encode(p) + "&sto_site=s.to"
	_, err := Decode(ambiguous)
	assert.ErrorIs(t, err, ErrMalformed)
}
