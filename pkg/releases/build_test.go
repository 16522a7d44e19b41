// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package releases

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildReleaseNameWithFullQuality(t *testing.T) {
	name := BuildReleaseName(NameParams{
		Title:        "Naruto",
		Season:       1,
		Episode:      1,
		Quality:      Quality{Height: 1080, VCodec: "h264"},
		LanguageCode: "GER",
		ReleaseGroup: "ANIWORLD",
	})
	assert.Equal(t, "Naruto.S01E01.1080p.WEB.H264.GER-ANIWORLD", name)
}

func TestBuildReleaseNameWithoutProbedQuality(t *testing.T) {
	name := BuildReleaseName(NameParams{
		Title:        "9-1-1: Lone Star",
		Season:       1,
		Episode:      3,
		LanguageCode: "GER",
		ReleaseGroup: "STO",
	})
	assert.Equal(t, "9-1-1.Lone.Star.S01E03.WEB.GER-STO", name)
}

func TestLanguageCodeKnownAndUnknownLabels(t *testing.T) {
	assert.Equal(t, "GER", LanguageCode("German Dub"))
	assert.Equal(t, "ENG-SUB", LanguageCode("English Sub"))
	assert.Equal(t, "FRENCH", LanguageCode("French Dub (fan)"))
	assert.Equal(t, "", LanguageCode(""))
}
