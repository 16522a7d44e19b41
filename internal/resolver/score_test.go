// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package resolver

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestScoreTitleExactMatchClearsConfidenceFloor(t *testing.T) {
	s := scoreTitle("Naruto", "Naruto")
	assert.GreaterOrEqual(t, s.Total, ConfidenceFloor)
	assert.Equal(t, weightExact, s.Exact)
}

func TestScoreTitleUnrelatedStringsScoresLow(t *testing.T) {
	s := scoreTitle("Naruto", "Completely Different Show Title")
	assert.Less(t, s.Total, ConfidenceFloor)
}

func TestScoreTitleIgnoresCaseAndPunctuation(t *testing.T) {
	s := scoreTitle("csi miami", "CSI: Miami")
	assert.GreaterOrEqual(t, s.Total, ConfidenceFloor)
}

func TestScoreTitleTokenOrderDoesNotMatter(t *testing.T) {
	s := scoreTitle("Miami CSI", "CSI Miami")
	assert.Greater(t, s.TokenF1, 0.0)
}

func TestBestTitleScorePicksHighestAmongAltTitles(t *testing.T) {
	s := bestTitleScore("Naruto Shippuden", []string{"Naruto", "Naruto Shippuden", "Naruto: The Movie"})
	assert.Equal(t, weightExact, s.Exact)
}

func TestSequenceGateSkipsUnrelatedStrings(t *testing.T) {
	s := scoreTitle("xyz", "Naruto")
	assert.Equal(t, 0.0, s.Sequence)
}
