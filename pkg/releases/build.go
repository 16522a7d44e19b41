// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package releases

import (
	"fmt"
	"strings"

	"github.com/zzackllack/anibridge/pkg/pathutil"
)

// Quality is the probed playback quality used to render a release name.
type Quality struct {
	Height int    // e.g. 1080; 0 if unknown
	VCodec string // e.g. "h264"; empty if unknown
}

// NameParams carries everything BuildReleaseName needs to render a
// filename-shaped release title such as "Naruto.S01E01.1080p.WEB.H264.GER-ANIWORLD".
type NameParams struct {
	Title        string
	Season       int
	Episode      int
	Quality      Quality
	LanguageCode string // e.g. "GER"
	ReleaseGroup string // e.g. "ANIWORLD", "STO"
}

// qualityToken renders rls-style quality/codec tokens from a probed Quality,
// falling back to WEB-only when resolution or codec metadata is unavailable.
func qualityToken(q Quality) string {
	var parts []string
	if q.Height > 0 {
		parts = append(parts, fmt.Sprintf("%dp", q.Height))
	}
	parts = append(parts, "WEB")
	if q.VCodec != "" {
		parts = append(parts, strings.ToUpper(q.VCodec))
	}
	return strings.Join(parts, ".")
}

// BuildReleaseName renders the canonical filename-shaped release title
// assembled from series/season/episode/quality/language, e.g.
// "Series.S01E01.1080p.WEB.H264.GER-GROUP". The title is dot-normalized the
// way scene release names are, and every segment is filesystem-sanitized so
// the result is always a safe path component.
func BuildReleaseName(p NameParams) string {
	title := dotNormalizeTitle(p.Title)
	episodeTag := fmt.Sprintf("S%02dE%02d", p.Season, p.Episode)
	quality := qualityToken(p.Quality)

	segments := []string{title, episodeTag, quality}
	if p.LanguageCode != "" || p.ReleaseGroup != "" {
		segments = append(segments, fmt.Sprintf("%s-%s", p.LanguageCode, p.ReleaseGroup))
	}

	name := strings.Join(segments, ".")
	return pathutil.SanitizePathSegment(name)
}

// languageCodes maps the engine's full language labels (as surfaced by a
// catalogue adapter's provider links, e.g. "German Dub") to the short scene
// tag a release name uses, e.g. "GER". An unrecognised label degrades to its
// first word, uppercased, rather than failing the whole naming step.
var languageCodes = map[string]string{
	"German Dub":  "GER",
	"German Sub":  "GER-SUB",
	"English Sub": "ENG-SUB",
	"English Dub": "ENG",
}

// LanguageCode renders the short release-name tag for a full language label.
func LanguageCode(label string) string {
	if code, ok := languageCodes[label]; ok {
		return code
	}
	fields := strings.Fields(label)
	if len(fields) == 0 {
		return ""
	}
	return strings.ToUpper(fields[0])
}

// dotNormalizeTitle converts a display title into the dot-separated token
// form release names use, e.g. "9-1-1: Lone Star" -> "9-1-1:.Lone.Star"; the
// colon is removed afterwards by BuildReleaseName's SanitizePathSegment pass.
func dotNormalizeTitle(title string) string {
	fields := strings.FieldsFunc(strings.TrimSpace(title), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n'
	})
	for i, f := range fields {
		fields[i] = strings.Trim(f, ".")
	}
	return strings.Join(fields, ".")
}
