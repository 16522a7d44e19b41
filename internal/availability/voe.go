// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"encoding/base64"
	"net/http"
	"regexp"
)

// voeSourcePattern matches VOE's player bootstrap, which base64-encodes the
// HLS source inside a single-quoted JS string assigned to a data variable.
var voeSourcePattern = regexp.MustCompile(`'hls'\s*:\s*'([A-Za-z0-9+/=]+)'`)

type voeExtractor struct{}

func (voeExtractor) Name() string { return "VOE" }

// Extract follows the alvarorichard-GoAnime scraper's shape: fetch the
// redirect/embed page, look for the provider's known bootstrap variable,
// base64-decode it, and fall back to a bare .m3u8/.mp4 scan when the
// bootstrap shape doesn't match (the hoster rotated its markup).
func (e voeExtractor) Extract(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	body, err := fetchPage(ctx, client, pageURL)
	if err != nil {
		return "", err
	}

	if m := voeSourcePattern.FindStringSubmatch(body); m != nil {
		if decoded, err := base64.StdEncoding.DecodeString(m[1]); err == nil {
			if url, ok := findDirectMediaURL(string(decoded)); ok {
				return url, nil
			}
		}
	}

	if url, ok := findDirectMediaURL(body); ok {
		return url, nil
	}
	return "", ErrNoDirectURL{Provider: e.Name(), PageURL: pageURL}
}
