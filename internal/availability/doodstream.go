// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"net/http"
	"regexp"
)

// doodstreamSourcePattern matches Doodstream's player bootstrap, which
// assigns the direct source to a "sourcesBackup"/"sources" JS variable.
var doodstreamSourcePattern = regexp.MustCompile(`sources?(?:Backup)?\s*=\s*\[?"(https?://[^"]+?\.(?:mp4|m3u8)[^"]*)"`)

type doodstreamExtractor struct{}

func (doodstreamExtractor) Name() string { return "Doodstream" }

func (e doodstreamExtractor) Extract(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	body, err := fetchPage(ctx, client, pageURL)
	if err != nil {
		return "", err
	}

	if m := doodstreamSourcePattern.FindStringSubmatch(body); m != nil {
		return m[1], nil
	}
	if url, ok := findDirectMediaURL(body); ok {
		return url, nil
	}
	return "", ErrNoDirectURL{Provider: e.Name(), PageURL: pageURL}
}
