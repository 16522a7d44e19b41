// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"net/http"
	"regexp"
)

// vidozaSourcePattern matches Vidoza's HTML5 <source> tag, which links the
// mp4 directly rather than bootstrapping a JS player.
var vidozaSourcePattern = regexp.MustCompile(`<source\s+src="(https?://[^"]+?\.mp4[^"]*)"`)

type vidozaExtractor struct{}

func (vidozaExtractor) Name() string { return "Vidoza" }

func (e vidozaExtractor) Extract(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	body, err := fetchPage(ctx, client, pageURL)
	if err != nil {
		return "", err
	}

	if m := vidozaSourcePattern.FindStringSubmatch(body); m != nil {
		return m[1], nil
	}
	if url, ok := findDirectMediaURL(body); ok {
		return url, nil
	}
	return "", ErrNoDirectURL{Provider: e.Name(), PageURL: pageURL}
}
