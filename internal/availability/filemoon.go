// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package availability

import (
	"context"
	"net/http"
	"regexp"
)

// filemoonSourcePattern matches Filemoon's jwplayer bootstrap, which embeds
// the HLS source directly as a "file" key inside the sources array.
var filemoonSourcePattern = regexp.MustCompile(`file\s*:\s*"(https?://[^"]+?\.m3u8[^"]*)"`)

type filemoonExtractor struct{}

func (filemoonExtractor) Name() string { return "Filemoon" }

func (e filemoonExtractor) Extract(ctx context.Context, client *http.Client, pageURL string) (string, error) {
	body, err := fetchPage(ctx, client, pageURL)
	if err != nil {
		return "", err
	}

	if m := filemoonSourcePattern.FindStringSubmatch(body); m != nil {
		return m[1], nil
	}
	if url, ok := findDirectMediaURL(body); ok {
		return url, nil
	}
	return "", ErrNoDirectURL{Provider: e.Name(), PageURL: pageURL}
}
