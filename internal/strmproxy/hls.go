// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package strmproxy

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"
)

// uriAttrRegex extracts the value of a quoted URI="..." attribute from an
// HLS tag line.
var uriAttrRegex = regexp.MustCompile(`URI="([^"]*)"`)

// uriAttrTags is the set of HLS tags that carry a nested resource reference
// via a URI attribute rather than as a bare following line, per RFC 8216
// (and its extensions for low-latency delivery).
var uriAttrTags = map[string]bool{
	"#EXT-X-KEY":                true,
	"#EXT-X-MAP":                true,
	"#EXT-X-MEDIA":              true,
	"#EXT-X-I-FRAME-STREAM-INF": true,
	"#EXT-X-SESSION-KEY":        true,
	"#EXT-X-SESSION-DATA":       true,
	"#EXT-X-PRELOAD-HINT":       true,
	"#EXT-X-RENDITION-REPORT":   true,
}

// RewriteURLFunc turns an absolute upstream URL (already resolved against
// the playlist's own URL) into the URL a player should fetch instead,
// typically a signed /strm/proxy link back at this bridge.
type RewriteURLFunc func(absoluteURL string) string

// IsMasterPlaylist reports whether body is a variant-selection (master)
// playlist rather than a media playlist, by checking for stream-level tags.
// The proxy does not call it; RewritePlaylist handles both uniformly.
func IsMasterPlaylist(body []byte) bool {
	return bytes.Contains(body, []byte("#EXT-X-STREAM-INF")) || bytes.Contains(body, []byte("#EXT-X-I-FRAME-STREAM-INF"))
}

// RewritePlaylist rewrites every nested URI in an HLS playlist fetched from
// baseURL so it keeps routing through rewrite, leaving every other line and
// every unrecognised tag byte-for-byte untouched. Line terminators are
// preserved as found: RFC 8216 permits CRLF-terminated playlists, and a
// playlist whose final line has no terminator stays that way.
func RewritePlaylist(body []byte, baseURL *url.URL, rewrite RewriteURLFunc) ([]byte, error) {
	var out bytes.Buffer
	rest := body
	for len(rest) > 0 {
		idx := bytes.IndexByte(rest, '\n')
		var line, terminator []byte
		if idx < 0 {
			line, rest = rest, nil
		} else {
			line, terminator = rest[:idx], rest[idx:idx+1]
			if n := len(line); n > 0 && line[n-1] == '\r' {
				line, terminator = line[:n-1], rest[idx-1:idx+1]
			}
			rest = rest[idx+1:]
		}
		out.WriteString(rewriteLine(string(line), baseURL, rewrite))
		out.Write(terminator)
	}
	return out.Bytes(), nil
}

func rewriteLine(line string, baseURL *url.URL, rewrite RewriteURLFunc) string {
	if line == "" {
		return line
	}

	if !strings.HasPrefix(line, "#") {
		return resolveAndRewrite(line, baseURL, rewrite)
	}

	tagName := line
	if idx := strings.IndexByte(line, ':'); idx >= 0 {
		tagName = line[:idx]
	}
	if !uriAttrTags[tagName] {
		return line
	}

	return uriAttrRegex.ReplaceAllStringFunc(line, func(match string) string {
		sub := uriAttrRegex.FindStringSubmatch(match)
		if len(sub) != 2 {
			return match
		}
		return `URI="` + resolveAndRewrite(sub[1], baseURL, rewrite) + `"`
	})
}

func resolveAndRewrite(raw string, baseURL *url.URL, rewrite RewriteURLFunc) string {
	ref, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	absolute := baseURL.ResolveReference(ref).String()
	return rewrite(absolute)
}
