// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package catalogue

import (
	"io"
	"strings"

	"golang.org/x/net/html"
)

// anchor is a minimal <a href="..."> extraction: the href and the
// concatenated text content of the node.
type anchor struct {
	Href string
	Text string
}

// findAnchors walks an HTML document and returns every <a> tag whose href
// matches any of the supplied path substrings (e.g. "/anime/stream/").
func findAnchors(r io.Reader, hrefContains ...string) ([]anchor, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	var anchors []anchor
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			href := attr(n, "href")
			if href != "" && containsAny(href, hrefContains) {
				anchors = append(anchors, anchor{Href: href, Text: textContent(n)})
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return anchors, nil
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}

func textContent(n *html.Node) string {
	var sb strings.Builder
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)
	return strings.TrimSpace(sb.String())
}

func containsAny(s string, substrs []string) bool {
	for _, sub := range substrs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// langKeyNames maps the numeric data-lang-key attribute AniWorld/s.to episode
// pages tag each hoster row with to the language label the rest of the
// engine (magnet payloads, release names) addresses it by.
var langKeyNames = map[string]string{
	"1": "German Dub",
	"2": "English Sub",
	"3": "German Sub",
}

// findProviderLinks walks an episode page for <li data-lang-key="N"> rows,
// each wrapping a hoster redirect anchor and an <img alt="Provider"> icon.
// This element shape is common to both AniWorld's and s.to's v2 player
// markup, so both adapters share it.
func findProviderLinks(r io.Reader) (map[string][]ProviderLink, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, err
	}

	links := make(map[string][]ProviderLink)
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "li" {
			if langKey := attr(n, "data-lang-key"); langKey != "" {
				if lang, ok := langKeyNames[langKey]; ok {
					if link, ok := extractProviderLink(n); ok {
						links[lang] = append(links[lang], link)
					}
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return links, nil
}

// extractProviderLink finds the redirect href and provider name nested
// inside one <li data-lang-key="..."> hoster row.
func extractProviderLink(li *html.Node) (ProviderLink, bool) {
	var href, provider string
	var walk func(*html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode {
			switch n.Data {
			case "a":
				if h := attr(n, "href"); h != "" && href == "" {
					href = h
				}
				if t := attr(n, "data-link-target"); t != "" {
					href = t
				}
			case "img":
				if alt := attr(n, "alt"); alt != "" {
					provider = alt
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(li)
	if href == "" || provider == "" {
		return ProviderLink{}, false
	}
	return ProviderLink{Provider: strings.TrimSpace(provider), URL: href}, true
}
