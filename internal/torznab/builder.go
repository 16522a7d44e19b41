// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package torznab implements the Torznab-subset XML response builder: a stateless formatter translating resolved episode/special state
// into RSS/XML items an arr client understands, never touching storage
// directly.
package torznab

import (
	"encoding/xml"
	"fmt"
	"time"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/magnet"
	"github.com/zzackllack/anibridge/pkg/releases"
)

// xmlAttr is one torznab:attr element (name/value pair).
type xmlAttr struct {
	XMLName xml.Name `xml:"torznab:attr"`
	Name    string   `xml:"name,attr"`
	Value   string   `xml:"value,attr"`
}

// xmlEnclosure is the magnet-carrying enclosure element of an item.
type xmlEnclosure struct {
	XMLName xml.Name `xml:"enclosure"`
	URL     string   `xml:"url,attr"`
	Length  int64    `xml:"length,attr"`
	Type    string   `xml:"type,attr"`
}

// xmlItem is one Torznab RSS item.
type xmlItem struct {
	XMLName     xml.Name `xml:"item"`
	Title       string   `xml:"title"`
	GUID        string   `xml:"guid"`
	Link        string   `xml:"link"`
	Comments    string   `xml:"comments,omitempty"`
	PubDate     string   `xml:"pubDate"`
	Size        int64    `xml:"size"`
	Category    int      `xml:"category"`
	Enclosure   xmlEnclosure
	Attrs       []xmlAttr `xml:"torznab:attr"`
}

// xmlChannel is the RSS channel wrapping every item in a response.
type xmlChannel struct {
	XMLName     xml.Name `xml:"channel"`
	Title       string   `xml:"title"`
	Description string   `xml:"description"`
	Link        string   `xml:"link"`
	Items       []xmlItem `xml:"item"`
}

// xmlRSS is the root element of every non-caps Torznab response.
type xmlRSS struct {
	XMLName xml.Name   `xml:"rss"`
	Version string     `xml:"version,attr"`
	XmlnsAtom string   `xml:"xmlns:atom,attr"`
	XmlnsTorznab string `xml:"xmlns:torznab,attr"`
	Channel xmlChannel `xml:"channel"`
}

// ItemParams carries everything needed to render one release item: an
// episode's resolved identity/quality/provider, plus optional absolute
// numbering and STRM-mode framing.
type ItemParams struct {
	Identity       domain.EpisodeIdentity
	Title          string
	Provider       string
	Mode           domain.JobMode
	SizeBytes      int64
	Height         int
	VCodec         string
	LanguageCode   string
	AbsoluteNumber *int
	Fallback       bool
}

// categoryTVAnime is the fixed Torznab category advertised in caps and used
// on every emitted item (5070 is the conventional "TV/Anime" subcategory).
const categoryTVAnime = 5070

// BuildItem renders one release item, encoding the synthetic magnet and
// attaching the `absoluteNumber`/`anibridgeFallback` attrs when applicable.
func BuildItem(p ItemParams) xmlItem {
	displayName := releaseDisplayName(p)
	hash := magnet.InfoHash(p.Identity, p.Provider, p.Mode)
	magnetURI := magnet.Encode(magnet.Payload{
		Identity:       p.Identity,
		Provider:       p.Provider,
		Mode:           p.Mode,
		DisplayName:    displayName,
		SizeBytes:      p.SizeBytes,
		AbsoluteNumber: p.AbsoluteNumber,
	})

	attrs := []xmlAttr{
		{Name: "size", Value: fmt.Sprintf("%d", p.SizeBytes)},
		{Name: "infohash", Value: hash},
		{Name: "seeders", Value: "1"},
		{Name: "leechers", Value: "0"},
		{Name: "language", Value: p.Identity.Language},
	}
	if p.AbsoluteNumber != nil {
		attrs = append(attrs, xmlAttr{Name: "absoluteNumber", Value: fmt.Sprintf("%d", *p.AbsoluteNumber)})
	}
	if p.Fallback {
		attrs = append(attrs, xmlAttr{Name: "anibridgeFallback", Value: "true"})
	}

	return xmlItem{
		Title:    displayName,
		GUID:     hash,
		Link:     magnetURI,
		PubDate:  time.Now().UTC().Format(time.RFC1123Z),
		Size:     p.SizeBytes,
		Category: categoryTVAnime,
		Enclosure: xmlEnclosure{
			URL:    magnetURI,
			Length: p.SizeBytes,
			Type:   "application/x-bittorrent",
		},
		Attrs: attrs,
	}
}

// releaseDisplayName renders the item title via the same
// releases.BuildReleaseName the download/STRM runner uses, so the release
// name an arr client sees from the Torznab feed matches the one the runner
// actually produces for that job, then appends ".STRM" for STRM-mode items
// and prefixes an "[ABS NNN]" marker when absolute numbering applies.
func releaseDisplayName(p ItemParams) string {
	languageCode := p.LanguageCode
	if languageCode == "" {
		languageCode = releases.LanguageCode(p.Identity.Language)
	}

	name := releases.BuildReleaseName(releases.NameParams{
		Title:        humanizeTitle(p.Title),
		Season:       p.Identity.Season,
		Episode:      p.Identity.Episode,
		Quality:      releases.Quality{Height: p.Height, VCodec: p.VCodec},
		LanguageCode: languageCode,
		ReleaseGroup: p.Identity.Site.ReleaseGroup(),
	})
	if p.Mode == domain.JobModeStrm {
		name += ".STRM"
	}
	if p.AbsoluteNumber != nil {
		name = fmt.Sprintf("[ABS %03d] %s", *p.AbsoluteNumber, name)
	}
	return name
}

func humanizeTitle(title string) string {
	if title == "" {
		return "Unknown"
	}
	return title
}

// newResponse wraps items in the standard RSS/channel envelope.
func newResponse(items []xmlItem) xmlRSS {
	return xmlRSS{
		Version:      "2.0",
		XmlnsAtom:    "http://www.w3.org/2005/Atom",
		XmlnsTorznab: "http://torznab.com/schemas/2015/feed",
		Channel: xmlChannel{
			Title:       "AniBridge",
			Description: "AniBridge Torznab indexer",
			Link:        "/",
			Items:       items,
		},
	}
}

// marshalResponse renders items as a complete XML document with declaration.
func marshalResponse(items []xmlItem) ([]byte, error) {
	out, err := xml.MarshalIndent(newResponse(items), "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
