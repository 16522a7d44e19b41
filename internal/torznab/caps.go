// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package torznab

import "encoding/xml"

// capsParam is one supported search parameter advertised under t=caps.
type capsParam struct {
	XMLName  xml.Name `xml:"param"`
	Name     string   `xml:"name,attr"`
	Required string   `xml:"required,attr,omitempty"`
}

type capsSearching struct {
	XMLName       xml.Name `xml:"searching"`
	Search        capsSearchMode `xml:"search"`
	TVSearch      capsSearchMode `xml:"tv-search"`
}

type capsSearchMode struct {
	Available       string `xml:"available,attr"`
	SupportedParams string `xml:"supportedParams,attr"`
}

type capsCategory struct {
	XMLName xml.Name `xml:"category"`
	ID      int      `xml:"id,attr"`
	Name    string   `xml:"name,attr"`
}

type capsCategories struct {
	XMLName    xml.Name       `xml:"categories"`
	Categories []capsCategory `xml:"category"`
}

type capsServer struct {
	XMLName xml.Name `xml:"server"`
	Title   string   `xml:"title,attr"`
}

type capsRoot struct {
	XMLName    xml.Name `xml:"caps"`
	Server     capsServer
	Searching  capsSearching
	Categories capsCategories
}

// supportedParams is the fixed parameter list caps advertises for
// tv-search. The id parameters (tvdbid, tmdbid, imdbid, rid, tvmazeid) are
// advertised only: no search handler reads them, and special-title matching
// works from the q text alone.
const supportedParams = "q,season,ep,abs,tvdbid,tmdbid,imdbid,rid,tvmazeid"

// BuildCaps renders the static t=caps document. It never varies with
// configuration: every search mode and parameter AniBridge supports is
// always advertised, regardless of which catalogue sites are enabled.
func BuildCaps() ([]byte, error) {
	doc := capsRoot{
		Server: capsServer{Title: "AniBridge"},
		Searching: capsSearching{
			Search:   capsSearchMode{Available: "yes", SupportedParams: "q"},
			TVSearch: capsSearchMode{Available: "yes", SupportedParams: supportedParams},
		},
		Categories: capsCategories{
			Categories: []capsCategory{
				{ID: categoryTVAnime, Name: "TV/Anime"},
			},
		},
	}

	out, err := xml.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, err
	}
	return append([]byte(xml.Header), out...), nil
}
