// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package magnet encodes and decodes the synthetic BitTorrent-magnet strings
// that carry episode identity between the Torznab façade and the
// qBittorrent façade. No BitTorrent swarm is ever joined; the magnet is
// purely a transport shape the two façades already speak.
package magnet

import (
	"crypto/sha1"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"github.com/zzackllack/anibridge/internal/domain"
)

// ErrMalformed is returned when a magnet string cannot be decoded into a
// well-formed Payload.
var ErrMalformed = errors.New("magnet: malformed payload")

// Payload is the decoded content of one synthetic magnet.
type Payload struct {
	Identity       domain.EpisodeIdentity
	Provider       string
	Mode           domain.JobMode
	DisplayName    string
	SizeBytes      int64
	AbsoluteNumber *int
}

// InfoHash computes the deterministic 40-hex digest for a payload. Distinct
// modes yield distinct hashes so download and STRM variants of the same
// episode coexist as separate client tasks.
func InfoHash(id domain.EpisodeIdentity, provider string, mode domain.JobMode) string {
	sum := sha1.Sum([]byte(strings.Join([]string{
		string(id.Site), id.Slug, strconv.Itoa(id.Season), strconv.Itoa(id.Episode),
		id.Language, provider, string(mode),
	}, "|")))
	return hex.EncodeToString(sum[:])
}

// Encode renders a Payload as a magnet URI using the site's parameter
// prefix (aw_ for AniWorld/megakino, sto_ for s.to).
func Encode(p Payload) string {
	prefix := p.Identity.Site.MagnetPrefix()
	hash := InfoHash(p.Identity, p.Provider, p.Mode)

	v := url.Values{}
	v.Set("xt", "urn:btih:"+hash)
	v.Set("dn", p.DisplayName)
	v.Set("xl", strconv.FormatInt(p.SizeBytes, 10))
	v.Set(prefix+"slug", p.Identity.Slug)
	v.Set(prefix+"s", strconv.Itoa(p.Identity.Season))
	v.Set(prefix+"e", strconv.Itoa(p.Identity.Episode))
	v.Set(prefix+"lang", p.Identity.Language)
	v.Set(prefix+"provider", p.Provider)
	v.Set(prefix+"site", p.Identity.Site.Host())
	if p.Mode == domain.JobModeStrm {
		v.Set(prefix+"mode", "strm")
	}
	if p.AbsoluteNumber != nil {
		v.Set(prefix+"abs", strconv.Itoa(*p.AbsoluteNumber))
	}

	// url.Values.Encode sorts keys; magnet consumers don't care about
	// parameter order, only the "magnet:?" scheme prefix matters.
	return "magnet:?" + v.Encode()
}

// Decode parses a magnet URI previously produced by Encode. It rejects
// payloads missing any required parameter or carrying an unrecognised site,
// since ambiguous decodes would silently corrupt downstream job identity.
func Decode(raw string) (Payload, error) {
	trimmed := strings.TrimPrefix(raw, "magnet:?")
	if trimmed == raw {
		return Payload{}, fmt.Errorf("%w: missing magnet scheme", ErrMalformed)
	}

	values, err := url.ParseQuery(trimmed)
	if err != nil {
		return Payload{}, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	prefix, site, err := detectSitePrefix(values)
	if err != nil {
		return Payload{}, err
	}

	season, err := requiredInt(values, prefix+"s")
	if err != nil {
		return Payload{}, err
	}
	episode, err := requiredInt(values, prefix+"e")
	if err != nil {
		return Payload{}, err
	}
	slug := values.Get(prefix + "slug")
	if slug == "" {
		return Payload{}, fmt.Errorf("%w: missing %sslug", ErrMalformed, prefix)
	}
	language := values.Get(prefix + "lang")
	if language == "" {
		return Payload{}, fmt.Errorf("%w: missing %slang", ErrMalformed, prefix)
	}

	mode := domain.JobModeDownload
	if values.Get(prefix+"mode") == "strm" {
		mode = domain.JobModeStrm
	}

	var absolute *int
	if raw := values.Get(prefix + "abs"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			return Payload{}, fmt.Errorf("%w: invalid %sabs: %w", ErrMalformed, prefix, err)
		}
		absolute = &n
	}

	sizeBytes, _ := strconv.ParseInt(values.Get("xl"), 10, 64)

	p := Payload{
		Identity: domain.EpisodeIdentity{
			Site:     site,
			Slug:     slug,
			Season:   season,
			Episode:  episode,
			Language: language,
		},
		Provider:       values.Get(prefix + "provider"),
		Mode:           mode,
		DisplayName:    values.Get("dn"),
		SizeBytes:      sizeBytes,
		AbsoluteNumber: absolute,
	}

	xt := values.Get("xt")
	wantHash := InfoHash(p.Identity, p.Provider, p.Mode)
	if xt != "urn:btih:"+wantHash {
		return Payload{}, fmt.Errorf("%w: infohash mismatch", ErrMalformed)
	}

	return p, nil
}

func detectSitePrefix(values url.Values) (string, domain.Site, error) {
	stoRaw := values.Get("sto_site")
	awRaw := values.Get("aw_site")
	if stoRaw != "" && awRaw != "" {
		return "", "", fmt.Errorf("%w: ambiguous payload: both aw_site and sto_site present", ErrMalformed)
	}
	if stoRaw != "" {
		site, err := parseSiteParam(stoRaw)
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return "sto_", site, nil
	}
	if awRaw != "" {
		site, err := parseSiteParam(awRaw)
		if err != nil {
			return "", "", fmt.Errorf("%w: %w", ErrMalformed, err)
		}
		return "aw_", site, nil
	}
	return "", "", fmt.Errorf("%w: no aw_site or sto_site parameter", ErrMalformed)
}

// parseSiteParam accepts a site's canonical host (as Encode writes it) or
// its bare identifier.
func parseSiteParam(raw string) (domain.Site, error) {
	for _, s := range []domain.Site{domain.SiteAniWorld, domain.SiteSTo, domain.SiteMegakino} {
		if raw == s.Host() {
			return s, nil
		}
	}
	return domain.ParseSite(raw)
}

func requiredInt(values url.Values, key string) (int, error) {
	raw := values.Get(key)
	if raw == "" {
		return 0, fmt.Errorf("%w: missing %s", ErrMalformed, key)
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: invalid %s: %w", ErrMalformed, key, err)
	}
	return n, nil
}
