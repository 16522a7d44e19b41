// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package domain holds the small, explicit value types shared across the
// engine: catalogue sites, job modes/statuses, provider descriptors, and the
// capability description of a catalogue adapter. None of these carry
// behaviour beyond parsing/formatting; they exist so the rest of the engine
// never has to guess at a string constant.
package domain

import "fmt"

// Site identifies a configured streaming catalogue.
type Site string

const (
	SiteAniWorld Site = "aniworld"
	SiteSTo      Site = "s.to"
	SiteMegakino Site = "megakino"
)

// ParseSite validates a free-form site identifier against the closed set of
// catalogues the engine knows about.
func ParseSite(s string) (Site, error) {
	switch Site(s) {
	case SiteAniWorld, SiteSTo, SiteMegakino:
		return Site(s), nil
	default:
		return "", fmt.Errorf("unknown site %q", s)
	}
}

func (s Site) Valid() bool {
	switch s {
	case SiteAniWorld, SiteSTo, SiteMegakino:
		return true
	default:
		return false
	}
}

// MagnetPrefix returns the parameter prefix this site's magnets use
// ("aw_" for AniWorld, "sto_" for s.to). Megakino shares the aw_ prefix.
func (s Site) MagnetPrefix() string {
	if s == SiteSTo {
		return "sto_"
	}
	return "aw_"
}

// ReleaseGroup is the tag appended to synthesised release names, e.g.
// "GER-ANIWORLD" or "GER-STO".
func (s Site) ReleaseGroup() string {
	switch s {
	case SiteSTo:
		return "STO"
	case SiteMegakino:
		return "MEGAKINO"
	default:
		return "ANIWORLD"
	}
}

// Host is the canonical domain name used in magnet aw_site/sto_site values.
func (s Site) Host() string {
	switch s {
	case SiteSTo:
		return "s.to"
	case SiteMegakino:
		return "megakino.to"
	default:
		return "aniworld.to"
	}
}

// JobMode distinguishes a full media download from a playlist-pointer
// (.strm) file write. Distinct modes yield distinct magnet info hashes so
// both variants of the same episode can coexist as separate client tasks.
type JobMode string

const (
	JobModeDownload JobMode = "download"
	JobModeStrm     JobMode = "strm"
)

func ParseJobMode(s string) (JobMode, error) {
	switch JobMode(s) {
	case JobModeDownload, JobModeStrm:
		return JobMode(s), nil
	case "":
		return JobModeDownload, nil
	default:
		return "", fmt.Errorf("unknown job mode %q", s)
	}
}

// JobStatus is a closed enum of the lifecycle states a Job may occupy.
// Transitions are strictly monotonic: Queued -> Downloading -> terminal.
type JobStatus string

const (
	JobStatusQueued      JobStatus = "queued"
	JobStatusDownloading JobStatus = "downloading"
	JobStatusCompleted   JobStatus = "completed"
	JobStatusFailed      JobStatus = "failed"
	JobStatusCancelled   JobStatus = "cancelled"
)

// ParseJobStatus validates a stored status string against the closed set of
// lifecycle states.
func ParseJobStatus(s string) (JobStatus, error) {
	switch JobStatus(s) {
	case JobStatusQueued, JobStatusDownloading, JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return JobStatus(s), nil
	default:
		return "", fmt.Errorf("unknown job status %q", s)
	}
}

// AllJobStatuses lists the closed set of lifecycle states, for callers that
// need to report a value (e.g. a metric) for every status regardless of
// whether any job currently occupies it.
func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusQueued, JobStatusDownloading, JobStatusCompleted, JobStatusFailed, JobStatusCancelled,
	}
}

// Terminal reports whether the status is a terminal (non-resumable) state.
func (s JobStatus) Terminal() bool {
	switch s {
	case JobStatusCompleted, JobStatusFailed, JobStatusCancelled:
		return true
	default:
		return false
	}
}

// CanTransitionTo enforces the monotonic lifecycle: queued -> downloading ->
// {completed|failed|cancelled}. No transition ever goes backwards, and a
// terminal status can never be left.
func (from JobStatus) CanTransitionTo(to JobStatus) bool {
	if from.Terminal() {
		return false
	}
	switch from {
	case JobStatusQueued:
		return to == JobStatusDownloading || to.Terminal()
	case JobStatusDownloading:
		return to.Terminal()
	default:
		return false
	}
}

// Provider is a value record describing a video-hosting service that fronts
// direct URLs for catalogue episodes. Providers are data, not types: adding
// one never requires a new Go type, only a new record in ProviderOrder.
type Provider struct {
	ID                string
	BaseURL           string
	DefaultLanguages  []string
	ReleaseGroup      string
	HasAlphabetIndex  bool
	RequiresReferer   bool
}

// CatalogueAdapter describes what a site supports so the resolver and
// specials mapper can branch on capability rather than on a type hierarchy.
type CatalogueAdapter struct {
	Site             Site
	SupportsIndex    bool // can build a full alphabet/catalogue index
	SupportsSuggest  bool // has a suggest/autocomplete API
	SupportsSpecials bool // has a /filme (or equivalent) specials page
	SearchOnly       bool // resolver accepts slug/URL only, no fuzzy matching
}
