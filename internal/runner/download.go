// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package runner

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/pkg/releases"
)

// DownloadConfig carries the tunables DownloadRunner needs, lifted from
// config.Config by the caller the same way scheduler.Config is.
type DownloadConfig struct {
	DownloadDir   string
	ProviderOrder []string
}

// DownloadRunner implements scheduler.Runner for mode=download: it resolves
// a direct URL via provider fallback, streams it to a temp file under
// DownloadDir, then atomically renames it to the computed release name
// in place.
type DownloadRunner struct {
	prober  *availability.Prober
	client  *http.Client
	cache   *availability.Cache
	parser  *releases.Parser
	cfg     DownloadConfig
}

// NewDownloadRunner builds a DownloadRunner. cache supplies probed quality
// metadata for release naming; parser extracts title/season/episode tokens
// out of an optional title_hint (see resolveNaming).
func NewDownloadRunner(prober *availability.Prober, cache *availability.Cache, client *http.Client, parser *releases.Parser, cfg DownloadConfig) *DownloadRunner {
	if parser == nil {
		parser = releases.NewDefaultParser()
	}
	return &DownloadRunner{prober: prober, client: client, cache: cache, parser: parser, cfg: cfg}
}

// Run implements scheduler.Runner.
func (r *DownloadRunner) Run(ctx context.Context, job *models.Job, progress func(percent float64, downloadedBytes, totalBytes, speedBps, etaSeconds int64, message string)) (string, error) {
	identity := domain.EpisodeIdentity{
		Site:     job.Site,
		Slug:     job.Slug,
		Season:   job.Season,
		Episode:  job.Episode,
		Language: job.Language,
	}

	resolved, err := r.prober.Resolve(ctx, identity, job.Provider, r.cfg.ProviderOrder)
	if err != nil {
		return "", fmt.Errorf("download: resolve provider: %w", err)
	}

	if err := os.MkdirAll(r.cfg.DownloadDir, 0o750); err != nil {
		return "", fmt.Errorf("download: create download dir: %w", err)
	}

	tempPath := filepath.Join(r.cfg.DownloadDir, ".tmp-"+uuid.NewString())
	if err := fetchToFile(ctx, r.client, resolved.DirectURL, tempPath, progress); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("download: fetch: %w", err)
	}

	name := r.releaseName(ctx, job, identity, resolved.Provider)
	ext := filepath.Ext(resolved.DirectURL)
	if ext == "" || len(ext) > 5 {
		ext = ".mkv"
	}
	finalPath := filepath.Join(r.cfg.DownloadDir, name+ext)

	if err := os.Rename(tempPath, finalPath); err != nil {
		os.Remove(tempPath)
		return "", fmt.Errorf("download: finalize file: %w", err)
	}

	return finalPath, nil
}

// releaseName computes the final release-name-shaped filename. Quality
// comes from the availability cache (already populated by a prior probe, or
// probed fresh here); title/season/episode default to the job's own
// (slug-derived title, source season/episode) but a title_hint overrides
// the title and season/episode tokens it carries (alias numbering).
func (r *DownloadRunner) releaseName(ctx context.Context, job *models.Job, identity domain.EpisodeIdentity, provider string) string {
	title := humanizeSlug(job.Slug)
	season, episode := job.Season, job.Episode

	if job.TitleHint != "" {
		parsed := r.parser.Parse(job.TitleHint)
		if parsed.Title != "" {
			title = parsed.Title
		}
		if parsed.Series != 0 {
			season = parsed.Series
		}
		if parsed.Episode != 0 {
			episode = parsed.Episode
		}
	}

	quality := releases.Quality{}
	if avail, err := r.cache.Get(ctx, identity, provider); err == nil && avail.Available {
		if avail.Height != nil {
			quality.Height = *avail.Height
		}
		if avail.VCodec != nil {
			quality.VCodec = *avail.VCodec
		}
	}

	return releases.BuildReleaseName(releases.NameParams{
		Title:        title,
		Season:       season,
		Episode:      episode,
		Quality:      quality,
		LanguageCode: releases.LanguageCode(job.Language),
		ReleaseGroup: job.Site.ReleaseGroup(),
	})
}

// humanizeSlug turns a catalogue slug ("kaguya-sama-love-is-war") into a
// best-effort display title ("Kaguya Sama Love Is War") for release naming
// when no title_hint was supplied. An all-numeric slug like "9-1-1" is a
// literal hyphenated title, not hyphen-separated words, and passes through
// unchanged.
func humanizeSlug(slug string) string {
	words := strings.Split(slug, "-")
	numeric := true
	for _, w := range words {
		if w == "" {
			continue
		}
		if _, err := strconv.Atoi(w); err != nil {
			numeric = false
			break
		}
	}
	if numeric {
		return slug
	}
	for i, w := range words {
		if w == "" {
			continue
		}
		words[i] = strings.ToUpper(w[:1]) + w[1:]
	}
	return strings.Join(words, " ")
}
