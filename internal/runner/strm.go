// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package runner

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/strmproxy"
	"github.com/zzackllack/anibridge/pkg/pathutil"
	"github.com/zzackllack/anibridge/pkg/releases"
)

// StrmConfig carries the tunables StrmRunner needs.
type StrmConfig struct {
	// StrmDir is the root directory under which .strm files are written,
	// mirroring DownloadConfig.DownloadDir for mode=download.
	StrmDir string
	// ProxyMode selects between writing the resolved direct URL verbatim
	// (false, StrmProxyMode "direct") and writing a signed bridge URL (true,
	// any other config.Config.StrmProxyMode value).
	ProxyMode     bool
	ProviderOrder []string
	// BaseURL is this bridge's externally reachable address, used to build
	// the signed /strm/stream URL in proxy mode.
	BaseURL string
}

// StrmRunner implements scheduler.Runner for mode=strm: it resolves a direct
// upstream URL, then writes a .strm playlist file containing either that URL
// (direct mode) or a signed URL pointing back at this bridge's STRM proxy
// (proxy mode).
type StrmRunner struct {
	prober *availability.Prober
	cache  *availability.Cache
	parser *releases.Parser
	mapper *models.StrmUrlMappingStore
	signer *strmproxy.Signer
	cfg    StrmConfig
}

// NewStrmRunner builds a StrmRunner. mapper persists the provider-key ->
// resolved-URL association the STRM proxy reads back on playback; signer is
// nil-safe only when ProxyMode is false (direct mode never signs a URL).
func NewStrmRunner(prober *availability.Prober, cache *availability.Cache, parser *releases.Parser, mapper *models.StrmUrlMappingStore, signer *strmproxy.Signer, cfg StrmConfig) *StrmRunner {
	if parser == nil {
		parser = releases.NewDefaultParser()
	}
	return &StrmRunner{prober: prober, cache: cache, parser: parser, mapper: mapper, signer: signer, cfg: cfg}
}

// Run implements scheduler.Runner. The returned resultPath is the .strm
// file's path, mirroring DownloadRunner's media-file path.
func (r *StrmRunner) Run(ctx context.Context, job *models.Job, progress func(percent float64, downloadedBytes, totalBytes, speedBps, etaSeconds int64, message string)) (string, error) {
	identity := domain.EpisodeIdentity{
		Site:     job.Site,
		Slug:     job.Slug,
		Season:   job.Season,
		Episode:  job.Episode,
		Language: job.Language,
	}

	resolved, err := r.prober.Resolve(ctx, identity, job.Provider, r.cfg.ProviderOrder)
	if err != nil {
		return "", fmt.Errorf("strm: resolve provider: %w", err)
	}

	if progress != nil {
		progress(50, 0, 0, 0, 0, "")
	}

	var content string
	if r.cfg.ProxyMode {
		content, err = r.proxyURL(ctx, identity, job, resolved)
		if err != nil {
			return "", err
		}
	} else {
		content = resolved.DirectURL
	}

	if err := os.MkdirAll(r.cfg.StrmDir, 0o750); err != nil {
		return "", fmt.Errorf("strm: create strm dir: %w", err)
	}

	name := r.strmFileName(ctx, job, identity, resolved.Provider)
	finalPath := filepath.Join(r.cfg.StrmDir, name+".strm")

	if err := os.WriteFile(finalPath, []byte(content+"\n"), 0o644); err != nil {
		return "", fmt.Errorf("strm: write file: %w", err)
	}

	if progress != nil {
		progress(100, 0, 0, 0, 0, "")
	}

	return finalPath, nil
}

// proxyURL upserts the resolved URL under the episode's provider key and
// returns the signed /strm/stream URL pointing back at this bridge.
func (r *StrmRunner) proxyURL(ctx context.Context, identity domain.EpisodeIdentity, job *models.Job, resolved availability.Resolved) (string, error) {
	key := domain.ProviderKey{EpisodeIdentity: identity, Provider: resolved.Provider}

	if r.mapper != nil {
		mapping := &models.StrmUrlMapping{
			Key:          key,
			ResolvedURL:  resolved.DirectURL,
			ProviderUsed: resolved.Provider,
		}
		if err := r.mapper.Upsert(ctx, mapping); err != nil {
			return "", fmt.Errorf("strm: persist resolved url: %w", err)
		}
	}

	if r.signer == nil {
		return "", fmt.Errorf("strm: proxy mode requires a signer")
	}

	query := r.signer.SignStream(string(job.Site), job.Slug, job.Season, job.Episode, job.Language, resolved.Provider)
	return fmt.Sprintf("%s/strm/stream?%s", r.cfg.BaseURL, query.Encode()), nil
}

// strmFileName computes the .strm file's base name (without extension) the
// same way DownloadRunner computes its media file's, including the probed
// quality tokens from the availability cache, so library imports see
// consistent naming across modes regardless of StrmFilesMode.
func (r *StrmRunner) strmFileName(ctx context.Context, job *models.Job, identity domain.EpisodeIdentity, provider string) string {
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
	if r.cache != nil {
		if avail, err := r.cache.Get(ctx, identity, provider); err == nil && avail.Available {
			if avail.Height != nil {
				quality.Height = *avail.Height
			}
			if avail.VCodec != nil {
				quality.VCodec = *avail.VCodec
			}
		}
	}

	name := releases.BuildReleaseName(releases.NameParams{
		Title:        title,
		Season:       season,
		Episode:      episode,
		Quality:      quality,
		LanguageCode: releases.LanguageCode(job.Language),
		ReleaseGroup: job.Site.ReleaseGroup(),
	})
	return pathutil.SanitizePathSegment(name)
}
