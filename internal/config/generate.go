// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// GenerateConfig writes a commented, human-editable config.toml with the
// supplied defaults to path. It is called on first run (see Load) and by the
// `anibridge generate-config` CLI subcommand.
func GenerateConfig(path string, d Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create config directory: %w", err)
	}

	var b strings.Builder
	b.WriteString("# AniBridge configuration.\n")
	b.WriteString("# Values may be overridden by ANIBRIDGE_<KEY> environment variables.\n\n")

	fmt.Fprintf(&b, "host = %q\n", d.Host)
	fmt.Fprintf(&b, "port = %d\n", d.Port)
	fmt.Fprintf(&b, "baseUrl = %q\n\n", d.BaseURL)

	fmt.Fprintf(&b, "dataDir = %q\n", d.DataDir)
	fmt.Fprintf(&b, "downloadDir = %q\n\n", d.DownloadDir)

	b.WriteString("# Logging\n")
	fmt.Fprintf(&b, "logLevel = %q\n", d.LogLevel)
	fmt.Fprintf(&b, "#logPath = %q\n", d.LogPath)
	fmt.Fprintf(&b, "logMaxSize = %d\n", d.LogMaxSize)
	fmt.Fprintf(&b, "logMaxBackups = %d\n\n", d.LogMaxBackups)

	b.WriteString("# Providers, tried in this order unless a request pins one\n")
	fmt.Fprintf(&b, "providerOrder = [%s]\n", quoteList(d.ProviderOrder))
	fmt.Fprintf(&b, "maxConcurrency = %d\n", d.MaxConcurrency)
	fmt.Fprintf(&b, "availabilityTtl = %q\n", d.AvailabilityTtl)
	fmt.Fprintf(&b, "indexRefreshHours = %d\n", d.IndexRefreshHours)
	fmt.Fprintf(&b, "downloadsTtlHours = %d\n", d.DownloadsTtlHours)
	fmt.Fprintf(&b, "cleanupScanInterval = %d\n", d.CleanupScanInterval)
	fmt.Fprintf(&b, "fallbackAllEpisodes = %t\n", d.FallbackAllEpisodes)
	fmt.Fprintf(&b, "maxEpisodes = %d\n", d.MaxEpisodes)
	fmt.Fprintf(&b, "maxConsecutiveMisses = %d\n\n", d.MaxConsecutiveMisses)

	fmt.Fprintf(&b, "catalogSites = [%s]\n\n", quoteList(d.CatalogSites))

	b.WriteString("# Set to require an apikey query parameter on the Torznab endpoint\n")
	fmt.Fprintf(&b, "#indexerApiKey = %q\n\n", d.IndexerApiKey)

	b.WriteString("# STRM files: no | both | only\n")
	fmt.Fprintf(&b, "strmFilesMode = %q\n", d.StrmFilesMode)
	b.WriteString("# STRM proxying: direct | proxy\n")
	fmt.Fprintf(&b, "strmProxyMode = %q\n", d.StrmProxyMode)
	b.WriteString("# STRM proxy auth: none | apikey | token\n")
	fmt.Fprintf(&b, "strmProxyAuth = %q\n", d.StrmProxyAuth)
	fmt.Fprintf(&b, "#strmProxySecret = %q\n", d.StrmProxySecret)
	fmt.Fprintf(&b, "strmTokenTtl = %q\n", d.StrmTokenTtl)
	fmt.Fprintf(&b, "strmProxyHlsRemux = %t\n", d.StrmProxyHlsRemux)
	fmt.Fprintf(&b, "strmChunkSizeKiB = %d\n\n", d.StrmChunkSizeKiB)

	fmt.Fprintf(&b, "metricsEnabled = %t\n\n", d.MetricsEnabled)

	b.WriteString("# Quality probe: out-of-process media analyser (ffprobe-compatible)\n")
	fmt.Fprintf(&b, "mediaAnalyserPath = %q\n", d.MediaAnalyserPath)
	fmt.Fprintf(&b, "probeTimeoutSeconds = %d\n\n", d.ProbeTimeoutSeconds)

	b.WriteString("# Sonarr-compatible metadata service used by the specials/alias mapper\n")
	fmt.Fprintf(&b, "#metadataBaseUrl = %q\n", d.MetadataBaseURL)
	fmt.Fprintf(&b, "#metadataApiKey = %q\n", d.MetadataApiKey)
	fmt.Fprintf(&b, "specialsScoreFloor = %.1f\n\n", d.SpecialsScoreFloor)

	b.WriteString("# Periodically log the egress IP seen through the outbound client\n")
	fmt.Fprintf(&b, "publicIpCheckEnabled = %t\n", d.PublicIPCheckEnabled)
	fmt.Fprintf(&b, "publicIpCheckIntervalMinutes = %d\n", d.PublicIPCheckIntervalMinutes)

	return os.WriteFile(path, []byte(b.String()), 0o640)
}

func quoteList(items []string) string {
	parts := make([]string, len(items))
	for i, it := range items {
		parts[i] = fmt.Sprintf("%q", it)
	}
	return strings.Join(parts, ", ")
}
