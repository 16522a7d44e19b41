// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package config loads AniBridge's configuration from a TOML file plus
// environment overrides (ANIBRIDGE_*) through viper. It also owns log
// configuration and its runtime-safe persistence back to disk.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/spf13/viper"

	"github.com/zzackllack/anibridge/internal/domain"
)

const envPrefix = "ANIBRIDGE_"

// Config is the full set of engine settings, plus the ambient server and
// logging settings every long-running instance of this service carries.
type Config struct {
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	BaseURL string `mapstructure:"baseUrl"`

	DataDir     string `mapstructure:"dataDir"`
	DownloadDir string `mapstructure:"downloadDir"`

	LogLevel      string `mapstructure:"logLevel"`
	LogPath       string `mapstructure:"logPath"`
	LogMaxSize    int    `mapstructure:"logMaxSize"`
	LogMaxBackups int    `mapstructure:"logMaxBackups"`

	ProviderOrder       []string `mapstructure:"providerOrder"`
	MaxConcurrency      int      `mapstructure:"maxConcurrency"`
	AvailabilityTtl     string   `mapstructure:"availabilityTtl"`
	IndexRefreshHours   int      `mapstructure:"indexRefreshHours"`
	DownloadsTtlHours   int      `mapstructure:"downloadsTtlHours"`
	CleanupScanInterval int      `mapstructure:"cleanupScanInterval"`
	FallbackAllEpisodes bool     `mapstructure:"fallbackAllEpisodes"`
	MaxEpisodes         int      `mapstructure:"maxEpisodes"`
	MaxConsecutiveMisses int     `mapstructure:"maxConsecutiveMisses"`

	CatalogSites []string `mapstructure:"catalogSites"`

	IndexerApiKey string `mapstructure:"indexerApiKey"`

	StrmFilesMode     string `mapstructure:"strmFilesMode"`
	StrmProxyMode     string `mapstructure:"strmProxyMode"`
	StrmProxyAuth     string `mapstructure:"strmProxyAuth"`
	StrmProxySecret   string `mapstructure:"strmProxySecret"`
	StrmTokenTtl      string `mapstructure:"strmTokenTtl"`
	StrmProxyHlsRemux bool   `mapstructure:"strmProxyHlsRemux"`
	StrmChunkSizeKiB  int    `mapstructure:"strmChunkSizeKiB"`

	MetricsEnabled bool `mapstructure:"metricsEnabled"`

	MediaAnalyserPath    string `mapstructure:"mediaAnalyserPath"`
	ProbeTimeoutSeconds  int    `mapstructure:"probeTimeoutSeconds"`

	MetadataBaseURL string  `mapstructure:"metadataBaseUrl"`
	MetadataApiKey  string  `mapstructure:"metadataApiKey"`
	SpecialsScoreFloor float64 `mapstructure:"specialsScoreFloor"`

	PublicIPCheckEnabled         bool `mapstructure:"publicIpCheckEnabled"`
	PublicIPCheckIntervalMinutes int  `mapstructure:"publicIpCheckIntervalMinutes"`
}

// Defaults returns the documented default configuration.
func Defaults() Config {
	return Config{
		Host:    "0.0.0.0",
		Port:    8080,
		BaseURL: "",

		DataDir:     filepath.Join(GetDefaultConfigDir(), "data"),
		DownloadDir: filepath.Join(GetDefaultConfigDir(), "downloads"),

		LogLevel:      "INFO",
		LogMaxSize:    50,
		LogMaxBackups: 3,

		ProviderOrder:       []string{"VOE", "Filemoon", "Doodstream", "Vidoza"},
		MaxConcurrency:      3,
		AvailabilityTtl:     "24h",
		IndexRefreshHours:   24,
		DownloadsTtlHours:   24 * 7,
		CleanupScanInterval: 30,
		FallbackAllEpisodes: false,
		MaxEpisodes:         500,
		MaxConsecutiveMisses: 5,

		CatalogSites: []string{string(domain.SiteAniWorld), string(domain.SiteSTo)},

		StrmFilesMode:     "no",
		StrmProxyMode:     "direct",
		StrmProxyAuth:     "token",
		StrmTokenTtl:      "15m",
		StrmProxyHlsRemux: false,
		StrmChunkSizeKiB:  64,

		MetricsEnabled: true,

		MediaAnalyserPath:   "ffprobe",
		ProbeTimeoutSeconds: 15,

		MetadataBaseURL:    "",
		MetadataApiKey:     "",
		SpecialsScoreFloor: 4.0,

		PublicIPCheckEnabled:         false,
		PublicIPCheckIntervalMinutes: 60,
	}
}

// AppConfig wraps the parsed Config with the viper instance that produced it
// so settings can be safely persisted back (see persist.go).
type AppConfig struct {
	Config Config

	viper      *viper.Viper
	configMu   sync.Mutex
	logManager *LogManager
}

// Load reads config.toml from dir (creating it with defaults if absent),
// applies ANIBRIDGE_* environment overrides, and returns the bound AppConfig.
func Load(dir string) (*AppConfig, error) {
	if dir == "" {
		dir = GetDefaultConfigDir()
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create config dir: %w", err)
	}

	configPath := filepath.Join(dir, "config.toml")
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := GenerateConfig(configPath, Defaults()); err != nil {
			return nil, fmt.Errorf("generate default config: %w", err)
		}
	}

	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")
	v.SetEnvPrefix(strings.TrimSuffix(envPrefix, "_"))
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setViperDefaults(v, Defaults())

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return &AppConfig{Config: cfg, viper: v}, nil
}

func setViperDefaults(v *viper.Viper, d Config) {
	v.SetDefault("host", d.Host)
	v.SetDefault("port", d.Port)
	v.SetDefault("baseUrl", d.BaseURL)
	v.SetDefault("dataDir", d.DataDir)
	v.SetDefault("downloadDir", d.DownloadDir)
	v.SetDefault("logLevel", d.LogLevel)
	v.SetDefault("logMaxSize", d.LogMaxSize)
	v.SetDefault("logMaxBackups", d.LogMaxBackups)
	v.SetDefault("providerOrder", d.ProviderOrder)
	v.SetDefault("maxConcurrency", d.MaxConcurrency)
	v.SetDefault("availabilityTtl", d.AvailabilityTtl)
	v.SetDefault("indexRefreshHours", d.IndexRefreshHours)
	v.SetDefault("downloadsTtlHours", d.DownloadsTtlHours)
	v.SetDefault("cleanupScanInterval", d.CleanupScanInterval)
	v.SetDefault("fallbackAllEpisodes", d.FallbackAllEpisodes)
	v.SetDefault("maxEpisodes", d.MaxEpisodes)
	v.SetDefault("maxConsecutiveMisses", d.MaxConsecutiveMisses)
	v.SetDefault("catalogSites", d.CatalogSites)
	v.SetDefault("strmFilesMode", d.StrmFilesMode)
	v.SetDefault("strmProxyMode", d.StrmProxyMode)
	v.SetDefault("strmProxyAuth", d.StrmProxyAuth)
	v.SetDefault("strmTokenTtl", d.StrmTokenTtl)
	v.SetDefault("strmProxyHlsRemux", d.StrmProxyHlsRemux)
	v.SetDefault("strmChunkSizeKiB", d.StrmChunkSizeKiB)
	v.SetDefault("metricsEnabled", d.MetricsEnabled)
	v.SetDefault("mediaAnalyserPath", d.MediaAnalyserPath)
	v.SetDefault("probeTimeoutSeconds", d.ProbeTimeoutSeconds)
	v.SetDefault("metadataBaseUrl", d.MetadataBaseURL)
	v.SetDefault("metadataApiKey", d.MetadataApiKey)
	v.SetDefault("specialsScoreFloor", d.SpecialsScoreFloor)
	v.SetDefault("publicIpCheckEnabled", d.PublicIPCheckEnabled)
	v.SetDefault("publicIpCheckIntervalMinutes", d.PublicIPCheckIntervalMinutes)
}

// AvailabilityTTLDuration parses the configured TTL, falling back to 24h.
func (c Config) AvailabilityTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.AvailabilityTtl)
	if err != nil || d <= 0 {
		return 24 * time.Hour
	}
	return d
}

// StrmTokenTTLDuration parses the configured signed-URL TTL, falling back to 15m.
func (c Config) StrmTokenTTLDuration() time.Duration {
	d, err := time.ParseDuration(c.StrmTokenTtl)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// GetDefaultConfigDir resolves the OS-appropriate config directory, honoring
// XDG_CONFIG_HOME / Docker-style /config overrides before falling back to
// the OS default (APPDATA on Windows, ~/.config elsewhere).
func GetDefaultConfigDir() string {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		// A bare /config (the Docker container convention) is already the
		// dedicated config volume; don't nest another directory in it.
		if filepath.Clean(xdg) == "/config" {
			return xdg
		}
		return filepath.Join(xdg, "anibridge")
	}

	if runtime.GOOS == "windows" {
		if appData := os.Getenv("APPDATA"); appData != "" {
			return filepath.Join(appData, "anibridge")
		}
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return "."
	}
	return filepath.Join(home, ".config", "anibridge")
}

// ResolveLogPath resolves a (possibly relative) log path against the config
// directory.
func (c *AppConfig) ResolveLogPath(path string) string {
	if path == "" {
		return ""
	}
	if filepath.IsAbs(path) {
		return path
	}
	dir := GetDefaultConfigDir()
	if c.viper != nil && c.viper.ConfigFileUsed() != "" {
		dir = filepath.Dir(c.viper.ConfigFileUsed())
	}
	return filepath.Join(dir, path)
}
