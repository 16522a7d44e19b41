// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/zzackllack/anibridge/internal/api"
	"github.com/zzackllack/anibridge/internal/availability"
	"github.com/zzackllack/anibridge/internal/buildinfo"
	"github.com/zzackllack/anibridge/internal/catalogue"
	"github.com/zzackllack/anibridge/internal/config"
	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/httpclient"
	"github.com/zzackllack/anibridge/internal/metrics"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/internal/qbtapi"
	"github.com/zzackllack/anibridge/internal/resolver"
	"github.com/zzackllack/anibridge/internal/runner"
	"github.com/zzackllack/anibridge/internal/scheduler"
	"github.com/zzackllack/anibridge/internal/specials"
	"github.com/zzackllack/anibridge/internal/strmproxy"
	"github.com/zzackllack/anibridge/internal/torznab"
	"github.com/zzackllack/anibridge/pkg/releases"
)

// RunServeCommand builds the `serve` subcommand: it wires every component
// the engine needs (config, database, catalogue adapters, resolver,
// availability cache, scheduler, runners, the three external façades,
// metrics) and blocks until an interrupt signal requests shutdown.
func RunServeCommand() *cobra.Command {
	var configDir string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bridge",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(configDir)
		},
	}

	cmd.Flags().StringVar(&configDir, "config-dir", "", "directory holding config.toml (default: OS config dir)")
	return cmd
}

func serve(configDir string) error {
	logManager := config.NewLogManager(buildinfo.Version)
	logManager.Initialize()

	appCfg, err := config.Load(configDir)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg := appCfg.Config

	appCfg.SetLogManager(logManager)
	if err := appCfg.ApplyLogConfig(); err != nil {
		return fmt.Errorf("apply log settings: %w", err)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return fmt.Errorf("create data dir: %w", err)
	}
	if err := os.MkdirAll(cfg.DownloadDir, 0o750); err != nil {
		return fmt.Errorf("create download dir: %w", err)
	}

	db, err := database.New(filepath.Join(cfg.DataDir, "anibridge.db"))
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	client, err := httpclient.New()
	if err != nil {
		return fmt.Errorf("build http client: %w", err)
	}

	jobs := models.NewJobStore(db)
	tasks := models.NewClientTaskStore(db)
	availabilityStore := models.NewEpisodeAvailabilityStore(db)
	strmMappings := models.NewStrmUrlMappingStore(db)
	specialAliases := models.NewSpecialAliasStore(db)
	episodeNumbers := models.NewEpisodeNumberMappingStore(db)

	registry := buildCatalogueRegistry(cfg, client)
	debugResolver := strings.EqualFold(cfg.LogLevel, "debug") || strings.EqualFold(cfg.LogLevel, "trace")
	res := resolver.New(registry, time.Duration(cfg.IndexRefreshHours)*time.Hour, debugResolver)

	analyser := availability.NewMediaAnalyser(cfg.MediaAnalyserPath, time.Duration(cfg.ProbeTimeoutSeconds)*time.Second)
	prober := availability.NewProber(registry, availability.DefaultRegistry(), analyser, client)
	cache := availability.NewCache(availabilityStore, prober, cfg.AvailabilityTTLDuration(), cfg.ProviderOrder)

	metadataAPIKey := decryptMetadataAPIKey(cfg)
	metadataClient := specials.NewMetadataClient(client, cfg.MetadataBaseURL, metadataAPIKey)
	specialsMapper := specials.NewMapper(registry, metadataClient, specialAliases, episodeNumbers, cfg.SpecialsScoreFloor)

	signer := strmproxy.NewSigner(strmproxy.ParseAuthMode(cfg.StrmProxyAuth), cfg.StrmProxySecret, cfg.IndexerApiKey, cfg.StrmTokenTTLDuration())
	urlCache := strmproxy.NewURLCache(strmMappings, prober, cfg.AvailabilityTTLDuration(), cfg.ProviderOrder)

	var remuxer *strmproxy.Remuxer
	if cfg.StrmProxyHlsRemux {
		remuxer = strmproxy.NewRemuxer(filepath.Join(cfg.DataDir, "remux"), "")
	}
	baseURL := httpBaseURL(cfg)
	strmHandler := strmproxy.NewHandler(urlCache, signer, client, baseURL, remuxer, cfg.StrmChunkSizeKiB*1024)

	parser := releases.NewDefaultParser()
	downloadRunner := runner.NewDownloadRunner(prober, cache, client, parser, runner.DownloadConfig{
		DownloadDir:   cfg.DownloadDir,
		ProviderOrder: cfg.ProviderOrder,
	})
	strmRunner := runner.NewStrmRunner(prober, cache, parser, strmMappings, signer, runner.StrmConfig{
		StrmDir:       cfg.DownloadDir,
		ProxyMode:     cfg.StrmProxyMode != "direct",
		ProviderOrder: cfg.ProviderOrder,
		BaseURL:       baseURL,
	})
	modeRouter := runner.NewModeRouter(downloadRunner, strmRunner)

	sched := scheduler.New(jobs, tasks, modeRouter, scheduler.Config{
		MaxConcurrency:               cfg.MaxConcurrency,
		CleanupScanIntervalMinutes:   cfg.CleanupScanInterval,
		DownloadsTTLHours:            cfg.DownloadsTtlHours,
		PublicIPCheckEnabled:         cfg.PublicIPCheckEnabled,
		PublicIPCheckIntervalMinutes: cfg.PublicIPCheckIntervalMinutes,
	})

	startCtx, cancelStart := context.WithTimeout(context.Background(), 30*time.Second)
	sched.Start(startCtx, scheduler.NewPublicIPChecker(client))
	cancelStart()

	torznabHandler := torznab.NewHandler(res, registry, cache, specialsMapper, torznab.Config{
		APIKey:                  cfg.IndexerApiKey,
		ProviderOrder:           cfg.ProviderOrder,
		MaxEpisodes:             cfg.MaxEpisodes,
		MaxConsecutiveMisses:    cfg.MaxConsecutiveMisses,
		StrmFilesMode:           cfg.StrmFilesMode,
		FallbackAllEpisodes:     cfg.FallbackAllEpisodes,
		ConnectivityTestEnabled: true,
	})
	qbtHandler := qbtapi.NewHandler(sched, jobs, tasks, qbtapi.Config{SavePath: cfg.DownloadDir})

	var metricsServer *metrics.Server
	if cfg.MetricsEnabled {
		manager := metrics.NewMetricsManager(jobs, cache, sched, strmHandler)
		metricsServer = metrics.NewMetricsServer(manager, cfg.Host, cfg.Port+1, "")
		go func() {
			if err := metricsServer.ListenAndServe(); err != nil {
				log.Error().Err(err).Msg("metrics server stopped")
			}
		}()
	}

	server, err := api.NewServer(cfg.Host, cfg.Port, log.Logger, api.Routes{
		Torznab:     torznabHandler,
		QBT:         qbtHandler,
		STRM:        strmHandler,
		Database:    db,
		Scheduler:   sched,
		Config:      appCfg,
		DownloadDir: cfg.DownloadDir,
	})
	if err != nil {
		return fmt.Errorf("build api server: %w", err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)).Msg("anibridge: listening")
		if err := server.ListenAndServe(); err != nil {
			errCh <- err
		}
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errCh:
		log.Error().Err(err).Msg("anibridge: server failed")
	case sig := <-sigCh:
		log.Info().Str("signal", sig.String()).Msg("anibridge: shutting down")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("anibridge: api server shutdown error")
	}
	if metricsServer != nil {
		if err := metricsServer.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("anibridge: metrics server shutdown error")
		}
	}

	sched.Stop()
	return nil
}

func buildCatalogueRegistry(cfg config.Config, client *http.Client) *catalogue.Registry {
	var adapters []catalogue.Adapter
	for _, site := range cfg.CatalogSites {
		switch domain.Site(site) {
		case domain.SiteAniWorld:
			adapters = append(adapters, catalogue.NewAniWorld(client, ""))
		case domain.SiteSTo:
			adapters = append(adapters, catalogue.NewSTo(client, ""))
		case domain.SiteMegakino:
			adapters = append(adapters, catalogue.NewMegakino(client, ""))
		}
	}
	return catalogue.NewRegistry(adapters...)
}

// httpBaseURL returns the configured BaseURL, falling back to a loopback
// address derived from Host/Port so proxy/strm URLs are always absolute.
func httpBaseURL(cfg config.Config) string {
	if cfg.BaseURL != "" {
		return cfg.BaseURL
	}
	host := cfg.Host
	if host == "0.0.0.0" || host == "" {
		host = "127.0.0.1"
	}
	return fmt.Sprintf("http://%s:%d", host, cfg.Port)
}

// decryptMetadataAPIKey decrypts the configured metadata API key using a key
// derived from StrmProxySecret. A value that fails to decrypt is assumed to
// be a freshly-entered plaintext key and is used as-is; generate-config's
// commented-out default leaves this empty.
func decryptMetadataAPIKey(cfg config.Config) string {
	if cfg.MetadataApiKey == "" || cfg.StrmProxySecret == "" {
		return cfg.MetadataApiKey
	}
	key, err := domain.DeriveSecretKey(cfg.StrmProxySecret, "metadata-api-key")
	if err != nil {
		return cfg.MetadataApiKey
	}
	plaintext, err := domain.DecryptSecret(key, cfg.MetadataApiKey)
	if err != nil {
		return cfg.MetadataApiKey
	}
	return plaintext
}
