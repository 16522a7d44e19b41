// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/zzackllack/anibridge/internal/database"
	"github.com/zzackllack/anibridge/internal/domain"
)

// ErrStrmUrlMappingNotFound is returned when no resolved URL is cached for
// the requested provider key.
var ErrStrmUrlMappingNotFound = errors.New("strm url mapping not found")

// StrmUrlMapping is the last URL the STRM proxy resolved for an episode via
// a specific provider, so subsequent playback requests can skip a live
// resolve until the upstream link expires or fails.
type StrmUrlMapping struct {
	Key domain.ProviderKey

	ResolvedURL  string
	ProviderUsed string

	ResolvedAt time.Time
	UpdatedAt  time.Time
}

// StrmUrlMappingStore persists StrmUrlMapping rows.
type StrmUrlMappingStore struct {
	db *database.DB
}

func NewStrmUrlMappingStore(db *database.DB) *StrmUrlMappingStore {
	return &StrmUrlMappingStore{db: db}
}

// Upsert replaces any existing mapping for the provider key.
func (s *StrmUrlMappingStore) Upsert(ctx context.Context, m *StrmUrlMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO strm_url_mappings (site, slug, season, episode, language, provider, resolved_url, provider_used, resolved_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP, CURRENT_TIMESTAMP)
		ON CONFLICT (site, slug, season, episode, language, provider) DO UPDATE SET
			resolved_url = excluded.resolved_url,
			provider_used = excluded.provider_used,
			resolved_at = CURRENT_TIMESTAMP,
			updated_at = CURRENT_TIMESTAMP`,
		string(m.Key.Site), m.Key.Slug, m.Key.Season, m.Key.Episode, m.Key.Language, m.Key.Provider,
		m.ResolvedURL, m.ProviderUsed,
	)
	if err != nil {
		return fmt.Errorf("upsert strm url mapping: %w", err)
	}
	return nil
}

// Get returns the cached mapping for a provider key.
func (s *StrmUrlMappingStore) Get(ctx context.Context, key domain.ProviderKey) (*StrmUrlMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT site, slug, season, episode, language, provider, resolved_url, provider_used, resolved_at, updated_at
		FROM strm_url_mappings
		WHERE site = ? AND slug = ? AND season = ? AND episode = ? AND language = ? AND provider = ?`,
		string(key.Site), key.Slug, key.Season, key.Episode, key.Language, key.Provider,
	)

	m, err := scanStrmUrlMapping(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrStrmUrlMappingNotFound
	}
	return m, err
}

// Delete invalidates the cached mapping, forcing the next playback request
// to resolve a fresh upstream URL.
func (s *StrmUrlMappingStore) Delete(ctx context.Context, key domain.ProviderKey) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM strm_url_mappings
		WHERE site = ? AND slug = ? AND season = ? AND episode = ? AND language = ? AND provider = ?`,
		string(key.Site), key.Slug, key.Season, key.Episode, key.Language, key.Provider,
	)
	if err != nil {
		return fmt.Errorf("delete strm url mapping: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrStrmUrlMappingNotFound)
}

func scanStrmUrlMapping(row rowScanner) (*StrmUrlMapping, error) {
	var m StrmUrlMapping
	var site string

	if err := row.Scan(
		&site, &m.Key.Slug, &m.Key.Season, &m.Key.Episode, &m.Key.Language, &m.Key.Provider,
		&m.ResolvedURL, &m.ProviderUsed, &m.ResolvedAt, &m.UpdatedAt,
	); err != nil {
		return nil, err
	}
	m.Key.Site = domain.Site(site)
	return &m, nil
}
