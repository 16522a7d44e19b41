// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package models

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/zzackllack/anibridge/internal/database"
)

// ErrEpisodeNumberMappingNotFound is returned when no mapping row matches
// the lookup.
var ErrEpisodeNumberMappingNotFound = errors.New("episode number mapping not found")

// EpisodeNumberMapping translates a series' absolute episode numbering
// (as AniWorld's /filme specials and external metadata both use) into the
// (season, episode) pair the catalogue site actually serves under.
type EpisodeNumberMapping struct {
	ID             int64
	SeriesSlug     string
	AbsoluteNumber int
	Season         int
	Episode        int
	Title          string
}

// EpisodeNumberMappingStore persists EpisodeNumberMapping rows.
type EpisodeNumberMappingStore struct {
	db *database.DB
}

func NewEpisodeNumberMappingStore(db *database.DB) *EpisodeNumberMappingStore {
	return &EpisodeNumberMappingStore{db: db}
}

// Upsert inserts or replaces the mapping for (seriesSlug, absoluteNumber).
func (s *EpisodeNumberMappingStore) Upsert(ctx context.Context, m *EpisodeNumberMapping) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode_number_mappings (series_slug, absolute_number, season, episode, title)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT (series_slug, absolute_number) DO UPDATE SET
			season = excluded.season,
			episode = excluded.episode,
			title = excluded.title`,
		m.SeriesSlug, m.AbsoluteNumber, m.Season, m.Episode, m.Title,
	)
	if err != nil {
		return fmt.Errorf("upsert episode number mapping: %w", err)
	}
	return nil
}

// ByAbsoluteNumber looks up the (season, episode) pair for an absolute
// episode index within a series.
func (s *EpisodeNumberMappingStore) ByAbsoluteNumber(ctx context.Context, seriesSlug string, absoluteNumber int) (*EpisodeNumberMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, series_slug, absolute_number, season, episode, title
		FROM episode_number_mappings
		WHERE series_slug = ? AND absolute_number = ?`,
		seriesSlug, absoluteNumber,
	)
	return scanEpisodeNumberMapping(row)
}

// BySeasonEpisode looks up the absolute episode index for a (season,
// episode) pair within a series.
func (s *EpisodeNumberMappingStore) BySeasonEpisode(ctx context.Context, seriesSlug string, season, episode int) (*EpisodeNumberMapping, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT id, series_slug, absolute_number, season, episode, title
		FROM episode_number_mappings
		WHERE series_slug = ? AND season = ? AND episode = ?`,
		seriesSlug, season, episode,
	)
	return scanEpisodeNumberMapping(row)
}

// ListBySeries returns every mapping recorded for a series, ordered by
// absolute number.
func (s *EpisodeNumberMappingStore) ListBySeries(ctx context.Context, seriesSlug string) ([]*EpisodeNumberMapping, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, series_slug, absolute_number, season, episode, title
		FROM episode_number_mappings
		WHERE series_slug = ?
		ORDER BY absolute_number ASC`,
		seriesSlug,
	)
	if err != nil {
		return nil, fmt.Errorf("list episode number mappings: %w", err)
	}
	defer rows.Close()

	var mappings []*EpisodeNumberMapping
	for rows.Next() {
		m, err := scanEpisodeNumberMapping(rows)
		if err != nil {
			return nil, err
		}
		mappings = append(mappings, m)
	}
	return mappings, rows.Err()
}

func scanEpisodeNumberMapping(row rowScanner) (*EpisodeNumberMapping, error) {
	var m EpisodeNumberMapping
	if err := row.Scan(&m.ID, &m.SeriesSlug, &m.AbsoluteNumber, &m.Season, &m.Episode, &m.Title); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrEpisodeNumberMappingNotFound
		}
		return nil, err
	}
	return &m, nil
}
