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

// ErrSpecialAliasNotFound is returned when no alias row matches the lookup.
var ErrSpecialAliasNotFound = errors.New("special alias not found")

// SpecialAlias memoises the mapping from a catalogue's /filme special (an
// OVA, movie or recap indexed only by a film position) to the canonical
// (season, episode) pair the rest of the engine addresses it by.
type SpecialAlias struct {
	Site      domain.Site
	Slug      string
	FilmIndex int

	SourceSeason  int
	SourceEpisode int
	AliasSeason   int
	AliasEpisode  int

	DeTitle  string
	AltTitle string

	UpdatedAt time.Time
}

// SpecialAliasStore persists SpecialAlias rows.
type SpecialAliasStore struct {
	db *database.DB
}

func NewSpecialAliasStore(db *database.DB) *SpecialAliasStore {
	return &SpecialAliasStore{db: db}
}

// Upsert inserts or replaces the alias for (site, slug, filmIndex).
func (s *SpecialAliasStore) Upsert(ctx context.Context, a *SpecialAlias) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO special_aliases (site, slug, film_index, source_season, source_episode, alias_season, alias_episode, de_title, alt_title, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (site, slug, film_index) DO UPDATE SET
			source_season = excluded.source_season,
			source_episode = excluded.source_episode,
			alias_season = excluded.alias_season,
			alias_episode = excluded.alias_episode,
			de_title = excluded.de_title,
			alt_title = excluded.alt_title,
			updated_at = CURRENT_TIMESTAMP`,
		string(a.Site), a.Slug, a.FilmIndex, a.SourceSeason, a.SourceEpisode, a.AliasSeason, a.AliasEpisode,
		a.DeTitle, a.AltTitle,
	)
	if err != nil {
		return fmt.Errorf("upsert special alias: %w", err)
	}
	return nil
}

// Get returns the alias recorded for a specific /filme index.
func (s *SpecialAliasStore) Get(ctx context.Context, site domain.Site, slug string, filmIndex int) (*SpecialAlias, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT site, slug, film_index, source_season, source_episode, alias_season, alias_episode, de_title, alt_title, updated_at
		FROM special_aliases
		WHERE site = ? AND slug = ? AND film_index = ?`,
		string(site), slug, filmIndex,
	)

	alias, err := scanSpecialAlias(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSpecialAliasNotFound
	}
	return alias, err
}

// ListBySeries returns every alias recorded for a series, ordered by film
// index.
func (s *SpecialAliasStore) ListBySeries(ctx context.Context, site domain.Site, slug string) ([]*SpecialAlias, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT site, slug, film_index, source_season, source_episode, alias_season, alias_episode, de_title, alt_title, updated_at
		FROM special_aliases
		WHERE site = ? AND slug = ?
		ORDER BY film_index ASC`,
		string(site), slug,
	)
	if err != nil {
		return nil, fmt.Errorf("list special aliases: %w", err)
	}
	defer rows.Close()

	var aliases []*SpecialAlias
	for rows.Next() {
		a, err := scanSpecialAlias(rows)
		if err != nil {
			return nil, err
		}
		aliases = append(aliases, a)
	}
	return aliases, rows.Err()
}

func scanSpecialAlias(row rowScanner) (*SpecialAlias, error) {
	var a SpecialAlias
	var site string
	if err := row.Scan(
		&site, &a.Slug, &a.FilmIndex, &a.SourceSeason, &a.SourceEpisode, &a.AliasSeason, &a.AliasEpisode,
		&a.DeTitle, &a.AltTitle, &a.UpdatedAt,
	); err != nil {
		return nil, err
	}
	a.Site = domain.Site(site)
	return &a, nil
}
