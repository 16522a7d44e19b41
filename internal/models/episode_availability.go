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

// ErrEpisodeAvailabilityNotFound is returned when no probe result is cached
// for the requested episode identity.
var ErrEpisodeAvailabilityNotFound = errors.New("episode availability not found")

// EpisodeAvailability is a cached quality-probe result for one episode
// identity: whether it exists on the site, and at what resolution/codec it
// was last seen via a given provider.
type EpisodeAvailability struct {
	Identity domain.EpisodeIdentity

	Available bool
	Height    *int
	VCodec    *string
	Provider  *string
	Extra     string

	CheckedAt time.Time
}

// EpisodeAvailabilityStore persists probe results so repeated resolves
// within the configured TTL skip the live site round-trip.
type EpisodeAvailabilityStore struct {
	db *database.DB
}

func NewEpisodeAvailabilityStore(db *database.DB) *EpisodeAvailabilityStore {
	return &EpisodeAvailabilityStore{db: db}
}

// Upsert replaces any existing probe result for the identity.
func (s *EpisodeAvailabilityStore) Upsert(ctx context.Context, a *EpisodeAvailability) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO episode_availability (site, slug, season, episode, language, available, height, vcodec, provider, extra, checked_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, CURRENT_TIMESTAMP)
		ON CONFLICT (site, slug, season, episode, language) DO UPDATE SET
			available = excluded.available,
			height = excluded.height,
			vcodec = excluded.vcodec,
			provider = excluded.provider,
			extra = excluded.extra,
			checked_at = CURRENT_TIMESTAMP`,
		string(a.Identity.Site), a.Identity.Slug, a.Identity.Season, a.Identity.Episode, a.Identity.Language,
		BoolToSQLite(a.Available), nullableInt(a.Height), nullableString(a.VCodec), nullableString(a.Provider), a.Extra,
	)
	if err != nil {
		return fmt.Errorf("upsert episode availability: %w", err)
	}
	return nil
}

// Get returns the cached probe result, regardless of staleness; callers
// compare CheckedAt against the configured TTL themselves.
func (s *EpisodeAvailabilityStore) Get(ctx context.Context, id domain.EpisodeIdentity) (*EpisodeAvailability, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT site, slug, season, episode, language, available, height, vcodec, provider, extra, checked_at
		FROM episode_availability
		WHERE site = ? AND slug = ? AND season = ? AND episode = ? AND language = ?`,
		string(id.Site), id.Slug, id.Season, id.Episode, id.Language,
	)

	a, err := scanEpisodeAvailability(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrEpisodeAvailabilityNotFound
	}
	return a, err
}

// Delete drops the cached entry, forcing the next resolve to re-probe.
func (s *EpisodeAvailabilityStore) Delete(ctx context.Context, id domain.EpisodeIdentity) error {
	res, err := s.db.ExecContext(ctx, `
		DELETE FROM episode_availability
		WHERE site = ? AND slug = ? AND season = ? AND episode = ? AND language = ?`,
		string(id.Site), id.Slug, id.Season, id.Episode, id.Language,
	)
	if err != nil {
		return fmt.Errorf("delete episode availability: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrEpisodeAvailabilityNotFound)
}

func scanEpisodeAvailability(row rowScanner) (*EpisodeAvailability, error) {
	var a EpisodeAvailability
	var site string
	var available int
	var height sql.NullInt64
	var vcodec, provider sql.NullString

	if err := row.Scan(
		&site, &a.Identity.Slug, &a.Identity.Season, &a.Identity.Episode, &a.Identity.Language,
		&available, &height, &vcodec, &provider, &a.Extra, &a.CheckedAt,
	); err != nil {
		return nil, err
	}

	a.Identity.Site = domain.Site(site)
	a.Available = available != 0
	if height.Valid {
		n := int(height.Int64)
		a.Height = &n
	}
	if vcodec.Valid {
		a.VCodec = &vcodec.String
	}
	if provider.Valid {
		a.Provider = &provider.String
	}
	return &a, nil
}

func nullableString(v *string) any {
	if v == nil {
		return nil
	}
	return *v
}
