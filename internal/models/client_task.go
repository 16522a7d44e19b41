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

// ErrClientTaskNotFound is returned when a lookup by info hash matches no row.
var ErrClientTaskNotFound = errors.New("client task not found")

// ClientTask is the qBittorrent-facade projection of a Job: everything the
// control API needs to render a torrent list entry, keyed by the synthetic
// info hash the magnet codec assigned.
type ClientTask struct {
	InfoHash string
	JobID    string

	Name string

	Site           domain.Site
	Slug           string
	Season         int
	Episode        int
	Language       string
	Provider       string
	AbsoluteNumber *int

	SavePath string
	Category string
	Paused   bool

	AddedAt     time.Time
	CompletedAt *time.Time
}

// ClientTaskStore persists ClientTask rows.
type ClientTaskStore struct {
	db *database.DB
}

func NewClientTaskStore(db *database.DB) *ClientTaskStore {
	return &ClientTaskStore{db: db}
}

func (s *ClientTaskStore) Create(ctx context.Context, t *ClientTask) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO client_tasks (
			info_hash, job_id, name, site, slug, season, episode, language,
			provider, absolute_number, save_path, category, paused
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.InfoHash, t.JobID, t.Name, string(t.Site), t.Slug, t.Season, t.Episode,
		t.Language, t.Provider, nullableInt(t.AbsoluteNumber), t.SavePath, t.Category,
		BoolToSQLite(t.Paused),
	)
	if err != nil {
		return fmt.Errorf("insert client task: %w", err)
	}
	return nil
}

func (s *ClientTaskStore) Get(ctx context.Context, infoHash string) (*ClientTask, error) {
	t, err := scanClientTaskRow(s.db.QueryRowContext(ctx, clientTaskSelectColumns+" FROM client_tasks WHERE info_hash = ?", infoHash))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrClientTaskNotFound
	}
	return t, err
}

// List returns client tasks, optionally restricted to a category, ordered by
// when they were added (oldest first, matching qBittorrent's default order).
func (s *ClientTaskStore) List(ctx context.Context, category string) ([]*ClientTask, error) {
	query := clientTaskSelectColumns + " FROM client_tasks"
	args := []any{}
	if category != "" {
		query += " WHERE category = ?"
		args = append(args, category)
	}
	query += " ORDER BY added_at ASC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list client tasks: %w", err)
	}
	defer rows.Close()

	var tasks []*ClientTask
	for rows.Next() {
		t, err := scanClientTaskRow(rows)
		if err != nil {
			return nil, err
		}
		tasks = append(tasks, t)
	}
	return tasks, rows.Err()
}

// SetPaused toggles the paused flag, mirroring qBittorrent's pause/resume calls.
func (s *ClientTaskStore) SetPaused(ctx context.Context, infoHash string, paused bool) error {
	res, err := s.db.ExecContext(ctx, "UPDATE client_tasks SET paused = ? WHERE info_hash = ?", BoolToSQLite(paused), infoHash)
	if err != nil {
		return fmt.Errorf("set client task paused: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrClientTaskNotFound)
}

// SetCategory reassigns the task's category/save-path label.
func (s *ClientTaskStore) SetCategory(ctx context.Context, infoHash, category string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE client_tasks SET category = ? WHERE info_hash = ?", category, infoHash)
	if err != nil {
		return fmt.Errorf("set client task category: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrClientTaskNotFound)
}

// MarkCompleted stamps completed_at, matching the moment the job driving
// this task reaches domain.JobStatusCompleted.
func (s *ClientTaskStore) MarkCompleted(ctx context.Context, infoHash string) error {
	res, err := s.db.ExecContext(ctx, "UPDATE client_tasks SET completed_at = CURRENT_TIMESTAMP WHERE info_hash = ?", infoHash)
	if err != nil {
		return fmt.Errorf("mark client task completed: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrClientTaskNotFound)
}

func (s *ClientTaskStore) Delete(ctx context.Context, infoHash string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM client_tasks WHERE info_hash = ?", infoHash)
	if err != nil {
		return fmt.Errorf("delete client task: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrClientTaskNotFound)
}

const clientTaskSelectColumns = `SELECT
	info_hash, job_id, name, site, slug, season, episode, language, provider,
	absolute_number, save_path, category, paused, added_at, completed_at`

func scanClientTaskRow(row rowScanner) (*ClientTask, error) {
	var t ClientTask
	var site string
	var absoluteNumber sql.NullInt64
	var paused int
	var completedAt sql.NullTime

	if err := row.Scan(
		&t.InfoHash, &t.JobID, &t.Name, &site, &t.Slug, &t.Season, &t.Episode,
		&t.Language, &t.Provider, &absoluteNumber, &t.SavePath, &t.Category,
		&paused, &t.AddedAt, &completedAt,
	); err != nil {
		return nil, err
	}

	t.Site = domain.Site(site)
	t.Paused = paused != 0
	if absoluteNumber.Valid {
		n := int(absoluteNumber.Int64)
		t.AbsoluteNumber = &n
	}
	if completedAt.Valid {
		t.CompletedAt = &completedAt.Time
	}
	return &t, nil
}
