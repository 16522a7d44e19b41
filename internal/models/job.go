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

// ErrJobNotFound is returned when a lookup by id matches no row.
var ErrJobNotFound = errors.New("job not found")

// Job is a single download/STRM work item tracked by the scheduler and
// surfaced through the qBittorrent-compatible torrent list.
type Job struct {
	ID     string
	Mode   domain.JobMode
	Status domain.JobStatus

	Site           domain.Site
	Slug           string
	Season         int
	Episode        int
	Language       string
	Provider       string
	TitleHint      string
	AbsoluteNumber *int

	ProgressPercent float64
	DownloadedBytes int64
	TotalBytes      int64
	SpeedBps        int64
	ETASeconds      int64
	Message         string

	ResultPath string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// JobStore persists Job rows and enforces the lifecycle transitions defined
// on domain.JobStatus.
type JobStore struct {
	db *database.DB
}

func NewJobStore(db *database.DB) *JobStore {
	return &JobStore{db: db}
}

// Create inserts a new job in the queued state.
func (s *JobStore) Create(ctx context.Context, j *Job) error {
	if j.Status == "" {
		j.Status = domain.JobStatusQueued
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO jobs (
			id, mode, status, site, slug, season, episode, language, provider,
			title_hint, absolute_number, progress_percent, downloaded_bytes,
			total_bytes, speed_bps, eta_seconds, message, result_path
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		j.ID, string(j.Mode), string(j.Status), string(j.Site), j.Slug, j.Season,
		j.Episode, j.Language, j.Provider, j.TitleHint, nullableInt(j.AbsoluteNumber),
		j.ProgressPercent, j.DownloadedBytes, j.TotalBytes, j.SpeedBps, j.ETASeconds,
		j.Message, j.ResultPath,
	)
	if err != nil {
		return fmt.Errorf("insert job: %w", err)
	}
	return nil
}

// Get fetches a job by id, returning ErrJobNotFound if absent.
func (s *JobStore) Get(ctx context.Context, id string) (*Job, error) {
	return scanJob(s.db.QueryRowContext(ctx, jobSelectColumns+" FROM jobs WHERE id = ?", id))
}

// List returns jobs, optionally filtered to a single status, newest first.
func (s *JobStore) List(ctx context.Context, status domain.JobStatus) ([]*Job, error) {
	query := jobSelectColumns + " FROM jobs"
	args := []any{}
	if status != "" {
		query += " WHERE status = ?"
		args = append(args, string(status))
	}
	query += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list jobs: %w", err)
	}
	defer rows.Close()

	var jobs []*Job
	for rows.Next() {
		j, err := scanJobRow(rows)
		if err != nil {
			return nil, err
		}
		jobs = append(jobs, j)
	}
	return jobs, rows.Err()
}

// CountByStatus returns the number of jobs currently in each lifecycle
// state, for the job-counts-by-state metric.
func (s *JobStore) CountByStatus(ctx context.Context) (map[domain.JobStatus]int, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT status, COUNT(*) FROM jobs GROUP BY status")
	if err != nil {
		return nil, fmt.Errorf("count jobs by status: %w", err)
	}
	defer rows.Close()

	counts := make(map[domain.JobStatus]int)
	for rows.Next() {
		var raw string
		var n int
		if err := rows.Scan(&raw, &n); err != nil {
			return nil, fmt.Errorf("scan job status count: %w", err)
		}
		status, err := domain.ParseJobStatus(raw)
		if err != nil {
			continue
		}
		counts[status] = n
	}
	return counts, rows.Err()
}

// UpdateProgress updates the live progress fields of a job without touching
// its status.
func (s *JobStore) UpdateProgress(ctx context.Context, id string, percent float64, downloaded, total, speed, eta int64, message string) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE jobs SET progress_percent = ?, downloaded_bytes = ?, total_bytes = ?,
			speed_bps = ?, eta_seconds = ?, message = ?
		WHERE id = ?`,
		percent, downloaded, total, speed, eta, message, id,
	)
	if err != nil {
		return fmt.Errorf("update job progress: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrJobNotFound)
}

// TransitionStatus moves a job to a new status inside a transaction, failing
// if the current status cannot legally transition to it (domain.JobStatus's
// CanTransitionTo). resultPath is only written on a transition to completed.
func (s *JobStore) TransitionStatus(ctx context.Context, id string, to domain.JobStatus, message, resultPath string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transition tx: %w", err)
	}
	defer tx.Rollback()

	var currentRaw string
	if err := tx.QueryRowContext(ctx, "SELECT status FROM jobs WHERE id = ?", id).Scan(&currentRaw); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return ErrJobNotFound
		}
		return fmt.Errorf("read job status: %w", err)
	}
	current, err := domain.ParseJobStatus(currentRaw)
	if err != nil {
		return fmt.Errorf("stored job status: %w", err)
	}
	if !current.CanTransitionTo(to) {
		return fmt.Errorf("job %s: illegal transition %s -> %s", id, current, to)
	}

	if to == domain.JobStatusCompleted {
		if _, err := tx.ExecContext(ctx, "UPDATE jobs SET status = ?, message = ?, result_path = ? WHERE id = ?", string(to), message, resultPath, id); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
	} else {
		if _, err := tx.ExecContext(ctx, "UPDATE jobs SET status = ?, message = ? WHERE id = ?", string(to), message, id); err != nil {
			return fmt.Errorf("update job status: %w", err)
		}
	}

	return tx.Commit()
}

// Delete removes a job and its client_tasks rows (cascading via the foreign
// key in client_tasks).
func (s *JobStore) Delete(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, "DELETE FROM jobs WHERE id = ?", id)
	if err != nil {
		return fmt.Errorf("delete job: %w", err)
	}
	return rowsAffectedOrNotFound(res, ErrJobNotFound)
}

const jobSelectColumns = `SELECT
	id, mode, status, site, slug, season, episode, language, provider,
	title_hint, absolute_number, progress_percent, downloaded_bytes,
	total_bytes, speed_bps, eta_seconds, message, result_path, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(row *sql.Row) (*Job, error) {
	j, err := scanJobRow(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrJobNotFound
	}
	return j, err
}

func scanJobRow(row rowScanner) (*Job, error) {
	var j Job
	var mode, status, site string
	var absoluteNumber sql.NullInt64

	if err := row.Scan(
		&j.ID, &mode, &status, &site, &j.Slug, &j.Season, &j.Episode, &j.Language,
		&j.Provider, &j.TitleHint, &absoluteNumber, &j.ProgressPercent, &j.DownloadedBytes,
		&j.TotalBytes, &j.SpeedBps, &j.ETASeconds, &j.Message, &j.ResultPath,
		&j.CreatedAt, &j.UpdatedAt,
	); err != nil {
		return nil, err
	}

	j.Mode = domain.JobMode(mode)
	parsedStatus, err := domain.ParseJobStatus(status)
	if err != nil {
		return nil, fmt.Errorf("job %s: %w", j.ID, err)
	}
	j.Status = parsedStatus
	j.Site = domain.Site(site)
	if absoluteNumber.Valid {
		n := int(absoluteNumber.Int64)
		j.AbsoluteNumber = &n
	}
	return &j, nil
}

func nullableInt(v *int) any {
	if v == nil {
		return nil
	}
	return *v
}

func rowsAffectedOrNotFound(res sql.Result, notFound error) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("rows affected: %w", err)
	}
	if n == 0 {
		return notFound
	}
	return nil
}
