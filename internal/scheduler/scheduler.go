// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package scheduler owns the job lifecycle: a bounded worker pool dispatches
// submitted download/STRM requests to a Runner, persists every state
// transition, and runs the background TTL-cleanup and optional public-IP
// check loops. The qBittorrent façade and Torznab builder only ever see
// Job/ClientTask rows through models; they never touch the worker pool
// directly.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
	"github.com/zzackllack/anibridge/pkg/debounce"
)

// ProgressFunc is invoked by a Runner as a download/STRM write progresses.
// Implementations debounce these themselves; the scheduler further
// debounces the resulting persistence write (see Scheduler.progressFunc).
//
// This is a type alias, not a defined type: DownloadRunner and StrmRunner
// declare their Run methods against the same underlying func literal without
// importing this package, and an alias keeps both spellings identical for
// interface satisfaction.
type ProgressFunc = func(percent float64, downloadedBytes, totalBytes, speedBps, etaSeconds int64, message string)

// Runner executes one job to completion, reporting progress through the
// supplied ProgressFunc and returning the on-disk result path (a media file
// for mode=download, a .strm file for mode=strm) on success. A Runner must
// return promptly after ctx is cancelled (cooperative cancellation, checked
// at I/O boundaries).
type Runner interface {
	Run(ctx context.Context, job *models.Job, progress ProgressFunc) (resultPath string, err error)
}

// Request is the mutation Submit applies: insert Job(queued), optionally
// insert a ClientTask (when the submission came with a decoded magnet, e.g.
// via the qBittorrent façade's /torrents/add), then dispatch to the pool.
type Request struct {
	Site           domain.Site
	Slug           string
	Season         int
	Episode        int
	Language       string
	Provider       string
	Mode           domain.JobMode
	TitleHint      string
	AbsoluteNumber *int

	// ClientTask fields. InfoHash is the dedupe key: a second Submit for
	// the same info hash returns the existing job id without creating a
	// new Job or ClientTask row.
	InfoHash    string
	DisplayName string
	SavePath    string
	Category    string
}

// Scheduler is the bounded worker pool plus its background loops.
type Scheduler struct {
	jobs   *models.JobStore
	tasks  *models.ClientTaskStore
	runner Runner

	sem            *semaphore.Weighted
	maxConcurrency int64
	inFlight       atomic.Int64

	cleanupInterval time.Duration
	downloadsTTL    time.Duration

	publicIPCheck    bool
	publicIPInterval time.Duration
	publicIPClient   *publicIPChecker

	mu        sync.Mutex
	cancelFns map[string]context.CancelFunc
	debounced map[string]*debounce.Debouncer

	wg       sync.WaitGroup
	stopOnce sync.Once
	stopCh   chan struct{}
}

// Config carries the scheduler's tunables, lifted from config.Config by the
// caller so this package never imports internal/config directly.
type Config struct {
	MaxConcurrency               int
	CleanupScanIntervalMinutes   int
	DownloadsTTLHours            int
	PublicIPCheckEnabled         bool
	PublicIPCheckIntervalMinutes int
}

// New builds a Scheduler. It does not start the background loops or reap
// dangling jobs; call Start for that once the Runner is ready.
func New(jobs *models.JobStore, tasks *models.ClientTaskStore, runner Runner, cfg Config) *Scheduler {
	maxConcurrency := cfg.MaxConcurrency
	if maxConcurrency <= 0 {
		maxConcurrency = 1
	}
	cleanup := time.Duration(cfg.CleanupScanIntervalMinutes) * time.Minute
	if cleanup <= 0 {
		cleanup = 30 * time.Minute
	}
	ttl := time.Duration(cfg.DownloadsTTLHours) * time.Hour
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	ipInterval := time.Duration(cfg.PublicIPCheckIntervalMinutes) * time.Minute
	if ipInterval <= 0 {
		ipInterval = time.Hour
	}

	return &Scheduler{
		jobs:             jobs,
		tasks:            tasks,
		runner:           runner,
		sem:              semaphore.NewWeighted(int64(maxConcurrency)),
		maxConcurrency:   int64(maxConcurrency),
		cleanupInterval:  cleanup,
		downloadsTTL:     ttl,
		publicIPCheck:    cfg.PublicIPCheckEnabled,
		publicIPInterval: ipInterval,
		cancelFns:        make(map[string]context.CancelFunc),
		debounced:        make(map[string]*debounce.Debouncer),
		stopCh:           make(chan struct{}),
	}
}

// Start reaps any job left in a non-terminal state by a previous process
// (a crash or ungraceful restart) and launches the background loops. Call
// once, after New.
func (s *Scheduler) Start(ctx context.Context, publicIPClient *publicIPChecker) {
	s.publicIPClient = publicIPClient
	s.reapDangling(ctx)

	s.wg.Add(1)
	go s.cleanupLoop()

	if s.publicIPCheck && s.publicIPClient != nil {
		s.wg.Add(1)
		go s.publicIPLoop()
	}
}

// Stop signals the background loops to exit and waits for them.
func (s *Scheduler) Stop() {
	s.stopOnce.Do(func() { close(s.stopCh) })
	s.wg.Wait()
}

// reapDangling transitions every queued/downloading job to failed: the
// process that owned them is gone, so they can never reach a terminal
// state any other way.
func (s *Scheduler) reapDangling(ctx context.Context) {
	for _, status := range []domain.JobStatus{domain.JobStatusQueued, domain.JobStatusDownloading} {
		dangling, err := s.jobs.List(ctx, status)
		if err != nil {
			log.Error().Err(err).Str("status", string(status)).Msg("scheduler: failed to list jobs for reaping")
			continue
		}
		for _, j := range dangling {
			if err := s.jobs.TransitionStatus(ctx, j.ID, domain.JobStatusFailed, "dangling: reaped at startup", ""); err != nil {
				log.Error().Err(err).Str("job_id", j.ID).Msg("scheduler: failed to reap dangling job")
			}
		}
	}
}

// Submit inserts a queued Job (and, if req.InfoHash is set, a ClientTask),
// then dispatches it to the worker pool. A resubmission of an already-known
// info hash returns the existing job id instead of creating a duplicate.
func (s *Scheduler) Submit(ctx context.Context, req Request) (string, error) {
	if req.InfoHash != "" {
		if existing, err := s.tasks.Get(ctx, req.InfoHash); err == nil {
			return existing.JobID, nil
		}
	}

	mode := req.Mode
	if mode == "" {
		mode = domain.JobModeDownload
	}

	job := &models.Job{
		ID:             uuid.NewString(),
		Mode:           mode,
		Status:         domain.JobStatusQueued,
		Site:           req.Site,
		Slug:           req.Slug,
		Season:         req.Season,
		Episode:        req.Episode,
		Language:       req.Language,
		Provider:       req.Provider,
		TitleHint:      req.TitleHint,
		AbsoluteNumber: req.AbsoluteNumber,
	}
	if err := s.jobs.Create(ctx, job); err != nil {
		return "", fmt.Errorf("scheduler: create job: %w", err)
	}

	if req.InfoHash != "" {
		task := &models.ClientTask{
			InfoHash:       req.InfoHash,
			JobID:          job.ID,
			Name:           req.DisplayName,
			Site:           req.Site,
			Slug:           req.Slug,
			Season:         req.Season,
			Episode:        req.Episode,
			Language:       req.Language,
			Provider:       req.Provider,
			AbsoluteNumber: req.AbsoluteNumber,
			SavePath:       req.SavePath,
			Category:       req.Category,
		}
		if err := s.tasks.Create(ctx, task); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: failed to create client task")
		}
	}

	s.dispatch(job, req.InfoHash)
	return job.ID, nil
}

// dispatch runs a job on a pool goroutine, blocking on the semaphore until a
// worker slot is free or the job is cancelled first. infoHash is empty when
// the submission carried no ClientTask.
func (s *Scheduler) dispatch(job *models.Job, infoHash string) {
	runCtx, cancel := context.WithCancel(context.Background())

	s.mu.Lock()
	s.cancelFns[job.ID] = cancel
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		defer s.clearJob(job.ID)
		defer cancel()

		if err := s.sem.Acquire(runCtx, 1); err != nil {
			s.finish(context.Background(), job, infoHash, domain.JobStatusCancelled, "cancelled while queued", "")
			return
		}
		s.inFlight.Add(1)
		defer s.inFlight.Add(-1)
		defer s.sem.Release(1)

		if err := s.jobs.TransitionStatus(context.Background(), job.ID, domain.JobStatusDownloading, "", ""); err != nil {
			log.Error().Err(err).Str("job_id", job.ID).Msg("scheduler: failed to mark job downloading")
			return
		}

		resultPath, err := s.runner.Run(runCtx, job, s.progressFunc(job.ID))
		if err != nil {
			if runCtx.Err() != nil {
				s.finish(context.Background(), job, infoHash, domain.JobStatusCancelled, "cancelled", "")
				return
			}
			s.finish(context.Background(), job, infoHash, domain.JobStatusFailed, err.Error(), "")
			return
		}

		s.finish(context.Background(), job, infoHash, domain.JobStatusCompleted, "", resultPath)
	}()
}

func (s *Scheduler) finish(ctx context.Context, job *models.Job, infoHash string, status domain.JobStatus, message, resultPath string) {
	if err := s.jobs.TransitionStatus(ctx, job.ID, status, message, resultPath); err != nil {
		log.Error().Err(err).Str("job_id", job.ID).Str("status", string(status)).Msg("scheduler: failed to finalize job")
	}
	if status == domain.JobStatusCompleted && infoHash != "" {
		if err := s.tasks.MarkCompleted(ctx, infoHash); err != nil {
			log.Debug().Err(err).Str("job_id", job.ID).Msg("scheduler: failed to mark client task completed")
		}
	}
}

// Cancel marks a running (or still-queued) job for cancellation. The
// worker checks in at I/O boundaries via the runner's context and
// transitions to cancelled on its own; Cancel only signals, it does not
// block waiting for the transition.
func (s *Scheduler) Cancel(jobID string) bool {
	s.mu.Lock()
	cancel, ok := s.cancelFns[jobID]
	s.mu.Unlock()
	if !ok {
		return false
	}
	cancel()
	return true
}

// InFlight reports the number of jobs currently holding a worker-pool slot,
// for the worker-pool-utilization metric.
func (s *Scheduler) InFlight() int64 {
	return s.inFlight.Load()
}

// MaxConcurrency reports the configured worker-pool size.
func (s *Scheduler) MaxConcurrency() int64 {
	return s.maxConcurrency
}

func (s *Scheduler) clearJob(jobID string) {
	s.mu.Lock()
	delete(s.cancelFns, jobID)
	if d, ok := s.debounced[jobID]; ok {
		d.Stop()
		delete(s.debounced, jobID)
	}
	s.mu.Unlock()
}

// progressFunc returns a ProgressFunc that debounces persistence of a
// single job's progress so a chunked download reporting many times a
// second does not hammer the database.
func (s *Scheduler) progressFunc(jobID string) ProgressFunc {
	const debounceDelay = 250 * time.Millisecond

	s.mu.Lock()
	d, ok := s.debounced[jobID]
	if !ok {
		d = debounce.New(debounceDelay)
		s.debounced[jobID] = d
	}
	s.mu.Unlock()

	return func(percent float64, downloaded, total, speed, eta int64, message string) {
		d.Do(func() {
			if err := s.jobs.UpdateProgress(context.Background(), jobID, percent, downloaded, total, speed, eta, message); err != nil {
				log.Debug().Err(err).Str("job_id", jobID).Msg("scheduler: failed to persist progress")
			}
		})
	}
}
