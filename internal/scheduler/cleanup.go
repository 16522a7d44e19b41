// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzackllack/anibridge/internal/domain"
)

// cleanupLoop deletes the result file of every completed job whose
// completion is older than the configured TTL. It leaves the Job row itself
// in place, history rather than state,
// so the qBittorrent façade can still list a torrent whose data has been
// reclaimed.
func (s *Scheduler) cleanupLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.runCleanup(context.Background())
		}
	}
}

func (s *Scheduler) runCleanup(ctx context.Context) {
	completed, err := s.jobs.List(ctx, domain.JobStatusCompleted)
	if err != nil {
		log.Error().Err(err).Msg("scheduler: cleanup: failed to list completed jobs")
		return
	}

	cutoff := time.Now().Add(-s.downloadsTTL)
	for _, j := range completed {
		if j.ResultPath == "" || j.UpdatedAt.After(cutoff) {
			continue
		}
		if err := os.Remove(j.ResultPath); err != nil && !os.IsNotExist(err) {
			log.Warn().Err(err).Str("job_id", j.ID).Str("path", j.ResultPath).Msg("scheduler: cleanup: failed to remove expired result")
			continue
		}
		log.Debug().Str("job_id", j.ID).Str("path", j.ResultPath).Msg("scheduler: cleanup: removed expired result")
	}
}
