// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package runner

import (
	"context"
	"fmt"

	"github.com/zzackllack/anibridge/internal/domain"
	"github.com/zzackllack/anibridge/internal/models"
)

// ProgressFunc is a type alias (not a distinct named type) for the progress
// callback signature DownloadRunner.Run/StrmRunner.Run already use, so
// ModeRouter's Run method has an identical signature to theirs without
// either file needing to import the other's declaration.
type ProgressFunc = func(percent float64, downloadedBytes, totalBytes, speedBps, etaSeconds int64, message string)

// modeRunner is the common shape DownloadRunner and StrmRunner both satisfy.
type modeRunner interface {
	Run(ctx context.Context, job *models.Job, progress ProgressFunc) (string, error)
}

// ModeRouter implements scheduler.Runner by dispatching a job to the
// download or STRM runner according to its Mode. This is the single Runner
// the scheduler is constructed with; the two mode-specific runners never
// need to know about each other.
type ModeRouter struct {
	download modeRunner
	strm     modeRunner
}

// NewModeRouter builds a ModeRouter. Either runner may be nil, in which case
// jobs of that mode fail immediately rather than panicking.
func NewModeRouter(download *DownloadRunner, strm *StrmRunner) *ModeRouter {
	m := &ModeRouter{}
	if download != nil {
		m.download = download
	}
	if strm != nil {
		m.strm = strm
	}
	return m
}

// Run implements scheduler.Runner.
func (m *ModeRouter) Run(ctx context.Context, job *models.Job, progress ProgressFunc) (string, error) {
	switch job.Mode {
	case domain.JobModeStrm:
		if m.strm == nil {
			return "", fmt.Errorf("runner: strm mode not configured")
		}
		return m.strm.Run(ctx, job, progress)
	case domain.JobModeDownload, "":
		if m.download == nil {
			return "", fmt.Errorf("runner: download mode not configured")
		}
		return m.download.Run(ctx, job, progress)
	default:
		return "", fmt.Errorf("runner: unknown job mode %q", job.Mode)
	}
}
