// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package runner implements scheduler.Runner for both job modes: a
// provider-fallback chunk downloader that writes the final media file
// (mode=download), and a .strm-file writer (mode=strm) that either embeds a
// direct upstream URL or a signed bridge URL depending on StrmProxyMode.
package runner

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// chunkSize bounds a single read from the upstream response body so
// progress can be reported and cancellation observed between chunks,
// matching the STRM proxy's own bounded-chunk streaming.
const chunkSize = 64 * 1024

// progressReporter is the subset of scheduler.ProgressFunc the chunk
// downloader needs, narrowed so this package doesn't import
// internal/scheduler just for a function type.
type progressReporter func(percent float64, downloaded, total, speedBps, etaSeconds int64, message string)

// fetchToFile streams directURL into destPath, reporting progress at chunk
// boundaries and aborting (deleting the partial file) if ctx is cancelled.
// A non-empty destPath is resumed with a Range request: a 206 response is
// appended, a 200 response rewrites the file from the start.
func fetchToFile(ctx context.Context, client *http.Client, directURL, destPath string, progress progressReporter) (err error) {
	var resumeFrom int64
	if fi, statErr := os.Stat(destPath); statErr == nil {
		resumeFrom = fi.Size()
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, directURL, nil)
	if err != nil {
		return fmt.Errorf("runner: build request: %w", err)
	}
	if resumeFrom > 0 {
		req.Header.Set("Range", fmt.Sprintf("bytes=%d-", resumeFrom))
	}

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("runner: fetch media: %w", err)
	}
	defer resp.Body.Close()

	flags := os.O_CREATE | os.O_WRONLY
	downloaded := int64(0)
	switch resp.StatusCode {
	case http.StatusPartialContent:
		flags |= os.O_APPEND
		downloaded = resumeFrom
	case http.StatusOK:
		flags |= os.O_TRUNC
		downloaded = 0
	default:
		return fmt.Errorf("runner: fetch media: unexpected status %d", resp.StatusCode)
	}

	total := downloaded + resp.ContentLength
	if resp.ContentLength < 0 {
		total = 0
	}

	f, err := os.OpenFile(destPath, flags, 0o644)
	if err != nil {
		return fmt.Errorf("runner: open destination: %w", err)
	}
	defer func() {
		closeErr := f.Close()
		if err == nil {
			err = closeErr
		}
		if err != nil {
			os.Remove(destPath)
		}
	}()

	buf := make([]byte, chunkSize)
	start := time.Now()
	lastReport := start

	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		n, readErr := resp.Body.Read(buf)
		if n > 0 {
			if _, writeErr := f.Write(buf[:n]); writeErr != nil {
				return fmt.Errorf("runner: write chunk: %w", writeErr)
			}
			downloaded += int64(n)

			if now := time.Now(); now.Sub(lastReport) >= 100*time.Millisecond {
				reportProgress(progress, downloaded, total, start)
				lastReport = now
			}
		}
		if readErr == io.EOF {
			break
		}
		if readErr != nil {
			return fmt.Errorf("runner: read chunk: %w", readErr)
		}
	}

	reportProgress(progress, downloaded, total, start)
	return nil
}

func reportProgress(progress progressReporter, downloaded, total int64, start time.Time) {
	if progress == nil {
		return
	}

	elapsed := time.Since(start).Seconds()
	var speed int64
	if elapsed > 0 {
		speed = int64(float64(downloaded) / elapsed)
	}

	var percent float64
	var eta int64
	if total > 0 {
		percent = float64(downloaded) / float64(total) * 100
		if speed > 0 {
			eta = (total - downloaded) / speed
		}
	}

	message := humanize.Bytes(uint64(downloaded))
	if total > 0 {
		message = fmt.Sprintf("%s / %s", message, humanize.Bytes(uint64(total)))
	}
	if speed > 0 {
		message = fmt.Sprintf("%s at %s/s", message, humanize.Bytes(uint64(speed)))
	}

	progress(percent, downloaded, total, speed, eta, message)
}
