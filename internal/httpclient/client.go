// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

// Package httpclient builds the single shared outbound http.Client used by
// the catalogue adapters, the title resolver's suggest-API fallback, the
// quality prober's provider extractors, and the specials mapper's metadata
// lookups. One client, one cookie jar, one connection pool, constructed once
// and passed down explicitly.
package httpclient

import (
	"context"
	"net/http"
	"net/http/cookiejar"
	"time"

	"github.com/avast/retry-go"
	"github.com/rs/zerolog/log"
	"golang.org/x/net/publicsuffix"
)

// DefaultTimeout bounds every outbound request the engine makes. No call
// runs with "no timeout".
const DefaultTimeout = 20 * time.Second

// New builds the shared client: a cookie jar (scoped by the public suffix
// list so catalogue-site cookies don't leak across domains) and a finite
// per-request timeout.
func New() (*http.Client, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, err
	}
	return &http.Client{
		Jar:     jar,
		Timeout: DefaultTimeout,
	}, nil
}

// Get performs a GET with retry-go's bounded exponential backoff, reserved
// for transient network errors on catalogue index fetches and metadata
// lookups, never around provider extraction, which has its own
// provider-fallback semantics.
func Get(ctx context.Context, client *http.Client, url string, attempts uint) (*http.Response, error) {
	var resp *http.Response
	err := retry.Do(
		func() error {
			req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
			if err != nil {
				return retry.Unrecoverable(err)
			}
			r, err := client.Do(req)
			if err != nil {
				return err
			}
			if r.StatusCode >= 500 {
				r.Body.Close()
				return errStatus(r.StatusCode)
			}
			resp = r
			return nil
		},
		retry.Attempts(attempts),
		retry.Delay(200*time.Millisecond),
		retry.LastErrorOnly(true),
		retry.OnRetry(func(n uint, err error) {
			log.Debug().Uint("attempt", n).Str("url", url).Err(err).Msg("retrying outbound request")
		}),
	)
	return resp, err
}

type httpStatusError int

func (e httpStatusError) Error() string {
	return http.StatusText(int(e))
}

func errStatus(code int) error {
	return httpStatusError(code)
}
