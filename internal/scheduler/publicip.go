// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package scheduler

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/zzackllack/anibridge/internal/httpclient"
)

// publicIPChecker wraps the shared outbound client to resolve the egress IP
// address, so an operator behind a VPN/proxy can confirm outbound traffic
// actually leaves through the network they expect.
type publicIPChecker struct {
	client   *http.Client
	endpoint string
}

// NewPublicIPChecker builds a checker against a public IP-echo endpoint,
// queried through the engine's shared outbound client.
func NewPublicIPChecker(client *http.Client) *publicIPChecker {
	return &publicIPChecker{client: client, endpoint: "https://api.ipify.org?format=json"}
}

func (c *publicIPChecker) check(ctx context.Context) (string, error) {
	resp, err := httpclient.Get(ctx, c.client, c.endpoint, 2)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1024))
	if err != nil {
		return "", err
	}

	var payload struct {
		IP string `json:"ip"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return "", err
	}
	return payload.IP, nil
}

// publicIPLoop periodically logs the egress IP seen through the shared
// outbound client. Best-effort: a failed lookup is logged at debug level
// and does not affect job processing.
func (s *Scheduler) publicIPLoop() {
	defer s.wg.Done()

	ticker := time.NewTicker(s.publicIPInterval)
	defer ticker.Stop()

	s.logPublicIP()
	for {
		select {
		case <-s.stopCh:
			return
		case <-ticker.C:
			s.logPublicIP()
		}
	}
}

func (s *Scheduler) logPublicIP() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	ip, err := s.publicIPClient.check(ctx)
	if err != nil {
		log.Debug().Err(err).Msg("scheduler: public IP check failed")
		return
	}
	log.Info().Str("egress_ip", ip).Msg("scheduler: outbound network egress IP")
}
