// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package middleware

import "github.com/go-chi/chi/v5/middleware"

// RequestID injects a per-request ID into the context so the zerolog
// request logger can correlate entries across one request's lifetime.
var RequestID = middleware.RequestID

// Recoverer turns a handler panic into a logged HTTP 500 instead of
// tearing down the connection.
var Recoverer = middleware.Recoverer

// RealIP rewrites RemoteAddr from True-Client-IP/X-Real-IP/X-Forwarded-For.
// Only safe behind a trusted reverse proxy; the bridge is typically deployed
// behind one on the same host or compose network.
var RealIP = middleware.RealIP
