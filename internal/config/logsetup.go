// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"
)

// setLogLevel applies a textual log level (trace/debug/info/warn/error) to
// the global zerolog level. Unknown values fall back to info.
func setLogLevel(level string) {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(level)))
	if err != nil {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
}

// baseLogWriter returns the always-on console writer, tagged with the
// running build's version so console output is self-describing. The tag is
// applied only to this stdout writer; the optional rotating log file
// receives zerolog's JSON lines without it.
func baseLogWriter(version string) io.Writer {
	writer := zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: "2006-01-02T15:04:05Z07:00"}
	writer.FormatMessage = func(i interface{}) string {
		if i == nil {
			return ""
		}
		return fmt.Sprintf("[anibridge %s] %s", version, i)
	}
	return writer
}
