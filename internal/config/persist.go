// Copyright (c) 2025, s0up and the autobrr contributors.
// SPDX-License-Identifier: GPL-2.0-or-later

package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

const (
	lockedByEnv      = "environment"
	lockedByEnvEmpty = "environment (empty)"
)

// persistMu ensures only one goroutine writes to config.toml at a time.
var persistMu sync.Mutex

// PersistLogSettings atomically rewrites only the log-related keys in
// config.toml, preserving every other line and comment as-is.
func (c *AppConfig) PersistLogSettings(level, path string, maxSize, maxBackups int) error {
	persistMu.Lock()
	defer persistMu.Unlock()

	configPath := c.viper.ConfigFileUsed()
	if configPath == "" {
		return errors.New("no config file path available")
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}

	updated := updateLogSettingsInTOML(string(content), level, path, maxSize, maxBackups)

	// Temp file + fsync + rename so a crash mid-write never truncates the
	// operator's config.
	dir := filepath.Dir(configPath)
	tmpFile, err := os.CreateTemp(dir, ".config.toml.tmp.*")
	if err != nil {
		return fmt.Errorf("failed to create temp file: %w", err)
	}
	tmpPath := tmpFile.Name()

	if _, err = tmpFile.WriteString(updated); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to write temp file: %w", err)
	}
	if err := tmpFile.Sync(); err != nil {
		tmpFile.Close()
		os.Remove(tmpPath)
		return fmt.Errorf("failed to sync temp file: %w", err)
	}
	tmpFile.Close()

	if err := os.Rename(tmpPath, configPath); err != nil {
		os.Remove(tmpPath)
		return fmt.Errorf("failed to rename temp file: %w", err)
	}

	return nil
}

// logSettings holds the values for updating TOML.
type logSettings struct {
	level, path         string
	maxSize, maxBackups int
}

// updateLogSettingsInTOML replaces the log-related key lines in a TOML
// document, appending any that were missing entirely.
func updateLogSettingsInTOML(content, level, path string, maxSize, maxBackups int) string {
	lines := strings.Split(content, "\n")
	result := make([]string, 0, len(lines))
	updated := make(map[string]bool)
	settings := logSettings{level, path, maxSize, maxBackups}

	for _, line := range lines {
		result = append(result, processLogLine(line, settings, updated))
	}

	appended := appendMissingSettings(updated, settings)
	if len(appended) > 0 {
		result = append(result, "", "# Log settings")
		result = append(result, appended...)
	}

	return strings.Join(result, "\n")
}

// processLogLine rewrites a single TOML line when it carries a log setting,
// passing everything else (comments, blanks, other keys) through untouched.
func processLogLine(line string, s logSettings, updated map[string]bool) string {
	trimmed := strings.TrimSpace(line)
	if trimmed == "" || strings.HasPrefix(trimmed, "#") {
		return line
	}

	switch strings.ToLower(extractKey(trimmed)) {
	case "loglevel":
		updated["logLevel"] = true
		return fmt.Sprintf("logLevel = %q", s.level)
	case "logpath":
		updated["logPath"] = true
		if s.path == "" {
			return fmt.Sprintf("#logPath = %q", s.path)
		}
		return fmt.Sprintf("logPath = %q", s.path)
	case "logmaxsize":
		updated["logMaxSize"] = true
		return fmt.Sprintf("logMaxSize = %d", s.maxSize)
	case "logmaxbackups":
		updated["logMaxBackups"] = true
		return fmt.Sprintf("logMaxBackups = %d", s.maxBackups)
	default:
		return line
	}
}

// appendMissingSettings returns TOML lines for settings not already in the file.
func appendMissingSettings(updated map[string]bool, s logSettings) []string {
	var appended []string
	if !updated["logLevel"] {
		appended = append(appended, fmt.Sprintf("logLevel = %q", s.level))
	}
	if !updated["logPath"] && s.path != "" {
		appended = append(appended, fmt.Sprintf("logPath = %q", s.path))
	}
	if !updated["logMaxSize"] {
		appended = append(appended, fmt.Sprintf("logMaxSize = %d", s.maxSize))
	}
	if !updated["logMaxBackups"] {
		appended = append(appended, fmt.Sprintf("logMaxBackups = %d", s.maxBackups))
	}
	return appended
}

// extractKey extracts the key name from a TOML line like "key = value".
func extractKey(line string) string {
	line = strings.TrimPrefix(line, "#")
	line = strings.TrimSpace(line)

	key, _, found := strings.Cut(line, "=")
	if !found {
		return ""
	}
	return strings.TrimSpace(key)
}

// GetLockedLogSettings reports which log settings are pinned by an
// ANIBRIDGE_* environment override and therefore must not be modified at
// runtime. The names follow viper's AutomaticEnv convention for this
// config's camelCase keys (no underscore between words).
func (c *AppConfig) GetLockedLogSettings() map[string]string {
	locked := make(map[string]string)
	checkEnvLock(locked, "level", envPrefix+"LOGLEVEL")
	checkEnvLock(locked, "path", envPrefix+"LOGPATH")
	checkEnvLock(locked, "maxSize", envPrefix+"LOGMAXSIZE")
	checkEnvLock(locked, "maxBackups", envPrefix+"LOGMAXBACKUPS")
	return locked
}

// checkEnvLock adds a lock entry if the environment variable is set.
func checkEnvLock(locked map[string]string, key, envVar string) {
	if value, ok := os.LookupEnv(envVar); ok {
		if strings.TrimSpace(value) == "" {
			locked[key] = lockedByEnvEmpty
		} else {
			locked[key] = lockedByEnv
		}
	}
}

// GetLogSettings returns the current log settings with locked field
// information. Path is resolved to an absolute path against the config
// directory.
func (c *AppConfig) GetLogSettings() LogSettingsResponse {
	c.configMu.Lock()
	level := canonicalizeLogLevel(c.Config.LogLevel)
	path := c.ResolveLogPath(c.Config.LogPath)
	maxSize := c.Config.LogMaxSize
	maxBackups := c.Config.LogMaxBackups
	configPath := c.viper.ConfigFileUsed()
	c.configMu.Unlock()

	return LogSettingsResponse{
		Level:      level,
		Path:       path,
		MaxSize:    maxSize,
		MaxBackups: maxBackups,
		ConfigPath: configPath,
		Locked:     c.GetLockedLogSettings(),
	}
}

// canonicalizeLogLevel normalizes a log level string to uppercase, treating
// anything unrecognised as INFO.
func canonicalizeLogLevel(level string) string {
	normalized := strings.ToUpper(strings.TrimSpace(level))
	switch normalized {
	case "TRACE", "DEBUG", "INFO", "WARN", "ERROR":
		return normalized
	default:
		return "INFO"
	}
}

// validateLockedFields checks if any locked fields are being modified.
func validateLockedFields(update LogSettingsUpdate, locked map[string]string) error {
	if update.Level != nil && locked["level"] != "" {
		return fmt.Errorf("cannot modify level: locked by %s", locked["level"])
	}
	if update.Path != nil && locked["path"] != "" {
		return fmt.Errorf("cannot modify path: locked by %s", locked["path"])
	}
	if update.MaxSize != nil && locked["maxSize"] != "" {
		return fmt.Errorf("cannot modify maxSize: locked by %s", locked["maxSize"])
	}
	if update.MaxBackups != nil && locked["maxBackups"] != "" {
		return fmt.Errorf("cannot modify maxBackups: locked by %s", locked["maxBackups"])
	}
	return nil
}

// UpdateLogSettings validates a partial update, applies it to the live
// logger, and persists it to config.toml only after the apply succeeded.
// Any failure rolls the in-memory config and logger back to the previous
// settings.
func (c *AppConfig) UpdateLogSettings(update LogSettingsUpdate) (LogSettingsResponse, error) {
	c.configMu.Lock()
	defer c.configMu.Unlock()

	if err := validateLockedFields(update, c.GetLockedLogSettings()); err != nil {
		return LogSettingsResponse{}, err
	}

	oldLevel := c.Config.LogLevel
	oldPath := c.Config.LogPath
	oldMaxSize := c.Config.LogMaxSize
	oldMaxBackups := c.Config.LogMaxBackups

	committed := false
	defer func() {
		if committed {
			return
		}
		c.Config.LogLevel = oldLevel
		c.Config.LogPath = oldPath
		c.Config.LogMaxSize = oldMaxSize
		c.Config.LogMaxBackups = oldMaxBackups
		c.viper.Set("logLevel", oldLevel)
		c.viper.Set("logPath", oldPath)
		c.viper.Set("logMaxSize", oldMaxSize)
		c.viper.Set("logMaxBackups", oldMaxBackups)
		// ApplyLogConfig may have partially applied before failing (e.g.
		// level changed before a path error); restore is best-effort.
		c.ApplyLogConfig() //nolint:errcheck
	}()

	if update.Level != nil {
		c.Config.LogLevel = canonicalizeLogLevel(*update.Level)
		c.viper.Set("logLevel", c.Config.LogLevel)
	}
	if update.Path != nil {
		c.Config.LogPath = *update.Path
		c.viper.Set("logPath", c.Config.LogPath)
	}
	if update.MaxSize != nil {
		c.Config.LogMaxSize = *update.MaxSize
		c.viper.Set("logMaxSize", c.Config.LogMaxSize)
	}
	if update.MaxBackups != nil {
		c.Config.LogMaxBackups = *update.MaxBackups
		c.viper.Set("logMaxBackups", c.Config.LogMaxBackups)
	}

	if err := c.ApplyLogConfig(); err != nil {
		return LogSettingsResponse{}, fmt.Errorf("failed to apply log configuration: %w", err)
	}

	if err := c.PersistLogSettings(c.Config.LogLevel, c.Config.LogPath, c.Config.LogMaxSize, c.Config.LogMaxBackups); err != nil {
		return LogSettingsResponse{}, fmt.Errorf("failed to persist settings: %w", err)
	}

	committed = true
	// Constructed inline because configMu is already held; GetLogSettings
	// would deadlock.
	return LogSettingsResponse{
		Level:      canonicalizeLogLevel(c.Config.LogLevel),
		Path:       c.ResolveLogPath(c.Config.LogPath),
		MaxSize:    c.Config.LogMaxSize,
		MaxBackups: c.Config.LogMaxBackups,
		ConfigPath: c.viper.ConfigFileUsed(),
		Locked:     c.GetLockedLogSettings(),
	}, nil
}
