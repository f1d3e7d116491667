package config

import (
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Config holds application configuration.
// Runtime-tunable storage policy (max records, cleanup days, thresholds) lives in
// settings.Settings instead, because it is persisted and mutated at runtime.
type Config struct {
	// AllowedPaths is an allowlist of directories for import/export files.
	// Paths outside <base>/exports require either being in this list or AllowUnsafePaths=true.
	AllowedPaths []string `json:"allowed_paths,omitempty"`

	// AllowUnsafePaths disables directory restrictions for import/export files.
	// Extension and symlink checks still apply.
	AllowUnsafePaths bool `json:"allow_unsafe_paths,omitempty"`

	// AllowedHosts is the host allow-list for URLs kept in records.
	// A URL is kept if its host equals an entry or is a subdomain of one.
	AllowedHosts []string `json:"allowed_hosts,omitempty"`

	// RateLimitMaxRequests is the number of admissions allowed per window.
	RateLimitMaxRequests int `json:"rate_limit_max_requests,omitempty"`

	// RateLimitWindowMs is the sliding window length in milliseconds.
	RateLimitWindowMs int `json:"rate_limit_window_ms,omitempty"`

	// QueueMaxLength bounds the admission queue; the oldest entry is dropped when full.
	QueueMaxLength int `json:"queue_max_length,omitempty"`

	// QueueDrainIntervalMs is the period of the queue drain loop.
	QueueDrainIntervalMs int `json:"queue_drain_interval_ms,omitempty"`

	// QueueStaleAfterMs is how long a queued record may wait before it is discarded.
	QueueStaleAfterMs int `json:"queue_stale_after_ms,omitempty"`

	// QuotaFirstCheckMinutes delays the first periodic quota check after startup.
	QuotaFirstCheckMinutes int `json:"quota_first_check_minutes,omitempty"`

	// QuotaCheckIntervalMinutes is the period of quota checks after the first one.
	QuotaCheckIntervalMinutes int `json:"quota_check_interval_minutes,omitempty"`

	// QuotaCapacityBytes overrides the estimated storage capacity.
	// 0 means estimate from free disk space, falling back to a fixed constant.
	QuotaCapacityBytes int64 `json:"quota_capacity_bytes,omitempty"`

	// DBMaxOpenConns limits the maximum number of open database connections.
	// 0 means use sql.DB default (unlimited). Only set if you experience contention.
	DBMaxOpenConns int `json:"db_max_open_conns,omitempty"`

	// DBMaxIdleConns limits the maximum number of idle database connections.
	// 0 means use sql.DB default. Typically set equal to DBMaxOpenConns.
	DBMaxIdleConns int `json:"db_max_idle_conns,omitempty"`

	// DisabledTools is a list of MCP tool names to exclude from registration.
	DisabledTools []string `json:"disabled_tools,omitempty"`

	// DisabledTypes is a list of tool type prefixes to disable entirely.
	// Known types: "record", "settings", "quota", "event".
	DisabledTypes []string `json:"disabled_types,omitempty"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `json:"log_level,omitempty"`

	// LogFormat is "text" or "json".
	LogFormat string `json:"log_format,omitempty"`

	// HTTPBind and HTTPPort configure the serve command.
	HTTPBind string `json:"http_bind,omitempty"`
	HTTPPort int    `json:"http_port,omitempty"`
}

// DefaultAllowedHosts are the origin site and its media CDN.
var DefaultAllowedHosts = []string{"linkedin.com", "licdn.com"}

// DefaultConfig returns the default configuration.
func DefaultConfig() *Config {
	return &Config{
		AllowedHosts:              append([]string(nil), DefaultAllowedHosts...),
		RateLimitMaxRequests:      20,
		RateLimitWindowMs:         60_000,
		QueueMaxLength:            50,
		QueueDrainIntervalMs:      3_000,
		QueueStaleAfterMs:         300_000,
		QuotaFirstCheckMinutes:    30,
		QuotaCheckIntervalMinutes: 60,
		LogLevel:                  "info",
		LogFormat:                 "text",
		HTTPBind:                  "127.0.0.1",
		HTTPPort:                  8787,
	}
}

// RateLimitWindow returns the limiter window as a duration.
func (c *Config) RateLimitWindow() time.Duration {
	return time.Duration(c.RateLimitWindowMs) * time.Millisecond
}

// QueueDrainInterval returns the drain loop period as a duration.
func (c *Config) QueueDrainInterval() time.Duration {
	return time.Duration(c.QueueDrainIntervalMs) * time.Millisecond
}

// QueueStaleAfter returns the staleness ceiling as a duration.
func (c *Config) QueueStaleAfter() time.Duration {
	return time.Duration(c.QueueStaleAfterMs) * time.Millisecond
}

// QuotaFirstCheck returns the delay before the first periodic quota check.
func (c *Config) QuotaFirstCheck() time.Duration {
	return time.Duration(c.QuotaFirstCheckMinutes) * time.Minute
}

// QuotaCheckInterval returns the period between quota checks.
func (c *Config) QuotaCheckInterval() time.Duration {
	return time.Duration(c.QuotaCheckIntervalMinutes) * time.Minute
}

// Load loads configuration from baseDir/config.json.
// Returns default config if the file doesn't exist.
// The baseDir parameter allows tests to use t.TempDir() instead of ~/.feedvault.
func Load(baseDir string) (*Config, error) {
	return loadFile(filepath.Join(baseDir, "config.json"))
}

// LoadWithRepo loads configuration from both global (~/.feedvault) and repo (.feedvault) directories.
// Repo config is found by walking upward from startDir to find the nearest .feedvault/config.json.
// Repo config takes precedence for scalar values; arrays are merged (deduplicated).
// Either or both configs may be missing.
func LoadWithRepo(globalDir, startDir string) (*Config, error) {
	global, err := loadFileRaw(filepath.Join(globalDir, "config.json"))
	if err != nil {
		return nil, err
	}

	repoConfigPath := FindRepoConfig(startDir)
	repo, err := loadFileRaw(repoConfigPath)
	if err != nil {
		return nil, err
	}

	return Merge(Merge(DefaultConfig(), global), repo), nil
}

// FindRepoConfig walks upward from startDir to find the nearest .feedvault/config.json.
// Returns the path if found, or empty string if not found.
func FindRepoConfig(startDir string) string {
	dir := startDir
	for {
		configPath := filepath.Join(dir, ".feedvault", "config.json")
		if _, err := os.Stat(configPath); err == nil {
			return configPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return ""
		}
		dir = parent
	}
}

// loadFileRaw loads configuration from a specific file path.
// Returns zero-valued config if the file doesn't exist (not defaults).
func loadFileRaw(configPath string) (*Config, error) {
	if configPath == "" {
		return &Config{}, nil
	}
	data, err := os.ReadFile(configPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return &Config{}, nil
		}
		return nil, err
	}

	cfg := &Config{}
	if err := json.Unmarshal(data, cfg); err != nil {
		return nil, err
	}

	return cfg, nil
}

// loadFile loads configuration from a specific file path.
// Returns default config if the file doesn't exist.
func loadFile(configPath string) (*Config, error) {
	cfg, err := loadFileRaw(configPath)
	if err != nil {
		return nil, err
	}
	return Merge(DefaultConfig(), cfg), nil
}

// Merge combines base and overlay configs.
// Overlay values take precedence for scalars; arrays are merged and deduplicated.
func Merge(base, overlay *Config) *Config {
	result := &Config{
		RateLimitMaxRequests:      pickInt(overlay.RateLimitMaxRequests, base.RateLimitMaxRequests),
		RateLimitWindowMs:         pickInt(overlay.RateLimitWindowMs, base.RateLimitWindowMs),
		QueueMaxLength:            pickInt(overlay.QueueMaxLength, base.QueueMaxLength),
		QueueDrainIntervalMs:      pickInt(overlay.QueueDrainIntervalMs, base.QueueDrainIntervalMs),
		QueueStaleAfterMs:         pickInt(overlay.QueueStaleAfterMs, base.QueueStaleAfterMs),
		QuotaFirstCheckMinutes:    pickInt(overlay.QuotaFirstCheckMinutes, base.QuotaFirstCheckMinutes),
		QuotaCheckIntervalMinutes: pickInt(overlay.QuotaCheckIntervalMinutes, base.QuotaCheckIntervalMinutes),
		DBMaxOpenConns:            pickInt(overlay.DBMaxOpenConns, base.DBMaxOpenConns),
		DBMaxIdleConns:            pickInt(overlay.DBMaxIdleConns, base.DBMaxIdleConns),
		HTTPPort:                  pickInt(overlay.HTTPPort, base.HTTPPort),
		LogLevel:                  pickString(overlay.LogLevel, base.LogLevel),
		LogFormat:                 pickString(overlay.LogFormat, base.LogFormat),
		HTTPBind:                  pickString(overlay.HTTPBind, base.HTTPBind),
	}

	result.QuotaCapacityBytes = overlay.QuotaCapacityBytes
	if result.QuotaCapacityBytes == 0 {
		result.QuotaCapacityBytes = base.QuotaCapacityBytes
	}

	result.AllowUnsafePaths = base.AllowUnsafePaths || overlay.AllowUnsafePaths

	result.AllowedPaths = mergeStringSlice(base.AllowedPaths, overlay.AllowedPaths)
	result.AllowedHosts = mergeStringSlice(base.AllowedHosts, overlay.AllowedHosts)
	result.DisabledTools = mergeStringSlice(base.DisabledTools, overlay.DisabledTools)
	result.DisabledTypes = mergeStringSlice(base.DisabledTypes, overlay.DisabledTypes)

	return result
}

func pickInt(overlay, base int) int {
	if overlay != 0 {
		return overlay
	}
	return base
}

func pickString(overlay, base string) string {
	if strings.TrimSpace(overlay) != "" {
		return overlay
	}
	return base
}

// mergeStringSlice combines two slices, trims whitespace, and removes duplicates.
// AllowedHosts from a config file therefore extend the defaults rather than replace them.
func mergeStringSlice(a, b []string) []string {
	seen := make(map[string]bool)
	result := make([]string, 0, len(a)+len(b))

	for _, s := range append(append([]string(nil), a...), b...) {
		s = strings.TrimSpace(s)
		if s != "" && !seen[s] {
			seen[s] = true
			result = append(result, s)
		}
	}

	if len(result) == 0 {
		return nil
	}
	return result
}
