// Package config loads application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"
)

const envPrefix = "COOKIEPOOL_"

// DefaultProbeTargets are long-lived public videos used for health probes.
var DefaultProbeTargets = []string{
	"https://www.youtube.com/watch?v=dQw4w9WgXcQ",
	"https://www.youtube.com/watch?v=jNQXAC9IVRw",
	"https://www.youtube.com/watch?v=9bZkp7q19f0",
}

// Config holds the application configuration loaded from environment variables.
type Config struct {
	ListenAddr string
	DataDir    string
	DBPath     string

	ExtractorPath  string
	ExtractTimeout time.Duration

	FailureThreshold  int
	FormatMarker      string
	ProbeTimeout      time.Duration
	ProbeDelay        time.Duration
	ProbeTargets      []string
	ExtraBlockMarkers []string

	HealthCheckInterval     time.Duration
	HealthCheckInitialDelay time.Duration

	MaxRotations    int
	RotationDelay   time.Duration
	FallbackEnabled bool
	EphemeralTTL    time.Duration

	ChromePath       string
	ChromeProfileDir string
	WarmupTimeout    time.Duration

	LogLevel  string
	LogFormat string
}

// CookiesDir is where pooled credential files live.
func (c *Config) CookiesDir() string {
	return filepath.Join(c.DataDir, "cookies")
}

// EphemeralDir is where the session warmer writes one-shot credentials.
func (c *Config) EphemeralDir() string {
	return filepath.Join(c.DataDir, "ephemeral")
}

// Load reads configuration from COOKIEPOOL_* environment variables and
// returns a validated Config. Every variable is optional; malformed values
// are an error rather than silently falling back to the default.
func Load() (*Config, error) {
	var l loader

	cfg := &Config{
		ListenAddr:              l.str("LISTEN_ADDR", "127.0.0.1:8080"),
		DataDir:                 l.str("DATA_DIR", "data"),
		ExtractorPath:           l.str("EXTRACTOR_PATH", "yt-dlp"),
		ExtractTimeout:          l.duration("EXTRACT_TIMEOUT", 2*time.Minute),
		FailureThreshold:        l.integer("FAILURE_THRESHOLD", 3),
		FormatMarker:            l.str("FORMAT_MARKER", "youtube.com"),
		ProbeTimeout:            l.duration("PROBE_TIMEOUT", 15*time.Second),
		ProbeDelay:              l.duration("PROBE_DELAY", 2*time.Second),
		ProbeTargets:            l.list("PROBE_TARGETS", DefaultProbeTargets),
		ExtraBlockMarkers:       l.list("EXTRA_BLOCK_MARKERS", []string{}),
		HealthCheckInterval:     l.duration("HEALTH_CHECK_INTERVAL", 60*time.Minute),
		HealthCheckInitialDelay: l.duration("HEALTH_CHECK_INITIAL_DELAY", 5*time.Minute),
		MaxRotations:            l.integer("MAX_ROTATIONS", 5),
		RotationDelay:           l.duration("ROTATION_DELAY", 500*time.Millisecond),
		FallbackEnabled:         l.boolean("FALLBACK_ENABLED", true),
		EphemeralTTL:            l.duration("EPHEMERAL_TTL", 5*time.Minute),
		ChromePath:              l.str("CHROME_PATH", ""),
		ChromeProfileDir:        l.str("CHROME_PROFILE_DIR", ""),
		WarmupTimeout:           l.duration("WARMUP_TIMEOUT", 60*time.Second),
		LogLevel:                l.str("LOG_LEVEL", "info"),
		LogFormat:               l.str("LOG_FORMAT", "text"),
	}
	cfg.DBPath = l.str("DB_PATH", filepath.Join(cfg.DataDir, "cookiepool.db"))

	if l.err != nil {
		return nil, l.err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.FailureThreshold < 1 {
		return fmt.Errorf("%sFAILURE_THRESHOLD must be at least 1, got %d", envPrefix, c.FailureThreshold)
	}
	if c.MaxRotations < 0 {
		return fmt.Errorf("%sMAX_ROTATIONS must not be negative, got %d", envPrefix, c.MaxRotations)
	}
	if c.HealthCheckInterval <= 0 {
		return fmt.Errorf("%sHEALTH_CHECK_INTERVAL must be positive, got %s", envPrefix, c.HealthCheckInterval)
	}
	if len(c.ProbeTargets) == 0 {
		return fmt.Errorf("%sPROBE_TARGETS must list at least one URL", envPrefix)
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return fmt.Errorf("%sLOG_FORMAT must be text or json, got %q", envPrefix, c.LogFormat)
	}
	return nil
}

// loader reads prefixed variables and keeps the first parse error.
type loader struct {
	err error
}

func (l *loader) lookup(key string) (string, bool) {
	return os.LookupEnv(envPrefix + key)
}

func (l *loader) fail(key, v string, err error) {
	if l.err == nil {
		l.err = fmt.Errorf("%s%s has invalid value %q: %w", envPrefix, key, v, err)
	}
}

func (l *loader) str(key, def string) string {
	if v, ok := l.lookup(key); ok {
		return v
	}
	return def
}

func (l *loader) duration(key string, def time.Duration) time.Duration {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return d
}

func (l *loader) integer(key string, def int) int {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return n
}

func (l *loader) boolean(key string, def bool) bool {
	v, ok := l.lookup(key)
	if !ok {
		return def
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		l.fail(key, v, err)
		return def
	}
	return b
}

// list splits a comma-separated value, dropping blanks. An unset or blank
// variable yields def.
func (l *loader) list(key string, def []string) []string {
	v, ok := l.lookup(key)
	if !ok || strings.TrimSpace(v) == "" {
		return def
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	if out == nil {
		return def
	}
	return out
}
