package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment keys.
const (
	KeyDatabaseURL         = "DATABASE_URL"
	KeyDatabaseURLs        = "DATABASE_URLS"
	KeyActiveIndex         = "ACTIVE_DB_INDEX"
	KeySizeLimitMB         = "DB_SIZE_LIMIT_MB"
	KeyCheckIntervalMS     = "DB_CHECK_INTERVAL_MS"
	KeyStartupProbeDelayMS = "DB_STARTUP_PROBE_DELAY_MS"
	KeyStartupEvalDelayMS  = "DB_STARTUP_EVALUATE_DELAY_MS"
	KeyListenAddr          = "LISTEN_ADDR"
	KeyAdminToken          = "ADMIN_TOKEN"
	KeyLogLevel            = "LOG_LEVEL"
	KeyShutdownTimeoutMS   = "SHUTDOWN_TIMEOUT_MS"
)

const (
	defaultSizeLimitMB     = 450
	defaultCheckInterval   = time.Hour
	defaultStartupProbe    = 5 * time.Second
	defaultStartupEvaluate = 10 * time.Second
	defaultListenAddr      = ":8080"
	defaultLogLevel        = "info"
	defaultShutdownTimeout = 10 * time.Second
	warnPercent            = 85
	bytesPerMB             = 1024 * 1024
)

// ErrInvalidConfig is returned for values that cannot be parsed.
var ErrInvalidConfig = errors.New("invalid configuration")

// Thresholds holds the capacity limits of a backend.
type Thresholds struct {
	LimitBytes int64
	WarnBytes  int64
}

// NewThresholds derives the warning level as 85% of the limit.
func NewThresholds(limitBytes int64) Thresholds {
	return Thresholds{
		LimitBytes: limitBytes,
		WarnBytes:  limitBytes * warnPercent / 100,
	}
}

// Config is the router and server configuration, read once at startup.
type Config struct {
	DatabaseURL          string
	DatabaseURLs         []string
	ActiveIndex          int
	Thresholds           Thresholds
	CheckInterval        time.Duration
	StartupProbeDelay    time.Duration
	StartupEvaluateDelay time.Duration
	ListenAddr           string
	AdminToken           string
	LogLevel             string
	ShutdownTimeout      time.Duration
}

// MultiBackend reports whether a backend list was configured.
func (c *Config) MultiBackend() bool {
	return len(c.DatabaseURLs) > 0
}

// LookupFunc matches os.LookupEnv.
type LookupFunc func(key string) (string, bool)

// Load reads configuration from the process environment, layered over the
// optional YAML file at path.
func Load(path string) (*Config, error) {
	values := map[string]string{}
	if path != "" {
		fileValues, err := readFile(path)
		if err != nil {
			return nil, err
		}
		values = fileValues
	}

	return Parse(func(key string) (string, bool) {
		if value, ok := os.LookupEnv(key); ok {
			return value, true
		}
		value, ok := values[key]
		return value, ok
	})
}

func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path) //nolint:gosec // operator supplied path
	if err != nil {
		return nil, fmt.Errorf("%w: read %s: %w", ErrInvalidConfig, path, err)
	}

	var raw map[string]interface{}
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: parse %s: %w", ErrInvalidConfig, path, err)
	}

	values := make(map[string]string, len(raw))
	for key, value := range raw {
		switch typed := value.(type) {
		case []interface{}:
			parts := make([]string, 0, len(typed))
			for _, item := range typed {
				parts = append(parts, fmt.Sprint(item))
			}
			values[strings.ToUpper(key)] = strings.Join(parts, ",")
		case nil:
			values[strings.ToUpper(key)] = ""
		default:
			values[strings.ToUpper(key)] = fmt.Sprint(typed)
		}
	}
	return values, nil
}

// Parse builds a Config from a key lookup.
func Parse(lookup LookupFunc) (*Config, error) {
	cfg := &Config{
		ListenAddr: defaultListenAddr,
		LogLevel:   defaultLogLevel,
	}

	cfg.DatabaseURL = strings.TrimSpace(get(lookup, KeyDatabaseURL))
	if raw, ok := lookup(KeyDatabaseURLs); ok {
		cfg.DatabaseURLs = SplitURLs(raw)
	}

	var err error
	if cfg.ActiveIndex, err = getInt(lookup, KeyActiveIndex, 0); err != nil {
		return nil, err
	}
	if cfg.ActiveIndex < 0 {
		return nil, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, KeyActiveIndex)
	}

	limitMB, err := getInt(lookup, KeySizeLimitMB, defaultSizeLimitMB)
	if err != nil {
		return nil, err
	}
	if limitMB <= 0 {
		return nil, fmt.Errorf("%w: %s must be positive", ErrInvalidConfig, KeySizeLimitMB)
	}
	cfg.Thresholds = NewThresholds(int64(limitMB) * bytesPerMB)

	if cfg.CheckInterval, err = getMillis(lookup, KeyCheckIntervalMS, defaultCheckInterval); err != nil {
		return nil, err
	}
	if cfg.StartupProbeDelay, err = getMillis(lookup, KeyStartupProbeDelayMS, defaultStartupProbe); err != nil {
		return nil, err
	}
	if cfg.StartupEvaluateDelay, err = getMillis(lookup, KeyStartupEvalDelayMS, defaultStartupEvaluate); err != nil {
		return nil, err
	}
	if cfg.ShutdownTimeout, err = getMillis(lookup, KeyShutdownTimeoutMS, defaultShutdownTimeout); err != nil {
		return nil, err
	}

	if addr := strings.TrimSpace(get(lookup, KeyListenAddr)); addr != "" {
		cfg.ListenAddr = addr
	}
	if level := strings.TrimSpace(get(lookup, KeyLogLevel)); level != "" {
		cfg.LogLevel = level
	}
	cfg.AdminToken = strings.TrimSpace(get(lookup, KeyAdminToken))

	return cfg, nil
}

// SplitURLs splits a backend list on commas, semicolons or newlines.
func SplitURLs(raw string) []string {
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || r == ';' || r == '\n' || r == '\r'
	})
	urls := make([]string, 0, len(fields))
	for _, field := range fields {
		if field = strings.TrimSpace(field); field != "" {
			urls = append(urls, field)
		}
	}
	return urls
}

func get(lookup LookupFunc, key string) string {
	value, _ := lookup(key)
	return value
}

func getInt(lookup LookupFunc, key string, fallback int) (int, error) {
	raw := strings.TrimSpace(get(lookup, key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, raw, err)
	}
	return value, nil
}

func getMillis(lookup LookupFunc, key string, fallback time.Duration) (time.Duration, error) {
	raw := strings.TrimSpace(get(lookup, key))
	if raw == "" {
		return fallback, nil
	}
	value, err := strconv.ParseInt(raw, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %s=%q: %w", ErrInvalidConfig, key, raw, err)
	}
	if value < 0 {
		return 0, fmt.Errorf("%w: %s must not be negative", ErrInvalidConfig, key)
	}
	return time.Duration(value) * time.Millisecond, nil
}
