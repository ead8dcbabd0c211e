/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Database backend selection.
type DatabaseBackend string

const (
	DatabasePostgres DatabaseBackend = "postgres"
	DatabaseMySQL    DatabaseBackend = "mysql"
	DatabaseSQLite   DatabaseBackend = "sqlite"
)

// Package types an advertiser can buy.
const (
	PackageSingle = "SINGLE"
	PackageTriple = "TRIPLE"
	PackageTen    = "TEN"
)

// Config covers process level configuration read from environment variables.
type Config struct {
	Environment   string
	HTTPBind      string
	HTTPPort      int
	DBBackend     DatabaseBackend
	DBDSN         string
	MetricsBind   string
	LogBufferSize int

	// JWTSigningKey protects the admin API. Empty disables the HTTP surface.
	JWTSigningKey string

	// Remote signage platform
	RemoteBaseURL     string
	RemoteToken       string
	RemoteTemplateID  string
	RemoteTimeout     time.Duration
	RemoteConcurrency int
	RemoteMaxRetries  int
	RemoteRatePerSec  float64

	Engine EngineConfig

	// Repair loop
	RepairEnabled  bool
	RepairInterval time.Duration

	// Tracing configuration
	TracingEnabled    bool
	OTLPEndpoint      string
	TracingSampleRate float64

	// Multi-instance configuration
	LeaderElectionEnabled bool
	RedisAddr             string
	RedisPassword         string
	RedisDB               int
	RedisCacheEnabled     bool
	InstanceID            string

	// Event forwarding
	NATSURL     string
	NATSSubject string

	// Trace archive (S3 compatible)
	S3AccessKeyID     string
	S3SecretAccessKey string
	S3Region          string
	S3Bucket          string
	S3Endpoint        string
	S3UsePathStyle    bool

	// Heal failure notifications
	WebhookURL    string
	WebhookSecret string

	EngineFile string
}

// EngineConfig holds the reconciliation tuning knobs. It can be overridden
// from a YAML file pointed to by SIGNSYNC_ENGINE_FILE.
type EngineConfig struct {
	BaselinePlaylistName string
	BaselineMinItems     int
	BaselineSeedMediaIDs []int64
	BaselineCacheTTL     time.Duration
	DefaultAdDuration    time.Duration
	PackageLimits        map[string]int
	PlaylistOnly         bool
	SettleDelay          time.Duration
	RetryDelays          []time.Duration
	InterScreenDelay     time.Duration
	LegacyPatterns       []string
	MediaReadyTimeout    time.Duration
}

// DefaultEngineConfig returns the engine defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		BaselinePlaylistName: "BASELINE | Filler",
		BaselineMinItems:     4,
		BaselineCacheTTL:     60 * time.Second,
		DefaultAdDuration:    15 * time.Second,
		PackageLimits: map[string]int{
			PackageSingle: 1,
			PackageTriple: 3,
			PackageTen:    10,
		},
		PlaylistOnly:     true,
		SettleDelay:      3 * time.Second,
		RetryDelays:      []time.Duration{2 * time.Second, 5 * time.Second, 10 * time.Second},
		InterScreenDelay: 500 * time.Millisecond,
		LegacyPatterns: []string{
			`^SCREEN \| `,
			`^LOCATION \| `,
			`^BASELINE \| `,
			`(?i)^copy of `,
			`(?i)\(copy\)$`,
		},
		MediaReadyTimeout: 2 * time.Minute,
	}
}

// PackageLimit returns how many screens a package may occupy. Unknown
// packages get zero screens.
func (e EngineConfig) PackageLimit(pkg string) int {
	return e.PackageLimits[strings.ToUpper(strings.TrimSpace(pkg))]
}

// Load reads environment variables, applies defaults, and validates the result.
func Load() (*Config, error) {
	// A missing .env file is normal outside local development.
	_ = godotenv.Load()

	cfg := &Config{
		Environment:   getEnvAny([]string{"SIGNSYNC_ENV"}, "development"),
		HTTPBind:      getEnvAny([]string{"SIGNSYNC_HTTP_BIND"}, "0.0.0.0"),
		HTTPPort:      getEnvIntAny([]string{"SIGNSYNC_HTTP_PORT"}, 8080),
		DBBackend:     DatabaseBackend(getEnvAny([]string{"SIGNSYNC_DB_BACKEND"}, string(DatabasePostgres))),
		DBDSN:         getEnvAny([]string{"SIGNSYNC_DB_DSN", "DATABASE_URL"}, ""),
		MetricsBind:   getEnvAny([]string{"SIGNSYNC_METRICS_BIND"}, "127.0.0.1:9000"),
		LogBufferSize: getEnvIntAny([]string{"SIGNSYNC_LOG_BUFFER_SIZE"}, 5000),

		JWTSigningKey: getEnvAny([]string{"SIGNSYNC_JWT_SIGNING_KEY"}, ""),

		RemoteBaseURL:     getEnvAny([]string{"SIGNSYNC_REMOTE_BASE_URL"}, ""),
		RemoteToken:       getEnvAny([]string{"SIGNSYNC_REMOTE_TOKEN"}, ""),
		RemoteTemplateID:  getEnvAny([]string{"SIGNSYNC_REMOTE_TEMPLATE_ID"}, ""),
		RemoteTimeout:     getEnvDurationAny([]string{"SIGNSYNC_REMOTE_TIMEOUT"}, 15*time.Second),
		RemoteConcurrency: getEnvIntAny([]string{"SIGNSYNC_REMOTE_CONCURRENCY"}, 5),
		RemoteMaxRetries:  getEnvIntAny([]string{"SIGNSYNC_REMOTE_MAX_RETRIES"}, 5),
		RemoteRatePerSec:  getEnvFloatAny([]string{"SIGNSYNC_REMOTE_RATE_PER_SEC"}, 0),

		Engine: DefaultEngineConfig(),

		RepairEnabled:  getEnvBoolAny([]string{"SIGNSYNC_REPAIR_ENABLED"}, true),
		RepairInterval: getEnvDurationAny([]string{"SIGNSYNC_REPAIR_INTERVAL"}, 30*time.Minute),

		TracingEnabled:    getEnvBoolAny([]string{"SIGNSYNC_TRACING_ENABLED"}, false),
		OTLPEndpoint:      getEnvAny([]string{"SIGNSYNC_OTLP_ENDPOINT"}, "localhost:4317"),
		TracingSampleRate: getEnvFloatAny([]string{"SIGNSYNC_TRACING_SAMPLE_RATE"}, 1.0),

		LeaderElectionEnabled: getEnvBoolAny([]string{"SIGNSYNC_LEADER_ELECTION_ENABLED"}, false),
		RedisAddr:             getEnvAny([]string{"SIGNSYNC_REDIS_ADDR"}, "localhost:6379"),
		RedisPassword:         getEnvAny([]string{"SIGNSYNC_REDIS_PASSWORD"}, ""),
		RedisDB:               getEnvIntAny([]string{"SIGNSYNC_REDIS_DB"}, 0),
		RedisCacheEnabled:     getEnvBoolAny([]string{"SIGNSYNC_REDIS_CACHE_ENABLED"}, false),
		InstanceID:            getEnvAny([]string{"SIGNSYNC_INSTANCE_ID"}, ""),

		NATSURL:     getEnvAny([]string{"SIGNSYNC_NATS_URL"}, ""),
		NATSSubject: getEnvAny([]string{"SIGNSYNC_NATS_SUBJECT"}, "signsync.events"),

		S3AccessKeyID:     getEnvAny([]string{"SIGNSYNC_S3_ACCESS_KEY_ID", "AWS_ACCESS_KEY_ID"}, ""),
		S3SecretAccessKey: getEnvAny([]string{"SIGNSYNC_S3_SECRET_ACCESS_KEY", "AWS_SECRET_ACCESS_KEY"}, ""),
		S3Region:          getEnvAny([]string{"SIGNSYNC_S3_REGION", "AWS_REGION"}, "us-east-1"),
		S3Bucket:          getEnvAny([]string{"SIGNSYNC_S3_BUCKET"}, ""),
		S3Endpoint:        getEnvAny([]string{"SIGNSYNC_S3_ENDPOINT"}, ""),
		S3UsePathStyle:    getEnvBoolAny([]string{"SIGNSYNC_S3_USE_PATH_STYLE"}, false),

		WebhookURL:    getEnvAny([]string{"SIGNSYNC_WEBHOOK_URL"}, ""),
		WebhookSecret: getEnvAny([]string{"SIGNSYNC_WEBHOOK_SECRET"}, ""),

		EngineFile: getEnvAny([]string{"SIGNSYNC_ENGINE_FILE"}, ""),
	}

	cfg.Engine.BaselinePlaylistName = getEnvAny([]string{"SIGNSYNC_BASELINE_PLAYLIST_NAME"}, cfg.Engine.BaselinePlaylistName)
	cfg.Engine.BaselineMinItems = getEnvIntAny([]string{"SIGNSYNC_BASELINE_MIN_ITEMS"}, cfg.Engine.BaselineMinItems)
	cfg.Engine.DefaultAdDuration = getEnvDurationAny([]string{"SIGNSYNC_DEFAULT_AD_DURATION"}, cfg.Engine.DefaultAdDuration)
	cfg.Engine.PlaylistOnly = getEnvBoolAny([]string{"SIGNSYNC_PLAYLIST_ONLY"}, cfg.Engine.PlaylistOnly)

	if cfg.InstanceID == "" {
		if host, err := os.Hostname(); err == nil {
			cfg.InstanceID = host
		}
	}

	if cfg.EngineFile != "" {
		if err := cfg.loadEngineFile(cfg.EngineFile); err != nil {
			return nil, err
		}
	}

	if cfg.DBBackend != DatabasePostgres && cfg.DBBackend != DatabaseMySQL && cfg.DBBackend != DatabaseSQLite {
		return nil, fmt.Errorf("unsupported database backend %q", cfg.DBBackend)
	}

	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("SIGNSYNC_DB_DSN must be provided")
	}

	if cfg.RemoteBaseURL == "" {
		return nil, fmt.Errorf("SIGNSYNC_REMOTE_BASE_URL must be provided")
	}

	if err := cfg.Engine.Validate(); err != nil {
		return nil, err
	}

	if strings.EqualFold(cfg.Environment, "production") && cfg.JWTSigningKey == "" {
		return nil, fmt.Errorf("SIGNSYNC_JWT_SIGNING_KEY must be set in production")
	}

	return cfg, nil
}

// Validate checks engine settings that would otherwise fail deep inside a run.
func (e EngineConfig) Validate() error {
	if strings.TrimSpace(e.BaselinePlaylistName) == "" {
		return fmt.Errorf("baseline playlist name must not be empty")
	}
	if e.BaselineMinItems < 1 {
		return fmt.Errorf("baseline minimum item count must be at least 1, got %d", e.BaselineMinItems)
	}
	if e.DefaultAdDuration <= 0 {
		return fmt.Errorf("default ad duration must be positive")
	}
	for pkg, limit := range e.PackageLimits {
		if limit < 0 {
			return fmt.Errorf("package %s has negative screen limit", pkg)
		}
	}
	if e.MediaReadyTimeout <= 0 {
		return fmt.Errorf("media ready timeout must be positive, got %s", e.MediaReadyTimeout)
	}
	return nil
}

// engineFile mirrors EngineConfig with string durations so YAML stays readable.
type engineFile struct {
	BaselinePlaylistName string         `yaml:"baseline_playlist_name"`
	BaselineMinItems     *int           `yaml:"baseline_min_items"`
	BaselineSeedMediaIDs []int64        `yaml:"baseline_seed_media_ids"`
	BaselineCacheTTL     string         `yaml:"baseline_cache_ttl"`
	DefaultAdDuration    string         `yaml:"default_ad_duration"`
	PackageLimits        map[string]int `yaml:"package_limits"`
	PlaylistOnly         *bool          `yaml:"playlist_only"`
	SettleDelay          string         `yaml:"settle_delay"`
	RetryDelays          []string       `yaml:"retry_delays"`
	InterScreenDelay     string         `yaml:"inter_screen_delay"`
	LegacyPatterns       []string       `yaml:"legacy_patterns"`
	MediaReadyTimeout    string         `yaml:"media_ready_timeout"`
}

func (c *Config) loadEngineFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read engine file: %w", err)
	}
	var f engineFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("parse engine file: %w", err)
	}
	return c.Engine.apply(f)
}

func (e *EngineConfig) apply(f engineFile) error {
	if f.BaselinePlaylistName != "" {
		e.BaselinePlaylistName = f.BaselinePlaylistName
	}
	if f.BaselineMinItems != nil {
		e.BaselineMinItems = *f.BaselineMinItems
	}
	if len(f.BaselineSeedMediaIDs) > 0 {
		e.BaselineSeedMediaIDs = f.BaselineSeedMediaIDs
	}
	if f.PlaylistOnly != nil {
		e.PlaylistOnly = *f.PlaylistOnly
	}
	if len(f.LegacyPatterns) > 0 {
		e.LegacyPatterns = f.LegacyPatterns
	}
	for pkg, limit := range f.PackageLimits {
		if e.PackageLimits == nil {
			e.PackageLimits = make(map[string]int)
		}
		e.PackageLimits[strings.ToUpper(pkg)] = limit
	}

	durations := []struct {
		raw  string
		dest *time.Duration
		name string
	}{
		{f.BaselineCacheTTL, &e.BaselineCacheTTL, "baseline_cache_ttl"},
		{f.DefaultAdDuration, &e.DefaultAdDuration, "default_ad_duration"},
		{f.SettleDelay, &e.SettleDelay, "settle_delay"},
		{f.InterScreenDelay, &e.InterScreenDelay, "inter_screen_delay"},
		{f.MediaReadyTimeout, &e.MediaReadyTimeout, "media_ready_timeout"},
	}
	for _, d := range durations {
		if d.raw == "" {
			continue
		}
		parsed, err := time.ParseDuration(d.raw)
		if err != nil {
			return fmt.Errorf("engine file %s: %w", d.name, err)
		}
		*d.dest = parsed
	}

	if len(f.RetryDelays) > 0 {
		delays := make([]time.Duration, 0, len(f.RetryDelays))
		for _, raw := range f.RetryDelays {
			parsed, err := time.ParseDuration(raw)
			if err != nil {
				return fmt.Errorf("engine file retry_delays: %w", err)
			}
			delays = append(delays, parsed)
		}
		e.RetryDelays = delays
	}
	return nil
}

// getEnvAny returns the first non-empty environment variable value from keys, or def if none set.
func getEnvAny(keys []string, def string) string {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			return v
		}
	}
	return def
}

// getEnvIntAny returns the first set integer environment variable value from keys, or def.
func getEnvIntAny(keys []string, def int) int {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.Atoi(v); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvBoolAny returns the first set boolean environment variable value from keys, or def.
func getEnvBoolAny(keys []string, def bool) bool {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			v = strings.ToLower(strings.TrimSpace(v))
			if v == "true" || v == "1" || v == "yes" {
				return true
			}
			if v == "false" || v == "0" || v == "no" {
				return false
			}
		}
	}
	return def
}

// getEnvFloatAny returns the first set float environment variable value from keys, or def.
func getEnvFloatAny(keys []string, def float64) float64 {
	for _, k := range keys {
		if v := os.Getenv(k); v != "" {
			if parsed, err := strconv.ParseFloat(v, 64); err == nil {
				return parsed
			}
		}
	}
	return def
}

// getEnvDurationAny accepts Go duration strings ("15s") or plain seconds.
func getEnvDurationAny(keys []string, def time.Duration) time.Duration {
	for _, k := range keys {
		v := strings.TrimSpace(os.Getenv(k))
		if v == "" {
			continue
		}
		if parsed, err := time.ParseDuration(v); err == nil {
			return parsed
		}
		if secs, err := strconv.Atoi(v); err == nil {
			return time.Duration(secs) * time.Second
		}
	}
	return def
}
