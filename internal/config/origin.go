package config

// OriginConfig is the top-level configuration for the origin translator process.
type OriginConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Cache     CacheConfig     `yaml:"cache"`
	Database  DatabaseConfig  `yaml:"database"`

	ShieldToken            string `yaml:"shield_token"`
	ShieldEnforce          bool   `yaml:"shield_enforce"`
	BackendCacheTTLSeconds int    `yaml:"backend_cache_ttl_seconds"`

	IPRateLimit IPRateLimitConfig `yaml:"ip_rate_limit"`
	Fallback    FallbackConfig    `yaml:"fallback"`

	AuditHMACSecret string `yaml:"audit_hmac_secret"`
	AuditLogPath    string `yaml:"audit_log_path"`
	SeedPath        string `yaml:"seed_path"`
}

// DatabaseConfig holds Phrase Store SQLite settings.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// IPRateLimitConfig configures the origin's per-IP fingerprint limiter.
// Disabled by default; the edge's per-key daily quota is always active.
type IPRateLimitConfig struct {
	Enabled            bool  `yaml:"enabled"`
	PerMinute          int64 `yaml:"per_minute"`
	BanThresholdCount  int   `yaml:"ban_threshold_count"`
	BanWindowSeconds   int   `yaml:"ban_window_seconds"`
	BanDurationSeconds int   `yaml:"ban_duration_seconds"`
}

// FallbackConfig configures the external LM fallback call and the
// auto-insert safety level applied to phrases it produces.
type FallbackConfig struct {
	Enabled             bool   `yaml:"enabled"`
	BaseURL             string `yaml:"base_url"`
	Model               string `yaml:"model"`
	APIKey              string `yaml:"api_key"`
	MaxTokens           int    `yaml:"max_tokens"`
	TimeoutMS           int    `yaml:"timeout_ms"`
	AutoInsertSafetyLvl int    `yaml:"auto_insert_safety_level"`
}

// LoadOrigin reads and parses the origin config file at path, applying
// defaults before overlaying YAML + env-expanded values.
func LoadOrigin(path string) (*OriginConfig, error) {
	cfg := &OriginConfig{
		Server: ServerConfig{
			Addr:            ":8081",
			ReadTimeoutMS:   3_000,
			WriteTimeoutMS:  5_000,
			ShutdownGraceMS: 10_000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    50_000,
			TTLSeconds: 180,
		},
		Database: DatabaseConfig{
			DSN: "phrases.db",
		},
		BackendCacheTTLSeconds: 180,
		ShieldEnforce:          true,
		IPRateLimit: IPRateLimitConfig{
			Enabled:            false,
			PerMinute:          60,
			BanThresholdCount:  5,
			BanWindowSeconds:   300,
			BanDurationSeconds: 600,
		},
		Fallback: FallbackConfig{
			MaxTokens:           128,
			TimeoutMS:           2000,
			AutoInsertSafetyLvl: 2,
		},
		AuditLogPath: "origin_audit.log",
	}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
