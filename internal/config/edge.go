package config

// EdgeConfig is the top-level configuration for the edge gateway process.
type EdgeConfig struct {
	Server    ServerConfig    `yaml:"server"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
	Cache     CacheConfig     `yaml:"cache"`

	OriginBaseURL    string   `yaml:"origin_base_url"`
	ShieldToken      string   `yaml:"shield_token"`
	AdminKey         string   `yaml:"admin_key"`
	CORSOrigins      []string `yaml:"cors_origins"`
	CacheTTLSeconds  int      `yaml:"cache_ttl_seconds"`
	DailyQuotaPerKey int64    `yaml:"daily_quota_per_key"`
	AuditHMACSecret  string   `yaml:"audit_hmac_secret"`
	AuditLogPath     string   `yaml:"audit_log_path"`
	KeyDBPath        string   `yaml:"key_db_path"`

	Redis   RedisConfig   `yaml:"redis"`
	Webhook WebhookConfig `yaml:"webhook"`
}

// RedisConfig configures the Key/Quota Store's Redis backend.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// WebhookConfig configures Stripe-style webhook verification.
type WebhookConfig struct {
	Secret            string `yaml:"secret"`
	ToleranceSeconds  int    `yaml:"tolerance_seconds"`
	SessionTTLSeconds int    `yaml:"session_ttl_seconds"`
	EventTTLSeconds   int    `yaml:"event_ttl_seconds"`
}

// LoadEdge reads and parses the edge config file at path, applying
// defaults before overlaying YAML + env-expanded values.
func LoadEdge(path string) (*EdgeConfig, error) {
	cfg := &EdgeConfig{
		Server: ServerConfig{
			Addr:            ":8080",
			ReadTimeoutMS:   5_000,
			WriteTimeoutMS:  10_000,
			ShutdownGraceMS: 10_000,
		},
		Cache: CacheConfig{
			Enabled:    true,
			MaxSize:    50_000,
			TTLSeconds: 300,
		},
		CacheTTLSeconds:  300,
		DailyQuotaPerKey: 1000,
		Webhook: WebhookConfig{
			ToleranceSeconds:  300,
			SessionTTLSeconds: 7 * 24 * 3600,  // session handoff lives 7 days
			EventTTLSeconds:   90 * 24 * 3600, // webhook replay lock lives 90 days
		},
		AuditLogPath: "edge_audit.log",
		KeyDBPath:    "keys.db",
	}
	if err := loadYAML(path, cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
