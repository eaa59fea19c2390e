package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig is the full configuration surface of the identity service.
type AppConfig struct {
	App       AppSettings       `mapstructure:"app"`
	Postgres  PostgresSettings  `mapstructure:"postgres"`
	Redis     RedisSettings     `mapstructure:"redis"`
	Kafka     KafkaSettings     `mapstructure:"kafka"`
	JWT       JWTSettings       `mapstructure:"jwt"`
	Auth      AuthSettings      `mapstructure:"auth"`
	Argon2    Argon2Settings    `mapstructure:"argon2"`
	RateLimit RateLimitSettings `mapstructure:"rate_limit"`
	Telemetry TelemetrySettings `mapstructure:"telemetry"`
	Bootstrap BootstrapSettings `mapstructure:"bootstrap"`
}

type AppSettings struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

type PostgresSettings struct {
	Host              string        `mapstructure:"host"`
	Port              int           `mapstructure:"port"`
	User              string        `mapstructure:"user"`
	Password          string        `mapstructure:"password"`
	Database          string        `mapstructure:"database"`
	SSLMode           string        `mapstructure:"ssl_mode"`
	MaxConns          int32         `mapstructure:"max_conns"`
	MinConns          int32         `mapstructure:"min_conns"`
	MaxConnLifetime   time.Duration `mapstructure:"max_conn_lifetime"`
	MaxConnIdleTime   time.Duration `mapstructure:"max_conn_idle_time"`
	HealthCheckPeriod time.Duration `mapstructure:"health_check_period"`
}

// RedisSettings configures the Redis connection and key prefixes.
type RedisSettings struct {
	Host             string `mapstructure:"host"`
	Port             int    `mapstructure:"port"`
	DB               int    `mapstructure:"db"`
	Password         string `mapstructure:"password"`
	TLSEnabled       bool   `mapstructure:"tls_enabled"`
	ResetTokenPrefix string `mapstructure:"reset_token_prefix"`
	AttemptPrefix    string `mapstructure:"attempt_prefix"`
}

// KafkaSettings configures the event publisher.
type KafkaSettings struct {
	Enabled     bool     `mapstructure:"enabled"`
	Brokers     []string `mapstructure:"brokers"`
	TopicPrefix string   `mapstructure:"topic_prefix"`
}

// JWTSettings configures access token signing.
type JWTSettings struct {
	Secret    string        `mapstructure:"secret"`
	ExpiresIn time.Duration `mapstructure:"expires_in"`
}

// AuthSettings configures lockout, session, and password lifecycle behavior.
type AuthSettings struct {
	MaxLoginAttempts     int           `mapstructure:"max_login_attempts"`
	LockoutTime          time.Duration `mapstructure:"lockout_time"`
	SessionTimeout       time.Duration `mapstructure:"session_timeout"`
	PasswordMinLength    int           `mapstructure:"password_min_length"`
	PasswordHistoryDepth int           `mapstructure:"password_history_depth"`
	ResetTokenTTL        time.Duration `mapstructure:"reset_token_ttl"`
}

// Argon2Settings configures Argon2id password hashing parameters.
type Argon2Settings struct {
	Memory      uint32 `mapstructure:"memory"`
	Iterations  uint32 `mapstructure:"iterations"`
	Parallelism uint8  `mapstructure:"parallelism"`
	SaltLength  uint32 `mapstructure:"salt_length"`
	KeyLength   uint32 `mapstructure:"key_length"`
}

// RateLimitSettings selects and tunes the attempt tracker.
type RateLimitSettings struct {
	Backend       string        `mapstructure:"backend"` // memory | redis
	SweepInterval time.Duration `mapstructure:"sweep_interval"`
}

type TelemetrySettings struct {
	MetricsPort int `mapstructure:"metrics_port"`
}

// BootstrapSettings seeds the initial admin account on first start.
type BootstrapSettings struct {
	AdminEmail    string `mapstructure:"admin_email"`
	AdminPassword string `mapstructure:"admin_password"`
}

// Load reads configuration from environment variables. Every key is reachable
// both as CMS_<KEY> and as the bare key, so conventional names like JWT_SECRET
// or MAX_LOGIN_ATTEMPTS work without the prefix.
func Load() (*AppConfig, error) {
	v := viper.New()

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.SetEnvPrefix("CMS")

	setDefaults(v)

	if err := bindEnvs(v, []string{
		"app.name",
		"app.env",
		"postgres.host",
		"postgres.port",
		"postgres.user",
		"postgres.password",
		"postgres.database",
		"postgres.ssl_mode",
		"postgres.max_conns",
		"postgres.min_conns",
		"postgres.max_conn_lifetime",
		"postgres.max_conn_idle_time",
		"postgres.health_check_period",
		"redis.host",
		"redis.port",
		"redis.db",
		"redis.password",
		"redis.tls_enabled",
		"redis.reset_token_prefix",
		"redis.attempt_prefix",
		"kafka.enabled",
		"kafka.brokers",
		"kafka.topic_prefix",
		"jwt.secret",
		"jwt.expires_in",
		"auth.max_login_attempts",
		"auth.lockout_time",
		"auth.session_timeout",
		"auth.password_min_length",
		"auth.password_history_depth",
		"auth.reset_token_ttl",
		"argon2.memory",
		"argon2.iterations",
		"argon2.parallelism",
		"argon2.salt_length",
		"argon2.key_length",
		"rate_limit.backend",
		"rate_limit.sweep_interval",
		"telemetry.metrics_port",
		"bootstrap.admin_email",
		"bootstrap.admin_password",
	}); err != nil {
		return nil, err
	}

	// Aliases for the names the rest of the platform already exports.
	aliases := map[string][]string{
		"jwt.secret":               {"JWT_SECRET"},
		"jwt.expires_in":           {"JWT_EXPIRES_IN"},
		"auth.max_login_attempts":  {"MAX_LOGIN_ATTEMPTS"},
		"auth.lockout_time":        {"LOCKOUT_TIME"},
		"auth.session_timeout":     {"SESSION_TIMEOUT"},
		"bootstrap.admin_password": {"BOOTSTRAP_ADMIN_PASSWORD"},
	}
	for key, envs := range aliases {
		for _, env := range envs {
			if err := v.BindEnv(key, env); err != nil {
				return nil, fmt.Errorf("bind env alias for %s: %w", key, err)
			}
		}
	}

	v.AutomaticEnv()

	var cfg AppConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	if strings.TrimSpace(cfg.JWT.Secret) == "" {
		return nil, fmt.Errorf("jwt secret is required (JWT_SECRET)")
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "cms-identity")
	v.SetDefault("app.env", "development")

	v.SetDefault("postgres.host", "localhost")
	v.SetDefault("postgres.port", 5432)
	v.SetDefault("postgres.user", "cms")
	v.SetDefault("postgres.password", "cms_password")
	v.SetDefault("postgres.database", "cms_identity")
	v.SetDefault("postgres.ssl_mode", "disable")
	v.SetDefault("postgres.max_conns", 10)
	v.SetDefault("postgres.min_conns", 2)
	v.SetDefault("postgres.max_conn_lifetime", "60m")
	v.SetDefault("postgres.max_conn_idle_time", "15m")
	v.SetDefault("postgres.health_check_period", "30s")

	v.SetDefault("redis.host", "localhost")
	v.SetDefault("redis.port", 6379)
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.tls_enabled", false)
	v.SetDefault("redis.reset_token_prefix", "identity:reset")
	v.SetDefault("redis.attempt_prefix", "identity:attempts")

	v.SetDefault("kafka.enabled", false)
	v.SetDefault("kafka.brokers", []string{"localhost:9092"})
	v.SetDefault("kafka.topic_prefix", "identity")

	v.SetDefault("jwt.expires_in", "15m")

	v.SetDefault("auth.max_login_attempts", 5)
	v.SetDefault("auth.lockout_time", "15m")
	v.SetDefault("auth.session_timeout", "24h")
	v.SetDefault("auth.password_min_length", 8)
	v.SetDefault("auth.password_history_depth", 5)
	v.SetDefault("auth.reset_token_ttl", "1h")

	v.SetDefault("argon2.memory", 65536) // 64 MB
	v.SetDefault("argon2.iterations", 3)
	v.SetDefault("argon2.parallelism", 4)
	v.SetDefault("argon2.salt_length", 16)
	v.SetDefault("argon2.key_length", 32)

	v.SetDefault("rate_limit.backend", "memory")
	v.SetDefault("rate_limit.sweep_interval", "1h")

	v.SetDefault("telemetry.metrics_port", 9090)

	v.SetDefault("bootstrap.admin_email", "")
	v.SetDefault("bootstrap.admin_password", "")
}

func bindEnvs(v *viper.Viper, keys []string) error {
	for _, key := range keys {
		envKey := strings.ToUpper(strings.ReplaceAll(key, ".", "_"))
		if err := v.BindEnv(key, "CMS_"+envKey, envKey); err != nil {
			return fmt.Errorf("bind env for %s: %w", key, err)
		}
	}
	return nil
}
