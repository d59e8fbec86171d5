package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Environment variable names that override file configuration.
const (
	EnvConfigPath    = "CONFIG_PATH"
	EnvDBConnection  = "DB_CONNECTION"
	EnvRedisAddr     = "REDIS_ADDR"
	EnvJWTSecret     = "JWT_SECRET"
	EnvVaultSecret   = "VAULT_SECRET"
	EnvVaultPassword = "VAULT_PASSPHRASE"
	EnvVaultSalt     = "VAULT_SALT"
	EnvServerPort    = "PORT"
)

// Defaults applied when the config file omits a value.
const (
	DefaultPort           = 8318
	DefaultPerMinuteLimit = 60
	DefaultPerHourLimit   = 1000
	DefaultBurstLimit     = 10
	DefaultBurstWindow    = 10 * time.Second
	DefaultCacheTTL       = 5 * time.Minute
	DefaultRequestTimeout = 2 * time.Minute
	DefaultStreamTimeout  = 10 * time.Minute
	DefaultRedisPrefix    = "gw"
)

// Duration is a time.Duration that unmarshals from YAML strings like
// "30s" or "5m". Bare integers are read as seconds.
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler.
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	var raw string
	if errStr := value.Decode(&raw); errStr == nil {
		parsed, errParse := time.ParseDuration(strings.TrimSpace(raw))
		if errParse != nil {
			return fmt.Errorf("invalid duration %q: %w", raw, errParse)
		}
		*d = Duration(parsed)
		return nil
	}
	var seconds int64
	if errInt := value.Decode(&seconds); errInt != nil {
		return fmt.Errorf("invalid duration value")
	}
	*d = Duration(time.Duration(seconds) * time.Second)
	return nil
}

// Std returns the wrapped time.Duration.
func (d Duration) Std() time.Duration { return time.Duration(d) }

// ServerConfig holds listener settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// DatabaseConfig holds the persistence DSN.
type DatabaseConfig struct {
	DSN string `yaml:"dsn"`
}

// RedisConfig holds the shared counter/cache store connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	Prefix   string `yaml:"prefix"`
}

// Enabled reports whether a Redis address is configured.
func (r RedisConfig) Enabled() bool { return strings.TrimSpace(r.Addr) != "" }

// RateLimitConfig holds per-window admission limits.
type RateLimitConfig struct {
	PerMinute   int      `yaml:"per-minute"`
	PerHour     int      `yaml:"per-hour"`
	Burst       int      `yaml:"burst"`
	BurstWindow Duration `yaml:"burst-window"`
}

// CacheConfig holds response cache settings.
type CacheConfig struct {
	Enabled      bool                `yaml:"enabled"`
	DefaultTTL   Duration            `yaml:"default-ttl"`
	EndpointTTLs map[string]Duration `yaml:"endpoint-ttls"`
}

// VaultConfig holds encryption key material sources. Secret wins when set;
// otherwise the key is derived from passphrase and salt.
type VaultConfig struct {
	Secret     string `yaml:"secret"`
	Passphrase string `yaml:"passphrase"`
	Salt       string `yaml:"salt"`
}

// UpstreamConfig holds provider call budgets.
type UpstreamConfig struct {
	RequestTimeout Duration `yaml:"request-timeout"`
	StreamTimeout  Duration `yaml:"stream-timeout"`
}

// JWTConfig holds bearer JWT settings.
type JWTConfig struct {
	Secret string   `yaml:"secret"`
	Expiry Duration `yaml:"expiry"`
}

// Config is the resolved application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server"`
	Database  DatabaseConfig  `yaml:"database"`
	Redis     RedisConfig     `yaml:"redis"`
	RateLimit RateLimitConfig `yaml:"rate-limit"`
	Cache     CacheConfig     `yaml:"cache"`
	Vault     VaultConfig     `yaml:"vault"`
	Upstream  UpstreamConfig  `yaml:"upstream"`
	JWT       JWTConfig       `yaml:"jwt"`
}

// ResolveConfigPath normalizes the config path and applies defaults.
func ResolveConfigPath(p string) string {
	trimmed := strings.TrimSpace(p)
	if trimmed == "" {
		trimmed = strings.TrimSpace(os.Getenv(EnvConfigPath))
	}
	if trimmed == "" {
		trimmed = "./config.yaml"
	}
	if abs, err := filepath.Abs(trimmed); err == nil {
		return abs
	}
	return trimmed
}

// Load reads the YAML config file, applies environment overrides and fills
// defaults. A missing file is not an error; env vars alone can configure
// the gateway.
func Load(configPath string) (*Config, error) {
	cfg := &Config{}

	data, errRead := os.ReadFile(configPath)
	if errRead == nil {
		if errUnmarshal := yaml.Unmarshal(data, cfg); errUnmarshal != nil {
			return nil, fmt.Errorf("parse config file: %w", errUnmarshal)
		}
	} else if !os.IsNotExist(errRead) {
		return nil, fmt.Errorf("read config file: %w", errRead)
	}

	applyEnvOverrides(cfg)
	applyDefaults(cfg)
	return cfg, nil
}

func applyEnvOverrides(cfg *Config) {
	if dsn := strings.TrimSpace(os.Getenv(EnvDBConnection)); dsn != "" {
		cfg.Database.DSN = dsn
	}
	if addr := strings.TrimSpace(os.Getenv(EnvRedisAddr)); addr != "" {
		cfg.Redis.Addr = addr
	}
	if secret := strings.TrimSpace(os.Getenv(EnvJWTSecret)); secret != "" {
		cfg.JWT.Secret = secret
	}
	if secret := strings.TrimSpace(os.Getenv(EnvVaultSecret)); secret != "" {
		cfg.Vault.Secret = secret
	}
	if passphrase := os.Getenv(EnvVaultPassword); passphrase != "" {
		cfg.Vault.Passphrase = passphrase
	}
	if salt := os.Getenv(EnvVaultSalt); salt != "" {
		cfg.Vault.Salt = salt
	}
	if portRaw := strings.TrimSpace(os.Getenv(EnvServerPort)); portRaw != "" {
		var port int
		if _, errScan := fmt.Sscanf(portRaw, "%d", &port); errScan == nil && port > 0 && port <= 65535 {
			cfg.Server.Port = port
		}
	}
}

func applyDefaults(cfg *Config) {
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		cfg.Server.Port = DefaultPort
	}
	if cfg.RateLimit.PerMinute <= 0 {
		cfg.RateLimit.PerMinute = DefaultPerMinuteLimit
	}
	if cfg.RateLimit.PerHour <= 0 {
		cfg.RateLimit.PerHour = DefaultPerHourLimit
	}
	if cfg.RateLimit.Burst <= 0 {
		cfg.RateLimit.Burst = DefaultBurstLimit
	}
	if cfg.RateLimit.BurstWindow <= 0 {
		cfg.RateLimit.BurstWindow = Duration(DefaultBurstWindow)
	}
	if cfg.Cache.DefaultTTL <= 0 {
		cfg.Cache.DefaultTTL = Duration(DefaultCacheTTL)
	}
	if cfg.Upstream.RequestTimeout <= 0 {
		cfg.Upstream.RequestTimeout = Duration(DefaultRequestTimeout)
	}
	if cfg.Upstream.StreamTimeout <= 0 {
		cfg.Upstream.StreamTimeout = Duration(DefaultStreamTimeout)
	}
	if strings.TrimSpace(cfg.Redis.Prefix) == "" {
		cfg.Redis.Prefix = DefaultRedisPrefix
	}
	if cfg.Redis.DB < 0 {
		cfg.Redis.DB = 0
	}
}
