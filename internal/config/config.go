// Package config loads wsrelayd's runtime configuration from the
// environment (and an optional YAML seed file for the no-security
// roster), following the teacher's getEnv/getEnvInt/fail-fast
// conventions in cmd/main.go.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the fully-resolved runtime configuration for wsrelayd.
type Config struct {
	WSPort      string
	GinMode     string
	CookieName  string
	NoSecurity  string
	AllowList   []string
	DevCtxOn    bool

	ClientRequestTimeout    time.Duration
	ClientReconnectBaseDelay time.Duration
	ClientReconnectMaxDelay  time.Duration

	RedisHost    string
	RedisPort    string
	RedisPass    string
	RedisDB      int
	RedisEnabled bool

	NATSURL string

	JWTSecret string

	SessionSoftTTL time.Duration
	SweepCronSpec  string

	SeedFile string
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func getEnvBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fallback
	}
	return d
}

// Load builds a Config from the process environment. It fails fast
// (returns an error rather than a half-valid config) when JWT_SECRET
// is set but shorter than 32 characters while no-security mode is off.
// An unset JWT_SECRET is not an error.
func Load() (*Config, error) {
	cfg := &Config{
		WSPort:     getEnv("WS_PORT", "8080"),
		GinMode:    getEnv("GIN_MODE", "release"),
		CookieName: getEnv("SESSION_COOKIE_NAME", "wsrelay_sid"),
		NoSecurity: os.Getenv("NO_SECURITY"),
		DevCtxOn:   getEnvBool("DEVCTX_ENABLED", false),

		ClientRequestTimeout:     getEnvDuration("CLIENT_REQUEST_TIMEOUT", 10*time.Second),
		ClientReconnectBaseDelay: getEnvDuration("CLIENT_RECONNECT_BASE_DELAY", 500*time.Millisecond),
		ClientReconnectMaxDelay:  getEnvDuration("CLIENT_RECONNECT_MAX_DELAY", 30*time.Second),

		RedisHost:    getEnv("REDIS_HOST", "localhost"),
		RedisPort:    getEnv("REDIS_PORT", "6379"),
		RedisPass:    getEnv("REDIS_PASSWORD", ""),
		RedisDB:      getEnvInt("REDIS_DB", 0),
		RedisEnabled: getEnvBool("REDIS_ENABLED", false),

		NATSURL: os.Getenv("NATS_URL"),

		JWTSecret: os.Getenv("JWT_SECRET"),

		SessionSoftTTL: getEnvDuration("SESSION_SOFT_TTL", time.Hour),
		SweepCronSpec:  getEnv("SESSION_SWEEP_CRON", "@every 5m"),

		SeedFile: os.Getenv("WSRELAY_SEED_FILE"),
	}

	if list := os.Getenv("ENDPOINT_ALLOW_LIST"); list != "" {
		for _, entry := range strings.Split(list, ",") {
			entry = strings.TrimSpace(entry)
			if entry != "" {
				cfg.AllowList = append(cfg.AllowList, entry)
			}
		}
	}

	noSecurityEnabled := cfg.NoSecurity != "" && cfg.NoSecurity != "false" && cfg.NoSecurity != "0"
	if !noSecurityEnabled && cfg.JWTSecret != "" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("JWT_SECRET must be at least 32 characters when set")
	}

	return cfg, nil
}

// SeedUser describes one entry of the optional YAML no-security roster.
type SeedUser struct {
	Username   string    `yaml:"username"`
	Password   string    `yaml:"password"`
	Admin      bool      `yaml:"admin"`
	CreatedAt  time.Time `yaml:"createdAt"`
	TOTPSecret string    `yaml:"totpSecret"`
}

// SeedFileContents is the top-level shape of the optional seed file.
type SeedFileContents struct {
	Users []SeedUser `yaml:"users"`
}

// LoadSeedFile reads the optional YAML roster for the no-security
// user store, following the teacher's convention of carrying yaml.v3
// for static seed data (SPEC_FULL.md §3).
func LoadSeedFile(path string) (*SeedFileContents, error) {
	if path == "" {
		return &SeedFileContents{}, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file: %w", err)
	}
	var out SeedFileContents
	if err := yaml.Unmarshal(data, &out); err != nil {
		return nil, fmt.Errorf("failed to parse seed file: %w", err)
	}
	return &out, nil
}
