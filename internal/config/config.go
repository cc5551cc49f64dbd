package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const envPrefix = "DUPULSE_"

// Auth modes.
const (
	AuthModeRemote = "remote"
	AuthModeJWT    = "jwt"
)

// Config carries every runtime setting for the api and the operator tools.
type Config struct {
	HTTPAddr string
	GRPCAddr string
	PGDSN    string

	AuthURL       string
	AuthAnonKey   string
	AuthJWTSecret string
	AuthMode      string
	AdminPolicy   string

	ResolveTimeout  time.Duration
	EvaluateTimeout time.Duration

	RedisAddr     string
	RedisPassword string
	SessionTTL    time.Duration
	LoginPath     string
	CookieSecure  bool

	RateBurst  int
	RatePerSec float64

	CORSOrigins        []string
	CORSAllowLocalhost bool
	TrustProxy         bool
	AdminUIDir         string
}

// Load reads the environment, after merging an optional .env file. Values
// already present in the process environment win over the file.
func Load(envFiles ...string) (Config, error) {
	if len(envFiles) == 0 {
		envFiles = []string{".env"}
	}
	for _, f := range envFiles {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, os.ErrNotExist) {
			return Config{}, fmt.Errorf("load %s: %w", f, err)
		}
	}

	cfg := Config{
		HTTPAddr:        getEnv("HTTP_ADDR", ":8080"),
		GRPCAddr:        getEnv("GRPC_ADDR", ""),
		PGDSN:           getEnv("PG_DSN", ""),
		AuthURL:         strings.TrimRight(getEnv("AUTH_URL", ""), "/"),
		AuthAnonKey:     getEnv("AUTH_ANON_KEY", ""),
		AuthJWTSecret:   getEnv("AUTH_JWT_SECRET", ""),
		AuthMode:        strings.ToLower(getEnv("AUTH_MODE", AuthModeRemote)),
		AdminPolicy:     strings.ToLower(getEnv("ADMIN_POLICY", "membership")),
		RedisAddr:       getEnv("REDIS_ADDR", ""),
		RedisPassword:   getEnv("REDIS_PASSWORD", ""),
		LoginPath:       getEnv("LOGIN_PATH", "/login"),
		AdminUIDir:      getEnv("ADMIN_UI_DIR", ""),
		CORSOrigins:     splitList(getEnv("CORS_ORIGINS", "")),
		ResolveTimeout:  5 * time.Second,
		EvaluateTimeout: 5 * time.Second,
		SessionTTL:      12 * time.Hour,
		RateBurst:       100,
		RatePerSec:      50,
	}

	var err error
	if cfg.ResolveTimeout, err = getEnvDuration("RESOLVE_TIMEOUT", cfg.ResolveTimeout); err != nil {
		return Config{}, err
	}
	if cfg.EvaluateTimeout, err = getEnvDuration("EVALUATE_TIMEOUT", cfg.EvaluateTimeout); err != nil {
		return Config{}, err
	}
	if cfg.SessionTTL, err = getEnvDuration("SESSION_TTL", cfg.SessionTTL); err != nil {
		return Config{}, err
	}
	if cfg.RateBurst, err = getEnvInt("RATE_BURST", cfg.RateBurst); err != nil {
		return Config{}, err
	}
	if cfg.RatePerSec, err = getEnvFloat("RATE_PER_SEC", cfg.RatePerSec); err != nil {
		return Config{}, err
	}
	if cfg.CookieSecure, err = getEnvBool("COOKIE_SECURE", true); err != nil {
		return Config{}, err
	}
	if cfg.CORSAllowLocalhost, err = getEnvBool("CORS_ALLOW_LOCALHOST", false); err != nil {
		return Config{}, err
	}
	if cfg.TrustProxy, err = getEnvBool("TRUST_PROXY", false); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ValidateAPI checks the settings the api server cannot start without.
func (c Config) ValidateAPI() error {
	switch c.AuthMode {
	case AuthModeRemote:
		if c.AuthURL == "" {
			return errors.New(envPrefix + "AUTH_URL is required in remote auth mode")
		}
	case AuthModeJWT:
		if c.AuthJWTSecret == "" {
			return errors.New(envPrefix + "AUTH_JWT_SECRET is required in jwt auth mode")
		}
	default:
		return fmt.Errorf("unknown auth mode %q", c.AuthMode)
	}
	if c.AdminPolicy != "metadata" && c.PGDSN == "" {
		return fmt.Errorf("%sPG_DSN is required for admin policy %q", envPrefix, c.AdminPolicy)
	}
	if c.ResolveTimeout <= 0 || c.EvaluateTimeout <= 0 {
		return errors.New("gate timeouts must be positive")
	}
	if c.SessionTTL <= 0 {
		return errors.New("session ttl must be positive")
	}
	return nil
}

func lookup(key string) (string, bool) {
	v, ok := os.LookupEnv(envPrefix + key)
	if !ok {
		return "", false
	}
	v = strings.TrimSpace(v)
	return v, v != ""
}

func getEnv(key, def string) string {
	if v, ok := lookup(key); ok {
		return v
	}
	return def
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvInt(key string, def int) (int, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return n, nil
}

func getEnvFloat(key string, def float64) (float64, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return f, nil
}

func getEnvBool(key string, def bool) (bool, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return b, nil
}

func getEnvDuration(key string, def time.Duration) (time.Duration, error) {
	v, ok := lookup(key)
	if !ok {
		return def, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s%s: %w", envPrefix, key, err)
	}
	return d, nil
}
