package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// BackendConfig holds the configuration for the control-plane binary (cmd/backend).
type BackendConfig struct {
	// Core
	ServerPort        int
	ServerEnv         string // "development" or "production"
	ServerURL         string
	LogHealthRequests bool

	// Database
	DatabaseURL     string
	DatabaseMaxConn int
	DatabaseMinConn int

	// Security
	SecretKey string // HS256 signing key for tickets and the storage-service handshake.
	AnonKey   string // shared secret granting read access to explicitly public resources.

	// Tickets / Refresh Tokens
	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	// Argon2 password hashing
	Argon2Memory      uint32
	Argon2Iterations  uint32
	Argon2Parallelism uint8
	Argon2SaltLength  uint32
	Argon2KeyLength   uint32

	// CORS
	CORSAllowedOrigins []string // extra origins from the environment, merged into the Policy Cache.
	PolicyCacheTTL     time.Duration

	// Object storage service
	StorageServiceURL         string // internal base URL the backend calls.
	StorageServiceExternalURL string // base URL returned to clients for direct PUT/GET.
	PresignedUploadTTL        time.Duration
	StorageHandshakeTTL       time.Duration

	// Notification Bridge
	NotifyReconnectInitial time.Duration
	NotifyReconnectMax     time.Duration

	// Rate limiting
	RateLimitAPIRequests       int
	RateLimitAPIWindowSeconds  int
	RateLimitAuthCount         int
	RateLimitAuthWindowSeconds int

	MaxUploadSizeMB int

	// First-run bootstrap
	InitOwnerEmail    string
	InitOwnerPassword string
}

// StorageConfig holds the configuration for the object-storage binary (cmd/storageservice).
type StorageConfig struct {
	ServerPort  int
	ServerEnv   string
	ExternalURL string

	StorageRoot string

	SecretKey       string // must match the backend's SECRET_KEY to verify the handshake ticket.
	TokenIssuer     string // must match the backend's SERVER_URL, the issuer claim on every ticket it signs.
	MaxUploadSizeMB int
}

// LoadBackend reads the control-plane configuration from environment variables. It returns an error listing every
// invalid or missing value at once.
func LoadBackend() (*BackendConfig, error) {
	p := &parser{}

	cfg := &BackendConfig{
		ServerPort:        p.int("SERVER_PORT", 8000),
		ServerEnv:         envStr("SERVER_ENV", "production"),
		ServerURL:         envStr("SERVER_URL", "http://localhost:8000"),
		LogHealthRequests: p.bool("LOG_HEALTH_REQUESTS", false),

		DatabaseURL:     postgresDSN(),
		DatabaseMaxConn: p.int("DATABASE_MAX_CONNS", 25),
		DatabaseMinConn: p.int("DATABASE_MIN_CONNS", 5),

		SecretKey: envStr("SECRET_KEY", ""),
		AnonKey:   envStr("ANON_KEY", ""),

		AccessTokenTTL:  p.duration("ACCESS_TOKEN_EXPIRE_MINUTES", "m", 30*time.Minute),
		RefreshTokenTTL: p.duration("REFRESH_TOKEN_EXPIRE_DAYS", "d", 30*24*time.Hour),

		Argon2Memory:      p.uint32("ARGON2_MEMORY", 65536),
		Argon2Iterations:  p.uint32("ARGON2_ITERATIONS", 3),
		Argon2Parallelism: p.uint8("ARGON2_PARALLELISM", 2),
		Argon2SaltLength:  p.uint32("ARGON2_SALT_LENGTH", 16),
		Argon2KeyLength:   p.uint32("ARGON2_KEY_LENGTH", 32),

		CORSAllowedOrigins: splitCSV(envStr("CORS_ALLOWED_ORIGINS", "")),
		PolicyCacheTTL:     p.seconds("CORS_CACHE_TTL_SECONDS", 5*time.Minute),

		StorageServiceURL:         envStr("STORAGE_SERVICE_URL", ""),
		StorageServiceExternalURL: envStr("STORAGE_SERVICE_EXTERNAL_URL", ""),
		PresignedUploadTTL:        p.seconds("PRESIGNED_UPLOAD_TTL_SECONDS", time.Hour),
		StorageHandshakeTTL:       p.seconds("STORAGE_HANDSHAKE_TTL_SECONDS", time.Hour),

		NotifyReconnectInitial: p.seconds("NOTIFY_RECONNECT_INITIAL_SECONDS", time.Second),
		NotifyReconnectMax:     p.seconds("NOTIFY_RECONNECT_MAX_SECONDS", 30*time.Second),

		RateLimitAPIRequests:       p.int("RATE_LIMIT_API_REQUESTS", 120),
		RateLimitAPIWindowSeconds:  p.int("RATE_LIMIT_API_WINDOW_SECONDS", 60),
		RateLimitAuthCount:         p.int("RATE_LIMIT_AUTH_COUNT", 10),
		RateLimitAuthWindowSeconds: p.int("RATE_LIMIT_AUTH_WINDOW_SECONDS", 300),

		MaxUploadSizeMB: p.int("MAX_UPLOAD_SIZE_MB", 100),

		InitOwnerEmail:    envStr("INIT_OWNER_EMAIL", ""),
		InitOwnerPassword: envStr("INIT_OWNER_PASSWORD", ""),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	if cfg.IsDevelopment() && len(cfg.CORSAllowedOrigins) == 0 {
		cfg.CORSAllowedOrigins = []string{"http://localhost:3000"}
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// LoadStorage reads the object-storage service configuration from environment variables.
func LoadStorage() (*StorageConfig, error) {
	p := &parser{}

	cfg := &StorageConfig{
		ServerPort:      p.int("STORAGE_SERVER_PORT", 8001),
		ServerEnv:       envStr("SERVER_ENV", "production"),
		ExternalURL:     envStr("STORAGE_SERVICE_EXTERNAL_URL", ""),
		StorageRoot:     envStr("STORAGE_ROOT", "/data/storage"),
		SecretKey:       envStr("SECRET_KEY", ""),
		TokenIssuer:     envStr("SERVER_URL", "http://localhost:8000"),
		MaxUploadSizeMB: p.int("MAX_UPLOAD_SIZE_MB", 100),
	}

	if parseErr := errors.Join(p.errs...); parseErr != nil {
		return nil, parseErr
	}

	var errs []error
	if cfg.SecretKey == "" {
		errs = append(errs, fmt.Errorf("SECRET_KEY is required"))
	}
	if cfg.ExternalURL == "" {
		errs = append(errs, fmt.Errorf("STORAGE_SERVICE_EXTERNAL_URL is required"))
	}
	if cfg.ServerPort < 1 || cfg.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("STORAGE_SERVER_PORT must be between 1 and 65535"))
	}
	if cfg.MaxUploadSizeMB < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE_MB must be at least 1"))
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	return cfg, nil
}

// IsDevelopment returns true when running in development mode.
func (c *BackendConfig) IsDevelopment() bool { return c.ServerEnv == "development" }

// IsDevelopment returns true when running in development mode.
func (c *StorageConfig) IsDevelopment() bool { return c.ServerEnv == "development" }

// BodyLimitBytes returns the maximum request body size in bytes, derived from MaxUploadSizeMB with a small margin for
// multipart framing overhead.
func (c *BackendConfig) BodyLimitBytes() int { return (c.MaxUploadSizeMB + 1) * 1024 * 1024 }

// BodyLimitBytes returns the maximum request body size in bytes.
func (c *StorageConfig) BodyLimitBytes() int { return (c.MaxUploadSizeMB + 1) * 1024 * 1024 }

func (c *BackendConfig) validate() error {
	var errs []error

	if c.SecretKey == "" {
		errs = append(errs, fmt.Errorf("SECRET_KEY is required"))
	} else if len(c.SecretKey) < 32 {
		errs = append(errs, fmt.Errorf("SECRET_KEY must be at least 32 characters"))
	}
	if c.AnonKey == "" {
		errs = append(errs, fmt.Errorf("ANON_KEY is required"))
	}
	if c.StorageServiceURL == "" {
		errs = append(errs, fmt.Errorf("STORAGE_SERVICE_URL is required"))
	}
	if c.StorageServiceExternalURL == "" {
		errs = append(errs, fmt.Errorf("STORAGE_SERVICE_EXTERNAL_URL is required"))
	}

	if c.ServerPort < 1 || c.ServerPort > 65535 {
		errs = append(errs, fmt.Errorf("SERVER_PORT must be between 1 and 65535"))
	}
	if c.DatabaseMaxConn < 1 {
		errs = append(errs, fmt.Errorf("DATABASE_MAX_CONNS must be at least 1"))
	}
	if c.DatabaseMinConn < 0 {
		errs = append(errs, fmt.Errorf("DATABASE_MIN_CONNS must not be negative"))
	}
	if c.DatabaseMinConn > c.DatabaseMaxConn {
		errs = append(errs, fmt.Errorf("DATABASE_MIN_CONNS (%d) must not exceed DATABASE_MAX_CONNS (%d)", c.DatabaseMinConn, c.DatabaseMaxConn))
	}
	if c.AccessTokenTTL < time.Second {
		errs = append(errs, fmt.Errorf("ACCESS_TOKEN_EXPIRE_MINUTES must be at least 1 minute"))
	}
	if c.RefreshTokenTTL < time.Second {
		errs = append(errs, fmt.Errorf("REFRESH_TOKEN_EXPIRE_DAYS must be at least 1 day"))
	}
	if c.Argon2Memory == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_MEMORY must be greater than 0"))
	}
	if c.Argon2Iterations == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_ITERATIONS must be greater than 0"))
	}
	if c.Argon2Parallelism == 0 {
		errs = append(errs, fmt.Errorf("ARGON2_PARALLELISM must be greater than 0"))
	}
	if c.MaxUploadSizeMB < 1 {
		errs = append(errs, fmt.Errorf("MAX_UPLOAD_SIZE_MB must be at least 1"))
	}
	if c.RateLimitAPIRequests < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_API_REQUESTS must be at least 1"))
	}
	if c.RateLimitAPIWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_API_WINDOW_SECONDS must be at least 1"))
	}
	if c.RateLimitAuthCount < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_AUTH_COUNT must be at least 1"))
	}
	if c.RateLimitAuthWindowSeconds < 1 {
		errs = append(errs, fmt.Errorf("RATE_LIMIT_AUTH_WINDOW_SECONDS must be at least 1"))
	}
	if c.PolicyCacheTTL < time.Second {
		errs = append(errs, fmt.Errorf("CORS_CACHE_TTL_SECONDS must be at least 1s"))
	}

	return errors.Join(errs...)
}

// postgresDSN builds a postgres:// connection string from POSTGRES_* environment variables, or returns DATABASE_URL
// verbatim if explicitly set.
func postgresDSN() string {
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v
	}
	user := envStr("POSTGRES_USER", "selfdb")
	pass := envStr("POSTGRES_PASSWORD", "")
	host := envStr("POSTGRES_HOST", "postgres")
	port := envStr("POSTGRES_PORT", "5432")
	name := envStr("POSTGRES_DB", "selfdb")
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=disable", user, pass, host, port, name)
}

func splitCSV(v string) []string {
	if v == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// parser collects parse errors so Load can report all invalid values at once.
type parser struct {
	errs []error
}

func (p *parser) int(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	return n
}

func (p *parser) bool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected boolean)", key, v))
		return fallback
	}
	return b
}

func (p *parser) uint32(key string, fallback uint32) uint32 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 32-bit integer)", key, v))
		return fallback
	}
	return uint32(n)
}

func (p *parser) uint8(key string, fallback uint8) uint8 {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.ParseUint(v, 10, 8)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected unsigned 8-bit integer)", key, v))
		return fallback
	}
	return uint8(n)
}

// seconds parses an integer count of seconds into a time.Duration.
func (p *parser) seconds(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer seconds)", key, v))
		return fallback
	}
	return time.Duration(n) * time.Second
}

// duration parses an integer value in the given unit ("m" for minutes, "d" for days) into a time.Duration.
func (p *parser) duration(key, unit string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		p.errs = append(p.errs, fmt.Errorf("invalid value for %s: %q (expected integer)", key, v))
		return fallback
	}
	switch unit {
	case "m":
		return time.Duration(n) * time.Minute
	case "d":
		return time.Duration(n) * 24 * time.Hour
	default:
		return time.Duration(n)
	}
}
