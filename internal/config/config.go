// Package config loads server configuration from CLI flags and environment
// variables, validates it, and fills in defaults.
//
// CLI flags control which outside services are mocked (--no-email, --no-s3, --test).
// Environment variables provide secrets and service configuration.
package config

import (
	"encoding/hex"
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/kuitang/shared-notes/internal/ratelimit"
	"github.com/kuitang/shared-notes/internal/urlutil"
)

// Database drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
)

const (
	defaultListenAddr = ":5000"
	defaultRegion     = "auto"
	minSecretKeyLen   = 16
)

// Config holds all application configuration.
type Config struct {
	// Server
	ListenAddr string
	BaseURL    string
	LogLevel   string

	// Tokens and passwords
	SecretKey  string
	TokenTTL   time.Duration // 0 issues tokens without expiry
	BcryptCost int

	// Storage
	DatabaseDriver  string
	DatabasePath    string
	DatabaseURL     string
	DBEncryptionKey string // optional, 64 hex characters

	// Rate limiting on signup/signin. TrustProxyHeaders keys clients by
	// X-Forwarded-For instead of the connection address.
	AuthRateLimit     ratelimit.Config
	TrustProxyHeaders bool

	// Mock flags (CLI only)
	NoEmail bool
	NoS3    bool

	// Resend email
	ResendAPIKey    string
	ResendFromEmail string

	// S3-compatible export storage. Export is disabled when no endpoint or
	// bucket is set and --no-s3 is off.
	AWSEndpointS3      string
	AWSRegion          string
	AWSAccessKeyID     string
	AWSSecretAccessKey string
	AWSBucketName      string
}

// Flags are the parsed command-line flags.
type Flags struct {
	NoEmail bool
	NoS3    bool
	Addr    string
}

// ValidationError represents a configuration validation error with multiple issues.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("configuration validation failed:\n  - %s", strings.Join(e.Errors, "\n  - "))
}

// ParseFlags parses args (normally os.Args[1:]) with a fresh FlagSet.
func ParseFlags(args []string) (Flags, error) {
	var (
		f        Flags
		testMode bool
	)
	fs := flag.NewFlagSet("server", flag.ContinueOnError)
	fs.BoolVar(&f.NoEmail, "no-email", false, "Use mock email service (logs emails, writes ./data/outbox)")
	fs.BoolVar(&f.NoS3, "no-s3", false, "Use in-memory S3 for exports")
	fs.BoolVar(&testMode, "test", false, "Shorthand for --no-email --no-s3")
	fs.StringVar(&f.Addr, "addr", "", "Listen address (overrides LISTEN_ADDR)")
	if err := fs.Parse(args); err != nil {
		return Flags{}, err
	}

	if testMode {
		f.NoEmail = true
		f.NoS3 = true
	}
	return f, nil
}

// Load reads the environment, applies flags, and validates the result.
func Load(flags Flags) (*Config, error) {
	cfg := &Config{
		NoEmail: flags.NoEmail,
		NoS3:    flags.NoS3,
	}

	cfg.ListenAddr = getEnvOrDefault("LISTEN_ADDR", defaultListenAddr)
	if flags.Addr != "" {
		cfg.ListenAddr = flags.Addr
	}
	cfg.BaseURL = urlutil.Normalize(os.Getenv("BASE_URL"))
	if cfg.BaseURL == "" {
		cfg.BaseURL = "http://localhost" + cfg.ListenAddr
	}
	cfg.LogLevel = getEnvOrDefault("LOG_LEVEL", "info")

	cfg.SecretKey = os.Getenv("SECRET_KEY")
	cfg.TokenTTL = parseDurationOrDefault("TOKEN_TTL", 0)
	cfg.BcryptCost = parseIntOrDefault("BCRYPT_COST", 10)

	cfg.DatabaseDriver = strings.ToLower(getEnvOrDefault("DATABASE_DRIVER", DriverSQLite))
	cfg.DatabasePath = getEnvOrDefault("DATABASE_PATH", "./data/notes.db")
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.DBEncryptionKey = strings.TrimSpace(os.Getenv("DB_ENCRYPTION_KEY"))

	// 0.1 rps with a burst of 100 approximates 100 requests per 15 minutes.
	cfg.AuthRateLimit = ratelimit.Config{
		RPS:             parseFloat64OrDefault("RATE_LIMIT_AUTH_RPS", ratelimit.DefaultAuthConfig.RPS),
		Burst:           parseIntOrDefault("RATE_LIMIT_AUTH_BURST", ratelimit.DefaultAuthConfig.Burst),
		CleanupInterval: parseDurationOrDefault("RATE_LIMIT_CLEANUP_INTERVAL", ratelimit.DefaultAuthConfig.CleanupInterval),
	}
	cfg.TrustProxyHeaders = parseBoolOrDefault("TRUST_PROXY_HEADERS", false)

	cfg.ResendAPIKey = os.Getenv("RESEND_API_KEY")
	cfg.ResendFromEmail = getEnvOrDefault("RESEND_FROM_EMAIL", "noreply@shared-notes.dev")

	cfg.AWSEndpointS3 = strings.TrimSpace(os.Getenv("AWS_ENDPOINT_URL_S3"))
	cfg.AWSRegion = getEnvOrDefault("AWS_REGION", defaultRegion)
	cfg.AWSAccessKeyID = strings.TrimSpace(os.Getenv("AWS_ACCESS_KEY_ID"))
	cfg.AWSSecretAccessKey = strings.TrimSpace(os.Getenv("AWS_SECRET_ACCESS_KEY"))
	cfg.AWSBucketName = getEnvOrDefault("BUCKET_NAME", "shared-notes-exports")

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks that all required configuration is present and valid and
// reports every problem at once.
func (c *Config) Validate() error {
	var errs []string

	if c.SecretKey == "" {
		errs = append(errs, "SECRET_KEY is required (generate with: openssl rand -hex 32)")
	} else if len(c.SecretKey) < minSecretKeyLen {
		errs = append(errs, fmt.Sprintf("SECRET_KEY must be at least %d characters", minSecretKeyLen))
	}
	if c.TokenTTL < 0 {
		errs = append(errs, "TOKEN_TTL must not be negative")
	}
	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		errs = append(errs, "BCRYPT_COST must be between 4 and 31")
	}

	switch c.DatabaseDriver {
	case DriverSQLite:
		if c.DBEncryptionKey != "" {
			if b, err := hex.DecodeString(c.DBEncryptionKey); err != nil || len(b) != 32 {
				errs = append(errs, "DB_ENCRYPTION_KEY must be 64 hex characters (32 bytes)")
			}
		}
	case DriverPostgres:
		if c.DatabaseURL == "" {
			errs = append(errs, "DATABASE_URL is required when DATABASE_DRIVER=postgres")
		}
	default:
		errs = append(errs, fmt.Sprintf("DATABASE_DRIVER must be %q or %q", DriverSQLite, DriverPostgres))
	}

	if !c.NoEmail && c.ResendAPIKey == "" {
		errs = append(errs, "RESEND_API_KEY is required (set env var or use --no-email)")
	}

	if !c.NoS3 && c.AWSEndpointS3 != "" {
		if c.AWSAccessKeyID == "" {
			errs = append(errs, "AWS_ACCESS_KEY_ID is required when AWS_ENDPOINT_URL_S3 is set")
		}
		if c.AWSSecretAccessKey == "" {
			errs = append(errs, "AWS_SECRET_ACCESS_KEY is required when AWS_ENDPOINT_URL_S3 is set")
		}
	}

	if c.AuthRateLimit.RPS <= 0 {
		errs = append(errs, "RATE_LIMIT_AUTH_RPS must be positive")
	}
	if c.AuthRateLimit.Burst <= 0 {
		errs = append(errs, "RATE_LIMIT_AUTH_BURST must be positive")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// EncryptionKey returns the decoded SQLCipher key, or nil when unset.
// Only valid after Validate succeeds.
func (c *Config) EncryptionKey() []byte {
	if c.DBEncryptionKey == "" {
		return nil
	}
	key, _ := hex.DecodeString(c.DBEncryptionKey)
	return key
}

// ExportEnabled reports whether exports have somewhere to go.
func (c *Config) ExportEnabled() bool {
	return c.NoS3 || c.AWSEndpointS3 != ""
}

// PrintStartupSummary prints a human-readable summary of the configuration to stderr.
func (c *Config) PrintStartupSummary() {
	fmt.Fprintln(os.Stderr, "")
	fmt.Fprintln(os.Stderr, "shared-notes server starting...")

	switch c.DatabaseDriver {
	case DriverPostgres:
		fmt.Fprintln(os.Stderr, "  DB:      PostgreSQL (DATABASE_URL)")
	default:
		enc := "plaintext"
		if c.DBEncryptionKey != "" {
			enc = "encrypted"
		}
		fmt.Fprintf(os.Stderr, "  DB:      SQLite %s (%s)\n", c.DatabasePath, enc)
	}

	if c.NoEmail {
		fmt.Fprintln(os.Stderr, "  Email:   Mock (--no-email)")
	} else {
		fmt.Fprintf(os.Stderr, "  Email:   Resend (from: %s)\n", c.ResendFromEmail)
	}

	switch {
	case c.NoS3:
		fmt.Fprintln(os.Stderr, "  Export:  In-memory S3 (--no-s3)")
	case c.AWSEndpointS3 != "":
		fmt.Fprintf(os.Stderr, "  Export:  S3 %s/%s\n", c.AWSEndpointS3, c.AWSBucketName)
	default:
		fmt.Fprintln(os.Stderr, "  Export:  disabled")
	}

	if c.TokenTTL > 0 {
		fmt.Fprintf(os.Stderr, "  Tokens:  expire after %s\n", c.TokenTTL)
	} else {
		fmt.Fprintln(os.Stderr, "  Tokens:  no expiry")
	}
	if c.TrustProxyHeaders {
		fmt.Fprintln(os.Stderr, "  Limits:  keyed by X-Forwarded-For")
	}
	fmt.Fprintf(os.Stderr, "  Listen:  %s\n", c.ListenAddr)
	fmt.Fprintf(os.Stderr, "  Base:    %s\n", c.BaseURL)
	fmt.Fprintln(os.Stderr, "")
}

func getEnvOrDefault(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func parseIntOrDefault(key string, defaultValue int) int {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseFloat64OrDefault(key string, defaultValue float64) float64 {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}

func parseBoolOrDefault(key string, defaultValue bool) bool {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return defaultValue
	}
	return parsed
}
