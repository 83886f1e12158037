// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store backends.
const (
	StorePostgres = "postgres"
	StoreMemory   = "memory"
)

// Notifier backends.
const (
	NotifierOutbox = "outbox"
	NotifierKafka  = "kafka"
	NotifierRelay  = "relay"
)

// knownProviders are the federated providers that may be enabled.
var knownProviders = []string{"google", "github", "facebook", "apple", "linkedin"}

// Config holds application configuration loaded from the environment.
type Config struct {
	// GRPCAddr is the address the gRPC server listens on (e.g. :8080).
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// StoreBackend selects account/token persistence: "postgres" or "memory".
	StoreBackend string `mapstructure:"STORE_BACKEND"`
	// DatabaseURL is the Postgres DSN; required for the postgres backend.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// JWTPrivateKey is the PEM-encoded private key (RSA or ECDSA) or path to file.
	JWTPrivateKey string `mapstructure:"JWT_PRIVATE_KEY"`
	// JWTPublicKey is the PEM-encoded public key or path to file.
	JWTPublicKey string `mapstructure:"JWT_PUBLIC_KEY"`
	JWTIssuer    string `mapstructure:"JWT_ISSUER"`
	JWTAudience  string `mapstructure:"JWT_AUDIENCE"`

	// Argon2 cost; values below the hasher minimums are rejected.
	Argon2Time        uint32 `mapstructure:"ARGON2_TIME"`
	Argon2MemoryKiB   uint32 `mapstructure:"ARGON2_MEMORY_KIB"`
	Argon2Parallelism uint8  `mapstructure:"ARGON2_PARALLELISM"`

	// AppBaseURL prefixes verification and reset links (e.g. https://portal.example.com).
	AppBaseURL string `mapstructure:"APP_BASE_URL"`
	// OAuthProviders is a comma-separated list of enabled federated providers.
	OAuthProviders string `mapstructure:"OAUTH_PROVIDERS"`
	// FederationKey is the shared key the sign-in frontend presents on FederatedSignIn.
	// FederatedSignIn is refused while it is empty.
	FederationKey string `mapstructure:"FEDERATION_KEY"`

	// Notifier selects message delivery: "outbox" (dev only), "kafka" or "relay".
	Notifier         string `mapstructure:"NOTIFIER"`
	KafkaBrokers     string `mapstructure:"KAFKA_BROKERS"`
	NotifyKafkaTopic string `mapstructure:"NOTIFY_KAFKA_TOPIC"`
	// KafkaGroupID is the consumer group ID for the delivery worker.
	KafkaGroupID string `mapstructure:"KAFKA_GROUP_ID"`
	// RelayURL is the HTTP mail relay endpoint used by the relay notifier and the worker.
	RelayURL    string `mapstructure:"RELAY_URL"`
	RelayAPIKey string `mapstructure:"RELAY_API_KEY"`
	MailFrom    string `mapstructure:"MAIL_FROM"`

	// RedisURL enables the attempt limiter for two-factor codes and passwords when set.
	RedisURL             string `mapstructure:"REDIS_URL"`
	TwoFactorMaxAttempts int    `mapstructure:"TWO_FACTOR_MAX_ATTEMPTS"`
	TwoFactorCooldown    string `mapstructure:"TWO_FACTOR_COOLDOWN"`

	// OTLPEndpoint enables OpenTelemetry export when set (e.g. localhost:4317).
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	OTLPInsecure bool   `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`

	// Env is the application environment (e.g. "development", "production").
	Env       string `mapstructure:"APP_ENV"`
	LogLevel  string `mapstructure:"LOG_LEVEL"`
	LogFormat string `mapstructure:"LOG_FORMAT"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("GRPC_ADDR", ":8080")
	v.SetDefault("STORE_BACKEND", StorePostgres)
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("JWT_PRIVATE_KEY", "")
	v.SetDefault("JWT_PUBLIC_KEY", "")
	v.SetDefault("JWT_ISSUER", "identity-portal")
	v.SetDefault("JWT_AUDIENCE", "identity-portal-web")
	v.SetDefault("ARGON2_TIME", 3)
	v.SetDefault("ARGON2_MEMORY_KIB", 65536)
	v.SetDefault("ARGON2_PARALLELISM", 4)
	v.SetDefault("APP_BASE_URL", "http://localhost:3000")
	v.SetDefault("OAUTH_PROVIDERS", "google,github")
	v.SetDefault("FEDERATION_KEY", "")
	v.SetDefault("NOTIFIER", NotifierOutbox)
	v.SetDefault("KAFKA_BROKERS", "")
	v.SetDefault("NOTIFY_KAFKA_TOPIC", "identity-notifications")
	v.SetDefault("KAFKA_GROUP_ID", "identity-notify-worker")
	v.SetDefault("RELAY_URL", "")
	v.SetDefault("RELAY_API_KEY", "")
	v.SetDefault("MAIL_FROM", "no-reply@localhost")
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("TWO_FACTOR_MAX_ATTEMPTS", 5)
	v.SetDefault("TWO_FACTOR_COOLDOWN", "10m")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", true)
	v.SetDefault("APP_ENV", "")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.GRPCAddr == "" {
		return errors.New("config: GRPC_ADDR must be set")
	}
	switch c.StoreBackend {
	case StorePostgres:
		if c.DatabaseURL == "" {
			return errors.New("config: DATABASE_URL must be set when STORE_BACKEND=postgres")
		}
	case StoreMemory:
		if c.IsProduction() {
			return errors.New("config: STORE_BACKEND=memory must not be used when APP_ENV=production")
		}
	default:
		return fmt.Errorf("config: unknown STORE_BACKEND %q", c.StoreBackend)
	}
	if c.Argon2Time < 3 || c.Argon2MemoryKiB < 65536 || c.Argon2Parallelism < 4 {
		return errors.New("config: ARGON2 parameters must be at least t=3, m=65536 KiB, p=4")
	}
	switch c.Notifier {
	case NotifierOutbox:
		if c.IsProduction() {
			return errors.New("config: NOTIFIER=outbox must not be used when APP_ENV=production")
		}
	case NotifierKafka:
		if len(c.KafkaBrokersList()) == 0 {
			return errors.New("config: KAFKA_BROKERS must be set when NOTIFIER=kafka")
		}
	case NotifierRelay:
		if c.RelayURL == "" {
			return errors.New("config: RELAY_URL must be set when NOTIFIER=relay")
		}
	default:
		return fmt.Errorf("config: unknown NOTIFIER %q", c.Notifier)
	}
	for _, p := range c.Providers() {
		if !slices.Contains(knownProviders, p) {
			return fmt.Errorf("config: unknown OAuth provider %q", p)
		}
	}
	if c.IsProduction() && len(c.Providers()) > 0 && len(c.FederationKey) < 32 {
		return errors.New("config: FEDERATION_KEY must be at least 32 characters when OAuth providers are enabled in production")
	}
	if c.TwoFactorMaxAttempts <= 0 {
		return errors.New("config: TWO_FACTOR_MAX_ATTEMPTS must be positive")
	}
	return nil
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(c.Env, "production")
}

// Cooldown parses TwoFactorCooldown as a time.Duration. Returns 10m if unset or invalid.
func (c *Config) Cooldown() time.Duration {
	d, err := time.ParseDuration(c.TwoFactorCooldown)
	if err != nil || d <= 0 {
		return 10 * time.Minute
	}
	return d
}

// Providers returns the enabled federated providers, lowercased.
func (c *Config) Providers() []string {
	return splitList(strings.ToLower(c.OAuthProviders))
}

// KafkaBrokersList returns Kafka broker addresses from the comma-separated config.
func (c *Config) KafkaBrokersList() []string {
	if c == nil {
		return nil
	}
	return splitList(c.KafkaBrokers)
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
