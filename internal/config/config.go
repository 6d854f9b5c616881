// Package config handles loading and validation of service configuration.
// Supports development (env vars, .env, CONFIG_FILE) and production
// (Secret Manager) modes.
package config

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/joho/godotenv"
)

// Storage backends.
const (
	BackendMemory   = "memory"
	BackendFile     = "file"
	BackendRedis    = "redis"
	BackendPostgres = "postgres"
)

// Config holds all service configuration.
// Environment determines whether secrets load from env vars (development) or Secret Manager (production).
type Config struct {
	// Server settings
	Port        string
	Environment string // "development" or "production"
	LogLevel    string // "debug", "info", "warn", "error"

	// GCP settings (required in production)
	GCPProject string
	SecretID   string

	AdminSecret        string
	OriginCEP          string
	CORSAllowedOrigins []string

	OutboundTimeout      time.Duration
	RequestBudget        time.Duration
	TokenRefreshInterval time.Duration
	TLSFingerprint       string // "go" or "chrome"

	Bling       BlingConfig
	MercadoPago MercadoPagoConfig
	Carrier     CarrierConfig
	Storage     StorageConfig
	Kafka       KafkaConfig
}

// BlingConfig configures the ERP client and its OAuth tokens.
type BlingConfig struct {
	ClientID           string
	ClientSecret       string
	RefreshToken       string
	BaseURL            string
	TokenURL           string
	CustomerID         int64
	DefaultProductCode string
}

// Enabled reports whether orders can be sent to the ERP.
func (b BlingConfig) Enabled() bool {
	return b.ClientID != "" && b.ClientSecret != ""
}

// MercadoPagoConfig configures the payment provider.
type MercadoPagoConfig struct {
	AccessToken     string
	WebhookSecret   string
	BaseURL         string
	NotificationURL string
	SuccessURL      string
	PendingURL      string
	FailureURL      string
	Installments    int

	// PixDiscountPercent is the PIX discount offered at checkout; 0 disables.
	PixDiscountPercent int
}

// Enabled reports whether checkouts can be created.
func (m MercadoPagoConfig) Enabled() bool {
	return m.AccessToken != ""
}

// WebhookEnabled reports whether payment notifications can be verified and
// looked up.
func (m MercadoPagoConfig) WebhookEnabled() bool {
	return m.AccessToken != "" && m.WebhookSecret != ""
}

// CarrierConfig configures the live shipping quote provider.
type CarrierConfig struct {
	BaseURL   string
	Token     string
	UserAgent string
}

// Enabled reports whether live quotes are available. Without it every quote
// is the fallback.
func (c CarrierConfig) Enabled() bool {
	return c.Token != ""
}

// StorageConfig selects the token and idempotency backends.
type StorageConfig struct {
	TokenStore         string
	TokenFile          string
	TokenKey           string
	RedisURL           string
	IdempotencyBackend string
	IdempotencyTTL     time.Duration
	DatabaseURL        string
}

// KafkaConfig configures the failed-order alert topic.
type KafkaConfig struct {
	Brokers    string
	AlertTopic string
}

// Enabled reports whether alerts are published to Kafka.
func (k KafkaConfig) Enabled() bool {
	return k.Brokers != ""
}

// lookupFunc returns the value of a setting, or "".
type lookupFunc func(key string) string

// Load reads configuration from file, environment, or Secret Manager.
// A .env file in the working directory is loaded first when present; it
// never overrides variables already set.
// Priority: CONFIG_FILE (if set) → ENV vars, overlaid with Secret Manager in
// production. Returns an error for malformed or contradictory settings.
// Missing integration credentials are not errors; see Warnings.
func Load(ctx context.Context) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("loading .env: %w", err)
	}

	lookup := lookupFunc(os.Getenv)

	// If CONFIG_FILE is set, load everything from the JSON file
	if configPath := os.Getenv("CONFIG_FILE"); configPath != "" {
		values, err := readFile(configPath)
		if err != nil {
			return nil, err
		}
		lookup = mapLookup(values)
	}

	if lookup("ENVIRONMENT") == "production" {
		project := lookup("GCP_PROJECT")
		if project == "" {
			return nil, fmt.Errorf("GCP_PROJECT required in production environment")
		}
		secrets, err := loadFromSecretManager(ctx, project, withDefault(lookup("SECRET_ID"), "order-bridge"))
		if err != nil {
			return nil, fmt.Errorf("loading secrets: %w", err)
		}
		lookup = overlay(mapLookup(secrets), lookup)
	}

	return parse(lookup)
}

// readFile reads a flat JSON object keyed by the environment variable names.
func readFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}
	values, err := decodeValues(data)
	if err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	return values, nil
}

// decodeValues accepts string, number and boolean values.
func decodeValues(data []byte) (map[string]string, error) {
	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	values := make(map[string]string, len(raw))
	for k, v := range raw {
		switch v := v.(type) {
		case string:
			values[k] = v
		case float64:
			values[k] = strconv.FormatFloat(v, 'f', -1, 64)
		case bool:
			values[k] = strconv.FormatBool(v)
		case nil:
		default:
			return nil, fmt.Errorf("%s: unsupported value type %T", k, v)
		}
	}
	return values, nil
}

// loadFromSecretManager fetches the secret document from GCP Secret Manager.
// Secret name format: projects/{project}/secrets/{secret_id}/versions/latest
func loadFromSecretManager(ctx context.Context, project, secretID string) (map[string]string, error) {
	client, err := secretmanager.NewClient(ctx)
	if err != nil {
		return nil, fmt.Errorf("creating secret manager client: %w", err)
	}
	defer client.Close()

	secretName := fmt.Sprintf("projects/%s/secrets/%s/versions/latest", project, secretID)

	result, err := client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{
		Name: secretName,
	})
	if err != nil {
		return nil, fmt.Errorf("accessing secret %s: %w", secretName, err)
	}

	values, err := decodeValues(result.Payload.Data)
	if err != nil {
		return nil, fmt.Errorf("parsing secret JSON: %w", err)
	}
	return values, nil
}

func parse(get lookupFunc) (*Config, error) {
	cfg := &Config{
		Port:        withDefault(get("PORT"), "8080"),
		Environment: withDefault(get("ENVIRONMENT"), "development"),
		LogLevel:    withDefault(get("LOG_LEVEL"), "info"),
		GCPProject:  get("GCP_PROJECT"),
		SecretID:    withDefault(get("SECRET_ID"), "order-bridge"),

		AdminSecret:        get("ADMIN_SECRET"),
		OriginCEP:          withDefault(get("ORIGIN_CEP"), "51021-150"),
		CORSAllowedOrigins: splitList(get("CORS_ALLOWED_ORIGINS")),
		TLSFingerprint:     withDefault(get("OUTBOUND_TLS_FINGERPRINT"), "go"),

		Bling: BlingConfig{
			ClientID:           get("BLING_CLIENT_ID"),
			ClientSecret:       get("BLING_CLIENT_SECRET"),
			RefreshToken:       get("BLING_REFRESH_TOKEN"),
			BaseURL:            get("BLING_BASE_URL"),
			TokenURL:           get("BLING_TOKEN_URL"),
			DefaultProductCode: get("BLING_DEFAULT_PRODUCT_CODE"),
		},
		MercadoPago: MercadoPagoConfig{
			AccessToken:     get("MP_ACCESS_TOKEN"),
			WebhookSecret:   get("MP_WEBHOOK_SECRET"),
			BaseURL:         get("MP_BASE_URL"),
			NotificationURL: get("MP_NOTIFICATION_URL"),
			SuccessURL:      get("MP_SUCCESS_URL"),
			PendingURL:      get("MP_PENDING_URL"),
			FailureURL:      get("MP_FAILURE_URL"),
		},
		Carrier: CarrierConfig{
			BaseURL:   get("CARRIER_BASE_URL"),
			Token:     get("CARRIER_TOKEN"),
			UserAgent: get("CARRIER_USER_AGENT"),
		},
		Storage: StorageConfig{
			TokenStore:         get("TOKEN_STORE"),
			TokenFile:          get("TOKEN_FILE"),
			TokenKey:           withDefault(get("TOKEN_KEY"), "bling:tokens"),
			RedisURL:           get("REDIS_URL"),
			IdempotencyBackend: withDefault(get("IDEMPOTENCY_BACKEND"), BackendMemory),
			DatabaseURL:        get("DATABASE_URL"),
		},
		Kafka: KafkaConfig{
			Brokers:    get("KAFKA_BROKERS"),
			AlertTopic: withDefault(get("KAFKA_ALERT_TOPIC"), "order-bridge.alerts"),
		},
	}

	var errs []error
	durations := []struct {
		key string
		def time.Duration
		dst *time.Duration
	}{
		{"OUTBOUND_TIMEOUT", 10 * time.Second, &cfg.OutboundTimeout},
		{"REQUEST_BUDGET", 25 * time.Second, &cfg.RequestBudget},
		{"TOKEN_REFRESH_INTERVAL", 0, &cfg.TokenRefreshInterval},
		{"IDEMPOTENCY_TTL", 72 * time.Hour, &cfg.Storage.IdempotencyTTL},
	}
	for _, d := range durations {
		v, err := parseDuration(get(d.key), d.def)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", d.key, err))
		}
		*d.dst = v
	}

	if v := get("BLING_CUSTOMER_ID"); v != "" {
		id, err := strconv.ParseInt(v, 10, 64)
		if err != nil || id <= 0 {
			errs = append(errs, fmt.Errorf("BLING_CUSTOMER_ID must be a positive integer, got %q", v))
		}
		cfg.Bling.CustomerID = id
	}

	cfg.MercadoPago.Installments = 10
	if v := get("MP_INSTALLMENTS"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 1 {
			errs = append(errs, fmt.Errorf("MP_INSTALLMENTS must be a positive integer, got %q", v))
		}
		cfg.MercadoPago.Installments = n
	}

	cfg.MercadoPago.PixDiscountPercent = 10
	if v := get("MP_PIX_DISCOUNT_PERCENT"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 || n >= 100 {
			errs = append(errs, fmt.Errorf("MP_PIX_DISCOUNT_PERCENT must be between 0 and 99, got %q", v))
		}
		cfg.MercadoPago.PixDiscountPercent = n
	}

	if cfg.Storage.TokenStore == "" {
		switch {
		case cfg.Storage.RedisURL != "":
			cfg.Storage.TokenStore = BackendRedis
		case cfg.Storage.TokenFile != "":
			cfg.Storage.TokenStore = BackendFile
		default:
			cfg.Storage.TokenStore = BackendMemory
		}
	}

	if err := cfg.validate(); err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}
	return cfg, nil
}

// validate checks that settings are well-formed and consistent.
func (c *Config) validate() error {
	var errs []error

	if n, err := strconv.Atoi(c.Port); err != nil || n <= 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("PORT must be a valid port number, got %q", c.Port))
	}
	if c.Environment == "production" && c.GCPProject == "" {
		errs = append(errs, fmt.Errorf("GCP_PROJECT required in production environment"))
	}
	if digits(c.OriginCEP) != 8 {
		errs = append(errs, fmt.Errorf("ORIGIN_CEP must have 8 digits, got %q", c.OriginCEP))
	}
	switch c.TLSFingerprint {
	case "go", "chrome":
	default:
		errs = append(errs, fmt.Errorf("OUTBOUND_TLS_FINGERPRINT must be go or chrome, got %q", c.TLSFingerprint))
	}

	switch c.Storage.TokenStore {
	case BackendMemory:
	case BackendFile:
		if c.Storage.TokenFile == "" {
			errs = append(errs, fmt.Errorf("TOKEN_FILE required when TOKEN_STORE=file"))
		}
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL required when TOKEN_STORE=redis"))
		}
	default:
		errs = append(errs, fmt.Errorf("TOKEN_STORE must be memory, file or redis, got %q", c.Storage.TokenStore))
	}

	switch c.Storage.IdempotencyBackend {
	case BackendMemory:
	case BackendRedis:
		if c.Storage.RedisURL == "" {
			errs = append(errs, fmt.Errorf("REDIS_URL required when IDEMPOTENCY_BACKEND=redis"))
		}
	case BackendPostgres:
		if c.Storage.DatabaseURL == "" {
			errs = append(errs, fmt.Errorf("DATABASE_URL required when IDEMPOTENCY_BACKEND=postgres"))
		}
	default:
		errs = append(errs, fmt.Errorf("IDEMPOTENCY_BACKEND must be memory, redis or postgres, got %q", c.Storage.IdempotencyBackend))
	}

	urls := map[string]string{
		"BLING_BASE_URL":      c.Bling.BaseURL,
		"BLING_TOKEN_URL":     c.Bling.TokenURL,
		"MP_BASE_URL":         c.MercadoPago.BaseURL,
		"MP_NOTIFICATION_URL": c.MercadoPago.NotificationURL,
		"CARRIER_BASE_URL":    c.Carrier.BaseURL,
	}
	for key, v := range urls {
		if v == "" {
			continue
		}
		if u, err := url.Parse(v); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("%s must be an absolute URL, got %q", key, v))
		}
	}

	return errors.Join(errs...)
}

// Warnings lists integrations that will start disabled and why.
func (c *Config) Warnings() []string {
	var w []string
	if !c.Bling.Enabled() {
		w = append(w, "BLING_CLIENT_ID/BLING_CLIENT_SECRET not set: ERP orders disabled")
	} else if c.Bling.CustomerID == 0 {
		w = append(w, "BLING_CUSTOMER_ID not set: orders from payments will be rejected by validation")
	}
	if !c.MercadoPago.Enabled() {
		w = append(w, "MP_ACCESS_TOKEN not set: checkout and webhook disabled")
	} else if !c.MercadoPago.WebhookEnabled() {
		w = append(w, "MP_WEBHOOK_SECRET not set: webhook disabled")
	}
	if !c.Carrier.Enabled() {
		w = append(w, "CARRIER_TOKEN not set: every shipping quote is the fallback")
	}
	if c.AdminSecret == "" {
		w = append(w, "ADMIN_SECRET not set: admin routes reject every request")
	}
	return w
}

// IsProduction reports whether the service runs with production settings.
func (c *Config) IsProduction() bool {
	return c.Environment == "production"
}

// withDefault returns val if non-empty, otherwise defaultVal.
func withDefault(val, defaultVal string) string {
	if val != "" {
		return val
	}
	return defaultVal
}

// parseDuration accepts Go durations ("10s") or plain seconds ("10").
func parseDuration(v string, def time.Duration) (time.Duration, error) {
	if v == "" {
		return def, nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		if n < 0 {
			return def, fmt.Errorf("must not be negative")
		}
		return time.Duration(n) * time.Second, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return def, err
	}
	if d < 0 {
		return def, fmt.Errorf("must not be negative")
	}
	return d, nil
}

func splitList(v string) []string {
	var out []string
	for _, s := range strings.Split(v, ",") {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}

func digits(s string) int {
	n := 0
	for _, r := range s {
		switch {
		case r >= '0' && r <= '9':
			n++
		case r == '-' || r == ' ' || r == '.':
		default:
			return -1
		}
	}
	return n
}

func mapLookup(values map[string]string) lookupFunc {
	return func(key string) string { return values[key] }
}

// overlay returns the first non-empty value among the lookups.
func overlay(lookups ...lookupFunc) lookupFunc {
	return func(key string) string {
		for _, l := range lookups {
			if v := l(key); v != "" {
				return v
			}
		}
		return ""
	}
}
