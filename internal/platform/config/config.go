package config

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"
)

const (
	defaultEnvFile           = ".env"
	defaultPort              = "8080"
	defaultReadTimeout       = 15 * time.Second
	defaultWriteTimeout      = 30 * time.Second
	defaultIdleTimeout       = 120 * time.Second
	defaultShutdownTimeout   = 10 * time.Second
	defaultEnvironment       = "local"
	defaultCurrency          = "gbp"
	defaultLocalBaseURL      = "http://localhost:3000"
	defaultRedisAddr         = "localhost:6379"
	defaultCartTTL           = 30 * 24 * time.Hour
	defaultCatalogTTL        = 5 * time.Minute
	defaultCheckoutTopic     = "checkout-sessions"
	defaultSessionCookie     = "sf_session"
	defaultSessionIdleTTL    = 2 * time.Hour
	defaultSessionSweep      = 5 * time.Minute
	defaultStockTimeout      = 10 * time.Second
	defaultShippingCountries = "GB,US,CA,AU,DE,FR,IE,NL"
)

// Config captures all runtime configuration organised by concern.
type Config struct {
	Environment string
	Server      ServerConfig
	Firebase    FirebaseConfig
	Firestore   FirestoreConfig
	PSP         PSPConfig
	Storefront  StorefrontConfig
	Redis       RedisConfig
	PubSub      PubSubConfig
	Session     SessionConfig
}

// ServerConfig configures HTTP server parameters.
type ServerConfig struct {
	Port            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration
}

// FirebaseConfig stores Firebase project settings.
type FirebaseConfig struct {
	ProjectID       string
	CredentialsFile string
}

// FirestoreConfig stores CMS database parameters.
type FirestoreConfig struct {
	ProjectID    string
	EmulatorHost string
}

// PSPConfig holds payment processor credentials.
type PSPConfig struct {
	StripeSecretKey string
	StripeAccountID string
}

// StorefrontConfig controls checkout and catalog behaviour.
type StorefrontConfig struct {
	BaseURL             string
	Currency            string
	ShippingCountries   []string
	AllowPromotionCodes bool
	StockFetchTimeout   time.Duration
}

// RedisConfig configures the cart persistence and catalog cache.
type RedisConfig struct {
	Addr       string
	Password   string
	DB         int
	CartTTL    time.Duration
	CatalogTTL time.Duration
}

// PubSubConfig configures checkout event publishing. An empty topic disables publishing.
type PubSubConfig struct {
	ProjectID     string
	CheckoutTopic string
}

// SessionConfig configures visitor sessions.
type SessionConfig struct {
	CookieName    string
	SigningSecret string
	CookieSecure  bool
	IdleTTL       time.Duration
	SweepInterval time.Duration
}

// Option customises Load behaviour.
type Option func(*loaderOptions)

type loaderOptions struct {
	envFile               string
	envMap                map[string]string
	useSystemEnv          bool
	secret                SecretResolver
	requiredSecrets       []string
	panicOnMissingSecrets bool
}

// WithEnvFile overrides the .env file path used for local overrides.
func WithEnvFile(path string) Option {
	return func(o *loaderOptions) {
		o.envFile = path
	}
}

// WithEnvMap injects explicit values which take precedence over the system environment.
func WithEnvMap(values map[string]string) Option {
	return func(o *loaderOptions) {
		o.envMap = values
	}
}

// WithoutSystemEnv disables reading from the process environment.
func WithoutSystemEnv() Option {
	return func(o *loaderOptions) {
		o.useSystemEnv = false
	}
}

// WithSecretResolver sets the resolver used for secret:// and sm:// references.
func WithSecretResolver(resolver SecretResolver) Option {
	return func(o *loaderOptions) {
		o.secret = resolver
	}
}

// WithRequiredSecrets marks config fields (e.g. "PSP.StripeSecretKey") as mandatory.
func WithRequiredSecrets(names ...string) Option {
	return func(o *loaderOptions) {
		o.requiredSecrets = append(o.requiredSecrets, names...)
	}
}

// WithPanicOnMissingSecrets causes Load to panic when required secrets are missing.
func WithPanicOnMissingSecrets() Option {
	return func(o *loaderOptions) {
		o.panicOnMissingSecrets = true
	}
}

// DefaultRequiredSecrets lists the secrets without which the service refuses to start.
func DefaultRequiredSecrets() []string {
	return []string{"PSP.StripeSecretKey", "Session.SigningSecret"}
}

// Load assembles configuration from defaults, .env overrides, the environment and Secret Manager.
func Load(ctx context.Context, opts ...Option) (Config, error) {
	options := loaderOptions{
		envFile:      defaultEnvFile,
		useSystemEnv: true,
		secret: SecretResolverFunc(func(ctx context.Context, ref string) (string, error) {
			return "", &SecretError{Ref: ref, Err: errSecretResolverNotConfigured}
		}),
	}
	for _, opt := range opts {
		opt(&options)
	}

	dotEnv, err := loadDotEnv(options.envFile)
	if err != nil {
		return Config{}, err
	}
	lookup := layeredLookup(options, dotEnv)

	cfg := Config{
		Environment: strings.ToLower(stringWithDefault(lookup, "STOREFRONT_ENVIRONMENT", defaultEnvironment)),
		Server: ServerConfig{
			Port:            stringWithDefault(lookup, "PORT", stringWithDefault(lookup, "STOREFRONT_SERVER_PORT", defaultPort)),
			ReadTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_READ_TIMEOUT", defaultReadTimeout),
			WriteTimeout:    durationWithDefault(lookup, "STOREFRONT_SERVER_WRITE_TIMEOUT", defaultWriteTimeout),
			IdleTimeout:     durationWithDefault(lookup, "STOREFRONT_SERVER_IDLE_TIMEOUT", defaultIdleTimeout),
			ShutdownTimeout: durationWithDefault(lookup, "STOREFRONT_SERVER_SHUTDOWN_TIMEOUT", defaultShutdownTimeout),
		},
		Firebase: FirebaseConfig{
			ProjectID:       stringWithDefault(lookup, "STOREFRONT_FIREBASE_PROJECT_ID", ""),
			CredentialsFile: stringWithDefault(lookup, "STOREFRONT_FIREBASE_CREDENTIALS_FILE", ""),
		},
		Firestore: FirestoreConfig{
			ProjectID:    stringWithDefault(lookup, "STOREFRONT_FIRESTORE_PROJECT_ID", ""),
			EmulatorHost: stringWithDefault(lookup, "STOREFRONT_FIRESTORE_EMULATOR_HOST", ""),
		},
		PSP: PSPConfig{
			StripeSecretKey: stringWithDefault(lookup, "STOREFRONT_STRIPE_SECRET_KEY", ""),
			StripeAccountID: stringWithDefault(lookup, "STOREFRONT_STRIPE_ACCOUNT_ID", ""),
		},
		Storefront: StorefrontConfig{
			BaseURL:             resolveBaseURL(lookup),
			Currency:            strings.ToLower(stringWithDefault(lookup, "STOREFRONT_CURRENCY", defaultCurrency)),
			ShippingCountries:   upperCSV(stringWithDefault(lookup, "STOREFRONT_SHIPPING_COUNTRIES", defaultShippingCountries)),
			AllowPromotionCodes: boolWithDefault(lookup, "STOREFRONT_ALLOW_PROMOTION_CODES", true),
			StockFetchTimeout:   durationWithDefault(lookup, "STOREFRONT_STOCK_FETCH_TIMEOUT", defaultStockTimeout),
		},
		Redis: RedisConfig{
			Addr:       stringWithDefault(lookup, "STOREFRONT_REDIS_ADDR", defaultRedisAddr),
			Password:   stringWithDefault(lookup, "STOREFRONT_REDIS_PASSWORD", ""),
			DB:         intWithDefault(lookup, "STOREFRONT_REDIS_DB", 0),
			CartTTL:    durationWithDefault(lookup, "STOREFRONT_CART_TTL", defaultCartTTL),
			CatalogTTL: durationWithDefault(lookup, "STOREFRONT_CATALOG_CACHE_TTL", defaultCatalogTTL),
		},
		PubSub: PubSubConfig{
			ProjectID:     stringWithDefault(lookup, "STOREFRONT_PUBSUB_PROJECT_ID", ""),
			CheckoutTopic: stringWithDefault(lookup, "STOREFRONT_PUBSUB_CHECKOUT_TOPIC", defaultCheckoutTopic),
		},
		Session: SessionConfig{
			CookieName:    stringWithDefault(lookup, "STOREFRONT_SESSION_COOKIE", defaultSessionCookie),
			SigningSecret: stringWithDefault(lookup, "STOREFRONT_SESSION_SECRET", ""),
			IdleTTL:       durationWithDefault(lookup, "STOREFRONT_SESSION_IDLE_TTL", defaultSessionIdleTTL),
			SweepInterval: durationWithDefault(lookup, "STOREFRONT_SESSION_SWEEP_INTERVAL", defaultSessionSweep),
		},
	}

	if cfg.Firestore.ProjectID == "" {
		cfg.Firestore.ProjectID = cfg.Firebase.ProjectID
	}
	if cfg.PubSub.ProjectID == "" {
		cfg.PubSub.ProjectID = cfg.Firestore.ProjectID
	}
	cfg.Session.CookieSecure = boolWithDefault(lookup, "STOREFRONT_SESSION_COOKIE_SECURE", strings.HasPrefix(cfg.Storefront.BaseURL, "https://"))

	resolved := make(map[string]string)
	secretFields := []struct {
		name  string
		field *string
	}{
		{"PSP.StripeSecretKey", &cfg.PSP.StripeSecretKey},
		{"Session.SigningSecret", &cfg.Session.SigningSecret},
		{"Redis.Password", &cfg.Redis.Password},
	}
	for _, target := range secretFields {
		value, err := resolveSecret(ctx, *target.field, options.secret)
		if err != nil {
			return Config{}, err
		}
		*target.field = value
		resolved[target.name] = strings.TrimSpace(value)
	}

	if missing := findMissingSecrets(options.requiredSecrets, resolved); missing != nil {
		if options.panicOnMissingSecrets {
			fmt.Fprintf(os.Stderr, "config: %s\n", missing.Error())
			panic(missing)
		}
		return Config{}, missing
	}

	if err := validateConfig(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// resolveBaseURL prefers an explicit URL, then the deployment host, then local development.
func resolveBaseURL(lookup func(string) (string, bool)) string {
	if explicit := stringWithDefault(lookup, "STOREFRONT_BASE_URL", ""); explicit != "" {
		return strings.TrimRight(strings.TrimSpace(explicit), "/")
	}
	for _, key := range []string{"STOREFRONT_DEPLOYMENT_HOST", "VERCEL_URL"} {
		if host := strings.TrimSpace(stringWithDefault(lookup, key, "")); host != "" {
			host = strings.TrimPrefix(strings.TrimPrefix(host, "https://"), "http://")
			return "https://" + strings.TrimRight(host, "/")
		}
	}
	return defaultLocalBaseURL
}

func validateConfig(cfg Config) error {
	var missing []string

	if cfg.Server.Port == "" {
		missing = append(missing, "Server.Port")
	}
	if cfg.Firebase.ProjectID == "" {
		missing = append(missing, "Firebase.ProjectID")
	}
	if cfg.Firestore.ProjectID == "" {
		missing = append(missing, "Firestore.ProjectID")
	}
	if strings.TrimSpace(cfg.PSP.StripeSecretKey) == "" {
		missing = append(missing, "PSP.StripeSecretKey")
	}
	if strings.TrimSpace(cfg.Session.SigningSecret) == "" {
		missing = append(missing, "Session.SigningSecret")
	}
	if len(cfg.Storefront.Currency) != 3 {
		missing = append(missing, "Storefront.Currency")
	}
	if cfg.Redis.CartTTL <= 0 {
		missing = append(missing, "Redis.CartTTL")
	}
	if cfg.Session.IdleTTL <= 0 {
		missing = append(missing, "Session.IdleTTL")
	}

	if len(missing) > 0 {
		return &ValidationError{fields: missing}
	}
	return nil
}
