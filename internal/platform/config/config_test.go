package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func baseEnv() map[string]string {
	return map[string]string{
		"STOREFRONT_FIREBASE_PROJECT_ID": "sf-dev",
		"STOREFRONT_STRIPE_SECRET_KEY":   "sk_test_123",
		"STOREFRONT_SESSION_SECRET":      "session-secret",
	}
}

func TestLoadWithDefaults(t *testing.T) {
	cfg, err := Load(context.Background(), WithEnvMap(baseEnv()), WithoutSystemEnv(), WithEnvFile(""))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "8080" {
		t.Errorf("expected default port 8080, got %s", cfg.Server.Port)
	}
	if cfg.Server.ReadTimeout != 15*time.Second {
		t.Errorf("unexpected read timeout: %s", cfg.Server.ReadTimeout)
	}
	if cfg.Firestore.ProjectID != "sf-dev" {
		t.Errorf("expected firestore project to default to firebase project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PubSub.ProjectID != "sf-dev" {
		t.Errorf("expected pubsub project to follow firestore, got %s", cfg.PubSub.ProjectID)
	}
	if cfg.Storefront.BaseURL != "http://localhost:3000" {
		t.Errorf("expected local base url, got %s", cfg.Storefront.BaseURL)
	}
	if cfg.Storefront.Currency != "gbp" {
		t.Errorf("expected gbp, got %s", cfg.Storefront.Currency)
	}
	if len(cfg.Storefront.ShippingCountries) == 0 || cfg.Storefront.ShippingCountries[0] != "GB" {
		t.Errorf("unexpected shipping countries %v", cfg.Storefront.ShippingCountries)
	}
	if !cfg.Storefront.AllowPromotionCodes {
		t.Errorf("expected promotion codes enabled by default")
	}
	if cfg.Redis.CartTTL != defaultCartTTL {
		t.Errorf("unexpected cart ttl %s", cfg.Redis.CartTTL)
	}
	if cfg.Session.CookieName != defaultSessionCookie {
		t.Errorf("unexpected cookie name %s", cfg.Session.CookieName)
	}
	if cfg.Session.CookieSecure {
		t.Errorf("expected insecure cookie on http base url")
	}
	if cfg.Environment != "local" {
		t.Errorf("expected local environment, got %s", cfg.Environment)
	}
}

func TestLoadWithOverridesAndSecrets(t *testing.T) {
	env := map[string]string{
		"PORT":                             "9090",
		"STOREFRONT_SERVER_IDLE_TIMEOUT":   "2m",
		"STOREFRONT_ENVIRONMENT":           "Prod",
		"STOREFRONT_FIREBASE_PROJECT_ID":   "sf-prod",
		"STOREFRONT_FIRESTORE_PROJECT_ID":  "sf-cms",
		"STOREFRONT_STRIPE_SECRET_KEY":     "secret://stripe/key",
		"STOREFRONT_SESSION_SECRET":        "sm://session/signing",
		"STOREFRONT_REDIS_PASSWORD":        "secret://redis/password",
		"STOREFRONT_REDIS_DB":              "3",
		"STOREFRONT_SHIPPING_COUNTRIES":    "gb, us",
		"STOREFRONT_ALLOW_PROMOTION_CODES": "false",
		"STOREFRONT_CURRENCY":              "USD",
		"STOREFRONT_BASE_URL":              "https://shop.example.com/",
		"STOREFRONT_SESSION_IDLE_TTL":      "30m",
		"STOREFRONT_PUBSUB_CHECKOUT_TOPIC": "orders",
	}

	secrets := map[string]string{
		"secret://stripe/key":      "sk_live_abc",
		"secret://session/signing": "signing-key",
		"secret://redis/password":  "redis-pass",
	}
	resolver := SecretResolverFunc(func(_ context.Context, ref string) (string, error) {
		if v, ok := secrets[ref]; ok {
			return v, nil
		}
		return "", errors.New("not found")
	})

	cfg, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""), WithSecretResolver(resolver))
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if cfg.Server.Port != "9090" {
		t.Errorf("expected port 9090, got %s", cfg.Server.Port)
	}
	if cfg.Server.IdleTimeout != 2*time.Minute {
		t.Errorf("unexpected idle timeout: %s", cfg.Server.IdleTimeout)
	}
	if cfg.Environment != "prod" {
		t.Errorf("expected prod, got %s", cfg.Environment)
	}
	if cfg.Firestore.ProjectID != "sf-cms" {
		t.Errorf("expected explicit firestore project, got %s", cfg.Firestore.ProjectID)
	}
	if cfg.PSP.StripeSecretKey != "sk_live_abc" {
		t.Errorf("expected resolved stripe key, got %s", cfg.PSP.StripeSecretKey)
	}
	if cfg.Session.SigningSecret != "signing-key" {
		t.Errorf("expected resolved signing secret, got %s", cfg.Session.SigningSecret)
	}
	if cfg.Redis.Password != "redis-pass" || cfg.Redis.DB != 3 {
		t.Errorf("unexpected redis config %+v", cfg.Redis)
	}
	if got := cfg.Storefront.ShippingCountries; len(got) != 2 || got[1] != "US" {
		t.Errorf("unexpected shipping countries %v", got)
	}
	if cfg.Storefront.AllowPromotionCodes {
		t.Errorf("expected promotion codes disabled")
	}
	if cfg.Storefront.Currency != "usd" {
		t.Errorf("expected lower-cased currency, got %s", cfg.Storefront.Currency)
	}
	if cfg.Storefront.BaseURL != "https://shop.example.com" {
		t.Errorf("expected trimmed base url, got %s", cfg.Storefront.BaseURL)
	}
	if !cfg.Session.CookieSecure {
		t.Errorf("expected secure cookie on https base url")
	}
	if cfg.Session.IdleTTL != 30*time.Minute {
		t.Errorf("unexpected idle ttl %s", cfg.Session.IdleTTL)
	}
	if cfg.PubSub.CheckoutTopic != "orders" {
		t.Errorf("unexpected topic %s", cfg.PubSub.CheckoutTopic)
	}
}

func TestResolveBaseURLFallbacks(t *testing.T) {
	cases := []struct {
		name string
		env  map[string]string
		want string
	}{
		{"explicit", map[string]string{"STOREFRONT_BASE_URL": "https://a.example"}, "https://a.example"},
		{"deployment host", map[string]string{"STOREFRONT_DEPLOYMENT_HOST": "b.example"}, "https://b.example"},
		{"vercel", map[string]string{"VERCEL_URL": "c.vercel.app"}, "https://c.vercel.app"},
		{"local", map[string]string{}, "http://localhost:3000"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			lookup := func(key string) (string, bool) {
				v, ok := tc.env[key]
				return v, ok
			}
			if got := resolveBaseURL(lookup); got != tc.want {
				t.Fatalf("expected %s, got %s", tc.want, got)
			}
		})
	}
}

func TestLoadDotEnvFallback(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "# local\nexport STOREFRONT_SERVER_PORT=7070\nSTOREFRONT_FIREBASE_PROJECT_ID=\"sf-dot\"\nSTOREFRONT_STRIPE_SECRET_KEY=sk_dot\nSTOREFRONT_SESSION_SECRET=dot\n"
	if err := os.WriteFile(envPath, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write dotenv file: %v", err)
	}

	cfg, err := Load(context.Background(), WithEnvFile(envPath), WithoutSystemEnv())
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}
	if cfg.Server.Port != "7070" {
		t.Errorf("expected port from dotenv 7070, got %s", cfg.Server.Port)
	}
	if cfg.Firebase.ProjectID != "sf-dot" {
		t.Errorf("expected firebase project from dotenv, got %s", cfg.Firebase.ProjectID)
	}
}

func TestLoadMissingRequired(t *testing.T) {
	_, err := Load(context.Background(), WithEnvMap(map[string]string{}), WithoutSystemEnv(), WithEnvFile(""))
	var validation *ValidationError
	if !errors.As(err, &validation) {
		t.Fatalf("expected ValidationError, got %T", err)
	}
	fields := validation.Fields()
	want := map[string]bool{"Firebase.ProjectID": false, "PSP.StripeSecretKey": false, "Session.SigningSecret": false}
	for _, f := range fields {
		if _, ok := want[f]; ok {
			want[f] = true
		}
	}
	for f, seen := range want {
		if !seen {
			t.Errorf("expected %s in missing fields %v", f, fields)
		}
	}
}

func TestLoadSecretResolverError(t *testing.T) {
	env := baseEnv()
	env["STOREFRONT_STRIPE_SECRET_KEY"] = "secret://missing"

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""))
	var secretErr *SecretError
	if !errors.As(err, &secretErr) {
		t.Fatalf("expected SecretError, got %T", err)
	}
	if secretErr.Ref != "secret://missing" {
		t.Errorf("unexpected secret ref %s", secretErr.Ref)
	}
}

func TestEnvironmentValuesMergesSources(t *testing.T) {
	dir := t.TempDir()
	envPath := filepath.Join(dir, ".env.test")
	content := "STOREFRONT_FIREBASE_PROJECT_ID=dot-project\nSTOREFRONT_SECRET_FALLBACK_FILE=.dot.local\n"
	if err := os.WriteFile(envPath, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing env file: %v", err)
	}

	t.Setenv("STOREFRONT_FIREBASE_PROJECT_ID", "os-project")
	t.Setenv("STOREFRONT_SECRET_PROJECT_IDS", "prod=project-prod")

	values, err := EnvironmentValues(WithEnvFile(envPath), WithEnvMap(map[string]string{
		"STOREFRONT_FIREBASE_PROJECT_ID": "override-project",
	}))
	if err != nil {
		t.Fatalf("EnvironmentValues returned error: %v", err)
	}
	if got := values["STOREFRONT_FIREBASE_PROJECT_ID"]; got != "override-project" {
		t.Fatalf("expected override project, got %s", got)
	}
	if got := values["STOREFRONT_SECRET_FALLBACK_FILE"]; got != ".dot.local" {
		t.Fatalf("expected dotenv fallback file, got %s", got)
	}
	if got := values["STOREFRONT_SECRET_PROJECT_IDS"]; got != "prod=project-prod" {
		t.Fatalf("expected system env project map, got %s", got)
	}
}

func TestLoadMissingRequiredSecrets(t *testing.T) {
	env := baseEnv()
	delete(env, "STOREFRONT_SESSION_SECRET")

	_, err := Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets(DefaultRequiredSecrets()...),
	)
	var missing *MissingSecretsError
	if !errors.As(err, &missing) {
		t.Fatalf("expected MissingSecretsError, got %T", err)
	}
	if got := missing.Names(); len(got) != 1 || got[0] != "Session.SigningSecret" {
		t.Fatalf("unexpected missing names %v", got)
	}
	if got := missing.RedactedNames(); len(got) != 1 || got[0] == "Session.SigningSecret" {
		t.Fatalf("expected redacted name, got %v", got)
	}
}

func TestLoadMissingRequiredSecretsPanic(t *testing.T) {
	env := baseEnv()
	delete(env, "STOREFRONT_STRIPE_SECRET_KEY")

	defer func() {
		rec := recover()
		missing, ok := rec.(*MissingSecretsError)
		if !ok {
			t.Fatalf("expected MissingSecretsError panic, got %T", rec)
		}
		if names := missing.Names(); len(names) != 1 || names[0] != "PSP.StripeSecretKey" {
			t.Fatalf("unexpected missing secrets %v", names)
		}
	}()

	_, _ = Load(context.Background(), WithEnvMap(env), WithoutSystemEnv(), WithEnvFile(""),
		WithRequiredSecrets(DefaultRequiredSecrets()...),
		WithPanicOnMissingSecrets(),
	)
}
