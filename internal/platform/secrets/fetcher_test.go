package secrets

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.uber.org/zap"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const stripeResource = "projects/test/secrets/stripe_secret_key/versions/latest"

func writeFallback(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), ".secrets.local")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("failed writing fallback file: %v", err)
	}
	return path
}

func TestResolveCachesRemoteSecret(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "remote-secret"

	fetcher, err := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"), WithLogger(zap.NewNop()))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	for i := 0; i < 2; i++ {
		got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key")
		if err != nil {
			t.Fatalf("Resolve returned error: %v", err)
		}
		if got != "remote-secret" {
			t.Fatalf("expected remote-secret, got %s", got)
		}
	}
	if calls := client.callCount(stripeResource); calls != 1 {
		t.Fatalf("expected remote fetch once, got %d", calls)
	}
}

func TestResolveAcceptsLegacyScheme(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "remote-secret"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"))
	got, err := fetcher.Resolve(ctx, "sm://stripe_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "remote-secret" {
		t.Fatalf("expected remote-secret, got %s", got)
	}
}

func TestResolveHonoursVersionAndProjectParameters(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	resource := "projects/other/secrets/stripe_secret_key/versions/5"
	client.values[resource] = "version-5"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"))
	got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key?version=5&project=other")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "version-5" {
		t.Fatalf("expected version-5, got %s", got)
	}
}

func TestResolveFallsBackWhenSecretManagerUnavailable(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.PermissionDenied, "denied")

	fetcher, _ := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithFallbackFile(writeFallback(t, "# local\nsecret://stripe_secret_key=local-secret\n")),
	)
	got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "local-secret" {
		t.Fatalf("expected fallback secret local-secret, got %s", got)
	}
}

func TestResolveDoesNotFallbackOnNotFound(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.errors[stripeResource] = status.Error(codes.NotFound, "missing")

	fetcher, _ := NewFetcher(ctx,
		WithSecretManagerClient(client),
		WithDefaultProject("test"),
		WithFallbackFile(writeFallback(t, "secret://stripe_secret_key=local-secret\n")),
	)
	if _, err := fetcher.Resolve(ctx, "secret://stripe_secret_key"); err == nil {
		t.Fatal("expected error when secret is missing")
	}
}

func TestInvalidateForcesRefetch(t *testing.T) {
	ctx := context.Background()
	client := newFakeSecretClient()
	client.values[stripeResource] = "v1"

	fetcher, _ := NewFetcher(ctx, WithSecretManagerClient(client), WithDefaultProject("test"))
	if _, err := fetcher.Resolve(ctx, "secret://stripe_secret_key"); err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	client.set(stripeResource, "v2")
	fetcher.Invalidate("secret://stripe_secret_key")

	got, err := fetcher.Resolve(ctx, "secret://stripe_secret_key")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if got != "v2" {
		t.Fatalf("expected rotated value v2, got %s", got)
	}
}

func TestNewFetcherWithoutCredentialsUsesFallback(t *testing.T) {
	original := secretManagerClientFactory
	secretManagerClientFactory = func(context.Context, ...option.ClientOption) (*secretmanager.Client, error) {
		return nil, errors.New("no credentials")
	}
	t.Cleanup(func() { secretManagerClientFactory = original })

	fetcher, err := NewFetcher(context.Background(), WithFallbackFile(writeFallback(t, "secret://session_secret=local\n")))
	if err != nil {
		t.Fatalf("NewFetcher returned error: %v", err)
	}
	defer fetcher.Close()

	value, err := fetcher.Resolve(context.Background(), "secret://session_secret")
	if err != nil {
		t.Fatalf("Resolve returned error: %v", err)
	}
	if value != "local" {
		t.Fatalf("expected local secret, got %s", value)
	}
}

func TestParseReferenceRejectsInvalid(t *testing.T) {
	for _, raw := range []string{"", "https://example.com", "secret://"} {
		if _, err := parseReference(raw); err == nil {
			t.Fatalf("expected error for %q", raw)
		}
	}
}

type fakeSecretClient struct {
	mu      sync.Mutex
	values  map[string]string
	errors  map[string]error
	counter map[string]int
}

func newFakeSecretClient() *fakeSecretClient {
	return &fakeSecretClient{
		values:  make(map[string]string),
		errors:  make(map[string]error),
		counter: make(map[string]int),
	}
}

func (f *fakeSecretClient) AccessSecretVersion(_ context.Context, req *secretmanagerpb.AccessSecretVersionRequest, _ ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	name := req.GetName()
	f.counter[name]++
	if err := f.errors[name]; err != nil {
		return nil, err
	}
	if value, ok := f.values[name]; ok {
		return &secretmanagerpb.AccessSecretVersionResponse{
			Payload: &secretmanagerpb.SecretPayload{Data: []byte(value)},
		}, nil
	}
	return nil, status.Error(codes.NotFound, "not found")
}

func (f *fakeSecretClient) set(name, value string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.values[name] = value
}

func (f *fakeSecretClient) Close() error { return nil }

func (f *fakeSecretClient) callCount(name string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.counter[name]
}
