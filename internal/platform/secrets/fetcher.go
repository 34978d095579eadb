// Package secrets resolves secret:// references through Google Secret Manager with a local fallback file.
package secrets

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	secretmanager "cloud.google.com/go/secretmanager/apiv1"
	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
	"github.com/googleapis/gax-go/v2"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

const (
	defaultFallbackPath = ".secrets.local"
	metricNamespace     = "github.com/aistore/storefront/internal/platform/secrets"
)

var secretManagerClientFactory = func(ctx context.Context, opts ...option.ClientOption) (*secretmanager.Client, error) {
	return secretmanager.NewClient(ctx, opts...)
}

type secretManagerClient interface {
	AccessSecretVersion(ctx context.Context, req *secretmanagerpb.AccessSecretVersionRequest, opts ...gax.CallOption) (*secretmanagerpb.AccessSecretVersionResponse, error)
	Close() error
}

// Fetcher resolves secret references, caching every value it has seen for the life of the process.
type Fetcher struct {
	client     secretManagerClient
	ownsClient bool
	logger     *zap.Logger
	project    string

	fallbackPath string
	fallbackOnce sync.Once
	fallback     map[string]string
	fallbackErr  error

	group singleflight.Group
	mu    sync.RWMutex
	cache map[string]string

	latency   metric.Float64Histogram
	cacheHits metric.Int64Counter
}

type fetcherConfig struct {
	logger       *zap.Logger
	project      string
	fallbackPath string
	meter        metric.Meter
	client       secretManagerClient
	clientOpts   []option.ClientOption
}

// Option customises Fetcher construction.
type Option func(*fetcherConfig)

// WithLogger sets the logger used for diagnostic output.
func WithLogger(logger *zap.Logger) Option {
	return func(cfg *fetcherConfig) { cfg.logger = logger }
}

// WithDefaultProject sets the project used when a reference carries no project parameter.
func WithDefaultProject(projectID string) Option {
	return func(cfg *fetcherConfig) { cfg.project = strings.TrimSpace(projectID) }
}

// WithFallbackFile overrides the path to the local fallback secrets file.
func WithFallbackFile(path string) Option {
	return func(cfg *fetcherConfig) { cfg.fallbackPath = strings.TrimSpace(path) }
}

// WithMeter injects an OpenTelemetry meter.
func WithMeter(m metric.Meter) Option {
	return func(cfg *fetcherConfig) { cfg.meter = m }
}

// WithSecretManagerClient injects a preconfigured client.
func WithSecretManagerClient(client secretManagerClient) Option {
	return func(cfg *fetcherConfig) { cfg.client = client }
}

// WithClientOptions forwards options when constructing the Secret Manager client.
func WithClientOptions(opts ...option.ClientOption) Option {
	return func(cfg *fetcherConfig) { cfg.clientOpts = append(cfg.clientOpts, opts...) }
}

// NewFetcher builds a Fetcher. A missing Secret Manager client is not an error; only the fallback file is consulted then.
func NewFetcher(ctx context.Context, opts ...Option) (*Fetcher, error) {
	cfg := fetcherConfig{logger: zap.NewNop(), fallbackPath: defaultFallbackPath}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.logger == nil {
		cfg.logger = zap.NewNop()
	}
	meter := cfg.meter
	if meter == nil {
		meter = otel.GetMeterProvider().Meter(metricNamespace)
	}

	f := &Fetcher{
		logger:       cfg.logger,
		project:      cfg.project,
		fallbackPath: cfg.fallbackPath,
		cache:        make(map[string]string),
	}

	latency, err := meter.Float64Histogram("secrets.fetch.latency",
		metric.WithUnit("ms"),
		metric.WithDescription("Latency in milliseconds for secret fetch attempts"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register latency metric", zap.Error(err))
	} else {
		f.latency = latency
	}
	cacheHits, err := meter.Int64Counter("secrets.fetch.cache_hits",
		metric.WithDescription("Count of cache hits when resolving secrets"),
	)
	if err != nil {
		cfg.logger.Warn("secrets: unable to register cache hit metric", zap.Error(err))
	} else {
		f.cacheHits = cacheHits
	}

	if cfg.client != nil {
		f.client = cfg.client
		return f, nil
	}
	client, err := secretManagerClientFactory(ctx, cfg.clientOpts...)
	if err != nil {
		cfg.logger.Warn("secrets: secret manager client unavailable; operating in fallback mode", zap.Error(err))
		return f, nil
	}
	f.client = client
	f.ownsClient = true
	return f, nil
}

// Close releases the Secret Manager client when the fetcher created it.
func (f *Fetcher) Close() error {
	if f.ownsClient && f.client != nil {
		return f.client.Close()
	}
	return nil
}

// Resolve returns the value for ref, consulting the cache, Secret Manager and the fallback file in turn.
func (f *Fetcher) Resolve(ctx context.Context, raw string) (string, error) {
	start := time.Now()
	ref, err := parseReference(raw)
	if err != nil {
		return "", err
	}

	f.mu.RLock()
	value, ok := f.cache[ref.key()]
	f.mu.RUnlock()
	if ok {
		if f.cacheHits != nil {
			f.cacheHits.Add(ctx, 1, metric.WithAttributes(attribute.String("secret", ref.masked())))
		}
		f.recordLatency(ctx, start, "cache", nil)
		return value, nil
	}

	result, err, _ := f.group.Do(ref.key(), func() (any, error) {
		value, source, err := f.load(ctx, ref)
		f.recordLatency(ctx, start, source, err)
		if err != nil {
			return "", err
		}
		f.mu.Lock()
		f.cache[ref.key()] = value
		f.mu.Unlock()
		return value, nil
	})
	if err != nil {
		return "", err
	}
	return result.(string), nil
}

// Invalidate drops every cached version of ref.
func (f *Fetcher) Invalidate(raw string) {
	ref, err := parseReference(raw)
	if err != nil {
		return
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	for key := range f.cache {
		if strings.HasPrefix(key, ref.canonical+"#") {
			delete(f.cache, key)
		}
	}
}

func (f *Fetcher) load(ctx context.Context, ref reference) (string, string, error) {
	project := ref.project
	if project == "" {
		project = f.project
	}
	if project != "" && f.client != nil {
		name := fmt.Sprintf("projects/%s/secrets/%s/versions/%s", project, ref.name, ref.version)
		resp, err := f.client.AccessSecretVersion(ctx, &secretmanagerpb.AccessSecretVersionRequest{Name: name})
		switch {
		case err == nil && resp.GetPayload() != nil:
			return string(resp.GetPayload().GetData()), "remote", nil
		case err == nil:
			return "", "error", fmt.Errorf("secrets: empty payload for %s", name)
		case !isFallbackError(err):
			return "", "error", fmt.Errorf("secrets: fetch failed for %s: %w", ref.canonical, err)
		}
		f.logger.Debug("secrets: falling back to local secrets", zap.String("secret", ref.masked()), zap.Error(err))
	}

	f.fallbackOnce.Do(f.readFallback)
	if f.fallbackErr != nil {
		return "", "error", f.fallbackErr
	}
	if value, ok := f.fallback[ref.key()]; ok {
		return value, "fallback", nil
	}
	if value, ok := f.fallback[ref.canonical]; ok {
		return value, "fallback", nil
	}
	return "", "error", fmt.Errorf("secrets: fallback value not found for %s", ref.canonical)
}

func (f *Fetcher) readFallback() {
	f.fallback = map[string]string{}
	if f.fallbackPath == "" {
		return
	}
	path, err := filepath.Abs(f.fallbackPath)
	if err != nil {
		path = f.fallbackPath
	}
	file, err := os.Open(path)
	if errors.Is(err, os.ErrNotExist) {
		return
	}
	if err != nil {
		f.fallbackErr = fmt.Errorf("secrets: unable to open fallback file %s: %w", path, err)
		return
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		key, value, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}
		ref, err := parseReference(key)
		if err != nil {
			continue
		}
		value = strings.TrimSpace(value)
		if strings.Contains(key, "version=") {
			f.fallback[ref.key()] = value
			continue
		}
		f.fallback[ref.canonical] = value
	}
	if err := scanner.Err(); err != nil {
		f.fallbackErr = fmt.Errorf("secrets: failed reading %s: %w", path, err)
	}
}

func (f *Fetcher) recordLatency(ctx context.Context, start time.Time, source string, err error) {
	if f.latency == nil {
		return
	}
	attrs := []attribute.KeyValue{attribute.String("source", source)}
	if err != nil {
		attrs = append(attrs, attribute.Bool("error", true))
	}
	f.latency.Record(ctx, float64(time.Since(start))/float64(time.Millisecond), metric.WithAttributes(attrs...))
}

func isFallbackError(err error) bool {
	switch status.Code(err) {
	case codes.PermissionDenied, codes.Unauthenticated, codes.Unavailable, codes.DeadlineExceeded:
		return true
	default:
		return false
	}
}
