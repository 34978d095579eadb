package observability

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/aistore/storefront/internal/platform/requestctx"
)

func TestParseCloudTraceContext(t *testing.T) {
	sc, ok := parseCloudTraceContext("105445aa7843bc8bf206b12000100000/1;o=1")
	if !ok {
		t.Fatalf("expected header to parse")
	}
	if sc.TraceID().String() != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("unexpected trace id %s", sc.TraceID())
	}
	if sc.SpanID().String() != "0000000000000001" {
		t.Fatalf("unexpected span id %s", sc.SpanID())
	}
	if !sc.IsSampled() || !sc.IsRemote() {
		t.Fatalf("expected sampled remote context")
	}
}

func TestParseCloudTraceContextRejectsMalformed(t *testing.T) {
	for _, header := range []string{"", "abc/1", "105445aa7843bc8bf206b12000100000", "105445aa7843bc8bf206b12000100000/"} {
		if _, ok := parseCloudTraceContext(header); ok {
			t.Fatalf("expected %q to be rejected", header)
		}
	}
}

func TestTraceMiddlewareStoresTraceInfo(t *testing.T) {
	var got requestctx.TraceInfo
	handler := TraceMiddleware("proj")(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got, _ = requestctx.Trace(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/api/v1/cart", nil)
	req.Header.Set(cloudTraceHeader, "105445aa7843bc8bf206b12000100000/1;o=1")
	handler.ServeHTTP(httptest.NewRecorder(), req)

	if got.TraceID != "105445aa7843bc8bf206b12000100000" {
		t.Fatalf("expected propagated trace id, got %q", got.TraceID)
	}
	if got.ProjectID != "proj" {
		t.Fatalf("expected project id, got %q", got.ProjectID)
	}
}

func TestEventLoggerPrefersRequestLogger(t *testing.T) {
	core, logs := observer.New(zap.InfoLevel)
	fallbackCore, fallbackLogs := observer.New(zap.InfoLevel)

	log := EventLogger(zap.New(fallbackCore))
	ctx := requestctx.WithLogger(context.Background(), zap.New(core))
	log(ctx, "checkout.created", map[string]any{"sessionId": "cs_1"})
	log(context.Background(), "stock.fetch_failed", map[string]any{"error": "boom"})

	if logs.Len() != 1 || logs.All()[0].Message != "checkout.created" {
		t.Fatalf("expected request logger entry, got %v", logs.All())
	}
	entries := fallbackLogs.All()
	if len(entries) != 1 || entries[0].Level != zap.WarnLevel {
		t.Fatalf("expected warn entry on fallback logger, got %v", entries)
	}
}

func TestRecoveryMiddlewareWritesEnvelope(t *testing.T) {
	handler := RecoveryMiddleware(zap.NewNop())(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	if rec.Code != http.StatusInternalServerError {
		t.Fatalf("expected 500, got %d", rec.Code)
	}
}
