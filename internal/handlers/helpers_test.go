package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/aistore/storefront/internal/cartstore"
	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/platform/auth"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/services"
	"github.com/aistore/storefront/internal/session"
	"github.com/aistore/storefront/internal/stock"
)

const testSessionID = "01HZX0000000000000000000AA"

type stubCatalogService struct {
	listFunc       func(ctx context.Context, filter services.ProductFilter) ([]services.Product, error)
	getFunc        func(ctx context.Context, slug string) (services.Product, error)
	featuredFunc   func(ctx context.Context) ([]services.Product, error)
	categoriesFunc func(ctx context.Context) ([]services.Category, error)

	mu     sync.Mutex
	levels map[string]int
}

func (s *stubCatalogService) ListProducts(ctx context.Context, filter services.ProductFilter) ([]services.Product, error) {
	if s.listFunc != nil {
		return s.listFunc(ctx, filter)
	}
	return nil, nil
}

func (s *stubCatalogService) GetProduct(ctx context.Context, slug string) (services.Product, error) {
	if s.getFunc != nil {
		return s.getFunc(ctx, slug)
	}
	return services.Product{}, services.ErrCatalogNotFound
}

func (s *stubCatalogService) FeaturedProducts(ctx context.Context) ([]services.Product, error) {
	if s.featuredFunc != nil {
		return s.featuredFunc(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) ListCategories(ctx context.Context) ([]services.Category, error) {
	if s.categoriesFunc != nil {
		return s.categoriesFunc(ctx)
	}
	return nil, nil
}

func (s *stubCatalogService) StockLevels(_ context.Context, ids []string) (map[string]int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string]int, len(ids))
	for _, id := range ids {
		if level, ok := s.levels[id]; ok {
			out[id] = level
		}
	}
	return out, nil
}

type stubCheckoutService struct {
	createFunc func(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error)
	orderFunc  func(ctx context.Context, q services.OrderConfirmationQuery) (services.OrderConfirmation, error)
	creates    int
}

func (s *stubCheckoutService) CreateCheckoutSession(ctx context.Context, cmd services.CreateCheckoutSessionCommand) (services.CheckoutSessionResult, error) {
	s.creates++
	if s.createFunc != nil {
		return s.createFunc(ctx, cmd)
	}
	return services.CheckoutSessionResult{}, nil
}

func (s *stubCheckoutService) GetOrderConfirmation(ctx context.Context, q services.OrderConfirmationQuery) (services.OrderConfirmation, error) {
	if s.orderFunc != nil {
		return s.orderFunc(ctx, q)
	}
	return services.OrderConfirmation{}, services.ErrOrderUnavailable
}

// newTestSessions builds a real registry over an in-memory cart persister.
func newTestSessions(t *testing.T, fetcher stock.LevelFetcher) *session.Registry {
	t.Helper()
	if fetcher == nil {
		fetcher = &stubCatalogService{}
	}
	reg, err := session.NewRegistry(session.Config{
		Persister: cartstore.NewMemoryPersister(),
		Fetcher:   fetcher,
		IdleTTL:   time.Hour,
	})
	if err != nil {
		t.Fatalf("NewRegistry: %v", err)
	}
	t.Cleanup(reg.Close)
	return reg
}

func newRequest(method, target string, body any) *http.Request {
	var reader io.Reader
	switch v := body.(type) {
	case nil:
	case string:
		reader = bytes.NewBufferString(v)
	default:
		raw, _ := json.Marshal(v)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	return req.WithContext(requestctx.WithSessionID(req.Context(), testSessionID))
}

func withIdentity(req *http.Request, identity *auth.Identity) *http.Request {
	return req.WithContext(auth.WithIdentity(req.Context(), identity))
}

func serve(t *testing.T, register func(chi.Router), req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	router := chi.NewRouter()
	register(router)
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func decodeJSON(t *testing.T, rr *httptest.ResponseRecorder, dest any) {
	t.Helper()
	if err := json.Unmarshal(rr.Body.Bytes(), dest); err != nil {
		t.Fatalf("failed to decode response %q: %v", rr.Body.String(), err)
	}
}

func mustSession(t *testing.T, reg *session.Registry) *session.Session {
	t.Helper()
	sess, err := reg.Get(context.Background(), testSessionID)
	if err != nil {
		t.Fatalf("Get session: %v", err)
	}
	return sess
}

func sampleProduct() domain.Product {
	return domain.Product{
		ID:     "chair",
		Name:   "Oak Chair",
		Slug:   "oak-chair",
		Price:  129.99,
		Stock:  3,
		Images: []string{"https://cdn.example.com/chair.jpg"},
	}
}

var (
	_ services.CatalogService  = (*stubCatalogService)(nil)
	_ services.CheckoutService = (*stubCheckoutService)(nil)
)
