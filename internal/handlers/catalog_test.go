package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/services"
)

func TestCatalogHandlersListProductsParsesFilter(t *testing.T) {
	var captured services.ProductFilter
	catalog := &stubCatalogService{
		listFunc: func(_ context.Context, filter services.ProductFilter) ([]services.Product, error) {
			captured = filter
			return []services.Product{sampleProduct()}, nil
		},
	}
	handler := NewCatalogHandlers(catalog, "gbp")

	rr := serve(t, handler.Routes, httptest.NewRequest(http.MethodGet, "/products?q=oak&category=seating&minPrice=10&maxPrice=200&inStock=true&sort=price_asc", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d: %s", rr.Code, rr.Body.String())
	}
	if captured.Query != "oak" || captured.CategorySlug != "seating" || captured.MinPrice != 10 || captured.MaxPrice != 200 || !captured.InStockOnly {
		t.Fatalf("unexpected filter %+v", captured)
	}
	if captured.Sort != domain.ProductSortPriceAsc {
		t.Fatalf("expected price_asc sort, got %q", captured.Sort)
	}

	var body struct {
		Products []struct {
			ID             string `json:"id"`
			FormattedPrice string `json:"formattedPrice"`
			InStock        bool   `json:"inStock"`
			LowStock       bool   `json:"lowStock"`
		} `json:"products"`
	}
	decodeJSON(t, rr, &body)
	if len(body.Products) != 1 {
		t.Fatalf("expected one product, got %d", len(body.Products))
	}
	p := body.Products[0]
	if p.FormattedPrice != "£129.99" || !p.InStock || !p.LowStock {
		t.Fatalf("unexpected product payload %+v", p)
	}
}

func TestCatalogHandlersRejectsBadQuery(t *testing.T) {
	handler := NewCatalogHandlers(&stubCatalogService{}, "gbp")
	for _, target := range []string{"/products?minPrice=abc", "/products?maxPrice=-5", "/products?inStock=maybe"} {
		rr := serve(t, handler.Routes, httptest.NewRequest(http.MethodGet, target, nil))
		if rr.Code != http.StatusBadRequest {
			t.Fatalf("%s: expected status 400, got %d", target, rr.Code)
		}
	}

	invalid := NewCatalogHandlers(&stubCatalogService{
		listFunc: func(context.Context, services.ProductFilter) ([]services.Product, error) {
			return nil, services.ErrCatalogInvalidInput
		},
	}, "gbp")
	rr := serve(t, invalid.Routes, httptest.NewRequest(http.MethodGet, "/products?sort=popular", nil))
	if rr.Code != http.StatusBadRequest {
		t.Fatalf("expected status 400, got %d", rr.Code)
	}
}

func TestCatalogHandlersGetProduct(t *testing.T) {
	catalog := &stubCatalogService{
		getFunc: func(_ context.Context, slug string) (services.Product, error) {
			if slug == "oak-chair" {
				return sampleProduct(), nil
			}
			return services.Product{}, services.ErrCatalogNotFound
		},
	}
	handler := NewCatalogHandlers(catalog, "gbp")

	rr := serve(t, handler.Routes, httptest.NewRequest(http.MethodGet, "/products/oak-chair", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("expected status 200, got %d", rr.Code)
	}
	rr = serve(t, handler.Routes, httptest.NewRequest(http.MethodGet, "/products/missing", nil))
	if rr.Code != http.StatusNotFound {
		t.Fatalf("expected status 404, got %d", rr.Code)
	}
}

func TestCatalogHandlersFeaturedRouteWinsOverSlug(t *testing.T) {
	called := false
	catalog := &stubCatalogService{
		featuredFunc: func(context.Context) ([]services.Product, error) {
			called = true
			return nil, nil
		},
	}
	rr := serve(t, NewCatalogHandlers(catalog, "gbp").Routes, httptest.NewRequest(http.MethodGet, "/products/featured", nil))
	if rr.Code != http.StatusOK || !called {
		t.Fatalf("expected featured handler, got %d called=%v", rr.Code, called)
	}
}

func TestCatalogHandlersCategoriesBackendFailure(t *testing.T) {
	catalog := &stubCatalogService{
		categoriesFunc: func(context.Context) ([]services.Category, error) {
			return nil, errors.New("firestore unavailable")
		},
	}
	rr := serve(t, NewCatalogHandlers(catalog, "gbp").Routes, httptest.NewRequest(http.MethodGet, "/categories", nil))
	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected status 503, got %d", rr.Code)
	}
}
