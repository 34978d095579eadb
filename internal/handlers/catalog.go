package handlers

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/platform/httpx"
	"github.com/aistore/storefront/internal/platform/requestctx"
	"github.com/aistore/storefront/internal/services"
	"github.com/aistore/storefront/internal/stock"
)

// CatalogHandlers exposes product browsing and categories.
type CatalogHandlers struct {
	catalog  services.CatalogService
	currency string
}

// NewCatalogHandlers constructs catalog handlers rendering prices in currency.
func NewCatalogHandlers(catalog services.CatalogService, currency string) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog, currency: currency}
}

// Routes wires the catalog endpoints.
func (h *CatalogHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/products", h.listProducts)
	r.Get("/products/featured", h.featuredProducts)
	r.Get("/products/{slug}", h.getProduct)
	r.Get("/categories", h.listCategories)
}

type productPayload struct {
	ID             string   `json:"id"`
	Name           string   `json:"name"`
	Slug           string   `json:"slug"`
	Description    string   `json:"description,omitempty"`
	Price          float64  `json:"price"`
	FormattedPrice string   `json:"formattedPrice"`
	Stock          int      `json:"stock"`
	InStock        bool     `json:"inStock"`
	LowStock       bool     `json:"lowStock"`
	Images         []string `json:"images"`
	CategorySlug   string   `json:"categorySlug,omitempty"`
	Color          string   `json:"color,omitempty"`
	Material       string   `json:"material,omitempty"`
	Dimensions     string   `json:"dimensions,omitempty"`
	Featured       bool     `json:"featured"`
	UpdatedAt      string   `json:"updatedAt,omitempty"`
}

type categoryPayload struct {
	ID       string `json:"id"`
	Title    string `json:"title"`
	Slug     string `json:"slug"`
	ImageURL string `json:"imageUrl,omitempty"`
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}

	filter, err := parseProductFilter(r)
	if err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
		return
	}

	products, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": h.productList(products)})
}

func (h *CatalogHandlers) featuredProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	products, err := h.catalog.FeaturedProducts(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"products": h.productList(products)})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "slug"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"product": h.productPayload(product)})
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service is unavailable", http.StatusServiceUnavailable))
		return
	}
	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}
	out := make([]categoryPayload, len(categories))
	for i, c := range categories {
		out[i] = categoryPayload{ID: c.ID, Title: c.Title, Slug: c.Slug, ImageURL: c.ImageURL}
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": out})
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid catalog filter", http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product not found", http.StatusNotFound))
	default:
		requestctx.Logger(ctx).Error("catalog request failed", zap.Error(err))
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog is temporarily unavailable", http.StatusServiceUnavailable))
	}
}

func (h *CatalogHandlers) productList(products []domain.Product) []productPayload {
	out := make([]productPayload, len(products))
	for i, p := range products {
		out[i] = h.productPayload(p)
	}
	return out
}

func (h *CatalogHandlers) productPayload(p domain.Product) productPayload {
	images := p.Images
	if images == nil {
		images = []string{}
	}
	payload := productPayload{
		ID:             p.ID,
		Name:           p.Name,
		Slug:           p.Slug,
		Description:    p.Description,
		Price:          p.Price,
		FormattedPrice: domain.FormatPrice(p.Price, h.currency),
		Stock:          p.Stock,
		InStock:        p.Stock > 0,
		LowStock:       stock.IsLowStock(p.Stock),
		Images:         images,
		CategorySlug:   p.CategorySlug,
		Color:          p.Color,
		Material:       p.Material,
		Dimensions:     p.Dimensions,
		Featured:       p.Featured,
	}
	if !p.UpdatedAt.IsZero() {
		payload.UpdatedAt = p.UpdatedAt.UTC().Format(time.RFC3339)
	}
	return payload
}

func parseProductFilter(r *http.Request) (domain.ProductFilter, error) {
	q := r.URL.Query()
	filter := domain.ProductFilter{
		Query:        strings.TrimSpace(q.Get("q")),
		CategorySlug: strings.TrimSpace(q.Get("category")),
		Color:        strings.TrimSpace(q.Get("color")),
		Material:     strings.TrimSpace(q.Get("material")),
		Sort:         domain.ProductSort(strings.TrimSpace(q.Get("sort"))),
	}
	var err error
	if filter.MinPrice, err = parsePrice(q.Get("minPrice")); err != nil {
		return filter, errors.New("minPrice must be a non-negative number")
	}
	if filter.MaxPrice, err = parsePrice(q.Get("maxPrice")); err != nil {
		return filter, errors.New("maxPrice must be a non-negative number")
	}
	if raw := strings.TrimSpace(q.Get("inStock")); raw != "" {
		inStock, err := strconv.ParseBool(raw)
		if err != nil {
			return filter, errors.New("inStock must be a boolean")
		}
		filter.InStockOnly = inStock
	}
	return filter, nil
}

func parsePrice(raw string) (float64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.ParseFloat(raw, 64)
	if err != nil || value < 0 {
		return 0, errors.New("invalid price")
	}
	return value, nil
}
