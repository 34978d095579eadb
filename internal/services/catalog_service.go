package services

import (
	"context"
	"errors"
	"sort"
	"strings"
	"time"

	domain "github.com/aistore/storefront/internal/domain"
	"github.com/aistore/storefront/internal/repositories"
)

const (
	defaultFeaturedLimit = 8
	defaultCategoryTTL   = 10 * time.Minute
	categoriesCacheKey   = "catalog:categories"
)

var (
	// ErrCatalogInvalidInput indicates an unusable filter.
	ErrCatalogInvalidInput = errors.New("catalog service: invalid input")
	// ErrCatalogNotFound indicates the requested product does not exist.
	ErrCatalogNotFound = errors.New("catalog service: not found")
)

// CatalogCache is the JSON cache used for slow-changing catalog reads.
type CatalogCache interface {
	GetJSON(ctx context.Context, key string, dest any) (bool, error)
	SetJSON(ctx context.Context, key string, value any, ttl time.Duration) error
}

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products      repositories.ProductRepository
	Categories    repositories.CategoryRepository
	Cache         CatalogCache
	CategoryTTL   time.Duration
	FeaturedLimit int
	Metrics       StockMetrics
	Clock         func() time.Time
	Logger        Logger
}

type catalogService struct {
	products      repositories.ProductRepository
	categories    repositories.CategoryRepository
	cache         CatalogCache
	categoryTTL   time.Duration
	featuredLimit int
	metrics       StockMetrics
	clock         func() time.Time
	logger        Logger
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, errors.New("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, errors.New("catalog service: category repository is required")
	}
	ttl := deps.CategoryTTL
	if ttl <= 0 {
		ttl = defaultCategoryTTL
	}
	limit := deps.FeaturedLimit
	if limit <= 0 {
		limit = defaultFeaturedLimit
	}
	clock := deps.Clock
	if clock == nil {
		clock = time.Now
	}
	logger := deps.Logger
	if logger == nil {
		logger = noopLogger
	}
	return &catalogService{
		products:      deps.Products,
		categories:    deps.Categories,
		cache:         deps.Cache,
		categoryTTL:   ttl,
		featuredLimit: limit,
		metrics:       deps.Metrics,
		clock:         clock,
		logger:        logger,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductFilter) ([]Product, error) {
	filter, err := normalizeProductFilter(filter)
	if err != nil {
		return nil, err
	}

	products, err := s.products.List(ctx, repositories.ProductQuery{
		CategorySlug: filter.CategorySlug,
		Color:        filter.Color,
		Material:     filter.Material,
		InStockOnly:  filter.InStockOnly,
	})
	if err != nil {
		return nil, err
	}

	query := strings.ToLower(filter.Query)
	scored := make([]scoredProduct, 0, len(products))
	for _, p := range products {
		if filter.MinPrice > 0 && p.Price < filter.MinPrice {
			continue
		}
		if filter.MaxPrice > 0 && p.Price > filter.MaxPrice {
			continue
		}
		if filter.InStockOnly && p.Stock <= 0 {
			continue
		}
		score := relevance(p, query)
		if query != "" && score == 0 {
			continue
		}
		scored = append(scored, scoredProduct{Product: p, score: score})
	}

	sortProducts(scored, filter.Sort)
	out := make([]Product, len(scored))
	for i, sp := range scored {
		out[i] = sp.Product
	}
	return out, nil
}

func (s *catalogService) GetProduct(ctx context.Context, slug string) (Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return Product{}, ErrCatalogInvalidInput
	}
	product, err := s.products.FindBySlug(ctx, slug)
	if err != nil {
		if repositories.IsNotFound(err) {
			return Product{}, ErrCatalogNotFound
		}
		return Product{}, err
	}
	return product, nil
}

func (s *catalogService) FeaturedProducts(ctx context.Context) ([]Product, error) {
	return s.products.Featured(ctx, s.featuredLimit)
}

// ListCategories serves categories from the cache when possible. Cache failures fall through to the CMS.
func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	if s.cache != nil {
		var cached []Category
		found, err := s.cache.GetJSON(ctx, categoriesCacheKey, &cached)
		if err != nil {
			s.logger(ctx, "catalog.cache_read_failed", map[string]any{"error": err.Error()})
		}
		if found {
			return cached, nil
		}
	}

	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, err
	}
	if s.cache != nil {
		if err := s.cache.SetJSON(ctx, categoriesCacheKey, categories, s.categoryTTL); err != nil {
			s.logger(ctx, "catalog.cache_write_failed", map[string]any{"error": err.Error()})
		}
	}
	return categories, nil
}

// StockLevels returns authoritative stock for the requested ids. Unknown products are omitted.
func (s *catalogService) StockLevels(ctx context.Context, productIDs []string) (map[string]int, error) {
	start := s.clock()
	products, err := s.products.FindByIDs(ctx, productIDs)
	if s.metrics != nil {
		s.metrics.StockFetch(err, s.clock().Sub(start))
	}
	if err != nil {
		return nil, err
	}
	levels := make(map[string]int, len(products))
	for id, p := range products {
		levels[id] = p.Stock
	}
	return levels, nil
}

type scoredProduct struct {
	Product
	score int
}

func normalizeProductFilter(filter ProductFilter) (ProductFilter, error) {
	filter.Query = strings.TrimSpace(filter.Query)
	filter.CategorySlug = strings.TrimSpace(filter.CategorySlug)
	filter.Color = strings.ToLower(strings.TrimSpace(filter.Color))
	filter.Material = strings.ToLower(strings.TrimSpace(filter.Material))
	if filter.MinPrice < 0 || filter.MaxPrice < 0 {
		return filter, ErrCatalogInvalidInput
	}
	if filter.MaxPrice > 0 && filter.MinPrice > filter.MaxPrice {
		return filter, ErrCatalogInvalidInput
	}
	switch filter.Sort {
	case "":
		filter.Sort = domain.ProductSortName
	case domain.ProductSortName, domain.ProductSortPriceAsc, domain.ProductSortPriceDesc:
	case domain.ProductSortRelevance:
		if filter.Query == "" {
			filter.Sort = domain.ProductSortName
		}
	default:
		return filter, ErrCatalogInvalidInput
	}
	return filter, nil
}

// relevance scores name matches above description matches. An empty query scores everything 1.
func relevance(p Product, query string) int {
	if query == "" {
		return 1
	}
	score := 0
	if strings.Contains(strings.ToLower(p.Name), query) {
		score += 2
	}
	if strings.Contains(strings.ToLower(p.Description), query) {
		score++
	}
	return score
}

func sortProducts(products []scoredProduct, order domain.ProductSort) {
	byName := func(a, b scoredProduct) bool {
		return strings.ToLower(a.Name) < strings.ToLower(b.Name)
	}
	sort.SliceStable(products, func(i, j int) bool {
		a, b := products[i], products[j]
		switch order {
		case domain.ProductSortPriceAsc:
			if a.Price != b.Price {
				return a.Price < b.Price
			}
		case domain.ProductSortPriceDesc:
			if a.Price != b.Price {
				return a.Price > b.Price
			}
		case domain.ProductSortRelevance:
			if a.score != b.score {
				return a.score > b.score
			}
		}
		return byName(a, b)
	})
}
