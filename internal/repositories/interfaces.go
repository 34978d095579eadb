package repositories

import (
	"context"

	domain "github.com/aistore/storefront/internal/domain"
)

// RepositoryError classifies persistence failures for the service layer.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// ProductRepository reads products from the CMS.
type ProductRepository interface {
	// FindByIDs returns the products that exist, keyed by ID. Missing IDs are absent from the map.
	FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error)
	FindBySlug(ctx context.Context, slug string) (domain.Product, error)
	List(ctx context.Context, filter ProductQuery) ([]domain.Product, error)
	Featured(ctx context.Context, limit int) ([]domain.Product, error)
}

// ProductQuery is the subset of catalog filtering pushed down to the store.
// Text search, price bounds and sorting happen in the service.
type ProductQuery struct {
	CategorySlug string
	Color        string
	Material     string
	InStockOnly  bool
}

// CategoryRepository reads product categories.
type CategoryRepository interface {
	List(ctx context.Context) ([]domain.Category, error)
}

// CustomerRepository persists CMS customer records.
type CustomerRepository interface {
	FindByEmail(ctx context.Context, email string) (domain.Customer, error)
	// Create inserts the customer under an ID derived from the email. When a
	// record already exists the stored one is returned with created=false.
	Create(ctx context.Context, customer domain.Customer) (stored domain.Customer, created bool, err error)
	Patch(ctx context.Context, customerID string, patch domain.CustomerPatch) (domain.Customer, error)
}

// HealthRepository reports on backing dependencies.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}

// IsNotFound reports whether err is a repository not-found error.
func IsNotFound(err error) bool {
	var repoErr RepositoryError
	return asRepositoryError(err, &repoErr) && repoErr.IsNotFound()
}
