package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	domain "github.com/aistore/storefront/internal/domain"
	pfirestore "github.com/aistore/storefront/internal/platform/firestore"
	"github.com/aistore/storefront/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog products.
type ProductRepository struct {
	base *pfirestore.BaseRepository[productDocument]
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base: pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
	}, nil
}

// FindByIDs loads every requested product in one batched read.
func (r *ProductRepository) FindByIDs(ctx context.Context, ids []string) (map[string]domain.Product, error) {
	docs, err := r.base.GetAll(ctx, ids)
	if err != nil {
		return nil, err
	}
	products := make(map[string]domain.Product, len(docs))
	for _, doc := range docs {
		products[doc.ID] = doc.Data.toDomain(doc.ID, doc.UpdateTime)
	}
	return products, nil
}

// FindBySlug returns the product with the given slug or a not-found error.
func (r *ProductRepository) FindBySlug(ctx context.Context, slug string) (domain.Product, error) {
	slug = strings.TrimSpace(slug)
	if slug == "" {
		return domain.Product{}, errors.New("product slug is required")
	}
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("slug", "==", slug).Limit(1)
	})
	if err != nil {
		return domain.Product{}, err
	}
	if len(docs) == 0 {
		return domain.Product{}, notFound("products.find_by_slug", slug)
	}
	return docs[0].Data.toDomain(docs[0].ID, docs[0].UpdateTime), nil
}

// List applies the equality filters in the query and returns products in name order.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductQuery) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		if v := strings.TrimSpace(filter.CategorySlug); v != "" {
			q = q.Where("categorySlug", "==", v)
		}
		if v := strings.TrimSpace(filter.Color); v != "" {
			q = q.Where("color", "==", strings.ToLower(v))
		}
		if v := strings.TrimSpace(filter.Material); v != "" {
			q = q.Where("material", "==", strings.ToLower(v))
		}
		if filter.InStockOnly {
			q = q.Where("stock", ">", 0)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return toDomainProducts(docs), nil
}

// Featured returns up to limit products flagged as featured.
func (r *ProductRepository) Featured(ctx context.Context, limit int) ([]domain.Product, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("featured", "==", true)
		if limit > 0 {
			q = q.Limit(limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}
	return toDomainProducts(docs), nil
}

type productDocument struct {
	Name         string    `firestore:"name"`
	Slug         string    `firestore:"slug"`
	Description  string    `firestore:"description"`
	Price        float64   `firestore:"price"`
	Stock        int       `firestore:"stock"`
	Images       []string  `firestore:"images"`
	CategoryID   string    `firestore:"categoryId"`
	CategorySlug string    `firestore:"categorySlug"`
	Color        string    `firestore:"color"`
	Material     string    `firestore:"material"`
	Dimensions   string    `firestore:"dimensions"`
	Featured     bool      `firestore:"featured"`
	UpdatedAt    time.Time `firestore:"updatedAt"`
}

func (d productDocument) toDomain(id string, updateTime time.Time) domain.Product {
	images := make([]string, 0, len(d.Images))
	for _, img := range d.Images {
		if img = strings.TrimSpace(img); img != "" {
			images = append(images, img)
		}
	}
	updated := d.UpdatedAt
	if updated.IsZero() {
		updated = updateTime
	}
	return domain.Product{
		ID:           id,
		Name:         strings.TrimSpace(d.Name),
		Slug:         strings.TrimSpace(d.Slug),
		Description:  d.Description,
		Price:        d.Price,
		Stock:        d.Stock,
		Images:       images,
		CategoryID:   d.CategoryID,
		CategorySlug: d.CategorySlug,
		Color:        d.Color,
		Material:     d.Material,
		Dimensions:   d.Dimensions,
		Featured:     d.Featured,
		UpdatedAt:    updated,
	}
}

func toDomainProducts(docs []pfirestore.Document[productDocument]) []domain.Product {
	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, doc.Data.toDomain(doc.ID, doc.UpdateTime))
	}
	return products
}
