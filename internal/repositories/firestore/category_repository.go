package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"
	domain "github.com/aistore/storefront/internal/domain"
	pfirestore "github.com/aistore/storefront/internal/platform/firestore"
	"github.com/aistore/storefront/internal/repositories"
)

const categoryCollection = "categories"

// CategoryRepository reads product categories ordered by title.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

var _ repositories.CategoryRepository = (*CategoryRepository)(nil)

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	return &CategoryRepository{
		base: pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil),
	}, nil
}

func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("title", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}
	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, domain.Category{
			ID:       doc.ID,
			Title:    strings.TrimSpace(doc.Data.Title),
			Slug:     strings.TrimSpace(doc.Data.Slug),
			ImageURL: strings.TrimSpace(doc.Data.ImageURL),
		})
	}
	return categories, nil
}

type categoryDocument struct {
	Title    string `firestore:"title"`
	Slug     string `firestore:"slug"`
	ImageURL string `firestore:"imageUrl"`
}
