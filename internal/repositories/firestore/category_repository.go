package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ashgrove-goods/api/internal/domain"
	pfirestore "github.com/ashgrove-goods/api/internal/platform/firestore"
)

const categoryCollection = "categories"

// CategoryRepository reads the category tree from Firestore.
type CategoryRepository struct {
	base *pfirestore.BaseRepository[categoryDocument]
}

// NewCategoryRepository constructs a Firestore-backed category repository.
func NewCategoryRepository(provider *pfirestore.Provider) (*CategoryRepository, error) {
	if provider == nil {
		return nil, errors.New("category repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[categoryDocument](provider, categoryCollection, nil, nil)
	return &CategoryRepository{base: base}, nil
}

// FindByID loads one category.
func (r *CategoryRepository) FindByID(ctx context.Context, categoryID string) (domain.Category, error) {
	if r == nil || r.base == nil {
		return domain.Category{}, errors.New("category repository not initialised")
	}
	if strings.TrimSpace(categoryID) == "" {
		return domain.Category{}, errors.New("category id is required")
	}

	doc, err := r.base.Get(ctx, categoryID)
	if err != nil {
		return domain.Category{}, err
	}
	return toDomainCategory(doc.ID, doc.Data), nil
}

// List returns all categories ordered by name.
func (r *CategoryRepository) List(ctx context.Context) ([]domain.Category, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("category repository not initialised")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.OrderBy("name", firestore.Asc)
	})
	if err != nil {
		return nil, err
	}

	categories := make([]domain.Category, 0, len(docs))
	for _, doc := range docs {
		categories = append(categories, toDomainCategory(doc.ID, doc.Data))
	}
	return categories, nil
}

type categoryDocument struct {
	Name        string    `firestore:"name"`
	Description *string   `firestore:"description,omitempty"`
	Image       *string   `firestore:"image,omitempty"`
	ParentID    *string   `firestore:"parentCategoryId,omitempty"`
	Kind        string    `firestore:"kind"`
	CreatedAt   time.Time `firestore:"createdAt"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

func toDomainCategory(id string, doc categoryDocument) domain.Category {
	kind := domain.CategoryKind(doc.Kind)
	if kind != domain.CategoryKindSized {
		kind = domain.CategoryKindFlat
	}
	return domain.Category{
		ID:          id,
		Name:        doc.Name,
		Description: doc.Description,
		Image:       doc.Image,
		ParentID:    doc.ParentID,
		Kind:        kind,
		CreatedAt:   doc.CreatedAt,
		UpdatedAt:   doc.UpdatedAt,
	}
}
