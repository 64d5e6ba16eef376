package services

import (
	"context"
	"errors"
	"fmt"
	"strings"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/repositories"
)

var (
	// ErrCatalogInvalidInput indicates the caller supplied invalid filter data.
	ErrCatalogInvalidInput = errors.New("catalog: invalid input")
	// ErrCatalogNotFound indicates a product or category does not exist.
	ErrCatalogNotFound = errors.New("catalog: not found")
)

// CatalogServiceDeps bundles constructor inputs for the catalog service.
type CatalogServiceDeps struct {
	Products   repositories.ProductRepository
	Categories repositories.CategoryRepository
}

type catalogService struct {
	products   repositories.ProductRepository
	categories repositories.CategoryRepository
}

var _ CatalogService = (*catalogService)(nil)

// NewCatalogService constructs the catalog service with the supplied dependencies.
func NewCatalogService(deps CatalogServiceDeps) (CatalogService, error) {
	if deps.Products == nil {
		return nil, fmt.Errorf("catalog service: product repository is required")
	}
	if deps.Categories == nil {
		return nil, fmt.Errorf("catalog service: category repository is required")
	}
	return &catalogService{
		products:   deps.Products,
		categories: deps.Categories,
	}, nil
}

func (s *catalogService) ListProducts(ctx context.Context, filter ProductListFilter) (ProductListResult, error) {
	repoFilter := repositories.ProductFilter{
		ActiveOnly: filter.ActiveOnly,
		Page:       filter.Page.Normalize(),
	}
	if filter.CategoryID != nil {
		category := strings.TrimSpace(*filter.CategoryID)
		if category == "" {
			return ProductListResult{}, fmt.Errorf("%w: category filter must not be blank", ErrCatalogInvalidInput)
		}
		repoFilter.CategoryID = &category
	}

	page, err := s.products.List(ctx, repoFilter)
	if err != nil {
		return ProductListResult{}, mapCatalogRepositoryError(err)
	}
	return ProductListResult{
		Products: page.Products,
		Page:     page.Page,
	}, nil
}

func (s *catalogService) GetProduct(ctx context.Context, productID string) (Product, error) {
	productID = strings.TrimSpace(productID)
	if productID == "" {
		return Product{}, fmt.Errorf("%w: product id is required", ErrCatalogInvalidInput)
	}
	product, err := s.products.FindByID(ctx, productID)
	if err != nil {
		return Product{}, mapCatalogRepositoryError(err)
	}
	return product, nil
}

func (s *catalogService) ListCategories(ctx context.Context) ([]Category, error) {
	categories, err := s.categories.List(ctx)
	if err != nil {
		return nil, mapCatalogRepositoryError(err)
	}
	return categories, nil
}

func (s *catalogService) GetCategory(ctx context.Context, categoryID string) (Category, error) {
	categoryID = strings.TrimSpace(categoryID)
	if categoryID == "" {
		return Category{}, fmt.Errorf("%w: category id is required", ErrCatalogInvalidInput)
	}
	category, err := s.categories.FindByID(ctx, categoryID)
	if err != nil {
		return Category{}, mapCatalogRepositoryError(err)
	}
	if !domain.ValidCategoryKind(category.Kind) {
		category.Kind = domain.CategoryKindFlat
	}
	return category, nil
}

func mapCatalogRepositoryError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return fmt.Errorf("%w: %v", ErrCatalogNotFound, err)
		case repoErr.IsUnavailable():
			return fmt.Errorf("catalog: repository unavailable: %w", err)
		}
	}
	return err
}
