package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"cloud.google.com/go/firestore/apiv1/firestorepb"

	domain "github.com/ashgrove-goods/api/internal/domain"
	pfirestore "github.com/ashgrove-goods/api/internal/platform/firestore"
	"github.com/ashgrove-goods/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads catalog products from Firestore.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil)
	return &ProductRepository{base: base, provider: provider}, nil
}

// FindByID loads one product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	if strings.TrimSpace(productID) == "" {
		return domain.Product{}, errors.New("product id is required")
	}

	doc, err := r.base.Get(ctx, productID)
	if err != nil {
		return domain.Product{}, err
	}
	return toDomainProduct(doc.ID, doc.Data), nil
}

// List pages products, optionally narrowed by category and active flag.
func (r *ProductRepository) List(ctx context.Context, filter repositories.ProductFilter) (repositories.ProductPage, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return repositories.ProductPage{}, errors.New("product repository not initialised")
	}
	page := filter.Page.Normalize()

	narrow := func(q firestore.Query) firestore.Query {
		if filter.CategoryID != nil {
			q = q.Where("categoryId", "==", *filter.CategoryID)
		}
		if filter.ActiveOnly {
			q = q.Where("isActive", "==", true)
		}
		return q
	}

	total, err := r.count(ctx, narrow)
	if err != nil {
		return repositories.ProductPage{}, err
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return narrow(q).
			OrderBy("createdAt", firestore.Desc).
			Offset(page.Offset()).
			Limit(page.Limit)
	})
	if err != nil {
		return repositories.ProductPage{}, err
	}

	products := make([]domain.Product, 0, len(docs))
	for _, doc := range docs {
		products = append(products, toDomainProduct(doc.ID, doc.Data))
	}
	return repositories.ProductPage{
		Products: products,
		Page:     domain.NewPageInfo(page, total),
	}, nil
}

func (r *ProductRepository) count(ctx context.Context, narrow pfirestore.QueryBuilder) (int64, error) {
	client, err := r.provider.Client(ctx)
	if err != nil {
		return 0, err
	}

	query := narrow(client.Collection(productCollection).Query)
	results, err := query.NewAggregationQuery().WithCount("total").Get(ctx)
	if err != nil {
		return 0, pfirestore.WrapError("products.count", err)
	}
	raw, ok := results["total"]
	if !ok {
		return 0, errors.New("products count aggregation missing result")
	}
	value, ok := raw.(*firestorepb.Value)
	if !ok {
		return 0, errors.New("products count aggregation unexpected type")
	}
	return value.GetIntegerValue(), nil
}

type productDocument struct {
	Name          string              `firestore:"name"`
	Description   *string             `firestore:"description,omitempty"`
	Brand         *string             `firestore:"brand,omitempty"`
	CategoryID    string              `firestore:"categoryId"`
	SubCategoryID *string             `firestore:"subCategoryId,omitempty"`
	BaseImage     *string             `firestore:"baseImage,omitempty"`
	StockKind     string              `firestore:"stockKind"`
	Variations    []variationDocument `firestore:"variations"`
	Active        bool                `firestore:"isActive"`
	CreatedAt     time.Time           `firestore:"createdAt"`
	UpdatedAt     time.Time           `firestore:"updatedAt"`
}

type variationDocument struct {
	Color         string              `firestore:"color"`
	Price         float64             `firestore:"price"`
	OriginalPrice *float64            `firestore:"originalPrice,omitempty"`
	Materials     []string            `firestore:"materials,omitempty"`
	Images        []string            `firestore:"images,omitempty"`
	Sizes         []sizeStockDocument `firestore:"sizes,omitempty"`
	Stock         int                 `firestore:"stock"`
	Active        bool                `firestore:"isActive"`
}

type sizeStockDocument struct {
	Size  string `firestore:"size"`
	Stock int    `firestore:"stock"`
}

func toDomainProduct(id string, doc productDocument) domain.Product {
	variations := make([]domain.ProductVariation, 0, len(doc.Variations))
	for _, v := range doc.Variations {
		var stock domain.VariationStock
		if doc.StockKind == string(domain.CategoryKindSized) {
			sizes := make([]domain.SizeStock, 0, len(v.Sizes))
			for _, ss := range v.Sizes {
				sizes = append(sizes, domain.SizeStock{Size: ss.Size, Stock: ss.Stock})
			}
			stock = domain.SizedStock{Sizes: sizes}
		} else {
			stock = domain.FlatStock{Stock: v.Stock}
		}
		variations = append(variations, domain.ProductVariation{
			Color:         v.Color,
			Price:         v.Price,
			OriginalPrice: v.OriginalPrice,
			Materials:     v.Materials,
			Images:        v.Images,
			Stock:         stock,
			Active:        v.Active,
		})
	}

	return domain.Product{
		ID:            id,
		Name:          doc.Name,
		Description:   doc.Description,
		Brand:         doc.Brand,
		CategoryID:    doc.CategoryID,
		SubCategoryID: doc.SubCategoryID,
		BaseImage:     doc.BaseImage,
		Variations:    variations,
		Active:        doc.Active,
		CreatedAt:     doc.CreatedAt,
		UpdatedAt:     doc.UpdatedAt,
	}
}
