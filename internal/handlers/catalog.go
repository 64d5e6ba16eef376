package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/platform/httpx"
	"github.com/ashgrove-goods/api/internal/services"
)

// CatalogHandlers exposes the read-only product and category surface.
type CatalogHandlers struct {
	catalog services.CatalogService
}

// NewCatalogHandlers constructs a new CatalogHandlers instance.
func NewCatalogHandlers(catalog services.CatalogService) *CatalogHandlers {
	return &CatalogHandlers{catalog: catalog}
}

// ProductRoutes registers the /products endpoints.
func (h *CatalogHandlers) ProductRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listProducts)
	r.Get("/{productID}", h.getProduct)
}

// CategoryRoutes registers the /categories endpoints.
func (h *CatalogHandlers) CategoryRoutes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/", h.listCategories)
	r.Get("/{categoryID}", h.getCategory)
}

func (h *CatalogHandlers) listProducts(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	filter := services.ProductListFilter{
		ActiveOnly: firstQueryValue(query, "active") != "false",
		Page:       parsePageParams(query),
	}
	if category := firstQueryValue(query, "category"); category != "" {
		filter.CategoryID = &category
	}

	result, err := h.catalog.ListProducts(ctx, filter)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	products := make([]productResponse, 0, len(result.Products))
	for _, product := range result.Products {
		products = append(products, productResponseFrom(product))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{
		"products": products,
		"pagination": pageInfoResponse{
			CurrentPage: result.Page.CurrentPage,
			TotalPages:  result.Page.TotalPages,
			TotalItems:  result.Page.TotalItems,
			HasNext:     result.Page.HasNext,
			HasPrev:     result.Page.HasPrev,
		},
	})
}

func (h *CatalogHandlers) getProduct(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	product, err := h.catalog.GetProduct(ctx, chi.URLParam(r, "productID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, productResponseFrom(product))
}

func (h *CatalogHandlers) listCategories(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	categories, err := h.catalog.ListCategories(ctx)
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	payload := make([]categoryResponse, 0, len(categories))
	for _, category := range categories {
		payload = append(payload, categoryResponseFrom(category))
	}
	writeJSONResponse(w, http.StatusOK, map[string]any{"categories": payload})
}

func (h *CatalogHandlers) getCategory(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.catalog == nil {
		httpx.WriteError(ctx, w, httpx.NewError("catalog_unavailable", "catalog service unavailable", http.StatusServiceUnavailable))
		return
	}

	category, err := h.catalog.GetCategory(ctx, chi.URLParam(r, "categoryID"))
	if err != nil {
		h.writeCatalogError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, categoryResponseFrom(category))
}

func (h *CatalogHandlers) writeCatalogError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrCatalogInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrCatalogNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("catalog_not_found", "catalog entry not found", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("catalog_error", "failed to process catalog request", http.StatusInternalServerError))
	}
}

// JSON shapes ----------------------------------------------------------------

type sizeStockResponse struct {
	Size  string `json:"size"`
	Stock int    `json:"stock"`
}

type variationResponse struct {
	Color         string              `json:"color"`
	Price         float64             `json:"price"`
	OriginalPrice *float64            `json:"originalPrice,omitempty"`
	Materials     []string            `json:"materials,omitempty"`
	Images        []string            `json:"images,omitempty"`
	Sizes         []sizeStockResponse `json:"sizes,omitempty"`
	Stock         int                 `json:"stock"`
	Active        bool                `json:"active"`
}

type productResponse struct {
	ID            string              `json:"id"`
	Name          string              `json:"name"`
	Description   *string             `json:"description,omitempty"`
	Brand         *string             `json:"brand,omitempty"`
	CategoryID    string              `json:"categoryId"`
	SubCategoryID *string             `json:"subCategoryId,omitempty"`
	BaseImage     *string             `json:"baseImage,omitempty"`
	Variations    []variationResponse `json:"variations"`
	Active        bool                `json:"active"`
	CreatedAt     string              `json:"createdAt"`
	UpdatedAt     string              `json:"updatedAt"`
}

type categoryResponse struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Description *string `json:"description,omitempty"`
	Image       *string `json:"image,omitempty"`
	ParentID    *string `json:"parentId,omitempty"`
	Kind        string  `json:"kind"`
	CreatedAt   string  `json:"createdAt"`
	UpdatedAt   string  `json:"updatedAt"`
}

func productResponseFrom(product domain.Product) productResponse {
	variations := make([]variationResponse, 0, len(product.Variations))
	for _, variation := range product.Variations {
		entry := variationResponse{
			Color:         variation.Color,
			Price:         variation.Price,
			OriginalPrice: variation.OriginalPrice,
			Materials:     variation.Materials,
			Images:        variation.Images,
			Active:        variation.Active,
		}
		if variation.Stock != nil {
			entry.Stock = variation.Stock.TotalStock()
			if sized, ok := variation.Stock.(domain.SizedStock); ok {
				entry.Sizes = make([]sizeStockResponse, 0, len(sized.Sizes))
				for _, size := range sized.Sizes {
					entry.Sizes = append(entry.Sizes, sizeStockResponse{Size: size.Size, Stock: size.Stock})
				}
			}
		}
		variations = append(variations, entry)
	}

	return productResponse{
		ID:            product.ID,
		Name:          product.Name,
		Description:   product.Description,
		Brand:         product.Brand,
		CategoryID:    product.CategoryID,
		SubCategoryID: product.SubCategoryID,
		BaseImage:     product.BaseImage,
		Variations:    variations,
		Active:        product.Active,
		CreatedAt:     formatTime(product.CreatedAt),
		UpdatedAt:     formatTime(product.UpdatedAt),
	}
}

func categoryResponseFrom(category domain.Category) categoryResponse {
	return categoryResponse{
		ID:          category.ID,
		Name:        category.Name,
		Description: category.Description,
		Image:       category.Image,
		ParentID:    category.ParentID,
		Kind:        string(category.Kind),
		CreatedAt:   formatTime(category.CreatedAt),
		UpdatedAt:   formatTime(category.UpdatedAt),
	}
}
