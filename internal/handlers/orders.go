package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/ashgrove-goods/api/internal/domain"
	"github.com/ashgrove-goods/api/internal/platform/auth"
	"github.com/ashgrove-goods/api/internal/platform/httpx"
	"github.com/ashgrove-goods/api/internal/services"
)

const maxOrderRequestBody = 8 * 1024

// OrderHandlers exposes customer order lookups and the privileged admin
// surface. Customer routes authenticate by order id + email pairing rather
// than a session.
type OrderHandlers struct {
	authn  *auth.Authenticator
	orders services.OrderService
}

// NewOrderHandlers constructs a new OrderHandlers instance.
func NewOrderHandlers(authn *auth.Authenticator, orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{
		authn:  authn,
		orders: orders,
	}
}

// Routes registers the /orders endpoints.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/customer/{email}", h.listCustomerOrders)
	r.Get("/lookup/{orderID}", h.getOrder)
	r.Get("/number/{orderNumber}", h.getOrderByNumber)
	r.Put("/cancel/{orderID}", h.cancelOrder)

	admin := r
	if h.authn != nil {
		admin = r.With(h.authn.RequireFirebaseAuth(auth.RoleAdmin, auth.RoleStaff))
	}
	admin.Put("/admin/{orderID}/status", h.updateStatus)
	admin.Get("/admin/stats", h.stats)
}

type cancelOrderRequest struct {
	Email  string `json:"email"`
	Reason string `json:"reason"`
}

type updateOrderStatusRequest struct {
	Status            string  `json:"status"`
	TrackingNumber    *string `json:"trackingNumber"`
	EstimatedDelivery *string `json:"estimatedDelivery"`
	Notes             *string `json:"notes"`
}

func (h *OrderHandlers) listCustomerOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	email, err := url.PathUnescape(chi.URLParam(r, "email"))
	if err != nil || strings.TrimSpace(email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email path parameter is required", http.StatusBadRequest))
		return
	}

	query := r.URL.Query()
	filter := services.OrderListFilter{
		CustomerEmail: email,
		Page:          parsePageParams(query),
	}
	if raw := firstQueryValue(query, "status"); raw != "" {
		status := domain.OrderStatus(raw)
		filter.Status = &status
	}

	page, err := h.orders.ListCustomerOrders(ctx, filter)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderPageResponse(page))
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd := services.OrderLookupCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Email:   firstQueryValue(r.URL.Query(), "email"),
	}
	if strings.TrimSpace(cmd.Email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email query parameter is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrder(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponseFrom(order))
}

func (h *OrderHandlers) getOrderByNumber(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	cmd := services.OrderNumberLookupCommand{
		OrderNumber: chi.URLParam(r, "orderNumber"),
		Email:       firstQueryValue(r.URL.Query(), "email"),
	}
	if strings.TrimSpace(cmd.Email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email query parameter is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.GetOrderByNumber(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponseFrom(order))
}

func (h *OrderHandlers) cancelOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req cancelOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Email) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "email is required", http.StatusBadRequest))
		return
	}

	order, err := h.orders.Cancel(ctx, services.CancelOrderCommand{
		OrderID: chi.URLParam(r, "orderID"),
		Email:   req.Email,
		Reason:  req.Reason,
	})
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponseFrom(order))
}

func (h *OrderHandlers) updateStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxOrderRequestBody)
	if err != nil {
		status := http.StatusBadRequest
		if errors.Is(err, errBodyTooLarge) {
			status = http.StatusRequestEntityTooLarge
		}
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), status))
		return
	}

	var req updateOrderStatusRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "request body must be valid JSON", http.StatusBadRequest))
		return
	}
	if strings.TrimSpace(req.Status) == "" {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "status is required", http.StatusBadRequest))
		return
	}

	cmd := services.UpdateOrderStatusCommand{
		OrderID:        chi.URLParam(r, "orderID"),
		Status:         domain.OrderStatus(strings.TrimSpace(req.Status)),
		TrackingNumber: req.TrackingNumber,
		Notes:          req.Notes,
		ActorID:        actorFromContext(ctx),
	}
	if req.EstimatedDelivery != nil {
		eta, err := parseTimeParam(*req.EstimatedDelivery)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "estimatedDelivery must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		cmd.EstimatedDelivery = &eta
	}

	order, err := h.orders.UpdateStatus(ctx, cmd)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderResponseFrom(order))
}

func (h *OrderHandlers) stats(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service unavailable", http.StatusServiceUnavailable))
		return
	}

	var window domain.StatsRange
	query := r.URL.Query()
	if raw := firstQueryValue(query, "from"); raw != "" {
		from, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "from must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		window.From = &from
	}
	if raw := firstQueryValue(query, "to"); raw != "" {
		to, err := parseTimeParam(raw)
		if err != nil {
			httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "to must be a valid RFC3339 timestamp", http.StatusBadRequest))
			return
		}
		window.To = &to
	}

	stats, err := h.orders.Stats(ctx, window)
	if err != nil {
		h.writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, orderStatsResponse(stats))
}

func (h *OrderHandlers) writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order not found", http.StatusNotFound))
	case errors.Is(err, services.ErrOrderInvalidState):
		httpx.WriteError(ctx, w, httpx.NewError("order_invalid_state", err.Error(), http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderConflict):
		httpx.WriteError(ctx, w, httpx.NewError("order_conflict", "order was modified concurrently; retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_error", "failed to process order request", http.StatusInternalServerError))
	}
}

func actorFromContext(ctx context.Context) string {
	identity, ok := auth.IdentityFromContext(ctx)
	if !ok || identity == nil {
		return ""
	}
	return identity.UID
}

// JSON shapes ----------------------------------------------------------------

type variationSnapshotResponse struct {
	Size      *string  `json:"size,omitempty"`
	Color     *string  `json:"color,omitempty"`
	Materials []string `json:"materials,omitempty"`
	Price     float64  `json:"price"`
	Images    []string `json:"images,omitempty"`
}

type orderItemResponse struct {
	ProductID string                    `json:"productId"`
	Name      string                    `json:"name"`
	Variation variationSnapshotResponse `json:"variation"`
	Quantity  int                       `json:"quantity"`
	Subtotal  float64                   `json:"subtotal"`
}

type shippingAddressResponse struct {
	Name       string  `json:"name"`
	Phone      *string `json:"phone,omitempty"`
	Line1      string  `json:"line1"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city"`
	State      *string `json:"state,omitempty"`
	PostalCode *string `json:"postalCode,omitempty"`
	Country    string  `json:"country"`
}

type paymentDetailsResponse struct {
	Method        string   `json:"method"`
	Status        string   `json:"status"`
	TransactionID *string  `json:"transactionId,omitempty"`
	Amount        int64    `json:"amount"`
	Currency      string   `json:"currency"`
	PaidAt        string   `json:"paidAt,omitempty"`
	RefundedAt    string   `json:"refundedAt,omitempty"`
	RefundAmount  *float64 `json:"refundAmount,omitempty"`
}

type orderResponse struct {
	ID                string                  `json:"id"`
	OrderNumber       string                  `json:"orderNumber"`
	CustomerEmail     string                  `json:"customerEmail"`
	Items             []orderItemResponse     `json:"items"`
	ShippingAddress   shippingAddressResponse `json:"shippingAddress"`
	Subtotal          float64                 `json:"subtotal"`
	Tax               float64                 `json:"tax"`
	Total             float64                 `json:"total"`
	Payment           paymentDetailsResponse  `json:"payment"`
	Status            string                  `json:"status"`
	TrackingNumber    *string                 `json:"trackingNumber,omitempty"`
	EstimatedDelivery string                  `json:"estimatedDelivery,omitempty"`
	Notes             *string                 `json:"notes,omitempty"`
	CreatedAt         string                  `json:"createdAt"`
	UpdatedAt         string                  `json:"updatedAt"`
}

type pageInfoResponse struct {
	CurrentPage int   `json:"currentPage"`
	TotalPages  int   `json:"totalPages"`
	TotalItems  int64 `json:"totalItems"`
	HasNext     bool  `json:"hasNext"`
	HasPrev     bool  `json:"hasPrev"`
}

func orderResponseFrom(order domain.Order) orderResponse {
	items := make([]orderItemResponse, 0, len(order.Items))
	for _, item := range order.Items {
		items = append(items, orderItemResponse{
			ProductID: item.ProductID,
			Name:      item.Name,
			Variation: variationSnapshotResponse{
				Size:      item.Variation.Size,
				Color:     item.Variation.Color,
				Materials: item.Variation.Materials,
				Price:     item.Variation.Price,
				Images:    item.Variation.Images,
			},
			Quantity: item.Quantity,
			Subtotal: item.Subtotal,
		})
	}

	resp := orderResponse{
		ID:            order.ID,
		OrderNumber:   order.OrderNumber,
		CustomerEmail: order.CustomerEmail,
		Items:         items,
		ShippingAddress: shippingAddressResponse{
			Name:       order.ShippingAddress.Name,
			Phone:      order.ShippingAddress.Phone,
			Line1:      order.ShippingAddress.Line1,
			Line2:      order.ShippingAddress.Line2,
			City:       order.ShippingAddress.City,
			State:      order.ShippingAddress.State,
			PostalCode: order.ShippingAddress.PostalCode,
			Country:    order.ShippingAddress.Country,
		},
		Subtotal: order.Subtotal,
		Tax:      order.Tax,
		Total:    order.Total,
		Payment: paymentDetailsResponse{
			Method:        order.Payment.Method,
			Status:        string(order.Payment.Status),
			TransactionID: order.Payment.TransactionID,
			Amount:        order.Payment.Amount,
			Currency:      order.Payment.Currency,
			PaidAt:        formatTimePointer(order.Payment.PaidAt),
			RefundedAt:    formatTimePointer(order.Payment.RefundedAt),
			RefundAmount:  order.Payment.RefundAmount,
		},
		Status:         string(order.Status),
		TrackingNumber: order.TrackingNumber,
		Notes:          order.Notes,
		CreatedAt:      formatTime(order.CreatedAt),
		UpdatedAt:      formatTime(order.UpdatedAt),
	}
	if order.EstimatedDelivery != nil {
		resp.EstimatedDelivery = formatTime(*order.EstimatedDelivery)
	}
	return resp
}

func orderPageResponse(page services.OrderPage) map[string]any {
	orders := make([]orderResponse, 0, len(page.Orders))
	for _, order := range page.Orders {
		orders = append(orders, orderResponseFrom(order))
	}
	return map[string]any{
		"orders": orders,
		"pagination": pageInfoResponse{
			CurrentPage: page.Page.CurrentPage,
			TotalPages:  page.Page.TotalPages,
			TotalItems:  page.Page.TotalItems,
			HasNext:     page.Page.HasNext,
			HasPrev:     page.Page.HasPrev,
		},
	}
}

type statusRevenueResponse struct {
	Status  string  `json:"status"`
	Count   int64   `json:"count"`
	Revenue float64 `json:"revenue"`
}

func orderStatsResponse(stats domain.OrderStats) map[string]any {
	distribution := make([]statusRevenueResponse, 0, len(stats.Distribution))
	for _, row := range stats.Distribution {
		distribution = append(distribution, statusRevenueResponse{
			Status:  string(row.Status),
			Count:   row.Count,
			Revenue: row.Revenue,
		})
	}
	return map[string]any{
		"summary": map[string]any{
			"totalOrders":       stats.Summary.TotalOrders,
			"totalRevenue":      stats.Summary.TotalRevenue,
			"averageOrderValue": stats.Summary.AverageOrderValue,
		},
		"distribution": distribution,
	}
}
