package handlers

import (
	"context"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	domain "github.com/ll-cart/api/internal/domain"
	"github.com/ll-cart/api/internal/platform/httpx"
	"github.com/ll-cart/api/internal/services"
)

// OrderHandlers exposes read access to the buyer's order history.
type OrderHandlers struct {
	orders services.OrderService
}

// NewOrderHandlers constructs handlers backed by the order service.
func NewOrderHandlers(orders services.OrderService) *OrderHandlers {
	return &OrderHandlers{orders: orders}
}

// Routes wires the /order endpoints onto the provided router.
func (h *OrderHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Get("/buyer/{buyerId}", h.listOrders)
	r.Get("/{orderId}", h.getOrder)
}

type orderPayload struct {
	ID          string         `json:"id"`
	PaymentID   string         `json:"paymentId"`
	ProductID   string         `json:"productId"`
	ProductName string         `json:"productName"`
	Category    string         `json:"category,omitempty"`
	Quantity    int            `json:"quantity"`
	Amount      float64        `json:"amount"`
	Currency    string         `json:"currency"`
	Status      string         `json:"status"`
	OrderDate   string         `json:"orderDate"`
	Address     addressPayload `json:"address"`
}

type addressPayload struct {
	HouseNumber string `json:"houseNumber,omitempty"`
	Street      string `json:"street,omitempty"`
	City        string `json:"city,omitempty"`
	State       string `json:"state,omitempty"`
	Pincode     string `json:"pincode,omitempty"`
	Country     string `json:"country,omitempty"`
}

func (h *OrderHandlers) listOrders(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	buyerID := chi.URLParam(r, "buyerId")
	orders, err := h.orders.ListOrders(ctx, buyerID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	payloads := make([]orderPayload, 0, len(orders))
	for _, order := range orders {
		payloads = append(payloads, buildOrderPayload(order))
	}
	writeJSONResponse(w, http.StatusOK, payloads)
}

func (h *OrderHandlers) getOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.orders == nil {
		httpx.WriteError(ctx, w, httpx.NewError("order_service_unavailable", "order service is unavailable", http.StatusServiceUnavailable))
		return
	}

	orderID := chi.URLParam(r, "orderId")
	order, err := h.orders.GetOrder(ctx, orderID)
	if err != nil {
		writeOrderError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, buildOrderPayload(order))
}

func buildOrderPayload(order domain.Order) orderPayload {
	return orderPayload{
		ID:          order.ID,
		PaymentID:   order.PaymentID,
		ProductID:   order.ProductID,
		ProductName: order.ProductName,
		Category:    order.Category,
		Quantity:    order.Quantity,
		Amount:      toMajorUnits(order.Amount),
		Currency:    order.Currency,
		Status:      string(order.Status),
		OrderDate:   formatTime(order.OrderDate),
		Address: addressPayload{
			HouseNumber: order.Address.HouseNumber,
			Street:      order.Address.Street,
			City:        order.Address.City,
			State:       order.Address.State,
			Pincode:     order.Address.Pincode,
			Country:     order.Address.Country,
		},
	}
}

func writeOrderError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrOrderInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "buyerId is required", http.StatusBadRequest))
	case errors.Is(err, services.ErrOrderNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("order_not_found", "order does not exist", http.StatusNotFound))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("order_unavailable", "order storage is unavailable", http.StatusServiceUnavailable))
	}
}
