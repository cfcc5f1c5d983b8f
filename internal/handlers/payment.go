package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/ll-cart/api/internal/platform/httpx"
	"github.com/ll-cart/api/internal/services"
)

// PaymentHandlers exposes intent creation and the gateway callback endpoint.
type PaymentHandlers struct {
	checkout       services.CheckoutService
	reconciliation services.ReconciliationService
}

// NewPaymentHandlers constructs handlers backed by the checkout and
// reconciliation services.
func NewPaymentHandlers(checkout services.CheckoutService, reconciliation services.ReconciliationService) *PaymentHandlers {
	return &PaymentHandlers{
		checkout:       checkout,
		reconciliation: reconciliation,
	}
}

// Routes wires the /payment endpoints onto the provided router.
func (h *PaymentHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/create-order", h.createOrder)
	r.Post("/verify-payment", h.verifyPayment)
}

type createOrderRequest struct {
	BuyerID   string `json:"buyerId"`
	AddressID string `json:"addressId"`
}

type createOrderResponse struct {
	Success  bool    `json:"success"`
	Key      string  `json:"key"`
	OrderID  string  `json:"orderId"`
	Amount   float64 `json:"amount"`
	Currency string  `json:"currency"`
}

// verifyPaymentRequest mirrors the field names the gateway checkout widget
// posts back to the client.
type verifyPaymentRequest struct {
	OrderID   string `json:"razorpay_order_id"`
	PaymentID string `json:"razorpay_payment_id"`
	Signature string `json:"razorpay_signature"`
	BuyerID   string `json:"buyerId"`
	AddressID string `json:"addressId"`
}

type paymentResultResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

func (h *PaymentHandlers) createOrder(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.checkout == nil {
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req createOrderRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	intent, err := h.checkout.CreateIntent(ctx, services.CreateIntentCommand{
		BuyerID:   req.BuyerID,
		AddressID: req.AddressID,
	})
	if err != nil {
		writeCheckoutError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, createOrderResponse{
		Success:  true,
		Key:      intent.KeyID,
		OrderID:  intent.OrderID,
		Amount:   toMajorUnits(intent.Amount),
		Currency: intent.Currency,
	})
}

func (h *PaymentHandlers) verifyPayment(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.reconciliation == nil {
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "payment verification is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req verifyPaymentRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	result, err := h.reconciliation.HandleCallback(ctx, services.PaymentCallbackCommand{
		OrderID:   req.OrderID,
		PaymentID: req.PaymentID,
		Signature: req.Signature,
	})
	if err != nil {
		writeCallbackError(ctx, w, err)
		return
	}

	message := "payment verified and orders placed"
	if result.Replayed {
		message = "payment already processed"
	}
	writeJSONResponse(w, http.StatusOK, paymentResultResponse{Success: true, Message: message})
}

func writeCheckoutError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrCheckoutInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "buyerId and addressId are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutEmptyCart):
		httpx.WriteError(ctx, w, httpx.NewError("empty_cart", "cart has no items to check out", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutAddressNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("address_not_found", "delivery address does not exist", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "a cart item is no longer in the catalog", http.StatusBadRequest))
	case errors.Is(err, services.ErrCheckoutGatewayRejected):
		writeJSONResponse(w, http.StatusPaymentRequired, paymentResultResponse{Success: false, Message: "payment gateway rejected the order"})
	case errors.Is(err, services.ErrCheckoutGatewayUnavailable):
		httpx.WriteError(ctx, w, httpx.NewError("gateway_unavailable", "payment gateway is unreachable", http.StatusBadGateway))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("checkout_unavailable", "checkout storage is unavailable", http.StatusServiceUnavailable))
	}
}

func writeCallbackError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrPaymentInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "order id, payment id, and signature are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrPaymentIntentNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("intent_not_found", "no payment intent for this order", http.StatusNotFound))
	case errors.Is(err, services.ErrPaymentSignatureMismatch):
		writeJSONResponse(w, http.StatusPaymentRequired, paymentResultResponse{Success: false, Message: "payment signature verification failed"})
	case errors.Is(err, services.ErrPaymentConflict):
		writeJSONResponse(w, http.StatusConflict, paymentResultResponse{Success: false, Message: "payment cannot be processed in its current state"})
	default:
		httpx.WriteError(ctx, w, httpx.NewError("reconciliation_unavailable", "payment verification is unavailable; retry", http.StatusServiceUnavailable))
	}
}
