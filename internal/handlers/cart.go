package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	domain "github.com/ll-cart/api/internal/domain"
	"github.com/ll-cart/api/internal/platform/httpx"
	"github.com/ll-cart/api/internal/repositories"
	"github.com/ll-cart/api/internal/services"
)

// CartHandlers exposes the cart endpoints. The buyer id travels in the
// request; authentication happens upstream of this service.
type CartHandlers struct {
	carts    services.CartService
	products repositories.ProductRepository
}

// NewCartHandlers constructs handlers backed by the cart service. The product
// repository enriches cart listings with catalog details.
func NewCartHandlers(carts services.CartService, products repositories.ProductRepository) *CartHandlers {
	return &CartHandlers{
		carts:    carts,
		products: products,
	}
}

// Routes wires the /cart endpoints onto the provided router.
func (h *CartHandlers) Routes(r chi.Router) {
	if r == nil {
		return
	}
	r.Post("/add", h.addItem)
	r.Put("/update", h.updateItem)
	r.Delete("/remove/{productId}", h.removeItem)
	r.Delete("/clear/{buyerId}", h.clearCart)
	r.Get("/buyer/{buyerId}", h.getCart)
}

type addCartItemRequest struct {
	BuyerID   string `json:"buyerId"`
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

type cartItemPayload struct {
	ProductID string          `json:"productId"`
	Quantity  int             `json:"quantity"`
	AddedAt   string          `json:"addedAt,omitempty"`
	Product   *productPayload `json:"product,omitempty"`
}

type productPayload struct {
	ID       string  `json:"id"`
	Name     string  `json:"name"`
	Category string  `json:"category,omitempty"`
	Cost     float64 `json:"cost"`
	SellerID string  `json:"sellerId,omitempty"`
}

func (h *CartHandlers) addItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	body, err := readLimitedBody(r, maxRequestBodySize)
	if err != nil {
		writeBodyError(ctx, w, err)
		return
	}

	var req addCartItemRequest
	if err := json.Unmarshal(body, &req); err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "invalid JSON payload", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.AddItem(ctx, services.AddCartItemCommand{
		BuyerID:   req.BuyerID,
		ProductID: req.ProductID,
		Quantity:  req.Quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusCreated, h.itemPayload(ctx, cart, req.ProductID))
}

func (h *CartHandlers) updateItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	query := r.URL.Query()
	buyerID := strings.TrimSpace(query.Get("buyerId"))
	productID := strings.TrimSpace(query.Get("productId"))
	quantityParam := strings.TrimSpace(query.Get("quantity"))
	quantity, err := strconv.Atoi(quantityParam)
	if quantityParam == "" || err != nil {
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "quantity must be an integer", http.StatusBadRequest))
		return
	}

	cart, err := h.carts.UpdateItemQuantity(ctx, services.UpdateCartItemCommand{
		BuyerID:   buyerID,
		ProductID: productID,
		Quantity:  quantity,
	})
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, h.itemPayload(ctx, cart, productID))
}

func (h *CartHandlers) removeItem(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	productID := chi.URLParam(r, "productId")
	buyerID := strings.TrimSpace(r.URL.Query().Get("buyerId"))

	if _, err := h.carts.RemoveItem(ctx, services.RemoveCartItemCommand{
		BuyerID:   buyerID,
		ProductID: productID,
	}); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": fmt.Sprintf("removed %s from cart", productID),
	})
}

func (h *CartHandlers) clearCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	buyerID := chi.URLParam(r, "buyerId")
	if err := h.carts.ClearCart(ctx, buyerID); err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, map[string]any{
		"success": true,
		"message": "cart cleared",
	})
}

func (h *CartHandlers) getCart(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.carts == nil {
		httpx.WriteError(ctx, w, httpx.NewError("cart_service_unavailable", "cart service is unavailable", http.StatusServiceUnavailable))
		return
	}

	buyerID := chi.URLParam(r, "buyerId")
	cart, err := h.carts.GetCart(ctx, buyerID)
	if err != nil {
		writeCartError(ctx, w, err)
		return
	}

	writeJSONResponse(w, http.StatusOK, h.buildCartPayload(ctx, cart))
}

// buildCartPayload renders the cart items with catalog details embedded. A
// product that has vanished from the catalog still renders its line without
// the embed rather than breaking the listing.
func (h *CartHandlers) buildCartPayload(ctx context.Context, cart services.Cart) []cartItemPayload {
	catalog := h.lookupProducts(ctx, cart)

	items := make([]cartItemPayload, 0, len(cart.Items))
	for _, item := range cart.Items {
		payload := cartItemPayload{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   formatTime(item.AddedAt),
		}
		if product, ok := catalog[item.ProductID]; ok {
			payload.Product = buildProductPayload(product)
		}
		items = append(items, payload)
	}
	return items
}

func (h *CartHandlers) itemPayload(ctx context.Context, cart services.Cart, productID string) cartItemPayload {
	for _, payload := range h.buildCartPayload(ctx, cart) {
		if payload.ProductID == strings.TrimSpace(productID) {
			return payload
		}
	}
	return cartItemPayload{ProductID: strings.TrimSpace(productID)}
}

func (h *CartHandlers) lookupProducts(ctx context.Context, cart services.Cart) map[string]domain.Product {
	if h.products == nil || len(cart.Items) == 0 {
		return nil
	}
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}
	catalog, err := h.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil
	}
	return catalog
}

func buildProductPayload(product domain.Product) *productPayload {
	return &productPayload{
		ID:       product.ID,
		Name:     product.Name,
		Category: product.Category,
		Cost:     toMajorUnits(product.UnitCost),
		SellerID: product.SellerID,
	}
}

func writeBodyError(ctx context.Context, w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, errBodyTooLarge):
		httpx.WriteError(ctx, w, httpx.NewError("payload_too_large", "request body exceeds allowed size", http.StatusRequestEntityTooLarge))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", err.Error(), http.StatusBadRequest))
	}
}

func writeCartError(ctx context.Context, w http.ResponseWriter, err error) {
	if err == nil {
		return
	}

	switch {
	case errors.Is(err, services.ErrCartInvalidInput):
		httpx.WriteError(ctx, w, httpx.NewError("invalid_request", "buyerId and productId are required", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartProductNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("product_not_found", "product does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrCartDuplicateItem):
		httpx.WriteError(ctx, w, httpx.NewError("duplicate_item", "product is already in the cart", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartFull):
		httpx.WriteError(ctx, w, httpx.NewError("cart_full", "cart holds the maximum number of items", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartItemNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("item_not_found", "product is not in the cart", http.StatusBadRequest))
	case errors.Is(err, services.ErrCartNotFound):
		httpx.WriteError(ctx, w, httpx.NewError("cart_not_found", "cart does not exist", http.StatusNotFound))
	case errors.Is(err, services.ErrCartConflict):
		httpx.WriteError(ctx, w, httpx.NewError("cart_conflict", "cart changed concurrently; retry", http.StatusConflict))
	default:
		httpx.WriteError(ctx, w, httpx.NewError("cart_unavailable", "cart storage is unavailable", http.StatusServiceUnavailable))
	}
}
