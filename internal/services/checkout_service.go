package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	domain "github.com/ll-cart/api/internal/domain"
	"github.com/ll-cart/api/internal/payments"
	"github.com/ll-cart/api/internal/repositories"
)

var (
	errCheckoutCartsRequired     = errors.New("checkout service: cart repository is required")
	errCheckoutProductsRequired  = errors.New("checkout service: product repository is required")
	errCheckoutAddressesRequired = errors.New("checkout service: address repository is required")
	errCheckoutIntentsRequired   = errors.New("checkout service: intent repository is required")
	errCheckoutGatewayRequired   = errors.New("checkout service: gateway is required")
	errCheckoutClockRequired     = errors.New("checkout service: clock is required")
	errCheckoutCurrencyRequired  = errors.New("checkout service: currency is required")
)

// ErrCheckoutInvalidInput indicates the caller supplied invalid input.
var ErrCheckoutInvalidInput = errors.New("checkout service: invalid input")

// ErrCheckoutUnavailable indicates a backend dependency failed.
var ErrCheckoutUnavailable = errors.New("checkout service: unavailable")

// ErrCheckoutEmptyCart indicates the buyer's cart has no items to check out.
var ErrCheckoutEmptyCart = errors.New("checkout service: empty cart")

// ErrCheckoutAddressNotFound indicates the delivery address does not exist.
var ErrCheckoutAddressNotFound = errors.New("checkout service: address not found")

// ErrCheckoutProductNotFound indicates a cart line references a product that
// no longer exists in the catalog.
var ErrCheckoutProductNotFound = errors.New("checkout service: product not found")

// ErrCheckoutGatewayRejected indicates the payment gateway refused the order.
var ErrCheckoutGatewayRejected = errors.New("checkout service: gateway rejected order")

// ErrCheckoutGatewayUnavailable indicates the payment gateway could not be reached.
var ErrCheckoutGatewayUnavailable = errors.New("checkout service: gateway unavailable")

// CheckoutServiceDeps wires the stores and the gateway for intent creation.
type CheckoutServiceDeps struct {
	Carts     repositories.CartRepository
	Products  repositories.ProductRepository
	Addresses repositories.AddressRepository
	Intents   repositories.IntentRepository
	Gateway   payments.Gateway
	Clock     func() time.Time
	Currency  string
	Logger    func(context.Context, string, map[string]any)
}

type checkoutService struct {
	carts     repositories.CartRepository
	products  repositories.ProductRepository
	addresses repositories.AddressRepository
	intents   repositories.IntentRepository
	gateway   payments.Gateway
	now       func() time.Time
	currency  string
	logger    func(context.Context, string, map[string]any)
}

// NewCheckoutService constructs a CheckoutService enforcing dependency validation.
func NewCheckoutService(deps CheckoutServiceDeps) (CheckoutService, error) {
	if deps.Carts == nil {
		return nil, errCheckoutCartsRequired
	}
	if deps.Products == nil {
		return nil, errCheckoutProductsRequired
	}
	if deps.Addresses == nil {
		return nil, errCheckoutAddressesRequired
	}
	if deps.Intents == nil {
		return nil, errCheckoutIntentsRequired
	}
	if deps.Gateway == nil {
		return nil, errCheckoutGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errCheckoutClockRequired
	}

	currency := strings.ToUpper(strings.TrimSpace(deps.Currency))
	if currency == "" {
		return nil, errCheckoutCurrencyRequired
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &checkoutService{
		carts:     deps.Carts,
		products:  deps.Products,
		addresses: deps.Addresses,
		intents:   deps.Intents,
		gateway:   deps.Gateway,
		now:       func() time.Time { return deps.Clock().UTC() },
		currency:  currency,
		logger:    logger,
	}, nil
}

// CreateIntent snapshots the buyer's cart at current catalog prices, opens a
// gateway order for the total, and records the intent in Created status. The
// cart itself is untouched until the payment commits.
func (s *checkoutService) CreateIntent(ctx context.Context, cmd CreateIntentCommand) (CheckoutIntent, error) {
	if s == nil || s.intents == nil {
		return CheckoutIntent{}, ErrCheckoutUnavailable
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	addressID := strings.TrimSpace(cmd.AddressID)
	if buyerID == "" || addressID == "" {
		return CheckoutIntent{}, ErrCheckoutInvalidInput
	}

	cart, err := s.carts.GetCart(ctx, buyerID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutIntent{}, ErrCheckoutEmptyCart
		}
		return CheckoutIntent{}, translateCheckoutRepoError(err)
	}
	if len(cart.Items) == 0 {
		return CheckoutIntent{}, ErrCheckoutEmptyCart
	}

	address, err := s.addresses.FindByID(ctx, buyerID, addressID)
	if err != nil {
		if isRepoNotFound(err) {
			return CheckoutIntent{}, ErrCheckoutAddressNotFound
		}
		return CheckoutIntent{}, translateCheckoutRepoError(err)
	}

	lines, total, err := s.priceCart(ctx, cart)
	if err != nil {
		return CheckoutIntent{}, err
	}

	order, err := s.gateway.CreateOrder(ctx, payments.OrderRequest{
		Amount:   total,
		Currency: s.currency,
		Receipt:  "rcpt_" + ulid.Make().String(),
		Notes: map[string]string{
			"buyerId":   buyerID,
			"addressId": addressID,
		},
	})
	if err != nil {
		return CheckoutIntent{}, translateGatewayError(err)
	}

	now := s.now()
	intent := PaymentIntent{
		ID:        order.ID,
		BuyerID:   buyerID,
		Address:   address,
		Lines:     lines,
		Amount:    total,
		Currency:  s.currency,
		Status:    domain.IntentCreated,
		CreatedAt: now,
		UpdatedAt: now,
	}

	if err := s.intents.Insert(ctx, intent); err != nil {
		return CheckoutIntent{}, translateCheckoutRepoError(err)
	}

	s.logger(ctx, "checkout.intent_created", map[string]any{
		"buyer_id":  buyerID,
		"intent_id": intent.ID,
		"amount":    total,
		"currency":  s.currency,
		"lines":     len(lines),
	})

	return CheckoutIntent{
		KeyID:    s.gateway.KeyID(),
		OrderID:  order.ID,
		Amount:   total,
		Currency: s.currency,
	}, nil
}

// priceCart freezes the cart lines at current catalog prices and returns the
// order total in minor units.
func (s *checkoutService) priceCart(ctx context.Context, cart Cart) ([]IntentLine, Money, error) {
	ids := make([]string, 0, len(cart.Items))
	for _, item := range cart.Items {
		ids = append(ids, item.ProductID)
	}

	catalog, err := s.products.FindByIDs(ctx, ids)
	if err != nil {
		return nil, 0, translateCheckoutRepoError(err)
	}

	lines := make([]IntentLine, 0, len(cart.Items))
	var total Money
	for _, item := range cart.Items {
		product, ok := catalog[item.ProductID]
		if !ok {
			return nil, 0, ErrCheckoutProductNotFound
		}
		line := IntentLine{
			ProductID:   product.ID,
			ProductName: product.Name,
			Category:    product.Category,
			Quantity:    item.Quantity,
			UnitCost:    product.UnitCost,
		}
		lines = append(lines, line)
		total += line.LineAmount()
	}
	return lines, total, nil
}

func translateGatewayError(err error) error {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case errors.Is(err, payments.ErrGatewayRejected):
		return ErrCheckoutGatewayRejected
	default:
		return ErrCheckoutGatewayUnavailable
	}
}

func translateCheckoutRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCheckoutInvalidInput
		case repoErr.IsUnavailable():
			return ErrCheckoutUnavailable
		}
	}
	return ErrCheckoutUnavailable
}
