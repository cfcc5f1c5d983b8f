package services

import (
	"context"

	domain "github.com/ll-cart/api/internal/domain"
)

// Type aliases expose domain models to the services package without reversing dependency direction.
type (
	Money              = domain.Money
	Cart               = domain.Cart
	CartItem           = domain.CartItem
	Address            = domain.Address
	Product            = domain.Product
	PaymentIntent      = domain.PaymentIntent
	IntentLine         = domain.IntentLine
	IntentStatus       = domain.IntentStatus
	Order              = domain.Order
	SystemHealthReport = domain.SystemHealthReport
)

// CartService manages mutable cart state while enforcing item and quantity bounds.
type CartService interface {
	AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error)
	UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error)
	RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error)
	ClearCart(ctx context.Context, buyerID string) error
	GetCart(ctx context.Context, buyerID string) (Cart, error)
}

// AddCartItemCommand describes an add-to-cart request.
type AddCartItemCommand struct {
	BuyerID   string
	ProductID string
	Quantity  int
}

// UpdateCartItemCommand describes a quantity change for an existing line.
type UpdateCartItemCommand struct {
	BuyerID   string
	ProductID string
	Quantity  int
}

// RemoveCartItemCommand describes a line removal.
type RemoveCartItemCommand struct {
	BuyerID   string
	ProductID string
}

// CheckoutService snapshots the cart and opens a gateway order, producing
// the payment intent the frontend hands to the hosted checkout widget.
type CheckoutService interface {
	CreateIntent(ctx context.Context, cmd CreateIntentCommand) (CheckoutIntent, error)
}

// CreateIntentCommand identifies the buyer and the delivery address to freeze
// into the intent.
type CreateIntentCommand struct {
	BuyerID   string
	AddressID string
}

// CheckoutIntent is the client-facing view of a freshly created intent.
// Amount is in minor units.
type CheckoutIntent struct {
	KeyID    string
	OrderID  string
	Amount   Money
	Currency string
}

// ReconciliationService owns the intent state machine: callback verification,
// the atomic commit, and expiry of abandoned intents.
type ReconciliationService interface {
	HandleCallback(ctx context.Context, cmd PaymentCallbackCommand) (CallbackResult, error)
	SweepExpired(ctx context.Context) (int, error)
}

// PaymentCallbackCommand carries the gateway callback fields.
type PaymentCallbackCommand struct {
	OrderID   string
	PaymentID string
	Signature string
}

// CallbackResult reports the settled state after a callback. Replayed is true
// when the intent was already committed and the call performed no writes.
type CallbackResult struct {
	Status   IntentStatus
	Replayed bool
	Orders   []Order
}

// OrderService exposes read access to the append-only order rows.
type OrderService interface {
	ListOrders(ctx context.Context, buyerID string) ([]Order, error)
	GetOrder(ctx context.Context, orderID string) (Order, error)
}

// SystemService provides health reports and runtime metadata.
type SystemService interface {
	HealthReport(ctx context.Context) (SystemHealthReport, error)
}
