package payments

import (
	"context"
	"errors"
	"time"
)

// GatewayLogger defines the logging contract for gateway operations.
type GatewayLogger func(ctx context.Context, event string, fields map[string]any)

var (
	// ErrGatewayRejected is returned when the gateway refuses a request,
	// typically for invalid parameters or credentials. Not retryable.
	ErrGatewayRejected = errors.New("payments: gateway rejected request")
	// ErrGatewayUnavailable is returned for transport failures and gateway
	// server errors. Retryable.
	ErrGatewayUnavailable = errors.New("payments: gateway unavailable")
)

// OrderRequest captures the payload required to open a gateway order.
// Amount is in minor units (paise for INR).
type OrderRequest struct {
	Amount   int64
	Currency string
	Receipt  string
	Notes    map[string]string
}

// GatewayOrder represents the order record the gateway returns. The ID is
// the handle the frontend passes to the hosted checkout widget.
type GatewayOrder struct {
	ID        string
	Amount    int64
	Currency  string
	Receipt   string
	Status    string
	CreatedAt time.Time
}

// CallbackSignature bundles the fields the gateway posts back after a
// payment attempt.
type CallbackSignature struct {
	OrderID   string
	PaymentID string
	Signature string
}

// Gateway defines the contract payment gateway adapters implement.
type Gateway interface {
	// CreateOrder opens an order at the gateway for the given amount.
	CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error)
	// VerifySignature checks the callback HMAC in constant time.
	VerifySignature(sig CallbackSignature) bool
	// KeyID returns the public key identifier the frontend embeds in the
	// checkout widget.
	KeyID() string
}
