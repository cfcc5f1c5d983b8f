package repositories

import (
	"context"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
)

// RepositoryError wraps low-level persistence failures with categorisation used by services.
type RepositoryError interface {
	error
	IsNotFound() bool
	IsConflict() bool
	IsUnavailable() bool
}

// CartRepository owns cart document persistence. Carts are keyed by buyer id.
type CartRepository interface {
	GetCart(ctx context.Context, buyerID string) (domain.Cart, error)
	// MutateCart loads the buyer's cart (an absent cart presents as empty),
	// applies fn, and persists the result atomically. Concurrent mutations of
	// the same cart are serialized; errors returned by fn abort the mutation
	// and come back unchanged.
	MutateCart(ctx context.Context, buyerID string, fn func(cart domain.Cart) (domain.Cart, error)) (domain.Cart, error)
}

// IntentStatusUpdate carries optional fields to mutate during a status transition.
type IntentStatusUpdate struct {
	GatewayPaymentID *string
}

// IntentCommitRequest describes the atomic settlement of a verified intent.
// Orders carries the rows to create; their product ids and quantities also
// drive the cart pruning inside the transaction.
type IntentCommitRequest struct {
	IntentID  string
	PaymentID string
	Orders    []domain.Order
	Now       time.Time
}

// IntentCommitResult reports the settled intent. Replayed is true when the
// intent was already committed and no writes were performed.
type IntentCommitResult struct {
	Intent   domain.PaymentIntent
	Orders   []domain.Order
	Replayed bool
}

// StaleIntentQuery selects intents stuck in a non-terminal status past a cutoff.
type StaleIntentQuery struct {
	Status        domain.IntentStatus
	CreatedBefore time.Time
	Limit         int
}

// IntentRepository persists payment intents and enforces state-machine
// transitions at the storage layer.
type IntentRepository interface {
	Insert(ctx context.Context, intent domain.PaymentIntent) error
	FindByID(ctx context.Context, intentID string) (domain.PaymentIntent, error)
	// UpdateStatus moves the intent to the target status, failing with a
	// conflict when the stored status differs from the expected one.
	UpdateStatus(ctx context.Context, intentID string, from, to domain.IntentStatus, update IntentStatusUpdate) (domain.PaymentIntent, error)
	// Commit atomically creates the order rows, removes the snapshot items
	// from the buyer's cart, and marks the intent committed.
	Commit(ctx context.Context, req IntentCommitRequest) (IntentCommitResult, error)
	ListStale(ctx context.Context, query StaleIntentQuery) ([]domain.PaymentIntent, error)
}

// OrderRepository reads the append-only order rows. Writes happen exclusively
// through IntentRepository.Commit.
type OrderRepository interface {
	FindByID(ctx context.Context, orderID string) (domain.Order, error)
	ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error)
}

// AddressRepository reads the buyer address book owned by the profile service.
type AddressRepository interface {
	FindByID(ctx context.Context, buyerID, addressID string) (domain.Address, error)
}

// ProductRepository reads the catalog owned by the catalog service.
type ProductRepository interface {
	FindByID(ctx context.Context, productID string) (domain.Product, error)
	FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error)
}

// HealthRepository aggregates dependency checks for readiness endpoints.
type HealthRepository interface {
	Collect(ctx context.Context) (domain.SystemHealthReport, error)
}
