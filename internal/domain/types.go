package domain

import (
	"time"
)

// Money amounts are carried as int64 minor units (paise for INR). The HTTP
// layer converts to major units at the edge; nothing below it uses floats.
type Money = int64

// Address is an immutable snapshot of a buyer delivery address, captured at
// payment-intent creation time. Later edits to the address book never reach
// an intent or an order that already holds a snapshot.
type Address struct {
	ID          string
	BuyerID     string
	HouseNumber string
	Street      string
	City        string
	State       string
	Pincode     string
	Country     string
	IsDefault   bool
	UpdatedAt   time.Time
}

// Product carries the catalog fields the checkout flow reads. The catalog is
// owned elsewhere; this subsystem never writes products.
type Product struct {
	ID       string
	Name     string
	Category string
	UnitCost Money
	SellerID string
}

// CartItem is a single line in a buyer's cart. Uniqueness on
// (BuyerID, ProductID) is enforced by the cart service.
type CartItem struct {
	ProductID string
	Quantity  int
	AddedAt   time.Time
}

// Cart holds the mutable per-buyer line items. The document is keyed by the
// buyer id, so per-buyer mutations serialize on a single Firestore document.
type Cart struct {
	BuyerID   string
	Items     []CartItem
	CreatedAt time.Time
	UpdatedAt time.Time
}

// IntentStatus enumerates the reconciliation state machine. Transitions are
// monotonic: Created -> Verified -> Committed, with Failed absorbing from
// Created or Verified.
type IntentStatus string

const (
	// IntentCreated means the gateway order exists but no money has moved.
	IntentCreated IntentStatus = "CREATED"
	// IntentVerified means the callback signature checked out; the commit
	// has not completed yet.
	IntentVerified IntentStatus = "VERIFIED"
	// IntentCommitted means orders are persisted and the snapshot items are
	// cleared from the cart. Terminal.
	IntentCommitted IntentStatus = "COMMITTED"
	// IntentFailed is the absorbing failure state (bad signature, expiry).
	IntentFailed IntentStatus = "FAILED"
)

// CanTransition reports whether moving from s to next respects the state
// machine. Terminal states admit no successor.
func (s IntentStatus) CanTransition(next IntentStatus) bool {
	switch s {
	case IntentCreated:
		return next == IntentVerified || next == IntentFailed
	case IntentVerified:
		return next == IntentCommitted || next == IntentFailed
	default:
		return false
	}
}

// Terminal reports whether the status admits no further transitions.
func (s IntentStatus) Terminal() bool {
	return s == IntentCommitted || s == IntentFailed
}

// IntentLine is one priced cart line frozen into a payment intent. UnitCost
// is the catalog price at intent-creation time; later catalog edits do not
// change it.
type IntentLine struct {
	ProductID   string
	ProductName string
	Category    string
	Quantity    int
	UnitCost    Money
}

// PaymentIntent is the reconciliation engine's record of one checkout
// attempt. The ID is the gateway-assigned order id, which doubles as the
// idempotency key for the commit. Once Committed or Failed the intent is
// never mutated again.
type PaymentIntent struct {
	ID               string
	BuyerID          string
	Address          Address
	Lines            []IntentLine
	Amount           Money
	Currency         string
	Status           IntentStatus
	GatewayPaymentID string
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// OrderStatus for rows written by this subsystem. Only OrderPaid is ever
// produced here; downstream fulfilment states live outside this service.
type OrderStatus string

// OrderPaid marks an order whose payment has been captured and verified.
const OrderPaid OrderStatus = "PAID"

// Order is one immutable per-line-item order row produced by a committed
// payment intent. Amount equals UnitCost * Quantity captured on the intent.
type Order struct {
	ID          string
	IntentID    string
	PaymentID   string
	BuyerID     string
	ProductID   string
	ProductName string
	Category    string
	Quantity    int
	Amount      Money
	Currency    string
	Address     Address
	Status      OrderStatus
	OrderDate   time.Time
}

// LineAmount returns the captured amount for one intent line.
func (l IntentLine) LineAmount() Money {
	return l.UnitCost * Money(l.Quantity)
}
