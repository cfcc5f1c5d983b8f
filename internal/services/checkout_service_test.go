package services

import (
	"context"
	"errors"
	"testing"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
	"github.com/ll-cart/api/internal/payments"
	"github.com/ll-cart/api/internal/repositories"
)

type stubAddressRepository struct {
	address domain.Address
	findErr error
}

func (s *stubAddressRepository) FindByID(_ context.Context, _, _ string) (domain.Address, error) {
	if s.findErr != nil {
		return domain.Address{}, s.findErr
	}
	return s.address, nil
}

type stubGateway struct {
	order     payments.GatewayOrder
	createErr error
	verifyOK  bool

	lastRequest *payments.OrderRequest
}

func (s *stubGateway) CreateOrder(_ context.Context, req payments.OrderRequest) (payments.GatewayOrder, error) {
	s.lastRequest = &req
	if s.createErr != nil {
		return payments.GatewayOrder{}, s.createErr
	}
	return s.order, nil
}

func (s *stubGateway) VerifySignature(_ payments.CallbackSignature) bool { return s.verifyOK }

func (s *stubGateway) KeyID() string { return "rzp_test_key" }

type stubIntentRepository struct {
	intent    domain.PaymentIntent
	findErr   error
	insertErr error
	updateErr error
	commitErr error
	listErr   error
	stale     []domain.PaymentIntent

	inserted      *domain.PaymentIntent
	updates       []repositories.IntentStatusUpdate
	transitions   [][2]domain.IntentStatus
	commitResult  repositories.IntentCommitResult
	commitRequest *repositories.IntentCommitRequest
}

func (s *stubIntentRepository) Insert(_ context.Context, intent domain.PaymentIntent) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	s.inserted = &intent
	return nil
}

func (s *stubIntentRepository) FindByID(_ context.Context, _ string) (domain.PaymentIntent, error) {
	if s.findErr != nil {
		return domain.PaymentIntent{}, s.findErr
	}
	return s.intent, nil
}

func (s *stubIntentRepository) UpdateStatus(_ context.Context, _ string, from, to domain.IntentStatus, update repositories.IntentStatusUpdate) (domain.PaymentIntent, error) {
	if s.updateErr != nil {
		return domain.PaymentIntent{}, s.updateErr
	}
	s.transitions = append(s.transitions, [2]domain.IntentStatus{from, to})
	s.updates = append(s.updates, update)
	updated := s.intent
	updated.Status = to
	if update.GatewayPaymentID != nil {
		updated.GatewayPaymentID = *update.GatewayPaymentID
	}
	s.intent = updated
	return updated, nil
}

func (s *stubIntentRepository) Commit(_ context.Context, req repositories.IntentCommitRequest) (repositories.IntentCommitResult, error) {
	s.commitRequest = &req
	if s.commitErr != nil {
		return repositories.IntentCommitResult{}, s.commitErr
	}
	return s.commitResult, nil
}

func (s *stubIntentRepository) ListStale(_ context.Context, _ repositories.StaleIntentQuery) ([]domain.PaymentIntent, error) {
	if s.listErr != nil {
		return nil, s.listErr
	}
	return s.stale, nil
}

func newCheckoutServiceForTest(t *testing.T, carts *stubCartRepository, products *stubProductRepository, addresses *stubAddressRepository, intents *stubIntentRepository, gateway *stubGateway) CheckoutService {
	t.Helper()
	svc, err := NewCheckoutService(CheckoutServiceDeps{
		Carts:     carts,
		Products:  products,
		Addresses: addresses,
		Intents:   intents,
		Gateway:   gateway,
		Clock:     fixedClock(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)),
		Currency:  "inr",
	})
	if err != nil {
		t.Fatalf("NewCheckoutService returned error: %v", err)
	}
	return svc
}

func TestCreateIntentSnapshotsCartAndOpensGatewayOrder(t *testing.T) {
	carts := &stubCartRepository{cart: domain.Cart{
		BuyerID: "buyer-1",
		Items: []domain.CartItem{
			{ProductID: "prod-1", Quantity: 2},
			{ProductID: "prod-2", Quantity: 1},
		},
	}}
	products := &stubProductRepository{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Mug", Category: "kitchen", UnitCost: 25000},
		"prod-2": {ID: "prod-2", Name: "Plate", Category: "kitchen", UnitCost: 40000},
	}}
	addresses := &stubAddressRepository{address: domain.Address{ID: "addr-1", BuyerID: "buyer-1", City: "Pune"}}
	intents := &stubIntentRepository{}
	gateway := &stubGateway{order: payments.GatewayOrder{ID: "order_123", Amount: 90000, Currency: "INR"}}
	svc := newCheckoutServiceForTest(t, carts, products, addresses, intents, gateway)

	result, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-1"})
	if err != nil {
		t.Fatalf("CreateIntent returned error: %v", err)
	}
	if result.OrderID != "order_123" {
		t.Fatalf("expected gateway order id, got %q", result.OrderID)
	}
	if result.Amount != 90000 {
		t.Fatalf("expected total 90000, got %d", result.Amount)
	}
	if result.Currency != "INR" {
		t.Fatalf("expected currency INR, got %q", result.Currency)
	}
	if result.KeyID != "rzp_test_key" {
		t.Fatalf("expected gateway key id, got %q", result.KeyID)
	}
	if gateway.lastRequest == nil || gateway.lastRequest.Amount != 90000 {
		t.Fatalf("unexpected gateway request: %+v", gateway.lastRequest)
	}
	if intents.inserted == nil {
		t.Fatal("expected intent to be persisted")
	}
	if intents.inserted.Status != domain.IntentCreated {
		t.Fatalf("expected Created status, got %q", intents.inserted.Status)
	}
	if len(intents.inserted.Lines) != 2 {
		t.Fatalf("expected two frozen lines, got %d", len(intents.inserted.Lines))
	}
	if intents.inserted.Address.City != "Pune" {
		t.Fatalf("expected address snapshot, got %+v", intents.inserted.Address)
	}
}

func TestCreateIntentRejectsEmptyCart(t *testing.T) {
	carts := &stubCartRepository{cart: domain.Cart{BuyerID: "buyer-1", Items: []domain.CartItem{}}}
	svc := newCheckoutServiceForTest(t, carts, &stubProductRepository{}, &stubAddressRepository{}, &stubIntentRepository{}, &stubGateway{})

	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-1"}); !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
}

func TestCreateIntentRejectsMissingCart(t *testing.T) {
	carts := &stubCartRepository{getErr: errRepoNotFound}
	svc := newCheckoutServiceForTest(t, carts, &stubProductRepository{}, &stubAddressRepository{}, &stubIntentRepository{}, &stubGateway{})

	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-1"}); !errors.Is(err, ErrCheckoutEmptyCart) {
		t.Fatalf("expected ErrCheckoutEmptyCart, got %v", err)
	}
}

func TestCreateIntentRejectsUnknownAddress(t *testing.T) {
	carts := &stubCartRepository{cart: domain.Cart{BuyerID: "buyer-1", Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}}}
	addresses := &stubAddressRepository{findErr: errRepoNotFound}
	svc := newCheckoutServiceForTest(t, carts, &stubProductRepository{}, addresses, &stubIntentRepository{}, &stubGateway{})

	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-x"}); !errors.Is(err, ErrCheckoutAddressNotFound) {
		t.Fatalf("expected ErrCheckoutAddressNotFound, got %v", err)
	}
}

func TestCreateIntentRejectsVanishedProduct(t *testing.T) {
	carts := &stubCartRepository{cart: domain.Cart{BuyerID: "buyer-1", Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}}}
	products := &stubProductRepository{products: map[string]domain.Product{}}
	svc := newCheckoutServiceForTest(t, carts, products, &stubAddressRepository{}, &stubIntentRepository{}, &stubGateway{})

	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-1"}); !errors.Is(err, ErrCheckoutProductNotFound) {
		t.Fatalf("expected ErrCheckoutProductNotFound, got %v", err)
	}
}

func TestCreateIntentTranslatesGatewayErrors(t *testing.T) {
	carts := &stubCartRepository{cart: domain.Cart{BuyerID: "buyer-1", Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}}}
	products := &stubProductRepository{products: map[string]domain.Product{"prod-1": {ID: "prod-1", UnitCost: 100}}}

	gateway := &stubGateway{createErr: payments.ErrGatewayRejected}
	svc := newCheckoutServiceForTest(t, carts, products, &stubAddressRepository{}, &stubIntentRepository{}, gateway)
	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-1"}); !errors.Is(err, ErrCheckoutGatewayRejected) {
		t.Fatalf("expected ErrCheckoutGatewayRejected, got %v", err)
	}

	gateway = &stubGateway{createErr: payments.ErrGatewayUnavailable}
	svc = newCheckoutServiceForTest(t, carts, products, &stubAddressRepository{}, &stubIntentRepository{}, gateway)
	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "buyer-1", AddressID: "addr-1"}); !errors.Is(err, ErrCheckoutGatewayUnavailable) {
		t.Fatalf("expected ErrCheckoutGatewayUnavailable, got %v", err)
	}
}

func TestCreateIntentValidatesInput(t *testing.T) {
	svc := newCheckoutServiceForTest(t, &stubCartRepository{}, &stubProductRepository{}, &stubAddressRepository{}, &stubIntentRepository{}, &stubGateway{})

	if _, err := svc.CreateIntent(context.Background(), CreateIntentCommand{BuyerID: "", AddressID: "addr-1"}); !errors.Is(err, ErrCheckoutInvalidInput) {
		t.Fatalf("expected ErrCheckoutInvalidInput, got %v", err)
	}
}
