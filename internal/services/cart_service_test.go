package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
)

type stubRepoError struct {
	notFound    bool
	conflict    bool
	unavailable bool
}

func (e *stubRepoError) Error() string { return "stub repository error" }

func (e *stubRepoError) IsNotFound() bool { return e.notFound }

func (e *stubRepoError) IsConflict() bool { return e.conflict }

func (e *stubRepoError) IsUnavailable() bool { return e.unavailable }

var errRepoNotFound = &stubRepoError{notFound: true}

// stubCartRepository honours the CartRepository contract: MutateCart applies
// the mutation atomically against the stored cart, so interleaved callers
// cannot both observe the pre-mutation state.
type stubCartRepository struct {
	mu        sync.Mutex
	cart      domain.Cart
	getErr    error
	mutateErr error

	saved *domain.Cart
}

func (s *stubCartRepository) GetCart(_ context.Context, _ string) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.getErr != nil {
		return domain.Cart{}, s.getErr
	}
	return s.cart, nil
}

func (s *stubCartRepository) MutateCart(_ context.Context, buyerID string, fn func(domain.Cart) (domain.Cart, error)) (domain.Cart, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.mutateErr != nil {
		return domain.Cart{}, s.mutateErr
	}

	cart := s.cart
	if s.getErr != nil {
		if !isRepoNotFound(s.getErr) {
			return domain.Cart{}, s.getErr
		}
		cart = domain.Cart{BuyerID: buyerID, Items: []domain.CartItem{}}
	}
	if cart.BuyerID == "" {
		cart.BuyerID = buyerID
	}

	next, err := fn(cart)
	if err != nil {
		return domain.Cart{}, err
	}
	s.cart = next
	s.getErr = nil
	s.saved = &next
	return next, nil
}

type stubProductRepository struct {
	products map[string]domain.Product
	findErr  error
}

func (s *stubProductRepository) FindByID(_ context.Context, productID string) (domain.Product, error) {
	if s.findErr != nil {
		return domain.Product{}, s.findErr
	}
	product, ok := s.products[productID]
	if !ok {
		return domain.Product{}, errRepoNotFound
	}
	return product, nil
}

func (s *stubProductRepository) FindByIDs(_ context.Context, productIDs []string) (map[string]domain.Product, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	found := make(map[string]domain.Product, len(productIDs))
	for _, id := range productIDs {
		if product, ok := s.products[id]; ok {
			found[id] = product
		}
	}
	return found, nil
}

func fixedClock(t time.Time) func() time.Time {
	return func() time.Time { return t }
}

func newCartServiceForTest(t *testing.T, repo *stubCartRepository, products *stubProductRepository) CartService {
	t.Helper()
	svc, err := NewCartService(CartServiceDeps{
		Repository:  repo,
		Products:    products,
		Clock:       fixedClock(time.Date(2026, time.March, 1, 12, 0, 0, 0, time.UTC)),
		MaxItems:    3,
		MaxQuantity: 5,
	})
	if err != nil {
		t.Fatalf("NewCartService returned error: %v", err)
	}
	return svc
}

func TestAddItemCreatesCartAndClampsQuantity(t *testing.T) {
	repo := &stubCartRepository{getErr: errRepoNotFound}
	products := &stubProductRepository{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1", Name: "Mug", UnitCost: 25000},
	}}
	svc := newCartServiceForTest(t, repo, products)

	cart, err := svc.AddItem(context.Background(), AddCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-1", Quantity: 99})
	if err != nil {
		t.Fatalf("AddItem returned error: %v", err)
	}
	if len(cart.Items) != 1 {
		t.Fatalf("expected one item, got %d", len(cart.Items))
	}
	if cart.Items[0].Quantity != 5 {
		t.Fatalf("expected quantity clamped to 5, got %d", cart.Items[0].Quantity)
	}
	if repo.saved == nil {
		t.Fatal("expected cart to be persisted")
	}
}

func TestAddItemConcurrentAddsAdmitOnlyOneLine(t *testing.T) {
	repo := &stubCartRepository{getErr: errRepoNotFound}
	products := &stubProductRepository{products: map[string]domain.Product{
		"prod-7": {ID: "prod-7", Name: "Bowl", UnitCost: 15000},
	}}
	svc := newCartServiceForTest(t, repo, products)

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i := range results {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, results[i] = svc.AddItem(context.Background(), AddCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-7", Quantity: 1})
		}(i)
	}
	wg.Wait()

	succeeded, duplicates := 0, 0
	for _, err := range results {
		switch {
		case err == nil:
			succeeded++
		case errors.Is(err, ErrCartDuplicateItem):
			duplicates++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	if succeeded != 1 || duplicates != 1 {
		t.Fatalf("expected one add and one duplicate rejection, got %d adds and %d duplicates", succeeded, duplicates)
	}
	if len(repo.cart.Items) != 1 {
		t.Fatalf("expected one line in the cart, got %d", len(repo.cart.Items))
	}
}

func TestAddItemRejectsUnknownProduct(t *testing.T) {
	repo := &stubCartRepository{getErr: errRepoNotFound}
	products := &stubProductRepository{products: map[string]domain.Product{}}
	svc := newCartServiceForTest(t, repo, products)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{BuyerID: "buyer-1", ProductID: "missing", Quantity: 1}); !errors.Is(err, ErrCartProductNotFound) {
		t.Fatalf("expected ErrCartProductNotFound, got %v", err)
	}
}

func TestAddItemRejectsDuplicateLine(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{
		BuyerID: "buyer-1",
		Items:   []domain.CartItem{{ProductID: "prod-1", Quantity: 2}},
	}}
	products := &stubProductRepository{products: map[string]domain.Product{
		"prod-1": {ID: "prod-1"},
	}}
	svc := newCartServiceForTest(t, repo, products)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-1", Quantity: 1}); !errors.Is(err, ErrCartDuplicateItem) {
		t.Fatalf("expected ErrCartDuplicateItem, got %v", err)
	}
}

func TestAddItemRejectsFullCart(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{
		BuyerID: "buyer-1",
		Items: []domain.CartItem{
			{ProductID: "prod-1", Quantity: 1},
			{ProductID: "prod-2", Quantity: 1},
			{ProductID: "prod-3", Quantity: 1},
		},
	}}
	products := &stubProductRepository{products: map[string]domain.Product{
		"prod-4": {ID: "prod-4"},
	}}
	svc := newCartServiceForTest(t, repo, products)

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-4", Quantity: 1}); !errors.Is(err, ErrCartFull) {
		t.Fatalf("expected ErrCartFull, got %v", err)
	}
}

func TestUpdateItemQuantityMissingLine(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{BuyerID: "buyer-1", Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}}}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	if _, err := svc.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-2", Quantity: 2}); !errors.Is(err, ErrCartItemNotFound) {
		t.Fatalf("expected ErrCartItemNotFound, got %v", err)
	}
}

func TestUpdateItemQuantityPersistsChange(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{BuyerID: "buyer-1", Items: []domain.CartItem{{ProductID: "prod-1", Quantity: 1}}}}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	cart, err := svc.UpdateItemQuantity(context.Background(), UpdateCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-1", Quantity: 4})
	if err != nil {
		t.Fatalf("UpdateItemQuantity returned error: %v", err)
	}
	if cart.Items[0].Quantity != 4 {
		t.Fatalf("expected quantity 4, got %d", cart.Items[0].Quantity)
	}
}

func TestRemoveItemDropsLine(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{
		BuyerID: "buyer-1",
		Items: []domain.CartItem{
			{ProductID: "prod-1", Quantity: 1},
			{ProductID: "prod-2", Quantity: 2},
		},
	}}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-1"})
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "prod-2" {
		t.Fatalf("unexpected remaining items: %+v", cart.Items)
	}
}

func TestRemoveItemAbsentLineSucceeds(t *testing.T) {
	repo := &stubCartRepository{cart: domain.Cart{
		BuyerID: "buyer-1",
		Items:   []domain.CartItem{{ProductID: "prod-2", Quantity: 2}},
	}}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-1"})
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Items) != 1 || cart.Items[0].ProductID != "prod-2" {
		t.Fatalf("expected cart untouched, got %+v", cart.Items)
	}
}

func TestRemoveItemAbsentCartSucceeds(t *testing.T) {
	repo := &stubCartRepository{getErr: errRepoNotFound}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	cart, err := svc.RemoveItem(context.Background(), RemoveCartItemCommand{BuyerID: "buyer-1", ProductID: "prod-1"})
	if err != nil {
		t.Fatalf("RemoveItem returned error: %v", err)
	}
	if len(cart.Items) != 0 {
		t.Fatalf("expected empty cart, got %+v", cart.Items)
	}
}

func TestClearCartToleratesMissingCart(t *testing.T) {
	repo := &stubCartRepository{getErr: errRepoNotFound}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	if err := svc.ClearCart(context.Background(), "buyer-1"); err != nil {
		t.Fatalf("ClearCart returned error: %v", err)
	}
	if repo.saved == nil || len(repo.saved.Items) != 0 {
		t.Fatalf("expected empty cart persisted, got %+v", repo.saved)
	}
}

func TestGetCartReturnsEmptyCartWhenAbsent(t *testing.T) {
	repo := &stubCartRepository{getErr: errRepoNotFound}
	svc := newCartServiceForTest(t, repo, &stubProductRepository{})

	cart, err := svc.GetCart(context.Background(), "buyer-1")
	if err != nil {
		t.Fatalf("GetCart returned error: %v", err)
	}
	if cart.BuyerID != "buyer-1" || len(cart.Items) != 0 {
		t.Fatalf("unexpected cart: %+v", cart)
	}
}

func TestCartServiceValidatesInput(t *testing.T) {
	svc := newCartServiceForTest(t, &stubCartRepository{}, &stubProductRepository{})

	if _, err := svc.AddItem(context.Background(), AddCartItemCommand{BuyerID: " ", ProductID: "prod-1"}); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
	if _, err := svc.GetCart(context.Background(), ""); !errors.Is(err, ErrCartInvalidInput) {
		t.Fatalf("expected ErrCartInvalidInput, got %v", err)
	}
}
