package services

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ll-cart/api/internal/repositories"
)

var (
	errCartRepositoryRequired = errors.New("cart service: repository is required")
	errCartProductsRequired   = errors.New("cart service: product repository is required")
	errCartClockRequired      = errors.New("cart service: clock is required")
)

// ErrCartInvalidInput indicates the caller supplied invalid input.
var ErrCartInvalidInput = errors.New("cart service: invalid input")

// ErrCartUnavailable indicates the cart service cannot fulfil the request due to backend issues.
var ErrCartUnavailable = errors.New("cart service: unavailable")

// ErrCartNotFound indicates the requested cart does not exist.
var ErrCartNotFound = errors.New("cart service: not found")

// ErrCartConflict indicates the cart could not be updated due to concurrent modifications.
var ErrCartConflict = errors.New("cart service: conflict")

// ErrCartItemNotFound indicates the product is not in the cart.
var ErrCartItemNotFound = errors.New("cart service: item not found")

// ErrCartDuplicateItem indicates the product is already in the cart.
var ErrCartDuplicateItem = errors.New("cart service: duplicate item")

// ErrCartFull indicates the cart holds the maximum number of distinct items.
var ErrCartFull = errors.New("cart service: cart full")

// ErrCartProductNotFound indicates the referenced product does not exist in the catalog.
var ErrCartProductNotFound = errors.New("cart service: product not found")

const (
	defaultCartMaxItems    = 10
	defaultCartMaxQuantity = 10
)

// CartServiceDeps wires the repositories and limits for cart operations.
type CartServiceDeps struct {
	Repository  repositories.CartRepository
	Products    repositories.ProductRepository
	Clock       func() time.Time
	MaxItems    int
	MaxQuantity int
	Logger      func(context.Context, string, map[string]any)
}

type cartService struct {
	repo        repositories.CartRepository
	products    repositories.ProductRepository
	now         func() time.Time
	maxItems    int
	maxQuantity int
	logger      func(context.Context, string, map[string]any)
}

// NewCartService constructs a CartService enforcing dependency validation.
func NewCartService(deps CartServiceDeps) (CartService, error) {
	if deps.Repository == nil {
		return nil, errCartRepositoryRequired
	}
	if deps.Products == nil {
		return nil, errCartProductsRequired
	}
	if deps.Clock == nil {
		return nil, errCartClockRequired
	}

	maxItems := deps.MaxItems
	if maxItems <= 0 {
		maxItems = defaultCartMaxItems
	}
	maxQuantity := deps.MaxQuantity
	if maxQuantity <= 0 {
		maxQuantity = defaultCartMaxQuantity
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &cartService{
		repo:        deps.Repository,
		products:    deps.Products,
		now:         func() time.Time { return deps.Clock().UTC() },
		maxItems:    maxItems,
		maxQuantity: maxQuantity,
		logger:      logger,
	}, nil
}

// AddItem appends a new line to the buyer's cart. Quantities are clamped
// into [1, max]; adding a product already present fails with
// ErrCartDuplicateItem so the caller can route the client to an update.
// The uniqueness and capacity checks run inside the repository mutation,
// so concurrent adds for the same buyer cannot both pass them.
func (s *cartService) AddItem(ctx context.Context, cmd AddCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	quantity := s.clampQuantity(cmd.Quantity)

	if _, err := s.products.FindByID(ctx, productID); err != nil {
		if isRepoNotFound(err) {
			return Cart{}, ErrCartProductNotFound
		}
		return Cart{}, translateCartRepoError(err)
	}

	saved, err := s.repo.MutateCart(ctx, buyerID, func(cart Cart) (Cart, error) {
		for _, item := range cart.Items {
			if item.ProductID == productID {
				return Cart{}, ErrCartDuplicateItem
			}
		}
		if len(cart.Items) >= s.maxItems {
			return Cart{}, ErrCartFull
		}

		now := s.now()
		cart.Items = append(cart.Items, CartItem{
			ProductID: productID,
			Quantity:  quantity,
			AddedAt:   now,
		})
		cart.UpdatedAt = now
		return cart, nil
	})
	if err != nil {
		return Cart{}, translateCartMutationError(err)
	}

	s.logger(ctx, "cart.item_added", map[string]any{
		"buyer_id":   buyerID,
		"product_id": productID,
		"quantity":   quantity,
	})
	return saved, nil
}

// UpdateItemQuantity changes the quantity of an existing line.
func (s *cartService) UpdateItemQuantity(ctx context.Context, cmd UpdateCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}
	quantity := s.clampQuantity(cmd.Quantity)

	saved, err := s.repo.MutateCart(ctx, buyerID, func(cart Cart) (Cart, error) {
		for i := range cart.Items {
			if cart.Items[i].ProductID == productID {
				cart.Items[i].Quantity = quantity
				cart.UpdatedAt = s.now()
				return cart, nil
			}
		}
		return Cart{}, ErrCartItemNotFound
	})
	if err != nil {
		return Cart{}, translateCartMutationError(err)
	}
	return saved, nil
}

// RemoveItem drops a line from the cart. Removing a line that is not there
// succeeds silently, so retries and the post-commit prune race are harmless.
func (s *cartService) RemoveItem(ctx context.Context, cmd RemoveCartItemCommand) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	buyerID := strings.TrimSpace(cmd.BuyerID)
	productID := strings.TrimSpace(cmd.ProductID)
	if buyerID == "" || productID == "" {
		return Cart{}, ErrCartInvalidInput
	}

	saved, err := s.repo.MutateCart(ctx, buyerID, func(cart Cart) (Cart, error) {
		remaining := make([]CartItem, 0, len(cart.Items))
		found := false
		for _, item := range cart.Items {
			if item.ProductID == productID {
				found = true
				continue
			}
			remaining = append(remaining, item)
		}
		if found {
			cart.Items = remaining
			cart.UpdatedAt = s.now()
		}
		return cart, nil
	})
	if err != nil {
		return Cart{}, translateCartMutationError(err)
	}
	return saved, nil
}

// ClearCart empties the buyer's cart. Clearing an absent or already empty
// cart is a no-op.
func (s *cartService) ClearCart(ctx context.Context, buyerID string) error {
	if s == nil || s.repo == nil {
		return ErrCartUnavailable
	}

	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return ErrCartInvalidInput
	}

	if _, err := s.repo.MutateCart(ctx, bid, func(cart Cart) (Cart, error) {
		cart.Items = []CartItem{}
		cart.UpdatedAt = s.now()
		return cart, nil
	}); err != nil {
		return translateCartMutationError(err)
	}
	return nil
}

// GetCart loads the cart, returning an empty cart when none exists yet.
func (s *cartService) GetCart(ctx context.Context, buyerID string) (Cart, error) {
	if s == nil || s.repo == nil {
		return Cart{}, ErrCartUnavailable
	}

	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return Cart{}, ErrCartInvalidInput
	}
	return s.loadOrEmptyCart(ctx, bid)
}

func (s *cartService) loadOrEmptyCart(ctx context.Context, buyerID string) (Cart, error) {
	cart, err := s.repo.GetCart(ctx, buyerID)
	if err != nil {
		if isRepoNotFound(err) {
			now := s.now()
			return Cart{BuyerID: buyerID, Items: []CartItem{}, CreatedAt: now, UpdatedAt: now}, nil
		}
		return Cart{}, translateCartRepoError(err)
	}
	if cart.Items == nil {
		cart.Items = []CartItem{}
	}
	return cart, nil
}

func (s *cartService) clampQuantity(quantity int) int {
	if quantity < 1 {
		return 1
	}
	if quantity > s.maxQuantity {
		return s.maxQuantity
	}
	return quantity
}

// translateCartMutationError keeps the sentinels raised inside a MutateCart
// function intact and classifies everything else as a repository failure.
func translateCartMutationError(err error) error {
	switch {
	case errors.Is(err, ErrCartDuplicateItem),
		errors.Is(err, ErrCartFull),
		errors.Is(err, ErrCartItemNotFound):
		return err
	}
	return translateCartRepoError(err)
}

func translateCartRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrCartNotFound
		case repoErr.IsConflict():
			return ErrCartConflict
		case repoErr.IsUnavailable():
			return ErrCartUnavailable
		}
	}
	return ErrCartUnavailable
}

func isRepoNotFound(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsNotFound()
	}
	return false
}

func isRepoConflict(err error) bool {
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		return repoErr.IsConflict()
	}
	return false
}
