package services

import (
	"context"
	"errors"
	"strings"

	"github.com/ll-cart/api/internal/repositories"
)

var errOrderRepositoryRequired = errors.New("order service: repository is required")

// ErrOrderInvalidInput indicates the caller supplied invalid input.
var ErrOrderInvalidInput = errors.New("order service: invalid input")

// ErrOrderNotFound indicates the requested order does not exist.
var ErrOrderNotFound = errors.New("order service: not found")

// ErrOrderUnavailable indicates the order store cannot be reached.
var ErrOrderUnavailable = errors.New("order service: unavailable")

// OrderServiceDeps wires the read-side order store.
type OrderServiceDeps struct {
	Repository repositories.OrderRepository
	Logger     func(context.Context, string, map[string]any)
}

type orderService struct {
	repo   repositories.OrderRepository
	logger func(context.Context, string, map[string]any)
}

// NewOrderService constructs an OrderService enforcing dependency validation.
func NewOrderService(deps OrderServiceDeps) (OrderService, error) {
	if deps.Repository == nil {
		return nil, errOrderRepositoryRequired
	}
	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}
	return &orderService{repo: deps.Repository, logger: logger}, nil
}

// ListOrders returns the buyer's order rows, newest first. A buyer with no
// orders gets an empty list, not an error.
func (s *orderService) ListOrders(ctx context.Context, buyerID string) ([]Order, error) {
	if s == nil || s.repo == nil {
		return nil, ErrOrderUnavailable
	}
	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return nil, ErrOrderInvalidInput
	}

	orders, err := s.repo.ListByBuyer(ctx, bid)
	if err != nil {
		return nil, translateOrderRepoError(err)
	}
	if orders == nil {
		orders = []Order{}
	}
	return orders, nil
}

// GetOrder loads a single order row by id.
func (s *orderService) GetOrder(ctx context.Context, orderID string) (Order, error) {
	if s == nil || s.repo == nil {
		return Order{}, ErrOrderUnavailable
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return Order{}, ErrOrderInvalidInput
	}

	order, err := s.repo.FindByID(ctx, id)
	if err != nil {
		return Order{}, translateOrderRepoError(err)
	}
	return order, nil
}

func translateOrderRepoError(err error) error {
	if err == nil {
		return nil
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrOrderNotFound
		case repoErr.IsUnavailable():
			return ErrOrderUnavailable
		}
	}
	return ErrOrderUnavailable
}
