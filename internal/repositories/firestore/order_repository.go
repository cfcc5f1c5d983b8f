package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"

	domain "github.com/ll-cart/api/internal/domain"
	pfirestore "github.com/ll-cart/api/internal/platform/firestore"
	"github.com/ll-cart/api/internal/repositories"
)

const orderCollection = "orders"

// OrderRepository reads the append-only order rows. Rows are only ever
// written inside IntentRepository.Commit.
type OrderRepository struct {
	base *pfirestore.BaseRepository[orderDocument]
}

// NewOrderRepository constructs a Firestore-backed order repository.
func NewOrderRepository(provider *pfirestore.Provider) (*OrderRepository, error) {
	if provider == nil {
		return nil, errors.New("order repository requires firestore provider")
	}
	return &OrderRepository{
		base: pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
	}, nil
}

// FindByID loads a single order row.
func (r *OrderRepository) FindByID(ctx context.Context, orderID string) (domain.Order, error) {
	if r == nil || r.base == nil {
		return domain.Order{}, errors.New("order repository not initialised")
	}
	id := strings.TrimSpace(orderID)
	if id == "" {
		return domain.Order{}, errors.New("order repository: order id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Order{}, err
	}
	return decodeOrderDocument(doc.ID, doc.Data), nil
}

// ListByBuyer returns all order rows for the buyer, newest first.
func (r *OrderRepository) ListByBuyer(ctx context.Context, buyerID string) ([]domain.Order, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("order repository not initialised")
	}
	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return nil, errors.New("order repository: buyer id is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		return q.Where("buyerId", "==", bid).OrderBy("orderDate", firestore.Desc)
	})
	if err != nil {
		return nil, err
	}

	orders := make([]domain.Order, 0, len(docs))
	for _, doc := range docs {
		orders = append(orders, decodeOrderDocument(doc.ID, doc.Data))
	}
	return orders, nil
}

func encodeOrderDocument(order domain.Order) orderDocument {
	return orderDocument{
		IntentID:    strings.TrimSpace(order.IntentID),
		PaymentID:   strings.TrimSpace(order.PaymentID),
		BuyerID:     strings.TrimSpace(order.BuyerID),
		ProductID:   strings.TrimSpace(order.ProductID),
		ProductName: order.ProductName,
		Category:    order.Category,
		Quantity:    order.Quantity,
		Amount:      order.Amount,
		Currency:    strings.ToUpper(strings.TrimSpace(order.Currency)),
		Address:     encodeAddressSnapshot(order.Address),
		Status:      string(order.Status),
		OrderDate:   order.OrderDate.UTC(),
	}
}

func decodeOrderDocument(id string, doc orderDocument) domain.Order {
	return domain.Order{
		ID:          id,
		IntentID:    doc.IntentID,
		PaymentID:   doc.PaymentID,
		BuyerID:     doc.BuyerID,
		ProductID:   doc.ProductID,
		ProductName: doc.ProductName,
		Category:    doc.Category,
		Quantity:    doc.Quantity,
		Amount:      doc.Amount,
		Currency:    doc.Currency,
		Address:     decodeAddressSnapshot(doc.Address),
		Status:      domain.OrderStatus(doc.Status),
		OrderDate:   doc.OrderDate,
	}
}

type orderDocument struct {
	IntentID    string          `firestore:"intentId"`
	PaymentID   string          `firestore:"paymentId"`
	BuyerID     string          `firestore:"buyerId"`
	ProductID   string          `firestore:"productId"`
	ProductName string          `firestore:"productName"`
	Category    string          `firestore:"category,omitempty"`
	Quantity    int             `firestore:"quantity"`
	Amount      int64           `firestore:"amount"`
	Currency    string          `firestore:"currency"`
	Address     addressDocument `firestore:"address"`
	Status      string          `firestore:"status"`
	OrderDate   time.Time       `firestore:"orderDate"`
}

var _ repositories.OrderRepository = (*OrderRepository)(nil)
