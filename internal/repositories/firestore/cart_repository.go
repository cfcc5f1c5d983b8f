package firestore

import (
	"context"
	"errors"
	"strings"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	domain "github.com/ll-cart/api/internal/domain"
	pfirestore "github.com/ll-cart/api/internal/platform/firestore"
	"github.com/ll-cart/api/internal/repositories"
)

const cartCollection = "carts"

// CartRepository persists cart documents within Firestore, one per buyer.
// All writes go through MutateCart so concurrent mutations of the same
// buyer's cart are serialized by the transaction.
type CartRepository struct {
	base     *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewCartRepository constructs a Firestore-backed cart repository.
func NewCartRepository(provider *pfirestore.Provider) (*CartRepository, error) {
	if provider == nil {
		return nil, errors.New("cart repository requires firestore provider")
	}
	base := pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil)
	return &CartRepository{
		base:     base,
		provider: provider,
	}, nil
}

// GetCart loads the cart for the given buyer ID.
func (r *CartRepository) GetCart(ctx context.Context, buyerID string) (domain.Cart, error) {
	if r == nil || r.base == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}

	doc, err := r.base.Get(ctx, bid)
	if err != nil {
		return domain.Cart{}, err
	}

	cart := decodeCartDocument(doc.ID, doc.Data)
	if cart.UpdatedAt.IsZero() {
		cart.UpdatedAt = doc.UpdateTime
	}
	if cart.CreatedAt.IsZero() {
		cart.CreatedAt = doc.CreateTime
	}
	return cart, nil
}

// MutateCart runs a read-modify-write on the buyer's cart inside a Firestore
// transaction. The read registers the document with the transaction, so a
// concurrent mutation or a commit-time cart prune forces a retry instead of
// a lost update. Errors returned by fn are passed through untouched.
func (r *CartRepository) MutateCart(ctx context.Context, buyerID string, fn func(cart domain.Cart) (domain.Cart, error)) (domain.Cart, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.Cart{}, errors.New("cart repository not initialised")
	}
	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return domain.Cart{}, errors.New("cart repository: buyer id is required")
	}
	if fn == nil {
		return domain.Cart{}, errors.New("cart repository: mutation function is required")
	}

	ref, err := r.base.DocumentRef(ctx, bid)
	if err != nil {
		return domain.Cart{}, err
	}

	var saved domain.Cart
	var fnErr error
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		fnErr = nil
		cart := domain.Cart{BuyerID: bid, Items: []domain.CartItem{}}
		snap, err := tx.Get(ref)
		switch {
		case err == nil:
			var doc cartDocument
			if err := snap.DataTo(&doc); err != nil {
				return err
			}
			cart = decodeCartDocument(bid, doc)
			if cart.CreatedAt.IsZero() {
				cart.CreatedAt = snap.CreateTime
			}
			if cart.UpdatedAt.IsZero() {
				cart.UpdatedAt = snap.UpdateTime
			}
		case status.Code(err) == codes.NotFound:
			// Absent cart presents as empty; the Set below creates it.
		default:
			return err
		}

		next, err := fn(cloneCart(cart))
		if err != nil {
			fnErr = err
			return err
		}

		now := next.UpdatedAt.UTC()
		if now.IsZero() {
			now = time.Now().UTC()
		}
		createdAt := cart.CreatedAt.UTC()
		if createdAt.IsZero() {
			createdAt = now
		}

		if err := tx.Set(ref, encodeCartDocument(next, createdAt, now)); err != nil {
			return err
		}

		saved = cloneCart(next)
		saved.BuyerID = bid
		saved.CreatedAt = createdAt
		saved.UpdatedAt = now
		return nil
	})
	if fnErr != nil {
		return domain.Cart{}, fnErr
	}
	if err != nil {
		return domain.Cart{}, err
	}
	return saved, nil
}

func cloneCart(cart domain.Cart) domain.Cart {
	dup := cart
	if cart.Items != nil {
		dup.Items = make([]domain.CartItem, len(cart.Items))
		copy(dup.Items, cart.Items)
	}
	return dup
}

func encodeCartDocument(cart domain.Cart, createdAt, updatedAt time.Time) cartDocument {
	doc := cartDocument{
		Items:     make([]cartItemDocument, 0, len(cart.Items)),
		CreatedAt: createdAt,
		UpdatedAt: updatedAt,
	}
	for _, item := range cart.Items {
		doc.Items = append(doc.Items, cartItemDocument{
			ProductID: strings.TrimSpace(item.ProductID),
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt.UTC(),
		})
	}
	return doc
}

func decodeCartDocument(buyerID string, doc cartDocument) domain.Cart {
	cart := domain.Cart{
		BuyerID:   buyerID,
		Items:     make([]domain.CartItem, 0, len(doc.Items)),
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	for _, item := range doc.Items {
		cart.Items = append(cart.Items, domain.CartItem{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
			AddedAt:   item.AddedAt,
		})
	}
	return cart
}

type cartDocument struct {
	Items     []cartItemDocument `firestore:"items"`
	CreatedAt time.Time          `firestore:"createdAt"`
	UpdatedAt time.Time          `firestore:"updatedAt"`
}

type cartItemDocument struct {
	ProductID string    `firestore:"productId"`
	Quantity  int       `firestore:"quantity"`
	AddedAt   time.Time `firestore:"addedAt"`
}

var _ repositories.CartRepository = (*CartRepository)(nil)
