package firestore

import (
	"context"
	"errors"
	"strings"

	"cloud.google.com/go/firestore"

	domain "github.com/ll-cart/api/internal/domain"
	pfirestore "github.com/ll-cart/api/internal/platform/firestore"
	"github.com/ll-cart/api/internal/repositories"
)

const productCollection = "products"

// ProductRepository reads the catalog. The catalog service owns writes.
type ProductRepository struct {
	base     *pfirestore.BaseRepository[productDocument]
	provider *pfirestore.Provider
}

// NewProductRepository constructs a Firestore-backed product repository.
func NewProductRepository(provider *pfirestore.Provider) (*ProductRepository, error) {
	if provider == nil {
		return nil, errors.New("product repository requires firestore provider")
	}
	return &ProductRepository{
		base:     pfirestore.NewBaseRepository[productDocument](provider, productCollection, nil, nil),
		provider: provider,
	}, nil
}

// FindByID loads a single product.
func (r *ProductRepository) FindByID(ctx context.Context, productID string) (domain.Product, error) {
	if r == nil || r.base == nil {
		return domain.Product{}, errors.New("product repository not initialised")
	}
	id := strings.TrimSpace(productID)
	if id == "" {
		return domain.Product{}, errors.New("product repository: product id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.Product{}, err
	}
	return decodeProductDocument(doc.ID, doc.Data), nil
}

// FindByIDs loads a batch of products keyed by id. Missing products are
// simply absent from the result; callers decide whether that is an error.
func (r *ProductRepository) FindByIDs(ctx context.Context, productIDs []string) (map[string]domain.Product, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return nil, errors.New("product repository not initialised")
	}

	ids := make([]string, 0, len(productIDs))
	seen := make(map[string]struct{}, len(productIDs))
	for _, id := range productIDs {
		id = strings.TrimSpace(id)
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return map[string]domain.Product{}, nil
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return nil, err
	}

	refs := make([]*firestore.DocumentRef, 0, len(ids))
	for _, id := range ids {
		refs = append(refs, client.Collection(productCollection).Doc(id))
	}

	snaps, err := client.GetAll(ctx, refs)
	if err != nil {
		return nil, pfirestore.WrapError("products.getall", err)
	}

	products := make(map[string]domain.Product, len(snaps))
	for _, snap := range snaps {
		if snap == nil || !snap.Exists() {
			continue
		}
		var doc productDocument
		if err := snap.DataTo(&doc); err != nil {
			return nil, pfirestore.WrapError("products.decode", err)
		}
		products[snap.Ref.ID] = decodeProductDocument(snap.Ref.ID, doc)
	}
	return products, nil
}

func decodeProductDocument(id string, doc productDocument) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     doc.Name,
		Category: doc.Category,
		UnitCost: doc.Cost,
		SellerID: doc.SellerID,
	}
}

type productDocument struct {
	Name     string `firestore:"name"`
	Category string `firestore:"category,omitempty"`
	Cost     int64  `firestore:"cost"`
	SellerID string `firestore:"sellerId,omitempty"`
}

var _ repositories.ProductRepository = (*ProductRepository)(nil)
