package firestore

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
	pfirestore "github.com/ll-cart/api/internal/platform/firestore"
	"github.com/ll-cart/api/internal/repositories"
)

const addressCollectionPattern = "buyers/%s/addresses"

// AddressRepository reads the buyer address book. The profile service owns
// writes; checkout only snapshots addresses into intents.
type AddressRepository struct {
	provider *pfirestore.Provider
}

// NewAddressRepository constructs a Firestore-backed address repository.
func NewAddressRepository(provider *pfirestore.Provider) (*AddressRepository, error) {
	if provider == nil {
		return nil, errors.New("address repository requires firestore provider")
	}
	return &AddressRepository{provider: provider}, nil
}

// FindByID loads a single address belonging to the buyer.
func (r *AddressRepository) FindByID(ctx context.Context, buyerID, addressID string) (domain.Address, error) {
	if r == nil || r.provider == nil {
		return domain.Address{}, errors.New("address repository not initialised")
	}
	bid := strings.TrimSpace(buyerID)
	if bid == "" {
		return domain.Address{}, errors.New("address repository: buyer id is required")
	}
	aid := strings.TrimSpace(addressID)
	if aid == "" {
		return domain.Address{}, errors.New("address repository: address id is required")
	}

	client, err := r.provider.Client(ctx)
	if err != nil {
		return domain.Address{}, err
	}

	snap, err := client.Collection(fmt.Sprintf(addressCollectionPattern, bid)).Doc(aid).Get(ctx)
	if err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.get", err)
	}

	var doc addressDocument
	if err := snap.DataTo(&doc); err != nil {
		return domain.Address{}, pfirestore.WrapError("addresses.decode", err)
	}

	addr := decodeAddressSnapshot(doc)
	addr.ID = snap.Ref.ID
	addr.BuyerID = bid
	if addr.UpdatedAt.IsZero() {
		addr.UpdatedAt = snap.UpdateTime
	}
	return addr, nil
}

func encodeAddressSnapshot(addr domain.Address) addressDocument {
	return addressDocument{
		ID:          strings.TrimSpace(addr.ID),
		BuyerID:     strings.TrimSpace(addr.BuyerID),
		HouseNumber: strings.TrimSpace(addr.HouseNumber),
		Street:      strings.TrimSpace(addr.Street),
		City:        strings.TrimSpace(addr.City),
		State:       strings.TrimSpace(addr.State),
		Pincode:     strings.TrimSpace(addr.Pincode),
		Country:     strings.TrimSpace(addr.Country),
		IsDefault:   addr.IsDefault,
		UpdatedAt:   addr.UpdatedAt.UTC(),
	}
}

func decodeAddressSnapshot(doc addressDocument) domain.Address {
	return domain.Address{
		ID:          doc.ID,
		BuyerID:     doc.BuyerID,
		HouseNumber: doc.HouseNumber,
		Street:      doc.Street,
		City:        doc.City,
		State:       doc.State,
		Pincode:     doc.Pincode,
		Country:     doc.Country,
		IsDefault:   doc.IsDefault,
		UpdatedAt:   doc.UpdatedAt,
	}
}

type addressDocument struct {
	ID          string    `firestore:"id,omitempty"`
	BuyerID     string    `firestore:"buyerId,omitempty"`
	HouseNumber string    `firestore:"houseNumber"`
	Street      string    `firestore:"street"`
	City        string    `firestore:"city"`
	State       string    `firestore:"state"`
	Pincode     string    `firestore:"pincode"`
	Country     string    `firestore:"country"`
	IsDefault   bool      `firestore:"isDefault"`
	UpdatedAt   time.Time `firestore:"updatedAt"`
}

var _ repositories.AddressRepository = (*AddressRepository)(nil)
