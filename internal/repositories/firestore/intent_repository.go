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

const intentCollection = "paymentIntents"

// IntentRepository persists payment intents and performs the transactional
// settlement that turns a verified intent into order rows.
type IntentRepository struct {
	base     *pfirestore.BaseRepository[intentDocument]
	orders   *pfirestore.BaseRepository[orderDocument]
	carts    *pfirestore.BaseRepository[cartDocument]
	provider *pfirestore.Provider
}

// NewIntentRepository constructs a Firestore-backed intent repository.
func NewIntentRepository(provider *pfirestore.Provider) (*IntentRepository, error) {
	if provider == nil {
		return nil, errors.New("intent repository requires firestore provider")
	}
	return &IntentRepository{
		base:     pfirestore.NewBaseRepository[intentDocument](provider, intentCollection, nil, nil),
		orders:   pfirestore.NewBaseRepository[orderDocument](provider, orderCollection, nil, nil),
		carts:    pfirestore.NewBaseRepository[cartDocument](provider, cartCollection, nil, nil),
		provider: provider,
	}, nil
}

// Insert creates the intent document. The document ID is the gateway order
// id, so a duplicate insert surfaces as a conflict.
func (r *IntentRepository) Insert(ctx context.Context, intent domain.PaymentIntent) error {
	if r == nil || r.base == nil {
		return errors.New("intent repository not initialised")
	}
	intentID := strings.TrimSpace(intent.ID)
	if intentID == "" {
		return errors.New("intent repository: intent id is required")
	}

	ref, err := r.base.DocumentRef(ctx, intentID)
	if err != nil {
		return err
	}
	if _, err := ref.Create(ctx, encodeIntentDocument(intent)); err != nil {
		return pfirestore.WrapError("paymentintents.insert", err)
	}
	return nil
}

// FindByID loads the intent by its gateway order id.
func (r *IntentRepository) FindByID(ctx context.Context, intentID string) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return domain.PaymentIntent{}, errors.New("intent repository not initialised")
	}
	id := strings.TrimSpace(intentID)
	if id == "" {
		return domain.PaymentIntent{}, errors.New("intent repository: intent id is required")
	}

	doc, err := r.base.Get(ctx, id)
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return decodeIntentDocument(doc.ID, doc.Data), nil
}

// UpdateStatus transitions the intent from the expected status to the target
// status inside a transaction. A stored status other than the expected one
// fails with a conflict so concurrent callbacks lose cleanly.
func (r *IntentRepository) UpdateStatus(ctx context.Context, intentID string, from, to domain.IntentStatus, update repositories.IntentStatusUpdate) (domain.PaymentIntent, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return domain.PaymentIntent{}, errors.New("intent repository not initialised")
	}
	id := strings.TrimSpace(intentID)
	if id == "" {
		return domain.PaymentIntent{}, errors.New("intent repository: intent id is required")
	}

	ref, err := r.base.DocumentRef(ctx, id)
	if err != nil {
		return domain.PaymentIntent{}, err
	}

	var updated domain.PaymentIntent
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(ref)
		if err != nil {
			return err
		}
		var doc intentDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		if domain.IntentStatus(doc.Status) != from {
			return status.Errorf(codes.FailedPrecondition, "intent %s is %s, expected %s", id, doc.Status, from)
		}
		if !from.CanTransition(to) {
			return status.Errorf(codes.FailedPrecondition, "intent %s cannot move from %s to %s", id, from, to)
		}

		now := time.Now().UTC()
		updates := []firestore.Update{
			{Path: "status", Value: string(to)},
			{Path: "updatedAt", Value: now},
		}
		if update.GatewayPaymentID != nil {
			updates = append(updates, firestore.Update{Path: "gatewayPaymentId", Value: strings.TrimSpace(*update.GatewayPaymentID)})
		}
		if err := tx.Update(ref, updates); err != nil {
			return err
		}

		updated = decodeIntentDocument(id, doc)
		updated.Status = to
		updated.UpdatedAt = now
		if update.GatewayPaymentID != nil {
			updated.GatewayPaymentID = strings.TrimSpace(*update.GatewayPaymentID)
		}
		return nil
	})
	if err != nil {
		return domain.PaymentIntent{}, err
	}
	return updated, nil
}

// Commit settles a verified intent in a single transaction: order rows are
// created with deterministic ids, the snapshot items are removed from the
// buyer's cart, and the intent is marked committed. Re-running a commit
// against an already committed intent replays without writing.
func (r *IntentRepository) Commit(ctx context.Context, req repositories.IntentCommitRequest) (repositories.IntentCommitResult, error) {
	if r == nil || r.base == nil || r.provider == nil {
		return repositories.IntentCommitResult{}, errors.New("intent repository not initialised")
	}
	intentID := strings.TrimSpace(req.IntentID)
	if intentID == "" {
		return repositories.IntentCommitResult{}, errors.New("intent repository: intent id is required")
	}
	if len(req.Orders) == 0 {
		return repositories.IntentCommitResult{}, errors.New("intent repository: commit requires order rows")
	}

	intentRef, err := r.base.DocumentRef(ctx, intentID)
	if err != nil {
		return repositories.IntentCommitResult{}, err
	}

	now := req.Now.UTC()
	if now.IsZero() {
		now = time.Now().UTC()
	}

	var result repositories.IntentCommitResult
	err = r.provider.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		snap, err := tx.Get(intentRef)
		if err != nil {
			return err
		}
		var doc intentDocument
		if err := snap.DataTo(&doc); err != nil {
			return err
		}
		intent := decodeIntentDocument(intentID, doc)

		switch intent.Status {
		case domain.IntentCommitted:
			result = repositories.IntentCommitResult{Intent: intent, Replayed: true}
			return nil
		case domain.IntentVerified:
			// Proceed with settlement.
		default:
			return status.Errorf(codes.FailedPrecondition, "intent %s is %s, expected %s", intentID, intent.Status, domain.IntentVerified)
		}

		cartRef, err := r.carts.DocumentRef(ctx, intent.BuyerID)
		if err != nil {
			return err
		}
		cartSnap, err := tx.Get(cartRef)
		cartExists := true
		var cartDoc cartDocument
		if err != nil {
			if status.Code(err) != codes.NotFound {
				return err
			}
			cartExists = false
		} else if err := cartSnap.DataTo(&cartDoc); err != nil {
			return err
		}

		orderRefs := make([]*firestore.DocumentRef, 0, len(req.Orders))
		for _, order := range req.Orders {
			ref, err := r.orders.DocumentRef(ctx, order.ID)
			if err != nil {
				return err
			}
			orderRefs = append(orderRefs, ref)
		}

		// All reads are done; writes follow.
		for i, order := range req.Orders {
			if err := tx.Create(orderRefs[i], encodeOrderDocument(order)); err != nil {
				return err
			}
		}

		if cartExists {
			snapshot := make(map[string]struct{}, len(intent.Lines))
			for _, line := range intent.Lines {
				snapshot[line.ProductID] = struct{}{}
			}
			remaining := make([]cartItemDocument, 0, len(cartDoc.Items))
			for _, item := range cartDoc.Items {
				if _, ok := snapshot[item.ProductID]; ok {
					continue
				}
				remaining = append(remaining, item)
			}
			cartDoc.Items = remaining
			cartDoc.UpdatedAt = now
			if err := tx.Set(cartRef, cartDoc); err != nil {
				return err
			}
		}

		paymentID := strings.TrimSpace(req.PaymentID)
		if err := tx.Update(intentRef, []firestore.Update{
			{Path: "status", Value: string(domain.IntentCommitted)},
			{Path: "gatewayPaymentId", Value: paymentID},
			{Path: "updatedAt", Value: now},
		}); err != nil {
			return err
		}

		committed := intent
		committed.Status = domain.IntentCommitted
		committed.GatewayPaymentID = paymentID
		committed.UpdatedAt = now
		result = repositories.IntentCommitResult{
			Intent: committed,
			Orders: req.Orders,
		}
		return nil
	})
	if err != nil {
		return repositories.IntentCommitResult{}, err
	}
	return result, nil
}

// ListStale returns intents stuck in the given status past the cutoff,
// oldest first.
func (r *IntentRepository) ListStale(ctx context.Context, query repositories.StaleIntentQuery) ([]domain.PaymentIntent, error) {
	if r == nil || r.base == nil {
		return nil, errors.New("intent repository not initialised")
	}
	if query.Status == "" {
		return nil, errors.New("intent repository: status is required")
	}
	if query.CreatedBefore.IsZero() {
		return nil, errors.New("intent repository: cutoff is required")
	}

	docs, err := r.base.Query(ctx, func(q firestore.Query) firestore.Query {
		q = q.Where("status", "==", string(query.Status)).
			Where("createdAt", "<", query.CreatedBefore.UTC()).
			OrderBy("createdAt", firestore.Asc)
		if query.Limit > 0 {
			q = q.Limit(query.Limit)
		}
		return q
	})
	if err != nil {
		return nil, err
	}

	intents := make([]domain.PaymentIntent, 0, len(docs))
	for _, doc := range docs {
		intents = append(intents, decodeIntentDocument(doc.ID, doc.Data))
	}
	return intents, nil
}

func encodeIntentDocument(intent domain.PaymentIntent) intentDocument {
	doc := intentDocument{
		BuyerID:          strings.TrimSpace(intent.BuyerID),
		Address:          encodeAddressSnapshot(intent.Address),
		Lines:            make([]intentLineDocument, 0, len(intent.Lines)),
		Amount:           intent.Amount,
		Currency:         strings.ToUpper(strings.TrimSpace(intent.Currency)),
		Status:           string(intent.Status),
		GatewayPaymentID: strings.TrimSpace(intent.GatewayPaymentID),
		CreatedAt:        intent.CreatedAt.UTC(),
		UpdatedAt:        intent.UpdatedAt.UTC(),
	}
	for _, line := range intent.Lines {
		doc.Lines = append(doc.Lines, intentLineDocument{
			ProductID:   strings.TrimSpace(line.ProductID),
			ProductName: line.ProductName,
			Category:    line.Category,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
		})
	}
	return doc
}

func decodeIntentDocument(id string, doc intentDocument) domain.PaymentIntent {
	intent := domain.PaymentIntent{
		ID:               id,
		BuyerID:          doc.BuyerID,
		Address:          decodeAddressSnapshot(doc.Address),
		Lines:            make([]domain.IntentLine, 0, len(doc.Lines)),
		Amount:           doc.Amount,
		Currency:         doc.Currency,
		Status:           domain.IntentStatus(doc.Status),
		GatewayPaymentID: doc.GatewayPaymentID,
		CreatedAt:        doc.CreatedAt,
		UpdatedAt:        doc.UpdatedAt,
	}
	for _, line := range doc.Lines {
		intent.Lines = append(intent.Lines, domain.IntentLine{
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Category:    line.Category,
			Quantity:    line.Quantity,
			UnitCost:    line.UnitCost,
		})
	}
	return intent
}

type intentDocument struct {
	BuyerID          string               `firestore:"buyerId"`
	Address          addressDocument      `firestore:"address"`
	Lines            []intentLineDocument `firestore:"lines"`
	Amount           int64                `firestore:"amount"`
	Currency         string               `firestore:"currency"`
	Status           string               `firestore:"status"`
	GatewayPaymentID string               `firestore:"gatewayPaymentId,omitempty"`
	CreatedAt        time.Time            `firestore:"createdAt"`
	UpdatedAt        time.Time            `firestore:"updatedAt"`
}

type intentLineDocument struct {
	ProductID   string `firestore:"productId"`
	ProductName string `firestore:"productName"`
	Category    string `firestore:"category,omitempty"`
	Quantity    int    `firestore:"quantity"`
	UnitCost    int64  `firestore:"unitCost"`
}

var _ repositories.IntentRepository = (*IntentRepository)(nil)
