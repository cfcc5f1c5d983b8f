package services

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	domain "github.com/ll-cart/api/internal/domain"
	"github.com/ll-cart/api/internal/payments"
	"github.com/ll-cart/api/internal/repositories"
)

var (
	errReconIntentsRequired = errors.New("reconciliation service: intent repository is required")
	errReconGatewayRequired = errors.New("reconciliation service: gateway is required")
	errReconClockRequired   = errors.New("reconciliation service: clock is required")
	errReconTTLRequired     = errors.New("reconciliation service: intent ttl is required")
)

// ErrPaymentInvalidInput indicates the callback is missing required fields.
var ErrPaymentInvalidInput = errors.New("reconciliation service: invalid input")

// ErrPaymentIntentNotFound indicates no intent exists for the order id.
var ErrPaymentIntentNotFound = errors.New("reconciliation service: intent not found")

// ErrPaymentSignatureMismatch indicates the callback HMAC did not match.
// The intent is moved to Failed before this is returned.
var ErrPaymentSignatureMismatch = errors.New("reconciliation service: signature mismatch")

// ErrPaymentConflict indicates the intent is in a state that admits no
// settlement, or a concurrent callback won the transition.
var ErrPaymentConflict = errors.New("reconciliation service: conflict")

// ErrPaymentUnavailable indicates a backend dependency failed. The intent is
// left in its current state so the callback can be retried.
var ErrPaymentUnavailable = errors.New("reconciliation service: unavailable")

const defaultSweepBatchSize = 100

// ReconciliationServiceDeps wires the intent store and gateway for callback
// settlement and expiry sweeps.
type ReconciliationServiceDeps struct {
	Intents        repositories.IntentRepository
	Gateway        payments.Gateway
	Clock          func() time.Time
	IntentTTL      time.Duration
	SweepBatchSize int
	Logger         func(context.Context, string, map[string]any)
}

type reconciliationService struct {
	intents   repositories.IntentRepository
	gateway   payments.Gateway
	now       func() time.Time
	ttl       time.Duration
	sweepSize int
	logger    func(context.Context, string, map[string]any)

	locks keyedMutex
}

// NewReconciliationService constructs a ReconciliationService enforcing
// dependency validation.
func NewReconciliationService(deps ReconciliationServiceDeps) (ReconciliationService, error) {
	if deps.Intents == nil {
		return nil, errReconIntentsRequired
	}
	if deps.Gateway == nil {
		return nil, errReconGatewayRequired
	}
	if deps.Clock == nil {
		return nil, errReconClockRequired
	}
	if deps.IntentTTL <= 0 {
		return nil, errReconTTLRequired
	}

	sweepSize := deps.SweepBatchSize
	if sweepSize <= 0 {
		sweepSize = defaultSweepBatchSize
	}

	logger := deps.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	return &reconciliationService{
		intents:   deps.Intents,
		gateway:   deps.Gateway,
		now:       func() time.Time { return deps.Clock().UTC() },
		ttl:       deps.IntentTTL,
		sweepSize: sweepSize,
		logger:    logger,
	}, nil
}

// HandleCallback drives the intent state machine for one gateway callback.
// A committed intent replays its result; a failed one reports a conflict; a
// live one is verified against the HMAC, advanced to Verified, and settled
// atomically. When the commit itself fails the intent stays Verified so the
// client can retry the same callback. TTL enforcement belongs to
// SweepExpired alone: a validly signed callback settles regardless of how
// late it arrives, as long as the sweeper has not failed the intent yet.
func (s *reconciliationService) HandleCallback(ctx context.Context, cmd PaymentCallbackCommand) (CallbackResult, error) {
	if s == nil || s.intents == nil {
		return CallbackResult{}, ErrPaymentUnavailable
	}

	orderID := strings.TrimSpace(cmd.OrderID)
	paymentID := strings.TrimSpace(cmd.PaymentID)
	signature := strings.TrimSpace(cmd.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return CallbackResult{}, ErrPaymentInvalidInput
	}

	unlock := s.locks.lock(orderID)
	defer unlock()

	intent, err := s.intents.FindByID(ctx, orderID)
	if err != nil {
		return CallbackResult{}, translateReconRepoError(err)
	}

	switch intent.Status {
	case domain.IntentCommitted:
		s.logger(ctx, "reconcile.callback_replayed", map[string]any{"intent_id": orderID})
		return CallbackResult{Status: domain.IntentCommitted, Replayed: true}, nil
	case domain.IntentFailed:
		return CallbackResult{}, ErrPaymentConflict
	case domain.IntentCreated:
		if !s.verify(orderID, paymentID, signature) {
			s.failIntent(ctx, intent, "signature_mismatch")
			return CallbackResult{}, ErrPaymentSignatureMismatch
		}
		verified, err := s.intents.UpdateStatus(ctx, orderID, domain.IntentCreated, domain.IntentVerified, repositories.IntentStatusUpdate{
			GatewayPaymentID: &paymentID,
		})
		if err != nil {
			return CallbackResult{}, translateReconRepoError(err)
		}
		return s.commit(ctx, verified, paymentID)
	case domain.IntentVerified:
		// Retry path: a prior callback verified but the commit never landed.
		if !s.verify(orderID, paymentID, signature) {
			s.failIntent(ctx, intent, "signature_mismatch")
			return CallbackResult{}, ErrPaymentSignatureMismatch
		}
		return s.commit(ctx, intent, paymentID)
	default:
		return CallbackResult{}, ErrPaymentConflict
	}
}

// SweepExpired fails intents stuck in Created past the TTL and reports how
// many were swept. Conflicts from racing callbacks are skipped, not errors.
func (s *reconciliationService) SweepExpired(ctx context.Context) (int, error) {
	if s == nil || s.intents == nil {
		return 0, ErrPaymentUnavailable
	}

	cutoff := s.now().Add(-s.ttl)
	stale, err := s.intents.ListStale(ctx, repositories.StaleIntentQuery{
		Status:        domain.IntentCreated,
		CreatedBefore: cutoff,
		Limit:         s.sweepSize,
	})
	if err != nil {
		return 0, translateReconRepoError(err)
	}

	swept := 0
	for _, intent := range stale {
		unlock := s.locks.lock(intent.ID)
		_, err := s.intents.UpdateStatus(ctx, intent.ID, domain.IntentCreated, domain.IntentFailed, repositories.IntentStatusUpdate{})
		unlock()
		if err != nil {
			if isRepoConflict(err) {
				continue
			}
			return swept, translateReconRepoError(err)
		}
		s.logger(ctx, "reconcile.intent_swept", map[string]any{"intent_id": intent.ID})
		swept++
	}
	return swept, nil
}

func (s *reconciliationService) commit(ctx context.Context, intent PaymentIntent, paymentID string) (CallbackResult, error) {
	now := s.now()
	result, err := s.intents.Commit(ctx, repositories.IntentCommitRequest{
		IntentID:  intent.ID,
		PaymentID: paymentID,
		Orders:    buildOrderRows(intent, paymentID, now),
		Now:       now,
	})
	if err != nil {
		if isRepoConflict(err) {
			return CallbackResult{}, ErrPaymentConflict
		}
		return CallbackResult{}, translateReconRepoError(err)
	}

	s.logger(ctx, "reconcile.intent_committed", map[string]any{
		"intent_id":  intent.ID,
		"payment_id": paymentID,
		"orders":     len(result.Orders),
		"replayed":   result.Replayed,
	})
	return CallbackResult{
		Status:   domain.IntentCommitted,
		Replayed: result.Replayed,
		Orders:   result.Orders,
	}, nil
}

// buildOrderRows expands the intent snapshot into one order row per line.
// The deterministic ids make the transactional creates idempotent.
func buildOrderRows(intent PaymentIntent, paymentID string, now time.Time) []Order {
	orders := make([]Order, 0, len(intent.Lines))
	for _, line := range intent.Lines {
		orders = append(orders, Order{
			ID:          intent.ID + ":" + line.ProductID,
			IntentID:    intent.ID,
			PaymentID:   paymentID,
			BuyerID:     intent.BuyerID,
			ProductID:   line.ProductID,
			ProductName: line.ProductName,
			Category:    line.Category,
			Quantity:    line.Quantity,
			Amount:      line.LineAmount(),
			Currency:    intent.Currency,
			Address:     intent.Address,
			Status:      domain.OrderPaid,
			OrderDate:   now,
		})
	}
	return orders
}

func (s *reconciliationService) verify(orderID, paymentID, signature string) bool {
	return s.gateway.VerifySignature(payments.CallbackSignature{
		OrderID:   orderID,
		PaymentID: paymentID,
		Signature: signature,
	})
}

// failIntent moves the intent to Failed on a best-effort basis. Losing the
// race to another writer is fine; the caller's error stands either way.
func (s *reconciliationService) failIntent(ctx context.Context, intent PaymentIntent, reason string) {
	if _, err := s.intents.UpdateStatus(ctx, intent.ID, intent.Status, domain.IntentFailed, repositories.IntentStatusUpdate{}); err != nil && !isRepoConflict(err) {
		s.logger(ctx, "reconcile.fail_transition_error", map[string]any{
			"intent_id": intent.ID,
			"reason":    reason,
			"error":     err.Error(),
		})
		return
	}
	s.logger(ctx, "reconcile.intent_failed", map[string]any{
		"intent_id": intent.ID,
		"reason":    reason,
	})
}

func translateReconRepoError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	var repoErr repositories.RepositoryError
	if errors.As(err, &repoErr) {
		switch {
		case repoErr.IsNotFound():
			return ErrPaymentIntentNotFound
		case repoErr.IsConflict():
			return ErrPaymentConflict
		case repoErr.IsUnavailable():
			return ErrPaymentUnavailable
		}
	}
	return ErrPaymentUnavailable
}

// keyedMutex serialises callbacks per intent id so concurrent callbacks for
// the same order contend locally instead of burning transaction retries.
type keyedMutex struct {
	mu    sync.Mutex
	locks map[string]*keyedLock
}

type keyedLock struct {
	mu   sync.Mutex
	refs int
}

func (k *keyedMutex) lock(key string) func() {
	k.mu.Lock()
	if k.locks == nil {
		k.locks = make(map[string]*keyedLock)
	}
	entry, ok := k.locks[key]
	if !ok {
		entry = &keyedLock{}
		k.locks[key] = entry
	}
	entry.refs++
	k.mu.Unlock()

	entry.mu.Lock()
	return func() {
		entry.mu.Unlock()
		k.mu.Lock()
		entry.refs--
		if entry.refs == 0 {
			delete(k.locks, key)
		}
		k.mu.Unlock()
	}
}
