package idempotency

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"net/http"
	"strings"
	"time"
)

// Status is the lifecycle stage of a stored reservation.
type Status string

const (
	// DefaultTTL bounds how long a stored response stays replayable.
	DefaultTTL = 24 * time.Hour
	// StatusPending marks a key that is reserved while the first request is
	// still in flight.
	StatusPending Status = "pending"
	// StatusCompleted marks a key whose response has been captured.
	StatusCompleted Status = "completed"
)

// ReservationState is what a caller learns when trying to claim a key.
type ReservationState int

const (
	// ReservationStateNew: the key was free, the caller now owns it.
	ReservationStateNew ReservationState = iota
	// ReservationStateCompleted: a response exists and must be replayed.
	ReservationStateCompleted
	// ReservationStatePending: another request holds the key right now.
	ReservationStatePending
)

// Reservation reports the claim outcome together with the stored record
// when one exists.
type Reservation struct {
	State  ReservationState
	Record Record
}

// Record is the persisted shape of one reservation: the request fingerprint
// that claimed the key plus the response captured for replay. A duplicate
// payment submission gets this response back instead of re-running the work.
type Record struct {
	Key             string
	Fingerprint     string
	Status          Status
	ResponseStatus  int
	ResponseHeaders map[string][]string
	ResponseBody    []byte
	CreatedAt       time.Time
	UpdatedAt       time.Time
	ExpiresAt       time.Time
}

// Response carries the parts of an HTTP response worth replaying.
type Response struct {
	Status  int
	Headers http.Header
	Body    []byte
}

// Store is the persistence contract for reservations. Reserve must be
// atomic: two concurrent claims of the same key may not both see it free.
type Store interface {
	Reserve(ctx context.Context, key, fingerprint string, now time.Time, ttl time.Duration) (Reservation, error)
	SaveResponse(ctx context.Context, key, fingerprint string, resp Response, now time.Time, ttl time.Duration) error
	Release(ctx context.Context, key, fingerprint string) error
	CleanupExpired(ctx context.Context, now time.Time, limit int) (int, error)
}

// ErrFingerprintMismatch flags a key reused with a different request body,
// which is a client bug rather than a retry.
var ErrFingerprintMismatch = errors.New("idempotency: key reserved for different request fingerprint")

// recordDocID derives the storage id from the client key alone. The
// fingerprint is checked against the stored record rather than baked into
// the id, so a mismatched reuse is detectable instead of silently forking.
func recordDocID(key, fingerprint string) string {
	return hashHex([]byte(strings.TrimSpace(key)))
}

func hashHex(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// headersForStorage strips transport headers that would be wrong to replay
// verbatim on a later connection.
func headersForStorage(header http.Header) map[string][]string {
	if len(header) == 0 {
		return nil
	}

	kept := make(map[string][]string, len(header))
	for name, values := range header {
		canonical := http.CanonicalHeaderKey(name)
		if isTransportHeader(canonical) {
			continue
		}
		copied := make([]string, len(values))
		copy(copied, values)
		kept[canonical] = copied
	}
	if len(kept) == 0 {
		return nil
	}
	return kept
}

func isTransportHeader(name string) bool {
	switch strings.ToLower(name) {
	case "content-length", "date", "connection", "keep-alive", "proxy-authenticate", "proxy-authorization", "te", "trailers", "transfer-encoding", "upgrade":
		return true
	default:
		return false
	}
}

func headersForReplay(values map[string][]string) http.Header {
	if len(values) == 0 {
		return http.Header{}
	}

	header := make(http.Header, len(values))
	for name, vals := range values {
		copied := make([]string, len(vals))
		copy(copied, vals)
		header[name] = copied
	}
	return header
}
