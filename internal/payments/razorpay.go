package payments

import (
	"bytes"
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
)

const (
	defaultBaseURL   = "https://api.razorpay.com"
	defaultTimeout   = 10 * time.Second
	ordersPath       = "/v1/orders"
	maxErrorBodySize = 16 << 10
)

// RazorpayConfig configures the RazorpayGateway.
type RazorpayConfig struct {
	KeyID      string
	KeySecret  string
	BaseURL    string
	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     GatewayLogger
	Clock      func() time.Time
}

// RazorpayGateway implements the Gateway interface against the Razorpay
// Orders API using basic-auth key credentials.
type RazorpayGateway struct {
	keyID     string
	keySecret string
	baseURL   string
	client    *http.Client
	logger    GatewayLogger
	clock     func() time.Time
}

// NewRazorpayGateway constructs a Razorpay gateway adapter.
func NewRazorpayGateway(cfg RazorpayConfig) (*RazorpayGateway, error) {
	keyID := strings.TrimSpace(cfg.KeyID)
	if keyID == "" {
		return nil, errors.New("razorpay: key id is required")
	}
	keySecret := strings.TrimSpace(cfg.KeySecret)
	if keySecret == "" {
		return nil, errors.New("razorpay: key secret is required")
	}

	baseURL := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if baseURL == "" {
		baseURL = defaultBaseURL
	}

	client := cfg.HTTPClient
	if client == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		client = &http.Client{Timeout: timeout}
	}

	logger := cfg.Logger
	if logger == nil {
		logger = func(context.Context, string, map[string]any) {}
	}

	clock := cfg.Clock
	if clock == nil {
		clock = time.Now
	}

	return &RazorpayGateway{
		keyID:     keyID,
		keySecret: keySecret,
		baseURL:   baseURL,
		client:    client,
		logger:    logger,
		clock: func() time.Time {
			return clock().UTC()
		},
	}, nil
}

// KeyID returns the public key identifier.
func (g *RazorpayGateway) KeyID() string {
	if g == nil {
		return ""
	}
	return g.keyID
}

// CreateOrder opens an order at the gateway. Amounts are minor units.
func (g *RazorpayGateway) CreateOrder(ctx context.Context, req OrderRequest) (GatewayOrder, error) {
	if g == nil || g.client == nil {
		return GatewayOrder{}, errors.New("razorpay: gateway is nil")
	}
	if req.Amount <= 0 {
		return GatewayOrder{}, fmt.Errorf("%w: amount must be positive", ErrGatewayRejected)
	}
	currency := strings.ToUpper(strings.TrimSpace(req.Currency))
	if currency == "" {
		return GatewayOrder{}, fmt.Errorf("%w: currency is required", ErrGatewayRejected)
	}

	payload := razorpayOrderRequest{
		Amount:   req.Amount,
		Currency: currency,
		Receipt:  strings.TrimSpace(req.Receipt),
		Notes:    req.Notes,
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: encode order request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, g.baseURL+ordersPath, bytes.NewReader(body))
	if err != nil {
		return GatewayOrder{}, fmt.Errorf("razorpay: build order request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.SetBasicAuth(g.keyID, g.keySecret)

	start := g.clock()
	resp, err := g.client.Do(httpReq)
	if err != nil {
		g.logger(ctx, "razorpay.create_order.transport_error", map[string]any{
			"error": err.Error(),
		})
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			return GatewayOrder{}, err
		}
		return GatewayOrder{}, fmt.Errorf("%w: %v", ErrGatewayUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return GatewayOrder{}, g.orderError(ctx, resp)
	}

	var decoded razorpayOrderResponse
	if err := json.NewDecoder(resp.Body).Decode(&decoded); err != nil {
		return GatewayOrder{}, fmt.Errorf("%w: decode order response: %v", ErrGatewayUnavailable, err)
	}
	if strings.TrimSpace(decoded.ID) == "" {
		return GatewayOrder{}, fmt.Errorf("%w: order response missing id", ErrGatewayUnavailable)
	}

	order := GatewayOrder{
		ID:       decoded.ID,
		Amount:   decoded.Amount,
		Currency: decoded.Currency,
		Receipt:  decoded.Receipt,
		Status:   decoded.Status,
	}
	if decoded.CreatedAt > 0 {
		order.CreatedAt = time.Unix(decoded.CreatedAt, 0).UTC()
	}

	g.logger(ctx, "razorpay.create_order.ok", map[string]any{
		"order_id": order.ID,
		"amount":   order.Amount,
		"currency": order.Currency,
		"latency":  g.clock().Sub(start).String(),
	})
	return order, nil
}

// VerifySignature checks the callback HMAC-SHA256 over "orderId|paymentId"
// using the key secret. Comparison is constant time.
func (g *RazorpayGateway) VerifySignature(sig CallbackSignature) bool {
	if g == nil {
		return false
	}
	orderID := strings.TrimSpace(sig.OrderID)
	paymentID := strings.TrimSpace(sig.PaymentID)
	signature := strings.TrimSpace(sig.Signature)
	if orderID == "" || paymentID == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(g.keySecret))
	mac.Write([]byte(orderID + "|" + paymentID))
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(strings.ToLower(signature)))
}

func (g *RazorpayGateway) orderError(ctx context.Context, resp *http.Response) error {
	body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBodySize))

	description := ""
	var apiErr razorpayErrorResponse
	if err := json.Unmarshal(body, &apiErr); err == nil {
		description = strings.TrimSpace(apiErr.Error.Description)
	}

	g.logger(ctx, "razorpay.create_order.api_error", map[string]any{
		"status":      resp.StatusCode,
		"description": description,
	})

	if resp.StatusCode >= http.StatusInternalServerError {
		if description != "" {
			return fmt.Errorf("%w: status %d: %s", ErrGatewayUnavailable, resp.StatusCode, description)
		}
		return fmt.Errorf("%w: status %d", ErrGatewayUnavailable, resp.StatusCode)
	}
	if description != "" {
		return fmt.Errorf("%w: status %d: %s", ErrGatewayRejected, resp.StatusCode, description)
	}
	return fmt.Errorf("%w: status %d", ErrGatewayRejected, resp.StatusCode)
}

type razorpayOrderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt,omitempty"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type razorpayOrderResponse struct {
	ID        string `json:"id"`
	Amount    int64  `json:"amount"`
	Currency  string `json:"currency"`
	Receipt   string `json:"receipt"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type razorpayErrorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

var _ Gateway = (*RazorpayGateway)(nil)
