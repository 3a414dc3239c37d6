package razorpay

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	domainErrors "github.com/polkiloo/orderpay/internal/domain/errors"
	"github.com/polkiloo/orderpay/internal/domain/model"
)

const defaultTimeout = 10 * time.Second

// Credentials authenticate API calls with HTTP basic auth.
type Credentials struct {
	KeyID     string
	KeySecret string
}

// HTTPClient implements gateway.PaymentGateway over the Razorpay REST API.
type HTTPClient struct {
	baseURL    *url.URL
	creds      Credentials
	httpClient *http.Client
	logger     *slog.Logger
}

type orderRequest struct {
	Amount   int64             `json:"amount"`
	Currency string            `json:"currency"`
	Receipt  string            `json:"receipt"`
	Notes    map[string]string `json:"notes,omitempty"`
}

type orderResponse struct {
	ID       string `json:"id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Receipt  string `json:"receipt"`
	Status   string `json:"status"`
}

type paymentResponse struct {
	ID       string `json:"id"`
	OrderID  string `json:"order_id"`
	Status   string `json:"status"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
}

type paymentCollection struct {
	Count int               `json:"count"`
	Items []paymentResponse `json:"items"`
}

type refundRequest struct {
	Amount int64             `json:"amount"`
	Speed  string            `json:"speed,omitempty"`
	Notes  map[string]string `json:"notes,omitempty"`
}

type refundResponse struct {
	ID        string `json:"id"`
	PaymentID string `json:"payment_id"`
	Amount    int64  `json:"amount"`
	Status    string `json:"status"`
	CreatedAt int64  `json:"created_at"`
}

type errorResponse struct {
	Error struct {
		Code        string `json:"code"`
		Description string `json:"description"`
	} `json:"error"`
}

// NewHTTPClient creates the gateway client. timeout bounds every call.
func NewHTTPClient(baseURL string, creds Credentials, timeout time.Duration, logger *slog.Logger) (*HTTPClient, error) {
	parsed, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("parse gateway url: %w", err)
	}
	if !parsed.IsAbs() {
		return nil, fmt.Errorf("gateway url must be absolute")
	}
	if creds.KeyID == "" || creds.KeySecret == "" {
		return nil, domainErrors.New(domainErrors.KindConfiguration, "gateway credentials are not configured")
	}
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &HTTPClient{
		baseURL: parsed,
		creds:   creds,
		logger:  logger,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

// CreateOrder registers a remote order. receipt doubles as the idempotency token.
func (c *HTTPClient) CreateOrder(ctx context.Context, amount int64, currency, receipt string, notes map[string]string) (*model.GatewayOrder, error) {
	var out orderResponse
	body := orderRequest{Amount: amount, Currency: currency, Receipt: receipt, Notes: notes}
	if err := c.do(ctx, http.MethodPost, true, &out, body, "v1", "orders"); err != nil {
		return nil, err
	}
	if out.ID == "" {
		c.logger.Error("gateway order response without id", slog.String("receipt", receipt))
		return nil, domainErrors.Gateway(false, 0, nil, "gateway returned an order without an id")
	}
	return &model.GatewayOrder{ID: out.ID, Amount: out.Amount, Currency: out.Currency, Receipt: out.Receipt}, nil
}

// FetchPayment returns the current gateway view of a payment.
func (c *HTTPClient) FetchPayment(ctx context.Context, paymentID string) (*model.GatewayPayment, error) {
	var out paymentResponse
	if err := c.do(ctx, http.MethodGet, false, &out, nil, "v1", "payments", paymentID); err != nil {
		return nil, err
	}
	p := toPayment(out)
	return &p, nil
}

// FetchOrderPayments lists every payment attempt against a gateway order.
func (c *HTTPClient) FetchOrderPayments(ctx context.Context, gatewayOrderID string) ([]model.GatewayPayment, error) {
	var out paymentCollection
	if err := c.do(ctx, http.MethodGet, false, &out, nil, "v1", "orders", gatewayOrderID, "payments"); err != nil {
		return nil, err
	}
	payments := make([]model.GatewayPayment, 0, len(out.Items))
	for _, item := range out.Items {
		payments = append(payments, toPayment(item))
	}
	return payments, nil
}

// IssueRefund refunds amount of a captured payment.
func (c *HTTPClient) IssueRefund(ctx context.Context, paymentID string, amount int64, speed model.RefundSpeed, notes map[string]string) (*model.GatewayRefund, error) {
	var out refundResponse
	body := refundRequest{Amount: amount, Speed: string(speed), Notes: notes}
	if err := c.do(ctx, http.MethodPost, true, &out, body, "v1", "payments", paymentID, "refund"); err != nil {
		return nil, err
	}
	createdAt := time.Now().UTC()
	if out.CreatedAt > 0 {
		createdAt = time.Unix(out.CreatedAt, 0).UTC()
	}
	return &model.GatewayRefund{
		ID:        out.ID,
		PaymentID: out.PaymentID,
		Amount:    out.Amount,
		Status:    out.Status,
		CreatedAt: createdAt,
	}, nil
}

func toPayment(p paymentResponse) model.GatewayPayment {
	return model.GatewayPayment{
		ID:       p.ID,
		OrderID:  p.OrderID,
		Status:   model.PaymentStatus(p.Status),
		Amount:   p.Amount,
		Currency: p.Currency,
	}
}

func (c *HTTPClient) do(ctx context.Context, method string, mutating bool, out any, in any, segments ...string) error {
	endpoint := c.baseURL.JoinPath(segments...)

	var reader io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode gateway request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint.String(), reader)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.SetBasicAuth(c.creds.KeyID, c.creds.KeySecret)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return c.transportError(err, method, endpoint.Path, mutating)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return c.transportError(err, method, endpoint.Path, mutating)
	}

	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		if err := json.Unmarshal(body, out); err != nil {
			return domainErrors.Gateway(false, 0, err, "gateway returned an unreadable response")
		}
		return nil
	case resp.StatusCode == http.StatusTooManyRequests:
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return domainErrors.Gateway(true, retryAfter, nil, "gateway rate limited the request")
	default:
		description := describe(body)
		c.logger.Error("gateway request failed",
			slog.String("method", method),
			slog.String("path", endpoint.Path),
			slog.Int("status", resp.StatusCode),
			slog.String("description", description),
		)
		retryable := resp.StatusCode >= 500
		return domainErrors.Gateway(retryable, 0, fmt.Errorf("gateway status %d", resp.StatusCode), "gateway rejected the request: %s", description)
	}
}

func (c *HTTPClient) transportError(err error, method, endpointPath string, mutating bool) error {
	c.logger.Warn("gateway call did not complete",
		slog.String("method", method),
		slog.String("path", endpointPath),
		slog.Any("error", err),
	)
	if mutating && isTimeout(err) {
		return domainErrors.Wrap(domainErrors.KindUnknownOutcome, err, "gateway did not answer in time; verify the outcome before retrying")
	}
	return domainErrors.Gateway(true, 0, err, "gateway is unreachable")
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func describe(body []byte) string {
	var parsed errorResponse
	if err := json.Unmarshal(body, &parsed); err == nil && parsed.Error.Description != "" {
		return parsed.Error.Description
	}
	return "unexpected response"
}

func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 5 * time.Second
	}
	if seconds, err := strconv.Atoi(header); err == nil {
		return time.Duration(seconds) * time.Second
	}
	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}
	return 5 * time.Second
}
