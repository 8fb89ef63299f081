// Package toss implements payment.Provider against the TossPayments
// HTTP API.
package toss

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/fanstage/backoffice/internal/payment"
)

const defaultBaseURL = "https://api.tosspayments.com"

// Client talks to the gateway with basic auth over the secret key. Mutating
// calls carry the caller's idempotency key, so retried requests replay the
// gateway's first answer instead of charging twice.
type Client struct {
	baseURL   string
	secretKey string
	http      *http.Client
}

type Option func(*Client)

// WithBaseURL points the client at a different host. Used by tests.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

func WithHTTPClient(h *http.Client) Option {
	return func(c *Client) { c.http = h }
}

func NewClient(secretKey string, opts ...Option) *Client {
	c := &Client{
		baseURL:   defaultBaseURL,
		secretKey: secretKey,
		http:      &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// APIError is a non-2xx gateway response.
type APIError struct {
	StatusCode int
	Code       string `json:"code"`
	Message    string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("toss: http %d %s: %s", e.StatusCode, e.Code, e.Message)
}

// wire types; the gateway speaks camelCase.
type paymentResponse struct {
	PaymentKey  string `json:"paymentKey"`
	OrderID     string `json:"orderId"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"totalAmount"`
	Checkout    *struct {
		URL string `json:"url"`
	} `json:"checkout"`
	URL string `json:"url"`
}

func (r paymentResponse) toDomain() payment.ProviderPayment {
	out := payment.ProviderPayment{
		PaymentKey:  r.PaymentKey,
		OrderID:     r.OrderID,
		Status:      r.Status,
		TotalAmount: r.TotalAmount,
		CheckoutURL: r.URL,
	}
	if r.Checkout != nil && r.Checkout.URL != "" {
		out.CheckoutURL = r.Checkout.URL
	}
	return out
}

func (c *Client) CreatePayment(ctx context.Context, p payment.CreatePaymentParams) (payment.ProviderPayment, error) {
	body := map[string]any{
		"method":     "CARD",
		"amount":     p.Amount,
		"currency":   p.Currency,
		"orderId":    p.OrderID,
		"orderName":  p.OrderName,
		"successUrl": p.SuccessURL,
		"failUrl":    p.FailURL,
	}
	var resp paymentResponse
	if err := c.post(ctx, "/v1/payments", body, p.Key, &resp); err != nil {
		return payment.ProviderPayment{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64, key payment.IdempotencyKey) (payment.ProviderPayment, error) {
	body := map[string]any{
		"paymentKey": paymentKey,
		"orderId":    orderID,
		"amount":     amount,
	}
	var resp paymentResponse
	if err := c.post(ctx, "/v1/payments/confirm", body, key, &resp); err != nil {
		return payment.ProviderPayment{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) GetPaymentByOrder(ctx context.Context, orderID string) (payment.ProviderPayment, error) {
	req, err := c.newRequest(ctx, http.MethodGet, "/v1/payments/orders/"+url.PathEscape(orderID), nil)
	if err != nil {
		return payment.ProviderPayment{}, err
	}
	var resp paymentResponse
	if err := c.do(req, &resp); err != nil {
		return payment.ProviderPayment{}, err
	}
	return resp.toDomain(), nil
}

func (c *Client) post(ctx context.Context, path string, body map[string]any, key payment.IdempotencyKey, out *paymentResponse) error {
	raw, err := json.Marshal(body)
	if err != nil {
		return err
	}
	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(raw))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if !key.IsZero() {
		req.Header.Set("Idempotency-Key", key.String())
	}
	return c.do(req, out)
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, err
	}
	basic := base64.StdEncoding.EncodeToString([]byte(c.secretKey + ":"))
	req.Header.Set("Authorization", "Basic "+basic)
	return req, nil
}

func (c *Client) do(req *http.Request, out *paymentResponse) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		apiErr := &APIError{StatusCode: resp.StatusCode}
		_ = json.Unmarshal(raw, apiErr)
		return apiErr
	}
	return json.Unmarshal(raw, out)
}
