package toss

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/fanstage/backoffice/internal/payment"
)

func TestCreatePayment(t *testing.T) {
	var gotAuth, gotIdem string
	var gotBody map[string]any

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/payments" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		gotAuth = r.Header.Get("Authorization")
		gotIdem = r.Header.Get("Idempotency-Key")
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Fatalf("decode body: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"paymentKey":  "pk_1",
			"orderId":     "order-1",
			"status":      "READY",
			"totalAmount": 10000,
			"checkout":    map[string]any{"url": "https://pay.example.com/s/abc"},
		})
	}))
	defer srv.Close()

	c := NewClient("sk_test_abc", WithBaseURL(srv.URL))
	got, err := c.CreatePayment(context.Background(), payment.CreatePaymentParams{
		OrderID:   "order-1",
		OrderName: "100 credits",
		Amount:    10000,
		Currency:  "KRW",
		Key:       payment.CheckoutKey("order-1"),
	})
	if err != nil {
		t.Fatalf("CreatePayment: %v", err)
	}
	if got.CheckoutURL != "https://pay.example.com/s/abc" {
		t.Fatalf("checkout url: %q", got.CheckoutURL)
	}
	if got.TotalAmount != 10000 {
		t.Fatalf("amount: %d", got.TotalAmount)
	}
	// Basic auth over "secret:".
	if gotAuth != "Basic c2tfdGVzdF9hYmM6" {
		t.Fatalf("auth header: %q", gotAuth)
	}
	if gotIdem != "checkout:order-1" {
		t.Fatalf("idempotency key: %q", gotIdem)
	}
	if gotBody["orderId"] != "order-1" || gotBody["currency"] != "KRW" {
		t.Fatalf("request body: %v", gotBody)
	}
}

func TestConfirmPaymentCarriesConfirmKey(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/payments/confirm" {
			t.Fatalf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("Idempotency-Key"); got != "confirm:order-2" {
			t.Fatalf("idempotency key: %q", got)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"paymentKey": "pk_2", "orderId": "order-2", "status": "DONE", "totalAmount": 5000,
		})
	}))
	defer srv.Close()

	c := NewClient("sk", WithBaseURL(srv.URL))
	got, err := c.ConfirmPayment(context.Background(), "pk_2", "order-2", 5000, payment.ConfirmKey("order-2"))
	if err != nil {
		t.Fatalf("ConfirmPayment: %v", err)
	}
	if got.Status != "DONE" {
		t.Fatalf("status: %q", got.Status)
	}
}

func TestGetPaymentByOrder(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet || r.URL.Path != "/v1/payments/orders/order-3" {
			t.Fatalf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"paymentKey": "pk_3", "orderId": "order-3", "status": "CANCELED",
		})
	}))
	defer srv.Close()

	c := NewClient("sk", WithBaseURL(srv.URL))
	got, err := c.GetPaymentByOrder(context.Background(), "order-3")
	if err != nil {
		t.Fatalf("GetPaymentByOrder: %v", err)
	}
	if got.Status != "CANCELED" {
		t.Fatalf("status: %q", got.Status)
	}
}

func TestAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		json.NewEncoder(w).Encode(map[string]any{
			"code": "NOT_FOUND_PAYMENT", "message": "존재하지 않는 결제입니다.",
		})
	}))
	defer srv.Close()

	c := NewClient("sk", WithBaseURL(srv.URL))
	_, err := c.GetPaymentByOrder(context.Background(), "nope")
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected *APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusBadRequest || apiErr.Code != "NOT_FOUND_PAYMENT" {
		t.Fatalf("unexpected error: %+v", apiErr)
	}
}
