package payment

import (
	"context"
	"time"
)

// SettleParams is the atomic credit: mark the order paid, bump the wallet,
// and burn the idempotency key, all or nothing.
type SettleParams struct {
	OrderID      string
	UserID       string
	ProviderTxID string
	Credits      int64
	Bonus        int64
	Key          IdempotencyKey
}

// ChargebackParams reverses a settled order: mark it refunded, debit the
// wallet, and record the dispute, all or nothing.
type ChargebackParams struct {
	OrderID      string
	UserID       string
	ProviderTxID string
	Credits      int64
	Reason       string
	Key          IdempotencyKey
}

// WebhookLog is one received webhook event, kept for dedupe and forensics.
type WebhookLog struct {
	ID              string    `json:"id"`
	EventType       string    `json:"event_type"`
	Provider        string    `json:"provider"`
	OrderID         string    `json:"order_id,omitempty"`
	WebhookID       string    `json:"webhook_id,omitempty"`
	SignatureValid  bool      `json:"signature_valid"`
	ProcessedStatus string    `json:"processed_status"` // success | failed | duplicate
	Error           string    `json:"error,omitempty"`
	CreatedAt       time.Time `json:"created_at"`
}

// Store persists orders, wallets and settlement state.
type Store interface {
	CreateOrder(ctx context.Context, o Order) (Order, error)
	GetOrder(ctx context.Context, id string) (Order, error)
	// MarkOrder updates status and, when non-empty, the provider tx ref.
	MarkOrder(ctx context.Context, id string, status OrderStatus, providerTxID string) error
	// ListStalePending returns pending orders created before cutoff, oldest
	// first, at most limit.
	ListStalePending(ctx context.Context, cutoff time.Time, limit int) ([]Order, error)
	GetOrCreateWallet(ctx context.Context, userID string) (Wallet, error)
	// Settle credits the wallet exactly once per key. A burnt key returns
	// ErrAlreadyProcessed with no state change.
	Settle(ctx context.Context, p SettleParams) (Wallet, error)
	// Chargeback debits the wallet exactly once per key and marks the
	// order refunded. A burnt key returns ErrAlreadyProcessed with no
	// state change.
	Chargeback(ctx context.Context, p ChargebackParams) (Wallet, error)
	// SeenWebhook records the webhook id and reports whether it was
	// already known.
	SeenWebhook(ctx context.Context, webhookID string) (bool, error)
	LogWebhook(ctx context.Context, entry WebhookLog) error
}
