package payment

import (
	"errors"
	"time"
)

// Platform decides which price column applies. Native platforms carry the
// store commission markup.
type Platform string

const (
	PlatformWeb     Platform = "web"
	PlatformAndroid Platform = "android"
	PlatformIOS     Platform = "ios"
)

type OrderStatus string

const (
	OrderPending   OrderStatus = "pending"
	OrderPaid      OrderStatus = "paid"
	OrderFailed    OrderStatus = "failed"
	OrderCancelled OrderStatus = "cancelled"
	// OrderRefunded marks a paid order whose credit was clawed back by a
	// chargeback dispute.
	OrderRefunded OrderStatus = "refunded"
)

// Order is a purchase of a credit package. All amounts are KRW in minor
// units as int64; no floats anywhere in the money path.
type Order struct {
	ID             string      `json:"id"`
	UserID         string      `json:"user_id"`
	PackageID      string      `json:"package_id"`
	Credits        int64       `json:"credits"`
	BonusCredits   int64       `json:"bonus_credits"`
	PriceKRW       int64       `json:"price_krw"`
	SupplyKRW      int64       `json:"supply_krw"`
	VATKRW         int64       `json:"vat_krw"`
	Method         string      `json:"payment_method"`
	Platform       Platform    `json:"platform"`
	Status         OrderStatus `json:"status"`
	ProviderTxID   string      `json:"provider_tx_id,omitempty"`
	RefundEligible time.Time   `json:"refund_eligible_until"`
	CreatedAt      time.Time   `json:"created_at"`
	UpdatedAt      time.Time   `json:"updated_at"`
}

// Wallet holds a user's credit balance plus lifetime counters. Only the
// store's atomic settlement mutates it.
type Wallet struct {
	ID                string    `json:"id"`
	UserID            string    `json:"user_id"`
	Balance           int64     `json:"balance"`
	LifetimePurchased int64     `json:"lifetime_purchased"`
	LifetimeSpent     int64     `json:"lifetime_spent"`
	LifetimeEarned    int64     `json:"lifetime_earned"`
	LifetimeRefunded  int64     `json:"lifetime_refunded"`
	CreatedAt         time.Time `json:"created_at"`
	UpdatedAt         time.Time `json:"updated_at"`
}

var (
	ErrOrderNotFound     = errors.New("order not found")
	ErrNotOwner          = errors.New("order does not belong to this user")
	ErrAmountMismatch    = errors.New("amount mismatch")
	ErrAlreadyProcessed  = errors.New("already processed")
	ErrUnknownPackage    = errors.New("invalid package id")
	ErrOriginNotAllowed  = errors.New("origin not allowed")
	ErrInvalidSignature  = errors.New("invalid webhook signature")
	ErrProvider          = errors.New("payment provider error")
	ErrProviderNotReady  = errors.New("payment provider not configured")
	ErrPurchasesDisabled = errors.New("payments are disabled")
)
