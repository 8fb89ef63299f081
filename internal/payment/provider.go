package payment

import "context"

// Provider payment statuses, as reported by the gateway.
const (
	ProviderStatusDone              = "DONE"
	ProviderStatusCanceled          = "CANCELED"
	ProviderStatusPartialCanceled   = "PARTIAL_CANCELED"
	ProviderStatusAborted           = "ABORTED"
	ProviderStatusExpired           = "EXPIRED"
	ProviderStatusReady             = "READY"
	ProviderStatusInProgress        = "IN_PROGRESS"
	ProviderStatusWaitingForDeposit = "WAITING_FOR_DEPOSIT"
)

// ProviderPayment is the gateway's view of a payment.
type ProviderPayment struct {
	PaymentKey  string `json:"payment_key"`
	OrderID     string `json:"order_id"`
	Status      string `json:"status"`
	TotalAmount int64  `json:"total_amount"`
	CheckoutURL string `json:"checkout_url,omitempty"`
}

// CreatePaymentParams starts a checkout session at the gateway.
type CreatePaymentParams struct {
	OrderID    string
	OrderName  string
	Amount     int64
	Currency   string
	SuccessURL string
	FailURL    string
	Key        IdempotencyKey
}

// Provider is the payment gateway client. Every call that mutates gateway
// state carries an idempotency key.
type Provider interface {
	CreatePayment(ctx context.Context, p CreatePaymentParams) (ProviderPayment, error)
	ConfirmPayment(ctx context.Context, paymentKey, orderID string, amount int64, key IdempotencyKey) (ProviderPayment, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (ProviderPayment, error)
}

// mapProviderStatus folds gateway statuses onto order statuses. Anything
// that is neither done nor cancelled counts as failed.
func mapProviderStatus(s string) OrderStatus {
	switch s {
	case ProviderStatusDone:
		return OrderPaid
	case ProviderStatusCanceled, ProviderStatusPartialCanceled:
		return OrderCancelled
	default:
		return OrderFailed
	}
}
