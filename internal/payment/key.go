package payment

// Namespace scopes an idempotency key. Provider-facing namespaces
// (checkout, confirm) deduplicate outbound API calls; the provider
// namespace guards the internal wallet credit. They are distinct types of
// guarantee and must never share a key space.
type Namespace string

const (
	NamespaceCheckout   Namespace = "checkout"
	NamespaceConfirm    Namespace = "confirm"
	NamespaceProvider   Namespace = "provider"
	NamespaceChargeback Namespace = "chargeback"
)

// IdempotencyKey is a namespaced exactly-once token.
type IdempotencyKey struct {
	Namespace Namespace
	Value     string
}

func (k IdempotencyKey) String() string {
	return string(k.Namespace) + ":" + k.Value
}

func (k IdempotencyKey) IsZero() bool {
	return k.Namespace == "" && k.Value == ""
}

// CheckoutKey deduplicates the provider create-payment call for an order.
func CheckoutKey(orderID string) IdempotencyKey {
	return IdempotencyKey{Namespace: NamespaceCheckout, Value: orderID}
}

// ConfirmKey deduplicates the provider confirm call for an order.
func ConfirmKey(orderID string) IdempotencyKey {
	return IdempotencyKey{Namespace: NamespaceConfirm, Value: orderID}
}

// SettleKey guards the internal wallet credit. Confirm, webhook and
// reconcile all settle under this key, so whichever path lands first wins
// and the rest become no-ops.
func SettleKey(orderID string) IdempotencyKey {
	return IdempotencyKey{Namespace: NamespaceProvider, Value: orderID}
}

// ChargebackKey guards the dispute debit, so a replayed chargeback webhook
// can never claw back credits twice.
func ChargebackKey(orderID string) IdempotencyKey {
	return IdempotencyKey{Namespace: NamespaceChargeback, Value: orderID}
}
