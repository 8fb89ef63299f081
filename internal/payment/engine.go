package payment

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/fanstage/backoffice/internal/obs"
)

const (
	providerName = "tosspayments"
	// Pending orders older than this are swept by Reconcile.
	staleAfter     = 45 * time.Minute
	reconcileBatch = 50
	checkoutTTL    = 30 * time.Minute
	refundWindow   = 7 * 24 * time.Hour
	// Signed callbacks outside this window are rejected even with a valid
	// signature, bounding replay of captured payloads.
	webhookSkew = 5 * time.Minute
)

// Config carries the engine's environment knobs.
type Config struct {
	AppBaseURL       string
	AllowedOrigins   []string
	WebhookSecret    string
	PurchasesEnabled bool
}

// Engine drives the settlement paths. Checkout creates the pending order,
// and confirm, webhook and reconcile all converge on Store.Settle under the
// same internal idempotency key.
type Engine struct {
	store    Store
	provider Provider
	cfg      Config
	now      func() time.Time
}

func NewEngine(store Store, provider Provider, cfg Config) *Engine {
	return &Engine{
		store:    store,
		provider: provider,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the engine clock. Test hook.
func (e *Engine) SetClock(now func() time.Time) { e.now = now }

type CheckoutInput struct {
	PackageID string
	Method    string
	Platform  string
	Origin    string
}

type CheckoutResult struct {
	Order       Order     `json:"order"`
	CheckoutURL string    `json:"checkout_url"`
	Package     Package   `json:"package"`
	PriceKRW    int64     `json:"price_krw"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Checkout creates a pending order and opens a payment session at the
// gateway. The effective platform comes from the request origin, not the
// caller's claim, so native apps cannot buy at web prices.
func (e *Engine) Checkout(ctx context.Context, userID string, in CheckoutInput) (CheckoutResult, error) {
	if !e.cfg.PurchasesEnabled {
		return CheckoutResult{}, ErrPurchasesDisabled
	}
	if e.provider == nil {
		return CheckoutResult{}, ErrProviderNotReady
	}

	platform, err := e.resolvePlatform(in.Origin, Platform(in.Platform))
	if err != nil {
		return CheckoutResult{}, err
	}
	pkg, ok := LookupPackage(in.PackageID)
	if !ok {
		return CheckoutResult{}, ErrUnknownPackage
	}
	price := pkg.Prices[platform]
	supply, vat := splitVAT(price)

	method := in.Method
	if method == "" {
		method = "card"
	}
	now := e.now()
	order, err := e.store.CreateOrder(ctx, Order{
		UserID:         userID,
		PackageID:      pkg.ID,
		Credits:        pkg.Credits,
		BonusCredits:   pkg.Bonus,
		PriceKRW:       price,
		SupplyKRW:      supply,
		VATKRW:         vat,
		Method:         method,
		Platform:       platform,
		Status:         OrderPending,
		RefundEligible: now.Add(refundWindow),
	})
	if err != nil {
		return CheckoutResult{}, err
	}

	pp, err := e.provider.CreatePayment(ctx, CreatePaymentParams{
		OrderID:    order.ID,
		OrderName:  pkg.Name,
		Amount:     price,
		Currency:   "KRW",
		SuccessURL: e.cfg.AppBaseURL + "/payment/success",
		FailURL:    e.cfg.AppBaseURL + "/payment/fail",
		Key:        CheckoutKey(order.ID),
	})
	if err != nil {
		e.failOrder(ctx, order.ID, "")
		obs.SettlementsTotal.WithLabelValues("checkout", "provider_error").Inc()
		return CheckoutResult{}, fmt.Errorf("%w: create payment: %v", ErrProvider, err)
	}
	// Cross-verify the amount the gateway registered.
	if pp.TotalAmount != 0 && pp.TotalAmount != price {
		e.failOrder(ctx, order.ID, "")
		obs.SettlementsTotal.WithLabelValues("checkout", "amount_mismatch").Inc()
		return CheckoutResult{}, fmt.Errorf("%w: amount verification failed", ErrProvider)
	}
	if pp.CheckoutURL == "" {
		e.failOrder(ctx, order.ID, "")
		return CheckoutResult{}, fmt.Errorf("%w: no checkout url", ErrProvider)
	}

	obs.SettlementsTotal.WithLabelValues("checkout", "created").Inc()
	obs.Event("info", "payment", "checkout_created", map[string]any{
		"order_id": order.ID,
		"user":     obs.MaskID(userID),
		"package":  pkg.ID,
		"platform": string(platform),
	})
	return CheckoutResult{
		Order:       order,
		CheckoutURL: pp.CheckoutURL,
		Package:     pkg,
		PriceKRW:    price,
		ExpiresAt:   now.Add(checkoutTTL),
	}, nil
}

// resolvePlatform applies the spoof defense: a recognized web origin always
// means web pricing, an unknown origin is rejected, and an absent origin
// (native app) may claim anything except web.
func (e *Engine) resolvePlatform(origin string, claimed Platform) (Platform, error) {
	switch claimed {
	case PlatformWeb, PlatformAndroid, PlatformIOS:
	default:
		claimed = PlatformWeb
	}
	if origin != "" {
		if e.originAllowed(origin) {
			return PlatformWeb, nil
		}
		return "", ErrOriginNotAllowed
	}
	if claimed == PlatformWeb {
		return PlatformAndroid, nil
	}
	return claimed, nil
}

func (e *Engine) originAllowed(origin string) bool {
	for _, a := range e.cfg.AllowedOrigins {
		if strings.EqualFold(a, origin) {
			return true
		}
	}
	return false
}

type ConfirmInput struct {
	PaymentKey string
	OrderID    string
	Amount     int64
}

type ConfirmResult struct {
	OrderID          string      `json:"order_id"`
	Status           OrderStatus `json:"status"`
	AlreadyProcessed bool        `json:"already_processed,omitempty"`
	Credited         int64       `json:"credited,omitempty"`
	NewBalance       int64       `json:"new_balance,omitempty"`
}

// Confirm finalizes a payment after the gateway redirect. Replays and
// concurrent confirms settle at most once; the losers observe
// already_processed instead of an error.
func (e *Engine) Confirm(ctx context.Context, userID string, in ConfirmInput) (ConfirmResult, error) {
	if !e.cfg.PurchasesEnabled {
		return ConfirmResult{}, ErrPurchasesDisabled
	}
	if e.provider == nil {
		return ConfirmResult{}, ErrProviderNotReady
	}

	order, err := e.store.GetOrder(ctx, in.OrderID)
	if err != nil {
		return ConfirmResult{}, err
	}
	if order.UserID != userID {
		return ConfirmResult{}, ErrNotOwner
	}
	if order.Status != OrderPending {
		return ConfirmResult{OrderID: order.ID, Status: order.Status, AlreadyProcessed: true}, nil
	}
	if in.Amount != order.PriceKRW {
		e.failOrder(ctx, order.ID, "")
		obs.Event("warn", "payment", "confirm_amount_mismatch", map[string]any{
			"order_id": order.ID,
			"expected": order.PriceKRW,
			"got":      in.Amount,
		})
		return ConfirmResult{}, ErrAmountMismatch
	}

	pp, err := e.provider.ConfirmPayment(ctx, in.PaymentKey, order.ID, in.Amount, ConfirmKey(order.ID))
	if err != nil {
		e.failOrder(ctx, order.ID, in.PaymentKey)
		obs.SettlementsTotal.WithLabelValues("confirm", "provider_error").Inc()
		return ConfirmResult{}, fmt.Errorf("%w: confirm: %v", ErrProvider, err)
	}

	mapped := mapProviderStatus(pp.Status)
	if mapped != OrderPaid {
		if err := e.store.MarkOrder(ctx, order.ID, mapped, in.PaymentKey); err != nil {
			return ConfirmResult{}, err
		}
		obs.SettlementsTotal.WithLabelValues("confirm", string(mapped)).Inc()
		return ConfirmResult{OrderID: order.ID, Status: mapped}, nil
	}

	return e.settle(ctx, "confirm", order, in.PaymentKey)
}

// settle runs the exactly-once credit shared by confirm, webhook and
// reconcile.
func (e *Engine) settle(ctx context.Context, path string, order Order, providerTxID string) (ConfirmResult, error) {
	if _, err := e.store.GetOrCreateWallet(ctx, order.UserID); err != nil {
		return ConfirmResult{}, err
	}
	w, err := e.store.Settle(ctx, SettleParams{
		OrderID:      order.ID,
		UserID:       order.UserID,
		ProviderTxID: providerTxID,
		Credits:      order.Credits,
		Bonus:        order.BonusCredits,
		Key:          SettleKey(order.ID),
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		obs.SettlementsTotal.WithLabelValues(path, "duplicate").Inc()
		return ConfirmResult{OrderID: order.ID, Status: OrderPaid, AlreadyProcessed: true}, nil
	}
	if err != nil {
		return ConfirmResult{}, err
	}

	total := order.Credits + order.BonusCredits
	obs.SettlementsTotal.WithLabelValues(path, "credited").Inc()
	obs.Event("info", "payment", "settled", map[string]any{
		"order_id": order.ID,
		"user":     obs.MaskID(order.UserID),
		"credited": total,
		"path":     path,
	})
	return ConfirmResult{
		OrderID:    order.ID,
		Status:     OrderPaid,
		Credited:   total,
		NewBalance: w.Balance,
	}, nil
}

func (e *Engine) failOrder(ctx context.Context, orderID, providerTxID string) {
	if err := e.store.MarkOrder(ctx, orderID, OrderFailed, providerTxID); err != nil {
		obs.Event("error", "payment", "mark_failed_error", map[string]any{
			"order_id": orderID,
			"error":    err.Error(),
		})
	}
}

type WebhookInput struct {
	Body      []byte
	WebhookID string
	Timestamp string
	Signature string
}

type WebhookResult struct {
	Status  string `json:"status"` // processed | duplicate | ignored
	OrderID string `json:"order_id,omitempty"`
}

type webhookPayload struct {
	Type      string `json:"type"`
	EventType string `json:"eventType"`
	Data      struct {
		OrderID    string `json:"orderId"`
		PaymentKey string `json:"paymentKey"`
		Status     string `json:"status"`
		FailReason string `json:"failReason"`
		Cancels    []struct {
			CancelReason string `json:"cancelReason"`
			CancelAmount int64  `json:"cancelAmount"`
		} `json:"cancels"`
	} `json:"data"`
}

// HandleWebhook verifies, deduplicates and applies a gateway callback.
// Credits flow through the same internal key as confirm, so a webhook
// racing a confirm can never double-credit.
func (e *Engine) HandleWebhook(ctx context.Context, in WebhookInput) (WebhookResult, error) {
	entry := WebhookLog{
		Provider:  providerName,
		WebhookID: in.WebhookID,
	}

	if !e.verifySignature(in) {
		entry.EventType = "webhook.rejected"
		entry.ProcessedStatus = "failed"
		entry.Error = "signature verification failed"
		_ = e.store.LogWebhook(ctx, entry)
		obs.SettlementsTotal.WithLabelValues("webhook", "bad_signature").Inc()
		return WebhookResult{}, ErrInvalidSignature
	}
	entry.SignatureValid = true

	if !e.timestampFresh(in.Timestamp) {
		entry.EventType = "webhook.rejected"
		entry.ProcessedStatus = "failed"
		entry.Error = "timestamp outside tolerance"
		_ = e.store.LogWebhook(ctx, entry)
		obs.SettlementsTotal.WithLabelValues("webhook", "stale_timestamp").Inc()
		return WebhookResult{}, ErrInvalidSignature
	}

	var p webhookPayload
	if err := json.Unmarshal(in.Body, &p); err != nil {
		entry.EventType = "webhook.unparseable"
		entry.ProcessedStatus = "failed"
		entry.Error = err.Error()
		_ = e.store.LogWebhook(ctx, entry)
		return WebhookResult{}, fmt.Errorf("parse webhook: %w", err)
	}
	eventType := p.Type
	if eventType == "" {
		eventType = p.EventType
	}
	if eventType == "" {
		eventType = "payment.unknown"
	}
	entry.EventType = eventType
	entry.OrderID = p.Data.OrderID

	if in.WebhookID != "" {
		seen, err := e.store.SeenWebhook(ctx, in.WebhookID)
		if err != nil {
			return WebhookResult{}, err
		}
		if seen {
			entry.ProcessedStatus = "duplicate"
			_ = e.store.LogWebhook(ctx, entry)
			obs.SettlementsTotal.WithLabelValues("webhook", "duplicate").Inc()
			return WebhookResult{Status: "duplicate", OrderID: p.Data.OrderID}, nil
		}
	}

	result, err := e.applyWebhookEvent(ctx, eventType, p)
	if err != nil {
		entry.ProcessedStatus = "failed"
		entry.Error = err.Error()
		_ = e.store.LogWebhook(ctx, entry)
		return WebhookResult{}, err
	}
	entry.ProcessedStatus = "success"
	_ = e.store.LogWebhook(ctx, entry)
	return result, nil
}

func (e *Engine) applyWebhookEvent(ctx context.Context, eventType string, p webhookPayload) (WebhookResult, error) {
	orderID := p.Data.OrderID
	if orderID == "" {
		return WebhookResult{Status: "ignored"}, nil
	}
	order, err := e.store.GetOrder(ctx, orderID)
	if err != nil {
		return WebhookResult{}, err
	}

	switch {
	case isPaidEvent(eventType, p.Data.Status):
		if order.Status != OrderPending {
			obs.SettlementsTotal.WithLabelValues("webhook", "duplicate").Inc()
			return WebhookResult{Status: "duplicate", OrderID: orderID}, nil
		}
		if _, err := e.settle(ctx, "webhook", order, p.Data.PaymentKey); err != nil {
			return WebhookResult{}, err
		}
		return WebhookResult{Status: "processed", OrderID: orderID}, nil
	case isCancelledEvent(eventType, p.Data.Status):
		if order.Status == OrderPending {
			if err := e.store.MarkOrder(ctx, orderID, OrderCancelled, p.Data.PaymentKey); err != nil {
				return WebhookResult{}, err
			}
		}
		obs.SettlementsTotal.WithLabelValues("webhook", "cancelled").Inc()
		return WebhookResult{Status: "processed", OrderID: orderID}, nil
	case isChargebackEvent(eventType, p):
		return e.applyChargeback(ctx, order, p)
	default:
		return WebhookResult{Status: "ignored", OrderID: orderID}, nil
	}
}

// applyChargeback claws back the credit for a disputed order. The debit runs
// under its own key, so a redelivered dispute webhook is a no-op.
func (e *Engine) applyChargeback(ctx context.Context, order Order, p webhookPayload) (WebhookResult, error) {
	if order.Status != OrderPaid {
		// Never credited; there is nothing to claw back.
		if order.Status == OrderPending {
			if err := e.store.MarkOrder(ctx, order.ID, OrderCancelled, p.Data.PaymentKey); err != nil {
				return WebhookResult{}, err
			}
		}
		obs.SettlementsTotal.WithLabelValues("webhook", "chargeback").Inc()
		return WebhookResult{Status: "processed", OrderID: order.ID}, nil
	}

	debit := order.Credits + order.BonusCredits
	reason := chargebackReason(p)
	w, err := e.store.Chargeback(ctx, ChargebackParams{
		OrderID:      order.ID,
		UserID:       order.UserID,
		ProviderTxID: p.Data.PaymentKey,
		Credits:      debit,
		Reason:       reason,
		Key:          ChargebackKey(order.ID),
	})
	if errors.Is(err, ErrAlreadyProcessed) {
		obs.SettlementsTotal.WithLabelValues("webhook", "duplicate").Inc()
		return WebhookResult{Status: "duplicate", OrderID: order.ID}, nil
	}
	if err != nil {
		return WebhookResult{}, err
	}

	obs.SettlementsTotal.WithLabelValues("webhook", "chargeback").Inc()
	obs.Event("warn", "payment", "chargeback", map[string]any{
		"order_id": order.ID,
		"user":     obs.MaskID(order.UserID),
		"debited":  debit,
		"reason":   reason,
		"balance":  w.Balance,
	})
	return WebhookResult{Status: "processed", OrderID: order.ID}, nil
}

func chargebackReason(p webhookPayload) string {
	if len(p.Data.Cancels) > 0 && p.Data.Cancels[0].CancelReason != "" {
		return p.Data.Cancels[0].CancelReason
	}
	if p.Data.FailReason != "" {
		return p.Data.FailReason
	}
	return "chargeback"
}

func isPaidEvent(eventType, status string) bool {
	return eventType == "Transaction.Paid" ||
		eventType == "payment.completed" ||
		status == ProviderStatusDone ||
		strings.EqualFold(status, "paid")
}

func isCancelledEvent(eventType, status string) bool {
	return eventType == "Transaction.Cancelled" ||
		eventType == "payment.cancelled" ||
		status == ProviderStatusCanceled ||
		status == "CANCELLED"
}

func isChargebackEvent(eventType string, p webhookPayload) bool {
	if eventType == "Transaction.PartialCancelled" ||
		eventType == "Transaction.CancelPending" ||
		eventType == "payment.chargeback" ||
		p.Data.Status == ProviderStatusPartialCanceled {
		return true
	}
	for _, c := range p.Data.Cancels {
		if strings.Contains(strings.ToUpper(c.CancelReason), "CHARGEBACK") {
			return true
		}
	}
	return false
}

// verifySignature checks the HMAC-SHA256 over "{timestamp}.{body}" in
// constant time. A "v1," prefix on the received signature is tolerated.
func (e *Engine) verifySignature(in WebhookInput) bool {
	if e.cfg.WebhookSecret == "" {
		return false
	}
	mac := hmac.New(sha256.New, []byte(e.cfg.WebhookSecret))
	mac.Write([]byte(in.Timestamp))
	mac.Write([]byte("."))
	mac.Write(in.Body)
	expected := base64.StdEncoding.EncodeToString(mac.Sum(nil))
	received := strings.TrimPrefix(in.Signature, "v1,")
	return hmac.Equal([]byte(expected), []byte(received))
}

// timestampFresh bounds the signed timestamp to webhookSkew around the
// engine clock.
func (e *Engine) timestampFresh(ts string) bool {
	sec, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return false
	}
	d := e.now().Sub(time.Unix(sec, 0))
	if d < 0 {
		d = -d
	}
	return d <= webhookSkew
}

// Sign computes the webhook signature for a payload. Exposed for clients
// and tests that need to produce valid callbacks.
func Sign(secret, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil))
}

type ReconcileAction struct {
	OrderID        string `json:"order_id"`
	ProviderStatus string `json:"provider_status"`
	NewStatus      string `json:"new_status"`
	Action         string `json:"action"`
}

type ReconcileResult struct {
	Processed int               `json:"processed"`
	Results   []ReconcileAction `json:"results"`
}

// Reconcile sweeps pending orders the redirect and webhook both missed.
// It queries the gateway for each stale order and settles, cancels or
// fails it under the shared internal key.
func (e *Engine) Reconcile(ctx context.Context) (ReconcileResult, error) {
	if e.provider == nil {
		return ReconcileResult{}, ErrProviderNotReady
	}

	cutoff := e.now().Add(-staleAfter)
	stale, err := e.store.ListStalePending(ctx, cutoff, reconcileBatch)
	if err != nil {
		return ReconcileResult{}, err
	}

	var results []ReconcileAction
	for _, order := range stale {
		results = append(results, e.reconcileOne(ctx, order))
	}
	obs.Event("info", "payment", "reconcile_done", map[string]any{"processed": len(results)})
	return ReconcileResult{Processed: len(results), Results: results}, nil
}

func (e *Engine) reconcileOne(ctx context.Context, order Order) ReconcileAction {
	pp, err := e.provider.GetPaymentByOrder(ctx, order.ID)
	if err != nil {
		// The gateway does not know this order; it can never complete.
		e.failOrder(ctx, order.ID, "")
		obs.SettlementsTotal.WithLabelValues("reconcile", "failed").Inc()
		return ReconcileAction{OrderID: order.ID, ProviderStatus: "UNKNOWN", NewStatus: string(OrderFailed), Action: "marked_failed"}
	}

	switch pp.Status {
	case ProviderStatusDone:
		res, err := e.settle(ctx, "reconcile", order, pp.PaymentKey)
		if err != nil {
			return ReconcileAction{OrderID: order.ID, ProviderStatus: pp.Status, NewStatus: "error", Action: "settle_failed"}
		}
		action := "credited"
		if res.AlreadyProcessed {
			action = "already_credited"
		}
		return ReconcileAction{OrderID: order.ID, ProviderStatus: pp.Status, NewStatus: string(OrderPaid), Action: action}
	case ProviderStatusCanceled, ProviderStatusPartialCanceled:
		if err := e.store.MarkOrder(ctx, order.ID, OrderCancelled, pp.PaymentKey); err != nil {
			return ReconcileAction{OrderID: order.ID, ProviderStatus: pp.Status, NewStatus: "error", Action: "mark_failed"}
		}
		obs.SettlementsTotal.WithLabelValues("reconcile", "cancelled").Inc()
		return ReconcileAction{OrderID: order.ID, ProviderStatus: pp.Status, NewStatus: string(OrderCancelled), Action: "marked_cancelled"}
	default:
		// READY, IN_PROGRESS, ABORTED, EXPIRED: stale past the window.
		e.failOrder(ctx, order.ID, pp.PaymentKey)
		obs.SettlementsTotal.WithLabelValues("reconcile", "failed").Inc()
		return ReconcileAction{OrderID: order.ID, ProviderStatus: pp.Status, NewStatus: string(OrderFailed), Action: "stale_timeout"}
	}
}
