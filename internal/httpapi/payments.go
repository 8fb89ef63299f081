package httpapi

import (
	"crypto/subtle"
	"io"
	"net/http"

	"github.com/fanstage/backoffice/internal/auth"
	"github.com/fanstage/backoffice/internal/payment"
	"github.com/fanstage/backoffice/internal/ratelimit"
	"github.com/fanstage/backoffice/internal/validate"
)

const (
	purchaseRateLimit  = 10
	purchaseRateWindow = 3600
)

// purchaseLimited applies the per-user purchase window shared by checkout
// and confirm. Returns false after writing the 429 response.
func (a *API) purchaseLimited(w http.ResponseWriter, r *http.Request, prefix, userID string) bool {
	res := ratelimit.Check(r.Context(), a.limiter, ratelimit.Request{
		Key:           prefix + ":" + userID,
		Limit:         purchaseRateLimit,
		WindowSeconds: purchaseRateWindow,
	})
	ratelimit.SetHeaders(w.Header(), res)
	if !res.Allowed() {
		writeError(w, r, http.StatusTooManyRequests, "too many purchase attempts")
		return false
	}
	return true
}

func (a *API) handleCheckout(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if !a.purchaseLimited(w, r, "checkout", userID) {
		return
	}

	var req validate.Checkout
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validator.Struct(&req); err != nil {
		a.handleDomainError(w, r, err)
		return
	}

	res, err := a.payments.Checkout(r.Context(), userID, payment.CheckoutInput{
		PackageID: req.PackageID,
		Method:    req.PaymentMethod,
		Platform:  req.Platform,
		Origin:    r.Header.Get("Origin"),
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeSuccess(w, res)
}

func (a *API) handleConfirm(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}
	if !a.purchaseLimited(w, r, "confirm", userID) {
		return
	}

	var req validate.Confirm
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if err := a.validator.Struct(&req); err != nil {
		a.handleDomainError(w, r, err)
		return
	}

	res, err := a.payments.Confirm(r.Context(), userID, payment.ConfirmInput{
		PaymentKey: req.PaymentKey,
		OrderID:    req.OrderID,
		Amount:     req.Amount,
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	switch {
	case res.AlreadyProcessed:
		writeJSON(w, http.StatusOK, map[string]any{
			"success":           true,
			"already_processed": true,
			"data":              res,
		})
	case res.Status == payment.OrderPaid:
		writeSuccess(w, res)
	default:
		// The gateway reported a terminal non-paid status; not an API error.
		writeJSON(w, http.StatusOK, map[string]any{
			"success": false,
			"data":    res,
		})
	}
}

// handleWebhook authenticates with the HMAC signature instead of a bearer
// token; the engine rejects bad signatures before touching any state.
func (a *API) handleWebhook(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	body, err := io.ReadAll(io.LimitReader(r.Body, 1<<20))
	if err != nil {
		writeError(w, r, http.StatusBadRequest, "unreadable body")
		return
	}
	res, err := a.payments.HandleWebhook(r.Context(), payment.WebhookInput{
		Body:      body,
		WebhookID: r.Header.Get("webhook-id"),
		Timestamp: r.Header.Get("webhook-timestamp"),
		Signature: r.Header.Get("webhook-signature"),
	})
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeSuccess(w, res)
}

// handleReconcile is for the scheduler, guarded by the service token.
func (a *API) handleReconcile(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}
	token, ok := extractBearerToken(r)
	if a.serviceToken == "" || !ok ||
		subtle.ConstantTimeCompare([]byte(token), []byte(a.serviceToken)) != 1 {
		writeError(w, r, http.StatusUnauthorized, "invalid service token")
		return
	}
	res, err := a.payments.Reconcile(r.Context())
	if err != nil {
		a.handleDomainError(w, r, err)
		return
	}
	writeSuccess(w, res)
}
