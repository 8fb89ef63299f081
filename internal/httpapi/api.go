// Package httpapi is the HTTP surface: the two action dispatchers, the
// payment endpoints, and the operational probes.
package httpapi

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"time"

	"github.com/fanstage/backoffice/internal/ads"
	"github.com/fanstage/backoffice/internal/agency"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/obs"
	"github.com/fanstage/backoffice/internal/payment"
	"github.com/fanstage/backoffice/internal/ratelimit"
	"github.com/fanstage/backoffice/internal/rbac"
	"github.com/fanstage/backoffice/internal/validate"
)

// ReadyProbe reports readiness, pinging the database when one is wired.
type ReadyProbe struct {
	DB *sql.DB
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB == nil {
		return nil
	}
	return rp.DB.PingContext(ctx)
}

// RosterAdmin is a roster that staff-management actions can mutate.
type RosterAdmin interface {
	rbac.Roster
	Upsert(ctx context.Context, m rbac.Member) error
	Remove(ctx context.Context, userID, orgID string) error
	List(ctx context.Context, orgID string) ([]rbac.Member, error)
}

// Options wires the API's dependencies.
type Options struct {
	Version      string
	Ready        ReadyProbe
	Content      content.Service
	Ads          ads.Service
	Agency       agency.Service
	Audit        audit.Recorder
	OpsRoster    RosterAdmin
	AgencyRoster RosterAdmin
	Limiter      ratelimit.Limiter
	Payments     *payment.Engine
	ServiceToken string
	// AllowedOrigins is the browser origin allow list used by CORS.
	AllowedOrigins []string
	// DevTokenEndpoint exposes POST /v1/auth/token for local development
	// and tests. Never enable it behind a public listener.
	DevTokenEndpoint bool
}

// API is the HTTP layer.
type API struct {
	mux          *http.ServeMux
	version      string
	ready        ReadyProbe
	content      content.Service
	ads          ads.Service
	agency       agency.Service
	audit        audit.Recorder
	opsRoster    RosterAdmin
	agencyRoster RosterAdmin
	limiter      ratelimit.Limiter
	payments     *payment.Engine
	serviceToken string
	origins      []string
	devToken     bool
	validator    *validate.Validator

	opsGate    *rbac.Gate
	agencyGate *rbac.Gate
	opsCmds    registry
	agencyCmds registry
}

func New(opts Options) (*API, error) {
	a := &API{
		mux:          http.NewServeMux(),
		version:      opts.Version,
		ready:        opts.Ready,
		content:      opts.Content,
		ads:          opts.Ads,
		agency:       opts.Agency,
		audit:        opts.Audit,
		opsRoster:    opts.OpsRoster,
		agencyRoster: opts.AgencyRoster,
		limiter:      opts.Limiter,
		payments:     opts.Payments,
		serviceToken: opts.ServiceToken,
		origins:      opts.AllowedOrigins,
		devToken:     opts.DevTokenEndpoint,
		validator:    validate.New(),
	}

	a.opsCmds = a.opsRegistry()
	a.agencyCmds = a.agencyRegistry()

	// Gate construction checks every action's role mapping up front.
	opsGate, err := rbac.NewGate(opts.OpsRoster, rbac.OpsRoles, a.opsCmds.minimumRoles())
	if err != nil {
		return nil, err
	}
	agencyGate, err := rbac.NewGate(opts.AgencyRoster, rbac.AgencyRoles, a.agencyCmds.minimumRoles())
	if err != nil {
		return nil, err
	}
	a.opsGate = opsGate
	a.agencyGate = agencyGate

	a.mux.HandleFunc("/healthz", a.Healthz)
	a.mux.HandleFunc("/readyz", a.Ready)
	a.mux.HandleFunc("/v1/info", a.Info)
	a.mux.Handle("/metrics", obs.Handler())

	a.mux.HandleFunc("/v1/ops/manage", a.handleOpsManage)
	a.mux.HandleFunc("/v1/agency/manage", a.handleAgencyManage)

	a.mux.HandleFunc("/v1/payments/checkout", a.handleCheckout)
	a.mux.HandleFunc("/v1/payments/confirm", a.handleConfirm)
	a.mux.HandleFunc("/v1/payments/webhook", a.handleWebhook)
	a.mux.HandleFunc("/v1/payments/reconcile", a.handleReconcile)

	if a.devToken {
		a.mux.HandleFunc("/v1/auth/token", a.handleDevToken)
	}

	a.mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	})

	return a, nil
}

// Handler returns the fully wrapped handler chain.
func (a *API) Handler() http.Handler {
	h := http.Handler(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, 1<<20)
	h = CORS(h, a.origins)
	h = SecurityHeaders(h)
	h = Logging(h)
	h = RequestID(h)
	return obs.Instrument(h)
}

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": "backoffice-api",
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	if err := a.ready.Check(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"status": "ready"})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    "backoffice-api",
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

// handleDomainError maps domain sentinels onto the error taxonomy. Messages
// stay stable and never leak internals.
func (a *API) handleDomainError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *validate.Error
	switch {
	case errors.As(err, &verr):
		writeError(w, r, http.StatusBadRequest, verr.Error())
	case errors.Is(err, rbac.ErrUnknownAction):
		writeError(w, r, http.StatusBadRequest, "unknown action")
	case errors.Is(err, content.ErrInvalidStatus),
		errors.Is(err, content.ErrNoSnapshot),
		errors.Is(err, content.ErrInvalidKind),
		errors.Is(err, ads.ErrInvalidStatus),
		errors.Is(err, ads.ErrPaymentNotPaid),
		errors.Is(err, ads.ErrEmptyReason),
		errors.Is(err, payment.ErrUnknownPackage),
		errors.Is(err, payment.ErrAmountMismatch),
		errors.Is(err, agency.ErrInvalidShareRate):
		writeError(w, r, http.StatusBadRequest, err.Error())
	case errors.Is(err, payment.ErrInvalidSignature):
		writeError(w, r, http.StatusUnauthorized, err.Error())
	case errors.Is(err, rbac.ErrNoMembership),
		errors.Is(err, rbac.ErrForbidden),
		errors.Is(err, payment.ErrNotOwner),
		errors.Is(err, payment.ErrOriginNotAllowed):
		writeError(w, r, http.StatusForbidden, err.Error())
	case errors.Is(err, content.ErrNotFound),
		errors.Is(err, ads.ErrNotFound),
		errors.Is(err, payment.ErrOrderNotFound),
		errors.Is(err, agency.ErrCreatorNotFound),
		errors.Is(err, agency.ErrSettlementNotFound):
		writeError(w, r, http.StatusNotFound, err.Error())
	case errors.Is(err, content.ErrVersionConflict),
		errors.Is(err, agency.ErrDuplicateCreator):
		writeError(w, r, http.StatusConflict, err.Error())
	case errors.Is(err, payment.ErrProvider):
		writeError(w, r, http.StatusBadGateway, "payment provider error")
	case errors.Is(err, payment.ErrProviderNotReady),
		errors.Is(err, payment.ErrPurchasesDisabled):
		writeError(w, r, http.StatusServiceUnavailable, err.Error())
	default:
		obs.Event("error", "httpapi", "internal_error", map[string]any{
			"path":  r.URL.Path,
			"error": err.Error(),
		})
		writeError(w, r, http.StatusInternalServerError, "internal error")
	}
}
