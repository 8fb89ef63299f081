package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fanstage/backoffice/internal/auth"
	"github.com/fanstage/backoffice/internal/obs"
	"github.com/fanstage/backoffice/internal/ratelimit"
	"github.com/fanstage/backoffice/internal/rbac"
	"github.com/fanstage/backoffice/internal/validate"
)

// caller is the authenticated, authorized subject of one dispatched action.
type caller struct {
	UserID string
	Role   string
	OrgID  string
}

type actionHandler func(ctx context.Context, c *caller, raw json.RawMessage) (any, error)

type command struct {
	minRole string
	handle  actionHandler
}

// registry maps action names to their minimum role and handler. The gate is
// built from the same table, so an action cannot exist without a role
// mapping and a mapping cannot exist without a handler.
type registry map[string]command

func (r registry) minimumRoles() map[string]string {
	out := make(map[string]string, len(r))
	for action, cmd := range r {
		out[action] = cmd.minRole
	}
	return out
}

type envelope struct {
	Action  string          `json:"action"`
	Payload json.RawMessage `json:"payload"`
}

// decodePayload unmarshals an action payload and validates it. A missing
// payload decodes as the zero struct so list actions accept {"action": ...}
// alone.
func decodePayload[T any](v *validate.Validator, raw json.RawMessage) (*T, error) {
	var p T
	if len(raw) > 0 {
		if err := json.Unmarshal(raw, &p); err != nil {
			return nil, validate.Failf("payload", "must be a JSON object")
		}
	}
	if err := v.Struct(&p); err != nil {
		return nil, err
	}
	return &p, nil
}

// dispatch runs the shared action pipeline: authenticate, authorize, rate
// limit, then hand off to the action handler.
func (a *API) dispatch(w http.ResponseWriter, r *http.Request, domain string, gate *rbac.Gate, cmds registry) {
	if r.Method != http.MethodPost {
		methodNotAllowed(w, r, http.MethodPost)
		return
	}

	userID, ok := auth.UserIDFromContext(r.Context())
	if !ok {
		writeError(w, r, http.StatusUnauthorized, "missing bearer token")
		return
	}

	var env envelope
	if err := decodeJSON(w, r, &env); err != nil {
		writeError(w, r, http.StatusBadRequest, err.Error())
		return
	}
	if env.Action == "" {
		writeError(w, r, http.StatusBadRequest, "action is required")
		return
	}

	m, err := gate.Authorize(r.Context(), userID, env.Action)
	if err != nil {
		a.countDispatch(domain, env.Action, "denied")
		a.handleDomainError(w, r, err)
		return
	}

	res := ratelimit.Check(r.Context(), a.limiter, ratelimit.Request{
		Key:           domain + ":" + userID,
		Limit:         dispatchRateLimit,
		WindowSeconds: dispatchRateWindow,
	})
	ratelimit.SetHeaders(w.Header(), res)
	if !res.Allowed() {
		a.countDispatch(domain, env.Action, "rate_limited")
		writeError(w, r, http.StatusTooManyRequests, "rate limit exceeded")
		return
	}

	cmd, ok := cmds[env.Action]
	if !ok {
		// Unreachable: the gate shares the registry's action table.
		a.handleDomainError(w, r, rbac.ErrUnknownAction)
		return
	}

	c := &caller{UserID: userID, Role: m.Role, OrgID: m.OrgID}
	data, err := cmd.handle(r.Context(), c, env.Payload)
	if err != nil {
		outcome := "error"
		var verr *validate.Error
		if errors.As(err, &verr) {
			outcome = "invalid"
		}
		a.countDispatch(domain, env.Action, outcome)
		a.handleDomainError(w, r, err)
		return
	}
	a.countDispatch(domain, env.Action, "ok")
	writeSuccess(w, data)
}

const (
	dispatchRateLimit  = 120
	dispatchRateWindow = 60
)

func (a *API) countDispatch(domain, action, outcome string) {
	obs.DispatchTotal.WithLabelValues(domain, action, outcome).Inc()
}

func (a *API) handleOpsManage(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "ops", a.opsGate, a.opsCmds)
}

func (a *API) handleAgencyManage(w http.ResponseWriter, r *http.Request) {
	a.dispatch(w, r, "agency", a.agencyGate, a.agencyCmds)
}
