package rbac

import (
	"context"
	"errors"
)

var (
	// ErrNoMembership means the caller has no accepted roster row and is
	// denied every action. It is never defaulted to a role.
	ErrNoMembership = errors.New("no roster membership")

	// ErrUnknownAction marks a dispatcher bug (action missing from the role
	// table) and is surfaced as 400, not 403, so clients can tell the two
	// apart.
	ErrUnknownAction = errors.New("unknown action")

	// ErrForbidden means the caller's role sits below the action's minimum.
	ErrForbidden = errors.New("insufficient role")
)

// Hierarchy is an ordered role set: a role implies every role with a lower
// level. Level 0 is reserved for "no role".
type Hierarchy map[string]int

// Ops back-office roles.
var OpsRoles = Hierarchy{
	"viewer":    1,
	"operator":  2,
	"publisher": 3,
	"admin":     4,
}

// Agency portal roles.
var AgencyRoles = Hierarchy{
	"viewer":  1,
	"manager": 2,
	"finance": 3,
	"admin":   4,
}

// Allows reports whether userRole meets minRole within h. Unknown user roles
// count as level 0; unknown minimum roles are unreachable.
func (h Hierarchy) Allows(userRole, minRole string) bool {
	min, ok := h[minRole]
	if !ok {
		return false
	}
	return h[userRole] >= min
}

// Known reports whether role is part of the hierarchy.
func (h Hierarchy) Known(role string) bool {
	_, ok := h[role]
	return ok
}

// Membership is one resolved roster row. OrgID scopes agency callers to
// their agency; ops staff have an empty OrgID.
type Membership struct {
	Role  string
	OrgID string
}

// Roster resolves an authenticated caller to a single membership.
// Implementations must return ErrNoMembership when the caller holds no
// accepted row.
type Roster interface {
	Resolve(ctx context.Context, userID string) (Membership, error)
}

// Gate combines a roster with a hierarchy and a static action table.
type Gate struct {
	roster  Roster
	roles   Hierarchy
	minimum map[string]string // action -> min role
}

// NewGate builds a gate and verifies the action table up front: every mapped
// role must exist in the hierarchy, so an unmapped or misspelled role is a
// construction-time error rather than a silent runtime denial.
func NewGate(roster Roster, roles Hierarchy, minimum map[string]string) (*Gate, error) {
	if roster == nil {
		return nil, errors.New("rbac: roster is required")
	}
	for action, role := range minimum {
		if !roles.Known(role) {
			return nil, errors.New("rbac: action " + action + " maps to unknown role " + role)
		}
	}
	return &Gate{roster: roster, roles: roles, minimum: minimum}, nil
}

// Authorize resolves the caller's membership and checks it against the
// action's minimum role. The returned membership is valid only on nil error.
func (g *Gate) Authorize(ctx context.Context, userID, action string) (Membership, error) {
	minRole, ok := g.minimum[action]
	if !ok {
		return Membership{}, ErrUnknownAction
	}
	m, err := g.roster.Resolve(ctx, userID)
	if err != nil {
		return Membership{}, err
	}
	if !g.roles.Allows(m.Role, minRole) {
		return Membership{}, ErrForbidden
	}
	return m, nil
}

// MinimumRole exposes the table entry for an action; used by the dispatcher
// 403 message.
func (g *Gate) MinimumRole(action string) (string, bool) {
	r, ok := g.minimum[action]
	return r, ok
}
