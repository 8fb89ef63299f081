package rbac

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Member is one roster row. A member with a zero AcceptedAt is a pending
// invite and resolves to no membership.
type Member struct {
	UserID      string    `json:"user_id"`
	Role        string    `json:"role"`
	OrgID       string    `json:"org_id,omitempty"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	InvitedAt   time.Time `json:"invited_at"`
	AcceptedAt  time.Time `json:"accepted_at,omitempty"`
}

func (m Member) accepted() bool { return !m.AcceptedAt.IsZero() }

// InMemoryRoster is a mutable roster for tests and the dev server. A user
// may hold rows in several orgs; Resolve returns the earliest accepted one.
type InMemoryRoster struct {
	mu      sync.RWMutex
	members map[string][]Member // userID -> rows
}

func NewInMemoryRoster() *InMemoryRoster {
	return &InMemoryRoster{members: make(map[string][]Member)}
}

// Upsert inserts or replaces the member's row within its org.
func (r *InMemoryRoster) Upsert(_ context.Context, m Member) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := time.Now().UTC()
	if m.InvitedAt.IsZero() {
		m.InvitedAt = now
	}
	rows := r.members[m.UserID]
	for i, row := range rows {
		if row.OrgID == m.OrgID {
			if m.AcceptedAt.IsZero() {
				m.AcceptedAt = row.AcceptedAt
			}
			if m.InvitedAt.IsZero() {
				m.InvitedAt = row.InvitedAt
			}
			rows[i] = m
			return nil
		}
	}
	r.members[m.UserID] = append(rows, m)
	return nil
}

// Remove deletes the member's row within org. Removing a missing row is a
// no-op.
func (r *InMemoryRoster) Remove(_ context.Context, userID, orgID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	rows := r.members[userID]
	for i, row := range rows {
		if row.OrgID == orgID {
			r.members[userID] = append(rows[:i], rows[i+1:]...)
			return nil
		}
	}
	return nil
}

// Resolve returns the caller's earliest accepted membership.
func (r *InMemoryRoster) Resolve(_ context.Context, userID string) (Membership, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var best *Member
	for i := range r.members[userID] {
		m := &r.members[userID][i]
		if !m.accepted() {
			continue
		}
		if best == nil || m.AcceptedAt.Before(best.AcceptedAt) {
			best = m
		}
	}
	if best == nil {
		return Membership{}, ErrNoMembership
	}
	return Membership{Role: best.Role, OrgID: best.OrgID}, nil
}

// List returns the org's members ordered by invite time.
func (r *InMemoryRoster) List(_ context.Context, orgID string) ([]Member, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []Member
	for _, rows := range r.members {
		for _, m := range rows {
			if m.OrgID == orgID {
				out = append(out, m)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].InvitedAt.Before(out[j].InvitedAt) })
	return out, nil
}
