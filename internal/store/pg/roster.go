package pg

import (
	"context"
	"database/sql"
	"errors"

	"github.com/fanstage/backoffice/internal/rbac"
)

// RosterStore backs both staff tables. The ops roster lives in rows with an
// empty org id; agency rosters are org-scoped. Resolve follows the earliest
// accepted row, matching the in-memory roster.
type RosterStore struct {
	db   *sql.DB
	kind string // ops | agency
}

func scanMember(row interface{ Scan(...any) error }) (rbac.Member, error) {
	var (
		m        rbac.Member
		accepted sql.NullTime
	)
	err := row.Scan(&m.UserID, &m.Role, &m.OrgID, &m.DisplayName, &m.Email,
		&m.InvitedAt, &accepted)
	if accepted.Valid {
		m.AcceptedAt = accepted.Time
	}
	return m, err
}

func (s *RosterStore) Upsert(ctx context.Context, m rbac.Member) error {
	var accepted, invited any
	if !m.AcceptedAt.IsZero() {
		accepted = m.AcceptedAt
	}
	if !m.InvitedAt.IsZero() {
		invited = m.InvitedAt
	}
	_, err := s.db.ExecContext(ctx, `
		insert into staff_members (user_id, role, org_id, display_name, email,
			invited_at, accepted_at, roster)
		values ($1, $2, nullif($3, ''), nullif($4, ''), nullif($5, ''),
			coalesce($6, now()), $7, $8)
		on conflict (user_id, org_id) do update set
			role = excluded.role,
			display_name = coalesce(excluded.display_name, staff_members.display_name),
			email = coalesce(excluded.email, staff_members.email),
			accepted_at = coalesce(excluded.accepted_at, staff_members.accepted_at)
	`, m.UserID, m.Role, m.OrgID, m.DisplayName, m.Email, invited, accepted, s.kind)
	return err
}

func (s *RosterStore) Remove(ctx context.Context, userID, orgID string) error {
	res, err := s.db.ExecContext(ctx, `
		delete from staff_members
		where user_id = $1 and coalesce(org_id, '') = $2 and roster = $3
	`, userID, orgID, s.kind)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return rbac.ErrNoMembership
	}
	return err
}

func (s *RosterStore) Resolve(ctx context.Context, userID string) (rbac.Membership, error) {
	row := s.db.QueryRowContext(ctx, `
		select role, coalesce(org_id, '')
		from staff_members
		where user_id = $1 and roster = $2 and accepted_at is not null
		order by accepted_at asc
		limit 1
	`, userID, s.kind)
	var m rbac.Membership
	err := row.Scan(&m.Role, &m.OrgID)
	if errors.Is(err, sql.ErrNoRows) {
		return rbac.Membership{}, rbac.ErrNoMembership
	}
	return m, err
}

func (s *RosterStore) List(ctx context.Context, orgID string) ([]rbac.Member, error) {
	rows, err := s.db.QueryContext(ctx, `
		select user_id, role, coalesce(org_id, ''), coalesce(display_name, ''),
			coalesce(email, ''), invited_at, accepted_at
		from staff_members
		where coalesce(org_id, '') = $1 and roster = $2
		order by invited_at asc
	`, orgID, s.kind)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []rbac.Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}
