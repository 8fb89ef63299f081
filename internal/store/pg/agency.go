package pg

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/fanstage/backoffice/internal/agency"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/ids"
)

var _ agency.Service = (*AgencyStore)(nil)

type AgencyStore struct {
	db *sql.DB
}

const creatorColumns = `id, agency_id, creator_profile_id, status, contract_start,
	contract_end, revenue_share_rate, coalesce(settlement_basis, 'monthly'),
	coalesce(contract_notes, ''), created_at, updated_at`

func scanCreator(row interface{ Scan(...any) error }) (agency.Creator, error) {
	var (
		c   agency.Creator
		end sql.NullTime
	)
	err := row.Scan(&c.ID, &c.AgencyID, &c.CreatorProfileID, &c.Status,
		&c.ContractStart, &end, &c.RevenueShareRate, &c.SettlementBasis,
		&c.ContractNotes, &c.CreatedAt, &c.UpdatedAt)
	if end.Valid {
		c.ContractEnd = &end.Time
	}
	return c, err
}

func (s *AgencyStore) Summary(ctx context.Context, agencyID string, periodStart, periodEnd time.Time) (agency.Summary, error) {
	var sum agency.Summary
	err := s.db.QueryRowContext(ctx, `
		select count(*),
		       count(*) filter (where status = 'active')
		from agency_creators
		where agency_id = $1
	`, agencyID).Scan(&sum.CreatorCount, &sum.ActiveCreators)
	if err != nil {
		return agency.Summary{}, err
	}

	err = s.db.QueryRowContext(ctx, `
		select coalesce(sum(share_krw) filter (where status in ('pending_review', 'approved', 'processing')), 0),
		       coalesce(sum(share_krw) filter (where status = 'paid'), 0),
		       count(*) filter (where status not in ('paid', 'cancelled'))
		from agency_settlements
		where agency_id = $1
		  and ($2::timestamptz is null or period_end >= $2)
		  and ($3::timestamptz is null or period_start <= $3)
	`, agencyID, nullTime(periodStart), nullTime(periodEnd)).
		Scan(&sum.PendingPayoutKRW, &sum.PaidPayoutKRW, &sum.SettlementsInPlay)
	if err != nil {
		return agency.Summary{}, err
	}
	return sum, nil
}

func nullTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}

func (s *AgencyStore) ListCreators(ctx context.Context, agencyID string, f agency.CreatorFilter) ([]agency.Creator, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+creatorColumns+`, count(*) over ()
		from agency_creators
		where agency_id = $1 and ($2 = '' or status = $2)
		order by created_at desc
		limit $3 offset $4
	`, agencyID, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []agency.Creator
		total int
	)
	for rows.Next() {
		var (
			c   agency.Creator
			end sql.NullTime
		)
		if err := rows.Scan(&c.ID, &c.AgencyID, &c.CreatorProfileID, &c.Status,
			&c.ContractStart, &end, &c.RevenueShareRate, &c.SettlementBasis,
			&c.ContractNotes, &c.CreatedAt, &c.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		if end.Valid {
			c.ContractEnd = &end.Time
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (s *AgencyStore) AddCreator(ctx context.Context, actor agency.Actor, p agency.AddCreatorParams) (agency.Creator, error) {
	if p.RevenueShareRate < 0 || p.RevenueShareRate > 1 {
		return agency.Creator{}, agency.ErrInvalidShareRate
	}
	basis := p.SettlementBasis
	if basis == "" {
		basis = "monthly"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agency.Creator{}, err
	}
	defer func() { _ = tx.Rollback() }()

	// One live contract per creator profile per agency.
	var exists bool
	if err := tx.QueryRowContext(ctx, `
		select exists (
			select 1 from agency_creators
			where agency_id = $1 and creator_profile_id = $2 and status <> 'terminated'
		)
	`, actor.AgencyID, p.CreatorProfileID).Scan(&exists); err != nil {
		return agency.Creator{}, err
	}
	if exists {
		return agency.Creator{}, agency.ErrDuplicateCreator
	}

	var contractEnd any
	if p.ContractEnd != nil {
		contractEnd = *p.ContractEnd
	}
	row := tx.QueryRowContext(ctx, `
		insert into agency_creators (id, agency_id, creator_profile_id, status,
			contract_start, contract_end, revenue_share_rate, settlement_basis,
			contract_notes)
		values ($1, $2, $3, 'active', $4, $5, $6, $7, nullif($8, ''))
		returning `+creatorColumns+`
	`, ids.NewEntityID(), actor.AgencyID, p.CreatorProfileID, p.ContractStart,
		contractEnd, p.RevenueShareRate, basis, p.ContractNotes)
	c, err := scanCreator(row)
	if err != nil {
		return agency.Creator{}, err
	}

	if err := s.auditCreatorTx(ctx, tx, actor, "creator.add", c.ID, nil, creatorImage(c)); err != nil {
		return agency.Creator{}, err
	}
	if err := tx.Commit(); err != nil {
		return agency.Creator{}, err
	}
	return c, nil
}

func (s *AgencyStore) UpdateCreator(ctx context.Context, actor agency.Actor, id string, p agency.UpdateCreatorParams) (agency.Creator, error) {
	if p.RevenueShareRate != nil && (*p.RevenueShareRate < 0 || *p.RevenueShareRate > 1) {
		return agency.Creator{}, agency.ErrInvalidShareRate
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agency.Creator{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := s.lockCreator(ctx, tx, actor.AgencyID, id)
	if err != nil {
		return agency.Creator{}, err
	}

	var contractEnd any
	if p.ContractEnd != nil {
		contractEnd = *p.ContractEnd
	}
	row := tx.QueryRowContext(ctx, `
		update agency_creators
		set revenue_share_rate = coalesce($3, revenue_share_rate),
		    settlement_basis = coalesce(nullif($4, ''), settlement_basis),
		    contract_end = coalesce($5, contract_end),
		    contract_notes = coalesce(nullif($6, ''), contract_notes),
		    updated_at = now()
		where id = $1 and agency_id = $2
		returning `+creatorColumns+`
	`, id, actor.AgencyID, p.RevenueShareRate, p.SettlementBasis, contractEnd, p.ContractNotes)
	c, err := scanCreator(row)
	if err != nil {
		return agency.Creator{}, err
	}

	if err := s.auditCreatorTx(ctx, tx, actor, "creator.update", id, creatorImage(before), creatorImage(c)); err != nil {
		return agency.Creator{}, err
	}
	if err := tx.Commit(); err != nil {
		return agency.Creator{}, err
	}
	return c, nil
}

func (s *AgencyStore) RemoveCreator(ctx context.Context, actor agency.Actor, id string) (agency.Creator, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return agency.Creator{}, err
	}
	defer func() { _ = tx.Rollback() }()

	before, err := s.lockCreator(ctx, tx, actor.AgencyID, id)
	if err != nil {
		return agency.Creator{}, err
	}

	row := tx.QueryRowContext(ctx, `
		update agency_creators
		set status = 'terminated', contract_end = coalesce(contract_end, now()),
		    updated_at = now()
		where id = $1 and agency_id = $2
		returning `+creatorColumns+`
	`, id, actor.AgencyID)
	c, err := scanCreator(row)
	if err != nil {
		return agency.Creator{}, err
	}

	if err := s.auditCreatorTx(ctx, tx, actor, "creator.remove", id, creatorImage(before), creatorImage(c)); err != nil {
		return agency.Creator{}, err
	}
	if err := tx.Commit(); err != nil {
		return agency.Creator{}, err
	}
	return c, nil
}

func (s *AgencyStore) lockCreator(ctx context.Context, tx *sql.Tx, agencyID, id string) (agency.Creator, error) {
	row := tx.QueryRowContext(ctx, `
		select `+creatorColumns+`
		from agency_creators
		where id = $1 and agency_id = $2
		for update
	`, id, agencyID)
	c, err := scanCreator(row)
	if errors.Is(err, sql.ErrNoRows) {
		return agency.Creator{}, agency.ErrCreatorNotFound
	}
	return c, err
}

const settlementColumns = `id, agency_id, creator_id, period_start, period_end,
	gross_krw, share_krw, status, created_at`

func (s *AgencyStore) ListSettlements(ctx context.Context, agencyID string, f agency.SettlementFilter) ([]agency.Settlement, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+settlementColumns+`, count(*) over ()
		from agency_settlements
		where agency_id = $1 and ($2 = '' or status = $2)
		order by period_end desc
		limit $3 offset $4
	`, agencyID, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []agency.Settlement
		total int
	)
	for rows.Next() {
		var st agency.Settlement
		if err := rows.Scan(&st.ID, &st.AgencyID, &st.CreatorID, &st.PeriodStart,
			&st.PeriodEnd, &st.GrossKRW, &st.ShareKRW, &st.Status, &st.CreatedAt,
			&total); err != nil {
			return nil, 0, err
		}
		out = append(out, st)
	}
	return out, total, rows.Err()
}

func (s *AgencyStore) GetSettlement(ctx context.Context, agencyID, id string) (agency.Settlement, error) {
	row := s.db.QueryRowContext(ctx, `
		select `+settlementColumns+`
		from agency_settlements
		where id = $1 and agency_id = $2
	`, id, agencyID)
	var st agency.Settlement
	err := row.Scan(&st.ID, &st.AgencyID, &st.CreatorID, &st.PeriodStart,
		&st.PeriodEnd, &st.GrossKRW, &st.ShareKRW, &st.Status, &st.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return agency.Settlement{}, agency.ErrSettlementNotFound
	}
	return st, err
}

func (s *AgencyStore) auditCreatorTx(ctx context.Context, tx *sql.Tx, actor agency.Actor, action, entityID string, before, after map[string]any) error {
	entry, err := audit.NewEntry(actor.ID, actor.Role, action, "agency_creator", entityID,
		before, after, map[string]any{"agency_id": actor.AgencyID})
	if err != nil {
		return err
	}
	return insertAudit(ctx, tx, entry)
}

func creatorImage(c agency.Creator) map[string]any {
	img := map[string]any{
		"creator_profile_id": c.CreatorProfileID,
		"status":             string(c.Status),
		"revenue_share_rate": c.RevenueShareRate,
		"settlement_basis":   c.SettlementBasis,
	}
	if c.ContractEnd != nil {
		img["contract_end"] = c.ContractEnd.Format("2006-01-02")
	}
	return img
}
