package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fanstage/backoffice/internal/agency"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/ids"
	"github.com/fanstage/backoffice/internal/rbac"
	"github.com/fanstage/backoffice/internal/validate"
)

// agencyRegistry is the action table for /v1/agency/manage. Minimum roles
// follow the agency hierarchy viewer < manager < finance < admin. The
// caller's agency comes from the resolved membership, never the payload.
func (a *API) agencyRegistry() registry {
	return registry{
		"dashboard.summary": {minRole: "viewer", handle: a.agencySummary},

		"creator.list":   {minRole: "viewer", handle: a.creatorList},
		"creator.add":    {minRole: "manager", handle: a.creatorAdd},
		"creator.update": {minRole: "manager", handle: a.creatorUpdate},
		"creator.remove": {minRole: "manager", handle: a.creatorRemove},

		"settlement.list": {minRole: "finance", handle: a.settlementList},
		"settlement.get":  {minRole: "finance", handle: a.settlementGet},

		"staff.list":   {minRole: "admin", handle: a.agencyStaffList},
		"staff.invite": {minRole: "admin", handle: a.agencyStaffInvite},
		"staff.remove": {minRole: "admin", handle: a.agencyStaffRemove},

		"audit.list": {minRole: "admin", handle: a.agencyAuditList},
	}
}

func (a *API) agencyActor(c *caller) agency.Actor {
	return agency.Actor{ID: c.UserID, Role: c.Role, AgencyID: c.OrgID}
}

func parseDay(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	return time.Parse("2006-01-02", s)
}

func (a *API) agencySummary(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.DashboardSummary](a.validator, raw)
	if err != nil {
		return nil, err
	}
	start, err := parseDay(p.PeriodStart)
	if err != nil {
		return nil, validate.Failf("period_start", "invalid date format")
	}
	end, err := parseDay(p.PeriodEnd)
	if err != nil {
		return nil, validate.Failf("period_end", "invalid date format")
	}
	sum, err := a.agency.Summary(ctx, c.OrgID, start, end)
	if err != nil {
		return nil, err
	}
	return map[string]any{"summary": sum}, nil
}

func (a *API) creatorList(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.CreatorList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	items, total, err := a.agency.ListCreators(ctx, c.OrgID, agency.CreatorFilter{
		Status: agency.CreatorStatus(p.Status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	return listPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (a *API) creatorAdd(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.CreatorAdd](a.validator, raw)
	if err != nil {
		return nil, err
	}
	start, err := parseDay(p.ContractStart)
	if err != nil {
		return nil, validate.Failf("contract_start", "invalid date format")
	}
	params := agency.AddCreatorParams{
		CreatorProfileID: p.CreatorProfileID,
		ContractStart:    start,
		RevenueShareRate: *p.RevenueShareRate,
		SettlementBasis:  p.SettlementBasis,
		ContractNotes:    p.ContractNotes,
	}
	if p.ContractEnd != "" {
		end, err := parseDay(p.ContractEnd)
		if err != nil {
			return nil, validate.Failf("contract_end", "invalid date format")
		}
		params.ContractEnd = &end
	}
	creator, err := a.agency.AddCreator(ctx, a.agencyActor(c), params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"creator": creator}, nil
}

func (a *API) creatorUpdate(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.CreatorUpdate](a.validator, raw)
	if err != nil {
		return nil, err
	}
	params := agency.UpdateCreatorParams{
		RevenueShareRate: p.RevenueShareRate,
		SettlementBasis:  p.SettlementBasis,
		ContractNotes:    p.ContractNotes,
	}
	if p.ContractEnd != "" {
		end, err := parseDay(p.ContractEnd)
		if err != nil {
			return nil, validate.Failf("contract_end", "invalid date format")
		}
		params.ContractEnd = &end
	}
	creator, err := a.agency.UpdateCreator(ctx, a.agencyActor(c), p.ID, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"creator": creator}, nil
}

func (a *API) creatorRemove(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.CreatorRemove](a.validator, raw)
	if err != nil {
		return nil, err
	}
	creator, err := a.agency.RemoveCreator(ctx, a.agencyActor(c), p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"creator": creator}, nil
}

func (a *API) settlementList(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.SettlementList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	items, total, err := a.agency.ListSettlements(ctx, c.OrgID, agency.SettlementFilter{
		Status: agency.SettlementStatus(p.Status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	return listPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (a *API) settlementGet(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.SettlementGet](a.validator, raw)
	if err != nil {
		return nil, err
	}
	s, err := a.agency.GetSettlement(ctx, c.OrgID, p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"settlement": s}, nil
}

// -- agency staff --

func (a *API) agencyStaffList(ctx context.Context, c *caller, _ json.RawMessage) (any, error) {
	members, err := a.agencyRoster.List(ctx, c.OrgID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"members": members, "total": len(members)}, nil
}

// agencyStaffInvite creates a pending roster row. The invitee gets a fresh
// user id and no membership until the invite is accepted.
func (a *API) agencyStaffInvite(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.AgencyStaffInvite](a.validator, raw)
	if err != nil {
		return nil, err
	}
	m := rbac.Member{
		UserID:    ids.NewEntityID(),
		Role:      p.Role,
		OrgID:     c.OrgID,
		Email:     p.Email,
		InvitedAt: time.Now().UTC(),
	}
	if err := a.agencyRoster.Upsert(ctx, m); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, c, "staff.invite", "agency_staff", m.UserID, nil, memberImage(m), map[string]any{"agency_id": c.OrgID})
	return map[string]any{"member": m}, nil
}

func (a *API) agencyStaffRemove(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.AgencyStaffRemove](a.validator, raw)
	if err != nil {
		return nil, err
	}
	var before map[string]any
	if existing, err := a.agencyRoster.List(ctx, c.OrgID); err == nil {
		for _, m := range existing {
			if m.UserID == p.UserID {
				before = memberImage(m)
				break
			}
		}
	}
	if err := a.agencyRoster.Remove(ctx, p.UserID, c.OrgID); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, c, "staff.remove", "agency_staff", p.UserID, before, nil, map[string]any{"agency_id": c.OrgID})
	return map[string]any{"removed": p.UserID}, nil
}

// agencyAuditList returns audit entries scoped to the caller's agency.
// Entries written by agency actions carry the agency id in their metadata;
// anything without it belongs to another surface and is filtered out.
func (a *API) agencyAuditList(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.AuditList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	entries, _, err := a.audit.List(ctx, audit.Filter{
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Limit:      1000,
	})
	if err != nil {
		return nil, err
	}
	scoped := make([]audit.Entry, 0, len(entries))
	for _, e := range entries {
		if id, _ := e.Metadata["agency_id"].(string); id == c.OrgID {
			scoped = append(scoped, e)
		}
	}
	total := len(scoped)
	if offset >= total {
		scoped = nil
	} else {
		scoped = scoped[offset:]
		if len(scoped) > limit {
			scoped = scoped[:limit]
		}
	}
	return listPage{Items: scoped, Total: total, Limit: limit, Offset: offset}, nil
}
