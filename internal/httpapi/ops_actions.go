package httpapi

import (
	"context"
	"encoding/json"
	"time"

	"github.com/fanstage/backoffice/internal/ads"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/rbac"
	"github.com/fanstage/backoffice/internal/validate"
)

// opsRegistry is the full action table for /v1/ops/manage. Minimum roles
// follow the ops hierarchy viewer < operator < publisher < admin.
func (a *API) opsRegistry() registry {
	return registry{
		"staff.list":   {minRole: "admin", handle: a.opsStaffList},
		"staff.upsert": {minRole: "admin", handle: a.opsStaffUpsert},
		"staff.remove": {minRole: "admin", handle: a.opsStaffRemove},

		"banner.list":          {minRole: "viewer", handle: a.bannerList},
		"banner.get":           {minRole: "viewer", handle: a.bannerGet},
		"banner.create":        {minRole: "operator", handle: a.bannerCreate},
		"banner.update":        {minRole: "operator", handle: a.bannerUpdate},
		"banner.submit_review": {minRole: "operator", handle: a.bannerSubmitReview},
		"banner.publish":       {minRole: "publisher", handle: a.bannerPublish},
		"banner.rollback":      {minRole: "publisher", handle: a.bannerRollback},
		"banner.archive":       {minRole: "publisher", handle: a.bannerArchive},

		"flag.list":     {minRole: "viewer", handle: a.flagList},
		"flag.get":      {minRole: "viewer", handle: a.flagGet},
		"flag.create":   {minRole: "operator", handle: a.flagCreate},
		"flag.update":   {minRole: "operator", handle: a.flagUpdate},
		"flag.publish":  {minRole: "publisher", handle: a.flagPublish},
		"flag.rollback": {minRole: "publisher", handle: a.flagRollback},

		"fan_ad.list":    {minRole: "viewer", handle: a.fanAdList},
		"fan_ad.approve": {minRole: "operator", handle: a.fanAdApprove},
		"fan_ad.reject":  {minRole: "operator", handle: a.fanAdReject},

		"audit.list": {minRole: "viewer", handle: a.opsAuditList},
	}
}

type listPage struct {
	Items  any `json:"items"`
	Total  int `json:"total"`
	Limit  int `json:"limit"`
	Offset int `json:"offset"`
}

func clampPage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = 50
	}
	return limit, offset
}

// -- staff --

func memberImage(m rbac.Member) map[string]any {
	img := map[string]any{
		"user_id": m.UserID,
		"role":    m.Role,
	}
	if m.DisplayName != "" {
		img["display_name"] = m.DisplayName
	}
	if m.Email != "" {
		img["email"] = m.Email
	}
	return img
}

func (a *API) opsStaffList(ctx context.Context, _ *caller, _ json.RawMessage) (any, error) {
	members, err := a.opsRoster.List(ctx, "")
	if err != nil {
		return nil, err
	}
	return map[string]any{"members": members, "total": len(members)}, nil
}

func (a *API) opsStaffUpsert(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.StaffUpsert](a.validator, raw)
	if err != nil {
		return nil, err
	}

	var before map[string]any
	if existing, err := a.opsRoster.List(ctx, ""); err == nil {
		for _, m := range existing {
			if m.UserID == p.TargetUserID {
				before = memberImage(m)
				break
			}
		}
	}

	m := rbac.Member{
		UserID:      p.TargetUserID,
		Role:        p.Role,
		DisplayName: p.DisplayName,
		AcceptedAt:  time.Now().UTC(),
	}
	if err := a.opsRoster.Upsert(ctx, m); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, c, "staff.upsert", "ops_staff", p.TargetUserID, before, memberImage(m), nil)
	return map[string]any{"member": memberImage(m)}, nil
}

func (a *API) opsStaffRemove(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.StaffRemove](a.validator, raw)
	if err != nil {
		return nil, err
	}

	var before map[string]any
	if existing, err := a.opsRoster.List(ctx, ""); err == nil {
		for _, m := range existing {
			if m.UserID == p.TargetUserID {
				before = memberImage(m)
				break
			}
		}
	}

	if err := a.opsRoster.Remove(ctx, p.TargetUserID, ""); err != nil {
		return nil, err
	}
	a.recordAudit(ctx, c, "staff.remove", "ops_staff", p.TargetUserID, before, nil, nil)
	return map[string]any{"removed": p.TargetUserID}, nil
}

// recordAudit writes one entry, logging rather than failing the action when
// the recorder itself errors. Content and ad mutations audit inside their
// services; this covers the mutations the dispatcher owns directly.
func (a *API) recordAudit(ctx context.Context, c *caller, action, entityType, entityID string, before, after, metadata map[string]any) {
	entry, err := audit.NewEntry(c.UserID, c.Role, action, entityType, entityID, before, after, metadata)
	if err != nil {
		return
	}
	_ = a.audit.Record(ctx, entry)
}

// -- banners --

func bannerAttrs(title, placement, imageURL, linkURL, linkType string, priority *int, startAt, endAt, audience string) map[string]any {
	attrs := map[string]any{}
	if title != "" {
		attrs["title"] = title
	}
	if placement != "" {
		attrs["placement"] = placement
	}
	if imageURL != "" {
		attrs["image_url"] = imageURL
	}
	if linkURL != "" {
		attrs["link_url"] = linkURL
	}
	if linkType != "" {
		attrs["link_type"] = linkType
	}
	if priority != nil {
		attrs["priority"] = *priority
	}
	if startAt != "" {
		attrs["start_at"] = startAt
	}
	if endAt != "" {
		attrs["end_at"] = endAt
	}
	if audience != "" {
		attrs["target_audience"] = audience
	}
	return attrs
}

func (a *API) bannerList(ctx context.Context, _ *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.BannerList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	items, total, err := a.content.List(ctx, content.ListFilter{
		Kind:      content.KindBanner,
		Status:    content.Status(p.Status),
		Placement: p.Placement,
		Limit:     limit,
		Offset:    offset,
	})
	if err != nil {
		return nil, err
	}
	return listPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (a *API) bannerGet(ctx context.Context, _ *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.BannerGet](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if item.Kind != content.KindBanner {
		return nil, content.ErrNotFound
	}
	return map[string]any{"item": item}, nil
}

func (a *API) bannerCreate(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.BannerCreate](a.validator, raw)
	if err != nil {
		return nil, err
	}
	attrs := bannerAttrs(p.Title, p.Placement, p.ImageURL, p.LinkURL, p.LinkType, p.Priority, p.StartAt, p.EndAt, p.TargetAudience)
	item, err := a.content.Create(ctx, content.Actor{ID: c.UserID, Role: c.Role}, content.KindBanner, attrs)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) bannerUpdate(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.BannerUpdate](a.validator, raw)
	if err != nil {
		return nil, err
	}
	patch := bannerAttrs(p.Title, p.Placement, p.ImageURL, p.LinkURL, p.LinkType, p.Priority, p.StartAt, p.EndAt, p.TargetAudience)
	if len(patch) == 0 {
		return nil, validate.Failf("payload", "no fields to update")
	}
	item, err := a.content.Update(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID, p.ExpectedVersion, patch)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) bannerSubmitReview(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.Versioned](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.SubmitReview(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID, p.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) bannerPublish(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.Versioned](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Publish(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID, p.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) bannerRollback(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.IDOnly](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Rollback(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) bannerArchive(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.IDOnly](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Archive(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

// -- feature flags --

func flagCreateAttrs(p *validate.FlagCreate) map[string]any {
	attrs := map[string]any{
		"flag_key": p.FlagKey,
		"title":    p.Title,
		"enabled":  false,
	}
	if p.Description != "" {
		attrs["description"] = p.Description
	}
	if p.Enabled != nil {
		attrs["enabled"] = *p.Enabled
	}
	if p.RolloutPercent != nil {
		attrs["rollout_percent"] = *p.RolloutPercent
	}
	if p.PayloadData != nil {
		attrs["payload_data"] = p.PayloadData
	}
	return attrs
}

func (a *API) flagList(ctx context.Context, _ *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.FlagList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	items, total, err := a.content.List(ctx, content.ListFilter{
		Kind:   content.KindFeatureFlag,
		Status: content.Status(p.Status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	return listPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (a *API) flagGet(ctx context.Context, _ *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.IDOnly](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Get(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if item.Kind != content.KindFeatureFlag {
		return nil, content.ErrNotFound
	}
	return map[string]any{"item": item}, nil
}

func (a *API) flagCreate(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.FlagCreate](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Create(ctx, content.Actor{ID: c.UserID, Role: c.Role}, content.KindFeatureFlag, flagCreateAttrs(p))
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) flagUpdate(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.FlagUpdate](a.validator, raw)
	if err != nil {
		return nil, err
	}
	patch := map[string]any{}
	if p.FlagKey != "" {
		patch["flag_key"] = p.FlagKey
	}
	if p.Title != "" {
		patch["title"] = p.Title
	}
	if p.Description != "" {
		patch["description"] = p.Description
	}
	if p.Enabled != nil {
		patch["enabled"] = *p.Enabled
	}
	if p.RolloutPercent != nil {
		patch["rollout_percent"] = *p.RolloutPercent
	}
	if p.PayloadData != nil {
		patch["payload_data"] = p.PayloadData
	}
	if len(patch) == 0 {
		return nil, validate.Failf("payload", "no fields to update")
	}
	item, err := a.content.Update(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID, p.ExpectedVersion, patch)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) flagPublish(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.Versioned](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Publish(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID, p.ExpectedVersion)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

func (a *API) flagRollback(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.IDOnly](a.validator, raw)
	if err != nil {
		return nil, err
	}
	item, err := a.content.Rollback(ctx, content.Actor{ID: c.UserID, Role: c.Role}, p.ID)
	if err != nil {
		return nil, err
	}
	return map[string]any{"item": item}, nil
}

// -- fan ads --

func (a *API) fanAdList(ctx context.Context, _ *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.FanAdList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	items, total, err := a.ads.List(ctx, ads.ListFilter{
		Status: ads.Status(p.Status),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		return nil, err
	}
	return listPage{Items: items, Total: total, Limit: limit, Offset: offset}, nil
}

func (a *API) fanAdApprove(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.FanAdApprove](a.validator, raw)
	if err != nil {
		return nil, err
	}
	params := ads.ApproveParams{AdID: p.ID, Placement: p.Placement}
	if p.Priority != nil {
		params.Priority = *p.Priority
	}
	ad, err := a.ads.Approve(ctx, ads.Actor{ID: c.UserID, Role: c.Role}, params)
	if err != nil {
		return nil, err
	}
	return map[string]any{"fan_ad": ad}, nil
}

func (a *API) fanAdReject(ctx context.Context, c *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.FanAdReject](a.validator, raw)
	if err != nil {
		return nil, err
	}
	ad, err := a.ads.Reject(ctx, ads.Actor{ID: c.UserID, Role: c.Role}, p.ID, p.RejectionReason)
	if err != nil {
		return nil, err
	}
	return map[string]any{"fan_ad": ad}, nil
}

// -- audit --

func (a *API) opsAuditList(ctx context.Context, _ *caller, raw json.RawMessage) (any, error) {
	p, err := decodePayload[validate.AuditList](a.validator, raw)
	if err != nil {
		return nil, err
	}
	limit, offset := clampPage(p.Limit, p.Offset)
	entries, total, err := a.audit.List(ctx, audit.Filter{
		EntityType: p.EntityType,
		EntityID:   p.EntityID,
		Limit:      limit,
		Offset:     offset,
	})
	if err != nil {
		return nil, err
	}
	return listPage{Items: entries, Total: total, Limit: limit, Offset: offset}, nil
}
