package ads

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/ids"
)

const entityType = "fan_ad"

// InMemory implements Service for tests and the dev server. Atomicity is a
// single mutex section: the content item is created and the ad updated
// without releasing the lock.
type InMemory struct {
	mu       sync.Mutex
	ads      map[string]*FanAd
	order    []string
	items    content.Service
	recorder audit.Recorder
}

func NewInMemory(items content.Service, rec audit.Recorder) *InMemory {
	if rec == nil {
		rec = audit.NewInMemory()
	}
	return &InMemory{
		ads:      make(map[string]*FanAd),
		items:    items,
		recorder: rec,
	}
}

// Seed inserts an ad as the fan-facing flow would, in pending_review.
func (s *InMemory) Seed(ad FanAd) FanAd {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ad.ID == "" {
		ad.ID = ids.NewEntityID()
	}
	if ad.Status == "" {
		ad.Status = StatusPendingReview
	}
	now := time.Now().UTC()
	if ad.CreatedAt.IsZero() {
		ad.CreatedAt = now
	}
	ad.UpdatedAt = now
	cp := ad
	s.ads[ad.ID] = &cp
	s.order = append(s.order, ad.ID)
	return ad
}

func (s *InMemory) List(_ context.Context, f ListFilter) ([]FanAd, int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	matched := make([]FanAd, 0, len(s.order))
	for i := len(s.order) - 1; i >= 0; i-- {
		ad := s.ads[s.order[i]]
		if f.Status != "" && ad.Status != f.Status {
			continue
		}
		matched = append(matched, *ad)
	}
	total := len(matched)

	offset := f.Offset
	if offset > total {
		offset = total
	}
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

func (s *InMemory) Get(_ context.Context, id string) (FanAd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ad, ok := s.ads[id]
	if !ok {
		return FanAd{}, ErrNotFound
	}
	return *ad, nil
}

func (s *InMemory) Approve(ctx context.Context, actor Actor, p ApproveParams) (FanAd, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[p.AdID]
	if !ok {
		return FanAd{}, ErrNotFound
	}
	if ad.Status != StatusPendingReview {
		return FanAd{}, ErrInvalidStatus
	}
	if ad.PaymentStatus != PaymentPaid {
		return FanAd{}, ErrPaymentNotPaid
	}

	attrs := map[string]any{
		"title":     ad.Title,
		"image_url": ad.ImageURL,
		"placement": p.Placement,
		"priority":  p.Priority,
		"source":    "fan_ad",
		"fan_ad_id": ad.ID,
	}
	if ad.LinkURL != "" {
		attrs["link_url"] = ad.LinkURL
		attrs["link_type"] = "external"
	}
	item, err := s.items.CreatePublished(ctx, content.Actor{ID: actor.ID, Role: actor.Role}, content.KindBanner, attrs)
	if err != nil {
		return FanAd{}, err
	}

	before := image(ad)
	ad.Status = StatusApproved
	ad.Placement = p.Placement
	ad.Priority = p.Priority
	ad.ContentItemID = item.ID
	ad.UpdatedAt = time.Now().UTC()

	if err := s.record(ctx, actor, "fan_ad.approve", ad.ID, before, image(ad)); err != nil {
		return FanAd{}, err
	}
	return *ad, nil
}

func (s *InMemory) Reject(ctx context.Context, actor Actor, id, reason string) (FanAd, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return FanAd{}, ErrEmptyReason
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	ad, ok := s.ads[id]
	if !ok {
		return FanAd{}, ErrNotFound
	}
	if ad.Status != StatusPendingReview {
		return FanAd{}, ErrInvalidStatus
	}

	before := image(ad)
	ad.Status = StatusRejected
	ad.RejectionReason = reason
	ad.UpdatedAt = time.Now().UTC()

	if err := s.record(ctx, actor, "fan_ad.reject", ad.ID, before, image(ad)); err != nil {
		return FanAd{}, err
	}
	return *ad, nil
}

func (s *InMemory) record(ctx context.Context, actor Actor, action, entityID string, before, after map[string]any) error {
	e, err := audit.NewEntry(actor.ID, actor.Role, action, entityType, entityID, before, after, nil)
	if err != nil {
		return err
	}
	return s.recorder.Record(ctx, e)
}

func image(ad *FanAd) map[string]any {
	return map[string]any{
		"status":           string(ad.Status),
		"placement":        ad.Placement,
		"priority":         ad.Priority,
		"rejection_reason": ad.RejectionReason,
		"content_item_id":  ad.ContentItemID,
	}
}
