package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/fanstage/backoffice/internal/ads"
	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/ids"
	"github.com/fanstage/backoffice/internal/obs"
)

var _ ads.Service = (*AdsStore)(nil)

type AdsStore struct {
	db *sql.DB
}

const fanAdColumns = `id, user_id, title, coalesce(image_url, ''), coalesce(link_url, ''),
	payment_status, status, coalesce(placement, ''), priority,
	coalesce(rejection_reason, ''), coalesce(content_item_id, ''),
	created_at, updated_at`

func scanFanAd(row interface{ Scan(...any) error }) (ads.FanAd, error) {
	var ad ads.FanAd
	err := row.Scan(&ad.ID, &ad.UserID, &ad.Title, &ad.ImageURL, &ad.LinkURL,
		&ad.PaymentStatus, &ad.Status, &ad.Placement, &ad.Priority,
		&ad.RejectionReason, &ad.ContentItemID, &ad.CreatedAt, &ad.UpdatedAt)
	return ad, err
}

func (s *AdsStore) List(ctx context.Context, f ads.ListFilter) ([]ads.FanAd, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+fanAdColumns+`, count(*) over ()
		from fan_ads
		where ($1 = '' or status = $1)
		order by created_at desc
		limit $2 offset $3
	`, string(f.Status), limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		out   []ads.FanAd
		total int
	)
	for rows.Next() {
		var ad ads.FanAd
		if err := rows.Scan(&ad.ID, &ad.UserID, &ad.Title, &ad.ImageURL,
			&ad.LinkURL, &ad.PaymentStatus, &ad.Status, &ad.Placement,
			&ad.Priority, &ad.RejectionReason, &ad.ContentItemID,
			&ad.CreatedAt, &ad.UpdatedAt, &total); err != nil {
			return nil, 0, err
		}
		out = append(out, ad)
	}
	return out, total, rows.Err()
}

func (s *AdsStore) Get(ctx context.Context, id string) (ads.FanAd, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+fanAdColumns+` from fan_ads where id = $1`, id)
	ad, err := scanFanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ads.FanAd{}, ads.ErrNotFound
	}
	return ad, err
}

// Approve creates the live banner and flips the ad in one transaction, so
// an approved ad always has its content item and vice versa.
func (s *AdsStore) Approve(ctx context.Context, actor ads.Actor, p ads.ApproveParams) (ads.FanAd, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return ads.FanAd{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+fanAdColumns+` from fan_ads where id = $1 for update`, p.AdID)
	ad, err := scanFanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ads.FanAd{}, ads.ErrNotFound
	}
	if err != nil {
		return ads.FanAd{}, err
	}
	if ad.Status != ads.StatusPendingReview {
		return ads.FanAd{}, ads.ErrInvalidStatus
	}
	if ad.PaymentStatus != ads.PaymentPaid {
		return ads.FanAd{}, ads.ErrPaymentNotPaid
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
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return ads.FanAd{}, fmt.Errorf("encode attrs: %w", err)
	}

	itemID := ids.NewEntityID()
	if _, err := tx.ExecContext(ctx, `
		insert into content_items (id, kind, attrs, status, version,
			published_snapshot, created_by, updated_by)
		values ($1, 'banner', $2, 'published', 1, $2, $3, $3)
	`, itemID, attrsJSON, actor.ID); err != nil {
		return ads.FanAd{}, err
	}

	row = tx.QueryRowContext(ctx, `
		update fan_ads
		set status = 'approved', placement = $2, priority = $3,
		    content_item_id = $4, updated_at = now()
		where id = $1
		returning `+fanAdColumns+`
	`, ad.ID, p.Placement, p.Priority, itemID)
	updated, err := scanFanAd(row)
	if err != nil {
		return ads.FanAd{}, err
	}

	entry, err := audit.NewEntry(actor.ID, actor.Role, "fan_ad.approve", "fan_ad", ad.ID,
		fanAdImage(ad), fanAdImage(updated), map[string]any{"content_item_id": itemID})
	if err != nil {
		return ads.FanAd{}, err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return ads.FanAd{}, err
	}

	if err := tx.Commit(); err != nil {
		return ads.FanAd{}, err
	}
	obs.PublishTransitions.WithLabelValues(string(content.KindBanner), "content.create_published").Inc()
	return updated, nil
}

func (s *AdsStore) Reject(ctx context.Context, actor ads.Actor, id, reason string) (ads.FanAd, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return ads.FanAd{}, ads.ErrEmptyReason
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return ads.FanAd{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+fanAdColumns+` from fan_ads where id = $1 for update`, id)
	ad, err := scanFanAd(row)
	if errors.Is(err, sql.ErrNoRows) {
		return ads.FanAd{}, ads.ErrNotFound
	}
	if err != nil {
		return ads.FanAd{}, err
	}
	if ad.Status != ads.StatusPendingReview {
		return ads.FanAd{}, ads.ErrInvalidStatus
	}

	row = tx.QueryRowContext(ctx, `
		update fan_ads
		set status = 'rejected', rejection_reason = $2, updated_at = now()
		where id = $1
		returning `+fanAdColumns+`
	`, id, reason)
	updated, err := scanFanAd(row)
	if err != nil {
		return ads.FanAd{}, err
	}

	entry, err := audit.NewEntry(actor.ID, actor.Role, "fan_ad.reject", "fan_ad", id,
		fanAdImage(ad), fanAdImage(updated), nil)
	if err != nil {
		return ads.FanAd{}, err
	}
	if err := insertAudit(ctx, tx, entry); err != nil {
		return ads.FanAd{}, err
	}

	if err := tx.Commit(); err != nil {
		return ads.FanAd{}, err
	}
	return updated, nil
}

func fanAdImage(ad ads.FanAd) map[string]any {
	img := map[string]any{
		"status":         string(ad.Status),
		"payment_status": string(ad.PaymentStatus),
	}
	if ad.Placement != "" {
		img["placement"] = ad.Placement
	}
	if ad.RejectionReason != "" {
		img["rejection_reason"] = ad.RejectionReason
	}
	if ad.ContentItemID != "" {
		img["content_item_id"] = ad.ContentItemID
	}
	return img
}
