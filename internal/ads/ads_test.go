package ads

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/content"
)

func newModeration(t *testing.T) (*InMemory, content.Service, *audit.InMemory) {
	t.Helper()
	rec := audit.NewInMemory()
	items := content.NewInMemory(rec)
	return NewInMemory(items, rec), items, rec
}

func paidAd() FanAd {
	return FanAd{
		UserID:        "9d5a1f3e-2b4c-4d6e-8f0a-1b2c3d4e5f6a",
		Title:         "Birthday support for Minji",
		ImageURL:      "https://cdn.example.com/ads/minji.png",
		PaymentStatus: PaymentPaid,
	}
}

func TestApproveCreatesPublishedBanner(t *testing.T) {
	svc, items, _ := newModeration(t)
	ctx := context.Background()
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	ad := svc.Seed(paidAd())
	got, err := svc.Approve(ctx, mod, ApproveParams{AdID: ad.ID, Placement: "home_top", Priority: 10})
	require.NoError(t, err)

	assert.Equal(t, StatusApproved, got.Status)
	require.NotEmpty(t, got.ContentItemID)

	item, err := items.Get(ctx, got.ContentItemID)
	require.NoError(t, err)
	assert.Equal(t, content.StatusPublished, item.Status)
	assert.Equal(t, content.KindBanner, item.Kind)
	assert.Equal(t, "Birthday support for Minji", item.Attrs["title"])
	assert.Equal(t, "home_top", item.Attrs["placement"])
	assert.Equal(t, ad.ID, item.Attrs["fan_ad_id"])
	assert.NotNil(t, item.PublishedSnapshot)
}

func TestApproveRequiresPaidPayment(t *testing.T) {
	svc, items, _ := newModeration(t)
	ctx := context.Background()
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	for _, ps := range []PaymentStatus{PaymentPending, PaymentRefunded, PaymentFailed} {
		ad := paidAd()
		ad.PaymentStatus = ps
		seeded := svc.Seed(ad)

		_, err := svc.Approve(ctx, mod, ApproveParams{AdID: seeded.ID, Placement: "home_top"})
		assert.ErrorIsf(t, err, ErrPaymentNotPaid, "payment_status %s", ps)

		// The failed approval must not leave an orphan banner behind.
		_, total, err := items.List(ctx, content.ListFilter{Kind: content.KindBanner})
		require.NoError(t, err)
		assert.Zero(t, total)
	}
}

func TestApproveOnlyFromPendingReview(t *testing.T) {
	svc, _, _ := newModeration(t)
	ctx := context.Background()
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	ad := svc.Seed(paidAd())
	_, err := svc.Approve(ctx, mod, ApproveParams{AdID: ad.ID, Placement: "home_top"})
	require.NoError(t, err)

	_, err = svc.Approve(ctx, mod, ApproveParams{AdID: ad.ID, Placement: "home_top"})
	assert.ErrorIs(t, err, ErrInvalidStatus)
}

func TestRejectRecordsReason(t *testing.T) {
	svc, _, rec := newModeration(t)
	ctx := context.Background()
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	ad := svc.Seed(paidAd())
	got, err := svc.Reject(ctx, mod, ad.ID, "image violates guidelines")
	require.NoError(t, err)
	assert.Equal(t, StatusRejected, got.Status)
	assert.Equal(t, "image violates guidelines", got.RejectionReason)

	entries, total, err := rec.List(ctx, audit.Filter{EntityType: "fan_ad", EntityID: ad.ID})
	require.NoError(t, err)
	require.Equal(t, 1, total)
	assert.Equal(t, "fan_ad.reject", entries[0].Action)
	assert.Equal(t, "rejected", entries[0].After["status"])
}

func TestRejectRequiresReason(t *testing.T) {
	svc, _, _ := newModeration(t)
	ctx := context.Background()
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	ad := svc.Seed(paidAd())
	_, err := svc.Reject(ctx, mod, ad.ID, "   ")
	assert.ErrorIs(t, err, ErrEmptyReason)

	got, err := svc.Get(context.Background(), ad.ID)
	require.NoError(t, err)
	assert.Equal(t, StatusPendingReview, got.Status)
}

func TestListByStatus(t *testing.T) {
	svc, _, _ := newModeration(t)
	ctx := context.Background()
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	a := svc.Seed(paidAd())
	svc.Seed(paidAd())
	_, err := svc.Reject(ctx, mod, a.ID, "duplicate submission")
	require.NoError(t, err)

	pending, total, err := svc.List(ctx, ListFilter{Status: StatusPendingReview})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, pending, 1)
	assert.NotEqual(t, a.ID, pending[0].ID)
}

func TestUnknownAd(t *testing.T) {
	svc, _, _ := newModeration(t)
	mod := Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "operator"}

	_, err := svc.Approve(context.Background(), mod, ApproveParams{AdID: "c0ffee00-0000-4000-8000-000000000000", Placement: "home_top"})
	assert.ErrorIs(t, err, ErrNotFound)
}
