package agency

import (
	"context"
	"testing"
	"time"

	"github.com/fanstage/backoffice/internal/audit"
)

var (
	agencyA = "11111111-1111-4111-8111-111111111111"
	agencyB = "22222222-2222-4222-8222-222222222222"
	manager = Actor{ID: "8f0c2a9e-55aa-4f6e-9f7e-1d2b3c4d5e6f", Role: "manager", AgencyID: agencyA}
)

func addCreator(t *testing.T, svc *InMemory, actor Actor, profileID string) Creator {
	t.Helper()
	c, err := svc.AddCreator(context.Background(), actor, AddCreatorParams{
		CreatorProfileID: profileID,
		ContractStart:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		RevenueShareRate: 0.3,
	})
	if err != nil {
		t.Fatalf("AddCreator: %v", err)
	}
	return c
}

func TestAddCreator(t *testing.T) {
	rec := audit.NewInMemory()
	svc := NewInMemory(rec)

	c := addCreator(t, svc, manager, "aaaa0000-0000-4000-8000-000000000001")
	if c.Status != CreatorActive || c.AgencyID != agencyA {
		t.Fatalf("unexpected creator: %+v", c)
	}
	if c.SettlementBasis != "monthly" {
		t.Fatalf("expected monthly default basis, got %q", c.SettlementBasis)
	}

	entries, total, err := rec.List(context.Background(), audit.Filter{EntityType: "agency_creator"})
	if err != nil || total != 1 {
		t.Fatalf("expected 1 audit entry, got %d (%v)", total, err)
	}
	if entries[0].Metadata["agency_id"] != agencyA {
		t.Fatalf("audit must carry agency scope: %v", entries[0].Metadata)
	}
}

func TestAddCreatorRejectsDuplicateContract(t *testing.T) {
	svc := NewInMemory(nil)
	profile := "aaaa0000-0000-4000-8000-000000000001"

	addCreator(t, svc, manager, profile)
	_, err := svc.AddCreator(context.Background(), manager, AddCreatorParams{
		CreatorProfileID: profile,
		ContractStart:    time.Now(),
		RevenueShareRate: 0.2,
	})
	if err != ErrDuplicateCreator {
		t.Fatalf("expected ErrDuplicateCreator, got %v", err)
	}

	// A terminated contract frees the profile for a new one.
	creators, _, _ := svc.ListCreators(context.Background(), agencyA, CreatorFilter{})
	if _, err := svc.RemoveCreator(context.Background(), manager, creators[0].ID); err != nil {
		t.Fatalf("RemoveCreator: %v", err)
	}
	if _, err := svc.AddCreator(context.Background(), manager, AddCreatorParams{
		CreatorProfileID: profile,
		ContractStart:    time.Now(),
		RevenueShareRate: 0.25,
	}); err != nil {
		t.Fatalf("re-signing after termination: %v", err)
	}
}

func TestShareRateBounds(t *testing.T) {
	svc := NewInMemory(nil)
	_, err := svc.AddCreator(context.Background(), manager, AddCreatorParams{
		CreatorProfileID: "aaaa0000-0000-4000-8000-000000000001",
		ContractStart:    time.Now(),
		RevenueShareRate: 1.5,
	})
	if err != ErrInvalidShareRate {
		t.Fatalf("expected ErrInvalidShareRate, got %v", err)
	}
}

func TestAgencyScopeIsolation(t *testing.T) {
	svc := NewInMemory(nil)
	ctx := context.Background()

	c := addCreator(t, svc, manager, "aaaa0000-0000-4000-8000-000000000001")
	otherActor := Actor{ID: manager.ID, Role: "manager", AgencyID: agencyB}

	// Another agency must see neither the row nor its existence.
	if _, err := svc.UpdateCreator(ctx, otherActor, c.ID, UpdateCreatorParams{ContractNotes: "x"}); err != ErrCreatorNotFound {
		t.Fatalf("cross-agency update must read as not found, got %v", err)
	}
	_, total, _ := svc.ListCreators(ctx, agencyB, CreatorFilter{})
	if total != 0 {
		t.Fatalf("cross-agency list leak: %d rows", total)
	}

	st := svc.SeedSettlement(Settlement{AgencyID: agencyA, CreatorID: c.ID, ShareKRW: 300000, Status: SettlementApproved})
	if _, err := svc.GetSettlement(ctx, agencyB, st.ID); err != ErrSettlementNotFound {
		t.Fatalf("cross-agency settlement read must fail, got %v", err)
	}
}

func TestRemoveCreatorKeepsHistory(t *testing.T) {
	svc := NewInMemory(nil)
	ctx := context.Background()

	c := addCreator(t, svc, manager, "aaaa0000-0000-4000-8000-000000000001")
	got, err := svc.RemoveCreator(ctx, manager, c.ID)
	if err != nil {
		t.Fatalf("RemoveCreator: %v", err)
	}
	if got.Status != CreatorTerminated {
		t.Fatalf("expected terminated, got %s", got.Status)
	}

	_, total, _ := svc.ListCreators(ctx, agencyA, CreatorFilter{})
	if total != 1 {
		t.Fatalf("terminated creator must stay listed, got %d", total)
	}
}

func TestSummary(t *testing.T) {
	svc := NewInMemory(nil)
	ctx := context.Background()

	a := addCreator(t, svc, manager, "aaaa0000-0000-4000-8000-000000000001")
	b := addCreator(t, svc, manager, "aaaa0000-0000-4000-8000-000000000002")
	svc.RemoveCreator(ctx, manager, b.ID)

	svc.SeedSettlement(Settlement{AgencyID: agencyA, CreatorID: a.ID, ShareKRW: 300000, Status: SettlementApproved})
	svc.SeedSettlement(Settlement{AgencyID: agencyA, CreatorID: a.ID, ShareKRW: 500000, Status: SettlementPaid})
	svc.SeedSettlement(Settlement{AgencyID: agencyA, CreatorID: a.ID, ShareKRW: 100000, Status: SettlementCancelled})
	svc.SeedSettlement(Settlement{AgencyID: agencyB, CreatorID: "other", ShareKRW: 999999, Status: SettlementApproved})

	sum, err := svc.Summary(ctx, agencyA, time.Time{}, time.Time{})
	if err != nil {
		t.Fatalf("Summary: %v", err)
	}
	if sum.CreatorCount != 2 || sum.ActiveCreators != 1 {
		t.Fatalf("creator counts wrong: %+v", sum)
	}
	if sum.PendingPayoutKRW != 300000 || sum.PaidPayoutKRW != 500000 {
		t.Fatalf("payout sums wrong: %+v", sum)
	}
	if sum.SettlementsInPlay != 1 {
		t.Fatalf("expected 1 settlement in play, got %d", sum.SettlementsInPlay)
	}
}

func TestListSettlementsFilterAndOrder(t *testing.T) {
	svc := NewInMemory(nil)
	ctx := context.Background()

	old := svc.SeedSettlement(Settlement{
		AgencyID: agencyA, CreatorID: "c", ShareKRW: 100,
		PeriodEnd: time.Date(2026, 6, 30, 0, 0, 0, 0, time.UTC), Status: SettlementPaid,
	})
	recent := svc.SeedSettlement(Settlement{
		AgencyID: agencyA, CreatorID: "c", ShareKRW: 200,
		PeriodEnd: time.Date(2026, 7, 31, 0, 0, 0, 0, time.UTC), Status: SettlementPaid,
	})

	got, total, err := svc.ListSettlements(ctx, agencyA, SettlementFilter{Status: SettlementPaid})
	if err != nil || total != 2 {
		t.Fatalf("list: total=%d err=%v", total, err)
	}
	if got[0].ID != recent.ID || got[1].ID != old.ID {
		t.Fatal("expected newest period first")
	}
}
