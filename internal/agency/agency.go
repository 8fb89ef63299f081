// Package agency serves the agency portal: roster-managed creators, their
// settlement statements, and the dashboard summary. Every read and write is
// scoped to the caller's agency.
package agency

import (
	"context"
	"errors"
	"time"
)

type CreatorStatus string

const (
	CreatorPending    CreatorStatus = "pending"
	CreatorActive     CreatorStatus = "active"
	CreatorPaused     CreatorStatus = "paused"
	CreatorTerminated CreatorStatus = "terminated"
)

// Creator is a managed creator contract.
type Creator struct {
	ID               string        `json:"id"`
	AgencyID         string        `json:"agency_id"`
	CreatorProfileID string        `json:"creator_profile_id"`
	Status           CreatorStatus `json:"status"`
	ContractStart    time.Time     `json:"contract_start"`
	ContractEnd      *time.Time    `json:"contract_end,omitempty"`
	RevenueShareRate float64       `json:"revenue_share_rate"`
	SettlementBasis  string        `json:"settlement_basis"`
	ContractNotes    string        `json:"contract_notes,omitempty"`
	CreatedAt        time.Time     `json:"created_at"`
	UpdatedAt        time.Time     `json:"updated_at"`
}

type SettlementStatus string

const (
	SettlementDraft         SettlementStatus = "draft"
	SettlementPendingReview SettlementStatus = "pending_review"
	SettlementApproved      SettlementStatus = "approved"
	SettlementProcessing    SettlementStatus = "processing"
	SettlementPaid          SettlementStatus = "paid"
	SettlementCancelled     SettlementStatus = "cancelled"
)

// Settlement is one payout statement for a creator period. Amounts are KRW
// minor units.
type Settlement struct {
	ID          string           `json:"id"`
	AgencyID    string           `json:"agency_id"`
	CreatorID   string           `json:"creator_id"`
	PeriodStart time.Time        `json:"period_start"`
	PeriodEnd   time.Time        `json:"period_end"`
	GrossKRW    int64            `json:"gross_krw"`
	ShareKRW    int64            `json:"share_krw"`
	Status      SettlementStatus `json:"status"`
	CreatedAt   time.Time        `json:"created_at"`
}

// Summary is the dashboard aggregate for one agency.
type Summary struct {
	CreatorCount      int   `json:"creator_count"`
	ActiveCreators    int   `json:"active_creators"`
	PendingPayoutKRW  int64 `json:"pending_payout_krw"`
	PaidPayoutKRW     int64 `json:"paid_payout_krw"`
	SettlementsInPlay int   `json:"settlements_in_play"`
}

var (
	ErrCreatorNotFound    = errors.New("creator not found")
	ErrSettlementNotFound = errors.New("settlement not found")
	ErrDuplicateCreator   = errors.New("creator already under contract")
	ErrInvalidShareRate   = errors.New("revenue share rate must be within [0, 1]")
)

// Actor is the staff member performing a mutation.
type Actor struct {
	ID       string
	Role     string
	AgencyID string
}

type CreatorFilter struct {
	Status CreatorStatus
	Limit  int
	Offset int
}

type SettlementFilter struct {
	Status SettlementStatus
	Limit  int
	Offset int
}

type AddCreatorParams struct {
	CreatorProfileID string
	ContractStart    time.Time
	ContractEnd      *time.Time
	RevenueShareRate float64
	SettlementBasis  string
	ContractNotes    string
}

type UpdateCreatorParams struct {
	RevenueShareRate *float64
	SettlementBasis  string
	ContractEnd      *time.Time
	ContractNotes    string
}

// Service defines the agency portal operations. The agencyID always comes
// from the caller's resolved membership, never from the payload.
type Service interface {
	Summary(ctx context.Context, agencyID string, periodStart, periodEnd time.Time) (Summary, error)
	ListCreators(ctx context.Context, agencyID string, f CreatorFilter) ([]Creator, int, error)
	AddCreator(ctx context.Context, actor Actor, p AddCreatorParams) (Creator, error)
	UpdateCreator(ctx context.Context, actor Actor, id string, p UpdateCreatorParams) (Creator, error)
	// RemoveCreator terminates the contract; the row stays for settlement
	// history.
	RemoveCreator(ctx context.Context, actor Actor, id string) (Creator, error)
	ListSettlements(ctx context.Context, agencyID string, f SettlementFilter) ([]Settlement, int, error)
	GetSettlement(ctx context.Context, agencyID, id string) (Settlement, error)
}
