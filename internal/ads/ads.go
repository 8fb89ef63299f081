// Package ads moderates paid fan advertisements. Approval atomically turns
// an ad into a live banner content item; the two writes succeed or fail
// together.
package ads

import (
	"context"
	"errors"
	"time"
)

type PaymentStatus string

const (
	PaymentPending  PaymentStatus = "pending"
	PaymentPaid     PaymentStatus = "paid"
	PaymentRefunded PaymentStatus = "refunded"
	PaymentFailed   PaymentStatus = "failed"
)

type Status string

const (
	StatusPendingReview Status = "pending_review"
	StatusApproved      Status = "approved"
	StatusActive        Status = "active"
	StatusCompleted     Status = "completed"
	StatusRejected      Status = "rejected"
	StatusCancelled     Status = "cancelled"
)

// FanAd is a caller-submitted promotional item awaiting moderation.
type FanAd struct {
	ID              string        `json:"id"`
	UserID          string        `json:"user_id"`
	Title           string        `json:"title"`
	ImageURL        string        `json:"image_url"`
	LinkURL         string        `json:"link_url,omitempty"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	Status          Status        `json:"status"`
	Placement       string        `json:"placement,omitempty"`
	Priority        int           `json:"priority"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ContentItemID   string        `json:"content_item_id,omitempty"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}

// ListFilter narrows List results.
type ListFilter struct {
	Status Status
	Limit  int
	Offset int
}

var (
	ErrNotFound       = errors.New("fan ad not found")
	ErrInvalidStatus  = errors.New("fan ad is not pending review")
	ErrPaymentNotPaid = errors.New("fan ad payment is not completed")
	ErrEmptyReason    = errors.New("rejection reason is required")
)

// Actor identifies the moderating staff member.
type Actor struct {
	ID   string
	Role string
}

// ApproveParams carries the placement decision made by the moderator.
type ApproveParams struct {
	AdID      string
	Placement string
	Priority  int
}

// Service defines moderation operations.
type Service interface {
	List(ctx context.Context, f ListFilter) ([]FanAd, int, error)
	Get(ctx context.Context, id string) (FanAd, error)
	// Approve requires payment_status=paid and status=pending_review. It
	// creates a published banner content item and links it to the ad in one
	// atomic step.
	Approve(ctx context.Context, actor Actor, p ApproveParams) (FanAd, error)
	Reject(ctx context.Context, actor Actor, id, reason string) (FanAd, error)
}
