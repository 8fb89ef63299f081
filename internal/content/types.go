package content

import (
	"context"
	"encoding/json"
	"errors"
	"time"
)

// Kind distinguishes the two item families that share the publish lifecycle.
type Kind string

const (
	KindBanner      Kind = "banner"
	KindFeatureFlag Kind = "feature_flag"
)

// Status is the publish lifecycle state.
type Status string

const (
	StatusDraft     Status = "draft"
	StatusInReview  Status = "in_review"
	StatusPublished Status = "published"
	StatusArchived  Status = "archived"
)

// Item is a versioned publishable entity. Version starts at 1 and bumps on
// every successful mutation. PublishedSnapshot is non-nil iff the item has
// been published at least once.
type Item struct {
	ID                string         `json:"id"`
	Kind              Kind           `json:"kind"`
	Attrs             map[string]any `json:"attrs"`
	Status            Status         `json:"status"`
	Version           int64          `json:"version"`
	PublishedSnapshot map[string]any `json:"published_snapshot,omitempty"`
	CreatedBy         string         `json:"created_by"`
	UpdatedBy         string         `json:"updated_by"`
	CreatedAt         time.Time      `json:"created_at"`
	UpdatedAt         time.Time      `json:"updated_at"`
}

// Actor identifies who performs a mutation, for audit attribution.
type Actor struct {
	ID   string
	Role string
}

// ListFilter narrows List results. Zero values mean no filter.
type ListFilter struct {
	Kind   Kind
	Status Status
	// Placement matches the "placement" attr, applied before pagination.
	Placement string
	Limit     int
	Offset    int
}

var (
	ErrNotFound        = errors.New("content item not found")
	ErrVersionConflict = errors.New("version conflict")
	ErrInvalidStatus   = errors.New("invalid status for transition")
	ErrNoSnapshot      = errors.New("no published snapshot to roll back to")
	ErrInvalidKind     = errors.New("invalid content kind")
)

// Service defines the versioned publish operations.
type Service interface {
	Create(ctx context.Context, actor Actor, kind Kind, attrs map[string]any) (Item, error)
	// CreatePublished creates an item that is live immediately, with a
	// snapshot already captured. Used by fan ad approval.
	CreatePublished(ctx context.Context, actor Actor, kind Kind, attrs map[string]any) (Item, error)
	Get(ctx context.Context, id string) (Item, error)
	List(ctx context.Context, f ListFilter) ([]Item, int, error)
	Update(ctx context.Context, actor Actor, id string, expectedVersion int64, patch map[string]any) (Item, error)
	SubmitReview(ctx context.Context, actor Actor, id string, expectedVersion int64) (Item, error)
	Publish(ctx context.Context, actor Actor, id string, expectedVersion int64) (Item, error)
	Rollback(ctx context.Context, actor Actor, id string) (Item, error)
	Archive(ctx context.Context, actor Actor, id string) (Item, error)
}

// cloneAttrs deep-copies a JSON attribute map so callers can never alias
// stored state.
func cloneAttrs(m map[string]any) map[string]any {
	if m == nil {
		return nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		out := make(map[string]any, len(m))
		for k, v := range m {
			out[k] = v
		}
		return out
	}
	var out map[string]any
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil
	}
	return out
}

func validKind(k Kind) bool {
	return k == KindBanner || k == KindFeatureFlag
}
