package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/fanstage/backoffice/internal/ids"
)

// Entry is one immutable audit record. Before/After hold only the fields
// that actually changed; both are nil when a mutation turned out to be a
// no-op.
type Entry struct {
	ID         string         `json:"id"`
	ActorID    string         `json:"actor_id"`
	ActorRole  string         `json:"actor_role"`
	Action     string         `json:"action"`
	EntityType string         `json:"entity_type"`
	EntityID   string         `json:"entity_id,omitempty"`
	Before     map[string]any `json:"before,omitempty"`
	After      map[string]any `json:"after,omitempty"`
	Metadata   map[string]any `json:"metadata,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Filter narrows List results.
type Filter struct {
	EntityType string
	EntityID   string
	Limit      int
	Offset     int
}

// Recorder appends entries to an append-only log. Implementations must never
// update or delete previously written entries.
type Recorder interface {
	Record(ctx context.Context, e Entry) error
	List(ctx context.Context, f Filter) ([]Entry, int, error)
}

// NewEntry fills in identity and timestamp and reduces before/after images
// to their field-level diff.
func NewEntry(actorID, actorRole, action, entityType, entityID string, before, after map[string]any, metadata map[string]any) (Entry, error) {
	action = strings.TrimSpace(action)
	if action == "" {
		return Entry{}, errors.New("audit: action is required")
	}
	db, da := Diff(before, after)
	return Entry{
		ID:         ids.New(),
		ActorID:    actorID,
		ActorRole:  actorRole,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Before:     db,
		After:      da,
		Metadata:   metadata,
		CreatedAt:  time.Now().UTC(),
	}, nil
}

// Diff reduces two entity images to the keys whose values differ. Creation
// (nil before) and deletion (nil after) keep the full surviving image.
// Values are compared by their JSON encoding so nested payloads diff
// correctly.
func Diff(before, after map[string]any) (map[string]any, map[string]any) {
	if before == nil || after == nil {
		return before, after
	}

	changed := make(map[string]struct{})
	for k, av := range after {
		bv, ok := before[k]
		if !ok || !jsonEqual(bv, av) {
			changed[k] = struct{}{}
		}
	}
	for k := range before {
		if _, ok := after[k]; !ok {
			changed[k] = struct{}{}
		}
	}

	if len(changed) == 0 {
		return nil, nil
	}
	db := make(map[string]any, len(changed))
	da := make(map[string]any, len(changed))
	for k := range changed {
		if v, ok := before[k]; ok {
			db[k] = v
		}
		if v, ok := after[k]; ok {
			da[k] = v
		}
	}
	return db, da
}

func jsonEqual(a, b any) bool {
	ab, err := json.Marshal(a)
	if err != nil {
		return false
	}
	bb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return bytes.Equal(ab, bb)
}
