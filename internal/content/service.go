package content

import (
	"context"
	"sync"
	"time"

	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/ids"
	"github.com/fanstage/backoffice/internal/obs"
)

const entityType = "content_item"

// InMemory implements Service with in-process concurrency safety. It backs
// tests and the dev server; production uses the pg store.
type InMemory struct {
	mu       sync.RWMutex
	items    map[string]*Item
	order    []string // insertion order, newest last
	recorder audit.Recorder
}

func NewInMemory(rec audit.Recorder) *InMemory {
	if rec == nil {
		rec = audit.NewInMemory()
	}
	return &InMemory{
		items:    make(map[string]*Item),
		recorder: rec,
	}
}

func (s *InMemory) Create(ctx context.Context, actor Actor, kind Kind, attrs map[string]any) (Item, error) {
	return s.create(ctx, actor, kind, attrs, false)
}

func (s *InMemory) CreatePublished(ctx context.Context, actor Actor, kind Kind, attrs map[string]any) (Item, error) {
	return s.create(ctx, actor, kind, attrs, true)
}

func (s *InMemory) create(ctx context.Context, actor Actor, kind Kind, attrs map[string]any, published bool) (Item, error) {
	if !validKind(kind) {
		return Item{}, ErrInvalidKind
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now().UTC()
	it := &Item{
		ID:        ids.NewEntityID(),
		Kind:      kind,
		Attrs:     cloneAttrs(attrs),
		Status:    StatusDraft,
		Version:   1,
		CreatedBy: actor.ID,
		UpdatedBy: actor.ID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	action := "content.create"
	if published {
		it.Status = StatusPublished
		it.PublishedSnapshot = cloneAttrs(attrs)
		action = "content.create_published"
	}
	s.items[it.ID] = it
	s.order = append(s.order, it.ID)

	if err := s.record(ctx, actor, action, it.ID, nil, image(it)); err != nil {
		return Item{}, err
	}
	obs.PublishTransitions.WithLabelValues(string(kind), "create").Inc()
	return copyItem(it), nil
}

func (s *InMemory) Get(_ context.Context, id string) (Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	it, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	return copyItem(it), nil
}

func (s *InMemory) List(_ context.Context, f ListFilter) ([]Item, int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	matched := make([]Item, 0, len(s.order))
	// newest first
	for i := len(s.order) - 1; i >= 0; i-- {
		it := s.items[s.order[i]]
		if f.Kind != "" && it.Kind != f.Kind {
			continue
		}
		if f.Status != "" && it.Status != f.Status {
			continue
		}
		if f.Placement != "" {
			if pl, _ := it.Attrs["placement"].(string); pl != f.Placement {
				continue
			}
		}
		matched = append(matched, copyItem(it))
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

func (s *InMemory) Update(ctx context.Context, actor Actor, id string, expectedVersion int64, patch map[string]any) (Item, error) {
	return s.mutate(ctx, actor, "content.update", id, expectedVersion, func(it *Item) error {
		if it.Status != StatusDraft && it.Status != StatusInReview {
			return ErrInvalidStatus
		}
		for k, v := range cloneAttrs(patch) {
			if it.Attrs == nil {
				it.Attrs = make(map[string]any)
			}
			it.Attrs[k] = v
		}
		return nil
	})
}

func (s *InMemory) SubmitReview(ctx context.Context, actor Actor, id string, expectedVersion int64) (Item, error) {
	return s.mutate(ctx, actor, "content.submit_review", id, expectedVersion, func(it *Item) error {
		if it.Status != StatusDraft {
			return ErrInvalidStatus
		}
		it.Status = StatusInReview
		return nil
	})
}

func (s *InMemory) Publish(ctx context.Context, actor Actor, id string, expectedVersion int64) (Item, error) {
	return s.mutate(ctx, actor, "content.publish", id, expectedVersion, func(it *Item) error {
		if it.Status != StatusDraft && it.Status != StatusInReview {
			return ErrInvalidStatus
		}
		it.PublishedSnapshot = cloneAttrs(it.Attrs)
		it.Status = StatusPublished
		return nil
	})
}

// Rollback relies on the current-status check instead of an expected
// version: a concurrent publish flips the status and makes the loser fail.
func (s *InMemory) Rollback(ctx context.Context, actor Actor, id string) (Item, error) {
	return s.mutate(ctx, actor, "content.rollback", id, 0, func(it *Item) error {
		if it.Status != StatusPublished {
			return ErrInvalidStatus
		}
		if it.PublishedSnapshot == nil {
			return ErrNoSnapshot
		}
		it.Attrs = cloneAttrs(it.PublishedSnapshot)
		it.Status = StatusDraft
		return nil
	})
}

func (s *InMemory) Archive(ctx context.Context, actor Actor, id string) (Item, error) {
	return s.mutate(ctx, actor, "content.archive", id, 0, func(it *Item) error {
		if it.Status == StatusArchived {
			return ErrInvalidStatus
		}
		it.Status = StatusArchived
		return nil
	})
}

// mutate applies fn under the optimistic lock and writes the audit diff.
// expectedVersion 0 skips the version check.
func (s *InMemory) mutate(ctx context.Context, actor Actor, action, id string, expectedVersion int64, fn func(*Item) error) (Item, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	it, ok := s.items[id]
	if !ok {
		return Item{}, ErrNotFound
	}
	if expectedVersion != 0 && it.Version != expectedVersion {
		return Item{}, ErrVersionConflict
	}

	before := image(it)
	if err := fn(it); err != nil {
		return Item{}, err
	}
	it.Version++
	it.UpdatedBy = actor.ID
	it.UpdatedAt = time.Now().UTC()

	if err := s.record(ctx, actor, action, id, before, image(it)); err != nil {
		return Item{}, err
	}
	obs.PublishTransitions.WithLabelValues(string(it.Kind), transitionLabel(action)).Inc()
	return copyItem(it), nil
}

func (s *InMemory) record(ctx context.Context, actor Actor, action, entityID string, before, after map[string]any) error {
	e, err := audit.NewEntry(actor.ID, actor.Role, action, entityType, entityID, before, after, nil)
	if err != nil {
		return err
	}
	return s.recorder.Record(ctx, e)
}

func transitionLabel(action string) string {
	const prefix = "content."
	if len(action) > len(prefix) {
		return action[len(prefix):]
	}
	return action
}

func image(it *Item) map[string]any {
	return map[string]any{
		"attrs":              cloneAttrs(it.Attrs),
		"status":             string(it.Status),
		"version":            it.Version,
		"published_snapshot": cloneAttrs(it.PublishedSnapshot),
	}
}

func copyItem(it *Item) Item {
	out := *it
	out.Attrs = cloneAttrs(it.Attrs)
	out.PublishedSnapshot = cloneAttrs(it.PublishedSnapshot)
	return out
}
