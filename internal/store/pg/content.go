package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/fanstage/backoffice/internal/audit"
	"github.com/fanstage/backoffice/internal/content"
	"github.com/fanstage/backoffice/internal/ids"
	"github.com/fanstage/backoffice/internal/obs"
)

var _ content.Service = (*ContentStore)(nil)

type ContentStore struct {
	db *sql.DB
}

const itemColumns = `id, kind, attrs, status, version, published_snapshot,
	created_by, updated_by, created_at, updated_at`

func scanItem(row interface{ Scan(...any) error }) (content.Item, error) {
	var (
		it       content.Item
		attrs    []byte
		snapshot []byte
	)
	err := row.Scan(&it.ID, &it.Kind, &attrs, &it.Status, &it.Version, &snapshot,
		&it.CreatedBy, &it.UpdatedBy, &it.CreatedAt, &it.UpdatedAt)
	if err != nil {
		return content.Item{}, err
	}
	if len(attrs) > 0 {
		if err := json.Unmarshal(attrs, &it.Attrs); err != nil {
			return content.Item{}, fmt.Errorf("decode attrs: %w", err)
		}
	}
	if len(snapshot) > 0 {
		if err := json.Unmarshal(snapshot, &it.PublishedSnapshot); err != nil {
			return content.Item{}, fmt.Errorf("decode snapshot: %w", err)
		}
	}
	return it, nil
}

func (s *ContentStore) createItem(ctx context.Context, actor content.Actor, kind content.Kind, attrs map[string]any, published bool) (content.Item, error) {
	if kind != content.KindBanner && kind != content.KindFeatureFlag {
		return content.Item{}, content.ErrInvalidKind
	}
	attrsJSON, err := json.Marshal(attrs)
	if err != nil {
		return content.Item{}, fmt.Errorf("encode attrs: %w", err)
	}
	status := content.StatusDraft
	var snapshotJSON any
	auditAction := "content.create"
	if published {
		status = content.StatusPublished
		snapshotJSON = attrsJSON
		auditAction = "content.create_published"
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return content.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `
		insert into content_items (id, kind, attrs, status, version,
			published_snapshot, created_by, updated_by)
		values ($1,$2,$3,$4,1,$5,$6,$6)
		returning `+itemColumns+`
	`, ids.NewEntityID(), kind, attrsJSON, status, snapshotJSON, actor.ID)
	it, err := scanItem(row)
	if err != nil {
		return content.Item{}, err
	}

	if err := s.insertAuditTx(ctx, tx, actor, auditAction, it.ID, nil, itemImage(it)); err != nil {
		return content.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		return content.Item{}, err
	}
	obs.PublishTransitions.WithLabelValues(string(kind), auditAction).Inc()
	return it, nil
}

func (s *ContentStore) Create(ctx context.Context, actor content.Actor, kind content.Kind, attrs map[string]any) (content.Item, error) {
	return s.createItem(ctx, actor, kind, attrs, false)
}

func (s *ContentStore) CreatePublished(ctx context.Context, actor content.Actor, kind content.Kind, attrs map[string]any) (content.Item, error) {
	return s.createItem(ctx, actor, kind, attrs, true)
}

func (s *ContentStore) Get(ctx context.Context, id string) (content.Item, error) {
	row := s.db.QueryRowContext(ctx,
		`select `+itemColumns+` from content_items where id = $1`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Item{}, content.ErrNotFound
	}
	return it, err
}

func (s *ContentStore) List(ctx context.Context, f content.ListFilter) ([]content.Item, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select `+itemColumns+`, count(*) over ()
		from content_items
		where ($1 = '' or kind = $1)
		  and ($2 = '' or status = $2)
		  and ($3 = '' or attrs->>'placement' = $3)
		order by created_at desc
		limit $4 offset $5
	`, string(f.Kind), string(f.Status), f.Placement, limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		items []content.Item
		total int
	)
	for rows.Next() {
		var (
			it       content.Item
			attrs    []byte
			snapshot []byte
		)
		if err := rows.Scan(&it.ID, &it.Kind, &attrs, &it.Status, &it.Version,
			&snapshot, &it.CreatedBy, &it.UpdatedBy, &it.CreatedAt, &it.UpdatedAt,
			&total); err != nil {
			return nil, 0, err
		}
		if len(attrs) > 0 {
			if err := json.Unmarshal(attrs, &it.Attrs); err != nil {
				return nil, 0, fmt.Errorf("decode attrs: %w", err)
			}
		}
		if len(snapshot) > 0 {
			if err := json.Unmarshal(snapshot, &it.PublishedSnapshot); err != nil {
				return nil, 0, fmt.Errorf("decode snapshot: %w", err)
			}
		}
		items = append(items, it)
	}
	return items, total, rows.Err()
}

func itemImage(it content.Item) map[string]any {
	img := map[string]any{
		"attrs":   it.Attrs,
		"status":  string(it.Status),
		"version": it.Version,
	}
	if it.PublishedSnapshot != nil {
		img["published_snapshot"] = it.PublishedSnapshot
	}
	return img
}

// mutateItem runs one guarded transition: lock the row, recheck status and
// version inside the transaction, apply, bump the version, and write the
// audit entry in the same transaction.
func (s *ContentStore) mutateItem(
	ctx context.Context,
	actor content.Actor,
	id string,
	expectedVersion int64,
	auditAction string,
	apply func(it *content.Item) error,
) (content.Item, error) {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return content.Item{}, err
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`select `+itemColumns+` from content_items where id = $1 for update`, id)
	it, err := scanItem(row)
	if errors.Is(err, sql.ErrNoRows) {
		return content.Item{}, content.ErrNotFound
	}
	if err != nil {
		return content.Item{}, err
	}
	if expectedVersion > 0 && it.Version != expectedVersion {
		return content.Item{}, content.ErrVersionConflict
	}

	before := itemImage(it)
	if err := apply(&it); err != nil {
		return content.Item{}, err
	}
	it.Version++
	it.UpdatedBy = actor.ID

	attrsJSON, err := json.Marshal(it.Attrs)
	if err != nil {
		return content.Item{}, fmt.Errorf("encode attrs: %w", err)
	}
	var snapshotJSON any
	if it.PublishedSnapshot != nil {
		snapshotJSON, err = json.Marshal(it.PublishedSnapshot)
		if err != nil {
			return content.Item{}, fmt.Errorf("encode snapshot: %w", err)
		}
	}

	row = tx.QueryRowContext(ctx, `
		update content_items
		set attrs = $2, status = $3, version = $4, published_snapshot = $5,
		    updated_by = $6, updated_at = now()
		where id = $1
		returning `+itemColumns+`
	`, id, attrsJSON, it.Status, it.Version, snapshotJSON, actor.ID)
	updated, err := scanItem(row)
	if err != nil {
		return content.Item{}, err
	}

	if err := s.insertAuditTx(ctx, tx, actor, auditAction, id, before, itemImage(updated)); err != nil {
		return content.Item{}, err
	}
	if err := tx.Commit(); err != nil {
		return content.Item{}, err
	}
	obs.PublishTransitions.WithLabelValues(string(updated.Kind), auditAction).Inc()
	return updated, nil
}

func (s *ContentStore) Update(ctx context.Context, actor content.Actor, id string, expectedVersion int64, patch map[string]any) (content.Item, error) {
	return s.mutateItem(ctx, actor, id, expectedVersion, "content.update", func(it *content.Item) error {
		if it.Status != content.StatusDraft && it.Status != content.StatusInReview {
			return content.ErrInvalidStatus
		}
		if it.Attrs == nil {
			it.Attrs = map[string]any{}
		}
		for k, v := range patch {
			it.Attrs[k] = v
		}
		return nil
	})
}

func (s *ContentStore) SubmitReview(ctx context.Context, actor content.Actor, id string, expectedVersion int64) (content.Item, error) {
	return s.mutateItem(ctx, actor, id, expectedVersion, "content.submit_review", func(it *content.Item) error {
		if it.Status != content.StatusDraft {
			return content.ErrInvalidStatus
		}
		it.Status = content.StatusInReview
		return nil
	})
}

func (s *ContentStore) Publish(ctx context.Context, actor content.Actor, id string, expectedVersion int64) (content.Item, error) {
	return s.mutateItem(ctx, actor, id, expectedVersion, "content.publish", func(it *content.Item) error {
		if it.Status != content.StatusDraft && it.Status != content.StatusInReview {
			return content.ErrInvalidStatus
		}
		it.Status = content.StatusPublished
		snapshot := make(map[string]any, len(it.Attrs))
		for k, v := range it.Attrs {
			snapshot[k] = v
		}
		it.PublishedSnapshot = snapshot
		return nil
	})
}

func (s *ContentStore) Rollback(ctx context.Context, actor content.Actor, id string) (content.Item, error) {
	return s.mutateItem(ctx, actor, id, 0, "content.rollback", func(it *content.Item) error {
		if it.Status != content.StatusPublished {
			return content.ErrInvalidStatus
		}
		if it.PublishedSnapshot == nil {
			return content.ErrNoSnapshot
		}
		restored := make(map[string]any, len(it.PublishedSnapshot))
		for k, v := range it.PublishedSnapshot {
			restored[k] = v
		}
		it.Attrs = restored
		it.Status = content.StatusDraft
		return nil
	})
}

func (s *ContentStore) Archive(ctx context.Context, actor content.Actor, id string) (content.Item, error) {
	return s.mutateItem(ctx, actor, id, 0, "content.archive", func(it *content.Item) error {
		if it.Status == content.StatusArchived {
			return content.ErrInvalidStatus
		}
		it.Status = content.StatusArchived
		return nil
	})
}

// insertAuditTx writes an audit row inside the caller's transaction so the
// mutation and its trail commit together.
func (s *ContentStore) insertAuditTx(ctx context.Context, tx *sql.Tx, actor content.Actor, action, entityID string, beforeImg, afterImg map[string]any) error {
	entry, err := audit.NewEntry(actor.ID, actor.Role, action, "content_item", entityID, beforeImg, afterImg, nil)
	if err != nil {
		return err
	}
	return insertAudit(ctx, tx, entry)
}
