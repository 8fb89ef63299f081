package pg

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/fanstage/backoffice/internal/audit"
)

var _ audit.Recorder = (*AuditStore)(nil)

// AuditStore persists the append-only trail. Rows are only ever inserted.
type AuditStore struct {
	db *sql.DB
}

func encodeMap(m map[string]any) (any, error) {
	if m == nil {
		return nil, nil
	}
	raw, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode audit image: %w", err)
	}
	return raw, nil
}

// insertAudit writes one entry through db or an open transaction.
func insertAudit(ctx context.Context, ex execer, e audit.Entry) error {
	before, err := encodeMap(e.Before)
	if err != nil {
		return err
	}
	after, err := encodeMap(e.After)
	if err != nil {
		return err
	}
	metadata, err := encodeMap(e.Metadata)
	if err != nil {
		return err
	}
	_, err = ex.ExecContext(ctx, `
		insert into audit_log (id, actor_id, actor_role, action, entity_type,
			entity_id, before_image, after_image, metadata, created_at)
		values ($1,$2,$3,$4,$5,nullif($6,''),$7,$8,$9,$10)
	`, e.ID, e.ActorID, e.ActorRole, e.Action, e.EntityType, e.EntityID,
		before, after, metadata, e.CreatedAt)
	return err
}

func (s *AuditStore) Record(ctx context.Context, e audit.Entry) error {
	return insertAudit(ctx, s.db, e)
}

func (s *AuditStore) List(ctx context.Context, f audit.Filter) ([]audit.Entry, int, error) {
	limit := f.Limit
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.db.QueryContext(ctx, `
		select id, actor_id, actor_role, action, entity_type,
			coalesce(entity_id, ''), before_image, after_image, metadata,
			created_at, count(*) over ()
		from audit_log
		where ($1 = '' or entity_type = $1)
		  and ($2 = '' or entity_id = $2)
		order by created_at desc
		limit $3 offset $4
	`, f.EntityType, f.EntityID, limit, f.Offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var (
		entries []audit.Entry
		total   int
	)
	for rows.Next() {
		var (
			e        audit.Entry
			before   []byte
			after    []byte
			metadata []byte
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorRole, &e.Action,
			&e.EntityType, &e.EntityID, &before, &after, &metadata,
			&e.CreatedAt, &total); err != nil {
			return nil, 0, err
		}
		if len(before) > 0 {
			if err := json.Unmarshal(before, &e.Before); err != nil {
				return nil, 0, fmt.Errorf("decode before image: %w", err)
			}
		}
		if len(after) > 0 {
			if err := json.Unmarshal(after, &e.After); err != nil {
				return nil, 0, fmt.Errorf("decode after image: %w", err)
			}
		}
		if len(metadata) > 0 {
			if err := json.Unmarshal(metadata, &e.Metadata); err != nil {
				return nil, 0, fmt.Errorf("decode metadata: %w", err)
			}
		}
		entries = append(entries, e)
	}
	return entries, total, rows.Err()
}
