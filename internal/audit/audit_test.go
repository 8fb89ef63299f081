package audit

import (
	"context"
	"testing"
)

func TestDiffChangedFieldsOnly(t *testing.T) {
	before := map[string]any{"title": "old", "status": "draft", "version": 1}
	after := map[string]any{"title": "new", "status": "draft", "version": 2}

	db, da := Diff(before, after)
	if len(db) != 2 || len(da) != 2 {
		t.Fatalf("expected 2 changed fields, got before=%v after=%v", db, da)
	}
	if db["title"] != "old" || da["title"] != "new" {
		t.Fatalf("title diff wrong: %v -> %v", db["title"], da["title"])
	}
	if _, ok := db["status"]; ok {
		t.Fatalf("unchanged field leaked into diff: %v", db)
	}
}

func TestDiffNoChanges(t *testing.T) {
	img := map[string]any{"title": "same", "tags": []string{"a", "b"}}
	db, da := Diff(img, map[string]any{"title": "same", "tags": []string{"a", "b"}})
	if db != nil || da != nil {
		t.Fatalf("expected nil diff for identical images, got %v / %v", db, da)
	}
}

func TestDiffCreateAndDelete(t *testing.T) {
	created := map[string]any{"title": "hello"}
	db, da := Diff(nil, created)
	if db != nil || da["title"] != "hello" {
		t.Fatalf("creation diff wrong: %v / %v", db, da)
	}

	db, da = Diff(created, nil)
	if da != nil || db["title"] != "hello" {
		t.Fatalf("deletion diff wrong: %v / %v", db, da)
	}
}

func TestDiffRemovedKey(t *testing.T) {
	db, da := Diff(map[string]any{"a": 1, "b": 2}, map[string]any{"a": 1})
	if db["b"] != 2 {
		t.Fatalf("removed key missing from before diff: %v", db)
	}
	if _, ok := da["b"]; ok {
		t.Fatalf("removed key must not appear in after diff: %v", da)
	}
}

func TestNewEntryRequiresAction(t *testing.T) {
	if _, err := NewEntry("u1", "admin", "  ", "content_item", "c1", nil, nil, nil); err == nil {
		t.Fatal("expected error for blank action")
	}
}

func TestInMemoryListFilterAndOrder(t *testing.T) {
	rec := NewInMemory()
	ctx := context.Background()

	for _, id := range []string{"c1", "c1", "c2"} {
		e, err := NewEntry("u1", "publisher", "content.update", "content_item", id,
			map[string]any{"v": 1}, map[string]any{"v": 2}, nil)
		if err != nil {
			t.Fatalf("NewEntry: %v", err)
		}
		if err := rec.Record(ctx, e); err != nil {
			t.Fatalf("Record: %v", err)
		}
	}

	got, total, err := rec.List(ctx, Filter{EntityType: "content_item", EntityID: "c1"})
	if err != nil {
		t.Fatalf("List: %v", err)
	}
	if total != 2 || len(got) != 2 {
		t.Fatalf("expected 2 entries for c1, got %d (total %d)", len(got), total)
	}
	if got[0].CreatedAt.Before(got[1].CreatedAt) {
		t.Fatal("expected newest-first ordering")
	}
}
