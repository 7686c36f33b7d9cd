package memory

import (
	"context"
	"errors"
	"testing"

	"github.com/julianstephens/habitcoach/internal/docstore"
)

func TestStoreCRUD(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	id, err := s.Add(ctx, "habits", docstore.Data{"ownerId": "u1", "name": "Read"})
	if err != nil {
		t.Fatalf("Add: %v", err)
	}

	doc, err := s.Get(ctx, "habits", id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if doc.Data["name"] != "Read" {
		t.Errorf("expected name Read, got %v", doc.Data["name"])
	}

	// Returned data must not alias the stored document
	doc.Data["name"] = "mutated"
	again, _ := s.Get(ctx, "habits", id)
	if again.Data["name"] != "Read" {
		t.Error("Get returned an aliased map")
	}

	if err := s.Update(ctx, "habits", id, docstore.Data{"name": "Write"}); err != nil {
		t.Fatalf("Update: %v", err)
	}
	updated, _ := s.Get(ctx, "habits", id)
	if updated.Data["name"] != "Write" || updated.Data["ownerId"] != "u1" {
		t.Errorf("Update should merge, got %v", updated.Data)
	}

	if err := s.Update(ctx, "habits", "missing", docstore.Data{"name": "x"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Update(missing) error = %v, want ErrNotFound", err)
	}

	if err := s.Delete(ctx, "habits", id); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := s.Delete(ctx, "habits", id); err != nil {
		t.Errorf("second Delete should be a no-op, got %v", err)
	}
	if _, err := s.Get(ctx, "habits", id); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("Get after delete error = %v, want ErrNotFound", err)
	}
}

func TestStoreSubscribe(t *testing.T) {
	ctx := context.Background()
	s := New()
	defer s.Close()

	var snapshots [][]docstore.Document
	unsub, err := s.Subscribe(ctx, docstore.Query{
		Collection: "habits",
		Filters:    []docstore.Filter{docstore.Eq("ownerId", "u1")},
	}, func(snap docstore.Snapshot) {
		snapshots = append(snapshots, snap.Docs)
	}, nil)
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}

	if len(snapshots) != 1 || len(snapshots[0]) != 0 {
		t.Fatalf("expected empty initial snapshot, got %v", snapshots)
	}

	if _, err := s.Add(ctx, "habits", docstore.Data{"ownerId": "u1", "name": "Read"}); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Add(ctx, "habits", docstore.Data{"ownerId": "u2", "name": "Other"}); err != nil {
		t.Fatal(err)
	}

	last := snapshots[len(snapshots)-1]
	if len(last) != 1 || last[0].Data["name"] != "Read" {
		t.Errorf("expected only the owner's habit, got %v", last)
	}

	unsub()
	if s.Subscriptions() != 0 {
		t.Errorf("Subscriptions() = %d, want 0", s.Subscriptions())
	}
	count := len(snapshots)
	if _, err := s.Add(ctx, "habits", docstore.Data{"ownerId": "u1", "name": "Run"}); err != nil {
		t.Fatal(err)
	}
	if len(snapshots) != count {
		t.Error("unsubscribed listener received a snapshot")
	}
}

func TestStoreUnique(t *testing.T) {
	ctx := context.Background()
	s := New(Unique("completions", "habitId", "day"))
	defer s.Close()

	if _, err := s.Add(ctx, "completions", docstore.Data{"habitId": "h1", "day": "2024-03-10"}); err != nil {
		t.Fatal(err)
	}
	_, err := s.Add(ctx, "completions", docstore.Data{"habitId": "h1", "day": "2024-03-10"})
	if !errors.Is(err, docstore.ErrConflict) {
		t.Errorf("duplicate Add error = %v, want ErrConflict", err)
	}
	if _, err := s.Add(ctx, "completions", docstore.Data{"habitId": "h1", "day": "2024-03-11"}); err != nil {
		t.Errorf("different day should be accepted: %v", err)
	}
	if _, err := s.Add(ctx, "habits", docstore.Data{"habitId": "h1", "day": "2024-03-10"}); err != nil {
		t.Errorf("other collections are unconstrained: %v", err)
	}
	if n := s.Count("completions"); n != 2 {
		t.Errorf("Count = %d, want 2", n)
	}
}

func TestStoreClosed(t *testing.T) {
	s := New()
	s.Close()
	if _, err := s.Add(context.Background(), "habits", docstore.Data{}); !errors.Is(err, docstore.ErrClosed) {
		t.Errorf("Add after Close error = %v, want ErrClosed", err)
	}
}
