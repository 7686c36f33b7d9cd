package firestore

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/julianstephens/habitcoach/internal/docstore"
)

func TestMapErr(t *testing.T) {
	if mapErr(nil) != nil {
		t.Error("nil should stay nil")
	}
	if err := mapErr(status.Error(codes.NotFound, "no document")); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	other := status.Error(codes.Unavailable, "down")
	if err := mapErr(other); err != other {
		t.Errorf("expected passthrough, got %v", err)
	}
}

// setupEmulatorStore connects to the Firestore emulator.
// Set FIRESTORE_EMULATOR_HOST to run this test
// Example: FIRESTORE_EMULATOR_HOST="localhost:8080"
func setupEmulatorStore(t *testing.T) (*Store, func()) {
	if os.Getenv("FIRESTORE_EMULATOR_HOST") == "" {
		t.Skip("FIRESTORE_EMULATOR_HOST not set, skipping Firestore integration test")
	}
	client, err := firestore.NewClient(context.Background(), "demo-habitcoach")
	if err != nil {
		t.Fatalf("failed to create firestore client: %v", err)
	}
	store := NewWithClient(client)
	return store, func() { store.Close() }
}

func TestEmulatorRoundTrip(t *testing.T) {
	store, cleanup := setupEmulatorStore(t)
	defer cleanup()
	ctx := context.Background()
	owner := "owner-" + time.Now().Format("150405.000000")

	changes := make(chan []docstore.Document, 8)
	unsub, err := store.Subscribe(ctx, docstore.Query{
		Collection: "habits",
		Filters:    []docstore.Filter{docstore.Eq("ownerId", owner)},
	}, func(snap docstore.Snapshot) { changes <- snap.Docs }, nil)
	if err != nil {
		t.Fatalf("Subscribe failed: %v", err)
	}
	defer unsub()
	if initial := <-changes; len(initial) != 0 {
		t.Fatalf("expected empty initial snapshot, got %d", len(initial))
	}

	id, err := store.Add(ctx, "habits", docstore.Data{"ownerId": owner, "name": "Stretch", "cachedStreak": 0})
	if err != nil {
		t.Fatalf("Add failed: %v", err)
	}

	select {
	case docs := <-changes:
		if len(docs) != 1 || docs[0].ID != id {
			t.Errorf("unexpected snapshot %+v", docs)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for snapshot")
	}

	if err := store.Update(ctx, "habits", id, docstore.Data{"cachedStreak": 2}); err != nil {
		t.Fatalf("Update failed: %v", err)
	}
	doc, err := store.Get(ctx, "habits", id)
	if err != nil || docstore.AsInt(doc.Data["cachedStreak"]) != 2 {
		t.Errorf("Get = (%v, %v), want cachedStreak 2", doc.Data, err)
	}

	if err := store.Update(ctx, "habits", "does-not-exist", docstore.Data{"name": "x"}); !errors.Is(err, docstore.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := store.Delete(ctx, "habits", id); err != nil {
		t.Errorf("Delete failed: %v", err)
	}
}
