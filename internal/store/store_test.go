package store

import (
	"context"
	"errors"
	"testing"
)

// openStores returns both implementations so every test runs against each.
func openStores(t *testing.T) map[string]Store {
	t.Helper()
	sqlite, err := OpenSQLite(DefaultSQLiteConfig(":memory:"))
	if err != nil {
		t.Fatalf("Failed to open sqlite store: %v", err)
	}
	t.Cleanup(func() { _ = sqlite.Close() })
	return map[string]Store{
		"sqlite": sqlite,
		"memory": NewMemoryStore(),
	}
}

func TestSetGetDelete(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if _, err := s.Get(ctx, Stacks, "u1"); !errors.Is(err, ErrNotFound) {
				t.Fatalf("expected ErrNotFound, got %v", err)
			}

			doc := Doc{"name": "Forest", "count": float64(5)}
			if err := s.Set(ctx, Stacks, "u1", doc, false); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			got, err := s.Get(ctx, Stacks, "u1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			if got["name"] != "Forest" || got["count"] != float64(5) {
				t.Errorf("unexpected doc: %v", got)
			}

			if err := s.Delete(ctx, Stacks, "u1"); err != nil {
				t.Fatalf("Delete failed: %v", err)
			}
			if _, err := s.Get(ctx, Stacks, "u1"); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound after delete, got %v", err)
			}

			// Deleting again is not an error.
			if err := s.Delete(ctx, Stacks, "u1"); err != nil {
				t.Errorf("repeat delete errored: %v", err)
			}
		})
	}
}

func TestSetMerge(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			base := Doc{"name": "My Deck", "cards": map[string]any{
				"u1": map[string]any{"count": float64(1), "name": "Sol Ring"},
			}}
			if err := s.Set(ctx, Decks, "d1", base, false); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			// Merge in a second card; the first must survive.
			patch := Doc{"cards": map[string]any{
				"u2": map[string]any{"count": float64(1), "name": "Command Tower"},
			}}
			if err := s.Set(ctx, Decks, "d1", patch, true); err != nil {
				t.Fatalf("merge Set failed: %v", err)
			}

			got, err := s.Get(ctx, Decks, "d1")
			if err != nil {
				t.Fatalf("Get failed: %v", err)
			}
			cards := got["cards"].(map[string]any)
			if len(cards) != 2 {
				t.Fatalf("expected 2 cards after merge, got %v", cards)
			}
			if got["name"] != "My Deck" {
				t.Errorf("top-level field lost in merge: %v", got)
			}

			// Merge on a missing document behaves like a create.
			if err := s.Set(ctx, Decks, "d2", patch, true); err != nil {
				t.Fatalf("merge-create failed: %v", err)
			}
			if _, err := s.Get(ctx, Decks, "d2"); err != nil {
				t.Errorf("merge-create did not create: %v", err)
			}
		})
	}
}

func TestUpdateFieldPaths(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			base := Doc{"cards": map[string]any{
				"u1": map[string]any{"count": float64(1), "name": "Sol Ring"},
			}}
			if err := s.Set(ctx, Decks, "d1", base, false); err != nil {
				t.Fatalf("Set failed: %v", err)
			}

			if err := s.Update(ctx, Decks, "d1", map[string]any{"cards.u1.count": 3}); err != nil {
				t.Fatalf("Update failed: %v", err)
			}

			got, _ := s.Get(ctx, Decks, "d1")
			count := got["cards"].(map[string]any)["u1"].(map[string]any)["count"]
			if count != float64(3) {
				t.Errorf("field path update failed: count = %v", count)
			}

			if err := s.Update(ctx, Decks, "missing", map[string]any{"x": 1}); !errors.Is(err, ErrNotFound) {
				t.Errorf("expected ErrNotFound for missing doc, got %v", err)
			}
		})
	}
}

func TestBatchCommitAtomic(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()

			if err := s.Set(ctx, Stacks, "src", Doc{"name": "Forest", "count": float64(2)}, false); err != nil {
				t.Fatalf("seed failed: %v", err)
			}

			// The three-part assignment write: create unit, decrement
			// source, merge into deck.
			ops := []Op{
				SetOp(Stacks, "new", Doc{"name": "Forest", "count": float64(1)}, false),
				UpdateOp(Stacks, "src", map[string]any{"count": 1}),
				SetOp(Decks, "d1", Doc{"cards": map[string]any{
					"new": map[string]any{"count": float64(1), "name": "Forest"},
				}}, true),
			}
			if err := s.BatchCommit(ctx, ops); err != nil {
				t.Fatalf("BatchCommit failed: %v", err)
			}
			if _, err := s.Get(ctx, Stacks, "new"); err != nil {
				t.Errorf("batch set missing: %v", err)
			}

			// A batch touching a missing document must leave no trace.
			bad := []Op{
				SetOp(Stacks, "ghost", Doc{"count": float64(1)}, false),
				UpdateOp(Stacks, "does-not-exist", map[string]any{"count": 1}),
			}
			if err := s.BatchCommit(ctx, bad); err == nil {
				t.Fatal("expected batch failure")
			}
			if _, err := s.Get(ctx, Stacks, "ghost"); !errors.Is(err, ErrNotFound) {
				t.Errorf("failed batch leaked a write: %v", err)
			}
		})
	}
}

func TestList(t *testing.T) {
	for name, s := range openStores(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			for _, id := range []string{"a", "b", "c"} {
				if err := s.Set(ctx, Stacks, id, Doc{"name": id}, false); err != nil {
					t.Fatalf("Set failed: %v", err)
				}
			}
			docs, err := s.List(ctx, Stacks)
			if err != nil {
				t.Fatalf("List failed: %v", err)
			}
			if len(docs) != 3 {
				t.Errorf("expected 3 docs, got %d", len(docs))
			}
			if empty, err := s.List(ctx, "nothing"); err != nil || len(empty) != 0 {
				t.Errorf("empty collection list: %v, %v", empty, err)
			}
		})
	}
}
