package assign

import (
	"context"
	"reflect"
	"testing"

	"deckforge/internal/deck"
	"deckforge/internal/store"
)

func TestReconcileIdempotent(t *testing.T) {
	e, state, _ := newTestEngine(t, nil)
	seedFixture(t, e.store, state,
		[]*deck.Stack{stack("u1", "Counterspell", "Instant", 2)},
		[]*deck.Deck{{DeckID: "d1"}})

	res, err := e.Assign(context.Background(), "d1", []string{"u1"})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}

	if err := e.Reconciler().Reconcile(context.Background(), "d1", res.Committed); err != nil {
		t.Fatalf("first reconcile failed: %v", err)
	}
	stacksOnce, decksOnce := state.Stacks(), state.Decks()

	if err := e.Reconciler().Reconcile(context.Background(), "d1", res.Committed); err != nil {
		t.Fatalf("second reconcile failed: %v", err)
	}
	stacksTwice, decksTwice := state.Stacks(), state.Decks()

	if !reflect.DeepEqual(stacksOnce, stacksTwice) {
		t.Error("stack mirror changed on repeated reconcile")
	}
	if !reflect.DeepEqual(decksOnce, decksTwice) {
		t.Error("deck mirror changed on repeated reconcile")
	}
}

func TestReconcileClearsPendingFlag(t *testing.T) {
	e, state, _ := newTestEngine(t, nil)
	seedFixture(t, e.store, state,
		[]*deck.Stack{stack("u1", "Opt", "Instant", 2)},
		[]*deck.Deck{{DeckID: "d1"}})

	res, err := e.Assign(context.Background(), "d1", []string{"u1"})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	unit := state.Stack(res.Committed[0].NewUnitID)
	if unit == nil || unit.Pending {
		t.Errorf("unit should be server-confirmed after reconcile: %+v", unit)
	}
}

func TestReconcileKeepsPlaceholderWhenUnitUnreadable(t *testing.T) {
	e, state, st := newTestEngine(t, nil)
	seedFixture(t, st, state,
		[]*deck.Stack{stack("u1", "Opt", "Instant", 2)},
		[]*deck.Deck{{DeckID: "d1"}})

	res, err := e.Assign(context.Background(), "d1", []string{"u1"})
	if err != nil {
		t.Fatalf("Assign failed: %v", err)
	}
	unitID := res.Committed[0].NewUnitID

	// Simulate a unit the store cannot serve yet: drop the doc, mark the
	// mirror entry pending again, and reconcile.
	if err := st.Delete(context.Background(), store.Stacks, unitID); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	placeholder := state.Stack(unitID)
	placeholder.Pending = true
	state.PutStack(placeholder)

	if err := e.Reconciler().Reconcile(context.Background(), "d1", res.Committed); err != nil {
		t.Fatalf("Reconcile failed: %v", err)
	}
	after := state.Stack(unitID)
	if after == nil || !after.Pending {
		t.Errorf("placeholder must survive an unreadable unit: %+v", after)
	}
}
