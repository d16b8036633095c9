package assign

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"deckforge/internal/deck"
	"deckforge/internal/events"
	"deckforge/internal/store"
)

// Reconciler replaces optimistic placeholders with the documents the store
// actually holds. Reconcile is idempotent: running it twice over the same
// mappings converges to the same state.
type Reconciler struct {
	store  store.Store
	state  *deck.State
	events *events.Dispatcher
	logger *zap.Logger
}

// NewReconciler creates a reconciler over the given store and mirror.
func NewReconciler(st store.Store, state *deck.State, dispatcher *events.Dispatcher, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{store: st, state: state, events: dispatcher, logger: logger}
}

// Reconcile fetches each mapping's new unit from the store and swaps the
// stored document in for the local placeholder. Units the store does not
// have yet keep their placeholder for a later pass. The deck document is
// refreshed last so the mirror matches what was durably written.
func (r *Reconciler) Reconcile(ctx context.Context, deckID string, mappings []Mapping) error {
	replaced, missing := 0, 0
	for _, m := range mappings {
		doc, err := r.store.Get(ctx, store.Stacks, m.NewUnitID)
		if errors.Is(err, store.ErrNotFound) {
			missing++
			r.logger.Warn("committed unit not yet readable",
				zap.String("deck_id", deckID),
				zap.String("unit_id", m.NewUnitID))
			continue
		}
		if err != nil {
			return fmt.Errorf("failed to fetch unit %s: %w", m.NewUnitID, err)
		}
		st, err := deck.StackFromDoc(m.NewUnitID, doc)
		if err != nil {
			return err
		}
		r.state.PutStack(st)
		replaced++
	}

	doc, err := r.store.Get(ctx, store.Decks, deckID)
	if err == nil {
		d, derr := deck.DeckFromDoc(deckID, doc)
		if derr != nil {
			return derr
		}
		r.state.PutDeck(d)
	} else if !errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("failed to refresh deck %s: %w", deckID, err)
	}
	r.state.RebuildIndex()

	r.logger.Debug("reconciled placeholders",
		zap.String("deck_id", deckID),
		zap.Int("replaced", replaced),
		zap.Int("missing", missing))
	if r.events != nil {
		r.events.Dispatch(events.NewTypedEvent(events.TypeSyncCompleted, events.SyncCompletedEvent{
			DeckID:   deckID,
			Replaced: replaced,
			Missing:  missing,
		}, ctx))
	}
	return nil
}
