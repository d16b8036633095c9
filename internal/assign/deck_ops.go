package assign

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"deckforge/internal/deck"
	"deckforge/internal/events"
	"deckforge/internal/store"
)

// RemoveCard takes a unit out of a deck and returns its copies to the
// collection. When another stack of the same printing exists the copies
// merge into it and the unit document is deleted; otherwise the unit
// simply becomes an unassigned stack.
func (e *Engine) RemoveCard(ctx context.Context, deckID, unitID string) error {
	d := e.state.Deck(deckID)
	if d == nil {
		return fmt.Errorf("deck %s: %w", deckID, ErrDeckNotFound)
	}
	entry, ok := d.Cards[unitID]
	if !ok {
		return fmt.Errorf("unit %s in deck %s: %w", unitID, deckID, ErrCardNotFound)
	}

	updated := d.Clone()
	delete(updated.Cards, unitID)
	ops := []store.Op{store.SetOp(store.Decks, deckID, deck.DeckToDoc(updated), false)}

	unit := e.state.Stack(unitID)
	var target *deck.Stack
	if unit != nil {
		target = e.state.FindStackByPrinting(unit.CardID, unit.Finish, unitID)
	}
	if target != nil {
		ops = append(ops,
			store.UpdateOp(store.Stacks, target.UnitID, map[string]any{"count": target.Count + entry.Count}),
			store.DeleteOp(store.Stacks, unitID))
	}

	if err := e.store.BatchCommit(ctx, ops); err != nil {
		return fmt.Errorf("failed to remove card: %w", err)
	}

	e.state.RemoveDeckCard(deckID, unitID)
	if target != nil {
		e.state.AdjustStackCount(target.UnitID, entry.Count)
		e.state.RemoveStack(unitID)
	}
	e.state.RebuildIndex()

	e.logger.Info("removed card from deck",
		zap.String("deck_id", deckID),
		zap.String("unit_id", unitID),
		zap.String("name", entry.Name),
		zap.Bool("merged", target != nil))
	if e.events != nil {
		e.events.Render(deckID)
		e.events.Dispatch(events.NewTypedEvent(events.TypeCollectionUpdated,
			events.CollectionUpdatedEvent{Changed: 1}, ctx))
	}
	return nil
}

// DeleteDeck removes a deck document. With deleteCards set the deck's unit
// stacks are deleted with it; otherwise they stay in the collection and
// become assignable again once the index no longer sees the deck.
func (e *Engine) DeleteDeck(ctx context.Context, deckID string, deleteCards bool) error {
	d := e.state.Deck(deckID)
	if d == nil {
		return fmt.Errorf("deck %s: %w", deckID, ErrDeckNotFound)
	}

	ops := []store.Op{store.DeleteOp(store.Decks, deckID)}
	if deleteCards {
		for unitID := range d.Cards {
			ops = append(ops, store.DeleteOp(store.Stacks, unitID))
		}
	}

	// Deletes are independent, so oversized batches split cleanly.
	for start := 0; start < len(ops); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(ops) {
			end = len(ops)
		}
		if err := e.store.BatchCommit(ctx, ops[start:end]); err != nil {
			return fmt.Errorf("failed to delete deck %s: %w", deckID, err)
		}
	}

	e.state.RemoveDeck(deckID)
	if deleteCards {
		for unitID := range d.Cards {
			e.state.RemoveStack(unitID)
		}
	}
	e.state.RebuildIndex()

	e.logger.Info("deleted deck",
		zap.String("deck_id", deckID),
		zap.String("name", d.Name),
		zap.Bool("cards_deleted", deleteCards),
		zap.Int("units", len(d.Cards)))
	if e.events != nil {
		e.events.Dispatch(events.NewTypedEvent(events.TypeDeckUpdated,
			events.DeckUpdatedEvent{DeckID: deckID}, ctx))
	}
	return nil
}
