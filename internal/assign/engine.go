// Package assign commits card assignments to decks: splitting inventory
// stacks into per-deck units, writing the three-part batch to the store,
// and keeping the local optimistic mirror in step with what was committed.
package assign

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"deckforge/internal/deck"
	"deckforge/internal/events"
	"deckforge/internal/mana"
	"deckforge/internal/retry"
	"deckforge/internal/store"
)

// DefaultChunkSize is the number of assignments committed per batch.
const DefaultChunkSize = 50

var (
	// ErrDeckNotFound is returned when an operation targets a deck the
	// mirror does not hold.
	ErrDeckNotFound = errors.New("deck not found")

	// ErrCardNotFound is returned when a unit is not in the target deck.
	ErrCardNotFound = errors.New("card not found in deck")
)

// Mapping records one committed assignment: which source stack was split
// and the new unit that landed in the deck.
type Mapping struct {
	SourceID  string `json:"sourceId,omitempty"`
	NewUnitID string `json:"newUnitId"`
	Name      string `json:"name"`
	TypeLine  string `json:"type_line"`
	Count     int    `json:"count"`
}

// Result is the outcome of a batch assignment. A partially successful
// batch is a normal outcome, not an error.
type Result struct {
	Committed []Mapping
	Failed    []string
	Skipped   []string
}

// assignment is one unit of work: split copies off a source stack (or
// synthesize a stack when sourceID is empty) and place them in the deck.
type assignment struct {
	sourceID string
	card     deck.Card
	copies   int
	slotType string
}

// Engine performs batch assignments against the store and mirrors each
// committed chunk into local state.
type Engine struct {
	store      store.Store
	state      *deck.State
	events     *events.Dispatcher
	reconciler *Reconciler
	logger     *zap.Logger

	chunkSize int
	policy    retry.Policy
}

// EngineOption adjusts engine construction.
type EngineOption func(*Engine)

// WithChunkSize overrides the per-batch assignment count.
func WithChunkSize(n int) EngineOption {
	return func(e *Engine) {
		if n > 0 {
			e.chunkSize = n
		}
	}
}

// WithRetryPolicy overrides the commit retry policy.
func WithRetryPolicy(p retry.Policy) EngineOption {
	return func(e *Engine) { e.policy = p }
}

// NewEngine creates an assignment engine.
func NewEngine(st store.Store, state *deck.State, dispatcher *events.Dispatcher, logger *zap.Logger, opts ...EngineOption) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	e := &Engine{
		store:     st,
		state:     state,
		events:    dispatcher,
		logger:    logger,
		chunkSize: DefaultChunkSize,
		policy:    retry.Policy{MaxAttempts: 3, BaseDelay: 500 * time.Millisecond, MaxDelay: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(e)
	}
	e.reconciler = NewReconciler(st, state, dispatcher, logger)
	return e
}

// Reconciler returns the engine's reconciler for standalone syncs.
func (e *Engine) Reconciler() *Reconciler {
	return e.reconciler
}

// Assign splits one copy off each listed stack into the deck. Units already
// assigned to another deck and ids with no backing stack are skipped. Chunks
// that fail all retries fall back to per-unit commits; units that still fail
// are reported in Result.Failed, never as an error.
func (e *Engine) Assign(ctx context.Context, deckID string, unitIDs []string) (*Result, error) {
	d := e.state.Deck(deckID)
	if d == nil {
		return nil, fmt.Errorf("deck %s: %w", deckID, ErrDeckNotFound)
	}
	commanderColors := d.CommanderColors()

	result := &Result{}
	reserved := make(map[string]int)
	work := make([]assignment, 0, len(unitIDs))
	for _, unitID := range unitIDs {
		a, skip, err := e.resolve(ctx, deckID, unitID, 1, "", reserved)
		if err != nil {
			return nil, err
		}
		if skip == "" && d.Commander != nil && !deck.IsColorIdentityValid(a.card.ColorIdentity, commanderColors) {
			skip = "outside commander color identity"
			if e.events != nil {
				e.events.Toast(events.ToastError,
					fmt.Sprintf("%s is outside your commander's color identity.", a.card.Name))
			}
		}
		if skip != "" {
			e.logger.Debug("skipping unit", zap.String("unit_id", unitID), zap.String("reason", skip))
			result.Skipped = append(result.Skipped, unitID)
			continue
		}
		work = append(work, a)
	}

	e.run(ctx, deckID, work, result)
	e.finish(ctx, deckID, result)
	return result, nil
}

// AssignOne is the single-card path. It returns the committed mapping, or an
// error naming why the card could not be placed.
func (e *Engine) AssignOne(ctx context.Context, deckID, unitID string) (*Mapping, error) {
	result, err := e.Assign(ctx, deckID, []string{unitID})
	if err != nil {
		return nil, err
	}
	if len(result.Committed) != 1 {
		if len(result.Skipped) > 0 {
			return nil, fmt.Errorf("unit %s cannot be assigned to deck %s", unitID, deckID)
		}
		return nil, fmt.Errorf("failed to assign unit %s to deck %s", unitID, deckID)
	}
	return &result.Committed[0], nil
}

// ApplySuggestions assigns a reviewed suggestion set to the deck. Virtual
// suggestions synthesize their stack documents; counts above one assign
// multiple copies on a single unit.
func (e *Engine) ApplySuggestions(ctx context.Context, deckID string, suggestions []deck.Suggestion) (*Result, error) {
	if e.state.Deck(deckID) == nil {
		return nil, fmt.Errorf("deck %s: %w", deckID, ErrDeckNotFound)
	}

	result := &Result{}
	reserved := make(map[string]int)
	work := make([]assignment, 0, len(suggestions))
	for _, sug := range suggestions {
		copies := sug.Count
		if copies < 1 {
			copies = 1
		}
		if sug.Virtual {
			work = append(work, assignment{
				card:     basicLandCard(sug.Name),
				copies:   copies,
				slotType: sug.SlotType,
			})
			continue
		}
		a, skip, err := e.resolve(ctx, deckID, sug.UnitID, copies, sug.SlotType, reserved)
		if err != nil {
			return nil, err
		}
		if skip != "" {
			e.logger.Debug("skipping suggestion", zap.String("unit_id", sug.UnitID), zap.String("reason", skip))
			result.Skipped = append(result.Skipped, sug.UnitID)
			continue
		}
		work = append(work, a)
	}

	e.run(ctx, deckID, work, result)
	e.finish(ctx, deckID, result)
	return result, nil
}

// resolve turns a unit id into an assignment, consulting the store when the
// local mirror has no record. A non-empty skip reason means the unit cannot
// be assigned right now; that is not an error. reserved tracks copies already
// claimed by earlier assignments of the same run, so a source stack listed
// twice cannot hand out more copies than it holds.
func (e *Engine) resolve(ctx context.Context, deckID, unitID string, copies int, slotType string, reserved map[string]int) (assignment, string, error) {
	st := e.state.Stack(unitID)
	if st == nil {
		doc, err := e.store.Get(ctx, store.Stacks, unitID)
		if errors.Is(err, store.ErrNotFound) {
			return assignment{}, "no backing stack", nil
		}
		if err != nil {
			return assignment{}, "", fmt.Errorf("failed to fetch stack %s: %w", unitID, err)
		}
		st, err = deck.StackFromDoc(unitID, doc)
		if err != nil {
			return assignment{}, "", err
		}
		e.state.PutStack(st)
	}
	if st.Pending {
		return assignment{}, "stack pending sync", nil
	}
	if st.Count-reserved[unitID] < copies {
		return assignment{}, "not enough copies", nil
	}
	if !st.IsBasicLand() && e.state.Index().AssignedElsewhere(unitID, deckID) {
		return assignment{}, "assigned to another deck", nil
	}
	reserved[unitID] += copies
	return assignment{sourceID: unitID, card: st.Card, copies: copies, slotType: slotType}, "", nil
}

// run commits the work in chunks. A chunk that exhausts its retries is
// retried one assignment at a time so a single poisoned write cannot sink
// its whole chunk.
func (e *Engine) run(ctx context.Context, deckID string, work []assignment, result *Result) {
	total := len(work)
	for start := 0; start < len(work); start += e.chunkSize {
		end := start + e.chunkSize
		if end > len(work) {
			end = len(work)
		}
		chunk := work[start:end]

		mappings, err := e.commitChunk(ctx, deckID, chunk)
		if err != nil {
			e.logger.Warn("chunk commit failed, retrying per unit",
				zap.String("deck_id", deckID),
				zap.Int("chunk_size", len(chunk)),
				zap.Error(err))
			mappings = mappings[:0]
			for _, a := range chunk {
				m, err := e.commitChunk(ctx, deckID, []assignment{a})
				if err != nil {
					e.logger.Error("assignment failed",
						zap.String("deck_id", deckID),
						zap.String("unit_id", a.sourceID),
						zap.String("name", a.card.Name),
						zap.Error(err))
					result.Failed = append(result.Failed, failedID(a))
					continue
				}
				mappings = append(mappings, m...)
			}
		}
		result.Committed = append(result.Committed, mappings...)

		if e.events != nil {
			e.events.Dispatch(events.NewTypedEvent(events.TypeAssignmentProgress, events.AssignmentProgressEvent{
				DeckID:    deckID,
				Committed: len(result.Committed),
				Failed:    len(result.Failed),
				Total:     total,
			}, ctx))
			e.events.Render(deckID)
		}

		// Replace this chunk's placeholders while the next chunk commits.
		// Reconciliation failures are recoverable and never fail the run.
		if len(mappings) > 0 {
			if err := e.reconciler.Reconcile(ctx, deckID, mappings); err != nil {
				e.logger.Warn("chunk reconciliation failed", zap.String("deck_id", deckID), zap.Error(err))
			}
		}
	}
}

// commitChunk writes one atomic batch and, on success, applies the same
// changes to the local mirror with pending placeholders for the new units.
func (e *Engine) commitChunk(ctx context.Context, deckID string, chunk []assignment) ([]Mapping, error) {
	if len(chunk) == 0 {
		return nil, nil
	}

	mappings := make([]Mapping, 0, len(chunk))
	ops := make([]store.Op, 0, len(chunk)*3)
	// A source stack can be split more than once in one batch; counts are
	// projected forward so each op writes the running remainder, not the
	// pre-commit count.
	projected := make(map[string]int)
	for _, a := range chunk {
		newID := uuid.NewString()
		unit := &deck.Stack{Card: a.card, UnitID: newID, Count: a.copies, AddedAt: time.Now().UTC()}
		ops = append(ops, store.SetOp(store.Stacks, newID, deck.StackToDoc(unit), false))

		if a.sourceID != "" {
			remaining, seen := projected[a.sourceID]
			if !seen {
				src := e.state.Stack(a.sourceID)
				if src == nil {
					return nil, fmt.Errorf("stack %s vanished before commit", a.sourceID)
				}
				remaining = src.Count
			}
			remaining -= a.copies
			if remaining < 0 {
				return nil, fmt.Errorf("stack %s oversubscribed in batch", a.sourceID)
			}
			if remaining > 0 {
				ops = append(ops, store.UpdateOp(store.Stacks, a.sourceID, map[string]any{"count": remaining}))
			} else {
				ops = append(ops, store.DeleteOp(store.Stacks, a.sourceID))
			}
			projected[a.sourceID] = remaining
		}

		ops = append(ops, store.SetOp(store.Decks, deckID, store.Doc{
			"cards": map[string]any{
				newID: map[string]any{
					"count":     a.copies,
					"name":      a.card.Name,
					"type_line": a.card.TypeLine,
					"slotType":  a.slotType,
				},
			},
		}, true))

		mappings = append(mappings, Mapping{
			SourceID:  a.sourceID,
			NewUnitID: newID,
			Name:      a.card.Name,
			TypeLine:  a.card.TypeLine,
			Count:     a.copies,
		})
	}

	err := retry.Do(ctx, e.policy, func() error {
		if err := e.store.BatchCommit(ctx, ops); err != nil {
			return fmt.Errorf("failed to commit assignment batch: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	for i, a := range chunk {
		m := mappings[i]
		placeholder := &deck.Stack{Card: a.card, UnitID: m.NewUnitID, Count: a.copies, Pending: true}
		e.state.PutStack(placeholder)
		if a.sourceID != "" {
			e.state.AdjustStackCount(a.sourceID, -a.copies)
		}
		e.state.UpsertDeckCard(deckID, m.NewUnitID, deck.DeckCard{
			Count:    a.copies,
			Name:     a.card.Name,
			TypeLine: a.card.TypeLine,
			SlotType: a.slotType,
		})
	}
	e.state.RebuildIndex()
	return mappings, nil
}

// finish logs and surfaces the aggregate outcome.
func (e *Engine) finish(ctx context.Context, deckID string, result *Result) {
	e.logger.Info("assignment run finished",
		zap.String("deck_id", deckID),
		zap.Int("committed", len(result.Committed)),
		zap.Int("failed", len(result.Failed)),
		zap.Int("skipped", len(result.Skipped)))

	if e.events == nil {
		return
	}
	if len(result.Committed) > 0 {
		e.events.Dispatch(events.NewTypedEvent(events.TypeCollectionUpdated,
			events.CollectionUpdatedEvent{Changed: len(result.Committed)}, ctx))
	}
	if len(result.Failed) > 0 {
		e.events.Toast(events.ToastWarning,
			fmt.Sprintf("%d of %d cards could not be added; your collection is unchanged for those cards.",
				len(result.Failed), len(result.Committed)+len(result.Failed)))
	}
}

func failedID(a assignment) string {
	if a.sourceID != "" {
		return a.sourceID
	}
	return a.card.Name
}

// basicLandCard builds the card record for a synthesized basic land unit.
func basicLandCard(name string) deck.Card {
	card := deck.Card{Name: name, TypeLine: "Basic Land"}
	for color, landName := range mana.BasicLandNames {
		if landName == name {
			card.TypeLine = mana.BasicLandTypeLines[color]
			card.ProducedMana = []string{color}
			break
		}
	}
	return card
}
