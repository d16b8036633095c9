// Package suggest runs the AI-assisted deck-population flow: one pass over
// the blueprint's slots, a model call per slot with a filtered candidate
// pool, strict quota enforcement over whatever the model returns, and a
// closing basic-land auto-fill.
package suggest

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"

	"deckforge/internal/assign"
	"deckforge/internal/deck"
	"deckforge/internal/events"
	"deckforge/internal/llm"
	"deckforge/internal/store"
)

// ErrRunInFlight is returned when a run is requested while another is
// still going. Runs are rejected, never queued.
var ErrRunInFlight = errors.New("a suggestion run is already in progress")

// Slots that fall back to Creature candidates when their own pool is empty.
var creatureFallbackSlots = map[string]bool{
	"Planeswalker": true,
	"Enchantment":  true,
	"Artifact":     true,
}

// Mode selects what happens with the finished suggestion set.
type Mode string

const (
	// ModePreview returns the set for manual checkbox approval.
	ModePreview Mode = "preview"
	// ModeAuto hands the set straight to the assignment engine.
	ModeAuto Mode = "auto"
)

// Applier commits an approved suggestion set to a deck.
type Applier interface {
	ApplySuggestions(ctx context.Context, deckID string, suggestions []deck.Suggestion) (*assign.Result, error)
}

// RunOptions configure one orchestrator run.
type RunOptions struct {
	DeckID string

	// Slot restricts the run to a single slot type. Empty runs the full
	// ordered slot list.
	Slot string

	Mode Mode

	// Seed pre-accepts suggestions kept from an earlier run, as when the
	// user asks for replacements for the ones they unchecked.
	Seed []deck.Suggestion
}

// RunSummary is the single result that crosses back to the caller.
type RunSummary struct {
	DeckID      string
	Suggestions []deck.Suggestion
	Notices     []string

	// Applied is set in auto mode.
	Applied *assign.Result
}

// Orchestrator drives the suggestion flow. One run at a time.
type Orchestrator struct {
	state   *deck.State
	store   store.Store
	model   llm.Client
	applier Applier
	events  *events.Dispatcher
	logger  *zap.Logger

	landTarget int
	inFlight   atomic.Bool
}

// Option adjusts orchestrator construction.
type Option func(*Orchestrator)

// WithLandTarget overrides the default total-land target used by the
// basic-land auto-fill when a deck has no blueprint override.
func WithLandTarget(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.landTarget = n
		}
	}
}

// NewOrchestrator creates a suggestion orchestrator. model may be nil when
// no endpoint is configured; runs then degrade to a notice.
func NewOrchestrator(state *deck.State, st store.Store, model llm.Client, applier Applier, dispatcher *events.Dispatcher, logger *zap.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = zap.NewNop()
	}
	o := &Orchestrator{
		state:      state,
		store:      st,
		model:      model,
		applier:    applier,
		events:     dispatcher,
		logger:     logger,
		landTarget: DefaultLandTarget,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run executes one suggestion pass. Re-entrant calls are rejected with
// ErrRunInFlight and a user-visible warning.
func (o *Orchestrator) Run(ctx context.Context, opts RunOptions) (*RunSummary, error) {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.toast(events.ToastWarning, "A suggestion run is already in progress.")
		return nil, ErrRunInFlight
	}
	defer o.inFlight.Store(false)

	authoritative := o.state.Deck(opts.DeckID)
	if authoritative == nil {
		return nil, fmt.Errorf("deck %s: %w", opts.DeckID, assign.ErrDeckNotFound)
	}
	if o.model == nil {
		o.toast(events.ToastWarning, "Deck suggestions are unavailable: no model endpoint is configured.")
		return nil, llm.ErrUnavailable
	}

	run := newRunState(authoritative, opts.Seed)
	stacks, decks := o.state.Snapshot()

	slots := deck.SlotOrder
	if opts.Slot != "" {
		slots = []string{opts.Slot}
	}
	for _, slot := range slots {
		if run.working.NonCommanderCount() >= run.working.TargetSize() {
			break
		}
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		o.runSlot(ctx, run, stacks, decks, authoritative, slot)
	}

	if opts.Slot == "" || opts.Slot == "Land" {
		o.fillBasics(run, stacks, authoritative)
	}

	summary := &RunSummary{
		DeckID:      opts.DeckID,
		Suggestions: run.ordered(),
		Notices:     run.notices,
	}
	o.logger.Info("suggestion run finished",
		zap.String("deck_id", opts.DeckID),
		zap.Int("suggestions", len(summary.Suggestions)),
		zap.Int("notices", len(summary.Notices)))

	if opts.Mode == ModeAuto && len(summary.Suggestions) > 0 {
		applied, err := o.applier.ApplySuggestions(ctx, opts.DeckID, summary.Suggestions)
		if err != nil {
			return nil, fmt.Errorf("failed to apply suggestions: %w", err)
		}
		summary.Applied = applied
		if err := o.saveAppliedMetadata(ctx, opts.DeckID, run, applied); err != nil {
			o.logger.Warn("failed to persist suggestion metadata", zap.Error(err))
		}
	}

	if o.events != nil {
		o.events.Dispatch(events.NewTypedEvent(events.TypeSuggestionsReady, events.SuggestionsReadyEvent{
			DeckID: opts.DeckID,
			Slot:   opts.Slot,
			Count:  len(summary.Suggestions),
		}, ctx))
	}
	return summary, nil
}

// runSlot performs one slot pass: shortfall, candidates, model call, and
// quota-bounded acceptance. Every failure is absorbed into a notice so the
// run always reaches the remaining slots.
func (o *Orchestrator) runSlot(ctx context.Context, run *runState, stacks map[string]*deck.Stack, decks map[string]*deck.Deck, authoritative *deck.Deck, slot string) {
	target := run.working.Blueprint.SlotTarget(slot)
	shortfall := target - run.slotCount(slot)
	if capacity := run.working.TargetSize() - run.working.NonCommanderCount(); shortfall > capacity {
		shortfall = capacity
	}
	if shortfall <= 0 {
		o.logger.Debug("slot already satisfied", zap.String("slot", slot))
		return
	}

	effectiveType := slot
	fallback := false
	candidates := deck.BuildCandidates(stacks, decks, slot, authoritative.CommanderColors(), run.pending, authoritative.DeckID)
	if len(candidates) == 0 && creatureFallbackSlots[slot] {
		effectiveType = "Creature"
		fallback = true
		candidates = deck.BuildCandidates(stacks, decks, effectiveType, authoritative.CommanderColors(), run.pending, authoritative.DeckID)
	}
	if len(candidates) == 0 {
		run.notice(fmt.Sprintf("No available candidates for the %s slot.", slot))
		return
	}

	req := buildRequest(run.working, slot, effectiveType, shortfall, candidates)
	resp, err := o.model.Suggest(ctx, req)
	if err != nil {
		if errors.Is(err, llm.ErrBlocked) {
			run.notice(fmt.Sprintf("The model declined the %s request; slot skipped.", slot))
		} else {
			run.notice(fmt.Sprintf("Suggestions for the %s slot failed: %v", slot, err))
		}
		o.logger.Warn("slot pass failed", zap.String("slot", slot), zap.Error(err))
		return
	}

	accepted := 0
	nonBasicThisPass := make(map[string]struct{})
	for _, ms := range resp.Suggestions {
		if accepted >= shortfall {
			break
		}
		unitID, ok := resolveUnitID(ms.UnitID, candidates)
		if !ok {
			o.logger.Debug("dropping unresolvable suggestion",
				zap.String("slot", slot), zap.String("unit_id", ms.UnitID))
			continue
		}
		candidate := candidates[unitID]

		if !candidate.IsBasicLand() {
			if _, dup := nonBasicThisPass[unitID]; dup {
				continue
			}
			nonBasicThisPass[unitID] = struct{}{}
		}
		if _, inDeck := authoritative.Cards[unitID]; inDeck && !candidate.IsBasicLand() {
			run.notice(fmt.Sprintf("%s is already in the deck.", candidate.Name))
			continue
		}

		// Every copy counts against the slot quota, whatever count the
		// model chose to return.
		count := ms.Count
		if count < 1 {
			count = 1
		}
		if remaining := shortfall - accepted; count > remaining {
			count = remaining
		}
		run.accept(deck.Suggestion{
			UnitID:     unitID,
			Name:       candidate.Name,
			TypeLine:   candidate.TypeLine,
			Rating:     ms.Rating,
			Reason:     strings.TrimSpace(ms.Reason),
			SourceType: effectiveType,
			SlotType:   slot,
			Count:      count,
			Fallback:   fallback,
		})
		accepted += count
	}
	o.logger.Debug("slot pass accepted suggestions",
		zap.String("slot", slot),
		zap.String("effective_type", effectiveType),
		zap.Int("accepted", accepted),
		zap.Int("shortfall", shortfall))
}

// fillBasics appends the arithmetic basic-land suggestions for whatever
// land shortfall remains after the slot passes.
func (o *Orchestrator) fillBasics(run *runState, stacks map[string]*deck.Stack, authoritative *deck.Deck) {
	target := o.landTarget
	if authoritative.TargetSize() != 99 && target == DefaultLandTarget {
		target = DefaultLandTargetSixty
	}
	if bp := authoritative.Blueprint; bp != nil && bp.LandTarget > 0 {
		target = bp.LandTarget
	}
	for _, s := range autoFillBasics(run.working, stacks, target) {
		run.accept(s)
	}
}

// SaveMetadata persists approved suggestion metadata onto the deck document
// so ratings and reasons survive a reload.
func (o *Orchestrator) SaveMetadata(ctx context.Context, deckID string, metas []deck.SuggestionMeta) error {
	values := make([]any, 0, len(metas))
	for _, m := range metas {
		values = append(values, map[string]any{
			"firestoreId": m.UnitID,
			"rating":      m.Rating,
			"reason":      m.Reason,
			"sourceType":  m.SourceType,
			"slotType":    m.SlotType,
		})
	}
	if err := o.store.Update(ctx, store.Decks, deckID, map[string]any{"aiSuggestions": values}); err != nil {
		return fmt.Errorf("failed to save suggestion metadata: %w", err)
	}
	if d := o.state.Deck(deckID); d != nil {
		d.Suggestions = append([]deck.SuggestionMeta(nil), metas...)
		o.state.PutDeck(d)
	}
	return nil
}

// saveAppliedMetadata joins the commit mappings back to the accepted
// suggestions so the persisted metadata carries the new unit ids.
func (o *Orchestrator) saveAppliedMetadata(ctx context.Context, deckID string, run *runState, applied *assign.Result) error {
	bySource := make(map[string]deck.Suggestion)
	byName := make(map[string]deck.Suggestion)
	for _, s := range run.ordered() {
		if s.UnitID != "" {
			bySource[s.UnitID] = s
		} else {
			byName[s.Name] = s
		}
	}

	metas := make([]deck.SuggestionMeta, 0, len(applied.Committed))
	for _, m := range applied.Committed {
		s, ok := bySource[m.SourceID]
		if !ok {
			s, ok = byName[m.Name]
		}
		if !ok {
			continue
		}
		metas = append(metas, deck.SuggestionMeta{
			UnitID:     m.NewUnitID,
			Rating:     s.Rating,
			Reason:     s.Reason,
			SourceType: s.SourceType,
			SlotType:   s.SlotType,
		})
	}
	if len(metas) == 0 {
		return nil
	}
	return o.SaveMetadata(ctx, deckID, metas)
}

func (o *Orchestrator) toast(level, message string) {
	if o.events != nil {
		o.events.Toast(level, message)
	}
}

// runState carries one run's working snapshot, the aggregate suggestion
// map, and the pending set candidate building excludes against.
type runState struct {
	working *deck.Deck
	pending map[string]struct{}

	byID  map[string]deck.Suggestion
	order []string

	notices []string
}

func newRunState(authoritative *deck.Deck, seed []deck.Suggestion) *runState {
	run := &runState{
		working: authoritative.Clone(),
		pending: make(map[string]struct{}),
		byID:    make(map[string]deck.Suggestion),
	}
	if run.working.Cards == nil {
		run.working.Cards = make(map[string]deck.DeckCard)
	}
	for _, s := range seed {
		run.accept(s)
	}
	return run
}

// accept merges a suggestion into the aggregate map (later entries for the
// same unit overwrite earlier metadata) and into the working snapshot used
// by later slots' shortfall and exclusion checks.
func (run *runState) accept(s deck.Suggestion) {
	if s.Count < 1 {
		s.Count = 1
	}
	key := s.UnitID
	if key == "" {
		key = "virtual:" + s.Name
	}
	if _, seen := run.byID[key]; !seen {
		run.order = append(run.order, key)
	}
	run.byID[key] = s

	if s.UnitID != "" {
		run.pending[s.UnitID] = struct{}{}
	}
	if existing, ok := run.working.Cards[key]; ok {
		existing.Count = s.Count
		run.working.Cards[key] = existing
	} else {
		run.working.Cards[key] = deck.DeckCard{
			Count:    s.Count,
			Name:     s.Name,
			TypeLine: s.TypeLine,
			SlotType: s.SlotType,
		}
	}
}

// ordered returns the aggregate suggestions in acceptance order.
func (run *runState) ordered() []deck.Suggestion {
	out := make([]deck.Suggestion, 0, len(run.order))
	for _, key := range run.order {
		out = append(out, run.byID[key])
	}
	return out
}

// slotCount totals the working deck's copies for one slot, trusting the
// recorded slot type and falling back to the type line.
func (run *runState) slotCount(slot string) int {
	total := 0
	for _, dc := range run.working.Cards {
		if dc.SlotType != "" {
			if dc.SlotType == slot {
				total += dc.Count
			}
			continue
		}
		if strings.Contains(dc.TypeLine, slot) {
			total += dc.Count
		}
	}
	return total
}

func (run *runState) notice(msg string) {
	run.notices = append(run.notices, msg)
}
