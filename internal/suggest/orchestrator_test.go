package suggest

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"go.uber.org/zap"

	"deckforge/internal/assign"
	"deckforge/internal/deck"
	"deckforge/internal/events"
	"deckforge/internal/llm"
	"deckforge/internal/store"
)

type fakeModel struct {
	calls []llm.SuggestionRequest
	fn    func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error)
}

func (f *fakeModel) Suggest(_ context.Context, req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
	f.calls = append(f.calls, req)
	if f.fn == nil {
		return &llm.SuggestionResponse{}, nil
	}
	return f.fn(req)
}

type fakeApplier struct {
	got []deck.Suggestion
}

func (f *fakeApplier) ApplySuggestions(_ context.Context, _ string, suggestions []deck.Suggestion) (*assign.Result, error) {
	f.got = append([]deck.Suggestion(nil), suggestions...)
	res := &assign.Result{}
	for _, s := range suggestions {
		res.Committed = append(res.Committed, assign.Mapping{
			SourceID:  s.UnitID,
			NewUnitID: "new-" + s.Name,
			Name:      s.Name,
			TypeLine:  s.TypeLine,
			Count:     s.Count,
		})
	}
	return res, nil
}

func creatureStack(unitID, name string) *deck.Stack {
	return &deck.Stack{
		UnitID: unitID,
		Count:  1,
		Card: deck.Card{
			Name:          name,
			TypeLine:      "Creature — Elf",
			ManaCost:      "{1}{G}",
			ColorIdentity: []string{"G"},
		},
	}
}

func greenDeck(deckID string, bp *deck.Blueprint) *deck.Deck {
	return &deck.Deck{
		DeckID:    deckID,
		Name:      "Test Deck",
		Commander: &deck.Commander{UnitID: "cmd", Name: "Ezuri", ColorIdentity: []string{"G"}},
		Cards:     make(map[string]deck.DeckCard),
		Blueprint: bp,
	}
}

func newTestOrchestrator(t *testing.T, model llm.Client, stacks []*deck.Stack, d *deck.Deck) (*Orchestrator, *deck.State, *fakeApplier, store.Store) {
	t.Helper()
	state := deck.NewState()
	stackMap := make(map[string]*deck.Stack)
	for _, s := range stacks {
		stackMap[s.UnitID] = s
	}
	state.Load(stackMap, map[string]*deck.Deck{d.DeckID: d})

	st := store.NewMemoryStore()
	if err := st.Set(context.Background(), store.Decks, d.DeckID, deck.DeckToDoc(d), false); err != nil {
		t.Fatalf("failed to seed deck doc: %v", err)
	}

	applier := &fakeApplier{}
	o := NewOrchestrator(state, st, model, applier, events.NewDispatcher(zap.NewNop()), zap.NewNop())
	return o, state, applier, st
}

func TestRunRejectsConcurrentRun(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, &fakeModel{}, nil, greenDeck("d1", nil))
	o.inFlight.Store(true)
	if _, err := o.Run(context.Background(), RunOptions{DeckID: "d1"}); !errors.Is(err, ErrRunInFlight) {
		t.Fatalf("expected ErrRunInFlight, got %v", err)
	}
}

func TestRunWithoutModelDegrades(t *testing.T) {
	o, _, _, _ := newTestOrchestrator(t, nil, nil, greenDeck("d1", nil))
	o.model = nil
	if _, err := o.Run(context.Background(), RunOptions{DeckID: "d1"}); !errors.Is(err, llm.ErrUnavailable) {
		t.Fatalf("expected ErrUnavailable, got %v", err)
	}
	if o.inFlight.Load() {
		t.Error("in-flight flag leaked")
	}
}

func TestQuotaEnforcement(t *testing.T) {
	stacks := make([]*deck.Stack, 0, 5)
	for i := 0; i < 5; i++ {
		stacks = append(stacks, creatureStack(fmt.Sprintf("u%d", i), fmt.Sprintf("Elf %d", i)))
	}
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		resp := &llm.SuggestionResponse{}
		for _, c := range req.Candidates {
			resp.Suggestions = append(resp.Suggestions, llm.ModelSuggestion{
				UnitID: c.UnitID, Rating: 8, Reason: "Fits the theme.",
			})
		}
		return resp, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 2}})
	o, _, _, _ := newTestOrchestrator(t, model, stacks, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Suggestions) != 2 {
		t.Fatalf("quota violated: accepted %d, want 2", len(summary.Suggestions))
	}
}

func TestSatisfiedSlotSkipsModelCall(t *testing.T) {
	model := &fakeModel{}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Land": 10}, LandTarget: 10})
	d.Cards["lands"] = deck.DeckCard{Count: 10, Name: "Forest", TypeLine: "Basic Land — Forest", SlotType: "Land"}
	o, _, _, _ := newTestOrchestrator(t, model, nil, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Land", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(model.calls) != 0 {
		t.Errorf("satisfied slot still issued %d model calls", len(model.calls))
	}
	if len(summary.Suggestions) != 0 {
		t.Errorf("unexpected suggestions: %+v", summary.Suggestions)
	}
}

func TestSuffixedIDRepaired(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: "abc_1", Rating: 9, Reason: "Great card."},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 1}})
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("abc", "Elvish Mystic")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Suggestions) != 1 || summary.Suggestions[0].UnitID != "abc" {
		t.Fatalf("suffixed id not repaired: %+v", summary.Suggestions)
	}
}

func TestUnresolvableIDDropped(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: "made-up-id", Rating: 9, Reason: "Hallucinated."},
			{UnitID: "abc", Rating: 8, Reason: "Real."},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 2}})
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("abc", "Elvish Mystic")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Suggestions) != 1 || summary.Suggestions[0].UnitID != "abc" {
		t.Fatalf("expected only the real candidate: %+v", summary.Suggestions)
	}
}

func TestCreatureFallbackTagging(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: req.Candidates[0].UnitID, Rating: 7, Reason: "Serves the role."},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Planeswalker": 1}})
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("u1", "Elvish Mystic")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Planeswalker", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Suggestions) != 1 {
		t.Fatalf("fallback produced no suggestions: %+v", summary)
	}
	s := summary.Suggestions[0]
	if s.SlotType != "Planeswalker" || s.SourceType != "Creature" || !s.Fallback {
		t.Errorf("fallback tags wrong: %+v", s)
	}
}

func TestNoCandidatesRecordsNotice(t *testing.T) {
	model := &fakeModel{}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Instant": 3}})
	o, _, _, _ := newTestOrchestrator(t, model, nil, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Instant", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(model.calls) != 0 {
		t.Error("model called with empty candidate pool")
	}
	if len(summary.Notices) == 0 {
		t.Error("no-candidates outcome not recorded")
	}
}

func TestBlockedSlotSkipped(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return nil, fmt.Errorf("%w: SAFETY", llm.ErrBlocked)
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 1}})
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("u1", "Elvish Mystic")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("a blocked slot must not fail the run: %v", err)
	}
	if len(summary.Suggestions) != 0 || len(summary.Notices) == 0 {
		t.Errorf("blocked slot handling wrong: %+v", summary)
	}
}

func TestAlreadyInDeckRejectedWithNotice(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: "u1", Rating: 9, Reason: "Staple."},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 5}})
	d.Cards["u1"] = deck.DeckCard{Count: 1, Name: "Elvish Mystic", TypeLine: "Creature — Elf"}
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("u1", "Elvish Mystic")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Suggestions) != 0 {
		t.Errorf("duplicate accepted: %+v", summary.Suggestions)
	}
	if len(summary.Notices) == 0 {
		t.Error("duplicate rejection must be surfaced, not silent")
	}
}

func TestSeedCountsTowardShortfall(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		resp := &llm.SuggestionResponse{}
		for _, c := range req.Candidates {
			resp.Suggestions = append(resp.Suggestions, llm.ModelSuggestion{UnitID: c.UnitID, Rating: 8, Reason: "Good."})
		}
		return resp, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 2}})
	stacks := []*deck.Stack{
		creatureStack("u1", "Elvish Mystic"),
		creatureStack("u2", "Llanowar Elves"),
		creatureStack("u3", "Fyndhorn Elves"),
	}
	o, _, _, _ := newTestOrchestrator(t, model, stacks, d)

	seed := []deck.Suggestion{{
		UnitID: "u1", Name: "Elvish Mystic", TypeLine: "Creature — Elf",
		SourceType: "Creature", SlotType: "Creature", Count: 1,
	}}
	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview, Seed: seed})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	// The seed occupies one of the two slots, and its unit must not be
	// offered to the model again.
	if len(summary.Suggestions) != 2 {
		t.Fatalf("expected seed plus one new suggestion, got %+v", summary.Suggestions)
	}
	for _, c := range model.calls[0].Candidates {
		if c.UnitID == "u1" {
			t.Error("seeded unit re-offered as a candidate")
		}
	}
}

func TestAutoFillBasicsWithRealStack(t *testing.T) {
	forest := &deck.Stack{
		UnitID: "forest1",
		Count:  20,
		Card:   deck.Card{Name: "Forest", TypeLine: "Basic Land — Forest", ProducedMana: []string{"G"}},
	}
	d := greenDeck("d1", &deck.Blueprint{LandTarget: 5})
	d.Cards["spell"] = deck.DeckCard{Count: 1, Name: "Giant Growth", TypeLine: "Instant"}
	state := deck.NewState()
	state.Load(map[string]*deck.Stack{"forest1": forest, "spell": {
		UnitID: "spell", Count: 1,
		Card: deck.Card{Name: "Giant Growth", TypeLine: "Instant", ManaCost: "{G}", ColorIdentity: []string{"G"}},
	}}, map[string]*deck.Deck{"d1": d})

	stacks, _ := state.Snapshot()
	run := newRunState(d, nil)
	got := autoFillBasics(run.working, stacks, 5)
	if len(got) != 1 {
		t.Fatalf("expected one basic-land suggestion, got %+v", got)
	}
	s := got[0]
	if s.UnitID != "forest1" || s.Virtual {
		t.Errorf("real stack not used: %+v", s)
	}
	if s.Name != "Forest" || s.Count != 5 || s.Rating != 10 || s.SlotType != "Land" {
		t.Errorf("auto-fill fields wrong: %+v", s)
	}
	if s.Reason == "" {
		t.Error("auto-fill reason missing")
	}
}

func TestAutoFillBasicsVirtualWhenNoStack(t *testing.T) {
	d := greenDeck("d1", nil)
	d.Cards["spell"] = deck.DeckCard{Count: 1, Name: "Giant Growth", TypeLine: "Instant"}
	stacks := map[string]*deck.Stack{"spell": {
		UnitID: "spell", Count: 1,
		Card: deck.Card{Name: "Giant Growth", TypeLine: "Instant", ManaCost: "{G}", ColorIdentity: []string{"G"}},
	}}

	run := newRunState(d, nil)
	got := autoFillBasics(run.working, stacks, 3)
	if len(got) != 1 || !got[0].Virtual || got[0].Name != "Forest" || got[0].Count != 3 {
		t.Fatalf("virtual basic wrong: %+v", got)
	}
}

func TestAutoModeAppliesAndPersistsMetadata(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: "u1", Rating: 9, Reason: "Core ramp."},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 1}, LandTarget: 1})
	o, _, applier, st := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("u1", "Elvish Mystic")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModeAuto})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if summary.Applied == nil || len(applier.got) != 1 {
		t.Fatalf("auto mode did not hand suggestions to the applier: %+v", summary)
	}

	doc, err := st.Get(context.Background(), store.Decks, "d1")
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	metas, ok := doc["aiSuggestions"].([]any)
	if !ok || len(metas) != 1 {
		t.Fatalf("suggestion metadata not persisted: %v", doc["aiSuggestions"])
	}
	meta := metas[0].(map[string]any)
	if meta["firestoreId"] != "new-Elvish Mystic" || meta["reason"] != "Core ramp." {
		t.Errorf("metadata fields wrong: %v", meta)
	}
}

func TestResolveUnitID(t *testing.T) {
	candidates := map[string]*deck.Stack{
		"abc":     creatureStack("abc", "A"),
		"xyz (1)": creatureStack("xyz (1)", "X"),
	}
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{"abc", "abc", true},
		{"abc_2", "abc", true},
		{"abc-3", "abc", true},
		{"abc (4)", "abc", true},
		{"abc-copy", "abc", true},
		{"abc.5", "abc", true},
		{"xyz (1)", "xyz (1)", true},
		{"abc_x", "", false},
		{"unrelated", "", false},
	}
	for _, tt := range tests {
		got, ok := resolveUnitID(tt.in, candidates)
		if got != tt.want || ok != tt.ok {
			t.Errorf("resolveUnitID(%q) = %q, %v; want %q, %v", tt.in, got, ok, tt.want, tt.ok)
		}
	}
}

func TestQuotaCapsModelCount(t *testing.T) {
	big := creatureStack("u1", "Llanowar Elves")
	big.Count = 10
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: "u1", Rating: 9, Reason: "Ramp.", Count: 10},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 2}})
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{big}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	total := 0
	for _, s := range summary.Suggestions {
		total += s.Count
	}
	if total != 2 {
		t.Errorf("expected 2 copies within the slot quota, got %d: %+v", total, summary.Suggestions)
	}
}

func TestNonBasicOfferedOncePerPass(t *testing.T) {
	model := &fakeModel{fn: func(req llm.SuggestionRequest) (*llm.SuggestionResponse, error) {
		return &llm.SuggestionResponse{Suggestions: []llm.ModelSuggestion{
			{UnitID: "u1", Rating: 9, Reason: "First pick."},
			{UnitID: "u1", Rating: 8, Reason: "Second pick."},
		}}, nil
	}}
	d := greenDeck("d1", &deck.Blueprint{Targets: map[string]int{"Creature": 5}})
	o, _, _, _ := newTestOrchestrator(t, model, []*deck.Stack{creatureStack("u1", "Llanowar Elves")}, d)

	summary, err := o.Run(context.Background(), RunOptions{DeckID: "d1", Slot: "Creature", Mode: ModePreview})
	if err != nil {
		t.Fatalf("Run failed: %v", err)
	}
	if len(summary.Suggestions) != 1 {
		t.Fatalf("duplicate non-basic accepted twice: %+v", summary.Suggestions)
	}
	if summary.Suggestions[0].Reason != "First pick." {
		t.Errorf("wrong suggestion kept: %+v", summary.Suggestions[0])
	}
}
