package events

import (
	"errors"
	"sync"
	"testing"

	"go.uber.org/zap"
)

type recordingObserver struct {
	mu     sync.Mutex
	name   string
	filter func(string) bool
	events []Event
	err    error
}

func (o *recordingObserver) OnEvent(event Event) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.events = append(o.events, event)
	return o.err
}

func (o *recordingObserver) GetName() string { return o.name }

func (o *recordingObserver) ShouldHandle(eventType string) bool {
	if o.filter == nil {
		return true
	}
	return o.filter(eventType)
}

func (o *recordingObserver) seen() []Event {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]Event(nil), o.events...)
}

func TestDispatchDeliversToObservers(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	a := &recordingObserver{name: "a"}
	b := &recordingObserver{name: "b"}
	d.Register(a)
	d.Register(b)

	d.Toast(ToastInfo, "hello")

	for _, obs := range []*recordingObserver{a, b} {
		events := obs.seen()
		if len(events) != 1 {
			t.Fatalf("observer %s saw %d events, want 1", obs.name, len(events))
		}
		toast, ok := GetTypedData[ToastEvent](events[0])
		if !ok || toast.Message != "hello" || toast.Level != ToastInfo {
			t.Errorf("observer %s got unexpected payload: %+v", obs.name, events[0].TypedData)
		}
	}
}

func TestDispatchRespectsFilter(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	toastsOnly := &recordingObserver{name: "toasts", filter: func(et string) bool {
		return et == TypeToast
	}}
	d.Register(toastsOnly)

	d.Render("d1")
	d.Toast(ToastWarning, "careful")

	events := toastsOnly.seen()
	if len(events) != 1 || events[0].Type != TypeToast {
		t.Fatalf("filter not applied: %+v", events)
	}
}

func TestDispatchContinuesPastFailingObserver(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	failing := &recordingObserver{name: "failing", err: errors.New("boom")}
	healthy := &recordingObserver{name: "healthy"}
	d.Register(failing)
	d.Register(healthy)

	d.Render("d1")

	if len(healthy.seen()) != 1 {
		t.Fatal("delivery stopped at failing observer")
	}
}

func TestUnregister(t *testing.T) {
	d := NewDispatcher(zap.NewNop())
	obs := &recordingObserver{name: "a"}
	d.Register(obs)
	if d.ObserverCount() != 1 {
		t.Fatalf("expected 1 observer, got %d", d.ObserverCount())
	}
	d.Unregister(obs)
	if d.ObserverCount() != 0 {
		t.Fatalf("expected 0 observers, got %d", d.ObserverCount())
	}

	d.Toast(ToastError, "gone")
	if len(obs.seen()) != 0 {
		t.Error("unregistered observer still received events")
	}
}
