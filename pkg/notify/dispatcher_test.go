package notify

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"
)

type fakeChannel struct {
	name   string
	events []string
	calls  atomic.Int64
	fail   bool
}

func (f *fakeChannel) Name() string     { return f.name }
func (f *fakeChannel) Events() []string { return f.events }
func (f *fakeChannel) Send(ctx context.Context, event Event) error {
	f.calls.Add(1)
	if f.fail {
		return errors.New("boom")
	}
	return nil
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(testDiscard{}, nil))
}

type testDiscard struct{}

func (testDiscard) Write(p []byte) (int, error) { return len(p), nil }

func TestDispatcherOnlyCallsMatchingChannels(t *testing.T) {
	reg := NewRegistry()
	rollback := &fakeChannel{name: "a", events: []string{"rollback"}}
	all := &fakeChannel{name: "b", events: []string{"all"}}
	other := &fakeChannel{name: "c", events: []string{"stage_transition"}}
	reg.Register(rollback)
	reg.Register(all)
	reg.Register(other)

	d := NewDispatcher(reg, discardLogger())
	d.Send(context.Background(), Event{Kind: "rollback", Severity: SeverityCritical, Timestamp: time.Now()})

	if rollback.calls.Load() != 1 {
		t.Errorf("expected rollback channel to be called once, got %d", rollback.calls.Load())
	}
	if all.calls.Load() != 1 {
		t.Errorf("expected wildcard channel to be called once, got %d", all.calls.Load())
	}
	if other.calls.Load() != 0 {
		t.Errorf("expected unrelated channel not to be called, got %d", other.calls.Load())
	}
}

func TestDispatcherSurvivesChannelFailure(t *testing.T) {
	reg := NewRegistry()
	failing := &fakeChannel{name: "failing", events: []string{"all"}, fail: true}
	ok := &fakeChannel{name: "ok", events: []string{"all"}}
	reg.Register(failing)
	reg.Register(ok)

	d := NewDispatcher(reg, discardLogger())
	done := make(chan struct{})
	go func() {
		d.Send(context.Background(), Event{Kind: "start"})
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Send did not return; a channel failure must not block or propagate")
	}

	if ok.calls.Load() != 1 {
		t.Errorf("expected the healthy channel to still be called, got %d", ok.calls.Load())
	}
}
