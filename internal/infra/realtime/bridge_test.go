package realtime

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/infra/orchestrator"
	"trading-research-core/internal/usecase"
)

type fakeStream struct {
	mu sync.Mutex
	ch chan adapter.ChangeEvent
}

func (f *fakeStream) Subscribe(ctx context.Context, userID string) (<-chan adapter.ChangeEvent, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch = make(chan adapter.ChangeEvent, 16)
	return f.ch, nil
}

func (f *fakeStream) send(ev adapter.ChangeEvent) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ch <- ev
}

type recordingSessionUC struct {
	mu           sync.Mutex
	deactivated  []string
	validateErr  error
	nullVerified int
}

func (r *recordingSessionUC) Activate(ctx context.Context, user *model.User) error { return nil }
func (r *recordingSessionUC) SignOut(ctx context.Context) error                    { return nil }
func (r *recordingSessionUC) ValidateTick(ctx context.Context) error               { return r.validateErr }

func (r *recordingSessionUC) HandleRemoteDeactivation(ctx context.Context, sessionID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.deactivated = append(r.deactivated, sessionID)
}

func (r *recordingSessionUC) VerifyNullSession(ctx context.Context) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nullVerified++
	return nil
}

func (r *recordingSessionUC) deactivations() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.deactivated))
	copy(out, r.deactivated)
	return out
}

type bridgeFixture struct {
	stream *fakeStream
	reg    *orchestrator.Registry
	sess   *recordingSessionUC
	auth   *usecase.AuthState
	cancel context.CancelFunc
}

func newBridgeFixture(t *testing.T) *bridgeFixture {
	t.Helper()
	logger := zerolog.Nop()

	f := &bridgeFixture{
		stream: &fakeStream{},
		reg:    orchestrator.NewRegistry(true, &logger),
		sess:   &recordingSessionUC{},
		auth:   usecase.NewAuthState(),
	}
	f.auth.Init(model.NewUser("u-1", "u1@example.com", "U One", model.PlanPro), "u-1:device-1")

	ctx, cancel := context.WithCancel(context.Background())
	f.cancel = cancel
	t.Cleanup(cancel)

	b := NewBridge(f.stream, f.reg, f.sess, f.auth, &logger)
	go func() { _ = b.Run(ctx) }()

	// Wait for the subscription before publishing into it.
	deadline := time.Now().Add(time.Second)
	for {
		f.stream.mu.Lock()
		ready := f.stream.ch != nil
		f.stream.mu.Unlock()
		if ready {
			return f
		}
		if time.Now().After(deadline) {
			t.Fatal("bridge never subscribed")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestBridgeDeliversTerminalJobEvents(t *testing.T) {
	f := newBridgeFixture(t)

	got := make(chan model.Delivery, 1)
	if err := f.reg.Register("job-1", func(d model.Delivery) { got <- d }); err != nil {
		t.Fatalf("register: %v", err)
	}

	f.stream.send(adapter.ChangeEvent{
		Kind:    adapter.EventKindJob,
		UserID:  "u-1",
		JobID:   "job-1",
		Status:  model.JobStatusDone,
		Payload: json.RawMessage(`{"text":"pushed result"}`),
		At:      time.Now(),
	})

	select {
	case d := <-got:
		if d.Source != model.SourcePush {
			t.Fatalf("source = %s, want push", d.Source)
		}
		if d.Result.Kind != model.ResultKindText || d.Result.Text != "pushed result" {
			t.Fatalf("unexpected result: %+v", d.Result)
		}
	case <-time.After(time.Second):
		t.Fatal("no delivery arrived")
	}
}

func TestBridgeIgnoresProgressEvents(t *testing.T) {
	f := newBridgeFixture(t)

	var fired bool
	if err := f.reg.Register("job-1", func(model.Delivery) { fired = true }); err != nil {
		t.Fatalf("register: %v", err)
	}

	f.stream.send(adapter.ChangeEvent{
		Kind:   adapter.EventKindJob,
		UserID: "u-1",
		JobID:  "job-1",
		Status: model.JobStatusRunning,
		At:     time.Now(),
	})

	time.Sleep(100 * time.Millisecond)
	if fired {
		t.Fatal("progress event fired the handler")
	}
	if !f.reg.Registered("job-1") {
		t.Fatal("registration consumed by a progress event")
	}
}

func TestBridgeRoutesSessionDeactivation(t *testing.T) {
	f := newBridgeFixture(t)

	f.stream.send(adapter.ChangeEvent{
		Kind:      adapter.EventKindSession,
		UserID:    "u-1",
		SessionID: "u-1:device-1",
		IsActive:  false,
		At:        time.Now(),
	})

	deadline := time.Now().Add(time.Second)
	for {
		if got := f.sess.deactivations(); len(got) == 1 && got[0] == "u-1:device-1" {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("deactivation not routed; got %v", f.sess.deactivations())
		}
		time.Sleep(5 * time.Millisecond)
	}
}
