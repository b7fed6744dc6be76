package sched

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain/model"
)

// fakeSessionUC counts which paths the debouncer takes.
type fakeSessionUC struct {
	verifies  int64
	validates int64
}

func (f *fakeSessionUC) Activate(ctx context.Context, user *model.User) error { return nil }
func (f *fakeSessionUC) SignOut(ctx context.Context) error                    { return nil }

func (f *fakeSessionUC) ValidateTick(ctx context.Context) error {
	atomic.AddInt64(&f.validates, 1)
	return nil
}

func (f *fakeSessionUC) HandleRemoteDeactivation(ctx context.Context, sessionID string) {}

func (f *fakeSessionUC) VerifyNullSession(ctx context.Context) error {
	atomic.AddInt64(&f.verifies, 1)
	return nil
}

func (f *fakeSessionUC) verified() int64 { return atomic.LoadInt64(&f.verifies) }

func TestDebouncerSettledNullTriggersOneVerify(t *testing.T) {
	logger := zerolog.Nop()
	uc := &fakeSessionUC{}
	d := NewAuthDebouncer(20*time.Millisecond, uc, &logger)
	defer d.Stop()

	d.Observe(context.Background(), false)
	time.Sleep(100 * time.Millisecond)

	if got := uc.verified(); got != 1 {
		t.Fatalf("verifies = %d, want 1", got)
	}
}

func TestDebouncerBurstCollapsesToLastObservation(t *testing.T) {
	logger := zerolog.Nop()
	uc := &fakeSessionUC{}
	d := NewAuthDebouncer(20*time.Millisecond, uc, &logger)
	defer d.Stop()

	// A sign-in burst: transient null followed by a live session inside the
	// window. The null must never reach the store.
	d.Observe(context.Background(), false)
	time.Sleep(5 * time.Millisecond)
	d.Observe(context.Background(), true)
	time.Sleep(100 * time.Millisecond)

	if got := uc.verified(); got != 0 {
		t.Fatalf("verifies = %d, want 0 after the burst settled non-null", got)
	}
}

func TestDebouncerRestartsWindowPerObservation(t *testing.T) {
	logger := zerolog.Nop()
	uc := &fakeSessionUC{}
	d := NewAuthDebouncer(50*time.Millisecond, uc, &logger)
	defer d.Stop()

	// Keep observing inside the window; nothing may settle until the
	// stream goes quiet.
	for i := 0; i < 4; i++ {
		d.Observe(context.Background(), false)
		time.Sleep(20 * time.Millisecond)
	}
	if got := uc.verified(); got != 0 {
		t.Fatalf("verifies = %d while observations kept arriving, want 0", got)
	}

	time.Sleep(150 * time.Millisecond)
	if got := uc.verified(); got != 1 {
		t.Fatalf("verifies = %d after the stream went quiet, want 1", got)
	}
}

func TestDebouncerStopCancelsPendingSettle(t *testing.T) {
	logger := zerolog.Nop()
	uc := &fakeSessionUC{}
	d := NewAuthDebouncer(20*time.Millisecond, uc, &logger)

	d.Observe(context.Background(), false)
	d.Stop()
	time.Sleep(100 * time.Millisecond)

	if got := uc.verified(); got != 0 {
		t.Fatalf("verifies = %d after Stop, want 0", got)
	}
}
