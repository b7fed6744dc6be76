package orchestrator

import (
	"strconv"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
)

func newTestRegistry(dev bool) *Registry {
	logger := zerolog.Nop()
	return NewRegistry(dev, &logger)
}

func delivery(jobID string, src model.DeliverySource) model.Delivery {
	return model.Delivery{
		JobID:  jobID,
		Status: model.JobStatusDone,
		Result: model.AnalysisResult{Kind: model.ResultKindText, Text: "ok"},
		Source: src,
	}
}

func TestRegistryFiresExactlyOnceUnderConcurrentDelivery(t *testing.T) {
	reg := newTestRegistry(true)

	var fired int64
	if err := reg.Register("job-1", func(d model.Delivery) {
		atomic.AddInt64(&fired, 1)
	}); err != nil {
		t.Fatalf("register: %v", err)
	}

	var wg sync.WaitGroup
	var delivered int64
	sources := []model.DeliverySource{model.SourcePush, model.SourcePoll, model.SourcePush, model.SourcePoll}
	for _, src := range sources {
		wg.Add(1)
		go func(src model.DeliverySource) {
			defer wg.Done()
			if reg.Deliver(delivery("job-1", src)) {
				atomic.AddInt64(&delivered, 1)
			}
		}(src)
	}
	wg.Wait()

	if got := atomic.LoadInt64(&fired); got != 1 {
		t.Fatalf("handler fired %d times, want 1", got)
	}
	if got := atomic.LoadInt64(&delivered); got != 1 {
		t.Fatalf("%d Deliver calls reported success, want 1", got)
	}
}

func TestRegistryDuplicateRegistration(t *testing.T) {
	dev := newTestRegistry(true)
	if err := dev.Register("job-1", func(model.Delivery) {}); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := dev.Register("job-1", func(model.Delivery) {}); err != domain.ErrDuplicateRegistration {
		t.Fatalf("dev duplicate register: got %v, want ErrDuplicateRegistration", err)
	}

	prod := newTestRegistry(false)
	var first, second bool
	if err := prod.Register("job-2", func(model.Delivery) { first = true }); err != nil {
		t.Fatalf("first register: %v", err)
	}
	if err := prod.Register("job-2", func(model.Delivery) { second = true }); err != nil {
		t.Fatalf("prod duplicate register: got %v, want nil", err)
	}
	prod.Deliver(delivery("job-2", model.SourcePush))
	if !first || second {
		t.Fatalf("prod duplicate stole the delivery: first=%v second=%v", first, second)
	}
}

func TestRegistryDropsDeliveryAfterUnregister(t *testing.T) {
	reg := newTestRegistry(true)

	var fired, cancelled bool
	if err := reg.Register("job-1", func(model.Delivery) { fired = true }); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.BindCancel("job-1", func() { cancelled = true })
	reg.Unregister("job-1")

	if !cancelled {
		t.Fatal("unregister did not stop the bound timers")
	}
	if reg.Deliver(delivery("job-1", model.SourcePush)) {
		t.Fatal("delivery after unregister reported success")
	}
	if fired {
		t.Fatal("handler fired after unregister")
	}
}

func TestRegistryUnregisterReportsLiveRemoval(t *testing.T) {
	reg := newTestRegistry(true)

	if err := reg.Register("job-1", func(model.Delivery) {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.Unregister("job-1") {
		t.Fatal("unregister of a live registration reported false")
	}
	if reg.Unregister("job-1") {
		t.Fatal("second unregister reported a removal")
	}

	// After a fire the registration is gone; a teardown arriving later must
	// learn it was not the one that removed it.
	if err := reg.Register("job-2", func(model.Delivery) {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Deliver(delivery("job-2", model.SourcePush))
	if reg.Unregister("job-2") {
		t.Fatal("unregister after fire reported a live removal")
	}
}

func TestRegistrySuppressesDuplicateAfterFire(t *testing.T) {
	reg := newTestRegistry(true)

	var fired int
	if err := reg.Register("job-1", func(model.Delivery) { fired++ }); err != nil {
		t.Fatalf("register: %v", err)
	}
	if !reg.Deliver(delivery("job-1", model.SourcePush)) {
		t.Fatal("first delivery did not fire")
	}
	if reg.Deliver(delivery("job-1", model.SourcePoll)) {
		t.Fatal("second delivery fired again")
	}
	if fired != 1 {
		t.Fatalf("handler fired %d times, want 1", fired)
	}
}

func TestRegistryBindCancelAfterFire(t *testing.T) {
	reg := newTestRegistry(true)

	if err := reg.Register("job-1", func(model.Delivery) {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.Deliver(delivery("job-1", model.SourcePush))

	// The poller binds its stop function after the push already fired; the
	// timers must be stopped on the spot.
	var cancelled bool
	reg.BindCancel("job-1", func() { cancelled = true })
	if !cancelled {
		t.Fatal("late BindCancel did not stop the timers")
	}
}

func TestRegistryCancelRunsOnFire(t *testing.T) {
	reg := newTestRegistry(true)

	var cancelled bool
	if err := reg.Register("job-1", func(model.Delivery) {}); err != nil {
		t.Fatalf("register: %v", err)
	}
	reg.BindCancel("job-1", func() { cancelled = true })
	reg.Deliver(delivery("job-1", model.SourcePush))
	if !cancelled {
		t.Fatal("fire did not stop the bound timers")
	}
}

func TestRegistryFiredMemoryIsBounded(t *testing.T) {
	reg := newTestRegistry(true)

	for i := 0; i < firedCap+10; i++ {
		id := "job-" + strconv.Itoa(i)
		if err := reg.Register(id, func(model.Delivery) {}); err != nil {
			t.Fatalf("register %s: %v", id, err)
		}
		reg.Deliver(delivery(id, model.SourcePush))
	}
	reg.mu.Lock()
	defer reg.mu.Unlock()
	if len(reg.fired) > firedCap {
		t.Fatalf("fired map grew to %d, cap is %d", len(reg.fired), firedCap)
	}
}
