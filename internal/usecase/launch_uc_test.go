package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/infra/orchestrator"
)

type launchFixture struct {
	jobs     *memJobRepo
	credits  *memCreditRepo
	service  *fakeService
	registry *orchestrator.Registry
	counter  *orchestrator.ActiveJobs
	limiter  *allowAllLimiter
	auth     *AuthState
	uc       LaunchUseCase
}

func newLaunchFixture(t *testing.T) *launchFixture {
	t.Helper()
	logger := zerolog.Nop()

	f := &launchFixture{
		jobs:     newMemJobRepo(),
		credits:  newMemCreditRepo(),
		service:  &fakeService{},
		registry: orchestrator.NewRegistry(true, &logger),
		counter:  orchestrator.NewActiveJobs(),
		limiter:  &allowAllLimiter{allow: true},
		auth:     NewAuthState(),
	}
	f.service.outcome.Accepted = true
	f.credits.grant("u-1", model.PlanPro, map[model.Feature]int{
		model.FeatureChartAnalysis:   5,
		model.FeaturePortfolioReview: 1,
	})
	f.auth.Init(model.NewUser("u-1", "u1@example.com", "U One", model.PlanPro), "u-1:device-1")

	poller := orchestrator.NewPoller(f.jobs, f.registry, orchestrator.Schedule{
		First:    time.Hour, // never fires within a test
		Second:   time.Hour,
		Steady:   time.Hour,
		Deadline: 2 * time.Hour,
	}, &logger)
	f.uc = NewLaunchUseCase(
		f.jobs, NewCreditGateway(f.credits, &logger), f.service,
		f.registry, poller, f.counter,
		f.limiter, func(u, feat string) string { return u + ":" + feat }, 10,
		f.auth, &logger,
	)
	return f
}

var testPayload = json.RawMessage(`{"symbol":"EURUSD"}`)

func TestLaunchHappyPath(t *testing.T) {
	f := newLaunchFixture(t)

	got := make(chan model.Delivery, 1)
	jobID, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(d model.Delivery) { got <- d })
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	job := f.jobs.get(jobID)
	if job == nil || job.Status != model.JobStatusQueued {
		t.Fatalf("job row after launch: %+v", job)
	}
	if got := f.credits.remaining("u-1", model.FeatureChartAnalysis); got != 4 {
		t.Fatalf("remaining = %d, want 4", got)
	}
	if !f.registry.Registered(jobID) {
		t.Fatal("handler not registered after launch")
	}
	if f.counter.Value() != 1 {
		t.Fatalf("active jobs = %d, want 1", f.counter.Value())
	}
	if f.service.dispatches() != 1 {
		t.Fatalf("dispatches = %d, want 1", f.service.dispatches())
	}

	// A push result finishes the job and releases the active-job guard.
	f.registry.Deliver(model.Delivery{
		JobID:  jobID,
		Status: model.JobStatusDone,
		Result: model.AnalysisResult{Kind: model.ResultKindText, Text: "fine"},
		Source: model.SourcePush,
	})
	d := <-got
	if d.Source != model.SourcePush || d.Status != model.JobStatusDone {
		t.Fatalf("unexpected delivery: %+v", d)
	}
	if f.counter.Value() != 0 {
		t.Fatalf("active jobs after delivery = %d, want 0", f.counter.Value())
	}
}

func TestLaunchRefusedBeforeAnyJobRowWhenExhausted(t *testing.T) {
	f := newLaunchFixture(t)
	f.credits.grant("u-1", model.PlanPro, map[model.Feature]int{model.FeatureChartAnalysis: 0})

	_, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
	if !errors.Is(err, domain.ErrCreditExhausted) {
		t.Fatalf("err = %v, want ErrCreditExhausted", err)
	}
	if f.service.dispatches() != 0 {
		t.Fatal("dispatch happened despite refused pre-check")
	}
	f.jobs.mu.Lock()
	defer f.jobs.mu.Unlock()
	if len(f.jobs.jobs) != 0 {
		t.Fatalf("%d job rows created on a refused launch, want 0", len(f.jobs.jobs))
	}
}

func TestLaunchRateLimited(t *testing.T) {
	f := newLaunchFixture(t)
	f.limiter.allow = false

	_, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
	if !errors.Is(err, domain.ErrRateLimited) {
		t.Fatalf("err = %v, want ErrRateLimited", err)
	}
	if f.service.dispatches() != 0 {
		t.Fatal("dispatch happened despite rate limit")
	}
}

func TestLaunchLimiterOutageDoesNotBlockLaunches(t *testing.T) {
	f := newLaunchFixture(t)
	f.limiter.allow = false
	f.limiter.err = errors.New("redis down")

	jobID, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
	if err != nil {
		t.Fatalf("launch during limiter outage: %v", err)
	}
	if jobID == "" {
		t.Fatal("no job id returned")
	}
}

func TestLaunchRequiresAuthentication(t *testing.T) {
	f := newLaunchFixture(t)
	f.auth.Teardown()

	_, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
	if !errors.Is(err, domain.ErrNotAuthenticated) {
		t.Fatalf("err = %v, want ErrNotAuthenticated", err)
	}
}

func TestLaunchDispatchFailureMarksJobError(t *testing.T) {
	f := newLaunchFixture(t)
	f.service.err = errors.New("upstream 503")

	_, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
	if err == nil {
		t.Fatal("launch succeeded despite dispatch failure")
	}
	if f.counter.Value() != 0 {
		t.Fatalf("active jobs = %d after failed dispatch, want 0", f.counter.Value())
	}

	f.jobs.mu.Lock()
	defer f.jobs.mu.Unlock()
	for _, j := range f.jobs.jobs {
		if j.Status != model.JobStatusError {
			t.Fatalf("job left in %s after failed dispatch, want error", j.Status)
		}
		if f.registry.Registered(j.ID) {
			t.Fatal("handler still registered after failed dispatch")
		}
	}
}

func TestLaunchEngageRefusalMarksJobError(t *testing.T) {
	f := newLaunchFixture(t)
	// Pre-check passes on the cached view, engage loses the race.
	gw := &refusingGateway{}
	logger := zerolog.Nop()
	poller := orchestrator.NewPoller(f.jobs, f.registry, orchestrator.Schedule{First: time.Hour, Second: time.Hour, Steady: time.Hour, Deadline: 2 * time.Hour}, &logger)
	uc := NewLaunchUseCase(
		f.jobs, gw, f.service, f.registry, poller, f.counter,
		nil, func(u, feat string) string { return u + ":" + feat }, 10,
		f.auth, &logger,
	)

	_, err := uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
	if !errors.Is(err, domain.ErrCreditExhausted) {
		t.Fatalf("err = %v, want ErrCreditExhausted", err)
	}
	if f.service.dispatches() != 0 {
		t.Fatal("dispatched a job whose engage was refused")
	}

	f.jobs.mu.Lock()
	defer f.jobs.mu.Unlock()
	if len(f.jobs.jobs) != 1 {
		t.Fatalf("%d job rows, want the single refused one", len(f.jobs.jobs))
	}
	for _, j := range f.jobs.jobs {
		if j.Status != model.JobStatusError {
			t.Fatalf("refused job left in %s, want error", j.Status)
		}
	}
}

func TestLaunchImmediateResultDeliversSync(t *testing.T) {
	f := newLaunchFixture(t)
	f.service.outcome = adapter.DispatchOutcome{Immediate: &model.AnalysisResult{
		Kind: model.ResultKindText,
		Text: "instant",
	}}

	got := make(chan model.Delivery, 1)
	jobID, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(d model.Delivery) { got <- d })
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	d := <-got
	if d.Source != model.SourceSync || d.Result.Text != "instant" {
		t.Fatalf("unexpected sync delivery: %+v", d)
	}
	job := f.jobs.get(jobID)
	if job == nil || job.Status != model.JobStatusDone {
		t.Fatalf("job row after sync completion: %+v", job)
	}
	if f.counter.Value() != 0 {
		t.Fatalf("active jobs = %d after sync completion, want 0", f.counter.Value())
	}
}

func TestCancelDetachesHandler(t *testing.T) {
	f := newLaunchFixture(t)

	var fired bool
	jobID, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) { fired = true })
	if err != nil {
		t.Fatalf("launch: %v", err)
	}

	f.uc.Cancel(jobID)
	if f.registry.Registered(jobID) {
		t.Fatal("handler still registered after cancel")
	}
	if f.counter.Value() != 0 {
		t.Fatalf("active jobs = %d after cancel, want 0", f.counter.Value())
	}
	if f.registry.Deliver(model.Delivery{JobID: jobID, Status: model.JobStatusDone, Source: model.SourcePush}) {
		t.Fatal("late delivery fired after cancel")
	}
	if fired {
		t.Fatal("handler ran after cancel")
	}
}

func TestCancelRacingDeliveryDecrementsGuardOnce(t *testing.T) {
	f := newLaunchFixture(t)

	// A second job stays in flight throughout; the guard must keep counting
	// it however the race on the first job resolves.
	otherID, err := f.uc.Launch(context.Background(), model.FeaturePortfolioReview, testPayload, func(model.Delivery) {})
	if err != nil {
		t.Fatalf("launch other: %v", err)
	}

	for i := 0; i < 5000; i++ {
		f.credits.grant("u-1", model.PlanPro, map[model.Feature]int{model.FeatureChartAnalysis: 1})
		jobID, err := f.uc.Launch(context.Background(), model.FeatureChartAnalysis, testPayload, func(model.Delivery) {})
		if err != nil {
			t.Fatalf("iter %d launch: %v", i, err)
		}

		start := make(chan struct{})
		var wg sync.WaitGroup
		wg.Add(2)
		go func() {
			defer wg.Done()
			<-start
			f.registry.Deliver(model.Delivery{JobID: jobID, Status: model.JobStatusDone, Source: model.SourcePush})
		}()
		go func() {
			defer wg.Done()
			<-start
			f.uc.Cancel(jobID)
		}()
		close(start)
		wg.Wait()

		// Exactly one side owns the decrement for the raced job.
		if got := f.counter.Value(); got != 1 {
			t.Fatalf("iter %d: active jobs = %d with %s still in flight, want 1", i, got, otherID)
		}
	}
}

// refusingGateway passes the pre-check but refuses every engage, modeling a
// concurrent launch that spent the last unit in between.
type refusingGateway struct{}

func (g *refusingGateway) CanLaunch(ctx context.Context, userID string, feature model.Feature) (bool, int, error) {
	return true, 1, nil
}

func (g *refusingGateway) Engage(ctx context.Context, userID string, feature model.Feature, jobID string) (bool, error) {
	return false, nil
}
