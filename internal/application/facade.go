package application

import (
	"context"
	"encoding/json"
	"fmt"

	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/infra/orchestrator"
	"trading-research-core/internal/infra/sched"
	"trading-research-core/internal/infra/worker"
	"trading-research-core/internal/usecase"
)

// DashboardFacade composes the use cases into the calls a view layer makes.
// Embedders talk to this one type instead of wiring use cases themselves.
type DashboardFacade struct {
	SessUC    usecase.SessionUseCase
	LaunchUC  usecase.LaunchUseCase
	Debouncer *sched.AuthDebouncer
	Pool      *worker.Pool
}

func NewDashboardFacade(
	sessUC usecase.SessionUseCase,
	launchUC usecase.LaunchUseCase,
	debouncer *sched.AuthDebouncer,
	pool *worker.Pool,
) *DashboardFacade {
	return &DashboardFacade{
		SessUC:    sessUC,
		LaunchUC:  launchUC,
		Debouncer: debouncer,
		Pool:      pool,
	}
}

// SignIn claims the session singleton for this device and primes local
// auth state.
func (f *DashboardFacade) SignIn(ctx context.Context, user *model.User) error {
	if f.SessUC == nil {
		return fmt.Errorf("session usecase not available")
	}
	return f.SessUC.Activate(ctx, user)
}

// SignOut is the user-initiated path; no conflict notification fires.
func (f *DashboardFacade) SignOut(ctx context.Context) error {
	if f.SessUC == nil {
		return fmt.Errorf("session usecase not available")
	}
	return f.SessUC.SignOut(ctx)
}

// ObserveAuthEvent feeds one raw auth-provider event into the debouncer.
// Views call this from their auth listener and nothing else; the debounce
// window and the store re-verify happen behind it.
func (f *DashboardFacade) ObserveAuthEvent(ctx context.Context, hasSession bool) {
	if f.Debouncer != nil {
		f.Debouncer.Observe(ctx, hasSession)
	}
}

// CanLaunch is the cheap pre-check a view uses to enable or disable a
// launch button.
func (f *DashboardFacade) CanLaunch(ctx context.Context, feature model.Feature) (bool, int, error) {
	if f.LaunchUC == nil {
		return false, 0, fmt.Errorf("launch usecase not available")
	}
	return f.LaunchUC.CanLaunch(ctx, feature)
}

// Launch dispatches one analysis and wires handler as its exactly-once
// result callback.
func (f *DashboardFacade) Launch(ctx context.Context, feature model.Feature, payload json.RawMessage, handler orchestrator.Handler) (string, error) {
	if f.LaunchUC == nil {
		return "", fmt.Errorf("launch usecase not available")
	}
	return f.LaunchUC.Launch(ctx, feature, payload, handler)
}

// LaunchBackground runs the dispatch on the worker pool so a view thread
// never blocks on the upstream call. The outcome arrives via onLaunched,
// then the result via handler as usual.
func (f *DashboardFacade) LaunchBackground(feature model.Feature, payload json.RawMessage, handler orchestrator.Handler, onLaunched func(jobID string, err error)) error {
	if f.LaunchUC == nil || f.Pool == nil {
		return fmt.Errorf("launch usecase or worker pool not available")
	}
	return f.Pool.Submit(func(ctx context.Context) error {
		jobID, err := f.LaunchUC.Launch(ctx, feature, payload, handler)
		if onLaunched != nil {
			onLaunched(jobID, err)
		}
		return err
	})
}

// CancelAnalysis detaches the handler and stops polling for the job.
func (f *DashboardFacade) CancelAnalysis(jobID string) {
	if f.LaunchUC != nil {
		f.LaunchUC.Cancel(jobID)
	}
}
