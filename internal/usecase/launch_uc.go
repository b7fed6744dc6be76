package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/oklog/ulid/v2"
	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/logging"
	"trading-research-core/internal/infra/metrics"
	"trading-research-core/internal/infra/orchestrator"
)

// Compile-time check
var _ LaunchUseCase = (*launchUC)(nil)

// LaunchUseCase drives the whole dispatch path for one analysis request:
// rate limit, credit pre-check, job row, credit engage, handler
// registration, dispatch, and the polling fallback.
type LaunchUseCase interface {
	CanLaunch(ctx context.Context, feature model.Feature) (bool, int, error)
	Launch(ctx context.Context, feature model.Feature, payload json.RawMessage, handler orchestrator.Handler) (jobID string, err error)
	// Cancel detaches the handler and stops the job's timers. The job row
	// is left to the service; a late result is dropped by the registry.
	Cancel(jobID string)
}

// rateLimiter is the slice of the redis limiter this use case needs.
type rateLimiter interface {
	Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error)
}

type launchUC struct {
	jobs     repository.JobRepository
	credits  CreditGateway
	service  adapter.AnalysisServiceAdapter
	registry *orchestrator.Registry
	poller   *orchestrator.Poller
	counter  *orchestrator.ActiveJobs
	limiter  rateLimiter
	limitKey func(userID, feature string) string
	limit    int
	auth     *AuthState
	log      *zerolog.Logger
}

func NewLaunchUseCase(
	jobs repository.JobRepository,
	credits CreditGateway,
	service adapter.AnalysisServiceAdapter,
	registry *orchestrator.Registry,
	poller *orchestrator.Poller,
	counter *orchestrator.ActiveJobs,
	limiter rateLimiter,
	limitKey func(userID, feature string) string,
	limitPerMinute int,
	auth *AuthState,
	logger *zerolog.Logger,
) *launchUC {
	ll := logger.With().Str("component", "LaunchUC").Logger()
	return &launchUC{
		jobs:     jobs,
		credits:  credits,
		service:  service,
		registry: registry,
		poller:   poller,
		counter:  counter,
		limiter:  limiter,
		limitKey: limitKey,
		limit:    limitPerMinute,
		auth:     auth,
		log:      &ll,
	}
}

func (u *launchUC) CanLaunch(ctx context.Context, feature model.Feature) (bool, int, error) {
	userID := u.auth.UserID()
	if userID == "" {
		return false, 0, domain.ErrNotAuthenticated
	}
	if !feature.Valid() {
		return false, 0, domain.ErrInvalidArgument
	}
	return u.credits.CanLaunch(ctx, userID, feature)
}

func (u *launchUC) Launch(ctx context.Context, feature model.Feature, payload json.RawMessage, handler orchestrator.Handler) (string, error) {
	userID := u.auth.UserID()
	if userID == "" {
		return "", domain.ErrNotAuthenticated
	}
	if !feature.Valid() || handler == nil {
		return "", domain.ErrInvalidArgument
	}
	defer logging.TraceDuration(u.log, "LaunchUC.Launch")()
	ctx = logging.WithUserID(ctx, userID)

	if u.limiter != nil {
		ok, err := u.limiter.Allow(ctx, u.limitKey(userID, string(feature)), u.limit, time.Minute)
		if err != nil {
			u.log.Warn().Err(err).Msg("rate limiter unavailable; allowing launch")
		} else if !ok {
			return "", domain.ErrRateLimited
		}
	}

	allowed, _, err := u.credits.CanLaunch(ctx, userID, feature)
	if err != nil {
		return "", err
	}
	if !allowed {
		// Refused before any job row exists; engage is never attempted.
		return "", domain.ErrCreditExhausted
	}

	jobID := ulid.Make().String()
	ctx = logging.WithJobID(ctx, jobID)
	job := model.NewJob(jobID, userID, feature, payload)
	if err := u.jobs.Create(ctx, nil, job); err != nil {
		return "", err
	}

	engaged, err := u.credits.Engage(ctx, userID, feature, jobID)
	if err != nil || !engaged {
		// The job row exists but must not run; mark it instead of leaving
		// an orphan in queued.
		u.markError(ctx, jobID, "credit engage failed")
		if err != nil {
			return "", err
		}
		return "", domain.ErrCreditExhausted
	}

	// Register before dispatch so even an instant push cannot slip past the
	// handler.
	wrapped := func(d model.Delivery) {
		u.counter.Dec()
		metrics.IncJobFinished(string(d.Status))
		handler(d)
	}
	if err := u.registry.Register(jobID, wrapped); err != nil {
		u.markError(ctx, jobID, "handler registration failed")
		return "", err
	}
	u.counter.Inc()

	outcome, err := u.service.Dispatch(ctx, jobID, feature, payload)
	if err != nil {
		// A racing delivery may have fired the wrapped handler already, in
		// which case it owns the decrement.
		if u.registry.Unregister(jobID) {
			u.counter.Dec()
		}
		u.markError(ctx, jobID, err.Error())
		return "", err
	}
	metrics.IncJobLaunched(string(feature))

	if outcome.Immediate != nil {
		u.completeSync(ctx, jobID, *outcome.Immediate)
		return jobID, nil
	}

	// Detached from the request context: polling timers outlive the call
	// that launched them and stop via Cancel/Unregister or the deadline.
	stop := u.poller.Watch(context.WithoutCancel(ctx), jobID, job.CreatedAt)
	u.registry.BindCancel(jobID, stop)
	return jobID, nil
}

func (u *launchUC) Cancel(jobID string) {
	// The decrement belongs to whichever side actually removed the live
	// registration; a delivery that beat us has run the wrapped handler and
	// decremented there.
	if u.registry.Unregister(jobID) {
		u.counter.Dec()
	}
}

func (u *launchUC) markError(ctx context.Context, jobID, reason string) {
	status := model.JobStatusError
	if err := u.jobs.Update(ctx, nil, jobID, model.JobPatch{Status: &status, LastError: &reason}); err != nil {
		logging.With(ctx, u.log).Error().Err(err).Str("job_id", jobID).Msg("could not mark job as failed")
	}
}

// completeSync persists an immediate synchronous result and pushes it
// through the registry so the handler contract stays identical across all
// three arrival paths.
func (u *launchUC) completeSync(ctx context.Context, jobID string, result model.AnalysisResult) {
	status := model.JobStatusDone
	raw, err := json.Marshal(result)
	if err != nil {
		raw = result.Raw
	}
	if err := u.jobs.Update(ctx, nil, jobID, model.JobPatch{Status: &status, ResponsePayload: raw}); err != nil {
		u.log.Warn().Err(err).Str("job_id", jobID).Msg("could not persist immediate result")
	}
	u.registry.Deliver(model.Delivery{
		JobID:  jobID,
		Status: status,
		Result: result,
		Source: model.SourceSync,
	})
}
