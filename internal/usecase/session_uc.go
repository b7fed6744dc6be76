package usecase

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/domain/ports/repository"
	"trading-research-core/internal/infra/metrics"
	"trading-research-core/internal/infra/orchestrator"
	red "trading-research-core/internal/infra/redis"
)

// Compile-time check
var _ SessionUseCase = (*sessionUC)(nil)

// SessionUseCase owns the session singleton for this (user, device): claim
// on sign-in, periodic validation, and the single decision function both
// the polling loop and the realtime push share before any forced sign-out.
type SessionUseCase interface {
	Activate(ctx context.Context, user *model.User) error
	// SignOut is the user-initiated path: it sets the voluntary flag so the
	// resulting deactivation is not surfaced as a conflict.
	SignOut(ctx context.Context) error
	// ValidateTick is one pass of the monitor loop.
	ValidateTick(ctx context.Context) error
	// HandleRemoteDeactivation is the realtime path; events for other
	// devices' sessions are ignored.
	HandleRemoteDeactivation(ctx context.Context, sessionID string)
	// VerifyNullSession re-checks the store after the auth debouncer
	// settled on a null observation; local state is only cleared when the
	// store confirms the session is gone or inactive.
	VerifyNullSession(ctx context.Context) error
}

// sessionLocker is the slice of the redis locker used to serialize a
// recreate against a racing fresh sign-in.
type sessionLocker interface {
	TryLock(ctx context.Context, key string, ttl time.Duration) (string, error)
	Unlock(ctx context.Context, key, token string) error
}

type sessionUC struct {
	sessions   repository.SessionRepository
	users      repository.UserRepository
	devices    repository.DeviceStore
	publisher  adapter.EventPublisher
	locker     sessionLocker
	auth       *AuthState
	counter    *orchestrator.ActiveJobs
	deviceInfo string
	log        *zerolog.Logger

	onConflict func()
	onSignOut  func(voluntary bool)
}

func NewSessionUseCase(
	sessions repository.SessionRepository,
	users repository.UserRepository,
	devices repository.DeviceStore,
	publisher adapter.EventPublisher,
	locker sessionLocker,
	auth *AuthState,
	counter *orchestrator.ActiveJobs,
	deviceInfo string,
	logger *zerolog.Logger,
) *sessionUC {
	sl := logger.With().Str("component", "SessionUC").Logger()
	return &sessionUC{
		sessions:   sessions,
		users:      users,
		devices:    devices,
		publisher:  publisher,
		locker:     locker,
		auth:       auth,
		counter:    counter,
		deviceInfo: deviceInfo,
		log:        &sl,
	}
}

// SetConflictHook installs the UI notification for a forced sign-out.
func (s *sessionUC) SetConflictHook(fn func()) { s.onConflict = fn }

// SetSignOutHook installs the callback run after local state is cleared.
func (s *sessionUC) SetSignOutHook(fn func(voluntary bool)) { s.onSignOut = fn }

func (s *sessionUC) Activate(ctx context.Context, user *model.User) error {
	if user == nil {
		return domain.ErrInvalidArgument
	}
	deviceID, err := s.devices.DeviceID()
	if err != nil {
		return err
	}

	rec := model.NewSessionRecord(user.ID, deviceID, s.deviceInfo)
	deactivated, err := s.sessions.Activate(ctx, nil, rec)
	if err != nil {
		return err
	}
	// Other devices learn they lost the session through the change feed;
	// their own monitors apply the active-job guard before acting.
	for _, sid := range deactivated {
		s.publishSessionEvent(ctx, user.ID, sid, false)
	}

	_ = s.devices.SetVoluntaryLogout(false)
	s.auth.Init(user, rec.SessionID)
	if err := s.users.TouchLastActive(ctx, nil, user.ID); err != nil {
		s.log.Debug().Err(err).Msg("could not touch last_active_at")
	}
	return nil
}

func (s *sessionUC) SignOut(ctx context.Context) error {
	sid := s.auth.SessionID()
	userID := s.auth.UserID()
	if sid == "" {
		return nil
	}
	if err := s.devices.SetVoluntaryLogout(true); err != nil {
		s.log.Warn().Err(err).Msg("could not persist voluntary logout flag")
	}
	if err := s.sessions.Deactivate(ctx, nil, sid); err != nil {
		s.log.Warn().Err(err).Str("session_id", sid).Msg("could not deactivate session row")
	}
	s.publishSessionEvent(ctx, userID, sid, false)

	s.auth.Teardown()
	_ = s.devices.SetVoluntaryLogout(false)
	metrics.IncSessionSignOut("voluntary")
	if s.onSignOut != nil {
		s.onSignOut(true)
	}
	return nil
}

func (s *sessionUC) ValidateTick(ctx context.Context) error {
	if !s.auth.Active() {
		return nil
	}
	metrics.IncSessionValidation()
	sid := s.auth.SessionID()

	rec, err := s.sessions.Find(ctx, nil, sid)
	switch {
	case errors.Is(err, domain.ErrSessionNotFound):
		return s.recreate(ctx, sid)
	case err != nil:
		// Transient read failure; next tick retries.
		s.log.Warn().Err(err).Str("session_id", sid).Msg("session validation read failed")
		return nil
	}

	if rec.IsActive {
		if err := s.sessions.Refresh(ctx, nil, sid); err != nil {
			s.log.Debug().Err(err).Str("session_id", sid).Msg("session refresh failed")
		}
		return nil
	}
	return s.handleDeactivation(ctx, "poll")
}

func (s *sessionUC) HandleRemoteDeactivation(ctx context.Context, sessionID string) {
	if sessionID == "" || sessionID != s.auth.SessionID() {
		return
	}
	_ = s.handleDeactivation(ctx, "push")
}

func (s *sessionUC) VerifyNullSession(ctx context.Context) error {
	sid := s.auth.SessionID()
	if sid == "" {
		return nil
	}
	rec, err := s.sessions.Find(ctx, nil, sid)
	switch {
	case err == nil && rec.IsActive:
		// Transient blip from the auth provider; keep local state.
		s.log.Debug().Str("session_id", sid).Msg("null session observation contradicted by store")
		return nil
	case err != nil && !errors.Is(err, domain.ErrSessionNotFound):
		s.log.Warn().Err(err).Str("session_id", sid).Msg("null session re-verify failed; keeping state")
		return nil
	}
	return s.handleDeactivation(ctx, "auth")
}

// handleDeactivation is the shared decision function: the polling loop,
// the realtime push, and the debounced auth path all come through here, so
// the active-job guard cannot be bypassed by any of them.
func (s *sessionUC) handleDeactivation(ctx context.Context, trigger string) error {
	if n := s.counter.Value(); n > 0 {
		metrics.IncSessionGuardBlock()
		s.log.Info().Int64("active_jobs", n).Str("trigger", trigger).Msg("sign-out deferred; jobs in flight")
		return nil
	}

	voluntary := s.devices.VoluntaryLogout()
	s.auth.Teardown()
	_ = s.devices.SetVoluntaryLogout(false)

	if voluntary {
		metrics.IncSessionSignOut("voluntary")
	} else {
		metrics.IncSessionSignOut(trigger)
		if s.onConflict != nil {
			s.onConflict()
		}
	}
	if s.onSignOut != nil {
		s.onSignOut(voluntary)
	}
	return nil
}

// recreate rebuilds a missing session row. The redis lock keeps a monitor
// tick from clobbering a concurrent fresh sign-in on the same device.
func (s *sessionUC) recreate(ctx context.Context, sid string) error {
	user := s.auth.User()
	if user == nil {
		return nil
	}
	lockKey := red.SessionLockKey(sid)
	token, err := s.locker.TryLock(ctx, lockKey, 10*time.Second)
	if err != nil {
		s.log.Debug().Str("session_id", sid).Msg("session lock busy; skipping recreate")
		return nil
	}
	defer func() { _ = s.locker.Unlock(ctx, lockKey, token) }()

	if _, err := s.sessions.Find(ctx, nil, sid); err == nil {
		return nil // sign-in won the race
	}

	deviceID, err := s.devices.DeviceID()
	if err != nil {
		return err
	}
	rec := model.NewSessionRecord(user.ID, deviceID, s.deviceInfo)
	deactivated, err := s.sessions.Activate(ctx, nil, rec)
	if err != nil {
		s.log.Warn().Err(err).Str("session_id", sid).Msg("session recreate failed")
		return nil
	}
	// Same contract as sign-in: any session retired by the claim hears about
	// it on the change feed, not just on its next polling tick.
	for _, other := range deactivated {
		s.publishSessionEvent(ctx, user.ID, other, false)
	}
	metrics.IncSessionRecreated()
	s.log.Info().Str("session_id", sid).Msg("missing session record recreated")
	return nil
}

func (s *sessionUC) publishSessionEvent(ctx context.Context, userID, sessionID string, active bool) {
	if s.publisher == nil {
		return
	}
	ev := adapter.ChangeEvent{
		Kind:      adapter.EventKindSession,
		UserID:    userID,
		SessionID: sessionID,
		IsActive:  active,
		At:        time.Now(),
	}
	if err := s.publisher.Publish(ctx, ev); err != nil {
		s.log.Debug().Err(err).Str("session_id", sessionID).Msg("could not publish session event")
	}
}
