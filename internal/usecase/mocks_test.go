package usecase

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/domain/ports/adapter"
	"trading-research-core/internal/domain/ports/repository"
)

// ---- in-memory fakes shared by the use case tests ----

type memJobRepo struct {
	mu        sync.Mutex
	jobs      map[string]*model.Job
	createErr error
}

func newMemJobRepo() *memJobRepo {
	return &memJobRepo{jobs: make(map[string]*model.Job)}
}

func (m *memJobRepo) Create(ctx context.Context, tx repository.Tx, job *model.Job) error {
	if m.createErr != nil {
		return m.createErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *job
	m.jobs[job.ID] = &cp
	return nil
}

func (m *memJobRepo) Find(ctx context.Context, tx repository.Tx, id string) (*model.Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return nil, domain.ErrJobNotFound
	}
	cp := *j
	return &cp, nil
}

func (m *memJobRepo) Update(ctx context.Context, tx repository.Tx, id string, patch model.JobPatch) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return domain.ErrJobNotFound
	}
	if j.Terminal() {
		return domain.ErrJobTerminal
	}
	if patch.Status != nil {
		j.Status = *patch.Status
	}
	if patch.ResponsePayload != nil {
		j.ResponsePayload = patch.ResponsePayload
	}
	if patch.LastError != nil {
		j.LastError = *patch.LastError
	}
	j.UpdatedAt = time.Now()
	return nil
}

func (m *memJobRepo) FindStuck(ctx context.Context, tx repository.Tx, cutoffSeconds int) ([]*model.Job, error) {
	return nil, nil
}

func (m *memJobRepo) get(id string) *model.Job {
	m.mu.Lock()
	defer m.mu.Unlock()
	if j, ok := m.jobs[id]; ok {
		cp := *j
		return &cp
	}
	return nil
}

type memCreditRepo struct {
	mu      sync.Mutex
	entries map[string]*model.CreditLedgerEntry
	engaged map[string]bool // job id -> engaged
}

func newMemCreditRepo() *memCreditRepo {
	return &memCreditRepo{
		entries: make(map[string]*model.CreditLedgerEntry),
		engaged: make(map[string]bool),
	}
}

func (m *memCreditRepo) grant(userID string, plan model.PlanType, remaining map[model.Feature]int) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[userID] = &model.CreditLedgerEntry{
		UserID:        userID,
		PlanType:      plan,
		Remaining:     remaining,
		LastResetDate: time.Now(),
	}
}

func (m *memCreditRepo) Balance(ctx context.Context, tx repository.Tx, userID string) (*model.CreditLedgerEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.entries[userID]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *e
	return &cp, nil
}

func (m *memCreditRepo) Engage(ctx context.Context, tx repository.Tx, userID string, feature model.Feature, jobID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.engaged[jobID] {
		return domain.ErrAlreadyEngaged
	}
	e, ok := m.entries[userID]
	if !ok || e.Remaining[feature] <= 0 {
		return domain.ErrCreditExhausted
	}
	m.engaged[jobID] = true
	e.Remaining[feature]--
	return nil
}

func (m *memCreditRepo) Reset(ctx context.Context, tx repository.Tx, olderThan time.Time) (int, error) {
	return 0, nil
}

func (m *memCreditRepo) Save(ctx context.Context, tx repository.Tx, entry *model.CreditLedgerEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *entry
	m.entries[entry.UserID] = &cp
	return nil
}

func (m *memCreditRepo) remaining(userID string, feature model.Feature) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.entries[userID]; ok {
		return e.Remaining[feature]
	}
	return 0
}

type fakeService struct {
	mu        sync.Mutex
	outcome   adapter.DispatchOutcome
	err       error
	dispatchN int
}

func (f *fakeService) Dispatch(ctx context.Context, jobID string, feature model.Feature, payload json.RawMessage) (adapter.DispatchOutcome, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.dispatchN++
	return f.outcome, f.err
}

func (f *fakeService) dispatches() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.dispatchN
}

type memSessionRepo struct {
	mu       sync.Mutex
	sessions map[string]*model.SessionRecord
	findErr  error
}

func newMemSessionRepo() *memSessionRepo {
	return &memSessionRepo{sessions: make(map[string]*model.SessionRecord)}
}

func (m *memSessionRepo) Find(ctx context.Context, tx repository.Tx, sessionID string) (*model.SessionRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.findErr != nil {
		return nil, m.findErr
	}
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSessionRepo) Activate(ctx context.Context, tx repository.Tx, rec *model.SessionRecord) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var deactivated []string
	for id, s := range m.sessions {
		if s.UserID == rec.UserID && id != rec.SessionID && s.IsActive {
			s.IsActive = false
			deactivated = append(deactivated, id)
		}
	}
	cp := *rec
	cp.IsActive = true
	cp.LastSeen = time.Now()
	m.sessions[rec.SessionID] = &cp
	return deactivated, nil
}

func (m *memSessionRepo) Refresh(ctx context.Context, tx repository.Tx, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	s.LastSeen = time.Now()
	return nil
}

func (m *memSessionRepo) Deactivate(ctx context.Context, tx repository.Tx, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.IsActive = false
	}
	return nil
}

func (m *memSessionRepo) setActive(sessionID string, active bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if s, ok := m.sessions[sessionID]; ok {
		s.IsActive = active
	}
}

func (m *memSessionRepo) drop(sessionID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, sessionID)
}

func (m *memSessionRepo) has(sessionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.sessions[sessionID]
	return ok
}

type memUserRepo struct {
	mu    sync.Mutex
	users map[string]*model.User
}

func newMemUserRepo() *memUserRepo {
	return &memUserRepo{users: make(map[string]*model.User)}
}

func (m *memUserRepo) FindByID(ctx context.Context, tx repository.Tx, id string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	cp := *u
	return &cp, nil
}

func (m *memUserRepo) Save(ctx context.Context, tx repository.Tx, user *model.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *user
	m.users[user.ID] = &cp
	return nil
}

func (m *memUserRepo) TouchLastActive(ctx context.Context, tx repository.Tx, id string) error {
	return nil
}

type memDeviceStore struct {
	mu        sync.Mutex
	id        string
	voluntary bool
}

func (m *memDeviceStore) DeviceID() (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.id == "" {
		m.id = "device-1"
	}
	return m.id, nil
}

func (m *memDeviceStore) VoluntaryLogout() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.voluntary
}

func (m *memDeviceStore) SetVoluntaryLogout(v bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.voluntary = v
	return nil
}

type capturePublisher struct {
	mu     sync.Mutex
	events []adapter.ChangeEvent
}

func (c *capturePublisher) Publish(ctx context.Context, ev adapter.ChangeEvent) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, ev)
	return nil
}

func (c *capturePublisher) published() []adapter.ChangeEvent {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]adapter.ChangeEvent, len(c.events))
	copy(out, c.events)
	return out
}

type fakeLocker struct {
	mu   sync.Mutex
	held map[string]bool
	busy bool
}

func (f *fakeLocker) TryLock(ctx context.Context, key string, ttl time.Duration) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.busy {
		return "", domain.ErrAlreadyExists
	}
	if f.held == nil {
		f.held = make(map[string]bool)
	}
	f.held[key] = true
	return "token", nil
}

func (f *fakeLocker) Unlock(ctx context.Context, key, token string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	delete(f.held, key)
	return nil
}

type allowAllLimiter struct {
	mu    sync.Mutex
	calls int
	allow bool
	err   error
}

func (l *allowAllLimiter) Allow(ctx context.Context, key string, limit int, window time.Duration) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.calls++
	return l.allow, l.err
}
