package orchestrator

import (
	"sync"

	"github.com/rs/zerolog"

	"trading-research-core/internal/domain"
	"trading-research-core/internal/domain/model"
	"trading-research-core/internal/infra/metrics"
)

// Handler consumes one terminal delivery for a job.
type Handler func(d model.Delivery)

type registration struct {
	handler Handler
	cancel  func()
}

// Registry is the at-most-once fan-in point between the push and pull
// delivery channels. Both channels call Deliver; the first one through the
// lock fires the handler, the other is recorded as a suppressed duplicate.
// State is process-local, so a plain mutex is the whole guard.
type Registry struct {
	mu       sync.Mutex
	regs     map[string]*registration
	fired    map[string]model.DeliverySource
	firedLog []string // insertion order, for bounded eviction
	dev      bool
	log      *zerolog.Logger
}

// firedCap bounds the duplicate-suppression memory of finished jobs.
const firedCap = 4096

func NewRegistry(dev bool, logger *zerolog.Logger) *Registry {
	rl := logger.With().Str("component", "Registry").Logger()
	return &Registry{
		regs:  make(map[string]*registration),
		fired: make(map[string]model.DeliverySource),
		dev:   dev,
		log:   &rl,
	}
}

// Register stores a handler for the job. A second registration for the same
// job id is a programming error: rejected in dev, ignored in prod so a
// double-subscribing view cannot steal the first subscriber's delivery.
func (r *Registry) Register(jobID string, h Handler) error {
	if jobID == "" || h == nil {
		return domain.ErrInvalidArgument
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, exists := r.regs[jobID]; exists {
		if r.dev {
			return domain.ErrDuplicateRegistration
		}
		r.log.Warn().Str("job_id", jobID).Msg("duplicate handler registration ignored")
		return nil
	}
	r.regs[jobID] = &registration{handler: h}
	return nil
}

// BindCancel attaches the stop function for the job's polling timers. It is
// invoked on Unregister and after a successful fire, so no timer outlives
// its consumer.
func (r *Registry) BindCancel(jobID string, cancel func()) {
	r.mu.Lock()
	reg, ok := r.regs[jobID]
	if ok {
		reg.cancel = cancel
		r.mu.Unlock()
		return
	}
	r.mu.Unlock()
	// Registration already gone (fired or torn down between Register and
	// BindCancel); stop the timers immediately.
	if cancel != nil {
		cancel()
	}
}

// Deliver routes a terminal result to the registered handler. Returns true
// when this call fired the handler. Duplicates and late deliveries are
// absorbed here, not surfaced as errors.
func (r *Registry) Deliver(d model.Delivery) bool {
	r.mu.Lock()
	if _, dup := r.fired[d.JobID]; dup {
		r.mu.Unlock()
		metrics.IncDeliverySuppressed(string(d.Source))
		r.log.Debug().Str("job_id", d.JobID).Str("source", string(d.Source)).Msg("duplicate delivery suppressed")
		return false
	}
	reg, ok := r.regs[d.JobID]
	if !ok {
		r.mu.Unlock()
		metrics.IncDeliveryDropped()
		r.log.Debug().Str("job_id", d.JobID).Str("source", string(d.Source)).Msg("delivery after detach dropped")
		return false
	}
	delete(r.regs, d.JobID)
	r.markFiredLocked(d.JobID, d.Source)
	handler, cancel := reg.handler, reg.cancel
	r.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	metrics.IncDelivery(string(d.Source))
	handler(d)
	return true
}

// Unregister removes a registration before it fires (view teardown or an
// explicit cancel) and stops any pending timers bound to it. It reports
// whether a live registration was removed; when a concurrent Deliver got
// there first it returns false, and the check-and-remove happens under one
// lock acquisition so callers can settle who owns the teardown.
func (r *Registry) Unregister(jobID string) bool {
	r.mu.Lock()
	reg, ok := r.regs[jobID]
	delete(r.regs, jobID)
	delete(r.fired, jobID)
	r.mu.Unlock()
	if ok && reg.cancel != nil {
		reg.cancel()
	}
	return ok
}

// Registered reports whether a live handler exists for the job.
func (r *Registry) Registered(jobID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	_, ok := r.regs[jobID]
	return ok
}

func (r *Registry) markFiredLocked(jobID string, src model.DeliverySource) {
	r.fired[jobID] = src
	r.firedLog = append(r.firedLog, jobID)
	for len(r.firedLog) > firedCap {
		old := r.firedLog[0]
		r.firedLog = r.firedLog[1:]
		delete(r.fired, old)
	}
}
