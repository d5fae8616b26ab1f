package engine

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// TenantState tracks a tenant through one scheduling cycle.
type TenantState int

const (
	// StateIdle means the tenant is not due for a run.
	StateIdle TenantState = iota
	// StateDue means the tenant is eligible but not yet started this tick.
	StateDue
	// StateRunning means an executor invocation is in flight.
	StateRunning
	// StateSettled means the outcome has been recorded and notification is
	// being dispatched; the state resets to Idle immediately after.
	StateSettled
)

// String renders the state for logs.
func (s TenantState) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateDue:
		return "due"
	case StateRunning:
		return "running"
	case StateSettled:
		return "settled"
	default:
		return "unknown"
	}
}

// DefaultPeriod is the elapsed time that makes an enabled tenant eligible
// for its next scheduled run.
const DefaultPeriod = 30 * 24 * time.Hour

// Scheduler drives recurring disbursements. Once per tick it evaluates every
// tenant's eligibility, runs the processor for each eligible tenant exactly
// once, and dispatches a notification with the outcome. Failures never stop
// the tick; the tenant resets to idle and the loop continues.
type Scheduler struct {
	store     ConfigStore
	processor *Processor
	sink      Sink
	logger    *slog.Logger
	metrics   *Metrics
	interval  time.Duration
	period    time.Duration
	now       func() time.Time

	mu     sync.Mutex
	states map[string]TenantState
	once   sync.Once
}

// SchedulerOption customises the scheduler instance.
type SchedulerOption func(*Scheduler)

// WithSink supplies the notification sink.
func WithSink(sink Sink) SchedulerOption {
	return func(s *Scheduler) { s.sink = sink }
}

// WithLogger installs a custom logger.
func WithLogger(logger *slog.Logger) SchedulerOption {
	return func(s *Scheduler) { s.logger = logger }
}

// WithSchedulerClock sets the function used to evaluate eligibility.
func WithSchedulerClock(clock func() time.Time) SchedulerOption {
	return func(s *Scheduler) { s.now = clock }
}

// WithSchedulerMetrics overrides the default metrics registry.
func WithSchedulerMetrics(m *Metrics) SchedulerOption {
	return func(s *Scheduler) { s.metrics = m }
}

// NewScheduler constructs a scheduler ticking at interval and considering
// tenants eligible once period has elapsed since their last successful run.
func NewScheduler(store ConfigStore, processor *Processor, interval, period time.Duration, opts ...SchedulerOption) (*Scheduler, error) {
	if store == nil {
		return nil, fmt.Errorf("engine: config store required")
	}
	if processor == nil {
		return nil, fmt.Errorf("engine: processor required")
	}
	if interval <= 0 {
		return nil, fmt.Errorf("engine: tick interval must be positive")
	}
	if period <= 0 {
		period = DefaultPeriod
	}
	sched := &Scheduler{
		store:     store,
		processor: processor,
		logger:    slog.Default(),
		metrics:   NewMetrics(),
		interval:  interval,
		period:    period,
		now:       time.Now,
		states:    make(map[string]TenantState),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(sched)
		}
	}
	return sched, nil
}

// Run blocks, evaluating every tenant once per tick until the context is
// cancelled.
func (s *Scheduler) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("engine: scheduler not configured")
	}
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	s.once.Do(func() {
		s.logger.Info("disbursement scheduler started", "interval", s.interval.String(), "period", s.period.String())
	})
	for {
		if err := s.Tick(ctx); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			s.logger.Error("scheduler tick failed", "error", err)
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Tick performs a single pass over all known tenants. Tenants are
// independent; an error inside one tenant's processing is logged and the
// remaining tenants still run.
func (s *Scheduler) Tick(ctx context.Context) error {
	ids, err := s.store.ListTenants()
	if err != nil {
		return fmt.Errorf("list tenants: %w", err)
	}
	eligible := 0
	for _, id := range ids {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if s.processTenant(ctx, id) {
			eligible++
		}
	}
	s.metrics.SetEligible(eligible)
	return nil
}

// State reports the scheduling state currently recorded for a tenant.
func (s *Scheduler) State(tenantID string) TenantState {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.states[tenantID]
}

func (s *Scheduler) processTenant(ctx context.Context, tenantID string) (wasEligible bool) {
	cfg, err := s.store.GetTenant(tenantID)
	if err != nil {
		s.logger.Error("load tenant failed", "tenant", tenantID, "error", err)
		s.setState(tenantID, StateIdle)
		return false
	}
	if !s.eligible(cfg) {
		s.setState(tenantID, StateIdle)
		return false
	}
	if !s.markDue(tenantID) {
		// Still running from an earlier tick; skip until settled.
		return true
	}
	s.setState(tenantID, StateRunning)

	result, err := s.processor.Run(ctx, tenantID, TriggerScheduled)
	if err != nil {
		s.setState(tenantID, StateIdle)
		if errors.Is(err, ErrRunInFlight) {
			s.logger.Info("run already in flight, skipping", "tenant", tenantID)
			return true
		}
		s.logger.Error("disbursement run failed", "tenant", tenantID, "error", err)
		return true
	}

	s.setState(tenantID, StateSettled)
	s.notify(ctx, cfg, result)
	s.setState(tenantID, StateIdle)
	return true
}

// eligible reports whether the tenant is due: enabled and either never run
// or past the configured period. The boundary is inclusive, so a tenant
// becomes due at exactly the period.
func (s *Scheduler) eligible(cfg *TenantConfig) bool {
	if cfg == nil || !cfg.Enabled {
		return false
	}
	if cfg.LastRun == nil {
		return true
	}
	return s.now().Sub(*cfg.LastRun) >= s.period
}

// markDue records a tenant as due unless a run from an earlier tick is
// still executing.
func (s *Scheduler) markDue(tenantID string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.states[tenantID] == StateRunning {
		return false
	}
	s.states[tenantID] = StateDue
	return true
}

func (s *Scheduler) setState(tenantID string, state TenantState) {
	s.mu.Lock()
	s.states[tenantID] = state
	s.mu.Unlock()
}

func (s *Scheduler) notify(ctx context.Context, cfg *TenantConfig, result DisbursementResult) {
	if s.sink == nil || cfg.NotificationChannel == "" {
		return
	}
	var message string
	if result.Success {
		message = fmt.Sprintf(
			"Scheduled disbursement complete: %d recipients, %s total, tx %s",
			result.Recipients,
			FormatAmount(result.TotalAmount, cfg.DefaultToken, DefaultDecimals),
			result.TxHash,
		)
	} else {
		message = fmt.Sprintf("Scheduled disbursement failed: %s", result.Reason)
	}
	if err := s.sink.Notify(ctx, cfg.NotificationChannel, message); err != nil {
		s.logger.Error("notification dispatch failed", "tenant", cfg.TenantID, "error", err)
	}
}
