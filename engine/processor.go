package engine

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/google/uuid"

	"treasuryd/membership"
)

// ErrRunInFlight is returned when a disbursement is attempted for a tenant
// that already has one executing. Manual triggers and scheduled ticks share
// this guard, so the two can never overlap for the same tenant.
var ErrRunInFlight = errors.New("engine: disbursement already in flight for tenant")

// Precondition failure reasons reported on the structured result. These are
// configuration problems for an administrator to fix; the engine does not
// retry them on its own.
const (
	ReasonDisabled     = "disbursements are not enabled for this tenant"
	ReasonNoTreasury   = "treasury address not configured"
	ReasonNoMembers    = "no members found for tenant"
	ReasonNoRecipients = "no eligible recipients found"
	ReasonEmptyBatch   = "no transfer operations to execute"
)

// Failure categories keep the metrics label space bounded. The free-form
// reason text stays on the result and in the ledger only.
const (
	failDisabled     = "disabled"
	failNoTreasury   = "no_treasury"
	failNoMembers    = "no_members"
	failNoRecipients = "no_recipients"
	failEmptyBatch   = "empty_batch"
	failSubmit       = "submit"
	failConfirm      = "confirm"
)

// Processor turns a tenant's role-payout table into exactly one chain
// submission per run and settles the outcome: on confirmed success the
// tenant's last-run timestamp advances and a record is appended; on
// submission or confirmation failure the timestamp is left untouched so the
// next eligible tick retries, and a failed record is still appended.
type Processor struct {
	store   ConfigStore
	ledger  Ledger
	client  ChainClient
	members MemberSource
	checker membership.Checker
	metrics *Metrics
	now     func() time.Time

	mu       sync.Mutex
	inFlight map[string]struct{}
}

// ProcessorOption customises the processor instance.
type ProcessorOption func(*Processor)

// WithChecker supplies the role-capability check used during resolution.
func WithChecker(c membership.Checker) ProcessorOption {
	return func(p *Processor) { p.checker = c }
}

// WithMetrics overrides the default metrics registry.
func WithMetrics(m *Metrics) ProcessorOption {
	return func(p *Processor) { p.metrics = m }
}

// WithClock sets the function used to derive timestamps.
func WithClock(clock func() time.Time) ProcessorOption {
	return func(p *Processor) { p.now = clock }
}

// NewProcessor constructs a disbursement processor over the supplied
// collaborators.
func NewProcessor(store ConfigStore, ledger Ledger, client ChainClient, members MemberSource, opts ...ProcessorOption) *Processor {
	proc := &Processor{
		store:    store,
		ledger:   ledger,
		client:   client,
		members:  members,
		checker:  membership.StrictChecker{},
		metrics:  NewMetrics(),
		now:      time.Now,
		inFlight: make(map[string]struct{}),
	}
	for _, opt := range opts {
		opt(proc)
	}
	return proc
}

// Run executes one disbursement for the tenant. Expected business
// conditions (disabled tenant, missing treasury, empty membership, failed
// submission) are reported on the returned result, never as an error; the
// error return is reserved for collaborator faults such as an unreachable
// store or membership directory.
func (p *Processor) Run(ctx context.Context, tenantID string, trigger Trigger) (DisbursementResult, error) {
	p.mu.Lock()
	if _, busy := p.inFlight[tenantID]; busy {
		p.mu.Unlock()
		return DisbursementResult{}, ErrRunInFlight
	}
	p.inFlight[tenantID] = struct{}{}
	p.mu.Unlock()
	p.metrics.RunStarted()
	defer func() {
		p.mu.Lock()
		delete(p.inFlight, tenantID)
		p.mu.Unlock()
		p.metrics.RunFinished()
	}()

	started := p.now()
	result, category, err := p.run(ctx, tenantID, trigger)
	p.metrics.ObserveRun(string(trigger), p.now().Sub(started))
	switch {
	case err != nil:
		p.metrics.RecordOutcome(string(trigger), "error")
	case result.Success:
		p.metrics.RecordOutcome(string(trigger), "success")
	default:
		p.metrics.RecordOutcome(string(trigger), "failure")
		p.metrics.RecordFailure(category)
	}
	return result, err
}

func (p *Processor) run(ctx context.Context, tenantID string, trigger Trigger) (DisbursementResult, string, error) {
	cfg, err := p.store.GetTenant(tenantID)
	if err != nil {
		return DisbursementResult{}, "", fmt.Errorf("load tenant config: %w", err)
	}
	if !cfg.Enabled {
		return p.failure(ReasonDisabled), failDisabled, nil
	}
	if !cfg.TreasuryConfigured() {
		return p.failure(ReasonNoTreasury), failNoTreasury, nil
	}
	members, err := p.members.ListMembers(ctx, tenantID)
	if err != nil {
		return DisbursementResult{}, "", fmt.Errorf("list members: %w", err)
	}
	if len(members) == 0 {
		return p.failure(ReasonNoMembers), failNoMembers, nil
	}
	obligations := Resolve(members, cfg.RolePayouts, p.checker)
	if len(obligations) == 0 {
		return p.failure(ReasonNoRecipients), failNoRecipients, nil
	}
	ops := BuildBatch(obligations)
	if len(ops) == 0 {
		return p.failure(ReasonEmptyBatch), failEmptyBatch, nil
	}

	txHash, err := p.client.SubmitBatch(ctx, cfg.Treasury, ops)
	if err != nil {
		return p.settleFailure(tenantID, trigger, err, failSubmit)
	}
	if err := p.client.Confirm(ctx, txHash); err != nil {
		return p.settleFailure(tenantID, trigger, err, failConfirm)
	}

	total := new(big.Int)
	for _, ob := range obligations {
		total.Add(total, ob.Amount)
	}
	settled := p.now()
	result := DisbursementResult{
		Success:     true,
		TxHash:      txHash.Hex(),
		Recipients:  len(obligations),
		TotalAmount: total,
		Timestamp:   settled,
	}
	if err := p.store.SetLastRun(tenantID, settled); err != nil {
		return result, "", fmt.Errorf("advance last run: %w", err)
	}
	if err := p.appendRecord(tenantID, trigger, result); err != nil {
		return result, "", err
	}
	for _, ob := range obligations {
		p.metrics.RecordDisbursed(string(ob.Token), ob.Amount)
	}
	return result, "", nil
}

// settleFailure records a failed execution attempt. The tenant's last-run
// timestamp is deliberately left unchanged so the schedule retries the whole
// batch on the next eligible tick.
func (p *Processor) settleFailure(tenantID string, trigger Trigger, cause error, category string) (DisbursementResult, string, error) {
	result := p.failure(cause.Error())
	if err := p.appendRecord(tenantID, trigger, result); err != nil {
		return result, category, err
	}
	return result, category, nil
}

func (p *Processor) appendRecord(tenantID string, trigger Trigger, result DisbursementResult) error {
	record := DisbursementRecord{
		ID:       uuid.NewString(),
		TenantID: tenantID,
		RunAt:    result.Timestamp,
		Trigger:  trigger,
		Result:   result,
	}
	if err := p.ledger.Append(tenantID, record); err != nil {
		return fmt.Errorf("append history: %w", err)
	}
	return nil
}

func (p *Processor) failure(reason string) DisbursementResult {
	return DisbursementResult{
		Success:     false,
		Reason:      reason,
		TotalAmount: new(big.Int),
		Timestamp:   p.now(),
	}
}
