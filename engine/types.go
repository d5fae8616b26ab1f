package engine

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"treasuryd/membership"
)

// Token identifies the currency of a payout: the native-currency marker or
// the hex address of an ERC-20 contract.
type Token string

// NativeToken marks payouts settled in the chain's native currency.
const NativeToken Token = "ETH"

// IsNative reports whether the token is the native-currency marker.
func (t Token) IsNative() bool {
	return strings.EqualFold(string(t), string(NativeToken))
}

// Contract returns the ERC-20 contract address for a non-native token.
func (t Token) Contract() common.Address {
	return common.HexToAddress(string(t))
}

// ParseToken normalises a raw token identifier.
func ParseToken(raw string) (Token, error) {
	trimmed := strings.TrimSpace(raw)
	if strings.EqualFold(trimmed, string(NativeToken)) {
		return NativeToken, nil
	}
	if !common.IsHexAddress(trimmed) {
		return "", fmt.Errorf("engine: token must be %s or an ERC-20 contract address", NativeToken)
	}
	return Token(common.HexToAddress(trimmed).Hex()), nil
}

// RolePayout configures the amount owed to holders of a single role. Amounts
// are denominated in the smallest unit of the associated token.
type RolePayout struct {
	RoleID string   `json:"roleId"`
	Amount *big.Int `json:"amount"`
	Token  Token    `json:"token"`
}

// TenantConfig carries the per-tenant disbursement settings. RolePayouts is
// an ordered table: entries are evaluated in slice order during resolution.
type TenantConfig struct {
	TenantID            string         `json:"tenantId"`
	Treasury            common.Address `json:"treasury"`
	DefaultToken        Token          `json:"token"`
	RolePayouts         []RolePayout   `json:"rolePayouts,omitempty"`
	Enabled             bool           `json:"enabled"`
	LastRun             *time.Time     `json:"lastRun,omitempty"`
	NotificationChannel string         `json:"notificationChannel,omitempty"`
}

// TreasuryConfigured reports whether the funding account has been set.
func (c *TenantConfig) TreasuryConfigured() bool {
	return c != nil && c.Treasury != (common.Address{})
}

// Clone returns a deep copy so callers can mutate without aliasing.
func (c *TenantConfig) Clone() *TenantConfig {
	if c == nil {
		return nil
	}
	cloned := *c
	if c.LastRun != nil {
		ts := *c.LastRun
		cloned.LastRun = &ts
	}
	if len(c.RolePayouts) > 0 {
		cloned.RolePayouts = make([]RolePayout, len(c.RolePayouts))
		for i, entry := range c.RolePayouts {
			cloned.RolePayouts[i] = entry
			if entry.Amount != nil {
				cloned.RolePayouts[i].Amount = new(big.Int).Set(entry.Amount)
			}
		}
	}
	return &cloned
}

// Obligation is the debt owed to one recipient for one run, computed before
// batching. Amounts are smallest-unit integers and never negative.
type Obligation struct {
	Recipient common.Address
	Amount    *big.Int
	Token     Token
}

// TransferOperation is one atomic transfer within a batch: a native-currency
// transfer when Token is the native marker, otherwise an ERC-20 contract
// call moving Amount to Recipient.
type TransferOperation struct {
	Token     Token
	Recipient common.Address
	Amount    *big.Int
}

// Trigger records what initiated a disbursement run.
type Trigger string

const (
	// TriggerScheduled marks runs started by the periodic scheduler.
	TriggerScheduled Trigger = "scheduled"
	// TriggerManual marks operator-initiated runs.
	TriggerManual Trigger = "manual"
)

// DisbursementResult is the immutable outcome of one executor invocation.
type DisbursementResult struct {
	Success     bool      `json:"success"`
	TxHash      string    `json:"txHash,omitempty"`
	Recipients  int       `json:"recipients"`
	TotalAmount *big.Int  `json:"totalAmount"`
	Reason      string    `json:"reason,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// DisbursementRecord pairs a run outcome with its tenant for the history
// ledger. Records are append-only and never mutated.
type DisbursementRecord struct {
	ID       string             `json:"id"`
	TenantID string             `json:"tenantId"`
	RunAt    time.Time          `json:"runAt"`
	Trigger  Trigger            `json:"trigger"`
	Result   DisbursementResult `json:"result"`
}

// ConfigStore reads and writes tenant configuration. Get creates a default
// record when the tenant is unknown. SetLastRun advances the successful-run
// timestamp in place; the executor must never write back a whole config it
// loaded before a blocking submission, or it would clobber administrative
// changes made while the run was in flight.
type ConfigStore interface {
	GetTenant(tenantID string) (*TenantConfig, error)
	SaveTenant(cfg *TenantConfig) error
	SetLastRun(tenantID string, ts time.Time) error
	ListTenants() ([]string, error)
}

// Ledger is the append-only disbursement history.
type Ledger interface {
	Append(tenantID string, rec DisbursementRecord) error
	List(tenantID string) ([]DisbursementRecord, error)
}

// ChainClient submits a batch as one atomic chain transaction and waits for
// finality. Confirm blocks until the transaction is final or times out.
type ChainClient interface {
	SubmitBatch(ctx context.Context, treasury common.Address, ops []TransferOperation) (common.Hash, error)
	Confirm(ctx context.Context, txHash common.Hash) error
}

// MemberSource lists the current membership of a tenant.
type MemberSource interface {
	ListMembers(ctx context.Context, tenantID string) ([]membership.Member, error)
}

// Sink delivers run notifications. Delivery is best effort; callers log
// failures and never propagate them.
type Sink interface {
	Notify(ctx context.Context, channelID, message string) error
}
