package storage

import (
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"treasuryd/engine"
)

var (
	// ErrTenantRequired is returned when an operation is missing a tenant id.
	ErrTenantRequired = errors.New("storage: tenant id required")
	// ErrTreasuryRequired rejects enabling disbursements before a funding
	// account has been configured.
	ErrTreasuryRequired = errors.New("storage: treasury address must be configured before enabling disbursements")
	// ErrRoleRequired is returned when a role payout operation is missing a
	// role id.
	ErrRoleRequired = errors.New("storage: role id required")
)

const (
	tenantPrefix  = "tenant/"
	historyPrefix = "history/"
)

// Store persists tenant configuration and the append-only disbursement
// history on top of a key-value Database. Writes for one tenant are
// serialized through a per-tenant lock so an administrative change and a
// concurrent run settlement cannot lose updates.
type Store struct {
	db Database

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewStore wraps the supplied database.
func NewStore(db Database) *Store {
	return &Store{
		db:    db,
		locks: make(map[string]*sync.Mutex),
	}
}

var _ engine.ConfigStore = (*Store)(nil)
var _ engine.Ledger = (*Store)(nil)

func (s *Store) tenantLock(tenantID string) *sync.Mutex {
	s.mu.Lock()
	defer s.mu.Unlock()
	lock, ok := s.locks[tenantID]
	if !ok {
		lock = &sync.Mutex{}
		s.locks[tenantID] = lock
	}
	return lock
}

// GetTenant loads a tenant configuration, creating and persisting a safe
// default (disabled, zero treasury, native token) on first access.
func (s *Store) GetTenant(tenantID string) (*engine.TenantConfig, error) {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return nil, ErrTenantRequired
	}
	lock := s.tenantLock(trimmed)
	lock.Lock()
	defer lock.Unlock()
	return s.getOrCreateLocked(trimmed)
}

func (s *Store) getOrCreateLocked(tenantID string) (*engine.TenantConfig, error) {
	value, err := s.db.Get(tenantKey(tenantID))
	if errors.Is(err, ErrNotFound) {
		cfg := defaultTenant(tenantID)
		if err := s.putTenantLocked(cfg); err != nil {
			return nil, err
		}
		return cfg, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load tenant %s: %w", tenantID, err)
	}
	cfg := &engine.TenantConfig{}
	if err := json.Unmarshal(value, cfg); err != nil {
		return nil, fmt.Errorf("decode tenant %s: %w", tenantID, err)
	}
	return cfg, nil
}

// SaveTenant validates and persists a configuration. A tenant may not be
// enabled while its treasury address is unset.
func (s *Store) SaveTenant(cfg *engine.TenantConfig) error {
	if cfg == nil || strings.TrimSpace(cfg.TenantID) == "" {
		return ErrTenantRequired
	}
	lock := s.tenantLock(cfg.TenantID)
	lock.Lock()
	defer lock.Unlock()
	return s.putTenantLocked(cfg)
}

func (s *Store) putTenantLocked(cfg *engine.TenantConfig) error {
	if cfg.Enabled && !cfg.TreasuryConfigured() {
		return ErrTreasuryRequired
	}
	encoded, err := json.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("encode tenant %s: %w", cfg.TenantID, err)
	}
	if err := s.db.Put(tenantKey(cfg.TenantID), encoded); err != nil {
		return fmt.Errorf("store tenant %s: %w", cfg.TenantID, err)
	}
	return nil
}

// ListTenants returns every known tenant id in lexicographic order.
func (s *Store) ListTenants() ([]string, error) {
	keys, err := s.db.Keys([]byte(tenantPrefix))
	if err != nil {
		return nil, fmt.Errorf("scan tenants: %w", err)
	}
	ids := make([]string, 0, len(keys))
	for _, key := range keys {
		ids = append(ids, strings.TrimPrefix(string(key), tenantPrefix))
	}
	return ids, nil
}

// mutate applies fn to the tenant's configuration under its write lock and
// persists the result.
func (s *Store) mutate(tenantID string, fn func(cfg *engine.TenantConfig) error) (*engine.TenantConfig, error) {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return nil, ErrTenantRequired
	}
	lock := s.tenantLock(trimmed)
	lock.Lock()
	defer lock.Unlock()
	cfg, err := s.getOrCreateLocked(trimmed)
	if err != nil {
		return nil, err
	}
	if err := fn(cfg); err != nil {
		return nil, err
	}
	if err := s.putTenantLocked(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// SetTreasury configures the funding account for a tenant.
func (s *Store) SetTreasury(tenantID string, treasury common.Address) (*engine.TenantConfig, error) {
	return s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		cfg.Treasury = treasury
		return nil
	})
}

// SetDefaultToken configures the tenant's default payout token.
func (s *Store) SetDefaultToken(tenantID string, token engine.Token) (*engine.TenantConfig, error) {
	return s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		cfg.DefaultToken = token
		return nil
	})
}

// SetRolePayout sets the amount owed to holders of a role. An existing entry
// keeps its position in the table; new roles append at the end.
func (s *Store) SetRolePayout(tenantID, roleID string, amount *big.Int, token engine.Token) (*engine.TenantConfig, error) {
	role := strings.TrimSpace(roleID)
	if role == "" {
		return nil, ErrRoleRequired
	}
	if amount == nil || amount.Sign() < 0 {
		return nil, fmt.Errorf("storage: payout amount must be a non-negative integer")
	}
	return s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		entry := engine.RolePayout{RoleID: role, Amount: new(big.Int).Set(amount), Token: token}
		for i := range cfg.RolePayouts {
			if strings.EqualFold(cfg.RolePayouts[i].RoleID, role) {
				cfg.RolePayouts[i] = entry
				return nil
			}
		}
		cfg.RolePayouts = append(cfg.RolePayouts, entry)
		return nil
	})
}

// RemoveRolePayout deletes a role from the payout table.
func (s *Store) RemoveRolePayout(tenantID, roleID string) (*engine.TenantConfig, error) {
	role := strings.TrimSpace(roleID)
	if role == "" {
		return nil, ErrRoleRequired
	}
	return s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		kept := cfg.RolePayouts[:0]
		for _, entry := range cfg.RolePayouts {
			if !strings.EqualFold(entry.RoleID, role) {
				kept = append(kept, entry)
			}
		}
		cfg.RolePayouts = kept
		return nil
	})
}

// SetEnabled toggles scheduled disbursements. Enabling requires a configured
// treasury address.
func (s *Store) SetEnabled(tenantID string, enabled bool) (*engine.TenantConfig, error) {
	return s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		if enabled && !cfg.TreasuryConfigured() {
			return ErrTreasuryRequired
		}
		cfg.Enabled = enabled
		return nil
	})
}

// SetLastRun advances the successful-run timestamp without touching any
// other field. The executor settles through this so administrative changes
// made while a run was in flight survive the settlement write.
func (s *Store) SetLastRun(tenantID string, ts time.Time) error {
	_, err := s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		cfg.LastRun = &ts
		return nil
	})
	return err
}

// SetNotificationChannel configures where run outcomes are announced. An
// empty channel disables notifications.
func (s *Store) SetNotificationChannel(tenantID, channel string) (*engine.TenantConfig, error) {
	return s.mutate(tenantID, func(cfg *engine.TenantConfig) error {
		cfg.NotificationChannel = strings.TrimSpace(channel)
		return nil
	})
}

// Append adds a record to the tenant's disbursement history.
func (s *Store) Append(tenantID string, rec engine.DisbursementRecord) error {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return ErrTenantRequired
	}
	lock := s.tenantLock(trimmed)
	lock.Lock()
	defer lock.Unlock()
	records, err := s.listLocked(trimmed)
	if err != nil {
		return err
	}
	records = append(records, rec)
	encoded, err := json.Marshal(records)
	if err != nil {
		return fmt.Errorf("encode history %s: %w", trimmed, err)
	}
	if err := s.db.Put(historyKey(trimmed), encoded); err != nil {
		return fmt.Errorf("store history %s: %w", trimmed, err)
	}
	return nil
}

// List returns the tenant's disbursement history in insertion order.
func (s *Store) List(tenantID string) ([]engine.DisbursementRecord, error) {
	trimmed := strings.TrimSpace(tenantID)
	if trimmed == "" {
		return nil, ErrTenantRequired
	}
	lock := s.tenantLock(trimmed)
	lock.Lock()
	defer lock.Unlock()
	return s.listLocked(trimmed)
}

func (s *Store) listLocked(tenantID string) ([]engine.DisbursementRecord, error) {
	value, err := s.db.Get(historyKey(tenantID))
	if errors.Is(err, ErrNotFound) {
		return []engine.DisbursementRecord{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("load history %s: %w", tenantID, err)
	}
	var records []engine.DisbursementRecord
	if err := json.Unmarshal(value, &records); err != nil {
		return nil, fmt.Errorf("decode history %s: %w", tenantID, err)
	}
	return records, nil
}

func defaultTenant(tenantID string) *engine.TenantConfig {
	return &engine.TenantConfig{
		TenantID:     tenantID,
		DefaultToken: engine.NativeToken,
		Enabled:      false,
	}
}

func tenantKey(tenantID string) []byte {
	return []byte(tenantPrefix + tenantID)
}

func historyKey(tenantID string) []byte {
	return []byte(historyPrefix + tenantID)
}
