package storage_test

import (
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"

	"treasuryd/engine"
	"treasuryd/storage"
)

var treasury = common.HexToAddress("0x9999999999999999999999999999999999999999")

func newStore(t *testing.T) *storage.Store {
	t.Helper()
	return storage.NewStore(storage.NewMemDB())
}

func TestGetTenantCreatesDisabledDefault(t *testing.T) {
	store := newStore(t)

	cfg, err := store.GetTenant("tenant-1")
	require.NoError(t, err)
	require.Equal(t, "tenant-1", cfg.TenantID)
	require.False(t, cfg.Enabled)
	require.False(t, cfg.TreasuryConfigured())
	require.Equal(t, engine.NativeToken, cfg.DefaultToken)
	require.Nil(t, cfg.LastRun)

	// First access persists the default so listings include the tenant.
	ids, err := store.ListTenants()
	require.NoError(t, err)
	require.Equal(t, []string{"tenant-1"}, ids)
}

func TestGetTenantRequiresID(t *testing.T) {
	store := newStore(t)
	_, err := store.GetTenant("  ")
	require.ErrorIs(t, err, storage.ErrTenantRequired)
}

func TestSaveTenantRoundTrip(t *testing.T) {
	store := newStore(t)
	last := time.Date(2026, 2, 1, 9, 0, 0, 0, time.UTC)
	amount, ok := new(big.Int).SetString("1000000000000000000000", 10)
	require.True(t, ok)
	in := &engine.TenantConfig{
		TenantID:            "tenant-1",
		Treasury:            treasury,
		DefaultToken:        engine.NativeToken,
		RolePayouts:         []engine.RolePayout{{RoleID: "contributor", Amount: amount, Token: engine.NativeToken}},
		Enabled:             true,
		LastRun:             &last,
		NotificationChannel: "ops",
	}
	require.NoError(t, store.SaveTenant(in))

	out, err := store.GetTenant("tenant-1")
	require.NoError(t, err)
	require.Equal(t, in.Treasury, out.Treasury)
	require.True(t, out.Enabled)
	require.Equal(t, "ops", out.NotificationChannel)
	require.NotNil(t, out.LastRun)
	require.True(t, out.LastRun.Equal(last))
	require.Len(t, out.RolePayouts, 1)
	require.Zero(t, out.RolePayouts[0].Amount.Cmp(amount))
}

func TestEnableRequiresTreasury(t *testing.T) {
	store := newStore(t)

	_, err := store.SetEnabled("tenant-1", true)
	require.ErrorIs(t, err, storage.ErrTreasuryRequired)

	err = store.SaveTenant(&engine.TenantConfig{TenantID: "tenant-1", Enabled: true})
	require.ErrorIs(t, err, storage.ErrTreasuryRequired)

	_, err = store.SetTreasury("tenant-1", treasury)
	require.NoError(t, err)
	cfg, err := store.SetEnabled("tenant-1", true)
	require.NoError(t, err)
	require.True(t, cfg.Enabled)

	cfg, err = store.SetEnabled("tenant-1", false)
	require.NoError(t, err)
	require.False(t, cfg.Enabled)
}

func TestSetRolePayoutKeepsTablePosition(t *testing.T) {
	store := newStore(t)
	_, err := store.SetRolePayout("tenant-1", "contributor", big.NewInt(10), engine.NativeToken)
	require.NoError(t, err)
	_, err = store.SetRolePayout("tenant-1", "reviewer", big.NewInt(5), engine.NativeToken)
	require.NoError(t, err)

	// Updating an existing role must not move it to the end of the table.
	cfg, err := store.SetRolePayout("tenant-1", "Contributor", big.NewInt(20), engine.NativeToken)
	require.NoError(t, err)
	require.Len(t, cfg.RolePayouts, 2)
	require.Equal(t, big.NewInt(20), cfg.RolePayouts[0].Amount)
	require.Equal(t, "reviewer", cfg.RolePayouts[1].RoleID)

	cfg, err = store.RemoveRolePayout("tenant-1", "contributor")
	require.NoError(t, err)
	require.Len(t, cfg.RolePayouts, 1)
	require.Equal(t, "reviewer", cfg.RolePayouts[0].RoleID)
}

func TestSetRolePayoutValidation(t *testing.T) {
	store := newStore(t)
	_, err := store.SetRolePayout("tenant-1", " ", big.NewInt(1), engine.NativeToken)
	require.ErrorIs(t, err, storage.ErrRoleRequired)
	_, err = store.SetRolePayout("tenant-1", "contributor", nil, engine.NativeToken)
	require.Error(t, err)
	_, err = store.SetRolePayout("tenant-1", "contributor", big.NewInt(-1), engine.NativeToken)
	require.Error(t, err)
}

func TestSetLastRunTouchesOnlyTimestamp(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.SaveTenant(&engine.TenantConfig{
		TenantID:            "tenant-1",
		Treasury:            treasury,
		DefaultToken:        engine.NativeToken,
		RolePayouts:         []engine.RolePayout{{RoleID: "contributor", Amount: big.NewInt(10), Token: engine.NativeToken}},
		Enabled:             true,
		NotificationChannel: "ops",
	}))

	settled := time.Date(2026, 4, 1, 8, 0, 0, 0, time.UTC)
	require.NoError(t, store.SetLastRun("tenant-1", settled))

	cfg, err := store.GetTenant("tenant-1")
	require.NoError(t, err)
	require.NotNil(t, cfg.LastRun)
	require.True(t, cfg.LastRun.Equal(settled))
	require.True(t, cfg.Enabled)
	require.Equal(t, treasury, cfg.Treasury)
	require.Equal(t, "ops", cfg.NotificationChannel)
	require.Len(t, cfg.RolePayouts, 1)
}

func TestHistoryAppendOrder(t *testing.T) {
	store := newStore(t)

	records, err := store.List("tenant-1")
	require.NoError(t, err)
	require.Empty(t, records)

	for i, success := range []bool{true, false, true} {
		err := store.Append("tenant-1", engine.DisbursementRecord{
			ID:       string(rune('a' + i)),
			TenantID: "tenant-1",
			RunAt:    time.Date(2026, 1, 1+i, 0, 0, 0, 0, time.UTC),
			Trigger:  engine.TriggerScheduled,
			Result:   engine.DisbursementResult{Success: success, TotalAmount: big.NewInt(int64(i))},
		})
		require.NoError(t, err)
	}

	records, err = store.List("tenant-1")
	require.NoError(t, err)
	require.Len(t, records, 3)
	require.Equal(t, "a", records[0].ID)
	require.Equal(t, "c", records[2].ID)
	require.False(t, records[1].Result.Success)
}

func TestHistoryIsolatedPerTenant(t *testing.T) {
	store := newStore(t)
	require.NoError(t, store.Append("tenant-1", engine.DisbursementRecord{ID: "a", TenantID: "tenant-1"}))

	records, err := store.List("tenant-2")
	require.NoError(t, err)
	require.Empty(t, records)
}

func TestMemDBKeysAndIsolation(t *testing.T) {
	db := storage.NewMemDB()
	require.NoError(t, db.Put([]byte("tenant/a"), []byte("1")))
	require.NoError(t, db.Put([]byte("tenant/b"), []byte("2")))
	require.NoError(t, db.Put([]byte("history/a"), []byte("3")))

	keys, err := db.Keys([]byte("tenant/"))
	require.NoError(t, err)
	require.Len(t, keys, 2)
	require.Equal(t, "tenant/a", string(keys[0]))
	require.Equal(t, "tenant/b", string(keys[1]))

	_, err = db.Get([]byte("missing"))
	require.ErrorIs(t, err, storage.ErrNotFound)

	value, err := db.Get([]byte("tenant/a"))
	require.NoError(t, err)
	value[0] = 'x'
	again, err := db.Get([]byte("tenant/a"))
	require.NoError(t, err)
	require.Equal(t, []byte("1"), again, "stored values must not alias returned slices")
}
