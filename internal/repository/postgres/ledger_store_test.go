package postgres

import (
	"context"
	"math"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xela07ax/treasury-vesting/internal/domain"
	"go.uber.org/zap"
)

func TestAmountCodec(t *testing.T) {
	for _, v := range []uint64{0, 1, 100, math.MaxInt64, math.MaxUint64} {
		got, err := parseAmount(formatAmount(v))
		require.NoError(t, err)
		assert.Equal(t, v, got)
	}

	_, err := parseAmount("-1")
	assert.Error(t, err)
	_, err = parseAmount("1.5")
	assert.Error(t, err)
}

func TestAddressConversion(t *testing.T) {
	in := []domain.Address{"0xa", "0xb"}
	assert.Equal(t, []string{"0xa", "0xb"}, fromAddresses(in))
	assert.Equal(t, in, toAddresses([]string{"0xa", "0xb"}))
	assert.Equal(t, []domain.Address{}, toAddresses(nil))
}

// Интеграционный прогон против живой базы: TEST_DATABASE_URL=postgres://...
func TestLedgerStore_Roundtrip(t *testing.T) {
	url := os.Getenv("TEST_DATABASE_URL")
	if url == "" {
		t.Skip("TEST_DATABASE_URL is not set")
	}
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := NewPool(ctx, PoolConfig{URL: url})
	require.NoError(t, err)
	defer pool.Close()
	require.NoError(t, Migrate(ctx, pool, zap.NewNop()))

	_, err = pool.Exec(ctx, `TRUNCATE vestings, vesting_requests, withdraw_requests, ledger_counters`)
	require.NoError(t, err)

	store := NewLedgerStore(pool)
	cs := &domain.ChangeSet{
		TxID:     "tx-1",
		Counters: domain.Counters{NextVestingID: 2, NextRequestID: 2, NextWithdrawID: 2},
		Vestings: []domain.VestingEntry{{ID: 1, Beneficiary: "0xb", ReleaseTime: 10, Amount: math.MaxUint64}},
		VestingRequests: []domain.VestingRequest{{
			ID: 1, Beneficiary: "0xb", RequestedBy: "0xr", Amount: 5, ReleaseTime: 10,
			Approvals: []domain.Address{"0x1", "0x2"},
		}},
		WithdrawRequests: []domain.WithdrawRequest{{ID: 1, Amount: 7, RequestedBy: "0xo", Approvals: []domain.Address{}}},
	}
	require.NoError(t, store.Commit(ctx, cs))

	snap, err := store.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, cs.Counters, snap.Counters)
	assert.Equal(t, cs.Vestings, snap.Vestings)
	assert.Equal(t, cs.VestingRequests, snap.VestingRequests)
	assert.Equal(t, cs.WithdrawRequests, snap.WithdrawRequests)

	require.NoError(t, store.Commit(ctx, &domain.ChangeSet{
		TxID:     "tx-2",
		Counters: cs.Counters,
		Removed:  domain.Removed{Vestings: []uint64{1}},
	}))
	snap, err = store.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, snap.Vestings)
}
