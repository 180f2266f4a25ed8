package postgres

import (
	"context"
	"io/fs"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"tokenpools/internal/model"
	"tokenpools/internal/storage"
	"tokenpools/internal/storage/postgres/migrations"
)

var (
	_ storage.EventSink     = (*Store)(nil)
	_ storage.SnapshotStore = (*Store)(nil)
)

func TestMigrationsEmbedded(t *testing.T) {
	for _, name := range []string{"000001_init.up.sql", "000001_init.down.sql"} {
		data, err := fs.ReadFile(migrations.FS, name)
		require.NoError(t, err)
		require.NotEmpty(t, data)
	}
}

func TestOptionalValues(t *testing.T) {
	require.Nil(t, optionalInt(nil))
	v := uint64(7)
	require.Equal(t, int64(7), *optionalInt(&v))
	require.Nil(t, optionalText(""))
	require.Equal(t, "10", *optionalText("10"))
}

// Runs against a scratch database named by POOLS_TEST_PG_DSN.
func TestStoreRoundTrip(t *testing.T) {
	dsn := os.Getenv("POOLS_TEST_PG_DSN")
	if dsn == "" {
		t.Skip("POOLS_TEST_PG_DSN not set")
	}
	ctx := context.Background()
	require.NoError(t, Migrate(dsn))
	require.NoError(t, Migrate(dsn))

	s, err := NewStore(ctx, dsn)
	require.NoError(t, err)
	defer s.Close()
	require.NoError(t, s.Ping(ctx))

	snap := model.Snapshot{
		Timestamp: 1_700_000_000,
		Height:    12,
		Pools: []model.Pool{
			{ID: 0, Variant: "allocation", DepositToken: "0x01", RewardToken: "0x02", Price: "2000000000000000000", TotalRaised: "7000"},
		},
		Contributions: []model.Contribution{
			{PoolID: 0, Account: "0xb", Amount: "4000", RewardReleased: "0", StakeWithdrawn: "0", Refunded: "0"},
			{PoolID: 0, Account: "0xa", Amount: "3000", RewardReleased: "0", StakeWithdrawn: "0", Refunded: "0"},
		},
		Locks: []model.Lock{
			{ID: 0, Kind: "linear", Token: "0x03", Depositor: "0x04", Vesting: model.VestingRecord{Cliff: 5, Tranches: []model.TrancheRecord{{Percent: 100, Duration: 10}}},
				Beneficiaries: []model.LockBeneficiary{{Account: "0x05", Amount: "10", Released: "0"}}},
		},
	}
	require.NoError(t, s.SaveSnapshot(ctx, snap))
	require.NoError(t, s.SaveSnapshot(ctx, snap))

	got, ok, err := s.LoadSnapshot(ctx)
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, snap, got)

	poolID := uint64(0)
	ev := model.Event{ID: uuid.NewString(), Name: model.EventContributed, PoolID: &poolID, Account: "0xa", Amount: "3000", Timestamp: 1}
	require.NoError(t, s.PutEventBatch(ctx, []model.Event{ev}))
	require.NoError(t, s.PutEventBatch(ctx, []model.Event{ev}))
	require.Error(t, s.PutEventBatch(ctx, []model.Event{{ID: "not-a-uuid"}}))
}
