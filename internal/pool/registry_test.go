package pool

import (
	"encoding/json"
	"math"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenpools/internal/model"
	"tokenpools/internal/vesting"
)

func TestCreatePoolAssignsSequentialIDs(t *testing.T) {
	f := newFixture(t)
	for want := uint64(0); want < 3; want++ {
		id := f.create(t, allocationConfig(0, 0, 1000))
		require.Equal(t, want, id)
	}
	require.Equal(t, uint64(3), f.reg.NextID())
	require.Len(t, f.reg.Pools(), 3)

	_, err := f.reg.CreatePool(alice, allocationConfig(0, 0, 1000))
	require.ErrorIs(t, err, ErrUnauthorized)
	_, err = f.reg.CreatePool(admin, allocationConfig(0, 0, 0))
	require.ErrorIs(t, err, ErrInvalidConfig)
	require.Equal(t, uint64(3), f.reg.NextID(), "failed creations do not consume ids")

	_, err = f.reg.Pool(3)
	require.ErrorIs(t, err, ErrPoolNotFound)
}

func TestCreatePoolValidation(t *testing.T) {
	cases := map[string]func(*PoolConfig){
		"unknown variant":    func(c *PoolConfig) { c.Variant = "lottery" },
		"zero deposit token": func(c *PoolConfig) { c.DepositToken = common.Address{} },
		"zero reward token":  func(c *PoolConfig) { c.RewardToken = common.Address{} },
		"zero beneficiary":   func(c *PoolConfig) { c.Beneficiary = common.Address{} },
		"zero price":         func(c *PoolConfig) { c.Price = n(0) },
		"nil limit":          func(c *PoolConfig) { c.PoolLimit = nil },
		"max below min":      func(c *PoolConfig) { c.MinAllocation, c.MaxAllocation = n(10), n(9) },
		"negative min":       func(c *PoolConfig) { c.MinAllocation = n(-1) },
		"start in past":      func(c *PoolConfig) { c.StartTime = t0 },
		"end before start":   func(c *PoolConfig) { c.EndTime = c.StartTime },
		"quote no signer":    func(c *PoolConfig) { c.Variant = VariantQuoteRefundable },
		"whitelist no root":  func(c *PoolConfig) { c.Variant = VariantWhitelistClaim },
		"bad vesting": func(c *PoolConfig) {
			c.Vesting = &VestingTerms{Tranches: []vesting.Tranche{{Percent: 60, Duration: day}}}
		},
		"vesting cliff overflows": func(c *PoolConfig) {
			c.Vesting = &VestingTerms{Cliff: math.MaxUint64 - c.EndTime + 10, Tranches: []vesting.Tranche{{Percent: 100, Duration: 1000}}}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			f := newFixture(t)
			cfg := allocationConfig(0, 0, 1000)
			mutate(&cfg)
			_, err := f.reg.CreatePool(admin, cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}

	staking := map[string]func(*PoolConfig){
		"no reward rate":     func(c *PoolConfig) { c.RewardPerBlock = nil },
		"start block passed": func(c *PoolConfig) { c.StartBlock = 100 },
		"empty block window": func(c *PoolConfig) { c.EndBlock = c.StartBlock },
		"vesting":            func(c *PoolConfig) { c.Vesting = &VestingTerms{Tranches: []vesting.Tranche{{Percent: 100}}} },
	}
	for name, mutate := range staking {
		t.Run("staking "+name, func(t *testing.T) {
			f := newFixture(t)
			cfg := stakingConfig(true)
			mutate(&cfg)
			_, err := f.reg.CreatePool(admin, cfg)
			require.ErrorIs(t, err, ErrInvalidConfig)
		})
	}
}

func TestCreatePoolCopiesConfig(t *testing.T) {
	f := newFixture(t)
	cfg := allocationConfig(0, 0, 1000)
	id := f.create(t, cfg)
	cfg.PoolLimit.SetInt64(1)

	p, err := f.reg.Pool(id)
	require.NoError(t, err)
	require.Equal(t, "1000", p.PoolLimit.String())
	p.TotalRaised.SetInt64(99)
	again, _ := f.reg.Pool(id)
	require.Equal(t, "0", again.TotalRaised.String())
}

func TestUpdatesBeforeStart(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, allocationConfig(100, 1000, 10000))

	require.ErrorIs(t, f.reg.UpdatePrice(alice, id, e18(3)), ErrUnauthorized)
	require.ErrorIs(t, f.reg.UpdatePrice(admin, 5, e18(3)), ErrPoolNotFound)

	require.NoError(t, f.reg.UpdatePrice(admin, id, e18(3)))
	require.NoError(t, f.reg.UpdateAllocationBounds(admin, id, n(200), n(2000)))
	require.ErrorIs(t, f.reg.UpdateAllocationBounds(admin, id, n(0), n(2000)), ErrInvalidConfig)
	require.ErrorIs(t, f.reg.UpdateAllocationBounds(admin, id, n(300), n(200)), ErrInvalidConfig)
	require.NoError(t, f.reg.UpdateTimes(admin, id, t0+2*hour, t0+3*hour))
	require.ErrorIs(t, f.reg.UpdateTimes(admin, id, t0+2*hour, t0+2*hour), ErrInvalidConfig)
	require.NoError(t, f.reg.UpdateBeneficiary(admin, id, carol))
	require.ErrorIs(t, f.reg.UpdateBeneficiary(admin, id, common.Address{}), ErrInvalidConfig)

	p, err := f.reg.Pool(id)
	require.NoError(t, err)
	require.Equal(t, e18(3).String(), p.Price.String())
	require.Equal(t, "200", p.MinAllocation.String())
	require.Equal(t, "2000", p.MaxAllocation.String())
	require.Equal(t, t0+2*hour, p.StartTime)
	require.Equal(t, carol, p.Beneficiary)
}

func TestUpdatesAfterStart(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, allocationConfig(100, 1000, 10000))
	f.give(t, depositToken, alice, n(500))

	f.clk.Set(t0 + hour)
	require.ErrorIs(t, f.reg.UpdateTimes(admin, id, t0+2*hour, t0+3*hour), ErrInvalidConfig)
	require.ErrorIs(t, f.reg.UpdateAllocationBounds(admin, id, n(1), n(2)), ErrInvalidConfig)
	require.NoError(t, f.reg.UpdatePrice(admin, id, e18(1)))

	_, err := f.reg.Contribute(id, alice, n(500), Authorization{})
	require.NoError(t, err)
	require.ErrorIs(t, f.reg.UpdatePrice(admin, id, e18(5)), ErrInvalidConfig)
	require.NoError(t, f.reg.UpdateBeneficiary(admin, id, carol))
}

func TestStakingUpdateTimesUsesBlocks(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, stakingConfig(true))
	require.NoError(t, f.reg.UpdateTimes(admin, id, 150, 400))
	p, err := f.reg.Pool(id)
	require.NoError(t, err)
	require.Equal(t, uint64(150), p.StartBlock)
	require.Equal(t, uint64(400), p.EndBlock)
	require.Equal(t, uint64(150), p.LastRewardBlock)
}

func TestSnapshotRestoreRoundTrip(t *testing.T) {
	f := newFixture(t)
	alloc := allocationConfig(0, 0, 10000)
	alloc.Vesting = &VestingTerms{Cliff: hour, Tranches: []vesting.Tranche{{Percent: 100, Duration: day}}}
	a := f.create(t, alloc)
	s := f.create(t, stakingConfig(true))
	f.give(t, depositToken, alice, n(5000))
	f.give(t, depositToken, bob, n(5000))
	f.give(t, rewardToken, admin, n(1000))
	require.NoError(t, f.reg.FundRewards(s, admin, n(1000)))

	f.clk.Set(t0 + hour)
	f.clk.SetHeight(120)
	_, err := f.reg.Contribute(a, alice, n(1200), Authorization{})
	require.NoError(t, err)
	_, err = f.reg.Contribute(a, bob, n(800), Authorization{})
	require.NoError(t, err)
	_, err = f.reg.Contribute(s, bob, n(300), Authorization{})
	require.NoError(t, err)
	f.clk.SetHeight(140)
	_, err = f.reg.Claim(s, bob)
	require.NoError(t, err)

	snap := f.reg.Snapshot()
	raw, err := json.Marshal(snap)
	require.NoError(t, err)
	var decoded model.Snapshot
	require.NoError(t, json.Unmarshal(raw, &decoded))

	restored := NewRegistry(Config{Custody: custody, Admins: NewStaticAdmins(admin)}, f.vt, f.clk, zap.NewNop())
	require.NoError(t, restored.Restore(decoded))
	require.Equal(t, snap, restored.Snapshot())
	for _, id := range []uint64{a, s} {
		st, err := restored.State(id)
		require.NoError(t, err)
		orig, _ := f.reg.State(id)
		require.Equal(t, orig, st)
	}

	next := restored.NextID()
	require.Equal(t, uint64(2), next)
	requireLedgerInvariants(t, restored, a)
	requireLedgerInvariants(t, restored, s)
}

func TestRestoreRejectsInconsistentSnapshots(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, allocationConfig(0, 0, 10000))
	f.give(t, depositToken, alice, n(100))
	f.clk.Set(t0 + hour)
	_, err := f.reg.Contribute(id, alice, n(100), Authorization{})
	require.NoError(t, err)

	snap := f.reg.Snapshot()
	snap.Pools[0].TotalRaised = "150"
	require.Error(t, f.reg.Restore(snap))

	snap = f.reg.Snapshot()
	snap.Contributions = append(snap.Contributions, snap.Contributions[0])
	require.Error(t, f.reg.Restore(snap))

	snap = f.reg.Snapshot()
	snap.Pools[0].ID = 4
	require.Error(t, f.reg.Restore(snap))

	snap = f.reg.Snapshot()
	snap.Contributions[0].Amount = "-1"
	require.Error(t, f.reg.Restore(snap))

	p, err := f.reg.Pool(id)
	require.NoError(t, err)
	require.Equal(t, "100", p.TotalRaised.String())
}

func TestVestingMustFitAfterPoolEnd(t *testing.T) {
	f := newFixture(t)
	cfg := allocationConfig(0, 0, 10000)
	// ends 50 seconds before the uint64 limit
	cfg.Vesting = &VestingTerms{
		Cliff:    math.MaxUint64 - cfg.EndTime - 100,
		Tranches: []vesting.Tranche{{Percent: 100, Duration: 50}},
	}
	id := f.create(t, cfg)

	err := f.reg.UpdateTimes(admin, id, cfg.StartTime, cfg.EndTime+100)
	require.ErrorIs(t, err, ErrInvalidConfig)
	p, err := f.reg.Pool(id)
	require.NoError(t, err)
	require.Equal(t, cfg.EndTime, p.EndTime)

	f.give(t, depositToken, alice, n(1000))
	f.give(t, rewardToken, admin, n(2000))
	require.NoError(t, f.reg.FundRewards(id, admin, n(2000)))
	f.clk.Set(t0 + hour)
	_, err = f.reg.Contribute(id, alice, n(1000), Authorization{})
	require.NoError(t, err)

	f.clk.Set(cfg.EndTime + 1)
	_, err = f.reg.Claim(id, alice)
	require.ErrorIs(t, err, vesting.ErrNothingToWithdraw)
	require.Equal(t, "0", f.balance(t, rewardToken, alice))
}

func TestRestoreValidatesPoolRecords(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, allocationConfig(0, 0, 10000))
	f.give(t, depositToken, alice, n(100))
	f.clk.Set(t0 + hour)
	_, err := f.reg.Contribute(id, alice, n(100), Authorization{})
	require.NoError(t, err)

	zero := common.Address{}.Hex()
	cases := map[string]func(*model.Snapshot){
		"empty limit":        func(s *model.Snapshot) { s.Pools[0].PoolLimit = "" },
		"zero limit":         func(s *model.Snapshot) { s.Pools[0].PoolLimit = "0" },
		"zero deposit token": func(s *model.Snapshot) { s.Pools[0].DepositToken = zero },
		"zero beneficiary":   func(s *model.Snapshot) { s.Pools[0].Beneficiary = zero },
		"zero price":         func(s *model.Snapshot) { s.Pools[0].Price = "0" },
		"contributors count": func(s *model.Snapshot) { s.Pools[0].Contributors = 2 },
		"end before start":   func(s *model.Snapshot) { s.Pools[0].EndTime = s.Pools[0].StartTime },
		"vesting overflows": func(s *model.Snapshot) {
			s.Pools[0].Vesting = &model.VestingRecord{
				Cliff:    math.MaxUint64,
				Tranches: []model.TrancheRecord{{Percent: 100, Duration: 1}},
			}
		},
	}
	for name, mutate := range cases {
		t.Run(name, func(t *testing.T) {
			snap := f.reg.Snapshot()
			mutate(&snap)
			restored := NewRegistry(Config{Custody: custody, Admins: NewStaticAdmins(admin)}, f.vt, f.clk, zap.NewNop())
			require.Error(t, restored.Restore(snap))
			require.Empty(t, restored.Pools())
		})
	}
}
