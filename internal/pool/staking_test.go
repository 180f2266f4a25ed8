package pool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestStakingRewardsAccrueProRata(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, stakingConfig(true))
	f.give(t, depositToken, alice, n(100))
	f.give(t, depositToken, bob, n(300))
	f.give(t, rewardToken, admin, n(1000))
	require.NoError(t, f.reg.FundRewards(id, admin, n(1000)))

	_, err := f.reg.Contribute(id, alice, n(100), Authorization{})
	require.ErrorIs(t, err, ErrPoolNotActive)

	f.clk.SetHeight(110)
	_, err = f.reg.Contribute(id, alice, n(100), Authorization{})
	require.NoError(t, err)

	f.clk.SetHeight(120)
	_, err = f.reg.Contribute(id, bob, n(300), Authorization{})
	require.NoError(t, err)

	f.clk.SetHeight(130)
	aliceOwed, err := f.reg.Claimable(id, alice)
	require.NoError(t, err)
	bobOwed, err := f.reg.Claimable(id, bob)
	require.NoError(t, err)
	require.Equal(t, "125", aliceOwed.String())
	require.Equal(t, "75", bobOwed.String())

	paid, err := f.reg.Claim(id, alice)
	require.NoError(t, err)
	require.Equal(t, "125", paid.String())
	_, err = f.reg.Claim(id, alice)
	require.ErrorIs(t, err, ErrNothingToWithdraw)

	require.NoError(t, f.reg.WithdrawStake(id, alice, n(100)))
	require.Equal(t, "100", f.balance(t, depositToken, alice))
	requireLedgerInvariants(t, f.reg, id)

	f.clk.SetHeight(300)
	bobOwed, err = f.reg.Claimable(id, bob)
	require.NoError(t, err)
	require.Equal(t, "874", bobOwed.String())

	_, err = f.reg.WithdrawUnusedRewards(id, alice)
	require.ErrorIs(t, err, ErrNotBeneficiary)
	dust, err := f.reg.WithdrawUnusedRewards(id, beneficiary)
	require.NoError(t, err)
	require.Equal(t, "1", dust.String())

	paid, err = f.reg.Claim(id, bob)
	require.NoError(t, err)
	require.Equal(t, "874", paid.String())

	p, err := f.reg.Pool(id)
	require.NoError(t, err)
	require.Equal(t, "0", p.RewardBalance.String())

	_, err = f.reg.WithdrawBeneficiaryFunds(id, beneficiary)
	require.ErrorIs(t, err, ErrUnsupported)
}

func TestStakingBoundsAreHardLimits(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, stakingConfig(true))
	f.give(t, depositToken, alice, n(1000))
	f.clk.SetHeight(110)

	_, err := f.reg.Contribute(id, alice, n(40), Authorization{})
	require.ErrorIs(t, err, ErrBelowMinimum)
	_, err = f.reg.Contribute(id, alice, n(501), Authorization{})
	require.ErrorIs(t, err, ErrAboveMaximum)

	_, err = f.reg.Contribute(id, alice, n(100), Authorization{})
	require.NoError(t, err)
	_, err = f.reg.Contribute(id, alice, n(450), Authorization{})
	require.ErrorIs(t, err, ErrAboveMaximum)
	_, err = f.reg.Contribute(id, alice, n(49), Authorization{})
	require.ErrorIs(t, err, ErrBelowMinimum)

	c, err := f.reg.Contribution(id, alice)
	require.NoError(t, err)
	require.Equal(t, "100", c.Amount.String())
}

func TestStakeWithdrawRoundTrip(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, stakingConfig(false))
	f.give(t, depositToken, alice, n(400))
	f.clk.SetHeight(150)

	_, err := f.reg.Contribute(id, alice, n(400), Authorization{})
	require.NoError(t, err)

	err = f.reg.WithdrawStake(id, alice, n(400))
	require.ErrorIs(t, err, ErrStakeLocked)

	f.clk.SetHeight(210)
	err = f.reg.WithdrawStake(id, alice, n(401))
	require.ErrorIs(t, err, ErrInsufficientStake)

	require.NoError(t, f.reg.WithdrawStake(id, alice, n(150)))
	require.NoError(t, f.reg.WithdrawStake(id, alice, n(250)))
	require.Equal(t, "400", f.balance(t, depositToken, alice))

	c, err := f.reg.Contribution(id, alice)
	require.NoError(t, err)
	require.Equal(t, "0", c.Amount.String())
	require.Equal(t, "400", c.StakeWithdrawn.String())

	owed, err := f.reg.Claimable(id, alice)
	require.NoError(t, err)
	require.Equal(t, "600", owed.String())
	requireLedgerInvariants(t, f.reg, id)

	err = f.reg.WithdrawStake(id, alice, n(1))
	require.ErrorIs(t, err, ErrInsufficientStake)
}

func TestWithdrawStakeRequiresStakingPool(t *testing.T) {
	f := newFixture(t)
	id := f.create(t, allocationConfig(0, 0, 1000))
	err := f.reg.WithdrawStake(id, alice, n(1))
	require.ErrorIs(t, err, ErrUnsupported)
}
