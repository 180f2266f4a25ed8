package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tokenpools/internal/model"
	"tokenpools/internal/vesting"
)

// Claim pays account the reward released to it so far and returns the amount.
func (r *Registry) Claim(id uint64, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return nil, err
	}
	p := cur.clone()
	c := r.contribution(id, account).clone()

	var payout *big.Int
	switch p.Variant {
	case VariantWhitelistClaim:
		if c.WhitelistClaimed {
			return nil, ErrAlreadyClaimed
		}
		return nil, fmt.Errorf("%w: whitelist pools pay out in ClaimWhitelisted", ErrUnsupported)

	case VariantStaking:
		accrue(p, r.clock.Height())
		settle(p, c)
		payout = new(big.Int).Set(c.PendingReward)
		if payout.Sign() == 0 {
			return nil, ErrNothingToWithdraw
		}
		c.PendingReward.SetInt64(0)

	default:
		if st := r.state(p); st != StateEnded && st != StateFinalized {
			return nil, fmt.Errorf("%w: pool %d is %s", ErrPoolNotEnded, id, st)
		}
		owed := entitlement(p, c.Amount)
		if owed.Sign() == 0 {
			return nil, ErrNothingToWithdraw
		}
		if c.RewardReleased.Cmp(owed) >= 0 {
			return nil, ErrAlreadyClaimed
		}
		payout, err = vesting.Withdrawable(r.rewardSchedule(p, owed), c.RewardReleased, r.clock.Now())
		if err != nil {
			return nil, err
		}
	}

	if p.RewardBalance.Cmp(payout) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientRewards, p.RewardBalance, payout)
	}
	c.RewardReleased.Add(c.RewardReleased, payout)
	p.RewardBalance.Sub(p.RewardBalance, payout)

	undo := r.stage(p, c)
	if err := r.send(p.RewardToken, account, payout); err != nil {
		undo()
		return nil, err
	}

	r.emit(model.EventRewardClaimed, id, account, payout, map[string]string{"released": c.RewardReleased.String()})
	r.logger.Info("reward claimed",
		poolField(id),
		zap.String("account", account.Hex()),
		zap.String("amount", payout.String()),
	)
	return payout, nil
}

// rewardSchedule releases owed from the pool end, through the pool vesting
// terms when present and all at once otherwise.
func (r *Registry) rewardSchedule(p *Pool, owed *big.Int) vesting.Schedule {
	s := vesting.Schedule{
		Total:    owed,
		Start:    p.EndTime,
		Tranches: []vesting.Tranche{{Percent: 100}},
	}
	if p.Vesting != nil {
		s.Cliff = p.Vesting.Cliff
		s.Tranches = p.Vesting.Tranches
	}
	return s
}

// Claimable reports what Claim would pay account now without paying it.
func (r *Registry) Claimable(id uint64, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, err := r.pool(id)
	if err != nil {
		return nil, err
	}
	c := r.contribution(id, account)
	switch p.Variant {
	case VariantWhitelistClaim:
		return new(big.Int), nil
	case VariantStaking:
		return pendingAt(p, c, r.clock.Height()), nil
	}
	if st := r.state(p); st != StateEnded && st != StateFinalized {
		return new(big.Int), nil
	}
	out := r.rewardSchedule(p, entitlement(p, c.Amount)).Unlocked(r.clock.Now())
	out.Sub(out, c.RewardReleased)
	if out.Sign() < 0 {
		out.SetInt64(0)
	}
	return out, nil
}

// FundRewards pulls amount of the reward token from `from` into the pool.
func (r *Registry) FundRewards(id uint64, from common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return err
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: funding must be positive", ErrInvalidAmount)
	}
	p := cur.clone()
	p.RewardBalance.Add(p.RewardBalance, amount)

	undo := r.stage(p, nil)
	if err := r.pull(p.RewardToken, from, amount); err != nil {
		undo()
		return err
	}

	r.emit(model.EventRewardsFunded, id, from, amount, map[string]string{"reward_balance": p.RewardBalance.String()})
	r.logger.Info("rewards funded", poolField(id), zap.String("from", from.Hex()), zap.String("amount", amount.String()))
	return nil
}

// WithdrawBeneficiaryFunds pays the raised deposit to the beneficiary once
// the pool is full or its window has passed, and finalizes the pool.
func (r *Registry) WithdrawBeneficiaryFunds(id uint64, caller common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return nil, err
	}
	if cur.Variant == VariantStaking {
		return nil, fmt.Errorf("%w: staked deposits belong to stakers", ErrUnsupported)
	}
	if caller != cur.Beneficiary {
		return nil, fmt.Errorf("%w: %s", ErrNotBeneficiary, caller.Hex())
	}
	switch st := r.state(cur); st {
	case StateFinalized:
		return nil, ErrAlreadyFinalized
	case StateEnded:
	case StateRefundable:
		return nil, fmt.Errorf("%w: refund window open until %d", ErrLimitNotReached, cur.EndTime+cur.RefundWindow)
	default:
		return nil, fmt.Errorf("%w: raised %s of %s", ErrLimitNotReached, cur.TotalRaised, cur.PoolLimit)
	}

	p := cur.clone()
	amount := new(big.Int).Sub(p.TotalRaised, p.BeneficiaryWithdrawn)
	p.BeneficiaryWithdrawn.Set(p.TotalRaised)
	p.Finalized = true

	undo := r.stage(p, nil)
	if err := r.send(p.DepositToken, p.Beneficiary, amount); err != nil {
		undo()
		return nil, err
	}

	r.emit(model.EventBeneficiaryWithdrawn, id, caller, amount, nil)
	r.logger.Info("beneficiary withdrew raised funds", poolField(id), zap.String("amount", amount.String()))
	return amount, nil
}

// WithdrawUnusedRewards returns reward tokens not owed to any contributor to
// the beneficiary after the pool window.
func (r *Registry) WithdrawUnusedRewards(id uint64, caller common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return nil, err
	}
	if caller != cur.Beneficiary {
		return nil, fmt.Errorf("%w: %s", ErrNotBeneficiary, caller.Hex())
	}
	if r.windowOpen(cur) {
		return nil, fmt.Errorf("%w: pool %d window still open", ErrPoolNotEnded, id)
	}
	if st := r.state(cur); st != StateEnded && st != StateFinalized {
		return nil, fmt.Errorf("%w: pool %d is %s", ErrPoolNotEnded, id, st)
	}

	p := cur.clone()
	if p.Variant == VariantStaking {
		accrue(p, r.clock.Height())
	}
	reserved := new(big.Int)
	for _, acct := range r.accounts[id] {
		c := r.contribs[contribKey{pool: id, account: acct}]
		switch p.Variant {
		case VariantWhitelistClaim:
		case VariantStaking:
			reserved.Add(reserved, pendingAt(p, c, p.LastRewardBlock))
		default:
			owed := entitlement(p, c.Amount)
			owed.Sub(owed, c.RewardReleased)
			if owed.Sign() > 0 {
				reserved.Add(reserved, owed)
			}
		}
	}
	surplus := new(big.Int).Sub(p.RewardBalance, reserved)
	if surplus.Sign() <= 0 {
		return nil, ErrNothingToWithdraw
	}
	p.RewardBalance.Sub(p.RewardBalance, surplus)

	undo := r.stage(p, nil)
	if err := r.send(p.RewardToken, p.Beneficiary, surplus); err != nil {
		undo()
		return nil, err
	}

	r.emit(model.EventUnusedRewardsWithdrawn, id, caller, surplus, map[string]string{"reserved": reserved.String()})
	r.logger.Info("unused rewards withdrawn", poolField(id), zap.String("amount", surplus.String()))
	return surplus, nil
}

// Refund returns account's whole contribution while a quote pool that missed
// its limit is inside the refund window.
func (r *Registry) Refund(id uint64, account common.Address) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return nil, err
	}
	if cur.Variant != VariantQuoteRefundable {
		return nil, fmt.Errorf("%w: pool %d is %s", ErrUnsupported, id, cur.Variant)
	}
	switch st := r.state(cur); st {
	case StateRefundable:
	case StateCreated, StateActive:
		return nil, fmt.Errorf("%w: not yet open", ErrRefundWindowClosed)
	default:
		if cur.TotalRaised.Cmp(cur.PoolLimit) >= 0 {
			return nil, fmt.Errorf("%w: pool reached its limit", ErrRefundWindowClosed)
		}
		return nil, fmt.Errorf("%w: closed at %d", ErrRefundWindowClosed, cur.EndTime+cur.RefundWindow)
	}

	c := r.contribution(id, account).clone()
	if c.Amount.Sign() == 0 || c.RewardReleased.Sign() > 0 {
		return nil, ErrNothingToRefund
	}

	p := cur.clone()
	amount := new(big.Int).Set(c.Amount)
	c.Refunded.Add(c.Refunded, amount)
	c.Amount.SetInt64(0)
	p.TotalRaised.Sub(p.TotalRaised, amount)

	undo := r.stage(p, c)
	if err := r.send(p.DepositToken, account, amount); err != nil {
		undo()
		return nil, err
	}

	r.emit(model.EventRefunded, id, account, amount, nil)
	r.logger.Info("contribution refunded",
		poolField(id),
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
	)
	return amount, nil
}
