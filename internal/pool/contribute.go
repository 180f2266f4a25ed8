package pool

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tokenpools/internal/model"
	"tokenpools/internal/proof"
)

// Contribute admits up to amount of the deposit token from account.
//
// Allocation pools clamp the account total to MaxAllocation; staking and
// quote pools reject contributions that would exceed their per-account
// limit. Every variant fills at most the room left under PoolLimit and
// reports the excess in the receipt.
func (r *Registry) Contribute(id uint64, account common.Address, amount *big.Int, auth Authorization) (Receipt, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	receipt, err := r.contribute(id, account, amount, auth)
	if err != nil {
		r.logger.Debug("contribution rejected",
			poolField(id),
			zap.String("account", account.Hex()),
			zap.String("amount", fmt.Sprint(amount)),
			zap.Error(err),
		)
	}
	return receipt, err
}

func (r *Registry) contribute(id uint64, account common.Address, amount *big.Int, auth Authorization) (Receipt, error) {
	cur, err := r.pool(id)
	if err != nil {
		return Receipt{}, err
	}
	if amount == nil || amount.Sign() <= 0 {
		return Receipt{}, fmt.Errorf("%w: contribution must be positive", ErrInvalidAmount)
	}
	if account == (common.Address{}) {
		return Receipt{}, fmt.Errorf("%w: zero account", ErrInvalidAmount)
	}
	if err := r.requireAdmitting(cur); err != nil {
		return Receipt{}, err
	}

	p := cur.clone()
	c := r.contribution(id, account).clone()
	fresh := r.isNew(id, account)

	accepted := new(big.Int).Set(amount)
	var reason error

	switch p.Variant {
	case VariantWhitelistClaim:
		return Receipt{}, fmt.Errorf("%w: whitelist pools admit through ClaimWhitelisted", ErrUnsupported)

	case VariantQuoteRefundable:
		if auth.Amount == nil || !proof.VerifyQuote(p.QuoteSigner, account, auth.Amount, auth.Signature) {
			return Receipt{}, ErrInvalidSignature
		}
		total := new(big.Int).Add(c.Amount, amount)
		if total.Cmp(auth.Amount) > 0 {
			return Receipt{}, fmt.Errorf("%w: total %s exceeds quote %s", ErrAboveMaximum, total, auth.Amount)
		}
		if err := checkBounds(p, c, amount); err != nil {
			return Receipt{}, err
		}

	case VariantStaking:
		if p.MinAllocation.Sign() > 0 && amount.Cmp(p.MinAllocation) < 0 {
			return Receipt{}, fmt.Errorf("%w: %s below %s", ErrBelowMinimum, amount, p.MinAllocation)
		}
		total := new(big.Int).Add(c.Amount, amount)
		if p.MaxAllocation.Sign() > 0 && total.Cmp(p.MaxAllocation) > 0 {
			return Receipt{}, fmt.Errorf("%w: total %s exceeds %s", ErrAboveMaximum, total, p.MaxAllocation)
		}

	case VariantAllocation:
		limit := p.MaxAllocation
		if p.WhitelistRoot != (common.Hash{}) {
			if auth.Amount == nil || !proof.VerifyWhitelist(p.WhitelistRoot, id, account, auth.Amount, auth.Proof) {
				return Receipt{}, ErrInvalidProof
			}
			if auth.Amount.Sign() == 0 {
				return Receipt{}, fmt.Errorf("%w: %s is whitelisted for nothing", ErrAboveMaximum, account.Hex())
			}
			if limit.Sign() == 0 || auth.Amount.Cmp(limit) < 0 {
				limit = auth.Amount
			}
		}
		if c.Amount.Sign() == 0 && p.MinAllocation.Sign() > 0 && amount.Cmp(p.MinAllocation) < 0 {
			return Receipt{}, fmt.Errorf("%w: %s below %s", ErrBelowMinimum, amount, p.MinAllocation)
		}
		if limit.Sign() > 0 {
			room := new(big.Int).Sub(limit, c.Amount)
			if room.Sign() <= 0 {
				return Receipt{}, fmt.Errorf("%w: account already holds %s", ErrAboveMaximum, c.Amount)
			}
			if accepted.Cmp(room) > 0 {
				accepted.Set(room)
				reason = ErrAboveMaximum
			}
		}
	}

	room := new(big.Int).Sub(p.PoolLimit, p.TotalRaised)
	if room.Sign() <= 0 {
		return Receipt{}, ErrPoolFull
	}
	if accepted.Cmp(room) > 0 {
		accepted.Set(room)
		reason = ErrPoolFull
	}

	if p.Variant == VariantStaking {
		accrue(p, r.clock.Height())
		settle(p, c)
	}
	c.Amount.Add(c.Amount, accepted)
	p.TotalRaised.Add(p.TotalRaised, accepted)
	if p.Variant == VariantStaking {
		checkpoint(p, c)
	}
	if fresh {
		p.Contributors++
	}

	undo := r.stage(p, c)
	if err := r.pull(p.DepositToken, account, accepted); err != nil {
		undo()
		return Receipt{}, err
	}

	receipt := Receipt{
		Requested: new(big.Int).Set(amount),
		Accepted:  accepted,
		Rejected:  new(big.Int).Sub(amount, accepted),
	}
	if receipt.Rejected.Sign() > 0 {
		receipt.Reason = reason
	}

	fields := map[string]string{"requested": amount.String(), "total_raised": p.TotalRaised.String()}
	if receipt.Reason != nil {
		fields["rejected"] = receipt.Rejected.String()
		fields["reason"] = receipt.Reason.Error()
	}
	r.emit(model.EventContributed, id, account, accepted, fields)
	r.logger.Info("contribution accepted",
		poolField(id),
		zap.String("account", account.Hex()),
		zap.String("amount", accepted.String()),
		zap.String("rejected", receipt.Rejected.String()),
		zap.String("total_raised", p.TotalRaised.String()),
	)
	return receipt, nil
}

// requireAdmitting checks the pool window. A pool that is inside its window
// but already at its limit is reported as full rather than inactive.
func (r *Registry) requireAdmitting(p *Pool) error {
	switch st := r.state(p); st {
	case StateActive:
		return nil
	case StateEnded:
		if r.windowOpen(p) && p.TotalRaised.Cmp(p.PoolLimit) >= 0 {
			return ErrPoolFull
		}
		return fmt.Errorf("%w: pool %d is %s", ErrPoolNotActive, p.ID, st)
	default:
		return fmt.Errorf("%w: pool %d is %s", ErrPoolNotActive, p.ID, st)
	}
}

// checkBounds hard-rejects contributions outside MinAllocation/MaxAllocation.
func checkBounds(p *Pool, c *Contribution, amount *big.Int) error {
	total := new(big.Int).Add(c.Amount, amount)
	if c.Amount.Sign() == 0 && p.MinAllocation.Sign() > 0 && total.Cmp(p.MinAllocation) < 0 {
		return fmt.Errorf("%w: %s below %s", ErrBelowMinimum, total, p.MinAllocation)
	}
	if p.MaxAllocation.Sign() > 0 && total.Cmp(p.MaxAllocation) > 0 {
		return fmt.Errorf("%w: total %s exceeds %s", ErrAboveMaximum, total, p.MaxAllocation)
	}
	return nil
}

// ClaimWhitelisted buys the whitelisted reward amount for account. The
// deposit cost is amount*price/1e18 and must fit under PoolLimit whole.
func (r *Registry) ClaimWhitelisted(id uint64, account common.Address, amount *big.Int, path []common.Hash) (*big.Int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return nil, err
	}
	if cur.Variant != VariantWhitelistClaim {
		return nil, fmt.Errorf("%w: pool %d is %s", ErrUnsupported, id, cur.Variant)
	}
	if amount == nil || amount.Sign() <= 0 {
		return nil, fmt.Errorf("%w: claim must be positive", ErrInvalidAmount)
	}
	if err := r.requireAdmitting(cur); err != nil {
		return nil, err
	}
	if !proof.VerifyWhitelist(cur.WhitelistRoot, id, account, amount, path) {
		return nil, ErrInvalidProof
	}
	c := r.contribution(id, account).clone()
	if c.WhitelistClaimed {
		return nil, ErrAlreadyClaimed
	}

	cost := mulDiv(amount, cur.Price, priceScale)
	if cost.Sign() == 0 {
		return nil, fmt.Errorf("%w: claim of %s costs nothing at price %s", ErrInvalidAmount, amount, cur.Price)
	}
	if new(big.Int).Add(cur.TotalRaised, cost).Cmp(cur.PoolLimit) > 0 {
		return nil, fmt.Errorf("%w: cost %s exceeds remaining %s", ErrPoolFull, cost, new(big.Int).Sub(cur.PoolLimit, cur.TotalRaised))
	}
	if cur.RewardBalance.Cmp(amount) < 0 {
		return nil, fmt.Errorf("%w: have %s, need %s", ErrInsufficientRewards, cur.RewardBalance, amount)
	}

	p := cur.clone()
	fresh := r.isNew(id, account)
	c.Amount.Add(c.Amount, cost)
	c.RewardReleased.Add(c.RewardReleased, amount)
	c.WhitelistClaimed = true
	p.TotalRaised.Add(p.TotalRaised, cost)
	p.RewardBalance.Sub(p.RewardBalance, amount)
	if fresh {
		p.Contributors++
	}

	undo := r.stage(p, c)
	if err := r.pull(p.DepositToken, account, cost); err != nil {
		undo()
		return nil, err
	}
	if err := r.send(p.RewardToken, account, amount); err != nil {
		if rerr := r.send(p.DepositToken, account, cost); rerr != nil {
			r.logger.Error("return deposit after failed reward payout",
				poolField(id), zap.String("account", account.Hex()), zap.Error(rerr))
			err = errors.Join(err, rerr)
		}
		undo()
		return nil, err
	}

	r.emit(model.EventWhitelistClaimed, id, account, amount, map[string]string{"cost": cost.String()})
	r.logger.Info("whitelist claim paid",
		poolField(id),
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
		zap.String("cost", cost.String()),
	)
	return cost, nil
}

// WithdrawStake returns staked deposit to account. Rewards earned so far are
// kept as pending and stay claimable.
func (r *Registry) WithdrawStake(id uint64, account common.Address, amount *big.Int) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	cur, err := r.pool(id)
	if err != nil {
		return err
	}
	if cur.Variant != VariantStaking {
		return fmt.Errorf("%w: pool %d is %s", ErrUnsupported, id, cur.Variant)
	}
	if amount == nil || amount.Sign() <= 0 {
		return fmt.Errorf("%w: withdrawal must be positive", ErrInvalidAmount)
	}
	c := r.contribution(id, account).clone()
	if c.Amount.Cmp(amount) < 0 {
		return fmt.Errorf("%w: staked %s, requested %s", ErrInsufficientStake, c.Amount, amount)
	}
	if !cur.ImmediateWithdraw && r.windowOpen(cur) {
		return fmt.Errorf("%w: block %d < end block %d", ErrStakeLocked, r.clock.Height(), cur.EndBlock)
	}

	p := cur.clone()
	accrue(p, r.clock.Height())
	settle(p, c)
	c.Amount.Sub(c.Amount, amount)
	c.StakeWithdrawn.Add(c.StakeWithdrawn, amount)
	p.TotalRaised.Sub(p.TotalRaised, amount)
	checkpoint(p, c)

	undo := r.stage(p, c)
	if err := r.send(p.DepositToken, account, amount); err != nil {
		undo()
		return err
	}

	r.emit(model.EventStakeWithdrawn, id, account, amount, nil)
	r.logger.Info("stake withdrawn",
		poolField(id),
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
	)
	return nil
}
