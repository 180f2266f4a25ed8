package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tokenpools/internal/model"
	"tokenpools/internal/vesting"
)

// CreatePool validates cfg and registers a new pool under the next id.
func (r *Registry) CreatePool(caller common.Address, cfg PoolConfig) (uint64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cfg.Admins.IsAdmin(caller) {
		return 0, fmt.Errorf("%w: %s cannot create pools", ErrUnauthorized, caller.Hex())
	}
	cfg = cfg.clone()
	if cfg.Variant == VariantQuoteRefundable && cfg.RefundWindow == 0 {
		cfg.RefundWindow = r.cfg.DefaultRefundWindow
	}
	if err := r.validate(cfg, true); err != nil {
		return 0, err
	}

	id := uint64(len(r.pools))
	p := &Pool{
		PoolConfig:           cfg,
		ID:                   id,
		TotalRaised:          new(big.Int),
		RewardBalance:        new(big.Int),
		AccRewardPerShare:    new(big.Int),
		BeneficiaryWithdrawn: new(big.Int),
		CreatedAt:            r.clock.Now(),
	}
	if cfg.Variant == VariantStaking {
		p.LastRewardBlock = cfg.StartBlock
	}
	r.pools = append(r.pools, p)

	r.emit(model.EventPoolCreated, id, caller, nil, map[string]string{
		"variant":    string(cfg.Variant),
		"pool_limit": cfg.PoolLimit.String(),
	})
	r.logger.Info("pool created",
		poolField(id),
		zap.String("variant", string(cfg.Variant)),
		zap.String("name", cfg.Name),
		zap.String("pool_limit", cfg.PoolLimit.String()),
	)
	return id, nil
}

// UpdateBeneficiary changes where raised funds and unused rewards go.
func (r *Registry) UpdateBeneficiary(caller common.Address, id uint64, beneficiary common.Address) error {
	return r.update(caller, id, "beneficiary", false, func(p *Pool) error {
		if p.Finalized {
			return ErrAlreadyFinalized
		}
		p.Beneficiary = beneficiary
		return nil
	})
}

// UpdateAllocationBounds replaces the per-account bounds before the pool opens.
func (r *Registry) UpdateAllocationBounds(caller common.Address, id uint64, minAlloc, maxAlloc *big.Int) error {
	return r.update(caller, id, "allocation_bounds", true, func(p *Pool) error {
		if err := r.requireNotStarted(p); err != nil {
			return err
		}
		if minAlloc == nil || minAlloc.Sign() <= 0 {
			return fmt.Errorf("%w: minimum allocation must be positive", ErrInvalidConfig)
		}
		p.MinAllocation = copyInt(minAlloc)
		p.MaxAllocation = copyInt(maxAlloc)
		return nil
	})
}

// UpdateTimes moves the pool window before it opens. Staking pools take
// block heights.
func (r *Registry) UpdateTimes(caller common.Address, id uint64, start, end uint64) error {
	return r.update(caller, id, "times", true, func(p *Pool) error {
		if err := r.requireNotStarted(p); err != nil {
			return err
		}
		if p.Variant == VariantStaking {
			p.StartBlock, p.EndBlock = start, end
			p.LastRewardBlock = start
			return nil
		}
		p.StartTime, p.EndTime = start, end
		return nil
	})
}

// UpdatePrice is allowed until the first contribution.
func (r *Registry) UpdatePrice(caller common.Address, id uint64, price *big.Int) error {
	return r.update(caller, id, "price", false, func(p *Pool) error {
		if p.Contributors > 0 || p.TotalRaised.Sign() > 0 {
			return fmt.Errorf("%w: price is fixed once contributions exist", ErrInvalidConfig)
		}
		p.Price = copyInt(price)
		return nil
	})
}

// update applies a change to a copy of the pool and installs it only if the
// result still validates. The window is checked only when checkWindow is set.
func (r *Registry) update(caller common.Address, id uint64, field string, checkWindow bool, apply func(*Pool) error) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if !r.cfg.Admins.IsAdmin(caller) {
		return fmt.Errorf("%w: %s cannot update pools", ErrUnauthorized, caller.Hex())
	}
	cur, err := r.pool(id)
	if err != nil {
		return err
	}
	next := cur.clone()
	if err := apply(next); err != nil {
		return err
	}
	if err := r.validate(next.PoolConfig, checkWindow); err != nil {
		return err
	}
	r.pools[id] = next

	r.emit(model.EventPoolUpdated, id, caller, nil, map[string]string{"field": field})
	r.logger.Info("pool updated", poolField(id), zap.String("field", field))
	return nil
}

func (r *Registry) requireNotStarted(p *Pool) error {
	if p.TotalRaised.Sign() > 0 || p.Contributors > 0 || r.state(p) != StateCreated {
		return fmt.Errorf("%w: pool %d already started", ErrInvalidConfig, p.ID)
	}
	return nil
}

func (r *Registry) validate(cfg PoolConfig, checkWindow bool) error {
	invalid := func(format string, args ...any) error {
		return fmt.Errorf("%w: "+format, append([]any{ErrInvalidConfig}, args...)...)
	}

	if _, err := ParseVariant(string(cfg.Variant)); err != nil {
		return err
	}
	if cfg.DepositToken == (common.Address{}) {
		return invalid("deposit token is the zero address")
	}
	if cfg.RewardToken == (common.Address{}) {
		return invalid("reward token is the zero address")
	}
	if cfg.Beneficiary == (common.Address{}) {
		return invalid("beneficiary is the zero address")
	}
	if cfg.PoolLimit.Sign() <= 0 {
		return invalid("pool limit must be positive")
	}
	if cfg.MinAllocation.Sign() < 0 || cfg.MaxAllocation.Sign() < 0 {
		return invalid("allocation bounds must not be negative")
	}
	if cfg.MaxAllocation.Sign() > 0 && cfg.MaxAllocation.Cmp(cfg.MinAllocation) < 0 {
		return invalid("maximum allocation %s below minimum %s", cfg.MaxAllocation, cfg.MinAllocation)
	}

	if cfg.Variant == VariantStaking {
		if cfg.RewardPerBlock.Sign() <= 0 {
			return invalid("reward per block must be positive")
		}
		if checkWindow && cfg.StartBlock <= r.clock.Height() {
			return invalid("start block %d is not in the future", cfg.StartBlock)
		}
		if cfg.EndBlock <= cfg.StartBlock {
			return invalid("end block %d not after start block %d", cfg.EndBlock, cfg.StartBlock)
		}
		if cfg.Vesting != nil {
			return invalid("staking pools do not vest rewards")
		}
		return nil
	}

	if cfg.Price.Sign() <= 0 {
		return invalid("price must be positive")
	}
	if checkWindow && cfg.StartTime <= r.clock.Now() {
		return invalid("start time %d is not in the future", cfg.StartTime)
	}
	if cfg.EndTime <= cfg.StartTime {
		return invalid("end time %d not after start time %d", cfg.EndTime, cfg.StartTime)
	}
	switch cfg.Variant {
	case VariantQuoteRefundable:
		if cfg.QuoteSigner == (common.Address{}) {
			return invalid("quote signer is the zero address")
		}
		if cfg.RefundWindow == 0 {
			return invalid("refund window must be positive")
		}
	case VariantWhitelistClaim:
		if cfg.WhitelistRoot == (common.Hash{}) {
			return invalid("whitelist root is empty")
		}
	}
	if cfg.Vesting != nil {
		// Rewards vest from the pool end, so the whole schedule must fit after it.
		sched := vesting.Schedule{Total: new(big.Int), Start: cfg.EndTime, Cliff: cfg.Vesting.Cliff, Tranches: cfg.Vesting.Tranches}
		if err := sched.Validate(); err != nil {
			return invalid("vesting: %v", err)
		}
	}
	return nil
}
