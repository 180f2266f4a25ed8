package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tokenpools/internal/model"
	"tokenpools/internal/vesting"
)

// Snapshot exports every pool and contribution.
func (r *Registry) Snapshot() model.Snapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	snap := model.Snapshot{
		Timestamp: r.clock.Now(),
		Height:    r.clock.Height(),
		Pools:     make([]model.Pool, 0, len(r.pools)),
	}
	for _, p := range r.pools {
		snap.Pools = append(snap.Pools, poolRecord(p))
		for _, acct := range r.accounts[p.ID] {
			snap.Contributions = append(snap.Contributions, contributionRecord(r.contribs[contribKey{pool: p.ID, account: acct}]))
		}
	}
	return snap
}

// Restore replaces the registry state with snap. Pool ids must be dense
// and in order. Pending events are kept.
func (r *Registry) Restore(snap model.Snapshot) error {
	pools := make([]*Pool, 0, len(snap.Pools))
	for i, rec := range snap.Pools {
		if rec.ID != uint64(i) {
			return fmt.Errorf("restore: pool record %d has id %d", i, rec.ID)
		}
		p, err := poolFromRecord(rec)
		if err != nil {
			return fmt.Errorf("restore pool %d: %w", rec.ID, err)
		}
		if err := r.validate(p.PoolConfig, false); err != nil {
			return fmt.Errorf("restore pool %d: %w", rec.ID, err)
		}
		pools = append(pools, p)
	}

	contribs := make(map[contribKey]*Contribution, len(snap.Contributions))
	accounts := make(map[uint64][]common.Address)
	for _, rec := range snap.Contributions {
		if rec.PoolID >= uint64(len(pools)) {
			return fmt.Errorf("restore: contribution for unknown pool %d", rec.PoolID)
		}
		c, err := contributionFromRecord(rec)
		if err != nil {
			return fmt.Errorf("restore contribution %d/%s: %w", rec.PoolID, rec.Account, err)
		}
		key := contribKey{pool: c.PoolID, account: c.Account}
		if _, dup := contribs[key]; dup {
			return fmt.Errorf("restore: duplicate contribution %d/%s", rec.PoolID, rec.Account)
		}
		contribs[key] = c
		accounts[c.PoolID] = append(accounts[c.PoolID], c.Account)
	}

	for _, p := range pools {
		sum := new(big.Int)
		for _, acct := range accounts[p.ID] {
			sum.Add(sum, contribs[contribKey{pool: p.ID, account: acct}].Amount)
		}
		if sum.Cmp(p.TotalRaised) != 0 {
			return fmt.Errorf("restore pool %d: contributions sum to %s, total raised is %s", p.ID, sum, p.TotalRaised)
		}
		if count := uint64(len(accounts[p.ID])); count != p.Contributors {
			return fmt.Errorf("restore pool %d: %d contribution records, %d contributors", p.ID, count, p.Contributors)
		}
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.pools = pools
	r.contribs = contribs
	r.accounts = accounts
	r.logger.Info("registry restored", zap.Int("pools", len(pools)), zap.Int("contributions", len(contribs)))
	return nil
}

func poolRecord(p *Pool) model.Pool {
	rec := model.Pool{
		ID:                   p.ID,
		Name:                 p.Name,
		Variant:              string(p.Variant),
		DepositToken:         p.DepositToken.Hex(),
		RewardToken:          p.RewardToken.Hex(),
		Price:                p.Price.String(),
		MinAllocation:        p.MinAllocation.String(),
		MaxAllocation:        p.MaxAllocation.String(),
		PoolLimit:            p.PoolLimit.String(),
		StartTime:            p.StartTime,
		EndTime:              p.EndTime,
		StartBlock:           p.StartBlock,
		EndBlock:             p.EndBlock,
		Beneficiary:          p.Beneficiary.Hex(),
		ImmediateWithdraw:    p.ImmediateWithdraw,
		RefundWindow:         p.RefundWindow,
		TotalRaised:          p.TotalRaised.String(),
		RewardBalance:        p.RewardBalance.String(),
		LastRewardBlock:      p.LastRewardBlock,
		Finalized:            p.Finalized,
		BeneficiaryWithdrawn: p.BeneficiaryWithdrawn.String(),
		Contributors:         p.Contributors,
		CreatedAt:            p.CreatedAt,
	}
	if p.WhitelistRoot != (common.Hash{}) {
		rec.WhitelistRoot = p.WhitelistRoot.Hex()
	}
	if p.QuoteSigner != (common.Address{}) {
		rec.QuoteSigner = p.QuoteSigner.Hex()
	}
	if p.RewardPerBlock.Sign() > 0 {
		rec.RewardPerBlock = p.RewardPerBlock.String()
	}
	if p.AccRewardPerShare.Sign() > 0 {
		rec.AccRewardPerShare = p.AccRewardPerShare.String()
	}
	if p.Vesting != nil {
		rec.Vesting = vestingRecord(p.Vesting.Cliff, p.Vesting.Tranches)
	}
	return rec
}

func poolFromRecord(rec model.Pool) (*Pool, error) {
	variant, err := ParseVariant(rec.Variant)
	if err != nil {
		return nil, err
	}
	var ints [9]*big.Int
	for i, raw := range []string{
		rec.Price, rec.MinAllocation, rec.MaxAllocation, rec.PoolLimit, rec.RewardPerBlock,
		rec.TotalRaised, rec.RewardBalance, rec.AccRewardPerShare, rec.BeneficiaryWithdrawn,
	} {
		if ints[i], err = parseAmount(raw); err != nil {
			return nil, err
		}
	}
	addrs, err := parseAddresses(rec.DepositToken, rec.RewardToken, rec.Beneficiary, rec.QuoteSigner)
	if err != nil {
		return nil, err
	}
	p := &Pool{
		PoolConfig: PoolConfig{
			Name:              rec.Name,
			Variant:           variant,
			DepositToken:      addrs[0],
			RewardToken:       addrs[1],
			Price:             ints[0],
			MinAllocation:     ints[1],
			MaxAllocation:     ints[2],
			PoolLimit:         ints[3],
			StartTime:         rec.StartTime,
			EndTime:           rec.EndTime,
			StartBlock:        rec.StartBlock,
			EndBlock:          rec.EndBlock,
			Beneficiary:       addrs[2],
			ImmediateWithdraw: rec.ImmediateWithdraw,
			QuoteSigner:       addrs[3],
			RefundWindow:      rec.RefundWindow,
			RewardPerBlock:    ints[4],
		},
		ID:                   rec.ID,
		TotalRaised:          ints[5],
		RewardBalance:        ints[6],
		AccRewardPerShare:    ints[7],
		LastRewardBlock:      rec.LastRewardBlock,
		Finalized:            rec.Finalized,
		BeneficiaryWithdrawn: ints[8],
		Contributors:         rec.Contributors,
		CreatedAt:            rec.CreatedAt,
	}
	if rec.WhitelistRoot != "" {
		if p.WhitelistRoot, err = parseHash(rec.WhitelistRoot); err != nil {
			return nil, err
		}
	}
	if rec.Vesting != nil {
		terms := VestingTerms{Cliff: rec.Vesting.Cliff}
		for _, tr := range rec.Vesting.Tranches {
			terms.Tranches = append(terms.Tranches, vesting.Tranche{Percent: tr.Percent, Duration: tr.Duration})
		}
		if err := vesting.ValidateTranches(terms.Tranches); err != nil {
			return nil, err
		}
		p.Vesting = &terms
	}
	if p.TotalRaised.Cmp(p.PoolLimit) > 0 {
		return nil, fmt.Errorf("total raised %s exceeds limit %s", p.TotalRaised, p.PoolLimit)
	}
	return p, nil
}

func contributionRecord(c *Contribution) model.Contribution {
	return model.Contribution{
		PoolID:           c.PoolID,
		Account:          c.Account.Hex(),
		Amount:           c.Amount.String(),
		RewardReleased:   c.RewardReleased.String(),
		StakeWithdrawn:   c.StakeWithdrawn.String(),
		Refunded:         c.Refunded.String(),
		RewardDebt:       c.RewardDebt.String(),
		PendingReward:    c.PendingReward.String(),
		WhitelistClaimed: c.WhitelistClaimed,
	}
}

func contributionFromRecord(rec model.Contribution) (*Contribution, error) {
	addrs, err := parseAddresses(rec.Account)
	if err != nil {
		return nil, err
	}
	c := newContribution(rec.PoolID, addrs[0])
	for _, f := range []struct {
		dst *big.Int
		raw string
	}{
		{c.Amount, rec.Amount},
		{c.RewardReleased, rec.RewardReleased},
		{c.StakeWithdrawn, rec.StakeWithdrawn},
		{c.Refunded, rec.Refunded},
		{c.RewardDebt, rec.RewardDebt},
		{c.PendingReward, rec.PendingReward},
	} {
		v, err := parseAmount(f.raw)
		if err != nil {
			return nil, err
		}
		f.dst.Set(v)
	}
	c.WhitelistClaimed = rec.WhitelistClaimed
	return c, nil
}

// vestingRecord converts vesting terms to their storage form.
func vestingRecord(cliff uint64, tranches []vesting.Tranche) *model.VestingRecord {
	out := &model.VestingRecord{Cliff: cliff}
	for _, tr := range tranches {
		out.Tranches = append(out.Tranches, model.TrancheRecord{Percent: tr.Percent, Duration: tr.Duration})
	}
	return out
}

// parseAmount reads a non-negative base-10 integer; empty means zero.
func parseAmount(raw string) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	v, ok := new(big.Int).SetString(raw, 10)
	if !ok || v.Sign() < 0 {
		return nil, fmt.Errorf("invalid amount %q", raw)
	}
	return v, nil
}

func parseAddresses(raw ...string) ([]common.Address, error) {
	out := make([]common.Address, len(raw))
	for i, s := range raw {
		if s == "" {
			continue
		}
		if !common.IsHexAddress(s) {
			return nil, fmt.Errorf("invalid address %q", s)
		}
		out[i] = common.HexToAddress(s)
	}
	return out, nil
}

func parseHash(raw string) (common.Hash, error) {
	b := common.FromHex(raw)
	if len(b) != common.HashLength {
		return common.Hash{}, fmt.Errorf("invalid hash %q", raw)
	}
	return common.BytesToHash(b), nil
}
