package pool

import "math/big"

// accrue brings AccRewardPerShare up to height, capped at the end block.
func accrue(p *Pool, height uint64) {
	upto := height
	if upto > p.EndBlock {
		upto = p.EndBlock
	}
	if upto <= p.LastRewardBlock {
		return
	}
	if p.TotalRaised.Sign() > 0 {
		reward := new(big.Int).Mul(p.RewardPerBlock, new(big.Int).SetUint64(upto-p.LastRewardBlock))
		p.AccRewardPerShare.Add(p.AccRewardPerShare, mulDiv(reward, priceScale, p.TotalRaised))
	}
	p.LastRewardBlock = upto
}

// settle moves reward earned since the last debt checkpoint into PendingReward.
// Callers reset RewardDebt with checkpoint after changing Amount.
func settle(p *Pool, c *Contribution) {
	earned := mulDiv(c.Amount, p.AccRewardPerShare, priceScale)
	earned.Sub(earned, c.RewardDebt)
	if earned.Sign() > 0 {
		c.PendingReward.Add(c.PendingReward, earned)
	}
	checkpoint(p, c)
}

func checkpoint(p *Pool, c *Contribution) {
	c.RewardDebt = mulDiv(c.Amount, p.AccRewardPerShare, priceScale)
}

// pendingAt is the reward c could claim at height without mutating state.
func pendingAt(p *Pool, c *Contribution, height uint64) *big.Int {
	pp := p.clone()
	cc := c.clone()
	accrue(pp, height)
	settle(pp, cc)
	return cc.PendingReward
}
