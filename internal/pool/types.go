package pool

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"

	"tokenpools/internal/vesting"
)

// Variant selects the admission and claim policy of a pool.
type Variant string

const (
	// VariantAllocation sells reward tokens at a fixed price. Contributions
	// above the per-user maximum are clamped.
	VariantAllocation Variant = "allocation"
	// VariantStaking pays RewardPerBlock to stakers pro rata over a block window.
	VariantStaking Variant = "staking"
	// VariantWhitelistClaim lets whitelisted accounts buy their exact
	// allocation once, proven against WhitelistRoot.
	VariantWhitelistClaim Variant = "whitelist_claim"
	// VariantQuoteRefundable admits contributions authorized by a signed quote
	// and refunds them if the pool misses its limit.
	VariantQuoteRefundable Variant = "quote_refundable"
)

// ParseVariant returns the variant named s or ErrInvalidConfig.
func ParseVariant(s string) (Variant, error) {
	switch v := Variant(s); v {
	case VariantAllocation, VariantStaking, VariantWhitelistClaim, VariantQuoteRefundable:
		return v, nil
	default:
		return "", fmt.Errorf("%w: unknown variant %q", ErrInvalidConfig, s)
	}
}

// State is the lifecycle stage of a pool, derived from the clock on demand.
type State int

const (
	StateCreated State = iota
	StateActive
	StateEnded
	StateRefundable
	StateFinalized
)

func (s State) String() string {
	switch s {
	case StateCreated:
		return "created"
	case StateActive:
		return "active"
	case StateEnded:
		return "ended"
	case StateRefundable:
		return "refundable"
	case StateFinalized:
		return "finalized"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// VestingTerms releases participant rewards from the pool end time.
type VestingTerms struct {
	Cliff    uint64
	Tranches []vesting.Tranche
}

// PoolConfig is what an admin supplies when creating a pool.
//
// Price is fixed point with 1e18 as one. For whitelist_claim pools it is
// deposit units per reward unit; for all other variants it is reward units
// per deposit unit. Staking pools ignore it and pay RewardPerBlock instead.
type PoolConfig struct {
	Name              string
	Variant           Variant
	DepositToken      common.Address
	RewardToken       common.Address
	Price             *big.Int
	MinAllocation     *big.Int
	MaxAllocation     *big.Int // zero means unbounded
	PoolLimit         *big.Int
	StartTime         uint64
	EndTime           uint64
	StartBlock        uint64
	EndBlock          uint64
	Beneficiary       common.Address
	ImmediateWithdraw bool
	WhitelistRoot     common.Hash
	QuoteSigner       common.Address
	RefundWindow      uint64
	RewardPerBlock    *big.Int
	Vesting           *VestingTerms
}

// Pool is a campaign and its running totals.
type Pool struct {
	PoolConfig

	ID                   uint64
	TotalRaised          *big.Int
	RewardBalance        *big.Int
	AccRewardPerShare    *big.Int
	LastRewardBlock      uint64
	Finalized            bool
	BeneficiaryWithdrawn *big.Int
	Contributors         uint64
	CreatedAt            uint64
}

// Contribution is one account's position in one pool.
type Contribution struct {
	PoolID           uint64
	Account          common.Address
	Amount           *big.Int
	RewardReleased   *big.Int
	StakeWithdrawn   *big.Int
	Refunded         *big.Int
	RewardDebt       *big.Int
	PendingReward    *big.Int
	WhitelistClaimed bool
}

// Authorization carries the optional proof attached to a contribution.
// Amount is the quoted or whitelisted allowance the proof commits to.
type Authorization struct {
	Amount    *big.Int
	Signature []byte
	Proof     []common.Hash
}

// Receipt reports how much of a contribution was admitted. Reason is set
// when Rejected is non-zero.
type Receipt struct {
	Requested *big.Int
	Accepted  *big.Int
	Rejected  *big.Int
	Reason    error
}

// Partial reports whether part of the request was turned away.
func (r Receipt) Partial() bool {
	return r.Rejected != nil && r.Rejected.Sign() > 0
}

func copyInt(v *big.Int) *big.Int {
	if v == nil {
		return new(big.Int)
	}
	return new(big.Int).Set(v)
}

func (c PoolConfig) clone() PoolConfig {
	out := c
	out.Price = copyInt(c.Price)
	out.MinAllocation = copyInt(c.MinAllocation)
	out.MaxAllocation = copyInt(c.MaxAllocation)
	out.PoolLimit = copyInt(c.PoolLimit)
	out.RewardPerBlock = copyInt(c.RewardPerBlock)
	if c.Vesting != nil {
		v := VestingTerms{Cliff: c.Vesting.Cliff, Tranches: append([]vesting.Tranche(nil), c.Vesting.Tranches...)}
		out.Vesting = &v
	}
	return out
}

func (p *Pool) clone() *Pool {
	out := *p
	out.PoolConfig = p.PoolConfig.clone()
	out.TotalRaised = copyInt(p.TotalRaised)
	out.RewardBalance = copyInt(p.RewardBalance)
	out.AccRewardPerShare = copyInt(p.AccRewardPerShare)
	out.BeneficiaryWithdrawn = copyInt(p.BeneficiaryWithdrawn)
	return &out
}

func newContribution(poolID uint64, account common.Address) *Contribution {
	return &Contribution{
		PoolID:         poolID,
		Account:        account,
		Amount:         new(big.Int),
		RewardReleased: new(big.Int),
		StakeWithdrawn: new(big.Int),
		Refunded:       new(big.Int),
		RewardDebt:     new(big.Int),
		PendingReward:  new(big.Int),
	}
}

func (c *Contribution) clone() *Contribution {
	out := *c
	out.Amount = copyInt(c.Amount)
	out.RewardReleased = copyInt(c.RewardReleased)
	out.StakeWithdrawn = copyInt(c.StakeWithdrawn)
	out.Refunded = copyInt(c.Refunded)
	out.RewardDebt = copyInt(c.RewardDebt)
	out.PendingReward = copyInt(c.PendingReward)
	return &out
}
