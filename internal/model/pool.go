package model

// VestingRecord is a cliff followed by percentage tranches, in seconds.
type VestingRecord struct {
	Cliff    uint64          `json:"cliff"`
	Tranches []TrancheRecord `json:"tranches"`
}

// TrancheRecord is one vesting tranche.
type TrancheRecord struct {
	Percent  uint64 `json:"percent"`
	Duration uint64 `json:"duration"`
}

// Pool is the storage form of a distribution pool. Amounts are base-10 strings.
type Pool struct {
	ID                   uint64         `json:"id"`
	Name                 string         `json:"name,omitempty"`
	Variant              string         `json:"variant"`
	DepositToken         string         `json:"deposit_token"`
	RewardToken          string         `json:"reward_token"`
	Price                string         `json:"price"`
	MinAllocation        string         `json:"min_allocation"`
	MaxAllocation        string         `json:"max_allocation"`
	PoolLimit            string         `json:"pool_limit"`
	StartTime            uint64         `json:"start_time,omitempty"`
	EndTime              uint64         `json:"end_time,omitempty"`
	StartBlock           uint64         `json:"start_block,omitempty"`
	EndBlock             uint64         `json:"end_block,omitempty"`
	Beneficiary          string         `json:"beneficiary"`
	ImmediateWithdraw    bool           `json:"immediate_withdraw"`
	WhitelistRoot        string         `json:"whitelist_root,omitempty"`
	QuoteSigner          string         `json:"quote_signer,omitempty"`
	RefundWindow         uint64         `json:"refund_window,omitempty"`
	RewardPerBlock       string         `json:"reward_per_block,omitempty"`
	Vesting              *VestingRecord `json:"vesting,omitempty"`
	TotalRaised          string         `json:"total_raised"`
	RewardBalance        string         `json:"reward_balance"`
	AccRewardPerShare    string         `json:"acc_reward_per_share,omitempty"`
	LastRewardBlock      uint64         `json:"last_reward_block,omitempty"`
	Finalized            bool           `json:"finalized"`
	BeneficiaryWithdrawn string         `json:"beneficiary_withdrawn"`
	Contributors         uint64         `json:"contributors"`
	CreatedAt            uint64         `json:"created_at"`
}

// Contribution is one account's position in a pool.
type Contribution struct {
	PoolID           uint64 `json:"pool_id"`
	Account          string `json:"account"`
	Amount           string `json:"amount"`
	RewardReleased   string `json:"reward_released"`
	StakeWithdrawn   string `json:"stake_withdrawn"`
	Refunded         string `json:"refunded"`
	RewardDebt       string `json:"reward_debt,omitempty"`
	PendingReward    string `json:"pending_reward,omitempty"`
	WhitelistClaimed bool   `json:"whitelist_claimed,omitempty"`
}

// Snapshot is the full exported state of a pool registry and, when
// written by the CLI, its token locks.
type Snapshot struct {
	Timestamp     uint64         `json:"timestamp"`
	Height        uint64         `json:"height"`
	Pools         []Pool         `json:"pools"`
	Contributions []Contribution `json:"contributions"`
	Locks         []Lock         `json:"locks,omitempty"`
}
