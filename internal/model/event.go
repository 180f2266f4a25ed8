package model

import "encoding/json"

// Event names.
const (
	EventPoolCreated            = "PoolCreated"
	EventPoolUpdated            = "PoolUpdated"
	EventContributed            = "Contributed"
	EventStakeWithdrawn         = "StakeWithdrawn"
	EventRewardClaimed          = "RewardClaimed"
	EventWhitelistClaimed       = "WhitelistClaimed"
	EventRewardsFunded          = "RewardsFunded"
	EventUnusedRewardsWithdrawn = "UnusedRewardsWithdrawn"
	EventBeneficiaryWithdrawn   = "BeneficiaryWithdrawn"
	EventRefunded               = "Refunded"
	EventLocked                 = "Locked"
	EventLockWithdrawn          = "LockWithdrawn"
	EventLockBeneficiaryUpdated = "LockBeneficiaryUpdated"
)

// Event is an append-only record of a state change.
type Event struct {
	ID        string            `json:"id"`
	Name      string            `json:"name"`
	PoolID    *uint64           `json:"pool_id,omitempty"`
	LockID    *uint64           `json:"lock_id,omitempty"`
	Account   string            `json:"account,omitempty"`
	Amount    string            `json:"amount,omitempty"`
	Timestamp uint64            `json:"timestamp"`
	Height    uint64            `json:"height,omitempty"`
	Fields    map[string]string `json:"fields,omitempty"`
}

// MarshalJSON ensures Event is encoded with stable field names.
func (e Event) MarshalJSON() ([]byte, error) {
	type Alias Event
	return json.Marshal(Alias(e))
}

// UnmarshalJSON decodes an Event from JSON.
func (e *Event) UnmarshalJSON(data []byte) error {
	type Alias Event
	var a Alias
	if err := json.Unmarshal(data, &a); err != nil {
		return err
	}
	*e = Event(a)
	return nil
}
