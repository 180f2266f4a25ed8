package model

// Lock is the storage form of a token lock.
type Lock struct {
	ID            uint64            `json:"id"`
	Kind          string            `json:"kind"`
	Token         string            `json:"token"`
	Depositor     string            `json:"depositor"`
	Start         uint64            `json:"start"`
	Vesting       VestingRecord     `json:"vesting"`
	Beneficiaries []LockBeneficiary `json:"beneficiaries"`
}

// LockBeneficiary is one share of a lock.
type LockBeneficiary struct {
	Account  string `json:"account"`
	Amount   string `json:"amount"`
	Released string `json:"released"`
}
