// Package scenario drives the pool engine from a YAML script: accounts and
// balances, then timed steps against an in-memory ledger and a manual clock.
package scenario

import (
	"bytes"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Scenario is the top-level script.
type Scenario struct {
	// Start is unix seconds or RFC3339. Step times are offsets from it.
	Start    string            `yaml:"start"`
	Height   uint64            `yaml:"height"`
	Custody  string            `yaml:"custody"`
	Admins   []string          `yaml:"admins"`
	Tokens   map[string]Token  `yaml:"tokens"`
	Accounts map[string]string `yaml:"accounts"`
	Balances []Balance         `yaml:"balances"`
	Steps    []Step            `yaml:"steps"`
}

type Token struct {
	Address  string `yaml:"address"`
	Decimals uint8  `yaml:"decimals"`
}

// Balance is minted to Account before the first step and approved for custody.
type Balance struct {
	Account string `yaml:"account"`
	Token   string `yaml:"token"`
	Amount  string `yaml:"amount"`
}

// Step is one action. At moves the clock first ("+1h", "+10d" from Start,
// or an absolute timestamp); Mine advances the block height.
//
// Want checks the amount the action returned: the accepted part for
// contribute, the payout otherwise. Expect names the error the step must
// fail with, e.g. "PoolFull".
type Step struct {
	At     string    `yaml:"at"`
	Mine   uint64    `yaml:"mine"`
	Action string    `yaml:"action"`
	Caller string    `yaml:"caller"`
	Pool   string    `yaml:"pool"`
	Lock   string    `yaml:"lock"`
	Amount string    `yaml:"amount"`
	Quote  string    `yaml:"quote"`
	From   string    `yaml:"from"`
	To     string    `yaml:"to"`
	Want   string    `yaml:"want"`
	Expect string    `yaml:"expect"`
	Create *PoolSpec `yaml:"create"`
	Locked *LockSpec `yaml:"locked"`
}

// PoolSpec describes a pool to create. Amounts are in token units; Price
// is a decimal ratio.
type PoolSpec struct {
	Name              string      `yaml:"name"`
	Variant           string      `yaml:"variant"`
	Deposit           string      `yaml:"deposit"`
	Reward            string      `yaml:"reward"`
	Price             string      `yaml:"price"`
	Min               string      `yaml:"min"`
	Max               string      `yaml:"max"`
	Limit             string      `yaml:"limit"`
	Start             string      `yaml:"start"`
	End               string      `yaml:"end"`
	StartBlock        uint64      `yaml:"start_block"`
	EndBlock          uint64      `yaml:"end_block"`
	Beneficiary       string      `yaml:"beneficiary"`
	ImmediateWithdraw bool        `yaml:"immediate_withdraw"`
	RefundWindow      string      `yaml:"refund_window"`
	RewardPerBlock    string      `yaml:"reward_per_block"`
	Cliff             string      `yaml:"cliff"`
	Tranches          string      `yaml:"tranches"`
	Whitelist         []Allowance `yaml:"whitelist"`
	QuoteKey          string      `yaml:"quote_key"`
}

type Allowance struct {
	Account string `yaml:"account"`
	Amount  string `yaml:"amount"`
}

// LockSpec describes a token lock. A non-empty Duration makes a linear lock
// for the single share; otherwise Tranches apply to every share.
type LockSpec struct {
	Name     string      `yaml:"name"`
	Token    string      `yaml:"token"`
	Cliff    string      `yaml:"cliff"`
	Tranches string      `yaml:"tranches"`
	Duration string      `yaml:"duration"`
	Shares   []Allowance `yaml:"shares"`
}

// Load reads a scenario file. Unknown keys are rejected.
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read scenario: %w", err)
	}
	return Parse(data)
}

// Parse decodes a scenario document, rejecting unknown fields.
func Parse(data []byte) (*Scenario, error) {
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	var sc Scenario
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("parse scenario: %w", err)
	}
	if sc.Custody == "" {
		return nil, fmt.Errorf("parse scenario: custody is required")
	}
	if len(sc.Steps) == 0 {
		return nil, fmt.Errorf("parse scenario: no steps")
	}
	return &sc, nil
}
