package transfer

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
)

type allowanceKey struct {
	owner   common.Address
	spender common.Address
}

// Ledger is an in-memory balance/allowance book keyed by token.
type Ledger struct {
	mu         sync.Mutex
	balances   map[common.Address]map[common.Address]*big.Int
	allowances map[common.Address]map[allowanceKey]*big.Int
}

// NewLedger returns an empty in-memory token ledger.
func NewLedger() *Ledger {
	return &Ledger{
		balances:   make(map[common.Address]map[common.Address]*big.Int),
		allowances: make(map[common.Address]map[allowanceKey]*big.Int),
	}
}

// Mint credits amount of token to owner.
func (l *Ledger) Mint(token, owner common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	l.credit(token, owner, amount)
	return nil
}

// Approve sets the allowance spender may pull from owner.
func (l *Ledger) Approve(token, owner, spender common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	book := l.allowances[token]
	if book == nil {
		book = make(map[allowanceKey]*big.Int)
		l.allowances[token] = book
	}
	book[allowanceKey{owner: owner, spender: spender}] = new(big.Int).Set(amount)
	return nil
}

// Allowance returns what spender may still pull from owner.
func (l *Ledger) Allowance(token, owner, spender common.Address) *big.Int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.allowance(token, owner, spender))
}

func (l *Ledger) BalanceOf(token, owner common.Address) (*big.Int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return new(big.Int).Set(l.balance(token, owner)), nil
}

// Transfer moves amount from from to to. Zero is a no-op.
func (l *Ledger) Transfer(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.balance(token, from).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), l.balance(token, from), token.Hex(), amount)
	}
	l.debit(token, from, amount)
	l.credit(token, to, amount)
	return nil
}

// TransferFrom pulls amount from from to the spender to, consuming allowance. Zero is a no-op.
func (l *Ledger) TransferFrom(token, from, to common.Address, amount *big.Int) error {
	if amount == nil || amount.Sign() < 0 {
		return ErrInvalidAmount
	}
	if amount.Sign() == 0 {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	allowed := l.allowance(token, from, to)
	if allowed.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s approved %s for %s, needs %s", ErrInsufficientAllowance, from.Hex(), allowed, to.Hex(), amount)
	}
	if l.balance(token, from).Cmp(amount) < 0 {
		return fmt.Errorf("%w: %s holds %s of %s, needs %s", ErrInsufficientBalance, from.Hex(), l.balance(token, from), token.Hex(), amount)
	}

	l.allowances[token][allowanceKey{owner: from, spender: to}] = new(big.Int).Sub(allowed, amount)
	l.debit(token, from, amount)
	l.credit(token, to, amount)
	return nil
}

func (l *Ledger) balance(token, owner common.Address) *big.Int {
	if book := l.balances[token]; book != nil {
		if bal := book[owner]; bal != nil {
			return bal
		}
	}
	return new(big.Int)
}

func (l *Ledger) allowance(token, owner, spender common.Address) *big.Int {
	if book := l.allowances[token]; book != nil {
		if val := book[allowanceKey{owner: owner, spender: spender}]; val != nil {
			return val
		}
	}
	return new(big.Int)
}

func (l *Ledger) credit(token, owner common.Address, amount *big.Int) {
	book := l.balances[token]
	if book == nil {
		book = make(map[common.Address]*big.Int)
		l.balances[token] = book
	}
	book[owner] = new(big.Int).Add(l.balance(token, owner), amount)
}

func (l *Ledger) debit(token, owner common.Address, amount *big.Int) {
	l.balances[token][owner] = new(big.Int).Sub(l.balance(token, owner), amount)
}
