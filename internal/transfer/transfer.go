package transfer

import (
	"errors"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrInsufficientBalance   = errors.New("insufficient balance")
	ErrInsufficientAllowance = errors.New("insufficient allowance")
	ErrInvalidAmount         = errors.New("invalid transfer amount")
)

// BalanceReader queries fungible token balances.
type BalanceReader interface {
	BalanceOf(token, owner common.Address) (*big.Int, error)
}

// ValueTransfer moves fungible tokens between accounts.
//
// TransferFrom pulls amount from `from` into `to` and is authorized by an
// allowance that `from` granted to `to`. Transfer moves tokens the caller
// holds on behalf of `from` (the custody account) to `to`.
type ValueTransfer interface {
	BalanceReader
	TransferFrom(token, from, to common.Address, amount *big.Int) error
	Transfer(token, from, to common.Address, amount *big.Int) error
}
