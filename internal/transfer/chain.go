package transfer

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	"tokenpools/internal/erc20"
)

// ChainBalances reads balances from deployed ERC-20 contracts. It is
// read-only: pools cannot move tokens through it.
type ChainBalances struct {
	Caller  erc20.Caller
	Timeout time.Duration
	// Block pins reads to a height; nil reads the latest state.
	Block *big.Int
}

// BalanceOf calls balanceOf on token at the pinned block.
func (c ChainBalances) BalanceOf(token, owner common.Address) (*big.Int, error) {
	ctx := context.Background()
	if c.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.Timeout)
		defer cancel()
	}
	bal, err := erc20.BalanceOf(ctx, c.Caller, token, owner, c.Block)
	if err != nil {
		return nil, fmt.Errorf("balance of %s in %s: %w", owner.Hex(), token.Hex(), err)
	}
	return bal, nil
}

var _ BalanceReader = ChainBalances{}
