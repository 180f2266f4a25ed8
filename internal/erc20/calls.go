// Package erc20 reads token metadata, balances and allowances over eth_call.
package erc20

import (
	"bytes"
	"context"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"

	"tokenpools/internal/model"
)

// Caller executes read-only contract calls. *chain.Client satisfies it.
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// MetaCache caches token metadata by address.
type MetaCache struct {
	mu   sync.RWMutex
	data map[common.Address]model.TokenMeta
}

// NewMetaCache returns an empty token metadata cache.
func NewMetaCache() *MetaCache {
	return &MetaCache{data: make(map[common.Address]model.TokenMeta)}
}

// Get returns cached metadata for address.
func (c *MetaCache) Get(address common.Address) (model.TokenMeta, bool) {
	c.mu.RLock()
	meta, ok := c.data[address]
	c.mu.RUnlock()
	return meta, ok
}

// Set stores metadata for address.
func (c *MetaCache) Set(address common.Address, meta model.TokenMeta) {
	c.mu.Lock()
	c.data[address] = meta
	c.mu.Unlock()
}

// Lookup returns cached metadata or fetches and caches it.
func (c *MetaCache) Lookup(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	if meta, ok := c.Get(token); ok {
		return meta, nil
	}
	meta, err := FetchTokenMeta(ctx, caller, token, logger)
	if err != nil {
		return meta, err
	}
	c.Set(token, meta)
	return meta, nil
}

func call(ctx context.Context, caller Caller, token common.Address, parsed abi.ABI, method string, block *big.Int, args ...interface{}) ([]interface{}, error) {
	data, err := parsed.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("pack %s: %w", method, err)
	}
	msg := ethereum.CallMsg{To: &token, Data: data}
	resp, err := caller.CallContract(ctx, msg, block)
	if err != nil {
		return nil, fmt.Errorf("call %s: %w", method, err)
	}
	values, err := parsed.Unpack(method, resp)
	if err != nil {
		return nil, fmt.Errorf("unpack %s: %w", method, err)
	}
	return values, nil
}

// FetchTokenMeta loads decimals, symbol and name. Only decimals is required.
func FetchTokenMeta(ctx context.Context, caller Caller, token common.Address, logger *zap.Logger) (model.TokenMeta, error) {
	meta := model.TokenMeta{Address: token.Hex()}
	if caller == nil {
		return meta, fmt.Errorf("chain caller is nil")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	parsed, err := ABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 abi: %w", err)
	}
	legacy, err := legacyABI()
	if err != nil {
		return meta, fmt.Errorf("parse erc20 bytes32 abi: %w", err)
	}

	values, err := call(ctx, caller, token, parsed, "decimals", nil)
	if err != nil {
		return meta, err
	}
	decimals, ok := values[0].(uint8)
	if !ok {
		return meta, fmt.Errorf("decimals unexpected type %T", values[0])
	}
	meta.Decimals = decimals

	meta.Symbol = textField(ctx, caller, token, parsed, legacy, "symbol", logger)
	meta.Name = textField(ctx, caller, token, parsed, legacy, "name", logger)
	return meta, nil
}

func textField(ctx context.Context, caller Caller, token common.Address, parsed, legacy abi.ABI, method string, logger *zap.Logger) string {
	if values, err := call(ctx, caller, token, parsed, method, nil); err == nil {
		if s, ok := values[0].(string); ok {
			return s
		}
	}
	values, err := call(ctx, caller, token, legacy, method, nil)
	if err != nil {
		logger.Debug(method+" call failed", zap.String("token", token.Hex()), zap.Error(err))
		return ""
	}
	if raw, ok := values[0].([32]byte); ok {
		return string(bytes.TrimRight(raw[:], "\x00"))
	}
	return ""
}

// BalanceOf reads owner's balance at block (nil for latest).
func BalanceOf(ctx context.Context, caller Caller, token, owner common.Address, block *big.Int) (*big.Int, error) {
	return uintCall(ctx, caller, token, "balanceOf", block, owner)
}

// Allowance reads what spender may pull from owner at block (nil for latest).
func Allowance(ctx context.Context, caller Caller, token, owner, spender common.Address, block *big.Int) (*big.Int, error) {
	return uintCall(ctx, caller, token, "allowance", block, owner, spender)
}

func uintCall(ctx context.Context, caller Caller, token common.Address, method string, block *big.Int, args ...interface{}) (*big.Int, error) {
	if caller == nil {
		return nil, fmt.Errorf("chain caller is nil")
	}
	parsed, err := ABI()
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	values, err := call(ctx, caller, token, parsed, method, block, args...)
	if err != nil {
		return nil, err
	}
	if len(values) != 1 {
		return nil, fmt.Errorf("%s return size %d", method, len(values))
	}
	out, ok := values[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("%s unexpected type %T", method, values[0])
	}
	return out, nil
}
