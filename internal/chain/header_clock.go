package chain

import (
	"context"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// HeaderSource yields block headers. *Client satisfies it.
type HeaderSource interface {
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

// HeaderClock reports the timestamp and number of the last fetched head.
// Now and Height never block; Refresh moves the clock forward.
type HeaderClock struct {
	src        HeaderSource
	maxRetries int
	retryDelay time.Duration
	logger     *zap.Logger

	mu     sync.RWMutex
	now    uint64
	height uint64
}

// NewHeaderClock creates a clock that reads the latest header from src on Refresh.
func NewHeaderClock(src HeaderSource, maxRetries int, retryDelay time.Duration, logger *zap.Logger) *HeaderClock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HeaderClock{src: src, maxRetries: maxRetries, retryDelay: retryDelay, logger: logger}
}

// Refresh fetches the latest header. A head older than the current one is ignored.
func (c *HeaderClock) Refresh(ctx context.Context) error {
	var header *types.Header
	err := WithRetry(ctx, c.maxRetries, c.retryDelay, func(ctx context.Context) error {
		h, err := c.src.HeaderByNumber(ctx, nil)
		if err != nil {
			c.logger.Warn("fetch head failed", zap.Error(err))
			return err
		}
		header = h
		return nil
	})
	if err != nil {
		return fmt.Errorf("fetch latest header: %w", err)
	}

	number := header.Number.Uint64()
	c.mu.Lock()
	defer c.mu.Unlock()
	if number < c.height {
		return nil
	}
	c.height = number
	if header.Time > c.now {
		c.now = header.Time
	}
	return nil
}

func (c *HeaderClock) Now() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.now
}

func (c *HeaderClock) Height() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.height
}
