package chain

import (
	"context"
	"errors"
	"math/big"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/core/types"

	"tokenpools/internal/clock"
)

type scriptedHeads struct {
	heads []*types.Header
	fails int
}

func (s *scriptedHeads) HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error) {
	if s.fails > 0 {
		s.fails--
		return nil, errors.New("connection reset")
	}
	h := s.heads[0]
	if len(s.heads) > 1 {
		s.heads = s.heads[1:]
	}
	return h, nil
}

func head(number, ts uint64) *types.Header {
	return &types.Header{Number: new(big.Int).SetUint64(number), Time: ts}
}

func TestHeaderClockRefresh(t *testing.T) {
	src := &scriptedHeads{
		heads: []*types.Header{head(100, 1_700_000_000), head(99, 1_699_999_997), head(105, 1_700_000_015)},
		fails: 2,
	}
	var c clock.Clock = NewHeaderClock(src, 3, time.Millisecond, nil)
	hc := c.(*HeaderClock)

	if err := hc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Height() != 100 || c.Now() != 1_700_000_000 {
		t.Fatalf("unexpected head %d@%d", c.Height(), c.Now())
	}

	if err := hc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Height() != 100 {
		t.Fatalf("clock moved backwards to %d", c.Height())
	}

	if err := hc.Refresh(context.Background()); err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if c.Height() != 105 || c.Now() != 1_700_000_015 {
		t.Fatalf("unexpected head %d@%d", c.Height(), c.Now())
	}
}

func TestHeaderClockGivesUp(t *testing.T) {
	src := &scriptedHeads{heads: []*types.Header{head(1, 1)}, fails: 5}
	hc := NewHeaderClock(src, 1, time.Millisecond, nil)
	if err := hc.Refresh(context.Background()); err == nil {
		t.Fatalf("expected error after retries")
	}
	if hc.Height() != 0 {
		t.Fatalf("height should be untouched, got %d", hc.Height())
	}
}

func TestWithRetryStopsOnContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	calls := 0
	err := WithRetry(ctx, 5, time.Hour, func(context.Context) error {
		calls++
		return errors.New("boom")
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if calls != 1 {
		t.Fatalf("expected 1 call, got %d", calls)
	}
}
