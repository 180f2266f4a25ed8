package pool

import (
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"tokenpools/internal/clock"
	"tokenpools/internal/transfer"
)

const (
	t0   = uint64(1_700_000_000)
	hour = uint64(3600)
	day  = 24 * hour
)

var (
	admin        = common.HexToAddress("0xad00000000000000000000000000000000000001")
	custody      = common.HexToAddress("0xc000000000000000000000000000000000000001")
	beneficiary  = common.HexToAddress("0xbe00000000000000000000000000000000000001")
	alice        = common.HexToAddress("0xa100000000000000000000000000000000000001")
	bob          = common.HexToAddress("0xb000000000000000000000000000000000000002")
	carol        = common.HexToAddress("0xca00000000000000000000000000000000000003")
	depositToken = common.HexToAddress("0xd000000000000000000000000000000000000001")
	rewardToken  = common.HexToAddress("0xee00000000000000000000000000000000000001")
)

func n(v int64) *big.Int { return big.NewInt(v) }

func e18(v int64) *big.Int {
	return new(big.Int).Mul(big.NewInt(v), priceScale)
}

type fixture struct {
	reg    *Registry
	ledger *transfer.Ledger
	vt     *failingTransfer
	clk    *clock.Manual
}

// failingTransfer wraps a ledger and fails outbound transfers of failToken.
type failingTransfer struct {
	*transfer.Ledger
	failToken common.Address
}

var errTransferDown = errors.New("transfer unavailable")

func (f *failingTransfer) Transfer(token, from, to common.Address, amount *big.Int) error {
	if f.failToken != (common.Address{}) && token == f.failToken {
		return errTransferDown
	}
	return f.Ledger.Transfer(token, from, to, amount)
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ledger := transfer.NewLedger()
	vt := &failingTransfer{Ledger: ledger}
	clk := clock.NewManual(t0, 100)
	reg := NewRegistry(Config{Custody: custody, Admins: NewStaticAdmins(admin)}, vt, clk, zap.NewNop())
	return &fixture{reg: reg, ledger: ledger, vt: vt, clk: clk}
}

// give mints amount of token to acct and approves custody to pull all of it.
func (f *fixture) give(t *testing.T, token, acct common.Address, amount *big.Int) {
	t.Helper()
	require.NoError(t, f.ledger.Mint(token, acct, amount))
	bal, err := f.ledger.BalanceOf(token, acct)
	require.NoError(t, err)
	require.NoError(t, f.ledger.Approve(token, acct, custody, bal))
}

func (f *fixture) balance(t *testing.T, token, acct common.Address) string {
	t.Helper()
	bal, err := f.ledger.BalanceOf(token, acct)
	require.NoError(t, err)
	return bal.String()
}

func (f *fixture) create(t *testing.T, cfg PoolConfig) uint64 {
	t.Helper()
	id, err := f.reg.CreatePool(admin, cfg)
	require.NoError(t, err)
	return id
}

func allocationConfig(minAlloc, maxAlloc, limit int64) PoolConfig {
	return PoolConfig{
		Name:          "allocation",
		Variant:       VariantAllocation,
		DepositToken:  depositToken,
		RewardToken:   rewardToken,
		Price:         e18(2),
		MinAllocation: n(minAlloc),
		MaxAllocation: n(maxAlloc),
		PoolLimit:     n(limit),
		StartTime:     t0 + hour,
		EndTime:       t0 + hour + day,
		Beneficiary:   beneficiary,
	}
}

func quoteConfig(signer common.Address, limit int64) PoolConfig {
	cfg := allocationConfig(0, 0, limit)
	cfg.Name = "refundable"
	cfg.Variant = VariantQuoteRefundable
	cfg.QuoteSigner = signer
	return cfg
}

func stakingConfig(immediate bool) PoolConfig {
	return PoolConfig{
		Name:              "staking",
		Variant:           VariantStaking,
		DepositToken:      depositToken,
		RewardToken:       rewardToken,
		MinAllocation:     n(50),
		MaxAllocation:     n(500),
		PoolLimit:         n(10000),
		StartBlock:        110,
		EndBlock:          210,
		RewardPerBlock:    n(10),
		Beneficiary:       beneficiary,
		ImmediateWithdraw: immediate,
	}
}

// requireLedgerInvariants checks the raised total against the pool limit and
// the sum of contributions.
func requireLedgerInvariants(t *testing.T, reg *Registry, id uint64) {
	t.Helper()
	p, err := reg.Pool(id)
	require.NoError(t, err)
	contribs, err := reg.Contributions(id)
	require.NoError(t, err)
	sum := new(big.Int)
	for _, c := range contribs {
		require.True(t, c.Amount.Sign() >= 0)
		sum.Add(sum, c.Amount)
	}
	require.True(t, p.TotalRaised.Cmp(p.PoolLimit) <= 0, "raised %s above limit %s", p.TotalRaised, p.PoolLimit)
	require.Equal(t, sum.String(), p.TotalRaised.String())
}
