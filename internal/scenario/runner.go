package scenario

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"sort"
	"strings"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"

	"tokenpools/internal/clock"
	"tokenpools/internal/config"
	"tokenpools/internal/erc20"
	"tokenpools/internal/locker"
	"tokenpools/internal/model"
	"tokenpools/internal/pool"
	"tokenpools/internal/proof"
	"tokenpools/internal/storage"
	"tokenpools/internal/transfer"
	"tokenpools/internal/vesting"
)

// errorNames maps the names usable in Step.Expect to sentinel errors.
var errorNames = map[string]error{
	"InvalidConfig":         pool.ErrInvalidConfig,
	"Unauthorized":          pool.ErrUnauthorized,
	"PoolNotFound":          pool.ErrPoolNotFound,
	"PoolNotActive":         pool.ErrPoolNotActive,
	"PoolNotEnded":          pool.ErrPoolNotEnded,
	"PoolFull":              pool.ErrPoolFull,
	"BelowMinimum":          pool.ErrBelowMinimum,
	"AboveMaximum":          pool.ErrAboveMaximum,
	"InvalidAmount":         pool.ErrInvalidAmount,
	"InsufficientStake":     pool.ErrInsufficientStake,
	"StakeLocked":           pool.ErrStakeLocked,
	"NotBeneficiary":        pool.ErrNotBeneficiary,
	"LimitNotReached":       pool.ErrLimitNotReached,
	"AlreadyFinalized":      pool.ErrAlreadyFinalized,
	"RefundWindowClosed":    pool.ErrRefundWindowClosed,
	"NothingToRefund":       pool.ErrNothingToRefund,
	"AlreadyClaimed":        pool.ErrAlreadyClaimed,
	"InsufficientRewards":   pool.ErrInsufficientRewards,
	"InvalidProof":          pool.ErrInvalidProof,
	"InvalidSignature":      pool.ErrInvalidSignature,
	"Unsupported":           pool.ErrUnsupported,
	"NothingToWithdraw":     vesting.ErrNothingToWithdraw,
	"InsufficientAllowance": transfer.ErrInsufficientAllowance,
	"InsufficientBalance":   transfer.ErrInsufficientBalance,
	"LockNotFound":          locker.ErrLockNotFound,
	"InvalidLock":           locker.ErrInvalidLock,
	"StillLocked":           locker.ErrStillLocked,
	"NotLockBeneficiary":    locker.ErrNotBeneficiary,
	"LockUnauthorized":      locker.ErrUnauthorized,
}

type tokenRef struct {
	name     string
	addr     common.Address
	decimals uint8
}

type poolRef struct {
	id       uint64
	deposit  tokenRef
	reward   tokenRef
	tree     *proof.WhitelistTree
	treePool uint64
	leaves   map[common.Address]int
	amounts  map[common.Address]*big.Int
	quoteKey *ecdsa.PrivateKey
}

type lockRef struct {
	id    uint64
	token tokenRef
}

type outcome struct {
	amount *big.Int
	token  tokenRef
}

// Runner executes a scenario against a fresh engine.
type Runner struct {
	sc       *Scenario
	start    uint64
	custody  common.Address
	clock    *clock.Manual
	ledger   *transfer.Ledger
	registry *pool.Registry
	locker   *locker.Locker
	sink     storage.EventSink
	logger   *zap.Logger
	tokens   map[string]tokenRef
	accounts map[string]common.Address
	pools    map[string]*poolRef
	locks    map[string]lockRef
}

// NewRunner resolves names and wires the engine. sink may be nil.
func NewRunner(sc *Scenario, sink storage.EventSink, logger *zap.Logger) (*Runner, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	start, err := config.ParseTimestamp(sc.Start)
	if err != nil {
		return nil, fmt.Errorf("scenario start: %w", err)
	}
	r := &Runner{
		sc:       sc,
		start:    start,
		sink:     sink,
		logger:   logger,
		tokens:   make(map[string]tokenRef, len(sc.Tokens)),
		accounts: make(map[string]common.Address, len(sc.Accounts)),
		pools:    make(map[string]*poolRef),
		locks:    make(map[string]lockRef),
	}
	for name, raw := range sc.Accounts {
		if !common.IsHexAddress(raw) {
			return nil, fmt.Errorf("account %s: invalid address %q", name, raw)
		}
		r.accounts[name] = common.HexToAddress(raw)
	}
	for name, tok := range sc.Tokens {
		if !common.IsHexAddress(tok.Address) {
			return nil, fmt.Errorf("token %s: invalid address %q", name, tok.Address)
		}
		r.tokens[name] = tokenRef{name: name, addr: common.HexToAddress(tok.Address), decimals: tok.Decimals}
	}
	if r.custody, err = r.address(sc.Custody); err != nil {
		return nil, fmt.Errorf("custody: %w", err)
	}
	admins := make([]common.Address, 0, len(sc.Admins))
	for _, raw := range sc.Admins {
		addr, err := r.address(raw)
		if err != nil {
			return nil, fmt.Errorf("admin: %w", err)
		}
		admins = append(admins, addr)
	}

	r.clock = clock.NewManual(start, sc.Height)
	r.ledger = transfer.NewLedger()
	r.registry = pool.NewRegistry(pool.Config{
		Custody: r.custody,
		Admins:  pool.NewStaticAdmins(admins...),
	}, r.ledger, r.clock, logger.Named("registry"))
	r.locker = locker.New(r.custody, r.ledger, r.clock, logger.Named("locker"))
	return r, nil
}

// Accessors for the wired engine, mostly for tests.
func (r *Runner) Registry() *pool.Registry { return r.registry }
func (r *Runner) Locker() *locker.Locker   { return r.locker }
func (r *Runner) Ledger() *transfer.Ledger { return r.ledger }
func (r *Runner) Clock() *clock.Manual     { return r.clock }
func (r *Runner) Custody() common.Address  { return r.custody }

// PoolID returns the id a named pool was created under.
func (r *Runner) PoolID(name string) (uint64, bool) {
	ref, ok := r.pools[name]
	if !ok {
		return 0, false
	}
	return ref.id, true
}

// Snapshot exports the registry together with every lock.
func (r *Runner) Snapshot() model.Snapshot {
	snap := r.registry.Snapshot()
	snap.Locks = r.locker.Records()
	return snap
}

// Run funds the accounts and applies every step in order. It stops at the
// first step whose result does not match its expectation.
func (r *Runner) Run(ctx context.Context) error {
	for i, b := range r.sc.Balances {
		if err := r.fund(b); err != nil {
			return fmt.Errorf("balance %d: %w", i, err)
		}
	}

	for i, step := range r.sc.Steps {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := r.advance(step); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		out, err := r.apply(step)
		if err := r.check(step, out, err); err != nil {
			return fmt.Errorf("step %d (%s): %w", i+1, step.Action, err)
		}
		if err := r.flush(ctx); err != nil {
			return fmt.Errorf("step %d (%s): write events: %w", i+1, step.Action, err)
		}
		r.logger.Debug("step done",
			zap.Int("step", i+1),
			zap.String("action", step.Action),
			zap.Uint64("now", r.clock.Now()),
			zap.Uint64("height", r.clock.Height()),
		)
	}
	return nil
}

func (r *Runner) fund(b Balance) error {
	owner, err := r.address(b.Account)
	if err != nil {
		return err
	}
	tok, err := r.token(b.Token)
	if err != nil {
		return err
	}
	amount, err := erc20.ParseAmount(b.Amount, tok.decimals)
	if err != nil {
		return err
	}
	if err := r.ledger.Mint(tok.addr, owner, amount); err != nil {
		return err
	}
	return r.ledger.Approve(tok.addr, owner, r.custody, math.MaxBig256)
}

func (r *Runner) advance(step Step) error {
	if step.At != "" {
		ts, err := r.at(step.At)
		if err != nil {
			return err
		}
		if ts < r.clock.Now() {
			return fmt.Errorf("time %s is before the current time %d", step.At, r.clock.Now())
		}
		r.clock.Set(ts)
	}
	if step.Mine > 0 {
		r.clock.Mine(step.Mine)
	}
	return nil
}

func (r *Runner) check(step Step, out outcome, err error) error {
	if step.Expect != "" {
		want, ok := errorNames[step.Expect]
		if !ok {
			return fmt.Errorf("unknown expected error %q", step.Expect)
		}
		if !errors.Is(err, want) {
			return fmt.Errorf("expected %s, got %v", step.Expect, err)
		}
		return nil
	}
	if err != nil {
		return err
	}
	if step.Want != "" {
		want, err := erc20.ParseAmount(step.Want, out.token.decimals)
		if err != nil {
			return fmt.Errorf("want: %w", err)
		}
		if out.amount == nil || out.amount.Cmp(want) != 0 {
			return fmt.Errorf("got %s %s, want %s", erc20.FormatAmount(out.amount, out.token.decimals), out.token.name, step.Want)
		}
	}
	return nil
}

func (r *Runner) flush(ctx context.Context) error {
	events := append(r.registry.Events(), r.locker.Events()...)
	if r.sink == nil || len(events) == 0 {
		return nil
	}
	return r.sink.PutEventBatch(ctx, events)
}

func (r *Runner) apply(step Step) (outcome, error) {
	caller, err := r.address(step.Caller)
	if err != nil {
		return outcome{}, fmt.Errorf("caller: %w", err)
	}

	switch step.Action {
	case "create_pool":
		return outcome{}, r.createPool(caller, step.Create)
	case "lock":
		return r.lock(caller, step.Locked)
	case "lock_withdraw", "lock_transfer":
		ref, ok := r.locks[step.Lock]
		if !ok {
			return outcome{}, fmt.Errorf("unknown lock %q", step.Lock)
		}
		if step.Action == "lock_withdraw" {
			paid, err := r.locker.Withdraw(ref.id, caller)
			return outcome{paid, ref.token}, err
		}
		from := caller
		if step.From != "" {
			if from, err = r.address(step.From); err != nil {
				return outcome{}, err
			}
		}
		to, err := r.address(step.To)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, r.locker.UpdateBeneficiary(ref.id, caller, from, to)
	}

	ref, ok := r.pools[step.Pool]
	if !ok {
		return outcome{}, fmt.Errorf("unknown pool %q", step.Pool)
	}
	switch step.Action {
	case "contribute":
		return r.contribute(ref, caller, step)
	case "claim_whitelisted":
		amount, path := ref.allowance(caller)
		if amount == nil {
			if amount, err = erc20.ParseAmount(step.Amount, ref.reward.decimals); err != nil {
				return outcome{}, err
			}
		}
		cost, err := r.registry.ClaimWhitelisted(ref.id, caller, amount, path)
		return outcome{cost, ref.deposit}, err
	case "fund_rewards":
		amount, err := erc20.ParseAmount(step.Amount, ref.reward.decimals)
		if err != nil {
			return outcome{}, err
		}
		return outcome{amount, ref.reward}, r.registry.FundRewards(ref.id, caller, amount)
	case "withdraw_stake":
		amount, err := erc20.ParseAmount(step.Amount, ref.deposit.decimals)
		if err != nil {
			return outcome{}, err
		}
		return outcome{amount, ref.deposit}, r.registry.WithdrawStake(ref.id, caller, amount)
	case "claim":
		paid, err := r.registry.Claim(ref.id, caller)
		return outcome{paid, ref.reward}, err
	case "refund":
		paid, err := r.registry.Refund(ref.id, caller)
		return outcome{paid, ref.deposit}, err
	case "withdraw_beneficiary":
		paid, err := r.registry.WithdrawBeneficiaryFunds(ref.id, caller)
		return outcome{paid, ref.deposit}, err
	case "withdraw_unused":
		paid, err := r.registry.WithdrawUnusedRewards(ref.id, caller)
		return outcome{paid, ref.reward}, err
	case "update_price":
		price, err := erc20.ParseAmount(step.Amount, 18)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, r.registry.UpdatePrice(caller, ref.id, price)
	case "update_beneficiary":
		to, err := r.address(step.To)
		if err != nil {
			return outcome{}, err
		}
		return outcome{}, r.registry.UpdateBeneficiary(caller, ref.id, to)
	default:
		return outcome{}, fmt.Errorf("unknown action %q", step.Action)
	}
}

func (r *Runner) contribute(ref *poolRef, caller common.Address, step Step) (outcome, error) {
	amount, err := erc20.ParseAmount(step.Amount, ref.deposit.decimals)
	if err != nil {
		return outcome{}, err
	}
	var auth pool.Authorization
	auth.Amount, auth.Proof = ref.allowance(caller)
	if step.Quote != "" {
		if ref.quoteKey == nil {
			return outcome{}, fmt.Errorf("pool %q has no quote key", step.Pool)
		}
		if auth.Amount, err = erc20.ParseAmount(step.Quote, ref.deposit.decimals); err != nil {
			return outcome{}, err
		}
		if auth.Signature, err = proof.SignQuote(ref.quoteKey, caller, auth.Amount); err != nil {
			return outcome{}, err
		}
	}

	receipt, err := r.registry.Contribute(ref.id, caller, amount, auth)
	if err != nil {
		return outcome{}, err
	}
	if receipt.Partial() {
		r.logger.Info("contribution partially accepted",
			zap.String("pool", step.Pool),
			zap.String("account", caller.Hex()),
			zap.String("accepted", erc20.FormatAmount(receipt.Accepted, ref.deposit.decimals)),
			zap.String("rejected", erc20.FormatAmount(receipt.Rejected, ref.deposit.decimals)),
			zap.NamedError("reason", receipt.Reason),
		)
	}
	return outcome{receipt.Accepted, ref.deposit}, nil
}

func (r *Runner) createPool(caller common.Address, spec *PoolSpec) error {
	if spec == nil {
		return fmt.Errorf("create_pool needs a create block")
	}
	if spec.Name == "" {
		return fmt.Errorf("pool name is required")
	}
	if _, dup := r.pools[spec.Name]; dup {
		return fmt.Errorf("pool %q already exists", spec.Name)
	}
	cfg, ref, err := r.poolConfig(spec)
	if err != nil {
		return fmt.Errorf("pool %q: %w", spec.Name, err)
	}
	id, err := r.registry.CreatePool(caller, cfg)
	if err != nil {
		return err
	}
	if ref.tree != nil && id != ref.treePool {
		return fmt.Errorf("pool %q created as %d, whitelist built for %d", spec.Name, id, ref.treePool)
	}
	ref.id = id
	r.pools[spec.Name] = ref
	return nil
}

func (r *Runner) poolConfig(spec *PoolSpec) (pool.PoolConfig, *poolRef, error) {
	variant, err := pool.ParseVariant(spec.Variant)
	if err != nil {
		return pool.PoolConfig{}, nil, err
	}
	ref := &poolRef{}
	if ref.deposit, err = r.token(spec.Deposit); err != nil {
		return pool.PoolConfig{}, nil, err
	}
	if ref.reward, err = r.token(spec.Reward); err != nil {
		return pool.PoolConfig{}, nil, err
	}

	cfg := pool.PoolConfig{
		Name:              spec.Name,
		Variant:           variant,
		DepositToken:      ref.deposit.addr,
		RewardToken:       ref.reward.addr,
		StartBlock:        spec.StartBlock,
		EndBlock:          spec.EndBlock,
		ImmediateWithdraw: spec.ImmediateWithdraw,
	}
	amounts := []struct {
		dst      **big.Int
		raw      string
		decimals uint8
	}{
		{&cfg.Price, spec.Price, 18},
		{&cfg.MinAllocation, spec.Min, ref.deposit.decimals},
		{&cfg.MaxAllocation, spec.Max, ref.deposit.decimals},
		{&cfg.PoolLimit, spec.Limit, ref.deposit.decimals},
		{&cfg.RewardPerBlock, spec.RewardPerBlock, ref.reward.decimals},
	}
	for _, a := range amounts {
		if *a.dst, err = optionalAmount(a.raw, a.decimals); err != nil {
			return pool.PoolConfig{}, nil, err
		}
	}
	if spec.Start != "" {
		if cfg.StartTime, err = r.at(spec.Start); err != nil {
			return pool.PoolConfig{}, nil, err
		}
	}
	if spec.End != "" {
		if cfg.EndTime, err = r.at(spec.End); err != nil {
			return pool.PoolConfig{}, nil, err
		}
	}
	if spec.RefundWindow != "" {
		if cfg.RefundWindow, err = vesting.ParseDuration(spec.RefundWindow); err != nil {
			return pool.PoolConfig{}, nil, err
		}
	}
	if spec.Beneficiary != "" {
		if cfg.Beneficiary, err = r.address(spec.Beneficiary); err != nil {
			return pool.PoolConfig{}, nil, err
		}
	}
	if spec.Tranches != "" {
		terms := &pool.VestingTerms{}
		if terms.Tranches, err = vesting.ParseTranches(spec.Tranches); err != nil {
			return pool.PoolConfig{}, nil, err
		}
		if spec.Cliff != "" {
			if terms.Cliff, err = vesting.ParseDuration(spec.Cliff); err != nil {
				return pool.PoolConfig{}, nil, err
			}
		}
		cfg.Vesting = terms
	}
	if spec.QuoteKey != "" {
		if ref.quoteKey, err = crypto.HexToECDSA(strings.TrimPrefix(spec.QuoteKey, "0x")); err != nil {
			return pool.PoolConfig{}, nil, fmt.Errorf("quote key: %w", err)
		}
		cfg.QuoteSigner = crypto.PubkeyToAddress(ref.quoteKey.PublicKey)
	}
	if len(spec.Whitelist) > 0 {
		// Claim pools whitelist reward amounts; the others cap deposits.
		decimals := ref.deposit.decimals
		if variant == pool.VariantWhitelistClaim {
			decimals = ref.reward.decimals
		}
		if err := ref.buildWhitelist(r, spec.Whitelist, decimals); err != nil {
			return pool.PoolConfig{}, nil, err
		}
		cfg.WhitelistRoot = ref.tree.Root()
	}
	return cfg, ref, nil
}

func (ref *poolRef) buildWhitelist(r *Runner, list []Allowance, decimals uint8) error {
	id := r.registry.NextID()
	entries := make([]proof.Entry, 0, len(list))
	ref.leaves = make(map[common.Address]int, len(list))
	ref.amounts = make(map[common.Address]*big.Int, len(list))
	for i, a := range list {
		addr, err := r.address(a.Account)
		if err != nil {
			return fmt.Errorf("whitelist %d: %w", i, err)
		}
		if _, dup := ref.leaves[addr]; dup {
			return fmt.Errorf("whitelist %d: duplicate account %s", i, a.Account)
		}
		amount, err := erc20.ParseAmount(a.Amount, decimals)
		if err != nil {
			return fmt.Errorf("whitelist %d: %w", i, err)
		}
		ref.leaves[addr] = i
		ref.amounts[addr] = amount
		entries = append(entries, proof.Entry{PoolID: id, Account: addr, Amount: amount})
	}
	tree, err := proof.NewWhitelistTree(entries)
	if err != nil {
		return err
	}
	ref.tree = tree
	ref.treePool = id
	return nil
}

// allowance returns the whitelisted amount and proof for account, or nils.
func (ref *poolRef) allowance(account common.Address) (*big.Int, []common.Hash) {
	if ref.tree == nil {
		return nil, nil
	}
	i, ok := ref.leaves[account]
	if !ok {
		return nil, nil
	}
	path, err := ref.tree.Proof(i)
	if err != nil {
		return nil, nil
	}
	return new(big.Int).Set(ref.amounts[account]), path
}

func (r *Runner) lock(caller common.Address, spec *LockSpec) (outcome, error) {
	if spec == nil {
		return outcome{}, fmt.Errorf("lock needs a locked block")
	}
	if spec.Name == "" {
		return outcome{}, fmt.Errorf("lock name is required")
	}
	if _, dup := r.locks[spec.Name]; dup {
		return outcome{}, fmt.Errorf("lock %q already exists", spec.Name)
	}
	tok, err := r.token(spec.Token)
	if err != nil {
		return outcome{}, err
	}
	var cliff uint64
	if spec.Cliff != "" {
		if cliff, err = vesting.ParseDuration(spec.Cliff); err != nil {
			return outcome{}, err
		}
	}
	shares := make([]locker.Share, 0, len(spec.Shares))
	total := new(big.Int)
	for i, s := range spec.Shares {
		addr, err := r.address(s.Account)
		if err != nil {
			return outcome{}, fmt.Errorf("share %d: %w", i, err)
		}
		amount, err := erc20.ParseAmount(s.Amount, tok.decimals)
		if err != nil {
			return outcome{}, fmt.Errorf("share %d: %w", i, err)
		}
		shares = append(shares, locker.Share{Account: addr, Amount: amount})
		total.Add(total, amount)
	}

	var id uint64
	if spec.Duration != "" {
		if len(shares) != 1 {
			return outcome{}, fmt.Errorf("linear lock %q needs exactly one share", spec.Name)
		}
		duration, err := vesting.ParseDuration(spec.Duration)
		if err != nil {
			return outcome{}, err
		}
		id, err = r.locker.LockLinear(caller, tok.addr, shares[0].Amount, cliff, duration, shares[0].Account)
		if err != nil {
			return outcome{}, err
		}
	} else {
		tranches, err := vesting.ParseTranches(spec.Tranches)
		if err != nil {
			return outcome{}, err
		}
		if id, err = r.locker.Lock(caller, tok.addr, cliff, tranches, shares); err != nil {
			return outcome{}, err
		}
	}
	r.locks[spec.Name] = lockRef{id: id, token: tok}
	return outcome{total, tok}, nil
}

// address resolves an account name or a hex address.
func (r *Runner) address(ref string) (common.Address, error) {
	if addr, ok := r.accounts[ref]; ok {
		return addr, nil
	}
	if common.IsHexAddress(ref) {
		return common.HexToAddress(ref), nil
	}
	return common.Address{}, fmt.Errorf("unknown account %q", ref)
}

func (r *Runner) token(name string) (tokenRef, error) {
	tok, ok := r.tokens[name]
	if !ok {
		return tokenRef{}, fmt.Errorf("unknown token %q", name)
	}
	return tok, nil
}

// at resolves "+<duration>" against the scenario start, or an absolute time.
func (r *Runner) at(raw string) (uint64, error) {
	if offset, ok := strings.CutPrefix(raw, "+"); ok {
		d, err := vesting.ParseDuration(offset)
		if err != nil {
			return 0, err
		}
		return r.start + d, nil
	}
	return config.ParseTimestamp(raw)
}

func optionalAmount(raw string, decimals uint8) (*big.Int, error) {
	if raw == "" {
		return new(big.Int), nil
	}
	return erc20.ParseAmount(raw, decimals)
}

// PoolSummary is one line of a run report.
type PoolSummary struct {
	Name         string `json:"name"`
	ID           uint64 `json:"id"`
	Variant      string `json:"variant"`
	State        string `json:"state"`
	TotalRaised  string `json:"total_raised"`
	Contributors uint64 `json:"contributors"`
}

// Holding is an account balance in token units.
type Holding struct {
	Account string `json:"account"`
	Token   string `json:"token"`
	Amount  string `json:"amount"`
}

// Report summarizes the engine after a run.
type Report struct {
	Timestamp uint64        `json:"timestamp"`
	Height    uint64        `json:"height"`
	Pools     []PoolSummary `json:"pools"`
	Holdings  []Holding     `json:"holdings"`
}

// Report lists every named pool and the non-zero balances of every account.
func (r *Runner) Report() Report {
	rep := Report{Timestamp: r.clock.Now(), Height: r.clock.Height()}

	names := make([]string, 0, len(r.pools))
	for name := range r.pools {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return r.pools[names[i]].id < r.pools[names[j]].id })
	for _, name := range names {
		ref := r.pools[name]
		p, err := r.registry.Pool(ref.id)
		if err != nil {
			continue
		}
		state, _ := r.registry.State(ref.id)
		rep.Pools = append(rep.Pools, PoolSummary{
			Name:         name,
			ID:           ref.id,
			Variant:      string(p.Variant),
			State:        state.String(),
			TotalRaised:  erc20.FormatAmount(p.TotalRaised, ref.deposit.decimals),
			Contributors: p.Contributors,
		})
	}

	holders := make(map[string]common.Address, len(r.accounts)+1)
	for name, addr := range r.accounts {
		holders[name] = addr
	}
	holders["custody"] = r.custody
	accounts := make([]string, 0, len(holders))
	for name := range holders {
		accounts = append(accounts, name)
	}
	sort.Strings(accounts)
	tokens := make([]string, 0, len(r.tokens))
	for name := range r.tokens {
		tokens = append(tokens, name)
	}
	sort.Strings(tokens)

	for _, acct := range accounts {
		for _, name := range tokens {
			tok := r.tokens[name]
			bal, err := r.ledger.BalanceOf(tok.addr, holders[acct])
			if err != nil || bal.Sign() == 0 {
				continue
			}
			rep.Holdings = append(rep.Holdings, Holding{Account: acct, Token: name, Amount: erc20.FormatAmount(bal, tok.decimals)})
		}
	}
	return rep
}
