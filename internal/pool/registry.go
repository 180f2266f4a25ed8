// Package pool implements the pool registry and contribution ledger: pool
// configuration and lifecycle, per-account bookkeeping, cap enforcement and
// the payouts that follow a pool window.
package pool

import (
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokenpools/internal/clock"
	"tokenpools/internal/model"
	"tokenpools/internal/transfer"
)

// DefaultRefundWindow applies to quote_refundable pools created without one.
const DefaultRefundWindow = 24 * 60 * 60

var priceScale = new(big.Int).Exp(big.NewInt(10), big.NewInt(18), nil)

// Config wires a registry to its environment.
type Config struct {
	// Custody is the account that holds deposits and reward tokens.
	Custody             common.Address
	Admins              Authorizer
	DefaultRefundWindow uint64
}

type contribKey struct {
	pool    uint64
	account common.Address
}

// Registry owns every pool and contribution. All mutations are serialized
// by one mutex; ledger changes are committed before tokens move and rolled
// back if the transfer fails. ValueTransfer implementations must not call
// back into the registry.
type Registry struct {
	mu       sync.Mutex
	cfg      Config
	vt       transfer.ValueTransfer
	clock    clock.Clock
	logger   *zap.Logger
	pools    []*Pool
	contribs map[contribKey]*Contribution
	accounts map[uint64][]common.Address
	events   []model.Event
}

// NewRegistry creates an empty registry. vt may be nil for a read-only view.
func NewRegistry(cfg Config, vt transfer.ValueTransfer, clk clock.Clock, logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.DefaultRefundWindow == 0 {
		cfg.DefaultRefundWindow = DefaultRefundWindow
	}
	if cfg.Admins == nil {
		cfg.Admins = StaticAdmins{}
	}
	return &Registry{
		cfg:      cfg,
		vt:       vt,
		clock:    clk,
		logger:   logger,
		contribs: make(map[contribKey]*Contribution),
		accounts: make(map[uint64][]common.Address),
	}
}

// Custody is the account holding deposits and rewards for every pool.
func (r *Registry) Custody() common.Address {
	return r.cfg.Custody
}

// NextID is the id the next created pool receives.
func (r *Registry) NextID() uint64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return uint64(len(r.pools))
}

// Pool returns a copy of pool id.
func (r *Registry) Pool(id uint64) (Pool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pool(id)
	if err != nil {
		return Pool{}, err
	}
	return *p.clone(), nil
}

// Pools returns copies of all pools in id order.
func (r *Registry) Pools() []Pool {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Pool, 0, len(r.pools))
	for _, p := range r.pools {
		out = append(out, *p.clone())
	}
	return out
}

// Contribution returns account's position in pool id. Accounts that never
// contributed get a zero position.
func (r *Registry) Contribution(id uint64, account common.Address) (Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.pool(id); err != nil {
		return Contribution{}, err
	}
	return *r.contribution(id, account).clone(), nil
}

// Contributions lists pool id's positions in first-contribution order.
func (r *Registry) Contributions(id uint64) ([]Contribution, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, err := r.pool(id); err != nil {
		return nil, err
	}
	out := make([]Contribution, 0, len(r.accounts[id]))
	for _, acct := range r.accounts[id] {
		out = append(out, *r.contribs[contribKey{pool: id, account: acct}].clone())
	}
	return out, nil
}

// State evaluates the lifecycle state of pool id at the current clock.
func (r *Registry) State(id uint64) (State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	p, err := r.pool(id)
	if err != nil {
		return 0, err
	}
	return r.state(p), nil
}

// Events drains the events emitted since the previous call.
func (r *Registry) Events() []model.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := r.events
	r.events = nil
	return out
}

func (r *Registry) pool(id uint64) (*Pool, error) {
	if id >= uint64(len(r.pools)) {
		return nil, fmt.Errorf("%w: %d", ErrPoolNotFound, id)
	}
	return r.pools[id], nil
}

func (r *Registry) contribution(id uint64, account common.Address) *Contribution {
	if c, ok := r.contribs[contribKey{pool: id, account: account}]; ok {
		return c
	}
	return newContribution(id, account)
}

func (r *Registry) state(p *Pool) State {
	if p.Finalized {
		return StateFinalized
	}
	underCap := p.TotalRaised.Cmp(p.PoolLimit) < 0
	if p.Variant == VariantStaking {
		h := r.clock.Height()
		switch {
		case h < p.StartBlock:
			return StateCreated
		case h < p.EndBlock && underCap:
			return StateActive
		default:
			return StateEnded
		}
	}
	now := r.clock.Now()
	switch {
	case now < p.StartTime:
		return StateCreated
	case now < p.EndTime && underCap:
		return StateActive
	case p.Variant == VariantQuoteRefundable && underCap && now >= p.EndTime && now-p.EndTime < p.RefundWindow:
		return StateRefundable
	default:
		return StateEnded
	}
}

// windowOpen reports whether the pool's time or block window has not ended,
// regardless of whether it is full.
func (r *Registry) windowOpen(p *Pool) bool {
	if p.Variant == VariantStaking {
		return r.clock.Height() < p.EndBlock
	}
	return r.clock.Now() < p.EndTime
}

// stage installs p and, when c is non-nil, c as the current values and
// returns a func restoring the previous ones.
func (r *Registry) stage(p *Pool, c *Contribution) func() {
	prevPool := r.pools[p.ID]
	r.pools[p.ID] = p
	if c == nil {
		return func() { r.pools[p.ID] = prevPool }
	}
	key := contribKey{pool: p.ID, account: c.Account}
	prev, existed := r.contribs[key]
	r.contribs[key] = c
	if !existed {
		r.accounts[p.ID] = append(r.accounts[p.ID], c.Account)
	}
	return func() {
		r.pools[p.ID] = prevPool
		if existed {
			r.contribs[key] = prev
			return
		}
		delete(r.contribs, key)
		list := r.accounts[p.ID]
		r.accounts[p.ID] = list[:len(list)-1]
	}
}

func (r *Registry) isNew(id uint64, account common.Address) bool {
	_, ok := r.contribs[contribKey{pool: id, account: account}]
	return !ok
}

func (r *Registry) emit(name string, poolID uint64, account common.Address, amount *big.Int, fields map[string]string) {
	id := poolID
	ev := model.Event{
		ID:        uuid.NewString(),
		Name:      name,
		PoolID:    &id,
		Timestamp: r.clock.Now(),
		Height:    r.clock.Height(),
		Fields:    fields,
	}
	if account != (common.Address{}) {
		ev.Account = account.Hex()
	}
	if amount != nil {
		ev.Amount = amount.String()
	}
	r.events = append(r.events, ev)
}

// send moves amount out of custody, skipping zero amounts.
func (r *Registry) send(token, to common.Address, amount *big.Int) error {
	if amount.Sign() == 0 {
		return nil
	}
	if err := r.vt.Transfer(token, r.cfg.Custody, to, amount); err != nil {
		return fmt.Errorf("transfer %s to %s: %w", amount, to.Hex(), err)
	}
	return nil
}

// pull moves amount from an account into custody.
func (r *Registry) pull(token, from common.Address, amount *big.Int) error {
	if err := r.vt.TransferFrom(token, from, r.cfg.Custody, amount); err != nil {
		return fmt.Errorf("pull %s from %s: %w", amount, from.Hex(), err)
	}
	return nil
}

// entitlement is the reward bought by deposit at the pool price.
func entitlement(p *Pool, deposit *big.Int) *big.Int {
	return mulDiv(deposit, p.Price, priceScale)
}

func mulDiv(a, b, d *big.Int) *big.Int {
	out := new(big.Int).Mul(a, b)
	return out.Quo(out, d)
}

func poolField(id uint64) zap.Field {
	return zap.Uint64("pool_id", id)
}
