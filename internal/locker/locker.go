// Package locker holds tokens on behalf of beneficiaries and releases them on
// a vesting schedule. Wallet locks split one deposit across several
// beneficiaries on a shared tranche clock; linear locks release a single
// position evenly after a cliff.
package locker

import (
	"errors"
	"fmt"
	"math/big"
	"sync"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"tokenpools/internal/clock"
	"tokenpools/internal/model"
	"tokenpools/internal/transfer"
	"tokenpools/internal/vesting"
)

var (
	ErrLockNotFound   = errors.New("lock not found")
	ErrInvalidLock    = errors.New("invalid lock")
	ErrNotBeneficiary = errors.New("not a beneficiary of the lock")
	ErrUnauthorized   = errors.New("unauthorized")
	ErrStillLocked    = errors.New("tokens still locked")

	ErrNothingToWithdraw = vesting.ErrNothingToWithdraw
)

type Kind string

const (
	KindWallet Kind = "wallet"
	KindLinear Kind = "linear"
)

// Share is a beneficiary's part of a lock.
type Share struct {
	Account  common.Address
	Amount   *big.Int
	Released *big.Int
}

// Lock is a deposit held for its beneficiaries.
type Lock struct {
	ID            uint64
	Kind          Kind
	Token         common.Address
	Depositor     common.Address
	Start         uint64
	Cliff         uint64
	Tranches      []vesting.Tranche
	Beneficiaries []Share
}

func (l *Lock) clone() *Lock {
	out := *l
	out.Tranches = append([]vesting.Tranche(nil), l.Tranches...)
	out.Beneficiaries = make([]Share, len(l.Beneficiaries))
	for i, s := range l.Beneficiaries {
		out.Beneficiaries[i] = Share{
			Account:  s.Account,
			Amount:   new(big.Int).Set(s.Amount),
			Released: new(big.Int).Set(s.Released),
		}
	}
	return &out
}

func (l *Lock) share(account common.Address) (int, bool) {
	for i, s := range l.Beneficiaries {
		if s.Account == account {
			return i, true
		}
	}
	return -1, false
}

func (l *Lock) schedule(s Share) vesting.Schedule {
	return vesting.Schedule{Total: s.Amount, Start: l.Start, Cliff: l.Cliff, Tranches: l.Tranches}
}

// Locker owns all locks. Mutations are serialized and committed before the
// outbound transfer, then reverted if it fails.
type Locker struct {
	mu      sync.Mutex
	custody common.Address
	vt      transfer.ValueTransfer
	clock   clock.Clock
	logger  *zap.Logger
	locks   []*Lock
	events  []model.Event
}

// New creates an empty locker holding tokens at custody.
func New(custody common.Address, vt transfer.ValueTransfer, clk clock.Clock, logger *zap.Logger) *Locker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Locker{custody: custody, vt: vt, clock: clk, logger: logger}
}

// Lock pulls the sum of shares from depositor and vests each share on the
// given cliff and tranches, starting now.
func (lk *Locker) Lock(depositor, token common.Address, cliff uint64, tranches []vesting.Tranche, shares []Share) (uint64, error) {
	return lk.lock(KindWallet, depositor, token, cliff, tranches, shares)
}

// LockLinear locks amount for one beneficiary, released evenly over
// duration once the cliff has passed.
func (lk *Locker) LockLinear(depositor, token common.Address, amount *big.Int, cliff, duration uint64, beneficiary common.Address) (uint64, error) {
	return lk.lock(KindLinear, depositor, token, cliff,
		[]vesting.Tranche{{Percent: 100, Duration: duration}},
		[]Share{{Account: beneficiary, Amount: amount}})
}

func (lk *Locker) lock(kind Kind, depositor, token common.Address, cliff uint64, tranches []vesting.Tranche, shares []Share) (uint64, error) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	if token == (common.Address{}) {
		return 0, fmt.Errorf("%w: token is the zero address", ErrInvalidLock)
	}
	if depositor == (common.Address{}) {
		return 0, fmt.Errorf("%w: depositor is the zero address", ErrInvalidLock)
	}
	if len(shares) == 0 {
		return 0, fmt.Errorf("%w: no beneficiaries", ErrInvalidLock)
	}

	now := lk.clock.Now()
	total := new(big.Int)
	l := &Lock{
		ID:        uint64(len(lk.locks)),
		Kind:      kind,
		Token:     token,
		Depositor: depositor,
		Start:     now,
		Cliff:     cliff,
		Tranches:  append([]vesting.Tranche(nil), tranches...),
	}
	seen := make(map[common.Address]struct{}, len(shares))
	for i, s := range shares {
		if s.Account == (common.Address{}) {
			return 0, fmt.Errorf("%w: beneficiary %d is the zero address", ErrInvalidLock, i)
		}
		if s.Amount == nil || s.Amount.Sign() <= 0 {
			return 0, fmt.Errorf("%w: beneficiary %d amount must be positive", ErrInvalidLock, i)
		}
		if _, dup := seen[s.Account]; dup {
			return 0, fmt.Errorf("%w: duplicate beneficiary %s", ErrInvalidLock, s.Account.Hex())
		}
		seen[s.Account] = struct{}{}
		total.Add(total, s.Amount)
		l.Beneficiaries = append(l.Beneficiaries, Share{Account: s.Account, Amount: new(big.Int).Set(s.Amount), Released: new(big.Int)})
	}
	if _, err := vesting.NewSchedule(total, now, cliff, tranches); err != nil {
		return 0, fmt.Errorf("%w: %v", ErrInvalidLock, err)
	}

	lk.locks = append(lk.locks, l)
	if err := lk.vt.TransferFrom(token, depositor, lk.custody, total); err != nil {
		lk.locks = lk.locks[:len(lk.locks)-1]
		return 0, fmt.Errorf("pull %s from %s: %w", total, depositor.Hex(), err)
	}

	lk.emit(model.EventLocked, l.ID, depositor, total, map[string]string{
		"kind":          string(kind),
		"beneficiaries": fmt.Sprint(len(l.Beneficiaries)),
	})
	lk.logger.Info("tokens locked",
		zap.Uint64("lock_id", l.ID),
		zap.String("kind", string(kind)),
		zap.String("token", token.Hex()),
		zap.String("amount", total.String()),
	)
	return l.ID, nil
}

// Get returns a copy of lock id.
func (lk *Locker) Get(id uint64) (Lock, error) {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	l, err := lk.get(id)
	if err != nil {
		return Lock{}, err
	}
	return *l.clone(), nil
}

func (lk *Locker) get(id uint64) (*Lock, error) {
	if id >= uint64(len(lk.locks)) {
		return nil, fmt.Errorf("%w: %d", ErrLockNotFound, id)
	}
	return lk.locks[id], nil
}

// Vestable returns what account could withdraw from lock id now.
func (lk *Locker) Vestable(id uint64, account common.Address) (*big.Int, error) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	l, err := lk.get(id)
	if err != nil {
		return nil, err
	}
	i, ok := l.share(account)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBeneficiary, account.Hex())
	}
	now := lk.clock.Now()
	if now < l.Start+l.Cliff {
		return nil, fmt.Errorf("%w: cliff ends at %d", ErrStillLocked, l.Start+l.Cliff)
	}
	s := l.Beneficiaries[i]
	out := l.schedule(s).Unlocked(now)
	return out.Sub(out, s.Released), nil
}

// Withdraw pays account everything vested and not yet released.
func (lk *Locker) Withdraw(id uint64, account common.Address) (*big.Int, error) {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	cur, err := lk.get(id)
	if err != nil {
		return nil, err
	}
	i, ok := cur.share(account)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotBeneficiary, account.Hex())
	}
	now := lk.clock.Now()
	if now < cur.Start+cur.Cliff {
		return nil, fmt.Errorf("%w: cliff ends at %d", ErrStillLocked, cur.Start+cur.Cliff)
	}
	amount, err := vesting.Withdrawable(cur.schedule(cur.Beneficiaries[i]), cur.Beneficiaries[i].Released, now)
	if err != nil {
		return nil, err
	}

	next := cur.clone()
	next.Beneficiaries[i].Released.Add(next.Beneficiaries[i].Released, amount)
	lk.locks[id] = next
	if err := lk.vt.Transfer(next.Token, lk.custody, account, amount); err != nil {
		lk.locks[id] = cur
		return nil, fmt.Errorf("transfer %s to %s: %w", amount, account.Hex(), err)
	}

	lk.emit(model.EventLockWithdrawn, id, account, amount, map[string]string{"released": next.Beneficiaries[i].Released.String()})
	lk.logger.Info("lock withdrawal",
		zap.Uint64("lock_id", id),
		zap.String("account", account.Hex()),
		zap.String("amount", amount.String()),
	)
	return amount, nil
}

// UpdateBeneficiary moves the position of from to to. Wallet locks are
// managed by their depositor; a linear lock's beneficiary hands over its own
// position.
func (lk *Locker) UpdateBeneficiary(id uint64, caller, from, to common.Address) error {
	lk.mu.Lock()
	defer lk.mu.Unlock()

	cur, err := lk.get(id)
	if err != nil {
		return err
	}
	switch cur.Kind {
	case KindWallet:
		if caller != cur.Depositor {
			return fmt.Errorf("%w: only the depositor may reassign", ErrUnauthorized)
		}
	case KindLinear:
		if caller != from {
			return fmt.Errorf("%w: only the beneficiary may reassign", ErrNotBeneficiary)
		}
	}
	i, ok := cur.share(from)
	if !ok {
		return fmt.Errorf("%w: %s", ErrNotBeneficiary, from.Hex())
	}
	if to == (common.Address{}) {
		return fmt.Errorf("%w: new beneficiary is the zero address", ErrInvalidLock)
	}
	if _, taken := cur.share(to); taken {
		return fmt.Errorf("%w: %s already holds a share", ErrInvalidLock, to.Hex())
	}

	next := cur.clone()
	next.Beneficiaries[i].Account = to
	lk.locks[id] = next

	lk.emit(model.EventLockBeneficiaryUpdated, id, to, nil, map[string]string{"from": from.Hex()})
	lk.logger.Info("lock beneficiary updated", zap.Uint64("lock_id", id), zap.String("from", from.Hex()), zap.String("to", to.Hex()))
	return nil
}

// Events drains the events emitted since the previous call.
func (lk *Locker) Events() []model.Event {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	out := lk.events
	lk.events = nil
	return out
}

// Records exports every lock in storage form.
func (lk *Locker) Records() []model.Lock {
	lk.mu.Lock()
	defer lk.mu.Unlock()
	out := make([]model.Lock, 0, len(lk.locks))
	for _, l := range lk.locks {
		rec := model.Lock{
			ID:        l.ID,
			Kind:      string(l.Kind),
			Token:     l.Token.Hex(),
			Depositor: l.Depositor.Hex(),
			Start:     l.Start,
			Vesting:   model.VestingRecord{Cliff: l.Cliff},
		}
		for _, tr := range l.Tranches {
			rec.Vesting.Tranches = append(rec.Vesting.Tranches, model.TrancheRecord{Percent: tr.Percent, Duration: tr.Duration})
		}
		for _, s := range l.Beneficiaries {
			rec.Beneficiaries = append(rec.Beneficiaries, model.LockBeneficiary{
				Account:  s.Account.Hex(),
				Amount:   s.Amount.String(),
				Released: s.Released.String(),
			})
		}
		out = append(out, rec)
	}
	return out
}

func (lk *Locker) emit(name string, lockID uint64, account common.Address, amount *big.Int, fields map[string]string) {
	id := lockID
	ev := model.Event{
		ID:        uuid.NewString(),
		Name:      name,
		LockID:    &id,
		Account:   account.Hex(),
		Timestamp: lk.clock.Now(),
		Height:    lk.clock.Height(),
		Fields:    fields,
	}
	if amount != nil {
		ev.Amount = amount.String()
	}
	lk.events = append(lk.events, ev)
}

// Restore replaces every lock with recs. Lock ids must be dense and in order.
func (lk *Locker) Restore(recs []model.Lock) error {
	locks := make([]*Lock, 0, len(recs))
	for i, rec := range recs {
		if rec.ID != uint64(i) {
			return fmt.Errorf("restore: lock record %d has id %d", i, rec.ID)
		}
		l, err := lockFromRecord(rec)
		if err != nil {
			return fmt.Errorf("restore lock %d: %w", rec.ID, err)
		}
		locks = append(locks, l)
	}

	lk.mu.Lock()
	defer lk.mu.Unlock()
	lk.locks = locks
	lk.logger.Info("locks restored", zap.Int("locks", len(locks)))
	return nil
}

func lockFromRecord(rec model.Lock) (*Lock, error) {
	kind := Kind(rec.Kind)
	if kind != KindWallet && kind != KindLinear {
		return nil, fmt.Errorf("%w: unknown kind %q", ErrInvalidLock, rec.Kind)
	}
	if !common.IsHexAddress(rec.Token) || !common.IsHexAddress(rec.Depositor) {
		return nil, fmt.Errorf("%w: bad token or depositor address", ErrInvalidLock)
	}
	l := &Lock{
		ID:        rec.ID,
		Kind:      kind,
		Token:     common.HexToAddress(rec.Token),
		Depositor: common.HexToAddress(rec.Depositor),
		Start:     rec.Start,
		Cliff:     rec.Vesting.Cliff,
	}
	for _, tr := range rec.Vesting.Tranches {
		l.Tranches = append(l.Tranches, vesting.Tranche{Percent: tr.Percent, Duration: tr.Duration})
	}
	if err := vesting.ValidateTranches(l.Tranches); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidLock, err)
	}
	for _, b := range rec.Beneficiaries {
		if !common.IsHexAddress(b.Account) {
			return nil, fmt.Errorf("%w: bad beneficiary %q", ErrInvalidLock, b.Account)
		}
		amount, ok := new(big.Int).SetString(b.Amount, 10)
		if !ok || amount.Sign() <= 0 {
			return nil, fmt.Errorf("%w: bad amount %q", ErrInvalidLock, b.Amount)
		}
		released, ok := new(big.Int).SetString(b.Released, 10)
		if !ok || released.Sign() < 0 || released.Cmp(amount) > 0 {
			return nil, fmt.Errorf("%w: bad released amount %q", ErrInvalidLock, b.Released)
		}
		l.Beneficiaries = append(l.Beneficiaries, Share{Account: common.HexToAddress(b.Account), Amount: amount, Released: released})
	}
	if len(l.Beneficiaries) == 0 {
		return nil, fmt.Errorf("%w: no beneficiaries", ErrInvalidLock)
	}
	return l, nil
}
