package pool

import (
	"errors"

	"tokenpools/internal/vesting"
)

var (
	ErrInvalidConfig       = errors.New("invalid pool config")
	ErrUnauthorized        = errors.New("unauthorized")
	ErrPoolNotFound        = errors.New("pool not found")
	ErrPoolNotActive       = errors.New("pool not active")
	ErrPoolNotEnded        = errors.New("pool not ended")
	ErrPoolFull            = errors.New("pool full")
	ErrBelowMinimum        = errors.New("below minimum allocation")
	ErrAboveMaximum        = errors.New("above maximum allocation")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrInsufficientStake   = errors.New("insufficient staked amount")
	ErrStakeLocked         = errors.New("stake locked until pool end")
	ErrNotBeneficiary      = errors.New("caller is not the beneficiary")
	ErrLimitNotReached     = errors.New("limit not reached and pool not ended")
	ErrAlreadyFinalized    = errors.New("pool already finalized")
	ErrRefundWindowClosed  = errors.New("refund window closed")
	ErrNothingToRefund     = errors.New("nothing to refund")
	ErrAlreadyClaimed      = errors.New("already claimed")
	ErrInsufficientRewards = errors.New("insufficient reward balance")
	ErrInvalidProof        = errors.New("invalid whitelist proof")
	ErrInvalidSignature    = errors.New("invalid quote signature")
	ErrUnsupported         = errors.New("operation not supported by pool variant")

	ErrNothingToWithdraw = vesting.ErrNothingToWithdraw
)
