// Package vesting computes how much of a locked amount is released at a given
// time under a cliff followed by ordered percentage tranches.
package vesting

import (
	"errors"
	"fmt"
	"math"
	"math/big"
	"strconv"
	"strings"
	"time"
)

var (
	ErrNothingToWithdraw = errors.New("nothing to withdraw")
	ErrInvalidSchedule   = errors.New("invalid vesting schedule")
)

// Tranche releases Percent of the total linearly over Duration seconds.
type Tranche struct {
	Percent  uint64 `json:"percent"`
	Duration uint64 `json:"duration"`
}

// Schedule is a cliff followed by tranches that run back to back. Nothing is
// released before Start+Cliff; everything is released at End().
type Schedule struct {
	Total    *big.Int  `json:"-"`
	Start    uint64    `json:"start"`
	Cliff    uint64    `json:"cliff"`
	Tranches []Tranche `json:"tranches"`
}

var hundred = big.NewInt(100)

// NewSchedule validates and returns a schedule.
func NewSchedule(total *big.Int, start, cliff uint64, tranches []Tranche) (Schedule, error) {
	s := Schedule{Total: total, Start: start, Cliff: cliff, Tranches: append([]Tranche(nil), tranches...)}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// Linear is a single tranche releasing everything over duration after the cliff.
func Linear(total *big.Int, start, cliff, duration uint64) (Schedule, error) {
	return NewSchedule(total, start, cliff, []Tranche{{Percent: 100, Duration: duration}})
}

// Validate checks the tranches and that the schedule end fits in a uint64.
func (s Schedule) Validate() error {
	if s.Total == nil || s.Total.Sign() < 0 {
		return fmt.Errorf("%w: total must be non-negative", ErrInvalidSchedule)
	}
	if err := ValidateTranches(s.Tranches); err != nil {
		return err
	}
	end := s.Start
	if end > math.MaxUint64-s.Cliff {
		return fmt.Errorf("%w: cliff overflows", ErrInvalidSchedule)
	}
	end += s.Cliff
	for _, tr := range s.Tranches {
		if end > math.MaxUint64-tr.Duration {
			return fmt.Errorf("%w: tranche durations overflow", ErrInvalidSchedule)
		}
		end += tr.Duration
	}
	return nil
}

// ValidateTranches checks the clock-independent tranche rules: at least one
// tranche, every percent positive, percents summing to exactly 100.
func ValidateTranches(tranches []Tranche) error {
	if len(tranches) == 0 {
		return fmt.Errorf("%w: no tranches", ErrInvalidSchedule)
	}
	var sum uint64
	for i, tr := range tranches {
		if tr.Percent == 0 {
			return fmt.Errorf("%w: tranche %d has zero percent", ErrInvalidSchedule, i)
		}
		if tr.Percent > 100 || sum+tr.Percent > 100 {
			return fmt.Errorf("%w: percentages exceed 100", ErrInvalidSchedule)
		}
		sum += tr.Percent
	}
	if sum != 100 {
		return fmt.Errorf("%w: percentages sum to %d, want 100", ErrInvalidSchedule, sum)
	}
	return nil
}

// CliffEnd is the first second anything can unlock.
func (s Schedule) CliffEnd() uint64 {
	return s.Start + s.Cliff
}

// End is when the whole total has unlocked.
func (s Schedule) End() uint64 {
	end := s.CliffEnd()
	for _, tr := range s.Tranches {
		end += tr.Duration
	}
	return end
}

// Unlocked returns the cumulative amount released at now.
func (s Schedule) Unlocked(now uint64) *big.Int {
	if s.Total == nil || s.Total.Sign() == 0 || now < s.CliffEnd() {
		return new(big.Int)
	}
	if now >= s.End() {
		return new(big.Int).Set(s.Total)
	}

	unlocked := new(big.Int)
	cursor := s.CliffEnd()
	for _, tr := range s.Tranches {
		part := new(big.Int).Mul(s.Total, new(big.Int).SetUint64(tr.Percent))
		part.Quo(part, hundred)
		if now >= cursor+tr.Duration {
			unlocked.Add(unlocked, part)
			cursor += tr.Duration
			continue
		}
		// Zero-length tranches are always complete, so Duration > 0 here.
		elapsed := new(big.Int).SetUint64(now - cursor)
		part.Mul(part, elapsed)
		part.Quo(part, new(big.Int).SetUint64(tr.Duration))
		unlocked.Add(unlocked, part)
		break
	}
	if unlocked.Cmp(s.Total) > 0 {
		unlocked.Set(s.Total)
	}
	return unlocked
}

// Withdrawable returns Unlocked(now) minus what was already released.
func Withdrawable(s Schedule, released *big.Int, now uint64) (*big.Int, error) {
	out := s.Unlocked(now)
	if released != nil {
		out.Sub(out, released)
	}
	if out.Sign() <= 0 {
		return new(big.Int), ErrNothingToWithdraw
	}
	return out, nil
}

// Split builds one schedule per amount on the shared clock of s.
func Split(s Schedule, amounts []*big.Int) ([]Schedule, error) {
	out := make([]Schedule, 0, len(amounts))
	for i, amt := range amounts {
		if amt == nil || amt.Sign() <= 0 {
			return nil, fmt.Errorf("%w: amount %d must be positive", ErrInvalidSchedule, i)
		}
		child, err := NewSchedule(new(big.Int).Set(amt), s.Start, s.Cliff, s.Tranches)
		if err != nil {
			return nil, err
		}
		out = append(out, child)
	}
	return out, nil
}

// ParseTranches parses "50:10d,25:10d,25:20d". Durations accept a "d" suffix
// for days in addition to time.ParseDuration units; a bare number is seconds.
func ParseTranches(raw string) ([]Tranche, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty tranche list", ErrInvalidSchedule)
	}
	var out []Tranche
	for _, item := range strings.Split(raw, ",") {
		pct, dur, ok := strings.Cut(strings.TrimSpace(item), ":")
		if !ok {
			return nil, fmt.Errorf("%w: tranche %q must be percent:duration", ErrInvalidSchedule, item)
		}
		p, err := strconv.ParseUint(strings.TrimSpace(pct), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("%w: percent %q: %v", ErrInvalidSchedule, pct, err)
		}
		d, err := ParseDuration(dur)
		if err != nil {
			return nil, err
		}
		out = append(out, Tranche{Percent: p, Duration: d})
	}
	return out, ValidateTranches(out)
}

// ParseDuration returns seconds.
func ParseDuration(raw string) (uint64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, fmt.Errorf("%w: empty duration", ErrInvalidSchedule)
	}
	if n, err := strconv.ParseUint(raw, 10, 64); err == nil {
		return n, nil
	}
	if days, ok := strings.CutSuffix(raw, "d"); ok {
		n, err := strconv.ParseUint(days, 10, 64)
		if err != nil {
			return 0, fmt.Errorf("%w: duration %q: %v", ErrInvalidSchedule, raw, err)
		}
		return n * 86400, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("%w: duration %q", ErrInvalidSchedule, raw)
	}
	return uint64(d / time.Second), nil
}
