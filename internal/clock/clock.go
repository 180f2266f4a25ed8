package clock

import (
	"sync"
	"time"
)

// Clock reports the current timestamp (unix seconds) and block height.
type Clock interface {
	Now() uint64
	Height() uint64
}

// System derives time from the wall clock and a nominal block interval.
type System struct {
	Genesis       time.Time
	BlockInterval time.Duration
}

func (s System) Now() uint64 {
	return uint64(time.Now().Unix())
}

func (s System) Height() uint64 {
	if s.BlockInterval <= 0 || s.Genesis.IsZero() {
		return 0
	}
	elapsed := time.Since(s.Genesis)
	if elapsed < 0 {
		return 0
	}
	return uint64(elapsed / s.BlockInterval)
}

// Manual is a settable clock used by tests and scenario simulation.
type Manual struct {
	mu     sync.RWMutex
	now    uint64
	height uint64
}

// NewManual starts a manual clock at now and height.
func NewManual(now, height uint64) *Manual {
	return &Manual{now: now, height: height}
}

func (m *Manual) Now() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

func (m *Manual) Height() uint64 {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.height
}

// Set moves the clock to ts. Moving backwards is ignored.
func (m *Manual) Set(ts uint64) {
	m.mu.Lock()
	if ts > m.now {
		m.now = ts
	}
	m.mu.Unlock()
}

// Advance moves the clock forward by d (whole seconds).
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now += uint64(d / time.Second)
	m.mu.Unlock()
}

// Mine advances the block height by n.
func (m *Manual) Mine(n uint64) {
	m.mu.Lock()
	m.height += n
	m.mu.Unlock()
}

// SetHeight moves the height to h. Moving backwards is ignored.
func (m *Manual) SetHeight(h uint64) {
	m.mu.Lock()
	if h > m.height {
		m.height = h
	}
	m.mu.Unlock()
}
