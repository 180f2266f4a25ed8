package clock

import (
	"testing"
	"time"
)

func TestManualClockMonotonic(t *testing.T) {
	m := NewManual(1000, 10)

	m.Advance(90 * time.Second)
	if m.Now() != 1090 {
		t.Fatalf("now mismatch: %d", m.Now())
	}

	m.Set(500)
	if m.Now() != 1090 {
		t.Fatalf("clock moved backwards: %d", m.Now())
	}

	m.Mine(5)
	m.SetHeight(3)
	if m.Height() != 15 {
		t.Fatalf("height mismatch: %d", m.Height())
	}
}

func TestSystemHeight(t *testing.T) {
	s := System{Genesis: time.Now().Add(-30 * time.Second), BlockInterval: 3 * time.Second}
	if h := s.Height(); h < 9 || h > 11 {
		t.Fatalf("unexpected height: %d", h)
	}
	if (System{}).Height() != 0 {
		t.Fatalf("zero system clock should report height 0")
	}
}
