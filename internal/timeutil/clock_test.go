package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	clock := RealClock{}
	before := time.Now()
	now := clock.Now()
	after := time.Now()

	if now.Before(before) || now.After(after) {
		t.Errorf("Now() = %v, expected between %v and %v", now, before, after)
	}
}

func TestRealClock_Since(t *testing.T) {
	clock := RealClock{}
	past := time.Now().Add(-time.Second)

	if d := clock.Since(past); d < time.Second {
		t.Errorf("Since() returned %v, expected >= 1s", d)
	}
}

func TestMockClock_AdvanceAndSet(t *testing.T) {
	start := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	clock := NewMockClock(start)

	clock.Advance(90 * time.Second)
	if got := clock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, want 90s", got)
	}

	later := start.Add(time.Hour)
	clock.Set(later)
	if !clock.Now().Equal(later) {
		t.Errorf("Now() = %v, want %v", clock.Now(), later)
	}
}

func TestRateMeter(t *testing.T) {
	clock := NewMockClock(time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC))
	meter := NewRateMeter(clock, time.Second)

	// Frames at ~33ms; the first tick opens the window and tick 31 is the
	// first one past the one-second mark.
	var closed bool
	var rate float64
	for i := 0; i < 32; i++ {
		rate, closed = meter.Tick()
		if i < 31 && closed {
			t.Fatalf("window closed early at tick %d", i)
		}
		clock.Advance(time.Second / 30)
	}
	if !closed {
		t.Fatal("expected window to close after one second")
	}
	if rate < 29.9 || rate > 31.1 {
		t.Errorf("rate = %v, want ~31", rate)
	}
	if meter.Rate() != rate {
		t.Errorf("Rate() = %v, want %v", meter.Rate(), rate)
	}
}

func TestRateMeter_DefaultWindow(t *testing.T) {
	meter := NewRateMeter(NewMockClock(time.Time{}), 0)
	if meter.window != time.Second {
		t.Errorf("window = %v, want 1s", meter.window)
	}
	if meter.Rate() != 0 {
		t.Errorf("Rate() = %v, want 0", meter.Rate())
	}
}
