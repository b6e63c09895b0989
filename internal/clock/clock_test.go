package clock

import (
	"testing"
	"time"
)

func TestNow_ReturnsCurrentTime(t *testing.T) {
	before := time.Now()
	result := Now()
	after := time.Now()

	if result.Before(before) || result.After(after) {
		t.Errorf("Now() returned %v, expected between %v and %v", result, before, after)
	}
}

func TestMockClock_Advance(t *testing.T) {
	start := time.Date(2025, 6, 15, 12, 0, 0, 0, time.UTC)
	mock := NewMockClock(start)

	mock.Advance(90 * time.Second)

	if got := mock.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("After Advance, Now() = %v", got)
	}
	if got := mock.Since(start); got != 90*time.Second {
		t.Errorf("Since() = %v, expected 1m30s", got)
	}
}

func TestMockClock_Set(t *testing.T) {
	mock := NewMockClock(time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC))

	newTime := time.Date(2025, 12, 1, 0, 0, 0, 0, time.UTC)
	mock.Set(newTime)

	if result := mock.Now(); !result.Equal(newTime) {
		t.Errorf("After Set, Now() = %v, expected %v", result, newTime)
	}
}

func TestOr(t *testing.T) {
	if _, ok := Or(nil).(RealClock); !ok {
		t.Error("Or(nil) should fall back to RealClock")
	}
	mock := NewMockClock(time.Unix(0, 0))
	if Or(mock) != Clock(mock) {
		t.Error("Or should return the given clock")
	}
}

func TestRealClock_Since(t *testing.T) {
	var c Clock = RealClock{}

	past := time.Now().Add(-time.Hour)
	result := c.Since(past)

	if result < time.Hour-time.Second || result > time.Hour+time.Second {
		t.Errorf("RealClock.Since() = %v, expected approximately 1 hour", result)
	}
}
