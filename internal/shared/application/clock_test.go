package application

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestManualClock_FiresDueTimers(t *testing.T) {
	start := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := NewManualClock(start)

	short := clock.After(time.Minute)
	long := clock.After(time.Hour)
	assert.Equal(t, 2, clock.Waiters())

	clock.Advance(2 * time.Minute)
	select {
	case at := <-short:
		assert.Equal(t, start.Add(2*time.Minute), at)
	default:
		t.Fatal("expected short timer to fire")
	}
	select {
	case <-long:
		t.Fatal("long timer fired early")
	default:
	}
	assert.Equal(t, 1, clock.Waiters())

	clock.Set(start.Add(2 * time.Hour))
	<-long
	assert.Zero(t, clock.Waiters())
}

func TestManualClock_ZeroDurationFiresImmediately(t *testing.T) {
	clock := NewManualClock(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
	select {
	case <-clock.After(0):
	default:
		t.Fatal("expected immediate fire")
	}
}
