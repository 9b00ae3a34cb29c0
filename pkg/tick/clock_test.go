package tick

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func testClock() Clock {
	return Clock{
		GameStartsAt:      time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC),
		TickDuration:      2 * time.Minute,
		NetworksOpenAfter: 10 * time.Minute,
		GameEndsAfter:     8 * time.Hour,
	}
}

func TestNumberBeforeStart(t *testing.T) {
	c := testClock()
	assert.Equal(t, 0, c.Number(c.GameStartsAt.Add(-time.Second)))
}

func TestNumberAtStart(t *testing.T) {
	c := testClock()
	assert.Equal(t, 1, c.Number(c.GameStartsAt))
}

func TestNumberAdvances(t *testing.T) {
	c := testClock()
	assert.Equal(t, 2, c.Number(c.GameStartsAt.Add(2*time.Minute)))
	assert.Equal(t, 3, c.Number(c.GameStartsAt.Add(5*time.Minute)))
}

func TestNetworksOpen(t *testing.T) {
	c := testClock()
	assert.False(t, c.NetworksOpen(c.GameStartsAt.Add(5*time.Minute)))
	assert.True(t, c.NetworksOpen(c.GameStartsAt.Add(10*time.Minute)))
}

func TestHasEnded(t *testing.T) {
	c := testClock()
	assert.False(t, c.HasEnded(c.GameStartsAt.Add(time.Hour)))
	assert.True(t, c.HasEnded(c.GameStartsAt.Add(9*time.Hour)))
}

func TestNextStart(t *testing.T) {
	c := testClock()
	n := c.NextStart(c.GameStartsAt.Add(90 * time.Second))
	assert.Equal(t, c.GameStartsAt.Add(2*time.Minute), n)
}
