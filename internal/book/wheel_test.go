package book

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestExpirationWheel_BadBoundsRejected(t *testing.T) {
	_, err := NewExpirationWheel(0, 10)
	assert.ErrorIs(t, err, ErrBadWheelBounds)

	_, err = NewExpirationWheel(10, 10)
	assert.ErrorIs(t, err, ErrBadWheelBounds)

	_, err = NewExpirationWheel(5, 3)
	assert.ErrorIs(t, err, ErrBadWheelBounds)
}

func TestExpirationWheel_ScheduleAndAdvance(t *testing.T) {
	w, err := NewExpirationWheel(1, 4)
	require.NoError(t, err)

	one := uint64(1)
	order, err := NewOrder(42, 100.0, 10, Buy, nil, &one)
	require.NoError(t, err)

	w.Schedule(order) // slot = (0 + 1) % 4 = 1
	expired := w.Advance()
	require.Len(t, expired, 1)
	assert.Equal(t, uint64(42), expired[0])
	assert.Empty(t, w.Advance(), "nothing scheduled for tick 2")
}

func TestExpirationWheel_WrapAroundToleratesLongLifetimes(t *testing.T) {
	w, err := NewExpirationWheel(1, 4)
	require.NoError(t, err)

	ttl := uint64(6) // exceeds max_lifetime, wraps around per spec.md §4.2
	order, err := NewOrder(1, 100.0, 10, Buy, nil, &ttl)
	require.NoError(t, err)
	w.Schedule(order) // slot = (0 + 6) % 4 = 2

	assert.Empty(t, w.Advance()) // now = 1, bucket empty
	expired := w.Advance()       // now = 2, order lands here
	require.Len(t, expired, 1)
	assert.Equal(t, uint64(1), expired[0])
}

func TestExpirationWheel_FourTicksEachCancelExactlyOnce(t *testing.T) {
	w, err := NewExpirationWheel(1, 4)
	require.NoError(t, err)

	lifetime := uint64(1)
	seen := make(map[uint64]int)
	for tick := uint64(0); tick < 4; tick++ {
		order, err := NewOrder(tick+1, 100.0, 10, Buy, nil, &lifetime)
		require.NoError(t, err)
		w.Schedule(order)
		for _, id := range w.Advance() {
			seen[id]++
		}
	}
	assert.Len(t, seen, 4)
	for id, count := range seen {
		assert.Equal(t, 1, count, "id %d should expire exactly once", id)
	}
}
