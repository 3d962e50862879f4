package scheduler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAvailabilityTrackerOverlap(t *testing.T) {
	tracker := NewAvailabilityTracker()
	assert.True(t, tracker.IsAvailable(7, "Monday", 540, 600), "unknown teacher is fully available")

	tracker.MarkBusy(7, "Monday", 540, 600, 1001)

	assert.False(t, tracker.IsAvailable(7, "Monday", 540, 600))
	assert.False(t, tracker.IsAvailable(7, "Monday", 570, 630))
	assert.False(t, tracker.IsAvailable(7, "Monday", 500, 560))
	assert.True(t, tracker.IsAvailable(7, "Monday", 600, 660), "touching intervals do not overlap")
	assert.True(t, tracker.IsAvailable(7, "Monday", 480, 540))
	assert.True(t, tracker.IsAvailable(7, "Tuesday", 540, 600))
	assert.True(t, tracker.IsAvailable(8, "Monday", 540, 600))
}

func TestAvailabilityTrackerMarkFreeIsIdempotent(t *testing.T) {
	tracker := NewAvailabilityTracker()
	tracker.MarkBusy(5, "Friday", 540, 600, 1001)
	tracker.MarkBusy(5, "Friday", 600, 660, 1002)

	tracker.MarkFree(5, "Friday", 1001)
	once := tracker.Booked(5, "Friday")
	tracker.MarkFree(5, "Friday", 1001)
	twice := tracker.Booked(5, "Friday")

	require.Equal(t, []Window{{Start: 600, End: 660}}, once)
	assert.Equal(t, once, twice)
	assert.True(t, tracker.IsAvailable(5, "Friday", 540, 600))

	tracker.MarkFree(99, "Sunday", 1)
	assert.Empty(t, tracker.Booked(99, "Sunday"))
}

func TestAvailabilityTrackerFreeWindows(t *testing.T) {
	tracker := NewAvailabilityTracker()
	assert.Equal(t, []Window{{Start: 480, End: 900}}, tracker.FreeWindows(3, "Monday", 480, 900))

	tracker.MarkBusy(3, "Monday", 600, 660, 2)
	tracker.MarkBusy(3, "Monday", 480, 540, 1)
	tracker.MarkBusy(3, "Monday", 630, 720, 3)

	free := tracker.FreeWindows(3, "Monday", 480, 900)
	assert.Equal(t, []Window{{Start: 540, End: 600}, {Start: 720, End: 900}}, free)

	assert.Equal(t, []Window{{Start: 540, End: 600}}, tracker.FreeWindows(3, "Monday", 480, 620))
	assert.Nil(t, tracker.FreeWindows(3, "Monday", 900, 900))
}
