package scheduler

import "sort"

// Window is a half-open [Start, End) range in minutes since midnight.
type Window struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

type bookedWindow struct {
	Window
	periodID int
}

// AvailabilityTracker records booked intervals per teacher and day. It is owned by a single
// engine for the duration of one scheduling run and is not safe for concurrent use.
type AvailabilityTracker struct {
	busy map[int]map[string][]bookedWindow
}

// NewAvailabilityTracker returns an empty tracker.
func NewAvailabilityTracker() *AvailabilityTracker {
	return &AvailabilityTracker{busy: make(map[int]map[string][]bookedWindow)}
}

// IsAvailable reports whether the teacher has no booking overlapping [start, end) on day.
func (t *AvailabilityTracker) IsAvailable(teacherID int, day string, start, end int) bool {
	for _, w := range t.busy[teacherID][day] {
		if max(start, w.Start) < min(end, w.End) {
			return false
		}
	}
	return true
}

// MarkBusy books [start, end) for the teacher, tagged with the period that created it.
// It never rejects; callers check IsAvailable first.
func (t *AvailabilityTracker) MarkBusy(teacherID int, day string, start, end, periodID int) {
	days, ok := t.busy[teacherID]
	if !ok {
		days = make(map[string][]bookedWindow)
		t.busy[teacherID] = days
	}
	days[day] = append(days[day], bookedWindow{Window: Window{Start: start, End: end}, periodID: periodID})
}

// MarkFree releases the booking tagged with periodID. Releasing an unknown booking is a no-op.
func (t *AvailabilityTracker) MarkFree(teacherID int, day string, periodID int) {
	windows := t.busy[teacherID][day]
	for i, w := range windows {
		if w.periodID == periodID {
			t.busy[teacherID][day] = append(windows[:i:i], windows[i+1:]...)
			return
		}
	}
}

// Booked returns a sorted copy of the teacher's booked windows on day.
func (t *AvailabilityTracker) Booked(teacherID int, day string) []Window {
	windows := t.busy[teacherID][day]
	result := make([]Window, 0, len(windows))
	for _, w := range windows {
		result = append(result, w.Window)
	}
	sort.Slice(result, func(i, j int) bool {
		if result[i].Start == result[j].Start {
			return result[i].End < result[j].End
		}
		return result[i].Start < result[j].Start
	})
	return result
}

// FreeWindows returns the gaps between the teacher's bookings within [dayStart, dayEnd).
func (t *AvailabilityTracker) FreeWindows(teacherID int, day string, dayStart, dayEnd int) []Window {
	if dayStart >= dayEnd {
		return nil
	}
	var free []Window
	current := dayStart
	for _, w := range t.Booked(teacherID, day) {
		if w.Start > current {
			free = append(free, Window{Start: current, End: min(w.Start, dayEnd)})
		}
		current = max(current, w.End)
		if current >= dayEnd {
			break
		}
	}
	if current < dayEnd {
		free = append(free, Window{Start: current, End: dayEnd})
	}
	return free
}
