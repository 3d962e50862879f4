package scheduler

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// WorkingDays lists the days the engine schedules, in visiting order.
var WorkingDays = []string{"Monday", "Tuesday", "Wednesday", "Thursday", "Friday", "Saturday"}

// ParseClock converts "HH:MM" or "HH:MM:SS" into minutes since midnight. Seconds are ignored.
func ParseClock(raw string) (int, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	if len(parts) < 2 || len(parts) > 3 {
		return 0, fmt.Errorf("invalid time %q: expected HH:MM[:SS]", raw)
	}
	values := make([]int, len(parts))
	for i, part := range parts {
		if !isDigits(part) {
			return 0, fmt.Errorf("invalid time %q: %q is not a number", raw, part)
		}
		v, err := strconv.Atoi(part)
		if err != nil {
			return 0, fmt.Errorf("invalid time %q: %q is not a number", raw, part)
		}
		values[i] = v
	}
	if values[0] > 23 || values[1] > 59 || (len(values) == 3 && values[2] > 59) {
		return 0, fmt.Errorf("invalid time %q: out of range", raw)
	}
	return values[0]*60 + values[1], nil
}

func isDigits(s string) bool {
	if s == "" || len(s) > 2 {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// Period is a fixed slot of one class on one day.
type Period struct {
	ID               int
	ClassID          int
	Day              string
	StartTime        string
	EndTime          string
	StartMin         int
	EndMin           int
	AssignedLessonID *int
}

// NewPeriod builds a period, deriving minute offsets from the clock strings.
func NewPeriod(id, classID int, day, startTime, endTime string) (*Period, error) {
	start, err := ParseClock(startTime)
	if err != nil {
		return nil, err
	}
	end, err := ParseClock(endTime)
	if err != nil {
		return nil, err
	}
	if start >= end {
		return nil, fmt.Errorf("period %d: start %s must be before end %s", id, startTime, endTime)
	}
	return &Period{
		ID:        id,
		ClassID:   classID,
		Day:       day,
		StartTime: startTime,
		EndTime:   endTime,
		StartMin:  start,
		EndMin:    end,
	}, nil
}

// Filled reports whether a lesson is assigned to the period.
func (p *Period) Filled() bool {
	return p.AssignedLessonID != nil
}

// Lesson is a weekly teaching requirement of one class.
type Lesson struct {
	ID                int
	ClassID           int
	SubjectID         int
	TeacherID         int
	Remaining         int
	Original          int
	BackToBack        bool
	AssignedPeriodIDs []int
	DailyCount        map[string]int
}

// NewLesson snapshots the weekly session count and zeroes the per-day counters.
func NewLesson(id, classID, subjectID, teacherID, perWeek int, backToBack bool) *Lesson {
	daily := make(map[string]int, len(WorkingDays))
	for _, day := range WorkingDays {
		daily[day] = 0
	}
	return &Lesson{
		ID:         id,
		ClassID:    classID,
		SubjectID:  subjectID,
		TeacherID:  teacherID,
		Remaining:  perWeek,
		Original:   perWeek,
		BackToBack: backToBack,
		DailyCount: daily,
	}
}

// SessionsAssigned returns how many sessions have been placed so far.
func (l *Lesson) SessionsAssigned() int {
	return l.Original - l.Remaining
}

// Class is a teaching group owning its periods and lessons.
type Class struct {
	ID           int
	Name         string
	Periods      map[int]*Period
	Lessons      map[int]*Lesson
	PeriodsByDay map[string][]int
	LessonOrder  []int
}

// NewClass returns an empty class.
func NewClass(id int, name string) *Class {
	return &Class{
		ID:           id,
		Name:         name,
		Periods:      make(map[int]*Period),
		Lessons:      make(map[int]*Lesson),
		PeriodsByDay: make(map[string][]int),
	}
}

// AddPeriod registers a period under its day. Call SortPeriods once all periods are added.
func (c *Class) AddPeriod(p *Period) {
	c.Periods[p.ID] = p
	c.PeriodsByDay[p.Day] = append(c.PeriodsByDay[p.Day], p.ID)
}

// AddLesson registers a lesson, remembering insertion order.
func (c *Class) AddLesson(l *Lesson) {
	if _, exists := c.Lessons[l.ID]; !exists {
		c.LessonOrder = append(c.LessonOrder, l.ID)
	}
	c.Lessons[l.ID] = l
}

// SortPeriods orders every day's periods by start time.
func (c *Class) SortPeriods() {
	for day := range c.PeriodsByDay {
		ids := c.PeriodsByDay[day]
		sort.SliceStable(ids, func(i, j int) bool {
			return c.Periods[ids[i]].StartMin < c.Periods[ids[j]].StartMin
		})
	}
}

// UnfilledPeriods returns the day's periods without a lesson, in start-time order.
func (c *Class) UnfilledPeriods(day string) []*Period {
	var result []*Period
	for _, id := range c.PeriodsByDay[day] {
		if p := c.Periods[id]; !p.Filled() {
			result = append(result, p)
		}
	}
	return result
}

// OrderedLessons returns lessons in payload order.
func (c *Class) OrderedLessons() []*Lesson {
	result := make([]*Lesson, 0, len(c.LessonOrder))
	for _, id := range c.LessonOrder {
		result = append(result, c.Lessons[id])
	}
	return result
}

// FilledCount counts periods with a lesson across the whole week.
func (c *Class) FilledCount() int {
	n := 0
	for _, p := range c.Periods {
		if p.Filled() {
			n++
		}
	}
	return n
}
