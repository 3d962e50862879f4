package scheduler

import (
	"math"
	"sort"

	"go.uber.org/zap"
)

// DefaultMaxDepth bounds the recursion of a single class-day search. It is a safety valve against
// runaway search, not a proof of infeasibility: hitting it reports failure even if a filling exists.
const DefaultMaxDepth = 100

// backToBackDailyCap is the number of same-day sessions allowed for a back-to-back lesson.
// Adjacency of those sessions is not checked.
const backToBackDailyCap = 2

// Config tunes the engine.
type Config struct {
	MaxDepth int
	Logger   *zap.Logger
}

// Stats aggregates counters of one run.
type Stats struct {
	TotalClasses int `json:"total_classes"`
	TotalLessons int `json:"total_lessons"`
	Assignments  int `json:"assignments"`
	Backtracks   int `json:"backtracks"`
}

// Engine assigns lessons to periods with a day-by-day, class-by-class backtracking search.
// One engine serves exactly one request: it owns the classes and its tracker exclusively.
type Engine struct {
	classes    map[int]*Class
	classOrder []int
	tracker    *AvailabilityTracker
	maxDepth   int
	logger     *zap.Logger

	assignments int
	backtracks  int
}

// NewEngine wires an engine over the given classes. classOrder lists class ids in payload order.
func NewEngine(classes map[int]*Class, classOrder []int, cfg Config) *Engine {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = DefaultMaxDepth
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}
	return &Engine{
		classes:    classes,
		classOrder: classOrder,
		tracker:    NewAvailabilityTracker(),
		maxDepth:   cfg.MaxDepth,
		logger:     cfg.Logger,
	}
}

// Classes exposes the model the engine mutates.
func (e *Engine) Classes() map[int]*Class {
	return e.classes
}

// ClassOrder returns class ids in payload order.
func (e *Engine) ClassOrder() []int {
	return e.classOrder
}

// Tracker exposes the engine's availability tracker for inspection.
func (e *Engine) Tracker() *AvailabilityTracker {
	return e.tracker
}

// Stats returns the run counters. TotalLessons counts every lesson, including those with no
// weekly sessions.
func (e *Engine) Stats() Stats {
	lessons := 0
	for _, c := range e.classes {
		lessons += len(c.Lessons)
	}
	return Stats{
		TotalClasses: len(e.classes),
		TotalLessons: lessons,
		Assignments:  e.assignments,
		Backtracks:   e.backtracks,
	}
}

// Complete reports whether every period of every class holds a lesson, including periods on
// days the engine never visits.
func (e *Engine) Complete() bool {
	for _, c := range e.classes {
		if c.FilledCount() != len(c.Periods) {
			return false
		}
	}
	return true
}

// ScheduleAll visits every working day, even after a day fails, and reports whether all succeeded.
func (e *Engine) ScheduleAll() bool {
	success := true
	for _, day := range WorkingDays {
		if !e.ScheduleDay(day) {
			e.logger.Warn("day not fully scheduled", zap.String("day", day))
			success = false
		}
	}
	return success
}

// ScheduleDay fills the day for every class, most constrained class first.
func (e *Engine) ScheduleDay(day string) bool {
	order := e.classesByComplexity(day)
	e.logger.Debug("class order", zap.String("day", day), zap.Ints("classes", order))

	ok := true
	for _, classID := range order {
		if !e.ScheduleClassDay(classID, day, 0) {
			ok = false
		}
	}
	return ok
}

type classScore struct {
	id    int
	score float64
}

func (e *Engine) classesByComplexity(day string) []int {
	scores := make([]classScore, 0, len(e.classOrder))
	for _, id := range e.classOrder {
		scores = append(scores, classScore{id: id, score: complexity(e.classes[id], day)})
	}
	sort.SliceStable(scores, func(i, j int) bool {
		if scores[i].score == scores[j].score {
			return scores[i].id > scores[j].id
		}
		return scores[i].score > scores[j].score
	})
	result := make([]int, len(scores))
	for i, s := range scores {
		result[i] = s.id
	}
	return result
}

// complexity is required sessions over available periods; a class with nothing to fill scores +Inf.
func complexity(c *Class, day string) float64 {
	available := len(c.UnfilledPeriods(day))
	if available == 0 {
		return math.Inf(1)
	}
	required := 0
	for _, l := range c.Lessons {
		if l.Remaining > 0 {
			required += min(backToBackDailyCap, l.Remaining)
		}
	}
	return float64(required) / float64(available)
}

// ScheduleClassDay fills every unfilled period of the class on day. On true all periods are
// filled; on false the model and tracker are exactly as they were at entry.
func (e *Engine) ScheduleClassDay(classID int, day string, depth int) bool {
	if depth > e.maxDepth {
		return false
	}
	class := e.classes[classID]
	unfilled := class.UnfilledPeriods(day)
	if len(unfilled) == 0 {
		return true
	}

	for _, period := range unfilled {
		for _, lesson := range e.eligibleLessons(class, day) {
			if !e.canPlace(lesson, period) {
				continue
			}
			e.assign(lesson, period)
			if e.ScheduleClassDay(classID, day, depth+1) {
				return true
			}
			e.unassign(lesson, period)
		}
	}
	return false
}

// eligibleLessons returns lessons with sessions left that are not capped today, ordered by
// remaining sessions descending, then back-to-back first, then payload order.
func (e *Engine) eligibleLessons(class *Class, day string) []*Lesson {
	var result []*Lesson
	for _, l := range class.OrderedLessons() {
		if l.Remaining <= 0 {
			continue
		}
		if l.BackToBack && l.DailyCount[day] >= backToBackDailyCap {
			continue
		}
		result = append(result, l)
	}
	sort.SliceStable(result, func(i, j int) bool {
		if result[i].Remaining != result[j].Remaining {
			return result[i].Remaining > result[j].Remaining
		}
		return result[i].BackToBack && !result[j].BackToBack
	})
	return result
}

func (e *Engine) canPlace(lesson *Lesson, period *Period) bool {
	if !e.tracker.IsAvailable(lesson.TeacherID, period.Day, period.StartMin, period.EndMin) {
		return false
	}
	if lesson.BackToBack && lesson.DailyCount[period.Day] >= backToBackDailyCap {
		return false
	}
	return true
}

func (e *Engine) assign(lesson *Lesson, period *Period) {
	id := lesson.ID
	period.AssignedLessonID = &id
	lesson.Remaining--
	lesson.DailyCount[period.Day]++
	lesson.AssignedPeriodIDs = append(lesson.AssignedPeriodIDs, period.ID)
	e.tracker.MarkBusy(lesson.TeacherID, period.Day, period.StartMin, period.EndMin, period.ID)
	e.assignments++
}

// unassign is the exact inverse of assign.
func (e *Engine) unassign(lesson *Lesson, period *Period) {
	period.AssignedLessonID = nil
	lesson.Remaining++
	lesson.DailyCount[period.Day]--
	for i, pid := range lesson.AssignedPeriodIDs {
		if pid == period.ID {
			lesson.AssignedPeriodIDs = append(lesson.AssignedPeriodIDs[:i:i], lesson.AssignedPeriodIDs[i+1:]...)
			break
		}
	}
	if len(lesson.AssignedPeriodIDs) == 0 {
		lesson.AssignedPeriodIDs = nil
	}
	e.tracker.MarkFree(lesson.TeacherID, period.Day, period.ID)
	e.backtracks++
}
