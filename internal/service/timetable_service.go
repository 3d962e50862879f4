package service

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
)

const cacheKeyPrefix = "timetable:v1:"

type runStore interface {
	Create(ctx context.Context, run *models.TimetableRun) error
	GetByID(ctx context.Context, id string) (*models.TimetableRun, error)
	List(ctx context.Context, limit, offset int) ([]models.TimetableRun, error)
}

type resultCache interface {
	Get(ctx context.Context, key string, dest interface{}) (bool, error)
	Set(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

type generationRecorder interface {
	ObserveGeneration(outcome string, stats *dto.GenerationStats, duration time.Duration)
}

// TimetableConfig tunes generation.
type TimetableConfig struct {
	MaxDepth       int
	Timeout        time.Duration
	MaxClasses     int
	CacheTTL       time.Duration
	HistoryEnabled bool
}

// TimetableService translates client payloads into the scheduling model, runs the engine and
// formats the outcome.
type TimetableService struct {
	runs      runStore
	cache     resultCache
	metrics   generationRecorder
	validator *validator.Validate
	logger    *zap.Logger
	cfg       TimetableConfig
	now       func() time.Time
}

// NewTimetableService constructs the service. runs, cache and metrics may be nil.
func NewTimetableService(runs runStore, cache resultCache, metrics generationRecorder, validate *validator.Validate, logger *zap.Logger, cfg TimetableConfig) *TimetableService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = scheduler.DefaultMaxDepth
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	if cfg.MaxClasses <= 0 {
		cfg.MaxClasses = 200
	}
	svc := &TimetableService{
		runs:      runs,
		cache:     cache,
		metrics:   metrics,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
		now:       time.Now,
	}
	svc.validator.RegisterValidation("clock", func(fl validator.FieldLevel) bool {
		_, err := scheduler.ParseClock(fl.Field().String())
		return err == nil
	})
	return svc
}

// Generate schedules the given classes. Partial schedules are returned with status "partial";
// only malformed input, timeouts and internal faults are errors.
func (s *TimetableService) Generate(ctx context.Context, classes []dto.ClassRequest) (*dto.GenerateResponse, error) {
	started := s.now()
	if err := s.Validate(classes); err != nil {
		return nil, err
	}

	key, hash, err := s.cacheKey(classes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to hash payload")
	}

	if s.cache != nil {
		var cached dto.GenerateResponse
		hit, cacheErr := s.cache.Get(ctx, key, &cached)
		if cacheErr == nil && hit {
			cached.RunID = uuid.NewString()
			cached.Timestamp = s.now().UTC()
			cached.CacheHit = true
			cached.ProcessingTimeSeconds = roundSeconds(s.now().Sub(started))
			s.observe(cached.Status, &cached.Stats, s.now().Sub(started))
			s.record(ctx, hash, classes, &cached)
			return &cached, nil
		}
	}

	built, order, err := BuildClasses(classes)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, err.Error())
	}

	engine, success, err := s.runEngine(ctx, built, order)
	if err != nil {
		outcome := "error"
		if appErrors.FromError(err).Code == appErrors.ErrTimeout.Code {
			outcome = "timeout"
		}
		s.observe(outcome, nil, s.now().Sub(started))
		return nil, err
	}

	timetable, err := FormatTimetable(engine)
	if err != nil {
		s.observe("error", nil, s.now().Sub(started))
		return nil, err
	}

	stats := engine.Stats()
	issues := QualityIssues(engine)
	result := &dto.GenerateResponse{
		RunID:         uuid.NewString(),
		Status:        dto.StatusPartial,
		QualityCheck:  dto.QualityPassed,
		QualityIssues: issues,
		Timestamp:     s.now().UTC(),
		Timetable:     timetable,
		Summary:       summarize(timetable),
		Stats: dto.GenerationStats{
			TotalClasses: stats.TotalClasses,
			TotalLessons: stats.TotalLessons,
			Assignments:  stats.Assignments,
			Backtracks:   stats.Backtracks,
		},
	}
	if success && engine.Complete() {
		result.Status = dto.StatusSuccess
	}
	if len(issues) > 0 {
		result.QualityCheck = dto.QualityIssuesFound
	}
	elapsed := s.now().Sub(started)
	result.ProcessingTimeSeconds = roundSeconds(elapsed)

	s.logger.Info("timetable generated",
		zap.String("run_id", result.RunID),
		zap.String("status", result.Status),
		zap.Int("classes", stats.TotalClasses),
		zap.Int("assignments", stats.Assignments),
		zap.Int("backtracks", stats.Backtracks),
		zap.Duration("elapsed", elapsed),
	)
	s.observe(result.Status, &result.Stats, elapsed)

	if s.cache != nil {
		if err := s.cache.Set(ctx, key, result, s.cfg.CacheTTL); err != nil {
			s.logger.Warn("failed to cache timetable", zap.String("key", key), zap.Error(err))
		}
	}
	s.record(ctx, hash, classes, result)
	return result, nil
}

// Validate checks the payload before any model is built.
func (s *TimetableService) Validate(classes []dto.ClassRequest) error {
	if len(classes) > s.cfg.MaxClasses {
		return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("at most %d classes per request", s.cfg.MaxClasses))
	}
	if err := s.validator.Struct(dto.GenerateRequest{Classes: classes}); err != nil {
		return appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid timetable payload")
	}
	seen := make(map[int]struct{}, len(classes))
	for _, class := range classes {
		id := *class.ClassID
		if _, dup := seen[id]; dup {
			return appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("duplicate class_id %d", id))
		}
		seen[id] = struct{}{}
	}
	return nil
}

// GetRun returns the stored result of a past run.
func (s *TimetableService) GetRun(ctx context.Context, id string) (*dto.GenerateResponse, error) {
	if !s.historyEnabled() {
		return nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "run history is disabled")
	}
	if _, err := uuid.Parse(id); err != nil {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	run, err := s.runs.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load run")
	}
	var result dto.GenerateResponse
	if err := run.Result.Unmarshal(&result); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "stored run is unreadable")
	}
	return &result, nil
}

// ListRuns pages stored runs newest first.
func (s *TimetableService) ListRuns(ctx context.Context, query dto.RunQuery) ([]dto.RunSummary, map[string]interface{}, error) {
	if !s.historyEnabled() {
		return nil, nil, appErrors.Clone(appErrors.ErrFeatureDisabled, "run history is disabled")
	}
	if err := s.validator.Struct(query); err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query")
	}
	if query.Limit == 0 {
		query.Limit = 20
	}
	runs, err := s.runs.List(ctx, query.Limit, query.Offset)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list runs")
	}
	items := make([]dto.RunSummary, 0, len(runs))
	for _, run := range runs {
		items = append(items, dto.RunSummary{
			ID:                    run.ID,
			Status:                run.Status,
			PayloadHash:           run.PayloadHash,
			CacheHit:              run.CacheHit,
			ProcessingTimeSeconds: float64(run.ProcessingMS) / 1000,
			Stats: dto.GenerationStats{
				TotalClasses: run.TotalClasses,
				TotalLessons: run.TotalLessons,
				Assignments:  run.Assignments,
				Backtracks:   run.Backtracks,
			},
			CreatedAt: run.CreatedAt,
		})
	}
	meta := map[string]interface{}{
		"limit":  query.Limit,
		"offset": query.Offset,
		"count":  len(items),
	}
	return items, meta, nil
}

func (s *TimetableService) historyEnabled() bool {
	return s.cfg.HistoryEnabled && s.runs != nil
}

type engineOutcome struct {
	engine  *scheduler.Engine
	success bool
	err     error
}

// runEngine bounds the search by wall-clock time. The engine is not cancellable, so on timeout
// its goroutine finishes in the background and the result is dropped.
func (s *TimetableService) runEngine(ctx context.Context, classes map[int]*scheduler.Class, order []int) (*scheduler.Engine, bool, error) {
	done := make(chan engineOutcome, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- engineOutcome{err: fmt.Errorf("scheduler panic: %v", r)}
			}
		}()
		engine := scheduler.NewEngine(classes, order, scheduler.Config{MaxDepth: s.cfg.MaxDepth, Logger: s.logger})
		ok := engine.ScheduleAll()
		done <- engineOutcome{engine: engine, success: ok}
	}()

	timer := time.NewTimer(s.cfg.Timeout)
	defer timer.Stop()

	select {
	case out := <-done:
		if out.err != nil {
			s.logger.Error("scheduler failed", zap.Error(out.err))
			return nil, false, appErrors.Wrap(out.err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
		}
		return out.engine, out.success, nil
	case <-ctx.Done():
		return nil, false, appErrors.Wrap(ctx.Err(), appErrors.ErrTimeout.Code, appErrors.ErrTimeout.Status, "scheduling cancelled")
	case <-timer.C:
		s.logger.Warn("scheduler timed out", zap.Duration("timeout", s.cfg.Timeout), zap.Int("classes", len(classes)))
		return nil, false, appErrors.Clone(appErrors.ErrTimeout, fmt.Sprintf("scheduling exceeded %s", s.cfg.Timeout))
	}
}

func (s *TimetableService) cacheKey(classes []dto.ClassRequest) (key, hash string, err error) {
	payload, err := json.Marshal(classes)
	if err != nil {
		return "", "", err
	}
	sum := sha256.Sum256(payload)
	hash = hex.EncodeToString(sum[:])
	return fmt.Sprintf("%s%s:d%d", cacheKeyPrefix, hash, s.cfg.MaxDepth), hash, nil
}

func (s *TimetableService) observe(outcome string, stats *dto.GenerationStats, elapsed time.Duration) {
	if s.metrics != nil {
		s.metrics.ObserveGeneration(outcome, stats, elapsed)
	}
}

// record persists a run. History is best effort and never fails the request.
func (s *TimetableService) record(ctx context.Context, hash string, classes []dto.ClassRequest, result *dto.GenerateResponse) {
	if !s.historyEnabled() {
		return
	}
	request, err := json.Marshal(classes)
	if err != nil {
		s.logger.Warn("failed to encode run request", zap.Error(err))
		return
	}
	body, err := json.Marshal(result)
	if err != nil {
		s.logger.Warn("failed to encode run result", zap.Error(err))
		return
	}
	run := &models.TimetableRun{
		ID:           result.RunID,
		PayloadHash:  hash,
		Status:       result.Status,
		CacheHit:     result.CacheHit,
		TotalClasses: result.Stats.TotalClasses,
		TotalLessons: result.Stats.TotalLessons,
		Assignments:  result.Stats.Assignments,
		Backtracks:   result.Stats.Backtracks,
		ProcessingMS: int64(result.ProcessingTimeSeconds * 1000),
		Request:      request,
		Result:       body,
		CreatedAt:    result.Timestamp,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		s.logger.Warn("failed to persist run", zap.String("run_id", run.ID), zap.Error(err))
	}
}

// BuildClasses translates validated requests into the scheduling model. Period and lesson ids
// are classId*1000 + position + 1. The returned order lists class ids in payload order.
func BuildClasses(classes []dto.ClassRequest) (map[int]*scheduler.Class, []int, error) {
	built := make(map[int]*scheduler.Class, len(classes))
	order := make([]int, 0, len(classes))
	for _, req := range classes {
		classID := *req.ClassID
		name := req.ClassName
		if name == "" {
			name = fmt.Sprintf("Class %d", classID)
		}
		class := scheduler.NewClass(classID, name)
		for i, p := range req.Periods {
			period, err := scheduler.NewPeriod(classID*1000+i+1, classID, p.Day, p.StartTime, p.EndTime)
			if err != nil {
				return nil, nil, fmt.Errorf("class %d: %w", classID, err)
			}
			class.AddPeriod(period)
		}
		for i, l := range req.Lessons {
			class.AddLesson(scheduler.NewLesson(classID*1000+i+1, classID, *l.SubjectID, *l.TeacherID, *l.TaughtPerWeek, *l.IsBackToBack))
		}
		class.SortPeriods()
		built[classID] = class
		order = append(order, classID)
	}
	return built, order, nil
}

// FormatTimetable reads the final model state into the response shape. Every working day is
// listed for every class; days outside the working week are listed when a class has periods on
// them. A period pointing at a lesson its class does not own is reported as an internal error.
func FormatTimetable(engine *scheduler.Engine) (dto.Timetable, error) {
	classes := engine.Classes()
	days := make(map[string]map[int][]dto.PeriodSlot, len(scheduler.WorkingDays))
	for _, day := range scheduler.WorkingDays {
		days[day] = make(map[int][]dto.PeriodSlot, len(classes))
	}
	summaries := make(map[int]dto.ClassSummary, len(classes))

	for _, classID := range engine.ClassOrder() {
		class := classes[classID]
		for _, day := range scheduler.WorkingDays {
			days[day][classID] = make([]dto.PeriodSlot, 0, len(class.PeriodsByDay[day]))
		}
		for day, ids := range class.PeriodsByDay {
			if _, ok := days[day]; !ok {
				days[day] = make(map[int][]dto.PeriodSlot)
			}
			slots := make([]dto.PeriodSlot, 0, len(ids))
			for _, id := range ids {
				period := class.Periods[id]
				slot := dto.PeriodSlot{PeriodID: period.ID, StartTime: period.StartTime, EndTime: period.EndTime}
				if period.AssignedLessonID != nil {
					lesson, ok := class.Lessons[*period.AssignedLessonID]
					if !ok {
						return dto.Timetable{}, appErrors.Wrap(
							fmt.Errorf("period %d references lesson %d outside class %d", period.ID, *period.AssignedLessonID, classID),
							appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, appErrors.ErrInternal.Message)
					}
					slot.AssignedLesson = &dto.AssignedLesson{
						LessonID:  lesson.ID,
						SubjectID: lesson.SubjectID,
						TeacherID: lesson.TeacherID,
						ClassID:   lesson.ClassID,
					}
				}
				slots = append(slots, slot)
			}
			days[day][classID] = slots
		}

		lessons := make(map[int]dto.LessonSummary, len(class.Lessons))
		for _, lesson := range class.OrderedLessons() {
			lessons[lesson.ID] = dto.LessonSummary{
				SubjectID:         lesson.SubjectID,
				TeacherID:         lesson.TeacherID,
				SessionsAssigned:  lesson.SessionsAssigned(),
				SessionsRemaining: lesson.Remaining,
			}
		}
		summaries[classID] = dto.ClassSummary{
			Name:            class.Name,
			TotalPeriods:    len(class.Periods),
			AssignedPeriods: class.FilledCount(),
			Lessons:         lessons,
		}
	}
	return dto.Timetable{Days: days, Classes: summaries}, nil
}

// QualityIssues lists unfilled class-days and lessons with sessions left, in payload order.
func QualityIssues(engine *scheduler.Engine) []string {
	issues := make([]string, 0)
	classes := engine.Classes()
	for _, classID := range engine.ClassOrder() {
		class := classes[classID]
		for _, day := range dayNames(class) {
			if n := len(class.UnfilledPeriods(day)); n > 0 {
				issues = append(issues, fmt.Sprintf("%s: %d unfilled period(s) on %s", class.Name, n, day))
			}
		}
		for _, lesson := range class.OrderedLessons() {
			if lesson.Remaining > 0 {
				issues = append(issues, fmt.Sprintf("%s: lesson %d (subject %d, teacher %d) has %d unscheduled session(s)",
					class.Name, lesson.ID, lesson.SubjectID, lesson.TeacherID, lesson.Remaining))
			}
		}
	}
	return issues
}

// dayNames returns working days first, then any other day names in lexical order.
func dayNames(class *scheduler.Class) []string {
	names := make([]string, 0, len(class.PeriodsByDay))
	working := make(map[string]struct{}, len(scheduler.WorkingDays))
	for _, day := range scheduler.WorkingDays {
		working[day] = struct{}{}
		if len(class.PeriodsByDay[day]) > 0 {
			names = append(names, day)
		}
	}
	var extra []string
	for day := range class.PeriodsByDay {
		if _, ok := working[day]; !ok {
			extra = append(extra, day)
		}
	}
	sort.Strings(extra)
	return append(names, extra...)
}

func summarize(timetable dto.Timetable) map[string]interface{} {
	total, assigned, remaining := 0, 0, 0
	for _, class := range timetable.Classes {
		total += class.TotalPeriods
		assigned += class.AssignedPeriods
		for _, lesson := range class.Lessons {
			remaining += lesson.SessionsRemaining
		}
	}
	fillRate := 0.0
	if total > 0 {
		fillRate = math.Round(float64(assigned)/float64(total)*10000) / 100
	}
	return map[string]interface{}{
		"total_periods":        total,
		"assigned_periods":     assigned,
		"unfilled_periods":     total - assigned,
		"fill_rate_percent":    fillRate,
		"unscheduled_sessions": remaining,
	}
}

func roundSeconds(d time.Duration) float64 {
	return math.Round(d.Seconds()*1000) / 1000
}
