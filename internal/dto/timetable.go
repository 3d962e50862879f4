package dto

import "time"

// PeriodRequest is one weekly slot of a class as sent by the client.
type PeriodRequest struct {
	Day       string `json:"period_day" validate:"required"`
	StartTime string `json:"start_time" validate:"required,clock"`
	EndTime   string `json:"end_time" validate:"required,clock"`
}

// LessonRequest is one weekly teaching requirement of a class.
type LessonRequest struct {
	SubjectID     *int  `json:"subject_id" validate:"required"`
	TeacherID     *int  `json:"teacher_id" validate:"required"`
	TaughtPerWeek *int  `json:"taught_per_week" validate:"required,min=0,max=999"`
	IsBackToBack  *bool `json:"is_back_to_back" validate:"required"`
}

// ClassRequest describes one class with its periods and lessons. Period and lesson ids are
// derived from ClassID and list position, so list order is significant.
type ClassRequest struct {
	ClassID   *int            `json:"class_id" validate:"required,min=0,max=2147482"`
	ClassName string          `json:"class_name" validate:"omitempty,max=255"`
	Periods   []PeriodRequest `json:"periods" validate:"max=999,dive"`
	Lessons   []LessonRequest `json:"lessons" validate:"max=999,dive"`
}

// GenerateRequest wraps the class list posted to the generator.
type GenerateRequest struct {
	Classes []ClassRequest `json:"classes" validate:"dive"`
}

// AssignedLesson identifies the lesson placed in a period.
type AssignedLesson struct {
	LessonID  int `json:"lesson_id"`
	SubjectID int `json:"subject_id"`
	TeacherID int `json:"teacher_id"`
	ClassID   int `json:"class_id"`
}

// PeriodSlot is a period in the generated timetable. AssignedLesson is null when unfilled.
type PeriodSlot struct {
	PeriodID       int             `json:"period_id"`
	StartTime      string          `json:"start_time"`
	EndTime        string          `json:"end_time"`
	AssignedLesson *AssignedLesson `json:"assigned_lesson"`
}

// LessonSummary reports how many sessions of a lesson were placed.
type LessonSummary struct {
	SubjectID         int `json:"subject_id"`
	TeacherID         int `json:"teacher_id"`
	SessionsAssigned  int `json:"sessions_assigned"`
	SessionsRemaining int `json:"sessions_remaining"`
}

// ClassSummary aggregates the outcome for one class.
type ClassSummary struct {
	Name            string                `json:"class_name"`
	TotalPeriods    int                   `json:"total_periods"`
	AssignedPeriods int                   `json:"assigned_periods"`
	Lessons         map[int]LessonSummary `json:"lessons"`
}

// Timetable holds the per-day breakdown and the per-class summary.
type Timetable struct {
	Days    map[string]map[int][]PeriodSlot `json:"days"`
	Classes map[int]ClassSummary            `json:"classes"`
}

// GenerationStats are the aggregate counters of a run.
type GenerationStats struct {
	TotalClasses int `json:"total_classes"`
	TotalLessons int `json:"total_lessons"`
	Assignments  int `json:"assignments"`
	Backtracks   int `json:"backtracks"`
}

// Generation status values.
const (
	StatusSuccess = "success"
	StatusPartial = "partial"

	QualityPassed      = "passed"
	QualityIssuesFound = "issues_found"
)

// GenerateResponse is the body returned by the legacy /generate route and the data of the
// enveloped generate route.
type GenerateResponse struct {
	RunID                 string                 `json:"run_id"`
	Status                string                 `json:"status"`
	QualityCheck          string                 `json:"quality_check"`
	QualityIssues         []string               `json:"quality_issues"`
	Timestamp             time.Time              `json:"timestamp"`
	ProcessingTimeSeconds float64                `json:"processing_time_seconds"`
	Timetable             Timetable              `json:"timetable"`
	Summary               map[string]interface{} `json:"summary"`
	Stats                 GenerationStats        `json:"stats"`
	CacheHit              bool                   `json:"cache_hit"`
}

// Job states of asynchronous generation.
const (
	JobQueued   = "queued"
	JobRunning  = "running"
	JobFinished = "finished"
	JobFailed   = "failed"
)

// JobStatus describes an asynchronous generation job.
type JobStatus struct {
	JobID       string            `json:"job_id"`
	Status      string            `json:"status"`
	Attempts    int               `json:"attempts"`
	SubmittedAt time.Time         `json:"submitted_at"`
	FinishedAt  *time.Time        `json:"finished_at,omitempty"`
	Error       string            `json:"error,omitempty"`
	Result      *GenerateResponse `json:"result,omitempty"`
}

// JobCounts groups retained jobs by state.
type JobCounts struct {
	Queued   int `json:"queued"`
	Running  int `json:"running"`
	Finished int `json:"finished"`
	Failed   int `json:"failed"`
}

// QueueDepth reports the worker queue occupancy.
type QueueDepth struct {
	Pending int `json:"pending"`
	Active  int `json:"active"`
}

// ProgressResponse is returned by GET /progress.
type ProgressResponse struct {
	Status    string     `json:"status"`
	Message   string     `json:"message"`
	Timestamp time.Time  `json:"timestamp"`
	Jobs      JobCounts  `json:"jobs"`
	Queue     QueueDepth `json:"queue"`
}

// TestResponse is returned by GET /test.
type TestResponse struct {
	Status    string    `json:"status"`
	Message   string    `json:"message"`
	Timestamp time.Time `json:"timestamp"`
	Version   string    `json:"version"`
}

// RunSummary lists a stored generation run without its payloads.
type RunSummary struct {
	ID                    string          `json:"id"`
	Status                string          `json:"status"`
	PayloadHash           string          `json:"payload_hash"`
	CacheHit              bool            `json:"cache_hit"`
	ProcessingTimeSeconds float64         `json:"processing_time_seconds"`
	Stats                 GenerationStats `json:"stats"`
	CreatedAt             time.Time       `json:"created_at"`
}

// RunQuery pages the run history.
type RunQuery struct {
	Limit  int `form:"limit" validate:"omitempty,min=1,max=100"`
	Offset int `form:"offset" validate:"omitempty,min=0"`
}

// ExportRequest selects the export format of a run.
type ExportRequest struct {
	Format string `form:"format" validate:"required,oneof=csv pdf"`
}

// ExportLink points at a rendered export.
type ExportLink struct {
	RunID       string    `json:"run_id"`
	Format      string    `json:"format"`
	DownloadURL string    `json:"download_url"`
	ExpiresAt   time.Time `json:"expires_at"`
}
