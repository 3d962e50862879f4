package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/jobs"
)

// JobTypeGenerate tags queued timetable generations.
const JobTypeGenerate = "timetable.generate"

type timetableGenerator interface {
	Validate(classes []dto.ClassRequest) error
	Generate(ctx context.Context, classes []dto.ClassRequest) (*dto.GenerateResponse, error)
}

type jobDispatcher interface {
	Enqueue(job jobs.Job) error
	Depth() (pending, active int)
}

type jobRecorder interface {
	RecordJob(state string)
}

type jobEntry struct {
	status  dto.JobStatus
	payload []dto.ClassRequest
}

// JobStore keeps asynchronous jobs in memory. Finished and failed jobs are dropped once older
// than the TTL; queued and running jobs never expire.
type JobStore struct {
	ttl   time.Duration
	mu    sync.RWMutex
	items map[string]jobEntry
	now   func() time.Time
}

// NewJobStore builds a store retaining results for ttl.
func NewJobStore(ttl time.Duration) *JobStore {
	if ttl <= 0 {
		ttl = 30 * time.Minute
	}
	return &JobStore{ttl: ttl, items: make(map[string]jobEntry), now: time.Now}
}

func (s *JobStore) save(entry jobEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.items[entry.status.JobID] = entry
}

func (s *JobStore) get(id string) (jobEntry, bool) {
	s.mu.RLock()
	entry, ok := s.items[id]
	s.mu.RUnlock()
	if !ok {
		return jobEntry{}, false
	}
	if s.expired(entry.status) {
		s.delete(id)
		return jobEntry{}, false
	}
	return entry, true
}

// update applies fn to a stored job and reports whether it existed.
func (s *JobStore) update(id string, fn func(*dto.JobStatus)) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	entry, ok := s.items[id]
	if !ok {
		return false
	}
	fn(&entry.status)
	s.items[id] = entry
	return true
}

func (s *JobStore) delete(id string) {
	s.mu.Lock()
	delete(s.items, id)
	s.mu.Unlock()
}

// counts purges expired jobs and groups the rest by state.
func (s *JobStore) counts() dto.JobCounts {
	s.mu.Lock()
	defer s.mu.Unlock()
	var counts dto.JobCounts
	for id, entry := range s.items {
		if s.expired(entry.status) {
			delete(s.items, id)
			continue
		}
		switch entry.status.Status {
		case dto.JobQueued:
			counts.Queued++
		case dto.JobRunning:
			counts.Running++
		case dto.JobFinished:
			counts.Finished++
		case dto.JobFailed:
			counts.Failed++
		}
	}
	return counts
}

func (s *JobStore) expired(status dto.JobStatus) bool {
	return status.FinishedAt != nil && s.now().Sub(*status.FinishedAt) > s.ttl
}

// JobService accepts asynchronous generation requests and reports their progress.
type JobService struct {
	store     *JobStore
	queue     jobDispatcher
	generator timetableGenerator
	logger    *zap.Logger
}

// NewJobService constructs the service. A nil queue rejects every submission.
func NewJobService(store *JobStore, queue jobDispatcher, generator timetableGenerator, logger *zap.Logger) *JobService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &JobService{store: store, queue: queue, generator: generator, logger: logger}
}

// Submit validates the payload and queues a generation.
func (s *JobService) Submit(ctx context.Context, classes []dto.ClassRequest) (*dto.JobStatus, error) {
	if err := s.generator.Validate(classes); err != nil {
		return nil, err
	}
	if s.queue == nil {
		return nil, appErrors.ErrQueueUnavailable
	}
	status := dto.JobStatus{
		JobID:       uuid.NewString(),
		Status:      dto.JobQueued,
		SubmittedAt: s.store.now().UTC(),
	}
	s.store.save(jobEntry{status: status, payload: classes})

	if err := s.queue.Enqueue(jobs.Job{ID: status.JobID, Type: JobTypeGenerate}); err != nil {
		s.store.delete(status.JobID)
		s.logger.Sugar().Warnw("failed to enqueue generation", "job_id", status.JobID, "error", err)
		if errors.Is(err, jobs.ErrQueueFull) {
			return nil, appErrors.Wrap(err, appErrors.ErrQueueUnavailable.Code, appErrors.ErrQueueUnavailable.Status, "generation queue is full, retry later")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrQueueUnavailable.Code, appErrors.ErrQueueUnavailable.Status, appErrors.ErrQueueUnavailable.Message)
	}
	return &status, nil
}

// Get returns the job, including the result once finished.
func (s *JobService) Get(ctx context.Context, id string) (*dto.JobStatus, error) {
	entry, ok := s.store.get(id)
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}
	status := entry.status
	return &status, nil
}

// Progress summarises retained jobs and queue occupancy.
func (s *JobService) Progress() dto.ProgressResponse {
	resp := dto.ProgressResponse{
		Status:    "success",
		Message:   "Timetable generation progress",
		Timestamp: time.Now().UTC(),
		Jobs:      s.store.counts(),
	}
	if s.queue != nil {
		resp.Queue.Pending, resp.Queue.Active = s.queue.Depth()
	}
	return resp
}

// GenerationWorker bridges queue jobs to the timetable generator.
type GenerationWorker struct {
	store      *JobStore
	generator  timetableGenerator
	metrics    jobRecorder
	logger     *zap.Logger
	maxRetries int
}

// NewGenerationWorker constructs a worker. maxRetries must match the queue's setting.
func NewGenerationWorker(store *JobStore, generator timetableGenerator, metrics jobRecorder, maxRetries int, logger *zap.Logger) *GenerationWorker {
	if logger == nil {
		logger = zap.NewNop()
	}
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &GenerationWorker{
		store:      store,
		generator:  generator,
		metrics:    metrics,
		logger:     logger,
		maxRetries: maxRetries,
	}
}

// Handle processes a queue job. Client errors fail the job at once; server errors are returned
// so the queue retries them until the retry budget is spent.
func (w *GenerationWorker) Handle(ctx context.Context, job jobs.Job) error {
	entry, ok := w.store.get(job.ID)
	if !ok {
		w.logger.Sugar().Warnw("job vanished before processing", "job_id", job.ID)
		return nil
	}
	w.store.update(job.ID, func(s *dto.JobStatus) {
		s.Status = dto.JobRunning
		s.Attempts = job.Attempt + 1
	})

	result, err := w.generator.Generate(ctx, entry.payload)
	if err != nil {
		appErr := appErrors.FromError(err)
		retryable := appErr.Status >= 500 && job.Attempt < w.maxRetries
		if retryable {
			w.store.update(job.ID, func(s *dto.JobStatus) {
				s.Status = dto.JobQueued
				s.Error = appErr.Message
			})
			return err
		}
		now := time.Now().UTC()
		w.store.update(job.ID, func(s *dto.JobStatus) {
			s.Status = dto.JobFailed
			s.Error = appErr.Message
			s.FinishedAt = &now
		})
		w.record(dto.JobFailed)
		if appErr.Status >= 500 {
			return fmt.Errorf("generation job %s: %w", job.ID, err)
		}
		w.logger.Sugar().Warnw("generation job rejected", "job_id", job.ID, "error", appErr.Message)
		return nil
	}

	now := time.Now().UTC()
	if !w.store.update(job.ID, func(s *dto.JobStatus) {
		s.Status = dto.JobFinished
		s.Error = ""
		s.FinishedAt = &now
		s.Result = result
	}) {
		w.logger.Sugar().Warnw("failed to mark job finished", "job_id", job.ID)
	}
	w.record(dto.JobFinished)
	return nil
}

func (w *GenerationWorker) record(state string) {
	if w.metrics != nil {
		w.metrics.RecordJob(state)
	}
}
