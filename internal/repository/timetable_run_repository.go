package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/sma-timetable-api/internal/models"
)

const timetableRunColumns = `id, payload_hash, status, cache_hit, total_classes, total_lessons, assignments, backtracks, processing_ms, request, result, created_at`

// TimetableRunRepository persists generation runs.
type TimetableRunRepository struct {
	db *sqlx.DB
}

// NewTimetableRunRepository constructs the repository.
func NewTimetableRunRepository(db *sqlx.DB) *TimetableRunRepository {
	return &TimetableRunRepository{db: db}
}

// Create inserts a run, generating the id and timestamp when absent.
func (r *TimetableRunRepository) Create(ctx context.Context, run *models.TimetableRun) error {
	if run.ID == "" {
		run.ID = uuid.NewString()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	const query = `INSERT INTO timetable_runs (` + timetableRunColumns + `)
VALUES (:id, :payload_hash, :status, :cache_hit, :total_classes, :total_lessons, :assignments, :backtracks, :processing_ms, :request, :result, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, run); err != nil {
		return fmt.Errorf("create timetable run: %w", err)
	}
	return nil
}

// GetByID returns a run including its request and result documents.
func (r *TimetableRunRepository) GetByID(ctx context.Context, id string) (*models.TimetableRun, error) {
	const query = `SELECT ` + timetableRunColumns + ` FROM timetable_runs WHERE id = $1`
	var run models.TimetableRun
	if err := r.db.GetContext(ctx, &run, query, id); err != nil {
		return nil, fmt.Errorf("get timetable run: %w", err)
	}
	return &run, nil
}

// List returns runs newest first without their JSON documents.
func (r *TimetableRunRepository) List(ctx context.Context, limit, offset int) ([]models.TimetableRun, error) {
	if limit <= 0 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}
	const query = `SELECT id, payload_hash, status, cache_hit, total_classes, total_lessons, assignments, backtracks, processing_ms, created_at
FROM timetable_runs ORDER BY created_at DESC LIMIT $1 OFFSET $2`
	runs := make([]models.TimetableRun, 0)
	if err := r.db.SelectContext(ctx, &runs, query, limit, offset); err != nil {
		return nil, fmt.Errorf("list timetable runs: %w", err)
	}
	return runs, nil
}

// Ping checks database connectivity for readiness probes.
func (r *TimetableRunRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}
