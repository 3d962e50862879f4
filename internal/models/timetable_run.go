package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// ExportFormat enumerates supported export formats.
type ExportFormat string

const (
	ExportFormatCSV ExportFormat = "csv"
	ExportFormatPDF ExportFormat = "pdf"
)

// TimetableRun is a persisted generation run. Request and Result hold the JSON documents
// exchanged with the client.
type TimetableRun struct {
	ID           string         `db:"id" json:"id"`
	PayloadHash  string         `db:"payload_hash" json:"payload_hash"`
	Status       string         `db:"status" json:"status"`
	CacheHit     bool           `db:"cache_hit" json:"cache_hit"`
	TotalClasses int            `db:"total_classes" json:"total_classes"`
	TotalLessons int            `db:"total_lessons" json:"total_lessons"`
	Assignments  int            `db:"assignments" json:"assignments"`
	Backtracks   int            `db:"backtracks" json:"backtracks"`
	ProcessingMS int64          `db:"processing_ms" json:"processing_ms"`
	Request      types.JSONText `db:"request" json:"request"`
	Result       types.JSONText `db:"result" json:"result"`
	CreatedAt    time.Time      `db:"created_at" json:"created_at"`
}
