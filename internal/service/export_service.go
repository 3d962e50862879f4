package service

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/models"
	"github.com/noah-isme/sma-timetable-api/internal/scheduler"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/export"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

var exportHeaders = []string{"Day", "Class ID", "Class", "Period ID", "Start", "End", "Lesson ID", "Subject ID", "Teacher ID"}

type runReader interface {
	GetRun(ctx context.Context, id string) (*dto.GenerateResponse, error)
}

type fileStorage interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
	CleanupOlderThan(ttl time.Duration) ([]string, error)
}

type csvRenderer interface {
	Render(data export.Dataset, comments ...string) ([]byte, error)
}

type pdfRenderer interface {
	Render(data export.Dataset, title string, subtitles ...string) ([]byte, error)
}

// ExportConfig tunes export behaviour.
type ExportConfig struct {
	APIPrefix       string
	ResultTTL       time.Duration
	CleanupInterval time.Duration
}

// ExportDownload is a resolved download.
type ExportDownload struct {
	File        *os.File
	Filename    string
	ContentType string
	ExpiresAt   time.Time
}

// ExportService renders stored runs as CSV or PDF files and hands out signed download links.
type ExportService struct {
	runs      runReader
	storage   fileStorage
	csv       csvRenderer
	pdf       pdfRenderer
	signer    *storage.SignedURLSigner
	validator *validator.Validate
	logger    *zap.Logger
	cfg       ExportConfig
}

// NewExportService constructs an ExportService. Nil renderers fall back to the stock exporters.
func NewExportService(runs runReader, files fileStorage, signer *storage.SignedURLSigner, validate *validator.Validate, logger *zap.Logger, cfg ExportConfig, csv csvRenderer, pdf pdfRenderer) *ExportService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.ResultTTL <= 0 {
		cfg.ResultTTL = time.Hour
	}
	if csv == nil {
		csv = export.NewCSVExporter()
	}
	if pdf == nil {
		pdf = export.NewPDFExporter()
	}
	return &ExportService{
		runs:      runs,
		storage:   files,
		csv:       csv,
		pdf:       pdf,
		signer:    signer,
		validator: validate,
		logger:    logger,
		cfg:       cfg,
	}
}

// Export renders the run in the requested format and returns a signed link to the file.
func (s *ExportService) Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportLink, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "format must be csv or pdf")
	}
	run, err := s.runs.GetRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	dataset := BuildExportDataset(run)
	format := models.ExportFormat(req.Format)
	subtitles := []string{
		fmt.Sprintf("Run %s", run.RunID),
		fmt.Sprintf("Status %s, quality %s", run.Status, run.QualityCheck),
		fmt.Sprintf("Generated %s", run.Timestamp.UTC().Format(time.RFC3339)),
	}

	var payload []byte
	switch format {
	case models.ExportFormatCSV:
		payload, err = s.csv.Render(dataset, subtitles...)
	case models.ExportFormatPDF:
		payload, err = s.pdf.Render(dataset, "Weekly Timetable", subtitles...)
	default:
		err = fmt.Errorf("unsupported format %s", format)
	}
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render export")
	}

	filename := fmt.Sprintf("%s/timetable_%s.%s", run.RunID, time.Now().UTC().Format("20060102_150405"), format)
	relPath, err := s.storage.Save(filename, payload)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store export")
	}
	token, expiresAt, err := s.signer.Generate(run.RunID, relPath)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign export link")
	}

	prefix := strings.TrimRight(s.cfg.APIPrefix, "/")
	if prefix == "" {
		prefix = "/api/v1"
	}
	s.logger.Info("timetable exported", zap.String("run_id", run.RunID), zap.String("format", string(format)), zap.Int("bytes", len(payload)))
	return &dto.ExportLink{
		RunID:       run.RunID,
		Format:      string(format),
		DownloadURL: fmt.Sprintf("%s/timetables/exports/%s", prefix, token),
		ExpiresAt:   expiresAt,
	}, nil
}

// Resolve validates a download token and opens the stored file.
func (s *ExportService) Resolve(token string) (*ExportDownload, error) {
	grant, err := s.signer.Parse(token, false)
	if err != nil {
		if errors.Is(err, storage.ErrTokenExpired) {
			return nil, appErrors.Clone(appErrors.ErrForbidden, "download link expired")
		}
		return nil, appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	}
	file, err := s.storage.Open(grant.Path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "export no longer available")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open export")
	}
	contentType := "text/csv"
	if strings.EqualFold(filepath.Ext(grant.Path), ".pdf") {
		contentType = "application/pdf"
	}
	return &ExportDownload{
		File:        file,
		Filename:    filepath.Base(grant.Path),
		ContentType: contentType,
		ExpiresAt:   grant.ExpiresAt,
	}, nil
}

// Cleanup removes exports older than ttl, defaulting to the link lifetime.
func (s *ExportService) Cleanup(ttl time.Duration) ([]string, error) {
	if ttl <= 0 {
		ttl = s.cfg.ResultTTL
	}
	return s.storage.CleanupOlderThan(ttl)
}

// StartCleanup boots a goroutine that purges expired exports periodically.
func (s *ExportService) StartCleanup(ctx context.Context) {
	if s.cfg.CleanupInterval <= 0 {
		return
	}
	ticker := time.NewTicker(s.cfg.CleanupInterval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				deleted, err := s.Cleanup(0)
				if err != nil {
					s.logger.Sugar().Warnw("export cleanup failed", "error", err)
					continue
				}
				if len(deleted) > 0 {
					s.logger.Sugar().Infow("expired exports removed", "count", len(deleted))
				}
			}
		}
	}()
}

// BuildExportDataset flattens a run into one row per period: working days in order, then any
// other day names, classes by id, periods by start time.
func BuildExportDataset(run *dto.GenerateResponse) export.Dataset {
	dataset := export.Dataset{Headers: exportHeaders}
	for _, day := range orderedDays(run.Timetable.Days) {
		byClass := run.Timetable.Days[day]
		classIDs := make([]int, 0, len(byClass))
		for id := range byClass {
			classIDs = append(classIDs, id)
		}
		sort.Ints(classIDs)
		for _, classID := range classIDs {
			name := run.Timetable.Classes[classID].Name
			for _, slot := range byClass[classID] {
				lessonID, subjectID, teacherID := "", "", ""
				if slot.AssignedLesson != nil {
					lessonID = strconv.Itoa(slot.AssignedLesson.LessonID)
					subjectID = strconv.Itoa(slot.AssignedLesson.SubjectID)
					teacherID = strconv.Itoa(slot.AssignedLesson.TeacherID)
				}
				dataset.Append(day, strconv.Itoa(classID), name, strconv.Itoa(slot.PeriodID),
					slot.StartTime, slot.EndTime, lessonID, subjectID, teacherID)
			}
		}
	}
	return dataset
}

func orderedDays(days map[string]map[int][]dto.PeriodSlot) []string {
	ordered := make([]string, 0, len(days))
	for _, day := range scheduler.WorkingDays {
		if _, ok := days[day]; ok {
			ordered = append(ordered, day)
		}
	}
	var extra []string
	for day := range days {
		if !isWorkingDay(day) {
			extra = append(extra, day)
		}
	}
	sort.Strings(extra)
	return append(ordered, extra...)
}

func isWorkingDay(day string) bool {
	for _, d := range scheduler.WorkingDays {
		if d == day {
			return true
		}
	}
	return false
}
