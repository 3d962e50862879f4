package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

// LegacyVersion is reported by GET /test.
const LegacyVersion = "6.0-modular"

const invalidFormatMessage = "Invalid format. Expected list of classes."

type timetableService interface {
	Generate(ctx context.Context, classes []dto.ClassRequest) (*dto.GenerateResponse, error)
	GetRun(ctx context.Context, id string) (*dto.GenerateResponse, error)
	ListRuns(ctx context.Context, query dto.RunQuery) ([]dto.RunSummary, map[string]interface{}, error)
}

type jobService interface {
	Submit(ctx context.Context, classes []dto.ClassRequest) (*dto.JobStatus, error)
	Get(ctx context.Context, id string) (*dto.JobStatus, error)
	Progress() dto.ProgressResponse
}

type exportService interface {
	Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportLink, error)
	Resolve(token string) (*service.ExportDownload, error)
}

type cacheInvalidator interface {
	Invalidate(ctx context.Context) error
}

// TimetableHandler exposes timetable generation, async jobs, run history and exports.
type TimetableHandler struct {
	timetables timetableService
	jobs       jobService
	exports    exportService
	cache      cacheInvalidator
}

// NewTimetableHandler constructs the handler.
func NewTimetableHandler(timetables timetableService, jobs jobService, exports exportService, cache cacheInvalidator) *TimetableHandler {
	return &TimetableHandler{timetables: timetables, jobs: jobs, exports: exports, cache: cache}
}

// LegacyGenerate godoc
// @Summary Generate a weekly timetable (flat response)
// @Tags Legacy
// @Accept json
// @Produce json
// @Param X-API-KEY header string false "API key"
// @Param payload body []dto.ClassRequest true "Classes"
// @Success 200 {object} dto.GenerateResponse
// @Failure 400 {object} response.LegacyError
// @Failure 401 {object} response.LegacyError
// @Failure 403 {object} response.LegacyError
// @Failure 500 {object} response.LegacyError
// @Router /generate [post]
func (h *TimetableHandler) LegacyGenerate(c *gin.Context) {
	classes, err := decodeClasses(c, false)
	if err != nil {
		response.LegacyFailure(c, err)
		return
	}
	result, err := h.timetables.Generate(c.Request.Context(), classes)
	if err != nil {
		_ = c.Error(err)
		response.LegacyFailure(c, err)
		return
	}
	response.Flat(c, http.StatusOK, result)
}

// Test godoc
// @Summary Liveness and version probe
// @Tags Legacy
// @Produce json
// @Success 200 {object} dto.TestResponse
// @Router /test [get]
func (h *TimetableHandler) Test(c *gin.Context) {
	response.Flat(c, http.StatusOK, dto.TestResponse{
		Status:    "success",
		Message:   "Modular Timetable Generator API is running",
		Timestamp: time.Now().UTC(),
		Version:   LegacyVersion,
	})
}

// Progress godoc
// @Summary Asynchronous generation progress
// @Tags Legacy
// @Produce json
// @Success 200 {object} dto.ProgressResponse
// @Router /progress [get]
func (h *TimetableHandler) Progress(c *gin.Context) {
	response.Flat(c, http.StatusOK, h.jobs.Progress())
}

// Generate godoc
// @Summary Generate a weekly timetable
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRequest true "Classes, as a list or wrapped in {classes}"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Failure 504 {object} response.Envelope
// @Router /timetables/generate [post]
func (h *TimetableHandler) Generate(c *gin.Context) {
	classes, err := decodeClasses(c, true)
	if err != nil {
		response.Error(c, err)
		return
	}
	result, err := h.timetables.Generate(c.Request.Context(), classes)
	if err != nil {
		_ = c.Error(err)
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// SubmitJob godoc
// @Summary Queue a timetable generation
// @Tags Timetables
// @Accept json
// @Produce json
// @Param payload body dto.GenerateRequest true "Classes"
// @Success 202 {object} response.Envelope
// @Failure 503 {object} response.Envelope
// @Router /timetables/jobs [post]
func (h *TimetableHandler) SubmitJob(c *gin.Context) {
	classes, err := decodeClasses(c, true)
	if err != nil {
		response.Error(c, err)
		return
	}
	status, err := h.jobs.Submit(c.Request.Context(), classes)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Accepted(c, status)
}

// GetJob godoc
// @Summary Get a queued generation
// @Tags Timetables
// @Produce json
// @Param id path string true "Job ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/jobs/{id} [get]
func (h *TimetableHandler) GetJob(c *gin.Context) {
	status, err := h.jobs.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, status, nil)
}

// ListRuns godoc
// @Summary List stored generation runs
// @Tags Timetables
// @Produce json
// @Param limit query int false "Page size (1-100)"
// @Param offset query int false "Offset"
// @Success 200 {object} response.Envelope
// @Router /timetables/runs [get]
func (h *TimetableHandler) ListRuns(c *gin.Context) {
	var query dto.RunQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	items, meta, err := h.timetables.ListRuns(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, items, meta)
}

// GetRun godoc
// @Summary Get a stored generation run
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /timetables/runs/{id} [get]
func (h *TimetableHandler) GetRun(c *gin.Context) {
	run, err := h.timetables.GetRun(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, run, nil)
}

// CreateExport godoc
// @Summary Export a stored run as CSV or PDF
// @Tags Timetables
// @Produce json
// @Param id path string true "Run ID"
// @Param format query string true "csv or pdf"
// @Success 201 {object} response.Envelope
// @Router /timetables/runs/{id}/exports [post]
func (h *TimetableHandler) CreateExport(c *gin.Context) {
	var req dto.ExportRequest
	if err := c.ShouldBindQuery(&req); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid query parameters"))
		return
	}
	link, err := h.exports.Export(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, link, nil)
}

// Download godoc
// @Summary Download an export via signed token
// @Tags Timetables
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} binary
// @Failure 403 {object} response.Envelope
// @Router /timetables/exports/{token} [get]
func (h *TimetableHandler) Download(c *gin.Context) {
	download, err := h.exports.Resolve(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck
	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=\"%s\"", download.Filename))
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}

// InvalidateCache godoc
// @Summary Drop every cached timetable
// @Tags Timetables
// @Success 204
// @Router /timetables/cache [delete]
func (h *TimetableHandler) InvalidateCache(c *gin.Context) {
	if err := h.cache.Invalidate(c.Request.Context()); err != nil {
		response.Error(c, err)
		return
	}
	c.Status(http.StatusNoContent)
}

// decodeClasses reads a JSON list of classes. When wrapped is true an object of the form
// {"classes": [...]} is accepted as well.
func decodeClasses(c *gin.Context, wrapped bool) ([]dto.ClassRequest, error) {
	raw, err := c.GetRawData()
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, invalidFormatMessage)
	}
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, invalidFormatMessage)
	}

	switch {
	case raw[0] == '[':
		var classes []dto.ClassRequest
		if err := json.Unmarshal(raw, &classes); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid JSON: %v", err))
		}
		return classes, nil
	case wrapped && raw[0] == '{':
		var req dto.GenerateRequest
		if err := json.Unmarshal(raw, &req); err != nil {
			return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, fmt.Sprintf("invalid JSON: %v", err))
		}
		if req.Classes == nil {
			return nil, appErrors.Clone(appErrors.ErrValidation, invalidFormatMessage)
		}
		return req.Classes, nil
	default:
		return nil, appErrors.Clone(appErrors.ErrValidation, invalidFormatMessage)
	}
}
