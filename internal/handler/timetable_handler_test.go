package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	"github.com/noah-isme/sma-timetable-api/internal/service"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/response"
)

type timetableServiceStub struct {
	received []dto.ClassRequest
	result   *dto.GenerateResponse
	err      error
	runs     []dto.RunSummary
	query    dto.RunQuery
}

func (s *timetableServiceStub) Generate(ctx context.Context, classes []dto.ClassRequest) (*dto.GenerateResponse, error) {
	s.received = classes
	return s.result, s.err
}

func (s *timetableServiceStub) GetRun(ctx context.Context, id string) (*dto.GenerateResponse, error) {
	if s.result == nil || s.result.RunID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	return s.result, nil
}

func (s *timetableServiceStub) ListRuns(ctx context.Context, query dto.RunQuery) ([]dto.RunSummary, map[string]interface{}, error) {
	s.query = query
	return s.runs, map[string]interface{}{"count": len(s.runs)}, s.err
}

type jobServiceStub struct {
	status *dto.JobStatus
	err    error
}

func (s *jobServiceStub) Submit(ctx context.Context, classes []dto.ClassRequest) (*dto.JobStatus, error) {
	return s.status, s.err
}

func (s *jobServiceStub) Get(ctx context.Context, id string) (*dto.JobStatus, error) {
	if s.status == nil || s.status.JobID != id {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "job not found")
	}
	return s.status, nil
}

func (s *jobServiceStub) Progress() dto.ProgressResponse {
	return dto.ProgressResponse{Status: "success", Jobs: dto.JobCounts{Queued: 2}}
}

type exportServiceStub struct {
	link     *dto.ExportLink
	download *service.ExportDownload
	err      error
	req      dto.ExportRequest
}

func (s *exportServiceStub) Export(ctx context.Context, runID string, req dto.ExportRequest) (*dto.ExportLink, error) {
	s.req = req
	return s.link, s.err
}

func (s *exportServiceStub) Resolve(token string) (*service.ExportDownload, error) {
	return s.download, s.err
}

type invalidatorStub struct{ calls int }

func (s *invalidatorStub) Invalidate(ctx context.Context) error {
	s.calls++
	return nil
}

func newGinContext(method, path string, body []byte) (*gin.Context, *httptest.ResponseRecorder) {
	gin.SetMode(gin.TestMode)
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	req, _ := http.NewRequest(method, path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	c.Request = req
	return c, w
}

const samplePayload = `[{"class_id":1,"class_name":"X-1","periods":[{"period_day":"Monday","start_time":"09:00","end_time":"10:00"}],
"lessons":[{"subject_id":3,"teacher_id":5,"taught_per_week":1,"is_back_to_back":false}]}]`

func TestLegacyGenerateSuccess(t *testing.T) {
	stub := &timetableServiceStub{result: &dto.GenerateResponse{RunID: "r1", Status: dto.StatusSuccess}}
	h := NewTimetableHandler(stub, &jobServiceStub{}, &exportServiceStub{}, &invalidatorStub{})

	c, w := newGinContext(http.MethodPost, "/generate", []byte(samplePayload))
	h.LegacyGenerate(c)

	require.Equal(t, http.StatusOK, w.Code)
	var body map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "success", body["status"])
	assert.Nil(t, body["data"])
	require.Len(t, stub.received, 1)
	assert.Equal(t, 1, *stub.received[0].ClassID)
	assert.Equal(t, "09:00", stub.received[0].Periods[0].StartTime)
}

func TestLegacyGenerateRejectsNonList(t *testing.T) {
	h := NewTimetableHandler(&timetableServiceStub{}, &jobServiceStub{}, &exportServiceStub{}, &invalidatorStub{})

	for _, payload := range []string{`{"classes":[]}`, `"x"`, ``, `[{"class_id":"one"}]`} {
		c, w := newGinContext(http.MethodPost, "/generate", []byte(payload))
		h.LegacyGenerate(c)

		require.Equal(t, http.StatusBadRequest, w.Code, payload)
		var body response.LegacyError
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
		assert.Equal(t, "error", body.Status)
	}

	c, w := newGinContext(http.MethodPost, "/generate", []byte(`{}`))
	h.LegacyGenerate(c)
	var body response.LegacyError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, invalidFormatMessage, body.Message)
}

func TestLegacyGenerateHidesInternalErrors(t *testing.T) {
	stub := &timetableServiceStub{err: appErrors.Wrap(os.ErrInvalid, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "period 1001 references lesson 9")}
	h := NewTimetableHandler(stub, &jobServiceStub{}, &exportServiceStub{}, &invalidatorStub{})

	c, w := newGinContext(http.MethodPost, "/generate", []byte(`[]`))
	h.LegacyGenerate(c)

	require.Equal(t, http.StatusInternalServerError, w.Code)
	var body response.LegacyError
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.Equal(t, "Internal Server Error", body.Message)
}

func TestGenerateEnvelopeAcceptsWrappedPayload(t *testing.T) {
	stub := &timetableServiceStub{result: &dto.GenerateResponse{RunID: "r1", Status: dto.StatusPartial}}
	h := NewTimetableHandler(stub, &jobServiceStub{}, &exportServiceStub{}, &invalidatorStub{})

	c, w := newGinContext(http.MethodPost, "/api/v1/timetables/generate", []byte(`{"classes":`+samplePayload+`}`))
	h.Generate(c)

	require.Equal(t, http.StatusOK, w.Code)
	var env struct {
		Data dto.GenerateResponse `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	assert.Equal(t, dto.StatusPartial, env.Data.Status)
	assert.Len(t, stub.received, 1)

	c, w = newGinContext(http.MethodPost, "/api/v1/timetables/generate", []byte(`{"other":1}`))
	h.Generate(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTestAndProgress(t *testing.T) {
	h := NewTimetableHandler(&timetableServiceStub{}, &jobServiceStub{}, &exportServiceStub{}, &invalidatorStub{})

	c, w := newGinContext(http.MethodGet, "/test", nil)
	h.Test(c)
	require.Equal(t, http.StatusOK, w.Code)
	var test dto.TestResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &test))
	assert.Equal(t, LegacyVersion, test.Version)
	assert.Equal(t, "Modular Timetable Generator API is running", test.Message)

	c, w = newGinContext(http.MethodGet, "/progress", nil)
	h.Progress(c)
	require.Equal(t, http.StatusOK, w.Code)
	var progress dto.ProgressResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &progress))
	assert.Equal(t, 2, progress.Jobs.Queued)
}

func TestJobEndpoints(t *testing.T) {
	jobs := &jobServiceStub{status: &dto.JobStatus{JobID: "j1", Status: dto.JobQueued}}
	h := NewTimetableHandler(&timetableServiceStub{}, jobs, &exportServiceStub{}, &invalidatorStub{})

	c, w := newGinContext(http.MethodPost, "/api/v1/timetables/jobs", []byte(samplePayload))
	h.SubmitJob(c)
	assert.Equal(t, http.StatusAccepted, w.Code)

	c, w = newGinContext(http.MethodGet, "/api/v1/timetables/jobs/j1", nil)
	c.Params = gin.Params{{Key: "id", Value: "j1"}}
	h.GetJob(c)
	assert.Equal(t, http.StatusOK, w.Code)

	c, w = newGinContext(http.MethodGet, "/api/v1/timetables/jobs/j2", nil)
	c.Params = gin.Params{{Key: "id", Value: "j2"}}
	h.GetJob(c)
	assert.Equal(t, http.StatusNotFound, w.Code)

	jobs.err = appErrors.ErrQueueUnavailable
	c, w = newGinContext(http.MethodPost, "/api/v1/timetables/jobs", []byte(samplePayload))
	h.SubmitJob(c)
	assert.Equal(t, http.StatusServiceUnavailable, w.Code)
}

func TestRunEndpoints(t *testing.T) {
	stub := &timetableServiceStub{
		result: &dto.GenerateResponse{RunID: "r1"},
		runs:   []dto.RunSummary{{ID: "r1"}},
	}
	h := NewTimetableHandler(stub, &jobServiceStub{}, &exportServiceStub{}, &invalidatorStub{})

	c, w := newGinContext(http.MethodGet, "/api/v1/timetables/runs?limit=5&offset=10", nil)
	h.ListRuns(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, dto.RunQuery{Limit: 5, Offset: 10}, stub.query)
	assert.Contains(t, w.Body.String(), `"meta":{"count":1}`)

	c, w = newGinContext(http.MethodGet, "/api/v1/timetables/runs?limit=abc", nil)
	h.ListRuns(c)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	c, w = newGinContext(http.MethodGet, "/api/v1/timetables/runs/r1", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	h.GetRun(c)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestExportEndpoints(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "timetable.csv")
	require.NoError(t, os.WriteFile(path, []byte("Day,Class ID\nMonday,1\n"), 0o644))
	file, err := os.Open(path)
	require.NoError(t, err)

	exports := &exportServiceStub{
		link:     &dto.ExportLink{RunID: "r1", Format: "csv", DownloadURL: "/api/v1/timetables/exports/tok"},
		download: &service.ExportDownload{File: file, Filename: "timetable.csv", ContentType: "text/csv"},
	}
	h := NewTimetableHandler(&timetableServiceStub{}, &jobServiceStub{}, exports, &invalidatorStub{})

	c, w := newGinContext(http.MethodPost, "/api/v1/timetables/runs/r1/exports?format=csv", nil)
	c.Params = gin.Params{{Key: "id", Value: "r1"}}
	h.CreateExport(c)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Equal(t, "csv", exports.req.Format)

	c, w = newGinContext(http.MethodGet, "/api/v1/timetables/exports/tok", nil)
	c.Params = gin.Params{{Key: "token", Value: "tok"}}
	h.Download(c)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "text/csv", w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "timetable.csv")
	assert.Equal(t, "Day,Class ID\nMonday,1\n", w.Body.String())

	exports.err = appErrors.Clone(appErrors.ErrForbidden, "invalid download token")
	c, w = newGinContext(http.MethodGet, "/api/v1/timetables/exports/bad", nil)
	h.Download(c)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestInvalidateCache(t *testing.T) {
	cache := &invalidatorStub{}
	h := NewTimetableHandler(&timetableServiceStub{}, &jobServiceStub{}, &exportServiceStub{}, cache)

	c, w := newGinContext(http.MethodDelete, "/api/v1/timetables/cache", nil)
	h.InvalidateCache(c)
	c.Writer.WriteHeaderNow()
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, 1, cache.calls)
}
