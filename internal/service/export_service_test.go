package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-timetable-api/internal/dto"
	appErrors "github.com/noah-isme/sma-timetable-api/pkg/errors"
	"github.com/noah-isme/sma-timetable-api/pkg/storage"
)

type runReaderStub struct {
	runs map[string]*dto.GenerateResponse
}

func (r runReaderStub) GetRun(ctx context.Context, id string) (*dto.GenerateResponse, error) {
	run, ok := r.runs[id]
	if !ok {
		return nil, appErrors.Clone(appErrors.ErrNotFound, "run not found")
	}
	return run, nil
}

func sampleRun() *dto.GenerateResponse {
	return &dto.GenerateResponse{
		RunID:        "0b6f1c52-8f0f-4d53-9a5e-2e7f3c0f9b11",
		Status:       dto.StatusPartial,
		QualityCheck: dto.QualityIssuesFound,
		Timestamp:    time.Date(2024, 7, 15, 7, 0, 0, 0, time.UTC),
		Timetable: dto.Timetable{
			Days: map[string]map[int][]dto.PeriodSlot{
				"Monday": {
					2: {{PeriodID: 2001, StartTime: "07:00", EndTime: "07:45"}},
					1: {
						{PeriodID: 1001, StartTime: "07:00", EndTime: "07:45", AssignedLesson: &dto.AssignedLesson{LessonID: 1001, SubjectID: 3, TeacherID: 9, ClassID: 1}},
						{PeriodID: 1002, StartTime: "07:45", EndTime: "08:30"},
					},
				},
				"Tuesday": {1: {}, 2: {}},
				"Sunday":  {1: {{PeriodID: 1003, StartTime: "09:00", EndTime: "10:00"}}},
			},
			Classes: map[int]dto.ClassSummary{
				1: {Name: "X-1"},
				2: {Name: "X-2"},
			},
		},
	}
}

func newExportFixture(t *testing.T) (*ExportService, *dto.GenerateResponse) {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	run := sampleRun()
	signer := storage.NewSignedURLSigner("test-secret", time.Hour)
	svc := NewExportService(runReaderStub{runs: map[string]*dto.GenerateResponse{run.RunID: run}}, files, signer, nil, zap.NewNop(),
		ExportConfig{APIPrefix: "/api/v1/"}, nil, nil)
	return svc, run
}

func TestBuildExportDatasetOrdering(t *testing.T) {
	dataset := BuildExportDataset(sampleRun())

	require.Len(t, dataset.Rows, 4)
	assert.Equal(t, "Monday", dataset.Rows[0]["Day"])
	assert.Equal(t, "1", dataset.Rows[0]["Class ID"])
	assert.Equal(t, "X-1", dataset.Rows[0]["Class"])
	assert.Equal(t, "9", dataset.Rows[0]["Teacher ID"])
	assert.Equal(t, "", dataset.Rows[1]["Lesson ID"])
	assert.Equal(t, "2", dataset.Rows[2]["Class ID"])
	assert.Equal(t, "Sunday", dataset.Rows[3]["Day"])
}

func TestExportServiceCSVRoundTrip(t *testing.T) {
	svc, run := newExportFixture(t)

	link, err := svc.Export(context.Background(), run.RunID, dto.ExportRequest{Format: "csv"})
	require.NoError(t, err)
	assert.Equal(t, "csv", link.Format)
	assert.True(t, strings.HasPrefix(link.DownloadURL, "/api/v1/timetables/exports/"))

	token := strings.TrimPrefix(link.DownloadURL, "/api/v1/timetables/exports/")
	download, err := svc.Resolve(token)
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "text/csv", download.ContentType)
	assert.True(t, strings.HasSuffix(download.Filename, ".csv"))
	body, err := io.ReadAll(download.File)
	require.NoError(t, err)
	assert.Contains(t, string(body), "# Run "+run.RunID)
	assert.Contains(t, string(body), "Monday,1,X-1,1001,07:00,07:45,1001,3,9")
}

func TestExportServicePDF(t *testing.T) {
	svc, run := newExportFixture(t)

	link, err := svc.Export(context.Background(), run.RunID, dto.ExportRequest{Format: "pdf"})
	require.NoError(t, err)

	download, err := svc.Resolve(link.DownloadURL[strings.LastIndex(link.DownloadURL, "/")+1:])
	require.NoError(t, err)
	defer download.File.Close()
	assert.Equal(t, "application/pdf", download.ContentType)
}

func TestExportServiceErrors(t *testing.T) {
	svc, run := newExportFixture(t)

	_, err := svc.Export(context.Background(), run.RunID, dto.ExportRequest{Format: "xlsx"})
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Export(context.Background(), "missing", dto.ExportRequest{Format: "csv"})
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)

	_, err = svc.Resolve("not.a.valid.token")
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestExportServiceCleanupRemovesFiles(t *testing.T) {
	svc, run := newExportFixture(t)

	link, err := svc.Export(context.Background(), run.RunID, dto.ExportRequest{Format: "csv"})
	require.NoError(t, err)

	deleted, err := svc.Cleanup(-time.Hour)
	require.NoError(t, err)
	assert.Empty(t, deleted)

	deleted, err = svc.Cleanup(time.Nanosecond)
	require.NoError(t, err)
	assert.Len(t, deleted, 1)

	_, err = svc.Resolve(link.DownloadURL[strings.LastIndex(link.DownloadURL, "/")+1:])
	assert.Equal(t, appErrors.ErrNotFound.Code, appErrors.FromError(err).Code)
}
