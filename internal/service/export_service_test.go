package service

import (
	"context"
	"io"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

func newExportFixture(t *testing.T) *Services {
	t.Helper()
	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	store := newFakeStore()
	svc := NewServices(
		Repositories{Teachers: store, Substitutes: store, Settings: store, Snapshots: store},
		Options{
			Metrics:  NewMetricsService(),
			Location: time.UTC,
			Files:    files,
			Signer:   storage.NewSignedURLSigner("export-secret", time.Hour),
			Export:   ExportConfig{APIPrefix: "/api/v1"},
		},
	)
	lee := addSpecialist(t, svc, "Lee", "Music")
	addHomeroom(t, svc, "Park", "3", "1")
	appendRecord(t, svc, lee.ID, monday, firstSlot, "3-1")
	appendRecord(t, svc, lee.ID, "2024-02-26", secondSlot, "3-2")
	return svc
}

func tokenFromURL(t *testing.T, url string) string {
	t.Helper()
	const prefix = "/api/v1/exports/"
	require.True(t, strings.HasPrefix(url, prefix), url)
	return strings.TrimPrefix(url, prefix)
}

func TestExportServiceGenerateAndOpenRecords(t *testing.T) {
	svc := newExportFixture(t)
	ctx := context.Background()

	result, err := svc.Exports.Generate(ctx, ExportRequest{Dataset: ExportDatasetRecords, Format: "csv", Month: "2024-03"})
	require.NoError(t, err)
	assert.Equal(t, export.FormatCSV, result.Format)
	assert.Equal(t, 1, result.Rows)
	assert.True(t, result.ExpiresAt.After(time.Now()))

	file, err := svc.Exports.Open(tokenFromURL(t, result.URL))
	require.NoError(t, err)
	defer file.File.Close()
	assert.Equal(t, export.FormatCSV.ContentType(), file.ContentType)
	assert.True(t, strings.HasPrefix(file.Filename, "records_"))
	assert.True(t, strings.HasSuffix(file.Filename, ".csv"))

	body, err := io.ReadAll(file.File)
	require.NoError(t, err)
	content := string(body)
	assert.Contains(t, content, "Date,Day,Time,Class,Teacher,Reason")
	assert.Contains(t, content, "2024-03-04,monday,09:00-09:40,3-1,Lee,sick leave")
	assert.NotContains(t, content, "2024-02-26")
}

func TestExportServiceTeachersXLSX(t *testing.T) {
	svc := newExportFixture(t)

	result, err := svc.Exports.Generate(context.Background(), ExportRequest{Dataset: ExportDatasetTeachers, Format: "XLSX"})
	require.NoError(t, err)
	assert.Equal(t, export.FormatXLSX, result.Format)
	assert.Equal(t, 2, result.Rows)

	file, err := svc.Exports.Open(tokenFromURL(t, result.URL))
	require.NoError(t, err)
	defer file.File.Close()
	assert.Equal(t, export.FormatXLSX.ContentType(), file.ContentType)
}

func TestExportServiceRejectsBadInput(t *testing.T) {
	svc := newExportFixture(t)
	ctx := context.Background()

	_, err := svc.Exports.Generate(ctx, ExportRequest{Dataset: "grades"})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.Exports.Open("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	foreign, _, err := storage.NewSignedURLSigner("other-secret", time.Hour).Sign("abc", "records/x.csv")
	require.NoError(t, err)
	_, err = svc.Exports.Open(foreign)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	require.NoError(t, svc.Exports.Cleanup(ctx))
}

func TestExportServiceNotConfigured(t *testing.T) {
	svc := newTestServices(t, newFakeStore())

	_, err := svc.Exports.Generate(context.Background(), ExportRequest{Dataset: ExportDatasetRecords})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrServiceUnavailable.Code, appErrors.FromError(err).Code)
	assert.NoError(t, svc.Exports.Cleanup(context.Background()))
}
