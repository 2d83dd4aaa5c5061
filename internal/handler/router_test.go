package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/export"
	"github.com/noah-isme/sma-substitute-api/pkg/storage"
)

const firstSlot = "09:00-09:40"

type envelope struct {
	Data  json.RawMessage `json:"data"`
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
	Pagination *models.Pagination     `json:"pagination"`
	Meta       map[string]interface{} `json:"meta"`
}

type testAPI struct {
	router   *gin.Engine
	services *service.Services
	auth     *service.AuthService
	logs     *observer.ObservedLogs
	token    string
}

func newTestAPI(t *testing.T, authEnabled bool) *testAPI {
	t.Helper()
	gin.SetMode(gin.TestMode)

	files, err := storage.NewLocalStorage(t.TempDir())
	require.NoError(t, err)
	core, logs := observer.New(zap.InfoLevel)
	svc := service.NewServices(service.Repositories{}, service.Options{
		Logger:   zap.New(core),
		Location: time.UTC,
		Metrics:  service.NewMetricsService(),
		Files:    files,
		Signer:   storage.NewSignedURLSigner("export-secret", time.Minute),
		Export:   service.ExportConfig{APIPrefix: "/api/v1"},
		Auth:     service.AuthConfig{AccessTokenSecret: "jwt-secret"},
	})
	require.NoError(t, svc.Load(testContext(t)))

	router := gin.New()
	RegisterRoutes(router, NewHandlers(svc, nil), RouteConfig{
		Prefix:      "/api/v1",
		AuthEnabled: authEnabled,
		Auth:        svc.Auth,
	})
	return &testAPI{router: router, services: svc, auth: svc.Auth, logs: logs}
}

func (a *testAPI) do(t *testing.T, method, path string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var raw []byte
	if body != nil {
		var err error
		raw, err = json.Marshal(body)
		require.NoError(t, err)
	}
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	if a.token != "" {
		req.Header.Set("Authorization", "Bearer "+a.token)
	}
	w := httptest.NewRecorder()
	a.router.ServeHTTP(w, req)

	var env envelope
	if strings.HasPrefix(w.Header().Get("Content-Type"), "application/json") && w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &env))
	}
	return w, env
}

func (a *testAPI) createTeacher(t *testing.T, req service.CreateTeacherRequest) models.Teacher {
	t.Helper()
	w, env := a.do(t, http.MethodPost, "/api/v1/teachers", req)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var teacher models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &teacher))
	return teacher
}

func TestSubstituteWorkflow(t *testing.T) {
	api := newTestAPI(t, false)

	kim := api.createTeacher(t, service.CreateTeacherRequest{Name: "Kim", Role: models.TeacherRoleSpecialist, Subject: "Art"})
	w, env := api.do(t, http.MethodPost, "/api/v1/teachers", service.CreateTeacherRequest{Name: "Park", Role: models.TeacherRoleHomeroom, Grade: "3", ClassNumber: "1"})
	require.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, env.Meta, "derivation")
	var park models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &park))

	w, env = api.do(t, http.MethodPut, "/api/v1/teachers/"+kim.ID+"/schedule", service.UpdateScheduleRequest{
		Slots: []service.SlotAssignment{{Day: "monday", Time: firstSlot, State: "teaching", Classes: "3-1"}},
	})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Contains(t, env.Meta, "derivation")

	w, env = api.do(t, http.MethodGet, "/api/v1/substitutes/candidates?date=2024-03-04&time="+firstSlot+"&class=3-2", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var result models.CandidateResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	require.Len(t, result.Candidates, 1)
	assert.Equal(t, "Park", result.Candidates[0].Teacher.Name)
	assert.Equal(t, []string{kim.ID}, result.Candidates[0].FreedBy)

	w, env = api.do(t, http.MethodPost, "/api/v1/substitutes", service.CreateSubstituteRequest{
		TeacherID: park.ID, Date: "2024-03-04", Time: firstSlot, ClassRef: "3-2", Reason: "sick leave",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record models.SubstituteRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))

	w, env = api.do(t, http.MethodGet, "/api/v1/substitutes?teacherId="+park.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var records []models.SubstituteRecord
	require.NoError(t, json.Unmarshal(env.Data, &records))
	require.Len(t, records, 1)
	assert.Equal(t, record.ID, records[0].ID)

	w, env = api.do(t, http.MethodGet, "/api/v1/teachers/"+park.ID, nil)
	require.Equal(t, http.StatusOK, w.Code)
	var reloaded models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &reloaded))
	assert.Equal(t, 1, reloaded.SubstituteHistory.TotalCount)

	w, env = api.do(t, http.MethodGet, "/api/v1/statistics/overview", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var overview models.StatisticsOverview
	require.NoError(t, json.Unmarshal(env.Data, &overview))
	assert.Equal(t, 2, overview.TotalTeachers)
	assert.Equal(t, 1, overview.TotalSubstitutes)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/substitutes/"+record.ID, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, env = api.do(t, http.MethodDelete, "/api/v1/substitutes/"+record.ID, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "NOT_FOUND", env.Error.Code)
}

func TestHomeroomScheduleIsReadOnly(t *testing.T) {
	api := newTestAPI(t, false)
	park := api.createTeacher(t, service.CreateTeacherRequest{Name: "Park", Role: models.TeacherRoleHomeroom, Grade: "3", ClassNumber: "1"})

	w, env := api.do(t, http.MethodPut, "/api/v1/teachers/"+park.ID+"/schedule", service.UpdateScheduleRequest{
		Slots: []service.SlotAssignment{{Day: "monday", Time: firstSlot, State: "free"}},
	})
	assert.Equal(t, http.StatusConflict, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "READ_ONLY_SCHEDULE", env.Error.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/teachers/"+park.ID+"/schedule", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var grid service.TeacherSchedule
	require.NoError(t, json.Unmarshal(env.Data, &grid))
	assert.False(t, grid.Editable)
}

func TestUnknownTeacherRecordIsRejected(t *testing.T) {
	api := newTestAPI(t, false)
	w, env := api.do(t, http.MethodPost, "/api/v1/substitutes", service.CreateSubstituteRequest{
		TeacherID: "ghost", Date: "2024-03-04", Time: firstSlot, ClassRef: "3-2",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "UNKNOWN_TEACHER", env.Error.Code)

	w, _ = api.do(t, http.MethodGet, "/api/v1/substitutes?month=2024-13", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTimeSlotsReplace(t *testing.T) {
	api := newTestAPI(t, false)

	w, env := api.do(t, http.MethodPut, "/api/v1/time-slots", service.ReplaceTimeSlotsRequest{TimeSlots: []string{"08:00-08:40", firstSlot}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.JSONEq(t, `{"timeSlots":["08:00-08:40","09:00-09:40"]}`, string(env.Data))

	w, _ = api.do(t, http.MethodPut, "/api/v1/time-slots", service.ReplaceTimeSlotsRequest{TimeSlots: []string{"8:00-8:40"}})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, env = api.do(t, http.MethodGet, "/api/v1/time-slots", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"timeSlots":["08:00-08:40","09:00-09:40"]}`, string(env.Data))
}

func TestTeacherListPaginationAndBulk(t *testing.T) {
	api := newTestAPI(t, false)

	w, env := api.do(t, http.MethodPost, "/api/v1/teachers/bulk", BulkTeacherRequest{Teachers: []service.CreateTeacherRequest{
		{Name: "Kim", Role: models.TeacherRoleSpecialist, Subject: "Art"},
		{Name: "Lee", Role: models.TeacherRoleSpecialist, Subject: "Music"},
		{Name: "Park", Role: models.TeacherRoleHomeroom, Grade: "1", ClassNumber: "2"},
		{Name: "Kim", Role: models.TeacherRoleSpecialist, Subject: "PE"},
	}})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var bulk service.BulkTeacherResult
	require.NoError(t, json.Unmarshal(env.Data, &bulk))
	assert.Len(t, bulk.Success, 3)
	require.Len(t, bulk.Errors, 1)
	assert.Equal(t, 3, bulk.Errors[0].Index)

	w, env = api.do(t, http.MethodGet, "/api/v1/teachers?page=2&limit=2", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var page []models.Teacher
	require.NoError(t, json.Unmarshal(env.Data, &page))
	assert.Len(t, page, 1)
	require.NotNil(t, env.Pagination)
	assert.Equal(t, 3, env.Pagination.TotalCount)

	w, env = api.do(t, http.MethodGet, "/api/v1/teachers?role=homeroom", nil)
	require.Equal(t, http.StatusOK, w.Code)
	require.NoError(t, json.Unmarshal(env.Data, &page))
	require.Len(t, page, 1)
	assert.Equal(t, "Park", page[0].Name)

	w, _ = api.do(t, http.MethodGet, "/api/v1/teachers?role=principal", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = api.do(t, http.MethodGet, "/api/v1/teachers?page=0", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/v1/teachers/bulk", BulkTeacherRequest{Teachers: []service.CreateTeacherRequest{}})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestStatisticsExportDownload(t *testing.T) {
	api := newTestAPI(t, false)
	lee := api.createTeacher(t, service.CreateTeacherRequest{Name: "Lee", Role: models.TeacherRoleSpecialist, Subject: "Music"})
	w, _ := api.do(t, http.MethodPost, "/api/v1/substitutes", service.CreateSubstituteRequest{
		TeacherID: lee.ID, Date: "2024-03-04", Time: firstSlot, ClassRef: "3-1", Reason: "sick leave",
	})
	require.Equal(t, http.StatusCreated, w.Code)

	w, env := api.do(t, http.MethodPost, "/api/v1/statistics/export", service.ExportRequest{Dataset: "records", Format: "csv"})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var result service.ExportResult
	require.NoError(t, json.Unmarshal(env.Data, &result))
	assert.Equal(t, 1, result.Rows)
	require.True(t, strings.HasPrefix(result.URL, "/api/v1/exports/"))

	w, _ = api.do(t, http.MethodGet, result.URL, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, export.FormatCSV.ContentType(), w.Header().Get("Content-Type"))
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment;")
	assert.Contains(t, w.Body.String(), "sick leave")

	w, _ = api.do(t, http.MethodGet, "/api/v1/exports/garbage", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestBackupRoundTripAndReset(t *testing.T) {
	api := newTestAPI(t, false)
	api.createTeacher(t, service.CreateTeacherRequest{Name: "Park", Role: models.TeacherRoleHomeroom, Grade: "3", ClassNumber: "1"})

	w, env := api.do(t, http.MethodGet, "/api/v1/backup", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var snapshot models.Snapshot
	require.NoError(t, json.Unmarshal(env.Data, &snapshot))
	require.Len(t, snapshot.Teachers, 1)

	w, _ = api.do(t, http.MethodDelete, "/api/v1/backup", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	w, _ = api.do(t, http.MethodDelete, "/api/v1/backup?confirm=true", nil)
	require.Equal(t, http.StatusNoContent, w.Code)
	assert.Empty(t, api.services.Teachers.List(testContext(t), service.TeacherFilter{}))

	w, env = api.do(t, http.MethodPut, "/api/v1/backup", snapshot)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	var summary models.RestoreSummary
	require.NoError(t, json.Unmarshal(env.Data, &summary))
	require.NotNil(t, summary.Teachers)
	assert.Equal(t, 1, *summary.Teachers)
	assert.Len(t, api.services.Teachers.List(testContext(t), service.TeacherFilter{}), 1)

	w, env = api.do(t, http.MethodPut, "/api/v1/backup", map[string]interface{}{
		"teachers": []map[string]interface{}{{"id": "t1", "name": "", "role": "homeroom"}},
	})
	assert.Equal(t, http.StatusBadRequest, w.Code)
	require.NotNil(t, env.Error)
	assert.Equal(t, "INVALID_FORMAT", env.Error.Code)

	w, env = api.do(t, http.MethodPost, "/api/v1/admin/rollover", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var rolled models.RolloverResult
	require.NoError(t, json.Unmarshal(env.Data, &rolled))
	assert.True(t, rolled.Rolled)
}

func TestRoutesRequireRolesWhenAuthEnabled(t *testing.T) {
	api := newTestAPI(t, true)

	w, _ := api.do(t, http.MethodGet, "/api/v1/time-slots", nil)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	viewer, err := api.auth.IssueToken("viewer-1", models.RoleViewer, time.Minute)
	require.NoError(t, err)
	api.token = viewer
	w, _ = api.do(t, http.MethodGet, "/api/v1/time-slots", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodPost, "/api/v1/availability/derive", nil)
	assert.Equal(t, http.StatusForbidden, w.Code)

	admin, err := api.auth.IssueToken("admin-1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)
	api.token = admin
	w, _ = api.do(t, http.MethodPost, "/api/v1/availability/derive", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	api.token = ""
	w, _ = api.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	w, _ = api.do(t, http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestLedgerChangesAreLoggedOnceWithCaller(t *testing.T) {
	api := newTestAPI(t, true)
	admin, err := api.auth.IssueToken("admin-1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)
	api.token = admin

	park := api.createTeacher(t, service.CreateTeacherRequest{Name: "Park", Role: models.TeacherRoleHomeroom, Grade: "3", ClassNumber: "1"})
	w, env := api.do(t, http.MethodPost, "/api/v1/substitutes", service.CreateSubstituteRequest{
		TeacherID: park.ID, Date: "2024-03-04", Time: firstSlot, ClassRef: "3-2",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	var record models.SubstituteRecord
	require.NoError(t, json.Unmarshal(env.Data, &record))

	w, _ = api.do(t, http.MethodDelete, "/api/v1/substitutes/"+record.ID, nil)
	require.Equal(t, http.StatusNoContent, w.Code)

	for _, message := range []string{"substitute recorded", "substitute removed"} {
		entries := api.logs.FilterMessage(message).All()
		require.Len(t, entries, 1, message)
		assert.Equal(t, "admin-1", entries[0].ContextMap()["actor"])
		assert.Equal(t, record.ID, entries[0].ContextMap()["record_id"])
	}
}

// testContext mirrors testing.T.Context (Go 1.24+): the context is cancelled
// when the test finishes.
func testContext(t *testing.T) context.Context {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	return ctx
}
