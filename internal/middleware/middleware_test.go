package middleware

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

func newAuth() *service.AuthService {
	return service.NewAuthService(zap.NewNop(), service.AuthConfig{AccessTokenSecret: "secret"})
}

func protectedRouter(auth *service.AuthService, roles ...models.UserRole) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/teachers", Authenticated(true, auth), RequireRoles(true, roles...), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})
	return r
}

func TestJWTRejectsMissingAndMalformedHeaders(t *testing.T) {
	r := protectedRouter(newAuth(), models.RoleAdmin)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teachers", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodGet, "/teachers", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/teachers", nil)
	req.Header.Set("Authorization", "Bearer not-a-token")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestJWTAndRBAC(t *testing.T) {
	auth := newAuth()
	r := protectedRouter(auth, models.RoleAdmin)

	admin, err := auth.IssueToken("u1", models.RoleAdmin, time.Minute)
	require.NoError(t, err)
	viewer, err := auth.IssueToken("u2", models.RoleViewer, time.Minute)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodGet, "/teachers", nil)
	req.Header.Set("Authorization", "Bearer "+admin)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)

	req = httptest.NewRequest(http.MethodGet, "/teachers", nil)
	req.Header.Set("Authorization", "bearer "+viewer)
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusForbidden, w.Code)
}

func TestDisabledAuthPassesThrough(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.GET("/teachers", Authenticated(false, nil), RequireRoles(false, models.RoleAdmin), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/teachers", nil))
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRBACWithoutClaims(t *testing.T) {
	w := httptest.NewRecorder()
	c, _ := gin.CreateTestContext(w)
	c.Request = httptest.NewRequest(http.MethodGet, "/", nil)
	RBAC(models.RoleAdmin)(c)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
	assert.True(t, c.IsAborted())
}

func TestReportServerErrors(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var reported []error
	var tags map[string]string
	r := gin.New()
	r.Use(ReportServerErrors(func(err error, t map[string]string) {
		reported = append(reported, err)
		tags = t
	}))
	r.GET("/boom", func(c *gin.Context) {
		response.Error(c, appErrors.Wrap(errors.New("db down"), appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed"))
	})
	r.GET("/missing", func(c *gin.Context) {
		response.Error(c, appErrors.ErrNotFound)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/missing", nil))
	assert.Empty(t, reported)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/boom", nil))
	require.Len(t, reported, 1)
	assert.Equal(t, "/boom", tags["route"])
	assert.Equal(t, "500", tags["status"])
}

func TestResponseMeta(t *testing.T) {
	gin.SetMode(gin.TestMode)
	var meta map[string]interface{}
	r := gin.New()
	r.Use(WithResponseMeta())
	r.GET("/plain", func(c *gin.Context) {
		meta = ExtractMeta(c)
	})
	r.GET("/derived", func(c *gin.Context) {
		SetMeta(c, "derived", 3)
		meta = ExtractMeta(c)
	})

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/plain", nil))
	assert.Nil(t, meta)

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/derived", nil))
	require.NotNil(t, meta)
	assert.Equal(t, 3, meta["derived"])
	assert.Contains(t, meta, "processing_time_ms")
}

func TestMetricsMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	metrics := service.NewMetricsService()
	r := gin.New()
	r.Use(Metrics(metrics))
	r.GET("/time-slots", func(c *gin.Context) { c.Status(http.StatusOK) })

	r.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/time-slots", nil))
	assert.EqualValues(t, 1, metrics.Snapshot().RequestsTotal)
}
