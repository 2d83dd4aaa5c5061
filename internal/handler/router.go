package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
)

// Handlers groups every HTTP handler.
type Handlers struct {
	TimeSlots    *TimeSlotHandler
	Teachers     *TeacherHandler
	Availability *AvailabilityHandler
	Substitutes  *SubstituteHandler
	Statistics   *StatisticsHandler
	Backup       *BackupHandler
	Metrics      *MetricsHandler
}

// NewHandlers builds the handlers on top of the wired service layer.
func NewHandlers(svc *service.Services, checks map[string]ReadinessCheck) Handlers {
	return Handlers{
		TimeSlots:    NewTimeSlotHandler(svc.TimeSlots, svc.Availability),
		Teachers:     NewTeacherHandler(svc.Teachers, svc.Schedules, svc.Availability),
		Availability: NewAvailabilityHandler(svc.Availability),
		Substitutes:  NewSubstituteHandler(svc.Candidates, svc.Substitutes),
		Statistics:   NewStatisticsHandler(svc.Statistics, svc.Exports),
		Backup:       NewBackupHandler(svc.Backup, svc.Rollover),
		Metrics:      NewMetricsHandler(svc.Metrics, checks),
	}
}

// RouteConfig controls authentication of the API group.
type RouteConfig struct {
	Prefix      string
	AuthEnabled bool
	Auth        *service.AuthService
}

// RegisterRoutes mounts ops endpoints at the root and the API under Prefix.
// Reads accept any authenticated role; mutations require ADMIN.
func RegisterRoutes(r *gin.Engine, h Handlers, cfg RouteConfig) {
	r.GET("/health", h.Metrics.Health)
	r.GET("/ready", h.Metrics.Ready)
	r.GET("/metrics", h.Metrics.Prometheus)

	prefix := cfg.Prefix
	if prefix == "" {
		prefix = "/api/v1"
	}
	api := r.Group(prefix)
	api.Use(middleware.WithResponseMeta())

	// Signed links carry their own authorization.
	api.GET("/exports/:token", h.Statistics.Download)

	secured := api.Group("")
	secured.Use(middleware.Authenticated(cfg.AuthEnabled, cfg.Auth))
	read := middleware.RequireRoles(cfg.AuthEnabled, models.RoleAdmin, models.RoleTeacher, models.RoleViewer)
	write := middleware.RequireRoles(cfg.AuthEnabled, models.RoleAdmin)

	secured.GET("/time-slots", read, h.TimeSlots.Get)
	secured.PUT("/time-slots", write, h.TimeSlots.Replace)

	secured.GET("/teachers", read, h.Teachers.List)
	secured.POST("/teachers", write, h.Teachers.Create)
	secured.POST("/teachers/bulk", write, h.Teachers.BulkCreate)
	secured.GET("/teachers/:id", read, h.Teachers.Get)
	secured.PUT("/teachers/:id", write, h.Teachers.Update)
	secured.DELETE("/teachers/:id", write, h.Teachers.Delete)
	secured.GET("/teachers/:id/schedule", read, h.Teachers.GetSchedule)
	secured.PUT("/teachers/:id/schedule", write, h.Teachers.UpdateSchedule)

	secured.POST("/availability/derive", write, h.Availability.Derive)

	secured.GET("/substitutes/candidates", read, h.Substitutes.Candidates)
	secured.GET("/substitutes", read, h.Substitutes.List)
	secured.GET("/substitutes/:id", read, h.Substitutes.Get)
	secured.POST("/substitutes", write, h.Substitutes.Create)
	secured.PUT("/substitutes/:id", write, h.Substitutes.Update)
	secured.DELETE("/substitutes/:id", write, h.Substitutes.Delete)

	secured.GET("/statistics/overview", read, h.Statistics.Overview)
	secured.GET("/statistics/monthly", read, h.Statistics.Monthly)
	secured.GET("/statistics/patterns", read, h.Statistics.Patterns)
	secured.GET("/statistics/teachers", read, h.Statistics.Teachers)
	secured.POST("/statistics/export", read, h.Statistics.Export)

	secured.GET("/backup", write, h.Backup.Export)
	secured.PUT("/backup", write, h.Backup.Restore)
	secured.DELETE("/backup", write, h.Backup.Reset)
	secured.POST("/admin/rollover", write, h.Backup.Rollover)
	secured.GET("/metrics/system", write, h.Metrics.System)
}
