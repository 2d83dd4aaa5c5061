package handler

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type statisticsReader interface {
	Overview(ctx context.Context) (*models.StatisticsOverview, error)
	Monthly(ctx context.Context) ([]models.MonthlyCount, error)
	Patterns(ctx context.Context) (*models.PatternAnalysis, error)
	TeacherStats(ctx context.Context, filter service.TeacherStatsFilter) ([]models.TeacherStats, error)
}

type exporter interface {
	Generate(ctx context.Context, req service.ExportRequest) (*service.ExportResult, error)
	Open(token string) (*service.ExportFile, error)
}

// StatisticsHandler exposes substitution statistics and their exports.
type StatisticsHandler struct {
	stats   statisticsReader
	exports exporter
}

// NewStatisticsHandler constructs a StatisticsHandler.
func NewStatisticsHandler(stats statisticsReader, exports exporter) *StatisticsHandler {
	return &StatisticsHandler{stats: stats, exports: exports}
}

// Overview godoc
// @Summary Statistics overview
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statistics/overview [get]
func (h *StatisticsHandler) Overview(c *gin.Context) {
	overview, err := h.stats.Overview(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, overview, nil)
}

// Monthly godoc
// @Summary Substitutions per month
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statistics/monthly [get]
func (h *StatisticsHandler) Monthly(c *gin.Context) {
	months, err := h.stats.Monthly(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, months, nil)
}

// Patterns godoc
// @Summary Busiest teachers, slots and weekdays
// @Tags Statistics
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /statistics/patterns [get]
func (h *StatisticsHandler) Patterns(c *gin.Context) {
	patterns, err := h.stats.Patterns(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, patterns, nil)
}

// Teachers godoc
// @Summary Per-teacher substitution counters
// @Tags Statistics
// @Produce json
// @Param teacherId query string false "Teacher ID"
// @Param role query string false "homeroom or specialist"
// @Param sort query string false "name, total or month"
// @Success 200 {object} response.Envelope
// @Router /statistics/teachers [get]
func (h *StatisticsHandler) Teachers(c *gin.Context) {
	filter := service.TeacherStatsFilter{
		TeacherID: strings.TrimSpace(c.Query("teacherId")),
		Role:      models.TeacherRole(strings.ToLower(strings.TrimSpace(c.Query("role")))),
		Sort:      strings.ToLower(c.Query("sort")),
	}
	if filter.Role != "" && !filter.Role.Valid() {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "role must be homeroom or specialist"))
		return
	}
	rows, err := h.stats.TeacherStats(c.Request.Context(), filter)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, rows, nil)
}

// Export godoc
// @Summary Export statistics
// @Description Renders records or teacher statistics as CSV, PDF or XLSX and returns a signed download link.
// @Tags Statistics
// @Accept json
// @Produce json
// @Param payload body service.ExportRequest true "Export"
// @Success 201 {object} response.Envelope
// @Router /statistics/export [post]
func (h *StatisticsHandler) Export(c *gin.Context) {
	var req service.ExportRequest
	if !bindJSON(c, &req, "invalid export payload") {
		return
	}
	result, err := h.exports.Generate(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, result)
}

// Download godoc
// @Summary Download an export
// @Tags Statistics
// @Produce octet-stream
// @Param token path string true "Signed token"
// @Success 200 {file} file
// @Failure 401 {object} response.Envelope
// @Failure 403 {object} response.Envelope
// @Router /exports/{token} [get]
func (h *StatisticsHandler) Download(c *gin.Context) {
	file, err := h.exports.Open(c.Param("token"))
	if err != nil {
		response.Error(c, err)
		return
	}
	defer file.File.Close()

	info, err := file.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to read export"))
		return
	}
	c.Header("Cache-Control", "no-store")
	c.DataFromReader(http.StatusOK, info.Size(), file.ContentType, file.File, map[string]string{
		"Content-Disposition": fmt.Sprintf(`attachment; filename="%s"`, file.Filename),
	})
}
