package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type teacherDirectory interface {
	List(ctx context.Context, filter service.TeacherFilter) []models.Teacher
	Get(ctx context.Context, id string) (*models.Teacher, error)
	Add(ctx context.Context, req service.CreateTeacherRequest) (*models.Teacher, error)
	BulkAdd(ctx context.Context, rows []service.CreateTeacherRequest) (*service.BulkTeacherResult, error)
	Update(ctx context.Context, id string, req service.UpdateTeacherRequest) (*models.Teacher, error)
	Remove(ctx context.Context, id string) error
}

type scheduleEditor interface {
	Grid(ctx context.Context, teacherID string) (*service.TeacherSchedule, error)
	SetSlots(ctx context.Context, teacherID string, req service.UpdateScheduleRequest) (*service.TeacherSchedule, error)
}

// BulkTeacherRequest wraps a bulk import.
type BulkTeacherRequest struct {
	Teachers []service.CreateTeacherRequest `json:"teachers" binding:"required"`
}

// TeacherHandler wires the teacher directory and schedules to HTTP routes.
type TeacherHandler struct {
	teachers     teacherDirectory
	schedules    scheduleEditor
	availability deriver
}

// NewTeacherHandler constructs a new TeacherHandler.
func NewTeacherHandler(teachers teacherDirectory, schedules scheduleEditor, availability deriver) *TeacherHandler {
	return &TeacherHandler{
		teachers:     teachers,
		schedules:    schedules,
		availability: availability,
	}
}

// List godoc
// @Summary List teachers
// @Tags Teachers
// @Produce json
// @Param role query string false "homeroom or specialist"
// @Param search query string false "Search by name, role or grade"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /teachers [get]
func (h *TeacherHandler) List(c *gin.Context) {
	filter := service.TeacherFilter{Search: strings.TrimSpace(c.Query("search"))}
	if role := strings.ToLower(strings.TrimSpace(c.Query("role"))); role != "" {
		filter.Role = models.TeacherRole(role)
		if !filter.Role.Valid() {
			response.Error(c, appErrors.Clone(appErrors.ErrValidation, "role must be homeroom or specialist"))
			return
		}
	}

	teachers, pagination, err := paginate(c, h.teachers.List(c.Request.Context(), filter))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teachers, pagination)
}

// Get godoc
// @Summary Get teacher detail
// @Tags Teachers
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Failure 404 {object} response.Envelope
// @Router /teachers/{id} [get]
func (h *TeacherHandler) Get(c *gin.Context) {
	teacher, err := h.teachers.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil)
}

// Create godoc
// @Summary Create teacher
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body service.CreateTeacherRequest true "Teacher payload"
// @Success 201 {object} response.Envelope
// @Router /teachers [post]
func (h *TeacherHandler) Create(c *gin.Context) {
	var req service.CreateTeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	teacher, err := h.teachers.Add(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !derive(c, h.availability) {
		return
	}
	response.JSON(c, http.StatusCreated, teacher, nil, middleware.ExtractMeta(c))
}

// BulkCreate godoc
// @Summary Bulk import teachers
// @Description Adds every valid row and reports the rejected ones.
// @Tags Teachers
// @Accept json
// @Produce json
// @Param payload body BulkTeacherRequest true "Teachers"
// @Success 200 {object} response.Envelope
// @Router /teachers/bulk [post]
func (h *TeacherHandler) BulkCreate(c *gin.Context) {
	var req BulkTeacherRequest
	if !bindJSON(c, &req, "invalid bulk payload") {
		return
	}
	if len(req.Teachers) == 0 {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "teachers must not be empty"))
		return
	}
	result, err := h.teachers.BulkAdd(c.Request.Context(), req.Teachers)
	if err != nil {
		response.Error(c, err)
		return
	}
	if len(result.Success) > 0 && !derive(c, h.availability) {
		return
	}
	response.JSON(c, http.StatusOK, result, nil, middleware.ExtractMeta(c))
}

// Update godoc
// @Summary Update teacher
// @Tags Teachers
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param payload body service.UpdateTeacherRequest true "Teacher payload"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id} [put]
func (h *TeacherHandler) Update(c *gin.Context) {
	var req service.UpdateTeacherRequest
	if !bindJSON(c, &req, "invalid teacher payload") {
		return
	}
	teacher, err := h.teachers.Update(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !derive(c, h.availability) {
		return
	}
	response.JSON(c, http.StatusOK, teacher, nil, middleware.ExtractMeta(c))
}

// Delete godoc
// @Summary Remove teacher
// @Description Substitute records of the teacher are kept.
// @Tags Teachers
// @Param id path string true "Teacher ID"
// @Success 204
// @Router /teachers/{id} [delete]
func (h *TeacherHandler) Delete(c *gin.Context) {
	if err := h.teachers.Remove(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	if !derive(c, h.availability) {
		return
	}
	response.NoContent(c)
}

// GetSchedule godoc
// @Summary Get teacher schedule
// @Tags Schedules
// @Produce json
// @Param id path string true "Teacher ID"
// @Success 200 {object} response.Envelope
// @Router /teachers/{id}/schedule [get]
func (h *TeacherHandler) GetSchedule(c *gin.Context) {
	grid, err := h.schedules.Grid(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, grid, nil)
}

// UpdateSchedule godoc
// @Summary Edit a specialist schedule
// @Description Homeroom schedules are derived and reject edits. Pass derive=false to postpone derivation.
// @Tags Schedules
// @Accept json
// @Produce json
// @Param id path string true "Teacher ID"
// @Param derive query bool false "Derive homeroom grids after saving" default(true)
// @Param payload body service.UpdateScheduleRequest true "Cells"
// @Success 200 {object} response.Envelope
// @Failure 409 {object} response.Envelope
// @Router /teachers/{id}/schedule [put]
func (h *TeacherHandler) UpdateSchedule(c *gin.Context) {
	var req service.UpdateScheduleRequest
	if !bindJSON(c, &req, "invalid schedule payload") {
		return
	}
	grid, err := h.schedules.SetSlots(c.Request.Context(), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !strings.EqualFold(c.Query("derive"), "false") && !derive(c, h.availability) {
		return
	}
	response.JSON(c, http.StatusOK, grid, nil, middleware.ExtractMeta(c))
}
