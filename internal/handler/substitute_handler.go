package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/schedule"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

const monthLayout = "2006-01"

type candidateFinder interface {
	Search(ctx context.Context, query models.CandidateQuery) (*models.CandidateResult, error)
}

type substituteLedger interface {
	Append(ctx context.Context, req service.CreateSubstituteRequest) (*models.SubstituteRecord, error)
	Correct(ctx context.Context, id string, req service.UpdateSubstituteRequest) (*models.SubstituteRecord, error)
	Remove(ctx context.Context, id string) error
	Get(ctx context.Context, id string) (*models.SubstituteRecord, error)
	ListFor(ctx context.Context, filter models.SubstituteFilter) []models.SubstituteRecord
}

// SubstituteHandler exposes candidate search and the substitute ledger.
type SubstituteHandler struct {
	candidates candidateFinder
	ledger     substituteLedger
}

// NewSubstituteHandler constructs a SubstituteHandler.
func NewSubstituteHandler(candidates candidateFinder, ledger substituteLedger) *SubstituteHandler {
	return &SubstituteHandler{candidates: candidates, ledger: ledger}
}

// Candidates godoc
// @Summary Find substitute candidates
// @Description Specialists free at the slot come first, then homeroom teachers whose class is away.
// @Tags Substitutes
// @Produce json
// @Param date query string false "Date (YYYY-MM-DD)"
// @Param day query string false "Weekday, used when date is absent"
// @Param time query string true "Time slot label"
// @Param class query string false "Class that needs cover (e.g. 3-1)"
// @Param sort query string false "name, total or month"
// @Success 200 {object} response.Envelope
// @Router /substitutes/candidates [get]
func (h *SubstituteHandler) Candidates(c *gin.Context) {
	query := models.CandidateQuery{
		Date:  c.Query("date"),
		Day:   schedule.Day(strings.ToLower(strings.TrimSpace(c.Query("day")))),
		Time:  c.Query("time"),
		Class: c.Query("class"),
		Sort:  strings.ToLower(c.Query("sort")),
	}
	result, err := h.candidates.Search(c.Request.Context(), query)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}

// List godoc
// @Summary List substitute records
// @Tags Substitutes
// @Produce json
// @Param teacherId query string false "Teacher ID"
// @Param month query string false "Month (YYYY-MM)"
// @Param page query int false "Page number"
// @Param limit query int false "Page size"
// @Success 200 {object} response.Envelope
// @Router /substitutes [get]
func (h *SubstituteHandler) List(c *gin.Context) {
	filter := models.SubstituteFilter{
		TeacherID: strings.TrimSpace(c.Query("teacherId")),
		Month:     strings.TrimSpace(c.Query("month")),
	}
	if filter.Month != "" && !validMonth(filter.Month) {
		response.Error(c, appErrors.Clone(appErrors.ErrInvalidFormat, "month must be formatted as YYYY-MM"))
		return
	}
	records, pagination, err := paginate(c, h.ledger.ListFor(c.Request.Context(), filter))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, records, pagination)
}

// Get godoc
// @Summary Get substitute record
// @Tags Substitutes
// @Produce json
// @Param id path string true "Record ID"
// @Success 200 {object} response.Envelope
// @Router /substitutes/{id} [get]
func (h *SubstituteHandler) Get(c *gin.Context) {
	record, err := h.ledger.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Create godoc
// @Summary Record a substitution
// @Tags Substitutes
// @Accept json
// @Produce json
// @Param payload body service.CreateSubstituteRequest true "Record"
// @Success 201 {object} response.Envelope
// @Failure 422 {object} response.Envelope
// @Router /substitutes [post]
func (h *SubstituteHandler) Create(c *gin.Context) {
	var req service.CreateSubstituteRequest
	if !bindJSON(c, &req, "invalid substitute payload") {
		return
	}
	record, err := h.ledger.Append(mutationContext(c), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, record)
}

// Update godoc
// @Summary Correct a substitute record
// @Tags Substitutes
// @Accept json
// @Produce json
// @Param id path string true "Record ID"
// @Param payload body service.UpdateSubstituteRequest true "Changes"
// @Success 200 {object} response.Envelope
// @Router /substitutes/{id} [put]
func (h *SubstituteHandler) Update(c *gin.Context) {
	var req service.UpdateSubstituteRequest
	if !bindJSON(c, &req, "invalid substitute payload") {
		return
	}
	record, err := h.ledger.Correct(mutationContext(c), c.Param("id"), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, record, nil)
}

// Delete godoc
// @Summary Delete a substitute record
// @Tags Substitutes
// @Param id path string true "Record ID"
// @Success 204
// @Router /substitutes/{id} [delete]
func (h *SubstituteHandler) Delete(c *gin.Context) {
	id := c.Param("id")
	if err := h.ledger.Remove(mutationContext(c), id); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

func validMonth(month string) bool {
	_, err := time.Parse(monthLayout, month)
	return err == nil
}
