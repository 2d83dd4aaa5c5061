package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type timeSlotService interface {
	Get() []string
	ReplaceAll(ctx context.Context, labels []string) ([]string, error)
}

// TimeSlotHandler exposes the slot registry.
type TimeSlotHandler struct {
	slots        timeSlotService
	availability deriver
}

// NewTimeSlotHandler constructs a TimeSlotHandler.
func NewTimeSlotHandler(slots timeSlotService, d deriver) *TimeSlotHandler {
	return &TimeSlotHandler{slots: slots, availability: d}
}

// Get godoc
// @Summary List time slots
// @Tags Time Slots
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /time-slots [get]
func (h *TimeSlotHandler) Get(c *gin.Context) {
	response.JSON(c, http.StatusOK, gin.H{"timeSlots": h.slots.Get()}, nil)
}

// Replace godoc
// @Summary Replace time slots
// @Description Replaces the ordered registry and derives homeroom grids again.
// @Tags Time Slots
// @Accept json
// @Produce json
// @Param payload body service.ReplaceTimeSlotsRequest true "Time slots"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /time-slots [put]
func (h *TimeSlotHandler) Replace(c *gin.Context) {
	var req service.ReplaceTimeSlotsRequest
	if !bindJSON(c, &req, "invalid time slot payload") {
		return
	}
	slots, err := h.slots.ReplaceAll(c.Request.Context(), req.TimeSlots)
	if err != nil {
		response.Error(c, err)
		return
	}
	if !derive(c, h.availability) {
		return
	}
	response.JSON(c, http.StatusOK, gin.H{"timeSlots": slots}, nil, middleware.ExtractMeta(c))
}
