package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

// AvailabilityHandler triggers homeroom derivation on demand.
type AvailabilityHandler struct {
	availability deriver
}

// NewAvailabilityHandler constructs an AvailabilityHandler.
func NewAvailabilityHandler(availability deriver) *AvailabilityHandler {
	return &AvailabilityHandler{availability: availability}
}

// Derive godoc
// @Summary Derive homeroom availability
// @Description Recomputes every homeroom grid from the specialist grids.
// @Tags Availability
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /availability/derive [post]
func (h *AvailabilityHandler) Derive(c *gin.Context) {
	report, err := h.availability.Recompute(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, report, nil)
}
