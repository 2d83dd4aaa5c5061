package handler

import (
	"context"
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/models"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

type backupService interface {
	Export(ctx context.Context) *models.Snapshot
	Restore(ctx context.Context, snapshot models.Snapshot) (*models.RestoreSummary, error)
	Reset(ctx context.Context) error
}

type rolloverService interface {
	Rollover(ctx context.Context, force bool) (*models.RolloverResult, error)
}

// BackupHandler exposes snapshot backup, restore, reset and the forced
// counter rollover.
type BackupHandler struct {
	backup   backupService
	rollover rolloverService
}

// NewBackupHandler constructs a BackupHandler.
func NewBackupHandler(backup backupService, rollover rolloverService) *BackupHandler {
	return &BackupHandler{backup: backup, rollover: rollover}
}

// Export godoc
// @Summary Download a backup snapshot
// @Tags Backup
// @Produce json
// @Param download query bool false "Serve as an attachment"
// @Success 200 {object} models.Snapshot
// @Router /backup [get]
func (h *BackupHandler) Export(c *gin.Context) {
	snapshot := h.backup.Export(c.Request.Context())
	if c.Query("download") == "true" && snapshot.ExportedAt != nil {
		c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="substitute_backup_%s.json"`, snapshot.ExportedAt.Format("20060102_150405")))
	}
	response.JSON(c, http.StatusOK, snapshot, nil)
}

// Restore godoc
// @Summary Restore a backup snapshot
// @Description Present collections replace the current ones; null collections are kept. Nothing is applied when any entry is invalid.
// @Tags Backup
// @Accept json
// @Produce json
// @Param payload body models.Snapshot true "Snapshot"
// @Success 200 {object} response.Envelope
// @Failure 400 {object} response.Envelope
// @Router /backup [put]
func (h *BackupHandler) Restore(c *gin.Context) {
	var snapshot models.Snapshot
	if err := c.ShouldBindJSON(&snapshot); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrInvalidFormat.Code, http.StatusBadRequest, "backup file is not valid JSON"))
		return
	}
	summary, err := h.backup.Restore(mutationContext(c), snapshot)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, summary, nil)
}

// Reset godoc
// @Summary Reset all data
// @Tags Backup
// @Success 204
// @Router /backup [delete]
func (h *BackupHandler) Reset(c *gin.Context) {
	if c.Query("confirm") != "true" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "reset requires confirm=true"))
		return
	}
	if err := h.backup.Reset(mutationContext(c)); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Rollover godoc
// @Summary Force the monthly counter rollover
// @Tags Admin
// @Produce json
// @Success 200 {object} response.Envelope
// @Router /admin/rollover [post]
func (h *BackupHandler) Rollover(c *gin.Context) {
	result, err := h.rollover.Rollover(mutationContext(c), true)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result, nil)
}
