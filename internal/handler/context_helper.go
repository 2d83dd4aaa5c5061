package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sma-substitute-api/internal/middleware"
	"github.com/noah-isme/sma-substitute-api/internal/models"
	"github.com/noah-isme/sma-substitute-api/internal/service"
	appErrors "github.com/noah-isme/sma-substitute-api/pkg/errors"
	"github.com/noah-isme/sma-substitute-api/pkg/response"
)

const (
	defaultPageSize = 50
	maxPageSize     = 500
)

// deriver recomputes homeroom grids after an edit.
type deriver interface {
	Recompute(ctx context.Context) (*models.DerivationReport, error)
}

func claimsFromContext(c *gin.Context) *models.JWTClaims {
	value, exists := c.Get(middleware.ContextUserKey)
	if !exists {
		return nil
	}
	claims, ok := value.(*models.JWTClaims)
	if !ok {
		return nil
	}
	return claims
}

func actorID(c *gin.Context) string {
	if claims := claimsFromContext(c); claims != nil {
		return claims.UserID
	}
	return "anonymous"
}

// mutationContext carries the caller into service calls that log changes.
func mutationContext(c *gin.Context) context.Context {
	return service.WithActor(c.Request.Context(), actorID(c))
}

// bindJSON decodes the body into dest, responding with a validation error on
// failure.
func bindJSON(c *gin.Context, dest interface{}, message string) bool {
	if err := c.ShouldBindJSON(dest); err != nil {
		response.Error(c, appErrors.Wrap(err, appErrors.ErrValidation.Code, http.StatusBadRequest, message))
		return false
	}
	return true
}

// derive runs one derivation pass and attaches its report to the response
// metadata. It responds with the error and returns false on failure.
func derive(c *gin.Context, d deriver) bool {
	report, err := d.Recompute(c.Request.Context())
	if err != nil {
		response.Error(c, err)
		return false
	}
	middleware.SetMeta(c, "derivation", report)
	return true
}

// paginate slices items by the page and limit query parameters. A missing
// limit returns every item on one page.
func paginate[T any](c *gin.Context, items []T) ([]T, *models.Pagination, error) {
	if c.Query("page") == "" && c.Query("limit") == "" {
		return items, nil, nil
	}
	page, err := strconv.Atoi(c.DefaultQuery("page", "1"))
	if err != nil || page < 1 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "page must be a positive integer")
	}
	size, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || size < 1 {
		return nil, nil, appErrors.Clone(appErrors.ErrValidation, "limit must be a positive integer")
	}
	if size > maxPageSize {
		size = maxPageSize
	}

	pagination := &models.Pagination{Page: page, PageSize: size, TotalCount: len(items)}
	pages := (len(items) + size - 1) / size
	if page-1 >= pages {
		return []T{}, pagination, nil
	}
	start := (page - 1) * size
	end := start + size
	if end > len(items) {
		end = len(items)
	}
	return items[start:end], pagination, nil
}
