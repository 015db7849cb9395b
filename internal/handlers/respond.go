package handlers

import (
	"errors"
	"net/http"

	"github.com/Darshan124-get/kisan--mitra/internal/models"
	"github.com/gin-gonic/gin"
)

// respondError maps the error taxonomy onto HTTP status codes. Unexpected
// errors get a generic message; the detail only leaks outside release mode.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, models.ErrValidation), errors.Is(err, models.ErrUnavailable):
		c.JSON(http.StatusBadRequest, models.ErrorResponse(err.Error()))
	case errors.Is(err, models.ErrForbidden):
		c.JSON(http.StatusForbidden, models.ErrorResponse(err.Error()))
	case errors.Is(err, models.ErrNotFound):
		c.JSON(http.StatusNotFound, models.ErrorResponse(err.Error()))
	case errors.Is(err, models.ErrConflict):
		c.JSON(http.StatusConflict, models.ErrorResponse(err.Error()))
	case errors.Is(err, models.ErrStoreUnavailable):
		c.JSON(http.StatusServiceUnavailable, models.ErrorResponse("storage is temporarily unavailable"))
	default:
		_ = c.Error(err)
		msg := "internal server error"
		if gin.Mode() != gin.ReleaseMode {
			msg = err.Error()
		}
		c.JSON(http.StatusInternalServerError, models.ErrorResponse(msg))
	}
}
