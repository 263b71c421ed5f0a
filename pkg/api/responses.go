package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/mailfleet/mailfleet/pkg/email"
)

type errorResponse struct {
	Error  string             `json:"error"`
	Fields []email.FieldError `json:"fields,omitempty"`
}

// writeError maps pipeline errors onto HTTP statuses: validation -> 400,
// template not found -> 404, storage -> 503, delivery -> 502, other -> 500.
func writeError(c *gin.Context, err error) {
	var ve *email.ValidationError
	if errors.As(err, &ve) {
		c.JSON(http.StatusBadRequest, errorResponse{Error: "validation failed", Fields: ve.Errors})
		return
	}
	if errors.Is(err, email.ErrTemplateNotFound) {
		c.JSON(http.StatusNotFound, errorResponse{Error: err.Error()})
		return
	}
	var se *email.StorageError
	if errors.As(err, &se) {
		c.JSON(http.StatusServiceUnavailable, errorResponse{Error: err.Error()})
		return
	}
	var de *email.SendError
	if errors.As(err, &de) {
		c.JSON(http.StatusBadGateway, errorResponse{Error: err.Error()})
		return
	}
	c.JSON(http.StatusInternalServerError, errorResponse{Error: "internal error"})
}
