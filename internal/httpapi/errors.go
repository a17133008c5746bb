package httpapi

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"

	"draqua/backend/internal/service"
	"draqua/backend/internal/store"
)

const (
	codeValidation        = "VALIDATION_ERROR"
	codeBadRequest        = "BAD_REQUEST"
	codeInsufficientStock = "INSUFFICIENT_STOCK"
	codeNotFound          = "RESOURCE_NOT_FOUND"
	codeInternal          = "INTERNAL_ERROR"
)

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Details   any    `json:"details,omitempty"`
	Timestamp string `json:"timestamp"`
	Path      string `json:"path"`
}

// respondError maps service errors to a status and error envelope.
func (a *API) respondError(c *gin.Context, err error) {
	var (
		validationErr *service.ValidationError
		stockErr      *service.InsufficientStockError
	)

	switch {
	case errors.As(err, &validationErr):
		a.writeError(c, http.StatusBadRequest, codeValidation, "request failed validation", validationErr.Problems)
	case errors.As(err, &stockErr):
		a.writeError(c, http.StatusConflict, codeInsufficientStock, "insufficient stock for the selection", stockErr.Shortages)
	case errors.Is(err, store.ErrNotFound):
		a.writeError(c, http.StatusNotFound, codeNotFound, "resource not found", nil)
	case errors.Is(err, store.ErrInvalidTransaction):
		a.writeError(c, http.StatusBadRequest, codeValidation, err.Error(), nil)
	default:
		a.logger.ErrorContext(c.Request.Context(), "internal error",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"error", err,
		)
		a.writeError(c, http.StatusInternalServerError, codeInternal, "internal server error", nil)
	}
}

// respondBindError reports a request body or query that could not be
// decoded or failed its binding tags.
func (a *API) respondBindError(c *gin.Context, err error) {
	var fieldErrs validator.ValidationErrors
	if errors.As(err, &fieldErrs) {
		problems := make([]service.Problem, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			reason := fe.Tag()
			if fe.Param() != "" {
				reason += "=" + fe.Param()
			}
			problems = append(problems, service.Problem{Field: fe.Field(), Reason: reason})
		}
		a.writeError(c, http.StatusBadRequest, codeValidation, "request failed validation", problems)
		return
	}
	a.writeError(c, http.StatusBadRequest, codeBadRequest, err.Error(), nil)
}

func (a *API) writeError(c *gin.Context, status int, code string, message string, details any) {
	c.AbortWithStatusJSON(status, errorResponse{
		Code:      code,
		Message:   message,
		Details:   details,
		Timestamp: a.now().UTC().Format(time.RFC3339),
		Path:      c.Request.URL.Path,
	})
}
