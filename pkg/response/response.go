package response

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/learnhub/backend/internal/apperr"
)

// Body is the standard API response envelope.
type Body struct {
	Success   bool        `json:"success"`
	Data      interface{} `json:"data,omitempty"`
	Error     string      `json:"error,omitempty"`
	Code      string      `json:"code,omitempty"`
	Retryable bool        `json:"retryable,omitempty"`
}

// OK sends a 200 JSON response with data.
func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, Body{Success: true, Data: data})
}

// Created sends a 201 JSON response with data.
func Created(c *gin.Context, data interface{}) {
	c.JSON(http.StatusCreated, Body{Success: true, Data: data})
}

// NoContent sends 204.
func NoContent(c *gin.Context) {
	c.Status(http.StatusNoContent)
}

// BadRequest sends 400 with error message.
func BadRequest(c *gin.Context, err string) {
	c.JSON(http.StatusBadRequest, Body{Success: false, Error: err, Code: "invalid_request"})
}

// Unauthorized sends 401.
func Unauthorized(c *gin.Context, err string) {
	c.JSON(http.StatusUnauthorized, Body{Success: false, Error: err, Code: "unauthorized"})
}

// Forbidden sends 403.
func Forbidden(c *gin.Context, err string) {
	c.JSON(http.StatusForbidden, Body{Success: false, Error: err, Code: "forbidden"})
}

// NotFound sends 404.
func NotFound(c *gin.Context, err string) {
	c.JSON(http.StatusNotFound, Body{Success: false, Error: err, Code: "not_found"})
}

// Internal sends 500.
func Internal(c *gin.Context, err string) {
	c.JSON(http.StatusInternalServerError, Body{Success: false, Error: err, Code: "internal"})
}

// Error writes err using its apperr kind. Untyped errors become a generic 500 so
// storage details never reach the client. The full error is attached to c for
// the request logger.
func Error(c *gin.Context, err error) {
	_ = c.Error(err)
	e, ok := apperr.As(err)
	if !ok {
		Internal(c, "internal error")
		return
	}
	c.JSON(StatusFor(e.Kind), Body{Success: false, Error: e.Message, Code: e.Code, Retryable: e.Retryable()})
}

// StatusFor maps an error kind to its HTTP status.
func StatusFor(k apperr.Kind) int {
	switch k {
	case apperr.KindNotFound:
		return http.StatusNotFound
	case apperr.KindConflict:
		return http.StatusConflict
	case apperr.KindForbidden:
		return http.StatusForbidden
	case apperr.KindInvalid:
		return http.StatusBadRequest
	case apperr.KindUpstreamUnavailable:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}
