package http

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/deed-approval/internal/domain/errs"
)

// Response represents a standard JSON response
type Response struct {
	Success bool       `json:"success"`
	Data    any        `json:"data,omitempty"`
	Error   *ErrorBody `json:"error,omitempty"`
}

// ErrorBody carries the machine-readable kind and the human-readable reason of a failure
type ErrorBody struct {
	Kind   string `json:"kind"`
	Reason string `json:"reason"`
}

var kindStatus = map[errs.Kind]int{
	errs.KindValidation:         http.StatusBadRequest,
	errs.KindUnauthorized:       http.StatusForbidden,
	errs.KindPreconditionFailed: http.StatusPreconditionFailed,
	errs.KindConflict:           http.StatusConflict,
	errs.KindAlreadyLocked:      http.StatusLocked,
	errs.KindNotFound:           http.StatusNotFound,
	errs.KindStorage:            http.StatusServiceUnavailable,
	errs.KindTimeout:            http.StatusGatewayTimeout,
}

// statusFor maps an error kind to its HTTP status
func statusFor(kind errs.Kind) int {
	if status, ok := kindStatus[kind]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// writeError renders err in the response envelope. Storage details stay in the log.
func (h *Handlers) writeError(c *gin.Context, err error) {
	kind := errs.KindOf(err)
	reason := errs.ReasonOf(err)

	if kind == errs.KindStorage || kind == errs.KindTimeout {
		h.logger.Error("Request failed", "path", c.FullPath(), "kind", kind, "error", err)
	}

	c.JSON(statusFor(kind), Response{
		Success: false,
		Error:   &ErrorBody{Kind: string(kind), Reason: reason},
	})
}

func (h *Handlers) badRequest(c *gin.Context, reason string) {
	c.JSON(http.StatusBadRequest, Response{
		Success: false,
		Error:   &ErrorBody{Kind: string(errs.KindValidation), Reason: reason},
	})
}
