package http

import (
	"context"
	"errors"
	"net/http"

	"github.com/fbz-tec/pgxserve/core/exporters"
	"github.com/fbz-tec/pgxserve/core/validation"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/render"
)

// ErrorResponse is the JSON body of every error reply.
type ErrorResponse struct {
	Status    int    `json:"status"`
	Error     string `json:"error"`
	Field     string `json:"field,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// statusFor maps an export error to an HTTP status.
func statusFor(err error) int {
	var (
		verr    *validation.ValidationError
		missing *exporters.MissingOutputError
	)
	switch {
	case errors.As(err, &verr):
		return http.StatusBadRequest
	case errors.As(err, &missing):
		return http.StatusBadGateway
	case errors.Is(err, context.DeadlineExceeded):
		return http.StatusGatewayTimeout
	default:
		return http.StatusInternalServerError
	}
}

func renderError(w http.ResponseWriter, r *http.Request, status int, err error) {
	resp := ErrorResponse{
		Status:    status,
		Error:     err.Error(),
		RequestID: middleware.GetReqID(r.Context()),
	}
	var verr *validation.ValidationError
	if errors.As(err, &verr) {
		resp.Field = verr.Field
	}
	if status >= http.StatusInternalServerError && status != http.StatusBadGateway && status != http.StatusGatewayTimeout {
		resp.Error = http.StatusText(status)
	}
	render.Status(r, status)
	render.JSON(w, r, resp)
}
