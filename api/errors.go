package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/warp/creator-rewards/loyalty"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	Details string `json:"details,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	writeCodedError(w, status, "", message, err)
}

func writeCodedError(w http.ResponseWriter, status int, code, message string, err error) {
	resp := ErrorResponse{Error: message, Code: code}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// statusOf maps the loyalty error taxonomy to an HTTP status.
func statusOf(err error) int {
	switch {
	case errors.Is(err, loyalty.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, loyalty.ErrNotEligible):
		return http.StatusForbidden
	case errors.Is(err, loyalty.ErrConflict):
		return http.StatusConflict
	case errors.Is(err, loyalty.ErrValidation):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}

// writeDomainError renders a service error. Internal errors keep their
// cause out of the response body.
func writeDomainError(w http.ResponseWriter, err error) {
	status := statusOf(err)
	if status == http.StatusInternalServerError {
		writeCodedError(w, status, loyalty.CodeInternal, "Internal error", nil)
		return
	}
	resp := ErrorResponse{Error: err.Error(), Code: loyalty.CodeOf(err)}
	var (
		el *loyalty.EligibilityError
		cf *loyalty.ConflictError
		va *loyalty.ValidationError
	)
	switch {
	case errors.As(err, &el):
		resp.Error = el.Message
	case errors.As(err, &cf):
		resp.Error = cf.Message
	case errors.As(err, &va):
		resp.Error = va.Message
		resp.Details = va.Field
	}
	writeJSON(w, status, resp)
}
