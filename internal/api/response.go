package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gyaneshwarpardhi/tokenstream/internal/stream"
)

// writeJSON encodes v as JSON and writes it with the given status code.
func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorResponse is the standard error envelope.
type errorResponse struct {
	Error    string       `json:"error"`
	Code     stream.Code  `json:"code,omitempty"`
	Class    stream.Class `json:"class,omitempty"`
	StreamID uint64       `json:"stream_id,omitempty"`
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// writeErr maps an engine error to its HTTP status.
func writeErr(w http.ResponseWriter, err error) {
	var se *stream.Error
	if !errors.As(err, &se) {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, statusFor(se.Class()), errorResponse{
		Error:    err.Error(),
		Code:     se.Code,
		Class:    se.Class(),
		StreamID: se.StreamID,
	})
}

func statusFor(c stream.Class) int {
	switch c {
	case stream.ClassValidation:
		return http.StatusBadRequest
	case stream.ClassAuthorization:
		return http.StatusForbidden
	case stream.ClassNotFound:
		return http.StatusNotFound
	case stream.ClassState:
		return http.StatusConflict
	case stream.ClassExternal:
		return http.StatusBadGateway
	case stream.ClassArithmetic:
		return http.StatusUnprocessableEntity
	}
	return http.StatusInternalServerError
}
