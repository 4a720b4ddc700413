package api

import (
	"encoding/json"
	"net/http"
	"strconv"

	"genestore/internal/auth"
	"genestore/internal/errors"
)

// ErrorResponse represents an HTTP error response
type ErrorResponse struct {
	Error   string      `json:"error"`
	Code    string      `json:"code"`
	Details interface{} `json:"details,omitempty"`
}

// WriteError writes an error response to the HTTP response writer
func WriteError(w http.ResponseWriter, err error, status int) {
	resp := ErrorResponse{
		Error: err.Error(),
		Code:  "INTERNAL_ERROR",
	}

	var se *errors.StoreError
	if errors.As(err, &se) {
		resp.Error = se.Message
		resp.Code = string(se.Code)
		resp.Details = se.Details
		if rl, ok := se.Details.(auth.RateLimitDetails); ok {
			w.Header().Set("Retry-After", strconv.Itoa(rl.RetryAfter))
		}
	}

	WriteJSON(w, resp, status)
}

// WriteStoreError writes err with its status derived from the error code.
func WriteStoreError(w http.ResponseWriter, err error) {
	WriteError(w, err, StatusFor(err))
}

// writeSequenceError is WriteStoreError for the sequence routes, where a
// malformed hash or body is 422.
func writeSequenceError(w http.ResponseWriter, err error) {
	status := StatusFor(err)
	if errors.CodeOf(err) == errors.InvalidModel {
		status = http.StatusUnprocessableEntity
	}
	WriteError(w, err, status)
}

// StatusFor maps an error to its HTTP status.
func StatusFor(err error) int {
	var se *errors.StoreError
	if errors.As(err, &se) {
		if _, ok := se.Details.(auth.RateLimitDetails); ok {
			return http.StatusTooManyRequests
		}
	}
	return MapErrorToStatus(errors.CodeOf(err))
}

// MapErrorToStatus maps store error codes to HTTP status codes
func MapErrorToStatus(code errors.ErrorCode) int {
	switch code {
	case errors.DoesNotExist:
		return http.StatusNotFound // 404
	case errors.AlreadyExists:
		return http.StatusConflict // 409
	case errors.InvalidModel:
		return http.StatusBadRequest // 400
	case errors.NoIdProvided:
		return http.StatusBadRequest // 400
	case errors.InvalidSessionKey:
		return http.StatusUnauthorized // 401
	case errors.NotAllowed:
		return http.StatusForbidden // 403
	case errors.InvalidRoute:
		return http.StatusNotFound // 404
	default:
		return http.StatusInternalServerError // 500
	}
}

// WriteJSON writes a JSON response
func WriteJSON(w http.ResponseWriter, data interface{}, status int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// BadRequest writes a 400 Bad Request error
func BadRequest(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.InvalidModel, message, nil), http.StatusBadRequest)
}

// NotFound writes a 404 for an unknown route or method.
func NotFound(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.InvalidRoute, message, nil), http.StatusNotFound)
}

// InternalError writes a 500 Internal Server Error
func InternalError(w http.ResponseWriter, message string) {
	WriteError(w, errors.New(errors.IOError, message, nil), http.StatusInternalServerError)
}
