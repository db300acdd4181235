package api

import (
	"net/http"

	"github.com/go-chi/chi/v5/middleware"

	"costbasis/pkg/portfolio"
)

// Response represents a successful API response with unified format.
type Response struct {
	Code    int    `json:"code"`
	Message string `json:"message,omitempty"`
	Data    any    `json:"data,omitempty"`
}

// ErrorResponse represents an error API response with structured information.
type ErrorResponse struct {
	Code      int    `json:"code"`
	Message   string `json:"message"`
	ErrorCode string `json:"error_code,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeSuccess writes a successful response with data.
func writeSuccess(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, Response{Code: 0, Data: data})
}

// writeSuccessWithMessage writes a successful response with data and message.
func writeSuccessWithMessage(w http.ResponseWriter, message string, data any) {
	writeJSON(w, http.StatusOK, Response{Code: 0, Message: message, Data: data})
}

// writeErrorResponse writes err with the status its portfolio error code maps
// to, or httpStatus when err carries no code.
func writeErrorResponse(w http.ResponseWriter, r *http.Request, httpStatus int, err error) {
	response := ErrorResponse{
		Code:    httpStatus,
		Message: err.Error(),
	}
	if code := portfolio.CodeOf(err); code != "" {
		response.ErrorCode = string(code)
		httpStatus = mapErrorCodeToHTTPStatus(code)
		response.Code = httpStatus
	}
	if r != nil {
		response.RequestID = middleware.GetReqID(r.Context())
	}
	if ew, ok := w.(interface{ SetErrorMessage(string) }); ok {
		ew.SetErrorMessage(response.Message)
	}
	writeJSON(w, httpStatus, response)
}

// mapErrorCodeToHTTPStatus maps portfolio error codes to HTTP status codes.
func mapErrorCodeToHTTPStatus(code portfolio.ErrorCode) int {
	switch code {
	case portfolio.ErrCodeInvalidInput:
		return http.StatusBadRequest
	case portfolio.ErrCodeNotFound:
		return http.StatusNotFound
	case portfolio.ErrCodeUpstream:
		return http.StatusBadGateway
	case portfolio.ErrCodeDatabase, portfolio.ErrCodeInternal:
		return http.StatusInternalServerError
	default:
		return http.StatusInternalServerError
	}
}
