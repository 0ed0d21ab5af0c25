package response

import "backend/pkg/apperror"

// Response represents a standard API response format
type Response struct {
	Status     string         `json:"status"`      // "success" or "error"
	StatusCode int            `json:"status_code"` // HTTP status code
	Data       interface{}    `json:"data,omitempty"`
	Error      string         `json:"error,omitempty"`
	ErrorCode  string         `json:"error_code,omitempty"` // Stable domain error code
	Details    map[string]any `json:"details,omitempty"`    // Extra error context (ids, expected vs actual)
}

// Success returns a standard success response wrapping the data
func Success(statusCode int, data interface{}) Response {
	return Response{
		Status:     "success",
		StatusCode: statusCode,
		Data:       data,
	}
}

// Error returns a standard error response wrapping the error message
func Error(statusCode int, err string) Response {
	return Response{
		Status:     "error",
		StatusCode: statusCode,
		Error:      err,
	}
}

// FromError maps a domain error to a response envelope plus its HTTP status.
// Typed apperror values keep their code and context; anything else is a 500.
func FromError(err error) (int, Response) {
	status := apperror.HTTPStatus(err)
	resp := Response{
		Status:     "error",
		StatusCode: status,
		Error:      err.Error(),
	}
	if e, ok := apperror.As(err); ok {
		resp.Error = e.Message
		resp.ErrorCode = e.Code
		resp.Details = e.Context
	}
	return status, resp
}
