package http

import (
	"fmt"
	"net/http"
)

// AppError is an error the API reports to the client with its own status
// and machine-readable code.
type AppError struct {
	Code    string                 `json:"code"`
	Message string                 `json:"message"`
	Field   string                 `json:"field,omitempty"`
	Params  map[string]interface{} `json:"params,omitempty"`
	Status  int                    `json:"-"`
	Err     error                  `json:"-"`
}

func NewAppError(code, field, message string, status int) *AppError {
	return &AppError{Code: code, Field: field, Message: message, Status: status}
}

func (e *AppError) Error() string {
	if e.Err == nil {
		return e.Message
	}
	return e.Message + ": " + e.Err.Error()
}

func (e *AppError) Unwrap() error { return e.Err }

func (e *AppError) WithParam(key string, value interface{}) *AppError {
	if e.Params == nil {
		e.Params = map[string]interface{}{}
	}
	e.Params[key] = value
	return e
}

// WithError keeps the cause for logs. It is never sent to the client.
func (e *AppError) WithError(err error) *AppError {
	e.Err = err
	return e
}

var statusCodes = map[int]string{
	http.StatusBadRequest:          "ERR_BAD_REQUEST",
	http.StatusNotFound:            "ERR_NOT_FOUND",
	http.StatusConflict:            "ERR_CONFLICT",
	http.StatusUnprocessableEntity: "ERR_UNPROCESSABLE",
	http.StatusTooManyRequests:     "ERR_RATE_LIMITED",
	http.StatusInternalServerError: "ERR_INTERNAL",
	http.StatusServiceUnavailable:  "ERR_UNAVAILABLE",
}

// StatusAppError builds an AppError whose code follows from status.
func StatusAppError(status int, message string) *AppError {
	code, ok := statusCodes[status]
	if !ok {
		code = fmt.Sprintf("ERR_HTTP_%d", status)
	}
	return NewAppError(code, "", message, status)
}

func BadRequestError(message string) *AppError {
	return StatusAppError(http.StatusBadRequest, message)
}

func BadRequestErrorf(format string, a ...interface{}) *AppError {
	return BadRequestError(fmt.Sprintf(format, a...))
}

func NotFoundError(message string) *AppError {
	return StatusAppError(http.StatusNotFound, message)
}

func ConflictError(message string) *AppError {
	return StatusAppError(http.StatusConflict, message)
}

func UnprocessableError(message string) *AppError {
	return StatusAppError(http.StatusUnprocessableEntity, message)
}

func TooManyRequestsError(message string) *AppError {
	return StatusAppError(http.StatusTooManyRequests, message)
}

func InternalError(message string) *AppError {
	return StatusAppError(http.StatusInternalServerError, message)
}

func ServiceUnavailableError(message string) *AppError {
	return StatusAppError(http.StatusServiceUnavailable, message)
}
