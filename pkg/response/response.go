package response

import "backend/pkg/apperr"

// Response is the standard API envelope returned by every endpoint.
type Response struct {
	Success bool         `json:"success"`
	Data    interface{}  `json:"data"`
	Error   *ErrorDetail `json:"error"`
	Meta    interface{}  `json:"meta"`
}

// ErrorDetail carries the machine-readable code plus a human message.
type ErrorDetail struct {
	Code    string      `json:"code"`
	Message string      `json:"message"`
	Details interface{} `json:"details,omitempty"`
}

// PageMeta describes pagination state for list responses.
type PageMeta struct {
	Page       int   `json:"page"`
	Limit      int   `json:"limit"`
	Total      int64 `json:"total"`
	TotalPages int   `json:"total_pages"`
}

// Success wraps a payload in the success envelope.
func Success(data interface{}) Response {
	return Response{Success: true, Data: data}
}

// SuccessWithMeta wraps a payload plus meta (e.g. pagination) in the envelope.
func SuccessWithMeta(data, meta interface{}) Response {
	return Response{Success: true, Data: data, Meta: meta}
}

// Error builds an error envelope from code and message.
func Error(code, message string) Response {
	return Response{Success: false, Error: &ErrorDetail{Code: code, Message: message}}
}

// ErrorWithDetails builds an error envelope carrying structured detail.
func ErrorWithDetails(code, message string, details interface{}) Response {
	return Response{Success: false, Error: &ErrorDetail{Code: code, Message: message, Details: details}}
}

// FromError builds an error envelope from a typed application error.
// Internal errors are reported with a generic message only.
func FromError(err error) Response {
	appErr := apperr.From(err)
	if appErr.Kind == apperr.KindInternal {
		return Error(apperr.CodeInternal, "internal server error")
	}
	return ErrorWithDetails(appErr.Code, appErr.Message, appErr.Details)
}

// NewPageMeta computes pagination meta from page parameters and a total count.
func NewPageMeta(page, limit int, total int64) PageMeta {
	totalPages := 0
	if limit > 0 {
		totalPages = int((total + int64(limit) - 1) / int64(limit))
	}
	return PageMeta{Page: page, Limit: limit, Total: total, TotalPages: totalPages}
}
