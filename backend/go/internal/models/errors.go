package models

import "errors"

var (
	// ErrBackendUnavailable means a key-value or relational store could not be reached.
	ErrBackendUnavailable = errors.New("backend unavailable")
	// ErrLLMCallFailed covers timeouts, non-success responses and unrecoverable output.
	ErrLLMCallFailed = errors.New("llm call failed")
	// ErrParse means text-generation output failed structural validation.
	ErrParse = errors.New("parse error")
	// ErrInvalidInput means a required session or user identifier is missing.
	ErrInvalidInput = errors.New("invalid input")
)

// ErrorKind maps err onto its taxonomy label for logs and metrics.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return "invalid_input"
	case errors.Is(err, ErrParse):
		return "parse_error"
	case errors.Is(err, ErrLLMCallFailed):
		return "llm_call_failed"
	case errors.Is(err, ErrBackendUnavailable):
		return "backend_unavailable"
	default:
		return "internal"
	}
}

// NewErrorInfo builds the structured log payload for err.
func NewErrorInfo(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{}
	}
	return ErrorInfo{Message: err.Error(), Type: ErrorKind(err)}
}
