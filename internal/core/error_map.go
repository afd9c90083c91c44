package core

import (
	"context"
	"errors"
	"strings"
)

// CodedError is implemented by domain errors that carry a machine-readable code.
type CodedError interface {
	error
	ErrorCode() string
}

type ErrorInfo struct {
	Code    string
	Message string
}

// MapError assigns a stable code to a tool failure for logs and metrics.
func MapError(err error) ErrorInfo {
	if err == nil {
		return ErrorInfo{Code: "internal_error", Message: "internal server error"}
	}

	msg := err.Error()
	if errors.Is(err, context.DeadlineExceeded) {
		return ErrorInfo{Code: "upstream_timeout", Message: msg}
	}
	if errors.Is(err, context.Canceled) {
		return ErrorInfo{Code: "canceled", Message: msg}
	}

	var coded CodedError
	if errors.As(err, &coded) {
		return ErrorInfo{Code: coded.ErrorCode(), Message: msg}
	}

	lower := strings.ToLower(msg)
	switch {
	case strings.Contains(lower, "missing api credentials"):
		return ErrorInfo{Code: "config_missing_credentials", Message: msg}
	case strings.Contains(lower, "api request failed"):
		return ErrorInfo{Code: "upstream_http_error", Message: msg}
	default:
		return ErrorInfo{Code: "internal_error", Message: msg}
	}
}
