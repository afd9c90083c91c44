package gnucleus

import (
	"encoding/json"
	"errors"
)

// FailureKind classifies why a call produced no usable upstream payload.
type FailureKind string

const (
	KindConfiguration FailureKind = "configuration"
	KindTransport     FailureKind = "transport"
	KindUnexpected    FailureKind = "unexpected"
)

const (
	msgMissingCredentials = "Configuration error: Missing API credentials"
	msgUnexpected         = "An unexpected error occurred"
	msgRequestFailedFmt   = "API request failed: %s"
)

// Failure is the locally produced stand-in for an upstream response. Message
// is what the end user sees; Err keeps the underlying cause for logs only.
type Failure struct {
	Kind       FailureKind
	Message    string
	StatusCode int
	Err        error
}

func (f *Failure) Error() string { return f.Message }

func (f *Failure) Unwrap() error { return f.Err }

// ErrorCode implements core.CodedError.
func (f *Failure) ErrorCode() string {
	switch f.Kind {
	case KindConfiguration:
		return "config_missing_credentials"
	case KindTransport:
		if f.StatusCode != 0 {
			return "upstream_http_error"
		}
		return "upstream_unreachable"
	default:
		return "internal_error"
	}
}

// MarshalJSON renders the failure in the upstream failure shape.
func (f *Failure) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Message string `json:"message"`
	}{Message: f.Message})
}

// AsFailure converts any error into a *Failure, treating foreign errors as
// unexpected.
func AsFailure(err error) *Failure {
	if err == nil {
		return nil
	}
	var f *Failure
	if errors.As(err, &f) {
		return f
	}
	return &Failure{Kind: KindUnexpected, Message: msgUnexpected, Err: err}
}
