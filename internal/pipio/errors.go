package pipio

import (
	"errors"
	"fmt"
	"strings"
)

// Kind classifies failures surfaced by the upstream client and the layers built on it.
type Kind string

const (
	KindTransport         Kind = "transport"
	KindMalformedResponse Kind = "malformed_response"
	KindUnrecognizedShape Kind = "unrecognized_shape"
	KindValidation        Kind = "validation"
	KindNotFound          Kind = "not_found"
)

var (
	ErrTransport         = errors.New("upstream transport failure")
	ErrMalformedResponse = errors.New("malformed upstream response")
	ErrUnrecognizedShape = errors.New("unrecognized response shape")
	ErrValidation        = errors.New("validation failed")
	ErrNotFound          = errors.New("not found")
)

func (k Kind) sentinel() error {
	switch k {
	case KindTransport:
		return ErrTransport
	case KindMalformedResponse:
		return ErrMalformedResponse
	case KindUnrecognizedShape:
		return ErrUnrecognizedShape
	case KindValidation:
		return ErrValidation
	case KindNotFound:
		return ErrNotFound
	default:
		return nil
	}
}

// Error carries the failure kind plus whatever upstream context was available.
type Error struct {
	Kind       Kind
	Endpoint   string
	StatusCode int
	Snippet    string
	Retryable  bool
	Err        error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Endpoint != "" {
		b.WriteString(e.Endpoint)
		b.WriteString(": ")
	}
	b.WriteString(string(e.Kind))
	if e.StatusCode != 0 {
		fmt.Fprintf(&b, " (status %d)", e.StatusCode)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() error { return e.Err }

// Is lets errors.Is match an *Error against the sentinel of its kind.
func (e *Error) Is(target error) bool {
	s := e.Kind.sentinel()
	return s != nil && target == s
}

// KindOf reports the kind of err, or "" when err is nil or unclassified.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var pe *Error
	if errors.As(err, &pe) {
		return pe.Kind
	}
	for _, k := range []Kind{KindTransport, KindMalformedResponse, KindUnrecognizedShape, KindValidation, KindNotFound} {
		if errors.Is(err, k.sentinel()) {
			return k
		}
	}
	return ""
}

// Validationf builds a validation error for caller-supplied input.
func Validationf(format string, args ...any) error {
	return &Error{Kind: KindValidation, Err: fmt.Errorf(format, args...)}
}

// NotFoundf builds a not-found error for an unknown identifier.
func NotFoundf(format string, args ...any) error {
	return &Error{Kind: KindNotFound, Err: fmt.Errorf(format, args...)}
}
