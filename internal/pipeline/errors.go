package pipeline

import (
	"errors"
	"fmt"
)

// Kind classifies a failure for the client. Values are part of the wire
// format.
type Kind string

const (
	KindInvalidInput      Kind = "InvalidInput"
	KindPayloadTooLarge   Kind = "PayloadTooLarge"
	KindUnsupportedFormat Kind = "UnsupportedFormat"
	KindDecodeFailure     Kind = "DecodeFailure"
	KindEngineFailure     Kind = "OcrEngineFailure"
	KindTimeout           Kind = "OcrTimeout"
)

// Error carries a client-safe Message next to the internal cause. Only Kind
// and Message may be shown to clients.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func newError(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// InvalidInput builds an InvalidInput error for handlers that reject a
// request before it reaches the pipeline.
func InvalidInput(msg string, err error) *Error {
	return newError(KindInvalidInput, msg, err)
}

// PayloadTooLarge reports a body over the configured upload limit.
func PayloadTooLarge(limit int64) *Error {
	return newError(KindPayloadTooLarge, fmt.Sprintf("request body exceeds %d bytes", limit), nil)
}

// AsError returns err as an *Error. Errors that did not come from the
// pipeline are reported as engine failures with a generic message.
func AsError(err error) *Error {
	var e *Error
	if errors.As(err, &e) {
		return e
	}
	return newError(KindEngineFailure, "text recognition failed", err)
}

// KindOf is a shorthand for AsError(err).Kind.
func KindOf(err error) Kind {
	return AsError(err).Kind
}
