package rpc

import (
	"context"
	"errors"
	"fmt"
)

// Status codes carried by response and stream-close frames. Codes below 128
// are successes, 128-191 are caller errors, 192 and above are server errors.
const (
	/* Non-Errors */

	// StatusOK is an OK status code.
	StatusOK byte = 0

	/* Caller Errors */

	// StatusNotFound means no handler is registered for the method.
	StatusNotFound byte = 128
	// StatusIsStream means a unary request named a streaming method.
	StatusIsStream byte = 129
	// StatusNotStream means a stream request named a unary method.
	StatusNotStream byte = 130
	// StatusInvalidArgument means the request arguments were rejected
	// before any computation took place.
	StatusInvalidArgument byte = 131
	// StatusBodyTooLarge means the request or message body exceeded the
	// server's limit.
	StatusBodyTooLarge byte = 132
	// StatusCanceled means the caller canceled the call.
	StatusCanceled byte = 133
	// StatusDeadlineExceeded means the call did not complete within the
	// caller-supplied deadline.
	StatusDeadlineExceeded byte = 134
	// StatusBadCodec means the request named an unregistered codec.
	StatusBadCodec byte = 135

	// StatusInvalidPreamble means the connection preamble was malformed.
	StatusInvalidPreamble byte = 160
	// StatusBadVersion means the peer speaks an unsupported protocol version.
	StatusBadVersion byte = 161

	/* Server Errors */

	// StatusInternal is an unexpected server-side failure.
	StatusInternal byte = 192
	// StatusUnavailable means the server could not be reached, or is
	// draining for shutdown and no longer dispatching calls.
	StatusUnavailable byte = 193
)

var statusTexts = map[byte]string{
	StatusOK:               "ok",
	StatusNotFound:         "not found",
	StatusIsStream:         "is stream",
	StatusNotStream:        "not stream",
	StatusInvalidArgument:  "invalid argument",
	StatusBodyTooLarge:     "body too large",
	StatusCanceled:         "canceled",
	StatusDeadlineExceeded: "deadline exceeded",
	StatusBadCodec:         "bad codec",
	StatusInvalidPreamble:  "invalid preamble",
	StatusBadVersion:       "bad version",
	StatusInternal:         "internal error",
	StatusUnavailable:      "unavailable",
}

// StatusText returns a human-readable name for the status code.
func StatusText(status byte) string {
	if s, ok := statusTexts[status]; ok {
		return s
	}
	return fmt.Sprintf("status(%d)", status)
}

// Error is a typed call failure carrying the wire status code.
type Error struct {
	Status byte
	Msg    string
}

// Errorf creates an *Error with the given status and formatted message.
func Errorf(status byte, format string, args ...any) *Error {
	return &Error{Status: status, Msg: fmt.Sprintf(format, args...)}
}

func (e *Error) Error() string {
	if e.Msg == "" {
		return StatusText(e.Status)
	}
	return StatusText(e.Status) + ": " + e.Msg
}

// GetError attempts to convert the error into an *Error using errors.As,
// returning nil if the conversion fails.
func GetError(err error) *Error {
	var re *Error
	errors.As(err, &re)
	return re
}

// StatusOf returns the status code carried by err. Context errors map to
// their wire statuses; anything else is StatusInternal.
func StatusOf(err error) byte {
	status, _ := statusFromError(err)
	return status
}

func statusFromError(err error) (byte, string) {
	if re := GetError(err); re != nil {
		return re.Status, re.Msg
	}
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return StatusDeadlineExceeded, "call deadline exceeded"
	case errors.Is(err, context.Canceled):
		return StatusCanceled, "call canceled"
	}
	return StatusInternal, err.Error()
}
