package api

import (
	"context"
	"errors"
	"fmt"
)

// Error carries the HTTP status and the server-provided message for a
// non-2xx response.
type Error struct {
	Status  int
	Message string
}

func (e *Error) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("server returned %d: %s", e.Status, e.Message)
	}
	return fmt.Sprintf("server returned %d", e.Status)
}

// ErrMalformed marks a 2xx response whose body did not match the wire
// contract (missing numeric fields, unparseable fragment). It takes the same
// failure path as a transport error.
var ErrMalformed = errors.New("malformed response")

// IsCanceled reports whether err is a self-initiated cancellation
// (a superseded in-flight request). Cancellations are silent: they must
// never surface as user-visible failures.
func IsCanceled(err error) bool {
	return errors.Is(err, context.Canceled)
}

// IsExpectedRejection reports whether err is a 4xx the client treats as an
// expected outcome rather than a fault, such as undoing with an empty or
// expired undo slot.
func IsExpectedRejection(err error) bool {
	var ae *Error
	return errors.As(err, &ae) && ae.Status >= 400 && ae.Status < 500
}
