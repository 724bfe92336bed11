package api

import (
	"context"
	"errors"
)

// retryDo runs fn up to 1+extra times with no backoff between attempts.
// Client errors (4xx) and cancellations are returned immediately: a rejected
// payload will not become valid by resending, and a superseded request must
// stay silent. Transport errors, 5xx, and malformed responses are retried.
func retryDo(ctx context.Context, extra int, fn func(context.Context) error) error {
	var err error
	for attempt := 0; attempt <= extra; attempt++ {
		if cerr := ctx.Err(); cerr != nil {
			return cerr
		}
		err = fn(ctx)
		if err == nil {
			return nil
		}
		if IsCanceled(err) || errors.Is(err, context.DeadlineExceeded) {
			return err
		}
		var ae *Error
		if errors.As(err, &ae) && ae.Status < 500 {
			return err
		}
	}
	return err
}
