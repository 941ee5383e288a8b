package transport

import (
	"context"
	stderrors "errors"
	"net"
	"os"

	ljerrors "github.com/genba/labjackgo/internal/errors"
)

// Disposition tells a caller what to do after a failed write/read cycle.
type Disposition int

const (
	// Fatal means surface the error.
	Fatal Disposition = iota
	// RetryOnce means the link is usable again and the cycle may be redone once.
	RetryOnce
)

func (d Disposition) String() string {
	if d == RetryOnce {
		return "retry-once"
	}
	return "fatal"
}

// Recoverable reports a failed read after which the binding restored its
// connection. Err is the original failure.
type Recoverable struct {
	Err error
}

func (r *Recoverable) Error() string {
	return "recovered after: " + r.Err.Error()
}

func (r *Recoverable) Unwrap() error {
	return r.Err
}

// Classify decides whether a failed cycle may be retried.
func Classify(err error) Disposition {
	if err == nil {
		return Fatal
	}
	var rec *Recoverable
	if stderrors.As(err, &rec) {
		return RetryOnce
	}
	if ljerrors.Is(err, ljerrors.DeviceReportedBadChecksum) {
		return RetryOnce
	}
	return Fatal
}

// Original strips a Recoverable wrapper, returning the failure that caused it.
func Original(err error) error {
	var rec *Recoverable
	if stderrors.As(err, &rec) {
		return rec.Err
	}
	return err
}

// mapNetError converts socket errors into kinded errors. Anything that is
// not a deadline expiry is treated as a lost connection.
func mapNetError(op string, err error) error {
	if err == nil {
		return nil
	}
	var ne net.Error
	if (stderrors.As(err, &ne) && ne.Timeout()) ||
		stderrors.Is(err, os.ErrDeadlineExceeded) ||
		stderrors.Is(err, context.DeadlineExceeded) {
		return ljerrors.New(ljerrors.Timeout, op, err)
	}
	return ljerrors.New(ljerrors.ConnectionReset, op, err)
}
