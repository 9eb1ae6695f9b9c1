package browser

import (
	"context"
	"errors"
	"strings"
	"time"
)

const (
	DefaultTimeout           = 5 * time.Second
	DefaultNavigationTimeout = 30 * time.Second
	pollInterval             = 100 * time.Millisecond
)

var ErrTimeout = errors.New("timed out")

// poll runs check until it reports done, returns an error, or the timeout
// elapses. The first check runs immediately.
func poll(ctx context.Context, timeout time.Duration, check func(ctx context.Context) (bool, error)) error {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	deadline := time.NewTimer(timeout)
	defer deadline.Stop()
	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		done, err := check(ctx)
		if err != nil {
			return err
		}
		if done {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-deadline.C:
			return ErrTimeout
		case <-ticker.C:
		}
	}
}

// contextLoss lists protocol errors raised when a navigation or re-render
// swaps out the execution context or node under a pending call.
var contextLoss = []string{
	"Execution context was destroyed",
	"Cannot find context with specified id",
	"No node with given id found",
	"Could not find node with given id",
	"Could not find object with given id",
	"Inspected target navigated or closed",
}

// transient reports whether err is a protocol error worth retrying, such as
// an evaluation racing a navigation. A dead session or target is not.
func transient(err error) bool {
	var cdpErr *CDPError
	if !errors.As(err, &cdpErr) {
		return false
	}
	for _, msg := range contextLoss {
		if strings.Contains(cdpErr.Message, msg) {
			return true
		}
	}
	return false
}
