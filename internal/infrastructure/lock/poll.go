package lock

import (
	"context"
	"errors"
	"time"

	backoff "github.com/cenkalti/backoff/v4"
)

// ErrLeaseLost is returned by Unlock when the lease ran out before the
// holder released it.
var ErrLeaseLost = errors.New("lock lease lost")

var errBusy = errors.New("lock busy")

func newPollBackOff(wait time.Duration) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 5 * time.Millisecond
	b.MaxInterval = 100 * time.Millisecond
	b.MaxElapsedTime = wait
	return b
}

// poll calls try until it reports true, returns an error, or wait elapses.
// Running out of wait yields (false, nil).
func poll(ctx context.Context, wait time.Duration, try func(context.Context) (bool, error)) (bool, error) {
	if wait <= 0 {
		return try(ctx)
	}
	op := func() error {
		ok, err := try(ctx)
		if err != nil {
			return backoff.Permanent(err)
		}
		if !ok {
			return errBusy
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithContext(newPollBackOff(wait), ctx))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errBusy):
		return false, nil
	default:
		return false, err
	}
}
