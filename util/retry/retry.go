package retry

import (
	"context"
	"errors"
	"math/rand"
	"time"
)

var (
	// DefaultRetry matches the background-task policy: base 1s, doubling,
	// at most 5 attempts.
	DefaultRetry    = Retry{Base: 1, Cap: 16, Tries: 5}
	ErrOutOfRetries = errors.New("tried too many times")
)

type Retry struct {
	Base  int // Min amount of time to sleep per iteration, in seconds
	Cap   int // Max amount of time to sleep per iteration, in seconds
	Tries int // Number of times to retry
}

func (r Retry) Sleep(i int) {
	// powerInt returns the base-x exponential of y.
	powerInt := func(x, y int) int {
		ret := 1
		for i := 0; i < y; i++ {
			ret *= x
		}
		return ret
	}

	minInt := func(x, y int) int {
		if x < y {
			return x
		}
		return y
	}

	sleepFor := rand.Intn(minInt(r.Cap, r.Base*powerInt(2, i)) + 1)
	time.Sleep(time.Duration(sleepFor) * time.Second)
}

// WaitFor returns the backoff duration for attempt i without sleeping.
func (r Retry) WaitFor(i int) time.Duration {
	powerInt := func(x, y int) int {
		ret := 1
		for i := 0; i < y; i++ {
			ret *= x
		}
		return ret
	}
	wait := r.Base * powerInt(2, i)
	if wait > r.Cap {
		wait = r.Cap
	}
	return time.Duration(wait) * time.Second
}

// RetryFunc runs f until it succeeds, shouldRetry reports the error as
// permanent, or the retry budget is exhausted. Context cancellation stops
// the loop between attempts.
func RetryFunc(ctx context.Context, f func(ctx context.Context) error, shouldRetry func(error) bool, r Retry) error {
	var err error
	for i := 0; i < r.Tries; i++ {
		err = f(ctx)
		if err == nil {
			return nil
		}

		if !shouldRetry(err) {
			return err
		}

		if ctx.Err() != nil {
			return ctx.Err()
		}

		r.Sleep(i)
	}
	return ErrOutOfRetries
}
