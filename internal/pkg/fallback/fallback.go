// Package fallback runs a set of independent attempts and applies a
// partial-success policy: every attempt settles (success, error, or timeout)
// before anyone looks at the outcomes, and one failure never cancels its
// siblings.
package fallback

import (
	"context"
	"sync"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type Attempt[T any] struct {
	Name string
	Run  func(ctx context.Context) (T, error)
}

type Outcome[T any] struct {
	Name  string
	Value T
	Err   error
}

// SettleAll runs every attempt concurrently, each under its own timeout, and
// returns the outcomes in attempt order. A timed-out attempt settles with
// its context error, same as any other failure.
func SettleAll[T any](ctx context.Context, timeout time.Duration, attempts []Attempt[T]) []Outcome[T] {
	outcomes := make([]Outcome[T], len(attempts))
	var wg sync.WaitGroup
	for i, attempt := range attempts {
		wg.Add(1)
		go func(i int, attempt Attempt[T]) {
			defer wg.Done()
			attemptCtx := ctx
			if timeout > 0 {
				var cancel context.CancelFunc
				attemptCtx, cancel = context.WithTimeout(ctx, timeout)
				defer cancel()
			}
			value, err := attempt.Run(attemptCtx)
			outcomes[i] = Outcome[T]{Name: attempt.Name, Value: value, Err: err}
			if err != nil {
				logutil.GetLogger(ctx).Warn("attempt failed",
					zap.String("name", attempt.Name), zap.Error(err))
			}
		}(i, attempt)
	}
	wg.Wait()
	return outcomes
}

// Succeeded filters the outcomes that settled without error.
func Succeeded[T any](outcomes []Outcome[T]) []Outcome[T] {
	var ok []Outcome[T]
	for _, o := range outcomes {
		if o.Err == nil {
			ok = append(ok, o)
		}
	}
	return ok
}

// Failed filters the outcomes that settled with an error.
func Failed[T any](outcomes []Outcome[T]) []Outcome[T] {
	var failed []Outcome[T]
	for _, o := range outcomes {
		if o.Err != nil {
			failed = append(failed, o)
		}
	}
	return failed
}
