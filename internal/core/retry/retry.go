// Package retry runs fallible stage operations with a bounded number of
// attempts and a fixed delay between them.
//
// An operation is attempted once, then retried up to maxRetries more times.
// Errors and panics from the operation never escape: the caller receives an
// Outcome describing how many attempts were made and the last error seen.
//
//	exec := retry.NewExecutor()
//	out := exec.Execute(ctx, "draft", func(ctx context.Context) error {
//	    return pipeline.Draft(ctx, 7)
//	}, 30, 30*time.Second)
//	if !out.OK() {
//	    slog.Error("draft exhausted", "attempts", out.Attempts, "error", out.Err)
//	}
package retry

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	retrygo "github.com/avast/retry-go/v4"
)

// ErrPanic wraps a value recovered from a panicking operation.
var ErrPanic = errors.New("operation panicked")

// Operation is a single attempt of a stage.
type Operation func(ctx context.Context) error

// Observer is notified after every attempt.
type Observer func(name string, attempt int, err error, elapsed time.Duration)

// Timer abstracts the wait between attempts.
type Timer interface {
	After(time.Duration) <-chan time.Time
}

// Outcome is the typed result of Execute.
type Outcome struct {
	Attempts  int
	Err       error
	Cancelled bool
	Elapsed   time.Duration
}

// OK reports whether an attempt succeeded.
func (o Outcome) OK() bool {
	return o.Err == nil
}

// Executor runs operations with retry.
type Executor struct {
	log      *slog.Logger
	timer    Timer
	observer Observer
}

// Option configures an Executor.
type Option func(*Executor)

// WithLogger sets the logger used for attempt logs.
func WithLogger(l *slog.Logger) Option {
	return func(e *Executor) {
		if l != nil {
			e.log = l
		}
	}
}

// WithTimer replaces the wall-clock timer.
func WithTimer(t Timer) Option {
	return func(e *Executor) {
		e.timer = t
	}
}

// WithObserver registers a per-attempt callback.
func WithObserver(o Observer) Option {
	return func(e *Executor) {
		e.observer = o
	}
}

// NewExecutor creates an Executor.
func NewExecutor(opts ...Option) *Executor {
	e := &Executor{log: slog.Default()}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Execute runs op until it succeeds or maxRetries additional attempts after
// the first have failed. A negative maxRetries is treated as zero.
func (e *Executor) Execute(
	ctx context.Context,
	name string,
	op Operation,
	maxRetries int,
	delay time.Duration,
) Outcome {
	if maxRetries < 0 {
		maxRetries = 0
	}
	maxAttempts := maxRetries + 1
	start := time.Now()

	attempts := 0
	opts := []retrygo.Option{
		retrygo.Context(ctx),
		retrygo.Attempts(uint(maxAttempts)),
		retrygo.Delay(delay),
		retrygo.DelayType(retrygo.FixedDelay),
		retrygo.LastErrorOnly(true),
		retrygo.OnRetry(func(n uint, err error) {
			e.log.Warn("Attempt failed",
				"op", name,
				"attempt", n+1,
				"max_attempts", maxAttempts,
				"error", err,
			)
		}),
	}
	if e.timer != nil {
		opts = append(opts, retrygo.WithTimer(e.timer))
	}

	err := retrygo.Do(func() error {
		if err := ctx.Err(); err != nil {
			return retrygo.Unrecoverable(err)
		}
		attempts++
		attemptStart := time.Now()
		err := safeCall(ctx, op)
		if e.observer != nil {
			e.observer(name, attempts, err, time.Since(attemptStart))
		}
		if err == nil && attempts > 1 {
			e.log.Info("Attempt succeeded after retry", "op", name, "attempt", attempts)
		}
		return err
	}, opts...)

	out := Outcome{
		Attempts: attempts,
		Err:      err,
		Elapsed:  time.Since(start),
	}
	if err != nil && ctx.Err() != nil {
		out.Cancelled = true
	}
	if err != nil && !out.Cancelled {
		e.log.Error("Retries exhausted",
			"op", name,
			"attempts", attempts,
			"error", err,
		)
	}
	return out
}

func safeCall(ctx context.Context, op Operation) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", ErrPanic, r)
		}
	}()
	return op(ctx)
}
