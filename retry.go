package sagaflow

import "time"

// Retrier supplies the retry policy of a step. RetryPolicy and RetryBuilder
// both implement it, so either can be passed to WithRetry.
type Retrier interface {
	Policy() RetryPolicy
}

// RetryBuilder assembles a RetryPolicy:
//
//	Step(charge, WithRetry(Retry(3).Backoff(100*time.Millisecond).Cap(time.Second)))
//
// Only a step's invoke is retried. Its compensation runs once.
type RetryBuilder struct {
	p RetryPolicy
}

var (
	_ Retrier = RetryBuilder{}
	_ Retrier = RetryPolicy{}
)

// Retry allows attempts invocations in total. Values below 1 mean a single
// attempt.
func Retry(attempts int) RetryBuilder {
	return RetryBuilder{p: RetryPolicy{MaxAttempts: max(attempts, 1)}}
}

// Backoff sets the wait before the first retry. Later waits double unless
// Multiplier says otherwise.
func (b RetryBuilder) Backoff(initial time.Duration) RetryBuilder {
	b.p.InitialBackoff = initial
	return b
}

// Multiplier scales the wait after every retry. 1 keeps it constant.
func (b RetryBuilder) Multiplier(m float64) RetryBuilder {
	b.p.BackoffMultiplier = m
	return b
}

// Cap bounds every wait.
func (b RetryBuilder) Cap(limit time.Duration) RetryBuilder {
	b.p.MaxBackoff = limit
	return b
}

// Constant waits d before every retry.
func (b RetryBuilder) Constant(d time.Duration) RetryBuilder {
	return b.Backoff(d).Multiplier(1).Cap(0)
}

func (b RetryBuilder) Policy() RetryPolicy {
	return b.p
}
