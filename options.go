package rudder

import (
	"context"
	"time"

	"github.com/zoobzio/pipz"
)

// notifyID names the terminal notification stage in the pipeline.
const notifyID = "notify-subscribers"

// Option configures the notification pipeline of a Manager. Pipeline
// options wrap subscriber delivery with middleware for retry, timeout,
// circuit breaking, and other reliability patterns.
//
// Options wrap inside-out: the first option sits closest to subscriber
// delivery and the last option outermost. New(w, WithMiddleware(m),
// WithRetry(3)) retries the middleware and delivery together, while the
// reverse order retries only delivery.
//
// Instance configuration (debounce, codec, cache TTLs, etc.) is handled via
// chainable methods on the Manager before calling Start().
type Option func(pipz.Chainable[*Request]) pipz.Chainable[*Request]

// buildPipeline wraps a terminal with pipeline options, first option
// innermost.
func buildPipeline(terminal pipz.Chainable[*Request], opts []Option) pipz.Chainable[*Request] {
	pipeline := terminal
	for _, opt := range opts {
		pipeline = opt(pipeline)
	}
	return pipeline
}

// WithRetry wraps the pipeline with retry logic.
// Failed notification runs are retried immediately up to maxAttempts times.
// For exponential backoff between retries, use WithBackoff instead.
func WithRetry(maxAttempts int) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewRetry("retry", p, maxAttempts)
	}
}

// WithBackoff wraps the pipeline with exponential backoff retry logic.
// Failed runs are retried with increasing delays: baseDelay, 2*baseDelay,
// 4*baseDelay, etc.
func WithBackoff(maxAttempts int, baseDelay time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewBackoff("backoff", p, maxAttempts, baseDelay)
	}
}

// WithTimeout wraps the pipeline with a timeout.
// If notification takes longer than the specified duration, the run fails.
// The snapshot swap has already committed; a timeout here never rolls back
// configuration state.
func WithTimeout(d time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewTimeout("timeout", p, d)
	}
}

// WithCircuitBreaker wraps the pipeline with circuit breaker protection.
// After 'failures' consecutive failures, the circuit opens and rejects
// further runs until 'recovery' time has passed.
func WithCircuitBreaker(failures int, recovery time.Duration) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewCircuitBreaker("circuit-breaker", p, failures, recovery)
	}
}

// WithErrorHandler adds error observation to the pipeline.
// Errors are passed to the handler for logging, metrics, or alerting,
// but the error still propagates. Use this for observability, not recovery.
func WithErrorHandler(handler pipz.Chainable[*pipz.Error[*Request]]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		return pipz.NewHandle("error-handler", p, handler)
	}
}

// WithMiddleware wraps the pipeline with a sequence of processors.
// Processors execute in order, with subscriber delivery last.
//
// Use the Use* functions to create processors for common patterns,
// or provide custom pipz.Chainable implementations directly.
func WithMiddleware(processors ...pipz.Chainable[*Request]) Option {
	return func(p pipz.Chainable[*Request]) pipz.Chainable[*Request] {
		all := make([]pipz.Chainable[*Request], 0, len(processors)+1)
		all = append(all, processors...)
		all = append(all, p)
		return pipz.NewSequence("middleware", all...)
	}
}

// UseTransform creates a processor that transforms the request.
// Cannot fail. Use for pure transformations that always succeed.
func UseTransform(name string, fn func(context.Context, *Request) *Request) pipz.Chainable[*Request] {
	return pipz.Transform(pipz.Name(name), fn)
}

// UseApply creates a processor that can transform the request and fail.
func UseApply(name string, fn func(context.Context, *Request) (*Request, error)) pipz.Chainable[*Request] {
	return pipz.Apply(pipz.Name(name), fn)
}

// UseEffect creates a processor that performs a side effect.
// The request passes through unchanged. Use for logging, metrics,
// or notifications that should not affect the change delivery.
func UseEffect(name string, fn func(context.Context, *Request) error) pipz.Chainable[*Request] {
	return pipz.Effect(pipz.Name(name), fn)
}
