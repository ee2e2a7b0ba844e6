package engine

import (
	"context"
	"fmt"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const defaultActivityTimeout = 30 * time.Second

// ActivityOptions declares an activity's timeout, retry policy and
// cost contribution. Every invocation must pass one; timeouts range
// from seconds for health checks to an hour for bulk work.
type ActivityOptions struct {
	Timeout      time.Duration
	RetryPolicy  domain.RetryPolicy
	CostEstimate float64
}

// Context is a workflow's handle to the engine. Activity boundaries
// are the only suspension points; the workflow must not hold locks,
// connections or other external resources across them, because the
// activity may run on any worker.
type Context struct {
	inst   *instance
	engine *Engine
}

func (c *Context) Context() context.Context {
	return c.inst.ctx
}

func (c *Context) WorkflowID() string {
	return c.inst.workflowID
}

func (c *Context) Logger() zerolog.Logger {
	return log.With().
		Str("workflow_id", c.inst.workflowID).
		Str("workflow_name", c.inst.name).
		Str("run_id", c.inst.runID).
		Logger()
}

// SetTotalSteps sizes the progress report upfront so partially failed
// runs show how far they got.
func (c *Context) SetTotalSteps(total int) {
	c.inst.setTotalSteps(total)
}

func (c *Context) SetQueryHandler(queryType string, handler func(args any) (any, error)) {
	c.inst.setQueryHandler(queryType, handler)
}

// SignalChannel returns the buffered channel signals for name are
// delivered on.
func (c *Context) SignalChannel(name string) <-chan any {
	return c.inst.signalChannel(name)
}

// ExecuteActivity runs fn on the engine's worker pool with the
// declared timeout and retry policy. It is the workflow's suspension
// point: a pending termination takes effect here, before the activity
// is scheduled.
func ExecuteActivity[T any](c *Context, name string, opts ActivityOptions, fn func(ctx context.Context) (T, error)) (T, error) {
	var zero T

	if reason, ok := c.inst.terminated(); ok {
		return zero, fmt.Errorf("%w: %s", ErrWorkflowTerminated, reason)
	}

	c.inst.beginStep()

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = defaultActivityTimeout
	}

	policy := opts.RetryPolicy
	if policy.MaximumAttempts <= 0 {
		policy = domain.DefaultRetryPolicy()
	}

	logger := c.Logger().With().Str("activity", name).Logger()

	var lastErr error

	interval := policy.InitialInterval
	if interval <= 0 {
		interval = time.Second
	}

	for attempt := 1; attempt <= policy.MaximumAttempts; attempt++ {
		// Acquire a worker slot; termination can pre-empt the wait.
		select {
		case c.engine.slots <- struct{}{}:
		case <-c.inst.ctx.Done():
			reason, _ := c.inst.terminated()
			return zero, fmt.Errorf("%w: %s", ErrWorkflowTerminated, reason)
		}

		activityCtx, cancel := context.WithTimeout(c.inst.ctx, timeout)
		result, err := runActivity(activityCtx, fn)
		cancel()
		<-c.engine.slots

		if err == nil {
			c.inst.completeStep(opts.CostEstimate)
			c.engine.persistProgress(c.inst)

			return result, nil
		}

		lastErr = err

		if reason, ok := c.inst.terminated(); ok {
			c.inst.failStep(name, opts.CostEstimate)
			c.engine.persistProgress(c.inst)

			return zero, fmt.Errorf("%w: %s", ErrWorkflowTerminated, reason)
		}

		if !retryable(err, policy) {
			logger.Error().Err(err).Int("attempt", attempt).Msg("Activity failed with non-retryable error")
			break
		}

		if attempt == policy.MaximumAttempts {
			logger.Error().Err(err).Int("attempt", attempt).Msg("Activity exhausted retry attempts")
			break
		}

		logger.Warn().Err(err).Int("attempt", attempt).Dur("backoff", interval).Msg("Activity failed, retrying")

		select {
		case <-time.After(interval):
		case <-c.inst.ctx.Done():
			reason, _ := c.inst.terminated()
			return zero, fmt.Errorf("%w: %s", ErrWorkflowTerminated, reason)
		}

		interval = nextInterval(interval, policy)
	}

	c.inst.failStep(name, opts.CostEstimate)
	c.engine.persistProgress(c.inst)

	return zero, lastErr
}

// runActivity converts a panic in the activity body into an error so
// the retry policy decides its fate like any other failure.
func runActivity[T any](ctx context.Context, fn func(ctx context.Context) (T, error)) (result T, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("activity panicked: %v", r)
		}
	}()

	return fn(ctx)
}

// Ambiguous failures (timeouts included) are retried: the engine
// cannot know whether the side effect landed, so activities must be
// idempotent. Only errors on the policy's allowlist short-circuit.
func retryable(err error, policy domain.RetryPolicy) bool {
	errType := domain.ErrorType(err)

	for _, nonRetryable := range policy.NonRetryableErrors {
		if errType == nonRetryable {
			return false
		}
	}

	return true
}

func nextInterval(current time.Duration, policy domain.RetryPolicy) time.Duration {
	coefficient := policy.BackoffCoefficient
	if coefficient < 1 {
		coefficient = 2
	}

	next := time.Duration(float64(current) * coefficient)

	if policy.MaxInterval > 0 && next > policy.MaxInterval {
		next = policy.MaxInterval
	}

	return next
}

func (e *Engine) persistProgress(inst *instance) {
	if e.recorder == nil {
		return
	}

	if err := e.recorder.Update(context.Background(), inst.snapshot()); err != nil {
		log.Debug().Err(err).Str("workflow_id", inst.workflowID).Msg("Failed to persist execution progress")
	}
}
