package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func fastPolicy(attempts int) domain.RetryPolicy {
	return domain.RetryPolicy{
		InitialInterval:    time.Millisecond,
		MaxInterval:        5 * time.Millisecond,
		BackoffCoefficient: 2,
		MaximumAttempts:    attempts,
		NonRetryableErrors: []string{domain.ErrorTypeCredentialValidation, domain.ErrorTypeApplication},
	}
}

func TestStartWorkflowDedupesInFlightID(t *testing.T) {
	e := New(Options{})

	release := make(chan struct{})
	var starts atomic.Int32

	e.RegisterWorkflow("slow", func(wc *Context, args any) (any, error) {
		starts.Add(1)
		<-release
		return "done", nil
	})

	runID1, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "slow", ID: "op-1"})
	require.NoError(t, err)

	runID2, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "slow", ID: "op-1"})
	require.NoError(t, err)

	assert.Equal(t, runID1, runID2)

	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := e.WaitForCompletion(ctx, "op-1")
	require.NoError(t, err)
	assert.Equal(t, "done", result)
	assert.Equal(t, int32(1), starts.Load())
}

func TestStartWorkflowUnknownName(t *testing.T) {
	e := New(Options{})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "nope", ID: "x"})
	assert.ErrorIs(t, err, ErrWorkflowNotRegistered)
}

func TestActivityRetriesUntilSuccess(t *testing.T) {
	e := New(Options{})

	var attempts atomic.Int32

	e.RegisterWorkflow("flaky", func(wc *Context, args any) (any, error) {
		return ExecuteActivity(wc, "flaky_call", ActivityOptions{
			Timeout:     time.Second,
			RetryPolicy: fastPolicy(5),
		}, func(ctx context.Context) (string, error) {
			if attempts.Add(1) < 3 {
				return "", domain.NewTransientConnectorError(domain.ConnectorKind_Generic, "call", errors.New("rate limited"))
			}
			return "ok", nil
		})
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "flaky", ID: "flaky-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := e.WaitForCompletion(ctx, "flaky-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(3), attempts.Load())

	status, err := e.GetWorkflowStatus(context.Background(), "flaky-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatus_Completed, status)
}

func TestActivityNonRetryableFailsImmediately(t *testing.T) {
	e := New(Options{})

	var attempts atomic.Int32

	e.RegisterWorkflow("invalid", func(wc *Context, args any) (any, error) {
		return ExecuteActivity(wc, "validate", ActivityOptions{
			Timeout:     time.Second,
			RetryPolicy: fastPolicy(5),
		}, func(ctx context.Context) (bool, error) {
			attempts.Add(1)
			return false, domain.NewCredentialValidationError(domain.ConnectorKind_HubSpot, "bad key")
		})
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "invalid", ID: "invalid-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = e.WaitForCompletion(ctx, "invalid-1")
	require.Error(t, err)

	var validationErr *domain.CredentialValidationError
	assert.ErrorAs(t, err, &validationErr)
	assert.Equal(t, int32(1), attempts.Load())

	status, err := e.GetWorkflowStatus(context.Background(), "invalid-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatus_Failed, status)
}

func TestActivityRetryExhaustion(t *testing.T) {
	e := New(Options{})

	var attempts atomic.Int32

	e.RegisterWorkflow("down", func(wc *Context, args any) (any, error) {
		return ExecuteActivity(wc, "call", ActivityOptions{
			Timeout:     time.Second,
			RetryPolicy: fastPolicy(3),
		}, func(ctx context.Context) (string, error) {
			attempts.Add(1)
			return "", domain.NewTransientConnectorError(domain.ConnectorKind_Generic, "call", errors.New("connection refused"))
		})
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "down", ID: "down-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = e.WaitForCompletion(ctx, "down-1")
	require.Error(t, err)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestTerminateStopsAtNextBoundary(t *testing.T) {
	e := New(Options{})

	entered := make(chan struct{})
	release := make(chan struct{})
	var secondActivityRan atomic.Bool

	e.RegisterWorkflow("long", func(wc *Context, args any) (any, error) {
		_, err := ExecuteActivity(wc, "first", ActivityOptions{Timeout: time.Second, RetryPolicy: fastPolicy(1)}, func(ctx context.Context) (string, error) {
			close(entered)
			<-release
			return "ok", nil
		})
		if err != nil {
			return nil, err
		}

		return ExecuteActivity(wc, "second", ActivityOptions{Timeout: time.Second, RetryPolicy: fastPolicy(1)}, func(ctx context.Context) (string, error) {
			secondActivityRan.Store(true)
			return "ok", nil
		})
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "long", ID: "long-1"})
	require.NoError(t, err)

	<-entered
	require.NoError(t, e.TerminateWorkflow(context.Background(), "long-1", "operator request"))
	close(release)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = e.WaitForCompletion(ctx, "long-1")
	assert.ErrorIs(t, err, ErrWorkflowTerminated)
	assert.False(t, secondActivityRan.Load())

	status, err := e.GetWorkflowStatus(context.Background(), "long-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatus_Cancelled, status)
}

func TestSignalAndQuery(t *testing.T) {
	e := New(Options{})

	e.RegisterWorkflow("reactive", func(wc *Context, args any) (any, error) {
		state := "waiting"
		wc.SetQueryHandler("state", func(args any) (any, error) {
			return state, nil
		})

		select {
		case value := <-wc.SignalChannel("proceed"):
			state = "received"
			return value, nil
		case <-wc.Context().Done():
			return nil, ErrWorkflowTerminated
		}
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "reactive", ID: "reactive-1"})
	require.NoError(t, err)

	// The handler registers inside the workflow routine, so poll for
	// it before asserting on the value.
	var value any
	require.Eventually(t, func() bool {
		var queryErr error
		value, queryErr = e.QueryWorkflow(context.Background(), "reactive-1", "state", nil)
		return queryErr == nil
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, "waiting", value)

	require.NoError(t, e.SignalWorkflow(context.Background(), "reactive-1", "proceed", "payload"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := e.WaitForCompletion(ctx, "reactive-1")
	require.NoError(t, err)
	assert.Equal(t, "payload", result)
}

func TestGetWorkflowStatusUnknown(t *testing.T) {
	e := New(Options{})

	_, err := e.GetWorkflowStatus(context.Background(), "ghost")
	assert.ErrorIs(t, err, domain.ErrWorkflowNotFound)
}

func TestCreateScheduleValidatesInputs(t *testing.T) {
	e := New(Options{})

	e.RegisterWorkflow("nightly", func(wc *Context, args any) (any, error) {
		return nil, nil
	})

	err := e.CreateSchedule(context.Background(), domain.CreateScheduleParams{
		ScheduleID:     "nightly-sync",
		WorkflowName:   "nightly",
		CronExpression: "0 3 * * *",
	})
	require.NoError(t, err)

	err = e.CreateSchedule(context.Background(), domain.CreateScheduleParams{
		ScheduleID:     "ghost-schedule",
		WorkflowName:   "ghost",
		CronExpression: "0 3 * * *",
	})
	assert.ErrorIs(t, err, ErrWorkflowNotRegistered)

	err = e.CreateSchedule(context.Background(), domain.CreateScheduleParams{
		ScheduleID:     "broken-schedule",
		WorkflowName:   "nightly",
		CronExpression: "not a cron expression",
	})
	assert.Error(t, err)
}

func TestCompletedIDCanBeReused(t *testing.T) {
	e := New(Options{})

	var runs atomic.Int32

	e.RegisterWorkflow("quick", func(wc *Context, args any) (any, error) {
		runs.Add(1)
		return nil, nil
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "quick", ID: "quick-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = e.WaitForCompletion(ctx, "quick-1")
	require.NoError(t, err)

	// A terminal execution no longer blocks the deterministic id.
	_, err = e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "quick", ID: "quick-1"})
	require.NoError(t, err)

	_, err = e.WaitForCompletion(ctx, "quick-1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), runs.Load())
}

func TestWorkflowPanicFailsInstanceOnly(t *testing.T) {
	e := New(Options{})

	e.RegisterWorkflow("broken", func(wc *Context, args any) (any, error) {
		panic("nil map write in vendor adapter")
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "broken", ID: "broken-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = e.WaitForCompletion(ctx, "broken-1")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "workflow panicked")

	status, err := e.GetWorkflowStatus(context.Background(), "broken-1")
	require.NoError(t, err)
	assert.Equal(t, domain.WorkflowStatus_Failed, status)
}

func TestActivityPanicIsRetriedLikeAnyFailure(t *testing.T) {
	e := New(Options{})

	var attempts atomic.Int32

	e.RegisterWorkflow("jittery", func(wc *Context, args any) (any, error) {
		return ExecuteActivity(wc, "jittery_call", ActivityOptions{
			Timeout:     time.Second,
			RetryPolicy: fastPolicy(3),
		}, func(ctx context.Context) (string, error) {
			if attempts.Add(1) == 1 {
				panic("index out of range in response parsing")
			}
			return "ok", nil
		})
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "jittery", ID: "jittery-1"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	result, err := e.WaitForCompletion(ctx, "jittery-1")
	require.NoError(t, err)
	assert.Equal(t, "ok", result)
	assert.Equal(t, int32(2), attempts.Load())
}

func TestTerminalInstancesEvictedAfterRetention(t *testing.T) {
	e := New(Options{TerminalRetention: 5 * time.Millisecond})

	e.RegisterWorkflow("quick", func(wc *Context, args any) (any, error) {
		return nil, nil
	})

	_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{Name: "quick", ID: "quick-ttl"})
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	_, err = e.WaitForCompletion(ctx, "quick-ttl")
	require.NoError(t, err)

	// Without a recorder an evicted id is simply unknown again.
	require.Eventually(t, func() bool {
		_, err := e.GetWorkflowStatus(context.Background(), "quick-ttl")
		return errors.Is(err, domain.ErrWorkflowNotFound)
	}, time.Second, 5*time.Millisecond)
}
