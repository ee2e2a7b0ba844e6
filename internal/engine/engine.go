package engine

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"github.com/robfig/cron/v3"
	"github.com/rs/xid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

var (
	ErrWorkflowNotRegistered = errors.New("workflow not registered")

	// ErrWorkflowTerminated is returned from activity boundaries once
	// a terminate request has landed. Termination never interrupts an
	// in-progress activity call, it only prevents further scheduling.
	ErrWorkflowTerminated = errors.New("workflow terminated")
)

// WorkflowFunc is a workflow body. It runs as a single cooperatively
// scheduled routine; all side effects go through activities, which the
// engine dispatches to a shared worker pool with retry and timeout.
type WorkflowFunc func(wc *Context, args any) (any, error)

type Options struct {
	// ActivitySlots bounds concurrently running activities across all
	// workflow instances.
	ActivitySlots int

	// Recorder receives workflow_executions progress. Optional; a nil
	// recorder disables the audit trail.
	Recorder domain.ExecutionRepository

	// TerminalRetention is how long a finished instance stays
	// queryable in memory before eviction. Status reads for evicted
	// ids fall back to the recorder.
	TerminalRetention time.Duration
}

// Engine is the in-process durable-execution runtime behind the
// WorkflowClient port. Workflow ids are caller-supplied and
// deterministic; a second start with an in-flight id converges to the
// existing run instead of creating a duplicate.
type Engine struct {
	mu        sync.Mutex
	workflows map[string]WorkflowFunc
	instances map[string]*instance
	recorder  domain.ExecutionRepository
	slots     chan struct{}
	cron      *cron.Cron
	wg        sync.WaitGroup
	retention time.Duration
}

func New(opts Options) *Engine {
	slots := opts.ActivitySlots
	if slots <= 0 {
		slots = 8
	}

	retention := opts.TerminalRetention
	if retention <= 0 {
		retention = time.Minute
	}

	return &Engine{
		workflows: make(map[string]WorkflowFunc),
		instances: make(map[string]*instance),
		recorder:  opts.Recorder,
		slots:     make(chan struct{}, slots),
		cron:      cron.New(),
		retention: retention,
	}
}

func (e *Engine) RegisterWorkflow(name string, fn WorkflowFunc) {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.workflows[name] = fn
}

// Start begins dispatching scheduled workflows.
func (e *Engine) Start() {
	e.cron.Start()
}

// Shutdown stops the scheduler and waits for in-flight workflows to
// reach their next boundary, bounded by ctx.
func (e *Engine) Shutdown(ctx context.Context) error {
	e.cron.Stop()

	done := make(chan struct{})
	go func() {
		e.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("engine shutdown timed out: %w", ctx.Err())
	}
}

func (e *Engine) StartWorkflow(ctx context.Context, p domain.StartWorkflowParams) (string, error) {
	e.mu.Lock()

	if existing, ok := e.instances[p.ID]; ok && !existing.Status().IsTerminal() {
		e.mu.Unlock()

		log.Debug().
			Str("workflow_id", p.ID).
			Str("run_id", existing.runID).
			Msg("Duplicate start for in-flight workflow id, converging to existing run")

		return existing.runID, nil
	}

	fn, ok := e.workflows[p.Name]
	if !ok {
		e.mu.Unlock()
		return "", fmt.Errorf("%w: %s", ErrWorkflowNotRegistered, p.Name)
	}

	inst := newInstance(e, p)
	e.instances[p.ID] = inst
	e.mu.Unlock()

	if e.recorder != nil {
		if err := e.recorder.Create(ctx, inst.snapshot()); err != nil {
			log.Warn().Err(err).Str("workflow_id", p.ID).Msg("Failed to create execution record")
		}
	}

	e.wg.Add(1)
	go e.run(inst, fn, p.Args)

	return inst.runID, nil
}

func (e *Engine) run(inst *instance, fn WorkflowFunc, args any) {
	defer e.wg.Done()

	wc := &Context{inst: inst, engine: e}

	logger := log.With().
		Str("workflow_id", inst.workflowID).
		Str("workflow_name", inst.name).
		Str("run_id", inst.runID).
		Logger()

	logger.Info().Msg("Workflow started")

	result, err := runWorkflow(fn, wc, args, logger)

	status := domain.WorkflowStatus_Completed

	switch {
	case err == nil:
	case errors.Is(err, ErrWorkflowTerminated):
		status = domain.WorkflowStatus_Cancelled
	case errors.Is(err, context.DeadlineExceeded):
		status = domain.WorkflowStatus_Timeout
	default:
		status = domain.WorkflowStatus_Failed
	}

	inst.finish(status, result, err)

	if err != nil {
		logger.Error().Err(err).Str("status", string(status)).Msg("Workflow finished with error")
	} else {
		logger.Info().Msg("Workflow completed")
	}

	if e.recorder != nil {
		if recordErr := e.recorder.Update(context.Background(), inst.snapshot()); recordErr != nil {
			logger.Warn().Err(recordErr).Msg("Failed to finalize execution record")
		}
	}

	// The recorder holds the durable record; the in-memory entry only
	// needs to outlive immediate status polls and result waits.
	time.AfterFunc(e.retention, func() { e.evict(inst) })
}

// runWorkflow contains a panic in the workflow body: the instance
// fails, the process does not.
func runWorkflow(fn WorkflowFunc, wc *Context, args any, logger zerolog.Logger) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error().Interface("panic", r).Bytes("stack", debug.Stack()).Msg("Workflow panicked")
			err = fmt.Errorf("workflow panicked: %v", r)
		}
	}()

	return fn(wc, args)
}

func (e *Engine) evict(inst *instance) {
	e.mu.Lock()
	defer e.mu.Unlock()

	// A reused workflow id already maps to a newer instance; only the
	// finished one scheduled for eviction is removed.
	if current, ok := e.instances[inst.workflowID]; ok && current == inst {
		delete(e.instances, inst.workflowID)
	}
}

func (e *Engine) SignalWorkflow(ctx context.Context, workflowID string, signalName string, arg any) error {
	inst, err := e.instance(workflowID)
	if err != nil {
		return err
	}

	inst.signal(signalName, arg)

	return nil
}

func (e *Engine) QueryWorkflow(ctx context.Context, workflowID string, queryType string, args any) (any, error) {
	inst, err := e.instance(workflowID)
	if err != nil {
		return nil, err
	}

	return inst.query(queryType, args)
}

func (e *Engine) GetWorkflowStatus(ctx context.Context, workflowID string) (domain.WorkflowStatus, error) {
	e.mu.Lock()
	inst, ok := e.instances[workflowID]
	e.mu.Unlock()

	if ok {
		return inst.Status(), nil
	}

	if e.recorder != nil {
		execution, err := e.recorder.Get(ctx, workflowID)
		if err == nil {
			return execution.Status, nil
		}
	}

	return "", fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
}

func (e *Engine) TerminateWorkflow(ctx context.Context, workflowID string, reason string) error {
	inst, err := e.instance(workflowID)
	if err != nil {
		return err
	}

	inst.terminate(reason)

	log.Info().
		Str("workflow_id", workflowID).
		Str("reason", reason).
		Msg("Workflow termination requested")

	return nil
}

// CreateSchedule registers a cron entry that starts the workflow on
// every tick. Each tick gets a unique id suffix so scheduled runs do
// not dedup against each other.
func (e *Engine) CreateSchedule(ctx context.Context, p domain.CreateScheduleParams) error {
	e.mu.Lock()
	_, ok := e.workflows[p.WorkflowName]
	e.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrWorkflowNotRegistered, p.WorkflowName)
	}

	_, err := e.cron.AddFunc(p.CronExpression, func() {
		tickID := fmt.Sprintf("%s-%d", p.ScheduleID, time.Now().Unix())

		_, err := e.StartWorkflow(context.Background(), domain.StartWorkflowParams{
			Name:  p.WorkflowName,
			ID:    tickID,
			Queue: p.Queue,
			Args:  p.Args,
		})
		if err != nil {
			log.Error().Err(err).Str("schedule_id", p.ScheduleID).Msg("Scheduled workflow start failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to create schedule %s: %w", p.ScheduleID, err)
	}

	return nil
}

func (e *Engine) instance(workflowID string) (*instance, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	inst, ok := e.instances[workflowID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", domain.ErrWorkflowNotFound, workflowID)
	}

	return inst, nil
}

// WaitForCompletion blocks until the workflow reaches a terminal
// status or ctx expires, and returns the workflow's result value.
func (e *Engine) WaitForCompletion(ctx context.Context, workflowID string) (any, error) {
	inst, err := e.instance(workflowID)
	if err != nil {
		return nil, err
	}

	select {
	case <-inst.done:
		return inst.Result()
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func newRunID() string {
	return xid.New().String()
}
