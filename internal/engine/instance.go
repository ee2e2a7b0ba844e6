package engine

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/syncline/syncline/pkg/domain"
)

type instance struct {
	runID      string
	workflowID string
	name       string
	queue      string
	tenantID   string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	mu              sync.Mutex
	status          domain.WorkflowStatus
	result          any
	err             error
	terminateReason string
	startedAt       time.Time
	completedAt     *time.Time
	stepsTotal      int
	stepsCompleted  int
	stepsFailed     int
	failedStep      string
	costEstimate    float64
	signals         map[string]chan any
	queryHandlers   map[string]func(args any) (any, error)
}

func newInstance(e *Engine, p domain.StartWorkflowParams) *instance {
	ctx, cancel := context.WithCancel(context.Background())

	tenantID := ""
	if p.SearchAttributes != nil {
		if value, ok := p.SearchAttributes["tenant_id"].(string); ok {
			tenantID = value
		}
	}

	return &instance{
		runID:         newRunID(),
		workflowID:    p.ID,
		name:          p.Name,
		queue:         p.Queue,
		tenantID:      tenantID,
		ctx:           ctx,
		cancel:        cancel,
		done:          make(chan struct{}),
		status:        domain.WorkflowStatus_Running,
		startedAt:     time.Now().UTC(),
		signals:       make(map[string]chan any),
		queryHandlers: make(map[string]func(args any) (any, error)),
	}
}

func (i *instance) Status() domain.WorkflowStatus {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.status
}

func (i *instance) Result() (any, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	return i.result, i.err
}

func (i *instance) finish(status domain.WorkflowStatus, result any, err error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.status.IsTerminal() {
		return
	}

	now := time.Now().UTC()

	i.status = status
	i.result = result
	i.err = err
	i.completedAt = &now

	close(i.done)
	i.cancel()
}

func (i *instance) terminate(reason string) {
	i.mu.Lock()
	i.terminateReason = reason
	i.mu.Unlock()

	i.cancel()
}

func (i *instance) terminated() (string, bool) {
	if i.ctx.Err() == nil {
		return "", false
	}

	i.mu.Lock()
	defer i.mu.Unlock()

	return i.terminateReason, true
}

func (i *instance) signal(name string, arg any) {
	ch := i.signalChannel(name)

	select {
	case ch <- arg:
	default:
		// Buffer full; the engine drops rather than blocks the sender.
	}
}

func (i *instance) signalChannel(name string) chan any {
	i.mu.Lock()
	defer i.mu.Unlock()

	ch, ok := i.signals[name]
	if !ok {
		ch = make(chan any, 16)
		i.signals[name] = ch
	}

	return ch
}

func (i *instance) query(queryType string, args any) (any, error) {
	i.mu.Lock()
	handler, ok := i.queryHandlers[queryType]
	i.mu.Unlock()

	if !ok {
		return nil, fmt.Errorf("unknown query type %q for workflow %s", queryType, i.workflowID)
	}

	return handler(args)
}

func (i *instance) setQueryHandler(queryType string, handler func(args any) (any, error)) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.queryHandlers[queryType] = handler
}

func (i *instance) setTotalSteps(total int) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stepsTotal = total
}

func (i *instance) beginStep() {
	i.mu.Lock()
	defer i.mu.Unlock()

	if i.stepsTotal < i.stepsCompleted+i.stepsFailed+1 {
		i.stepsTotal = i.stepsCompleted + i.stepsFailed + 1
	}
}

func (i *instance) completeStep(cost float64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stepsCompleted++
	i.costEstimate += cost
}

func (i *instance) failStep(name string, cost float64) {
	i.mu.Lock()
	defer i.mu.Unlock()

	i.stepsFailed++
	i.failedStep = name
	i.costEstimate += cost
}

func (i *instance) snapshot() domain.WorkflowExecution {
	i.mu.Lock()
	defer i.mu.Unlock()

	execution := domain.WorkflowExecution{
		ID:             i.runID,
		WorkflowID:     i.workflowID,
		WorkflowName:   i.name,
		TenantID:       i.tenantID,
		Status:         i.status,
		StartedAt:      i.startedAt,
		CompletedAt:    i.completedAt,
		StepsTotal:     i.stepsTotal,
		StepsCompleted: i.stepsCompleted,
		StepsFailed:    i.stepsFailed,
		FailedStep:     i.failedStep,
		CostEstimate:   i.costEstimate,
	}

	if i.completedAt != nil {
		execution.DurationSeconds = i.completedAt.Sub(i.startedAt).Seconds()
	}

	if i.err != nil {
		execution.ErrorMessage = i.err.Error()
	}

	return execution
}
