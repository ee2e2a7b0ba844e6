package domain

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	ErrWorkflowNotFound = errors.New("workflow execution not found")

	// ErrExecutionTerminal guards workflow_executions immutability:
	// a row in a terminal status accepts no further updates.
	ErrExecutionTerminal = errors.New("workflow execution is terminal")
)

type WorkflowStatus string

const (
	WorkflowStatus_Running   WorkflowStatus = "running"
	WorkflowStatus_Completed WorkflowStatus = "completed"
	WorkflowStatus_Failed    WorkflowStatus = "failed"
	WorkflowStatus_Timeout   WorkflowStatus = "timeout"
	WorkflowStatus_Cancelled WorkflowStatus = "cancelled"
)

func (s WorkflowStatus) IsTerminal() bool {
	return s != WorkflowStatus_Running
}

// WorkflowExecution is the audit record for one durable execution.
// Mutated only by the engine's own progress reporting, immutable once
// the status is terminal.
type WorkflowExecution struct {
	ID              string
	WorkflowID      string
	WorkflowName    string
	TenantID        string
	Status          WorkflowStatus
	StartedAt       time.Time
	CompletedAt     *time.Time
	DurationSeconds float64
	StepsTotal      int
	StepsCompleted  int
	StepsFailed     int
	FailedStep      string
	ErrorMessage    string
	CostEstimate    float64
}

type ExecutionRepository interface {
	Create(ctx context.Context, execution WorkflowExecution) error
	Update(ctx context.Context, execution WorkflowExecution) error
	Get(ctx context.Context, workflowID string) (WorkflowExecution, error)
	ListByTenant(ctx context.Context, tenantID string) ([]WorkflowExecution, error)
}

// RetryPolicy is the single declarative retry shape shared by every
// activity invocation.
type RetryPolicy struct {
	InitialInterval    time.Duration
	MaxInterval        time.Duration
	BackoffCoefficient float64
	MaximumAttempts    int
	NonRetryableErrors []string
}

func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{
		InitialInterval:    time.Second,
		MaxInterval:        time.Minute,
		BackoffCoefficient: 2.0,
		MaximumAttempts:    3,
		NonRetryableErrors: []string{ErrorTypeCredentialValidation, ErrorTypeApplication},
	}
}

type StartWorkflowParams struct {
	Name             string
	ID               string
	Queue            string
	Args             any
	SearchAttributes map[string]any
}

type CreateScheduleParams struct {
	ScheduleID     string
	WorkflowName   string
	Args           any
	CronExpression string
	Queue          string
}

// WorkflowClient is the durable-execution port. The workflow id is
// caller-supplied and deterministic per logical operation; starting a
// second workflow with an in-flight id is a no-op returning the
// existing run.
type WorkflowClient interface {
	StartWorkflow(ctx context.Context, p StartWorkflowParams) (runID string, err error)
	SignalWorkflow(ctx context.Context, workflowID string, signalName string, arg any) error
	QueryWorkflow(ctx context.Context, workflowID string, queryType string, args any) (any, error)
	GetWorkflowStatus(ctx context.Context, workflowID string) (WorkflowStatus, error)
	TerminateWorkflow(ctx context.Context, workflowID string, reason string) error
	CreateSchedule(ctx context.Context, p CreateScheduleParams) error
}

// Workflow parameter structs are replayed from persisted history, so
// their evolution must be additive-only: new fields are optional,
// existing fields never change meaning or type.

type ConnectorSetupParams struct {
	ConnectorID string            `json:"connector_id"`
	TenantID    string            `json:"tenant_id"`
	Kind        ConnectorKind     `json:"kind"`
	Credentials map[string]string `json:"credentials"`
	Config      map[string]string `json:"config,omitempty"`
}

type SyncSummary struct {
	Resource string `json:"resource"`
	Status   string `json:"status"`
	Error    string `json:"error,omitempty"`
}

type ConnectorSetupResult struct {
	Status        string        `json:"status"`
	ConnectorID   string        `json:"connector_id"`
	SyncSummaries []SyncSummary `json:"sync_summaries"`
}

type InventoryLockParams struct {
	TenantID string `json:"tenant_id"`
	SKU      string `json:"sku"`
	Quantity int64  `json:"quantity"`

	// Marketplaces overrides the tenant's active-connector target set.
	Marketplaces []ConnectorKind `json:"marketplaces,omitempty"`
}

type MarketplaceResult struct {
	Marketplace ConnectorKind `json:"marketplace"`
	Result      string        `json:"result"`
	Error       string        `json:"error,omitempty"`
}

type InventoryLockResult struct {
	Status  string              `json:"status"`
	SKU     string              `json:"sku"`
	Details []MarketplaceResult `json:"details"`
}

type KAGExtractionParams struct {
	ChunkID  string `json:"chunk_id"`
	Content  string `json:"content"`
	TenantID string `json:"tenant_id"`
}

type KAGExtractionResult struct {
	Status       string `json:"status"`
	ChunkID      string `json:"chunk_id"`
	LinksCreated int    `json:"links_created"`
}

type ConnectorDisconnectParams struct {
	ConnectorID string `json:"connector_id"`
	TenantID    string `json:"tenant_id"`
}

type ConnectorDisconnectResult struct {
	Status      string `json:"status"`
	ConnectorID string `json:"connector_id"`
}

// Deterministic workflow ids. These are the sole dedup mechanism for
// concurrent duplicates of the same logical operation.

func ConnectorSetupWorkflowID(connectorID string, tenantID string) string {
	return fmt.Sprintf("%s-%s", connectorID, tenantID)
}

func InventoryLockWorkflowID(tenantID string, sku string) string {
	return fmt.Sprintf("inv-lock-%s-%s", tenantID, sku)
}

func KAGExtractionWorkflowID(chunkID string) string {
	return fmt.Sprintf("kag-extract-%s", chunkID)
}

func ConnectorDisconnectWorkflowID(connectorID string, tenantID string) string {
	return fmt.Sprintf("disconnect-%s-%s", connectorID, tenantID)
}
