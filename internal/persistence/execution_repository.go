package persistence

import (
	"context"
	"errors"
	"fmt"

	"github.com/syncline/syncline/pkg/domain"

	"gorm.io/gorm"
)

type GormExecutionRepository struct {
	db *gorm.DB
}

func NewGormExecutionRepository(db *gorm.DB) *GormExecutionRepository {
	return &GormExecutionRepository{db: db}
}

func (r *GormExecutionRepository) Create(ctx context.Context, execution domain.WorkflowExecution) error {
	model := executionToModel(execution)

	if err := r.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to create workflow execution: %w", err)
	}

	return nil
}

// Update only touches rows still in running status. A terminal row is
// immutable; attempting to mutate one is an error so the engine can
// catch double-completion bugs instead of papering over them.
func (r *GormExecutionRepository) Update(ctx context.Context, execution domain.WorkflowExecution) error {
	model := executionToModel(execution)

	result := r.db.WithContext(ctx).
		Model(&WorkflowExecutionModel{}).
		Where("id = ? AND status = ?", model.ID, string(domain.WorkflowStatus_Running)).
		Updates(map[string]any{
			"status":           model.Status,
			"completed_at":     model.CompletedAt,
			"duration_seconds": model.DurationSeconds,
			"steps_total":      model.StepsTotal,
			"steps_completed":  model.StepsCompleted,
			"steps_failed":     model.StepsFailed,
			"failed_step":      model.FailedStep,
			"error_message":    model.ErrorMessage,
			"cost_estimate":    model.CostEstimate,
		})
	if result.Error != nil {
		return fmt.Errorf("failed to update workflow execution: %w", result.Error)
	}

	if result.RowsAffected == 0 {
		var existing WorkflowExecutionModel

		err := r.db.WithContext(ctx).First(&existing, "id = ?", model.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return domain.ErrWorkflowNotFound
		}
		if err != nil {
			return fmt.Errorf("failed to read workflow execution: %w", err)
		}

		return fmt.Errorf("%w: %s", domain.ErrExecutionTerminal, model.ID)
	}

	return nil
}

// Get returns the most recent execution for a workflow id. Scheduled
// workflows reuse the logical id with a tick suffix, so plain lookups
// see the latest run.
func (r *GormExecutionRepository) Get(ctx context.Context, workflowID string) (domain.WorkflowExecution, error) {
	var model WorkflowExecutionModel

	err := r.db.WithContext(ctx).
		Where("workflow_id = ?", workflowID).
		Order("started_at DESC").
		First(&model).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.WorkflowExecution{}, domain.ErrWorkflowNotFound
	}
	if err != nil {
		return domain.WorkflowExecution{}, fmt.Errorf("failed to read workflow execution: %w", err)
	}

	return executionFromModel(model), nil
}

func (r *GormExecutionRepository) ListByTenant(ctx context.Context, tenantID string) ([]domain.WorkflowExecution, error) {
	var models []WorkflowExecutionModel

	err := r.db.WithContext(ctx).
		Where("tenant_id = ?", tenantID).
		Order("started_at DESC").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list workflow executions: %w", err)
	}

	executions := make([]domain.WorkflowExecution, 0, len(models))
	for _, model := range models {
		executions = append(executions, executionFromModel(model))
	}

	return executions, nil
}

func executionToModel(execution domain.WorkflowExecution) WorkflowExecutionModel {
	return WorkflowExecutionModel{
		ID:              execution.ID,
		WorkflowID:      execution.WorkflowID,
		WorkflowName:    execution.WorkflowName,
		TenantID:        execution.TenantID,
		Status:          string(execution.Status),
		StartedAt:       execution.StartedAt,
		CompletedAt:     execution.CompletedAt,
		DurationSeconds: execution.DurationSeconds,
		StepsTotal:      execution.StepsTotal,
		StepsCompleted:  execution.StepsCompleted,
		StepsFailed:     execution.StepsFailed,
		FailedStep:      execution.FailedStep,
		ErrorMessage:    execution.ErrorMessage,
		CostEstimate:    execution.CostEstimate,
	}
}

func executionFromModel(model WorkflowExecutionModel) domain.WorkflowExecution {
	return domain.WorkflowExecution{
		ID:              model.ID,
		WorkflowID:      model.WorkflowID,
		WorkflowName:    model.WorkflowName,
		TenantID:        model.TenantID,
		Status:          domain.WorkflowStatus(model.Status),
		StartedAt:       model.StartedAt,
		CompletedAt:     model.CompletedAt,
		DurationSeconds: model.DurationSeconds,
		StepsTotal:      model.StepsTotal,
		StepsCompleted:  model.StepsCompleted,
		StepsFailed:     model.StepsFailed,
		FailedStep:      model.FailedStep,
		ErrorMessage:    model.ErrorMessage,
		CostEstimate:    model.CostEstimate,
	}
}
