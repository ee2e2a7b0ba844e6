package workflows

import (
	"github.com/syncline/syncline/internal/engine"
	"github.com/syncline/syncline/pkg/domain"
)

const (
	WorkflowName_ConnectorSetup      = "connector_setup"
	WorkflowName_ConnectorDisconnect = "connector_disconnect"
	WorkflowName_InventoryLock       = "inventory_lock"
	WorkflowName_KAGExtraction       = "kag_extraction"
)

// Workflows bundles the workflow bodies around their shared activity
// set.
type Workflows struct {
	activities *Activities
}

func New(activities *Activities) *Workflows {
	return &Workflows{activities: activities}
}

// RegisterAll wires every workflow into the engine under its queue
// name.
func (w *Workflows) RegisterAll(e *engine.Engine) {
	e.RegisterWorkflow(WorkflowName_ConnectorSetup, w.ConnectorSetup)
	e.RegisterWorkflow(WorkflowName_ConnectorDisconnect, w.ConnectorDisconnect)
	e.RegisterWorkflow(WorkflowName_InventoryLock, w.InventoryLock)
	e.RegisterWorkflow(WorkflowName_KAGExtraction, w.KAGExtraction)
}

// Start-parameter builders. Workflow ids are deterministic per logical
// operation so duplicate submissions converge on one run.

func ConnectorSetupStart(p domain.ConnectorSetupParams) domain.StartWorkflowParams {
	return domain.StartWorkflowParams{
		Name:             WorkflowName_ConnectorSetup,
		ID:               domain.ConnectorSetupWorkflowID(p.ConnectorID, p.TenantID),
		Args:             p,
		SearchAttributes: map[string]any{"tenant_id": p.TenantID},
	}
}

func ConnectorDisconnectStart(p domain.ConnectorDisconnectParams) domain.StartWorkflowParams {
	return domain.StartWorkflowParams{
		Name:             WorkflowName_ConnectorDisconnect,
		ID:               domain.ConnectorDisconnectWorkflowID(p.ConnectorID, p.TenantID),
		Args:             p,
		SearchAttributes: map[string]any{"tenant_id": p.TenantID},
	}
}

func InventoryLockStart(p domain.InventoryLockParams) domain.StartWorkflowParams {
	return domain.StartWorkflowParams{
		Name:             WorkflowName_InventoryLock,
		ID:               domain.InventoryLockWorkflowID(p.TenantID, p.SKU),
		Args:             p,
		SearchAttributes: map[string]any{"tenant_id": p.TenantID},
	}
}

func KAGExtractionStart(p domain.KAGExtractionParams) domain.StartWorkflowParams {
	return domain.StartWorkflowParams{
		Name:             WorkflowName_KAGExtraction,
		ID:               domain.KAGExtractionWorkflowID(p.ChunkID),
		Args:             p,
		SearchAttributes: map[string]any{"tenant_id": p.TenantID},
	}
}
