package controllers

import (
	"context"
	"errors"

	"github.com/syncline/syncline/internal/workflows"
	"github.com/syncline/syncline/pkg/domain"

	"github.com/gofiber/fiber/v3"
	"github.com/rs/zerolog/log"
)

// OrchestrationController exposes the workflow surface over HTTP.
// Endpoints only submit work and read status; all domain behavior
// lives in the workflows themselves.
type OrchestrationController struct {
	workflowClient domain.WorkflowClient
	executions     domain.ExecutionRepository
	selector       domain.ConnectorSelector
	knowledge      KnowledgeTraverser
}

// KnowledgeTraverser is the slice of the knowledge graph the HTTP
// surface needs: neighbor reads plus the mirror rebuild used after a
// graph outage.
type KnowledgeTraverser interface {
	RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error)
	RebuildMirror(ctx context.Context) (int, error)
}

type OrchestrationControllerDependencies struct {
	WorkflowClient domain.WorkflowClient
	Executions     domain.ExecutionRepository
	Selector       domain.ConnectorSelector
	Knowledge      KnowledgeTraverser
}

func NewOrchestrationController(deps OrchestrationControllerDependencies) *OrchestrationController {
	return &OrchestrationController{
		workflowClient: deps.WorkflowClient,
		executions:     deps.Executions,
		selector:       deps.Selector,
		knowledge:      deps.Knowledge,
	}
}

type setupConnectorRequest struct {
	ConnectorID string            `json:"connector_id"`
	Kind        string            `json:"kind"`
	Credentials map[string]string `json:"credentials"`
	Config      map[string]string `json:"config"`
}

// SetupConnector submits a connector provisioning workflow. The
// response carries the deterministic workflow id; resubmitting the
// same connector converges on the in-flight run.
func (c *OrchestrationController) SetupConnector(ctx fiber.Ctx) error {
	var req setupConnectorRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.ConnectorID == "" || req.Kind == "" {
		return fiber.NewError(fiber.StatusBadRequest, "connector_id and kind are required")
	}

	params := domain.ConnectorSetupParams{
		ConnectorID: req.ConnectorID,
		TenantID:    ctx.Params("tenantID"),
		Kind:        domain.ConnectorKind(req.Kind),
		Credentials: req.Credentials,
		Config:      req.Config,
	}

	start := workflows.ConnectorSetupStart(params)

	runID, err := c.workflowClient.StartWorkflow(ctx.RequestCtx(), start)
	if err != nil {
		log.Error().Err(err).Str("connector_id", req.ConnectorID).Msg("Failed to start connector setup")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start connector setup")
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": start.ID,
		"run_id":      runID,
	})
}

// DisconnectConnector submits the soft-delete workflow for a
// connector registration.
func (c *OrchestrationController) DisconnectConnector(ctx fiber.Ctx) error {
	params := domain.ConnectorDisconnectParams{
		ConnectorID: ctx.Params("connectorID"),
		TenantID:    ctx.Params("tenantID"),
	}

	start := workflows.ConnectorDisconnectStart(params)

	runID, err := c.workflowClient.StartWorkflow(ctx.RequestCtx(), start)
	if err != nil {
		log.Error().Err(err).Str("connector_id", params.ConnectorID).Msg("Failed to start connector disconnect")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start connector disconnect")
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": start.ID,
		"run_id":      runID,
	})
}

type inventoryLockRequest struct {
	SKU          string   `json:"sku"`
	Quantity     int64    `json:"quantity"`
	Marketplaces []string `json:"marketplaces"`
}

// LockInventory submits the inventory broadcast workflow.
func (c *OrchestrationController) LockInventory(ctx fiber.Ctx) error {
	var req inventoryLockRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.SKU == "" {
		return fiber.NewError(fiber.StatusBadRequest, "sku is required")
	}

	params := domain.InventoryLockParams{
		TenantID: ctx.Params("tenantID"),
		SKU:      req.SKU,
		Quantity: req.Quantity,
	}
	for _, marketplace := range req.Marketplaces {
		params.Marketplaces = append(params.Marketplaces, domain.ConnectorKind(marketplace))
	}

	start := workflows.InventoryLockStart(params)

	runID, err := c.workflowClient.StartWorkflow(ctx.RequestCtx(), start)
	if err != nil {
		log.Error().Err(err).Str("sku", req.SKU).Msg("Failed to start inventory lock")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start inventory lock")
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": start.ID,
		"run_id":      runID,
	})
}

type knowledgeChunkRequest struct {
	ChunkID string `json:"chunk_id"`
	Content string `json:"content"`
}

// IngestKnowledgeChunk submits the extraction workflow for one chunk.
func (c *OrchestrationController) IngestKnowledgeChunk(ctx fiber.Ctx) error {
	var req knowledgeChunkRequest

	if err := ctx.Bind().Body(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "Invalid request body")
	}
	if req.ChunkID == "" {
		return fiber.NewError(fiber.StatusBadRequest, "chunk_id is required")
	}

	params := domain.KAGExtractionParams{
		ChunkID:  req.ChunkID,
		Content:  req.Content,
		TenantID: ctx.Params("tenantID"),
	}

	start := workflows.KAGExtractionStart(params)

	runID, err := c.workflowClient.StartWorkflow(ctx.RequestCtx(), start)
	if err != nil {
		log.Error().Err(err).Str("chunk_id", req.ChunkID).Msg("Failed to start knowledge extraction")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to start knowledge extraction")
	}

	return ctx.Status(fiber.StatusAccepted).JSON(fiber.Map{
		"workflow_id": start.ID,
		"run_id":      runID,
	})
}

// GetExecution returns the audit record for one workflow id.
func (c *OrchestrationController) GetExecution(ctx fiber.Ctx) error {
	execution, err := c.executions.Get(ctx.RequestCtx(), ctx.Params("workflowID"))
	if err != nil {
		if errors.Is(err, domain.ErrWorkflowNotFound) {
			return fiber.NewError(fiber.StatusNotFound, "Execution not found")
		}
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to load execution")
	}

	return ctx.JSON(execution)
}

// ListConnectorKinds returns the registered adapter kinds.
func (c *OrchestrationController) ListConnectorKinds(ctx fiber.Ctx) error {
	return ctx.JSON(fiber.Map{"kinds": c.selector.Kinds()})
}

// RebuildKnowledgeMirror reconstructs the graph mirror from the
// relational source of truth.
func (c *OrchestrationController) RebuildKnowledgeMirror(ctx fiber.Ctx) error {
	count, err := c.knowledge.RebuildMirror(ctx.RequestCtx())
	if err != nil {
		if errors.Is(err, domain.ErrGraphUnavailable) {
			return fiber.NewError(fiber.StatusServiceUnavailable, "Graph mirror is not configured or unreachable")
		}
		log.Error().Err(err).Msg("Failed to rebuild knowledge mirror")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to rebuild knowledge mirror")
	}

	return ctx.JSON(fiber.Map{"relationships": count})
}

// GetRelatedTools returns knowledge-graph neighbors for one tool.
func (c *OrchestrationController) GetRelatedTools(ctx fiber.Ctx) error {
	minStrength := fiber.Query[int](ctx, "min_strength")

	related, err := c.knowledge.RelatedTools(ctx.RequestCtx(), ctx.Params("tool"), minStrength)
	if err != nil {
		log.Error().Err(err).Msg("Failed to traverse knowledge graph")
		return fiber.NewError(fiber.StatusInternalServerError, "Failed to traverse knowledge graph")
	}

	return ctx.JSON(fiber.Map{"tool": ctx.Params("tool"), "related": related})
}
