package server

import (
	"time"

	"github.com/syncline/syncline/internal/controllers"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/cors"
	"github.com/gofiber/fiber/v3/middleware/logger"
)

type HTTPServerDependencies struct {
	OrchestrationController *controllers.OrchestrationController
}

func NewHTTPServer(deps HTTPServerDependencies) *fiber.App {
	router := fiber.New(fiber.Config{
		AppName: "syncline",
	})

	router.Use(cors.New())
	router.Use(logger.New())

	router.Get("/health", func(c fiber.Ctx) error {
		return c.Status(fiber.StatusOK).JSON(fiber.Map{
			"status":    "healthy",
			"service":   "syncline",
			"timestamp": time.Now().UTC().Format(time.RFC3339),
		})
	})

	router.Get("/connectors", deps.OrchestrationController.ListConnectorKinds)
	router.Get("/executions/:workflowID", deps.OrchestrationController.GetExecution)
	router.Get("/tools/:tool/related", deps.OrchestrationController.GetRelatedTools)
	router.Post("/knowledge/rebuild", deps.OrchestrationController.RebuildKnowledgeMirror)

	tenant := router.Group("/tenants/:tenantID")

	tenant.Post("/connectors", deps.OrchestrationController.SetupConnector)
	tenant.Delete("/connectors/:connectorID", deps.OrchestrationController.DisconnectConnector)
	tenant.Post("/inventory-locks", deps.OrchestrationController.LockInventory)
	tenant.Post("/knowledge-chunks", deps.OrchestrationController.IngestKnowledgeChunk)

	return router
}
