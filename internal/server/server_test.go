package server

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/syncline/syncline/internal/controllers"
	"github.com/syncline/syncline/pkg/domain"

	"github.com/gofiber/fiber/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWorkflowClient struct {
	started []domain.StartWorkflowParams
}

func (c *fakeWorkflowClient) StartWorkflow(ctx context.Context, p domain.StartWorkflowParams) (string, error) {
	c.started = append(c.started, p)
	return "run-1", nil
}

func (c *fakeWorkflowClient) SignalWorkflow(ctx context.Context, workflowID string, signalName string, arg any) error {
	return nil
}

func (c *fakeWorkflowClient) QueryWorkflow(ctx context.Context, workflowID string, queryType string, args any) (any, error) {
	return nil, nil
}

func (c *fakeWorkflowClient) GetWorkflowStatus(ctx context.Context, workflowID string) (domain.WorkflowStatus, error) {
	return domain.WorkflowStatus_Running, nil
}

func (c *fakeWorkflowClient) TerminateWorkflow(ctx context.Context, workflowID string, reason string) error {
	return nil
}

func (c *fakeWorkflowClient) CreateSchedule(ctx context.Context, p domain.CreateScheduleParams) error {
	return nil
}

type fakeExecutions struct {
	executions map[string]domain.WorkflowExecution
}

func (r *fakeExecutions) Create(ctx context.Context, execution domain.WorkflowExecution) error {
	return nil
}

func (r *fakeExecutions) Update(ctx context.Context, execution domain.WorkflowExecution) error {
	return nil
}

func (r *fakeExecutions) Get(ctx context.Context, workflowID string) (domain.WorkflowExecution, error) {
	execution, ok := r.executions[workflowID]
	if !ok {
		return domain.WorkflowExecution{}, domain.ErrWorkflowNotFound
	}
	return execution, nil
}

func (r *fakeExecutions) ListByTenant(ctx context.Context, tenantID string) ([]domain.WorkflowExecution, error) {
	return nil, nil
}

type fakeKnowledge struct{}

func (k *fakeKnowledge) RelatedTools(ctx context.Context, tool string, minStrength int) ([]string, error) {
	return []string{"asana"}, nil
}

func (k *fakeKnowledge) RebuildMirror(ctx context.Context) (int, error) {
	return 0, domain.ErrGraphUnavailable
}

func newTestApp() (*fiber.App, *fakeWorkflowClient) {
	client := &fakeWorkflowClient{}

	app := NewHTTPServer(HTTPServerDependencies{
		OrchestrationController: controllers.NewOrchestrationController(controllers.OrchestrationControllerDependencies{
			WorkflowClient: client,
			Executions:     &fakeExecutions{},
			Selector:       domain.NewConnectorSelector(),
			Knowledge:      &fakeKnowledge{},
		}),
	})

	return app, client
}

func TestHealthRoute(t *testing.T) {
	app, _ := newTestApp()

	response, err := app.Test(newRequest(t, http.MethodGet, "/health", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusOK, response.StatusCode)
}

func TestSetupConnectorSubmitsDeterministicWorkflow(t *testing.T) {
	app, client := newTestApp()

	body := map[string]any{
		"connector_id": "ga4-main",
		"kind":         "google_analytics_4",
		"credentials":  map[string]string{"api_key": "k"},
	}

	response, err := app.Test(newRequest(t, http.MethodPost, "/tenants/acme/connectors", body))
	require.NoError(t, err)
	assert.Equal(t, http.StatusAccepted, response.StatusCode)

	var accepted map[string]string
	require.NoError(t, json.NewDecoder(response.Body).Decode(&accepted))
	assert.Equal(t, "ga4-main-acme", accepted["workflow_id"])
	assert.Equal(t, "run-1", accepted["run_id"])

	require.Len(t, client.started, 1)
	assert.Equal(t, "acme", client.started[0].SearchAttributes["tenant_id"])
}

func TestSetupConnectorRejectsMissingFields(t *testing.T) {
	app, _ := newTestApp()

	response, err := app.Test(newRequest(t, http.MethodPost, "/tenants/acme/connectors", map[string]any{"kind": "hubspot"}))
	require.NoError(t, err)
	assert.Equal(t, http.StatusBadRequest, response.StatusCode)
}

func TestGetExecutionNotFound(t *testing.T) {
	app, _ := newTestApp()

	response, err := app.Test(newRequest(t, http.MethodGet, "/executions/ghost", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusNotFound, response.StatusCode)
}

func TestRebuildMirrorUnavailable(t *testing.T) {
	app, _ := newTestApp()

	response, err := app.Test(newRequest(t, http.MethodPost, "/knowledge/rebuild", nil))
	require.NoError(t, err)
	assert.Equal(t, http.StatusServiceUnavailable, response.StatusCode)
}

func newRequest(t *testing.T, method string, target string, body map[string]any) *http.Request {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	request, err := http.NewRequest(method, target, reader)
	require.NoError(t, err)

	if body != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	return request
}
