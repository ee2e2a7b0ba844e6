// Package asana adapts the Asana REST API to the Connector port and
// its project-management capability set. Authentication uses a
// personal access token.
package asana

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/syncline/syncline/pkg/domain"

	"golang.org/x/oauth2"
)

const DefaultBaseURL = "https://app.asana.com/api/1.0"

type Deps struct {
	Credentials map[string]string
	HTTPClient  *http.Client
	BaseURL     string
}

type Connector struct {
	accessToken string
	workspace   string
	httpClient  *http.Client
	baseURL     string
}

func New(deps Deps) (*Connector, error) {
	token := deps.Credentials["access_token"]
	if token == "" {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_Asana, "access_token is required")
	}

	return &Connector{
		accessToken: token,
		workspace:   deps.Credentials["workspace_id"],
		httpClient:  deps.HTTPClient,
		baseURL:     deps.BaseURL,
	}, nil
}

func (c *Connector) Kind() domain.ConnectorKind {
	return domain.ConnectorKind_Asana
}

func (c *Connector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return false, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("asana returned status %d", status)
	}

	return true, nil
}

func (c *Connector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	startedAt := time.Now()

	status, _, err := c.do(ctx, http.MethodGet, "/users/me", nil)
	if err != nil {
		return domain.ConnectorHealth{Status: domain.HealthStatusDown}, err
	}

	health := domain.ConnectorHealth{
		Status:  domain.HealthStatusHealthy,
		Latency: time.Since(startedAt),
	}
	if status >= 400 {
		health.Status = domain.HealthStatusDegraded
	}

	return health, nil
}

func (c *Connector) GetAuthorizeURL(state string) (string, error) {
	return "", errors.New("asana personal access tokens do not use the authorization code flow")
}

func (c *Connector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, errors.New("asana personal access tokens do not use the authorization code flow")
}

type resourceData struct {
	GID  string `json:"gid"`
	Name string `json:"name"`
}

func (c *Connector) GetProjects(ctx context.Context) ([]domain.Project, error) {
	path := "/projects"
	if c.workspace != "" {
		path += "?workspace=" + c.workspace
	}

	status, body, err := c.do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("asana list projects returned status %d", status)
	}

	var response struct {
		Data []resourceData `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode asana projects: %w", err)
	}

	projects := make([]domain.Project, 0, len(response.Data))
	for _, project := range response.Data {
		projects = append(projects, domain.Project{ID: project.GID, Name: project.Name})
	}

	return projects, nil
}

type taskData struct {
	GID       string `json:"gid"`
	Name      string `json:"name"`
	Completed bool   `json:"completed"`
}

func (c *Connector) GetTasks(ctx context.Context, projectID string) ([]domain.ProjectTask, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/projects/"+projectID+"/tasks?opt_fields=name,completed", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("asana list tasks returned status %d", status)
	}

	var response struct {
		Data []taskData `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode asana tasks: %w", err)
	}

	tasks := make([]domain.ProjectTask, 0, len(response.Data))
	for _, task := range response.Data {
		taskStatus := "open"
		if task.Completed {
			taskStatus = "completed"
		}

		tasks = append(tasks, domain.ProjectTask{
			ID:        task.GID,
			ProjectID: projectID,
			Name:      task.Name,
			Status:    taskStatus,
		})
	}

	return tasks, nil
}

func (c *Connector) CreateTask(ctx context.Context, task domain.ProjectTask) (domain.ProjectTask, error) {
	createBody := map[string]any{
		"data": map[string]any{
			"name":     task.Name,
			"projects": []string{task.ProjectID},
		},
	}

	status, body, err := c.do(ctx, http.MethodPost, "/tasks", createBody)
	if err != nil {
		return domain.ProjectTask{}, err
	}
	if status >= 400 {
		return domain.ProjectTask{}, fmt.Errorf("asana create task returned status %d", status)
	}

	var response struct {
		Data taskData `json:"data"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return domain.ProjectTask{}, fmt.Errorf("decode asana task: %w", err)
	}

	task.ID = response.Data.GID
	task.Status = "open"

	return task, nil
}

func (c *Connector) UpdateTaskStatus(ctx context.Context, taskID string, taskStatus string) error {
	updateBody := map[string]any{
		"data": map[string]any{
			"completed": taskStatus == "completed",
		},
	}

	status, _, err := c.do(ctx, http.MethodPut, "/tasks/"+taskID, updateBody)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("asana update task returned status %d", status)
	}

	return nil
}

func (c *Connector) do(ctx context.Context, method string, path string, payload any) (int, []byte, error) {
	var requestBody io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return 0, nil, err
		}
		requestBody = bytes.NewReader(encoded)
	}

	request, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, requestBody)
	if err != nil {
		return 0, nil, err
	}

	request.Header.Set("Authorization", "Bearer "+c.accessToken)
	if payload != nil {
		request.Header.Set("Content-Type", "application/json")
	}

	response, err := c.httpClient.Do(request)
	if err != nil {
		return 0, nil, err
	}
	defer response.Body.Close()

	body, err := io.ReadAll(response.Body)
	if err != nil {
		return 0, nil, err
	}

	return response.StatusCode, body, nil
}
