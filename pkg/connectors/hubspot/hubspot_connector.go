// Package hubspot adapts the HubSpot CRM v3 API to the Connector
// port. Authentication uses a private app access token.
package hubspot

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

const DefaultBaseURL = "https://api.hubapi.com"

type Deps struct {
	Credentials map[string]string
	HTTPClient  *http.Client
	BaseURL     string
}

type Connector struct {
	accessToken string
	httpClient  *http.Client
	baseURL     string
}

func New(deps Deps) (*Connector, error) {
	token := deps.Credentials["access_token"]
	if token == "" {
		token = deps.Credentials["api_key"]
	}
	if token == "" {
		return nil, domain.NewCredentialValidationError(domain.ConnectorKind_HubSpot, "access_token or api_key is required")
	}

	return &Connector{
		accessToken: token,
		httpClient:  deps.HTTPClient,
		baseURL:     deps.BaseURL,
	}, nil
}

func (c *Connector) Kind() domain.ConnectorKind {
	return domain.ConnectorKind_HubSpot
}

// ValidateCredentials probes the contacts endpoint with the supplied
// token. 401 and 403 are a clean "invalid", everything else bubbles
// up as a transport failure.
func (c *Connector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts?limit=1", nil)
	if err != nil {
		return false, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("hubspot returned status %d", status)
	}

	return true, nil
}

func (c *Connector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	startedAt := time.Now()

	status, _, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts?limit=1", nil)
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
	return "", errors.New("hubspot private apps authenticate with a static token")
}

func (c *Connector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, errors.New("hubspot private apps authenticate with a static token")
}

type contactProperties struct {
	Email     string `json:"email"`
	FirstName string `json:"firstname"`
	LastName  string `json:"lastname"`
	Company   string `json:"company"`
}

type contactObject struct {
	ID         string            `json:"id"`
	Properties contactProperties `json:"properties"`
}

type contactListResponse struct {
	Results []contactObject `json:"results"`
}

func (c *Connector) GetContacts(ctx context.Context) ([]domain.Contact, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/contacts?properties=email,firstname,lastname,company", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("hubspot list contacts returned status %d", status)
	}

	var response contactListResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode hubspot contacts: %w", err)
	}

	contacts := make([]domain.Contact, 0, len(response.Results))
	for _, object := range response.Results {
		contacts = append(contacts, contactFromObject(object))
	}

	return contacts, nil
}

func (c *Connector) GetContactByEmail(ctx context.Context, email string) (domain.Contact, error) {
	searchBody := map[string]any{
		"filterGroups": []map[string]any{{
			"filters": []map[string]any{{
				"propertyName": "email",
				"operator":     "EQ",
				"value":        email,
			}},
		}},
		"properties": []string{"email", "firstname", "lastname", "company"},
		"limit":      1,
	}

	status, body, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts/search", searchBody)
	if err != nil {
		return domain.Contact{}, err
	}
	if status >= 400 {
		return domain.Contact{}, fmt.Errorf("hubspot contact search returned status %d", status)
	}

	var response contactListResponse
	if err := json.Unmarshal(body, &response); err != nil {
		return domain.Contact{}, fmt.Errorf("decode hubspot contact search: %w", err)
	}
	if len(response.Results) == 0 {
		return domain.Contact{}, fmt.Errorf("no hubspot contact for %s", email)
	}

	return contactFromObject(response.Results[0]), nil
}

func (c *Connector) CreateContact(ctx context.Context, contact domain.Contact) (domain.Contact, error) {
	createBody := map[string]any{
		"properties": contactProperties{
			Email:     contact.Email,
			FirstName: contact.FirstName,
			LastName:  contact.LastName,
			Company:   contact.Company,
		},
	}

	status, body, err := c.do(ctx, http.MethodPost, "/crm/v3/objects/contacts", createBody)
	if err != nil {
		return domain.Contact{}, err
	}
	if status >= 400 {
		return domain.Contact{}, fmt.Errorf("hubspot create contact returned status %d", status)
	}

	var object contactObject
	if err := json.Unmarshal(body, &object); err != nil {
		return domain.Contact{}, fmt.Errorf("decode hubspot contact: %w", err)
	}

	return contactFromObject(object), nil
}

func (c *Connector) UpdateContact(ctx context.Context, contact domain.Contact) error {
	updateBody := map[string]any{
		"properties": contactProperties{
			Email:     contact.Email,
			FirstName: contact.FirstName,
			LastName:  contact.LastName,
			Company:   contact.Company,
		},
	}

	status, _, err := c.do(ctx, http.MethodPatch, "/crm/v3/objects/contacts/"+contact.ID, updateBody)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("hubspot update contact returned status %d", status)
	}

	return nil
}

type dealProperties struct {
	DealName  string `json:"dealname"`
	DealStage string `json:"dealstage"`
	Amount    string `json:"amount"`
}

type dealObject struct {
	ID         string         `json:"id"`
	Properties dealProperties `json:"properties"`
}

func (c *Connector) GetDeals(ctx context.Context) ([]domain.Deal, error) {
	status, body, err := c.do(ctx, http.MethodGet, "/crm/v3/objects/deals?properties=dealname,dealstage,amount", nil)
	if err != nil {
		return nil, err
	}
	if status >= 400 {
		return nil, fmt.Errorf("hubspot list deals returned status %d", status)
	}

	var response struct {
		Results []dealObject `json:"results"`
	}
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("decode hubspot deals: %w", err)
	}

	deals := make([]domain.Deal, 0, len(response.Results))
	for _, object := range response.Results {
		var amount int64
		fmt.Sscan(object.Properties.Amount, &amount)

		deals = append(deals, domain.Deal{
			ID:     object.ID,
			Name:   object.Properties.DealName,
			Stage:  object.Properties.DealStage,
			Amount: amount,
		})
	}

	return deals, nil
}

func contactFromObject(object contactObject) domain.Contact {
	return domain.Contact{
		ID:        object.ID,
		Email:     object.Properties.Email,
		FirstName: object.Properties.FirstName,
		LastName:  object.Properties.LastName,
		Company:   object.Properties.Company,
	}
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
