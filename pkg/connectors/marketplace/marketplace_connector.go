// Package marketplace is the shared adapter for Indian e-commerce
// seller APIs. The marketplaces expose near-identical seller surfaces
// (API-key auth, JSON inventory endpoints), so one parameterized
// connector covers all of them; a vendor that diverges gets its own
// package.
package marketplace

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

var defaultBaseURLs = map[domain.ConnectorKind]string{
	domain.ConnectorKind_Meesho:   "https://supplier-api.meesho.com/v1",
	domain.ConnectorKind_Flipkart: "https://api.flipkart.net/sellers/v3",
	domain.ConnectorKind_Ajio:     "https://seller-api.ajio.com/v1",
	domain.ConnectorKind_Myntra:   "https://partner-api.myntra.com/v1",
}

func DefaultBaseURL(kind domain.ConnectorKind) string {
	return defaultBaseURLs[kind]
}

type Deps struct {
	Kind        domain.ConnectorKind
	Credentials map[string]string
	HTTPClient  *http.Client
	BaseURL     string
}

type Connector struct {
	kind       domain.ConnectorKind
	apiKey     string
	sellerID   string
	httpClient *http.Client
	baseURL    string
}

func New(deps Deps) (*Connector, error) {
	if !deps.Kind.IsMarketplace() {
		return nil, fmt.Errorf("%s is not a marketplace kind", deps.Kind)
	}

	apiKey := deps.Credentials["api_key"]
	if apiKey == "" {
		return nil, domain.NewCredentialValidationError(deps.Kind, "api_key is required")
	}

	return &Connector{
		kind:       deps.Kind,
		apiKey:     apiKey,
		sellerID:   deps.Credentials["seller_id"],
		httpClient: deps.HTTPClient,
		baseURL:    deps.BaseURL,
	}, nil
}

func (c *Connector) Kind() domain.ConnectorKind {
	return c.kind
}

func (c *Connector) ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error) {
	status, _, err := c.do(ctx, http.MethodGet, "/seller/profile", nil)
	if err != nil {
		return false, err
	}

	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		return false, nil
	case status >= 400:
		return false, fmt.Errorf("%s returned status %d", c.kind, status)
	}

	return true, nil
}

func (c *Connector) GetHealth(ctx context.Context) (domain.ConnectorHealth, error) {
	startedAt := time.Now()

	status, _, err := c.do(ctx, http.MethodGet, "/seller/profile", nil)
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
	return "", errors.New("marketplace seller APIs authenticate with a static key")
}

func (c *Connector) ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error) {
	return nil, errors.New("marketplace seller APIs authenticate with a static key")
}

// SetQuantity pushes the absolute stock level for one SKU. The
// endpoint is a full overwrite, not an increment, so replays of the
// same push are safe.
func (c *Connector) SetQuantity(ctx context.Context, sku string, quantity int64) error {
	payload := map[string]any{
		"sku":       sku,
		"quantity":  quantity,
		"seller_id": c.sellerID,
	}

	status, body, err := c.do(ctx, http.MethodPut, "/inventory/"+sku, payload)
	if err != nil {
		return err
	}
	if status >= 400 {
		return fmt.Errorf("%s inventory update returned status %d: %s", c.kind, status, string(body))
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

	request.Header.Set("Authorization", "Bearer "+c.apiKey)
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
