package domain

import (
	"context"
	"errors"
	"time"

	"golang.org/x/oauth2"
)

var (
	ErrConnectorNotFound = errors.New("connector not found")
)

type ConnectorKind string

const (
	ConnectorKind_Generic          ConnectorKind = "generic"
	ConnectorKind_HubSpot          ConnectorKind = "hubspot"
	ConnectorKind_ZohoCRM          ConnectorKind = "zoho_crm"
	ConnectorKind_Pipedrive        ConnectorKind = "pipedrive"
	ConnectorKind_Shopify          ConnectorKind = "shopify"
	ConnectorKind_Meesho           ConnectorKind = "meesho"
	ConnectorKind_Flipkart         ConnectorKind = "flipkart"
	ConnectorKind_Ajio             ConnectorKind = "ajio"
	ConnectorKind_Myntra           ConnectorKind = "myntra"
	ConnectorKind_GoogleAnalytics4 ConnectorKind = "google_analytics_4"
	ConnectorKind_SearchConsole    ConnectorKind = "search_console"
	ConnectorKind_Asana            ConnectorKind = "asana"
)

// MarketplaceKinds is the default fan-out target set for inventory
// lockouts when a tenant has no explicit active-connector list.
var MarketplaceKinds = []ConnectorKind{
	ConnectorKind_Meesho,
	ConnectorKind_Flipkart,
	ConnectorKind_Ajio,
	ConnectorKind_Myntra,
}

func (k ConnectorKind) IsCRM() bool {
	switch k {
	case ConnectorKind_HubSpot, ConnectorKind_ZohoCRM, ConnectorKind_Pipedrive:
		return true
	}
	return false
}

func (k ConnectorKind) IsAnalytics() bool {
	switch k {
	case ConnectorKind_GoogleAnalytics4, ConnectorKind_SearchConsole:
		return true
	}
	return false
}

func (k ConnectorKind) IsMarketplace() bool {
	switch k {
	case ConnectorKind_Shopify, ConnectorKind_Meesho, ConnectorKind_Flipkart, ConnectorKind_Ajio, ConnectorKind_Myntra:
		return true
	}
	return false
}

// SyncResources returns the resource list pulled during a connector's
// initial sync. Analytics connectors backfill thirty days of history,
// CRM connectors pull their core objects, everything else runs a
// single generic pass.
func (k ConnectorKind) SyncResources() []string {
	switch {
	case k.IsAnalytics():
		return []string{"metadata", "historical_30d"}
	case k.IsCRM():
		return []string{"contacts", "deals", "pipelines"}
	default:
		return []string{"initial_sync"}
	}
}

type ConnectorHealth struct {
	Status  string        `json:"status"`
	Latency time.Duration `json:"latency"`
}

const (
	HealthStatusHealthy  = "healthy"
	HealthStatusDegraded = "degraded"
	HealthStatusDown     = "down"
)

// Connector is the base capability set every external-system adapter
// implements. Domain extensions (CRMConnector, ProjectConnector,
// MarketplaceConnector) are discovered by type assertion; callers must
// check capability, never assume it.
type Connector interface {
	Kind() ConnectorKind
	ValidateCredentials(ctx context.Context, creds map[string]string) (bool, error)
	GetHealth(ctx context.Context) (ConnectorHealth, error)
	GetAuthorizeURL(state string) (string, error)
	ExchangeCodeForToken(ctx context.Context, code string) (*oauth2.Token, error)
}

type Contact struct {
	ID        string `json:"id"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Company   string `json:"company"`
}

type Deal struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Stage  string `json:"stage"`
	Amount int64  `json:"amount"`
}

type Project struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type ProjectTask struct {
	ID        string `json:"id"`
	ProjectID string `json:"project_id"`
	Name      string `json:"name"`
	Status    string `json:"status"`
}

// CRMConnector is the capability set CRM-kind adapters add on top of
// the base Connector contract.
type CRMConnector interface {
	Connector
	GetContacts(ctx context.Context) ([]Contact, error)
	GetContactByEmail(ctx context.Context, email string) (Contact, error)
	CreateContact(ctx context.Context, contact Contact) (Contact, error)
	UpdateContact(ctx context.Context, contact Contact) error
	GetDeals(ctx context.Context) ([]Deal, error)
}

// ProjectConnector is the capability set project-management adapters add.
type ProjectConnector interface {
	Connector
	GetProjects(ctx context.Context) ([]Project, error)
	GetTasks(ctx context.Context, projectID string) ([]ProjectTask, error)
	CreateTask(ctx context.Context, task ProjectTask) (ProjectTask, error)
	UpdateTaskStatus(ctx context.Context, taskID string, status string) error
}

// MarketplaceConnector is implemented by sales-channel adapters that
// can push stock levels.
type MarketplaceConnector interface {
	Connector
	SetQuantity(ctx context.Context, sku string, quantity int64) error
}
