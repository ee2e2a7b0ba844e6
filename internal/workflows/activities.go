package workflows

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/syncline/syncline/internal/secrets"
	"github.com/syncline/syncline/pkg/domain"
)

// Activities holds the side-effecting operations workflows dispatch to
// the engine's worker pool. Every method must be idempotent: the
// engine retries ambiguous failures, so an activity may run more than
// once for the same logical step.
type Activities struct {
	selector    domain.ConnectorSelector
	secrets     domain.SecretStore
	credentials domain.CredentialRepository
	knowledge   domain.KnowledgeRecorder
}

type ActivityDeps struct {
	Selector    domain.ConnectorSelector
	Secrets     domain.SecretStore
	Credentials domain.CredentialRepository
	Knowledge   domain.KnowledgeRecorder
}

func NewActivities(deps ActivityDeps) *Activities {
	return &Activities{
		selector:    deps.Selector,
		secrets:     deps.Secrets,
		credentials: deps.Credentials,
		knowledge:   deps.Knowledge,
	}
}

// RegisterPendingCredential upserts the connector's credential row in
// pending status. Config is sanitized by the repository before it is
// stored; the secret material itself never reaches this table. The
// repository enforces the status state machine, so a setup against a
// terminated or still-connected registration fails here instead of
// resurrecting the row.
func (a *Activities) RegisterPendingCredential(ctx context.Context, p domain.ConnectorSetupParams) error {
	err := a.credentials.Upsert(ctx, domain.ConnectorCredential{
		TenantID:    p.TenantID,
		ConnectorID: p.ConnectorID,
		Kind:        p.Kind,
		SecretPath:  domain.ConnectorSecretPath(p.TenantID, p.ConnectorID),
		Status:      domain.CredentialStatus_Pending,
		Config:      p.Config,
	})
	if errors.Is(err, domain.ErrIllegalStatusTransition) {
		return domain.NewApplicationError("credential_not_registrable", err.Error())
	}

	return err
}

// ValidateCredentials constructs the connector against the supplied
// credentials and asks it to verify them against the vendor. A clean
// "invalid" answer maps to CredentialValidationError so the retry
// policy does not hammer the vendor with known-bad credentials.
func (a *Activities) ValidateCredentials(ctx context.Context, kind domain.ConnectorKind, tenantID string, creds map[string]string) error {
	connector, err := a.selector.Create(ctx, kind, domain.CreateConnectorParams{
		TenantID:    tenantID,
		Credentials: creds,
	})
	if err != nil {
		return err
	}

	valid, err := connector.ValidateCredentials(ctx, creds)
	if err != nil {
		return domain.NewTransientConnectorError(kind, "validate_credentials", err)
	}
	if !valid {
		return domain.NewCredentialValidationError(kind, "credentials rejected by vendor")
	}

	return nil
}

// tenantSecrets wraps the root store in the tenant's namespace guard.
// Activity code can only touch paths under the calling tenant.
func (a *Activities) tenantSecrets(tenantID string) domain.SecretStore {
	return secrets.NewTenantScopedStore(a.secrets, tenantID)
}

func (a *Activities) PersistSecret(ctx context.Context, tenantID string, connectorID string, kind domain.ConnectorKind, creds map[string]string) error {
	path := domain.ConnectorSecretPath(tenantID, connectorID)

	return a.tenantSecrets(tenantID).StoreSecret(ctx, path, creds, &domain.SecretMetadata{
		Tags: map[string]string{
			"tenant_id":      tenantID,
			"connector_kind": string(kind),
		},
	})
}

// SyncResource runs one initial-sync pass for a resource the connector
// kind exposes. The pull itself is a capability call; connectors whose
// kind declares a resource but lack the capability fail the resource,
// not the workflow.
func (a *Activities) SyncResource(ctx context.Context, p domain.ConnectorSetupParams, resource string) error {
	connector, err := a.selector.Create(ctx, p.Kind, domain.CreateConnectorParams{
		TenantID:    p.TenantID,
		Credentials: p.Credentials,
	})
	if err != nil {
		return err
	}

	switch resource {
	case "contacts":
		crm, ok := connector.(domain.CRMConnector)
		if !ok {
			return domain.NewApplicationError("capability_missing", fmt.Sprintf("%s does not expose contacts", p.Kind))
		}
		_, err = crm.GetContacts(ctx)
	case "deals", "pipelines":
		crm, ok := connector.(domain.CRMConnector)
		if !ok {
			return domain.NewApplicationError("capability_missing", fmt.Sprintf("%s does not expose %s", p.Kind, resource))
		}
		_, err = crm.GetDeals(ctx)
	default:
		// Metadata, historical windows and other kind-specific
		// resources reduce to a reachability probe here; the vendor
		// pull happens on the recurring sync schedule.
		_, err = connector.GetHealth(ctx)
	}

	if err != nil {
		return domain.NewTransientConnectorError(p.Kind, "sync_"+resource, err)
	}

	return nil
}

func (a *Activities) MarkCredentialStatus(ctx context.Context, tenantID string, connectorID string, status domain.CredentialStatus, validatedAt *time.Time) error {
	return a.credentials.UpdateStatus(ctx, tenantID, connectorID, status, validatedAt)
}

// marketplaceTarget is one resolved fan-out destination of an
// inventory lock.
type marketplaceTarget struct {
	Kind        domain.ConnectorKind
	ConnectorID string
	SecretPath  string
}

// ResolveMarketplaceTargets picks the marketplaces an inventory lock
// fans out to: the tenant's connected marketplace connectors, or the
// full marketplace set when the tenant has none registered yet.
func (a *Activities) ResolveMarketplaceTargets(ctx context.Context, tenantID string) ([]marketplaceTarget, error) {
	connected, err := a.credentials.ListConnected(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	var targets []marketplaceTarget
	for _, credential := range connected {
		if !credential.Kind.IsMarketplace() {
			continue
		}

		targets = append(targets, marketplaceTarget{
			Kind:        credential.Kind,
			ConnectorID: credential.ConnectorID,
			SecretPath:  credential.SecretPath,
		})
	}

	if len(targets) == 0 {
		for _, kind := range domain.MarketplaceKinds {
			targets = append(targets, marketplaceTarget{
				Kind:        kind,
				ConnectorID: string(kind),
				SecretPath:  domain.ConnectorSecretPath(tenantID, string(kind)),
			})
		}
	}

	return targets, nil
}

// PushQuantity sets the stock level for one SKU on one marketplace.
func (a *Activities) PushQuantity(ctx context.Context, tenantID string, target marketplaceTarget, sku string, quantity int64) error {
	secret, err := a.tenantSecrets(tenantID).GetSecret(ctx, target.SecretPath)
	if err != nil {
		return fmt.Errorf("load credentials for %s: %w", target.Kind, err)
	}

	connector, err := a.selector.Create(ctx, target.Kind, domain.CreateConnectorParams{
		TenantID:    tenantID,
		Credentials: secret.Data,
	})
	if err != nil {
		return err
	}

	marketplace, ok := connector.(domain.MarketplaceConnector)
	if !ok {
		return domain.NewApplicationError("capability_missing", fmt.Sprintf("%s cannot set stock levels", target.Kind))
	}

	if err := marketplace.SetQuantity(ctx, sku, quantity); err != nil {
		return domain.NewTransientConnectorError(target.Kind, "set_quantity", err)
	}

	return nil
}

// RecordToolPair reports one co-use observation to the knowledge
// graph. Graph-side failures degrade inside the recorder, so an error
// here means the relational source of truth rejected the write.
func (a *Activities) RecordToolPair(ctx context.Context, source string, target string) error {
	_, err := a.knowledge.RecordInteraction(ctx, source, target, true)
	return err
}

// TerminateCredential soft-deletes the connector registration and
// removes its secret. The credential row stays behind in terminated
// status as the audit trail of the registration.
func (a *Activities) TerminateCredential(ctx context.Context, tenantID string, connectorID string) error {
	return a.credentials.UpdateStatus(ctx, tenantID, connectorID, domain.CredentialStatus_Terminated, nil)
}

func (a *Activities) RemoveSecret(ctx context.Context, tenantID string, connectorID string) error {
	err := a.tenantSecrets(tenantID).DeleteSecret(ctx, domain.ConnectorSecretPath(tenantID, connectorID))
	if err != nil && !errors.Is(err, domain.ErrSecretNotFound) {
		return err
	}

	return nil
}
