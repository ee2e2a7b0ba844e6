package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/syncline/syncline/internal/engine"
	"github.com/syncline/syncline/pkg/domain"
)

// ConnectorSetup provisions a tenant's connector end to end: register
// the credential in pending status, validate against the vendor,
// persist the secret, run the kind's initial syncs and mark the
// credential connected. Invalid credentials never reach the secret
// store; a secret-persist failure after validation lands the
// credential in error status, never connected. Partial sync failures
// degrade the result but still connect.
func (w *Workflows) ConnectorSetup(wc *engine.Context, args any) (any, error) {
	p, ok := args.(domain.ConnectorSetupParams)
	if !ok {
		return nil, domain.NewApplicationError("bad_arguments", fmt.Sprintf("connector setup got %T", args))
	}

	logger := wc.Logger().With().
		Str("tenant_id", p.TenantID).
		Str("connector_id", p.ConnectorID).
		Str("connector_kind", string(p.Kind)).
		Logger()

	resources := p.Kind.SyncResources()
	wc.SetTotalSteps(4 + len(resources))

	_, err := engine.ExecuteActivity(wc, "register_pending_credential", engine.ActivityOptions{
		Timeout:     10 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.RegisterPendingCredential(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	_, err = engine.ExecuteActivity(wc, "validate_credentials", engine.ActivityOptions{
		Timeout:     30 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.ValidateCredentials(ctx, p.Kind, p.TenantID, p.Credentials)
	})
	if err != nil {
		logger.Warn().Err(err).Msg("Credential validation failed, connector moved to error status")
		w.markError(wc, p)
		return nil, err
	}

	_, err = engine.ExecuteActivity(wc, "persist_secret", engine.ActivityOptions{
		Timeout:     10 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.PersistSecret(ctx, p.TenantID, p.ConnectorID, p.Kind, p.Credentials)
	})
	if err != nil {
		logger.Error().Err(err).Msg("Secret persistence failed after validation, connector moved to error status")
		w.markError(wc, p)
		return nil, err
	}

	summaries := make([]domain.SyncSummary, 0, len(resources))
	degraded := false

	for _, resource := range resources {
		resource := resource

		_, syncErr := engine.ExecuteActivity(wc, "sync_"+resource, engine.ActivityOptions{
			Timeout:      time.Hour,
			RetryPolicy:  domain.DefaultRetryPolicy(),
			CostEstimate: 0.01,
		}, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.activities.SyncResource(ctx, p, resource)
		})

		summary := domain.SyncSummary{Resource: resource, Status: "completed"}
		if syncErr != nil {
			degraded = true
			summary.Status = "failed"
			summary.Error = syncErr.Error()
			logger.Warn().Err(syncErr).Str("resource", resource).Msg("Initial sync failed for resource")
		}

		summaries = append(summaries, summary)
	}

	validatedAt := time.Now().UTC()

	_, err = engine.ExecuteActivity(wc, "mark_connected", engine.ActivityOptions{
		Timeout:     10 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.MarkCredentialStatus(ctx, p.TenantID, p.ConnectorID, domain.CredentialStatus_Connected, &validatedAt)
	})
	if err != nil {
		return nil, err
	}

	if degraded {
		logger.Warn().Msg("Connector connected with degraded initial sync")
	} else {
		logger.Info().Msg("Connector connected")
	}

	return domain.ConnectorSetupResult{
		Status:        "connected",
		ConnectorID:   p.ConnectorID,
		SyncSummaries: summaries,
	}, nil
}

// markError pushes the credential into error status on a failed setup
// path. Best effort: the setup error is what surfaces, not this one.
func (w *Workflows) markError(wc *engine.Context, p domain.ConnectorSetupParams) {
	_, err := engine.ExecuteActivity(wc, "mark_error", engine.ActivityOptions{
		Timeout:     10 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.MarkCredentialStatus(ctx, p.TenantID, p.ConnectorID, domain.CredentialStatus_Error, nil)
	})
	if err != nil {
		logger := wc.Logger()
		logger.Error().Err(err).Msg("Failed to record error status for credential")
	}
}

// ConnectorDisconnect soft-deletes a connector registration: the
// credential moves to terminated (a final status) and the secret is
// removed from the store. The credential row remains for audit.
func (w *Workflows) ConnectorDisconnect(wc *engine.Context, args any) (any, error) {
	p, ok := args.(domain.ConnectorDisconnectParams)
	if !ok {
		return nil, domain.NewApplicationError("bad_arguments", fmt.Sprintf("connector disconnect got %T", args))
	}

	wc.SetTotalSteps(2)

	_, err := engine.ExecuteActivity(wc, "terminate_credential", engine.ActivityOptions{
		Timeout:     10 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.TerminateCredential(ctx, p.TenantID, p.ConnectorID)
	})
	if err != nil {
		return nil, err
	}

	_, err = engine.ExecuteActivity(wc, "remove_secret", engine.ActivityOptions{
		Timeout:     10 * time.Second,
		RetryPolicy: domain.DefaultRetryPolicy(),
	}, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, w.activities.RemoveSecret(ctx, p.TenantID, p.ConnectorID)
	})
	if err != nil {
		return nil, err
	}

	logger := wc.Logger()
	logger.Info().Str("connector_id", p.ConnectorID).Msg("Connector disconnected")

	return domain.ConnectorDisconnectResult{
		Status:      "terminated",
		ConnectorID: p.ConnectorID,
	}, nil
}
