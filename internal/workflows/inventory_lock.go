package workflows

import (
	"context"
	"fmt"
	"time"

	"github.com/syncline/syncline/internal/engine"
	"github.com/syncline/syncline/pkg/domain"
)

// InventoryLock broadcasts a SKU's stock level to every marketplace
// the tenant sells on. Saga semantics: every target is attempted and
// reported independently, a failed marketplace never rolls back or
// blocks the others, and the result always carries one entry per
// target.
func (w *Workflows) InventoryLock(wc *engine.Context, args any) (any, error) {
	p, ok := args.(domain.InventoryLockParams)
	if !ok {
		return nil, domain.NewApplicationError("bad_arguments", fmt.Sprintf("inventory lock got %T", args))
	}

	logger := wc.Logger().With().
		Str("tenant_id", p.TenantID).
		Str("sku", p.SKU).
		Int64("quantity", p.Quantity).
		Logger()

	var targets []marketplaceTarget

	if len(p.Marketplaces) > 0 {
		for _, kind := range p.Marketplaces {
			targets = append(targets, marketplaceTarget{
				Kind:        kind,
				ConnectorID: string(kind),
				SecretPath:  domain.ConnectorSecretPath(p.TenantID, string(kind)),
			})
		}
	} else {
		resolved, err := engine.ExecuteActivity(wc, "resolve_marketplace_targets", engine.ActivityOptions{
			Timeout:     10 * time.Second,
			RetryPolicy: domain.DefaultRetryPolicy(),
		}, func(ctx context.Context) ([]marketplaceTarget, error) {
			return w.activities.ResolveMarketplaceTargets(ctx, p.TenantID)
		})
		if err != nil {
			return nil, err
		}

		targets = resolved
	}

	wc.SetTotalSteps(1 + len(targets))

	details := make([]domain.MarketplaceResult, 0, len(targets))

	for _, target := range targets {
		target := target

		_, pushErr := engine.ExecuteActivity(wc, "push_quantity_"+string(target.Kind), engine.ActivityOptions{
			Timeout:      30 * time.Second,
			RetryPolicy:  domain.DefaultRetryPolicy(),
			CostEstimate: 0.001,
		}, func(ctx context.Context) (struct{}, error) {
			return struct{}{}, w.activities.PushQuantity(ctx, p.TenantID, target, p.SKU, p.Quantity)
		})

		detail := domain.MarketplaceResult{Marketplace: target.Kind, Result: "ok"}
		if pushErr != nil {
			detail.Result = "failed"
			detail.Error = pushErr.Error()
			logger.Warn().Err(pushErr).Str("marketplace", string(target.Kind)).Msg("Inventory push failed for marketplace")
		}

		details = append(details, detail)
	}

	logger.Info().Int("targets", len(targets)).Msg("Inventory lock broadcast finished")

	return domain.InventoryLockResult{
		Status:  "inventory_locked",
		SKU:     p.SKU,
		Details: details,
	}, nil
}
