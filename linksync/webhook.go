package linksync

import (
	"context"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/mmdatafocus/banklink_backend/utils"
)

// HandleWebhook is the single entry point for provider callbacks. The
// signature gate runs before anything is parsed or persisted; after that the
// payload is classified in order: link status, data update, link completion.
// Unclassifiable payloads are logged and dropped, never retried.
//
// Duplicate update/status callbacks inside the dedup window come back as
// DuplicateWebhookError; callers should treat that as success so the sender
// stops retrying.
func (o *Orchestrator) HandleWebhook(ctx context.Context, providerName string, rawBody []byte, headers map[string]string) error {
	provider, err := o.registry.Resolve(providerName)
	if err != nil {
		return err
	}

	if !provider.VerifyWebhook(rawBody, headers) {
		return &utils.UnauthorizedError{Reason: "webhook signature verification failed"}
	}

	if parser, ok := provider.(providers.StatusWebhookParser); ok {
		if hint, ok := parser.ParseStatusWebhook(rawBody); ok {
			return o.handleStatusWebhook(ctx, provider, hint, rawBody)
		}
	}

	if parser, ok := provider.(providers.UpdateWebhookParser); ok {
		if hint, ok := parser.ParseUpdateWebhook(rawBody); ok {
			return o.handleUpdateWebhook(ctx, provider, hint, rawBody)
		}
	}

	if correlationId, ok := provider.ShouldProcessWebhook(rawBody); ok {
		return o.completeLink(ctx, provider, correlationId, rawBody)
	}

	config.GetLogger().WithFields(map[string]interface{}{
		"provider": provider.Name(),
		"bytes":    len(rawBody),
	}).Info("unclassified webhook payload, dropping")
	return nil
}

// handleStatusWebhook records a provider's verdict on link health. The link
// is resolved by item id; unknown items are dropped.
func (o *Orchestrator) handleStatusWebhook(ctx context.Context, provider providers.Provider, hint *providers.StatusHint, rawBody []byte) error {
	link, err := models.FindBankLinkByItemId(ctx, provider.Name(), hint.ItemId)
	if err != nil {
		return err
	}
	if link == nil {
		config.GetLogger().WithFields(map[string]interface{}{
			"provider": provider.Name(),
			"item_id":  hint.ItemId,
		}).Warn("status webhook for unknown item, dropping")
		return nil
	}

	if err := models.CheckAndRecordWindowedWebhook(ctx, link.UserId, provider.Name(), "status:"+hint.Status, hint.ItemId, rawBody, config.WebhookDedupWindow()); err != nil {
		return err
	}

	ctx = utils.SetUserIdInContext(ctx, link.UserId)
	if err := models.UpdateBankLinkStatus(ctx, link.ID, models.BankLinkStatus(hint.Status), hint.StatusBody); err != nil {
		return err
	}

	if hint.TriggerSync {
		if _, err := o.syncLink(ctx, link, models.SyncTriggeredWebhook); err != nil {
			return err
		}
	}
	return nil
}

// handleUpdateWebhook reacts to a data-available callback with a sync of the
// affected link, gated by the time-windowed dedup ledger.
func (o *Orchestrator) handleUpdateWebhook(ctx context.Context, provider providers.Provider, hint *providers.UpdateHint, rawBody []byte) error {
	link, err := models.FindBankLinkByItemId(ctx, provider.Name(), hint.ItemId)
	if err != nil {
		return err
	}
	if link == nil {
		config.GetLogger().WithFields(map[string]interface{}{
			"provider":   provider.Name(),
			"item_id":    hint.ItemId,
			"event_type": hint.EventType,
		}).Warn("update webhook for unknown item, dropping")
		return nil
	}

	if err := models.CheckAndRecordWindowedWebhook(ctx, link.UserId, provider.Name(), hint.EventType, hint.ItemId, rawBody, config.WebhookDedupWindow()); err != nil {
		return err
	}

	ctx = utils.SetUserIdInContext(ctx, link.UserId)
	_, err = o.syncLink(ctx, link, models.SyncTriggeredWebhook)
	return err
}
