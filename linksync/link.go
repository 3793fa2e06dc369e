package linksync

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/mmdatafocus/banklink_backend/utils"
)

// Orchestrator drives the link lifecycle for a fixed set of providers. The
// registry is built once at startup and never mutated after.
type Orchestrator struct {
	registry *providers.Registry
}

func NewOrchestrator(registry *providers.Registry) *Orchestrator {
	return &Orchestrator{registry: registry}
}

func (o *Orchestrator) Registry() *providers.Registry {
	return o.registry
}

// InitiateResult is what a client needs to continue the linking flow.
type InitiateResult struct {
	Provider  string     `json:"provider"`
	LinkUrl   string     `json:"link_url,omitempty"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
	// BankLinkId is set when the provider completed synchronously.
	BankLinkId string `json:"bank_link_id,omitempty"`
}

// InitiateLinking starts the flow for a provider. Webhook-driven providers
// return a link URL and get a PENDING webhook record keyed by the provider's
// correlation token; synchronous providers (no link URL, updated details in
// the session) complete on the spot.
func (o *Orchestrator) InitiateLinking(ctx context.Context, providerName string, redirectUri string, providerUserDetails []byte) (*InitiateResult, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}

	provider, err := o.registry.Resolve(providerName)
	if err != nil {
		return nil, err
	}

	if len(providerUserDetails) == 0 {
		stored, err := models.GetProviderUserDetails(ctx, userId, provider.Name())
		if err != nil {
			return nil, err
		}
		providerUserDetails = stored
	}

	session, err := provider.InitiateLinking(ctx, providers.LinkRequest{
		UserId:              userId,
		RedirectUri:         redirectUri,
		ProviderUserDetails: providerUserDetails,
	})
	if err != nil {
		return nil, utils.WrapProviderError(provider.Name(), err)
	}

	// Updated details (a fresh vendor-side user id, say) must be stored no
	// matter how the flow continues, or the next initiation re-registers the
	// user with the vendor.
	if len(session.UpdatedProviderUserDetails) > 0 {
		if err := models.SaveProviderUserDetails(ctx, userId, provider.Name(), session.UpdatedProviderUserDetails); err != nil {
			return nil, err
		}
	}

	result := &InitiateResult{
		Provider:  provider.Name(),
		LinkUrl:   session.LinkUrl,
		ExpiresAt: session.ExpiresAt,
	}

	if session.WebhookId != "" {
		if _, err := models.RegisterPendingWebhook(ctx, userId, provider.Name(), session.WebhookId, session.ExpiresAt); err != nil {
			return nil, err
		}
		return result, nil
	}

	// No webhook id means the provider finished synchronously; the session's
	// details ARE the credentials.
	if len(session.UpdatedProviderUserDetails) == 0 {
		return nil, fmt.Errorf("provider %s returned neither a webhook id nor credentials", provider.Name())
	}
	link, err := o.storeCompletion(ctx, userId, provider, providers.LinkCompletion{
		Authentication: session.UpdatedProviderUserDetails,
	})
	if err != nil {
		return nil, err
	}
	result.BankLinkId = link.ID.String()
	return result, nil
}

// completeLink resolves a link-completion webhook: the PENDING record is
// looked up by correlation id (falling back to the user's open flow), the
// provider turns the payload into credential sets, each set becomes a bank
// link with reconciled accounts, and the record goes terminal exactly once.
func (o *Orchestrator) completeLink(ctx context.Context, provider providers.Provider, correlationId string, payload []byte) error {
	pending, err := models.FindPendingWebhook(ctx, correlationId)
	if err != nil {
		return err
	}
	if pending == nil {
		// Expired or never registered. Drop without a terminal write; there
		// is nothing to transition.
		config.GetLogger().WithFields(map[string]interface{}{
			"provider":       provider.Name(),
			"correlation_id": correlationId,
		}).Warn("link completion webhook with no pending record, dropping")
		return nil
	}

	ctx = utils.SetUserIdInContext(ctx, pending.UserId)

	completions, err := provider.ProcessWebhook(ctx, payload)
	if err != nil {
		_, _ = models.MarkWebhookFailed(ctx, pending.ID, err.Error(), payload)
		return utils.WrapProviderError(provider.Name(), err)
	}
	if len(completions) == 0 {
		_, _ = models.MarkWebhookFailed(ctx, pending.ID, "no credential sets in completion payload", payload)
		return fmt.Errorf("provider %s returned no credential sets", provider.Name())
	}

	var failures []error
	for _, completion := range completions {
		if _, err := o.storeCompletion(ctx, pending.UserId, provider, completion); err != nil {
			failures = append(failures, err)
		}
	}
	if len(failures) > 0 {
		detail := utils.JoinNonNil(failures)
		_, _ = models.MarkWebhookFailed(ctx, pending.ID, detail, payload)
		return errors.New(detail)
	}

	_, err = models.MarkWebhookCompleted(ctx, pending.ID, payload)
	return err
}

// storeCompletion persists one credential set as a bank link and runs the
// first account sync against it.
func (o *Orchestrator) storeCompletion(ctx context.Context, userId string, provider providers.Provider, completion providers.LinkCompletion) (*models.BankLink, error) {
	itemId := completion.ItemId
	if itemId == "" {
		if identifier, ok := provider.(providers.ItemIdentifier); ok {
			itemId, _ = identifier.GetItemId(completion.Authentication)
		}
	}

	// Relinking the same item updates credentials in place instead of
	// creating a duplicate link.
	if itemId != "" {
		existing, err := models.FindBankLinkByItemId(ctx, provider.Name(), itemId)
		if err != nil {
			return nil, err
		}
		if existing != nil && existing.UserId == userId {
			if err := models.UpdateBankLinkAuthentication(ctx, existing.ID, completion.Authentication); err != nil {
				return nil, err
			}
			existing.Authentication = completion.Authentication
			if err := models.UpdateBankLinkStatus(ctx, existing.ID, models.BankLinkStatusOK, nil); err != nil {
				return nil, err
			}
			if _, err := o.syncLink(ctx, existing, models.SyncTriggeredWebhook); err != nil {
				return nil, err
			}
			return existing, nil
		}
	}

	link := &models.BankLink{
		UserId:         userId,
		ProviderName:   provider.Name(),
		Authentication: completion.Authentication,
		ProviderItemId: itemId,
	}
	if completion.Institution != nil {
		link.InstitutionId = completion.Institution.Id
		link.InstitutionName = completion.Institution.Name
	}
	link, err := models.CreateBankLink(ctx, link)
	if err != nil {
		return nil, err
	}

	// The completion payload may already carry the accounts; use them and
	// skip one provider round trip.
	if len(completion.Accounts) > 0 {
		result, err := ReconcileAccounts(ctx, userId, link.ID, completion.Accounts)
		if err != nil {
			return nil, err
		}
		if err := models.RecordSyncSnapshots(ctx, append(result.Created, result.Updated...), utils.LocalDay(time.Now(), models.UserTimezone(ctx, userId))); err != nil {
			return nil, err
		}
		if err := models.UpdateBankLinkExternalAccountIds(ctx, link.ID, result.ExternalIds()); err != nil {
			return nil, err
		}
		return link, nil
	}

	if _, err := o.syncLink(ctx, link, models.SyncTriggeredWebhook); err != nil {
		return nil, err
	}
	return link, nil
}
