package linksync

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/providers"
)

// ReconcileResult summarizes one reconciliation pass.
type ReconcileResult struct {
	Created []*models.Account
	Updated []*models.Account
}

func (r *ReconcileResult) ExternalIds() []string {
	ids := make([]string, 0, len(r.Created)+len(r.Updated))
	for _, account := range r.Created {
		ids = append(ids, *account.ExternalAccountId)
	}
	for _, account := range r.Updated {
		ids = append(ids, *account.ExternalAccountId)
	}
	return ids
}

// ReconcileAccounts merges a provider snapshot into stored accounts keyed by
// (user, external account id). Existing rows keep their internal id and
// created-at; balances, naming and raw payload come from the provider.
// Accounts that exist locally but are absent from the snapshot stay untouched.
func ReconcileAccounts(ctx context.Context, userId string, bankLinkId uuid.UUID, incoming []providers.ProviderAccount) (*ReconcileResult, error) {
	result := &ReconcileResult{}
	if len(incoming) == 0 {
		return result, nil
	}

	externalIds := make([]string, 0, len(incoming))
	for _, account := range incoming {
		if account.ExternalId == "" {
			return nil, fmt.Errorf("provider account %q has no external id", account.Name)
		}
		externalIds = append(externalIds, account.ExternalId)
	}

	existing, err := models.ListAccountsByExternalIds(ctx, userId, externalIds)
	if err != nil {
		return nil, err
	}
	byExternalId := make(map[string]*models.Account, len(existing))
	for i := range existing {
		byExternalId[*existing[i].ExternalAccountId] = &existing[i]
	}

	batch := make([]*models.Account, 0, len(incoming))
	for _, pa := range incoming {
		if current, ok := byExternalId[pa.ExternalId]; ok {
			if current.BankLinkId != nil && *current.BankLinkId != bankLinkId {
				// Same external id under a different link is a wiring bug,
				// not data to merge. Fail loudly.
				return nil, fmt.Errorf("account %s already belongs to bank link %s", pa.ExternalId, current.BankLinkId)
			}
			applyProviderAccount(current, pa, bankLinkId)
			result.Updated = append(result.Updated, current)
			batch = append(batch, current)
			continue
		}
		created := &models.Account{
			UserId:            userId,
			ExternalAccountId: &pa.ExternalId,
		}
		applyProviderAccount(created, pa, bankLinkId)
		result.Created = append(result.Created, created)
		batch = append(batch, created)
	}

	if err := models.SaveAccounts(ctx, batch); err != nil {
		return nil, err
	}

	for _, account := range result.Created {
		if err := publishAccountEvent(ctx, config.EventKindCreated, nil, account); err != nil {
			config.LogError(config.GetLogger(), "linksync", "ReconcileAccounts", "publish created event", account.ID, err)
		}
	}
	for _, account := range result.Updated {
		if err := publishAccountEvent(ctx, config.EventKindUpdated, nil, account); err != nil {
			config.LogError(config.GetLogger(), "linksync", "ReconcileAccounts", "publish updated event", account.ID, err)
		}
	}
	return result, nil
}

func applyProviderAccount(dest *models.Account, src providers.ProviderAccount, bankLinkId uuid.UUID) {
	dest.Name = src.Name
	dest.Mask = src.Mask
	dest.MainType = src.Type
	dest.SubType = src.Subtype
	dest.CurrentBalance = src.CurrentBalance.Amount
	dest.AvailableBalance = src.AvailableBalance.Amount
	if src.CurrentBalance.Currency != "" {
		dest.Currency = src.CurrentBalance.Currency
	}
	dest.RawPayload = src.RawPayload
	linkId := bankLinkId
	dest.BankLinkId = &linkId
}
