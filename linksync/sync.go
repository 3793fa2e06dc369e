package linksync

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/bsm/redislock"
	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/mmdatafocus/banklink_backend/utils"
)

// SyncOutcome summarizes one bank link sync.
type SyncOutcome struct {
	BankLinkId      string `json:"bank_link_id"`
	Provider        string `json:"provider"`
	Status          string `json:"status"`
	AccountsCreated int    `json:"accounts_created"`
	AccountsUpdated int    `json:"accounts_updated"`
	Error           string `json:"error,omitempty"`
}

// SyncBankLink refreshes one link on behalf of its owner.
func (o *Orchestrator) SyncBankLink(ctx context.Context, bankLinkId uuid.UUID) (*SyncOutcome, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, fmt.Errorf("user id is required")
	}
	link, err := models.GetBankLink(ctx, bankLinkId, userId)
	if err != nil {
		return nil, err
	}
	return o.syncLink(ctx, link, models.SyncTriggeredManual)
}

// syncLink is the single-link worker: fetch accounts from the provider,
// reconcile, snapshot, refresh link metadata, and record a SyncRun either way.
func (o *Orchestrator) syncLink(ctx context.Context, link *models.BankLink, triggeredBy string) (*SyncOutcome, error) {
	outcome := &SyncOutcome{
		BankLinkId: link.ID.String(),
		Provider:   link.ProviderName,
	}

	provider, err := o.registry.Resolve(link.ProviderName)
	if err != nil {
		outcome.Status = models.SyncRunStatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	run, err := models.StartSyncRun(ctx, link.UserId, link.ID, link.ProviderName, triggeredBy)
	if err != nil {
		outcome.Status = models.SyncRunStatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	result, err := provider.GetAccounts(ctx, link.Authentication)
	if err != nil {
		err = utils.WrapProviderError(provider.Name(), err)
		_ = models.CreateSyncRunError(ctx, run.ID, link.UserId, "provider_fetch", err.Error(), nil, true)
		_ = models.FinishSyncRun(ctx, run, models.SyncRunStatusFailed, 0, 0, 1)
		_ = models.UpdateBankLinkStatus(ctx, link.ID, models.BankLinkStatusError, []byte(fmt.Sprintf("%q", err.Error())))
		outcome.Status = models.SyncRunStatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	reconciled, err := ReconcileAccounts(ctx, link.UserId, link.ID, result.Accounts)
	if err != nil {
		_ = models.CreateSyncRunError(ctx, run.ID, link.UserId, "reconcile", err.Error(), nil, false)
		_ = models.FinishSyncRun(ctx, run, models.SyncRunStatusFailed, 0, 0, 1)
		outcome.Status = models.SyncRunStatusFailed
		outcome.Error = err.Error()
		return outcome, err
	}

	errorCount := 0
	day := utils.LocalDay(time.Now(), models.UserTimezone(ctx, link.UserId))
	if err := models.RecordSyncSnapshots(ctx, append(reconciled.Created, reconciled.Updated...), day); err != nil {
		errorCount++
		_ = models.CreateSyncRunError(ctx, run.ID, link.UserId, "snapshot", err.Error(), nil, true)
		config.LogError(config.GetLogger(), "linksync", "syncLink", "record sync snapshots", link.ID, err)
	}

	if err := models.UpdateBankLinkExternalAccountIds(ctx, link.ID, reconciled.ExternalIds()); err != nil {
		errorCount++
		_ = models.CreateSyncRunError(ctx, run.ID, link.UserId, "link_metadata", err.Error(), nil, true)
	}
	if result.Institution != nil {
		if err := models.UpdateBankLinkInstitution(ctx, link, result.Institution.Id, result.Institution.Name); err != nil {
			errorCount++
			_ = models.CreateSyncRunError(ctx, run.ID, link.UserId, "link_metadata", err.Error(), nil, true)
		}
	}

	// A successful fetch clears a stale ERROR status.
	if link.Status != models.BankLinkStatusOK {
		if err := models.UpdateBankLinkStatus(ctx, link.ID, models.BankLinkStatusOK, nil); err != nil {
			errorCount++
		}
	}

	status := models.SyncRunStatusSuccess
	if errorCount > 0 {
		status = models.SyncRunStatusPartial
	}
	_ = models.FinishSyncRun(ctx, run, status, len(reconciled.Created), len(reconciled.Updated), errorCount)

	outcome.Status = status
	outcome.AccountsCreated = len(reconciled.Created)
	outcome.AccountsUpdated = len(reconciled.Updated)
	return outcome, nil
}

// SyncAllAccounts refreshes every link of the calling user. Links fail in
// isolation: one provider being down never blocks the others.
func (o *Orchestrator) SyncAllAccounts(ctx context.Context) ([]SyncOutcome, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, fmt.Errorf("user id is required")
	}
	links, err := models.ListBankLinksByUser(ctx, userId)
	if err != nil {
		return nil, err
	}
	return o.fanOutSync(ctx, links, models.SyncTriggeredManual, false), nil
}

// SyncAllAccountsSystem is the scheduled whole-system sweep. Webhook-driven
// providers are skipped (their data arrives by webhook) and a redis lock
// keeps overlapping sweeps from doubling the provider traffic.
func (o *Orchestrator) SyncAllAccountsSystem(ctx context.Context) ([]SyncOutcome, error) {
	locker := config.GetRedisLock()
	if locker != nil {
		lock, err := locker.Obtain(ctx, "lock:system-sync", 30*time.Minute, nil)
		if err == redislock.ErrNotObtained {
			config.GetLogger().Warn("system sync already running, skipping")
			return nil, nil
		}
		if err == nil {
			defer func() { _ = lock.Release(context.Background()) }()
		}
	}

	links, err := models.ListAllBankLinks(ctx)
	if err != nil {
		return nil, err
	}
	return o.fanOutSync(ctx, links, models.SyncTriggeredSystem, true), nil
}

func (o *Orchestrator) fanOutSync(ctx context.Context, links []models.BankLink, triggeredBy string, skipWebhookDriven bool) []SyncOutcome {
	sem := make(chan struct{}, config.SyncFanoutLimit())
	outcomes := make([]SyncOutcome, 0, len(links))

	var wg sync.WaitGroup
	var mu sync.Mutex
	for i := range links {
		link := links[i]
		if skipWebhookDriven {
			if provider, err := o.registry.Resolve(link.ProviderName); err == nil && providers.IsWebhookDriven(provider) {
				continue
			}
		}

		wg.Add(1)
		sem <- struct{}{}
		go func() {
			defer wg.Done()
			defer func() { <-sem }()

			linkCtx := utils.SetUserIdInContext(ctx, link.UserId)
			outcome, err := o.syncLink(linkCtx, &link, triggeredBy)
			if err != nil {
				config.LogError(config.GetLogger(), "linksync", "fanOutSync", "sync bank link", link.ID, err)
			}
			mu.Lock()
			outcomes = append(outcomes, *outcome)
			mu.Unlock()
		}()
	}
	wg.Wait()
	return outcomes
}
