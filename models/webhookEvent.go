package models

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/utils"
	"gorm.io/gorm"
)

// WebhookEvent correlates an asynchronous provider callback to the request
// that triggered it. COMPLETED and FAILED are terminal; status never
// regresses.
type WebhookEvent struct {
	ID           int           `gorm:"primary_key" json:"id"`
	UserId       string        `gorm:"size:64;index;not null" json:"user_id"`
	WebhookId    string        `gorm:"size:255;not null;unique" json:"webhook_id"`
	ProviderName string        `gorm:"size:50;not null" json:"provider_name"`
	Status       WebhookStatus `gorm:"size:20;not null;index" json:"status"`
	RawPayload   []byte        `gorm:"type:json" json:"raw_payload"`
	ExpiresAt    *time.Time    `json:"expires_at"`
	CompletedAt  *time.Time    `gorm:"index" json:"completed_at"`
	ErrorDetail  *string       `gorm:"type:text" json:"error_detail"`
	CreatedAt    time.Time     `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time     `gorm:"autoUpdateTime" json:"updated_at"`
}

// RegisterPendingWebhook stores the correlation token a provider returned at
// initiation time. RawPayload stays null until completion.
func RegisterPendingWebhook(ctx context.Context, userId string, providerName string, webhookId string, expiresAt *time.Time) (*WebhookEvent, error) {
	if webhookId == "" {
		return nil, errors.New("webhook id is required")
	}
	event := WebhookEvent{
		UserId:       userId,
		WebhookId:    webhookId,
		ProviderName: providerName,
		Status:       WebhookStatusPending,
		ExpiresAt:    expiresAt,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&event).Error; err != nil {
		return nil, err
	}
	return &event, nil
}

// FindPendingWebhook returns the PENDING, non-expired record for the given
// correlation key, or nil. Expiry is enforced as absence: an expired PENDING
// row resolves to "not found", not to an error.
func FindPendingWebhook(ctx context.Context, webhookId string) (*WebhookEvent, error) {
	var event WebhookEvent
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("webhook_id = ? AND status = ?", webhookId, WebhookStatusPending).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// FindPendingWebhookByUser returns the PENDING, non-expired record a user
// has open with a provider. Link-completion webhooks resolve through this.
func FindPendingWebhookByUser(ctx context.Context, userId string, providerName string) (*WebhookEvent, error) {
	var event WebhookEvent
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("user_id = ? AND provider_name = ? AND status = ?", userId, providerName, WebhookStatusPending).
		Where("expires_at IS NULL OR expires_at > ?", time.Now()).
		Order("id DESC").
		Take(&event).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &event, nil
}

// MarkWebhookCompleted transitions PENDING -> COMPLETED. Calling it on an
// already-terminal record is a no-op returning the stored record.
func MarkWebhookCompleted(ctx context.Context, id int, rawPayload []byte) (*WebhookEvent, error) {
	return markWebhookTerminal(ctx, id, WebhookStatusCompleted, rawPayload, nil)
}

// MarkWebhookFailed transitions PENDING -> FAILED, keeping the error message
// and raw payload for post-hoc diagnosis.
func MarkWebhookFailed(ctx context.Context, id int, errDetail string, rawPayload []byte) (*WebhookEvent, error) {
	return markWebhookTerminal(ctx, id, WebhookStatusFailed, rawPayload, &errDetail)
}

func markWebhookTerminal(ctx context.Context, id int, status WebhookStatus, rawPayload []byte, errDetail *string) (*WebhookEvent, error) {
	db := config.GetDB()

	var event WebhookEvent
	err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("id = ?", id).Take(&event).Error; err != nil {
			return err
		}
		if event.Status != WebhookStatusPending {
			// Terminal already; keep whatever is stored.
			return nil
		}
		now := time.Now()
		updates := map[string]interface{}{
			"status":       status,
			"raw_payload":  rawPayload,
			"completed_at": &now,
			"error_detail": errDetail,
		}
		// Guard on status so two concurrent markers cannot both win.
		res := tx.Model(&WebhookEvent{}).
			Where("id = ? AND status = ?", id, WebhookStatusPending).
			Updates(updates)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			event.Status = status
			event.RawPayload = rawPayload
			event.CompletedAt = &now
			event.ErrorDetail = errDetail
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("webhook event", strconv.Itoa(id))
		}
		return nil, err
	}
	return &event, nil
}

// DedupBaseKey derives the stable key prefix for tokenless update/status
// callbacks.
func DedupBaseKey(providerName string, eventType string, itemId string) string {
	return fmt.Sprintf("%s:%s:%s", providerName, eventType, itemId)
}

// likeEscape neutralizes LIKE metacharacters so a key is matched literally.
func likeEscape(s string) string {
	s = strings.ReplaceAll(s, `\`, `\\`)
	s = strings.ReplaceAll(s, "%", `\%`)
	s = strings.ReplaceAll(s, "_", `\_`)
	return s
}

// CheckAndRecordWindowedWebhook is the time-windowed dedup gate. If any
// COMPLETED record with the same base key finished inside the window, the
// callback is rejected as a duplicate with a readable reason. Otherwise a
// COMPLETED record with a timestamp-suffixed key is written and processing
// may proceed.
//
// Two callbacks racing inside the same window scan can both pass; this is a
// best-effort gate, and downstream sync is idempotent on its own.
func CheckAndRecordWindowedWebhook(ctx context.Context, userId string, providerName string, eventType string, itemId string, rawPayload []byte, window time.Duration) error {
	baseKey := DedupBaseKey(providerName, eventType, itemId)
	cutoff := time.Now().Add(-window)

	db := config.GetDB()

	// Stored keys are "base:unixmilli"; matching on "base:" keeps item ids
	// that prefix each other (enr_1 vs enr_12) from colliding. The base key
	// is escaped so % or _ inside an item id never acts as a wildcard.
	var recent WebhookEvent
	err := db.WithContext(ctx).
		Where("webhook_id LIKE ? AND status = ? AND completed_at > ?",
			likeEscape(baseKey)+":%", WebhookStatusCompleted, cutoff).
		Order("completed_at DESC").
		Take(&recent).Error
	if err == nil {
		return &utils.DuplicateWebhookError{
			Reason: fmt.Sprintf("%s webhook for item %s already handled at %s",
				eventType, itemId, recent.CompletedAt.UTC().Format(time.RFC3339)),
		}
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return err
	}

	now := time.Now()
	event := WebhookEvent{
		UserId:       userId,
		WebhookId:    fmt.Sprintf("%s:%d", baseKey, now.UnixMilli()),
		ProviderName: providerName,
		Status:       WebhookStatusCompleted,
		RawPayload:   rawPayload,
		CompletedAt:  &now,
	}
	return db.WithContext(ctx).Create(&event).Error
}
