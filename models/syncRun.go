package models

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/config"
)

// SyncRun records one sync of one bank link, making the failure-isolated
// fan-out observable after the fact.
type SyncRun struct {
	ID              int        `gorm:"primary_key" json:"id"`
	UserId          string     `gorm:"size:64;index;not null" json:"user_id"`
	BankLinkId      uuid.UUID  `gorm:"index;not null" json:"bank_link_id"`
	ProviderName    string     `gorm:"size:50;not null" json:"provider_name"`
	Status          string     `gorm:"size:20;not null" json:"status"`
	TriggeredBy     string     `gorm:"size:20" json:"triggered_by"`
	AccountsCreated int        `json:"accounts_created"`
	AccountsUpdated int        `json:"accounts_updated"`
	ErrorCount      int        `json:"error_count"`
	StartedAt       *time.Time `json:"started_at"`
	FinishedAt      *time.Time `json:"finished_at"`
	DurationMs      int64      `json:"duration_ms"`
	CreatedAt       time.Time  `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt       time.Time  `gorm:"autoUpdateTime" json:"updated_at"`
}

type SyncRunError struct {
	ID          int       `gorm:"primary_key" json:"id"`
	SyncRunId   int       `gorm:"index;not null" json:"sync_run_id"`
	UserId      string    `gorm:"size:64;index;not null" json:"user_id"`
	ErrorCode   string    `gorm:"size:64" json:"error_code"`
	Message     string    `gorm:"type:text" json:"message"`
	PayloadJSON []byte    `gorm:"type:json" json:"payload"`
	Retryable   bool      `gorm:"default:false" json:"retryable"`
	CreatedAt   time.Time `gorm:"autoCreateTime" json:"created_at"`
}

func StartSyncRun(ctx context.Context, userId string, bankLinkId uuid.UUID, providerName string, triggeredBy string) (*SyncRun, error) {
	now := time.Now()
	run := SyncRun{
		UserId:       userId,
		BankLinkId:   bankLinkId,
		ProviderName: providerName,
		Status:       SyncRunStatusRunning,
		TriggeredBy:  triggeredBy,
		StartedAt:    &now,
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&run).Error; err != nil {
		return nil, err
	}
	return &run, nil
}

func FinishSyncRun(ctx context.Context, run *SyncRun, status string, created int, updated int, errorCount int) error {
	finishedAt := time.Now()
	var durationMs int64
	if run.StartedAt != nil {
		durationMs = finishedAt.Sub(*run.StartedAt).Milliseconds()
	}
	db := config.GetDB()
	return db.WithContext(ctx).Model(run).Updates(map[string]interface{}{
		"status":           status,
		"accounts_created": created,
		"accounts_updated": updated,
		"error_count":      errorCount,
		"finished_at":      finishedAt,
		"duration_ms":      durationMs,
	}).Error
}

func CreateSyncRunError(ctx context.Context, runId int, userId string, code string, message string, payload []byte, retryable bool) error {
	errRec := SyncRunError{
		SyncRunId:   runId,
		UserId:      userId,
		ErrorCode:   code,
		Message:     message,
		PayloadJSON: payload,
		Retryable:   retryable,
	}
	db := config.GetDB()
	return db.WithContext(ctx).Create(&errRec).Error
}

func ListSyncRuns(ctx context.Context, userId string, limit int) ([]SyncRun, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	var runs []SyncRun
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Order("id desc").
		Limit(limit).
		Find(&runs).Error; err != nil {
		return nil, err
	}
	return runs, nil
}
