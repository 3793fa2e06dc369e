package models

import (
	"context"
	"errors"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ProviderUserDetail holds the provider-scoped identity blob a provider
// hands back during linking (a vendor-side user id, address list, and so
// on). It is distinct from BankLink.Authentication: one row per
// (user, provider), read back on every subsequent initiation so re-links
// reuse the same vendor identity.
type ProviderUserDetail struct {
	ID           int       `gorm:"primary_key" json:"id"`
	UserId       string    `gorm:"size:64;not null;uniqueIndex:uniq_user_provider,priority:1" json:"user_id"`
	ProviderName string    `gorm:"size:50;not null;uniqueIndex:uniq_user_provider,priority:2" json:"provider_name"`
	Details      []byte    `gorm:"type:json" json:"-"`
	CreatedAt    time.Time `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt    time.Time `gorm:"autoUpdateTime" json:"updated_at"`
}

func providerUserDetailsCacheKey(userId string, providerName string) string {
	return "ProviderUserDetails:" + userId + ":" + providerName
}

// SaveProviderUserDetails upserts the blob for (user, provider).
func SaveProviderUserDetails(ctx context.Context, userId string, providerName string, details []byte) error {
	if len(details) == 0 {
		return nil
	}
	db := config.GetDB()
	err := db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "user_id"}, {Name: "provider_name"}},
		DoUpdates: clause.AssignmentColumns([]string{"details", "updated_at"}),
	}).Create(&ProviderUserDetail{
		UserId:       userId,
		ProviderName: providerName,
		Details:      details,
	}).Error
	if err != nil {
		return err
	}
	_ = config.RemoveRedisKey(providerUserDetailsCacheKey(userId, providerName))
	return nil
}

// GetProviderUserDetails returns the stored blob, or nil when the user has
// never linked the provider. Redis-cached; invalidated on save.
func GetProviderUserDetails(ctx context.Context, userId string, providerName string) ([]byte, error) {
	cacheKey := providerUserDetailsCacheKey(userId, providerName)

	var cached []byte
	if exists, err := config.GetRedisObject(cacheKey, &cached); err == nil && exists {
		return cached, nil
	}

	var row ProviderUserDetail
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("user_id = ? AND provider_name = ?", userId, providerName).
		Take(&row).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	_ = config.SetRedisObject(cacheKey, row.Details, 10*time.Minute)
	return row.Details, nil
}
