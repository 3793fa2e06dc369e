package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/utils"
	"gorm.io/gorm"
)

// BankLink is one user's connection to one provider credential set.
// Authentication is opaque to everything except the owning provider
// implementation; nothing outside the provider may parse it.
type BankLink struct {
	ID                 uuid.UUID      `gorm:"primary_key" json:"id"`
	UserId             string         `gorm:"size:64;index;not null" json:"user_id"`
	ProviderName       string         `gorm:"size:50;index;not null" json:"provider_name"`
	Authentication     []byte         `gorm:"type:json" json:"-"`
	ProviderItemId     string         `gorm:"size:128;index" json:"provider_item_id"`
	ExternalAccountIds []byte         `gorm:"type:json" json:"external_account_ids"`
	InstitutionId      string         `gorm:"size:128" json:"institution_id"`
	InstitutionName    string         `gorm:"size:255" json:"institution_name"`
	Status             BankLinkStatus `gorm:"size:20;not null;default:OK" json:"status"`
	StatusDate         *time.Time     `json:"status_date"`
	StatusBody         []byte         `gorm:"type:json" json:"status_body"`
	CreatedAt          time.Time      `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt          time.Time      `gorm:"autoUpdateTime" json:"updated_at"`
}

func CreateBankLink(ctx context.Context, link *BankLink) (*BankLink, error) {
	if link.UserId == "" || link.ProviderName == "" {
		return nil, errors.New("user id and provider name are required")
	}
	if link.ID == uuid.Nil {
		link.ID = uuid.New()
	}
	if link.Status == "" {
		link.Status = BankLinkStatusOK
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(link).Error; err != nil {
		return nil, err
	}
	return link, nil
}

func GetBankLink(ctx context.Context, id uuid.UUID, userId string) (*BankLink, error) {
	var link BankLink
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userId).
		Take(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("bank link", id.String())
		}
		return nil, err
	}
	return &link, nil
}

func ListBankLinksByUser(ctx context.Context, userId string) ([]BankLink, error) {
	var links []BankLink
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// ListAllBankLinks returns every link in the system; the scheduled sync
// iterates these.
func ListAllBankLinks(ctx context.Context) ([]BankLink, error) {
	var links []BankLink
	db := config.GetDB()
	if err := db.WithContext(ctx).Find(&links).Error; err != nil {
		return nil, err
	}
	return links, nil
}

// FindBankLinkByItemId resolves an update/status webhook to its link via the
// provider item identifier. A miss returns (nil, nil); update webhooks for
// unknown items are logged and ignored, never retried.
func FindBankLinkByItemId(ctx context.Context, providerName string, itemId string) (*BankLink, error) {
	if itemId == "" {
		return nil, nil
	}
	var link BankLink
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("provider_name = ? AND provider_item_id = ?", providerName, itemId).
		Take(&link).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &link, nil
}

func UpdateBankLinkStatus(ctx context.Context, id uuid.UUID, status BankLinkStatus, statusBody []byte) error {
	now := time.Now()
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&BankLink{}).
		Where("id = ?", id).
		Updates(map[string]interface{}{
			"status":      status,
			"status_body": statusBody,
			"status_date": &now,
		}).Error
}

// UpdateBankLinkInstitution refreshes institution metadata during sync; it
// only writes when something changed.
func UpdateBankLinkInstitution(ctx context.Context, link *BankLink, institutionId string, institutionName string) error {
	if link.InstitutionId == institutionId && link.InstitutionName == institutionName {
		return nil
	}
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Model(&BankLink{}).
		Where("id = ?", link.ID).
		Updates(map[string]interface{}{
			"institution_id":   institutionId,
			"institution_name": institutionName,
		}).Error; err != nil {
		return err
	}
	link.InstitutionId = institutionId
	link.InstitutionName = institutionName
	return nil
}

func UpdateBankLinkAuthentication(ctx context.Context, id uuid.UUID, authentication []byte) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&BankLink{}).
		Where("id = ?", id).
		Update("authentication", authentication).Error
}

func UpdateBankLinkExternalAccountIds(ctx context.Context, id uuid.UUID, externalIds []string) error {
	db := config.GetDB()
	return db.WithContext(ctx).
		Model(&BankLink{}).
		Where("id = ?", id).
		Update("external_account_ids", utils.MustMarshal(utils.UniqueSlice(externalIds))).Error
}
