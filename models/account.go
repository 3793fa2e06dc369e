package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Account is a financial account, either provider-linked or manually
// managed. ExternalAccountId is nil for manual accounts; when set,
// (user_id, external_account_id) is the reconciliation key and unique.
type Account struct {
	ID                int             `gorm:"primary_key" json:"id"`
	UserId            string          `gorm:"size:64;not null;uniqueIndex:uniq_user_external,priority:1;index" json:"user_id"`
	Name              string          `gorm:"size:255;not null" json:"name"`
	Mask              string          `gorm:"size:10" json:"mask"`
	CurrentBalance    decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	AvailableBalance  decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_balance"`
	Currency          string          `gorm:"size:3;not null;default:USD" json:"currency"`
	MainType          string          `gorm:"size:50" json:"main_type"`
	SubType           string          `gorm:"size:50" json:"sub_type"`
	ExternalAccountId *string         `gorm:"size:128;uniqueIndex:uniq_user_external,priority:2" json:"external_account_id"`
	BankLinkId        *uuid.UUID      `gorm:"index" json:"bank_link_id"`
	RawPayload        []byte          `gorm:"type:json" json:"-"`
	CreatedAt         time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewAccount struct {
	Name             string          `json:"name" validate:"required"`
	Mask             string          `json:"mask"`
	Currency         string          `json:"currency" validate:"required,len=3"`
	MainType         string          `json:"main_type"`
	SubType          string          `json:"sub_type"`
	CurrentBalance   decimal.Decimal `json:"current_balance"`
	AvailableBalance decimal.Decimal `json:"available_balance"`
}

// CreateAccount registers a manually-managed account (no external id, no
// bank link).
func CreateAccount(ctx context.Context, input *NewAccount) (*Account, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	account := Account{
		UserId:           userId,
		Name:             input.Name,
		Mask:             input.Mask,
		Currency:         input.Currency,
		MainType:         input.MainType,
		SubType:          input.SubType,
		CurrentBalance:   input.CurrentBalance,
		AvailableBalance: input.AvailableBalance,
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&account).Error; err != nil {
		return nil, err
	}
	return &account, nil
}

func GetAccount(ctx context.Context, id int, userId string) (*Account, error) {
	var account Account
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userId).
		Take(&account).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("account", "")
		}
		return nil, err
	}
	return &account, nil
}

func ListAccountsByUser(ctx context.Context, userId string) ([]Account, error) {
	var accounts []Account
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("user_id = ?", userId).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// ListAccountsByExternalIds loads, in one query, every account of the user
// whose external id is in the given set. The reconciler's single read.
func ListAccountsByExternalIds(ctx context.Context, userId string, externalIds []string) ([]Account, error) {
	if len(externalIds) == 0 {
		return nil, nil
	}
	var accounts []Account
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("user_id = ? AND external_account_id IN ?", userId, externalIds).
		Find(&accounts).Error; err != nil {
		return nil, err
	}
	return accounts, nil
}

// SaveAccounts persists a reconciled batch (creates and updates mixed) in a
// single transaction.
func SaveAccounts(ctx context.Context, accounts []*Account) error {
	if len(accounts) == 0 {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, account := range accounts {
			if err := tx.Save(account).Error; err != nil {
				return err
			}
		}
		return nil
	})
}
