package models

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Transaction is a signed monetary event against one account. Amount carries
// the sign: credits positive, debits negative. Changing it after the fact is
// only possible through UpdateTransaction/DeleteTransaction, both of which
// push the correction back into the account balance and its snapshots.
type Transaction struct {
	ID          int             `gorm:"primary_key" json:"id"`
	UserId      string          `gorm:"size:64;index;not null" json:"user_id"`
	AccountId   int             `gorm:"index;not null" json:"account_id"`
	Description string          `gorm:"size:255" json:"description"`
	Amount      decimal.Decimal `gorm:"type:decimal(20,4);not null" json:"amount"`
	Currency    string          `gorm:"size:3;not null" json:"currency"`
	OccurredOn  time.Time       `gorm:"type:date;not null" json:"occurred_on"`
	CreatedAt   time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt   time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

type NewTransaction struct {
	AccountId   int             `json:"account_id" validate:"required"`
	Description string          `json:"description"`
	Amount      decimal.Decimal `json:"amount"`
	Currency    string          `json:"currency" validate:"required,len=3"`
	OccurredOn  time.Time       `json:"occurred_on" validate:"required"`
}

type UpdateTransactionInput struct {
	Description *string          `json:"description"`
	Amount      *decimal.Decimal `json:"amount"`
	OccurredOn  *time.Time       `json:"occurred_on"`
}

func CreateTransaction(ctx context.Context, input *NewTransaction) (*Transaction, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}
	if err := utils.ValidateStruct(input); err != nil {
		return nil, err
	}

	account, err := GetAccount(ctx, input.AccountId, userId)
	if err != nil {
		return nil, err
	}
	if account.Currency != input.Currency {
		return nil, errors.New("transaction currency must match account currency")
	}

	txn := Transaction{
		UserId:      userId,
		AccountId:   input.AccountId,
		Description: input.Description,
		Amount:      input.Amount,
		Currency:    input.Currency,
		OccurredOn:  utils.LocalDay(input.OccurredOn, UserTimezone(ctx, userId)),
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Create(&txn).Error; err != nil {
		return nil, err
	}

	// The transaction row has committed; balance drift here is a background
	// concern under the default policy.
	if err := dispatchTransactionEvent(ctx, config.EventKindCreated, nil, &txn); err != nil {
		return nil, err
	}
	return &txn, nil
}

func GetTransaction(ctx context.Context, id int, userId string) (*Transaction, error) {
	var txn Transaction
	db := config.GetDB()
	err := db.WithContext(ctx).
		Where("id = ? AND user_id = ?", id, userId).
		Take(&txn).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, utils.NewNotFoundError("transaction", strconv.Itoa(id))
		}
		return nil, err
	}
	return &txn, nil
}

func ListTransactionsByAccount(ctx context.Context, accountId int, userId string, limit int) ([]Transaction, error) {
	if _, err := GetAccount(ctx, accountId, userId); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var txns []Transaction
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("account_id = ? AND user_id = ?", accountId, userId).
		Order("occurred_on DESC, id DESC").
		Limit(limit).
		Find(&txns).Error; err != nil {
		return nil, err
	}
	return txns, nil
}

func UpdateTransaction(ctx context.Context, id int, input *UpdateTransactionInput) (*Transaction, error) {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return nil, errors.New("user id is required")
	}

	old, err := GetTransaction(ctx, id, userId)
	if err != nil {
		return nil, err
	}

	updated := *old
	if input.Description != nil {
		updated.Description = *input.Description
	}
	if input.Amount != nil {
		updated.Amount = *input.Amount
	}
	if input.OccurredOn != nil {
		updated.OccurredOn = utils.LocalDay(*input.OccurredOn, UserTimezone(ctx, userId))
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Save(&updated).Error; err != nil {
		return nil, err
	}

	if err := dispatchTransactionEvent(ctx, config.EventKindUpdated, old, &updated); err != nil {
		return nil, err
	}
	return &updated, nil
}

func DeleteTransaction(ctx context.Context, id int) error {
	userId, ok := utils.GetUserIdFromContext(ctx)
	if !ok || userId == "" {
		return errors.New("user id is required")
	}

	old, err := GetTransaction(ctx, id, userId)
	if err != nil {
		return err
	}

	db := config.GetDB()
	if err := db.WithContext(ctx).Delete(&Transaction{}, id).Error; err != nil {
		return err
	}

	return dispatchTransactionEvent(ctx, config.EventKindDeleted, old, nil)
}
