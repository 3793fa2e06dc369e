package models

import (
	"context"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// BalanceSnapshot is the closing balance of one account on one calendar day
// (the owner's local day). Unique per (account_id, snapshot_date); later
// corrections overwrite in place, this is not an append-only log.
type BalanceSnapshot struct {
	ID               int             `gorm:"primary_key" json:"id"`
	AccountId        int             `gorm:"not null;uniqueIndex:uniq_snapshot_account_date,priority:1" json:"account_id"`
	SnapshotDate     time.Time       `gorm:"type:date;not null;uniqueIndex:uniq_snapshot_account_date,priority:2" json:"snapshot_date"`
	CurrentBalance   decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"current_balance"`
	AvailableBalance decimal.Decimal `gorm:"type:decimal(20,4);default:0" json:"available_balance"`
	Currency         string          `gorm:"size:3;not null" json:"currency"`
	SnapshotType     SnapshotType    `gorm:"size:20;not null" json:"snapshot_type"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// upsertSnapshot writes the day's closing balance, colliding on
// (account_id, snapshot_date) by overwriting.
func upsertSnapshot(tx *gorm.DB, account *Account, day time.Time, snapshotType SnapshotType) error {
	snapshot := BalanceSnapshot{
		AccountId:        account.ID,
		SnapshotDate:     day,
		CurrentBalance:   account.CurrentBalance,
		AvailableBalance: account.AvailableBalance,
		Currency:         account.Currency,
		SnapshotType:     snapshotType,
	}
	return tx.Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "account_id"}, {Name: "snapshot_date"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"current_balance", "available_balance", "currency", "snapshot_type", "updated_at",
		}),
	}).Create(&snapshot).Error
}

// applySnapshotRangeDelta shifts every snapshot of the account between from
// and to (inclusive) by delta, in one statement. A past correction changes
// every later day's closing balance.
func applySnapshotRangeDelta(tx *gorm.DB, accountId int, from time.Time, to time.Time, delta decimal.Decimal) error {
	return tx.Model(&BalanceSnapshot{}).
		Where("account_id = ? AND snapshot_date >= ? AND snapshot_date <= ?", accountId, from, to).
		UpdateColumns(map[string]interface{}{
			"current_balance":   gorm.Expr("current_balance + ?", delta),
			"available_balance": gorm.Expr("available_balance + ?", delta),
		}).Error
}

// RecordSyncSnapshots writes the day's SYNC snapshot for every account a
// provider sync just reconciled. One transaction: either the whole batch of
// closing balances lands or none does.
func RecordSyncSnapshots(ctx context.Context, accounts []*Account, day time.Time) error {
	if len(accounts) == 0 {
		return nil
	}
	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, account := range accounts {
			if err := upsertSnapshot(tx, account, day, SnapshotTypeSync); err != nil {
				return err
			}
		}
		return nil
	})
}

func ListSnapshots(ctx context.Context, accountId int, userId string, from time.Time, to time.Time) ([]BalanceSnapshot, error) {
	if _, err := GetAccount(ctx, accountId, userId); err != nil {
		return nil, err
	}
	var snapshots []BalanceSnapshot
	db := config.GetDB()
	if err := db.WithContext(ctx).
		Where("account_id = ? AND snapshot_date >= ? AND snapshot_date <= ?", accountId, from, to).
		Order("snapshot_date").
		Find(&snapshots).Error; err != nil {
		return nil, err
	}
	return snapshots, nil
}

// ForwardFillSnapshots writes a FORWARD_FILL snapshot for every account that
// has no row for the given day yet, carrying the account's current balances
// forward. Run once per day per timezone bucket.
func ForwardFillSnapshots(ctx context.Context, day time.Time) (int, error) {
	db := config.GetDB()

	var accounts []Account
	if err := db.WithContext(ctx).
		Where("id NOT IN (?)",
			db.Model(&BalanceSnapshot{}).Select("account_id").Where("snapshot_date = ?", day),
		).
		Find(&accounts).Error; err != nil {
		return 0, err
	}

	filled := 0
	for i := range accounts {
		account := &accounts[i]
		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			return upsertSnapshot(tx, account, day, SnapshotTypeForwardFill)
		})
		if err != nil {
			config.LogError(config.GetLogger(), "balanceSnapshot.go", "ForwardFillSnapshots",
				"upsert forward-fill snapshot", account.ID, err)
			continue
		}
		filled++
	}
	return filled, nil
}
