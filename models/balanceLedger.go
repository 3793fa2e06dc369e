package models

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/utils"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// The balance/snapshot ledger reacts to transaction lifecycle events. Every
// reaction mutates the Account row and all affected BalanceSnapshot rows
// inside one storage transaction: a reader never observes the account
// updated without the matching snapshots, or vice versa. Relative
// gorm.Expr updates keep concurrent events on the same account from losing
// each other's deltas.

// ApplyTransactionEvent routes a lifecycle event into the ledger. Exported
// for the Pub/Sub consumer; the direct path goes through
// dispatchTransactionEvent.
func ApplyTransactionEvent(ctx context.Context, kind string, old *Transaction, updated *Transaction) error {
	switch kind {
	case config.EventKindCreated:
		if updated == nil {
			return errors.New("created event without transaction")
		}
		return applyTransactionCreated(ctx, updated)
	case config.EventKindUpdated:
		if old == nil || updated == nil {
			return errors.New("updated event needs old and new transaction")
		}
		return applyTransactionUpdated(ctx, old, updated)
	case config.EventKindDeleted:
		if old == nil {
			return errors.New("deleted event without transaction")
		}
		return applyTransactionDeleted(ctx, old)
	default:
		return fmt.Errorf("unknown transaction event kind %q", kind)
	}
}

func applyTransactionCreated(ctx context.Context, txn *Transaction) error {
	today := utils.LocalDay(time.Now(), UserTimezone(ctx, txn.UserId))

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyAccountDelta(tx, txn.AccountId, txn.Amount); err != nil {
			return err
		}
		var account Account
		if err := tx.Where("id = ?", txn.AccountId).Take(&account).Error; err != nil {
			return err
		}
		return upsertSnapshot(tx, &account, today, SnapshotTypeUserUpdate)
	})
}

func applyTransactionDeleted(ctx context.Context, txn *Transaction) error {
	delta := txn.Amount.Neg()
	today := utils.LocalDay(time.Now(), UserTimezone(ctx, txn.UserId))

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyAccountDelta(tx, txn.AccountId, delta); err != nil {
			return err
		}
		// Removing a past transaction changes every later day's close.
		return applySnapshotRangeDelta(tx, txn.AccountId, txn.OccurredOn, today, delta)
	})
}

func applyTransactionUpdated(ctx context.Context, old *Transaction, updated *Transaction) error {
	delta := updated.Amount.Sub(old.Amount)
	if delta.IsZero() {
		// Amount unchanged: nothing to correct, storage stays untouched.
		return nil
	}

	from := old.OccurredOn
	if updated.OccurredOn.Before(from) {
		from = updated.OccurredOn
	}
	today := utils.LocalDay(time.Now(), UserTimezone(ctx, updated.UserId))

	db := config.GetDB()
	return db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := applyAccountDelta(tx, updated.AccountId, delta); err != nil {
			return err
		}
		return applySnapshotRangeDelta(tx, updated.AccountId, from, today, delta)
	})
}

// applyAccountDelta shifts both balances in one relative statement.
func applyAccountDelta(tx *gorm.DB, accountId int, delta decimal.Decimal) error {
	res := tx.Model(&Account{}).
		Where("id = ?", accountId).
		UpdateColumns(map[string]interface{}{
			"current_balance":   gorm.Expr("current_balance + ?", delta),
			"available_balance": gorm.Expr("available_balance + ?", delta),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("account %d not found for balance delta", accountId)
	}
	return nil
}

// dispatchTransactionEvent hands a lifecycle event to the ledger, either
// synchronously or through Pub/Sub, then applies the drift policy: the
// transaction row has already committed, so under "swallow" a ledger failure
// is logged and dropped rather than failing the user-facing write.
func dispatchTransactionEvent(ctx context.Context, kind string, old *Transaction, updated *Transaction) error {
	var err error
	if config.BalanceEventMode() == "pubsub" {
		err = publishTransactionEvent(ctx, kind, old, updated)
	} else {
		err = ApplyTransactionEvent(ctx, kind, old, updated)
	}
	if err == nil {
		return nil
	}

	if config.BalanceDriftPolicy() == "surface" {
		return err
	}
	ref := old
	if ref == nil {
		ref = updated
	}
	config.LogError(config.GetLogger(), "balanceLedger.go", "dispatchTransactionEvent",
		"balance ledger "+kind+" event dropped; account/snapshot may drift until next sync", ref.ID, err)
	return nil
}

func publishTransactionEvent(ctx context.Context, kind string, old *Transaction, updated *Transaction) error {
	ref := old
	if updated != nil {
		ref = updated
	}
	correlationId, _ := utils.GetCorrelationIdFromContext(ctx)
	msg := config.EventMessage{
		UserId:        ref.UserId,
		EntityType:    config.EventEntityTransaction,
		EntityId:      fmt.Sprintf("%d", ref.ID),
		Kind:          kind,
		OccurredAt:    time.Now().UTC(),
		CorrelationId: correlationId,
	}
	if old != nil {
		msg.OldObj = utils.MustMarshal(old)
	}
	if updated != nil {
		msg.NewObj = utils.MustMarshal(updated)
	}
	_, err := config.PublishEvent(ctx, config.BalanceEventsTopic(), msg)
	return err
}
