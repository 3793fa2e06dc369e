package models

import (
	"log"

	"github.com/mmdatafocus/banklink_backend/config"
)

func MigrateTable() {
	db := config.GetDB()

	err := db.AutoMigrate(
		&User{},
		&BankLink{}, &Account{}, &ProviderUserDetail{},
		&WebhookEvent{},
		&Transaction{}, &BalanceSnapshot{},
		&SyncRun{}, &SyncRunError{},
	)
	if err != nil {
		log.Fatal(err)
	}
}
