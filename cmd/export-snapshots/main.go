// export-snapshots writes one user's balance snapshots to an XLSX file, one
// row per account per day.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... \
//     go run ./cmd/export-snapshots -user <user-id> -from 2026-01-01 -to 2026-01-31 -out snapshots.xlsx
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/xuri/excelize/v2"
)

func main() {
	userId := flag.String("user", "", "user id to export")
	fromArg := flag.String("from", "", "start date (YYYY-MM-DD), default 30 days ago")
	toArg := flag.String("to", "", "end date (YYYY-MM-DD), default today")
	out := flag.String("out", "snapshots.xlsx", "output file path")
	flag.Parse()

	if *userId == "" {
		fmt.Fprintln(os.Stderr, "-user is required")
		os.Exit(1)
	}

	to := time.Now()
	from := to.AddDate(0, 0, -30)
	if *fromArg != "" {
		parsed, err := time.Parse("2006-01-02", *fromArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -from: %v\n", err)
			os.Exit(1)
		}
		from = parsed
	}
	if *toArg != "" {
		parsed, err := time.Parse("2006-01-02", *toArg)
		if err != nil {
			fmt.Fprintf(os.Stderr, "invalid -to: %v\n", err)
			os.Exit(1)
		}
		to = parsed
	}

	ctx := context.Background()
	config.ConnectDatabaseWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	accounts, err := models.ListAccountsByUser(ctx, *userId)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to list accounts: %v\n", err)
		os.Exit(1)
	}
	if len(accounts) == 0 {
		fmt.Fprintln(os.Stderr, "no accounts for user")
		os.Exit(2)
	}

	f := excelize.NewFile()
	sheet := "Snapshots"
	index, err := f.NewSheet(sheet)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create sheet: %v\n", err)
		os.Exit(1)
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	// Headers
	f.SetCellValue(sheet, "A1", "Account")
	f.SetCellValue(sheet, "B1", "Date")
	f.SetCellValue(sheet, "C1", "CurrentBalance")
	f.SetCellValue(sheet, "D1", "AvailableBalance")
	f.SetCellValue(sheet, "E1", "Currency")
	f.SetCellValue(sheet, "F1", "Type")

	row := 2
	for _, account := range accounts {
		snapshots, err := models.ListSnapshots(ctx, account.ID, *userId, from, to)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to list snapshots for account %d: %v\n", account.ID, err)
			os.Exit(1)
		}
		for _, snapshot := range snapshots {
			f.SetCellValue(sheet, "A"+fmt.Sprint(row), account.Name)
			f.SetCellValue(sheet, "B"+fmt.Sprint(row), snapshot.SnapshotDate.Format("2006-01-02"))
			f.SetCellValue(sheet, "C"+fmt.Sprint(row), snapshot.CurrentBalance.String())
			f.SetCellValue(sheet, "D"+fmt.Sprint(row), snapshot.AvailableBalance.String())
			f.SetCellValue(sheet, "E"+fmt.Sprint(row), snapshot.Currency)
			f.SetCellValue(sheet, "F"+fmt.Sprint(row), string(snapshot.SnapshotType))
			row++
		}
	}

	if err := f.SaveAs(*out); err != nil {
		fmt.Fprintf(os.Stderr, "failed to write %s: %v\n", *out, err)
		os.Exit(1)
	}
	fmt.Printf("wrote %d rows to %s\n", row-2, *out)
}
