// system-sync is the scheduled sweep: refresh every poll-based bank link and
// forward-fill the day's balance snapshots. Run it from Cloud Scheduler or
// cron; the redis lock inside SyncAllAccountsSystem keeps overlapping runs
// from doubling provider traffic.
//
// Usage (from backend directory):
//   DB_USER=... DB_PASSWORD=... DB_HOST=... DB_PORT=... DB_NAME=... REDIS_ADDRESS=... go run ./cmd/system-sync
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/linksync"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/mmdatafocus/banklink_backend/providers/chainwatch"
	"github.com/mmdatafocus/banklink_backend/providers/teller"
	"github.com/mmdatafocus/banklink_backend/utils"
	"github.com/sirupsen/logrus"
)

func main() {
	ctx := context.Background()
	logger := config.GetLogger()

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	if config.GetDB() == nil {
		fmt.Fprintln(os.Stderr, "database not initialized (config.GetDB returned nil). Set DB_* env vars.")
		os.Exit(1)
	}

	registry := providers.NewRegistry(
		teller.New(),
		chainwatch.New(),
	)
	orchestrator := linksync.NewOrchestrator(registry)

	start := time.Now()
	outcomes, err := orchestrator.SyncAllAccountsSystem(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "system sync failed: %v\n", err)
		os.Exit(1)
	}

	failed := 0
	for _, outcome := range outcomes {
		if outcome.Status == models.SyncRunStatusFailed {
			failed++
		}
	}
	logger.WithFields(logrus.Fields{
		"links":    len(outcomes),
		"failed":   failed,
		"duration": time.Since(start).String(),
	}).Info("system sync finished")

	day := utils.LocalDay(time.Now(), "UTC")
	filled, err := models.ForwardFillSnapshots(ctx, day)
	if err != nil {
		fmt.Fprintf(os.Stderr, "forward-fill failed: %v\n", err)
		os.Exit(1)
	}
	logger.WithFields(logrus.Fields{
		"day":    day.Format("2006-01-02"),
		"filled": filled,
	}).Info("forward-fill finished")

	if failed > 0 {
		os.Exit(2)
	}
}
