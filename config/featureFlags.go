package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// BalanceDriftPolicy decides what happens when the balance/snapshot ledger
// fails to apply a transaction lifecycle event AFTER the transaction row has
// already committed.
//
// - "swallow" (default): log and drop; drift is repaired by the next full sync.
// - "surface": propagate the error to the caller.
//
// Set via env:
// - BALANCE_DRIFT_POLICY=swallow|surface
func BalanceDriftPolicy() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("BALANCE_DRIFT_POLICY")))
	if v == "surface" {
		return "surface"
	}
	return "swallow"
}

// BalanceEventMode selects how transaction lifecycle events reach the
// balance/snapshot ledger.
//
// - "direct" (default): synchronous call on the transaction write path.
// - "pubsub": published to BALANCE_EVENTS_TOPIC and consumed via push endpoint.
//
// Set via env:
// - BALANCE_EVENT_MODE=direct|pubsub
func BalanceEventMode() string {
	v := strings.ToLower(strings.TrimSpace(os.Getenv("BALANCE_EVENT_MODE")))
	if v == "pubsub" {
		return "pubsub"
	}
	return "direct"
}

// WebhookDedupWindow is the time window used to reject repeated tokenless
// update/status webhooks for the same provider item. Best-effort, not a lock.
//
// Set via env:
// - WEBHOOK_DEDUP_WINDOW_SECONDS (default 300)
func WebhookDedupWindow() time.Duration {
	v := strings.TrimSpace(os.Getenv("WEBHOOK_DEDUP_WINDOW_SECONDS"))
	if v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return time.Duration(n) * time.Second
		}
	}
	return 5 * time.Minute
}

// SyncFanoutLimit caps the number of bank links synced concurrently during
// sync-all and the scheduled system-wide sync.
//
// Set via env:
// - SYNC_FANOUT_LIMIT (default 8)
func SyncFanoutLimit() int {
	v := strings.TrimSpace(os.Getenv("SYNC_FANOUT_LIMIT"))
	if v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			return n
		}
	}
	return 8
}

// BalanceEventsTopic is the Pub/Sub topic carrying transaction lifecycle
// events when BalanceEventMode() is "pubsub".
func BalanceEventsTopic() string {
	v := strings.TrimSpace(os.Getenv("BALANCE_EVENTS_TOPIC"))
	if v == "" {
		return "balance-events"
	}
	return v
}

// AccountEventsTopic carries account created/updated notifications emitted by
// the reconciler and the link orchestrator.
func AccountEventsTopic() string {
	v := strings.TrimSpace(os.Getenv("ACCOUNT_EVENTS_TOPIC"))
	if v == "" {
		return "account-events"
	}
	return v
}
