package models_test

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/mmdatafocus/banklink_backend/config"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/utils"
	"github.com/shopspring/decimal"
)

// Full-stack regression: transaction lifecycle events must keep the Account
// row and its BalanceSnapshot rows in agreement.
func TestTransactionLifecycleBalanceConsistency(t *testing.T) {
	ctx := setupIntegration(t)

	account := createTestAccount(t, ctx, "Checking", "USD")
	today := utils.LocalDay(time.Now(), "UTC")

	// Create a $500 credit.
	txn, err := models.CreateTransaction(ctx, &models.NewTransaction{
		AccountId:   account.ID,
		Description: "payroll",
		Amount:      decimal.NewFromInt(500),
		Currency:    "USD",
		OccurredOn:  time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	userId, _ := utils.GetUserIdFromContext(ctx)
	reloaded, err := models.GetAccount(ctx, account.ID, userId)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if reloaded.CurrentBalance.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("current balance after create: got %s, want 500", reloaded.CurrentBalance)
	}
	if reloaded.AvailableBalance.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("available balance after create: got %s, want 500", reloaded.AvailableBalance)
	}

	snapshots, err := models.ListSnapshots(ctx, account.ID, userId, today, today)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snapshots) != 1 {
		t.Fatalf("expected exactly one snapshot for today, got %d", len(snapshots))
	}
	if snapshots[0].SnapshotType != models.SnapshotTypeUserUpdate {
		t.Fatalf("snapshot type: got %s", snapshots[0].SnapshotType)
	}
	if snapshots[0].CurrentBalance.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("snapshot balance: got %s, want 500", snapshots[0].CurrentBalance)
	}

	// Update the amount: delta flows to account and snapshot.
	newAmount := decimal.NewFromInt(300)
	if _, err := models.UpdateTransaction(ctx, txn.ID, &models.UpdateTransactionInput{Amount: &newAmount}); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}
	reloaded, _ = models.GetAccount(ctx, account.ID, userId)
	if reloaded.CurrentBalance.Cmp(decimal.NewFromInt(300)) != 0 {
		t.Fatalf("current balance after update: got %s, want 300", reloaded.CurrentBalance)
	}
	snapshots, _ = models.ListSnapshots(ctx, account.ID, userId, today, today)
	if len(snapshots) != 1 || snapshots[0].CurrentBalance.Cmp(decimal.NewFromInt(300)) != 0 {
		t.Fatalf("snapshot after update: %+v", snapshots)
	}

	// Delete: everything returns to the pre-create state.
	if err := models.DeleteTransaction(ctx, txn.ID); err != nil {
		t.Fatalf("DeleteTransaction: %v", err)
	}
	reloaded, _ = models.GetAccount(ctx, account.ID, userId)
	if !reloaded.CurrentBalance.IsZero() || !reloaded.AvailableBalance.IsZero() {
		t.Fatalf("balances after delete: %s / %s, want 0 / 0",
			reloaded.CurrentBalance, reloaded.AvailableBalance)
	}
	snapshots, _ = models.ListSnapshots(ctx, account.ID, userId, today, today)
	if len(snapshots) != 1 || !snapshots[0].CurrentBalance.IsZero() {
		t.Fatalf("snapshot after delete: %+v", snapshots)
	}
}

// A backdated amount correction must shift every snapshot from the
// transaction's earliest date through today, not just today's.
func TestBackdatedCorrectionShiftsSnapshotRange(t *testing.T) {
	ctx := setupIntegration(t)

	account := createTestAccount(t, ctx, "Savings", "USD")
	userId, _ := utils.GetUserIdFromContext(ctx)
	today := utils.LocalDay(time.Now(), "UTC")
	threeDaysAgo := today.AddDate(0, 0, -3)

	// Seed the account at 1000 with four days of matching snapshots.
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"current_balance":   decimal.NewFromInt(1000),
			"available_balance": decimal.NewFromInt(1000),
		}).Error; err != nil {
		t.Fatalf("seed account balance: %v", err)
	}
	for d := 1; d <= 3; d++ {
		day := today.AddDate(0, 0, -d)
		snap := models.BalanceSnapshot{
			AccountId:        account.ID,
			SnapshotDate:     day,
			CurrentBalance:   decimal.NewFromInt(1000),
			AvailableBalance: decimal.NewFromInt(1000),
			Currency:         "USD",
			SnapshotType:     models.SnapshotTypeSync,
		}
		if err := db.WithContext(ctx).Create(&snap).Error; err != nil {
			t.Fatalf("seed snapshot: %v", err)
		}
	}

	// A -200 debit today: account 800, today's snapshot 800.
	txn, err := models.CreateTransaction(ctx, &models.NewTransaction{
		AccountId:  account.ID,
		Amount:     decimal.NewFromInt(-200),
		Currency:   "USD",
		OccurredOn: time.Now(),
	})
	if err != nil {
		t.Fatalf("CreateTransaction: %v", err)
	}

	// Correct it to -500 AND backdate it three days: delta -300 applies to
	// the account and to every snapshot from the earlier date through today.
	newAmount := decimal.NewFromInt(-500)
	backdate := threeDaysAgo
	if _, err := models.UpdateTransaction(ctx, txn.ID, &models.UpdateTransactionInput{
		Amount:     &newAmount,
		OccurredOn: &backdate,
	}); err != nil {
		t.Fatalf("UpdateTransaction: %v", err)
	}

	reloaded, err := models.GetAccount(ctx, account.ID, userId)
	if err != nil {
		t.Fatalf("GetAccount: %v", err)
	}
	if reloaded.CurrentBalance.Cmp(decimal.NewFromInt(500)) != 0 {
		t.Fatalf("account after correction: got %s, want 500", reloaded.CurrentBalance)
	}

	snapshots, err := models.ListSnapshots(ctx, account.ID, userId, threeDaysAgo, today)
	if err != nil {
		t.Fatalf("ListSnapshots: %v", err)
	}
	if len(snapshots) != 4 {
		t.Fatalf("expected 4 snapshots, got %d", len(snapshots))
	}
	for _, snap := range snapshots {
		want := decimal.NewFromInt(700)
		if snap.SnapshotDate.Format("2006-01-02") == today.Format("2006-01-02") {
			want = decimal.NewFromInt(500)
		}
		if snap.CurrentBalance.Cmp(want) != 0 {
			t.Fatalf("snapshot %s: got %s, want %s",
				snap.SnapshotDate.Format("2006-01-02"), snap.CurrentBalance, want)
		}
	}
}

func TestWebhookLedgerTerminalStates(t *testing.T) {
	ctx := setupIntegration(t)
	userId, _ := utils.GetUserIdFromContext(ctx)

	event, err := models.RegisterPendingWebhook(ctx, userId, "teller", "tok_once", nil)
	if err != nil {
		t.Fatalf("RegisterPendingWebhook: %v", err)
	}

	found, err := models.FindPendingWebhook(ctx, "tok_once")
	if err != nil || found == nil {
		t.Fatalf("FindPendingWebhook: %v, %v", found, err)
	}

	payload := []byte(`{"type":"enrollment.created"}`)
	completed, err := models.MarkWebhookCompleted(ctx, event.ID, payload)
	if err != nil {
		t.Fatalf("MarkWebhookCompleted: %v", err)
	}
	if completed.Status != models.WebhookStatusCompleted || completed.CompletedAt == nil {
		t.Fatalf("completed record: %+v", completed)
	}

	// Second terminal write is a no-op returning the stored record; FAILED
	// never overwrites COMPLETED.
	again, err := models.MarkWebhookFailed(ctx, event.ID, "late failure", nil)
	if err != nil {
		t.Fatalf("MarkWebhookFailed after completed: %v", err)
	}
	if again.Status != models.WebhookStatusCompleted {
		t.Fatalf("status regressed to %s", again.Status)
	}
	if again.ErrorDetail != nil {
		t.Fatalf("error detail must not be written on a terminal record")
	}

	// Completed records are no longer pending.
	if found, _ := models.FindPendingWebhook(ctx, "tok_once"); found != nil {
		t.Fatalf("completed record must not resolve as pending")
	}
}

func TestExpiredPendingWebhookResolvesAsAbsent(t *testing.T) {
	ctx := setupIntegration(t)
	userId, _ := utils.GetUserIdFromContext(ctx)

	past := time.Now().Add(-time.Minute)
	if _, err := models.RegisterPendingWebhook(ctx, userId, "teller", "tok_expired", &past); err != nil {
		t.Fatalf("RegisterPendingWebhook: %v", err)
	}

	found, err := models.FindPendingWebhook(ctx, "tok_expired")
	if err != nil {
		t.Fatalf("FindPendingWebhook: %v", err)
	}
	if found != nil {
		t.Fatalf("expired pending record must resolve as not found")
	}
	if found, _ := models.FindPendingWebhookByUser(ctx, userId, "teller"); found != nil {
		t.Fatalf("expired record must not resolve by user either")
	}
}

func TestWindowedWebhookDedup(t *testing.T) {
	ctx := setupIntegration(t)
	userId, _ := utils.GetUserIdFromContext(ctx)

	window := 5 * time.Minute
	payload := []byte(`{"type":"transactions.processed"}`)

	if err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "transactions.processed", "enr_1", payload, window); err != nil {
		t.Fatalf("first webhook in window: %v", err)
	}

	err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "transactions.processed", "enr_1", payload, window)
	if err == nil {
		t.Fatalf("second webhook in window must be rejected")
	}
	if !utils.IsDuplicateWebhook(err) {
		t.Fatalf("expected DuplicateWebhookError, got %T: %v", err, err)
	}

	// A different item inside the window is unrelated.
	if err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "transactions.processed", "enr_2", payload, window); err != nil {
		t.Fatalf("different item must pass: %v", err)
	}
	// Same item, different event type is unrelated too.
	if err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "account.updated", "enr_1", payload, window); err != nil {
		t.Fatalf("different event type must pass: %v", err)
	}
}

// LIKE metacharacters inside an item id must match literally: one item's
// dedup window may never capture another's.
func TestWindowedDedupEscapesWildcardItemIds(t *testing.T) {
	ctx := setupIntegration(t)
	userId, _ := utils.GetUserIdFromContext(ctx)

	window := 5 * time.Minute
	payload := []byte(`{"type":"transactions.processed"}`)

	// "itX1" would satisfy the pattern "it_1:%" if the underscore were left
	// as a wildcard.
	if err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "transactions.processed", "itX1", payload, window); err != nil {
		t.Fatalf("record for itX1: %v", err)
	}
	if err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "transactions.processed", "it_1", payload, window); err != nil {
		t.Fatalf("it_1 wrongly deduplicated against itX1: %v", err)
	}

	// The literal id still dedups against itself.
	err := models.CheckAndRecordWindowedWebhook(ctx, userId, "teller", "transactions.processed", "it_1", payload, window)
	if !utils.IsDuplicateWebhook(err) {
		t.Fatalf("expected duplicate for repeated it_1, got %v", err)
	}
}

func TestForwardFillSnapshots(t *testing.T) {
	ctx := setupIntegration(t)
	userId, _ := utils.GetUserIdFromContext(ctx)

	account := createTestAccount(t, ctx, "Idle", "USD")
	db := config.GetDB()
	if err := db.WithContext(ctx).Model(&models.Account{}).
		Where("id = ?", account.ID).
		Updates(map[string]interface{}{
			"current_balance":   decimal.NewFromInt(750),
			"available_balance": decimal.NewFromInt(700),
		}).Error; err != nil {
		t.Fatalf("seed balance: %v", err)
	}

	day := utils.LocalDay(time.Now(), "UTC")
	filled, err := models.ForwardFillSnapshots(ctx, day)
	if err != nil {
		t.Fatalf("ForwardFillSnapshots: %v", err)
	}
	if filled < 1 {
		t.Fatalf("expected at least one filled snapshot, got %d", filled)
	}

	snapshots, err := models.ListSnapshots(ctx, account.ID, userId, day, day)
	if err != nil || len(snapshots) != 1 {
		t.Fatalf("ListSnapshots: %v, %d rows", err, len(snapshots))
	}
	if snapshots[0].SnapshotType != models.SnapshotTypeForwardFill {
		t.Fatalf("snapshot type: got %s", snapshots[0].SnapshotType)
	}
	if snapshots[0].CurrentBalance.Cmp(decimal.NewFromInt(750)) != 0 {
		t.Fatalf("carried balance: got %s", snapshots[0].CurrentBalance)
	}

	// Running it again must not duplicate or overwrite.
	if _, err := models.ForwardFillSnapshots(ctx, day); err != nil {
		t.Fatalf("second ForwardFillSnapshots: %v", err)
	}
	snapshots, _ = models.ListSnapshots(ctx, account.ID, userId, day, day)
	if len(snapshots) != 1 {
		t.Fatalf("forward-fill must be idempotent, got %d rows", len(snapshots))
	}
}

// ---- harness ----

func setupIntegration(t *testing.T) context.Context {
	if strings.TrimSpace(os.Getenv("INTEGRATION_TESTS")) == "" {
		t.Skip("set INTEGRATION_TESTS=1 to run integration tests (requires docker)")
	}

	redisName, redisPort := startRedisContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(redisName) })

	mysqlName, mysqlPort := startMySQLContainer(t)
	t.Cleanup(func() { _ = dockerRmForce(mysqlName) })

	t.Setenv("REDIS_ADDRESS", fmt.Sprintf("127.0.0.1:%s", redisPort))
	t.Setenv("DB_USER", "root")
	t.Setenv("DB_PASSWORD", "testpw")
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", mysqlPort)
	t.Setenv("DB_NAME", "banklink_test")
	t.Setenv("BALANCE_EVENT_MODE", "direct")
	t.Setenv("BALANCE_DRIFT_POLICY", "surface")

	config.ConnectDatabaseWithRetry()
	config.ConnectRedisWithRetry()
	models.MigrateTable()

	ctx := context.Background()
	user, err := models.CreateUser(ctx, &models.NewUser{
		Username: fmt.Sprintf("tester-%d", time.Now().UnixNano()),
		Name:     "Tester",
		Password: "test-password-1",
		Timezone: "UTC",
	})
	if err != nil {
		t.Fatalf("CreateUser: %v", err)
	}
	ctx = utils.SetUserIdInContext(ctx, user.ID.String())
	ctx = utils.SetUsernameInContext(ctx, user.Username)
	return ctx
}

func createTestAccount(t *testing.T, ctx context.Context, name string, currency string) *models.Account {
	t.Helper()
	account, err := models.CreateAccount(ctx, &models.NewAccount{
		Name:     name + fmt.Sprintf("-%d", time.Now().UnixNano()),
		Currency: currency,
	})
	if err != nil {
		t.Fatalf("CreateAccount %s: %v", name, err)
	}
	return account
}

func startRedisContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("banklink-test-redis-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-p", "127.0.0.1:0:6379",
		"redis:7-alpine",
	)
	if err != nil {
		t.Fatalf("start redis container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "6379/tcp")
	if err != nil {
		t.Fatalf("redis docker port: %v", err)
	}
	deadline := time.Now().Add(60 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "redis-cli", "ping")
		if err == nil {
			return name, port
		}
		time.Sleep(250 * time.Millisecond)
	}
	t.Fatalf("redis did not become ready")
	return "", ""
}

func startMySQLContainer(t *testing.T) (containerName, hostPort string) {
	t.Helper()
	name := fmt.Sprintf("banklink-test-mysql-%d", time.Now().UnixNano())
	out, err := dockerRun(
		"run", "-d", "--name", name,
		"-e", "MYSQL_ROOT_PASSWORD=testpw",
		"-e", "MYSQL_DATABASE=banklink_test",
		"-p", "127.0.0.1:0:3306",
		"mysql:8.0",
		"--default-authentication-plugin=mysql_native_password",
	)
	if err != nil {
		t.Fatalf("start mysql container: %v\n%s", err, out)
	}
	port, err := dockerHostPort(name, "3306/tcp")
	if err != nil {
		t.Fatalf("mysql docker port: %v", err)
	}
	deadline := time.Now().Add(120 * time.Second)
	for time.Now().Before(deadline) {
		_, err := dockerRun("exec", name, "mysqladmin", "ping", "-h", "127.0.0.1", "-ptestpw", "--silent")
		if err == nil {
			return name, port
		}
		time.Sleep(500 * time.Millisecond)
	}
	t.Fatalf("mysql did not become ready")
	return "", ""
}

func dockerHostPort(container, portProto string) (string, error) {
	out, err := dockerRun("port", container, portProto)
	if err != nil {
		return "", fmt.Errorf("docker port: %w: %s", err, out)
	}
	re := regexp.MustCompile(`:(\d+)`)
	m := re.FindStringSubmatch(out)
	if len(m) != 2 {
		return "", fmt.Errorf("unexpected docker port output: %q", out)
	}
	return m[1], nil
}

func dockerRmForce(container string) error {
	if strings.TrimSpace(container) == "" {
		return nil
	}
	_, err := dockerRun("rm", "-f", container)
	return err
}

func dockerRun(args ...string) (string, error) {
	cmd := exec.Command("docker", args...)
	b, err := cmd.CombinedOutput()
	return string(b), err
}
