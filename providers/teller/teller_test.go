package teller

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
)

func signBody(secret string, timestamp string, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifyWebhook(t *testing.T) {
	t.Setenv("TELLER_WEBHOOK_SECRET", "whsec_test")
	provider := New()

	body := []byte(`{"type":"transactions.processed","payload":{"enrollment_id":"enr_1"}}`)
	sig := signBody("whsec_test", "1700000000", body)
	headers := map[string]string{
		"Teller-Signature": fmt.Sprintf("t=1700000000,v1=%s", sig),
	}

	if !provider.VerifyWebhook(body, headers) {
		t.Fatalf("valid signature must verify")
	}
}

func TestVerifyWebhookRejects(t *testing.T) {
	t.Setenv("TELLER_WEBHOOK_SECRET", "whsec_test")
	provider := New()
	body := []byte(`{"type":"enrollment.created"}`)
	sig := signBody("whsec_test", "1700000000", body)

	cases := []struct {
		name    string
		body    []byte
		headers map[string]string
	}{
		{"missing header", body, map[string]string{}},
		{"wrong signature", body, map[string]string{"Teller-Signature": "t=1700000000,v1=deadbeef"}},
		{"tampered body", []byte(`{"type":"evil"}`), map[string]string{"Teller-Signature": "t=1700000000,v1=" + sig}},
		{"missing timestamp", body, map[string]string{"Teller-Signature": "v1=" + sig}},
	}
	for _, tc := range cases {
		if provider.VerifyWebhook(tc.body, tc.headers) {
			t.Fatalf("%s: must not verify", tc.name)
		}
	}
}

func TestVerifyWebhookNoSecretConfigured(t *testing.T) {
	t.Setenv("TELLER_WEBHOOK_SECRET", "")
	provider := New()
	if provider.VerifyWebhook([]byte("{}"), map[string]string{"Teller-Signature": "t=1,v1=aa"}) {
		t.Fatalf("verification must fail closed without a secret")
	}
}

func TestVerifyWebhookHeaderCaseInsensitive(t *testing.T) {
	t.Setenv("TELLER_WEBHOOK_SECRET", "whsec_test")
	provider := New()
	body := []byte(`{}`)
	sig := signBody("whsec_test", "42", body)
	headers := map[string]string{"teller-signature": "t=42,v1=" + sig}
	if !provider.VerifyWebhook(body, headers) {
		t.Fatalf("header lookup must be case-insensitive")
	}
}

func TestShouldProcessWebhook(t *testing.T) {
	provider := New()

	correlationId, ok := provider.ShouldProcessWebhook([]byte(`{"type":"enrollment.created","payload":{"connect_token":"tok_abc"}}`))
	if !ok || correlationId != "tok_abc" {
		t.Fatalf("expected connect token, got (%q, %v)", correlationId, ok)
	}

	if _, ok := provider.ShouldProcessWebhook([]byte(`{"type":"transactions.processed","payload":{"enrollment_id":"enr_1"}}`)); ok {
		t.Fatalf("update payload is not a link completion")
	}
	if _, ok := provider.ShouldProcessWebhook([]byte(`not json`)); ok {
		t.Fatalf("malformed payload is not a link completion")
	}
}

func TestProcessWebhook(t *testing.T) {
	provider := New()
	payload := []byte(`{
		"type": "enrollment.created",
		"payload": {
			"connect_token": "tok_abc",
			"enrollments": [
				{
					"access_token": "acc_1",
					"enrollment_id": "enr_1",
					"institution": {"id": "chase", "name": "Chase"},
					"accounts": [
						{
							"id": "acc_checking",
							"name": "Everyday Checking",
							"type": "depository",
							"subtype": "checking",
							"last_four": "1234",
							"currency": "USD",
							"balance": {"ledger": "1204.56", "available": "1104.56"}
						}
					]
				}
			]
		}
	}`)

	completions, err := provider.ProcessWebhook(context.Background(), payload)
	if err != nil {
		t.Fatalf("ProcessWebhook: %v", err)
	}
	if len(completions) != 1 {
		t.Fatalf("expected 1 completion, got %d", len(completions))
	}

	completion := completions[0]
	if completion.ItemId != "enr_1" {
		t.Fatalf("item id: got %q", completion.ItemId)
	}
	if completion.Institution == nil || completion.Institution.Name != "Chase" {
		t.Fatalf("institution not mapped: %+v", completion.Institution)
	}
	if len(completion.Accounts) != 1 {
		t.Fatalf("expected 1 account, got %d", len(completion.Accounts))
	}
	account := completion.Accounts[0]
	if account.ExternalId != "acc_checking" || account.Mask != "1234" {
		t.Fatalf("account not mapped: %+v", account)
	}
	if account.CurrentBalance.Amount.Cmp(decimal.NewFromFloat(1204.56)) != 0 {
		t.Fatalf("ledger balance: got %s", account.CurrentBalance.Amount)
	}
	if account.AvailableBalance.Amount.Cmp(decimal.NewFromFloat(1104.56)) != 0 {
		t.Fatalf("available balance: got %s", account.AvailableBalance.Amount)
	}
	if account.CurrentBalance.Currency != "USD" {
		t.Fatalf("currency: got %s", account.CurrentBalance.Currency)
	}

	itemId, ok := provider.GetItemId(completion.Authentication)
	if !ok || itemId != "enr_1" {
		t.Fatalf("GetItemId from stored auth blob: (%q, %v)", itemId, ok)
	}
}

func TestParseUpdateWebhook(t *testing.T) {
	provider := New()

	hint, ok := provider.ParseUpdateWebhook([]byte(`{"type":"transactions.processed","payload":{"enrollment_id":"enr_9"}}`))
	if !ok {
		t.Fatalf("expected update hint")
	}
	if hint.ItemId != "enr_9" || hint.EventType != "transactions.processed" {
		t.Fatalf("hint: %+v", hint)
	}

	if _, ok := provider.ParseUpdateWebhook([]byte(`{"type":"enrollment.created"}`)); ok {
		t.Fatalf("completion payload must not classify as update")
	}
	if _, ok := provider.ParseUpdateWebhook([]byte(`{"type":"transactions.processed","payload":{}}`)); ok {
		t.Fatalf("update without an item id must not classify")
	}
}

func TestParseStatusWebhook(t *testing.T) {
	provider := New()

	hint, ok := provider.ParseStatusWebhook([]byte(`{"type":"enrollment.disconnected","payload":{"enrollment_id":"enr_2","reason":"disconnected.user_action_required"}}`))
	if !ok {
		t.Fatalf("expected status hint")
	}
	if hint.Status != "PENDING_REAUTH" || hint.ItemId != "enr_2" {
		t.Fatalf("hint: %+v", hint)
	}

	hint, ok = provider.ParseStatusWebhook([]byte(`{"type":"enrollment.disconnected","payload":{"enrollment_id":"enr_2","reason":"disconnected"}}`))
	if !ok || hint.Status != "ERROR" {
		t.Fatalf("other disconnect reasons map to ERROR, got %+v", hint)
	}

	if _, ok := provider.ParseStatusWebhook([]byte(`{"type":"transactions.processed"}`)); ok {
		t.Fatalf("non-status payload must not classify")
	}
}

func TestIsWebhookDriven(t *testing.T) {
	if !New().IsWebhookDriven() {
		t.Fatalf("teller is webhook driven")
	}
}
