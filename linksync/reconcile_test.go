package linksync

import (
	"testing"

	"github.com/google/uuid"
	"github.com/mmdatafocus/banklink_backend/models"
	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/shopspring/decimal"
)

func TestApplyProviderAccountOverwritesProviderFields(t *testing.T) {
	linkId := uuid.New()
	externalId := "acc_1"
	existing := &models.Account{
		ID:                42,
		UserId:            "user-1",
		Name:              "Old Name",
		Currency:          "USD",
		CurrentBalance:    decimal.NewFromInt(10),
		ExternalAccountId: &externalId,
	}

	applyProviderAccount(existing, providers.ProviderAccount{
		ExternalId:       "acc_1",
		Name:             "Everyday Checking",
		Mask:             "1234",
		Type:             "depository",
		Subtype:          "checking",
		CurrentBalance:   providers.SignedAmount{Amount: decimal.NewFromFloat(99.5), Currency: "USD"},
		AvailableBalance: providers.SignedAmount{Amount: decimal.NewFromFloat(80), Currency: "USD"},
		RawPayload:       []byte(`{"id":"acc_1"}`),
	}, linkId)

	// Identity survives; provider-owned fields are replaced.
	if existing.ID != 42 || existing.UserId != "user-1" {
		t.Fatalf("identity fields must not change: %+v", existing)
	}
	if existing.Name != "Everyday Checking" || existing.Mask != "1234" {
		t.Fatalf("naming not applied: %+v", existing)
	}
	if existing.CurrentBalance.Cmp(decimal.NewFromFloat(99.5)) != 0 {
		t.Fatalf("balance not applied: %s", existing.CurrentBalance)
	}
	if existing.BankLinkId == nil || *existing.BankLinkId != linkId {
		t.Fatalf("bank link id not applied")
	}
}

func TestApplyProviderAccountKeepsCurrencyWhenAbsent(t *testing.T) {
	account := &models.Account{Currency: "EUR"}
	applyProviderAccount(account, providers.ProviderAccount{
		ExternalId:     "x",
		CurrentBalance: providers.SignedAmount{Amount: decimal.NewFromInt(1)},
	}, uuid.New())
	if account.Currency != "EUR" {
		t.Fatalf("empty provider currency must not clobber the stored one, got %q", account.Currency)
	}
}

func TestReconcileResultExternalIds(t *testing.T) {
	a, b := "acc_a", "acc_b"
	result := &ReconcileResult{
		Created: []*models.Account{{ExternalAccountId: &a}},
		Updated: []*models.Account{{ExternalAccountId: &b}},
	}
	ids := result.ExternalIds()
	if len(ids) != 2 || ids[0] != "acc_a" || ids[1] != "acc_b" {
		t.Fatalf("got %v", ids)
	}
}
