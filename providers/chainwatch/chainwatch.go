// Package chainwatch links on-chain addresses as balance-only accounts.
// There is no external consent flow and no webhooks: InitiateLinking hands
// the credentials straight back and the scheduled sync polls balances.
package chainwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/shopspring/decimal"
)

const ProviderName = "chainwatch"

type ChainWatch struct {
	client *chainClient
}

func New() *ChainWatch {
	return &ChainWatch{client: newChainClient()}
}

func (c *ChainWatch) Name() string {
	return ProviderName
}

// authentication stores the watched addresses. The "item" for this provider
// is the chain plus address list, so linking the same addresses twice updates
// the existing link instead of creating a second one.
type authentication struct {
	Chain     string   `json:"chain"`
	Addresses []string `json:"addresses"`
}

func (a authentication) itemId() string {
	return a.Chain + ":" + strings.Join(a.Addresses, ",")
}

// InitiateLinking for chainwatch is synchronous. The request carries the
// addresses in ProviderUserDetails and the returned session has no link URL:
// callers complete immediately with the session's details as authentication.
func (c *ChainWatch) InitiateLinking(ctx context.Context, req providers.LinkRequest) (*providers.LinkSession, error) {
	var auth authentication
	if err := json.Unmarshal(req.ProviderUserDetails, &auth); err != nil {
		return nil, fmt.Errorf("chainwatch: parse link request: %w", err)
	}
	if auth.Chain == "" || len(auth.Addresses) == 0 {
		return nil, fmt.Errorf("chainwatch: chain and at least one address are required")
	}
	for i, addr := range auth.Addresses {
		auth.Addresses[i] = strings.ToLower(strings.TrimSpace(addr))
	}

	details, err := json.Marshal(auth)
	if err != nil {
		return nil, err
	}
	return &providers.LinkSession{
		UpdatedProviderUserDetails: details,
	}, nil
}

// VerifyWebhook always fails: chainwatch never sends webhooks, so any
// callback claiming to be from it is bogus.
func (c *ChainWatch) VerifyWebhook(rawBody []byte, headers map[string]string) bool {
	return false
}

func (c *ChainWatch) ShouldProcessWebhook(payload []byte) (string, bool) {
	return "", false
}

func (c *ChainWatch) ProcessWebhook(ctx context.Context, payload []byte) ([]providers.LinkCompletion, error) {
	return nil, nil
}

func (c *ChainWatch) GetItemId(auth []byte) (string, bool) {
	var parsed authentication
	if err := json.Unmarshal(auth, &parsed); err != nil {
		return "", false
	}
	if parsed.Chain == "" {
		return "", false
	}
	return parsed.itemId(), true
}

func (c *ChainWatch) GetAccounts(ctx context.Context, auth []byte) (*providers.AccountsResult, error) {
	var parsed authentication
	if err := json.Unmarshal(auth, &parsed); err != nil {
		return nil, err
	}

	accounts := make([]providers.ProviderAccount, 0, len(parsed.Addresses))
	for _, address := range parsed.Addresses {
		balance, err := c.client.getBalance(ctx, parsed.Chain, address)
		if err != nil {
			return nil, err
		}
		raw, _ := json.Marshal(balance)
		amount := providers.SignedAmount{
			Amount:   balance.Amount,
			Currency: balance.Currency,
		}
		accounts = append(accounts, providers.ProviderAccount{
			ExternalId:       parsed.Chain + ":" + address,
			Name:             shortAddress(address),
			Mask:             lastFour(address),
			Type:             "crypto",
			Subtype:          parsed.Chain,
			CurrentBalance:   amount,
			AvailableBalance: amount,
			RawPayload:       raw,
		})
	}

	return &providers.AccountsResult{
		Accounts: accounts,
		Institution: &providers.Institution{
			Id:   parsed.Chain,
			Name: strings.ToUpper(parsed.Chain) + " network",
		},
	}, nil
}

func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}

func lastFour(address string) string {
	if len(address) <= 4 {
		return address
	}
	return address[len(address)-4:]
}

type chainBalance struct {
	Amount   decimal.Decimal `json:"amount"`
	Currency string          `json:"currency"`
}

// chainUnits maps a chain to its currency code and the decimal shift from
// base units (satoshi, wei) to whole coins. Unknown chains pass through
// base units unshifted with the chain name as the currency.
var chainUnits = map[string]struct {
	currency string
	exponent int32
}{
	"btc":  {"BTC", 8},
	"ltc":  {"LTC", 8},
	"doge": {"DOGE", 8},
	"eth":  {"ETH", 18},
}

func toChainBalance(chain string, baseUnits int64) *chainBalance {
	unit, ok := chainUnits[chain]
	if !ok {
		return &chainBalance{
			Amount:   decimal.NewFromInt(baseUnits),
			Currency: strings.ToUpper(chain),
		}
	}
	return &chainBalance{
		Amount:   decimal.New(baseUnits, -unit.exponent),
		Currency: unit.currency,
	}
}
