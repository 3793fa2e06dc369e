package providers

import (
	"context"
	"time"
)

// LinkRequest is the input to InitiateLinking.
type LinkRequest struct {
	UserId              string
	RedirectUri         string
	ProviderUserDetails []byte
}

// LinkSession is what a provider hands back from InitiateLinking. WebhookId,
// when present, is the correlation token the provider will echo in the
// link-completion webhook; the orchestrator registers it as PENDING.
type LinkSession struct {
	LinkUrl                    string
	ExpiresAt                  *time.Time
	WebhookId                  string
	UpdatedProviderUserDetails []byte
}

// ProviderAccount is one account as reported by a provider.
type ProviderAccount struct {
	ExternalId       string
	Name             string
	Mask             string
	Type             string
	Subtype          string
	CurrentBalance   SignedAmount
	AvailableBalance SignedAmount
	RawPayload       []byte
}

// Institution identifies the financial institution behind a bank link.
type Institution struct {
	Id   string
	Name string
}

// AccountsResult is the outcome of GetAccounts.
type AccountsResult struct {
	Accounts    []ProviderAccount
	Institution *Institution
}

// LinkCompletion is one credential set returned by ProcessWebhook. Each
// distinct completion becomes its own BankLink.
type LinkCompletion struct {
	Authentication []byte
	ItemId         string
	Institution    *Institution
	Accounts       []ProviderAccount
}

// StatusHint is a parsed status webhook: the provider is telling us the
// health of an existing link.
type StatusHint struct {
	ItemId      string
	Status      string
	StatusBody  []byte
	TriggerSync bool
}

// UpdateHint is a parsed update webhook: new data is available for the item.
type UpdateHint struct {
	ItemId    string
	EventType string
}

// Provider is the contract every external data source implements.
//
// Webhook-related methods receive the raw payload; the provider owns all
// vendor-specific wire formats, signature schemes and token formats.
type Provider interface {
	Name() string

	InitiateLinking(ctx context.Context, req LinkRequest) (*LinkSession, error)

	// VerifyWebhook authenticates a callback before anything else happens.
	VerifyWebhook(rawBody []byte, headers map[string]string) bool

	// GetAccounts fetches accounts (and optionally institution info) using
	// the opaque authentication blob owned by this provider.
	GetAccounts(ctx context.Context, authentication []byte) (*AccountsResult, error)

	// ShouldProcessWebhook returns the correlation id of a link-completion
	// payload, or ok=false when the payload is not a link completion.
	ShouldProcessWebhook(payload []byte) (correlationId string, ok bool)

	// ProcessWebhook turns a link-completion payload into credential sets.
	ProcessWebhook(ctx context.Context, payload []byte) ([]LinkCompletion, error)
}

// UpdateWebhookParser is an optional capability: providers that push
// data-available callbacks implement it. Callers presence-test before use.
type UpdateWebhookParser interface {
	ParseUpdateWebhook(payload []byte) (*UpdateHint, bool)
}

// StatusWebhookParser is an optional capability for link-health callbacks.
type StatusWebhookParser interface {
	ParseStatusWebhook(payload []byte) (*StatusHint, bool)
}

// ItemIdentifier is an optional capability: extract the provider item id
// from an authentication blob.
type ItemIdentifier interface {
	GetItemId(authentication []byte) (string, bool)
}

// WebhookDriven marks providers whose data arrives via webhooks; the
// scheduled system-wide sync skips them.
type WebhookDriven interface {
	IsWebhookDriven() bool
}

// IsWebhookDriven reports whether p relies on webhooks for updates.
// Providers that don't implement the capability are polled.
func IsWebhookDriven(p Provider) bool {
	if wd, ok := p.(WebhookDriven); ok {
		return wd.IsWebhookDriven()
	}
	return false
}
