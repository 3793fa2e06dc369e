// Package teller links accounts through the Teller aggregation API. Linking
// is webhook-driven: InitiateLinking returns a connect token that Teller
// echoes back in the enrollment webhook once the user finishes the flow.
package teller

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"strings"
	"time"

	"github.com/mmdatafocus/banklink_backend/providers"
	"github.com/shopspring/decimal"
)

const ProviderName = "teller"

type Teller struct {
	client *tellerClient
}

func New() *Teller {
	return &Teller{client: newTellerClient()}
}

func (t *Teller) Name() string {
	return ProviderName
}

func (t *Teller) IsWebhookDriven() bool {
	return true
}

// authentication is the opaque blob stored on a BankLink. Only this package
// may read it.
type authentication struct {
	AccessToken  string `json:"access_token"`
	EnrollmentId string `json:"enrollment_id"`
}

type providerUserDetails struct {
	TellerUserId string `json:"teller_user_id"`
}

type connectSessionRequest struct {
	ApplicationUserId string `json:"application_user_id"`
	RedirectUri       string `json:"redirect_uri,omitempty"`
	TellerUserId      string `json:"teller_user_id,omitempty"`
}

type connectSessionResponse struct {
	ConnectUrl   string `json:"connect_url"`
	ConnectToken string `json:"connect_token"`
	TellerUserId string `json:"teller_user_id"`
	ExpiresAt    string `json:"expires_at"`
}

func (t *Teller) InitiateLinking(ctx context.Context, req providers.LinkRequest) (*providers.LinkSession, error) {
	var details providerUserDetails
	if len(req.ProviderUserDetails) > 0 {
		_ = json.Unmarshal(req.ProviderUserDetails, &details)
	}

	var resp connectSessionResponse
	err := t.client.doJSON(ctx, "POST", "/connect/sessions", "", connectSessionRequest{
		ApplicationUserId: req.UserId,
		RedirectUri:       req.RedirectUri,
		TellerUserId:      details.TellerUserId,
	}, &resp)
	if err != nil {
		return nil, err
	}

	session := &providers.LinkSession{
		LinkUrl:   resp.ConnectUrl,
		WebhookId: resp.ConnectToken,
	}
	if ts, perr := time.Parse(time.RFC3339, resp.ExpiresAt); perr == nil {
		session.ExpiresAt = &ts
	}
	if resp.TellerUserId != "" && resp.TellerUserId != details.TellerUserId {
		session.UpdatedProviderUserDetails, _ = json.Marshal(providerUserDetails{TellerUserId: resp.TellerUserId})
	}
	return session, nil
}

// VerifyWebhook checks the Teller-Signature header: "t=<unix>,v1=<hex hmac>"
// where the hmac is SHA-256 over "<t>.<rawBody>" with the webhook secret.
func (t *Teller) VerifyWebhook(rawBody []byte, headers map[string]string) bool {
	secret, err := webhookSecret()
	if err != nil {
		return false
	}

	header := headerValue(headers, "Teller-Signature")
	if header == "" {
		return false
	}

	var timestamp, signature string
	for _, part := range strings.Split(header, ",") {
		key, value, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch key {
		case "t":
			timestamp = value
		case "v1":
			signature = value
		}
	}
	if timestamp == "" || signature == "" {
		return false
	}

	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(timestamp))
	mac.Write([]byte("."))
	mac.Write(rawBody)
	expected := hex.EncodeToString(mac.Sum(nil))

	return hmac.Equal([]byte(expected), []byte(signature))
}

type webhookEnvelope struct {
	Type    string `json:"type"`
	Payload struct {
		ConnectToken string              `json:"connect_token"`
		EnrollmentId string              `json:"enrollment_id"`
		Reason       string              `json:"reason"`
		Enrollments  []webhookEnrollment `json:"enrollments"`
	} `json:"payload"`
}

type webhookEnrollment struct {
	AccessToken  string           `json:"access_token"`
	EnrollmentId string           `json:"enrollment_id"`
	Institution  *tellerInstitute `json:"institution"`
	Accounts     []tellerAccount  `json:"accounts"`
}

type tellerInstitute struct {
	Id   string `json:"id"`
	Name string `json:"name"`
}

type tellerAccount struct {
	Id          string `json:"id"`
	Name        string `json:"name"`
	Type        string `json:"type"`
	Subtype     string `json:"subtype"`
	LastFour    string `json:"last_four"`
	Currency    string `json:"currency"`
	Institution *tellerInstitute `json:"institution"`
	Balance     struct {
		Ledger    json.Number `json:"ledger"`
		Available json.Number `json:"available"`
	} `json:"balance"`
}

// ShouldProcessWebhook returns the connect token of an enrollment webhook;
// that token is the correlation id registered at initiation.
func (t *Teller) ShouldProcessWebhook(payload []byte) (string, bool) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return "", false
	}
	if envelope.Type != "enrollment.created" || envelope.Payload.ConnectToken == "" {
		return "", false
	}
	return envelope.Payload.ConnectToken, true
}

func (t *Teller) ProcessWebhook(ctx context.Context, payload []byte) ([]providers.LinkCompletion, error) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, err
	}
	if envelope.Type != "enrollment.created" {
		return nil, nil
	}

	completions := make([]providers.LinkCompletion, 0, len(envelope.Payload.Enrollments))
	for _, enrollment := range envelope.Payload.Enrollments {
		auth, err := json.Marshal(authentication{
			AccessToken:  enrollment.AccessToken,
			EnrollmentId: enrollment.EnrollmentId,
		})
		if err != nil {
			return nil, err
		}
		completion := providers.LinkCompletion{
			Authentication: auth,
			ItemId:         enrollment.EnrollmentId,
			Accounts:       mapAccounts(enrollment.Accounts),
		}
		if enrollment.Institution != nil {
			completion.Institution = &providers.Institution{
				Id:   enrollment.Institution.Id,
				Name: enrollment.Institution.Name,
			}
		}
		completions = append(completions, completion)
	}
	return completions, nil
}

// ParseUpdateWebhook recognizes data-available callbacks.
func (t *Teller) ParseUpdateWebhook(payload []byte) (*providers.UpdateHint, bool) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, false
	}
	switch envelope.Type {
	case "transactions.processed", "account.updated":
		if envelope.Payload.EnrollmentId == "" {
			return nil, false
		}
		return &providers.UpdateHint{
			ItemId:    envelope.Payload.EnrollmentId,
			EventType: envelope.Type,
		}, true
	}
	return nil, false
}

// ParseStatusWebhook recognizes link-health callbacks.
func (t *Teller) ParseStatusWebhook(payload []byte) (*providers.StatusHint, bool) {
	var envelope webhookEnvelope
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return nil, false
	}
	if envelope.Type != "enrollment.disconnected" {
		return nil, false
	}

	status := "ERROR"
	if envelope.Payload.Reason == "disconnected.user_action_required" {
		status = "PENDING_REAUTH"
	}
	return &providers.StatusHint{
		ItemId:     envelope.Payload.EnrollmentId,
		Status:     status,
		StatusBody: payload,
	}, true
}

func (t *Teller) GetItemId(auth []byte) (string, bool) {
	var parsed authentication
	if err := json.Unmarshal(auth, &parsed); err != nil {
		return "", false
	}
	return parsed.EnrollmentId, parsed.EnrollmentId != ""
}

func (t *Teller) GetAccounts(ctx context.Context, auth []byte) (*providers.AccountsResult, error) {
	var parsed authentication
	if err := json.Unmarshal(auth, &parsed); err != nil {
		return nil, err
	}

	var accounts []tellerAccount
	if err := t.client.doJSON(ctx, "GET", "/accounts", parsed.AccessToken, nil, &accounts); err != nil {
		return nil, err
	}

	result := &providers.AccountsResult{Accounts: mapAccounts(accounts)}
	for _, account := range accounts {
		if account.Institution != nil {
			result.Institution = &providers.Institution{
				Id:   account.Institution.Id,
				Name: account.Institution.Name,
			}
			break
		}
	}
	return result, nil
}

func mapAccounts(in []tellerAccount) []providers.ProviderAccount {
	out := make([]providers.ProviderAccount, 0, len(in))
	for _, account := range in {
		raw, _ := json.Marshal(account)
		out = append(out, providers.ProviderAccount{
			ExternalId: account.Id,
			Name:       account.Name,
			Mask:       account.LastFour,
			Type:       account.Type,
			Subtype:    account.Subtype,
			CurrentBalance: providers.SignedAmount{
				Amount:   decimalFromNumber(account.Balance.Ledger),
				Currency: account.Currency,
			},
			AvailableBalance: providers.SignedAmount{
				Amount:   decimalFromNumber(account.Balance.Available),
				Currency: account.Currency,
			},
			RawPayload: raw,
		})
	}
	return out
}

func decimalFromNumber(num json.Number) decimal.Decimal {
	if num.String() == "" {
		return decimal.Zero
	}
	if d, err := decimal.NewFromString(num.String()); err == nil {
		return d
	}
	return decimal.Zero
}

func headerValue(headers map[string]string, name string) string {
	if v, ok := headers[name]; ok {
		return v
	}
	for key, value := range headers {
		if strings.EqualFold(key, name) {
			return value
		}
	}
	return ""
}
