package teller

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"
)

type tellerClient struct {
	baseURL string
	http    *http.Client
	limiter <-chan time.Time
}

func newTellerClient() *tellerClient {
	baseURL := strings.TrimSpace(os.Getenv("TELLER_API_BASE_URL"))
	if baseURL == "" {
		baseURL = "https://api.teller.io"
	}
	rateLimitPerMin := int64(60)
	if v := strings.TrimSpace(os.Getenv("TELLER_RATE_LIMIT_PER_MIN")); v != "" {
		if n, err := strconv.ParseInt(v, 10, 64); err == nil && n > 0 {
			rateLimitPerMin = n
		}
	}
	interval := time.Minute / time.Duration(rateLimitPerMin)

	return &tellerClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(interval),
	}
}

func (c *tellerClient) doJSON(ctx context.Context, method string, path string, accessToken string, reqBody any, out any) error {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return ctx.Err()
	}

	var body io.Reader
	if reqBody != nil {
		data, err := json.Marshal(reqBody)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	if reqBody != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if accessToken != "" {
		req.SetBasicAuth(accessToken, "")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	data, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("teller api error %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return err
	}
	return nil
}

func webhookSecret() (string, error) {
	secret := strings.TrimSpace(os.Getenv("TELLER_WEBHOOK_SECRET"))
	if secret == "" {
		return "", errors.New("TELLER_WEBHOOK_SECRET is not set")
	}
	return secret, nil
}
