package chainwatch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"
)

// chainClient talks to the block explorer API. The explorer rate-limits
// aggressively on the free tier, so every request waits on the shared ticker.
type chainClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	limiter <-chan time.Time
}

func newChainClient() *chainClient {
	baseURL := os.Getenv("CHAINWATCH_API_BASE_URL")
	if baseURL == "" {
		baseURL = "https://api.blockcypher.com/v1"
	}

	perMin := 30
	if v := os.Getenv("CHAINWATCH_RATE_LIMIT_PER_MIN"); v != "" {
		if parsed, err := strconv.Atoi(v); err == nil && parsed > 0 {
			perMin = parsed
		}
	}

	return &chainClient{
		baseURL: baseURL,
		apiKey:  os.Getenv("CHAINWATCH_API_KEY"),
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: time.Tick(time.Minute / time.Duration(perMin)),
	}
}

type balanceResponse struct {
	Address string `json:"address"`
	Balance int64  `json:"balance"`
}

func (c *chainClient) getBalance(ctx context.Context, chain, address string) (*chainBalance, error) {
	select {
	case <-c.limiter:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	url := fmt.Sprintf("%s/%s/main/addrs/%s/balance", c.baseURL, chain, address)
	if c.apiKey != "" {
		url += "?token=" + c.apiKey
	}

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("chainwatch: %s balance for %s: status %d: %s", chain, address, resp.StatusCode, string(body))
	}

	var parsed balanceResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, fmt.Errorf("chainwatch: decode balance response: %w", err)
	}
	return toChainBalance(chain, parsed.Balance), nil
}
