package marketdata

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"time"

	"token-radar/internal/domain"
	"token-radar/internal/observability"
)

// Default configuration values.
const (
	DefaultTimeout     = 30 * time.Second
	DefaultMaxRetries  = 3
	DefaultRetryDelay  = 1 * time.Second
	DefaultMaxDelay    = 10 * time.Second
	DefaultBackoffMult = 2.0
)

// HTTPClient implements DiscoverySource, PoolResolver and HistoryFetcher
// against a GeckoTerminal-style REST API.
type HTTPClient struct {
	baseURL     string
	network     string
	client      *http.Client
	maxRetries  int
	retryDelay  time.Duration
	maxDelay    time.Duration
	backoffMult float64
}

// ClientOption configures HTTPClient.
type ClientOption func(*HTTPClient)

// WithTimeout sets HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.client.Timeout = d
	}
}

// WithMaxRetries sets maximum retry attempts.
func WithMaxRetries(n int) ClientOption {
	return func(c *HTTPClient) {
		c.maxRetries = n
	}
}

// WithRetryDelay sets initial retry delay.
func WithRetryDelay(d time.Duration) ClientOption {
	return func(c *HTTPClient) {
		c.retryDelay = d
	}
}

// WithNetwork sets the network path segment (default "solana").
func WithNetwork(network string) ClientOption {
	return func(c *HTTPClient) {
		c.network = network
	}
}

// NewHTTPClient creates a new upstream API client.
func NewHTTPClient(baseURL string, opts ...ClientOption) *HTTPClient {
	c := &HTTPClient{
		baseURL:     baseURL,
		network:     "solana",
		client:      &http.Client{Timeout: DefaultTimeout},
		maxRetries:  DefaultMaxRetries,
		retryDelay:  DefaultRetryDelay,
		maxDelay:    DefaultMaxDelay,
		backoffMult: DefaultBackoffMult,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Compile-time interface checks.
var (
	_ DiscoverySource = (*HTTPClient)(nil)
	_ PoolResolver    = (*HTTPClient)(nil)
	_ HistoryFetcher  = (*HTTPClient)(nil)
	_ PriceSource     = (*HTTPClient)(nil)
)

// get issues a GET request with retries and exponential backoff,
// decoding the JSON body into result. 404 maps to ErrNotFound without
// retrying; 429 retries and maps to ErrRateLimited when exhausted.
// name labels the call in the upstream latency histogram.
func (c *HTTPClient) get(ctx context.Context, name, path string, result interface{}) error {
	endpoint := c.baseURL + path

	delay := c.retryDelay
	var lastErr error

	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
			// Exponential backoff
			delay = time.Duration(float64(delay) * c.backoffMult)
			if delay > c.maxDelay {
				delay = c.maxDelay
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Accept", "application/json")

		start := time.Now()
		resp, err := c.client.Do(req)
		observability.ObserveUpstreamCall(name, start)
		if err != nil {
			lastErr = fmt.Errorf("http request: %w", err)
			continue
		}

		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			lastErr = fmt.Errorf("read response: %w", err)
			continue
		}

		switch {
		case resp.StatusCode == http.StatusNotFound:
			return fmt.Errorf("get %s: %w", path, ErrNotFound)
		case resp.StatusCode == http.StatusTooManyRequests:
			observability.RecordRateLimited()
			lastErr = ErrRateLimited
			continue
		case resp.StatusCode != http.StatusOK:
			lastErr = fmt.Errorf("unexpected status %d: %s", resp.StatusCode, string(body))
			continue
		}

		if result != nil {
			if err := json.Unmarshal(body, result); err != nil {
				return fmt.Errorf("unmarshal response: %w", err)
			}
		}
		return nil
	}

	return fmt.Errorf("max retries exceeded: %w", lastErr)
}

// newPoolsResponse mirrors the upstream new-pools payload.
type newPoolsResponse struct {
	Data []struct {
		Attributes struct {
			Name          string `json:"name"`
			BaseTokenName string `json:"base_token_name"`
			PoolCreatedAt string `json:"pool_created_at"`
		} `json:"attributes"`
		Relationships struct {
			BaseToken struct {
				Data struct {
					ID string `json:"id"` // "solana_<mint>"
				} `json:"data"`
			} `json:"base_token"`
		} `json:"relationships"`
	} `json:"data"`
}

// Latest returns the current batch of discovery candidates.
func (c *HTTPClient) Latest(ctx context.Context) ([]domain.TokenInfo, error) {
	path := fmt.Sprintf("/networks/%s/new_pools", c.network)

	var resp newPoolsResponse
	if err := c.get(ctx, "new_pools", path, &resp); err != nil {
		return nil, fmt.Errorf("fetch new pools: %w", err)
	}

	infos := make([]domain.TokenInfo, 0, len(resp.Data))
	for _, item := range resp.Data {
		addr := stripNetworkPrefix(item.Relationships.BaseToken.Data.ID, c.network)
		if addr == "" {
			continue
		}
		var createdAt int64
		if t, err := time.Parse(time.RFC3339, item.Attributes.PoolCreatedAt); err == nil {
			createdAt = t.UnixMilli()
		}
		infos = append(infos, domain.TokenInfo{
			Address:   addr,
			Symbol:    item.Attributes.BaseTokenName,
			Name:      item.Attributes.Name,
			CreatedAt: createdAt,
		})
	}
	return infos, nil
}

// poolsResponse mirrors the upstream token-pools payload.
type poolsResponse struct {
	Data []struct {
		Attributes struct {
			Address    string `json:"address"`
			ReserveUSD string `json:"reserve_in_usd"`
		} `json:"attributes"`
	} `json:"data"`
}

// ResolvePool returns the primary pool for a token, or (nil, nil) when
// the token has no pool yet.
func (c *HTTPClient) ResolvePool(ctx context.Context, address string) (*string, error) {
	path := fmt.Sprintf("/networks/%s/tokens/%s/pools", c.network, url.PathEscape(address))

	var resp poolsResponse
	if err := c.get(ctx, "token_pools", path, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("resolve pool for %s: %w", address, err)
	}
	if len(resp.Data) == 0 {
		return nil, nil
	}

	pool := resp.Data[0].Attributes.Address
	if pool == "" {
		return nil, nil
	}
	return &pool, nil
}

// ohlcvResponse mirrors the upstream OHLCV payload: each entry is
// [timestamp_sec, open, high, low, close, volume].
type ohlcvResponse struct {
	Data struct {
		Attributes struct {
			OHLCVList [][]float64 `json:"ohlcv_list"`
		} `json:"attributes"`
	} `json:"data"`
}

// FetchOHLCV returns up to limit bars for a pool, ordered oldest-first.
func (c *HTTPClient) FetchOHLCV(ctx context.Context, pool string, limit int) ([]domain.OHLCVPoint, error) {
	path := fmt.Sprintf("/networks/%s/pools/%s/ohlcv/minute?limit=%d", c.network, url.PathEscape(pool), limit)

	var resp ohlcvResponse
	if err := c.get(ctx, "ohlcv", path, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("fetch ohlcv for %s: %w", pool, err)
	}

	points := make([]domain.OHLCVPoint, 0, len(resp.Data.Attributes.OHLCVList))
	for _, row := range resp.Data.Attributes.OHLCVList {
		if len(row) < 6 {
			continue
		}
		points = append(points, domain.OHLCVPoint{
			TimestampMs: int64(row[0]) * 1000,
			Open:        row[1],
			High:        row[2],
			Low:         row[3],
			Close:       row[4],
			Volume:      row[5],
		})
	}

	// Upstream returns newest-first; the contract is oldest-first.
	sort.Slice(points, func(i, j int) bool {
		return points[i].TimestampMs < points[j].TimestampMs
	})
	return points, nil
}

// pricesResponse mirrors the upstream simple-price payload.
type pricesResponse struct {
	Data struct {
		Attributes struct {
			TokenPrices map[string]string `json:"token_prices"`
		} `json:"attributes"`
	} `json:"data"`
}

// TokenPrices returns current USD prices for up to 30 token addresses.
func (c *HTTPClient) TokenPrices(ctx context.Context, addresses []string) (map[string]float64, error) {
	if len(addresses) == 0 {
		return map[string]float64{}, nil
	}

	joined := addresses[0]
	for _, a := range addresses[1:] {
		joined += "," + a
	}
	path := fmt.Sprintf("/simple/networks/%s/token_price/%s", c.network, url.PathEscape(joined))

	var resp pricesResponse
	if err := c.get(ctx, "token_price", path, &resp); err != nil {
		if errors.Is(err, ErrNotFound) {
			return map[string]float64{}, nil
		}
		return nil, fmt.Errorf("fetch token prices: %w", err)
	}

	prices := make(map[string]float64, len(resp.Data.Attributes.TokenPrices))
	for addr, raw := range resp.Data.Attributes.TokenPrices {
		p, err := strconv.ParseFloat(raw, 64)
		if err != nil {
			continue
		}
		prices[addr] = p
	}
	return prices, nil
}

// stripNetworkPrefix converts "solana_<mint>" into "<mint>".
func stripNetworkPrefix(id, network string) string {
	prefix := network + "_"
	if len(id) > len(prefix) && id[:len(prefix)] == prefix {
		return id[len(prefix):]
	}
	return ""
}
