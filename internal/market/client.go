// Package market fetches token stats from an external dex aggregator.
// Failures leave the previous stats stale; the caller decides the cadence.
package market

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"
)

type Stats struct {
	PriceUSD  float64   `json:"price_usd"`
	Volume24h float64   `json:"volume_24h"`
	MarketCap float64   `json:"market_cap"`
	FetchedAt time.Time `json:"fetched_at"`
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type pairsResponse struct {
	Pairs []struct {
		PriceUSD string `json:"priceUsd"`
		Volume   struct {
			H24 float64 `json:"h24"`
		} `json:"volume"`
		MarketCap float64 `json:"marketCap"`
	} `json:"pairs"`
}

// TokenStats fetches aggregate stats for one token address. The aggregator
// returns one entry per trading pair; the first (most liquid) pair wins.
func (c *Client) TokenStats(ctx context.Context, address string) (Stats, error) {
	var s Stats
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/tokens/"+address, nil)
	if err != nil {
		return s, err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return s, fmt.Errorf("market fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return s, fmt.Errorf("market fetch: status %d", resp.StatusCode)
	}

	raw, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return s, fmt.Errorf("market fetch: read body: %w", err)
	}
	var pr pairsResponse
	if err := json.Unmarshal(raw, &pr); err != nil {
		return s, fmt.Errorf("market fetch: decode: %w", err)
	}
	if len(pr.Pairs) == 0 {
		return s, fmt.Errorf("market fetch: no pairs for %s", address)
	}

	p := pr.Pairs[0]
	price, err := strconv.ParseFloat(p.PriceUSD, 64)
	if err != nil {
		return s, fmt.Errorf("market fetch: bad priceUsd %q", p.PriceUSD)
	}
	s.PriceUSD = price
	s.Volume24h = p.Volume.H24
	s.MarketCap = p.MarketCap
	s.FetchedAt = time.Now().UTC()
	return s, nil
}
