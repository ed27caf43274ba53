/**
 * @description
 * HTTP Client for the Alchemy Prices API.
 * Fetches historical price candles for a token over a time window.
 *
 * @dependencies
 * - net/http
 * - encoding/json
 * - backend/internal/config
 * - backend/internal/pricing
 */

package alchemy

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/chronoprice-project/backend/internal/config"
	"github.com/chronoprice-project/backend/internal/pricing"
)

const (
	DefaultTimeout = 10 * time.Second
)

type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

func NewClient(cfg *config.Config) *Client {
	return &Client{
		BaseURL: cfg.Alchemy.PricesURL,
		APIKey:  cfg.Alchemy.APIKey,
		HTTPClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
}

// QueryCandles fetches price samples for a token on a network over
// [start, end] at the given resolution. The returned slice carries no
// ordering guarantee. An empty window yields ErrNoCandles.
func (c *Client) QueryCandles(ctx context.Context, networkID, tokenAddress string, start, end time.Time, interval Interval) ([]pricing.Candle, error) {
	body, err := json.Marshal(historicalRequest{
		Network:   networkID,
		Address:   tokenAddress,
		StartTime: start.UTC().Format(time.RFC3339),
		EndTime:   end.UTC().Format(time.RFC3339),
		Interval:  string(interval),
	})
	if err != nil {
		return nil, err
	}

	u := fmt.Sprintf("%s/%s/tokens/historical", c.BaseURL, c.APIKey)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, &APIError{Message: err.Error()}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &APIError{StatusCode: resp.StatusCode, Message: string(snippet)}
	}

	var payload historicalResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("unexpected prices response format: %w", err)
	}

	if len(payload.Data) == 0 {
		return nil, ErrNoCandles
	}

	candles := make([]pricing.Candle, 0, len(payload.Data))
	for _, point := range payload.Data {
		candle, err := point.toCandle()
		if err != nil {
			return nil, err
		}
		candles = append(candles, candle)
	}

	return candles, nil
}
