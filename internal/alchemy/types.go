/**
 * @description
 * Type definitions for the Alchemy Prices API (historical token prices).
 * Responses are decoded into explicit shapes and validated on ingestion;
 * a payload that doesn't match the expected shape fails closed.
 *
 * API Base URL: https://api.g.alchemy.com/prices/v1/
 */

package alchemy

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/chronoprice-project/backend/internal/pricing"
)

// Interval is the candle resolution hint sent to the Prices API.
type Interval string

const (
	IntervalFiveMinute Interval = "5m"
	IntervalDaily      Interval = "1d"
)

// historicalRequest is the POST body for /tokens/historical
type historicalRequest struct {
	Network   string `json:"network"`
	Address   string `json:"address"`
	StartTime string `json:"startTime"`
	EndTime   string `json:"endTime"`
	Interval  string `json:"interval"`
}

// historicalResponse mirrors the Prices API response envelope
type historicalResponse struct {
	Data []pricePoint `json:"data"`
}

// pricePoint is a single sample; the API reports values as decimal strings
type pricePoint struct {
	Value     string `json:"value"`
	Timestamp string `json:"timestamp"`
}

// toCandle validates and converts a raw sample into a domain candle
func (p pricePoint) toCandle() (pricing.Candle, error) {
	if p.Value == "" || p.Timestamp == "" {
		return pricing.Candle{}, fmt.Errorf("price point missing value or timestamp")
	}
	value, err := strconv.ParseFloat(p.Value, 64)
	if err != nil {
		return pricing.Candle{}, fmt.Errorf("malformed price value %q: %w", p.Value, err)
	}
	ts, err := time.Parse(time.RFC3339, p.Timestamp)
	if err != nil {
		return pricing.Candle{}, fmt.Errorf("malformed price timestamp %q: %w", p.Timestamp, err)
	}
	return pricing.Candle{Timestamp: ts.UTC(), Value: value}, nil
}

// ErrNoCandles is returned when the API answers successfully but reports no
// samples for the requested window.
var ErrNoCandles = errors.New("no candles found for window")

// APIError is a failed call to the Prices API, classified so callers can
// decide whether retrying makes sense.
type APIError struct {
	StatusCode int // 0 for transport-level failures
	Message    string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("alchemy prices api: %s", e.Message)
	}
	return fmt.Sprintf("alchemy prices api: status %d: %s", e.StatusCode, e.Message)
}

// Transient reports whether the failure is worth retrying. Rate limits,
// server errors, and transport failures are transient; any other 4xx means
// the request itself is bad and a retry would fail identically.
func (e *APIError) Transient() bool {
	if e.StatusCode == 0 {
		return true
	}
	if e.StatusCode == 429 {
		return true
	}
	return e.StatusCode >= 500
}

// IsTransient reports whether err should be retried. Shape mismatches and
// empty windows are permanent for a given request.
func IsTransient(err error) bool {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr.Transient()
	}
	return false
}

// networkAliases maps caller-facing network names to Alchemy network IDs
var networkAliases = map[string]string{
	"ethereum": "eth-mainnet",
	"polygon":  "polygon-mainnet",
	"arbitrum": "arb-mainnet",
	"optimism": "opt-mainnet",
	"bnb":      "bsc-mainnet",
}

// NetworkID resolves a caller-facing network name to its Alchemy network ID.
// The second return is false for unsupported networks.
func NetworkID(network string) (string, bool) {
	id, ok := networkAliases[network]
	return id, ok
}

// SupportedNetworks lists the caller-facing network names accepted by NetworkID.
func SupportedNetworks() []string {
	names := make([]string, 0, len(networkAliases))
	for name := range networkAliases {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
