/**
 * @description
 * Core price types shared by the resolver, the provider client, and the queue worker.
 *
 * @dependencies
 * - standard "time"
 */

package pricing

import (
	"fmt"
	"strconv"
	"time"
)

// Candle is a provider-reported price sample at a point in time.
// Collections of candles carry no ordering guarantee.
type Candle struct {
	Timestamp time.Time
	Value     float64
}

// Source identifies where a resolved price came from.
type Source string

const (
	SourceCache           Source = "cache"
	SourceExact           Source = "alchemy-exact"
	SourceInterpolated    Source = "alchemy-interpolated"
	SourceNearestBefore   Source = "alchemy-nearest-before"
	SourceNearestAfter    Source = "alchemy-nearest-after"
	SourceDayInterpolated Source = "interpolated"
)

// ResolvedPrice is the outcome of a price resolution.
type ResolvedPrice struct {
	Price  float64 `json:"price"`
	Source Source  `json:"source"`
}

// ParseTimestamp accepts an ISO-8601 string or epoch seconds (number or
// numeric string) and normalizes it to a UTC instant.
func ParseTimestamp(raw string) (time.Time, error) {
	if secs, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return time.Unix(secs, 0).UTC(), nil
	}
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	if t, err := time.Parse("2006-01-02", raw); err == nil {
		return t.UTC(), nil
	}
	return time.Time{}, fmt.Errorf("unrecognized timestamp: %q", raw)
}

// DayWindow returns the UTC day window [00:00:00, 23:59:59] containing ts.
func DayWindow(ts time.Time) (time.Time, time.Time) {
	ts = ts.UTC()
	start := time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
	end := time.Date(ts.Year(), ts.Month(), ts.Day(), 23, 59, 59, 0, time.UTC)
	return start, end
}

// DayMidnight truncates ts to UTC midnight.
func DayMidnight(ts time.Time) time.Time {
	ts = ts.UTC()
	return time.Date(ts.Year(), ts.Month(), ts.Day(), 0, 0, 0, 0, time.UTC)
}
