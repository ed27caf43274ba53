/**
 * @description
 * Service layer for price resolution.
 * Orchestrates the tiered lookup: cache → provider candles for the query's
 * UTC day → day-level interpolation fallback. Successful resolutions are
 * projected into the cache (300s TTL) and the durable price log.
 *
 * @dependencies
 * - backend/internal/alchemy
 * - backend/internal/cache
 * - backend/internal/models
 * - backend/internal/pricing
 * - golang.org/x/sync/singleflight
 */

package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/chronoprice-project/backend/internal/alchemy"
	"github.com/chronoprice-project/backend/internal/logger"
	"github.com/chronoprice-project/backend/internal/models"
	"github.com/chronoprice-project/backend/internal/pricing"
	"golang.org/x/sync/singleflight"
)

var (
	// ErrUnsupportedNetwork rejects a query before any cache or provider work
	ErrUnsupportedNetwork = errors.New("unsupported network")
	// ErrFetchFailed means both the primary lookup and the day-level fallback failed
	ErrFetchFailed = errors.New("failed to fetch price")
)

// CacheStore is the fail-open price cache consumed by the resolver. A miss
// and an unavailable cache are indistinguishable on the read path.
type CacheStore interface {
	GetPrice(ctx context.Context, key string) (float64, bool)
	SetPrice(ctx context.Context, key string, price float64) error
}

// PersistentStore is the write-only durable log of resolved prices.
type PersistentStore interface {
	Append(ctx context.Context, record models.PriceRecord) error
}

// MarketDataProvider queries an upstream price-history API for a time window
// at a given resolution. Returned candles carry no ordering guarantee.
type MarketDataProvider interface {
	QueryCandles(ctx context.Context, networkID, tokenAddress string, start, end time.Time, interval alchemy.Interval) ([]pricing.Candle, error)
}

// BirthdateProvider returns a token's earliest on-chain activity instant.
type BirthdateProvider interface {
	TokenBirthdate(ctx context.Context, tokenAddress string) (time.Time, error)
}

type PriceService struct {
	Cache    CacheStore
	Store    PersistentStore
	Provider MarketDataProvider

	flight singleflight.Group
}

func NewPriceService(cache CacheStore, store PersistentStore, provider MarketDataProvider) *PriceService {
	return &PriceService{
		Cache:    cache,
		Store:    store,
		Provider: provider,
	}
}

// CacheKey builds the deterministic cache key for a query. The timestamp is
// normalized to UTC epoch seconds so equivalent representations of the same
// instant share one entry.
func CacheKey(token, network string, ts time.Time) string {
	return fmt.Sprintf("%s:%s:%d", token, network, ts.UTC().Unix())
}

// Resolve answers "what was this token's price on this network at this time".
//
// The lookup is tiered: an unexpired cache entry short-circuits everything; on
// a miss, fine-grained candles for the query's UTC day are fetched and the
// bracketing pair selected; if that fails, daily candles for the adjacent days
// are interpolated. Both tiers exhausted is terminal (ErrFetchFailed).
func (s *PriceService) Resolve(ctx context.Context, token, network string, ts time.Time) (pricing.ResolvedPrice, error) {
	networkID, ok := alchemy.NetworkID(network)
	if !ok {
		return pricing.ResolvedPrice{}, fmt.Errorf("%w: %s", ErrUnsupportedNetwork, network)
	}

	key := CacheKey(token, network, ts)
	if price, hit := s.Cache.GetPrice(ctx, key); hit {
		return pricing.ResolvedPrice{Price: price, Source: pricing.SourceCache}, nil
	}

	// Concurrent misses for the same key share one provider round-trip
	result, err, _ := s.flight.Do(key, func() (interface{}, error) {
		return s.resolveOrigin(ctx, token, network, networkID, ts, key)
	})
	if err != nil {
		return pricing.ResolvedPrice{}, err
	}
	return result.(pricing.ResolvedPrice), nil
}

func (s *PriceService) resolveOrigin(ctx context.Context, token, network, networkID string, ts time.Time, key string) (pricing.ResolvedPrice, error) {
	resolved, primaryErr := s.resolvePrimary(ctx, networkID, token, ts)
	if primaryErr != nil {
		logger.Error("Primary price lookup failed for %s on %s at %s: %v", token, network, ts.Format(time.RFC3339), primaryErr)

		fallback, fallbackErr := s.resolveFallback(ctx, networkID, token, ts)
		if fallbackErr != nil {
			// Both causes stay in the chain so the queue worker can classify transience
			return pricing.ResolvedPrice{}, fmt.Errorf("%w: primary: %w; fallback: %w", ErrFetchFailed, primaryErr, fallbackErr)
		}
		resolved = fallback
	}

	s.persist(ctx, token, network, ts, key, resolved)
	return resolved, nil
}

// resolvePrimary fetches fine-grained candles for the query's UTC day and
// selects the bracketing pair.
func (s *PriceService) resolvePrimary(ctx context.Context, networkID, token string, ts time.Time) (pricing.ResolvedPrice, error) {
	dayStart, dayEnd := pricing.DayWindow(ts)

	candles, err := s.Provider.QueryCandles(ctx, networkID, token, dayStart, dayEnd, alchemy.IntervalFiveMinute)
	if err != nil {
		return pricing.ResolvedPrice{}, err
	}

	before, after := pricing.SelectCandles(candles, ts)
	switch {
	case before == nil && after == nil:
		return pricing.ResolvedPrice{}, alchemy.ErrNoCandles
	case before != nil && after != nil && before.Timestamp.Equal(after.Timestamp):
		return pricing.ResolvedPrice{Price: before.Value, Source: pricing.SourceExact}, nil
	case before != nil && after != nil:
		price := pricing.Interpolate(ts, before.Timestamp, before.Value, after.Timestamp, after.Value)
		return pricing.ResolvedPrice{Price: price, Source: pricing.SourceInterpolated}, nil
	case before != nil:
		return pricing.ResolvedPrice{Price: before.Value, Source: pricing.SourceNearestBefore}, nil
	default:
		return pricing.ResolvedPrice{Price: after.Value, Source: pricing.SourceNearestAfter}, nil
	}
}

// resolveFallback interpolates between daily candles for the day before and
// the day after the query's UTC day.
func (s *PriceService) resolveFallback(ctx context.Context, networkID, token string, ts time.Time) (pricing.ResolvedPrice, error) {
	dayBefore := pricing.DayMidnight(ts).AddDate(0, 0, -1)
	dayAfter := pricing.DayMidnight(ts).AddDate(0, 0, 1)

	beforePrice, err := s.dailyPrice(ctx, networkID, token, dayBefore)
	if err != nil {
		return pricing.ResolvedPrice{}, fmt.Errorf("fallback day-before: %w", err)
	}
	afterPrice, err := s.dailyPrice(ctx, networkID, token, dayAfter)
	if err != nil {
		return pricing.ResolvedPrice{}, fmt.Errorf("fallback day-after: %w", err)
	}

	if beforePrice == 0 || afterPrice == 0 {
		return pricing.ResolvedPrice{}, fmt.Errorf("fallback candles missing a usable price")
	}

	price := pricing.Interpolate(ts, dayBefore, beforePrice, dayAfter, afterPrice)
	return pricing.ResolvedPrice{Price: price, Source: pricing.SourceDayInterpolated}, nil
}

func (s *PriceService) dailyPrice(ctx context.Context, networkID, token string, day time.Time) (float64, error) {
	candles, err := s.Provider.QueryCandles(ctx, networkID, token, day, day, alchemy.IntervalDaily)
	if err != nil {
		return 0, err
	}
	if len(candles) == 0 {
		return 0, alchemy.ErrNoCandles
	}
	return candles[0].Value, nil
}

// persist projects a resolved price into the cache and the durable log.
// Persistence failures are logged and swallowed: a correctly resolved price is
// always returned to the caller.
func (s *PriceService) persist(ctx context.Context, token, network string, ts time.Time, key string, resolved pricing.ResolvedPrice) {
	if err := s.Cache.SetPrice(ctx, key, resolved.Price); err != nil {
		logger.Error("Failed to cache price for %s: %v", key, err)
	}

	// Every source is persisted, tagged, so consumers can weight confidence
	err := s.Store.Append(ctx, models.PriceRecord{
		Token:     token,
		Network:   network,
		Timestamp: ts.UTC(),
		Price:     resolved.Price,
		Source:    string(resolved.Source),
	})
	if err != nil {
		logger.Error("Failed to persist price for %s: %v", key, err)
	}
}
