/**
 * @description
 * Linear interpolation and bracketing-candle selection.
 * These are the pure building blocks of the tiered price lookup.
 *
 * @dependencies
 * - standard "time"
 */

package pricing

import "time"

// Interpolate estimates the price at ts by linear proportion between
// (t0, p0) and (t1, p1). Undefined when t0 == t1; callers must handle the
// equal-timestamp case first (the resolver does, via its exact-match branch).
func Interpolate(ts, t0 time.Time, p0 float64, t1 time.Time, p1 float64) float64 {
	ratio := float64(ts.Unix()-t0.Unix()) / float64(t1.Unix()-t0.Unix())
	return p0 + (p1-p0)*ratio
}

// SelectCandles scans the full candle set once, without assuming any input
// ordering, and returns:
//   - before: the latest candle with Timestamp <= ts
//   - after:  the earliest candle with Timestamp >= ts
//
// Either may be nil when no candle falls on that side of ts. A candle at
// exactly ts is returned as both before and after.
func SelectCandles(candles []Candle, ts time.Time) (before, after *Candle) {
	for i := range candles {
		c := &candles[i]
		if !c.Timestamp.After(ts) {
			if before == nil || c.Timestamp.After(before.Timestamp) {
				before = c
			}
		}
		if !c.Timestamp.Before(ts) {
			if after == nil || c.Timestamp.Before(after.Timestamp) {
				after = c
			}
		}
	}
	return before, after
}
