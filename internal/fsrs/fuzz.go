package fsrs

import (
	"hash/fnv"
	"math"
	"math/rand"
	"strconv"
	"time"
)

// RandomSource supplies uniform values in [0, 1). *rand.Rand satisfies it.
type RandomSource interface {
	Float64() float64
}

// SeededSource derives a reproducible source from the card and review time,
// so a preview and a later commit at the same instant fuzz identically.
func SeededSource(c Card, now time.Time) RandomSource {
	h := fnv.New64a()
	h.Write([]byte(strconv.FormatInt(now.UnixMilli(), 10)))
	h.Write([]byte{'_'})
	h.Write([]byte(strconv.Itoa(c.Reps)))
	h.Write([]byte{'_'})
	h.Write([]byte(strconv.FormatFloat(c.Stability*c.Difficulty, 'g', -1, 64)))
	return rand.New(rand.NewSource(int64(h.Sum64())))
}

type fuzzRange struct {
	start, end float64
	factor     float64
}

var fuzzRanges = []fuzzRange{
	{2.5, 7.0, 0.15},
	{7.0, 20.0, 0.10},
	{20.0, math.Inf(1), 0.05},
}

// fuzzBounds returns the inclusive day range an interval may be moved to.
func fuzzBounds(days, maxDays int) (lo, hi int) {
	ivl := float64(days)
	delta := 1.0
	for _, r := range fuzzRanges {
		delta += r.factor * math.Max(math.Min(ivl, r.end)-r.start, 0)
	}
	lo = max(2, int(math.Round(ivl-delta)))
	hi = min(int(math.Round(ivl+delta)), maxDays)
	lo = min(lo, hi)
	return lo, hi
}

// applyFuzz spreads an interval using a single uniform draw u in [0, 1).
// Intervals under 2.5 days are returned unchanged.
func applyFuzz(days, maxDays int, u float64) int {
	if float64(days) < 2.5 {
		return days
	}
	lo, hi := fuzzBounds(days, maxDays)
	fuzzed := lo + int(math.Floor(u*float64(hi-lo+1)))
	return min(fuzzed, hi)
}
