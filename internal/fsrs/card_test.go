package fsrs

import (
	"errors"
	"math"
	"testing"
	"time"
)

func TestCardValidate(t *testing.T) {
	valid := reviewCard(10, 5, t0, 10)
	if err := valid.Validate(); err != nil {
		t.Fatalf("Expected a valid review card, but got %v", err)
	}
	if err := NewCard().Validate(); err != nil {
		t.Fatalf("Expected a valid new card, but got %v", err)
	}

	testCases := []struct {
		name   string
		mutate func(c *Card)
	}{
		{"unknown state", func(c *Card) { c.State = CardState(4) }},
		{"negative stability", func(c *Card) { c.Stability = -0.5 }},
		{"zero stability after new", func(c *Card) { c.Stability = 0 }},
		{"NaN difficulty", func(c *Card) { c.Difficulty = math.NaN() }},
		{"difficulty above bound", func(c *Card) { c.Difficulty = 10.5 }},
		{"infinite elapsed", func(c *Card) { c.ElapsedDays = math.Inf(1) }},
		{"negative lapses", func(c *Card) { c.Lapses = -1 }},
		{"missing due", func(c *Card) { c.Due = nil }},
		{"due before last review", func(c *Card) { c.Due = timePtr(t0.Add(-time.Hour)) }},
		{"new with reps", func(c *Card) { *c = NewCard(); c.Reps = 2 }},
		{"new with due", func(c *Card) { *c = NewCard(); c.Due = timePtr(t0) }},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			c := valid.clone()
			tc.mutate(&c)
			if err := c.Validate(); !errors.Is(err, ErrInvalidCardState) {
				t.Errorf("Expected ErrInvalidCardState, but got %v", err)
			}
		})
	}
}

func TestApplyFuzz(t *testing.T) {
	t.Run("short intervals are untouched", func(t *testing.T) {
		for _, days := range []int{1, 2} {
			if got := applyFuzz(days, 36500, 0.99); got != days {
				t.Errorf("Expected %d, but got %d", days, got)
			}
		}
	})

	t.Run("stays within bounds", func(t *testing.T) {
		for _, days := range []int{3, 7, 15, 60, 400, 36500} {
			lo, hi := fuzzBounds(days, 36500)
			for _, u := range []float64{0, 0.25, 0.5, 0.999999} {
				got := applyFuzz(days, 36500, u)
				if got < lo || got > hi {
					t.Errorf("Expected fuzz(%d, %f) within [%d, %d], but got %d", days, u, lo, hi, got)
				}
			}
			if applyFuzz(days, 36500, 0) != lo || applyFuzz(days, 36500, 0.999999) != hi {
				t.Errorf("Expected the extremes of u to reach [%d, %d] for %d days", lo, hi, days)
			}
		}
	})

	t.Run("respects the maximum", func(t *testing.T) {
		if got := applyFuzz(100, 100, 0.999999); got > 100 {
			t.Errorf("Expected at most 100, but got %d", got)
		}
	})
}

func TestSeededSourceIsReproducible(t *testing.T) {
	c := reviewCard(10, 5, t0, 10)
	a := SeededSource(c, t0.Add(time.Hour)).Float64()
	b := SeededSource(c, t0.Add(time.Hour)).Float64()
	if a != b {
		t.Errorf("Expected identical draws, but got %f and %f", a, b)
	}
	if other := SeededSource(c, t0.Add(2*time.Hour)).Float64(); other == a {
		t.Errorf("Expected a different review time to change the draw")
	}
}
