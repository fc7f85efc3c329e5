package fsrs

import (
	"fmt"
	"math"
	"time"
)

// InitialDifficulty is the difficulty a card carries before its first review.
const InitialDifficulty = 5.0

// Card is the scheduling state of one (user, vocabulary item) pair.
type Card struct {
	ID            int64      `json:"id"`
	Stability     float64    `json:"stability"`
	Difficulty    float64    `json:"difficulty"`
	State         CardState  `json:"state"`
	Reps          int        `json:"reps"`
	// Lapses counts Again grades given in Review. Again during Learning or
	// Relearning restarts the steps without adding a lapse.
	Lapses        int        `json:"lapses"`
	ElapsedDays   float64    `json:"elapsed_days"`
	ScheduledDays float64    `json:"scheduled_days"`
	LearningStep  int        `json:"learning_step"`
	LastReview    *time.Time `json:"last_review"`
	Due           *time.Time `json:"due"`
}

// NewCard returns a never-reviewed card.
func NewCard() Card {
	return Card{
		State:      New,
		Difficulty: InitialDifficulty,
	}
}

// IsNew reports whether the card has never been graded.
func (c Card) IsNew() bool {
	return c.State == New
}

// Validate checks the card invariants. It never repairs anything: a broken
// card usually means a persistence bug upstream.
func (c Card) Validate() error {
	if !c.State.IsValid() {
		return fmt.Errorf("%w: unknown state %d", ErrInvalidCardState, int(c.State))
	}
	for name, v := range map[string]float64{
		"stability":      c.Stability,
		"difficulty":     c.Difficulty,
		"elapsed_days":   c.ElapsedDays,
		"scheduled_days": c.ScheduledDays,
	} {
		if math.IsNaN(v) || math.IsInf(v, 0) || v < 0 {
			return fmt.Errorf("%w: %s = %g", ErrInvalidCardState, name, v)
		}
	}
	if c.Reps < 0 || c.Lapses < 0 || c.LearningStep < 0 {
		return fmt.Errorf("%w: negative counter (reps=%d lapses=%d step=%d)",
			ErrInvalidCardState, c.Reps, c.Lapses, c.LearningStep)
	}
	if c.State == New {
		if c.Reps != 0 || c.Due != nil || c.LastReview != nil {
			return fmt.Errorf("%w: new card with review history", ErrInvalidCardState)
		}
		return nil
	}
	if c.Stability <= 0 {
		return fmt.Errorf("%w: %s card with stability %g", ErrInvalidCardState, c.State, c.Stability)
	}
	if c.Difficulty < MinDifficulty || c.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: difficulty %g outside [%g, %g]",
			ErrInvalidCardState, c.Difficulty, MinDifficulty, MaxDifficulty)
	}
	if c.LastReview == nil || c.Due == nil {
		return fmt.Errorf("%w: %s card without last_review/due", ErrInvalidCardState, c.State)
	}
	if c.Due.Before(*c.LastReview) {
		return fmt.Errorf("%w: due %s before last_review %s",
			ErrInvalidCardState, c.Due.Format(time.RFC3339), c.LastReview.Format(time.RFC3339))
	}
	return nil
}

// clone copies the card, including the pointed-to timestamps.
func (c Card) clone() Card {
	out := c
	if c.LastReview != nil {
		t := *c.LastReview
		out.LastReview = &t
	}
	if c.Due != nil {
		t := *c.Due
		out.Due = &t
	}
	return out
}

func (c Card) checkFinite() error {
	for _, v := range []float64{c.Stability, c.Difficulty, c.ElapsedDays, c.ScheduledDays} {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%w: card %d produced %g", ErrNumericDefect, c.ID, v)
		}
	}
	if c.Stability <= 0 || c.Difficulty < MinDifficulty || c.Difficulty > MaxDifficulty {
		return fmt.Errorf("%w: card %d stability=%g difficulty=%g",
			ErrNumericDefect, c.ID, c.Stability, c.Difficulty)
	}
	return nil
}
