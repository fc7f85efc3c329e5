package storage

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/conorfennell/vocabreview/internal/fsrs"
)

// timeLayout is fixed width so lexical order equals chronological order.
const timeLayout = "2006-01-02T15:04:05.000000000Z07:00"

func encodeTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func decodeTime(s string) (time.Time, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("failed to parse timestamp %q: %w", s, err)
	}
	return t.UTC(), nil
}

func encodeNullTime(t *time.Time) sql.NullString {
	if t == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: encodeTime(*t), Valid: true}
}

func decodeNullTime(s sql.NullString) (*time.Time, error) {
	if !s.Valid {
		return nil, nil
	}
	t, err := decodeTime(s.String)
	if err != nil {
		return nil, err
	}
	return &t, nil
}

// CardRow is the persisted field set of a card.
type CardRow struct {
	Stability     float64
	Difficulty    float64
	Reps          int
	Lapses        int
	State         int
	ElapsedDays   float64
	ScheduledDays float64
	LearningStep  int
	LastReview    sql.NullString
	Due           sql.NullString
}

// EncodeCard converts a card to its persisted form.
func EncodeCard(c fsrs.Card) CardRow {
	return CardRow{
		Stability:     c.Stability,
		Difficulty:    c.Difficulty,
		Reps:          c.Reps,
		Lapses:        c.Lapses,
		State:         int(c.State),
		ElapsedDays:   c.ElapsedDays,
		ScheduledDays: c.ScheduledDays,
		LearningStep:  c.LearningStep,
		LastReview:    encodeNullTime(c.LastReview),
		Due:           encodeNullTime(c.Due),
	}
}

// DecodeCard rebuilds a card from its persisted form. Unknown states are
// rejected rather than coerced.
func DecodeCard(id int64, r CardRow) (fsrs.Card, error) {
	state := fsrs.CardState(r.State)
	if !state.IsValid() {
		return fsrs.Card{}, fmt.Errorf("card %d: %w: unknown state %d", id, fsrs.ErrInvalidCardState, r.State)
	}
	lastReview, err := decodeNullTime(r.LastReview)
	if err != nil {
		return fsrs.Card{}, fmt.Errorf("card %d last_review: %w", id, err)
	}
	due, err := decodeNullTime(r.Due)
	if err != nil {
		return fsrs.Card{}, fmt.Errorf("card %d due: %w", id, err)
	}
	return fsrs.Card{
		ID:            id,
		Stability:     r.Stability,
		Difficulty:    r.Difficulty,
		State:         state,
		Reps:          r.Reps,
		Lapses:        r.Lapses,
		ElapsedDays:   r.ElapsedDays,
		ScheduledDays: r.ScheduledDays,
		LearningStep:  r.LearningStep,
		LastReview:    lastReview,
		Due:           due,
	}, nil
}
