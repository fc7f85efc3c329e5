package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/vocabreview/internal/fsrs"
)

// StoredCard is a card together with its ownership and version metadata.
type StoredCard struct {
	fsrs.Card
	UserID       int64  `json:"user_id"`
	VocabularyID int64  `json:"vocabulary_id"`
	Version      int64  `json:"version"`
	Word         string `json:"word"`
	Translation  string `json:"translation"`
	Context      string `json:"context,omitempty"`
}

const cardColumns = `
	c.id, c.user_id, c.vocabulary_id, c.version,
	c.stability, c.difficulty, c.reps, c.lapses, c.state,
	c.elapsed_days, c.scheduled_days, c.learning_step, c.last_review, c.due,
	v.word, v.translation, v.context`

const cardFrom = `FROM cards c JOIN vocabulary v ON v.id = c.vocabulary_id`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanCard(s rowScanner) (StoredCard, error) {
	var (
		sc  StoredCard
		id  int64
		row CardRow
	)
	err := s.Scan(
		&id, &sc.UserID, &sc.VocabularyID, &sc.Version,
		&row.Stability, &row.Difficulty, &row.Reps, &row.Lapses, &row.State,
		&row.ElapsedDays, &row.ScheduledDays, &row.LearningStep, &row.LastReview, &row.Due,
		&sc.Word, &sc.Translation, &sc.Context,
	)
	if err != nil {
		return StoredCard{}, err
	}
	card, err := DecodeCard(id, row)
	if err != nil {
		return StoredCard{}, err
	}
	sc.Card = card
	return sc, nil
}

// insertCard creates the New card for a vocabulary item.
func (q *Queries) insertCard(ctx context.Context, userID, vocabularyID int64) (int64, error) {
	row := EncodeCard(fsrs.NewCard())
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO cards (vocabulary_id, user_id, stability, difficulty, reps, lapses, state,
			elapsed_days, scheduled_days, learning_step, last_review, due)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		vocabularyID, userID,
		row.Stability, row.Difficulty, row.Reps, row.Lapses, row.State,
		row.ElapsedDays, row.ScheduledDays, row.LearningStep, row.LastReview, row.Due,
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert card for vocabulary %d: %w", vocabularyID, err)
	}
	return res.LastInsertId()
}

// GetCard loads one of the user's cards.
func (q *Queries) GetCard(ctx context.Context, userID, cardID int64) (StoredCard, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+cardColumns+` `+cardFrom+`
		WHERE c.id = ? AND c.user_id = ?`, cardID, userID)
	sc, err := scanCard(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return StoredCard{}, fmt.Errorf("card %d: %w", cardID, ErrNotFound)
		}
		return StoredCard{}, fmt.Errorf("failed to get card %d: %w", cardID, err)
	}
	return sc, nil
}

// DueCards lists the user's cards that are due at now: New cards first, then
// by due date ascending. A limit <= 0 means no limit.
func (q *Queries) DueCards(ctx context.Context, userID int64, now time.Time, limit int) ([]StoredCard, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := q.q.QueryContext(ctx, `SELECT `+cardColumns+` `+cardFrom+`
		WHERE c.user_id = ? AND (c.state = ? OR (c.due IS NOT NULL AND c.due <= ?))
		ORDER BY c.due IS NOT NULL, c.due ASC, c.id ASC
		LIMIT ?
	`, userID, int(fsrs.New), encodeTime(now), limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get due cards for user %d: %w", userID, err)
	}
	defer rows.Close()

	var cards []StoredCard
	for rows.Next() {
		sc, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan due card row: %w", err)
		}
		cards = append(cards, sc)
	}
	return cards, rows.Err()
}

// UpdateCard writes the scheduling state of sc if nobody changed it since it
// was read. On success sc.Version is advanced.
func (q *Queries) UpdateCard(ctx context.Context, sc *StoredCard) error {
	row := EncodeCard(sc.Card)
	res, err := q.q.ExecContext(ctx, `
		UPDATE cards
		SET stability = ?, difficulty = ?, reps = ?, lapses = ?, state = ?,
			elapsed_days = ?, scheduled_days = ?, learning_step = ?, last_review = ?, due = ?,
			version = version + 1
		WHERE id = ? AND user_id = ? AND version = ?
	`,
		row.Stability, row.Difficulty, row.Reps, row.Lapses, row.State,
		row.ElapsedDays, row.ScheduledDays, row.LearningStep, row.LastReview, row.Due,
		sc.ID, sc.UserID, sc.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", sc.ID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to update card %d: %w", sc.ID, err)
	}
	if n == 0 {
		return fmt.Errorf("card %d at version %d: %w", sc.ID, sc.Version, ErrConflict)
	}
	sc.Version++
	return nil
}

// DueCounts returns, per user, how many cards are due at now.
func (q *Queries) DueCounts(ctx context.Context, now time.Time) (map[int64]int, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT user_id, COUNT(*) FROM cards
		WHERE state = ? OR (due IS NOT NULL AND due <= ?)
		GROUP BY user_id
	`, int(fsrs.New), encodeTime(now))
	if err != nil {
		return nil, fmt.Errorf("failed to count due cards: %w", err)
	}
	defer rows.Close()

	counts := make(map[int64]int)
	for rows.Next() {
		var userID int64
		var n int
		if err := rows.Scan(&userID, &n); err != nil {
			return nil, fmt.Errorf("failed to scan due count row: %w", err)
		}
		counts[userID] = n
	}
	return counts, rows.Err()
}
