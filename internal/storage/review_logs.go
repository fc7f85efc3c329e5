package storage

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/conorfennell/vocabreview/internal/fsrs"
)

// AppendReviewLog stores one grading event and assigns its ID. There is no
// update or delete counterpart.
func (q *Queries) AppendReviewLog(ctx context.Context, l *fsrs.ReviewLog) error {
	if l.ID == "" {
		l.ID = uuid.NewString()
	}
	_, err := q.q.ExecContext(ctx, `
		INSERT INTO review_logs (id, card_id, grade, state, stability, difficulty,
			elapsed_days, scheduled_days, reviewed_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		l.ID, l.CardID, int(l.Grade), int(l.State), l.Stability, l.Difficulty,
		l.ElapsedDays, l.ScheduledDays, encodeTime(l.ReviewedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to append review log for card %d: %w", l.CardID, err)
	}
	return nil
}

// ReviewLogs returns a card's review history ordered by review time.
func (q *Queries) ReviewLogs(ctx context.Context, cardID int64) ([]fsrs.ReviewLog, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, card_id, grade, state, stability, difficulty, elapsed_days, scheduled_days, reviewed_at
		FROM review_logs WHERE card_id = ?
		ORDER BY reviewed_at, rowid
	`, cardID)
	if err != nil {
		return nil, fmt.Errorf("failed to get review logs for card %d: %w", cardID, err)
	}
	defer rows.Close()

	var logs []fsrs.ReviewLog
	for rows.Next() {
		var (
			l          fsrs.ReviewLog
			grade      int
			state      int
			reviewedAt string
		)
		if err := rows.Scan(&l.ID, &l.CardID, &grade, &state, &l.Stability, &l.Difficulty,
			&l.ElapsedDays, &l.ScheduledDays, &reviewedAt); err != nil {
			return nil, fmt.Errorf("failed to scan review log row: %w", err)
		}
		l.Grade = fsrs.Grade(grade)
		if err := l.Grade.Validate(); err != nil {
			return nil, fmt.Errorf("review log %s: %w", l.ID, err)
		}
		l.State = fsrs.CardState(state)
		if !l.State.IsValid() {
			return nil, fmt.Errorf("review log %s: %w: unknown state %d", l.ID, fsrs.ErrInvalidCardState, state)
		}
		if l.ReviewedAt, err = decodeTime(reviewedAt); err != nil {
			return nil, err
		}
		logs = append(logs, l)
	}
	return logs, rows.Err()
}
