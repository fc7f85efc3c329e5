package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/vocabreview/internal/domain"
)

func scanVocabulary(s rowScanner) (domain.Vocabulary, error) {
	var (
		v         domain.Vocabulary
		sourceID  sql.NullInt64
		createdAt string
	)
	if err := s.Scan(&v.ID, &v.UserID, &v.Word, &v.Translation, &v.Context, &v.Hash, &sourceID, &v.Manual, &createdAt); err != nil {
		return domain.Vocabulary{}, err
	}
	if sourceID.Valid {
		id := sourceID.Int64
		v.SourceID = &id
	}
	t, err := decodeTime(createdAt)
	if err != nil {
		return domain.Vocabulary{}, err
	}
	v.CreatedAt = t
	return v, nil
}

const vocabularyColumns = `v.id, v.user_id, v.word, v.translation, v.context, v.hash, v.source_id, v.manual, v.created_at`

// FindVocabularyByHash retrieves a user's item by its content hash.
func (q *Queries) FindVocabularyByHash(ctx context.Context, userID int64, hash string) (*domain.Vocabulary, error) {
	row := q.q.QueryRowContext(ctx, `SELECT `+vocabularyColumns+`
		FROM vocabulary v WHERE v.user_id = ? AND v.hash = ?`, userID, hash)
	v, err := scanVocabulary(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Item not found
		}
		return nil, fmt.Errorf("failed to find vocabulary by hash %s: %w", hash, err)
	}
	return &v, nil
}

// SaveVocabulary inserts the item and its New card unless the user already
// has an item with the same hash. Either way the item is linked to
// v.SourceID when set and marked manual when v.Manual is set. It reports
// whether a row was created and fills v from the stored item.
func (q *Queries) SaveVocabulary(ctx context.Context, v *domain.Vocabulary, now time.Time) (bool, error) {
	sourceID, manual := v.SourceID, v.Manual

	existing, err := q.FindVocabularyByHash(ctx, v.UserID, v.Hash)
	if err != nil {
		return false, err
	}
	created := existing == nil
	if created {
		if err := q.insertVocabulary(ctx, v, now); err != nil {
			return false, err
		}
	} else {
		*v = *existing
	}

	if sourceID != nil {
		if err := q.linkVocabularySource(ctx, v.ID, *sourceID); err != nil {
			return false, err
		}
	}
	if manual && !v.Manual {
		if _, err := q.q.ExecContext(ctx, `UPDATE vocabulary SET manual = 1 WHERE id = ?`, v.ID); err != nil {
			return false, fmt.Errorf("failed to mark vocabulary %d manual: %w", v.ID, err)
		}
		v.Manual = true
	}
	return created, nil
}

func (q *Queries) insertVocabulary(ctx context.Context, v *domain.Vocabulary, now time.Time) error {
	var sourceID sql.NullInt64
	if v.SourceID != nil {
		sourceID = sql.NullInt64{Int64: *v.SourceID, Valid: true}
	}
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO vocabulary (user_id, word, translation, context, hash, source_id, manual, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, v.UserID, v.Word, v.Translation, v.Context, v.Hash, sourceID, v.Manual, encodeTime(now))
	if err != nil {
		return fmt.Errorf("failed to insert vocabulary %q: %w", v.Word, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert ID for vocabulary %q: %w", v.Word, err)
	}
	if _, err := q.insertCard(ctx, v.UserID, id); err != nil {
		return err
	}
	v.ID = id
	v.CreatedAt = now.UTC()
	return nil
}

func (q *Queries) linkVocabularySource(ctx context.Context, vocabularyID, sourceID int64) error {
	_, err := q.q.ExecContext(ctx, `
		INSERT OR IGNORE INTO vocabulary_sources (vocabulary_id, source_id)
		VALUES (?, ?)
	`, vocabularyID, sourceID)
	if err != nil {
		return fmt.Errorf("failed to link vocabulary %d to source %d: %w", vocabularyID, sourceID, err)
	}
	return nil
}

// ReleaseVocabulary drops the link between an item and a source that no
// longer lists it. The item, its card and review log are deleted only when
// no other source links it and it was never saved by hand. It reports
// whether the item was deleted.
func (q *Queries) ReleaseVocabulary(ctx context.Context, vocabularyID, sourceID int64) (bool, error) {
	_, err := q.q.ExecContext(ctx, `
		DELETE FROM vocabulary_sources WHERE vocabulary_id = ? AND source_id = ?
	`, vocabularyID, sourceID)
	if err != nil {
		return false, fmt.Errorf("failed to unlink vocabulary %d from source %d: %w", vocabularyID, sourceID, err)
	}
	res, err := q.q.ExecContext(ctx, `
		DELETE FROM vocabulary
		WHERE id = ? AND manual = 0
		  AND NOT EXISTS (SELECT 1 FROM vocabulary_sources WHERE vocabulary_id = ?)
	`, vocabularyID, vocabularyID)
	if err != nil {
		return false, fmt.Errorf("failed to release vocabulary %d: %w", vocabularyID, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to release vocabulary %d: %w", vocabularyID, err)
	}
	return n > 0, nil
}

// ListVocabulary returns every card of the user with its item, oldest first.
func (q *Queries) ListVocabulary(ctx context.Context, userID int64) ([]StoredCard, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+cardColumns+` `+cardFrom+`
		WHERE c.user_id = ? ORDER BY v.id`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list vocabulary for user %d: %w", userID, err)
	}
	defer rows.Close()

	var cards []StoredCard
	for rows.Next() {
		sc, err := scanCard(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary row: %w", err)
		}
		cards = append(cards, sc)
	}
	return cards, rows.Err()
}

// GetVocabularyBySourceID retrieves all items a source currently lists.
func (q *Queries) GetVocabularyBySourceID(ctx context.Context, sourceID int64) ([]domain.Vocabulary, error) {
	rows, err := q.q.QueryContext(ctx, `SELECT `+vocabularyColumns+`
		FROM vocabulary v JOIN vocabulary_sources vs ON vs.vocabulary_id = v.id
		WHERE vs.source_id = ?
		ORDER BY v.id`, sourceID)
	if err != nil {
		return nil, fmt.Errorf("failed to get vocabulary for source ID %d: %w", sourceID, err)
	}
	defer rows.Close()

	var items []domain.Vocabulary
	for rows.Next() {
		v, err := scanVocabulary(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan vocabulary row for source ID %d: %w", sourceID, err)
		}
		items = append(items, v)
	}
	return items, rows.Err()
}

// DeleteVocabulary removes a user's item; its card and review log go with it.
func (q *Queries) DeleteVocabulary(ctx context.Context, userID, id int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM vocabulary WHERE id = ? AND user_id = ?`, id, userID)
	if err != nil {
		return fmt.Errorf("failed to delete vocabulary %d: %w", id, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("vocabulary %d: %w", id, ErrNotFound)
	}
	return nil
}
