package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/conorfennell/vocabreview/internal/domain"
)

func scanSource(s rowScanner) (domain.Source, error) {
	var (
		src         domain.Source
		lastScanned sql.NullString
	)
	if err := s.Scan(&src.ID, &src.UserID, &src.Path, &src.Type, &lastScanned); err != nil {
		return domain.Source{}, err
	}
	t, err := decodeNullTime(lastScanned)
	if err != nil {
		return domain.Source{}, err
	}
	src.LastScanned = t
	return src, nil
}

// InsertSource inserts a new source path into the database and returns its ID.
func (q *Queries) InsertSource(ctx context.Context, userID int64, path, sourceType string) (int64, error) {
	res, err := q.q.ExecContext(ctx, `
		INSERT INTO sources (user_id, path, type)
		VALUES (?, ?, ?)
	`, userID, path, sourceType)
	if err != nil {
		return 0, fmt.Errorf("failed to insert source %s: %w", path, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to get last insert ID for source %s: %w", path, err)
	}
	return id, nil
}

// FindSourceByPath retrieves a user's source by its path.
func (q *Queries) FindSourceByPath(ctx context.Context, userID int64, path string) (*domain.Source, error) {
	row := q.q.QueryRowContext(ctx, `
		SELECT id, user_id, path, type, last_scanned
		FROM sources WHERE user_id = ? AND path = ?
	`, userID, path)
	src, err := scanSource(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // Source not found
		}
		return nil, fmt.Errorf("failed to find source by path %s: %w", path, err)
	}
	return &src, nil
}

// GetAllSources retrieves every stored source. A userID of zero means all users.
func (q *Queries) GetAllSources(ctx context.Context, userID int64) ([]domain.Source, error) {
	rows, err := q.q.QueryContext(ctx, `
		SELECT id, user_id, path, type, last_scanned
		FROM sources
		WHERE ? = 0 OR user_id = ?
		ORDER BY id
	`, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get all sources: %w", err)
	}
	defer rows.Close()

	var sources []domain.Source
	for rows.Next() {
		src, err := scanSource(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan source row: %w", err)
		}
		sources = append(sources, src)
	}
	return sources, rows.Err()
}

// UpdateSourceLastScanned updates the last_scanned timestamp for a source.
func (q *Queries) UpdateSourceLastScanned(ctx context.Context, sourceID int64, at time.Time) error {
	_, err := q.q.ExecContext(ctx, `
		UPDATE sources
		SET last_scanned = ?
		WHERE id = ?
	`, encodeTime(at), sourceID)
	if err != nil {
		return fmt.Errorf("failed to update last scanned for source ID %d: %w", sourceID, err)
	}
	return nil
}

// DeleteSource removes a user's source. Items imported from it stay.
func (q *Queries) DeleteSource(ctx context.Context, userID, sourceID int64) error {
	res, err := q.q.ExecContext(ctx, `DELETE FROM sources WHERE id = ? AND user_id = ?`, sourceID, userID)
	if err != nil {
		return fmt.Errorf("failed to delete source %d: %w", sourceID, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return fmt.Errorf("source %d: %w", sourceID, ErrNotFound)
	}
	return nil
}
