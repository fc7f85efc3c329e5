// Package review drives review sessions: it lists due cards, previews the
// outcome of each grade and commits the chosen grade together with its log.
package review

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/conorfennell/vocabreview/internal/domain"
	"github.com/conorfennell/vocabreview/internal/fsrs"
	"github.com/conorfennell/vocabreview/internal/storage"
	"github.com/conorfennell/vocabreview/internal/vocab"
)

// ErrInvalidRequest wraps validation failures of caller input.
var ErrInvalidRequest = errors.New("review: invalid request")

// Submission is one answered review prompt.
type Submission struct {
	CardID int64      `json:"card_id" validate:"required,gt=0"`
	Grade  fsrs.Grade `json:"grade" validate:"required,min=1,max=4"`
}

// NewWord is a vocabulary item the learner saves by hand.
type NewWord struct {
	Word        string `json:"word" validate:"required,max=200"`
	Translation string `json:"translation" validate:"max=500"`
	Context     string `json:"context" validate:"max=4000"`
}

// Result is the persisted outcome of a submission.
type Result struct {
	Card storage.StoredCard `json:"card"`
	Log  fsrs.ReviewLog     `json:"log"`
}

// Service coordinates the scheduler and the card store.
type Service struct {
	db         *storage.DB
	scheduler  *fsrs.Scheduler
	logger     *slog.Logger
	validate   *validator.Validate
	now        func() time.Time
	maxRetries int
}

// Option customizes a Service.
type Option func(*Service)

// WithClock replaces the wall clock, mainly for tests.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithMaxRetries sets how often a conflicting submission is retried.
func WithMaxRetries(n int) Option {
	return func(s *Service) { s.maxRetries = n }
}

// NewService creates a Service.
func NewService(db *storage.DB, scheduler *fsrs.Scheduler, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		db:         db,
		scheduler:  scheduler,
		logger:     logger,
		validate:   validator.New(validator.WithRequiredStructEnabled()),
		now:        func() time.Time { return time.Now().UTC() },
		maxRetries: 3,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Now returns the service clock.
func (s *Service) Now() time.Time {
	return s.now()
}

// Due lists the user's due cards, New cards first.
func (s *Service) Due(ctx context.Context, userID int64, limit int) ([]storage.StoredCard, error) {
	return s.db.DueCards(ctx, userID, s.now(), limit)
}

// Preview shows what each grade would do to the card right now.
func (s *Service) Preview(ctx context.Context, userID, cardID int64) (storage.StoredCard, fsrs.Preview, error) {
	sc, err := s.db.GetCard(ctx, userID, cardID)
	if err != nil {
		return storage.StoredCard{}, fsrs.Preview{}, err
	}
	p, err := s.scheduler.Preview(sc.Card, s.now(), nil)
	if err != nil {
		return storage.StoredCard{}, fsrs.Preview{}, err
	}
	return sc, p, nil
}

// Submit commits a grade for one card. The read, the card update and the log
// append share one transaction; a concurrent writer makes the version check
// fail and the whole step is retried.
func (s *Service) Submit(ctx context.Context, userID int64, sub Submission) (Result, error) {
	if err := sub.Grade.Validate(); err != nil {
		return Result{}, err
	}
	if err := s.validate.Struct(sub); err != nil {
		return Result{}, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}

	var res Result
	var err error
	for attempt := 0; attempt <= s.maxRetries; attempt++ {
		res, err = s.submitOnce(ctx, userID, sub)
		if err == nil || !(errors.Is(err, storage.ErrConflict) || storage.IsBusy(err)) {
			break
		}
		s.logger.Warn("Review conflicted, retrying",
			"user_id", userID, "card_id", sub.CardID, "attempt", attempt+1, "error", err)
	}
	if err != nil {
		return Result{}, err
	}

	s.logger.Info("Card reviewed",
		"user_id", userID,
		"card_id", res.Card.ID,
		"grade", sub.Grade,
		"state", res.Card.State,
		"stability", res.Card.Stability,
		"difficulty", res.Card.Difficulty,
		"scheduled_days", res.Card.ScheduledDays,
	)
	return res, nil
}

func (s *Service) submitOnce(ctx context.Context, userID int64, sub Submission) (Result, error) {
	var res Result
	err := s.db.WithTx(ctx, func(tx *storage.Queries) error {
		sc, err := tx.GetCard(ctx, userID, sub.CardID)
		if err != nil {
			return err
		}
		next, log, err := s.scheduler.Commit(sc.Card, sub.Grade, s.now(), nil)
		if err != nil {
			return err
		}
		sc.Card = next
		if err := tx.UpdateCard(ctx, &sc); err != nil {
			return err
		}
		if err := tx.AppendReviewLog(ctx, &log); err != nil {
			return err
		}
		res = Result{Card: sc, Log: log}
		return nil
	})
	return res, err
}

// History returns the card's review log in review order.
func (s *Service) History(ctx context.Context, userID, cardID int64) ([]fsrs.ReviewLog, error) {
	if _, err := s.db.GetCard(ctx, userID, cardID); err != nil {
		return nil, err
	}
	return s.db.ReviewLogs(ctx, cardID)
}

// Reschedule recomputes a card from its review log under the current
// scheduler parameters. The log itself is left untouched.
func (s *Service) Reschedule(ctx context.Context, userID, cardID int64) (storage.StoredCard, error) {
	var out storage.StoredCard
	err := s.db.WithTx(ctx, func(tx *storage.Queries) error {
		sc, err := tx.GetCard(ctx, userID, cardID)
		if err != nil {
			return err
		}
		logs, err := tx.ReviewLogs(ctx, cardID)
		if err != nil {
			return err
		}
		card, _, err := s.scheduler.Reschedule(sc.Card, logs)
		if err != nil {
			return err
		}
		sc.Card = card
		if err := tx.UpdateCard(ctx, &sc); err != nil {
			return err
		}
		out = sc
		return nil
	})
	return out, err
}

// SaveWord stores a hand-entered item and its New card. Saving the same
// content twice returns the existing item. The item is marked manual so
// that sync never deletes it.
func (s *Service) SaveWord(ctx context.Context, userID int64, w NewWord) (domain.Vocabulary, bool, error) {
	w.Word = strings.TrimSpace(w.Word)
	if err := s.validate.Struct(w); err != nil {
		return domain.Vocabulary{}, false, fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	v := domain.Vocabulary{
		UserID:      userID,
		Word:        w.Word,
		Translation: strings.TrimSpace(w.Translation),
		Context:     strings.TrimSpace(w.Context),
		Manual:      true,
	}
	v.Hash = vocab.Hash(v.Entry())
	created, err := s.db.SaveVocabulary(ctx, &v, s.now())
	if err != nil {
		return domain.Vocabulary{}, false, err
	}
	if created {
		s.logger.Info("Vocabulary saved", "user_id", userID, "vocabulary_id", v.ID, "word", v.Word)
	}
	return v, created, nil
}

// Vocabulary lists every item of the user with its scheduling state.
func (s *Service) Vocabulary(ctx context.Context, userID int64) ([]storage.StoredCard, error) {
	return s.db.ListVocabulary(ctx, userID)
}

// DeleteWord removes an item together with its card and review log.
func (s *Service) DeleteWord(ctx context.Context, userID, vocabularyID int64) error {
	return s.db.DeleteVocabulary(ctx, userID, vocabularyID)
}

// Retrievability is the card's recall probability right now.
func (s *Service) Retrievability(card fsrs.Card) float64 {
	return s.scheduler.Retrievability(card, s.now())
}
