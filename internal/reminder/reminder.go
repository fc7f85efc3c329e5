// Package reminder periodically tells learners how many cards are waiting.
package reminder

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// Reminder is one "cards are due" notice.
type Reminder struct {
	UserID   int64
	DueCount int
	At       time.Time
}

// Notifier delivers reminders.
type Notifier interface {
	Notify(ctx context.Context, r Reminder) error
}

// DueCounter reports the number of due cards per user.
type DueCounter interface {
	DueCounts(ctx context.Context, now time.Time) (map[int64]int, error)
}

// LogNotifier writes reminders to a logger.
type LogNotifier struct {
	Logger *slog.Logger
}

// Notify logs the reminder at info level. It never fails.
func (n LogNotifier) Notify(_ context.Context, r Reminder) error {
	n.Logger.Info("Cards due for review", "user_id", r.UserID, "due_count", r.DueCount)
	return nil
}

// Config controls the reminder loop.
type Config struct {
	// How often to check for due cards.
	Interval time.Duration
	// Minimum time between two reminders for the same user.
	MinGap time.Duration
}

// Service checks for due cards and notifies users, at most once per MinGap.
type Service struct {
	counter  DueCounter
	notifier Notifier
	logger   *slog.Logger
	cfg      Config
	now      func() time.Time

	mu       sync.Mutex
	lastSent map[int64]time.Time
}

// NewService creates a Service.
func NewService(counter DueCounter, notifier Notifier, logger *slog.Logger, cfg Config) *Service {
	return &Service{
		counter:  counter,
		notifier: notifier,
		logger:   logger,
		cfg:      cfg,
		now:      func() time.Time { return time.Now().UTC() },
		lastSent: make(map[int64]time.Time),
	}
}

// Run checks on every tick until ctx is cancelled. A zero interval returns
// immediately.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Interval <= 0 {
		s.logger.Info("Reminders disabled")
		return nil
	}
	s.logger.Info("Starting reminder service", "interval", s.cfg.Interval, "min_gap", s.cfg.MinGap)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			s.logger.Info("Reminder service stopping")
			return nil
		case <-ticker.C:
			if _, err := s.Check(ctx); err != nil {
				s.logger.Error("Reminder check failed", "error", err)
			}
		}
	}
}

// Check runs one pass and returns how many reminders were sent. A failing
// notification is logged and retried on the next pass.
func (s *Service) Check(ctx context.Context) (int, error) {
	now := s.now()
	counts, err := s.counter.DueCounts(ctx, now)
	if err != nil {
		return 0, fmt.Errorf("failed to count due cards: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	sent := 0
	for userID, n := range counts {
		if n == 0 {
			continue
		}
		if last, ok := s.lastSent[userID]; ok && now.Sub(last) < s.cfg.MinGap {
			continue
		}
		if err := s.notifier.Notify(ctx, Reminder{UserID: userID, DueCount: n, At: now}); err != nil {
			s.logger.Warn("Failed to send reminder", "user_id", userID, "error", err)
			continue
		}
		s.lastSent[userID] = now
		sent++
	}
	if sent > 0 {
		s.logger.Info("Reminders sent", "count", sent)
	}
	return sent, nil
}
