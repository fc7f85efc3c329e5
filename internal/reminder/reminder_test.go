package reminder

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sort"
	"testing"
	"time"

	"github.com/conorfennell/vocabreview/internal/domain"
	"github.com/conorfennell/vocabreview/internal/storage"
	"github.com/conorfennell/vocabreview/internal/vocab"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type recorder struct {
	got  []Reminder
	fail map[int64]bool
}

func (r *recorder) Notify(_ context.Context, rem Reminder) error {
	if r.fail[rem.UserID] {
		return errors.New("channel down")
	}
	r.got = append(r.got, rem)
	return nil
}

func (r *recorder) users() []int64 {
	var ids []int64
	for _, rem := range r.got {
		ids = append(ids, rem.UserID)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

func seed(t *testing.T) *storage.DB {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "reminder.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	for _, item := range []struct {
		user int64
		word string
	}{{1, "eins"}, {1, "zwei"}, {2, "drei"}} {
		v := domain.Vocabulary{UserID: item.user, Word: item.word}
		v.Hash = vocab.Hash(v.Entry())
		if _, err := db.SaveVocabulary(context.Background(), &v, t0); err != nil {
			t.Fatalf("SaveVocabulary: %v", err)
		}
	}
	return db
}

func TestCheckRespectsMinGap(t *testing.T) {
	db := seed(t)
	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(db, rec, logger, Config{Interval: time.Minute, MinGap: time.Hour})
	now := t0
	s.now = func() time.Time { return now }
	ctx := context.Background()

	sent, err := s.Check(ctx)
	if err != nil {
		t.Fatalf("Check: %v", err)
	}
	if sent != 2 {
		t.Errorf("Expected 2 reminders, but got %d", sent)
	}
	if got := rec.users(); len(got) != 2 || got[0] != 1 || got[1] != 2 {
		t.Errorf("Expected reminders for users 1 and 2, but got %v", got)
	}
	for _, r := range rec.got {
		if r.UserID == 1 && r.DueCount != 2 {
			t.Errorf("Expected 2 due cards for user 1, but got %d", r.DueCount)
		}
	}

	now = t0.Add(30 * time.Minute)
	if sent, _ := s.Check(ctx); sent != 0 {
		t.Errorf("Expected no reminders inside the gap, but got %d", sent)
	}

	now = t0.Add(61 * time.Minute)
	if sent, _ := s.Check(ctx); sent != 2 {
		t.Errorf("Expected 2 reminders after the gap, but got %d", sent)
	}
}

func TestCheckRetriesFailedNotification(t *testing.T) {
	db := seed(t)
	rec := &recorder{fail: map[int64]bool{2: true}}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	s := NewService(db, rec, logger, Config{Interval: time.Minute, MinGap: time.Hour})
	s.now = func() time.Time { return t0 }
	ctx := context.Background()

	if sent, err := s.Check(ctx); err != nil || sent != 1 {
		t.Fatalf("Expected 1 reminder, but got %d (err %v)", sent, err)
	}
	rec.fail = nil
	if sent, _ := s.Check(ctx); sent != 1 {
		t.Errorf("Expected the failed user to be retried, but got %d reminders", sent)
	}
}

func TestRunStopsOnCancel(t *testing.T) {
	db := seed(t)
	rec := &recorder{}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	s := NewService(db, rec, logger, Config{Interval: time.Millisecond, MinGap: time.Hour})
	if err := s.Run(ctx); err != nil {
		t.Errorf("Expected nil on cancel, but got %v", err)
	}

	disabled := NewService(db, rec, logger, Config{})
	if err := disabled.Run(context.Background()); err != nil {
		t.Errorf("Expected disabled service to return nil, but got %v", err)
	}
}
