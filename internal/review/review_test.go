package review

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/conorfennell/vocabreview/internal/fsrs"
	"github.com/conorfennell/vocabreview/internal/storage"
)

var t0 = time.Date(2025, 6, 15, 10, 0, 0, 0, time.UTC)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Set(t time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = t
}

func newTestService(t *testing.T, cfg fsrs.Config) (*Service, *testClock) {
	t.Helper()
	db, err := storage.Open(filepath.Join(t.TempDir(), "review.db"))
	if err != nil {
		t.Fatalf("storage.Open: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	scheduler, err := fsrs.NewScheduler(cfg)
	if err != nil {
		t.Fatalf("fsrs.NewScheduler: %v", err)
	}
	clock := &testClock{now: t0}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(db, scheduler, logger, WithClock(clock.Now), WithMaxRetries(5)), clock
}

func mustSaveWord(t *testing.T, s *Service, userID int64, word string) storage.StoredCard {
	t.Helper()
	ctx := context.Background()
	v, _, err := s.SaveWord(ctx, userID, NewWord{Word: word, Translation: word + " (tr)"})
	if err != nil {
		t.Fatalf("SaveWord(%s): %v", word, err)
	}
	cards, err := s.Vocabulary(ctx, userID)
	if err != nil {
		t.Fatalf("Vocabulary: %v", err)
	}
	for _, c := range cards {
		if c.VocabularyID == v.ID {
			return c
		}
	}
	t.Fatalf("No card for vocabulary %d", v.ID)
	return storage.StoredCard{}
}

func TestSubmitFirstReview(t *testing.T) {
	s, clock := newTestService(t, fsrs.Config{DisableFuzz: true})
	ctx := context.Background()
	card := mustSaveWord(t, s, 1, "hund")

	due, err := s.Due(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 || due[0].ID != card.ID {
		t.Fatalf("Expected the new card to be due, but got %+v", due)
	}

	res, err := s.Submit(ctx, 1, Submission{CardID: card.ID, Grade: fsrs.Good})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if res.Card.State != fsrs.Learning {
		t.Errorf("Expected state Learning, but got %s", res.Card.State)
	}
	if res.Card.Version != card.Version+1 {
		t.Errorf("Expected version %d, but got %d", card.Version+1, res.Card.Version)
	}
	if want := t0.Add(10 * time.Minute); res.Card.Due == nil || !res.Card.Due.Equal(want) {
		t.Errorf("Expected due %v, but got %v", want, res.Card.Due)
	}
	if res.Log.State != fsrs.New || res.Log.Grade != fsrs.Good || res.Log.ID == "" {
		t.Errorf("Unexpected review log %+v", res.Log)
	}

	due, err = s.Due(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 0 {
		t.Errorf("Expected no due cards right after review, but got %d", len(due))
	}

	clock.Set(t0.Add(11 * time.Minute))
	due, err = s.Due(ctx, 1, 0)
	if err != nil {
		t.Fatalf("Due: %v", err)
	}
	if len(due) != 1 {
		t.Errorf("Expected the card to be due again, but got %d cards", len(due))
	}

	logs, err := s.History(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(logs) != 1 || logs[0].ID != res.Log.ID {
		t.Errorf("Expected one log %s, but got %+v", res.Log.ID, logs)
	}
}

func TestSubmitMatchesPreview(t *testing.T) {
	s, clock := newTestService(t, fsrs.Config{})
	ctx := context.Background()
	card := mustSaveWord(t, s, 1, "katze")

	// Walk the card into Review so fuzz applies.
	for i, g := range []fsrs.Grade{fsrs.Good, fsrs.Good, fsrs.Good} {
		clock.Set(t0.Add(time.Duration(i) * 24 * time.Hour))
		if _, err := s.Submit(ctx, 1, Submission{CardID: card.ID, Grade: g}); err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}
	clock.Set(t0.Add(20 * 24 * time.Hour))

	_, p, err := s.Preview(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	res, err := s.Submit(ctx, 1, Submission{CardID: card.ID, Grade: fsrs.Easy})
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	want := p.For(fsrs.Easy).Card
	if !res.Card.Due.Equal(*want.Due) || res.Card.Stability != want.Stability {
		t.Errorf("Expected committed card to match preview %+v, but got %+v", want, res.Card.Card)
	}
}

func TestSubmitErrors(t *testing.T) {
	s, clock := newTestService(t, fsrs.Config{})
	ctx := context.Background()
	card := mustSaveWord(t, s, 1, "haus")

	if _, err := s.Submit(ctx, 1, Submission{CardID: card.ID, Grade: fsrs.Good}); err != nil {
		t.Fatalf("Submit: %v", err)
	}

	testCases := []struct {
		name    string
		userID  int64
		sub     Submission
		clock   time.Time
		wantErr error
	}{
		{"grade zero", 1, Submission{CardID: card.ID, Grade: 0}, t0, fsrs.ErrInvalidGrade},
		{"grade five", 1, Submission{CardID: card.ID, Grade: 5}, t0, fsrs.ErrInvalidGrade},
		{"missing card id", 1, Submission{Grade: fsrs.Good}, t0, ErrInvalidRequest},
		{"unknown card", 1, Submission{CardID: 999, Grade: fsrs.Good}, t0, storage.ErrNotFound},
		{"other user", 2, Submission{CardID: card.ID, Grade: fsrs.Good}, t0, storage.ErrNotFound},
		{"clock regression", 1, Submission{CardID: card.ID, Grade: fsrs.Good}, t0.Add(-time.Hour), fsrs.ErrClockRegression},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			clock.Set(tc.clock)
			_, err := s.Submit(ctx, tc.userID, tc.sub)
			if !errors.Is(err, tc.wantErr) {
				t.Errorf("Expected error %v, but got %v", tc.wantErr, err)
			}
		})
	}

	clock.Set(t0)
	logs, err := s.History(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(logs) != 1 {
		t.Errorf("Expected failed submissions to leave one log, but got %d", len(logs))
	}
	got, _, err := s.Preview(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got.Reps != 1 || got.Version != card.Version+1 {
		t.Errorf("Expected card untouched after failures, but got reps %d version %d", got.Reps, got.Version)
	}
}

func TestConcurrentSubmissions(t *testing.T) {
	s, _ := newTestService(t, fsrs.Config{})
	ctx := context.Background()
	card := mustSaveWord(t, s, 1, "baum")

	const n = 2
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = s.Submit(ctx, 1, Submission{CardID: card.ID, Grade: fsrs.Good})
		}(i)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
	}

	logs, err := s.History(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("History: %v", err)
	}
	if len(logs) != n {
		t.Errorf("Expected %d logs, but got %d", n, len(logs))
	}
	got, _, err := s.Preview(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("Preview: %v", err)
	}
	if got.Reps != n {
		t.Errorf("Expected reps %d, but got %d", n, got.Reps)
	}
}

func TestSaveWord(t *testing.T) {
	s, _ := newTestService(t, fsrs.Config{})
	ctx := context.Background()

	if _, _, err := s.SaveWord(ctx, 1, NewWord{Word: "   "}); !errors.Is(err, ErrInvalidRequest) {
		t.Errorf("Expected ErrInvalidRequest for blank word, but got %v", err)
	}

	first, created, err := s.SaveWord(ctx, 1, NewWord{Word: " Apfel ", Translation: "apple"})
	if err != nil || !created {
		t.Fatalf("Expected first save to create, but got created=%v err=%v", created, err)
	}
	if first.Word != "Apfel" {
		t.Errorf("Expected trimmed word, but got %q", first.Word)
	}
	again, created, err := s.SaveWord(ctx, 1, NewWord{Word: "apfel", Translation: "APPLE"})
	if err != nil {
		t.Fatalf("SaveWord: %v", err)
	}
	if created || again.ID != first.ID {
		t.Errorf("Expected duplicate to resolve to %d, but got created=%v id=%d", first.ID, created, again.ID)
	}

	if err := s.DeleteWord(ctx, 1, first.ID); err != nil {
		t.Fatalf("DeleteWord: %v", err)
	}
	if err := s.DeleteWord(ctx, 1, first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Expected ErrNotFound on second delete, but got %v", err)
	}
}

func TestReschedule(t *testing.T) {
	s, clock := newTestService(t, fsrs.Config{})
	ctx := context.Background()
	card := mustSaveWord(t, s, 1, "wasser")

	var last Result
	for i, g := range []fsrs.Grade{fsrs.Good, fsrs.Again, fsrs.Good, fsrs.Easy} {
		clock.Set(t0.Add(time.Duration(i) * 36 * time.Hour))
		res, err := s.Submit(ctx, 1, Submission{CardID: card.ID, Grade: g})
		if err != nil {
			t.Fatalf("Submit %d: %v", i, err)
		}
		last = res
	}

	got, err := s.Reschedule(ctx, 1, card.ID)
	if err != nil {
		t.Fatalf("Reschedule: %v", err)
	}
	if got.State != last.Card.State || got.Reps != last.Card.Reps {
		t.Errorf("Expected state %s reps %d, but got %s reps %d",
			last.Card.State, last.Card.Reps, got.State, got.Reps)
	}
	if got.Stability != last.Card.Stability || !got.Due.Equal(*last.Card.Due) {
		t.Errorf("Expected replay to reproduce stability %v due %v, but got %v %v",
			last.Card.Stability, last.Card.Due, got.Stability, got.Due)
	}
	if got.Version != last.Card.Version+1 {
		t.Errorf("Expected version %d, but got %d", last.Card.Version+1, got.Version)
	}
}
