package fsrs

import (
	"fmt"
	"sort"
	"time"
)

// MaxIntervalLimit caps MaximumInterval so due dates stay representable as
// time.Duration offsets.
const MaxIntervalLimit = 100000

// Config configures a Scheduler. Zero values select defaults.
type Config struct {
	Weights          Weights         // zero → DefaultWeights
	DesiredRetention float64         // zero → 0.9
	LearningSteps    []time.Duration // nil → [1m, 10m]; empty → no steps
	RelearningSteps  []time.Duration // nil → [10m]; empty → no steps
	MaximumInterval  int             // days; zero → 36500
	DisableFuzz      bool
}

// Scheduler turns a card and a grade into the card's next state.
// It holds no mutable state and is safe for concurrent use.
type Scheduler struct {
	model           *Model
	retention       float64
	learningSteps   []time.Duration
	relearningSteps []time.Duration
	maxDays         int
	fuzz            bool
}

// NewScheduler fills defaults into cfg and validates it.
func NewScheduler(cfg Config) (*Scheduler, error) {
	w := cfg.Weights
	if w == (Weights{}) {
		w = DefaultWeights
	}
	model, err := NewModel(w)
	if err != nil {
		return nil, err
	}

	retention := cfg.DesiredRetention
	if retention == 0 {
		retention = 0.9
	}
	if retention <= 0 || retention >= 1 {
		return nil, fmt.Errorf("%w: desired retention %g outside (0, 1)", ErrInvalidConfig, retention)
	}

	maxDays := cfg.MaximumInterval
	if maxDays == 0 {
		maxDays = 36500
	}
	if maxDays < 1 || maxDays > MaxIntervalLimit {
		return nil, fmt.Errorf("%w: maximum interval %d outside [1, %d]", ErrInvalidConfig, maxDays, MaxIntervalLimit)
	}

	learning := cfg.LearningSteps
	if learning == nil {
		learning = []time.Duration{time.Minute, 10 * time.Minute}
	}
	relearning := cfg.RelearningSteps
	if relearning == nil {
		relearning = []time.Duration{10 * time.Minute}
	}
	for _, step := range append(append([]time.Duration{}, learning...), relearning...) {
		if step <= 0 {
			return nil, fmt.Errorf("%w: step %s must be positive", ErrInvalidConfig, step)
		}
	}

	return &Scheduler{
		model:           model,
		retention:       retention,
		learningSteps:   append([]time.Duration(nil), learning...),
		relearningSteps: append([]time.Duration(nil), relearning...),
		maxDays:         maxDays,
		fuzz:            !cfg.DisableFuzz,
	}, nil
}

// Model exposes the memory model the scheduler uses.
func (s *Scheduler) Model() *Model {
	return s.model
}

// Outcome is the result of grading a card with one particular grade.
type Outcome struct {
	Card     Card
	Log      ReviewLog
	Interval time.Duration
}

// Preview holds the outcome of every possible grade.
type Preview struct {
	Again Outcome
	Hard  Outcome
	Good  Outcome
	Easy  Outcome
}

// For returns the outcome for g. g must be valid.
func (p Preview) For(g Grade) Outcome {
	switch g {
	case Again:
		return p.Again
	case Hard:
		return p.Hard
	case Good:
		return p.Good
	default:
		return p.Easy
	}
}

func (p *Preview) set(g Grade, o Outcome) {
	switch g {
	case Again:
		p.Again = o
	case Hard:
		p.Hard = o
	case Good:
		p.Good = o
	case Easy:
		p.Easy = o
	}
}

// plan is the state-machine half of an outcome.
type plan struct {
	state    CardState
	step     int
	interval time.Duration
	days     int // > 0 when the card is scheduled in whole days
}

type memory struct {
	stability  float64
	difficulty float64
}

// Preview computes what every grade would do to card at now. It never
// mutates card. A nil src uses SeededSource(card, now).
func (s *Scheduler) Preview(card Card, now time.Time, src RandomSource) (Preview, error) {
	if err := card.Validate(); err != nil {
		return Preview{}, err
	}
	if card.LastReview != nil && now.Before(*card.LastReview) {
		return Preview{}, fmt.Errorf("%w: %w: now %s, last review %s", ErrInvalidCardState, ErrClockRegression,
			now.Format(time.RFC3339Nano), card.LastReview.Format(time.RFC3339Nano))
	}
	if src == nil {
		src = SeededSource(card, now)
	}
	// One draw per review event keeps every branch on the same fuzz value.
	u := src.Float64()

	var elapsed float64
	if !card.IsNew() {
		elapsed = now.Sub(*card.LastReview).Hours() / 24
	}

	var mems [len(Grades)]memory
	var plans [len(Grades)]plan
	for i, g := range Grades {
		mems[i] = s.nextMemory(card, g, elapsed)
		plans[i] = s.nextPlan(card, g, mems[i].stability, u)
	}
	s.orderIntervals(&plans)

	var p Preview
	for i, g := range Grades {
		o, err := s.outcome(card, g, now, elapsed, mems[i], plans[i])
		if err != nil {
			return Preview{}, err
		}
		p.set(g, o)
	}
	return p, nil
}

// Commit applies grade to card. The result equals the matching Preview
// branch for the same inputs and an identically seeded source.
func (s *Scheduler) Commit(card Card, grade Grade, now time.Time, src RandomSource) (Card, ReviewLog, error) {
	if err := grade.Validate(); err != nil {
		return Card{}, ReviewLog{}, err
	}
	p, err := s.Preview(card, now, src)
	if err != nil {
		return Card{}, ReviewLog{}, err
	}
	o := p.For(grade)
	return o.Card, o.Log, nil
}

// Retrievability is the card's current recall probability; 0 for new cards.
func (s *Scheduler) Retrievability(card Card, now time.Time) float64 {
	if card.IsNew() || card.Stability <= 0 {
		return 0
	}
	elapsed := max(now.Sub(*card.LastReview).Hours()/24, 0)
	return s.model.Retrievability(card.Stability, elapsed)
}

// Reschedule rebuilds a card from its review history under the scheduler's
// current parameters. Logs are replayed in ReviewedAt order.
func (s *Scheduler) Reschedule(card Card, logs []ReviewLog) (Card, []ReviewLog, error) {
	ordered := append([]ReviewLog(nil), logs...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].ReviewedAt.Before(ordered[j].ReviewedAt)
	})

	c := NewCard()
	c.ID = card.ID
	replayed := make([]ReviewLog, 0, len(ordered))
	for _, l := range ordered {
		if l.CardID != card.ID {
			return Card{}, nil, fmt.Errorf("%w: card %d, log %d", ErrCardIDMismatch, card.ID, l.CardID)
		}
		next, nl, err := s.Commit(c, l.Grade, l.ReviewedAt, nil)
		if err != nil {
			return Card{}, nil, fmt.Errorf("replay %s: %w", l.ReviewedAt.Format(time.RFC3339), err)
		}
		nl.ID = l.ID
		c = next
		replayed = append(replayed, nl)
	}
	return c, replayed, nil
}

// IsDue reports whether the card may be reviewed at now. New cards are
// always due.
func (c Card) IsDue(now time.Time) bool {
	if c.IsNew() {
		return true
	}
	return c.Due != nil && !now.Before(*c.Due)
}

func (s *Scheduler) nextMemory(card Card, g Grade, elapsed float64) memory {
	m := s.model
	switch {
	case card.IsNew():
		return memory{stability: m.InitialStability(g), difficulty: m.InitialDifficulty(g)}
	case card.State != Review && elapsed < 1:
		return memory{
			stability:  m.ShortTermStability(card.Stability, g),
			difficulty: m.NextDifficulty(card.Difficulty, g),
		}
	}
	r := m.Retrievability(card.Stability, elapsed)
	stability := m.NextStabilityOnLapse(card.Stability, card.Difficulty, r)
	if g != Again {
		stability = m.NextStabilityOnRecall(card.Stability, card.Difficulty, r, g)
	}
	return memory{stability: stability, difficulty: m.NextDifficulty(card.Difficulty, g)}
}

func (s *Scheduler) nextPlan(card Card, g Grade, stability float64, u float64) plan {
	switch card.State {
	case New:
		return s.stepPlan(Learning, 0, s.learningSteps, g, stability, u)
	case Learning:
		return s.stepPlan(Learning, card.LearningStep, s.learningSteps, g, stability, u)
	case Relearning:
		return s.stepPlan(Relearning, card.LearningStep, s.relearningSteps, g, stability, u)
	}
	if g == Again && len(s.relearningSteps) > 0 {
		return plan{state: Relearning, interval: s.relearningSteps[0]}
	}
	return s.graduate(stability, u)
}

// stepPlan walks the short-term step list used by Learning and Relearning.
func (s *Scheduler) stepPlan(state CardState, step int, steps []time.Duration, g Grade, stability, u float64) plan {
	if len(steps) == 0 || (step >= len(steps) && g != Again) {
		return s.graduate(stability, u)
	}
	switch g {
	case Again:
		return plan{state: state, interval: steps[0]}
	case Hard:
		switch {
		case step == 0 && len(steps) == 1:
			return plan{state: state, interval: steps[0] * 3 / 2}
		case step == 0:
			return plan{state: state, interval: (steps[0] + steps[1]) / 2}
		}
		return plan{state: state, step: step, interval: steps[step]}
	case Good:
		if step+1 >= len(steps) {
			return s.graduate(stability, u)
		}
		return plan{state: state, step: step + 1, interval: steps[step+1]}
	}
	return s.graduate(stability, u)
}

func (s *Scheduler) graduate(stability, u float64) plan {
	days := s.model.NextInterval(stability, s.retention, s.maxDays)
	if s.fuzz {
		days = applyFuzz(days, s.maxDays, u)
	}
	return plan{state: Review, days: days}
}

// orderIntervals keeps day intervals ordered Hard <= Good < Easy and
// converts them into durations.
func (s *Scheduler) orderIntervals(plans *[len(Grades)]plan) {
	hard, good, easy := &plans[Hard-1], &plans[Good-1], &plans[Easy-1]
	if hard.days > 0 && good.days > 0 {
		hard.days = min(hard.days, good.days)
		good.days = min(max(good.days, hard.days+1), s.maxDays)
	}
	if good.days > 0 && easy.days > 0 {
		easy.days = min(max(easy.days, good.days+1), s.maxDays)
	}
	for i := range plans {
		if plans[i].days > 0 {
			plans[i].interval = time.Duration(plans[i].days) * 24 * time.Hour
		}
	}
}

func (s *Scheduler) outcome(card Card, g Grade, now time.Time, elapsed float64, mem memory, p plan) (Outcome, error) {
	next := card.clone()
	next.Stability = mem.stability
	next.Difficulty = mem.difficulty
	next.State = p.state
	next.LearningStep = p.step
	next.Reps++
	if card.State == Review && g == Again {
		next.Lapses++
	}
	next.ElapsedDays = elapsed
	next.ScheduledDays = p.interval.Hours() / 24
	if p.days > 0 {
		next.ScheduledDays = float64(p.days)
	}
	reviewed := now
	due := now.Add(p.interval)
	next.LastReview = &reviewed
	next.Due = &due

	if err := next.checkFinite(); err != nil {
		return Outcome{}, err
	}

	return Outcome{
		Card:     next,
		Interval: p.interval,
		Log: ReviewLog{
			CardID:        card.ID,
			Grade:         g,
			State:         card.State,
			Stability:     card.Stability,
			Difficulty:    card.Difficulty,
			ElapsedDays:   elapsed,
			ScheduledDays: next.ScheduledDays,
			ReviewedAt:    now,
		},
	}, nil
}
