// Package fsrs implements the spaced-repetition memory model and the review
// scheduler for vocabulary cards.
//
// The memory model follows the FSRS-6 family of formulas: every card carries a
// stability (days until recall probability decays to 90%) and a difficulty in
// [1, 10]. The Scheduler turns a Card and a Grade into the next Card state.
package fsrs

import (
	"fmt"
	"math"
)

const (
	// MinDifficulty and MaxDifficulty bound every difficulty the model produces.
	MinDifficulty = 1.0
	MaxDifficulty = 10.0

	// MinStability is the floor applied to seeded and short-term stabilities.
	MinStability = 0.001
)

// Weights holds the 21 trainable FSRS parameters.
type Weights [21]float64

// DefaultWeights are the published FSRS-6 defaults.
var DefaultWeights = Weights{
	0.212, 1.2931, 2.3065, 8.2956, // initial stability per grade
	6.4133, 0.8334, 3.0194, 0.001, // difficulty
	1.8722, 0.1666, 0.796, 1.4835, // recall stability
	0.0614, 0.2629, 1.6483, 0.6014, // lapse stability, hard penalty
	1.8729, 0.5425, 0.0912, 0.0658, // easy bonus, short-term
	0.1542, // decay
}

var (
	lowerBounds = Weights{
		0.001, 0.001, 0.001, 0.001,
		1.0, 0.001, 0.001, 0.001,
		0.0, 0.0, 0.001, 0.001,
		0.001, 0.001, 0.0, 0.0,
		1.0, 0.0, 0.0, 0.0,
		0.1,
	}
	upperBounds = Weights{
		100.0, 100.0, 100.0, 100.0,
		10.0, 4.0, 4.0, 0.75,
		4.5, 0.8, 3.5, 5.0,
		0.25, 0.9, 4.0, 1.0,
		6.0, 2.0, 2.0, 0.8,
		0.8,
	}
)

// Validate checks every weight against its bounds. A lapse must always shrink
// stability, so w[17] and w[18] have to be strictly positive.
func (w Weights) Validate() error {
	for i := range w {
		if math.IsNaN(w[i]) || w[i] < lowerBounds[i] || w[i] > upperBounds[i] {
			return fmt.Errorf("%w: w[%d] = %g, bounds [%g, %g]",
				ErrInvalidWeights, i, w[i], lowerBounds[i], upperBounds[i])
		}
	}
	if w[17] <= 0 || w[18] <= 0 {
		return fmt.Errorf("%w: w[17] and w[18] must be positive", ErrInvalidWeights)
	}
	return nil
}

// Model evaluates the memory formulas for one set of weights.
// It is immutable and safe for concurrent use.
type Model struct {
	w      Weights
	decay  float64
	factor float64
}

// NewModel validates the weights and precomputes the decay constants.
func NewModel(w Weights) (*Model, error) {
	if err := w.Validate(); err != nil {
		return nil, err
	}
	decay := -w[20]
	return &Model{
		w:      w,
		decay:  decay,
		factor: math.Pow(0.9, 1/decay) - 1,
	}, nil
}

// Weights returns a copy of the model's parameters.
func (m *Model) Weights() Weights {
	return m.w
}

// Retrievability is the probability of recall after elapsedDays for an item
// with the given stability: (1 + factor*t/S)^decay.
func (m *Model) Retrievability(stability, elapsedDays float64) float64 {
	if elapsedDays <= 0 {
		return 1
	}
	return math.Pow(1+m.factor*elapsedDays/stability, m.decay)
}

// InitialStability seeds stability from the first grade.
func (m *Model) InitialStability(g Grade) float64 {
	return math.Max(m.w[g-1], MinStability)
}

// InitialDifficulty seeds difficulty from the first grade.
func (m *Model) InitialDifficulty(g Grade) float64 {
	return clampDifficulty(m.rawInitialDifficulty(g))
}

func (m *Model) rawInitialDifficulty(g Grade) float64 {
	return m.w[4] - math.Exp(m.w[5]*float64(g-1)) + 1
}

// NextDifficulty moves difficulty up on Again/Hard and down on Easy, damped
// towards the ceiling and reverted slightly towards the Easy seed.
func (m *Model) NextDifficulty(difficulty float64, g Grade) float64 {
	delta := -m.w[6] * (float64(g) - 3)
	damped := difficulty + (MaxDifficulty-difficulty)*delta/9
	reverted := m.w[7]*m.rawInitialDifficulty(Easy) + (1-m.w[7])*damped
	return clampDifficulty(reverted)
}

// NextStabilityOnRecall grows stability after a successful recall. The gain
// shrinks with difficulty and grows as retrievability falls.
func (m *Model) NextStabilityOnRecall(stability, difficulty, retrievability float64, g Grade) float64 {
	hardPenalty := 1.0
	if g == Hard {
		hardPenalty = m.w[15]
	}
	easyBonus := 1.0
	if g == Easy {
		easyBonus = m.w[16]
	}
	gain := math.Exp(m.w[8]) *
		(11 - difficulty) *
		math.Pow(stability, -m.w[9]) *
		(math.Exp((1-retrievability)*m.w[10]) - 1) *
		hardPenalty * easyBonus
	return stability * (1 + math.Max(gain, 0))
}

// NextStabilityOnLapse shrinks stability after the item was forgotten.
// The result is always positive and strictly below stability.
func (m *Model) NextStabilityOnLapse(stability, difficulty, retrievability float64) float64 {
	long := m.w[11] *
		math.Pow(difficulty, -m.w[12]) *
		(math.Pow(stability+1, m.w[13]) - 1) *
		math.Exp((1-retrievability)*m.w[14])
	short := stability / math.Exp(m.w[17]*m.w[18])
	return math.Max(math.Min(long, short), math.Min(MinStability, short))
}

// ShortTermStability handles reviews less than a day apart.
func (m *Model) ShortTermStability(stability float64, g Grade) float64 {
	inc := math.Exp(m.w[17]*(float64(g)-3+m.w[18])) * math.Pow(stability, -m.w[19])
	if g == Good || g == Easy {
		inc = math.Max(inc, 1)
	}
	return math.Max(stability*inc, MinStability)
}

// NextInterval converts stability into whole days at the desired retention,
// clamped to [1, maxDays].
func (m *Model) NextInterval(stability, desiredRetention float64, maxDays int) int {
	ivl := math.Round(stability / m.factor * (math.Pow(desiredRetention, 1/m.decay) - 1))
	switch {
	case ivl >= float64(maxDays):
		return maxDays
	case ivl < 1 || math.IsNaN(ivl):
		return 1
	}
	return int(ivl)
}

func clampDifficulty(d float64) float64 {
	return math.Min(math.Max(d, MinDifficulty), MaxDifficulty)
}
