package fsrs

import (
	"encoding"
	"encoding/json"
	"fmt"
	"strconv"
)

// Grade is the reviewer's self-reported recall outcome.
type Grade int

const (
	Again Grade = iota + 1 // forgot
	Hard                   // recalled with serious effort
	Good                   // recalled after hesitation
	Easy                   // recalled effortlessly
)

// Grades lists every valid grade in ascending order.
var Grades = [...]Grade{Again, Hard, Good, Easy}

var (
	gradeNames  = [...]string{Again: "Again", Hard: "Hard", Good: "Good", Easy: "Easy"}
	gradeByName = map[string]Grade{
		"Again": Again,
		"Hard":  Hard,
		"Good":  Good,
		"Easy":  Easy,
	}
)

var (
	_ fmt.Stringer             = Grade(0)
	_ json.Marshaler           = Grade(0)
	_ json.Unmarshaler         = (*Grade)(nil)
	_ encoding.TextMarshaler   = Grade(0)
	_ encoding.TextUnmarshaler = (*Grade)(nil)
)

// IsValid reports whether g is one of Again, Hard, Good or Easy.
func (g Grade) IsValid() bool {
	return g >= Again && g <= Easy
}

// Validate returns ErrInvalidGrade for anything outside the closed set.
func (g Grade) Validate() error {
	if !g.IsValid() {
		return fmt.Errorf("%w: %d", ErrInvalidGrade, int(g))
	}
	return nil
}

func (g Grade) String() string {
	if g.IsValid() {
		return gradeNames[g]
	}
	return fmt.Sprintf("Grade(%d)", int(g))
}

// ParseGrade accepts a grade name ("Good") or its number ("3").
func ParseGrade(s string) (Grade, error) {
	if g, ok := gradeByName[s]; ok {
		return g, nil
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", ErrInvalidGrade, s)
	}
	g := Grade(n)
	if err := g.Validate(); err != nil {
		return 0, err
	}
	return g, nil
}

// MarshalText implements encoding.TextMarshaler.
func (g Grade) MarshalText() ([]byte, error) {
	if err := g.Validate(); err != nil {
		return nil, err
	}
	return []byte(gradeNames[g]), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (g *Grade) UnmarshalText(text []byte) error {
	v, err := ParseGrade(string(text))
	if err != nil {
		return err
	}
	*g = v
	return nil
}

// MarshalJSON writes the grade name.
func (g Grade) MarshalJSON() ([]byte, error) {
	text, err := g.MarshalText()
	if err != nil {
		return nil, err
	}
	return json.Marshal(string(text))
}

// UnmarshalJSON accepts either a name ("Easy") or a number (4).
func (g *Grade) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		return g.UnmarshalText([]byte(s))
	}
	var n int
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("%w: %s", ErrInvalidGrade, data)
	}
	v := Grade(n)
	if err := v.Validate(); err != nil {
		return err
	}
	*g = v
	return nil
}
