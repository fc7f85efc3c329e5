package fsrs

import "time"

// ReviewLog records one grading event. Memory fields hold the values from
// before the review; ScheduledDays is the interval the review produced.
type ReviewLog struct {
	ID            string    `json:"id"`
	CardID        int64     `json:"card_id"`
	Grade         Grade     `json:"grade"`
	State         CardState `json:"state"`
	Stability     float64   `json:"stability"`
	Difficulty    float64   `json:"difficulty"`
	ElapsedDays   float64   `json:"elapsed_days"`
	ScheduledDays float64   `json:"scheduled_days"`
	ReviewedAt    time.Time `json:"reviewed_at"`
}
