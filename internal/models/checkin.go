package models

import "time"

type CheckInRoute string

const (
	RouteCrisis        CheckInRoute = "crisis"
	RouteMicroExercise CheckInRoute = "micro_exercise"
)

type CheckIn struct {
	ID        string       `json:"id"`
	UserID    string       `json:"user_id"`
	Mood      int          `json:"mood"`
	Tags      []string     `json:"tags"`
	Note      string       `json:"note,omitempty"`
	Severity  int          `json:"severity"`
	Route     CheckInRoute `json:"route"`
	Message   string       `json:"message"`
	CreatedAt time.Time    `json:"created_at"`
}
