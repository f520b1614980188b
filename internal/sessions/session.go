// Package sessions is the live workout engine: it owns the in-progress
// workout session, logs sets against the day plan, checks personal records
// and drives the rest timer. Finished sessions stay around as history.
package sessions

import (
	"errors"
	"fmt"
	"time"

	"github.com/2beens/gymtrack/internal/records"
	"github.com/2beens/gymtrack/internal/splits"
)

var (
	ErrSessionNotFound = errors.New("session not found")
	ErrSetNotFound     = errors.New("set not found")

	// ErrSessionEnded comes from the repo when finishing a session that
	// already has an end time.
	ErrSessionEnded = errors.New("session already ended")

	ErrNoActiveSession   = errors.New("no active session")
	ErrSessionInProgress = errors.New("another session is in progress")
	ErrSessionCompleted  = errors.New("session already completed")

	ErrInvalidSet         = errors.New("invalid set")
	ErrNoPlannedExercises = errors.New("workout day has no planned exercises")
	ErrNoSetsYet          = errors.New("no sets logged yet")
)

type WorkoutSession struct {
	ID        int               `json:"id"`
	DayID     int               `json:"dayId"`
	StartedAt time.Time         `json:"startedAt"`
	EndedAt   *time.Time        `json:"endedAt,omitempty"`
	Notes     string            `json:"notes,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`

	// resolved from workout_day on reads, empty when the day is gone
	DayName string `json:"dayName,omitempty"`
}

// InProgress reports whether the session has no end time yet.
func (s WorkoutSession) InProgress() bool {
	return s.EndedAt == nil
}

// ExerciseLog groups the sets of one exercise within a session. The DB row
// is created lazily with the first set, ID stays 0 until then.
type ExerciseLog struct {
	ID         int      `json:"id"`
	SessionID  int      `json:"sessionId"`
	ExerciseID int      `json:"exerciseId"`
	Position   int      `json:"position"`
	Notes      string   `json:"notes,omitempty"`
	Sets       []SetLog `json:"sets"`

	// joined from the catalog for display
	ExerciseName string `json:"exerciseName,omitempty"`
	MuscleGroup  string `json:"muscleGroup,omitempty"`
}

// SetLog is one performed set. Set numbers are 1-based and contiguous
// within their exercise log, deletes renumber the survivors.
type SetLog struct {
	ID              int       `json:"id"`
	ExerciseLogID   int       `json:"exerciseLogId"`
	SetNumber       int       `json:"setNumber"`
	WeightKg        float64   `json:"weightKg"`
	Reps            int       `json:"reps"`
	DurationSeconds *int      `json:"durationSeconds,omitempty"`
	RPE             *float64  `json:"rpe,omitempty"`
	IsWarmup        bool      `json:"isWarmup"`
	IsDropset       bool      `json:"isDropset"`
	CreatedAt       time.Time `json:"createdAt"`
}

// SessionDetail is a session with its exercise logs and sets, the shape
// served for history views.
type SessionDetail struct {
	WorkoutSession
	ExerciseLogs []ExerciseLog `json:"exerciseLogs"`
}

// LogSetParams carries the set input for logging and editing.
type LogSetParams struct {
	WeightKg        float64  `json:"weightKg"`
	Reps            int      `json:"reps"`
	DurationSeconds *int     `json:"durationSeconds,omitempty"`
	RPE             *float64 `json:"rpe,omitempty"`
	IsWarmup        bool     `json:"isWarmup"`
	IsDropset       bool     `json:"isDropset"`
}

func (p LogSetParams) Validate() error {
	if p.WeightKg < 0 {
		return fmt.Errorf("%w: weight must not be negative", ErrInvalidSet)
	}
	if p.Reps < 0 {
		return fmt.Errorf("%w: reps must not be negative", ErrInvalidSet)
	}
	if p.Reps == 0 && (p.DurationSeconds == nil || *p.DurationSeconds <= 0) {
		return fmt.Errorf("%w: a set needs reps or a duration", ErrInvalidSet)
	}
	if p.DurationSeconds != nil && *p.DurationSeconds < 0 {
		return fmt.Errorf("%w: duration must not be negative", ErrInvalidSet)
	}
	if p.RPE != nil && (*p.RPE < 1 || *p.RPE > 10) {
		return fmt.Errorf("%w: rpe must be between 1 and 10", ErrInvalidSet)
	}
	if p.IsWarmup && p.IsDropset {
		return fmt.Errorf("%w: a set cannot be both warm-up and drop set", ErrInvalidSet)
	}
	return nil
}

// PendingSet is the next-set input buffer shown by the app; duplicating the
// last set fills it, logging or switching exercises clears it.
type PendingSet struct {
	WeightKg        float64  `json:"weightKg"`
	Reps            int      `json:"reps"`
	DurationSeconds *int     `json:"durationSeconds,omitempty"`
	RPE             *float64 `json:"rpe,omitempty"`
}

// RecordHit is a personal record scored during the session, kept for the
// completion summary.
type RecordHit struct {
	ExerciseID   int            `json:"exerciseId"`
	ExerciseName string         `json:"exerciseName,omitempty"`
	SetNumber    int            `json:"setNumber"`
	WeightKg     float64        `json:"weightKg"`
	Reps         int            `json:"reps"`
	Result       records.Result `json:"result"`
}

// Summary is what the app shows after completing a workout.
type Summary struct {
	SessionID       int           `json:"sessionId"`
	DayID           int           `json:"dayId"`
	DayName         string        `json:"dayName,omitempty"`
	StartedAt       time.Time     `json:"startedAt"`
	EndedAt         time.Time     `json:"endedAt"`
	Duration        time.Duration `json:"duration"`
	TotalVolume     float64       `json:"totalVolume"`
	WorkingSets     int           `json:"workingSets"`
	ExercisesLogged int           `json:"exercisesLogged"`
	Records         []RecordHit   `json:"records"`
	Notes           string        `json:"notes,omitempty"`
}

// ActiveSnapshot is the observable state of the running workout, served to
// the app on every engine mutation.
type ActiveSnapshot struct {
	Session         WorkoutSession           `json:"session"`
	Plan            []splits.PlannedExercise `json:"plan"`
	Logs            []ExerciseLog            `json:"logs"`
	CurrentExercise int                      `json:"currentExercise"`
	Pending         PendingSet               `json:"pending"`
	Records         []RecordHit              `json:"records"`
	Resumed         bool                     `json:"resumed"`
}
