// Package splits holds the workout templates: a split groups workout days,
// a day carries the planned exercises the session engine trains against.
package splits

import (
	"slices"
	"time"
)

const (
	SplitTypePushPullLegs = "push_pull_legs"
	SplitTypeUpperLower   = "upper_lower"
	SplitTypeFullBody     = "full_body"
	SplitTypeBodyPart     = "body_part"
	SplitTypeCustom       = "custom"
)

var SplitTypes = []string{
	SplitTypePushPullLegs,
	SplitTypeUpperLower,
	SplitTypeFullBody,
	SplitTypeBodyPart,
	SplitTypeCustom,
}

func ValidSplitType(splitType string) bool {
	return slices.Contains(SplitTypes, splitType)
}

// Split is a workout program template. At most one split is active at a
// time, activation is transactional.
type Split struct {
	ID        int       `json:"id"`
	Name      string    `json:"name"`
	SplitType string    `json:"splitType"`
	IsActive  bool      `json:"isActive"`
	CreatedAt time.Time `json:"createdAt"`

	Days []Day `json:"days,omitempty"`
}

// Day is one training day of a split. RestSeconds is the default rest
// between sets, planned exercises may override it per entry. Weekdays uses
// time.Weekday numbering (0 = Sunday).
type Day struct {
	ID          int    `json:"id"`
	SplitID     int    `json:"splitId"`
	Name        string `json:"name"`
	Weekdays    []int  `json:"weekdays,omitempty"`
	Position    int    `json:"position"`
	RestSeconds int    `json:"restSeconds"`

	Exercises []PlannedExercise `json:"exercises,omitempty"`
}

// PlannedExercise is a single slot of a workout day: which catalog exercise
// to do, how many sets, and the rep or duration target. Optional fields are
// nil when the target kind does not apply.
type PlannedExercise struct {
	ID                    int  `json:"id"`
	DayID                 int  `json:"dayId"`
	ExerciseID            int  `json:"exerciseId"`
	Position              int  `json:"position"`
	TargetSets            int  `json:"targetSets"`
	TargetRepsMin         *int `json:"targetRepsMin,omitempty"`
	TargetRepsMax         *int `json:"targetRepsMax,omitempty"`
	TargetDurationSeconds *int `json:"targetDurationSeconds,omitempty"`
	RestSeconds           *int `json:"restSeconds,omitempty"`

	// joined from the catalog for display
	ExerciseName string `json:"exerciseName,omitempty"`
	MuscleGroup  string `json:"muscleGroup,omitempty"`
	ExerciseType string `json:"exerciseType,omitempty"`
}

// RestFor resolves the rest the session engine should start after a set of
// this planned exercise: the per-exercise override when present, the day
// default otherwise.
func (pe PlannedExercise) RestFor(day Day) int {
	if pe.RestSeconds != nil {
		return *pe.RestSeconds
	}
	return day.RestSeconds
}
