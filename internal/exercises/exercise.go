package exercises

import (
	"slices"
	"time"
)

const (
	MuscleGroupChest     = "chest"
	MuscleGroupBack      = "back"
	MuscleGroupLegs      = "legs"
	MuscleGroupShoulders = "shoulders"
	MuscleGroupArms      = "arms"
	MuscleGroupCore      = "core"
)

var MuscleGroups = []string{
	MuscleGroupChest,
	MuscleGroupBack,
	MuscleGroupLegs,
	MuscleGroupShoulders,
	MuscleGroupArms,
	MuscleGroupCore,
}

func ValidMuscleGroup(muscleGroup string) bool {
	return slices.Contains(MuscleGroups, muscleGroup)
}

// Exercise types decide which set fields the app asks for: weighted reps,
// bodyweight reps, a timed hold, or a weighted carry.
const (
	TypeWeightAndReps     = "weight_and_reps"
	TypeRepsOnly          = "reps_only"
	TypeDuration          = "duration"
	TypeWeightAndDuration = "weight_and_duration"
)

var ExerciseTypes = []string{
	TypeWeightAndReps,
	TypeRepsOnly,
	TypeDuration,
	TypeWeightAndDuration,
}

func ValidExerciseType(exerciseType string) bool {
	return slices.Contains(ExerciseTypes, exerciseType)
}

// Exercise is a catalog entry: a named movement assignable to workout days.
// Built-in entries are immutable, custom ones belong to the user. The logged
// performances live in the sessions package.
type Exercise struct {
	ID               int       `json:"id"`
	Name             string    `json:"name"`
	MuscleGroup      string    `json:"muscleGroup"`
	SecondaryMuscles []string  `json:"secondaryMuscles,omitempty"`
	Equipment        string    `json:"equipment,omitempty"`
	ExerciseType     string    `json:"exerciseType"`
	IsCustom         bool      `json:"isCustom"`
	Notes            string    `json:"notes,omitempty"`
	CreatedAt        time.Time `json:"createdAt"`

	Images []Image `json:"images,omitempty"`
}

type Image struct {
	ID         int64     `json:"id"`
	ExerciseID int       `json:"exerciseId"`
	Path       string    `json:"-"`
	CreatedAt  time.Time `json:"createdAt"`
}
