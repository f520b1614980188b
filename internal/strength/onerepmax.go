// Package strength holds the pure strength math: one rep max estimation
// and training volume. No I/O, no side effects.
package strength

import (
	"errors"
	"fmt"
)

var ErrInvalidInput = errors.New("invalid input")

// EstimateOneRepMax estimates the one rep max for the given set
// using the Epley formula: 1RM = w * (1 + r/30).
// A single rep set is its own one rep max.
func EstimateOneRepMax(weightKg float64, reps int) (float64, error) {
	if reps <= 0 {
		return 0, fmt.Errorf("%w: reps must be positive, got %d", ErrInvalidInput, reps)
	}
	if reps == 1 {
		return weightKg, nil
	}
	return weightKg * (1 + float64(reps)/30), nil
}

// WeightForTargetReps is the inverse of EstimateOneRepMax: the weight
// to put on the bar to hit the given rep target at the given one rep max.
func WeightForTargetReps(oneRepMax float64, targetReps int) (float64, error) {
	if targetReps <= 0 {
		return 0, fmt.Errorf("%w: target reps must be positive, got %d", ErrInvalidInput, targetReps)
	}
	if targetReps == 1 {
		return oneRepMax, nil
	}
	return oneRepMax / (1 + float64(targetReps)/30), nil
}

// PercentageOfOneRepMax returns the fraction of the one rep max the given
// weight represents. Returns 0 for a non-positive one rep max instead of
// erroring, callers use it straight in progress displays.
func PercentageOfOneRepMax(weightKg, oneRepMax float64) float64 {
	if oneRepMax <= 0 {
		return 0
	}
	return weightKg / oneRepMax
}
