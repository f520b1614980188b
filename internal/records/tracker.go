// Package records decides whether a freshly logged set is a personal record.
// The evaluation is a pure function over the candidate set and the prior set
// history of the same exercise, persisting the outcome is up to the caller.
package records

import (
	"github.com/2beens/gymtrack/internal/strength"
)

type Kind string

const (
	KindEstimatedOneRepMax Kind = "estimated-one-rep-max"
	KindWeightAtReps       Kind = "weight-at-reps"
)

type Result struct {
	IsRecord       bool    `json:"isRecord"`
	Kind           Kind    `json:"kind,omitempty"`
	CandidateOneRM float64 `json:"candidateOneRM,omitempty"`
	PriorBestOneRM float64 `json:"priorBestOneRM,omitempty"`
	Improvement    float64 `json:"improvement,omitempty"`
}

// Evaluate checks the candidate set against all prior non warmup sets of the
// same exercise, on estimated one rep max. Ties are not records. An empty
// history means any candidate with a positive estimate is a record.
func Evaluate(candidate strength.Set, history []strength.Set) (Result, error) {
	if candidate.Warmup {
		return Result{}, nil
	}

	candidateOneRM, err := strength.EstimateOneRepMax(candidate.WeightKg, candidate.Reps)
	if err != nil {
		return Result{}, err
	}

	var priorBestOneRM float64
	for _, s := range history {
		if s.Warmup {
			continue
		}
		oneRM, err := strength.EstimateOneRepMax(s.WeightKg, s.Reps)
		if err != nil {
			return Result{}, err
		}
		if oneRM > priorBestOneRM {
			priorBestOneRM = oneRM
		}
	}

	res := Result{
		Kind:           KindEstimatedOneRepMax,
		CandidateOneRM: candidateOneRM,
		PriorBestOneRM: priorBestOneRM,
	}
	if candidateOneRM > priorBestOneRM {
		res.IsRecord = true
		res.Improvement = candidateOneRM - priorBestOneRM
	}
	return res, nil
}

// EvaluateAtReps is the narrower variant used in summary displays: best
// weight at this exact rep count. Only history entries with a matching rep
// count take part in the comparison.
func EvaluateAtReps(candidate strength.Set, history []strength.Set) (Result, error) {
	matching := make([]strength.Set, 0, len(history))
	for _, s := range history {
		if s.Reps == candidate.Reps {
			matching = append(matching, s)
		}
	}

	res, err := Evaluate(candidate, matching)
	if err != nil {
		return Result{}, err
	}
	if res.Kind != "" {
		res.Kind = KindWeightAtReps
	}
	return res, nil
}
