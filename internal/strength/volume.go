package strength

// Set is a single logged set, the unit all strength calculations work on.
type Set struct {
	WeightKg float64 `json:"weightKg"`
	Reps     int     `json:"reps"`
	Warmup   bool    `json:"warmup"`
}

// TotalVolume returns the tonnage of the given sets: the sum of
// weight * reps over all non warmup sets. Empty input yields 0.
func TotalVolume(sets []Set) float64 {
	var total float64
	for _, s := range sets {
		if s.Warmup {
			continue
		}
		total += s.WeightKg * float64(s.Reps)
	}
	return total
}
