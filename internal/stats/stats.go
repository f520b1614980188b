// Package stats derives the dashboard numbers of the app: current training
// streak, volume over a period, per-exercise progression and standing
// records. All of it is read-only aggregation over the session history.
package stats

import (
	"context"
	"fmt"
	"time"

	"github.com/2beens/gymtrack/internal/sessions"
	"github.com/2beens/gymtrack/internal/streak"
	"github.com/2beens/gymtrack/internal/strength"
	"github.com/2beens/gymtrack/internal/telemetry/tracing"
)

//go:generate mockgen -source=$GOFILE -destination=stats_mocks_test.go -package=stats_test

type sessionsRepo interface {
	CompletedSessionDays(ctx context.Context) (_ []time.Time, err error)
	TotalVolumeBetween(ctx context.Context, from, to time.Time) (_ float64, err error)
	SetsForExercise(ctx context.Context, exerciseID, beforeSessionID int) (_ []sessions.SetLog, err error)
}

type Streak struct {
	Days     int    `json:"days"`
	Timezone string `json:"timezone"`
}

type VolumePeriod struct {
	From        time.Time `json:"from"`
	To          time.Time `json:"to"`
	TotalVolume float64   `json:"totalVolume"`
}

// DayProgress is one day of an exercise's history: how many sets were done,
// the working volume and the best estimated one rep max of the day.
type DayProgress struct {
	Sets      int     `json:"sets"`
	Volume    float64 `json:"volume"`
	BestOneRM float64 `json:"bestOneRM"`
}

type ExerciseProgress struct {
	ExerciseID int                       `json:"exerciseId"`
	Days       map[time.Time]DayProgress `json:"days"`
}

// OneRMRecord is the set behind the best estimated one rep max. Ties keep
// the earlier set, the record belongs to whoever set it first.
type OneRMRecord struct {
	WeightKg   float64   `json:"weightKg"`
	Reps       int       `json:"reps"`
	OneRM      float64   `json:"oneRM"`
	AchievedAt time.Time `json:"achievedAt"`
}

type ExerciseRecords struct {
	ExerciseID   int             `json:"exerciseId"`
	Best         *OneRMRecord    `json:"best,omitempty"`
	WeightAtReps map[int]float64 `json:"weightAtReps"`
}

type Analyzer struct {
	repo sessionsRepo
}

func NewAnalyzer(repo sessionsRepo) *Analyzer {
	return &Analyzer{
		repo: repo,
	}
}

// CurrentStreak counts consecutive training days backward from today in the
// given location. Day boundaries move with the client's timezone, the app
// sends its own.
func (a *Analyzer) CurrentStreak(ctx context.Context, loc *time.Location) (*Streak, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.currentStreak")
	defer span.End()

	days, err := a.repo.CompletedSessionDays(ctx)
	if err != nil {
		return nil, fmt.Errorf("load completed session days: %w", err)
	}

	return &Streak{
		Days:     streak.Current(days, time.Now().In(loc)),
		Timezone: loc.String(),
	}, nil
}

func (a *Analyzer) VolumeBetween(ctx context.Context, from, to time.Time) (*VolumePeriod, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.volumeBetween")
	defer span.End()

	total, err := a.repo.TotalVolumeBetween(ctx, from, to)
	if err != nil {
		return nil, fmt.Errorf("load volume: %w", err)
	}

	return &VolumePeriod{
		From:        from,
		To:          to,
		TotalVolume: total,
	}, nil
}

// ExerciseProgress buckets the whole set history of an exercise per day.
// Warm-ups count as sets but contribute neither volume nor a 1RM estimate.
func (a *Analyzer) ExerciseProgress(ctx context.Context, exerciseID int) (*ExerciseProgress, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.exerciseProgress")
	defer span.End()

	sets, err := a.repo.SetsForExercise(ctx, exerciseID, 0)
	if err != nil {
		return nil, fmt.Errorf("load sets for exercise %d: %w", exerciseID, err)
	}

	progress := &ExerciseProgress{
		ExerciseID: exerciseID,
		Days:       make(map[time.Time]DayProgress),
	}
	for _, set := range sets {
		day := set.CreatedAt.Truncate(24 * time.Hour)
		dayProgress := progress.Days[day]
		dayProgress.Sets++
		if !set.IsWarmup {
			dayProgress.Volume += set.WeightKg * float64(set.Reps)
			if set.Reps >= 1 {
				if oneRM, err := strength.EstimateOneRepMax(set.WeightKg, set.Reps); err == nil && oneRM > dayProgress.BestOneRM {
					dayProgress.BestOneRM = oneRM
				}
			}
		}
		progress.Days[day] = dayProgress
	}

	return progress, nil
}

// ExerciseRecords reduces the set history of an exercise to its standing
// records: the best estimated one rep max set, and the heaviest weight at
// every rep count. Warm-ups and timed sets stay out.
func (a *Analyzer) ExerciseRecords(ctx context.Context, exerciseID int) (*ExerciseRecords, error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "analyzer.stats.exerciseRecords")
	defer span.End()

	sets, err := a.repo.SetsForExercise(ctx, exerciseID, 0)
	if err != nil {
		return nil, fmt.Errorf("load sets for exercise %d: %w", exerciseID, err)
	}

	exerciseRecords := &ExerciseRecords{
		ExerciseID:   exerciseID,
		WeightAtReps: make(map[int]float64),
	}
	for _, set := range sets {
		if set.IsWarmup || set.Reps < 1 {
			continue
		}
		oneRM, err := strength.EstimateOneRepMax(set.WeightKg, set.Reps)
		if err != nil {
			continue
		}
		if exerciseRecords.Best == nil || oneRM > exerciseRecords.Best.OneRM {
			exerciseRecords.Best = &OneRMRecord{
				WeightKg:   set.WeightKg,
				Reps:       set.Reps,
				OneRM:      oneRM,
				AchievedAt: set.CreatedAt,
			}
		}
		if set.WeightKg > exerciseRecords.WeightAtReps[set.Reps] {
			exerciseRecords.WeightAtReps[set.Reps] = set.WeightKg
		}
	}

	return exerciseRecords, nil
}
