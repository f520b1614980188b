package splits

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"
)

var (
	ErrSplitNotFound           = errors.New("workout split not found")
	ErrDayNotFound             = errors.New("workout day not found")
	ErrPlannedExerciseNotFound = errors.New("planned exercise not found")
	ErrPlanRefMissing          = errors.New("workout day or exercise not found")
)

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

// AddSplit stores a split with its days and planned exercises in one
// transaction. New splits always come in inactive, activation is a
// separate operation.
func (r *Repo) AddSplit(ctx context.Context, split Split) (_ *Split, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.addSplit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	split.IsActive = false
	err = tx.QueryRow(ctx, `
		INSERT INTO workout_split (name, split_type, is_active, created_at)
		VALUES ($1, $2, FALSE, $3)
		RETURNING id
	`,
		split.Name, split.SplitType, split.CreatedAt,
	).Scan(&split.ID)
	if err != nil {
		return nil, err
	}

	for di := range split.Days {
		day := &split.Days[di]
		day.SplitID = split.ID
		err = tx.QueryRow(ctx, `
			INSERT INTO workout_day (split_id, name, weekdays, position, rest_seconds)
			VALUES ($1, $2, $3, $4, $5)
			RETURNING id
		`,
			day.SplitID, day.Name, day.Weekdays, day.Position, day.RestSeconds,
		).Scan(&day.ID)
		if err != nil {
			return nil, err
		}

		for ei := range day.Exercises {
			plannedExercise := &day.Exercises[ei]
			plannedExercise.DayID = day.ID
			err = tx.QueryRow(ctx, `
				INSERT INTO planned_exercise
					(day_id, exercise_id, position, target_sets, target_reps_min, target_reps_max, target_duration_seconds, rest_seconds)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
				RETURNING id
			`,
				plannedExercise.DayID, plannedExercise.ExerciseID, plannedExercise.Position,
				plannedExercise.TargetSets, plannedExercise.TargetRepsMin, plannedExercise.TargetRepsMax,
				plannedExercise.TargetDurationSeconds, plannedExercise.RestSeconds,
			).Scan(&plannedExercise.ID)
			if err != nil {
				if pkg.IsForeignKeyViolationError(err) {
					err = ErrPlanRefMissing
				}
				return nil, err
			}
		}
	}

	span.SetAttributes(attribute.Int("split.id", split.ID))
	return &split, nil
}

func (r *Repo) GetSplit(ctx context.Context, id int) (_ *Split, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.getSplit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	var split Split
	err = r.db.QueryRow(ctx, `
		SELECT id, name, split_type, is_active, created_at
		FROM workout_split
		WHERE id = $1
	`, id).Scan(&split.ID, &split.Name, &split.SplitType, &split.IsActive, &split.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSplitNotFound
	}
	if err != nil {
		return nil, err
	}

	dayRows, err := r.db.Query(ctx, `
		SELECT id, split_id, name, weekdays, position, rest_seconds
		FROM workout_day
		WHERE split_id = $1
		ORDER BY position
	`, id)
	if err != nil {
		return nil, err
	}
	defer dayRows.Close()

	if err := dayRows.Err(); err != nil {
		return nil, err
	}

	split.Days = make([]Day, 0)
	for dayRows.Next() {
		var day Day
		if err := dayRows.Scan(
			&day.ID, &day.SplitID, &day.Name, &day.Weekdays, &day.Position, &day.RestSeconds,
		); err != nil {
			return nil, err
		}
		day.Exercises = make([]PlannedExercise, 0)
		split.Days = append(split.Days, day)
	}

	planRows, err := r.db.Query(ctx, `
		SELECT
			pe.id, pe.day_id, pe.exercise_id, pe.position,
			pe.target_sets, pe.target_reps_min, pe.target_reps_max, pe.target_duration_seconds, pe.rest_seconds,
			e.name, e.muscle_group, e.exercise_type
		FROM planned_exercise pe
		JOIN workout_day d ON pe.day_id = d.id
		JOIN exercise e ON pe.exercise_id = e.id
		WHERE d.split_id = $1
		ORDER BY pe.day_id, pe.position
	`, id)
	if err != nil {
		return nil, err
	}
	defer planRows.Close()

	plannedExercises, err := rows2plannedExercises(planRows)
	if err != nil {
		return nil, err
	}

	for _, plannedExercise := range plannedExercises {
		for di := range split.Days {
			if split.Days[di].ID == plannedExercise.DayID {
				split.Days[di].Exercises = append(split.Days[di].Exercises, plannedExercise)
				break
			}
		}
	}

	return &split, nil
}

func (r *Repo) ListSplits(ctx context.Context) (_ []Split, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.listSplits")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx, `
		SELECT id, name, split_type, is_active, created_at
		FROM workout_split
		ORDER BY created_at DESC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	splits := make([]Split, 0)
	for rows.Next() {
		var split Split
		if err := rows.Scan(
			&split.ID, &split.Name, &split.SplitType, &split.IsActive, &split.CreatedAt,
		); err != nil {
			return nil, err
		}
		splits = append(splits, split)
	}
	return splits, nil
}

// ActiveSplit returns the currently active split with its full plan, or
// ErrSplitNotFound when no split is active.
func (r *Repo) ActiveSplit(ctx context.Context) (_ *Split, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.activeSplit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	var id int
	err = r.db.QueryRow(ctx, `SELECT id FROM workout_split WHERE is_active LIMIT 1;`).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrSplitNotFound
	}
	if err != nil {
		return nil, err
	}

	return r.GetSplit(ctx, id)
}

// Activate marks one split active and all others inactive, in one
// transaction, so exactly one split is active afterwards.
func (r *Repo) Activate(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.activate")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			if rollbackErr := tx.Rollback(ctx); rollbackErr != nil {
				err = fmt.Errorf("failed to rollback transaction: %w: %w", rollbackErr, err)
			}
		} else {
			err = tx.Commit(ctx)
		}
	}()

	_, err = tx.Exec(ctx, `UPDATE workout_split SET is_active = FALSE WHERE is_active;`)
	if err != nil {
		return err
	}

	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx, `UPDATE workout_split SET is_active = TRUE WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		err = ErrSplitNotFound
		return err
	}

	return nil
}

func (r *Repo) DeleteSplit(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.deleteSplit")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM workout_split WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrSplitNotFound
	}
	return nil
}

func (r *Repo) AddDay(ctx context.Context, day Day) (_ *Day, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.addDay")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("split.id", day.SplitID))

	err = r.db.QueryRow(ctx, `
		INSERT INTO workout_day (split_id, name, weekdays, position, rest_seconds)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`,
		day.SplitID, day.Name, day.Weekdays, day.Position, day.RestSeconds,
	).Scan(&day.ID)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrSplitNotFound
		}
		return nil, err
	}
	return &day, nil
}

func (r *Repo) UpdateDay(ctx context.Context, day *Day) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.updateDay")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", day.ID))

	tag, err := r.db.Exec(ctx, `
		UPDATE workout_day
		SET name = $1, weekdays = $2, position = $3, rest_seconds = $4
		WHERE id = $5;
	`,
		day.Name, day.Weekdays, day.Position, day.RestSeconds, day.ID,
	)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDayNotFound
	}
	return nil
}

func (r *Repo) DeleteDay(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.deleteDay")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM workout_day WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrDayNotFound
	}
	return nil
}

// DayWithPlan returns a workout day together with its planned exercises in
// position order, catalog names joined in. This is what the session engine
// starts a workout from.
func (r *Repo) DayWithPlan(ctx context.Context, dayID int) (_ *Day, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.dayWithPlan")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("day.id", dayID))

	var day Day
	err = r.db.QueryRow(ctx, `
		SELECT id, split_id, name, weekdays, position, rest_seconds
		FROM workout_day
		WHERE id = $1
	`, dayID).Scan(&day.ID, &day.SplitID, &day.Name, &day.Weekdays, &day.Position, &day.RestSeconds)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrDayNotFound
	}
	if err != nil {
		return nil, err
	}

	rows, err := r.db.Query(ctx, `
		SELECT
			pe.id, pe.day_id, pe.exercise_id, pe.position,
			pe.target_sets, pe.target_reps_min, pe.target_reps_max, pe.target_duration_seconds, pe.rest_seconds,
			e.name, e.muscle_group, e.exercise_type
		FROM planned_exercise pe
		JOIN exercise e ON pe.exercise_id = e.id
		WHERE pe.day_id = $1
		ORDER BY pe.position
	`, dayID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	day.Exercises, err = rows2plannedExercises(rows)
	if err != nil {
		return nil, err
	}
	return &day, nil
}

func (r *Repo) AddPlannedExercise(ctx context.Context, plannedExercise PlannedExercise) (_ *PlannedExercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.addPlannedExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("day.id", plannedExercise.DayID))
	span.SetAttributes(attribute.Int("exercise.id", plannedExercise.ExerciseID))

	err = r.db.QueryRow(ctx, `
		INSERT INTO planned_exercise
			(day_id, exercise_id, position, target_sets, target_reps_min, target_reps_max, target_duration_seconds, rest_seconds)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING id
	`,
		plannedExercise.DayID, plannedExercise.ExerciseID, plannedExercise.Position,
		plannedExercise.TargetSets, plannedExercise.TargetRepsMin, plannedExercise.TargetRepsMax,
		plannedExercise.TargetDurationSeconds, plannedExercise.RestSeconds,
	).Scan(&plannedExercise.ID)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrPlanRefMissing
		}
		return nil, err
	}
	return &plannedExercise, nil
}

func (r *Repo) UpdatePlannedExercise(ctx context.Context, plannedExercise *PlannedExercise) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.updatePlannedExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", plannedExercise.ID))

	tag, err := r.db.Exec(ctx, `
		UPDATE planned_exercise
		SET exercise_id = $1, position = $2, target_sets = $3,
			target_reps_min = $4, target_reps_max = $5, target_duration_seconds = $6, rest_seconds = $7
		WHERE id = $8;
	`,
		plannedExercise.ExerciseID, plannedExercise.Position, plannedExercise.TargetSets,
		plannedExercise.TargetRepsMin, plannedExercise.TargetRepsMax,
		plannedExercise.TargetDurationSeconds, plannedExercise.RestSeconds,
		plannedExercise.ID,
	)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return ErrPlanRefMissing
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlannedExerciseNotFound
	}
	return nil
}

func (r *Repo) DeletePlannedExercise(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.deletePlannedExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM planned_exercise WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrPlannedExerciseNotFound
	}
	return nil
}

// ExerciseRefCount counts how many planned-exercise slots reference a
// catalog exercise. The app shows it before offering to delete a custom
// exercise.
func (r *Repo) ExerciseRefCount(ctx context.Context, exerciseID int) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.splits.exerciseRefCount")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	var count int
	err = r.db.QueryRow(
		ctx,
		`SELECT COUNT(*) FROM planned_exercise WHERE exercise_id = $1;`,
		exerciseID,
	).Scan(&count)
	if err != nil {
		return -1, err
	}
	return count, nil
}

func rows2plannedExercises(rows pgx.Rows) ([]PlannedExercise, error) {
	if err := rows.Err(); err != nil {
		return nil, err
	}

	plannedExercises := make([]PlannedExercise, 0)
	for rows.Next() {
		var pe PlannedExercise
		if err := rows.Scan(
			&pe.ID, &pe.DayID, &pe.ExerciseID, &pe.Position,
			&pe.TargetSets, &pe.TargetRepsMin, &pe.TargetRepsMax, &pe.TargetDurationSeconds, &pe.RestSeconds,
			&pe.ExerciseName, &pe.MuscleGroup, &pe.ExerciseType,
		); err != nil {
			return nil, err
		}
		plannedExercises = append(plannedExercises, pe)
	}
	return plannedExercises, nil
}
