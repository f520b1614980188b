package exercises

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"

	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"
)

var (
	ErrExerciseNotFound  = errors.New("exercise not found")
	ErrExerciseExists    = errors.New("exercise already exists")
	ErrExerciseInUse     = errors.New("exercise in use")
	ErrExerciseImmutable = errors.New("built-in exercises cannot be changed")
	ErrImageNotFound     = errors.New("exercise image not found")
)

type ExerciseParams struct {
	MuscleGroup  string
	ExerciseType string
	Search       string
	OnlyCustom   bool
}

type ListParams struct {
	ExerciseParams
	Page int
	Size int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{
		db: db,
	}
}

func (r *Repo) Add(ctx context.Context, exercise Exercise) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`INSERT INTO exercise
				(name, muscle_group, secondary_muscles, equipment, exercise_type, is_custom, notes, created_at)
				VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
			RETURNING id;`,
		exercise.Name, exercise.MuscleGroup, exercise.SecondaryMuscles, exercise.Equipment,
		exercise.ExerciseType, exercise.IsCustom, exercise.Notes, exercise.CreatedAt,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrExerciseExists
		}
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	if !rows.Next() {
		return nil, errors.New("unexpected error [no rows next]")
	}

	var id int
	if err := rows.Scan(&id); err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrExerciseExists
		}
		return nil, fmt.Errorf("rows scan: %w", err)
	}

	span.SetAttributes(attribute.Int("exercise.id", id))

	exercise.ID = id
	return &exercise, nil
}

func (r *Repo) Get(ctx context.Context, id int) (_ *Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, muscle_group, secondary_muscles, equipment, exercise_type, is_custom, notes, created_at
			FROM exercise
			WHERE id = $1;`,
		id,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	exercises, err := rows2exercises(rows)
	if err != nil {
		return nil, err
	}

	if len(exercises) != 1 {
		return nil, ErrExerciseNotFound
	}

	exercise := exercises[0]
	images, err := r.ImagesForExercise(ctx, exercise.ID)
	if err != nil {
		return nil, fmt.Errorf("get exercise images: %w", err)
	}
	exercise.Images = images

	return &exercise, nil
}

func (r *Repo) ListAll(ctx context.Context, params ExerciseParams) (_ []Exercise, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.listAll")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("muscle_group", params.MuscleGroup))
	span.SetAttributes(attribute.String("exercise_type", params.ExerciseType))
	span.SetAttributes(attribute.String("search", params.Search))
	span.SetAttributes(attribute.Bool("only-custom", params.OnlyCustom))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, muscle_group, secondary_muscles, equipment, exercise_type, is_custom, notes, created_at
			FROM exercise
			WHERE ($1::text = '' OR muscle_group = $1)
			AND ($2::text = '' OR exercise_type = $2)
			AND ($3::text = '' OR name ILIKE '%' || $3 || '%')
			AND ($4::boolean IS FALSE OR is_custom)
			ORDER BY muscle_group, name;`,
		params.MuscleGroup, params.ExerciseType, params.Search, params.OnlyCustom,
	)
	if err != nil {
		return nil, fmt.Errorf("query: %w", err)
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}

	return rows2exercises(rows)
}

func (r *Repo) List(ctx context.Context, params ListParams) (_ []Exercise, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))
	span.SetAttributes(attribute.String("muscle_group", params.MuscleGroup))
	span.SetAttributes(attribute.String("exercise_type", params.ExerciseType))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	countAll, err := r.ExercisesCount(ctx, params)
	if err != nil {
		return nil, -1, err
	}

	if countAll <= limit {
		limit = countAll
		offset = 0
	}

	if countAll-offset < limit {
		offset = countAll - limit
	}

	span.SetAttributes(attribute.Int("count_all", countAll))
	span.SetAttributes(attribute.Int("limit", limit))
	span.SetAttributes(attribute.Int("offset", offset))

	rows, err := r.db.Query(
		ctx,
		`SELECT id, name, muscle_group, secondary_muscles, equipment, exercise_type, is_custom, notes, created_at
			FROM exercise
			WHERE ($1::text = '' OR muscle_group = $1)
			AND ($2::text = '' OR exercise_type = $2)
			ORDER BY muscle_group, name
			LIMIT $3
			OFFSET $4;`,
		params.MuscleGroup, params.ExerciseType,
		limit, offset,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, -1, err
	}

	exercises, err := rows2exercises(rows)
	if err != nil {
		return nil, -1, err
	}
	return exercises, countAll, nil
}

func (r *Repo) ExercisesCount(ctx context.Context, params ListParams) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx, `
		SELECT COUNT(*) FROM exercise
			WHERE ($1::text = '' OR muscle_group = $1)
			AND ($2::text = '' OR exercise_type = $2);
	`,
		params.MuscleGroup, params.ExerciseType,
	)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return -1, err
	}

	if rows.Next() {
		var count int
		if err := rows.Scan(&count); err == nil {
			return count, nil
		}
	}

	return -1, errors.New("unexpected error, failed to get exercises count")
}

// Update changes a custom catalog entry. Built-in exercises stay as
// shipped, ErrExerciseImmutable comes back for those.
func (r *Repo) Update(ctx context.Context, exercise *Exercise) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.update")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", exercise.ID))

	var isCustom bool
	err = r.db.QueryRow(ctx, `SELECT is_custom FROM exercise WHERE id = $1;`, exercise.ID).Scan(&isCustom)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrExerciseNotFound
	}
	if err != nil {
		return err
	}
	if !isCustom {
		return ErrExerciseImmutable
	}

	tag, err := r.db.Exec(
		ctx,
		`UPDATE exercise
			SET name = $1, muscle_group = $2, secondary_muscles = $3, equipment = $4, exercise_type = $5, notes = $6
			WHERE id = $7;`,
		exercise.Name, exercise.MuscleGroup, exercise.SecondaryMuscles,
		exercise.Equipment, exercise.ExerciseType, exercise.Notes, exercise.ID,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return ErrExerciseExists
		}
		return err
	}

	if tag.RowsAffected() == 0 {
		return ErrExerciseNotFound
	}

	return nil
}

// Delete removes a custom catalog entry. An exercise referenced by a workout
// plan or by logged sets cannot go away, the foreign key violation comes
// back as ErrExerciseInUse.
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("id", id))

	var isCustom bool
	err = r.db.QueryRow(ctx, `SELECT is_custom FROM exercise WHERE id = $1;`, id).Scan(&isCustom)
	if errors.Is(err, pgx.ErrNoRows) {
		return ErrExerciseNotFound
	}
	if err != nil {
		return err
	}
	if !isCustom {
		return ErrExerciseImmutable
	}

	tag, err := r.db.Exec(
		ctx,
		`DELETE FROM exercise WHERE id = $1`,
		id,
	)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return ErrExerciseInUse
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrExerciseNotFound
	}
	return nil
}

func (r *Repo) AddImage(ctx context.Context, exerciseID int, path string) (_ *Image, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.addImage")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))

	image := Image{
		ExerciseID: exerciseID,
		Path:       path,
		CreatedAt:  time.Now(),
	}
	err = r.db.QueryRow(
		ctx,
		`INSERT INTO exercise_image (exercise_id, path, created_at)
			VALUES ($1, $2, $3)
			RETURNING id;`,
		image.ExerciseID, image.Path, image.CreatedAt,
	).Scan(&image.ID)
	if err != nil {
		if pkg.IsForeignKeyViolationError(err) {
			return nil, ErrExerciseNotFound
		}
		return nil, err
	}

	return &image, nil
}

func (r *Repo) GetImage(ctx context.Context, id int64) (_ *Image, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.getImage")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("image.id", id))

	var image Image
	err = r.db.QueryRow(
		ctx,
		`SELECT id, exercise_id, path, created_at FROM exercise_image WHERE id = $1;`,
		id,
	).Scan(&image.ID, &image.ExerciseID, &image.Path, &image.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrImageNotFound
	}
	if err != nil {
		return nil, err
	}
	return &image, nil
}

func (r *Repo) DeleteImage(ctx context.Context, id int64) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.deleteImage")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int64("image.id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM exercise_image WHERE id = $1;`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrImageNotFound
	}
	return nil
}

func (r *Repo) ImagesForExercise(ctx context.Context, exerciseID int) (_ []Image, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.exercises.imagesForExercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(
		ctx,
		`SELECT id, exercise_id, path, created_at
			FROM exercise_image
			WHERE exercise_id = $1
			ORDER BY created_at;`,
		exerciseID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	if err := rows.Err(); err != nil {
		return nil, err
	}

	images := make([]Image, 0)
	for rows.Next() {
		var img Image
		if err := rows.Scan(&img.ID, &img.ExerciseID, &img.Path, &img.CreatedAt); err != nil {
			return nil, err
		}
		images = append(images, img)
	}
	return images, nil
}

func rows2exercises(rows pgx.Rows) ([]Exercise, error) {
	var exercises []Exercise
	for rows.Next() {
		var e Exercise
		if err := rows.Scan(
			&e.ID, &e.Name, &e.MuscleGroup, &e.SecondaryMuscles, &e.Equipment,
			&e.ExerciseType, &e.IsCustom, &e.Notes, &e.CreatedAt,
		); err != nil {
			return nil, err
		}
		exercises = append(exercises, e)
	}

	if exercises == nil {
		exercises = make([]Exercise, 0)
	}

	return exercises, nil
}
