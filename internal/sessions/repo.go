package sessions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.opentelemetry.io/otel/attribute"
)

// SessionParams filters session reads.
type SessionParams struct {
	// ExcludeTestingData drops sessions tagged with testing metadata,
	// e.g. rows seeded by the e2e suite.
	ExcludeTestingData bool
}

type ListParams struct {
	SessionParams
	Page int
	Size int
}

type Repo struct {
	db *pgxpool.Pool
}

func NewRepo(db *pgxpool.Pool) *Repo {
	return &Repo{db: db}
}

// Add stores a new session. At most one session per day may be in progress,
// a second one trips the partial unique index and maps to
// ErrSessionInProgress.
func (r *Repo) Add(ctx context.Context, session WorkoutSession) (_ *WorkoutSession, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.add")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx,
		`INSERT INTO workout_session (day_id, started_at, ended_at, notes, metadata)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id;`,
		session.DayID, session.StartedAt, session.EndedAt, session.Notes, session.Metadata,
	)
	if err != nil {
		if pkg.IsUniqueViolationError(err) {
			return nil, ErrSessionInProgress
		}
		return nil, fmt.Errorf("insert workout session: %w", err)
	}
	defer rows.Close()

	if !rows.Next() {
		if err := rows.Err(); err != nil {
			if pkg.IsUniqueViolationError(err) {
				return nil, ErrSessionInProgress
			}
			return nil, fmt.Errorf("insert workout session rows: %w", err)
		}
		return nil, errors.New("unexpected error, workout session id not returned")
	}

	if err := rows.Scan(&session.ID); err != nil {
		return nil, fmt.Errorf("scan workout session id: %w", err)
	}

	span.SetAttributes(attribute.Int("session.id", session.ID))
	return &session, nil
}

// Get returns the bare session row, day name resolved best-effort.
func (r *Repo) Get(ctx context.Context, id int) (_ *WorkoutSession, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.get")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", id))

	session, err := r.scanSession(r.db.QueryRow(ctx,
		`SELECT s.id, s.day_id, s.started_at, s.ended_at, s.notes, s.metadata, COALESCE(d.name, '')
		FROM workout_session s
		LEFT JOIN workout_day d ON d.id = s.day_id
		WHERE s.id = $1;`,
		id,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get workout session: %w", err)
	}
	return session, nil
}

// FindInProgress returns the not-yet-ended session of the given day.
func (r *Repo) FindInProgress(ctx context.Context, dayID int) (_ *WorkoutSession, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.findinprogress")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("day.id", dayID))

	session, err := r.scanSession(r.db.QueryRow(ctx,
		`SELECT s.id, s.day_id, s.started_at, s.ended_at, s.notes, s.metadata, COALESCE(d.name, '')
		FROM workout_session s
		LEFT JOIN workout_day d ON d.id = s.day_id
		WHERE s.day_id = $1 AND s.ended_at IS NULL;`,
		dayID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("find in-progress workout session: %w", err)
	}
	return session, nil
}

// SessionDetail returns the session with its exercise logs and sets, logs
// ordered by position and sets by set number.
func (r *Repo) SessionDetail(ctx context.Context, id int) (_ *SessionDetail, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.detail")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", id))

	session, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &SessionDetail{
		WorkoutSession: *session,
		ExerciseLogs:   []ExerciseLog{},
	}

	logRows, err := r.db.Query(ctx,
		`SELECT el.id, el.session_id, el.exercise_id, el.position, el.notes, e.name, e.muscle_group
		FROM exercise_log el
		JOIN exercise e ON e.id = el.exercise_id
		WHERE el.session_id = $1
		ORDER BY el.position;`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query exercise logs: %w", err)
	}
	defer logRows.Close()

	logIndex := map[int]int{}
	for logRows.Next() {
		var exerciseLog ExerciseLog
		if err := logRows.Scan(
			&exerciseLog.ID, &exerciseLog.SessionID, &exerciseLog.ExerciseID,
			&exerciseLog.Position, &exerciseLog.Notes,
			&exerciseLog.ExerciseName, &exerciseLog.MuscleGroup,
		); err != nil {
			return nil, fmt.Errorf("scan exercise log: %w", err)
		}
		exerciseLog.Sets = []SetLog{}
		detail.ExerciseLogs = append(detail.ExerciseLogs, exerciseLog)
		logIndex[exerciseLog.ID] = len(detail.ExerciseLogs) - 1
	}
	if err := logRows.Err(); err != nil {
		return nil, fmt.Errorf("exercise log rows: %w", err)
	}

	if len(detail.ExerciseLogs) == 0 {
		return detail, nil
	}

	setRows, err := r.db.Query(ctx,
		`SELECT sl.id, sl.exercise_log_id, sl.set_number, sl.weight_kg, sl.reps,
			sl.duration_seconds, sl.rpe, sl.is_warmup, sl.is_dropset, sl.created_at
		FROM set_log sl
		JOIN exercise_log el ON el.id = sl.exercise_log_id
		WHERE el.session_id = $1
		ORDER BY el.position, sl.set_number;`,
		id,
	)
	if err != nil {
		return nil, fmt.Errorf("query set logs: %w", err)
	}
	defer setRows.Close()

	sets, err := rows2setLogs(setRows)
	if err != nil {
		return nil, fmt.Errorf("rows2setLogs: %w", err)
	}
	for _, set := range sets {
		i, ok := logIndex[set.ExerciseLogID]
		if !ok {
			continue
		}
		detail.ExerciseLogs[i].Sets = append(detail.ExerciseLogs[i].Sets, set)
	}

	return detail, nil
}

// Finish sets the end time and notes. A session can end only once, a second
// finish returns ErrSessionEnded.
func (r *Repo) Finish(ctx context.Context, id int, endedAt time.Time, notes string) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.finish")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", id))

	tag, err := r.db.Exec(ctx,
		`UPDATE workout_session SET ended_at = $2, notes = $3 WHERE id = $1 AND ended_at IS NULL;`,
		id, endedAt, notes,
	)
	if err != nil {
		return fmt.Errorf("finish workout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		var exists bool
		if err := r.db.QueryRow(ctx,
			`SELECT EXISTS (SELECT 1 FROM workout_session WHERE id = $1);`, id,
		).Scan(&exists); err != nil {
			return fmt.Errorf("check workout session: %w", err)
		}
		if exists {
			return ErrSessionEnded
		}
		return ErrSessionNotFound
	}
	return nil
}

// Delete removes the session with all its logs and sets (cascade).
func (r *Repo) Delete(ctx context.Context, id int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.delete")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", id))

	tag, err := r.db.Exec(ctx, `DELETE FROM workout_session WHERE id = $1;`, id)
	if err != nil {
		return fmt.Errorf("delete workout session: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSessionNotFound
	}
	return nil
}

// AddSetParams locates the exercise log slot a set belongs to. Position is
// the plan index, so the same exercise planned twice keeps separate logs.
type AddSetParams struct {
	SessionID  int
	ExerciseID int
	Position   int
	Set        SetLog
}

// AddSet persists one set. The exercise log row is created in the same
// transaction when the set is the first one for its slot.
func (r *Repo) AddSet(ctx context.Context, params AddSetParams) (_ *SetLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.addset")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("session.id", params.SessionID))
	span.SetAttributes(attribute.Int("exercise.id", params.ExerciseID))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
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

	var exerciseLogID int
	err = tx.QueryRow(ctx,
		`SELECT id FROM exercise_log WHERE session_id = $1 AND exercise_id = $2 AND position = $3;`,
		params.SessionID, params.ExerciseID, params.Position,
	).Scan(&exerciseLogID)
	if errors.Is(err, pgx.ErrNoRows) {
		err = tx.QueryRow(ctx,
			`INSERT INTO exercise_log (session_id, exercise_id, position, notes)
			VALUES ($1, $2, $3, '')
			RETURNING id;`,
			params.SessionID, params.ExerciseID, params.Position,
		).Scan(&exerciseLogID)
	}
	if err != nil {
		err = fmt.Errorf("exercise log for set: %w", err)
		return nil, err
	}

	set := params.Set
	set.ExerciseLogID = exerciseLogID
	err = tx.QueryRow(ctx,
		`INSERT INTO set_log
			(exercise_log_id, set_number, weight_kg, reps, duration_seconds, rpe, is_warmup, is_dropset, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id;`,
		set.ExerciseLogID, set.SetNumber, set.WeightKg, set.Reps,
		set.DurationSeconds, set.RPE, set.IsWarmup, set.IsDropset, set.CreatedAt,
	).Scan(&set.ID)
	if err != nil {
		err = fmt.Errorf("insert set log: %w", err)
		return nil, err
	}

	span.SetAttributes(attribute.Int("set.id", set.ID))
	return &set, nil
}

// UpdateSet rewrites the numeric fields and flags of a set, the set number
// stays as is.
func (r *Repo) UpdateSet(ctx context.Context, set *SetLog) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.updateset")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("set.id", set.ID))

	tag, err := r.db.Exec(ctx,
		`UPDATE set_log
		SET weight_kg = $2, reps = $3, duration_seconds = $4, rpe = $5, is_warmup = $6, is_dropset = $7
		WHERE id = $1;`,
		set.ID, set.WeightKg, set.Reps, set.DurationSeconds, set.RPE, set.IsWarmup, set.IsDropset,
	)
	if err != nil {
		return fmt.Errorf("update set log: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrSetNotFound
	}
	return nil
}

// DeleteSet removes one set and renumbers its siblings so set numbers stay
// contiguous, both in one transaction.
func (r *Repo) DeleteSet(ctx context.Context, exerciseLogID, setNumber int) (err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.deleteset")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise_log.id", exerciseLogID))
	span.SetAttributes(attribute.Int("set.number", setNumber))

	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
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

	var tag pgconn.CommandTag
	tag, err = tx.Exec(ctx,
		`DELETE FROM set_log WHERE exercise_log_id = $1 AND set_number = $2;`,
		exerciseLogID, setNumber,
	)
	if err != nil {
		err = fmt.Errorf("delete set log: %w", err)
		return err
	}
	if tag.RowsAffected() == 0 {
		err = ErrSetNotFound
		return err
	}

	_, err = tx.Exec(ctx,
		`UPDATE set_log SET set_number = set_number - 1 WHERE exercise_log_id = $1 AND set_number > $2;`,
		exerciseLogID, setNumber,
	)
	if err != nil {
		err = fmt.Errorf("renumber set logs: %w", err)
		return err
	}

	return nil
}

// SetsForExercise returns the full set history of an exercise across all
// sessions, chronological. A positive beforeSessionID excludes that session,
// used to preload prior history without the live sets.
func (r *Repo) SetsForExercise(ctx context.Context, exerciseID, beforeSessionID int) (_ []SetLog, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.setsforexercise")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("exercise.id", exerciseID))
	span.SetAttributes(attribute.Int("before.session.id", beforeSessionID))

	rows, err := r.db.Query(ctx,
		`SELECT sl.id, sl.exercise_log_id, sl.set_number, sl.weight_kg, sl.reps,
			sl.duration_seconds, sl.rpe, sl.is_warmup, sl.is_dropset, sl.created_at
		FROM set_log sl
		JOIN exercise_log el ON el.id = sl.exercise_log_id
		WHERE el.exercise_id = $1
			AND ($2::int <= 0 OR el.session_id != $2)
		ORDER BY sl.created_at, sl.set_number;`,
		exerciseID, beforeSessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query exercise set history: %w", err)
	}
	defer rows.Close()

	sets, err := rows2setLogs(rows)
	if err != nil {
		return nil, fmt.Errorf("rows2setLogs: %w", err)
	}
	return sets, nil
}

// CompletedSessionDays returns the start timestamps of all finished
// sessions, newest first. Day bucketing happens in the caller's timezone.
func (r *Repo) CompletedSessionDays(ctx context.Context) (_ []time.Time, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.completeddays")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()

	rows, err := r.db.Query(ctx,
		`SELECT started_at FROM workout_session WHERE ended_at IS NOT NULL ORDER BY started_at DESC;`,
	)
	if err != nil {
		return nil, fmt.Errorf("query completed sessions: %w", err)
	}
	defer rows.Close()

	startTimes := []time.Time{}
	for rows.Next() {
		var startedAt time.Time
		if err := rows.Scan(&startedAt); err != nil {
			return nil, fmt.Errorf("scan started at: %w", err)
		}
		startTimes = append(startTimes, startedAt)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("completed session rows: %w", err)
	}

	span.SetAttributes(attribute.Int("count", len(startTimes)))
	return startTimes, nil
}

// TotalVolumeBetween sums weight * reps over all non-warm-up sets of
// sessions started in [from, to].
func (r *Repo) TotalVolumeBetween(ctx context.Context, from, to time.Time) (_ float64, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.totalvolume")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.String("from", from.String()))
	span.SetAttributes(attribute.String("to", to.String()))

	var total float64
	err = r.db.QueryRow(ctx,
		`SELECT COALESCE(SUM(sl.weight_kg * sl.reps) FILTER (WHERE NOT sl.is_warmup), 0)
		FROM set_log sl
		JOIN exercise_log el ON el.id = sl.exercise_log_id
		JOIN workout_session ws ON ws.id = el.session_id
		WHERE ws.started_at >= $1 AND ws.started_at <= $2;`,
		from, to,
	).Scan(&total)
	if err != nil {
		return 0, fmt.Errorf("query total volume: %w", err)
	}
	return total, nil
}

// SessionsCount returns the number of sessions matching the given params.
func (r *Repo) SessionsCount(ctx context.Context, params SessionParams) (_ int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.count")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Bool("exclude-testing-data", params.ExcludeTestingData))

	rows, err := r.db.Query(ctx,
		`SELECT COUNT(*) FROM workout_session
		WHERE ($1::boolean IS FALSE OR COALESCE(metadata->>'testing', '') != 'true');`,
		params.ExcludeTestingData,
	)
	if err != nil {
		return -1, err
	}
	defer rows.Close()

	if rows.Next() {
		var count int
		if err := rows.Scan(&count); err != nil {
			return -1, fmt.Errorf("scan sessions count: %w", err)
		}
		return count, nil
	}

	return -1, errors.New("unexpected error, failed to get sessions count")
}

// List returns one page of sessions, newest first, plus the total count.
func (r *Repo) List(ctx context.Context, params ListParams) (_ []WorkoutSession, total int, err error) {
	ctx, span := tracing.GlobalTracer.Start(ctx, "repo.sessions.list")
	defer func() {
		tracing.EndSpanWithErrCheck(span, err)
	}()
	span.SetAttributes(attribute.Int("page", params.Page))
	span.SetAttributes(attribute.Int("size", params.Size))
	span.SetAttributes(attribute.Bool("exclude-testing-data", params.ExcludeTestingData))

	if params.Page < 1 {
		return nil, -1, errors.New("page must be greater than 0")
	}
	if params.Size < 1 {
		return nil, -1, errors.New("size must be greater than 0")
	}

	limit := params.Size
	offset := (params.Page - 1) * params.Size
	countAll, err := r.SessionsCount(ctx, params.SessionParams)
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

	rows, err := r.db.Query(ctx,
		`SELECT s.id, s.day_id, s.started_at, s.ended_at, s.notes, s.metadata, COALESCE(d.name, '')
		FROM workout_session s
		LEFT JOIN workout_day d ON d.id = s.day_id
		WHERE ($3::boolean IS FALSE OR COALESCE(s.metadata->>'testing', '') != 'true')
		ORDER BY s.started_at DESC
		LIMIT $1
		OFFSET $2;`,
		limit, offset, params.ExcludeTestingData,
	)
	if err != nil {
		return nil, -1, err
	}
	defer rows.Close()

	sessions := []WorkoutSession{}
	for rows.Next() {
		var session WorkoutSession
		if err := rows.Scan(
			&session.ID, &session.DayID, &session.StartedAt, &session.EndedAt,
			&session.Notes, &session.Metadata, &session.DayName,
		); err != nil {
			return nil, -1, fmt.Errorf("scan workout session: %w", err)
		}
		sessions = append(sessions, session)
	}
	if err := rows.Err(); err != nil {
		return nil, -1, fmt.Errorf("workout session rows: %w", err)
	}

	return sessions, countAll, nil
}

func (r *Repo) scanSession(row pgx.Row) (*WorkoutSession, error) {
	var session WorkoutSession
	if err := row.Scan(
		&session.ID, &session.DayID, &session.StartedAt, &session.EndedAt,
		&session.Notes, &session.Metadata, &session.DayName,
	); err != nil {
		return nil, err
	}
	return &session, nil
}

func rows2setLogs(rows pgx.Rows) ([]SetLog, error) {
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	sets := []SetLog{}
	for rows.Next() {
		var set SetLog
		if err := rows.Scan(
			&set.ID, &set.ExerciseLogID, &set.SetNumber, &set.WeightKg, &set.Reps,
			&set.DurationSeconds, &set.RPE, &set.IsWarmup, &set.IsDropset, &set.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan set log: %w", err)
		}
		sets = append(sets, set)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows error: %w", err)
	}

	return sets, nil
}
