package sessions

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/2beens/gymtrack/internal/records"
	"github.com/2beens/gymtrack/internal/resttimer"
	"github.com/2beens/gymtrack/internal/splits"
	"github.com/2beens/gymtrack/internal/strength"
	"github.com/2beens/gymtrack/internal/telemetry/metrics"

	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=controller_mocks_test.go -package=sessions_test

type sessionsRepo interface {
	Add(ctx context.Context, session WorkoutSession) (_ *WorkoutSession, err error)
	FindInProgress(ctx context.Context, dayID int) (_ *WorkoutSession, err error)
	SessionDetail(ctx context.Context, id int) (_ *SessionDetail, err error)
	Finish(ctx context.Context, id int, endedAt time.Time, notes string) (err error)
	Delete(ctx context.Context, id int) (err error)
	AddSet(ctx context.Context, params AddSetParams) (_ *SetLog, err error)
	UpdateSet(ctx context.Context, set *SetLog) (err error)
	DeleteSet(ctx context.Context, exerciseLogID, setNumber int) (err error)
	SetsForExercise(ctx context.Context, exerciseID, beforeSessionID int) (_ []SetLog, err error)
}

// activeWorkout is the in-memory state of the one running session. Logs are
// index-parallel to the plan, the prior map freezes each exercise's set
// history as it was when the session started.
type activeWorkout struct {
	session WorkoutSession
	day     splits.Day
	plan    []splits.PlannedExercise
	logs    []ExerciseLog
	cursor  int
	pending PendingSet
	records []RecordHit
	prior   map[int][]strength.Set
	resumed bool
}

// accumulatedHistory is the PR comparison baseline for an exercise: the
// frozen prior history plus every set logged for it in this session so far.
// Timed sets carry no reps and stay out of the 1RM history.
func (w *activeWorkout) accumulatedHistory(exerciseID int) []strength.Set {
	history := slices.Clone(w.prior[exerciseID])
	for i := range w.logs {
		if w.logs[i].ExerciseID != exerciseID {
			continue
		}
		for _, set := range w.logs[i].Sets {
			if set.Reps < 1 {
				continue
			}
			history = append(history, strength.Set{
				WeightKg: set.WeightKg,
				Reps:     set.Reps,
				Warmup:   set.IsWarmup,
			})
		}
	}
	return history
}

// Controller is the live workout engine. It owns at most one active session
// and serializes all access with its mutex, which is also what serializes
// the rest timer.
type Controller struct {
	mutex   sync.Mutex
	repo    sessionsRepo
	history *records.HistoryStore
	metrics *metrics.Manager
	timer   *resttimer.Timer

	active *activeWorkout
}

func NewController(
	repo sessionsRepo,
	history *records.HistoryStore,
	metricsManager *metrics.Manager,
) *Controller {
	c := &Controller{
		repo:    repo,
		history: history,
		metrics: metricsManager,
	}
	c.timer = resttimer.New(func() {
		metricsManager.CounterRestTimersCompleted.Inc()
		log.Debugln("rest timer completed")
	})
	return c
}

// RunTimerTicks drives the rest timer with a 1s heartbeat until ctx is
// cancelled. Remaining time is wall-clock derived, the ticks only let the
// timer notice completion.
func (c *Controller) RunTimerTicks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				c.mutex.Lock()
				c.timer.Tick()
				c.mutex.Unlock()
			}
		}
	}()
}

// Start begins a workout for the given day, or resumes the one already in
// progress for it. Starting while a different day's workout is active fails
// with ErrSessionInProgress. An empty plan is allowed, sets just cannot be
// logged until the day gets planned exercises.
func (c *Controller) Start(
	ctx context.Context,
	day splits.Day,
	plan []splits.PlannedExercise,
) (*ActiveSnapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active != nil {
		if c.active.session.DayID != day.ID {
			return nil, ErrSessionInProgress
		}
		snapshot := c.snapshotLocked()
		snapshot.Resumed = true
		return snapshot, nil
	}

	inProgress, err := c.repo.FindInProgress(ctx, day.ID)
	switch {
	case err == nil:
		return c.resumeLocked(ctx, inProgress, day, plan)
	case errors.Is(err, ErrSessionNotFound):
		return c.startFreshLocked(ctx, day, plan)
	default:
		return nil, fmt.Errorf("find in-progress session: %w", err)
	}
}

func (c *Controller) startFreshLocked(
	ctx context.Context,
	day splits.Day,
	plan []splits.PlannedExercise,
) (*ActiveSnapshot, error) {
	prior, err := c.preloadHistory(ctx, 0, plan)
	if err != nil {
		return nil, err
	}

	added, err := c.repo.Add(ctx, WorkoutSession{
		DayID:     day.ID,
		StartedAt: time.Now(),
	})
	if err != nil {
		return nil, fmt.Errorf("start session: %w", err)
	}
	added.DayName = day.Name

	c.active = &activeWorkout{
		session: *added,
		day:     day,
		plan:    plan,
		logs:    placeholderLogs(added.ID, plan),
		records: []RecordHit{},
		prior:   prior,
	}

	c.metrics.CounterSessionsStarted.Inc()
	log.Debugf("workout session %d started for day [%d] %s", added.ID, day.ID, day.Name)
	return c.snapshotLocked(), nil
}

// resumeLocked rebuilds the in-memory workout from storage and replays the
// logged sets in order to reconstruct the PR hits as they were scored.
func (c *Controller) resumeLocked(
	ctx context.Context,
	session *WorkoutSession,
	day splits.Day,
	plan []splits.PlannedExercise,
) (*ActiveSnapshot, error) {
	detail, err := c.repo.SessionDetail(ctx, session.ID)
	if err != nil {
		return nil, fmt.Errorf("load session detail: %w", err)
	}

	prior, err := c.preloadHistory(ctx, session.ID, plan)
	if err != nil {
		return nil, err
	}

	logs := placeholderLogs(session.ID, plan)
	for _, dbLog := range detail.ExerciseLogs {
		if dbLog.Position < len(plan) && plan[dbLog.Position].ExerciseID == dbLog.ExerciseID {
			logs[dbLog.Position] = dbLog
			continue
		}
		// the plan changed under a running session, the sets stay in
		// storage and in history views but leave the live workout
		log.Warnf("resume session %d: exercise log %d no longer matches the day plan", session.ID, dbLog.ID)
	}

	hits := []RecordHit{}
	seen := map[int][]strength.Set{}
	for i := range logs {
		exerciseID := logs[i].ExerciseID
		for _, set := range logs[i].Sets {
			if set.Reps < 1 {
				continue
			}
			if !set.IsWarmup {
				history := append(slices.Clone(prior[exerciseID]), seen[exerciseID]...)
				res, evalErr := records.Evaluate(
					strength.Set{WeightKg: set.WeightKg, Reps: set.Reps},
					history,
				)
				if evalErr != nil {
					log.Errorf("replay record evaluation for exercise %d: %s", exerciseID, evalErr)
				} else if res.IsRecord {
					hits = append(hits, RecordHit{
						ExerciseID:   exerciseID,
						ExerciseName: logs[i].ExerciseName,
						SetNumber:    set.SetNumber,
						WeightKg:     set.WeightKg,
						Reps:         set.Reps,
						Result:       res,
					})
				}
			}
			seen[exerciseID] = append(seen[exerciseID], strength.Set{
				WeightKg: set.WeightKg,
				Reps:     set.Reps,
				Warmup:   set.IsWarmup,
			})
		}
	}

	cursor := 0
	for i := range logs {
		if len(logs[i].Sets) > 0 {
			cursor = i
		}
	}

	c.active = &activeWorkout{
		session: detail.WorkoutSession,
		day:     day,
		plan:    plan,
		logs:    logs,
		cursor:  cursor,
		records: hits,
		prior:   prior,
		resumed: true,
	}

	log.Debugf("workout session %d resumed for day [%d] %s, %d record hits replayed",
		session.ID, day.ID, day.Name, len(hits))
	return c.snapshotLocked(), nil
}

// preloadHistory reads the prior set history of every planned exercise,
// served from the freecache-backed store when it can.
func (c *Controller) preloadHistory(
	ctx context.Context,
	sessionID int,
	plan []splits.PlannedExercise,
) (map[int][]strength.Set, error) {
	prior := make(map[int][]strength.Set)
	for _, entry := range plan {
		if _, ok := prior[entry.ExerciseID]; ok {
			continue
		}
		if cached, ok := c.history.Get(entry.ExerciseID); ok {
			prior[entry.ExerciseID] = cached
			continue
		}
		sets, err := c.repo.SetsForExercise(ctx, entry.ExerciseID, sessionID)
		if err != nil {
			return nil, fmt.Errorf("preload history for exercise %d: %w", entry.ExerciseID, err)
		}
		strengthSets := setLogs2strengthSets(sets)
		prior[entry.ExerciseID] = strengthSets
		c.history.Set(entry.ExerciseID, strengthSets)
	}
	return prior, nil
}

// Current returns the state of the running workout.
func (c *Controller) Current() (*ActiveSnapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	return c.snapshotLocked(), nil
}

// LogSet appends a set to the current exercise: next sequential set number,
// persisted first, then the in-memory append, the PR check and possibly the
// rest timer. A failed save leaves the workout untouched.
func (c *Controller) LogSet(ctx context.Context, params LogSetParams) (*SetLog, *records.Result, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, nil, ErrNoActiveSession
	}
	workout := c.active
	if len(workout.plan) == 0 {
		return nil, nil, ErrNoPlannedExercises
	}
	if err := params.Validate(); err != nil {
		return nil, nil, err
	}

	entry := workout.plan[workout.cursor]
	exerciseLog := &workout.logs[workout.cursor]

	stored, err := c.repo.AddSet(ctx, AddSetParams{
		SessionID:  workout.session.ID,
		ExerciseID: entry.ExerciseID,
		Position:   workout.cursor,
		Set: SetLog{
			SetNumber:       len(exerciseLog.Sets) + 1,
			WeightKg:        params.WeightKg,
			Reps:            params.Reps,
			DurationSeconds: params.DurationSeconds,
			RPE:             params.RPE,
			IsWarmup:        params.IsWarmup,
			IsDropset:       params.IsDropset,
			CreatedAt:       time.Now(),
		},
	})
	if err != nil {
		return nil, nil, fmt.Errorf("save set: %w", err)
	}

	// the PR check runs against the history without the new set, so it has
	// to happen before the in-memory append
	var recordResult *records.Result
	if !stored.IsWarmup && stored.Reps >= 1 {
		res, evalErr := records.Evaluate(
			strength.Set{WeightKg: stored.WeightKg, Reps: stored.Reps},
			workout.accumulatedHistory(entry.ExerciseID),
		)
		if evalErr != nil {
			log.Errorf("evaluate record for exercise %d: %s", entry.ExerciseID, evalErr)
		} else {
			recordResult = &res
			if res.IsRecord {
				workout.records = append(workout.records, RecordHit{
					ExerciseID:   entry.ExerciseID,
					ExerciseName: exerciseLog.ExerciseName,
					SetNumber:    stored.SetNumber,
					WeightKg:     stored.WeightKg,
					Reps:         stored.Reps,
					Result:       res,
				})
				c.metrics.CounterPersonalRecords.Inc()
			}
		}
	}

	exerciseLog.ID = stored.ExerciseLogID
	exerciseLog.Sets = append(exerciseLog.Sets, *stored)
	workout.pending = PendingSet{}
	c.history.Invalidate(entry.ExerciseID)

	if len(exerciseLog.Sets) < entry.TargetSets {
		if rest := entry.RestFor(workout.day); rest > 0 {
			c.timer.Start(time.Duration(rest) * time.Second)
		}
	}

	c.metrics.CounterSetsLogged.Inc()
	log.Tracef("session %d: set %d logged for exercise %d: %.1fkg x %d",
		workout.session.ID, stored.SetNumber, entry.ExerciseID, stored.WeightKg, stored.Reps)
	return stored, recordResult, nil
}

// EditSet rewrites the numbered set of the current exercise. The set keeps
// its number and earlier PR hits stay as scored.
func (c *Controller) EditSet(ctx context.Context, setNumber int, params LogSetParams) (*SetLog, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	workout := c.active
	if len(workout.plan) == 0 {
		return nil, ErrNoPlannedExercises
	}
	if err := params.Validate(); err != nil {
		return nil, err
	}

	exerciseLog := &workout.logs[workout.cursor]
	if setNumber < 1 || setNumber > len(exerciseLog.Sets) {
		return nil, ErrSetNotFound
	}

	updated := exerciseLog.Sets[setNumber-1]
	updated.WeightKg = params.WeightKg
	updated.Reps = params.Reps
	updated.DurationSeconds = params.DurationSeconds
	updated.RPE = params.RPE
	updated.IsWarmup = params.IsWarmup
	updated.IsDropset = params.IsDropset

	if err := c.repo.UpdateSet(ctx, &updated); err != nil {
		return nil, fmt.Errorf("update set: %w", err)
	}

	exerciseLog.Sets[setNumber-1] = updated
	c.history.Invalidate(exerciseLog.ExerciseID)

	log.Tracef("session %d: set %d of exercise %d edited",
		workout.session.ID, setNumber, exerciseLog.ExerciseID)
	return &updated, nil
}

// DeleteSet removes the numbered set of the current exercise and renumbers
// the survivors, storage first.
func (c *Controller) DeleteSet(ctx context.Context, setNumber int) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return ErrNoActiveSession
	}
	workout := c.active
	if len(workout.plan) == 0 {
		return ErrNoPlannedExercises
	}

	exerciseLog := &workout.logs[workout.cursor]
	if setNumber < 1 || setNumber > len(exerciseLog.Sets) {
		return ErrSetNotFound
	}

	if err := c.repo.DeleteSet(ctx, exerciseLog.ID, setNumber); err != nil {
		return fmt.Errorf("delete set: %w", err)
	}

	exerciseLog.Sets = append(exerciseLog.Sets[:setNumber-1], exerciseLog.Sets[setNumber:]...)
	for i := range exerciseLog.Sets {
		exerciseLog.Sets[i].SetNumber = i + 1
	}
	c.history.Invalidate(exerciseLog.ExerciseID)

	log.Tracef("session %d: set %d of exercise %d deleted",
		workout.session.ID, setNumber, exerciseLog.ExerciseID)
	return nil
}

func (c *Controller) NextExercise() (*ActiveSnapshot, error) {
	return c.moveCursor(1)
}

func (c *Controller) PreviousExercise() (*ActiveSnapshot, error) {
	return c.moveCursor(-1)
}

// GoToExercise jumps the cursor to the given plan index, clamped to the
// plan bounds.
func (c *Controller) GoToExercise(index int) (*ActiveSnapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	c.setCursorLocked(index)
	return c.snapshotLocked(), nil
}

func (c *Controller) moveCursor(delta int) (*ActiveSnapshot, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	c.setCursorLocked(c.active.cursor + delta)
	return c.snapshotLocked(), nil
}

func (c *Controller) setCursorLocked(target int) {
	workout := c.active
	if target < 0 {
		target = 0
	}
	if last := len(workout.plan) - 1; target > last && last >= 0 {
		target = last
	}
	if len(workout.plan) == 0 {
		target = 0
	}
	if target != workout.cursor {
		workout.cursor = target
		workout.pending = PendingSet{}
	}
}

// DuplicateLastSet copies weight, reps, duration and RPE of the most recent
// set of the current exercise into the pending-input buffer. The warm-up and
// drop-set flags do not carry over.
func (c *Controller) DuplicateLastSet() (*PendingSet, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	workout := c.active
	if len(workout.plan) == 0 {
		return nil, ErrNoPlannedExercises
	}

	exerciseLog := workout.logs[workout.cursor]
	if len(exerciseLog.Sets) == 0 {
		return nil, ErrNoSetsYet
	}

	last := exerciseLog.Sets[len(exerciseLog.Sets)-1]
	pending := PendingSet{
		WeightKg: last.WeightKg,
		Reps:     last.Reps,
	}
	if last.DurationSeconds != nil {
		duration := *last.DurationSeconds
		pending.DurationSeconds = &duration
	}
	if last.RPE != nil {
		rpe := *last.RPE
		pending.RPE = &rpe
	}

	workout.pending = pending
	return &pending, nil
}

// CompleteWorkout ends the session, persists the end time and returns the
// summary. The rest timer is cancelled. Completing is terminal, a session
// cannot end twice.
func (c *Controller) CompleteWorkout(ctx context.Context, notes string) (*Summary, error) {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return nil, ErrNoActiveSession
	}
	workout := c.active

	endedAt := time.Now()
	if err := c.repo.Finish(ctx, workout.session.ID, endedAt, notes); err != nil {
		if errors.Is(err, ErrSessionEnded) {
			return nil, ErrSessionCompleted
		}
		return nil, fmt.Errorf("finish session: %w", err)
	}

	allSets := []strength.Set{}
	workingSets := 0
	exercisesLogged := 0
	for _, exerciseLog := range workout.logs {
		if len(exerciseLog.Sets) > 0 {
			exercisesLogged++
		}
		for _, set := range exerciseLog.Sets {
			allSets = append(allSets, strength.Set{
				WeightKg: set.WeightKg,
				Reps:     set.Reps,
				Warmup:   set.IsWarmup,
			})
			if !set.IsWarmup {
				workingSets++
			}
		}
	}

	duration := endedAt.Sub(workout.session.StartedAt)
	summary := &Summary{
		SessionID:       workout.session.ID,
		DayID:           workout.session.DayID,
		DayName:         workout.day.Name,
		StartedAt:       workout.session.StartedAt,
		EndedAt:         endedAt,
		Duration:        duration,
		TotalVolume:     strength.TotalVolume(allSets),
		WorkingSets:     workingSets,
		ExercisesLogged: exercisesLogged,
		Records:         workout.records,
		Notes:           notes,
	}

	c.timer.Stop()
	c.active = nil
	c.metrics.CounterSessionsCompleted.Inc()
	c.metrics.HistSessionDuration.Observe(duration.Seconds())
	log.Debugf("workout session %d completed: %d working sets, %.1f total volume, %d records",
		summary.SessionID, summary.WorkingSets, summary.TotalVolume, len(summary.Records))
	return summary, nil
}

// AbandonWorkout ends the session without a summary. With saveProgress the
// session keeps its logs and gets an end time, without it the session and
// everything logged is deleted. Both are terminal, the rest timer is
// cancelled.
func (c *Controller) AbandonWorkout(ctx context.Context, saveProgress bool) error {
	c.mutex.Lock()
	defer c.mutex.Unlock()

	if c.active == nil {
		return ErrNoActiveSession
	}
	workout := c.active

	if saveProgress {
		if err := c.repo.Finish(ctx, workout.session.ID, time.Now(), workout.session.Notes); err != nil {
			if errors.Is(err, ErrSessionEnded) {
				return ErrSessionCompleted
			}
			return fmt.Errorf("finish session: %w", err)
		}
	} else {
		if err := c.repo.Delete(ctx, workout.session.ID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
	}

	c.timer.Stop()
	c.active = nil
	c.metrics.CounterSessionsAbandoned.Inc()
	log.Debugf("workout session %d abandoned, save progress: %t", workout.session.ID, saveProgress)
	return nil
}

func (c *Controller) TimerState() resttimer.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	return c.timer.Snapshot()
}

func (c *Controller) PauseTimer() resttimer.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.timer.Pause()
	return c.timer.Snapshot()
}

func (c *Controller) ResumeTimer() resttimer.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.timer.Resume()
	return c.timer.Snapshot()
}

func (c *Controller) AddTimerTime(delta time.Duration) resttimer.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.timer.AddTime(delta)
	return c.timer.Snapshot()
}

func (c *Controller) SkipTimer() resttimer.Snapshot {
	c.mutex.Lock()
	defer c.mutex.Unlock()
	c.timer.Skip()
	return c.timer.Snapshot()
}

// snapshotLocked copies the mutable workout state so handlers can marshal
// it after the lock is released.
func (c *Controller) snapshotLocked() *ActiveSnapshot {
	workout := c.active
	logs := make([]ExerciseLog, len(workout.logs))
	copy(logs, workout.logs)
	for i := range logs {
		logs[i].Sets = slices.Clone(logs[i].Sets)
	}
	return &ActiveSnapshot{
		Session:         workout.session,
		Plan:            workout.plan,
		Logs:            logs,
		CurrentExercise: workout.cursor,
		Pending:         workout.pending,
		Records:         slices.Clone(workout.records),
		Resumed:         workout.resumed,
	}
}

func placeholderLogs(sessionID int, plan []splits.PlannedExercise) []ExerciseLog {
	logs := make([]ExerciseLog, 0, len(plan))
	for i, entry := range plan {
		logs = append(logs, ExerciseLog{
			SessionID:    sessionID,
			ExerciseID:   entry.ExerciseID,
			Position:     i,
			Sets:         []SetLog{},
			ExerciseName: entry.ExerciseName,
			MuscleGroup:  entry.MuscleGroup,
		})
	}
	return logs
}

func setLogs2strengthSets(sets []SetLog) []strength.Set {
	strengthSets := make([]strength.Set, 0, len(sets))
	for _, set := range sets {
		// timed sets carry no reps and take no part in the 1RM history
		if set.Reps < 1 {
			continue
		}
		strengthSets = append(strengthSets, strength.Set{
			WeightKg: set.WeightKg,
			Reps:     set.Reps,
			Warmup:   set.IsWarmup,
		})
	}
	return strengthSets
}
