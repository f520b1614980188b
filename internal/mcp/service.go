package mcp

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/2beens/gymtrack/internal/sessions"
	"github.com/2beens/gymtrack/internal/stats"
)

// SessionsRepo provides workout session listings (for dependency injection and testing).
type SessionsRepo interface {
	List(ctx context.Context, params sessions.ListParams) ([]sessions.WorkoutSession, int, error)
}

// statsAnalyzer provides training analytics (for dependency injection and testing).
type statsAnalyzer interface {
	CurrentStreak(ctx context.Context, loc *time.Location) (*stats.Streak, error)
	VolumeBetween(ctx context.Context, from, to time.Time) (*stats.VolumePeriod, error)
	ExerciseProgress(ctx context.Context, exerciseID int) (*stats.ExerciseProgress, error)
	ExerciseRecords(ctx context.Context, exerciseID int) (*stats.ExerciseRecords, error)
}

// contextService provides gymtrack context data (schema, history, records, volume,
// streak, session summaries). Used by Handler for testability.
type contextService interface {
	GetSchema(ctx context.Context) (string, error)
	GetExerciseHistory(ctx context.Context, exerciseID int, from, to *time.Time) (*stats.ExerciseProgress, error)
	GetExerciseRecords(ctx context.Context, exerciseID int) (*stats.ExerciseRecords, error)
	GetTrainingVolume(ctx context.Context, from, to time.Time) (*stats.VolumePeriod, error)
	GetCurrentStreak(ctx context.Context, loc *time.Location) (*stats.Streak, error)
	GetSessionSummaries(ctx context.Context, limit int) ([]sessions.WorkoutSession, error)
}

// ContextService holds dependencies and implements the gymtrack context business logic.
type ContextService struct {
	schema   SchemaRepo
	sessions SessionsRepo
	analyzer statsAnalyzer
}

// NewContextService builds a ContextService with the given dependencies.
func NewContextService(schemaRepo SchemaRepo, sessionsRepo SessionsRepo, analyzer statsAnalyzer) *ContextService {
	return &ContextService{
		schema:   schemaRepo,
		sessions: sessionsRepo,
		analyzer: analyzer,
	}
}

// GetSchema returns the DB schema (table names, columns, types) for gymtrack-related
// tables: exercise catalog, split planning, sessions and set logs.
func (s *ContextService) GetSchema(ctx context.Context) (string, error) {
	cols, err := s.schema.GetGymtrackColumns(ctx)
	if err != nil {
		return "", err
	}
	return formatGymtrackSchema(cols), nil
}

func formatGymtrackSchema(cols []SchemaColumn) string {
	if len(cols) == 0 {
		return "# GymTrack DB Schema\n\nNo gymtrack tables found in the database.\n"
	}

	byTable := make(map[string][]SchemaColumn)
	for _, c := range cols {
		byTable[c.TableName] = append(byTable[c.TableName], c)
	}

	tableOrder := make([]string, 0, len(byTable))
	for t := range byTable {
		tableOrder = append(tableOrder, t)
	}
	sort.Strings(tableOrder)

	var b strings.Builder
	b.WriteString("# GymTrack DB Schema\n\n")
	b.WriteString("Tables: exercise, exercise_image, workout_split, workout_day, planned_exercise, workout_session, exercise_log, set_log (schema: public).\n\n")

	for _, tableName := range tableOrder {
		tableCols := byTable[tableName]
		b.WriteString("## ")
		b.WriteString(tableName)
		b.WriteString("\n\n| Column | Type | Nullable | Default |\n|--------|------|----------|--------|\n")
		for _, c := range tableCols {
			def := "—"
			if c.ColumnDef != nil && *c.ColumnDef != "" {
				def = *c.ColumnDef
			}
			b.WriteString(fmt.Sprintf("| %s | %s | %s | %s |\n", c.ColumnName, c.DataType, c.IsNullable, def))
		}
		b.WriteString("\n")
	}

	return strings.TrimSuffix(b.String(), "\n\n") + "\n"
}

// GetExerciseHistory returns per-day stats (sets, volume, best estimated 1RM) for the
// given exercise, trimmed to the date range when one is given.
func (s *ContextService) GetExerciseHistory(ctx context.Context, exerciseID int, from, to *time.Time) (*stats.ExerciseProgress, error) {
	progress, err := s.analyzer.ExerciseProgress(ctx, exerciseID)
	if err != nil {
		return nil, err
	}
	if from == nil && to == nil {
		return progress, nil
	}

	trimmed := make(map[time.Time]stats.DayProgress)
	for day, dayProgress := range progress.Days {
		if from != nil && day.Before(*from) {
			continue
		}
		if to != nil && day.After(*to) {
			continue
		}
		trimmed[day] = dayProgress
	}
	progress.Days = trimmed
	return progress, nil
}

// GetExerciseRecords returns the all-time bests (estimated 1RM and heaviest weight
// per rep count) for the given exercise.
func (s *ContextService) GetExerciseRecords(ctx context.Context, exerciseID int) (*stats.ExerciseRecords, error) {
	return s.analyzer.ExerciseRecords(ctx, exerciseID)
}

// GetTrainingVolume returns the total working volume between the given dates.
func (s *ContextService) GetTrainingVolume(ctx context.Context, from, to time.Time) (*stats.VolumePeriod, error) {
	return s.analyzer.VolumeBetween(ctx, from, to)
}

// GetCurrentStreak returns the current training streak in the given timezone.
func (s *ContextService) GetCurrentStreak(ctx context.Context, loc *time.Location) (*stats.Streak, error) {
	return s.analyzer.CurrentStreak(ctx, loc)
}

// GetSessionSummaries returns the most recent workout sessions, newest first.
func (s *ContextService) GetSessionSummaries(ctx context.Context, limit int) ([]sessions.WorkoutSession, error) {
	if limit <= 0 {
		limit = 10
	}
	list, _, err := s.sessions.List(ctx, sessions.ListParams{
		SessionParams: sessions.SessionParams{ExcludeTestingData: true},
		Page:          1,
		Size:          limit,
	})
	return list, err
}
