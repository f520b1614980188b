package mcp

import (
	"github.com/2beens/gymtrack/internal/sessions"
	"github.com/2beens/gymtrack/internal/stats"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// NewServer builds an MCP server with gymtrack tools: schema, exercise history,
// personal records, training volume, current streak, session summaries.
// Used by the main backend when mounting MCP at /mcp (internal/server).
func NewServer(pool *pgxpool.Pool, sessionsRepo *sessions.Repo) *mcp.Server {
	analyzer := stats.NewAnalyzer(sessionsRepo)
	svc := NewContextService(NewPoolSchemaRepo(pool), sessionsRepo, analyzer)
	h := NewHandler(svc)
	s := mcp.NewServer(&mcp.Implementation{
		Name:    "gymtrack-context",
		Version: "1.0.0",
	}, nil)

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_gymtrack_schema",
		Description: "Returns the DB schema for gymtrack tables (exercise, exercise_image, workout_split, workout_day, planned_exercise, workout_session, exercise_log, set_log): table names, columns, types, nullable, default. Use when developing the gymtrack app and you need the actual backend schema.",
	}, h.GetGymtrackSchemaTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_exercise_history",
		Description: "Returns per-day stats (sets, volume, best estimated 1RM) for an exercise. Args: exercise_id (numeric); optional: from_date, to_date (YYYY-MM-DD). Use when you need progression over time (e.g. how has bench press improved).",
	}, h.GetExerciseHistoryTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_personal_records",
		Description: "Returns the all-time personal records for an exercise: best estimated 1RM (weight, reps, when) and the heaviest weight lifted per rep count. Arg: exercise_id (numeric). Use when you need someone's current bests.",
	}, h.GetPersonalRecordsTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_training_volume",
		Description: "Returns the total working volume (weight times reps, warm-ups excluded) between two dates. Args: from_date, to_date (YYYY-MM-DD). Use when analyzing training load over a period.",
	}, h.GetTrainingVolumeTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_current_streak",
		Description: "Returns the current training streak in consecutive days. Optional arg: tz (IANA zone name for day boundaries, e.g. Europe/Berlin). Use when you want to know how many days in a row were trained.",
	}, h.GetCurrentStreakTool())

	mcp.AddTool(s, &mcp.Tool{
		Name:        "get_session_summaries",
		Description: "Returns the most recent workout sessions (day, start and end time, notes), newest first. Optional arg: limit (defaults to 10). Use when you need an overview of recent workouts.",
	}, h.GetSessionSummariesTool())

	return s
}
