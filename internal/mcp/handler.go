package mcp

import (
	"context"
	"encoding/json"
	"time"

	"github.com/modelcontextprotocol/go-sdk/mcp"
)

// Handler handles MCP tool requests and responses: parses input, calls the service, formats MCP result.
type Handler struct {
	service contextService
}

// NewHandler builds a handler with the given service.
func NewHandler(service contextService) *Handler {
	return &Handler{
		service: service,
	}
}

func errorResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
		IsError: true,
	}
}

func textResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{&mcp.TextContent{Text: text}},
	}
}

func jsonResult(v any) (*mcp.CallToolResult, error) {
	raw, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, err
	}
	return textResult(string(raw)), nil
}

// GetGymtrackSchemaTool returns the MCP tool handler for get_gymtrack_schema.
func (h *Handler) GetGymtrackSchemaTool() func(context.Context, *mcp.CallToolRequest, any) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, _ any) (*mcp.CallToolResult, any, error) {
		text, err := h.service.GetSchema(ctx)
		if err != nil {
			return errorResult("Error fetching schema: " + err.Error()), nil, nil
		}
		return textResult(text), nil, nil
	}
}

// ExerciseHistoryInput is the input for get_exercise_history.
type ExerciseHistoryInput struct {
	ExerciseID int    `json:"exercise_id" jsonschema:"Numeric id of the exercise"`
	FromDate   string `json:"from_date,omitempty" jsonschema:"Optional start date (YYYY-MM-DD)"`
	ToDate     string `json:"to_date,omitempty" jsonschema:"Optional end date (YYYY-MM-DD)"`
}

// GetExerciseHistoryTool returns the MCP tool handler for get_exercise_history.
func (h *Handler) GetExerciseHistoryTool() func(context.Context, *mcp.CallToolRequest, ExerciseHistoryInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in ExerciseHistoryInput) (*mcp.CallToolResult, any, error) {
		if in.ExerciseID <= 0 {
			return errorResult("Invalid exercise_id: must be a positive integer"), nil, nil
		}

		var from, to *time.Time
		if in.FromDate != "" {
			parsed, err := time.Parse("2006-01-02", in.FromDate)
			if err != nil {
				return errorResult("Invalid from_date: use YYYY-MM-DD"), nil, nil
			}
			from = &parsed
		}
		if in.ToDate != "" {
			parsed, err := time.Parse("2006-01-02", in.ToDate)
			if err != nil {
				return errorResult("Invalid to_date: use YYYY-MM-DD"), nil, nil
			}
			parsed = time.Date(parsed.Year(), parsed.Month(), parsed.Day(), 23, 59, 59, 999999999, parsed.Location())
			to = &parsed
		}

		progress, err := h.service.GetExerciseHistory(ctx, in.ExerciseID, from, to)
		if err != nil {
			return errorResult("Error fetching exercise history: " + err.Error()), nil, nil
		}
		res, err := jsonResult(progress)
		if err != nil {
			return errorResult("Error encoding response: " + err.Error()), nil, nil
		}
		return res, nil, nil
	}
}

// PersonalRecordsInput is the input for get_personal_records.
type PersonalRecordsInput struct {
	ExerciseID int `json:"exercise_id" jsonschema:"Numeric id of the exercise"`
}

// GetPersonalRecordsTool returns the MCP tool handler for get_personal_records.
func (h *Handler) GetPersonalRecordsTool() func(context.Context, *mcp.CallToolRequest, PersonalRecordsInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in PersonalRecordsInput) (*mcp.CallToolResult, any, error) {
		if in.ExerciseID <= 0 {
			return errorResult("Invalid exercise_id: must be a positive integer"), nil, nil
		}
		exerciseRecords, err := h.service.GetExerciseRecords(ctx, in.ExerciseID)
		if err != nil {
			return errorResult("Error fetching personal records: " + err.Error()), nil, nil
		}
		res, err := jsonResult(exerciseRecords)
		if err != nil {
			return errorResult("Error encoding response: " + err.Error()), nil, nil
		}
		return res, nil, nil
	}
}

// TrainingVolumeInput is the input for get_training_volume.
type TrainingVolumeInput struct {
	FromDate string `json:"from_date" jsonschema:"Start date (YYYY-MM-DD)"`
	ToDate   string `json:"to_date" jsonschema:"End date (YYYY-MM-DD)"`
}

// GetTrainingVolumeTool returns the MCP tool handler for get_training_volume.
func (h *Handler) GetTrainingVolumeTool() func(context.Context, *mcp.CallToolRequest, TrainingVolumeInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in TrainingVolumeInput) (*mcp.CallToolResult, any, error) {
		from, err := time.Parse("2006-01-02", in.FromDate)
		if err != nil {
			return errorResult("Invalid from_date: use YYYY-MM-DD"), nil, nil
		}
		to, err := time.Parse("2006-01-02", in.ToDate)
		if err != nil {
			return errorResult("Invalid to_date: use YYYY-MM-DD"), nil, nil
		}
		to = time.Date(to.Year(), to.Month(), to.Day(), 23, 59, 59, 999999999, to.Location())

		volume, err := h.service.GetTrainingVolume(ctx, from, to)
		if err != nil {
			return errorResult("Error fetching training volume: " + err.Error()), nil, nil
		}
		res, err := jsonResult(volume)
		if err != nil {
			return errorResult("Error encoding response: " + err.Error()), nil, nil
		}
		return res, nil, nil
	}
}

// CurrentStreakInput is the input for get_current_streak.
type CurrentStreakInput struct {
	Timezone string `json:"tz,omitempty" jsonschema:"IANA timezone for day boundaries (e.g. Europe/Berlin), defaults to the server's zone"`
}

// GetCurrentStreakTool returns the MCP tool handler for get_current_streak.
func (h *Handler) GetCurrentStreakTool() func(context.Context, *mcp.CallToolRequest, CurrentStreakInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in CurrentStreakInput) (*mcp.CallToolResult, any, error) {
		loc := time.Local
		if in.Timezone != "" {
			var err error
			loc, err = time.LoadLocation(in.Timezone)
			if err != nil {
				return errorResult("Invalid tz: use an IANA zone name (e.g. Europe/Berlin)"), nil, nil
			}
		}

		currentStreak, err := h.service.GetCurrentStreak(ctx, loc)
		if err != nil {
			return errorResult("Error fetching streak: " + err.Error()), nil, nil
		}
		res, err := jsonResult(currentStreak)
		if err != nil {
			return errorResult("Error encoding response: " + err.Error()), nil, nil
		}
		return res, nil, nil
	}
}

// SessionSummariesInput is the input for get_session_summaries.
type SessionSummariesInput struct {
	Limit int `json:"limit,omitempty" jsonschema:"Max number of sessions to return, defaults to 10"`
}

// GetSessionSummariesTool returns the MCP tool handler for get_session_summaries.
func (h *Handler) GetSessionSummariesTool() func(context.Context, *mcp.CallToolRequest, SessionSummariesInput) (*mcp.CallToolResult, any, error) {
	return func(ctx context.Context, _ *mcp.CallToolRequest, in SessionSummariesInput) (*mcp.CallToolResult, any, error) {
		summaries, err := h.service.GetSessionSummaries(ctx, in.Limit)
		if err != nil {
			return errorResult("Error fetching session summaries: " + err.Error()), nil, nil
		}
		res, err := jsonResult(summaries)
		if err != nil {
			return errorResult("Error encoding response: " + err.Error()), nil, nil
		}
		return res, nil, nil
	}
}
