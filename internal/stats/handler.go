package stats

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=stats_test

type statsAnalyzer interface {
	CurrentStreak(ctx context.Context, loc *time.Location) (*Streak, error)
	VolumeBetween(ctx context.Context, from, to time.Time) (*VolumePeriod, error)
	ExerciseProgress(ctx context.Context, exerciseID int) (*ExerciseProgress, error)
	ExerciseRecords(ctx context.Context, exerciseID int) (*ExerciseRecords, error)
}

type Handler struct {
	analyzer statsAnalyzer
}

func NewHandler(analyzer statsAnalyzer) *Handler {
	return &Handler{
		analyzer: analyzer,
	}
}

// HandleStreak serves the current training streak. The optional tz query
// parameter sets the day boundary, defaulting to the server's zone.
func (handler *Handler) HandleStreak(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.streak")
	defer span.End()

	loc := time.Local
	if tzParam := r.URL.Query().Get("tz"); tzParam != "" {
		var err error
		loc, err = time.LoadLocation(tzParam)
		if err != nil {
			http.Error(w, "error, invalid tz parameter", http.StatusBadRequest)
			return
		}
	}

	currentStreak, err := handler.analyzer.CurrentStreak(ctx, loc)
	if err != nil {
		log.Errorf("get current streak: %s", err)
		http.Error(w, "get streak failed", http.StatusInternalServerError)
		return
	}

	streakJson, err := json.Marshal(currentStreak)
	if err != nil {
		log.Errorf("marshal streak response: %s", err)
		http.Error(w, "get streak failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, streakJson, http.StatusOK)
}

// HandleVolume serves the total working volume between two dates. Dates come
// as YYYY-MM-DD and are widened to whole days in UTC, a missing "to" means
// the same single day.
func (handler *Handler) HandleVolume(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.volume")
	defer span.End()

	fromStr := r.URL.Query().Get("from")
	if fromStr == "" {
		http.Error(w, "error, from parameter is required", http.StatusBadRequest)
		return
	}
	from, err := time.Parse("2006-01-02", fromStr)
	if err != nil {
		http.Error(w, "invalid from format (expected YYYY-MM-DD)", http.StatusBadRequest)
		return
	}
	from = time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)

	to := time.Date(from.Year(), from.Month(), from.Day(), 23, 59, 59, 999999999, time.UTC)
	if toStr := r.URL.Query().Get("to"); toStr != "" {
		toParsed, err := time.Parse("2006-01-02", toStr)
		if err != nil {
			http.Error(w, "invalid to format (expected YYYY-MM-DD)", http.StatusBadRequest)
			return
		}
		to = time.Date(toParsed.Year(), toParsed.Month(), toParsed.Day(), 23, 59, 59, 999999999, time.UTC)
	}
	if to.Before(from) {
		http.Error(w, "error, to is before from", http.StatusBadRequest)
		return
	}

	volume, err := handler.analyzer.VolumeBetween(ctx, from, to)
	if err != nil {
		log.Errorf("get volume between %s and %s: %s", fromStr, to.Format("2006-01-02"), err)
		http.Error(w, "get volume failed", http.StatusInternalServerError)
		return
	}

	volumeJson, err := json.Marshal(volume)
	if err != nil {
		log.Errorf("marshal volume response: %s", err)
		http.Error(w, "get volume failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, volumeJson, http.StatusOK)
}

func (handler *Handler) HandleExerciseProgress(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.exerciseProgress")
	defer span.End()

	id, ok := exerciseIDFromRequest(w, r)
	if !ok {
		return
	}

	progress, err := handler.analyzer.ExerciseProgress(ctx, id)
	if err != nil {
		log.Errorf("get progress for exercise %d: %s", id, err)
		http.Error(w, "get exercise progress failed", http.StatusInternalServerError)
		return
	}

	progressJson, err := json.Marshal(progress)
	if err != nil {
		log.Errorf("marshal progress response: %s", err)
		http.Error(w, "get exercise progress failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, progressJson, http.StatusOK)
}

func (handler *Handler) HandleExerciseRecords(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.stats.exerciseRecords")
	defer span.End()

	id, ok := exerciseIDFromRequest(w, r)
	if !ok {
		return
	}

	exerciseRecords, err := handler.analyzer.ExerciseRecords(ctx, id)
	if err != nil {
		log.Errorf("get records for exercise %d: %s", id, err)
		http.Error(w, "get exercise records failed", http.StatusInternalServerError)
		return
	}

	recordsJson, err := json.Marshal(exerciseRecords)
	if err != nil {
		log.Errorf("marshal records response: %s", err)
		http.Error(w, "get exercise records failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, recordsJson, http.StatusOK)
}

func exerciseIDFromRequest(w http.ResponseWriter, r *http.Request) (int, bool) {
	idStr := mux.Vars(r)["id"]
	if idStr == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return 0, false
	}
	id, err := strconv.Atoi(idStr)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return 0, false
	}
	return id, true
}
