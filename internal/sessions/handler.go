package sessions

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/gymtrack/internal/records"
	"github.com/2beens/gymtrack/internal/resttimer"
	"github.com/2beens/gymtrack/internal/splits"
	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=sessions_test

type workoutEngine interface {
	Start(ctx context.Context, day splits.Day, plan []splits.PlannedExercise) (*ActiveSnapshot, error)
	Current() (*ActiveSnapshot, error)
	LogSet(ctx context.Context, params LogSetParams) (*SetLog, *records.Result, error)
	EditSet(ctx context.Context, setNumber int, params LogSetParams) (*SetLog, error)
	DeleteSet(ctx context.Context, setNumber int) error
	NextExercise() (*ActiveSnapshot, error)
	PreviousExercise() (*ActiveSnapshot, error)
	GoToExercise(index int) (*ActiveSnapshot, error)
	DuplicateLastSet() (*PendingSet, error)
	CompleteWorkout(ctx context.Context, notes string) (*Summary, error)
	AbandonWorkout(ctx context.Context, saveProgress bool) error
	TimerState() resttimer.Snapshot
	PauseTimer() resttimer.Snapshot
	ResumeTimer() resttimer.Snapshot
	AddTimerTime(delta time.Duration) resttimer.Snapshot
	SkipTimer() resttimer.Snapshot
}

type planRepo interface {
	DayWithPlan(ctx context.Context, dayID int) (_ *splits.Day, err error)
}

type historyRepo interface {
	SessionDetail(ctx context.Context, id int) (_ *SessionDetail, err error)
	List(ctx context.Context, params ListParams) (_ []WorkoutSession, total int, err error)
}

type Handler struct {
	engine  workoutEngine
	plans   planRepo
	history historyRepo
}

func NewHandler(engine workoutEngine, plans planRepo, history historyRepo) *Handler {
	return &Handler{
		engine:  engine,
		plans:   plans,
		history: history,
	}
}

type StartSessionRequest struct {
	DayID int `json:"dayId"`
}

type LogSetResponse struct {
	Set    SetLog          `json:"set"`
	Record *records.Result `json:"record,omitempty"`
}

type DeleteSetResponse struct {
	DeletedSetNumber int `json:"deletedSetNumber"`
}

type CompleteSessionRequest struct {
	Notes string `json:"notes"`
}

type AbandonSessionRequest struct {
	SaveProgress bool `json:"saveProgress"`
}

type AbandonSessionResponse struct {
	Saved bool `json:"saved"`
}

type AddTimerTimeRequest struct {
	Seconds int `json:"seconds"`
}

// TimerResponse is the rest timer snapshot in client-friendly units.
type TimerResponse struct {
	State            resttimer.State `json:"state"`
	RemainingSeconds float64         `json:"remainingSeconds"`
	TotalSeconds     float64         `json:"totalSeconds"`
	Progress         float64         `json:"progress"`
}

func timerResponse(snapshot resttimer.Snapshot) TimerResponse {
	return TimerResponse{
		State:            snapshot.State,
		RemainingSeconds: snapshot.Remaining.Seconds(),
		TotalSeconds:     snapshot.Total.Seconds(),
		Progress:         snapshot.Progress,
	}
}

type ListResponse struct {
	Sessions []WorkoutSession `json:"sessions"`
	Total    int              `json:"total"`
}

// writeEngineError maps engine errors to status codes: invalid input to 400,
// missing things to 404, state conflicts to 409, the rest to 500.
func writeEngineError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, ErrInvalidSet),
		errors.Is(err, ErrNoPlannedExercises),
		errors.Is(err, ErrNoSetsYet):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSetNotFound),
		errors.Is(err, ErrSessionNotFound):
		http.Error(w, err.Error(), http.StatusNotFound)
	case errors.Is(err, ErrNoActiveSession),
		errors.Is(err, ErrSessionInProgress),
		errors.Is(err, ErrSessionCompleted):
		http.Error(w, err.Error(), http.StatusConflict)
	default:
		log.Errorf("%s: %s", op, err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
	}
}

func (handler *Handler) writeJson(w http.ResponseWriter, op string, payload any, statusCode int) {
	payloadJson, err := json.Marshal(payload)
	if err != nil {
		log.Errorf("marshal %s response: %s", op, err)
		http.Error(w, op+" failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, payloadJson, statusCode)
}

// HandleStart starts a workout for the requested day, or resumes the one
// already in progress for it.
func (handler *Handler) HandleStart(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.start")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req StartSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("start session, unmarshal json params: %s", err)
		http.Error(w, "start session failed", http.StatusBadRequest)
		return
	}
	if req.DayID < 1 {
		http.Error(w, "error, day id is required", http.StatusBadRequest)
		return
	}

	day, err := handler.plans.DayWithPlan(ctx, req.DayID)
	if err != nil {
		if errors.Is(err, splits.ErrDayNotFound) {
			http.Error(w, "workout day not found", http.StatusNotFound)
			return
		}
		log.Errorf("start session, load day %d: %s", req.DayID, err)
		http.Error(w, "start session failed", http.StatusInternalServerError)
		return
	}

	snapshot, err := handler.engine.Start(ctx, *day, day.Exercises)
	if err != nil {
		writeEngineError(w, "start session", err)
		return
	}
	handler.writeJson(w, "start session", snapshot, http.StatusOK)
}

// HandleCurrent serves the live workout state.
func (handler *Handler) HandleCurrent(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.current")
	defer span.End()

	snapshot, err := handler.engine.Current()
	if err != nil {
		if errors.Is(err, ErrNoActiveSession) {
			http.Error(w, "no active session", http.StatusNotFound)
			return
		}
		writeEngineError(w, "get current session", err)
		return
	}
	handler.writeJson(w, "get current session", snapshot, http.StatusOK)
}

func (handler *Handler) HandleLogSet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.logset")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var params LogSetParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Errorf("log set, unmarshal json params: %s", err)
		http.Error(w, "log set failed", http.StatusBadRequest)
		return
	}

	set, record, err := handler.engine.LogSet(ctx, params)
	if err != nil {
		writeEngineError(w, "log set", err)
		return
	}
	handler.writeJson(w, "log set", LogSetResponse{Set: *set, Record: record}, http.StatusCreated)
}

func (handler *Handler) HandleEditSet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.editset")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	setNumber, err := setNumberFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var params LogSetParams
	if err := json.NewDecoder(r.Body).Decode(&params); err != nil {
		log.Errorf("edit set, unmarshal json params: %s", err)
		http.Error(w, "edit set failed", http.StatusBadRequest)
		return
	}

	set, err := handler.engine.EditSet(ctx, setNumber, params)
	if err != nil {
		writeEngineError(w, "edit set", err)
		return
	}
	handler.writeJson(w, "edit set", set, http.StatusOK)
}

func (handler *Handler) HandleDeleteSet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.deleteset")
	defer span.End()

	setNumber, err := setNumberFromRequest(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.engine.DeleteSet(ctx, setNumber); err != nil {
		writeEngineError(w, "delete set", err)
		return
	}
	handler.writeJson(w, "delete set", DeleteSetResponse{DeletedSetNumber: setNumber}, http.StatusOK)
}

func (handler *Handler) HandleNextExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.next")
	defer span.End()

	snapshot, err := handler.engine.NextExercise()
	if err != nil {
		writeEngineError(w, "next exercise", err)
		return
	}
	handler.writeJson(w, "next exercise", snapshot, http.StatusOK)
}

func (handler *Handler) HandlePreviousExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.previous")
	defer span.End()

	snapshot, err := handler.engine.PreviousExercise()
	if err != nil {
		writeEngineError(w, "previous exercise", err)
		return
	}
	handler.writeJson(w, "previous exercise", snapshot, http.StatusOK)
}

func (handler *Handler) HandleGoToExercise(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.goto")
	defer span.End()

	indexParam := mux.Vars(r)["index"]
	if indexParam == "" {
		http.Error(w, "error, index empty", http.StatusBadRequest)
		return
	}
	index, err := strconv.Atoi(indexParam)
	if err != nil {
		http.Error(w, "error, index NaN", http.StatusBadRequest)
		return
	}

	snapshot, err := handler.engine.GoToExercise(index)
	if err != nil {
		writeEngineError(w, "go to exercise", err)
		return
	}
	handler.writeJson(w, "go to exercise", snapshot, http.StatusOK)
}

func (handler *Handler) HandleDuplicateLastSet(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.duplicatelast")
	defer span.End()

	pending, err := handler.engine.DuplicateLastSet()
	if err != nil {
		writeEngineError(w, "duplicate last set", err)
		return
	}
	handler.writeJson(w, "duplicate last set", pending, http.StatusOK)
}

// HandleComplete ends the workout and serves the summary. The notes body is
// optional.
func (handler *Handler) HandleComplete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.complete")
	defer span.End()

	var req CompleteSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Errorf("complete session, unmarshal json params: %s", err)
		http.Error(w, "complete session failed", http.StatusBadRequest)
		return
	}

	summary, err := handler.engine.CompleteWorkout(ctx, req.Notes)
	if err != nil {
		writeEngineError(w, "complete session", err)
		return
	}
	handler.writeJson(w, "complete session", summary, http.StatusOK)
}

func (handler *Handler) HandleAbandon(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.abandon")
	defer span.End()

	var req AbandonSessionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		log.Errorf("abandon session, unmarshal json params: %s", err)
		http.Error(w, "abandon session failed", http.StatusBadRequest)
		return
	}

	if err := handler.engine.AbandonWorkout(ctx, req.SaveProgress); err != nil {
		writeEngineError(w, "abandon session", err)
		return
	}
	handler.writeJson(w, "abandon session", AbandonSessionResponse{Saved: req.SaveProgress}, http.StatusOK)
}

func (handler *Handler) HandleTimer(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.timer")
	defer span.End()

	handler.writeJson(w, "get timer", timerResponse(handler.engine.TimerState()), http.StatusOK)
}

func (handler *Handler) HandleTimerPause(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.timer.pause")
	defer span.End()

	handler.writeJson(w, "pause timer", timerResponse(handler.engine.PauseTimer()), http.StatusOK)
}

func (handler *Handler) HandleTimerResume(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.timer.resume")
	defer span.End()

	handler.writeJson(w, "resume timer", timerResponse(handler.engine.ResumeTimer()), http.StatusOK)
}

// HandleTimerAdd adjusts the running countdown, seconds may be negative.
func (handler *Handler) HandleTimerAdd(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.timer.add")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var req AddTimerTimeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Errorf("adjust timer, unmarshal json params: %s", err)
		http.Error(w, "adjust timer failed", http.StatusBadRequest)
		return
	}
	if req.Seconds == 0 {
		http.Error(w, "error, seconds must not be 0", http.StatusBadRequest)
		return
	}

	snapshot := handler.engine.AddTimerTime(time.Duration(req.Seconds) * time.Second)
	handler.writeJson(w, "adjust timer", timerResponse(snapshot), http.StatusOK)
}

func (handler *Handler) HandleTimerSkip(w http.ResponseWriter, r *http.Request) {
	_, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.timer.skip")
	defer span.End()

	handler.writeJson(w, "skip timer", timerResponse(handler.engine.SkipTimer()), http.StatusOK)
}

// HandleGet serves one finished or running session with all logs and sets.
func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.get")
	defer span.End()

	idParam := mux.Vars(r)["id"]
	if idParam == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	detail, err := handler.history.SessionDetail(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			http.Error(w, "session not found", http.StatusNotFound)
			return
		}
		log.Errorf("get session %d: %s", id, err)
		http.Error(w, "get session failed", http.StatusInternalServerError)
		return
	}
	handler.writeJson(w, "get session", detail, http.StatusOK)
}

// HandleListPage serves one page of the session history.
func (handler *Handler) HandleListPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.sessions.list")
	defer span.End()

	vars := mux.Vars(r)

	pageStr := vars["page"]
	if pageStr == "" {
		http.Error(w, "error, page empty", http.StatusBadRequest)
		return
	}
	page, err := strconv.Atoi(pageStr)
	if err != nil {
		log.Tracef("handle list sessions, from <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	sizeStr := vars["size"]
	if sizeStr == "" {
		http.Error(w, "error, size empty", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(sizeStr)
	if err != nil {
		log.Tracef("handle list sessions, from <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}
	if page < 1 {
		http.Error(w, "error, page must be greater than 0", http.StatusBadRequest)
		return
	}
	if size < 1 {
		http.Error(w, "error, size must be greater than 0", http.StatusBadRequest)
		return
	}

	params := ListParams{
		Page: page,
		Size: size,
	}
	if excludeTestingStr := r.URL.Query().Get("exclude_testing"); excludeTestingStr != "" {
		excludeTesting, err := strconv.ParseBool(excludeTestingStr)
		if err != nil {
			http.Error(w, "error, invalid exclude_testing parameter", http.StatusBadRequest)
			return
		}
		params.ExcludeTestingData = excludeTesting
	}

	sessions, total, err := handler.history.List(ctx, params)
	if err != nil {
		log.Errorf("list sessions: %s", err)
		http.Error(w, "list sessions failed", http.StatusInternalServerError)
		return
	}
	handler.writeJson(w, "list sessions", ListResponse{Sessions: sessions, Total: total}, http.StatusOK)
}

func setNumberFromRequest(r *http.Request) (int, error) {
	numberParam := mux.Vars(r)["number"]
	if numberParam == "" {
		return 0, errors.New("error, set number empty")
	}
	number, err := strconv.Atoi(numberParam)
	if err != nil {
		return 0, errors.New("error, set number NaN")
	}
	return number, nil
}
