package splits

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=splits_test

type splitsRepo interface {
	AddSplit(ctx context.Context, split Split) (_ *Split, err error)
	GetSplit(ctx context.Context, id int) (_ *Split, err error)
	ListSplits(ctx context.Context) (_ []Split, err error)
	ActiveSplit(ctx context.Context) (_ *Split, err error)
	Activate(ctx context.Context, id int) (err error)
	DeleteSplit(ctx context.Context, id int) (err error)
	AddDay(ctx context.Context, day Day) (_ *Day, err error)
	UpdateDay(ctx context.Context, day *Day) (err error)
	DeleteDay(ctx context.Context, id int) (err error)
	DayWithPlan(ctx context.Context, dayID int) (_ *Day, err error)
	AddPlannedExercise(ctx context.Context, plannedExercise PlannedExercise) (_ *PlannedExercise, err error)
	UpdatePlannedExercise(ctx context.Context, plannedExercise *PlannedExercise) (err error)
	DeletePlannedExercise(ctx context.Context, id int) (err error)
	ExerciseRefCount(ctx context.Context, exerciseID int) (_ int, err error)
}

type Handler struct {
	repo splitsRepo
}

func NewHandler(repo splitsRepo) *Handler {
	return &Handler{
		repo: repo,
	}
}

type ActivateSplitResponse struct {
	ActivatedID int `json:"activatedId"`
}

type DeleteSplitResponse struct {
	DeletedID int `json:"deletedId"`
}

type UpdateDayResponse struct {
	UpdatedID int `json:"updatedId"`
}

type DeleteDayResponse struct {
	DeletedID int `json:"deletedId"`
}

type UpdatePlannedExerciseResponse struct {
	UpdatedID int `json:"updatedId"`
}

type DeletePlannedExerciseResponse struct {
	DeletedID int `json:"deletedId"`
}

type ExerciseUsageResponse struct {
	ExerciseID   int `json:"exerciseId"`
	PlannedCount int `json:"plannedCount"`
}

func idFromRequest(r *http.Request, varName string) (int, error) {
	idParam := mux.Vars(r)[varName]
	if idParam == "" {
		return 0, errors.New("error, id empty")
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		return 0, errors.New("error, id NaN")
	}
	return id, nil
}

func (handler *Handler) HandleAddSplit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var split Split
	if err := json.NewDecoder(r.Body).Decode(&split); err != nil {
		log.Errorf("new split, unmarshal json params: %s", err)
		http.Error(w, "add split failed", http.StatusBadRequest)
		return
	}

	if split.Name == "" {
		http.Error(w, "error, split name is required", http.StatusBadRequest)
		return
	}
	if split.SplitType == "" {
		split.SplitType = SplitTypeCustom
	}
	if !ValidSplitType(split.SplitType) {
		http.Error(w, "error, invalid split type", http.StatusBadRequest)
		return
	}
	for _, day := range split.Days {
		if day.Name == "" {
			http.Error(w, "error, workout day name is required", http.StatusBadRequest)
			return
		}
		for _, plannedExercise := range day.Exercises {
			if plannedExercise.ExerciseID <= 0 || plannedExercise.TargetSets < 1 {
				http.Error(w, "error, planned exercise needs an exercise id and target sets", http.StatusBadRequest)
				return
			}
		}
	}

	if split.CreatedAt.IsZero() {
		split.CreatedAt = time.Now()
	}

	addedSplit, err := handler.repo.AddSplit(ctx, split)
	if err != nil {
		if errors.Is(err, ErrPlanRefMissing) {
			http.Error(w, "add split failed, unknown exercise in plan", http.StatusBadRequest)
			return
		}
		log.Errorf("add split: %s", err)
		http.Error(w, "add split failed", http.StatusInternalServerError)
		return
	}

	addedSplitJson, err := json.Marshal(addedSplit)
	if err != nil {
		log.Errorf("marshal added split: %s", err)
		http.Error(w, "add split failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("new split added: [%d] %s", addedSplit.ID, addedSplit.Name)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedSplitJson, http.StatusCreated)
}

func (handler *Handler) HandleListSplits(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.list")
	defer span.End()

	splits, err := handler.repo.ListSplits(ctx)
	if err != nil {
		log.Errorf("list splits: %s", err)
		http.Error(w, "list splits failed", http.StatusInternalServerError)
		return
	}

	splitsJson, err := json.Marshal(splits)
	if err != nil {
		log.Errorf("marshal splits: %s", err)
		http.Error(w, "list splits failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, splitsJson, http.StatusOK)
}

func (handler *Handler) HandleGetSplit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.get")
	defer span.End()

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	split, err := handler.repo.GetSplit(ctx, id)
	if err != nil {
		if errors.Is(err, ErrSplitNotFound) {
			http.Error(w, "split not found", http.StatusNotFound)
			return
		}
		log.Errorf("get split %d: %s", id, err)
		http.Error(w, "get split failed", http.StatusInternalServerError)
		return
	}

	splitJson, err := json.Marshal(split)
	if err != nil {
		log.Errorf("marshal split: %s", err)
		http.Error(w, "get split failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, splitJson, http.StatusOK)
}

func (handler *Handler) HandleActiveSplit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.active")
	defer span.End()

	split, err := handler.repo.ActiveSplit(ctx)
	if err != nil {
		if errors.Is(err, ErrSplitNotFound) {
			http.Error(w, "no active split", http.StatusNotFound)
			return
		}
		log.Errorf("get active split: %s", err)
		http.Error(w, "get active split failed", http.StatusInternalServerError)
		return
	}

	splitJson, err := json.Marshal(split)
	if err != nil {
		log.Errorf("marshal active split: %s", err)
		http.Error(w, "get active split failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, splitJson, http.StatusOK)
}

func (handler *Handler) HandleActivate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.activate")
	defer span.End()

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.Activate(ctx, id); err != nil {
		if errors.Is(err, ErrSplitNotFound) {
			http.Error(w, "split not found", http.StatusNotFound)
			return
		}
		log.Errorf("activate split %d: %s", id, err)
		http.Error(w, "activate split failed", http.StatusInternalServerError)
		return
	}

	activateRespJson, err := json.Marshal(ActivateSplitResponse{ActivatedID: id})
	if err != nil {
		log.Errorf("marshal activate split response: %s", err)
		http.Error(w, "activate split failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("split activated: %d", id)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, activateRespJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteSplit(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.delete")
	defer span.End()

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.DeleteSplit(ctx, id); err != nil {
		if errors.Is(err, ErrSplitNotFound) {
			http.Error(w, "split not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete split %d: %s", id, err)
		http.Error(w, "delete split failed", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteSplitResponse{DeletedID: id})
	if err != nil {
		log.Errorf("marshal delete split response: %s", err)
		http.Error(w, "delete split failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("split deleted: %d", id)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, deleteRespJson, http.StatusOK)
}

func (handler *Handler) HandleAddDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.new_day")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	splitID, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var day Day
	if err := json.NewDecoder(r.Body).Decode(&day); err != nil {
		log.Errorf("new workout day, unmarshal json params: %s", err)
		http.Error(w, "add workout day failed", http.StatusBadRequest)
		return
	}
	day.SplitID = splitID

	if day.Name == "" {
		http.Error(w, "error, workout day name is required", http.StatusBadRequest)
		return
	}

	addedDay, err := handler.repo.AddDay(ctx, day)
	if err != nil {
		if errors.Is(err, ErrSplitNotFound) {
			http.Error(w, "split not found", http.StatusNotFound)
			return
		}
		log.Errorf("add workout day: %s", err)
		http.Error(w, "add workout day failed", http.StatusInternalServerError)
		return
	}

	addedDayJson, err := json.Marshal(addedDay)
	if err != nil {
		log.Errorf("marshal added workout day: %s", err)
		http.Error(w, "add workout day failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("new workout day added: [%d] %s", addedDay.ID, addedDay.Name)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedDayJson, http.StatusCreated)
}

func (handler *Handler) HandleGetDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.get_day")
	defer span.End()

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	day, err := handler.repo.DayWithPlan(ctx, id)
	if err != nil {
		if errors.Is(err, ErrDayNotFound) {
			http.Error(w, "workout day not found", http.StatusNotFound)
			return
		}
		log.Errorf("get workout day %d: %s", id, err)
		http.Error(w, "get workout day failed", http.StatusInternalServerError)
		return
	}

	dayJson, err := json.Marshal(day)
	if err != nil {
		log.Errorf("marshal workout day: %s", err)
		http.Error(w, "get workout day failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, dayJson, http.StatusOK)
}

func (handler *Handler) HandleUpdateDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.update_day")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var day Day
	if err := json.NewDecoder(r.Body).Decode(&day); err != nil {
		log.Errorf("update workout day, unmarshal json params: %s", err)
		http.Error(w, "update workout day failed", http.StatusBadRequest)
		return
	}
	day.ID = id

	if day.Name == "" {
		http.Error(w, "error, workout day name is required", http.StatusBadRequest)
		return
	}

	if err := handler.repo.UpdateDay(ctx, &day); err != nil {
		if errors.Is(err, ErrDayNotFound) {
			http.Error(w, "workout day not found", http.StatusNotFound)
			return
		}
		log.Errorf("update workout day %d: %s", id, err)
		http.Error(w, "update workout day failed", http.StatusInternalServerError)
		return
	}

	updateRespJson, err := json.Marshal(UpdateDayResponse{UpdatedID: id})
	if err != nil {
		log.Errorf("marshal update workout day response: %s", err)
		http.Error(w, "update workout day failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, updateRespJson, http.StatusOK)
}

func (handler *Handler) HandleDeleteDay(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.delete_day")
	defer span.End()

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.DeleteDay(ctx, id); err != nil {
		if errors.Is(err, ErrDayNotFound) {
			http.Error(w, "workout day not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete workout day %d: %s", id, err)
		http.Error(w, "delete workout day failed", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeleteDayResponse{DeletedID: id})
	if err != nil {
		log.Errorf("marshal delete workout day response: %s", err)
		http.Error(w, "delete workout day failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("workout day deleted: %d", id)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, deleteRespJson, http.StatusOK)
}

func (handler *Handler) HandleAddPlannedExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.new_planned_exercise")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	dayID, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var plannedExercise PlannedExercise
	if err := json.NewDecoder(r.Body).Decode(&plannedExercise); err != nil {
		log.Errorf("new planned exercise, unmarshal json params: %s", err)
		http.Error(w, "add planned exercise failed", http.StatusBadRequest)
		return
	}
	plannedExercise.DayID = dayID

	if plannedExercise.ExerciseID <= 0 || plannedExercise.TargetSets < 1 {
		http.Error(w, "error, planned exercise needs an exercise id and target sets", http.StatusBadRequest)
		return
	}

	addedPlannedExercise, err := handler.repo.AddPlannedExercise(ctx, plannedExercise)
	if err != nil {
		if errors.Is(err, ErrPlanRefMissing) {
			http.Error(w, "workout day or exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("add planned exercise: %s", err)
		http.Error(w, "add planned exercise failed", http.StatusInternalServerError)
		return
	}

	addedPlannedExerciseJson, err := json.Marshal(addedPlannedExercise)
	if err != nil {
		log.Errorf("marshal added planned exercise: %s", err)
		http.Error(w, "add planned exercise failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedPlannedExerciseJson, http.StatusCreated)
}

func (handler *Handler) HandleUpdatePlannedExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.update_planned_exercise")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	var plannedExercise PlannedExercise
	if err := json.NewDecoder(r.Body).Decode(&plannedExercise); err != nil {
		log.Errorf("update planned exercise, unmarshal json params: %s", err)
		http.Error(w, "update planned exercise failed", http.StatusBadRequest)
		return
	}
	plannedExercise.ID = id

	if plannedExercise.ExerciseID <= 0 || plannedExercise.TargetSets < 1 {
		http.Error(w, "error, planned exercise needs an exercise id and target sets", http.StatusBadRequest)
		return
	}

	if err := handler.repo.UpdatePlannedExercise(ctx, &plannedExercise); err != nil {
		if errors.Is(err, ErrPlannedExerciseNotFound) {
			http.Error(w, "planned exercise not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrPlanRefMissing) {
			http.Error(w, "workout day or exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("update planned exercise %d: %s", id, err)
		http.Error(w, "update planned exercise failed", http.StatusInternalServerError)
		return
	}

	updateRespJson, err := json.Marshal(UpdatePlannedExerciseResponse{UpdatedID: id})
	if err != nil {
		log.Errorf("marshal update planned exercise response: %s", err)
		http.Error(w, "update planned exercise failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, updateRespJson, http.StatusOK)
}

func (handler *Handler) HandleDeletePlannedExercise(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.delete_planned_exercise")
	defer span.End()

	id, err := idFromRequest(r, "id")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	if err := handler.repo.DeletePlannedExercise(ctx, id); err != nil {
		if errors.Is(err, ErrPlannedExerciseNotFound) {
			http.Error(w, "planned exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete planned exercise %d: %s", id, err)
		http.Error(w, "delete planned exercise failed", http.StatusInternalServerError)
		return
	}

	deleteRespJson, err := json.Marshal(DeletePlannedExerciseResponse{DeletedID: id})
	if err != nil {
		log.Errorf("marshal delete planned exercise response: %s", err)
		http.Error(w, "delete planned exercise failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, deleteRespJson, http.StatusOK)
}

func (handler *Handler) HandleExerciseUsage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.splits.exercise_usage")
	defer span.End()

	exerciseID, err := idFromRequest(r, "exerciseId")
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	count, err := handler.repo.ExerciseRefCount(ctx, exerciseID)
	if err != nil {
		log.Errorf("exercise usage %d: %s", exerciseID, err)
		http.Error(w, "get exercise usage failed", http.StatusInternalServerError)
		return
	}

	usageJson, err := json.Marshal(ExerciseUsageResponse{
		ExerciseID:   exerciseID,
		PlannedCount: count,
	})
	if err != nil {
		log.Errorf("marshal exercise usage: %s", err)
		http.Error(w, "get exercise usage failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, usageJson, http.StatusOK)
}
