package exercises

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/2beens/gymtrack/internal/images"
	"github.com/2beens/gymtrack/internal/telemetry/tracing"
	"github.com/2beens/gymtrack/pkg"

	"github.com/gorilla/mux"
	log "github.com/sirupsen/logrus"
)

//go:generate mockgen -source=$GOFILE -destination=handler_mocks_test.go -package=exercises_test

type exercisesRepo interface {
	Add(ctx context.Context, exercise Exercise) (_ *Exercise, err error)
	Get(ctx context.Context, id int) (_ *Exercise, err error)
	ListAll(ctx context.Context, params ExerciseParams) (_ []Exercise, err error)
	List(ctx context.Context, params ListParams) (_ []Exercise, total int, err error)
	Update(ctx context.Context, exercise *Exercise) (err error)
	Delete(ctx context.Context, id int) (err error)
	AddImage(ctx context.Context, exerciseID int, path string) (_ *Image, err error)
	GetImage(ctx context.Context, id int64) (_ *Image, err error)
	DeleteImage(ctx context.Context, id int64) (err error)
}

type imageStore interface {
	Save(ctx context.Context, extension string, src io.Reader) (_ string, err error)
	Open(ctx context.Context, fileName string) (_ io.ReadCloser, err error)
	Delete(ctx context.Context, fileName string) (err error)
}

type Handler struct {
	store imageStore // exercise images live on disk, only metadata in the repo
	repo  exercisesRepo
}

func NewHandler(
	store imageStore,
	repo exercisesRepo,
) *Handler {
	return &Handler{
		store: store,
		repo:  repo,
	}
}

type UpdateExerciseResponse struct {
	UpdatedID int `json:"updatedId"`
}

type DeleteExerciseResponse struct {
	DeletedID int `json:"deletedId"`
}

type SavedImageResponse struct {
	ID int64 `json:"id"`
}

type ListResponse struct {
	Exercises []Exercise `json:"exercises"`
	Total     int        `json:"total"`
}

func (handler *Handler) HandleAdd(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.new")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	var exercise Exercise
	if err := json.NewDecoder(r.Body).Decode(&exercise); err != nil {
		log.Errorf("new exercise, unmarshal json params: %s", err)
		http.Error(w, "add exercise failed", http.StatusBadRequest)
		return
	}

	if exercise.Name == "" || exercise.MuscleGroup == "" {
		http.Error(w, "error, exercise name and muscle group are required", http.StatusBadRequest)
		return
	}

	exercise.MuscleGroup = strings.ToLower(exercise.MuscleGroup)
	if !ValidMuscleGroup(exercise.MuscleGroup) {
		http.Error(w, "error, invalid muscle group", http.StatusBadRequest)
		return
	}

	if exercise.ExerciseType == "" {
		exercise.ExerciseType = TypeWeightAndReps
	}
	if !ValidExerciseType(exercise.ExerciseType) {
		http.Error(w, "error, invalid exercise type", http.StatusBadRequest)
		return
	}

	if exercise.CreatedAt.IsZero() {
		exercise.CreatedAt = time.Now()
	}

	addedExercise, err := handler.repo.Add(ctx, exercise)
	if err != nil {
		if errors.Is(err, ErrExerciseExists) {
			http.Error(w, "add exercise failed, already exists", http.StatusConflict)
			return
		}
		log.Errorf("add exercise: %s", err)
		http.Error(w, "add exercise failed", http.StatusInternalServerError)
		return
	}

	addedExerciseJson, err := json.Marshal(addedExercise)
	if err != nil {
		log.Errorf("marshal added exercise: %s", err)
		http.Error(w, "add exercise failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("new exercise added: [%d] %s", addedExercise.ID, addedExercise.Name)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, addedExerciseJson, http.StatusCreated)
}

func (handler *Handler) HandleGet(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.get")
	defer span.End()

	vars := mux.Vars(r)
	idParam := vars["id"]
	if idParam == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	exercise, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			http.Error(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("get exercise %d: %s", id, err)
		http.Error(w, "get exercise failed", http.StatusInternalServerError)
		return
	}

	exerciseJson, err := json.Marshal(exercise)
	if err != nil {
		log.Errorf("marshal exercise: %s", err)
		http.Error(w, "get exercise failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, exerciseJson, http.StatusOK)
}

func (handler *Handler) HandleListAll(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.listAll")
	defer span.End()

	onlyCustom := false
	if onlyCustomStr := r.URL.Query().Get("only_custom"); onlyCustomStr != "" {
		var err error
		onlyCustom, err = strconv.ParseBool(onlyCustomStr)
		if err != nil {
			log.Errorf("failed to parse only_custom param: %s", err)
			http.Error(w, "failed to parse only_custom param", http.StatusBadRequest)
			return
		}
	}

	exercises, err := handler.repo.ListAll(ctx, ExerciseParams{
		MuscleGroup:  strings.ToLower(r.URL.Query().Get("group")),
		ExerciseType: r.URL.Query().Get("type"),
		Search:       r.URL.Query().Get("search"),
		OnlyCustom:   onlyCustom,
	})
	if err != nil {
		log.Errorf("list exercises: %s", err)
		http.Error(w, "list exercises failed", http.StatusInternalServerError)
		return
	}

	exercisesJson, err := json.Marshal(exercises)
	if err != nil {
		log.Errorf("marshal exercises: %s", err)
		http.Error(w, "list exercises failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, exercisesJson, http.StatusOK)
}

func (handler *Handler) HandleListPage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.list")
	defer span.End()

	vars := mux.Vars(r)
	page, err := strconv.Atoi(vars["page"])
	if err != nil {
		log.Tracef("handle get exercises page, from <page> param: %s", err)
		http.Error(w, "parse form error, parameter <page>", http.StatusBadRequest)
		return
	}
	size, err := strconv.Atoi(vars["size"])
	if err != nil {
		log.Tracef("handle get exercises page, from <size> param: %s", err)
		http.Error(w, "parse form error, parameter <size>", http.StatusBadRequest)
		return
	}

	if page < 1 {
		http.Error(w, "invalid page (has to be non-zero value)", http.StatusBadRequest)
		return
	}
	if size < 1 {
		http.Error(w, "invalid size (has to be non-zero value)", http.StatusBadRequest)
		return
	}

	exercises, total, err := handler.repo.List(ctx, ListParams{
		ExerciseParams: ExerciseParams{
			MuscleGroup:  strings.ToLower(r.URL.Query().Get("group")),
			ExerciseType: r.URL.Query().Get("type"),
		},
		Page: page,
		Size: size,
	})
	if err != nil {
		log.Errorf("list exercises page: %s", err)
		http.Error(w, "list exercises failed", http.StatusInternalServerError)
		return
	}

	listResponseJson, err := json.Marshal(ListResponse{
		Exercises: exercises,
		Total:     total,
	})
	if err != nil {
		log.Errorf("marshal exercises page: %s", err)
		http.Error(w, "list exercises failed", http.StatusInternalServerError)
		return
	}
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, listResponseJson, http.StatusOK)
}

func (handler *Handler) HandleUpdate(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.update")
	defer span.End()

	if r.Header.Get("Content-Type") != "application/json" {
		http.Error(w, "invalid content type", http.StatusBadRequest)
		return
	}

	vars := mux.Vars(r)
	idParam := vars["id"]
	if idParam == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	var exercise Exercise
	if err := json.NewDecoder(r.Body).Decode(&exercise); err != nil {
		log.Errorf("update exercise, unmarshal json params: %s", err)
		http.Error(w, "update exercise failed", http.StatusBadRequest)
		return
	}
	exercise.ID = id

	if exercise.Name == "" || exercise.MuscleGroup == "" {
		http.Error(w, "error, exercise name and muscle group are required", http.StatusBadRequest)
		return
	}

	exercise.MuscleGroup = strings.ToLower(exercise.MuscleGroup)
	if !ValidMuscleGroup(exercise.MuscleGroup) {
		http.Error(w, "error, invalid muscle group", http.StatusBadRequest)
		return
	}
	if !ValidExerciseType(exercise.ExerciseType) {
		http.Error(w, "error, invalid exercise type", http.StatusBadRequest)
		return
	}

	if err := handler.repo.Update(ctx, &exercise); err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			http.Error(w, "exercise not found", http.StatusNotFound)
			return
		}
		if errors.Is(err, ErrExerciseImmutable) {
			http.Error(w, "update exercise failed, built-in exercise", http.StatusForbidden)
			return
		}
		log.Errorf("update exercise %d: %s", id, err)
		http.Error(w, "update exercise failed", http.StatusInternalServerError)
		return
	}

	updateRespJson, err := json.Marshal(UpdateExerciseResponse{UpdatedID: id})
	if err != nil {
		log.Errorf("marshal update exercise response: %s", err)
		http.Error(w, "update exercise failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("exercise updated: [%d] %s", exercise.ID, exercise.Name)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, updateRespJson, http.StatusOK)
}

func (handler *Handler) HandleDelete(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.delete")
	defer span.End()

	vars := mux.Vars(r)
	idParam := vars["id"]
	if idParam == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	// fetched first so the image files can be removed from disk after the
	// metadata rows are gone
	exercise, err := handler.repo.Get(ctx, id)
	if err != nil {
		if errors.Is(err, ErrExerciseNotFound) {
			http.Error(w, "exercise not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete exercise, get %d: %s", id, err)
		http.Error(w, "delete exercise failed", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.Delete(ctx, id); err != nil {
		if errors.Is(err, ErrExerciseInUse) {
			http.Error(w, "delete exercise failed, used by workout plans or logged sets", http.StatusConflict)
			return
		}
		if errors.Is(err, ErrExerciseImmutable) {
			http.Error(w, "delete exercise failed, built-in exercise", http.StatusForbidden)
			return
		}
		log.Errorf("delete exercise %d: %s", id, err)
		http.Error(w, "delete exercise failed", http.StatusInternalServerError)
		return
	}

	for _, image := range exercise.Images {
		if err := handler.store.Delete(ctx, image.Path); err != nil {
			log.Errorf("delete exercise, remove image file %s: %s", image.Path, err)
		}
	}

	deleteRespJson, err := json.Marshal(DeleteExerciseResponse{DeletedID: id})
	if err != nil {
		log.Errorf("marshal delete exercise response: %s", err)
		http.Error(w, "delete exercise failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("exercise deleted: %d", id)
	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, deleteRespJson, http.StatusOK)
}

func (handler *Handler) HandleUploadImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.upload_image")
	defer span.End()

	vars := mux.Vars(r)
	idParam := vars["id"]
	if idParam == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.Atoi(idParam)
	if err != nil {
		http.Error(w, "error, id NaN", http.StatusBadRequest)
		return
	}

	if _, err := handler.repo.Get(ctx, id); err != nil {
		log.Errorf("upload image, get exercise: %s", err)
		http.Error(w, "upload image failed, exercise not found", http.StatusNotFound)
		return
	}

	file, header, err := r.FormFile("image")
	if err != nil {
		log.Errorf("upload image, get file from form: %s", err)
		http.Error(w, "upload image failed", http.StatusBadRequest)
		return
	}
	defer func() {
		if err := file.Close(); err != nil {
			log.Errorf("upload image, close file: %s", err)
		}
	}()

	log.Debugf(
		"upload image, filename: %s, size: %d, content-type: %s",
		header.Filename, header.Size, header.Header["Content-Type"],
	)

	fileName, err := handler.store.Save(ctx, filepath.Ext(header.Filename), file)
	if err != nil {
		if errors.Is(err, images.ErrUnsupportedImage) {
			http.Error(w, "upload image failed, unsupported image type", http.StatusBadRequest)
			return
		}
		log.Errorf("upload image, save file: %s", err)
		http.Error(w, "upload image failed", http.StatusInternalServerError)
		return
	}

	image, err := handler.repo.AddImage(ctx, id, fileName)
	if err != nil {
		log.Errorf("upload image, save image metadata: %s", err)
		if delErr := handler.store.Delete(ctx, fileName); delErr != nil {
			log.Errorf("upload image, remove orphaned file %s: %s", fileName, delErr)
		}
		http.Error(w, "upload image failed", http.StatusInternalServerError)
		return
	}

	savedImageJson, err := json.Marshal(SavedImageResponse{ID: image.ID})
	if err != nil {
		log.Errorf("upload image, marshal saved image: %s", err)
		http.Error(w, "upload image failed", http.StatusInternalServerError)
		return
	}

	pkg.WriteResponseBytes(w, pkg.ContentType.JSON, savedImageJson, http.StatusCreated)
}

func (handler *Handler) HandleGetImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.get_image")
	defer span.End()

	vars := mux.Vars(r)
	idParam := vars["id"]
	if idParam == "" {
		http.Error(w, "error, id empty", http.StatusBadRequest)
		return
	}
	id, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		http.Error(w, "error, image ID invalid", http.StatusBadRequest)
		return
	}

	image, err := handler.repo.GetImage(ctx, id)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		log.Errorf("get image %d: %s", id, err)
		http.Error(w, "get image failed", http.StatusInternalServerError)
		return
	}

	imageFile, err := handler.store.Open(ctx, image.Path)
	if err != nil {
		if errors.Is(err, images.ErrImageNotFound) {
			http.Error(w, "image not found", http.StatusNotFound)
			return
		}
		log.Errorf("get image %d, open %s: %s", id, image.Path, err)
		http.Error(w, "get image failed", http.StatusInternalServerError)
		return
	}
	defer func() {
		if err := imageFile.Close(); err != nil {
			log.Errorf("get image, close file: %s", err)
		}
	}()

	contentType, err := images.ContentTypeFor(image.Path)
	if err != nil {
		log.Errorf("get image %d: %s", id, err)
		http.Error(w, "get image failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("image %s found, serving...", image.Path)

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, imageFile); err != nil {
		log.Errorf("get image, write response: %s", err)
	}
}

func (handler *Handler) HandleDeleteImage(w http.ResponseWriter, r *http.Request) {
	ctx, span := tracing.GlobalTracer.Start(r.Context(), "handler.exercises.delete_image")
	defer span.End()

	vars := mux.Vars(r)
	idParam := vars["id"]
	if idParam == "" {
		http.Error(w, "error, image ID empty", http.StatusBadRequest)
		return
	}
	imageId, err := strconv.ParseInt(idParam, 10, 64)
	if err != nil {
		http.Error(w, "error, image ID invalid", http.StatusBadRequest)
		return
	}

	image, err := handler.repo.GetImage(ctx, imageId)
	if err != nil {
		if errors.Is(err, ErrImageNotFound) {
			http.Error(w, "delete image failed - not found", http.StatusNotFound)
			return
		}
		log.Errorf("delete image, get %d: %s", imageId, err)
		http.Error(w, "delete image failed", http.StatusInternalServerError)
		return
	}

	if err := handler.repo.DeleteImage(ctx, imageId); err != nil {
		log.Errorf("delete image: %s", err)
		http.Error(w, "delete image failed", http.StatusInternalServerError)
		return
	}

	if err := handler.store.Delete(ctx, image.Path); err != nil {
		log.Errorf("delete image, remove file %s: %s", image.Path, err)
		http.Error(w, "delete image failed", http.StatusInternalServerError)
		return
	}

	log.Debugf("image %d deleted", imageId)
	w.WriteHeader(http.StatusNoContent)
}
