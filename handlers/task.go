package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/dto"
	"github.com/HRV220/plate-detect/middleware"
	"github.com/HRV220/plate-detect/models"
	"github.com/HRV220/plate-detect/service"
	"github.com/HRV220/plate-detect/store"
	"github.com/HRV220/plate-detect/validation"
)

const multipartMemoryLimit = 32 << 20

// TaskService is the orchestrator surface the HTTP layer needs.
type TaskService interface {
	Submit(ctx context.Context, files []service.UploadedFile) (string, error)
	Status(ctx context.Context, id string) (*models.Task, error)
}

type TaskHandler struct {
	service TaskService
	logger  *zap.Logger
}

// NewTaskHandler accepts a nil service: the handler then answers 503, which
// covers the case where the engine failed to initialize at startup.
func NewTaskHandler(service TaskService, logger *zap.Logger) *TaskHandler {
	return &TaskHandler{
		service: service,
		logger:  logger,
	}
}

// Submit accepts a multipart batch under the "files" field and answers 202
// with the task id before any inference runs.
func (h *TaskHandler) Submit(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	if h.service == nil {
		h.handleError(w, "Service unavailable", nil, traceID, http.StatusServiceUnavailable)
		return
	}

	if err := r.ParseMultipartForm(multipartMemoryLimit); err != nil {
		h.handleError(w, "Failed to parse form", err, traceID, http.StatusBadRequest)
		return
	}

	headers := r.MultipartForm.File["files"]
	files := make([]service.UploadedFile, 0, len(headers))
	for _, header := range headers {
		file, err := header.Open()
		if err != nil {
			h.handleError(w, "Failed to read file", err, traceID, http.StatusBadRequest)
			return
		}
		defer file.Close()

		files = append(files, service.UploadedFile{
			Filename: header.Filename,
			Size:     header.Size,
			Content:  file,
		})
	}

	id, err := h.service.Submit(r.Context(), files)
	if err != nil {
		switch {
		case validation.IsValidationError(err):
			h.handleError(w, "Invalid submission", err, traceID, http.StatusBadRequest)
		case errors.Is(err, store.ErrStoreUnavailable):
			h.handleError(w, "Task store unavailable", err, traceID, http.StatusServiceUnavailable)
		default:
			h.handleError(w, "Failed to create task", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	h.logger.Info("Batch accepted",
		zap.String("trace_id", traceID),
		zap.String("task_id", id),
		zap.Int("files", len(files)),
	)

	h.respondJSON(w, http.StatusAccepted, dto.TaskCreatedResponse{TaskID: id})
}

func (h *TaskHandler) Status(w http.ResponseWriter, r *http.Request) {
	traceID := middleware.GetTraceID(r.Context())

	taskID := strings.TrimPrefix(r.URL.Path, "/api/v1/tasks/")
	if taskID == "" || strings.Contains(taskID, "/") {
		h.handleError(w, "Task ID is required", nil, traceID, http.StatusBadRequest)
		return
	}

	if h.service == nil {
		h.handleError(w, "Service unavailable", nil, traceID, http.StatusServiceUnavailable)
		return
	}

	task, err := h.service.Status(r.Context(), taskID)
	if err != nil {
		switch {
		case errors.Is(err, store.ErrTaskNotFound):
			h.handleError(w, "Task not found", err, traceID, http.StatusNotFound)
		case errors.Is(err, store.ErrStoreUnavailable):
			h.handleError(w, "Task store unavailable", err, traceID, http.StatusServiceUnavailable)
		default:
			h.handleError(w, "Failed to get task status", err, traceID, http.StatusInternalServerError)
		}
		return
	}

	results := task.Results
	if results == nil {
		results = []models.FileResult{}
	}
	h.respondJSON(w, http.StatusOK, dto.TaskStatusResponse{
		TaskID:  task.ID,
		Status:  string(task.Status),
		Results: results,
		Error:   task.Error,
	})
}

func Health(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

func Root(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{
		"message": "Number plate cover service",
		"health":  "/health",
	})
}

func (h *TaskHandler) handleError(w http.ResponseWriter, message string, err error, traceID string, status int) {
	h.logger.Error(message,
		zap.String("trace_id", traceID),
		zap.Error(err),
	)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(dto.ErrorResponse{
		Error:   message,
		TraceID: traceID,
	})
}

func (h *TaskHandler) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}
