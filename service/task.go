package service

import (
	"context"
	"fmt"
	"image"
	"io"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/disintegration/imaging"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/detector"
	"github.com/HRV220/plate-detect/models"
	"github.com/HRV220/plate-detect/overlay"
	"github.com/HRV220/plate-detect/pool"
	"github.com/HRV220/plate-detect/storage"
	"github.com/HRV220/plate-detect/store"
	"github.com/HRV220/plate-detect/validation"
)

// Detector is the batch detection boundary (see the detector package).
type Detector interface {
	Detect(ctx context.Context, images []image.Image) ([]detector.Detection, error)
}

// Notifier receives the terminal outcome of a task, best-effort.
type Notifier interface {
	Dispatch(ctx context.Context, task *models.Task, outputDir string)
}

// UploadedFile is one validated-to-be-readable submission entry. Content
// must be seekable so the type sniffer can rewind it.
type UploadedFile struct {
	Filename string
	Size     int64
	Content  io.ReadSeeker
}

type Limits struct {
	MaxFiles    int
	MaxFileSize int64
}

// TaskService owns the task lifecycle: it is the only writer of the task
// store and the file tree during a task's active lifetime, and each task is
// processed by exactly one worker.
type TaskService struct {
	store    store.Store
	files    *storage.Manager
	detector Detector
	overlay  *overlay.Engine
	pool     *pool.WorkerPool
	notifier Notifier
	logger   *zap.Logger

	limits Limits
	ttl    time.Duration

	// baseCtx detaches processing from the submitting request; it is tied
	// to process shutdown instead.
	baseCtx context.Context
}

func NewTaskService(
	baseCtx context.Context,
	st store.Store,
	files *storage.Manager,
	det Detector,
	eng *overlay.Engine,
	wp *pool.WorkerPool,
	notifier Notifier,
	limits Limits,
	ttl time.Duration,
	logger *zap.Logger,
) *TaskService {
	return &TaskService{
		store:    st,
		files:    files,
		detector: det,
		overlay:  eng,
		pool:     wp,
		notifier: notifier,
		logger:   logger,
		limits:   limits,
		ttl:      ttl,
		baseCtx:  baseCtx,
	}
}

// Submit validates the file set, persists the inputs and the pending record,
// and hands the task to the worker pool. It returns the task id without
// waiting on inference.
func (s *TaskService) Submit(ctx context.Context, files []UploadedFile) (string, error) {
	if err := s.validate(files); err != nil {
		return "", err
	}

	id := uuid.New().String()
	task := &models.Task{
		ID:        id,
		Status:    models.StatusPending,
		CreatedAt: time.Now().UTC(),
	}

	if err := s.store.Create(ctx, task, s.ttl); err != nil {
		return "", err
	}

	if err := s.files.Allocate(id); err != nil {
		s.rollback(ctx, id)
		return "", err
	}
	for _, file := range files {
		if err := s.files.WriteInput(id, file.Filename, file.Content); err != nil {
			s.rollback(ctx, id)
			return "", err
		}
	}

	s.pool.Submit(s.baseCtx, func(ctx context.Context) {
		s.process(ctx, id)
	})

	s.logger.Info("task accepted",
		zap.String("task_id", id),
		zap.Int("files", len(files)),
	)
	return id, nil
}

// Status returns the task's current state, or store.ErrTaskNotFound for an
// unknown or expired id.
func (s *TaskService) Status(ctx context.Context, id string) (*models.Task, error) {
	return s.store.Get(ctx, id)
}

func (s *TaskService) validate(files []UploadedFile) error {
	if len(files) == 0 {
		return validation.ErrNoFiles
	}
	if len(files) > s.limits.MaxFiles {
		return fmt.Errorf("%w: %d files, limit %d", validation.ErrTooManyFiles, len(files), s.limits.MaxFiles)
	}
	for _, file := range files {
		if file.Size > s.limits.MaxFileSize {
			return fmt.Errorf("%w: %s is %d bytes, limit %d", validation.ErrFileTooLarge, file.Filename, file.Size, s.limits.MaxFileSize)
		}
		if _, err := validation.DetectFileType(file.Content); err != nil {
			return fmt.Errorf("%w: %s", validation.ErrInvalidFileType, file.Filename)
		}
	}
	return nil
}

// rollback undoes a half-created submission so no partial task is left
// behind.
func (s *TaskService) rollback(ctx context.Context, id string) {
	if err := s.files.Purge(id); err != nil {
		s.logger.Warn("rollback purge failed", zap.String("task_id", id), zap.Error(err))
	}
	if err := s.store.Delete(ctx, id); err != nil {
		s.logger.Warn("rollback delete failed", zap.String("task_id", id), zap.Error(err))
	}
}

// process runs the whole detection+overlay pass for one task. Any failure,
// including a panic, ends in a terminal store state; nothing escapes to the
// pool.
func (s *TaskService) process(ctx context.Context, id string) {
	defer func() {
		if r := recover(); r != nil {
			s.logger.Error("panic during task processing",
				zap.String("task_id", id),
				zap.Any("panic", r),
			)
			s.finish(ctx, id, nil, "internal processing error")
		}
	}()

	if _, err := s.store.Update(ctx, id, func(t *models.Task) error {
		return t.Transition(models.StatusProcessing)
	}); err != nil {
		// Expired or gone before work started; nothing to do.
		s.logger.Warn("task vanished before processing",
			zap.String("task_id", id),
			zap.Error(err),
		)
		return
	}
	s.logger.Info("task processing started", zap.String("task_id", id))

	names, err := s.files.ListInputs(id)
	if err != nil {
		s.finish(ctx, id, nil, fmt.Sprintf("read inputs: %v", err))
		return
	}

	type input struct {
		name string
		img  image.Image
	}
	var (
		inputs   []input
		failures []string
	)
	for _, name := range names {
		img, err := imaging.Open(s.files.InputPath(id, name))
		if err != nil {
			s.logger.Warn("skipping undecodable input",
				zap.String("task_id", id),
				zap.String("filename", name),
				zap.Error(err),
			)
			failures = append(failures, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		inputs = append(inputs, input{name: name, img: img})
	}

	var results []models.FileResult
	if len(inputs) > 0 {
		images := make([]image.Image, len(inputs))
		for i, in := range inputs {
			images[i] = in.img
		}

		detections, err := s.detector.Detect(ctx, images)
		if err != nil {
			s.finish(ctx, id, nil, fmt.Sprintf("inference unavailable: %v", err))
			return
		}

		for i, det := range detections {
			name := inputs[i].name
			if det.Err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, det.Err))
				continue
			}

			composited := s.overlay.Cover(inputs[i].img, det.Boxes)
			data, err := s.overlay.Encode(composited)
			if err != nil {
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
				continue
			}

			outName := outputName(name)
			if err := s.files.PublishOutput(id, outName, data); err != nil {
				s.logger.Error("failed to publish output",
					zap.String("task_id", id),
					zap.String("filename", outName),
					zap.Error(err),
				)
				failures = append(failures, fmt.Sprintf("%s: %v", name, err))
				continue
			}

			results = append(results, models.FileResult{
				Filename: outName,
				URL:      path.Join("/results", id, "output", outName),
			})
		}
	}

	// Any success means the task completed; results carry whatever made it
	// through, in submission order.
	if len(results) > 0 {
		s.finish(ctx, id, results, "")
		return
	}
	msg := "no images could be processed"
	if len(failures) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, strings.Join(failures, "; "))
	}
	s.finish(ctx, id, nil, msg)
}

// finish records the terminal state and, if the record was still alive,
// triggers notification exactly once.
func (s *TaskService) finish(ctx context.Context, id string, results []models.FileResult, errMsg string) {
	terminal := models.StatusCompleted
	if errMsg != "" {
		terminal = models.StatusFailed
	}

	final, err := s.store.Update(ctx, id, func(t *models.Task) error {
		if err := t.Transition(terminal); err != nil {
			return err
		}
		t.Results = results
		t.Error = errMsg
		return nil
	})
	if err != nil {
		// The record expired under its own worker; the work is wasted but
		// harmless.
		s.logger.Warn("could not record terminal state",
			zap.String("task_id", id),
			zap.String("status", string(terminal)),
			zap.Error(err),
		)
		return
	}

	s.logger.Info("task finished",
		zap.String("task_id", id),
		zap.String("status", string(terminal)),
		zap.Int("results", len(results)),
	)
	s.notifier.Dispatch(s.baseCtx, final, s.files.OutputDir(id))
}

func outputName(inputName string) string {
	base := strings.TrimSuffix(inputName, filepath.Ext(inputName))
	return "covered_" + base + ".jpg"
}
