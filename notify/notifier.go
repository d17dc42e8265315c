package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/models"
)

type Config struct {
	UploadURL   string
	CallbackURL string
	MaxRetries  int
	RetryDelay  time.Duration
	Timeout     time.Duration
}

// Notifier delivers a task's terminal outcome to the configured sinks,
// best-effort: transient failures are retried a bounded number of times,
// terminal rejections are not, and neither ever touches the task's status.
type Notifier struct {
	cfg    Config
	events EventProducer
	client *http.Client
	logger *zap.Logger
}

func New(cfg Config, events EventProducer, logger *zap.Logger) *Notifier {
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = 3
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = 2 * time.Second
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Minute
	}
	return &Notifier{
		cfg:    cfg,
		events: events,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger,
	}
}

type callbackPayload struct {
	TaskID  string              `json:"task_id"`
	Status  string              `json:"status"`
	Results []models.FileResult `json:"results"`
	Error   string              `json:"error,omitempty"`
}

// Dispatch fires every configured sink in the background and returns
// immediately.
func (n *Notifier) Dispatch(ctx context.Context, task *models.Task, outputDir string) {
	if n.cfg.CallbackURL != "" {
		go n.sendCallback(ctx, task)
	}
	if n.cfg.UploadURL != "" {
		go n.sendUpload(ctx, task, outputDir)
	}
	if n.events != nil {
		go n.publishEvent(ctx, task)
	}
}

func (n *Notifier) sendCallback(ctx context.Context, task *models.Task) {
	results := task.Results
	if results == nil {
		results = []models.FileResult{}
	}
	payload, err := json.Marshal(callbackPayload{
		TaskID:  task.ID,
		Status:  string(task.Status),
		Results: results,
		Error:   task.Error,
	})
	if err != nil {
		n.logger.Error("failed to encode callback payload",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}

	if err := n.postWithRetry(ctx, n.cfg.CallbackURL, "application/json", payload); err != nil {
		n.logger.Error("callback delivery failed",
			zap.String("task_id", task.ID),
			zap.String("url", n.cfg.CallbackURL),
			zap.Error(err),
		)
		return
	}
	n.logger.Info("callback delivered", zap.String("task_id", task.ID))
}

func (n *Notifier) sendUpload(ctx context.Context, task *models.Task, outputDir string) {
	if len(task.Results) == 0 {
		n.logger.Info("no outputs to upload", zap.String("task_id", task.ID))
		return
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("task_id", task.ID); err != nil {
		n.logger.Error("failed to build upload form", zap.Error(err))
		return
	}

	attached := 0
	for _, result := range task.Results {
		path := filepath.Join(outputDir, result.Filename)
		file, err := os.Open(path)
		if err != nil {
			n.logger.Warn("output file missing, skipping upload part",
				zap.String("task_id", task.ID),
				zap.String("path", path),
				zap.Error(err),
			)
			continue
		}

		part, err := writer.CreateFormFile("images", result.Filename)
		if err == nil {
			_, err = io.Copy(part, file)
		}
		file.Close()
		if err != nil {
			n.logger.Error("failed to attach upload part",
				zap.String("task_id", task.ID),
				zap.String("filename", result.Filename),
				zap.Error(err),
			)
			return
		}
		attached++
	}

	if attached == 0 {
		n.logger.Warn("no output files available for upload", zap.String("task_id", task.ID))
		return
	}
	if err := writer.Close(); err != nil {
		n.logger.Error("failed to finalize upload form", zap.Error(err))
		return
	}

	if err := n.postWithRetry(ctx, n.cfg.UploadURL, writer.FormDataContentType(), body.Bytes()); err != nil {
		n.logger.Error("upload delivery failed",
			zap.String("task_id", task.ID),
			zap.String("url", n.cfg.UploadURL),
			zap.Error(err),
		)
		return
	}
	n.logger.Info("outputs uploaded",
		zap.String("task_id", task.ID),
		zap.Int("files", attached),
	)
}

func (n *Notifier) publishEvent(ctx context.Context, task *models.Task) {
	if err := n.events.PublishCompletion(ctx, task); err != nil {
		n.logger.Error("completion event publish failed",
			zap.String("task_id", task.ID),
			zap.Error(err),
		)
		return
	}
	n.logger.Info("completion event published", zap.String("task_id", task.ID))
}

// postWithRetry retries on transport errors and 5xx responses, never on
// 4xx: the destination has rejected the payload for good.
func (n *Notifier) postWithRetry(ctx context.Context, url, contentType string, body []byte) error {
	var lastErr error

	for attempt := 0; attempt <= n.cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(n.cfg.RetryDelay):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return err
		}
		req.Header.Set("Content-Type", contentType)

		resp, err := n.client.Do(req)
		if err != nil {
			lastErr = err
			continue
		}
		io.Copy(io.Discard, resp.Body)
		resp.Body.Close()

		switch {
		case resp.StatusCode < 300:
			return nil
		case resp.StatusCode >= 400 && resp.StatusCode < 500:
			return fmt.Errorf("destination rejected request: %s", resp.Status)
		default:
			lastErr = fmt.Errorf("destination returned %s", resp.Status)
		}
	}

	return fmt.Errorf("giving up after %d attempts: %w", n.cfg.MaxRetries+1, lastErr)
}
