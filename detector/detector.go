package detector

import (
	"context"
	"errors"
	"fmt"
	"image"

	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/models"
)

// ErrUnavailable signals a hard model failure: the remaining chunks of the
// batch are abandoned and the whole call fails.
var ErrUnavailable = errors.New("inference unavailable")

// Model is the underlying detection capability: given decoded images, it
// returns one list of oriented boxes per image, in order.
type Model interface {
	Predict(ctx context.Context, images []image.Image) ([][]models.OrientedBox, error)
}

// Detection is the per-image outcome of a batch call. Either Boxes or Err
// is set; Index refers back to the submitted slice.
type Detection struct {
	Index int
	Boxes []models.OrientedBox
	Err   error
}

// Adapter chunks submitted images into groups of at most batchSize before
// invoking the model, bounding peak memory. Chunk boundaries are invisible
// to the caller: results come back in submission order.
type Adapter struct {
	model     Model
	batchSize int
	logger    *zap.Logger
}

func NewAdapter(model Model, batchSize int, logger *zap.Logger) *Adapter {
	if batchSize <= 0 {
		batchSize = 8
	}
	return &Adapter{model: model, batchSize: batchSize, logger: logger}
}

func (a *Adapter) Detect(ctx context.Context, images []image.Image) ([]Detection, error) {
	out := make([]Detection, len(images))

	for start := 0; start < len(images); start += a.batchSize {
		end := start + a.batchSize
		if end > len(images) {
			end = len(images)
		}
		chunk := images[start:end]

		boxes, err := a.model.Predict(ctx, chunk)
		if err != nil {
			if errors.Is(err, ErrUnavailable) {
				return nil, err
			}
			a.logger.Warn("inference chunk failed",
				zap.Int("from", start),
				zap.Int("to", end),
				zap.Error(err),
			)
			for i := start; i < end; i++ {
				out[i] = Detection{Index: i, Err: fmt.Errorf("inference failed: %w", err)}
			}
			continue
		}
		if len(boxes) != len(chunk) {
			err := fmt.Errorf("model returned %d results for %d images", len(boxes), len(chunk))
			for i := start; i < end; i++ {
				out[i] = Detection{Index: i, Err: err}
			}
			continue
		}

		for i, b := range boxes {
			out[start+i] = Detection{Index: start + i, Boxes: b}
		}
	}

	return out, nil
}
