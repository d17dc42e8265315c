package overlay

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"math"

	"github.com/disintegration/imaging"
	"go.uber.org/zap"

	"github.com/HRV220/plate-detect/models"
)

const jpegQuality = 95

// Engine composites a fixed cover graphic over detected plate regions. The
// cover is resampled into each oriented rectangle; pixels outside the
// rectangle are untouched.
type Engine struct {
	cover  image.Image
	logger *zap.Logger
}

func NewEngine(coverPath string, logger *zap.Logger) (*Engine, error) {
	cover, err := imaging.Open(coverPath)
	if err != nil {
		return nil, fmt.Errorf("load cover graphic %s: %w", coverPath, err)
	}
	return NewEngineFromImage(cover, logger), nil
}

func NewEngineFromImage(cover image.Image, logger *zap.Logger) *Engine {
	return &Engine{cover: cover, logger: logger}
}

// Cover returns a copy of src with the cover graphic composited over every
// box. Boxes are disjoint by the detector's non-max suppression; if they do
// overlap, later boxes overwrite earlier ones.
func (e *Engine) Cover(src image.Image, boxes []models.OrientedBox) *image.NRGBA {
	out := imaging.Clone(src)

	for _, box := range boxes {
		w := int(math.Round(box.Width))
		h := int(math.Round(box.Height))
		if w <= 0 || h <= 0 {
			e.logger.Warn("skipping degenerate detection",
				zap.Float64("width", box.Width),
				zap.Float64("height", box.Height),
			)
			continue
		}

		patch := imaging.Resize(e.cover, w, h, imaging.Lanczos)

		if deg := box.Angle * 180 / math.Pi; math.Abs(deg) > 1e-3 {
			// Rotation expands the canvas; the added corners stay fully
			// transparent so only the rectangle itself is composited.
			patch = imaging.Rotate(patch, deg, color.NRGBA{})
		}

		pos := image.Pt(
			int(math.Round(box.CX))-patch.Bounds().Dx()/2,
			int(math.Round(box.CY))-patch.Bounds().Dy()/2,
		)
		out = imaging.Overlay(out, patch, pos, 1.0)
	}

	return out
}

// Encode re-encodes the composited image in the service's single output
// format, JPEG at quality 95, regardless of the input format.
func (e *Engine) Encode(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.JPEG, imaging.JPEGQuality(jpegQuality)); err != nil {
		return nil, fmt.Errorf("encode output image: %w", err)
	}
	return buf.Bytes(), nil
}
