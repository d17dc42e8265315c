package overlay

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"math"
	"testing"

	"github.com/disintegration/imaging"
	"go.uber.org/zap/zaptest"

	"github.com/HRV220/plate-detect/models"
)

var (
	gray = color.NRGBA{100, 100, 100, 255}
	red  = color.NRGBA{255, 0, 0, 255}
)

func uniformImage(w, h int, c color.NRGBA) *image.NRGBA {
	img := imaging.New(w, h, c)
	return img
}

func newTestEngine(t *testing.T) *Engine {
	return NewEngineFromImage(uniformImage(8, 8, red), zaptest.NewLogger(t))
}

func TestEngine_Cover_AxisAlignedRoundTrip(t *testing.T) {
	engine := newTestEngine(t)
	src := uniformImage(64, 64, gray)

	box := models.OrientedBox{CX: 32, CY: 32, Width: 20, Height: 10, Angle: 0, Confidence: 0.9}
	out := engine.Cover(src, []models.OrientedBox{box})

	// Cover must exactly fill [22,42)x[27,37) and touch nothing else.
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			got := out.NRGBAAt(x, y)
			inside := x >= 22 && x < 42 && y >= 27 && y < 37
			if inside && got != red {
				t.Fatalf("pixel (%d,%d) inside box is %v, want cover color", x, y, got)
			}
			if !inside && got != gray {
				t.Fatalf("pixel (%d,%d) outside box is %v, want source color", x, y, got)
			}
		}
	}
}

func TestEngine_Cover_RotatedBox(t *testing.T) {
	engine := newTestEngine(t)
	src := uniformImage(64, 64, gray)

	// 90 degrees: the 20x10 patch lands as 10x20 around the center.
	box := models.OrientedBox{CX: 32, CY: 32, Width: 20, Height: 10, Angle: math.Pi / 2}
	out := engine.Cover(src, []models.OrientedBox{box})

	if got := out.NRGBAAt(32, 32); got != red {
		t.Errorf("center pixel is %v, want cover color", got)
	}
	if got := out.NRGBAAt(32, 40); got != red {
		t.Errorf("pixel along rotated long axis is %v, want cover color", got)
	}
	if got := out.NRGBAAt(40, 32); got != gray {
		t.Errorf("pixel outside rotated box is %v, want source color", got)
	}
}

func TestEngine_Cover_DegenerateBoxSkipped(t *testing.T) {
	engine := newTestEngine(t)
	src := uniformImage(32, 32, gray)

	boxes := []models.OrientedBox{
		{CX: 16, CY: 16, Width: 0, Height: 10},
		{CX: 16, CY: 16, Width: 10, Height: 0},
	}
	out := engine.Cover(src, boxes)

	for y := 0; y < 32; y++ {
		for x := 0; x < 32; x++ {
			if got := out.NRGBAAt(x, y); got != gray {
				t.Fatalf("degenerate box modified pixel (%d,%d): %v", x, y, got)
			}
		}
	}
}

func TestEngine_Cover_MultipleBoxes(t *testing.T) {
	engine := newTestEngine(t)
	src := uniformImage(64, 64, gray)

	boxes := []models.OrientedBox{
		{CX: 12, CY: 12, Width: 8, Height: 8},
		{CX: 48, CY: 48, Width: 8, Height: 8},
	}
	out := engine.Cover(src, boxes)

	if got := out.NRGBAAt(12, 12); got != red {
		t.Errorf("first box center is %v, want cover color", got)
	}
	if got := out.NRGBAAt(48, 48); got != red {
		t.Errorf("second box center is %v, want cover color", got)
	}
	if got := out.NRGBAAt(32, 32); got != gray {
		t.Errorf("pixel between boxes is %v, want source color", got)
	}
}

func TestEngine_Cover_NoBoxesLeavesImageUntouched(t *testing.T) {
	engine := newTestEngine(t)
	src := uniformImage(16, 16, gray)

	out := engine.Cover(src, nil)
	for y := 0; y < 16; y++ {
		for x := 0; x < 16; x++ {
			if got := out.NRGBAAt(x, y); got != gray {
				t.Fatalf("pixel (%d,%d) changed with no detections: %v", x, y, got)
			}
		}
	}
}

func TestEngine_Encode_ProducesJPEG(t *testing.T) {
	engine := newTestEngine(t)
	src := uniformImage(40, 30, gray)

	data, err := engine.Encode(src)
	if err != nil {
		t.Fatalf("Encode failed: %v", err)
	}

	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("output is not decodable JPEG: %v", err)
	}
	bounds := img.Bounds()
	if bounds.Dx() != 40 || bounds.Dy() != 30 {
		t.Errorf("expected 40x30 output, got %dx%d", bounds.Dx(), bounds.Dy())
	}
}
