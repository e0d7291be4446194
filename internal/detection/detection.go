// Package detection defines the detector contract and the adapter for the
// external YOLO inference service. The model itself is a black box: the
// pipeline only sees class names, confidences and pixel bounding boxes.
package detection

import (
	"context"
	"fmt"

	"ppewatch/internal/capture"
)

// BBox is a bounding box in pixel coordinates.
type BBox struct {
	X1 int `json:"x1"`
	Y1 int `json:"y1"`
	X2 int `json:"x2"`
	Y2 int `json:"y2"`
}

func (b BBox) String() string {
	return fmt.Sprintf("(%d, %d, %d, %d)", b.X1, b.Y1, b.X2, b.Y2)
}

// Detection is a single object detection result.
type Detection struct {
	Class      string  `json:"class"`
	Confidence float64 `json:"confidence"`
	BBox       BBox    `json:"bbox"`
}

// Detector runs object detection on a frame. The returned list carries no
// ordering guarantee.
type Detector interface {
	Name() string
	IsHealthy() bool
	Detect(ctx context.Context, frame *capture.Frame) ([]Detection, error)
	Close() error
}

// Func adapts a plain function to the Detector interface.
type Func func(ctx context.Context, frame *capture.Frame) ([]Detection, error)

func (f Func) Name() string     { return "func" }
func (f Func) IsHealthy() bool  { return true }
func (f Func) Close() error     { return nil }
func (f Func) Detect(ctx context.Context, frame *capture.Frame) ([]Detection, error) {
	return f(ctx, frame)
}
