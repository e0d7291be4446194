package classify

import (
	"image"
	"image/color"
	"image/draw"
	"time"

	"ppewatch/internal/capture"
	"ppewatch/internal/detection"
	"ppewatch/internal/violation"
)

// Judgment is the verdict for a single detection.
type Judgment int

const (
	// Ignored detections are below threshold or not in the domain's
	// vocabulary. They are neither drawn nor recorded.
	Ignored Judgment = iota
	// Subject marks the monitored person class.
	Subject
	// Violation marks a negative (missing equipment) class.
	Violation
	// Compliant marks present protective equipment.
	Compliant
	// Unclassified marks a confident detection of a class the domain
	// knows nothing about. Drawn, never recorded.
	Unclassified
)

func (j Judgment) String() string {
	switch j {
	case Subject:
		return "subject"
	case Violation:
		return "violation"
	case Compliant:
		return "compliant"
	case Unclassified:
		return "unclassified"
	default:
		return "ignored"
	}
}

var judgmentColors = map[Judgment]color.RGBA{
	Subject:      {255, 255, 255, 255},
	Violation:    {255, 0, 0, 255},
	Compliant:    {0, 255, 0, 255},
	Unclassified: {255, 45, 85, 255},
}

// Result is the outcome of classifying one frame.
type Result struct {
	Frame      *capture.Frame
	Annotated  *image.RGBA
	Violations []violation.Event
}

// Classifier judges detections against a domain profile and renders the
// annotated frame.
type Classifier struct {
	profile *Profile
	now     func() time.Time
}

// New creates a classifier for the given domain profile.
func New(profile *Profile) *Classifier {
	return &Classifier{profile: profile, now: time.Now}
}

// Profile returns the domain profile in use.
func (c *Classifier) Profile() *Profile { return c.profile }

// Judge returns the verdict for one detection under this classifier's
// profile.
func (c *Classifier) Judge(det detection.Detection) Judgment {
	if det.Confidence < c.profile.threshold {
		return Ignored
	}
	if det.Class == SubjectClass {
		return Subject
	}
	if _, ok := c.profile.negative[det.Class]; ok {
		return Violation
	}
	if _, ok := c.profile.positive[det.Class]; ok {
		return Compliant
	}
	return Unclassified
}

// Process judges every detection on the frame, draws boxes and the status
// overlay onto a copy of the image, and returns the violation events in
// detection order. The frame's own pixels are never modified, so cached
// frames stay reusable.
func (c *Classifier) Process(frame *capture.Frame, dets []detection.Detection, recording bool) *Result {
	bounds := frame.Img.Bounds()
	annotated := image.NewRGBA(bounds)
	draw.Draw(annotated, bounds, frame.Img, bounds.Min, draw.Src)

	result := &Result{Frame: frame, Annotated: annotated}

	for _, det := range dets {
		verdict := c.Judge(det)
		if verdict == Ignored {
			continue
		}

		boxColor := judgmentColors[verdict]
		drawBox(annotated, det.BBox, boxColor, 2)
		drawLabel(annotated, det.BBox.X1, det.BBox.Y1-5, detectionLabel(det), boxColor)

		if verdict == Violation {
			result.Violations = append(result.Violations, violation.Event{
				Domain:     c.profile.name,
				Class:      det.Class,
				Confidence: det.Confidence,
				BBox:       det.BBox,
				DetectedAt: c.now(),
			})
		}
	}

	drawStatusOverlay(annotated, c.profile.name, recording, c.now())
	return result
}
