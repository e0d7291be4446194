package classify

import (
	"image"
	"testing"
	"time"

	"ppewatch/internal/capture"
	"ppewatch/internal/detection"
)

func det(class string, conf float64) detection.Detection {
	return detection.Detection{
		Class:      class,
		Confidence: conf,
		BBox:       detection.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50},
	}
}

func constructionClassifier(t *testing.T) *Classifier {
	t.Helper()
	profile, err := ProfileFor("construction")
	if err != nil {
		t.Fatal(err)
	}
	return New(profile)
}

func TestJudge(t *testing.T) {
	c := constructionClassifier(t)

	cases := []struct {
		name string
		det  detection.Detection
		want Judgment
	}{
		{"person", det("Person", 0.9), Subject},
		{"violation", det("NO-hardhat", 0.92), Violation},
		{"compliant", det("Hardhat", 0.8), Compliant},
		{"unknown class", det("Forklift", 0.9), Unclassified},
		{"below threshold", det("NO-hardhat", 0.59), Ignored},
		{"at threshold", det("NO-hardhat", 0.6), Violation},
		{"subject below threshold", det("Person", 0.3), Ignored},
	}
	for _, tc := range cases {
		if got := c.Judge(tc.det); got != tc.want {
			t.Errorf("%s: Judge = %v, want %v", tc.name, got, tc.want)
		}
	}
}

func TestProcessEmitsViolationEvents(t *testing.T) {
	c := constructionClassifier(t)
	now := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	c.now = func() time.Time { return now }

	frame := &capture.Frame{Img: image.NewRGBA(image.Rect(0, 0, 640, 480))}
	dets := []detection.Detection{
		det("Person", 0.95),
		det("NO-hardhat", 0.92),
		det("NO-Safety Vest", 0.75),
		det("Hardhat", 0.88),
	}

	result := c.Process(frame, dets, false)
	if len(result.Violations) != 2 {
		t.Fatalf("violations = %d, want 2", len(result.Violations))
	}
	// Events come out in detection order.
	if result.Violations[0].Class != "NO-hardhat" || result.Violations[1].Class != "NO-Safety Vest" {
		t.Errorf("violation order = %q, %q", result.Violations[0].Class, result.Violations[1].Class)
	}

	first := result.Violations[0]
	if first.Domain != "Construction" {
		t.Errorf("domain = %q, want Construction", first.Domain)
	}
	if first.Confidence != 0.92 {
		t.Errorf("confidence = %v, want 0.92", first.Confidence)
	}
	if !first.DetectedAt.Equal(now) {
		t.Errorf("detectedAt = %v, want %v", first.DetectedAt, now)
	}
	if first.BBox != (detection.BBox{X1: 10, Y1: 10, X2: 50, Y2: 50}) {
		t.Errorf("bbox = %v", first.BBox)
	}
}

func TestProcessDrawsOnACopy(t *testing.T) {
	c := constructionClassifier(t)
	frame := &capture.Frame{Img: image.NewRGBA(image.Rect(0, 0, 640, 480))}
	before := frame.Img.RGBAAt(10, 10)

	result := c.Process(frame, []detection.Detection{det("NO-hardhat", 0.92)}, true)
	if result.Annotated == frame.Img {
		t.Fatal("annotated image aliases the source frame")
	}
	if frame.Img.RGBAAt(10, 10) != before {
		t.Error("source frame pixels were modified")
	}
	// The box corner must be painted on the annotated copy.
	if result.Annotated.RGBAAt(10, 10) == before {
		t.Error("no box drawn on annotated frame")
	}
}

func TestProcessIgnoresLowConfidence(t *testing.T) {
	c := constructionClassifier(t)
	frame := &capture.Frame{Img: image.NewRGBA(image.Rect(0, 0, 640, 480))}

	result := c.Process(frame, []detection.Detection{det("NO-hardhat", 0.4)}, true)
	if len(result.Violations) != 0 {
		t.Errorf("violations = %d, want 0", len(result.Violations))
	}
}

func TestBuiltinProfiles(t *testing.T) {
	for _, id := range []string{"manufacturing", "construction", "healthcare", "oilgas"} {
		p, err := ProfileFor(id)
		if err != nil {
			t.Errorf("ProfileFor(%q): %v", id, err)
			continue
		}
		if p.Threshold() != DefaultThreshold {
			t.Errorf("%s threshold = %v, want %v", id, p.Threshold(), DefaultThreshold)
		}
	}

	if p, _ := ProfileFor("oilgas"); p.Name() != "Oil & Gas" {
		t.Errorf("oilgas name = %q, want Oil & Gas", p.Name())
	}
	if _, err := ProfileFor("aviation"); err == nil {
		t.Error("unknown domain accepted")
	}
}
