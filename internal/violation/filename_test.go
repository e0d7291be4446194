package violation

import (
	"testing"
	"time"

	"ppewatch/internal/detection"
)

func bbox(x1, y1, x2, y2 int) detection.BBox {
	return detection.BBox{X1: x1, Y1: y1, X2: x2, Y2: y2}
}

func TestFilenameRoundTrip(t *testing.T) {
	ts := time.Date(2026, 3, 14, 9, 26, 53, 589793*1000, time.Local)

	name := Filename("Construction", ts)
	want := "violation_Construction_20260314_092653_589793.jpg"
	if name != want {
		t.Fatalf("Filename = %q, want %q", name, want)
	}

	domain, parsed, err := ParseFilename(name)
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if domain != "Construction" {
		t.Errorf("domain = %q, want Construction", domain)
	}
	if !parsed.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", parsed, ts)
	}
}

func TestFilenameDomainWithUnderscore(t *testing.T) {
	ts := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local)
	name := Filename("Oil & Gas", ts)

	domain, parsed, err := ParseFilename(name)
	if err != nil {
		t.Fatalf("ParseFilename: %v", err)
	}
	if domain != "Oil & Gas" {
		t.Errorf("domain = %q, want Oil & Gas", domain)
	}
	if !parsed.Equal(ts) {
		t.Errorf("timestamp = %v, want %v", parsed, ts)
	}
}

func TestParseFilenameRejectsMalformed(t *testing.T) {
	bad := []string{
		"",
		"snapshot.jpg",
		"violation_.jpg",
		"violation_Construction_2026_092653_589793.jpg",
		"violation_Construction_20260314_092653_589793.png",
		"violation_Construction_20261399_092653_1.jpg", // month 13
	}
	for _, name := range bad {
		if _, _, err := ParseFilename(name); err == nil {
			t.Errorf("ParseFilename(%q) succeeded, want error", name)
		}
	}
}

func TestDomainCode(t *testing.T) {
	cases := []struct {
		domain string
		want   string
	}{
		{"Construction", "Cons"},
		{"Manufacturing", "Manu"},
		{"Healthcare", "Heal"},
		{"Oil & Gas", "OilG"},
		{"AB", "AB"},
	}
	for _, c := range cases {
		if got := DomainCode(c.domain); got != c.want {
			t.Errorf("DomainCode(%q) = %q, want %q", c.domain, got, c.want)
		}
	}
}

func TestLogLineRoundTrip(t *testing.T) {
	e := Event{
		Domain:     "Construction",
		Class:      "NO-hardhat",
		Confidence: 0.92,
		BBox:       bbox(120, 80, 260, 310),
		DetectedAt: time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local),
	}

	line := e.LogLine()
	want := "[2026-03-14 09:26:53] [Construction] NO-hardhat 0.92 (120, 80, 260, 310)"
	if line != want {
		t.Fatalf("LogLine = %q, want %q", line, want)
	}

	parsed, err := ParseLogLine(line)
	if err != nil {
		t.Fatalf("ParseLogLine: %v", err)
	}
	if parsed.Domain != e.Domain || parsed.Class != e.Class {
		t.Errorf("parsed = %+v, want %+v", parsed, e)
	}
	if parsed.Confidence != e.Confidence {
		t.Errorf("confidence = %v, want %v", parsed.Confidence, e.Confidence)
	}
	if !parsed.DetectedAt.Equal(e.DetectedAt) {
		t.Errorf("detectedAt = %v, want %v", parsed.DetectedAt, e.DetectedAt)
	}
	if parsed.BBox != e.BBox {
		t.Errorf("bbox = %v, want %v", parsed.BBox, e.BBox)
	}
}

func TestParseLogLineClassWithSpaces(t *testing.T) {
	line := "[2026-03-14 09:26:53] [Construction] NO-Safety Vest 0.75 (1, 2, 3, 4)"
	parsed, err := ParseLogLine(line)
	if err != nil {
		t.Fatalf("ParseLogLine: %v", err)
	}
	if parsed.Class != "NO-Safety Vest" {
		t.Errorf("class = %q, want NO-Safety Vest", parsed.Class)
	}
}
