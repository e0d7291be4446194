package violation

import (
	"image"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func testFrame() *image.RGBA {
	return image.NewRGBA(image.Rect(0, 0, 64, 64))
}

func testEvent(class string, ts time.Time) Event {
	return Event{
		Domain:     "Construction",
		Class:      class,
		Confidence: 0.92,
		BBox:       bbox(120, 80, 260, 310),
		DetectedAt: ts,
	}
}

func TestRecordFlushesOncePerInterval(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "violations.log")

	clock := time.Date(2026, 3, 14, 9, 0, 0, 0, time.Local)
	r := NewRecorder(logPath, dir, 30*time.Second)
	r.now = func() time.Time { return clock }
	r.batchStart = clock

	r.Record(testFrame(), []Event{testEvent("NO-hardhat", clock)})
	if _, err := os.Stat(logPath); !os.IsNotExist(err) {
		t.Fatal("log written before flush interval elapsed")
	}
	if r.PendingCount() != 1 {
		t.Fatalf("pending = %d, want 1", r.PendingCount())
	}

	clock = clock.Add(31 * time.Second)
	r.Record(testFrame(), []Event{testEvent("NO-Mask", clock)})

	if r.PendingCount() != 0 {
		t.Fatalf("pending after flush = %d, want 0", r.PendingCount())
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	lines := strings.Split(string(data), "\n")
	// Two event lines, one blank batch separator, one trailing newline split.
	if len(lines) != 4 {
		t.Fatalf("log lines = %d (%q), want 4", len(lines), lines)
	}
	if !strings.Contains(lines[0], "NO-hardhat") || !strings.Contains(lines[1], "NO-Mask") {
		t.Errorf("unexpected log content: %q", lines)
	}
	if lines[2] != "" {
		t.Errorf("missing blank line after batch: %q", lines[2])
	}
}

func TestFlushKeepsEventsInOrder(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "violations.log")
	r := NewRecorder(logPath, dir, time.Hour)

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	r.Record(testFrame(), []Event{
		testEvent("NO-hardhat", ts),
		testEvent("NO-Safety Vest", ts),
	})
	if err := r.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("reading log: %v", err)
	}
	if got := strings.Count(string(data), "[Construction]"); got != 2 {
		t.Errorf("logged events = %d, want 2", got)
	}
	first := strings.Index(string(data), "NO-hardhat")
	second := strings.Index(string(data), "NO-Safety Vest")
	if first < 0 || second < 0 || first > second {
		t.Errorf("events out of order in log: %q", data)
	}
}

func TestSnapshotRequiresRecordingEnabled(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(filepath.Join(dir, "violations.log"), dir, time.Hour)

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	events := r.Record(testFrame(), []Event{testEvent("NO-hardhat", ts)})
	if events[0].ImageRef != "" {
		t.Error("snapshot saved while recording disabled")
	}
	if _, err := os.Stat(filepath.Join(dir, "Cons")); !os.IsNotExist(err) {
		t.Error("snapshot directory created while recording disabled")
	}

	r.StartRecording()
	events = r.Record(testFrame(), []Event{testEvent("NO-hardhat", ts)})
	if events[0].ImageRef == "" {
		t.Fatal("no snapshot reference with recording enabled")
	}
	if _, err := os.Stat(events[0].ImageRef); err != nil {
		t.Errorf("snapshot file missing: %v", err)
	}
	if filepath.Dir(events[0].ImageRef) != filepath.Join(dir, "Cons") {
		t.Errorf("snapshot dir = %s, want %s", filepath.Dir(events[0].ImageRef), filepath.Join(dir, "Cons"))
	}
}

func TestSnapshotUsesLastViolationTimestamp(t *testing.T) {
	dir := t.TempDir()
	r := NewRecorder(filepath.Join(dir, "violations.log"), dir, time.Hour)
	r.StartRecording()

	tsFirst := time.Date(2026, 3, 14, 9, 26, 53, 100000*1000, time.Local)
	tsLast := time.Date(2026, 3, 14, 9, 26, 53, 200000*1000, time.Local)
	events := r.Record(testFrame(), []Event{
		testEvent("NO-hardhat", tsFirst),
		testEvent("NO-Mask", tsLast),
	})

	if events[0].ImageRef != "" {
		t.Error("first event carries a snapshot reference")
	}
	if events[1].ImageRef == "" {
		t.Fatal("last event missing snapshot reference")
	}
	if want := Filename("Construction", tsLast); filepath.Base(events[1].ImageRef) != want {
		t.Errorf("snapshot = %s, want %s", filepath.Base(events[1].ImageRef), want)
	}

	files, err := os.ReadDir(filepath.Join(dir, "Cons"))
	if err != nil {
		t.Fatalf("reading snapshot dir: %v", err)
	}
	if len(files) != 1 {
		t.Errorf("snapshot files = %d, want 1", len(files))
	}
	if r.PendingCount() != 2 {
		t.Errorf("pending = %d, want 2 (both events logged)", r.PendingCount())
	}
}

func TestFlushRetainsBatchOnWriteError(t *testing.T) {
	dir := t.TempDir()
	// A log path under a missing directory forces the open to fail.
	r := NewRecorder(filepath.Join(dir, "missing", "violations.log"), dir, time.Hour)

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	r.Record(testFrame(), []Event{testEvent("NO-hardhat", ts)})

	if err := r.Flush(); err == nil {
		t.Fatal("Flush succeeded against missing directory")
	}
	if r.PendingCount() != 1 {
		t.Errorf("pending after failed flush = %d, want 1", r.PendingCount())
	}
}
