package violation

import (
	"fmt"
	"image"
	"image/jpeg"
	"log"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"
)

// Recorder buffers violation events in memory and flushes them to the
// append-only log once per flush interval, capping both worst-case loss on
// crash and log write frequency. Snapshot images are persisted per
// violation-bearing frame, gated by the runtime recording toggle.
//
// A single recorder is shared by all stream workers; the batch is guarded by
// a mutex so that flush-and-clear is atomic with respect to appends.
type Recorder struct {
	logPath       string
	baseDir       string
	flushInterval time.Duration

	recording atomic.Bool

	mu         sync.Mutex
	batch      []Event
	batchStart time.Time

	now func() time.Time
}

// NewRecorder creates a recorder writing the event log to logPath and
// snapshots under baseDir. Recording starts disabled.
func NewRecorder(logPath, baseDir string, flushInterval time.Duration) *Recorder {
	if flushInterval <= 0 {
		flushInterval = 30 * time.Second
	}
	r := &Recorder{
		logPath:       logPath,
		baseDir:       baseDir,
		flushInterval: flushInterval,
		now:           time.Now,
	}
	r.batchStart = r.now()
	return r
}

// StartRecording enables snapshot persistence.
func (r *Recorder) StartRecording() {
	r.recording.Store(true)
	log.Printf("[Recorder] Violation recording enabled")
}

// StopRecording disables snapshot persistence.
func (r *Recorder) StopRecording() {
	r.recording.Store(false)
	log.Printf("[Recorder] Violation recording disabled")
}

// RecordingEnabled reports whether snapshots are currently persisted.
func (r *Recorder) RecordingEnabled() bool {
	return r.recording.Load()
}

// Record processes the outcome of one classified frame: it saves at most one
// snapshot when the frame produced violations and recording is on, appends
// all events to the batch, and flushes the batch if the interval elapsed.
// The returned events carry the snapshot reference where one was saved.
//
// The snapshot filename uses the timestamp of the last violation in the
// frame while every event still lands in the log individually; that
// last-wins/all-kept split mirrors the recording layout the query layer
// depends on.
func (r *Recorder) Record(annotated *image.RGBA, events []Event) []Event {
	if len(events) > 0 && annotated != nil && r.RecordingEnabled() {
		last := &events[len(events)-1]
		ref, err := r.saveSnapshot(annotated, last.Domain, last.DetectedAt)
		if err != nil {
			log.Printf("[Recorder] Failed to save snapshot: %v", err)
		} else {
			last.ImageRef = ref
		}
	}

	r.mu.Lock()
	r.batch = append(r.batch, events...)
	now := r.now()
	due := now.Sub(r.batchStart) >= r.flushInterval
	r.mu.Unlock()

	if due {
		if err := r.Flush(); err != nil {
			log.Printf("[Recorder] Flush failed, retaining batch: %v", err)
		}
	}
	return events
}

// Flush appends the batched events to the log followed by a blank line and
// clears the batch. On a write failure the batch is retained so the events
// are retried at the next flush boundary; the interval clock is reset either
// way. An empty batch resets the clock without touching the log.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.batchStart = r.now()
	if len(r.batch) == 0 {
		return nil
	}

	f, err := os.OpenFile(r.logPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("opening violation log: %w", err)
	}
	defer f.Close()

	for _, e := range r.batch {
		if _, err := fmt.Fprintln(f, e.LogLine()); err != nil {
			return fmt.Errorf("writing violation log: %w", err)
		}
	}
	if _, err := fmt.Fprintln(f); err != nil {
		return fmt.Errorf("writing violation log: %w", err)
	}

	log.Printf("[Recorder] Flushed %d violation(s) to %s", len(r.batch), r.logPath)
	r.batch = r.batch[:0]
	return nil
}

// PendingCount returns the number of unflushed events.
func (r *Recorder) PendingCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.batch)
}

// saveSnapshot writes the annotated frame under the per-domain directory,
// creating it on demand.
func (r *Recorder) saveSnapshot(img *image.RGBA, domain string, detectedAt time.Time) (string, error) {
	dir := filepath.Join(r.baseDir, DomainCode(domain))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating snapshot directory: %w", err)
	}

	path := filepath.Join(dir, Filename(domain, detectedAt))
	f, err := os.Create(path)
	if err != nil {
		return "", fmt.Errorf("creating snapshot file: %w", err)
	}
	defer f.Close()

	if err := jpeg.Encode(f, img, &jpeg.Options{Quality: 85}); err != nil {
		os.Remove(path)
		return "", fmt.Errorf("encoding snapshot: %w", err)
	}
	return path, nil
}
