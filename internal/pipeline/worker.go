// Package pipeline connects frame acquisition, detection, classification
// and recording into per-stream processing loops, and fans the resulting
// violation events out to subscribers.
package pipeline

import (
	"context"
	"errors"
	"log"

	"ppewatch/internal/capture"
	"ppewatch/internal/classify"
	"ppewatch/internal/detection"
	"ppewatch/internal/violation"
)

// frameSource is the part of capture.Source the worker depends on.
type frameSource interface {
	Next(ctx context.Context) (*capture.Frame, error)
	State() capture.State
	Stats() capture.Stats
	Close() error
}

// worker runs one stream's acquisition and processing loop.
type worker struct {
	id         string
	name       string
	source     frameSource
	detector   detection.Detector
	classifier *classify.Classifier
	recorder   *violation.Recorder
	bus        *EventBus

	cancel context.CancelFunc
	done   chan struct{}
}

// run pulls frames until the source closes or the context ends. Detector
// failures skip the frame rather than stopping the stream.
func (w *worker) run(ctx context.Context) {
	defer close(w.done)
	defer w.source.Close()

	log.Printf("[Pipeline] Stream %s (%s) started", w.name, w.id)

	for {
		frame, err := w.source.Next(ctx)
		if err != nil {
			if errors.Is(err, capture.ErrSourceClosed) || errors.Is(err, context.Canceled) {
				log.Printf("[Pipeline] Stream %s stopped: %v", w.name, err)
				return
			}
			log.Printf("[Pipeline] Stream %s frame error: %v", w.name, err)
			return
		}

		dets, err := w.detector.Detect(ctx, frame)
		if err != nil {
			log.Printf("[Pipeline] Stream %s detection failed: %v", w.name, err)
			continue
		}

		// Every processed frame goes through the recorder so the flush
		// clock keeps running after violations stop.
		result := w.classifier.Process(frame, dets, w.recorder.RecordingEnabled())
		events := w.recorder.Record(result.Annotated, result.Violations)
		for _, e := range events {
			w.bus.Publish(e)
		}
	}
}

// stop cancels the loop and waits for it to exit.
func (w *worker) stop() {
	w.cancel()
	<-w.done
}
