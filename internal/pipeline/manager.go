package pipeline

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"

	"ppewatch/internal/capture"
	"ppewatch/internal/classify"
	"ppewatch/internal/detection"
	"ppewatch/internal/violation"
)

// StreamSpec describes a stream to start monitoring.
type StreamSpec struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Input  string `json:"input"`
	Domain string `json:"domain"`
	FPS    int    `json:"fps"`
}

// StreamInfo is the externally visible state of a running stream.
type StreamInfo struct {
	ID     string        `json:"id"`
	Name   string        `json:"name"`
	Domain string        `json:"domain"`
	State  string        `json:"state"`
	Stats  capture.Stats `json:"stats"`
}

// Manager owns the set of running stream workers.
type Manager struct {
	captureCfg capture.Config
	detector   detection.Detector
	recorder   *violation.Recorder
	bus        *EventBus

	mu      sync.Mutex
	workers map[string]*worker
}

// NewManager creates a manager. The capture config acts as a template;
// each stream overrides its input and frame rate.
func NewManager(captureCfg capture.Config, det detection.Detector, rec *violation.Recorder, bus *EventBus) *Manager {
	return &Manager{
		captureCfg: captureCfg,
		detector:   det,
		recorder:   rec,
		bus:        bus,
		workers:    make(map[string]*worker),
	}
}

// StartStream begins monitoring a stream and returns its ID.
func (m *Manager) StartStream(spec StreamSpec) (string, error) {
	if spec.Input == "" {
		return "", fmt.Errorf("pipeline: stream input required")
	}

	profile, err := classify.ProfileFor(spec.Domain)
	if err != nil {
		return "", err
	}

	id := spec.ID
	if id == "" {
		id = uuid.New().String()
	}

	cfg := m.captureCfg
	cfg.StreamID = id
	cfg.Input = spec.Input
	if spec.FPS > 0 {
		cfg.FPS = spec.FPS
	}
	source := capture.NewSource(cfg)

	ctx, cancel := context.WithCancel(context.Background())
	w := &worker{
		id:         id,
		name:       spec.Name,
		source:     source,
		detector:   m.detector,
		classifier: classify.New(profile),
		recorder:   m.recorder,
		bus:        m.bus,
		cancel:     cancel,
		done:       make(chan struct{}),
	}

	m.mu.Lock()
	if _, exists := m.workers[id]; exists {
		m.mu.Unlock()
		cancel()
		source.Close()
		return "", fmt.Errorf("pipeline: stream %s already running", id)
	}
	m.workers[id] = w
	m.mu.Unlock()

	go func() {
		w.run(ctx)
		m.mu.Lock()
		delete(m.workers, id)
		m.mu.Unlock()
	}()

	return id, nil
}

// StopStream stops a running stream, waiting for its loop to exit.
func (m *Manager) StopStream(id string) error {
	m.mu.Lock()
	w, ok := m.workers[id]
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("pipeline: stream %s not running", id)
	}
	w.stop()
	return nil
}

// List returns the state of every running stream.
func (m *Manager) List() []StreamInfo {
	m.mu.Lock()
	defer m.mu.Unlock()

	infos := make([]StreamInfo, 0, len(m.workers))
	for _, w := range m.workers {
		infos = append(infos, StreamInfo{
			ID:     w.id,
			Name:   w.name,
			Domain: w.classifier.Profile().Name(),
			State:  w.source.State().String(),
			Stats:  w.source.Stats(),
		})
	}
	return infos
}

// Running reports whether the stream is currently active.
func (m *Manager) Running(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.workers[id]
	return ok
}

// Close stops every stream.
func (m *Manager) Close() {
	m.mu.Lock()
	workers := make([]*worker, 0, len(m.workers))
	for _, w := range m.workers {
		workers = append(workers, w)
	}
	m.mu.Unlock()

	for _, w := range workers {
		w.stop()
	}
}
