package capture

import (
	"context"
	"errors"
	"io"
	"log"
	"sync"
	"sync/atomic"
	"time"
)

// ErrSourceClosed is returned by Next once the stream has terminated, either
// because reconnect attempts were exhausted or Close was called.
var ErrSourceClosed = errors.New("capture: source closed")

// frameStream is a live connection delivering raw JPEG frames. Frames()
// is closed when the connection ends; Err() then reports the reason
// (io.EOF for a normal end of a file source).
type frameStream interface {
	Frames() <-chan []byte
	Err() error
	Drops() uint64
	Close() error
}

type openFunc func(ctx context.Context, cfg Config) (frameStream, error)

// Source pulls validated frames from a camera or file input. It owns the
// capture handle exclusively: Next must be called from a single goroutine,
// while Close may be called from anywhere to stop the stream.
type Source struct {
	cfg  Config
	open openFunc

	mu      sync.Mutex
	stream  frameStream
	pending []byte // first frame received during connect, served on next pull

	state atomic.Int32

	seq        uint64
	failures   int // consecutive read/validation failures
	reconnects int // reconnect attempts since the last valid frame
	lastGood   *Frame

	stats struct {
		served     atomic.Uint64
		throttled  atomic.Uint64
		stale      atomic.Uint64
		validation atomic.Uint64
		degraded   atomic.Uint64
		reconnects atomic.Uint64
	}
}

// NewSource creates a source for the configured input. The capture handle is
// opened lazily on the first pull.
func NewSource(cfg Config) *Source {
	return newSource(cfg, openFFmpeg)
}

func newSource(cfg Config, open openFunc) *Source {
	s := &Source{cfg: cfg.withDefaults(), open: open}
	s.state.Store(int32(StateConnecting))
	return s
}

// State returns the current lifecycle state.
func (s *Source) State() State {
	return State(s.state.Load())
}

// Stats returns a snapshot of the capture counters.
func (s *Source) Stats() Stats {
	st := Stats{
		StreamID:           s.cfg.StreamID,
		State:              s.State().String(),
		FramesServed:       s.stats.served.Load(),
		FramesThrottled:    s.stats.throttled.Load(),
		StaleDropped:       s.stats.stale.Load(),
		ValidationFailures: s.stats.validation.Load(),
		DegradedServes:     s.stats.degraded.Load(),
		Reconnects:         s.stats.reconnects.Load(),
	}
	s.mu.Lock()
	if s.stream != nil {
		st.StaleDropped += s.stream.Drops()
	}
	s.mu.Unlock()
	return st
}

// Close terminates the stream and releases the capture handle. Safe to call
// concurrently with Next and more than once.
func (s *Source) Close() error {
	s.state.Store(int32(StateClosed))
	s.mu.Lock()
	defer s.mu.Unlock()
	s.releaseLocked()
	return nil
}

func (s *Source) releaseLocked() {
	if s.stream != nil {
		s.stream.Close()
		s.stream = nil
	}
	s.pending = nil
}

// Next blocks until the next frame is available and returns it. During
// degraded streaming the most recent valid frame is served again. Once the
// source is closed every call returns ErrSourceClosed.
func (s *Source) Next(ctx context.Context) (*Frame, error) {
	for {
		if s.State() == StateClosed {
			return nil, ErrSourceClosed
		}
		if err := ctx.Err(); err != nil {
			s.Close()
			return nil, err
		}

		if !s.connected() {
			if err := s.connect(ctx); err != nil {
				return nil, err
			}
		}

		data, err := s.pull(ctx)
		switch {
		case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
			s.Close()
			return nil, err
		case errors.Is(err, io.EOF):
			// Normal end of a file source.
			log.Printf("[Capture] Stream %s ended", s.cfg.StreamID)
			s.Close()
			return nil, ErrSourceClosed
		}

		var frame *Frame
		if err == nil {
			frame, err = s.buildFrame(data)
		}
		if err != nil {
			if s.State() == StateClosed {
				return nil, ErrSourceClosed
			}
			if frame, ok := s.handleFailure(ctx, err); ok {
				return frame, nil
			}
			if s.State() == StateClosed {
				return nil, ErrSourceClosed
			}
			continue
		}

		s.failures = 0
		s.reconnects = 0
		s.state.Store(int32(StateStreaming))
		s.lastGood = frame

		if s.cfg.ProcessEveryNth > 1 && frame.Seq%uint64(s.cfg.ProcessEveryNth) != 0 {
			s.stats.throttled.Add(1)
			continue
		}
		s.stats.served.Add(1)
		return frame, nil
	}
}

func (s *Source) connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stream != nil
}

// connect opens the capture handle and waits for the first frame. The frame
// is kept aside so the following pull observes it.
func (s *Source) connect(ctx context.Context) error {
	str, err := s.open(ctx, s.cfg)
	if err != nil {
		s.Close()
		return err
	}

	timer := time.NewTimer(s.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-str.Frames():
		if !ok {
			err := str.Err()
			str.Close()
			s.Close()
			if err == nil || errors.Is(err, io.EOF) {
				err = io.ErrUnexpectedEOF
			}
			return err
		}
		s.mu.Lock()
		if s.State() == StateClosed {
			s.mu.Unlock()
			str.Close()
			return ErrSourceClosed
		}
		s.stream = str
		s.pending = data
		s.mu.Unlock()
		log.Printf("[Capture] Stream %s connected", s.cfg.StreamID)
		return nil
	case <-timer.C:
		str.Close()
		s.Close()
		return errors.New("capture: timed out waiting for first frame")
	case <-ctx.Done():
		str.Close()
		s.Close()
		return ctx.Err()
	}
}

// pull returns the newest raw frame, discarding anything staler that piled
// up between pulls.
func (s *Source) pull(ctx context.Context) ([]byte, error) {
	s.mu.Lock()
	if s.pending != nil {
		data := s.pending
		s.pending = nil
		s.mu.Unlock()
		return data, nil
	}
	str := s.stream
	s.mu.Unlock()
	if str == nil {
		return nil, ErrSourceClosed
	}

	var data []byte
drain:
	for {
		select {
		case d, ok := <-str.Frames():
			if !ok {
				if err := str.Err(); err != nil {
					return nil, err
				}
				return nil, io.ErrUnexpectedEOF
			}
			if data != nil {
				s.stats.stale.Add(1)
			}
			data = d
		default:
			break drain
		}
	}
	if data != nil {
		return data, nil
	}

	timer := time.NewTimer(s.cfg.ReadTimeout)
	defer timer.Stop()
	select {
	case d, ok := <-str.Frames():
		if !ok {
			if err := str.Err(); err != nil {
				return nil, err
			}
			return nil, io.ErrUnexpectedEOF
		}
		return d, nil
	case <-timer.C:
		return nil, errors.New("capture: frame read timed out")
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// buildFrame decodes, validates and, when oversized, downscales a raw frame.
func (s *Source) buildFrame(data []byte) (*Frame, error) {
	img, err := decodeFrame(data, s.cfg)
	if err != nil {
		return nil, err
	}

	img, data, err = fitFrame(img, data, s.cfg)
	if err != nil {
		return nil, err
	}

	s.seq++
	b := img.Bounds()
	return &Frame{
		StreamID:  s.cfg.StreamID,
		Data:      data,
		Img:       img,
		Seq:       s.seq,
		Timestamp: time.Now(),
		Width:     b.Dx(),
		Height:    b.Dy(),
	}, nil
}

// handleFailure runs the degraded/reconnect policy for one failed pull.
// It returns (frame, true) when a cached frame should be served instead.
func (s *Source) handleFailure(ctx context.Context, cause error) (*Frame, bool) {
	s.failures++
	s.stats.validation.Add(1)
	log.Printf("[Capture] Stream %s: bad frame (%v), consecutive failures: %d",
		s.cfg.StreamID, cause, s.failures)

	if s.lastGood != nil && s.failures < s.cfg.DegradedLimit {
		s.state.Store(int32(StateDegraded))
		s.stats.degraded.Add(1)
		s.stats.served.Add(1)
		return s.lastGood, true
	}

	if s.failures >= s.cfg.FailureThreshold {
		s.reconnect(ctx)
	}
	return nil, false
}

// reconnect releases the handle and reopens it with backoff. Exhausting the
// attempt budget closes the source for good.
func (s *Source) reconnect(ctx context.Context) {
	s.state.Store(int32(StateReconnecting))
	s.mu.Lock()
	s.releaseLocked()
	s.mu.Unlock()

	for s.reconnects < s.cfg.MaxReconnects {
		s.reconnects++
		s.stats.reconnects.Add(1)
		log.Printf("[Capture] Stream %s: reconnecting (attempt %d/%d)",
			s.cfg.StreamID, s.reconnects, s.cfg.MaxReconnects)

		timer := time.NewTimer(s.cfg.ReconnectBackoff)
		select {
		case <-timer.C:
		case <-ctx.Done():
			timer.Stop()
			s.Close()
			return
		}

		if err := s.reopen(ctx); err != nil {
			log.Printf("[Capture] Stream %s: reconnect failed: %v", s.cfg.StreamID, err)
			continue
		}
		s.failures = 0
		return
	}

	log.Printf("[Capture] Stream %s: reconnect attempts exhausted, closing", s.cfg.StreamID)
	s.Close()
}

// reopen is connect without the closed-on-failure semantics so that the
// reconnect loop can keep retrying.
func (s *Source) reopen(ctx context.Context) error {
	str, err := s.open(ctx, s.cfg)
	if err != nil {
		return err
	}

	timer := time.NewTimer(s.cfg.OpenTimeout)
	defer timer.Stop()

	select {
	case data, ok := <-str.Frames():
		if !ok {
			str.Close()
			if err := str.Err(); err != nil {
				return err
			}
			return io.ErrUnexpectedEOF
		}
		s.mu.Lock()
		if s.State() == StateClosed {
			s.mu.Unlock()
			str.Close()
			return ErrSourceClosed
		}
		s.stream = str
		s.pending = data
		s.mu.Unlock()
		log.Printf("[Capture] Stream %s reconnected", s.cfg.StreamID)
		return nil
	case <-timer.C:
		str.Close()
		return errors.New("capture: timed out waiting for first frame")
	case <-ctx.Done():
		str.Close()
		return ctx.Err()
	}
}
