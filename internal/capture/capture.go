package capture

import (
	"image"
	"time"
)

// Frame is a validated, decoded video frame handed to the processing loop.
// The Img pixels are never mutated after the frame leaves the source;
// consumers that draw on a frame must work on their own copy.
type Frame struct {
	StreamID  string
	Data      []byte       // JPEG-encoded frame
	Img       *image.RGBA  // decoded pixels
	Seq       uint64       // capture sequence number
	Timestamp time.Time    // capture timestamp
	Width     int
	Height    int
}

// State identifies the source's position in its lifecycle.
type State int32

const (
	StateConnecting State = iota
	StateStreaming
	StateDegraded
	StateReconnecting
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateDegraded:
		return "degraded"
	case StateReconnecting:
		return "reconnecting"
	case StateClosed:
		return "closed"
	}
	return "unknown"
}

// Config holds capture settings for a single stream.
type Config struct {
	StreamID string
	Input    string // rtsp://, http://, /dev/videoN or a file path

	Width  int // requested capture width (v4l2 sources)
	Height int // requested capture height (v4l2 sources)
	FPS    int

	OpenTimeout time.Duration // max wait for the first frame after (re)open
	ReadTimeout time.Duration // max wait per pull

	BufferSize       int           // frames buffered between reader and pull; always served newest-first
	DegradedLimit    int           // serve the cached frame while consecutive failures stay below this
	FailureThreshold int           // consecutive failures that trigger a reconnect
	ReconnectBackoff time.Duration // wait before each reconnect attempt
	MaxReconnects    int           // reconnect attempts before the stream is closed

	ProcessEveryNth int // yield only every Nth captured frame

	MinBrightness float64 // mean-brightness band; frames outside are treated as corrupt
	MaxBrightness float64
	MinDimension  int // sane frame dimension range
	MaxDimension  int

	MaxWidth     int // envelope beyond which frames are downscaled
	MaxHeight    int
	TargetWidth  int // downscale targets, applied aspect-preserving
	TargetHeight int
}

func (c Config) withDefaults() Config {
	if c.FPS <= 0 {
		c.FPS = 10
	}
	if c.OpenTimeout <= 0 {
		c.OpenTimeout = 10 * time.Second
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = 3 * time.Second
	}
	if c.BufferSize <= 0 {
		c.BufferSize = 1
	}
	if c.DegradedLimit <= 0 {
		c.DegradedLimit = 3
	}
	if c.FailureThreshold <= 0 {
		c.FailureThreshold = 5
	}
	if c.ReconnectBackoff <= 0 {
		c.ReconnectBackoff = 2 * time.Second
	}
	if c.MaxReconnects <= 0 {
		c.MaxReconnects = 3
	}
	if c.ProcessEveryNth <= 0 {
		c.ProcessEveryNth = 1
	}
	if c.MinBrightness <= 0 {
		c.MinBrightness = 5
	}
	if c.MaxBrightness <= 0 {
		c.MaxBrightness = 250
	}
	if c.MinDimension <= 0 {
		c.MinDimension = 50
	}
	if c.MaxDimension <= 0 {
		c.MaxDimension = 4000
	}
	if c.MaxWidth <= 0 {
		c.MaxWidth = 1920
	}
	if c.MaxHeight <= 0 {
		c.MaxHeight = 1080
	}
	if c.TargetWidth <= 0 {
		c.TargetWidth = 1280
	}
	if c.TargetHeight <= 0 {
		c.TargetHeight = 720
	}
	return c
}

// Stats contains counters for a capture source.
type Stats struct {
	StreamID           string
	State              string
	FramesServed       uint64
	FramesThrottled    uint64
	StaleDropped       uint64
	ValidationFailures uint64
	DegradedServes     uint64
	Reconnects         uint64
}
