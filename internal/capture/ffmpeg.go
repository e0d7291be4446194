package capture

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
)

// ffmpegStream runs an ffmpeg subprocess that transcodes the input to an
// MJPEG byte stream on stdout. Complete JPEG frames are extracted and kept
// in a small buffer; when the consumer lags, the oldest frame is dropped so
// a pull always observes the newest.
type ffmpegStream struct {
	cmd    *exec.Cmd
	frames chan []byte
	drops  atomic.Uint64

	errMu sync.Mutex
	err   error

	closeOnce sync.Once
}

func openFFmpeg(ctx context.Context, cfg Config) (frameStream, error) {
	cmd := exec.Command("ffmpeg", ffmpegArgs(cfg)...)

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return nil, fmt.Errorf("capture: stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("capture: starting ffmpeg: %w", err)
	}

	// Consume stderr silently
	go func() {
		scanner := bufio.NewScanner(stderr)
		for scanner.Scan() {
		}
	}()

	s := &ffmpegStream{
		cmd:    cmd,
		frames: make(chan []byte, cfg.BufferSize),
	}
	go s.readLoop(stdout)
	return s, nil
}

// ffmpegArgs builds the argument list for the input kind. RTSP and HTTP
// sources are network cameras, /dev paths are V4L2 devices, anything else
// is treated as a video file replayed at its native rate.
func ffmpegArgs(cfg Config) []string {
	output := []string{
		"-f", "image2pipe",
		"-vcodec", "mjpeg",
		"-r", fmt.Sprintf("%d", cfg.FPS),
		"-q:v", "5",
		"-",
	}

	switch {
	case strings.HasPrefix(cfg.Input, "rtsp://"):
		return append([]string{
			"-rtsp_transport", "tcp",
			"-i", cfg.Input,
		}, output...)
	case strings.HasPrefix(cfg.Input, "http://"), strings.HasPrefix(cfg.Input, "https://"):
		return append([]string{
			"-i", cfg.Input,
		}, output...)
	case strings.HasPrefix(cfg.Input, "/dev/"):
		return append([]string{
			"-f", "v4l2",
			"-video_size", fmt.Sprintf("%dx%d", cfg.Width, cfg.Height),
			"-framerate", fmt.Sprintf("%d", cfg.FPS),
			"-i", cfg.Input,
		}, output...)
	default:
		return append([]string{
			"-re",
			"-i", cfg.Input,
		}, output...)
	}
}

func (s *ffmpegStream) Frames() <-chan []byte { return s.frames }

func (s *ffmpegStream) Drops() uint64 { return s.drops.Load() }

func (s *ffmpegStream) Err() error {
	s.errMu.Lock()
	defer s.errMu.Unlock()
	return s.err
}

func (s *ffmpegStream) Close() error {
	s.closeOnce.Do(func() {
		if s.cmd.Process != nil {
			s.cmd.Process.Kill()
		}
	})
	return nil
}

func (s *ffmpegStream) readLoop(stdout io.Reader) {
	defer close(s.frames)

	buffer := make([]byte, 0, 1024*1024)
	chunk := make([]byte, 8192)

	for {
		n, err := stdout.Read(chunk)
		if n > 0 {
			buffer = append(buffer, chunk[:n]...)
			for {
				frame := extractJPEGFrame(&buffer)
				if frame == nil {
					break
				}
				s.deliver(frame)
			}
		}
		if err != nil {
			s.errMu.Lock()
			s.err = err
			s.errMu.Unlock()
			s.cmd.Wait()
			return
		}
	}
}

// deliver queues a frame, evicting the oldest buffered one when full.
func (s *ffmpegStream) deliver(frame []byte) {
	for {
		select {
		case s.frames <- frame:
			return
		default:
			select {
			case <-s.frames:
				s.drops.Add(1)
			default:
			}
		}
	}
}

// extractJPEGFrame extracts a complete JPEG frame from buffer
func extractJPEGFrame(buffer *[]byte) []byte {
	if len(*buffer) < 4 {
		return nil
	}

	// Find JPEG start marker (FFD8)
	startIdx := -1
	for i := 0; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD8 {
			startIdx = i
			break
		}
	}
	if startIdx == -1 {
		return nil
	}

	// Find JPEG end marker (FFD9)
	endIdx := -1
	for i := startIdx + 2; i < len(*buffer)-1; i++ {
		if (*buffer)[i] == 0xFF && (*buffer)[i+1] == 0xD9 {
			endIdx = i + 2
			break
		}
	}
	if endIdx == -1 {
		return nil
	}

	frame := make([]byte, endIdx-startIdx)
	copy(frame, (*buffer)[startIdx:endIdx])
	*buffer = (*buffer)[endIdx:]

	return frame
}
