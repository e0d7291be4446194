package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"

	"ppewatch/internal/capture"
)

// YOLODetector talks to the external YOLO inference service over HTTP.
type YOLODetector struct {
	endpoint    string
	client      *http.Client
	enabled     bool
	healthCheck time.Time
	mu          sync.RWMutex
}

// YOLOConfig holds configuration for the detector.
type YOLOConfig struct {
	Endpoint string
	Timeout  time.Duration
}

type yoloDetection struct {
	Class      string    `json:"class"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

type yoloResult struct {
	Detections      []yoloDetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
}

type yoloHealthResponse struct {
	Status      string `json:"status"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewYOLODetector creates a detector for the given inference endpoint.
func NewYOLODetector(cfg YOLOConfig) *YOLODetector {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 15 * time.Second // Longer timeout for GPU inference
	}
	return &YOLODetector{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
		enabled:  true,
	}
}

func (yd *YOLODetector) Name() string { return "yolo" }

func (yd *YOLODetector) Close() error { return nil }

// IsHealthy checks if the YOLO service is available
func (yd *YOLODetector) IsHealthy() bool {
	yd.mu.RLock()
	if !yd.enabled {
		yd.mu.RUnlock()
		return false
	}
	// Cache health check for 30 seconds
	if time.Since(yd.healthCheck) < 30*time.Second {
		yd.mu.RUnlock()
		return true
	}
	yd.mu.RUnlock()

	resp, err := yd.client.Get(yd.endpoint + "/health")
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusOK {
		var health yoloHealthResponse
		if err := json.NewDecoder(resp.Body).Decode(&health); err == nil && health.ModelLoaded {
			yd.mu.Lock()
			yd.healthCheck = time.Now()
			yd.mu.Unlock()
			return true
		}
	}
	return false
}

// Detect uploads the frame and converts the service response to pixel-space
// detections.
func (yd *YOLODetector) Detect(ctx context.Context, frame *capture.Frame) ([]Detection, error) {
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	fw.Write(frame.Data)
	w.Close()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, yd.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := yd.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detection request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("detection failed: %s", string(body))
	}

	var result yoloResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding detection response: %w", err)
	}

	detections := make([]Detection, 0, len(result.Detections))
	for _, d := range result.Detections {
		if len(d.BBox) != 4 {
			continue
		}
		detections = append(detections, Detection{
			Class:      d.Class,
			Confidence: d.Confidence,
			BBox: BBox{
				X1: int(d.BBox[0]),
				Y1: int(d.BBox[1]),
				X2: int(d.BBox[2]),
				Y2: int(d.BBox[3]),
			},
		})
	}
	return detections, nil
}

// Ensure YOLODetector implements Detector
var _ Detector = (*YOLODetector)(nil)
