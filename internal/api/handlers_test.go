package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"

	"ppewatch/internal/capture"
	"ppewatch/internal/database"
	"ppewatch/internal/detection"
	"ppewatch/internal/pipeline"
	"ppewatch/internal/violation"
	"ppewatch/internal/ws"
)

func newTestServer(t *testing.T) (*httptest.Server, string) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "violations.log")

	recorder := violation.NewRecorder(logPath, dir, time.Hour)
	detector := detection.Func(func(ctx context.Context, frame *capture.Frame) ([]detection.Detection, error) {
		return nil, nil
	})
	bus := pipeline.NewEventBus()
	t.Cleanup(bus.Close)
	manager := pipeline.NewManager(capture.Config{}, detector, recorder, bus)
	t.Cleanup(manager.Close)

	h := &Handler{
		Manager:  manager,
		Recorder: recorder,
		Query:    violation.NewQuery(dir, logPath),
		Hub:      ws.NewAlertHub(),
	}

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, dir
}

func newTestServerWithDB(t *testing.T) (*httptest.Server, *database.Database) {
	t.Helper()
	dir := t.TempDir()
	logPath := filepath.Join(dir, "violations.log")

	db, err := database.New(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(); err != nil {
		t.Fatal(err)
	}

	recorder := violation.NewRecorder(logPath, dir, time.Hour)
	detector := detection.Func(func(ctx context.Context, frame *capture.Frame) ([]detection.Detection, error) {
		return nil, nil
	})
	bus := pipeline.NewEventBus()
	t.Cleanup(bus.Close)
	manager := pipeline.NewManager(capture.Config{}, detector, recorder, bus)
	t.Cleanup(manager.Close)

	h := &Handler{
		Manager:  manager,
		Recorder: recorder,
		Query:    violation.NewQuery(dir, logPath),
		DB:       db,
		Hub:      ws.NewAlertHub(),
		Detector: detector,
	}

	r := chi.NewRouter()
	h.RegisterRoutes(r)
	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return srv, db
}

func getJSON(t *testing.T, url string, v any) {
	t.Helper()
	resp, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		t.Fatalf("decoding %s: %v", url, err)
	}
}

func TestRecordingToggle(t *testing.T) {
	srv, _ := newTestServer(t)

	var status struct {
		Recording bool `json:"recording"`
	}
	getJSON(t, srv.URL+"/api/recording", &status)
	if status.Recording {
		t.Fatal("recording enabled by default")
	}

	resp, err := http.Post(srv.URL+"/api/recording/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	getJSON(t, srv.URL+"/api/recording", &status)
	if !status.Recording {
		t.Error("recording not enabled after start")
	}

	resp, err = http.Post(srv.URL+"/api/recording/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	getJSON(t, srv.URL+"/api/recording", &status)
	if status.Recording {
		t.Error("recording still enabled after stop")
	}
}

// The toggle is written through to app_config so a restart can pick it
// back up.
func TestRecordingStatePersisted(t *testing.T) {
	srv, db := newTestServerWithDB(t)

	resp, err := http.Post(srv.URL+"/api/recording/start", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if state, err := db.GetConfig("recording"); err != nil || state != "on" {
		t.Errorf("saved state = %q, %v, want \"on\"", state, err)
	}

	resp, err = http.Post(srv.URL+"/api/recording/stop", "application/json", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp.Body.Close()
	if state, err := db.GetConfig("recording"); err != nil || state != "off" {
		t.Errorf("saved state = %q, %v, want \"off\"", state, err)
	}
}

func TestHealthReportsDetector(t *testing.T) {
	srv, _ := newTestServerWithDB(t)

	var health struct {
		Status          string `json:"status"`
		DetectorHealthy *bool  `json:"detector_healthy"`
	}
	getJSON(t, srv.URL+"/healthz", &health)
	if health.Status != "ok" {
		t.Errorf("status = %q", health.Status)
	}
	if health.DetectorHealthy == nil || !*health.DetectorHealthy {
		t.Errorf("detector_healthy = %v, want true", health.DetectorHealthy)
	}
}

// A stream whose worker already exited can still be deleted; its record
// must not survive to be restored on the next boot.
func TestStreamDeleteRemovesExitedStream(t *testing.T) {
	srv, db := newTestServerWithDB(t)

	record := &database.StreamRecord{
		ID:        "s1",
		Name:      "gate-cam",
		Input:     "clip.mp4",
		Domain:    "construction",
		Active:    true,
		CreatedAt: time.Now(),
	}
	if err := db.SaveStream(record); err != nil {
		t.Fatal(err)
	}

	req, err := http.NewRequest(http.MethodDelete, srv.URL+"/api/streams/s1", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	got, err := db.GetStream("s1")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Errorf("record still present after delete: %+v", got)
	}

	// A stream that never existed anywhere is still a 404.
	req, err = http.NewRequest(http.MethodDelete, srv.URL+"/api/streams/ghost", nil)
	if err != nil {
		t.Fatal(err)
	}
	resp, err = http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestViolationQueryEndpoints(t *testing.T) {
	srv, dir := newTestServer(t)

	ts := time.Date(2026, 3, 14, 9, 26, 53, 0, time.Local)
	snapDir := filepath.Join(dir, violation.DomainCode("Construction"))
	if err := os.MkdirAll(snapDir, 0o755); err != nil {
		t.Fatal(err)
	}
	name := violation.Filename("Construction", ts)
	if err := os.WriteFile(filepath.Join(snapDir, name), nil, 0o644); err != nil {
		t.Fatal(err)
	}

	var counts []violation.DomainCount
	getJSON(t, srv.URL+"/api/violations/count?date=2026-03-14", &counts)
	if len(counts) != 1 || counts[0].Domain != "Construction" || counts[0].Count != 1 {
		t.Errorf("counts = %+v", counts)
	}

	var entries []violation.Entry
	getJSON(t, srv.URL+"/api/violations/recent?limit=5", &entries)
	if len(entries) != 1 || !strings.HasSuffix(entries[0].Filename, name) {
		t.Errorf("entries = %+v", entries)
	}

	var timeline []violation.DateCount
	getJSON(t, srv.URL+"/api/violations/timeline?from=2026-03-13&to=2026-03-15", &timeline)
	if len(timeline) != 1 || timeline[0].Date != "2026-03-14" {
		t.Errorf("timeline = %+v", timeline)
	}

	// An empty result serializes as [] rather than null.
	resp, err := http.Get(srv.URL + "/api/violations?date=1999-01-01")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	var raw json.RawMessage
	if err := json.NewDecoder(resp.Body).Decode(&raw); err != nil {
		t.Fatal(err)
	}
	if strings.TrimSpace(string(raw)) != "[]" {
		t.Errorf("empty list = %s, want []", raw)
	}
}

func TestStreamCreateValidation(t *testing.T) {
	srv, _ := newTestServer(t)

	body := strings.NewReader(`{"name": "cam", "input": "test.mp4", "domain": "aviation"}`)
	resp, err := http.Post(srv.URL+"/api/streams/", "application/json", body)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestDomainsEndpoint(t *testing.T) {
	srv, _ := newTestServer(t)

	var domains []struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Threshold float64  `json:"threshold"`
		Classes   []string `json:"classes"`
	}
	getJSON(t, srv.URL+"/api/domains", &domains)
	if len(domains) != 4 {
		t.Fatalf("domains = %d, want 4", len(domains))
	}
	if domains[0].ID != "construction" {
		t.Errorf("domains[0] = %q, want construction (sorted)", domains[0].ID)
	}
	for _, d := range domains {
		if d.Threshold != 0.6 {
			t.Errorf("%s threshold = %v, want 0.6", d.ID, d.Threshold)
		}
		if len(d.Classes) == 0 {
			t.Errorf("%s has no classes", d.ID)
		}
	}
}
