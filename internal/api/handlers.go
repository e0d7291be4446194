// Package api exposes the HTTP control surface: stream management, the
// recording toggle and the violation query endpoints.
package api

import (
	"encoding/json"
	"log"
	"net/http"
	"sort"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"ppewatch/internal/classify"
	"ppewatch/internal/database"
	"ppewatch/internal/detection"
	"ppewatch/internal/pipeline"
	"ppewatch/internal/violation"
	"ppewatch/internal/ws"
)

// Handler holds the dependencies of every HTTP endpoint.
type Handler struct {
	Manager  *pipeline.Manager
	Recorder *violation.Recorder
	Query    *violation.Query
	DB       *database.Database
	Hub      *ws.AlertHub
	Detector detection.Detector
}

// RegisterRoutes mounts all endpoints on the router.
func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Get("/healthz", h.handleHealth)
	r.Get("/api/domains", h.handleDomains)

	r.Post("/api/recording/start", h.handleRecordingStart)
	r.Post("/api/recording/stop", h.handleRecordingStop)
	r.Get("/api/recording", h.handleRecordingStatus)

	r.Route("/api/streams", func(r chi.Router) {
		r.Post("/", h.handleStreamCreate)
		r.Get("/", h.handleStreamList)
		r.Delete("/{id}", h.handleStreamDelete)
	})

	r.Get("/api/violations", h.handleViolationList)
	r.Get("/api/violations/count", h.handleViolationCount)
	r.Get("/api/violations/timeline", h.handleViolationTimeline)
	r.Get("/api/violations/recent", h.handleViolationRecent)
	r.Get("/api/violations/by_type", h.handleViolationByType)

	r.Handle("/ws/alerts", ws.NewHandler(h.Hub))
}

func (h *Handler) handleHealth(w http.ResponseWriter, r *http.Request) {
	payload := map[string]any{
		"status":     "ok",
		"streams":    len(h.Manager.List()),
		"recording":  h.Recorder.RecordingEnabled(),
		"ws_clients": h.Hub.ClientCount(),
	}
	if h.Detector != nil {
		payload["detector_healthy"] = h.Detector.IsHealthy()
	}
	writeJSON(w, http.StatusOK, payload)
}

func (h *Handler) handleDomains(w http.ResponseWriter, r *http.Request) {
	type domainInfo struct {
		ID        string   `json:"id"`
		Name      string   `json:"name"`
		Threshold float64  `json:"threshold"`
		Classes   []string `json:"classes"`
	}

	builtin := classify.Builtin()
	domains := make([]domainInfo, 0, len(builtin))
	for id, p := range builtin {
		domains = append(domains, domainInfo{
			ID:        id,
			Name:      p.Name(),
			Threshold: p.Threshold(),
			Classes:   p.Classes(),
		})
	}
	sort.Slice(domains, func(i, j int) bool { return domains[i].ID < domains[j].ID })
	writeJSON(w, http.StatusOK, domains)
}

func (h *Handler) handleRecordingStart(w http.ResponseWriter, r *http.Request) {
	h.Recorder.StartRecording()
	h.saveRecordingState("on")
	writeJSON(w, http.StatusOK, map[string]any{"recording": true})
}

func (h *Handler) handleRecordingStop(w http.ResponseWriter, r *http.Request) {
	h.Recorder.StopRecording()
	h.saveRecordingState("off")
	writeJSON(w, http.StatusOK, map[string]any{"recording": false})
}

// saveRecordingState persists the toggle so it survives restarts.
func (h *Handler) saveRecordingState(state string) {
	if h.DB == nil {
		return
	}
	if err := h.DB.SaveConfig("recording", state); err != nil {
		log.Printf("[API] Persisting recording state failed: %v", err)
	}
}

func (h *Handler) handleRecordingStatus(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"recording": h.Recorder.RecordingEnabled()})
}

func (h *Handler) handleStreamCreate(w http.ResponseWriter, r *http.Request) {
	var spec pipeline.StreamSpec
	if err := decodeJSON(r, &spec); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	id, err := h.Manager.StartStream(spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if h.DB != nil {
		record := &database.StreamRecord{
			ID:        id,
			Name:      spec.Name,
			Input:     spec.Input,
			Domain:    spec.Domain,
			FPS:       spec.FPS,
			Active:    true,
			CreatedAt: time.Now(),
		}
		if err := h.DB.SaveStream(record); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	}

	writeJSON(w, http.StatusCreated, map[string]any{"id": id})
}

func (h *Handler) handleStreamList(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, h.Manager.List())
}

// handleStreamDelete stops the worker and removes the saved record. A
// stream whose worker already exited (file sources end, reconnects run
// out) still has its record removed, otherwise it would be restored again
// on the next boot.
func (h *Handler) handleStreamDelete(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	stopErr := h.Manager.StopStream(id)
	if stopErr != nil && h.DB == nil {
		writeError(w, http.StatusNotFound, stopErr.Error())
		return
	}
	if h.DB != nil {
		record, err := h.DB.GetStream(id)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if stopErr != nil && record == nil {
			writeError(w, http.StatusNotFound, stopErr.Error())
			return
		}
		if record != nil {
			if err := h.DB.DeleteStream(id); err != nil {
				writeError(w, http.StatusInternalServerError, err.Error())
				return
			}
		}
	}
	writeJSON(w, http.StatusOK, map[string]any{"deleted": id})
}

func (h *Handler) handleViolationList(w http.ResponseWriter, r *http.Request) {
	date := r.URL.Query().Get("date")
	from := r.URL.Query().Get("from")
	to := r.URL.Query().Get("to")

	entries, err := h.Query.List(date, from, to)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []violation.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleViolationCount(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Query.CountByDomain(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if counts == nil {
		counts = []violation.DomainCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleViolationTimeline(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Query.Timeline(r.URL.Query().Get("from"), r.URL.Query().Get("to"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if counts == nil {
		counts = []violation.DateCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

func (h *Handler) handleViolationRecent(w http.ResponseWriter, r *http.Request) {
	limit := 10
	if raw := r.URL.Query().Get("limit"); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil {
			limit = n
		}
	}

	entries, err := h.Query.Recent(limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if entries == nil {
		entries = []violation.Entry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

func (h *Handler) handleViolationByType(w http.ResponseWriter, r *http.Request) {
	counts, err := h.Query.ByType(r.URL.Query().Get("date"))
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	if counts == nil {
		counts = []violation.TypeCount{}
	}
	writeJSON(w, http.StatusOK, counts)
}

type errorResponse struct {
	Error string `json:"error"`
}

func decodeJSON(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, errorResponse{Error: message})
}
