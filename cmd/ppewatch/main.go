package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"ppewatch/internal/alert"
	"ppewatch/internal/api"
	"ppewatch/internal/capture"
	"ppewatch/internal/config"
	"ppewatch/internal/database"
	"ppewatch/internal/detection"
	"ppewatch/internal/pipeline"
	"ppewatch/internal/violation"
	"ppewatch/internal/ws"
)

func main() {
	portF := flag.Int("port", 0, "HTTP port (overrides PORT)")
	flag.Parse()

	log.SetPrefix("[ppewatch] ")
	log.SetFlags(log.Ldate | log.Ltime)

	cfg := config.Load()
	if *portF != 0 {
		cfg.Port = *portF
	}

	db, err := database.New(cfg.DBPath)
	if err != nil {
		log.Fatalf("database: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(); err != nil {
		log.Fatalf("database: %v", err)
	}

	detector := detection.NewYOLODetector(detection.YOLOConfig{
		Endpoint: cfg.DetectorEndpoint,
		Timeout:  cfg.DetectorTimeout,
	})
	defer detector.Close()

	recorder := violation.NewRecorder(cfg.LogPath, cfg.ViolationDir, cfg.FlushInterval)
	if state, err := db.GetConfig("recording"); err != nil {
		log.Printf("reading saved recording state failed: %v", err)
	} else if state == "on" {
		recorder.StartRecording()
	}
	query := violation.NewQuery(cfg.ViolationDir, cfg.LogPath)

	store := newFingerprintStore(cfg)
	defer store.Close()
	gate := alert.NewGate(store, cfg.AlertCooldown)

	hub := ws.NewAlertHub()
	notifiers := []alert.Notifier{hub}
	if cfg.WebhookURL != "" {
		notifiers = append(notifiers, alert.NewWebhookNotifier(cfg.WebhookURL))
	}
	if cfg.TelegramBotToken != "" && cfg.TelegramChatID != "" {
		notifiers = append(notifiers, alert.NewTelegramNotifier(alert.TelegramConfig{
			BotToken: cfg.TelegramBotToken,
			ChatID:   cfg.TelegramChatID,
		}))
	}
	alerter := alert.NewAlerter(gate, notifiers...)

	// Delivery runs on its own goroutine fed by a buffered subscription,
	// so a slow notifier can never stall a worker's frame loop.
	bus := pipeline.NewEventBus()
	defer bus.Close()
	alerts, unsubscribe := bus.SubscribeChannel(64)
	defer unsubscribe()
	go func() {
		for e := range alerts {
			ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
			alerter.Submit(ctx, e)
			cancel()
		}
	}()

	captureCfg := capture.Config{
		FPS:              cfg.FPS,
		ProcessEveryNth:  cfg.ProcessEveryNth,
		MaxReconnects:    cfg.MaxReconnects,
		OpenTimeout:      cfg.OpenTimeout,
		ReadTimeout:      cfg.ReadTimeout,
		ReconnectBackoff: cfg.ReconnectBackoff,
		MinBrightness:    cfg.MinBrightness,
		MaxBrightness:    cfg.MaxBrightness,
		MinDimension:     cfg.MinDimension,
		MaxDimension:     cfg.MaxDimension,
		TargetWidth:      cfg.TargetWidth,
		TargetHeight:     cfg.TargetHeight,
	}
	manager := pipeline.NewManager(captureCfg, detector, recorder, bus)
	defer manager.Close()

	restoreStreams(db, manager)

	handler := &api.Handler{
		Manager:  manager,
		Recorder: recorder,
		Query:    query,
		DB:       db,
		Hub:      hub,
		Detector: detector,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	handler.RegisterRoutes(r)

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
	}

	errc := make(chan error)
	go func() {
		c := make(chan os.Signal, 1)
		signal.Notify(c, syscall.SIGINT, syscall.SIGTERM)
		errc <- fmt.Errorf("%s", <-c)
	}()
	go func() {
		log.Printf("HTTP server listening on %s", srv.Addr)
		errc <- srv.ListenAndServe()
	}()

	log.Printf("exiting (%v)", <-errc)

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)

	manager.Close()
	if err := recorder.Flush(); err != nil {
		log.Printf("final flush failed: %v", err)
	}
	log.Println("exited")
}

// newFingerprintStore picks Redis when configured, otherwise the
// in-process store.
func newFingerprintStore(cfg *config.Config) alert.Store {
	if cfg.RedisAddr == "" {
		return alert.NewMemoryStore()
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	store, err := alert.NewRedisStore(ctx, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
	if err != nil {
		log.Printf("redis unavailable, falling back to in-memory store: %v", err)
		return alert.NewMemoryStore()
	}
	log.Printf("using redis fingerprint store at %s", cfg.RedisAddr)
	return store
}

// restoreStreams restarts the streams that were active on last shutdown.
func restoreStreams(db *database.Database, manager *pipeline.Manager) {
	records, err := db.ListStreams()
	if err != nil {
		log.Printf("listing saved streams failed: %v", err)
		return
	}

	for _, rec := range records {
		if !rec.Active {
			continue
		}
		spec := pipeline.StreamSpec{
			ID:     rec.ID,
			Name:   rec.Name,
			Input:  rec.Input,
			Domain: rec.Domain,
			FPS:    rec.FPS,
		}
		if _, err := manager.StartStream(spec); err != nil {
			log.Printf("restoring stream %s failed: %v", rec.Name, err)
			if err := db.SetStreamActive(rec.ID, false); err != nil {
				log.Printf("deactivating stream %s failed: %v", rec.Name, err)
			}
			continue
		}
		log.Printf("restored stream %s (%s)", rec.Name, rec.ID)
	}
}
