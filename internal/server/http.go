// Package server exposes the gateway's HTTP surface: direct telemetry
// submission for devices without MQTT, the control command endpoint, manual
// registry sync, status, and Prometheus metrics.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"zero-trust-iot/gateway/internal/buffer"
	"zero-trust-iot/gateway/internal/validator"
)

const maxBodyBytes = 1 << 20

// Ingestor accepts one raw payload from a transport.
type Ingestor interface {
	Ingest(ctx context.Context, source string, raw []byte) error
}

// ControlPublisher forwards a command to a device and returns the topic used.
type ControlPublisher interface {
	PublishControl(deviceID, command, commandID string) (string, error)
}

// RegistrySyncer refreshes the access registry and returns the device count.
type RegistrySyncer interface {
	Sync(ctx context.Context) (int, error)
}

// AlarmState reports the last observed authority alarm state.
type AlarmState interface {
	Active() (bool, string)
}

// Server is the gateway HTTP server.
type Server struct {
	gatewayID string
	pipeline  Ingestor
	publisher ControlPublisher
	syncer    RegistrySyncer
	alarms    AlarmState
	logger    *zap.Logger

	httpServer *http.Server
}

func New(addr, gatewayID string, pipeline Ingestor, publisher ControlPublisher, syncer RegistrySyncer, alarms AlarmState, logger *zap.Logger) *Server {
	s := &Server{
		gatewayID: gatewayID,
		pipeline:  pipeline,
		publisher: publisher,
		syncer:    syncer,
		alarms:    alarms,
		logger:    logger,
	}

	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/status", s.handleStatus)
	r.Post("/api/submit", s.handleSubmit)
	r.Post("/api/sync", s.handleSync)
	r.Post("/control", s.handleControl)
	r.Handle("/metrics", promhttp.Handler())

	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           r,
		ReadHeaderTimeout: 5 * time.Second,
	}
	return s
}

// Handler exposes the routed handler.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start serves until Shutdown is called. A closed server returns nil.
func (s *Server) Start() error {
	s.logger.Info("http server listening", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleStatus(w http.ResponseWriter, _ *http.Request) {
	active, reason := s.alarms.Active()
	resp := map[string]any{
		"status":       "running",
		"gateway_id":   s.gatewayID,
		"alarm_active": active,
	}
	if active && reason != "" {
		resp["alarm_reason"] = reason
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSubmit(w http.ResponseWriter, r *http.Request) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "rejected",
			"reason": "MALFORMED_PAYLOAD",
		})
		return
	}

	err = s.pipeline.Ingest(r.Context(), "http", raw)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, map[string]string{"status": "accepted"})
	case errors.Is(err, buffer.ErrFull):
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{
			"status": "rejected",
			"reason": "BUFFER_FULL",
		})
	default:
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "rejected",
			"reason": validator.Reason(err),
			"detail": err.Error(),
		})
	}
}

func (s *Server) handleSync(w http.ResponseWriter, r *http.Request) {
	count, err := s.syncer.Sync(r.Context())
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":        "sync_complete",
		"devices_count": count,
	})
}

func (s *Server) handleControl(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID  string `json:"device_id"`
		Command   string `json:"command"`
		CommandID string `json:"command_id"`
	}
	if err := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"reason": "invalid JSON body",
		})
		return
	}
	if req.DeviceID == "" || req.Command == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"status": "error",
			"reason": "Missing device_id or command",
		})
		return
	}

	topic, err := s.publisher.PublishControl(req.DeviceID, req.Command, req.CommandID)
	if err != nil {
		writeJSON(w, http.StatusInternalServerError, map[string]string{
			"status": "error",
			"reason": err.Error(),
		})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"status":    "forwarded",
		"device_id": req.DeviceID,
		"command":   req.Command,
		"topic":     topic,
	})
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("took", time.Since(start)))
		})
	}
}
