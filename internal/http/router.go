// Package http exposes the telephony-facing surface: call lifecycle
// webhooks and the websocket media ingress.
package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"

	"ai-call-orchestrator-service/internal/app"
	"ai-call-orchestrator-service/internal/observability"
	"ai-call-orchestrator-service/internal/observability/logging"
	"ai-call-orchestrator-service/internal/observability/metrics"
	"ai-call-orchestrator-service/internal/service/orchestrator"
)

// startRequest is the body of the call-started webhook. Metadata is
// provider-specific and passed through to the session untouched.
type startRequest struct {
	Metadata map[string]string `json:"metadata,omitempty"`
}

// NewRouter constructs the HTTP router for the service.
func NewRouter(application *app.Application, orch *orchestrator.Orchestrator) http.Handler {
	r := chi.NewRouter()

	// Basic middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(observability.RequestLogger(metrics.DefaultMetrics))

	// Health endpoints
	r.Get("/v1/liveness", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/v1/readiness", func(w http.ResponseWriter, _ *http.Request) {
		if application.StartupTime.IsZero() {
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = w.Write([]byte("starting"))
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	// API routes
	r.Route("/v1/calls/{callID}", func(r chi.Router) {
		r.Post("/started", handleCallStarted(orch))
		r.Post("/ended", handleCallEnded(orch))
		r.Get("/media", handleMedia(orch))
	})

	return r
}

func handleCallStarted(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callID := chi.URLParam(r, "callID")
		if callID == "" {
			http.Error(w, "missing call id", http.StatusBadRequest)
			return
		}

		var req startRequest
		// An empty body means no metadata; anything else must parse.
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
			http.Error(w, "invalid request body", http.StatusBadRequest)
			return
		}

		if err := orch.OnCallStarted(r.Context(), callID, req.Metadata); err != nil {
			log.Error().Err(err).Str("callId", callID).Msg("Failed to start call")
			http.Error(w, "failed to start call", http.StatusInternalServerError)
			return
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"started"}`))
	}
}

func handleCallEnded(orch *orchestrator.Orchestrator) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		callID := chi.URLParam(r, "callID")
		if callID == "" {
			http.Error(w, "missing call id", http.StatusBadRequest)
			return
		}

		orch.OnCallEnded(callID)

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ended"}`))
	}
}

// handleMedia upgrades to a websocket and pumps binary audio frames into
// the call's transcription stream until the peer disconnects. Text frames
// are ignored.
func handleMedia(orch *orchestrator.Orchestrator) http.HandlerFunc {
	upgrader := websocket.Upgrader{
		ReadBufferSize:  4096,
		WriteBufferSize: 4096,
		CheckOrigin:     func(*http.Request) bool { return true },
	}
	return func(w http.ResponseWriter, r *http.Request) {
		callID := chi.URLParam(r, "callID")
		if callID == "" {
			http.Error(w, "missing call id", http.StatusBadRequest)
			return
		}

		logger := logging.WithCall(callID)
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			logger.Warn().Err(err).Msg("Websocket upgrade failed")
			return
		}
		defer conn.Close()

		logger.Info().Msg("Media stream connected")
		for {
			msgType, frame, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
					logger.Warn().Err(err).Msg("Media stream closed unexpectedly")
				} else {
					logger.Info().Msg("Media stream disconnected")
				}
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			orch.OnMediaFrame(callID, frame)
		}
	}
}
