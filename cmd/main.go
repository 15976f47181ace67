package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"ai-call-orchestrator-service/internal/app"
	"ai-call-orchestrator-service/internal/config"
	"ai-call-orchestrator-service/internal/events"
	httpapi "ai-call-orchestrator-service/internal/http"
	"ai-call-orchestrator-service/internal/observability"
	"ai-call-orchestrator-service/internal/service/callctl"
	"ai-call-orchestrator-service/internal/service/dispatch"
	"ai-call-orchestrator-service/internal/service/generator"
	anthropicgen "ai-call-orchestrator-service/internal/service/generator/anthropic"
	mockgen "ai-call-orchestrator-service/internal/service/generator/mock"
	"ai-call-orchestrator-service/internal/service/interrupt"
	"ai-call-orchestrator-service/internal/service/orchestrator"
	"ai-call-orchestrator-service/internal/service/reply"
	"ai-call-orchestrator-service/internal/service/segmenter"
	"ai-call-orchestrator-service/internal/service/session"
	"ai-call-orchestrator-service/internal/service/stt"
	googlestt "ai-call-orchestrator-service/internal/service/stt/google"
	mockstt "ai-call-orchestrator-service/internal/service/stt/mock"
)

func main() {
	cfg := config.Load()

	application := app.New(cfg)
	if err := application.Start(); err != nil {
		log.Fatal().Err(err).Msg("Application startup failed")
	}
	defer application.Shutdown()

	// Conversation audit publisher with separate topics per speaker
	publisher := events.New(&events.Config{
		Enabled:        cfg.Kafka.Enabled,
		Brokers:        cfg.Kafka.Brokers,
		TopicUser:      cfg.Kafka.TopicUser,
		TopicAssistant: cfg.Kafka.TopicAssistant,
		Principal:      cfg.Kafka.Principal,
	})
	defer publisher.Close()

	channel := callctl.NewHTTPChannel(cfg.Service.CallControlURL)
	dispatcher := dispatch.New(channel)
	seg := segmenter.New(cfg.Segmenter)
	monitor := interrupt.New(cfg.Interrupt)

	var gen generator.Generator
	switch cfg.Generator.Provider {
	case "anthropic":
		gen = anthropicgen.New(cfg.Generator.Model, cfg.Generator.MaxTokens)
	default:
		gen = mockgen.New()
	}

	var sttFactory stt.Factory
	switch cfg.STT.Provider {
	case "google":
		sttFactory = googlestt.Factory(cfg.STT)
	default:
		sttFactory = mockstt.Factory()
	}

	coordinator := reply.New(gen, dispatcher, seg, publisher, cfg.Reply, cfg.Generator)
	store := session.NewStore()
	orch := orchestrator.New(store, seg, monitor, coordinator, dispatcher, publisher, sttFactory, cfg.STT.Provider, cfg.Reply)

	obsServer := observability.NewServer(cfg.Service.MetricsAddr)
	obsServer.Start()

	apiServer := &http.Server{
		Addr:    ":" + cfg.Service.HTTPPort,
		Handler: httpapi.NewRouter(application, orch),
	}
	go func() {
		log.Info().Str("port", cfg.Service.HTTPPort).Msg("Call orchestrator service started")
		if err := apiServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatal().Err(err).Msg("HTTP serve failed")
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig

	log.Info().Msg("Shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP shutdown error")
	}
	if err := obsServer.Shutdown(ctx); err != nil {
		log.Error().Err(err).Msg("Observability shutdown error")
	}
}
