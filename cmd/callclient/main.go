package main

import (
	"context"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v3"

	"callkit/internal/core/domain"
	"callkit/internal/core/ports"
	"callkit/internal/core/services"
	"callkit/internal/infrastructure/media"
	gatewaysignal "callkit/internal/infrastructure/signal"
	"callkit/internal/infrastructure/monitoring"
	"callkit/pkg/config"
	"callkit/pkg/logger"
	"callkit/pkg/tracing"
)

func main() {
	configPath := flag.String("config", "config.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		panic(err)
	}
	if cfg.Signaling.ClientID == "" {
		cfg.Signaling.ClientID = uuid.NewString()
	}

	zl, err := logger.New(cfg.Logging.Level, cfg.Logging.Format)
	if err != nil {
		panic(err)
	}
	defer func() { _ = zl.Sync() }()
	log := zl.Sugar()

	tp, err := tracing.Init(tracing.Config{
		Enabled:     cfg.Tracing.Enabled,
		ServiceName: cfg.Tracing.ServiceName,
		JaegerURL:   cfg.Tracing.JaegerURL,
		Environment: cfg.Tracing.Environment,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		log.Fatalw("failed to initialize tracing", "error", err)
	}
	defer func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = tp.Shutdown(ctx)
	}()

	engine, err := media.NewEngine(media.Config{ICEServers: iceServers(cfg)}, log)
	if err != nil {
		log.Fatalw("failed to initialize media engine", "error", err)
	}

	dialCtx, dialCancel := context.WithTimeout(context.Background(), cfg.Signaling.DialTimeout*time.Duration(cfg.Signaling.DialAttempts+1))
	gateway, err := gatewaysignal.Dial(dialCtx, gatewaysignal.Config{
		URL:               cfg.Signaling.URL,
		ClientID:          cfg.Signaling.ClientID,
		TokenSecret:       cfg.Signaling.TokenSecret,
		TokenTTL:          cfg.Signaling.TokenTTL,
		DialTimeout:       cfg.Signaling.DialTimeout,
		DialAttempts:      cfg.Signaling.DialAttempts,
		PingInterval:      cfg.Signaling.PingInterval,
		PongTimeout:       cfg.Signaling.PongTimeout,
		WriteTimeout:      cfg.Signaling.WriteTimeout,
		CommandsPerSecond: cfg.Signaling.CommandsPerSecond,
		Burst:             cfg.Signaling.Burst,
	}, log)
	dialCancel()
	if err != nil {
		log.Fatalw("failed to connect to signaling coordinator", "error", err)
	}
	defer func() { _ = gateway.Close() }()

	var metrics ports.MetricsRecorder = ports.NopMetrics{}
	if cfg.Monitoring.PrometheusEnabled {
		metrics = monitoring.NewPrometheusCollector()
	}

	sinks := ports.MediaSinks{
		OnLocalTrack: func(track ports.LocalTrack) {
			log.Infow("local track ready", "kind", track.Kind(), "source", track.Source())
		},
		OnRemoteTrack: func(id domain.ParticipantID, track ports.RemoteTrack) {
			log.Infow("remote track ready", "participant_id", id, "kind", track.Kind())
		},
	}

	manager := services.NewCallSessionManager(services.Options{
		ClientID:          domain.ParticipantID(cfg.Signaling.ClientID),
		DisplayName:       cfg.Signaling.DisplayName,
		AudioEnabled:      cfg.Media.AudioEnabled,
		VideoEnabled:      cfg.Media.VideoEnabled,
		SpeakingThreshold: cfg.VAD.SpeakingThreshold,
		SilenceTimeout:    cfg.VAD.SilenceTimeout,
	}, gateway, engine, sinks, metrics, log)

	srv := &http.Server{
		Addr:    cfg.Control.Address,
		Handler: newRouter(manager, log),
	}
	go func() {
		log.Infow("control API listening", "address", cfg.Control.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalw("control API failed", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Infow("shutting down")

	if err := manager.Leave(); err != nil && err != domain.ErrNoActiveSession {
		log.Warnw("failed to leave session on shutdown", "error", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.Control.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Errorw("control API shutdown failed", "error", err)
	}
	log.Infow("shutdown complete")
}

func iceServers(cfg *config.Config) []webrtc.ICEServer {
	servers := make([]webrtc.ICEServer, 0, len(cfg.Media.ICEServers))
	for _, s := range cfg.Media.ICEServers {
		server := webrtc.ICEServer{URLs: s.URLs}
		if s.Username != "" {
			server.Username = s.Username
			server.Credential = s.Credential
		}
		servers = append(servers, server)
	}
	return servers
}
