package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/dkeye/voicehub/internal/adapters/auth"
	router "github.com/dkeye/voicehub/internal/adapters/http"
	"github.com/dkeye/voicehub/internal/adapters/rtc"
	sigws "github.com/dkeye/voicehub/internal/adapters/signal"
	sttws "github.com/dkeye/voicehub/internal/adapters/stt"
	"github.com/dkeye/voicehub/internal/adapters/ws"
	"github.com/dkeye/voicehub/internal/app"
	"github.com/dkeye/voicehub/internal/app/orch"
	"github.com/dkeye/voicehub/internal/app/stt"
	"github.com/dkeye/voicehub/internal/config"
	"github.com/dkeye/voicehub/internal/transcribe"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil && cfg.LogLevel != "" {
		zerolog.SetGlobalLevel(lvl)
	}

	var policy app.Policy = app.SimplePolicy{}
	if cfg.Signal.Tolerant {
		policy = app.TolerantPolicy{}
	}
	hub := app.NewHub(policy)

	loader, err := transcribe.NewLoader(cfg.Engine.Kind, transcribe.HTTPConfig{
		URL:        cfg.Engine.URL,
		Model:      cfg.Engine.Model,
		APIKey:     cfg.Engine.APIKey,
		Timeout:    cfg.Engine.Timeout,
		ProbePath:  cfg.Engine.ProbePath,
		SampleRate: cfg.STT.SampleRate,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("engine config")
	}
	svc := stt.NewService(stt.Config{
		SampleRate:        cfg.STT.SampleRate,
		Window:            cfg.STT.Window,
		Overlap:           cfg.STT.Overlap,
		MaxBuffer:         cfg.STT.MaxBuffer,
		FlushAfter:        cfg.STT.FlushAfter,
		PollTimeout:       cfg.STT.PollTimeout,
		QueueSize:         cfg.STT.QueueSize,
		Language:          cfg.STT.Language,
		TranscribeTimeout: cfg.STT.TranscribeTimeout,
		FlushOnClose:      cfg.STT.FlushOnClose,
	}, transcribe.NewLazy(loader))
	if cfg.STT.Warmup {
		go svc.Warmup()
	}

	verifier, err := auth.NewVerifier(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	unsigned := false
	if err != nil {
		verifier = nil
		if cfg.Mode == "debug" {
			unsigned = true
			log.Warn().Err(err).Msg("debug mode: caption channel accepts unsigned tokens")
		} else {
			log.Warn().Err(err).Msg("caption channel rejects every connection until auth.jwt_secret is set")
		}
	}

	wsOpts := ws.Options{
		SendBuffer: cfg.WS.SendBuffer,
		WriteWait:  cfg.WS.WriteWait,
		PongWait:   cfg.WS.PongWait,
		PingPeriod: cfg.WS.PingPeriod,
		ReadLimit:  cfg.WS.ReadLimit,
	}
	o := orch.New(hub, svc)
	ctl := router.Controllers{
		Signal: sigws.NewSignalWSController(hub, sigws.NewRateLimiter(cfg.Signal.RateLimit, cfg.Signal.RateWindow), wsOpts, cfg.Signal.Keepalive),
		STT:    sttws.NewSTTWSController(svc, verifier, wsOpts),
	}
	ctl.STT.AllowUnsigned = unsigned
	ice := rtc.Configuration(rtc.ICEOptions{
		STUN:           cfg.ICE.STUN,
		TURN:           cfg.ICE.TURN,
		TURNUsername:   cfg.ICE.TURNUsername,
		TURNCredential: cfg.ICE.TURNCredential,
	})

	r := router.SetupRouter(ctx, router.RouterConfig{
		Mode:       cfg.Mode,
		StaticPath: cfg.StaticPath,
		Secret:     cfg.Secret,
		ICE:        ice,
	}, o, ctl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("Voice server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
			cancel()
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	if err := o.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("caption sessions did not drain")
	}
	log.Info().Msg("Server exited gracefully")
}
