package main

import (
	"context"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"flag"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"subtranslate/site/internal/circuitbreaker"
	"subtranslate/site/internal/config"
	"subtranslate/site/internal/gate"
	"subtranslate/site/internal/metrics"
	"subtranslate/site/internal/render"
	"subtranslate/site/internal/server"
	"subtranslate/site/internal/theme"
	"subtranslate/site/internal/token"
	"subtranslate/site/internal/turnstile"
	"subtranslate/site/web"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	configFlag := flag.String("config", "", "path to config file (overrides SUBTRANSLATE_CONFIG env var)")
	flag.Parse()

	// CLI flag > env var > ./config.yaml when present > built-in defaults
	cfgPath := *configFlag
	if cfgPath == "" {
		cfgPath = os.Getenv("SUBTRANSLATE_CONFIG")
	}
	if cfgPath == "" {
		if _, err := os.Stat("./config.yaml"); err == nil {
			cfgPath = "./config.yaml"
		}
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal().Err(err).Msg("invalid config")
	}

	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	if cfg.Logging.Level == "debug" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
		log.Logger = log.Logger.Output(zerolog.ConsoleWriter{Out: os.Stdout})
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}

	log.Info().
		Str("config_path", cfgPath).
		Str("log_level", cfg.Logging.Level).
		Str("listen", cfg.Server.Listen).
		Str("env", cfg.App.Env).
		Msg("server configuration")
	log.Info().
		Str("trust_mode", cfg.Gate.TrustMode).
		Int("trust_ttl_sec", cfg.Gate.TTLSec).
		Int("verify_timeout_ms", cfg.Turnstile.TimeoutMs).
		Float64("verify_rps_limit", cfg.Gate.VerifyRPSLimit).
		Bool("test_keys", cfg.Turnstile.SiteKey == config.TestSiteKey).
		Msg("gate configuration")
	if cfg.Production() && cfg.Turnstile.SecretKey == config.TestSecretKey {
		log.Warn().Msg("running in production with the Turnstile test secret; every token will pass")
	}

	if cfg.Logging.IPHashKey == "" {
		rnd := make([]byte, 32)
		rand.Read(rnd)
		cfg.Logging.IPHashKey = base64.RawURLEncoding.EncodeToString(rnd)
		log.Debug().Msg("logging.ip_hash_key not set; using an ephemeral key")
	}

	var kr *token.Keyring
	if cfg.Gate.TrustMode == string(gate.ModeSigned) {
		kr, err = token.NewKeyring(cfg.Token)
		if err != nil {
			log.Fatal().Err(err).Msg("failed to create keyring")
		}
	}

	metrics.MustRegister()

	breaker := circuitbreaker.New("turnstile", circuitbreaker.Config{
		FailureThreshold: cfg.Breaker.FailureThreshold,
		SuccessThreshold: cfg.Breaker.SuccessThreshold,
		OpenFor:          time.Duration(cfg.Breaker.OpenSec) * time.Second,
	})
	client := turnstile.NewClient(cfg.Turnstile.VerifyURL, cfg.Turnstile.SecretKey, cfg.VerifyTimeout(), breaker)

	g, err := gate.New(cfg, client, kr)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to create gate")
	}

	renderer, err := render.New(web.FS)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to parse templates")
	}
	static, err := fs.Sub(web.FS, "static")
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open static assets")
	}

	srvHandler := server.New(server.Deps{
		Config:   cfg,
		Gate:     g,
		Themes:   theme.NewStore(cfg.Theme.CookieName, cfg.ThemeMaxAge(), cfg.Production()),
		Renderer: renderer,
		Static:   static,
		Breaker:  breaker,
		Logger:   log.Logger,
	}).Routes()

	srv := &http.Server{
		Addr:              cfg.Server.Listen,
		Handler:           srvHandler,
		ReadHeaderTimeout: time.Duration(cfg.Server.ReadTimeoutMs) * time.Millisecond,
		WriteTimeout:      time.Duration(cfg.Server.WriteTimeoutMs) * time.Millisecond,
		IdleTimeout:       90 * time.Second,
	}

	serverErrors := make(chan error, 1)
	go func() {
		log.Info().Str("listen", cfg.Server.Listen).Msg("SubTranslate listening")
		serverErrors <- srv.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if !errors.Is(err, http.ErrServerClosed) {
			log.Fatal().Err(err).Msg("server error")
		}
	case sig := <-shutdown:
		log.Info().Str("signal", sig.String()).Msg("received shutdown signal")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			log.Warn().Err(err).Msg("graceful shutdown failed, forcing close")
			srv.Close()
		}
		log.Info().Msg("shutdown complete")
	}
}
