package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gonkalabs/subkit/internal/api"
	"github.com/gonkalabs/subkit/internal/caption"
	"github.com/gonkalabs/subkit/internal/config"
	"github.com/gonkalabs/subkit/internal/profanity"
	"github.com/gonkalabs/subkit/internal/ratelimit"
	"github.com/gonkalabs/subkit/internal/session"
	"github.com/gonkalabs/subkit/internal/storage"
	"github.com/gonkalabs/subkit/internal/textenc"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelInfo})))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("config error", "err", err)
		os.Exit(1)
	}
	setupLogging(cfg)

	dec, err := textenc.NewDecoder(cfg.TextEncodings)
	if err != nil {
		slog.Error("decoder error", "err", err)
		os.Exit(1)
	}

	lex := profanity.DefaultLexicon()
	if cfg.LexiconFile != "" {
		lex, err = profanity.LoadLexicon(cfg.LexiconFile)
		if err != nil {
			slog.Error("lexicon error", "err", err)
			os.Exit(1)
		}
	}
	scanner, err := profanity.NewScanner(lex)
	if err != nil {
		slog.Error("scanner error", "err", err)
		os.Exit(1)
	}

	var signer *session.Signer
	if cfg.SessionKey != "" {
		signer, err = session.New(cfg.SessionKey, cfg.SessionTTL)
	} else {
		slog.Warn("SESSION_KEY not set, review tokens will not survive a restart")
		signer, err = session.Generate(cfg.SessionTTL)
	}
	if err != nil {
		slog.Error("session signer error", "err", err)
		os.Exit(1)
	}

	store, err := storage.New(cfg.UploadDir, cfg.OutputDir)
	if err != nil {
		slog.Error("storage error", "err", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go store.Run(ctx, cfg.CleanupInterval, cfg.CleanupMaxAge)

	handler := api.New(store, dec, caption.New(nil), scanner, signer, cfg.MaxUploadBytes)

	mux := http.NewServeMux()
	handler.Register(mux)

	var limiter *ratelimit.Limiter
	if cfg.RateLimitRPS > 0 {
		limiter = ratelimit.New(cfg.RateLimitRPS, cfg.RateLimitBurst)
	}

	srv := &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      api.LogRequests(limiter.Middleware(mux)),
		ReadTimeout:  60 * time.Second,
		WriteTimeout: 120 * time.Second,
		IdleTimeout:  120 * time.Second,
	}

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		slog.Info("shutting down", "signal", sig)
		cancel()

		shutCtx, shutCancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer shutCancel()

		if err := srv.Shutdown(shutCtx); err != nil {
			slog.Error("shutdown error", "err", err)
		}
	}()

	slog.Info("starting subkit server",
		"addr", cfg.ListenAddr,
		"encodings", dec.Names(),
		"lexicon", scanner.Len(),
		"rateLimit", cfg.RateLimitRPS,
		"maxUploadBytes", cfg.MaxUploadBytes,
	)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		slog.Error("server error", "err", err)
		os.Exit(1)
	}
}

func setupLogging(cfg *config.Cfg) {
	opts := &slog.HandlerOptions{Level: cfg.LogLevel}
	var h slog.Handler = slog.NewTextHandler(os.Stderr, opts)
	if cfg.LogFormat == "json" {
		h = slog.NewJSONHandler(os.Stderr, opts)
	}
	slog.SetDefault(slog.New(h))
}
