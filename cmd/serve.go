package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/Taoreunda/ptsd-homework-agent/db"
	"github.com/Taoreunda/ptsd-homework-agent/internal/api"
	"github.com/Taoreunda/ptsd-homework-agent/internal/chat"
	"github.com/Taoreunda/ptsd-homework-agent/internal/config"
	"github.com/Taoreunda/ptsd-homework-agent/internal/database"
	"github.com/Taoreunda/ptsd-homework-agent/internal/log"
	"github.com/Taoreunda/ptsd-homework-agent/internal/participant"
	"github.com/Taoreunda/ptsd-homework-agent/internal/session"
)

// Server timeout configuration.
const (
	readHeaderTimeout = 10 * time.Second
	readTimeout       = 30 * time.Second
	writeTimeout      = 2 * time.Minute // model calls can be slow
	idleTimeout       = 2 * time.Minute
	shutdownTimeout   = 30 * time.Second
)

var serveAddr string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return runServe(cmd.Context())
	},
}

func init() {
	serveCmd.Flags().StringVar(&serveAddr, "addr", "", "listen address (overrides config)")
	rootCmd.AddCommand(serveCmd)
}

func runServe(parent context.Context) error {
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	if err := cfg.ValidateServe(); err != nil {
		return fmt.Errorf("validating config: %w", err)
	}
	addr := cfg.ListenAddr
	if serveAddr != "" {
		addr = serveAddr
	}

	logger := newLogger(cfg)
	logger.Info("starting server", "version", Version, "addr", addr)

	ctx, cancel := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if err := db.Migrate(cfg.DatabaseURL); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}

	pool, err := database.Connect(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var systemPrompt string
	if cfg.SystemPromptPath != "" {
		data, err := os.ReadFile(cfg.SystemPromptPath)
		if err != nil {
			return fmt.Errorf("reading system prompt: %w", err)
		}
		systemPrompt = strings.TrimSpace(string(data))
	}

	client, err := chat.NewOpenAIClient(chat.OpenAIConfig{
		APIKey:       cfg.OpenAIAPIKey,
		Model:        cfg.Model,
		Temperature:  cfg.Temperature,
		SystemPrompt: systemPrompt,
	})
	if err != nil {
		return fmt.Errorf("creating model client: %w", err)
	}

	participants := participant.NewStore(pool, logger.With("component", "participant"))
	sessions := session.NewStore(pool, cfg.SessionWindow, logger.With("component", "session"))
	tokens := session.NewTokens(pool, cfg.SessionWindow, logger.With("component", "tokens"))
	bridge := chat.NewBridge(sessions, logger.With("component", "bridge"))

	flow := chat.NewFlow(chat.FlowConfig{
		Bridge:       bridge,
		Client:       chat.WithRetry(client, chat.DefaultRetryConfig()),
		Guard:        chat.NewGuard(chat.DefaultGuardTTL),
		HistoryTurns: cfg.HistoryTurns,
		Greeting:     cfg.Greeting,
		Logger:       logger.With("component", "flow"),
	})

	server := api.NewServer(api.ServerConfig{
		Logger:       logger.With("component", "api"),
		Participants: participants,
		Sessions:     sessions,
		Tokens:       tokens,
		Flow:         flow,
		Pinger:       pool,
		CORSOrigins:  cfg.CORSOrigins,
		TrustProxy:   cfg.TrustProxy,
		RatePerSec:   1,
		RateBurst:    cfg.RateBurst,
	})

	srv := &http.Server{
		Addr:              addr,
		Handler:           server.Handler(),
		ReadHeaderTimeout: readHeaderTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	logger.Info("server ready", "addr", addr, "api", "/api/v1/*", "health", "/healthz, /readyz")

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer shutdownCancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down server: %w", err)
		}
		<-errCh
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("http server: %w", err)
	}
}

func newLogger(cfg *config.Config) log.Logger {
	var level = parseLevel(cfg.LogLevel)
	return log.New(log.Config{Level: level, JSON: cfg.LogJSON})
}
